// Package telemetry provides OpenTelemetry instrumentation for stageflowd.
//
// It implements distributed tracing and metrics collection using the
// OpenTelemetry Go SDK, exporting to an OTLP endpoint over gRPC or HTTP.
//
// Create a telemetry instance:
//
//	cfg := telemetry.DefaultConfig()
//	tel, err := telemetry.New(ctx, cfg)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer tel.Shutdown(ctx)
//
// Use tracer and meter:
//
//	tracer := tel.Tracer("stageflow.workflow")
//	ctx, span := tracer.Start(ctx, "Manager.Advance")
//	defer span.End()
//
// Telemetry failures do not crash the application. If an exporter cannot
// be initialized the instance degrades gracefully and hands out no-op
// providers instead.
package telemetry
