package reference

import (
	"context"
	"encoding/json"
	"errors"
	"sort"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/stageflow/internal/store"
)

const instrumentationName = "github.com/fyrsmithlabs/stageflow/internal/reference"

// Registry provides the cross-stage traceability graph: creation is
// validated and idempotent, lookups are best-effort reads over the full
// reference set with client-side filtering.
type Registry struct {
	store  store.Store
	logger *zap.Logger

	tracer        trace.Tracer
	meter         metric.Meter
	createCounter metric.Int64Counter
	lookupCounter metric.Int64Counter
}

// NewRegistry creates a reference registry over the given store.
func NewRegistry(st store.Store, logger *zap.Logger) (*Registry, error) {
	if st == nil {
		return nil, errors.New("store is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	r := &Registry{
		store:  st,
		logger: logger,
		tracer: otel.Tracer(instrumentationName),
		meter:  otel.Meter(instrumentationName),
	}
	r.initMetrics()
	return r, nil
}

func (r *Registry) initMetrics() {
	var err error

	r.createCounter, err = r.meter.Int64Counter(
		"stageflow.reference.creates_total",
		metric.WithDescription("Total number of cross-stage references created"),
		metric.WithUnit("{reference}"),
	)
	if err != nil {
		r.logger.Warn("failed to create reference create counter", zap.Error(err))
	}

	r.lookupCounter, err = r.meter.Int64Counter(
		"stageflow.reference.lookups_total",
		metric.WithDescription("Total number of cross-stage reference lookups"),
		metric.WithUnit("{lookup}"),
	)
	if err != nil {
		r.logger.Warn("failed to create reference lookup counter", zap.Error(err))
	}
}

// Create validates and persists a reference, returning its composite key and
// an echo of the stored reference. Re-creating a reference with identical
// field values overwrites the stored copy rather than accumulating a
// duplicate.
func (r *Registry) Create(ctx context.Context, ref *Reference) (string, *Reference, error) {
	ctx, span := r.tracer.Start(ctx, "reference.create")
	defer span.End()

	if err := ref.Validate(); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return "", nil, err
	}

	span.SetAttributes(
		attribute.String("source_mode", ref.SourceMode),
		attribute.String("target_mode", ref.TargetMode),
		attribute.String("reference_type", string(ref.Type)),
	)

	stored := *ref
	if stored.CreatedAt.IsZero() {
		stored.CreatedAt = time.Now().UTC()
	}

	key := stored.Key()
	if err := r.store.Put(ctx, store.CategoryReferences, key, &stored); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return "", nil, err
	}

	if r.createCounter != nil {
		r.createCounter.Add(ctx, 1, metric.WithAttributes(
			attribute.String("reference_type", string(stored.Type)),
		))
	}

	r.logger.Info("created cross-stage reference",
		zap.String("key", key),
		zap.String("source_mode", stored.SourceMode),
		zap.String("target_mode", stored.TargetMode),
		zap.String("reference_type", string(stored.Type)),
	)

	span.SetAttributes(attribute.String("reference_key", key))
	return key, &stored, nil
}

// Get returns the references matching the query, filtered client-side over
// the full stored set. Lookups are best-effort: a store outage yields an
// empty slice, never an error, so reference queries cannot block a caller.
func (r *Registry) Get(ctx context.Context, q Query) []*Reference {
	ctx, span := r.tracer.Start(ctx, "reference.get")
	defer span.End()

	span.SetAttributes(
		attribute.String("mode", q.Mode),
		attribute.Bool("as_source", q.AsSource),
	)

	if r.lookupCounter != nil {
		r.lookupCounter.Add(ctx, 1)
	}

	all, err := r.store.GetAll(ctx, store.CategoryReferences)
	if err != nil {
		span.RecordError(err)
		r.logger.Warn("reference lookup degraded, store unavailable", zap.Error(err))
		return []*Reference{}
	}

	matches := make([]*Reference, 0)
	for key, raw := range all {
		var ref Reference
		if err := json.Unmarshal(raw, &ref); err != nil {
			r.logger.Warn("skipping undecodable reference", zap.String("key", key), zap.Error(err))
			continue
		}
		if q.Matches(&ref) {
			matches = append(matches, &ref)
		}
	}

	sort.Slice(matches, func(i, j int) bool {
		return matches[i].Key() < matches[j].Key()
	})

	span.SetAttributes(attribute.Int("result_count", len(matches)))
	return matches
}
