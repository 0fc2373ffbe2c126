package workflow

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/stageflow/internal/knowledge"
	"github.com/fyrsmithlabs/stageflow/internal/store"
)

const instrumentationName = "github.com/fyrsmithlabs/stageflow/internal/workflow"

// Config configures the workflow manager.
type Config struct {
	// FailOpen selects the durability policy. When true (the default), a
	// store failure is logged and the operation succeeds on in-memory state;
	// orchestration availability wins over confirmed durability. When false,
	// store failures surface as ErrPersistence; the in-memory update still
	// happens either way and the write is independently retryable.
	FailOpen bool

	// StoreTimeout bounds each persistence call (default: 5s).
	StoreTimeout time.Duration

	// AuditDecisions emits a decision record to the store on creation and on
	// each non-terminal advancement. Failures are always non-fatal.
	AuditDecisions bool
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		FailOpen:       true,
		StoreTimeout:   5 * time.Second,
		AuditDecisions: true,
	}
}

// Manager orchestrates workflow creation, advancement, and completion. It
// composes the in-memory repository, the external store, and the knowledge
// transfer layer, and serializes advancement per workflow ID.
type Manager struct {
	config *Config
	repo   Repository
	store  store.Store
	rules  *knowledge.RuleSet
	events EventPublisher
	logger *zap.Logger
	locks  *keyedMutex

	tracer          trace.Tracer
	meter           metric.Meter
	createCounter   metric.Int64Counter
	advanceCounter  metric.Int64Counter
	persistFailures metric.Int64Counter
}

// Option customizes a Manager.
type Option func(*Manager)

// WithEventPublisher wires lifecycle event publication.
func WithEventPublisher(ep EventPublisher) Option {
	return func(m *Manager) { m.events = ep }
}

// NewManager creates a workflow manager.
func NewManager(cfg *Config, repo Repository, st store.Store, rules *knowledge.RuleSet, logger *zap.Logger, opts ...Option) (*Manager, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if repo == nil {
		return nil, errors.New("repository is required")
	}
	if st == nil {
		return nil, errors.New("store is required")
	}
	if rules == nil {
		rules = knowledge.DefaultRules()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.StoreTimeout <= 0 {
		cfg.StoreTimeout = DefaultConfig().StoreTimeout
	}

	m := &Manager{
		config: cfg,
		repo:   repo,
		store:  st,
		rules:  rules,
		logger: logger,
		locks:  newKeyedMutex(),
		tracer: otel.Tracer(instrumentationName),
		meter:  otel.Meter(instrumentationName),
	}
	for _, opt := range opts {
		opt(m)
	}
	m.initMetrics()
	return m, nil
}

func (m *Manager) initMetrics() {
	var err error

	m.createCounter, err = m.meter.Int64Counter(
		"stageflow.workflow.creates_total",
		metric.WithDescription("Total number of workflows created"),
		metric.WithUnit("{workflow}"),
	)
	if err != nil {
		m.logger.Warn("failed to create workflow create counter", zap.Error(err))
	}

	m.advanceCounter, err = m.meter.Int64Counter(
		"stageflow.workflow.advances_total",
		metric.WithDescription("Total number of workflow step advancements"),
		metric.WithUnit("{advance}"),
	)
	if err != nil {
		m.logger.Warn("failed to create workflow advance counter", zap.Error(err))
	}

	m.persistFailures, err = m.meter.Int64Counter(
		"stageflow.workflow.persist_failures_total",
		metric.WithDescription("Total number of failed workflow persistence attempts"),
		metric.WithUnit("{failure}"),
	)
	if err != nil {
		m.logger.Warn("failed to create persist failure counter", zap.Error(err))
	}
}

// Create builds a workflow from a definition, caches it, and persists it
// synchronously. The workflow starts in StatusInitialized at step 0 with an
// empty history and the given initial context.
func (m *Manager) Create(ctx context.Context, def Definition, initial *knowledge.Context) (*Workflow, error) {
	ctx, span := m.tracer.Start(ctx, "workflow.create")
	defer span.End()

	if err := validateDefinition(def); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, opErr("create", def.ID, err)
	}
	if _, exists := m.repo.Get(def.ID); exists {
		err := fmt.Errorf("%w: workflow %q already exists", ErrValidation, def.ID)
		span.RecordError(err)
		return nil, opErr("create", def.ID, err)
	}

	span.SetAttributes(
		attribute.String("workflow_id", def.ID),
		attribute.Int("step_count", len(def.Steps)),
	)

	if initial == nil {
		initial = knowledge.NewContext()
	}

	now := time.Now().UTC()
	w := &Workflow{
		ID:          def.ID,
		Name:        def.Name,
		Steps:       append([]Step(nil), def.Steps...),
		Status:      StatusInitialized,
		Context:     initial.Clone(),
		History:     []StepRecord{},
		CreatedAt:   now,
		LastUpdated: now,
	}

	m.repo.Put(w)

	if m.createCounter != nil {
		m.createCounter.Add(ctx, 1)
	}
	m.logger.Info("created workflow",
		zap.String("workflow_id", w.ID),
		zap.String("name", w.Name),
		zap.Int("steps", len(w.Steps)),
	)

	if err := m.persist(ctx, w); err != nil {
		if !m.config.FailOpen {
			return w.Clone(), opErr("create", w.ID, err)
		}
	}

	m.recordDecision(ctx, w,
		fmt.Sprintf("Workflow %s created", w.ID),
		fmt.Sprintf("Starting %d-step workflow %q; first stage is %s", len(w.Steps), w.Name, w.Steps[0].Mode),
		[]string{"workflow", "created", w.Steps[0].Mode},
	)
	m.publish(&Event{
		WorkflowID: w.ID,
		Type:       EventCreated,
		Status:     w.Status,
		StepIndex:  0,
		Mode:       w.Steps[0].Mode,
		At:         now,
	})

	return w.Clone(), nil
}

// Advance records the current step's results and moves the workflow to its
// next step, or completes it. The outgoing step's results are appended to
// history and merged into the context last-write-wins; for a non-terminal
// advancement the context is then run through the transfer layer shaped for
// the next stage.
//
// Advancement is single-writer per workflow ID.
func (m *Manager) Advance(ctx context.Context, id string, results map[string]any) (*Workflow, error) {
	ctx, span := m.tracer.Start(ctx, "workflow.advance")
	defer span.End()
	span.SetAttributes(attribute.String("workflow_id", id))

	if id == "" {
		err := fmt.Errorf("%w: workflow id is empty", ErrValidation)
		span.RecordError(err)
		return nil, opErr("advance", id, err)
	}

	unlock := m.locks.lock(id)
	defer unlock()

	w, err := m.load(ctx, id)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	if w.Status == StatusCompleted {
		err := fmt.Errorf("%w: workflow %q is already completed", ErrValidation, id)
		span.RecordError(err)
		return nil, opErr("advance", id, err)
	}

	// Copy-on-write: published instances are never mutated, so Get and List
	// can clone them without holding this workflow's lock.
	w = w.Clone()

	now := time.Now().UTC()
	idx := w.CurrentStepIndex
	current := w.Steps[idx]

	w.History = append(w.History, StepRecord{
		StepIndex:   idx,
		Mode:        current.Mode,
		Task:        current.Task,
		CompletedAt: now,
		Results:     results,
	})
	if w.Context == nil {
		w.Context = knowledge.NewContext()
	}
	w.Context.Merge(results)
	w.CurrentStepIndex++
	w.LastUpdated = now

	eventType := EventAdvanced
	nextMode := ""
	if w.CurrentStepIndex == len(w.Steps) {
		w.Status = StatusCompleted
		w.CompletedAt = &now
		eventType = EventCompleted
	} else {
		w.Status = StatusInProgress
		nextMode = w.Steps[w.CurrentStepIndex].Mode
		m.transferContext(w, current.Mode, nextMode)
	}

	m.repo.Put(w)

	if m.advanceCounter != nil {
		m.advanceCounter.Add(ctx, 1, metric.WithAttributes(
			attribute.String("status", string(w.Status)),
		))
	}
	m.logger.Info("advanced workflow",
		zap.String("workflow_id", w.ID),
		zap.Int("step_index", idx),
		zap.String("completed_mode", current.Mode),
		zap.String("status", string(w.Status)),
	)

	if err := m.persist(ctx, w); err != nil {
		if !m.config.FailOpen {
			return w.Clone(), opErr("advance", w.ID, err)
		}
	}

	if w.Status != StatusCompleted {
		m.recordDecision(ctx, w,
			fmt.Sprintf("Workflow %s advanced to step %d", w.ID, w.CurrentStepIndex),
			fmt.Sprintf("Stage %s handed off to %s", current.Mode, nextMode),
			[]string{"workflow", "transition", current.Mode, nextMode},
		)
	}
	m.publish(&Event{
		WorkflowID: w.ID,
		Type:       eventType,
		Status:     w.Status,
		StepIndex:  w.CurrentStepIndex,
		Mode:       nextMode,
		At:         now,
	})

	span.SetAttributes(
		attribute.Int("current_step_index", w.CurrentStepIndex),
		attribute.String("status", string(w.Status)),
	)
	return w.Clone(), nil
}

// Get returns the workflow state, checking the repository first and falling
// back to the external store, repopulating the cache on a hit. A workflow
// absent from both yields (nil, nil): not found is a branch for the caller,
// not an error.
func (m *Manager) Get(ctx context.Context, id string) (*Workflow, error) {
	ctx, span := m.tracer.Start(ctx, "workflow.get")
	defer span.End()
	span.SetAttributes(attribute.String("workflow_id", id))

	if w, ok := m.repo.Get(id); ok {
		return w.Clone(), nil
	}

	w, err := m.loadFromStore(ctx, id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, nil
		}
		span.RecordError(err)
		m.logger.Warn("workflow state lookup degraded, store unavailable",
			zap.String("workflow_id", id), zap.Error(err))
		return nil, nil
	}

	m.repo.Put(w)
	return w.Clone(), nil
}

// List returns all known workflows, optionally filtered by status.
// Best-effort: the store side is skipped when unavailable, so the caller
// always gets at least what this process knows.
func (m *Manager) List(ctx context.Context, statusFilter Status) []*Workflow {
	ctx, span := m.tracer.Start(ctx, "workflow.list")
	defer span.End()

	known := make(map[string]*Workflow)

	if all, err := m.store.GetAll(ctx, store.CategoryWorkflows); err != nil {
		m.logger.Warn("workflow list degraded, store unavailable", zap.Error(err))
	} else {
		for key, raw := range all {
			var w Workflow
			if err := decodeWorkflow(raw, &w); err != nil {
				m.logger.Warn("skipping undecodable workflow", zap.String("key", key), zap.Error(err))
				continue
			}
			known[w.ID] = &w
		}
	}

	// Cached instances are at least as fresh as the store's copy.
	for _, w := range m.repo.List() {
		known[w.ID] = w
	}

	out := make([]*Workflow, 0, len(known))
	for _, w := range known {
		if statusFilter != "" && w.Status != statusFilter {
			continue
		}
		out = append(out, w.Clone())
	}
	sortWorkflows(out)

	span.SetAttributes(attribute.Int("result_count", len(out)))
	return out
}

// load resolves the current workflow state: repository first, store fallback.
// Callers that mutate must work on a clone, never on the returned instance.
func (m *Manager) load(ctx context.Context, id string) (*Workflow, error) {
	if w, ok := m.repo.Get(id); ok {
		return w, nil
	}

	w, err := m.loadFromStore(ctx, id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, opErr("advance", id, ErrNotFound)
		}
		// Store outage with no cached copy: indistinguishable from unknown.
		m.logger.Warn("workflow load degraded, store unavailable",
			zap.String("workflow_id", id), zap.Error(err))
		return nil, opErr("advance", id, ErrNotFound)
	}

	m.repo.Put(w)
	return w, nil
}

func (m *Manager) loadFromStore(ctx context.Context, id string) (*Workflow, error) {
	ctx, cancel := context.WithTimeout(ctx, m.config.StoreTimeout)
	defer cancel()

	raw, err := m.store.Get(ctx, store.CategoryWorkflows, id)
	if err != nil {
		return nil, err
	}
	var w Workflow
	if err := decodeWorkflow(raw, &w); err != nil {
		return nil, err
	}
	return &w, nil
}

// transferContext runs the knowledge transfer layer for a stage handoff.
// Inputs are valid by construction here, so a transfer failure is an internal
// fault: it is logged and the merged context is carried forward unshaped
// rather than corrupting the already-applied advancement.
func (m *Manager) transferContext(w *Workflow, sourceMode, targetMode string) {
	serialized, err := m.rules.Serialize(w.Context, sourceMode, targetMode)
	if err != nil {
		m.logger.Error("context serialization failed",
			zap.String("workflow_id", w.ID),
			zap.String("source_mode", sourceMode),
			zap.String("target_mode", targetMode),
			zap.Error(err))
		return
	}
	for _, warning := range serialized.Warnings {
		m.logger.Warn("knowledge handoff warning",
			zap.String("workflow_id", w.ID),
			zap.String("code", warning.Code),
			zap.String("field", warning.Field),
			zap.String("detail", warning.Message))
	}

	adapted, err := m.rules.Deserialize(serialized, targetMode)
	if err != nil {
		m.logger.Error("context deserialization failed",
			zap.String("workflow_id", w.ID),
			zap.String("target_mode", targetMode),
			zap.Error(err))
		return
	}
	w.Context = adapted
}

// persist writes the workflow to the external store with a bounded timeout.
// The in-memory update has already happened; a failure here never rolls it
// back.
func (m *Manager) persist(ctx context.Context, w *Workflow) error {
	pctx, cancel := context.WithTimeout(ctx, m.config.StoreTimeout)
	defer cancel()

	if err := m.store.Put(pctx, store.CategoryWorkflows, w.ID, w); err != nil {
		if m.persistFailures != nil {
			m.persistFailures.Add(ctx, 1)
		}
		m.logger.Error("workflow persistence failed",
			zap.String("workflow_id", w.ID),
			zap.Bool("fail_open", m.config.FailOpen),
			zap.Error(err))
		return fmt.Errorf("%w: %s", ErrPersistence, err.Error())
	}
	return nil
}

// recordDecision writes an audit decision record. Always best-effort.
func (m *Manager) recordDecision(ctx context.Context, w *Workflow, summary, rationale string, tags []string) {
	if !m.config.AuditDecisions {
		return
	}

	decision := &Decision{
		WorkflowID: w.ID,
		Summary:    summary,
		Rationale:  rationale,
		Tags:       tags,
		RecordedAt: time.Now().UTC(),
	}

	pctx, cancel := context.WithTimeout(ctx, m.config.StoreTimeout)
	defer cancel()

	key := fmt.Sprintf("%s_%s", w.ID, uuid.New().String())
	if err := m.store.Put(pctx, store.CategoryDecisions, key, decision); err != nil {
		m.logger.Warn("audit decision write failed",
			zap.String("workflow_id", w.ID), zap.Error(err))
	}
}

// publish emits a lifecycle event when a publisher is wired.
func (m *Manager) publish(event *Event) {
	if m.events == nil {
		return
	}
	if err := m.events.Publish(event); err != nil {
		m.logger.Warn("workflow event publish failed",
			zap.String("workflow_id", event.WorkflowID),
			zap.String("event_type", string(event.Type)),
			zap.Error(err))
	}
}

func validateDefinition(def Definition) error {
	var problems []string
	if def.ID == "" {
		problems = append(problems, "id is required")
	}
	if def.Name == "" {
		problems = append(problems, "name is required")
	}
	if len(def.Steps) == 0 {
		problems = append(problems, "at least one step is required")
	}
	for i, step := range def.Steps {
		if step.Mode == "" {
			problems = append(problems, fmt.Sprintf("step %d has no mode", i))
		}
	}
	if len(problems) > 0 {
		return fmt.Errorf("%w: %s", ErrValidation, strings.Join(problems, "; "))
	}
	return nil
}
