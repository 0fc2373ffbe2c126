package workflow

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/fyrsmithlabs/stageflow/internal/knowledge"
	"github.com/fyrsmithlabs/stageflow/internal/store"
)

// failingStore errors on every operation, simulating a store outage.
type failingStore struct{}

func (failingStore) Put(context.Context, string, string, any) error {
	return errors.New("store unreachable")
}

func (failingStore) Get(context.Context, string, string) (json.RawMessage, error) {
	return nil, errors.New("store unreachable")
}

func (failingStore) GetAll(context.Context, string) (map[string]json.RawMessage, error) {
	return nil, errors.New("store unreachable")
}

// recordingPublisher captures published events.
type recordingPublisher struct {
	mu     sync.Mutex
	events []*Event
}

func (p *recordingPublisher) Publish(e *Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, e)
	return nil
}

func (p *recordingPublisher) types() []EventType {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]EventType, 0, len(p.events))
	for _, e := range p.events {
		out = append(out, e.Type)
	}
	return out
}

func twoStepDefinition() Definition {
	return Definition{
		ID:   "wf-1",
		Name: "plan and build",
		Steps: []Step{
			{Mode: "design", Task: "plan"},
			{Mode: "build", Task: "implement"},
		},
	}
}

func newTestManager(t *testing.T, st store.Store, opts ...Option) *Manager {
	t.Helper()
	if st == nil {
		st = store.NewMemory()
	}
	m, err := NewManager(nil, NewMemoryRepository(), st, knowledge.NewRuleSet(), nil, opts...)
	require.NoError(t, err)
	return m
}

func assertInvariants(t *testing.T, w *Workflow) {
	t.Helper()
	assert.GreaterOrEqual(t, w.CurrentStepIndex, 0)
	assert.LessOrEqual(t, w.CurrentStepIndex, len(w.Steps))
	assert.Equal(t, w.CurrentStepIndex == len(w.Steps), w.Status == StatusCompleted)
	assert.Len(t, w.History, w.CurrentStepIndex)
}

func TestNewManager_RequiresCollaborators(t *testing.T) {
	_, err := NewManager(nil, nil, store.NewMemory(), nil, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "repository is required")

	_, err = NewManager(nil, NewMemoryRepository(), nil, nil, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "store is required")
}

func TestCreate_ValidatesDefinition(t *testing.T) {
	m := newTestManager(t, nil)
	ctx := context.Background()

	cases := []struct {
		name string
		def  Definition
		want string
	}{
		{"missing id", Definition{Name: "n", Steps: []Step{{Mode: "a"}}}, "id is required"},
		{"missing name", Definition{ID: "x", Steps: []Step{{Mode: "a"}}}, "name is required"},
		{"no steps", Definition{ID: "x", Name: "n"}, "at least one step"},
		{"empty mode", Definition{ID: "x", Name: "n", Steps: []Step{{Task: "t"}}}, "has no mode"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := m.Create(ctx, tc.def, nil)
			require.ErrorIs(t, err, ErrValidation)
			assert.Contains(t, err.Error(), tc.want)
		})
	}
}

func TestCreate_RejectsDuplicateID(t *testing.T) {
	m := newTestManager(t, nil)
	ctx := context.Background()

	_, err := m.Create(ctx, twoStepDefinition(), nil)
	require.NoError(t, err)

	_, err = m.Create(ctx, twoStepDefinition(), nil)
	require.ErrorIs(t, err, ErrValidation)
	assert.Contains(t, err.Error(), "already exists")
}

// Scenario: two-step workflow from creation through completion.
func TestWorkflowLifecycle(t *testing.T) {
	mem := store.NewMemory()
	pub := &recordingPublisher{}
	m := newTestManager(t, mem, WithEventPublisher(pub))
	ctx := context.Background()

	initial := knowledge.NewContext()
	initial.TaskDescription = "X"

	w, err := m.Create(ctx, twoStepDefinition(), initial)
	require.NoError(t, err)
	assert.Equal(t, StatusInitialized, w.Status)
	assert.Equal(t, 0, w.CurrentStepIndex)
	assert.Empty(t, w.History)
	assertInvariants(t, w)

	step, ok := w.CurrentStep()
	require.True(t, ok)
	assert.Equal(t, "design", step.Mode)

	w, err = m.Advance(ctx, "wf-1", map[string]any{"planOutput": "spec"})
	require.NoError(t, err)
	assert.Equal(t, 1, w.CurrentStepIndex)
	assert.Equal(t, StatusInProgress, w.Status)
	require.Len(t, w.History, 1)
	assert.Equal(t, 0, w.History[0].StepIndex)
	assert.Equal(t, "design", w.History[0].Mode)
	assertInvariants(t, w)

	// Context carries both the initial task and the merged step results.
	assert.Equal(t, "X", w.Context.TaskDescription)
	v, ok := w.Context.Get("planOutput")
	require.True(t, ok)
	assert.Equal(t, "spec", v)

	w, err = m.Advance(ctx, "wf-1", map[string]any{"buildOutput": "binary"})
	require.NoError(t, err)
	assert.Equal(t, 2, w.CurrentStepIndex)
	assert.Equal(t, StatusCompleted, w.Status)
	require.NotNil(t, w.CompletedAt)
	require.Len(t, w.History, 2)
	assertInvariants(t, w)

	assert.Equal(t, []EventType{EventCreated, EventAdvanced, EventCompleted}, pub.types())

	// Workflow and audit decisions were persisted.
	assert.Equal(t, 1, mem.Len(store.CategoryWorkflows))
	assert.Equal(t, 2, mem.Len(store.CategoryDecisions)) // create + one transition
}

func TestAdvance_UnknownWorkflow(t *testing.T) {
	m := newTestManager(t, nil)

	_, err := m.Advance(context.Background(), "ghost", nil)
	require.ErrorIs(t, err, ErrNotFound)
}

func TestAdvance_CompletedWorkflowRejected(t *testing.T) {
	m := newTestManager(t, nil)
	ctx := context.Background()

	_, err := m.Create(ctx, twoStepDefinition(), nil)
	require.NoError(t, err)
	_, err = m.Advance(ctx, "wf-1", nil)
	require.NoError(t, err)
	w, err := m.Advance(ctx, "wf-1", nil)
	require.NoError(t, err)
	require.Equal(t, StatusCompleted, w.Status)

	_, err = m.Advance(ctx, "wf-1", map[string]any{"extra": true})
	require.ErrorIs(t, err, ErrValidation)
	assert.Contains(t, err.Error(), "already completed")

	// History was not extended past len(steps).
	got, err := m.Get(ctx, "wf-1")
	require.NoError(t, err)
	assert.Len(t, got.History, 2)
}

func TestAdvance_AppliesTransferRules(t *testing.T) {
	repo := NewMemoryRepository()
	m, err := NewManager(nil, repo, store.NewMemory(), knowledge.DefaultRules(), nil)
	require.NoError(t, err)
	ctx := context.Background()

	def := Definition{
		ID:   "wf-t",
		Name: "code then debug",
		Steps: []Step{
			{Mode: "code", Task: "write"},
			{Mode: "debug", Task: "diagnose"},
		},
	}
	_, err = m.Create(ctx, def, nil)
	require.NoError(t, err)

	w, err := m.Advance(ctx, "wf-t", map[string]any{"implementation": "widget.go"})
	require.NoError(t, err)

	// The code stage's artifact arrives at debug under the debug-side name.
	v, ok := w.Context.Get("implementation_to_analyze")
	require.True(t, ok)
	assert.Equal(t, "widget.go", v)
	_, ok = w.Context.Get("implementation")
	assert.False(t, ok)
	assert.False(t, w.Context.ReceivedAt.IsZero())
}

// Store failure during advancement: the in-memory workflow still advances
// and the persistence failure is logged, not thrown.
func TestAdvance_StoreFailureFailOpen(t *testing.T) {
	core, observed := observer.New(zapcore.WarnLevel)
	logger := zap.New(core)

	m, err := NewManager(nil, NewMemoryRepository(), failingStore{}, knowledge.NewRuleSet(), logger)
	require.NoError(t, err)
	ctx := context.Background()

	w, err := m.Create(ctx, twoStepDefinition(), nil)
	require.NoError(t, err)
	assert.Equal(t, StatusInitialized, w.Status)

	w, err = m.Advance(ctx, "wf-1", map[string]any{"planOutput": "spec"})
	require.NoError(t, err)
	assert.Equal(t, 1, w.CurrentStepIndex)
	assert.Equal(t, StatusInProgress, w.Status)
	assertInvariants(t, w)

	assert.NotZero(t, observed.FilterMessage("workflow persistence failed").Len())
}

func TestAdvance_StoreFailureFailClosed(t *testing.T) {
	cfg := DefaultConfig()
	cfg.FailOpen = false
	repo := NewMemoryRepository()
	m, err := NewManager(cfg, repo, failingStore{}, knowledge.NewRuleSet(), nil)
	require.NoError(t, err)
	ctx := context.Background()

	w, err := m.Create(ctx, twoStepDefinition(), nil)
	require.ErrorIs(t, err, ErrPersistence)
	// The in-memory workflow is still usable despite the surfaced error.
	require.NotNil(t, w)
	assert.Equal(t, StatusInitialized, w.Status)

	w, err = m.Advance(ctx, "wf-1", nil)
	require.ErrorIs(t, err, ErrPersistence)
	require.NotNil(t, w)
	assert.Equal(t, 1, w.CurrentStepIndex)
	assertInvariants(t, w)
}

func TestGet_NotFoundIsNilNotError(t *testing.T) {
	m := newTestManager(t, nil)

	w, err := m.Get(context.Background(), "ghost")
	require.NoError(t, err)
	assert.Nil(t, w)
}

func TestGet_RepopulatesCacheFromStore(t *testing.T) {
	mem := store.NewMemory()
	ctx := context.Background()

	first := newTestManager(t, mem)
	_, err := first.Create(ctx, twoStepDefinition(), nil)
	require.NoError(t, err)

	// A fresh manager with an empty cache falls back to the store.
	second := newTestManager(t, mem)
	w, err := second.Get(ctx, "wf-1")
	require.NoError(t, err)
	require.NotNil(t, w)
	assert.Equal(t, "plan and build", w.Name)

	// Advancing now works off the repopulated cache.
	w, err = second.Advance(ctx, "wf-1", map[string]any{"planOutput": "spec"})
	require.NoError(t, err)
	assert.Equal(t, 1, w.CurrentStepIndex)
}

func TestGet_ReturnsCopy(t *testing.T) {
	m := newTestManager(t, nil)
	ctx := context.Background()

	_, err := m.Create(ctx, twoStepDefinition(), nil)
	require.NoError(t, err)

	w1, err := m.Get(ctx, "wf-1")
	require.NoError(t, err)
	w1.Status = StatusCompleted
	w1.Context.Set("tampered", true)

	w2, err := m.Get(ctx, "wf-1")
	require.NoError(t, err)
	assert.Equal(t, StatusInitialized, w2.Status)
	_, ok := w2.Context.Get("tampered")
	assert.False(t, ok)
}

func TestList_FiltersByStatus(t *testing.T) {
	m := newTestManager(t, nil)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		def := twoStepDefinition()
		def.ID = fmt.Sprintf("wf-%d", i)
		_, err := m.Create(ctx, def, nil)
		require.NoError(t, err)
	}
	_, err := m.Advance(ctx, "wf-1", nil)
	require.NoError(t, err)

	all := m.List(ctx, "")
	assert.Len(t, all, 3)

	initialized := m.List(ctx, StatusInitialized)
	assert.Len(t, initialized, 2)

	inProgress := m.List(ctx, StatusInProgress)
	require.Len(t, inProgress, 1)
	assert.Equal(t, "wf-1", inProgress[0].ID)
}

func TestList_BestEffortOnStoreOutage(t *testing.T) {
	m := newTestManager(t, failingStore{})
	ctx := context.Background()

	// Fail-open default: create succeeds despite the outage.
	_, err := m.Create(ctx, twoStepDefinition(), nil)
	require.NoError(t, err)

	ws := m.List(ctx, "")
	require.Len(t, ws, 1)
	assert.Equal(t, "wf-1", ws[0].ID)
}

func TestList_SeesPersistedWorkflowsFromOtherProcesses(t *testing.T) {
	mem := store.NewMemory()
	ctx := context.Background()

	first := newTestManager(t, mem)
	_, err := first.Create(ctx, twoStepDefinition(), nil)
	require.NoError(t, err)

	second := newTestManager(t, mem)
	ws := second.List(ctx, "")
	require.Len(t, ws, 1)
	assert.Equal(t, "wf-1", ws[0].ID)
}

// Concurrent advancement against one ID must not duplicate or skip records.
func TestAdvance_SerializedPerWorkflow(t *testing.T) {
	m := newTestManager(t, nil)
	ctx := context.Background()

	steps := make([]Step, 20)
	for i := range steps {
		steps[i] = Step{Mode: fmt.Sprintf("stage-%d", i), Task: "work"}
	}
	_, err := m.Create(ctx, Definition{ID: "wf-c", Name: "concurrent", Steps: steps}, nil)
	require.NoError(t, err)

	var wg sync.WaitGroup
	for i := 0; i < len(steps); i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := m.Advance(ctx, "wf-c", nil)
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	w, err := m.Get(ctx, "wf-c")
	require.NoError(t, err)
	assert.Equal(t, StatusCompleted, w.Status)
	require.Len(t, w.History, len(steps))
	for i, rec := range w.History {
		assert.Equal(t, i, rec.StepIndex)
	}
}

// Readers racing an advancement must only ever observe fully formed
// snapshots: history length matching the step index, never a torn state.
func TestAdvance_ConcurrentReadersSeeConsistentSnapshots(t *testing.T) {
	m := newTestManager(t, nil)
	ctx := context.Background()

	steps := make([]Step, 50)
	for i := range steps {
		steps[i] = Step{Mode: fmt.Sprintf("stage-%d", i), Task: "work"}
	}
	_, err := m.Create(ctx, Definition{ID: "wf-r", Name: "racing readers", Steps: steps}, nil)
	require.NoError(t, err)

	done := make(chan struct{})
	var wg sync.WaitGroup
	for r := 0; r < 4; r++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				select {
				case <-done:
					return
				default:
				}
				w, err := m.Get(ctx, "wf-r")
				if assert.NoError(t, err) && assert.NotNil(t, w) {
					assertInvariants(t, w)
				}
				for _, lw := range m.List(ctx, "") {
					assertInvariants(t, lw)
				}
			}
		}()
	}

	for i := 0; i < len(steps); i++ {
		_, err := m.Advance(ctx, "wf-r", map[string]any{fmt.Sprintf("artifact-%d", i): "done"})
		require.NoError(t, err)
	}
	close(done)
	wg.Wait()

	w, err := m.Get(ctx, "wf-r")
	require.NoError(t, err)
	assert.Equal(t, StatusCompleted, w.Status)
	assertInvariants(t, w)
}

func TestAuditDecisionsDisabled(t *testing.T) {
	cfg := DefaultConfig()
	cfg.AuditDecisions = false
	mem := store.NewMemory()
	m, err := NewManager(cfg, NewMemoryRepository(), mem, nil, nil)
	require.NoError(t, err)

	_, err = m.Create(context.Background(), twoStepDefinition(), nil)
	require.NoError(t, err)
	assert.Equal(t, 0, mem.Len(store.CategoryDecisions))
}
