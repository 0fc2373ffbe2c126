// Package workflow drives multi-stage workflow instances through their
// ordered steps, carrying the knowledge context across stage boundaries and
// recording an append-only step history.
package workflow

import (
	"time"

	"github.com/fyrsmithlabs/stageflow/internal/knowledge"
)

// Status is the lifecycle state of a workflow. Transitions are strictly
// initialized -> in_progress -> completed; completed is terminal and
// in_progress is revisited on every non-final advancement.
type Status string

const (
	StatusInitialized Status = "initialized"
	StatusInProgress  Status = "in_progress"
	StatusCompleted   Status = "completed"
)

// Valid reports whether s is a known status.
func (s Status) Valid() bool {
	switch s {
	case StatusInitialized, StatusInProgress, StatusCompleted:
		return true
	}
	return false
}

// Step assigns one stage within a workflow definition. Immutable once the
// workflow is created.
type Step struct {
	// Mode names the stage this step is dispatched to. Opaque to the engine.
	Mode string `json:"mode"`

	// Task is the human-readable description of the step's work.
	Task string `json:"task"`
}

// Definition is the blueprint a workflow is created from.
type Definition struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Steps []Step `json:"steps"`
}

// StepRecord is the audit entry appended when a step is advanced past.
// Immutable once appended.
type StepRecord struct {
	StepIndex   int            `json:"step_index"`
	Mode        string         `json:"mode"`
	Task        string         `json:"task"`
	CompletedAt time.Time      `json:"completed_at"`
	Results     map[string]any `json:"results,omitempty"`
}

// Workflow is a single multi-stage execution instance.
//
// Invariants, held at all times:
//   - 0 <= CurrentStepIndex <= len(Steps)
//   - Status == StatusCompleted iff CurrentStepIndex == len(Steps)
//   - len(History) == CurrentStepIndex
//
// All mutation goes through the Manager; callers receive copies.
type Workflow struct {
	ID               string             `json:"id"`
	Name             string             `json:"name"`
	Steps            []Step             `json:"steps"`
	CurrentStepIndex int                `json:"current_step_index"`
	Status           Status             `json:"status"`
	Context          *knowledge.Context `json:"context,omitempty"`
	History          []StepRecord       `json:"history,omitempty"`
	CreatedAt        time.Time          `json:"created_at"`
	LastUpdated      time.Time          `json:"last_updated"`
	CompletedAt      *time.Time         `json:"completed_at,omitempty"`
}

// CurrentStep returns the step awaiting dispatch, or false when the workflow
// has completed.
func (w *Workflow) CurrentStep() (Step, bool) {
	if w.CurrentStepIndex >= len(w.Steps) {
		return Step{}, false
	}
	return w.Steps[w.CurrentStepIndex], true
}

// Clone returns a copy with independent Steps, History, and Context so the
// cached instance cannot be mutated through a returned value.
func (w *Workflow) Clone() *Workflow {
	if w == nil {
		return nil
	}
	out := *w
	out.Steps = append([]Step(nil), w.Steps...)
	out.History = append([]StepRecord(nil), w.History...)
	out.Context = w.Context.Clone()
	if w.CompletedAt != nil {
		at := *w.CompletedAt
		out.CompletedAt = &at
	}
	return &out
}

// Decision is the human-readable audit record emitted to the external store
// on creation and on each non-terminal stage transition.
type Decision struct {
	WorkflowID string    `json:"workflow_id"`
	Summary    string    `json:"summary"`
	Rationale  string    `json:"rationale"`
	Tags       []string  `json:"tags,omitempty"`
	RecordedAt time.Time `json:"recorded_at"`
}
