package http

import (
	"time"

	"github.com/fyrsmithlabs/stageflow/internal/reference"
	"github.com/fyrsmithlabs/stageflow/internal/workflow"
)

// HealthResponse is the response body for GET /health.
type HealthResponse struct {
	Status string `json:"status"`
}

// StepResponse is one step of a workflow definition.
type StepResponse struct {
	Mode string `json:"mode"`
	Task string `json:"task,omitempty"`
}

// StepRecordResponse is one completed step in a workflow's history.
type StepRecordResponse struct {
	StepIndex   int            `json:"step_index"`
	Mode        string         `json:"mode"`
	Task        string         `json:"task,omitempty"`
	CompletedAt time.Time      `json:"completed_at"`
	Results     map[string]any `json:"results,omitempty"`
}

// WorkflowResponse is the representation of a workflow. Context and
// history are only populated on the detail endpoint.
type WorkflowResponse struct {
	ID               string               `json:"id"`
	Name             string               `json:"name"`
	Status           string               `json:"status"`
	CurrentStepIndex int                  `json:"current_step_index"`
	Steps            []StepResponse       `json:"steps"`
	Context          map[string]any       `json:"context,omitempty"`
	History          []StepRecordResponse `json:"history,omitempty"`
	CreatedAt        time.Time            `json:"created_at"`
	LastUpdated      time.Time            `json:"last_updated"`
	CompletedAt      *time.Time           `json:"completed_at,omitempty"`
}

// WorkflowListResponse is the response body for GET /api/v1/workflows.
type WorkflowListResponse struct {
	Workflows []WorkflowResponse `json:"workflows"`
	Count     int                `json:"count"`
}

// ReferenceResponse is the representation of a cross-stage reference.
type ReferenceResponse struct {
	Key            string    `json:"key"`
	SourceMode     string    `json:"source_mode"`
	SourceArtifact string    `json:"source_artifact"`
	TargetMode     string    `json:"target_mode"`
	TargetArtifact string    `json:"target_artifact"`
	Type           string    `json:"reference_type"`
	Description    string    `json:"description,omitempty"`
	CreatedAt      time.Time `json:"created_at"`
}

// ReferenceListResponse is the response body for GET /api/v1/references.
type ReferenceListResponse struct {
	References []ReferenceResponse `json:"references"`
	Count      int                 `json:"count"`
}

func toWorkflowResponse(w *workflow.Workflow, detail bool) WorkflowResponse {
	resp := WorkflowResponse{
		ID:               w.ID,
		Name:             w.Name,
		Status:           string(w.Status),
		CurrentStepIndex: w.CurrentStepIndex,
		Steps:            make([]StepResponse, 0, len(w.Steps)),
		CreatedAt:        w.CreatedAt,
		LastUpdated:      w.LastUpdated,
		CompletedAt:      w.CompletedAt,
	}
	for _, st := range w.Steps {
		resp.Steps = append(resp.Steps, StepResponse{Mode: st.Mode, Task: st.Task})
	}
	if !detail {
		return resp
	}

	if w.Context != nil {
		resp.Context = w.Context.Export()
	}
	for _, rec := range w.History {
		resp.History = append(resp.History, StepRecordResponse{
			StepIndex:   rec.StepIndex,
			Mode:        rec.Mode,
			Task:        rec.Task,
			CompletedAt: rec.CompletedAt,
			Results:     rec.Results,
		})
	}
	return resp
}

func toReferenceResponse(ref *reference.Reference) ReferenceResponse {
	return ReferenceResponse{
		Key:            ref.Key(),
		SourceMode:     ref.SourceMode,
		SourceArtifact: ref.SourceArtifact,
		TargetMode:     ref.TargetMode,
		TargetArtifact: ref.TargetArtifact,
		Type:           string(ref.Type),
		Description:    ref.Description,
		CreatedAt:      ref.CreatedAt,
	}
}
