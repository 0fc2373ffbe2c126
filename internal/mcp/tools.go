package mcp

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/fyrsmithlabs/stageflow/internal/knowledge"
	"github.com/fyrsmithlabs/stageflow/internal/reference"
	"github.com/fyrsmithlabs/stageflow/internal/workflow"
)

// registerTools registers all MCP tools with the server.
func (s *Server) registerTools() {
	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "workflow_create",
		Description: "Create a multi-stage workflow from a definition and optional initial context",
	}, s.handleWorkflowCreate)

	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "workflow_advance",
		Description: "Record results for the current step and move the workflow to the next stage",
	}, s.handleWorkflowAdvance)

	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "workflow_status",
		Description: "Fetch the current state, context, and history of a workflow",
	}, s.handleWorkflowStatus)

	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "workflow_list",
		Description: "List workflows, optionally filtered by status",
	}, s.handleWorkflowList)

	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "reference_create",
		Description: "Record a cross-stage reference link between two artifacts",
	}, s.handleReferenceCreate)

	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "reference_query",
		Description: "Query cross-stage references by mode, artifact, and type",
	}, s.handleReferenceQuery)

	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "context_transfer",
		Description: "Transform a knowledge context from one stage's conventions to another's",
	}, s.handleContextTransfer)
}

// ===== WORKFLOW TOOLS =====

type stepInput struct {
	Mode string `json:"mode" jsonschema:"required,Stage mode that executes this step"`
	Task string `json:"task" jsonschema:"Task description for the step"`
}

type workflowCreateInput struct {
	ID      string         `json:"id,omitempty" jsonschema:"Workflow identifier (generated if omitted)"`
	Name    string         `json:"name" jsonschema:"required,Human-readable workflow name"`
	Steps   []stepInput    `json:"steps" jsonschema:"required,Ordered steps of the workflow"`
	Context map[string]any `json:"context,omitempty" jsonschema:"Initial knowledge context fields"`
}

type workflowSummary struct {
	ID               string `json:"id" jsonschema:"Workflow ID"`
	Name             string `json:"name" jsonschema:"Workflow name"`
	Status           string `json:"status" jsonschema:"Lifecycle status"`
	CurrentStepIndex int    `json:"current_step_index" jsonschema:"Index of the step awaiting dispatch"`
	TotalSteps       int    `json:"total_steps" jsonschema:"Number of steps in the definition"`
	CurrentMode      string `json:"current_mode,omitempty" jsonschema:"Mode of the current step, empty when completed"`
	CurrentTask      string `json:"current_task,omitempty" jsonschema:"Task of the current step, empty when completed"`
}

type workflowCreateOutput struct {
	Workflow workflowSummary `json:"workflow" jsonschema:"Created workflow"`
}

func (s *Server) handleWorkflowCreate(ctx context.Context, req *mcp.CallToolRequest, args workflowCreateInput) (*mcp.CallToolResult, workflowCreateOutput, error) {
	start := time.Now()
	s.metrics.IncrementActive(ctx, "workflow_create")
	var toolErr error
	defer func() {
		s.metrics.DecrementActive(ctx, "workflow_create")
		s.metrics.RecordInvocation(ctx, "workflow_create", time.Since(start), toolErr)
	}()

	def := workflow.Definition{
		ID:   args.ID,
		Name: args.Name,
	}
	if def.ID == "" {
		def.ID = uuid.NewString()
	}
	for _, st := range args.Steps {
		def.Steps = append(def.Steps, workflow.Step{Mode: st.Mode, Task: st.Task})
	}

	var initial *knowledge.Context
	if len(args.Context) > 0 {
		initial = knowledge.NewContext()
		initial.Merge(args.Context)
	}

	w, err := s.workflows.Create(ctx, def, initial)
	if err != nil {
		toolErr = fmt.Errorf("workflow create failed: %w", err)
		return nil, workflowCreateOutput{}, toolErr
	}

	output := workflowCreateOutput{Workflow: summarize(w)}
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			&mcp.TextContent{Text: fmt.Sprintf("Workflow created: %s", w.ID)},
		},
	}, output, nil
}

type workflowAdvanceInput struct {
	WorkflowID string         `json:"workflow_id" jsonschema:"required,Workflow to advance"`
	Results    map[string]any `json:"results,omitempty" jsonschema:"Results produced by the current step"`
}

type workflowAdvanceOutput struct {
	Workflow  workflowSummary `json:"workflow" jsonschema:"Workflow after advancing"`
	Completed bool            `json:"completed" jsonschema:"True when the final step was just completed"`
}

func (s *Server) handleWorkflowAdvance(ctx context.Context, req *mcp.CallToolRequest, args workflowAdvanceInput) (*mcp.CallToolResult, workflowAdvanceOutput, error) {
	start := time.Now()
	s.metrics.IncrementActive(ctx, "workflow_advance")
	var toolErr error
	defer func() {
		s.metrics.DecrementActive(ctx, "workflow_advance")
		s.metrics.RecordInvocation(ctx, "workflow_advance", time.Since(start), toolErr)
	}()

	w, err := s.workflows.Advance(ctx, args.WorkflowID, args.Results)
	if err != nil {
		toolErr = fmt.Errorf("workflow advance failed: %w", err)
		return nil, workflowAdvanceOutput{}, toolErr
	}

	output := workflowAdvanceOutput{
		Workflow:  summarize(w),
		Completed: w.Status == workflow.StatusCompleted,
	}
	text := fmt.Sprintf("Workflow %s advanced to step %d/%d", w.ID, w.CurrentStepIndex, len(w.Steps))
	if output.Completed {
		text = fmt.Sprintf("Workflow %s completed", w.ID)
	}
	return &mcp.CallToolResult{
		Content: []mcp.Content{&mcp.TextContent{Text: text}},
	}, output, nil
}

type stepRecordOutput struct {
	StepIndex   int            `json:"step_index" jsonschema:"Index of the completed step"`
	Mode        string         `json:"mode" jsonschema:"Mode that executed the step"`
	Task        string         `json:"task" jsonschema:"Task description"`
	CompletedAt time.Time      `json:"completed_at" jsonschema:"Completion timestamp"`
	Results     map[string]any `json:"results,omitempty" jsonschema:"Results recorded for the step"`
}

type workflowStatusInput struct {
	WorkflowID string `json:"workflow_id" jsonschema:"required,Workflow to inspect"`
}

type workflowStatusOutput struct {
	Found    bool               `json:"found" jsonschema:"False when no workflow has this ID"`
	Workflow *workflowSummary   `json:"workflow,omitempty" jsonschema:"Workflow summary"`
	Context  map[string]any     `json:"context,omitempty" jsonschema:"Current knowledge context fields"`
	History  []stepRecordOutput `json:"history,omitempty" jsonschema:"Completed step records"`
}

func (s *Server) handleWorkflowStatus(ctx context.Context, req *mcp.CallToolRequest, args workflowStatusInput) (*mcp.CallToolResult, workflowStatusOutput, error) {
	start := time.Now()
	s.metrics.IncrementActive(ctx, "workflow_status")
	var toolErr error
	defer func() {
		s.metrics.DecrementActive(ctx, "workflow_status")
		s.metrics.RecordInvocation(ctx, "workflow_status", time.Since(start), toolErr)
	}()

	if args.WorkflowID == "" {
		toolErr = fmt.Errorf("workflow_id is required")
		return nil, workflowStatusOutput{}, toolErr
	}

	w, err := s.workflows.Get(ctx, args.WorkflowID)
	if err != nil {
		toolErr = fmt.Errorf("workflow status failed: %w", err)
		return nil, workflowStatusOutput{}, toolErr
	}
	if w == nil {
		return &mcp.CallToolResult{
			Content: []mcp.Content{
				&mcp.TextContent{Text: fmt.Sprintf("Workflow not found: %s", args.WorkflowID)},
			},
		}, workflowStatusOutput{Found: false}, nil
	}

	sum := summarize(w)
	output := workflowStatusOutput{
		Found:    true,
		Workflow: &sum,
	}
	if w.Context != nil {
		output.Context = w.Context.Export()
	}
	for _, rec := range w.History {
		output.History = append(output.History, stepRecordOutput{
			StepIndex:   rec.StepIndex,
			Mode:        rec.Mode,
			Task:        rec.Task,
			CompletedAt: rec.CompletedAt,
			Results:     rec.Results,
		})
	}

	return &mcp.CallToolResult{
		Content: []mcp.Content{
			&mcp.TextContent{Text: fmt.Sprintf("Workflow %s: %s, step %d/%d", w.ID, w.Status, w.CurrentStepIndex, len(w.Steps))},
		},
	}, output, nil
}

type workflowListInput struct {
	Status string `json:"status,omitempty" jsonschema:"Filter by status (initialized in_progress or completed)"`
}

type workflowListOutput struct {
	Workflows []workflowSummary `json:"workflows" jsonschema:"Matching workflows"`
	Count     int               `json:"count" jsonschema:"Number of workflows returned"`
}

func (s *Server) handleWorkflowList(ctx context.Context, req *mcp.CallToolRequest, args workflowListInput) (*mcp.CallToolResult, workflowListOutput, error) {
	start := time.Now()
	s.metrics.IncrementActive(ctx, "workflow_list")
	var toolErr error
	defer func() {
		s.metrics.DecrementActive(ctx, "workflow_list")
		s.metrics.RecordInvocation(ctx, "workflow_list", time.Since(start), toolErr)
	}()

	filter := workflow.Status(args.Status)
	if args.Status != "" && !filter.Valid() {
		toolErr = fmt.Errorf("unknown status %q", args.Status)
		return nil, workflowListOutput{}, toolErr
	}

	workflows := s.workflows.List(ctx, filter)
	output := workflowListOutput{
		Workflows: make([]workflowSummary, 0, len(workflows)),
		Count:     len(workflows),
	}
	for _, w := range workflows {
		output.Workflows = append(output.Workflows, summarize(w))
	}

	return &mcp.CallToolResult{
		Content: []mcp.Content{
			&mcp.TextContent{Text: fmt.Sprintf("Found %d workflows", output.Count)},
		},
	}, output, nil
}

// ===== REFERENCE TOOLS =====

type referenceCreateInput struct {
	SourceMode     string `json:"source_mode" jsonschema:"required,Stage that produced the source artifact"`
	SourceArtifact string `json:"source_artifact" jsonschema:"required,Source artifact identifier"`
	TargetMode     string `json:"target_mode" jsonschema:"required,Stage that owns the target artifact"`
	TargetArtifact string `json:"target_artifact" jsonschema:"required,Target artifact identifier"`
	ReferenceType  string `json:"reference_type" jsonschema:"required,Relationship type (implements references documents depends_on supersedes validates)"`
	Description    string `json:"description,omitempty" jsonschema:"Free-form description of the link"`
}

type referenceOutput struct {
	Key            string    `json:"key" jsonschema:"Composite reference key"`
	SourceMode     string    `json:"source_mode" jsonschema:"Source stage"`
	SourceArtifact string    `json:"source_artifact" jsonschema:"Source artifact"`
	TargetMode     string    `json:"target_mode" jsonschema:"Target stage"`
	TargetArtifact string    `json:"target_artifact" jsonschema:"Target artifact"`
	ReferenceType  string    `json:"reference_type" jsonschema:"Relationship type"`
	Description    string    `json:"description,omitempty" jsonschema:"Description"`
	CreatedAt      time.Time `json:"created_at" jsonschema:"Creation timestamp"`
}

type referenceCreateOutput struct {
	Reference referenceOutput `json:"reference" jsonschema:"Created reference"`
}

func (s *Server) handleReferenceCreate(ctx context.Context, req *mcp.CallToolRequest, args referenceCreateInput) (*mcp.CallToolResult, referenceCreateOutput, error) {
	start := time.Now()
	s.metrics.IncrementActive(ctx, "reference_create")
	var toolErr error
	defer func() {
		s.metrics.DecrementActive(ctx, "reference_create")
		s.metrics.RecordInvocation(ctx, "reference_create", time.Since(start), toolErr)
	}()

	key, ref, err := s.references.Create(ctx, &reference.Reference{
		SourceMode:     args.SourceMode,
		SourceArtifact: args.SourceArtifact,
		TargetMode:     args.TargetMode,
		TargetArtifact: args.TargetArtifact,
		Type:           reference.Type(args.ReferenceType),
		Description:    args.Description,
	})
	if err != nil {
		toolErr = fmt.Errorf("reference create failed: %w", err)
		return nil, referenceCreateOutput{}, toolErr
	}

	output := referenceCreateOutput{Reference: referenceToOutput(key, ref)}
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			&mcp.TextContent{Text: fmt.Sprintf("Reference recorded: %s", key)},
		},
	}, output, nil
}

type referenceQueryInput struct {
	Mode     string `json:"mode" jsonschema:"required,Stage to match"`
	Artifact string `json:"artifact,omitempty" jsonschema:"Narrow the match to one artifact"`
	Type     string `json:"type,omitempty" jsonschema:"Narrow the match to one reference type"`
	AsSource bool   `json:"as_source,omitempty" jsonschema:"Match the source endpoint instead of the target"`
}

type referenceQueryOutput struct {
	References []referenceOutput `json:"references" jsonschema:"Matching references"`
	Count      int               `json:"count" jsonschema:"Number of references returned"`
}

func (s *Server) handleReferenceQuery(ctx context.Context, req *mcp.CallToolRequest, args referenceQueryInput) (*mcp.CallToolResult, referenceQueryOutput, error) {
	start := time.Now()
	s.metrics.IncrementActive(ctx, "reference_query")
	var toolErr error
	defer func() {
		s.metrics.DecrementActive(ctx, "reference_query")
		s.metrics.RecordInvocation(ctx, "reference_query", time.Since(start), toolErr)
	}()

	if args.Mode == "" {
		toolErr = fmt.Errorf("mode is required")
		return nil, referenceQueryOutput{}, toolErr
	}
	if args.Type != "" && !reference.Type(args.Type).Valid() {
		toolErr = fmt.Errorf("unknown reference type %q", args.Type)
		return nil, referenceQueryOutput{}, toolErr
	}

	refs := s.references.Get(ctx, reference.Query{
		Mode:     args.Mode,
		Artifact: args.Artifact,
		Type:     reference.Type(args.Type),
		AsSource: args.AsSource,
	})

	output := referenceQueryOutput{
		References: make([]referenceOutput, 0, len(refs)),
		Count:      len(refs),
	}
	for _, ref := range refs {
		output.References = append(output.References, referenceToOutput(ref.Key(), ref))
	}

	return &mcp.CallToolResult{
		Content: []mcp.Content{
			&mcp.TextContent{Text: fmt.Sprintf("Found %d references", output.Count)},
		},
	}, output, nil
}

// ===== KNOWLEDGE TOOLS =====

type transferWarning struct {
	Code    string `json:"code" jsonschema:"Warning code"`
	Field   string `json:"field" jsonschema:"Field the warning concerns"`
	Message string `json:"message" jsonschema:"Human-readable message"`
}

type contextTransferInput struct {
	SourceStage string         `json:"source_stage" jsonschema:"required,Stage the context comes from"`
	TargetStage string         `json:"target_stage" jsonschema:"required,Stage the context is handed to"`
	Context     map[string]any `json:"context" jsonschema:"required,Context fields under the source stage's conventions"`
}

type contextTransferOutput struct {
	Fields        map[string]any    `json:"fields" jsonschema:"Context fields shaped for the target stage"`
	SourceStage   string            `json:"source_stage" jsonschema:"Source stage"`
	TargetStage   string            `json:"target_stage" jsonschema:"Target stage"`
	FormatVersion string            `json:"format_version" jsonschema:"Serialization format version"`
	Warnings      []transferWarning `json:"warnings,omitempty" jsonschema:"Non-fatal transfer warnings"`
}

func (s *Server) handleContextTransfer(ctx context.Context, req *mcp.CallToolRequest, args contextTransferInput) (*mcp.CallToolResult, contextTransferOutput, error) {
	start := time.Now()
	s.metrics.IncrementActive(ctx, "context_transfer")
	var toolErr error
	defer func() {
		s.metrics.DecrementActive(ctx, "context_transfer")
		s.metrics.RecordInvocation(ctx, "context_transfer", time.Since(start), toolErr)
	}()

	c := knowledge.NewContext()
	c.Merge(args.Context)

	serialized, err := s.rules.Serialize(c, args.SourceStage, args.TargetStage)
	if err != nil {
		toolErr = fmt.Errorf("context transfer failed: %w", err)
		return nil, contextTransferOutput{}, toolErr
	}
	received, err := s.rules.Deserialize(serialized, args.TargetStage)
	if err != nil {
		toolErr = fmt.Errorf("context transfer failed: %w", err)
		return nil, contextTransferOutput{}, toolErr
	}

	output := contextTransferOutput{
		Fields:        received.Export(),
		SourceStage:   serialized.Meta.SourceStage,
		TargetStage:   serialized.Meta.TargetStage,
		FormatVersion: serialized.Meta.FormatVersion,
	}
	for _, warn := range serialized.Warnings {
		output.Warnings = append(output.Warnings, transferWarning{
			Code:    warn.Code,
			Field:   warn.Field,
			Message: warn.Message,
		})
	}

	return &mcp.CallToolResult{
		Content: []mcp.Content{
			&mcp.TextContent{Text: fmt.Sprintf("Context transferred %s -> %s", args.SourceStage, args.TargetStage)},
		},
	}, output, nil
}

func summarize(w *workflow.Workflow) workflowSummary {
	sum := workflowSummary{
		ID:               w.ID,
		Name:             w.Name,
		Status:           string(w.Status),
		CurrentStepIndex: w.CurrentStepIndex,
		TotalSteps:       len(w.Steps),
	}
	if step, ok := w.CurrentStep(); ok {
		sum.CurrentMode = step.Mode
		sum.CurrentTask = step.Task
	}
	return sum
}

func referenceToOutput(key string, ref *reference.Reference) referenceOutput {
	return referenceOutput{
		Key:            key,
		SourceMode:     ref.SourceMode,
		SourceArtifact: ref.SourceArtifact,
		TargetMode:     ref.TargetMode,
		TargetArtifact: ref.TargetArtifact,
		ReferenceType:  string(ref.Type),
		Description:    ref.Description,
		CreatedAt:      ref.CreatedAt,
	}
}
