package knowledge

import (
	"maps"
	"time"
)

// Canonical names for the common fields every stage understands.
const (
	FieldTaskDescription = "task_description"
	FieldPriority        = "priority"
	FieldConstraints     = "constraints"
	FieldRequirements    = "requirements"
	FieldReferences      = "references"
)

// CommonFields lists the fields copied verbatim on every transfer.
func CommonFields() []string {
	return []string{
		FieldTaskDescription,
		FieldPriority,
		FieldConstraints,
		FieldRequirements,
		FieldReferences,
	}
}

// Context is the knowledge payload carried across workflow steps.
//
// The common fields are typed; everything stage-specific lives in Fields.
// Fields accumulate monotonically: entries are added or overwritten as the
// workflow progresses, never structurally removed.
type Context struct {
	TaskDescription string `json:"task_description,omitempty"`
	Priority        string `json:"priority,omitempty"`
	Constraints     any    `json:"constraints,omitempty"`
	Requirements    any    `json:"requirements,omitempty"`
	References      any    `json:"references,omitempty"`

	// Fields holds stage-specific entries keyed by field name.
	Fields map[string]any `json:"fields,omitempty"`

	// ReceivedAt is stamped by Deserialize when the context arrives at a
	// target stage. Zero for contexts that have not crossed a stage boundary.
	ReceivedAt time.Time `json:"received_at,omitempty"`
}

// NewContext creates an empty context.
func NewContext() *Context {
	return &Context{Fields: make(map[string]any)}
}

// Clone returns a copy whose Fields map is independent of the original.
func (c *Context) Clone() *Context {
	if c == nil {
		return nil
	}
	out := *c
	out.Fields = maps.Clone(c.Fields)
	if out.Fields == nil {
		out.Fields = make(map[string]any)
	}
	return &out
}

// Merge folds a step's results into the context, last write wins. Keys with
// canonical common-field names update the typed fields; everything else lands
// in Fields.
func (c *Context) Merge(results map[string]any) {
	if c.Fields == nil {
		c.Fields = make(map[string]any)
	}
	for key, value := range results {
		c.set(key, value)
	}
}

// Set stores a single field, routing common-field names to their typed slots.
func (c *Context) Set(key string, value any) {
	if c.Fields == nil {
		c.Fields = make(map[string]any)
	}
	c.set(key, value)
}

func (c *Context) set(key string, value any) {
	switch key {
	case FieldTaskDescription:
		if s, ok := value.(string); ok {
			c.TaskDescription = s
			return
		}
	case FieldPriority:
		if s, ok := value.(string); ok {
			c.Priority = s
			return
		}
	case FieldConstraints:
		c.Constraints = value
		return
	case FieldRequirements:
		c.Requirements = value
		return
	case FieldReferences:
		c.References = value
		return
	}
	c.Fields[key] = value
}

// Get looks up a field by name, checking typed common fields first.
func (c *Context) Get(key string) (any, bool) {
	switch key {
	case FieldTaskDescription:
		if c.TaskDescription != "" {
			return c.TaskDescription, true
		}
		return nil, false
	case FieldPriority:
		if c.Priority != "" {
			return c.Priority, true
		}
		return nil, false
	case FieldConstraints:
		return c.Constraints, c.Constraints != nil
	case FieldRequirements:
		return c.Requirements, c.Requirements != nil
	case FieldReferences:
		return c.References, c.References != nil
	}
	v, ok := c.Fields[key]
	return v, ok
}

// Export returns the context as a single field map, with the canonical
// fields folded in alongside the stage-specific ones. The map is a copy.
func (c *Context) Export() map[string]any {
	return c.flatten()
}

// flatten projects the context onto a single field map for transfer.
func (c *Context) flatten() map[string]any {
	fields := maps.Clone(c.Fields)
	if fields == nil {
		fields = make(map[string]any)
	}
	if c.TaskDescription != "" {
		fields[FieldTaskDescription] = c.TaskDescription
	}
	if c.Priority != "" {
		fields[FieldPriority] = c.Priority
	}
	if c.Constraints != nil {
		fields[FieldConstraints] = c.Constraints
	}
	if c.Requirements != nil {
		fields[FieldRequirements] = c.Requirements
	}
	if c.References != nil {
		fields[FieldReferences] = c.References
	}
	return fields
}

// contextFromFields rebuilds a Context from a transferred field map.
func contextFromFields(fields map[string]any) *Context {
	c := NewContext()
	for key, value := range fields {
		c.set(key, value)
	}
	return c
}
