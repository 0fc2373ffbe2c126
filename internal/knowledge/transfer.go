package knowledge

import (
	"errors"
	"fmt"
	"maps"
	"time"
)

// FormatVersion identifies the serialized payload layout.
const FormatVersion = "1.0"

// CarriedErrorField is the context field that carries an upstream transfer
// failure through deserialization instead of raising a new error.
const CarriedErrorField = "transfer_error"

// ErrInvalidInput reports a malformed transfer request: a nil context, empty
// stage identifiers, or a non-structured serialized payload.
var ErrInvalidInput = errors.New("knowledge: invalid transfer input")

// WarningMissingHandoffField is the code for a handoff field a transform rule
// expected but did not find in the source context.
const WarningMissingHandoffField = "missing_handoff_field"

// Warning flags a non-fatal condition detected during serialization.
type Warning struct {
	Code    string `json:"code"`
	Field   string `json:"field"`
	Message string `json:"message"`
}

// Meta describes the provenance of a serialized payload.
type Meta struct {
	SourceStage   string    `json:"source_stage"`
	TargetStage   string    `json:"target_stage"`
	TransferredAt time.Time `json:"transferred_at"`
	FormatVersion string    `json:"format_version"`
}

// SerializedContext is a context shaped for a specific target stage, ready to
// cross a stage boundary.
type SerializedContext struct {
	Fields   map[string]any `json:"fields"`
	Meta     Meta           `json:"meta"`
	Warnings []Warning      `json:"warnings,omitempty"`

	// CarriedError marks an upstream failure. Deserialize recognizes it and
	// passes it through rather than re-validating the payload.
	CarriedError string `json:"carried_error,omitempty"`
}

// Serialize adapts a context produced under sourceStage's conventions into
// the shape targetStage expects.
//
// Common fields are copied verbatim. At most one transform rule is applied,
// looked up by the exact (source, target) pair with a (source, "*") fallback.
// If the context carries a sub-map keyed by the literal target stage name,
// its entries are merged last so explicit per-target overrides win. The
// result is always stamped with transfer metadata.
//
// Pure over its inputs: the context is never mutated and no state is
// retained between calls.
func (rs *RuleSet) Serialize(c *Context, sourceStage, targetStage string) (*SerializedContext, error) {
	if c == nil {
		return nil, fmt.Errorf("%w: context is nil", ErrInvalidInput)
	}
	if sourceStage == "" {
		return nil, fmt.Errorf("%w: source stage is empty", ErrInvalidInput)
	}
	if targetStage == "" {
		return nil, fmt.Errorf("%w: target stage is empty", ErrInvalidInput)
	}

	fields := c.flatten()

	var warnings []Warning
	if rule, ok := rs.lookup(sourceStage, targetStage); ok {
		for _, expected := range rule.Expects {
			if _, present := fields[expected]; !present {
				warnings = append(warnings, Warning{
					Code:    WarningMissingHandoffField,
					Field:   expected,
					Message: fmt.Sprintf("field %q expected for %s -> %s handoff is absent", expected, sourceStage, targetStage),
				})
			}
		}
		if rule.Transform != nil {
			rule.Transform(fields)
		}
	}

	// Explicit per-target overrides merge last.
	if sub, ok := fields[targetStage].(map[string]any); ok {
		for k, v := range sub {
			fields[k] = v
		}
	}

	return &SerializedContext{
		Fields: fields,
		Meta: Meta{
			SourceStage:   sourceStage,
			TargetStage:   targetStage,
			TransferredAt: time.Now().UTC(),
			FormatVersion: FormatVersion,
		},
		Warnings: warnings,
	}, nil
}

// Deserialize unpacks a serialized payload for consumption by targetStage.
//
// Metadata is stripped, a receipt timestamp is stamped, and target-side
// rename rules are applied. These renames are a convenience layer independent
// of the serialize-side rules, so either side can evolve its field names
// alone. A payload carrying an upstream error is passed through as a context
// holding the error marker rather than failing again.
func (rs *RuleSet) Deserialize(s *SerializedContext, targetStage string) (*Context, error) {
	if s == nil {
		return nil, fmt.Errorf("%w: serialized payload is nil", ErrInvalidInput)
	}
	if targetStage == "" {
		return nil, fmt.Errorf("%w: target stage is empty", ErrInvalidInput)
	}

	if s.CarriedError != "" {
		c := NewContext()
		c.Fields[CarriedErrorField] = s.CarriedError
		c.ReceivedAt = time.Now().UTC()
		return c, nil
	}

	if s.Fields == nil {
		return nil, fmt.Errorf("%w: serialized payload is not a structured mapping", ErrInvalidInput)
	}

	fields := maps.Clone(s.Fields)
	for from, to := range rs.renamesFor(targetStage) {
		if v, ok := fields[from]; ok {
			delete(fields, from)
			fields[to] = v
		}
	}

	c := contextFromFields(fields)
	c.ReceivedAt = time.Now().UTC()
	return c, nil
}
