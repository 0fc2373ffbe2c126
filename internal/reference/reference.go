// Package reference records durable, typed links between artifacts produced
// in different workflow stages.
package reference

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// ErrValidation reports a reference with missing key fields or an unknown
// reference type.
var ErrValidation = errors.New("reference: validation failed")

// Type classifies the relationship between two artifacts. The set is closed;
// unknown types are rejected at creation.
type Type string

const (
	TypeImplements Type = "implements"
	TypeReferences Type = "references"
	TypeDocuments  Type = "documents"
	TypeDependsOn  Type = "depends_on"
	TypeSupersedes Type = "supersedes"
	TypeValidates  Type = "validates"
)

// AllTypes returns the closed set of reference types.
func AllTypes() []Type {
	return []Type{
		TypeImplements,
		TypeReferences,
		TypeDocuments,
		TypeDependsOn,
		TypeSupersedes,
		TypeValidates,
	}
}

// Valid reports whether t is in the closed type set.
func (t Type) Valid() bool {
	switch t {
	case TypeImplements, TypeReferences, TypeDocuments,
		TypeDependsOn, TypeSupersedes, TypeValidates:
		return true
	}
	return false
}

// Reference is a directed, typed edge between two stage artifacts. Identity
// is the composite of the five key fields; Description is annotation only.
// A reference is created once and never mutated.
type Reference struct {
	SourceMode     string    `json:"source_mode"`
	SourceArtifact string    `json:"source_artifact"`
	TargetMode     string    `json:"target_mode"`
	TargetArtifact string    `json:"target_artifact"`
	Type           Type      `json:"reference_type"`
	Description    string    `json:"description,omitempty"`
	CreatedAt      time.Time `json:"created_at"`
}

// Validate checks the five key fields and the type.
func (r *Reference) Validate() error {
	if r == nil {
		return fmt.Errorf("%w: reference is nil", ErrValidation)
	}
	var missing []string
	if r.SourceMode == "" {
		missing = append(missing, "source_mode")
	}
	if r.SourceArtifact == "" {
		missing = append(missing, "source_artifact")
	}
	if r.TargetMode == "" {
		missing = append(missing, "target_mode")
	}
	if r.TargetArtifact == "" {
		missing = append(missing, "target_artifact")
	}
	if r.Type == "" {
		missing = append(missing, "reference_type")
	}
	if len(missing) > 0 {
		return fmt.Errorf("%w: missing fields: %s", ErrValidation, strings.Join(missing, ", "))
	}
	if !r.Type.Valid() {
		return fmt.Errorf("%w: unknown reference type %q", ErrValidation, r.Type)
	}
	return nil
}

// Key returns the deterministic composite storage key. Identical field values
// always map to the same key, making creation idempotent at the store layer.
func (r *Reference) Key() string {
	return strings.Join([]string{
		r.SourceMode,
		r.SourceArtifact,
		string(r.Type),
		r.TargetMode,
		r.TargetArtifact,
	}, "_")
}

// Query selects references by one endpoint.
type Query struct {
	// Mode is the stage to match (required).
	Mode string

	// Artifact narrows the match to a single artifact when non-empty.
	Artifact string

	// Type narrows the match to one reference type when non-empty.
	Type Type

	// AsSource selects which endpoint Mode/Artifact match against: the
	// source endpoint when true, the target endpoint when false.
	AsSource bool
}

// Matches reports whether ref satisfies the query.
func (q Query) Matches(ref *Reference) bool {
	mode, artifact := ref.TargetMode, ref.TargetArtifact
	if q.AsSource {
		mode, artifact = ref.SourceMode, ref.SourceArtifact
	}
	if mode != q.Mode {
		return false
	}
	if q.Artifact != "" && artifact != q.Artifact {
		return false
	}
	if q.Type != "" && ref.Type != q.Type {
		return false
	}
	return true
}
