package knowledge

import (
	"maps"
	"sync"
)

// Wildcard matches any target stage in a rule registration.
const Wildcard = "*"

// TransformFunc reshapes a flattened field map in place. Implementations may
// rename or derive fields but must not delete fields they have no mapping
// for.
type TransformFunc func(fields map[string]any)

// Rule couples a transform with the handoff fields the target stage relies
// on. Missing expected fields produce warnings, never sentinel values.
type Rule struct {
	Transform TransformFunc
	Expects   []string
}

// Rename builds a TransformFunc that moves fields old -> new per the given
// mapping, leaving everything else untouched.
func Rename(mapping map[string]string) TransformFunc {
	return func(fields map[string]any) {
		for from, to := range mapping {
			if v, ok := fields[from]; ok {
				delete(fields, from)
				fields[to] = v
			}
		}
	}
}

type stagePair struct {
	source string
	target string
}

// RuleSet is the registry of transfer behavior: serialize-side transform
// rules keyed by stage pair, and deserialize-side rename tables keyed by
// target stage. Safe for concurrent use.
type RuleSet struct {
	mu      sync.RWMutex
	rules   map[stagePair]Rule
	renames map[string]map[string]string
}

// NewRuleSet creates an empty rule set.
func NewRuleSet() *RuleSet {
	return &RuleSet{
		rules:   make(map[stagePair]Rule),
		renames: make(map[string]map[string]string),
	}
}

// Register installs a serialize-side rule for the (source, target) pair.
// Use Wildcard as target to install the fallback for a source stage.
// Registering the same pair twice replaces the earlier rule.
func (rs *RuleSet) Register(source, target string, rule Rule) {
	rs.mu.Lock()
	defer rs.mu.Unlock()
	rs.rules[stagePair{source, target}] = rule
}

// RegisterRename installs a deserialize-side field rename applied when a
// payload arrives at targetStage.
func (rs *RuleSet) RegisterRename(targetStage, from, to string) {
	rs.mu.Lock()
	defer rs.mu.Unlock()
	m, ok := rs.renames[targetStage]
	if !ok {
		m = make(map[string]string)
		rs.renames[targetStage] = m
	}
	m[from] = to
}

// lookup finds the rule for (source, target), falling back to the source's
// wildcard rule. At most one rule ever applies.
func (rs *RuleSet) lookup(source, target string) (Rule, bool) {
	rs.mu.RLock()
	defer rs.mu.RUnlock()
	if rule, ok := rs.rules[stagePair{source, target}]; ok {
		return rule, true
	}
	rule, ok := rs.rules[stagePair{source, Wildcard}]
	return rule, ok
}

func (rs *RuleSet) renamesFor(target string) map[string]string {
	rs.mu.RLock()
	defer rs.mu.RUnlock()
	return maps.Clone(rs.renames[target])
}

// DefaultRules returns the built-in transfer behavior for the core stages
// (architect, code, debug, docs).
func DefaultRules() *RuleSet {
	rs := NewRuleSet()

	// Design handoff: architect's decisions become implementation guidance.
	rs.Register("architect", "code", Rule{
		Transform: Rename(map[string]string{
			"design_decisions": "implementation_guidance",
			"component_plan":   "implementation_plan",
		}),
		Expects: []string{"design_decisions"},
	})

	// Any other stage downstream of architect sees the design as upstream input.
	rs.Register("architect", Wildcard, Rule{
		Transform: Rename(map[string]string{
			"design_decisions": "upstream_design",
		}),
	})

	// Code to debug: the implementation artifact becomes the thing to analyze.
	rs.Register("code", "debug", Rule{
		Transform: Rename(map[string]string{
			"implementation": "implementation_to_analyze",
			"test_results":   "observed_behavior",
		}),
		Expects: []string{"implementation"},
	})

	// Code to docs: the implementation artifact becomes documentation input.
	rs.Register("code", "docs", Rule{
		Transform: Rename(map[string]string{
			"implementation": "subject_implementation",
			"api_changes":    "api_surface",
		}),
		Expects: []string{"implementation"},
	})

	// Debug back to code: diagnosis drives the fix.
	rs.Register("debug", "code", Rule{
		Transform: Rename(map[string]string{
			"diagnosis": "fix_guidance",
		}),
		Expects: []string{"diagnosis"},
	})

	// Target-side conveniences, independent of the serialize rules above.
	rs.RegisterRename("debug", "error_logs", "symptoms")
	rs.RegisterRename("docs", "change_summary", "release_notes_input")

	return rs
}
