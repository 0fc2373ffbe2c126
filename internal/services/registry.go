package services

import (
	"github.com/fyrsmithlabs/stageflow/internal/knowledge"
	"github.com/fyrsmithlabs/stageflow/internal/reference"
	"github.com/fyrsmithlabs/stageflow/internal/store"
	"github.com/fyrsmithlabs/stageflow/internal/workflow"
)

// Registry provides access to all stageflow services.
// Use accessor methods to retrieve individual services.
type Registry interface {
	Workflows() *workflow.Manager
	References() *reference.Registry
	Rules() *knowledge.RuleSet
	Store() store.Store
}

// Options configures the registry with service instances.
type Options struct {
	Workflows  *workflow.Manager
	References *reference.Registry
	Rules      *knowledge.RuleSet
	Store      store.Store
}

// registry is the concrete implementation of Registry.
type registry struct {
	workflows  *workflow.Manager
	references *reference.Registry
	rules      *knowledge.RuleSet
	store      store.Store
}

// NewRegistry creates a new service registry.
func NewRegistry(opts Options) Registry {
	return &registry{
		workflows:  opts.Workflows,
		references: opts.References,
		rules:      opts.Rules,
		store:      opts.Store,
	}
}

func (r *registry) Workflows() *workflow.Manager    { return r.workflows }
func (r *registry) References() *reference.Registry { return r.references }
func (r *registry) Rules() *knowledge.RuleSet       { return r.rules }
func (r *registry) Store() store.Store              { return r.store }
