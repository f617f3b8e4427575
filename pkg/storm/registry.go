package storm

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/sola-insurance/storm-sims/pkg/models"
)

// Registry manages available storm models. It also implements the worker's
// Runner contract by dispatching each work item to the model registered for
// its storm type.
type Registry struct {
	mu     sync.RWMutex
	models map[string]func() Simulation
}

// NewRegistry creates a new storm model registry
func NewRegistry() *Registry {
	return &Registry{
		models: make(map[string]func() Simulation),
	}
}

// Register adds a storm model to the registry
func (r *Registry) Register(stormType string, factory func() Simulation) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.models[stormType]; exists {
		return fmt.Errorf("storm type %s already registered", stormType)
	}

	r.models[stormType] = factory
	return nil
}

// Get returns a new instance of the model for the storm type
func (r *Registry) Get(stormType string) (Simulation, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	factory, exists := r.models[stormType]
	if !exists {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedStormType, stormType)
	}

	return factory(), nil
}

// List returns all registered storm types, sorted
func (r *Registry) List() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	types := make([]string, 0, len(r.models))
	for t := range r.models {
		types = append(types, t)
	}
	sort.Strings(types)
	return types
}

// Run executes the work item against the model for its storm type. An
// unknown storm type is a terminal error: redelivering the item cannot make
// the type supported.
func (r *Registry) Run(ctx context.Context, item models.WorkItem) (models.SimulationResult, error) {
	sim, err := r.Get(item.StormType)
	if err != nil {
		return models.SimulationResult{}, wrapUnsupported(item.StormType)
	}
	return sim.Run(ctx, item)
}

// DefaultRegistry is the global storm model registry
var DefaultRegistry = NewRegistry()
