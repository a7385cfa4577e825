package registry

import (
	"fmt"
	"sort"
	"sync"

	"authflow/internal/auth"
	"authflow/internal/observability/logging"
)

// Registry holds the named authentication strategies available to operations.
// It is populated during bootstrap and only read while serving traffic.
type Registry struct {
	mu         sync.RWMutex
	strategies map[string]auth.Strategy
	logger     *logging.Logger
}

// New creates an empty strategy registry
func New(logger *logging.Logger) *Registry {
	return &Registry{
		strategies: make(map[string]auth.Strategy),
		logger:     logger.WithModule("auth.registry"),
	}
}

// Register adds a strategy under its name. Registering a name twice is an
// error; an existing strategy is never shadowed.
func (r *Registry) Register(strategy auth.Strategy) error {
	if strategy == nil {
		return fmt.Errorf("cannot register nil strategy")
	}
	name := strategy.Name()
	if name == "" {
		return fmt.Errorf("cannot register strategy with empty name")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.strategies[name]; exists {
		return auth.DuplicateStrategy(name)
	}
	r.strategies[name] = strategy
	r.logger.Debug("Registered authentication strategy", logging.StrategyKey, name)
	return nil
}

// MustRegister is like Register but panics on error. Intended for bootstrap code.
func (r *Registry) MustRegister(strategies ...auth.Strategy) {
	for _, s := range strategies {
		if err := r.Register(s); err != nil {
			panic(err)
		}
	}
}

// Resolve returns the strategy registered under name
func (r *Registry) Resolve(name string) (auth.Strategy, error) {
	r.mu.RLock()
	strategy, ok := r.strategies[name]
	r.mu.RUnlock()

	if !ok {
		return nil, auth.StrategyNotFound(name)
	}
	return strategy, nil
}

// Names returns the registered strategy names in sorted order
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.strategies))
	for name := range r.strategies {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Len returns the number of registered strategies
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.strategies)
}
