package strategy

import (
	"fmt"
	"sort"
	"sync"
)

// Constructor builds a strategy instance from its parameter bag.
type Constructor func(params Params) (Strategy, error)

// Info describes a registered strategy for listings.
type Info struct {
	Name        string `json:"name"`
	Version     string `json:"version"`
	Description string `json:"description"`
}

// Registry maps strategy names to constructors. It is an explicit object
// handed to whoever needs it rather than a process-wide table, so lifetime
// and visibility stay scoped.
type Registry struct {
	mu      sync.RWMutex
	entries map[string]Constructor
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{entries: make(map[string]Constructor)}
}

// NewDefaultRegistry returns a registry pre-loaded with the bundled
// strategies.
func NewDefaultRegistry() *Registry {
	r := NewRegistry()
	r.MustRegister("ma_crossover", func(p Params) (Strategy, error) { return NewMovingAverageCrossover(p) })
	r.MustRegister("rsi", func(p Params) (Strategy, error) { return NewRSIStrategy(p) })
	r.MustRegister("bollinger", func(p Params) (Strategy, error) { return NewBollingerStrategy(p) })
	return r
}

// Register adds a named constructor. Duplicate names are rejected.
func (r *Registry) Register(name string, ctor Constructor) error {
	if name == "" || ctor == nil {
		return fmt.Errorf("registry: name and constructor required")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.entries[name]; exists {
		return fmt.Errorf("registry: strategy %q already registered", name)
	}
	r.entries[name] = ctor
	return nil
}

// MustRegister panics on a duplicate name; for wiring the static manifest at
// startup.
func (r *Registry) MustRegister(name string, ctor Constructor) {
	if err := r.Register(name, ctor); err != nil {
		panic(err)
	}
}

// Create instantiates a registered strategy with the given parameters.
func (r *Registry) Create(name string, params Params) (Strategy, error) {
	r.mu.RLock()
	ctor, ok := r.entries[name]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("registry: unknown strategy %q", name)
	}
	return ctor(params)
}

// List describes every registered strategy, sorted by name. Each entry is
// instantiated with empty parameters to read its metadata.
func (r *Registry) List() []Info {
	r.mu.RLock()
	names := make([]string, 0, len(r.entries))
	for name := range r.entries {
		names = append(names, name)
	}
	r.mu.RUnlock()
	sort.Strings(names)

	infos := make([]Info, 0, len(names))
	for _, name := range names {
		s, err := r.Create(name, Params{})
		if err != nil {
			infos = append(infos, Info{Name: name})
			continue
		}
		infos = append(infos, Info{Name: s.Name(), Version: s.Version(), Description: s.Description()})
	}
	return infos
}
