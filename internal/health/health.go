// Package health runs named subsystem probes for the readiness surface.
package health

import (
	"context"
	"sync"
)

// Status is one subsystem's probe result.
type Status struct {
	Name    string `json:"name"`
	Healthy bool   `json:"healthy"`
	Detail  string `json:"detail,omitempty"`
}

// Checker probes one subsystem.
type Checker func(ctx context.Context) Status

// Registry runs registered checkers in registration order.
type Registry struct {
	mu     sync.RWMutex
	order  []string
	byName map[string]Checker
}

func NewRegistry() *Registry {
	return &Registry{byName: make(map[string]Checker)}
}

// Register adds a checker. Registering a name twice replaces the checker
// but keeps its original position.
func (r *Registry) Register(name string, check Checker) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, seen := r.byName[name]; !seen {
		r.order = append(r.order, name)
	}
	r.byName[name] = check
}

// CheckAll probes every subsystem. The aggregate is healthy only when
// every probe is.
func (r *Registry) CheckAll(ctx context.Context) (bool, []Status) {
	r.mu.RLock()
	order := make([]string, len(r.order))
	copy(order, r.order)
	checks := make(map[string]Checker, len(r.byName))
	for name, c := range r.byName {
		checks[name] = c
	}
	r.mu.RUnlock()

	healthy := true
	statuses := make([]Status, 0, len(order))
	for _, name := range order {
		s := checks[name](ctx)
		if !s.Healthy {
			healthy = false
		}
		statuses = append(statuses, s)
	}
	return healthy, statuses
}
