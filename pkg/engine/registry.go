package engine

import (
	"fmt"
	"sort"
	"sync"
)

// Registry holds the engines available to the orchestrator, keyed by engine
// ID. The set is read-mostly after construction.
type Registry struct {
	mu      sync.RWMutex
	engines map[string]Engine
}

func NewRegistry() *Registry {
	return &Registry{engines: make(map[string]Engine)}
}

// Register adds an engine, replacing any existing one with the same ID.
func (r *Registry) Register(e Engine) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.engines[e.ID()] = e
}

// Get returns the engine for an ID.
func (r *Registry) Get(engineID string) (Engine, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.engines[engineID]
	if !ok {
		return nil, fmt.Errorf("unknown engine: %s", engineID)
	}
	return e, nil
}

// Has reports whether an engine ID is registered.
func (r *Registry) Has(engineID string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.engines[engineID]
	return ok
}

// IDs returns all registered engine IDs, sorted.
func (r *Registry) IDs() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ids := make([]string, 0, len(r.engines))
	for id := range r.engines {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// ByReputationGroup returns the engines sharing a reputation group.
func (r *Registry) ByReputationGroup(group string) []Engine {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var members []Engine
	for _, e := range r.engines {
		if e.Config().ReputationGroup == group {
			members = append(members, e)
		}
	}
	return members
}

// GroupRequestsToday sums the daily request counters of a reputation group.
// Installed into the scan queue as the shared daily-cap accessor.
func (r *Registry) GroupRequestsToday(group string) int {
	total := 0
	for _, e := range r.ByReputationGroup(group) {
		total += e.RequestsToday()
	}
	return total
}

// Reports returns status snapshots for all engines, sorted by ID.
func (r *Registry) Reports() []StatusReport {
	r.mu.RLock()
	defer r.mu.RUnlock()
	reports := make([]StatusReport, 0, len(r.engines))
	for _, e := range r.engines {
		reports = append(reports, e.StatusReport())
	}
	sort.Slice(reports, func(i, j int) bool { return reports[i].EngineID < reports[j].EngineID })
	return reports
}
