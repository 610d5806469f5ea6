package index

import (
	"sync"
	"time"

	"github.com/MrSnakeDoc/eliwatch/internal/domain"
)

// MemoryIndex holds the latest completed run for the HTTP API.
// It is seeded from Redis on startup and replaced after every run.
type MemoryIndex struct {
	mu      sync.RWMutex
	run     *domain.Run
	byID    map[string]int // ID -> position in run.Results
	summary domain.Summary
	running bool
	updated time.Time // when the current run was published
}

// Filter narrows Results. Zero fields match everything.
type Filter struct {
	// Status matches when the given aspect (or, without Aspect, any aspect)
	// has this status.
	Status domain.Status
	Aspect string
	Type   domain.ServiceType
}

// NewMemoryIndex creates a new memory index
func NewMemoryIndex() *MemoryIndex {
	return &MemoryIndex{
		byID: make(map[string]int),
	}
}

// UpdateRun replaces the published run
func (idx *MemoryIndex) UpdateRun(run *domain.Run) {
	if run == nil {
		return
	}
	byID := make(map[string]int, len(run.Results))
	for i := range run.Results {
		byID[run.Results[i].ID] = i
	}
	summary := run.Summarize()

	idx.mu.Lock()
	defer idx.mu.Unlock()

	idx.run = run
	idx.byID = byID
	idx.summary = summary
	idx.updated = time.Now()
}

// LatestRun returns the published run, if any.
func (idx *MemoryIndex) LatestRun() (*domain.Run, bool) {
	idx.mu.RLock()
	defer idx.mu.RUnlock()

	return idx.run, idx.run != nil
}

// GetResult retrieves a source result by ID
func (idx *MemoryIndex) GetResult(id string) (domain.SourceResult, bool) {
	idx.mu.RLock()
	defer idx.mu.RUnlock()

	i, ok := idx.byID[id]
	if !ok {
		return domain.SourceResult{}, false
	}
	return idx.run.Results[i], true
}

// Results returns the matching results in catalog order
func (idx *MemoryIndex) Results(f Filter) []domain.SourceResult {
	idx.mu.RLock()
	defer idx.mu.RUnlock()

	if idx.run == nil {
		return []domain.SourceResult{}
	}
	out := make([]domain.SourceResult, 0, len(idx.run.Results))
	for i := range idx.run.Results {
		if f.match(&idx.run.Results[i]) {
			out = append(out, idx.run.Results[i])
		}
	}
	return out
}

func (f Filter) match(r *domain.SourceResult) bool {
	if f.Type != "" && r.Type != f.Type {
		return false
	}
	if f.Status == "" {
		return true
	}
	if f.Aspect != "" {
		res, ok := r.Aspect(f.Aspect)
		return ok && res.Status == f.Status
	}
	for _, a := range []string{domain.AspectLicense, domain.AspectPrivacy, domain.AspectImagery} {
		if res, _ := r.Aspect(a); res.Status == f.Status {
			return true
		}
	}
	return false
}

// Summary returns status counts of the published run
func (idx *MemoryIndex) Summary() domain.Summary {
	idx.mu.RLock()
	defer idx.mu.RUnlock()

	return idx.summary
}

// Count returns the number of results in the index
func (idx *MemoryIndex) Count() int {
	idx.mu.RLock()
	defer idx.mu.RUnlock()

	if idx.run == nil {
		return 0
	}
	return len(idx.run.Results)
}

// SetRunning flags whether a run is in progress
func (idx *MemoryIndex) SetRunning(running bool) {
	idx.mu.Lock()
	defer idx.mu.Unlock()

	idx.running = running
}

// Running reports whether a run is in progress
func (idx *MemoryIndex) Running() bool {
	idx.mu.RLock()
	defer idx.mu.RUnlock()

	return idx.running
}

// GetLastUpdate returns when the current run was published
func (idx *MemoryIndex) GetLastUpdate() time.Time {
	idx.mu.RLock()
	defer idx.mu.RUnlock()

	return idx.updated
}
