package runner

import (
	"sync"
	"time"

	"github.com/ethereum-optimism/infra/op-runtest/types"
)

// CostEntry is the scheduling cost history of one test.
type CostEntry struct {
	Cost         float64 // average seconds of completed runs
	PreviousRuns int
}

// CostTracker keeps rolling average costs per test name. Updates for the same
// test are serialised, so concurrent units of one test cannot lose a sample.
type CostTracker struct {
	mu      sync.Mutex
	entries map[string]CostEntry
}

// NewCostTracker creates an empty tracker.
func NewCostTracker() *CostTracker {
	return &CostTracker{entries: make(map[string]CostEntry)}
}

// Seed sets the starting history of a test unless one is already tracked.
func (c *CostTracker) Seed(name string, entry CostEntry) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.entries[name]; !ok {
		c.entries[name] = entry
	}
}

// Get returns the history of name.
func (c *CostTracker) Get(name string) (CostEntry, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[name]
	return e, ok
}

// Record folds the execution time of an attempt into the average. Only
// completed attempts count; the second result reports whether it changed.
func (c *CostTracker) Record(name string, status types.Status, elapsed time.Duration) (CostEntry, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e := c.entries[name]
	if status != types.StatusCompleted {
		return e, false
	}
	current := float64(elapsed.Milliseconds()) / 1000.0
	prev := float64(e.PreviousRuns)
	e.Cost = (prev*e.Cost + current) / (prev + 1.0)
	e.PreviousRuns++
	c.entries[name] = e
	return e, true
}

// Snapshot copies all entries.
func (c *CostTracker) Snapshot() map[string]CostEntry {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make(map[string]CostEntry, len(c.entries))
	for k, v := range c.entries {
		out[k] = v
	}
	return out
}
