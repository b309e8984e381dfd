package runner

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ethereum-optimism/infra/op-runtest/types"
)

func TestCostTrackerAverage(t *testing.T) {
	c := NewCostTracker()
	times := []time.Duration{time.Second, 2 * time.Second, 6 * time.Second}
	for _, d := range times {
		_, ok := c.Record("t", types.StatusCompleted, d)
		require.True(t, ok)
	}
	entry, ok := c.Get("t")
	require.True(t, ok)
	assert.InDelta(t, 3.0, entry.Cost, 1e-9)
	assert.Equal(t, 3, entry.PreviousRuns)
}

func TestCostTrackerIgnoresNonCompleted(t *testing.T) {
	c := NewCostTracker()
	c.Seed("t", CostEntry{Cost: 4, PreviousRuns: 2})

	for _, status := range []types.Status{types.StatusFailed, types.StatusTimeout, types.StatusNotRun, types.StatusSegFault} {
		_, changed := c.Record("t", status, time.Hour)
		assert.False(t, changed)
	}
	entry, _ := c.Get("t")
	assert.Equal(t, CostEntry{Cost: 4, PreviousRuns: 2}, entry)

	entry, changed := c.Record("t", types.StatusCompleted, 7*time.Second)
	assert.True(t, changed)
	assert.InDelta(t, 5.0, entry.Cost, 1e-9)
	assert.Equal(t, 3, entry.PreviousRuns)
}

func TestCostTrackerSeedKeepsExisting(t *testing.T) {
	c := NewCostTracker()
	c.Seed("t", CostEntry{Cost: 1, PreviousRuns: 1})
	c.Seed("t", CostEntry{Cost: 9, PreviousRuns: 9})
	entry, _ := c.Get("t")
	assert.Equal(t, 1, entry.PreviousRuns)
}

func TestCostTrackerConcurrent(t *testing.T) {
	c := NewCostTracker()
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			c.Record("same", types.StatusCompleted, 2*time.Second)
		}()
	}
	wg.Wait()

	entry, _ := c.Get("same")
	assert.Equal(t, 50, entry.PreviousRuns)
	assert.InDelta(t, 2.0, entry.Cost, 1e-9)
	assert.Len(t, c.Snapshot(), 1)
}
