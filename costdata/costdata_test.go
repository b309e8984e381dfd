package costdata

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ethereum-optimism/infra/op-runtest/runner"
	"github.com/ethereum-optimism/infra/op-runtest/types"
)

func TestLoadMissingFile(t *testing.T) {
	d, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.NoError(t, err)
	assert.Empty(t, d.Tests)
	assert.Empty(t, d.LastFailed)
}

func TestLoadInvalid(t *testing.T) {
	dir := t.TempDir()

	bad := filepath.Join(dir, "bad.yaml")
	require.NoError(t, os.WriteFile(bad, []byte("tests: [1, 2"), 0o644))
	_, err := Load(bad)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "parsing cost file")

	negative := filepath.Join(dir, "negative.yaml")
	require.NoError(t, os.WriteFile(negative, []byte("tests:\n  a:\n    cost: -1\n"), 0o644))
	_, err = Load(negative)
	require.Error(t, err)
}

func TestSaveLoadRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sub", DefaultFileName)

	d := New()
	d.Tests["alpha"] = Entry{Cost: 1.5, PreviousRuns: 3}
	d.LastFailed = []string{"beta"}
	require.NoError(t, d.Save(path))

	loaded, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, d, loaded)

	entries, err := os.ReadDir(filepath.Dir(path))
	require.NoError(t, err)
	assert.Len(t, entries, 1, "temporary file should be gone")
}

func TestApplyKeepsExistingHistory(t *testing.T) {
	d := New()
	d.Tests["a"] = Entry{Cost: 2, PreviousRuns: 4}
	d.Tests["b"] = Entry{Cost: 9, PreviousRuns: 9}

	tests := []types.TestConfig{
		{Name: "a"},
		{Name: "b", Cost: 1, PreviousRuns: 1},
		{Name: "c"},
	}
	d.Apply(tests)

	assert.Equal(t, 2.0, tests[0].Cost)
	assert.Equal(t, 4, tests[0].PreviousRuns)
	assert.Equal(t, 1.0, tests[1].Cost)
	assert.Equal(t, 0, tests[2].PreviousRuns)
}

func TestSeedAndUpdate(t *testing.T) {
	d := New()
	d.Tests["a"] = Entry{Cost: 1, PreviousRuns: 1}

	tracker := runner.NewCostTracker()
	d.Seed(tracker)
	_, changed := tracker.Record("a", types.StatusCompleted, 3*time.Second)
	require.True(t, changed)

	outcomes := []*types.TestOutcome{
		{Name: "a", Status: types.StatusCompleted},
		{Name: "z", Status: types.StatusFailed},
		{Name: "b", Status: types.StatusTimeout},
		{Name: "b", Status: types.StatusTimeout},
		{Name: "skip", Status: types.StatusNotRun, CompletionStatus: types.SkipCompletionStatus(77)},
		{Name: "off", Status: types.StatusNotRun, CompletionStatus: types.CompletionDisabled},
		{Name: "missing", Status: types.StatusNotRun, CompletionStatus: types.CompletionMissingExecutable},
	}
	d.Update(tracker.Snapshot(), outcomes)

	assert.Equal(t, Entry{Cost: 2, PreviousRuns: 2}, d.Tests["a"])
	assert.Equal(t, []string{"b", "missing", "z"}, d.LastFailed)
	assert.True(t, d.FailedLastTime("z"))
	assert.False(t, d.FailedLastTime("a"))
}
