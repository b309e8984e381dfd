// Package costdata persists per-test scheduling costs and the names of the
// tests that failed in the previous run.
package costdata

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"

	"gopkg.in/yaml.v3"

	"github.com/ethereum-optimism/infra/op-runtest/runner"
	"github.com/ethereum-optimism/infra/op-runtest/types"
)

// DefaultFileName is the cost file name used inside the log directory.
const DefaultFileName = "CostData.yaml"

// Entry is the stored history of one test.
type Entry struct {
	Cost         float64 `yaml:"cost"`
	PreviousRuns int     `yaml:"previous_runs"`
}

// Data is the on-disk cost file.
type Data struct {
	Tests      map[string]Entry `yaml:"tests"`
	LastFailed []string         `yaml:"last_failed,omitempty"`
}

// New returns empty cost data.
func New() *Data {
	return &Data{Tests: make(map[string]Entry)}
}

// Load reads path. A missing file yields empty data.
func Load(path string) (*Data, error) {
	raw, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return New(), nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading cost file: %w", err)
	}

	d := New()
	if err := yaml.Unmarshal(raw, d); err != nil {
		return nil, fmt.Errorf("parsing cost file: %w", err)
	}
	if d.Tests == nil {
		d.Tests = make(map[string]Entry)
	}
	for name, e := range d.Tests {
		if e.Cost < 0 || e.PreviousRuns < 0 {
			return nil, fmt.Errorf("parsing cost file: negative history for %q", name)
		}
	}
	return d, nil
}

// Save writes d to path through a temporary file in the same directory.
func (d *Data) Save(path string) error {
	raw, err := yaml.Marshal(d)
	if err != nil {
		return fmt.Errorf("encoding cost file: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("creating cost file directory: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), ".costdata-*")
	if err != nil {
		return fmt.Errorf("creating temporary cost file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(raw); err != nil {
		tmp.Close()
		return fmt.Errorf("writing cost file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("writing cost file: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("replacing cost file: %w", err)
	}
	return nil
}

// Apply copies stored history into tests that carry none of their own.
func (d *Data) Apply(tests []types.TestConfig) {
	for i := range tests {
		e, ok := d.Tests[tests[i].Name]
		if !ok || tests[i].PreviousRuns > 0 {
			continue
		}
		tests[i].Cost = e.Cost
		tests[i].PreviousRuns = e.PreviousRuns
	}
}

// Seed loads every stored entry into tracker.
func (d *Data) Seed(tracker *runner.CostTracker) {
	for name, e := range d.Tests {
		tracker.Seed(name, runner.CostEntry{Cost: e.Cost, PreviousRuns: e.PreviousRuns})
	}
}

// Update merges the tracker snapshot and replaces the failed list with the
// names of the outcomes that did not pass.
func (d *Data) Update(snapshot map[string]runner.CostEntry, outcomes []*types.TestOutcome) {
	if d.Tests == nil {
		d.Tests = make(map[string]Entry)
	}
	for name, e := range snapshot {
		d.Tests[name] = Entry{Cost: e.Cost, PreviousRuns: e.PreviousRuns}
	}

	seen := make(map[string]struct{})
	failed := make([]string, 0)
	for _, o := range outcomes {
		if o.Passed() || o.Skipped() || o.CompletionStatus == types.CompletionDisabled {
			continue
		}
		if _, ok := seen[o.Name]; ok {
			continue
		}
		seen[o.Name] = struct{}{}
		failed = append(failed, o.Name)
	}
	sort.Strings(failed)
	d.LastFailed = failed
}

// FailedLastTime reports whether name was in the previous run's failed list.
func (d *Data) FailedLastTime(name string) bool {
	for _, n := range d.LastFailed {
		if n == name {
			return true
		}
	}
	return false
}
