package runtest

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/log"
	"github.com/sourcegraph/conc/pool"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/ethereum-optimism/infra/op-runtest/runner"
	"github.com/ethereum-optimism/infra/op-runtest/types"
)

var errDependencyCycle = errors.New("dependency cycle")

// DriverConfig wires a Driver.
type DriverConfig struct {
	Tests    []types.TestConfig
	Settings *runner.Settings
	Parallel int
	Finder   runner.ExecutableFinder
	Costs    *runner.CostTracker
	Log      log.Logger
	Tracer   trace.Tracer

	// FailedLastTime reports tests that failed in the previous run. Optional.
	FailedLastTime func(name string) bool
}

// Driver launches execution units with bounded parallelism. Prerequisites
// always start before their dependents. Within a dependency level the tests
// that failed last time start first, then the most expensive ones.
type Driver struct {
	tests    []types.TestConfig
	settings *runner.Settings
	parallel int
	finder   runner.ExecutableFinder
	costs    *runner.CostTracker
	log      log.Logger
	tracer   trace.Tracer

	failedLastTime func(string) bool
}

// RunResult is what a Driver run produced.
type RunResult struct {
	Outcomes    []*types.TestOutcome // ordered by test index
	NotLaunched []string             // tests never started because the run stopped early
	Duration    time.Duration
	Stopped     bool // the stop time passed or the run was interrupted
}

// node is the scheduling state of one test.
type node struct {
	test    *types.TestConfig
	prereqs []*node
	level   int
	visit   int // 0 unvisited, 1 in progress, 2 done

	done     chan struct{}
	passed   bool
	launched bool
}

func NewDriver(cfg DriverConfig) *Driver {
	logger := cfg.Log
	if logger == nil {
		logger = log.NewLogger(log.DiscardHandler())
	}
	tracer := cfg.Tracer
	if tracer == nil {
		tracer = otel.Tracer("test driver")
	}
	costs := cfg.Costs
	if costs == nil {
		costs = runner.NewCostTracker()
	}
	for i := range cfg.Tests {
		t := &cfg.Tests[i]
		costs.Seed(t.Name, runner.CostEntry{Cost: t.Cost, PreviousRuns: t.PreviousRuns})
	}
	failedLastTime := cfg.FailedLastTime
	if failedLastTime == nil {
		failedLastTime = func(string) bool { return false }
	}
	return &Driver{
		tests:          cfg.Tests,
		settings:       cfg.Settings,
		parallel:       max(cfg.Parallel, 1),
		finder:         cfg.Finder,
		costs:          costs,
		log:            logger,
		tracer:         tracer,
		failedLastTime: failedLastTime,
	}
}

// Run executes every test once (plus its reruns) and returns the collected
// outcomes. Only scheduling problems such as dependency cycles are errors;
// test failures are reported through the outcomes.
func (d *Driver) Run(ctx context.Context) (*RunResult, error) {
	nodes, err := d.plan()
	if err != nil {
		return nil, err
	}

	ctx, span := d.tracer.Start(ctx, "test run")
	defer span.End()
	span.SetAttributes(
		attribute.Int("tests", len(nodes)),
		attribute.Int("parallel", d.parallel),
	)

	begin := time.Now()
	results := runner.NewResults()
	counter := &runner.Counter{}
	settings := *d.settings
	if settings.Console != nil {
		settings.Console = runner.NewSyncWriter(settings.Console)
	}
	if settings.LogFile != nil {
		settings.LogFile = runner.NewSyncWriter(settings.LogFile)
	}

	var (
		mu          sync.Mutex
		notLaunched []string
	)
	skip := func(n *node, why string) {
		d.log.Warn("Not starting test", "test", n.test.Name, "reason", why)
		mu.Lock()
		notLaunched = append(notLaunched, n.test.Name)
		mu.Unlock()
	}

	p := pool.New().WithMaxGoroutines(d.parallel).WithContext(ctx)
	for _, n := range nodes {
		if why := d.stopReason(ctx, &settings); why != "" {
			skip(n, why)
			close(n.done)
			continue
		}
		p.Go(func(ctx context.Context) error {
			defer close(n.done)
			for _, pre := range n.prereqs {
				select {
				case <-pre.done:
				case <-ctx.Done():
				}
			}
			if why := d.stopReason(ctx, &settings); why != "" {
				skip(n, why)
				return nil
			}
			if pending := unfinished(n); len(pending) > 0 {
				skip(n, "prerequisites not run: "+strings.Join(pending, " "))
				return nil
			}

			test := n.test
			if failed := failedFixtures(n); len(failed) > 0 {
				test = test.WithFailedDependencies(failed)
			}
			unit := runner.NewUnit(runner.UnitConfig{
				Test:     test,
				Settings: &settings,
				Finder:   d.finder,
				Costs:    d.costs,
				Sink:     results,
				Counter:  counter,
				Logger:   d.log,
				Tracer:   d.tracer,
			})
			n.launched = true
			n.passed = unit.Run(ctx)
			return nil
		})
	}
	if err := p.Wait(); err != nil {
		return nil, fmt.Errorf("running tests: %w", err)
	}

	outcomes := results.Outcomes()
	sort.SliceStable(outcomes, func(i, j int) bool { return outcomes[i].Index < outcomes[j].Index })
	sort.Strings(notLaunched)

	res := &RunResult{
		Outcomes:    outcomes,
		NotLaunched: notLaunched,
		Duration:    time.Since(begin),
		Stopped:     settings.StopClock.Passed() || ctx.Err() != nil,
	}
	span.SetAttributes(
		attribute.Int("outcomes", len(outcomes)),
		attribute.Int("not_launched", len(notLaunched)),
	)
	return res, nil
}

func (d *Driver) stopReason(ctx context.Context, s *runner.Settings) string {
	switch {
	case ctx.Err() != nil:
		return "run interrupted"
	case s.StopClock != nil && s.StopClock.Passed():
		return "stop time passed"
	}
	return ""
}

// unfinished lists prerequisites that never ran. Waiting on them ended
// because the run was interrupted.
func unfinished(n *node) []string {
	var out []string
	for _, pre := range n.prereqs {
		select {
		case <-pre.done:
			if !pre.launched {
				out = append(out, pre.test.Name)
			}
		default:
			out = append(out, pre.test.Name)
		}
	}
	return out
}

// failedFixtures names the fixture setup prerequisites of n that did not pass.
func failedFixtures(n *node) []string {
	var out []string
	for _, pre := range n.prereqs {
		if pre.passed || !providesFixtureFor(pre.test, n.test) {
			continue
		}
		out = append(out, pre.test.Name)
	}
	return out
}

func providesFixtureFor(setup, test *types.TestConfig) bool {
	for _, f := range test.FixturesRequired {
		if slices.Contains(setup.FixturesSetup, f) {
			return true
		}
	}
	return false
}

// plan links every test to its prerequisites and returns the launch order.
func (d *Driver) plan() ([]*node, error) {
	nodes := make([]*node, len(d.tests))
	byName := make(map[string]*node, len(d.tests))
	providers := make(map[string][]*node)
	for i := range d.tests {
		n := &node{test: &d.tests[i], done: make(chan struct{})}
		nodes[i] = n
		byName[n.test.Name] = n
		for _, f := range n.test.FixturesSetup {
			providers[f] = append(providers[f], n)
		}
	}

	for _, n := range nodes {
		seen := make(map[*node]struct{})
		add := func(pre *node) {
			if pre == n {
				return
			}
			if _, ok := seen[pre]; ok {
				return
			}
			seen[pre] = struct{}{}
			n.prereqs = append(n.prereqs, pre)
		}
		for _, dep := range n.test.Depends {
			pre, ok := byName[dep]
			if !ok {
				return nil, fmt.Errorf("test %q depends on unknown test %q", n.test.Name, dep)
			}
			add(pre)
		}
		for _, f := range n.test.FixturesRequired {
			for _, pre := range providers[f] {
				add(pre)
			}
		}
	}

	for _, n := range nodes {
		if err := computeLevel(n, nil); err != nil {
			return nil, err
		}
	}

	failed := make(map[*node]bool, len(nodes))
	for _, n := range nodes {
		failed[n] = d.failedLastTime(n.test.Name)
	}

	order := slices.Clone(nodes)
	sort.SliceStable(order, func(i, j int) bool {
		a, b := order[i], order[j]
		if a.level != b.level {
			return a.level < b.level
		}
		if failed[a] != failed[b] {
			return failed[a]
		}
		ca, cb := d.cost(a.test), d.cost(b.test)
		if ca != cb {
			return ca > cb
		}
		return a.test.Index < b.test.Index
	})
	return order, nil
}

func (d *Driver) cost(test *types.TestConfig) float64 {
	if e, ok := d.costs.Get(test.Name); ok {
		return e.Cost
	}
	return test.Cost
}

// computeLevel sets the length of the longest prerequisite chain below n.
func computeLevel(n *node, path []string) error {
	switch n.visit {
	case 2:
		return nil
	case 1:
		return fmt.Errorf("%w: %s", errDependencyCycle, strings.Join(append(path, n.test.Name), " -> "))
	}
	n.visit = 1
	for _, pre := range n.prereqs {
		if err := computeLevel(pre, append(path, n.test.Name)); err != nil {
			return err
		}
		n.level = max(n.level, pre.level+1)
	}
	n.visit = 2
	return nil
}
