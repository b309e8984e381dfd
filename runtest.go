// Package runtest runs the tests declared in a manifest as external
// processes and reports their classified outcomes.
package runtest

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/ethereum-optimism/infra/op-runtest/costdata"
	"github.com/ethereum-optimism/infra/op-runtest/logging"
	"github.com/ethereum-optimism/infra/op-runtest/manifest"
	"github.com/ethereum-optimism/infra/op-runtest/metrics"
	"github.com/ethereum-optimism/infra/op-runtest/runner"
	"github.com/ethereum-optimism/infra/op-runtest/service"
	"github.com/ethereum-optimism/infra/op-runtest/types"
	"github.com/ethereum-optimism/optimism/op-service/cliapp"
)

// runTest implements the cliapp.Lifecycle interface.
var _ cliapp.Lifecycle = &runTest{}

// runTest executes one run of the manifest and exits.
type runTest struct {
	config  *Config
	version string
	tests   []types.TestConfig
	costs   *costdata.Data
	service *service.Service
	stdout  io.Writer
	finder  runner.ExecutableFinder

	mu      sync.Mutex
	runID   string
	result  *RunResult
	summary Summary
	cancel  context.CancelFunc

	running atomic.Bool

	shutdownCallback func(error) // Callback to signal application shutdown
}

// New loads the manifest and the cost history of config.
func New(config *Config, version string, shutdownCallback func(error)) (*runTest, error) {
	if config == nil {
		return nil, errors.New("config is required")
	}

	tests, err := manifest.Load(config.Manifest)
	if err != nil {
		return nil, fmt.Errorf("failed to load manifest: %w", err)
	}

	costs, err := costdata.Load(config.CostFile)
	if err != nil {
		config.Log.Warn("Ignoring unreadable cost file", "path", config.CostFile, "err", err)
		metrics.RecordErrorDetails("cost_file", err)
		costs = costdata.New()
	}
	costs.Apply(tests)

	if config.RepeatUntilFail > 0 {
		for i := range tests {
			tests[i].RepeatCount = config.RepeatUntilFail
			tests[i].RunUntilFail = true
		}
	}

	config.Log.Debug("Creating test run",
		"manifest", config.Manifest,
		"tests", len(tests),
		"parallel", config.Parallel,
		"logDir", config.LogDir)

	if shutdownCallback == nil {
		shutdownCallback = func(error) {}
	}
	return &runTest{
		config:  config,
		version: version,
		tests:   tests,
		costs:   costs,
		service: service.New(service.Config{
			HealthzAddr: config.HealthzAddr,
			MetricsAddr: config.MetricsAddr,
		}, config.Log),
		stdout:           os.Stdout,
		finder:           runner.NewExecutableResolver(config.BuildConfig),
		shutdownCallback: shutdownCallback,
	}, nil
}

// Start runs every test once and returns when the run is over.
// Start implements the cliapp.Lifecycle interface.
func (r *runTest) Start(ctx context.Context) error {
	r.running.Store(true)

	ctx, cancel := context.WithCancel(ctx)
	r.mu.Lock()
	r.cancel = cancel
	r.mu.Unlock()
	defer cancel()

	if err := r.service.Start(ctx); err != nil {
		return NewRuntimeError(err)
	}

	if err := r.runTests(ctx); err != nil {
		r.config.Log.Error("Runtime error running tests", "error", err)
		return err
	}

	r.mu.Lock()
	summary := r.summary
	r.mu.Unlock()
	if !summary.Success() {
		r.config.Log.Warn("Test run completed with failures, returning exit code 1")
		return NewTestFailureError(summary.FailedNames())
	}

	r.config.Log.Info("Tests completed, exiting")
	go func() {
		r.shutdownCallback(nil)
	}()
	return nil
}

// runTests performs the run and reports it.
func (r *runTest) runTests(ctx context.Context) error {
	runID := uuid.New().String()
	start := time.Now()
	r.config.Log.Info("Running all tests...", "run_id", runID, "tests", len(r.tests))

	logs, err := logging.NewRunLogs(r.config.LogDir, runID, r.config.MemCheck, start)
	if err != nil {
		return NewRuntimeError(fmt.Errorf("failed to create run logs: %w", err))
	}

	tracker := runner.NewCostTracker()
	r.costs.Seed(tracker)

	driver := NewDriver(DriverConfig{
		Tests:    r.tests,
		Settings: r.config.Settings(r.tests, start, r.stdout, logs.Writer()),
		Parallel: r.config.Parallel,
		Finder:   r.finder,
		Costs:    tracker,
		Log:      r.config.Log,

		FailedLastTime: r.costs.FailedLastTime,
	})
	result, err := driver.Run(ctx)
	if err != nil {
		_ = logs.Close(time.Now())
		return NewRuntimeError(err)
	}

	for _, o := range result.Outcomes {
		if _, err := logs.WriteOutcome(o); err != nil {
			r.config.Log.Warn("Failed to write test output", "test", o.Name, "err", err)
			metrics.RecordErrorDetails("outcome_log", err)
		}
	}
	if err := logs.Close(time.Now()); err != nil {
		r.config.Log.Warn("Failed to close run log", "err", err)
		metrics.RecordErrorDetails("run_log", err)
	}

	summary := Summarize(result)
	WriteResultsTable(r.stdout, runID, result, summary)
	WriteSummary(r.stdout, result, summary)

	r.costs.Update(tracker.Snapshot(), result.Outcomes)
	if err := r.costs.Save(r.config.CostFile); err != nil {
		r.config.Log.Warn("Failed to save cost file", "path", r.config.CostFile, "err", err)
		metrics.RecordErrorDetails("cost_file", err)
	}

	status := "pass"
	if !summary.Success() {
		status = "fail"
	}
	metrics.RecordRun(runID, status, summary.Total, summary.Passed, len(summary.Failed),
		len(summary.DidNotRun)+len(summary.NotLaunched), result.Duration)

	r.mu.Lock()
	r.runID = runID
	r.result = result
	r.summary = summary
	r.mu.Unlock()

	r.config.Log.Info("Test run completed", "run_id", runID, "status", status, "logs", logs.Dir())
	return nil
}

// Stop interrupts a running test run.
// Stop implements the cliapp.Lifecycle interface.
func (r *runTest) Stop(ctx context.Context) error {
	r.config.Log.Info("Stopping op-runtest")
	if !r.running.Swap(false) {
		r.config.Log.Debug("Service already stopped, nothing to do")
		return nil
	}

	r.mu.Lock()
	if r.cancel != nil {
		r.cancel()
	}
	r.mu.Unlock()

	if err := r.service.Shutdown(ctx); err != nil {
		return fmt.Errorf("failed to stop service: %w", err)
	}
	r.config.Log.Info("op-runtest stopped successfully")
	return nil
}

// Stopped implements the cliapp.Lifecycle interface.
func (r *runTest) Stopped() bool {
	return !r.running.Load()
}

// Result returns the last run, or nil before the first run finished.
func (r *runTest) Result() (string, *RunResult) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.runID, r.result
}
