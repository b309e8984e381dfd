package runner

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/acarl005/stripansi"
	"github.com/ethereum/go-ethereum/log"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/ethereum-optimism/infra/op-runtest/metrics"
	"github.com/ethereum-optimism/infra/op-runtest/types"
)

// UnitConfig wires an execution unit to its collaborators.
type UnitConfig struct {
	Test     *types.TestConfig
	Settings *Settings
	Finder   ExecutableFinder
	Costs    *CostTracker
	Sink     OutcomeSink
	Counter  *Counter
	Logger   log.Logger
	Tracer   trace.Tracer
}

// Unit runs one test, including its run-until-fail restarts, and appends the
// outcome of the last attempt to the sink.
type Unit struct {
	test      *types.TestConfig
	settings  *Settings
	finder    ExecutableFinder
	costs     *CostTracker
	sink      OutcomeSink
	counter   *Counter
	log       log.Logger
	tracer    trace.Tracer
	resolver  *TimeoutResolver
	collector *OutputCollector
	progress  *Progress
	policy    *RerunPolicy

	state          types.AttemptState
	stopTimePassed bool
}

// attempt is the state of one spawn-to-terminate cycle.
type attempt struct {
	output     strings.Builder
	compressed string
	ratio      float64
	start      time.Time
	proc       *process
	triggers   triggerState
	command    string
	args       []string
	rerun      bool // another attempt follows this one
}

func (a *attempt) release() {
	if a.proc != nil {
		a.proc.Release()
	}
}

// NewUnit creates a unit for cfg.Test.
func NewUnit(cfg UnitConfig) *Unit {
	settings := cfg.Settings
	if settings == nil {
		settings = &Settings{}
	}
	s := settings.withDefaults()

	logger := cfg.Logger
	if logger == nil {
		logger = log.NewLogger(log.DiscardHandler())
	}
	logger = logger.New("test", cfg.Test.Name, "index", cfg.Test.Index)

	finder := cfg.Finder
	if finder == nil {
		finder = NewExecutableResolver(s.ConfigType)
	}
	costs := cfg.Costs
	if costs == nil {
		costs = NewCostTracker()
	}
	costs.Seed(cfg.Test.Name, CostEntry{Cost: cfg.Test.Cost, PreviousRuns: cfg.Test.PreviousRuns})
	sink := cfg.Sink
	if sink == nil {
		sink = NewResults()
	}
	counter := cfg.Counter
	if counter == nil {
		counter = &Counter{}
	}
	tracer := cfg.Tracer
	if tracer == nil {
		tracer = otel.Tracer("test unit")
	}

	return &Unit{
		test:      cfg.Test,
		settings:  &s,
		finder:    finder,
		costs:     costs,
		sink:      sink,
		counter:   counter,
		log:       logger,
		tracer:    tracer,
		resolver:  NewTimeoutResolver(&s, logger),
		collector: NewOutputCollector(logger),
		progress:  NewProgress(&s),
		policy:    NewRerunPolicy(cfg.Test.Runs(), cfg.Test.RunUntilFail),
		state:     types.StateNotStarted,
	}
}

// State is where the current or last attempt of the unit stands.
func (u *Unit) State() types.AttemptState {
	return u.state
}

func (u *Unit) setState(state types.AttemptState) {
	u.log.Trace("Attempt state changed", "from", u.state, "to", state)
	u.state = state
}

// StopTimePassed reports whether an attempt of this unit found the global
// stop time passed. No further tests should be started once it is true.
func (u *Unit) StopTimePassed() bool {
	return u.stopTimePassed
}

// Run executes attempts until the rerun policy is satisfied. It reports
// whether the last attempt passed or was skipped.
func (u *Unit) Run(ctx context.Context) bool {
	for {
		outcome, passed, rerun := u.runAttempt(ctx)
		if rerun {
			metrics.RecordRerun()
			u.log.Debug("Running test again", "runsLeft", u.policy.RunsLeft())
			continue
		}
		u.sink.Append(outcome)
		return passed
	}
}

func (u *Unit) newOutcome() *types.TestOutcome {
	return &types.TestOutcome{
		Name:             u.test.Name,
		Index:            u.test.Index,
		Path:             u.test.Directory,
		Status:           types.StatusNotRun,
		ReturnValue:      -1,
		CompletionStatus: types.CompletionFailedToStart,
		Config:           u.test,
	}
}

func (u *Unit) runAttempt(ctx context.Context) (outcome *types.TestOutcome, passed, rerun bool) {
	_, span := u.tracer.Start(ctx, fmt.Sprintf("test %s", u.test.Name))
	defer span.End()

	a := &attempt{ratio: initialCompressionRatio}
	defer a.release()
	u.setState(types.StateNotStarted)

	outcome = u.newOutcome()
	defer func() {
		if r := recover(); r != nil {
			u.log.Error("Test attempt panicked", "panic", r)
			metrics.RecordError("attempt_panic")
			span.SetStatus(codes.Error, "panic")
			outcome = u.newOutcome()
			outcome.Output = fmt.Sprintf("panic: %v", r)
			passed = false
			rerun = false
		}
	}()

	u.progress.Write(u.progress.StartLine(u.test))

	started := u.start(a, outcome)
	if started {
		stop := context.AfterFunc(ctx, a.proc.Interrupt)
		defer stop()
		for u.collector.CheckOutput(a.proc, &a.output, &a.triggers) {
		}
	}
	passed = u.end(ctx, a, outcome, started)

	span.SetAttributes(
		attribute.String("status", string(outcome.Status)),
		attribute.Int("return_value", outcome.ReturnValue),
		attribute.String("state", string(u.state)),
	)
	if u.state.PreSpawn() {
		span.SetStatus(codes.Error, "not started: "+string(u.state))
	} else if !passed {
		span.SetStatus(codes.Error, outcome.CompletionStatus)
	}
	return outcome, passed, a.rerun
}

// notStarted records a terminal pre-spawn state on the outcome.
func (u *Unit) notStarted(state types.AttemptState, outcome *types.TestOutcome, completion, msg string) bool {
	u.setState(state)
	u.log.Error(msg, "state", state)
	_, _ = fmt.Fprintln(u.settings.LogFile, msg)
	outcome.Output = msg
	outcome.FullCommandLine = ""
	outcome.CompletionStatus = completion
	outcome.Status = types.StatusNotRun
	return false
}

// start runs the pre-spawn checks and spawns the process. It returns false
// when no process was started.
func (u *Unit) start(a *attempt, outcome *types.TestOutcome) bool {
	test := u.test

	if len(test.FailedDependencies) > 0 {
		msg := "Failed test dependencies: " + strings.Join(test.FailedDependencies, " ")
		return u.notStarted(types.StateBlockedByDependency, outcome, types.CompletionFixtureFailed, msg)
	}

	if test.Executable() == types.NotAvailableCommand {
		msg := "Test not available without configuration.  (Missing \"-C <config>\"?)"
		if u.settings.ConfigType != "" {
			msg = fmt.Sprintf("Test not available in configuration %q.", u.settings.ConfigType)
		}
		return u.notStarted(types.StateMisconfigured, outcome, types.CompletionMissingConfig, msg)
	}

	for _, file := range test.RequiredFiles {
		if _, err := os.Stat(file); err != nil {
			return u.notStarted(types.StateMissingRequiredFile, outcome, types.CompletionRequiredFiles, "Unable to find required file: "+file)
		}
	}

	if err := u.computeArguments(a); err != nil {
		u.log.Debug("Executable lookup failed", "err", err)
		return u.notStarted(types.StateMissingExecutable, outcome, types.CompletionMissingExecutable, "Unable to find executable: "+test.Executable())
	}
	outcome.FullCommandLine = fullCommandLine(a.command, a.args)

	if test.Disabled {
		return u.notStarted(types.StateDisabled, outcome, types.CompletionDisabled, "Disabled")
	}

	a.start = u.settings.Now()
	resolved, stopped := u.resolver.Resolve(test)
	if stopped {
		u.setState(types.StateStopTimePassed)
		u.stopTimePassed = true
		metrics.RecordStopTimePassed()
		return false
	}

	timeout := u.resolver.EffectiveTimeout(resolved, test.ExplicitTimeout)
	u.log.Debug("Test timeout computed", "timeout", FormatTimeout(timeout), "command", outcome.FullCommandLine)

	a.triggers = triggerState{
		rules:     append([]types.RegexRule(nil), test.TimeoutRegex...),
		alternate: test.AlternateTimeout,
	}
	a.proc = newProcess(test.Directory, a.command, a.args, test.Environment)
	a.proc.SetTimeout(timeout)
	if err := a.proc.Start(); err != nil {
		u.log.Error("Failed to start test", "err", err)
		metrics.RecordErrorDetails("spawn", err)
		outcome.Output = err.Error()
		return false
	}
	u.setState(types.StateRunning)
	return true
}

// computeArguments resolves the command and argument vector of the attempt.
// In memcheck mode the memory tester runs the test executable.
func (u *Unit) computeArguments(a *attempt) error {
	exe, err := u.finder.FindExecutable(u.test.Directory, u.test.Executable())
	if err != nil {
		return err
	}
	if !u.settings.MemCheck {
		a.command = exe
		a.args = append([]string(nil), u.test.Args()...)
		return nil
	}
	if u.settings.MemoryTester == "" {
		return fmt.Errorf("no memory tester configured")
	}
	a.command = u.settings.MemoryTester
	a.args = append(append(append([]string(nil), u.settings.MemoryTesterArgs...), exe), u.test.Args()...)
	return nil
}

// end classifies the attempt, reports it and fills the outcome. It reports
// whether the attempt passed or was skipped.
func (u *Unit) end(ctx context.Context, a *attempt, outcome *types.TestOutcome, started bool) bool {
	s := u.settings
	output := a.output.String()

	var elapsed time.Duration
	var result ProcessResult
	if started {
		elapsed = a.proc.TotalTime()
		result = a.proc.Result()
		u.setState(types.StateFinished)
	}

	if started && s.CompressionEnabled() {
		encoded, ratio, ok, err := outputCompressor(output)
		if err != nil {
			u.log.Warn("Error during output compression. Sending uncompressed output.", "err", err)
			metrics.RecordErrorDetails("compress", err)
		} else {
			a.compressed = encoded
			if ok {
				a.ratio = ratio
				metrics.RecordCompression(ratio)
			}
		}
	}

	record := &logRecord{}
	record.top(u.test, s.TotalTests, a.command, a.args, a.start, output)

	var cls Classification
	if started {
		cls = Classify(ClassifyInput{
			Result:             result,
			Output:             output,
			RequiredRegex:      u.test.RequiredRegex,
			ErrorRegex:         u.test.ErrorRegex,
			FailedDependencies: u.test.FailedDependencies,
			SkipReturnCode:     u.test.SkipReturnCode,
			WillFail:           u.test.WillFail,
		})
		outcome.Status = cls.Status
		outcome.ExceptionStatus = cls.ExceptionStatus
		if cls.Skipped {
			outcome.CompletionStatus = cls.CompletionStatus
		}
	}

	// only the final attempt of a test takes a completed/total number
	a.rerun = u.policy.NeedsToRerun(outcome.Status) && ctx.Err() == nil && !s.StopClock.Passed() && u.policy.StartAgain()
	completed := 0
	if !a.rerun {
		completed = u.counter.Next()
	}
	elapsedText := formatSeconds(elapsed)
	u.progress.Write(u.progress.EndLine(u.test, completed, !a.rerun, statusLabel(outcome, cls.Reason), elapsedText))

	if s.OutputOnFailure && started && (outcome.Status == types.StatusFailed || outcome.Status == types.StatusTimeout || outcome.Status.IsFault()) {
		u.progress.Write(stripansi.Strip(output) + "\n")
	}
	record.testTime(elapsedText)

	measurement, output := extractMeasurements(output)
	if !s.MemCheck && started {
		limit := s.MaxFailedOutput
		if outcome.Status == types.StatusCompleted {
			limit = s.MaxPassedOutput
		}
		output = truncateOutput(output, limit)
	}

	outcome.Reason = cls.Reason
	record.bottom(u.test, outcome.Status, outcome.Reason, s.Now(), elapsed)
	if _, err := io.WriteString(s.LogFile, record.String()); err != nil {
		u.log.Warn("Failed to write test log record", "err", err)
		metrics.RecordErrorDetails("log_record", err)
	}

	outcome.Measurement = measurement
	if started {
		compress := s.CompressionEnabled() && a.compressed != "" && a.ratio < 1
		if compress {
			outcome.Output = a.compressed
		} else {
			outcome.Output = output
		}
		outcome.CompressedOutput = compress
		outcome.ReturnValue = result.ExitCode
		if !cls.Skipped {
			outcome.CompletionStatus = types.CompletionCompleted
		}
		outcome.ExecutionTime = elapsed
		if entry, ok := u.costs.Record(u.test.Name, outcome.Status, elapsed); ok {
			u.log.Debug("Updated test cost", "cost", entry.Cost, "previousRuns", entry.PreviousRuns)
		}
	}

	metrics.RecordOutcome(s.ModeLabel(), outcome.Status, elapsed)
	u.log.Info("Test finished", "status", outcome.Status, "completion", outcome.CompletionStatus, "elapsed", elapsed)
	return outcome.Status == types.StatusCompleted || cls.Skipped
}
