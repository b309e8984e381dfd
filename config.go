package runtest

import (
	"errors"
	"fmt"
	"io"
	"net"
	"path/filepath"
	"strconv"
	"time"

	"github.com/ethereum/go-ethereum/log"
	"github.com/urfave/cli/v2"

	opmetrics "github.com/ethereum-optimism/optimism/op-service/metrics"

	"github.com/ethereum-optimism/infra/op-runtest/costdata"
	"github.com/ethereum-optimism/infra/op-runtest/flags"
	"github.com/ethereum-optimism/infra/op-runtest/runner"
	"github.com/ethereum-optimism/infra/op-runtest/types"
)

// Config holds the application configuration
type Config struct {
	Manifest string
	Parallel int

	StopTime       string        // time of day after which no test starts
	TimeLimit      time.Duration // overall budget, zero for none
	DefaultTimeout time.Duration // for tests without their own timeout

	BuildConfig            string
	CompressOutput         bool
	CompressMemCheckOutput bool
	MemCheck               bool
	MemoryTester           string
	MemoryTesterArgs       []string

	MaxPassedOutput int
	MaxFailedOutput int
	OutputOnFailure bool

	LogDir          string
	CostFile        string
	RepeatUntilFail int

	HealthzAddr string
	MetricsAddr string

	Log log.Logger
}

// NewConfig creates a new Config from cli context
func NewConfig(ctx *cli.Context, log log.Logger) (*Config, error) {
	if err := flags.CheckRequired(ctx); err != nil {
		return nil, fmt.Errorf("missing required flags: %w", err)
	}

	metricsCfg := opmetrics.ReadCLIConfig(ctx)
	if err := metricsCfg.Check(); err != nil {
		return nil, fmt.Errorf("invalid metrics config: %w", err)
	}
	var metricsAddr string
	if metricsCfg.Enabled {
		metricsAddr = net.JoinHostPort(metricsCfg.ListenAddr, strconv.Itoa(metricsCfg.ListenPort))
	}

	cfg := &Config{
		Manifest:               ctx.String(flags.Manifest.Name),
		Parallel:               ctx.Int(flags.Parallel.Name),
		StopTime:               ctx.String(flags.StopTime.Name),
		TimeLimit:              ctx.Duration(flags.TimeLimit.Name),
		DefaultTimeout:         ctx.Duration(flags.Timeout.Name),
		BuildConfig:            ctx.String(flags.BuildConfig.Name),
		CompressOutput:         ctx.Bool(flags.CompressOutput.Name),
		CompressMemCheckOutput: ctx.Bool(flags.CompressMemCheckOutput.Name),
		MemCheck:               ctx.Bool(flags.MemCheck.Name),
		MemoryTester:           ctx.String(flags.MemoryTester.Name),
		MemoryTesterArgs:       ctx.StringSlice(flags.MemoryTesterArgs.Name),
		MaxPassedOutput:        ctx.Int(flags.MaxPassedOutput.Name),
		MaxFailedOutput:        ctx.Int(flags.MaxFailedOutput.Name),
		OutputOnFailure:        ctx.Bool(flags.OutputOnFailure.Name),
		LogDir:                 ctx.String(flags.LogDir.Name),
		CostFile:               ctx.String(flags.CostFile.Name),
		RepeatUntilFail:        ctx.Int(flags.RepeatUntilFail.Name),
		HealthzAddr:            ctx.String(flags.HealthzAddr.Name),
		MetricsAddr:            metricsAddr,
		Log:                    log,
	}
	if err := cfg.finalize(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// finalize validates the configuration and resolves its paths.
func (c *Config) finalize() error {
	if c.Manifest == "" {
		return errors.New("manifest is required")
	}
	if c.Parallel < 1 {
		return fmt.Errorf("parallel must be at least 1, got %d", c.Parallel)
	}
	if c.TimeLimit < 0 {
		return fmt.Errorf("negative time limit %s", c.TimeLimit)
	}
	if c.DefaultTimeout < 0 {
		return fmt.Errorf("negative timeout %s", c.DefaultTimeout)
	}
	if c.MaxPassedOutput < 0 || c.MaxFailedOutput < 0 {
		return errors.New("output limits must not be negative")
	}
	if c.RepeatUntilFail < 0 {
		return fmt.Errorf("negative repeat-until-fail %d", c.RepeatUntilFail)
	}
	if c.MemCheck && c.MemoryTester == "" {
		return errors.New("memcheck mode requires a memory tester")
	}
	if c.StopTime != "" {
		if _, err := runner.ParseStopTime(c.StopTime, time.Now()); err != nil {
			if c.Log != nil {
				c.Log.Warn("Ignoring invalid stop time", "stopTime", c.StopTime, "err", err)
			}
			c.StopTime = ""
		}
	}

	if c.LogDir == "" {
		c.LogDir = "logs"
	}
	var err error
	if c.Manifest, err = filepath.Abs(c.Manifest); err != nil {
		return fmt.Errorf("failed to resolve absolute path for manifest '%s': %w", c.Manifest, err)
	}
	if c.LogDir, err = filepath.Abs(c.LogDir); err != nil {
		return fmt.Errorf("failed to resolve absolute path for log directory '%s': %w", c.LogDir, err)
	}
	if c.CostFile == "" {
		c.CostFile = filepath.Join(c.LogDir, costdata.DefaultFileName)
	} else if c.CostFile, err = filepath.Abs(c.CostFile); err != nil {
		return fmt.Errorf("failed to resolve absolute path for cost file '%s': %w", c.CostFile, err)
	}
	return nil
}

// Settings builds the read-only settings shared by every unit of a run
// that starts at start.
func (c *Config) Settings(tests []types.TestConfig, start time.Time, console, logFile io.Writer) *runner.Settings {
	maxIndex, nameWidth := 0, 0
	for i := range tests {
		maxIndex = max(maxIndex, tests[i].Index)
		nameWidth = max(nameWidth, len(tests[i].Name))
	}

	return &runner.Settings{
		StopTime:               c.StopTime,
		NextDayStopTime:        runner.NextDayStop(c.StopTime, start),
		StopClock:              runner.NewStopClock(),
		Budget:                 runner.NewBudget(start, c.TimeLimit, nil),
		DefaultTimeout:         c.DefaultTimeout,
		CompressOutput:         c.CompressOutput,
		CompressMemCheckOutput: c.CompressMemCheckOutput,
		MemCheck:               c.MemCheck,
		MemoryTester:           c.MemoryTester,
		MemoryTesterArgs:       c.MemoryTesterArgs,
		ConfigType:             c.BuildConfig,
		MaxPassedOutput:        c.MaxPassedOutput,
		MaxFailedOutput:        c.MaxFailedOutput,
		OutputOnFailure:        c.OutputOnFailure,
		TotalTests:             len(tests),
		MaxIndex:               maxIndex,
		MaxTestNameWidth:       nameWidth,
		Console:                console,
		LogFile:                logFile,
	}
}
