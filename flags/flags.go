package flags

import (
	"fmt"

	"github.com/urfave/cli/v2"

	opservice "github.com/ethereum-optimism/optimism/op-service"
	oplog "github.com/ethereum-optimism/optimism/op-service/log"
	opmetrics "github.com/ethereum-optimism/optimism/op-service/metrics"
)

const EnvVarPrefix = "OP_RUNTEST"

var (
	Manifest = &cli.StringFlag{
		Name:     "manifest",
		Value:    "",
		Required: true,
		EnvVars:  opservice.PrefixEnvVar(EnvVarPrefix, "MANIFEST"),
		Usage:    "Path to the test manifest (eg. 'tests.yaml' or 'tests.toml')",
	}
	Parallel = &cli.IntFlag{
		Name:    "parallel",
		Value:   1,
		EnvVars: opservice.PrefixEnvVar(EnvVarPrefix, "PARALLEL"),
		Usage:   "Number of tests to run at the same time",
	}
	StopTime = &cli.StringFlag{
		Name:    "stop-time",
		Value:   "",
		EnvVars: opservice.PrefixEnvVar(EnvVarPrefix, "STOP_TIME"),
		Usage:   "Time of day after which no more tests are started (eg. '23:30' or '23:30:00 -0500')",
	}
	TimeLimit = &cli.DurationFlag{
		Name:    "time-limit",
		Value:   0,
		EnvVars: opservice.PrefixEnvVar(EnvVarPrefix, "TIME_LIMIT"),
		Usage:   "Overall wall-clock budget of the run. Set to 0 for no limit.",
	}
	Timeout = &cli.DurationFlag{
		Name:    "timeout",
		Value:   0,
		EnvVars: opservice.PrefixEnvVar(EnvVarPrefix, "TIMEOUT"),
		Usage:   "Timeout for tests that do not declare one. Set to 0 for none.",
	}
	BuildConfig = &cli.StringFlag{
		Name:    "build-config",
		Value:   "",
		EnvVars: opservice.PrefixEnvVar(EnvVarPrefix, "BUILD_CONFIG"),
		Usage:   "Build configuration to test (eg. 'Debug' or 'Release')",
	}
	CompressOutput = &cli.BoolFlag{
		Name:    "compress-output",
		Value:   false,
		EnvVars: opservice.PrefixEnvVar(EnvVarPrefix, "COMPRESS_OUTPUT"),
		Usage:   "Store test output deflated and base64 encoded when that makes it smaller",
	}
	CompressMemCheckOutput = &cli.BoolFlag{
		Name:    "compress-memcheck-output",
		Value:   false,
		EnvVars: opservice.PrefixEnvVar(EnvVarPrefix, "COMPRESS_MEMCHECK_OUTPUT"),
		Usage:   "Store memory check output deflated and base64 encoded when that makes it smaller",
	}
	MemCheck = &cli.BoolFlag{
		Name:    "memcheck",
		Value:   false,
		EnvVars: opservice.PrefixEnvVar(EnvVarPrefix, "MEMCHECK"),
		Usage:   "Run every test under the memory tester",
	}
	MemoryTester = &cli.StringFlag{
		Name:    "memory-tester",
		Value:   "",
		EnvVars: opservice.PrefixEnvVar(EnvVarPrefix, "MEMORY_TESTER"),
		Usage:   "Memory tester command used in memcheck mode (eg. 'valgrind')",
	}
	MemoryTesterArgs = &cli.StringSliceFlag{
		Name:    "memory-tester-arg",
		EnvVars: opservice.PrefixEnvVar(EnvVarPrefix, "MEMORY_TESTER_ARG"),
		Usage:   "Argument passed to the memory tester before the test command. Can be repeated.",
	}
	MaxPassedOutput = &cli.IntFlag{
		Name:    "max-passed-output",
		Value:   1024,
		EnvVars: opservice.PrefixEnvVar(EnvVarPrefix, "MAX_PASSED_OUTPUT"),
		Usage:   "Bytes of output kept for passing tests",
	}
	MaxFailedOutput = &cli.IntFlag{
		Name:    "max-failed-output",
		Value:   300 * 1024,
		EnvVars: opservice.PrefixEnvVar(EnvVarPrefix, "MAX_FAILED_OUTPUT"),
		Usage:   "Bytes of output kept for failing tests",
	}
	OutputOnFailure = &cli.BoolFlag{
		Name:    "output-on-failure",
		Value:   false,
		EnvVars: opservice.PrefixEnvVar(EnvVarPrefix, "OUTPUT_ON_FAILURE"),
		Usage:   "Print the output of failing tests to the console",
	}
	LogDir = &cli.StringFlag{
		Name:    "log-dir",
		Value:   "logs",
		EnvVars: opservice.PrefixEnvVar(EnvVarPrefix, "LOG_DIR"),
		Usage:   "Directory to store test logs. Defaults to 'logs' if not specified.",
	}
	CostFile = &cli.StringFlag{
		Name:    "cost-file",
		Value:   "",
		EnvVars: opservice.PrefixEnvVar(EnvVarPrefix, "COST_FILE"),
		Usage:   "File keeping test costs between runs. Defaults to 'CostData.yaml' in the log directory.",
	}
	RepeatUntilFail = &cli.IntFlag{
		Name:    "repeat-until-fail",
		Value:   0,
		EnvVars: opservice.PrefixEnvVar(EnvVarPrefix, "REPEAT_UNTIL_FAIL"),
		Usage:   "Run every test up to this many times, stopping at the first failure. Set to 0 to use the manifest.",
	}
	HealthzAddr = &cli.StringFlag{
		Name:    "healthz-addr",
		Value:   "",
		EnvVars: opservice.PrefixEnvVar(EnvVarPrefix, "HEALTHZ_ADDR"),
		Usage:   "Address of the healthz server (eg. '0.0.0.0:8080'). Disabled when empty.",
	}
)

var requiredFlags = []cli.Flag{
	Manifest,
}

var optionalFlags = []cli.Flag{
	Parallel,
	StopTime,
	TimeLimit,
	Timeout,
	BuildConfig,
	CompressOutput,
	CompressMemCheckOutput,
	MemCheck,
	MemoryTester,
	MemoryTesterArgs,
	MaxPassedOutput,
	MaxFailedOutput,
	OutputOnFailure,
	LogDir,
	CostFile,
	RepeatUntilFail,
	HealthzAddr,
}
var Flags []cli.Flag

func init() {
	optionalFlags = append(optionalFlags, oplog.CLIFlags(EnvVarPrefix)...)
	optionalFlags = append(optionalFlags, opmetrics.CLIFlags(EnvVarPrefix)...)

	Flags = append(requiredFlags, optionalFlags...)
}

func CheckRequired(ctx *cli.Context) error {
	for _, f := range requiredFlags {
		if !ctx.IsSet(f.Names()[0]) {
			return fmt.Errorf("flag %s is required", f.Names()[0])
		}
	}
	return nil
}
