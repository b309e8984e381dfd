package types

import (
	"strconv"
	"strings"
	"time"
)

const skipPrefix = "SKIP_RETURN_CODE="

// TestOutcome is the classified result of the last attempt of a test. Once
// appended to a result list it is owned by the aggregator.
type TestOutcome struct {
	Name             string
	Index            int
	Path             string
	FullCommandLine  string
	Status           Status
	ReturnValue      int
	CompletionStatus string
	Reason           string
	ExceptionStatus  string
	Output           string
	CompressedOutput bool // Output holds base64 deflate data
	Measurement      string
	ExecutionTime    time.Duration
	Config           *TestConfig
}

// Passed reports whether the attempt completed successfully.
func (o *TestOutcome) Passed() bool {
	return o.Status == StatusCompleted
}

// Skipped reports whether the test asked to be skipped through its return code.
func (o *TestOutcome) Skipped() bool {
	return o.Status == StatusNotRun && strings.HasPrefix(o.CompletionStatus, skipPrefix)
}

// SkipCompletionStatus formats the completion text for a skip-return-code match.
func SkipCompletionStatus(code int) string {
	return skipPrefix + strconv.Itoa(code)
}
