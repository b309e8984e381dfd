package runner

import "time"

const (
	// OutputPollSlice bounds every wait on process output.
	OutputPollSlice = 100 * time.Millisecond

	// BudgetSafetyMargin is kept free at the end of a finite run budget.
	BudgetSafetyMargin = 2 * time.Minute

	// MinimumTimeout is the smallest timeout handed to a spawned process.
	MinimumTimeout = time.Second

	// DefaultMaxPassedOutput is the stored output limit for passing tests.
	DefaultMaxPassedOutput = 1024

	// DefaultMaxFailedOutput is the stored output limit for failing tests.
	DefaultMaxFailedOutput = 300 * 1024

	// DefaultMaxTestNameWidth pads test names on the console.
	DefaultMaxTestNameWidth = 30

	// FullOutputMarker disables truncation when it appears in the output.
	FullOutputMarker = "CTEST_FULL_OUTPUT"

	// initialCompressionRatio is above 1 so output stays raw until a compression succeeds.
	initialCompressionRatio = 2.0

	logSeparator = "----------------------------------------------------------"
	endOfOutput  = "<end of output>"
)
