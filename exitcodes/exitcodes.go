// Package exitcodes defines the standard exit codes used by op-runtest.
package exitcodes

// Exit code constants used by op-runtest
// These constants define the exit codes that the application uses to indicate
// various states when it exits:
//
// * Success (0): Used when every test passed or was skipped
// * TestFailure (1): Used when one or more tests failed, timed out, crashed or did not run
// * RuntimeErr (2): Used for runtime errors such as a bad manifest or an unwritable log directory
const (
	Success     = 0 // All tests pass
	TestFailure = 1 // Test failures
	RuntimeErr  = 2 // Runtime errors
)
