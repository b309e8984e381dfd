// Package runner provides the per-test execution kernel.
//
// The main components are:
//   - Unit: runs the attempts of one test end to end and owns its state machine
//   - TimeoutResolver: derives an attempt timeout from the test, the stop time and the run budget
//   - OutputCollector: polls process output in 100ms slices and applies timeout triggers
//   - Classify: reduces exit state, output and regex configuration into a terminal status
//   - compressOutput: deflate + base64 encoding of captured output for storage
//   - RerunPolicy and CostTracker: run-until-fail bookkeeping and rolling cost averages
//
// Units share only read-only Settings, the stop clock, the cost tracker and the
// outcome sink, so a caller may run many of them concurrently.
package runner
