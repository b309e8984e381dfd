package runner

import (
	"fmt"
	"strings"
	"time"

	"github.com/ethereum-optimism/infra/op-runtest/types"
)

const logTimeLayout = "Jan 02 15:04 MST"

// logRecord collects the log file entry of one attempt so it can be written
// in a single call, keeping concurrent units from interleaving.
type logRecord struct {
	b strings.Builder
}

func (r *logRecord) line(format string, args ...any) {
	fmt.Fprintf(&r.b, format, args...)
	r.b.WriteString("\n")
}

// top describes the attempt and holds the complete captured output.
func (r *logRecord) top(test *types.TestConfig, total int, command string, args []string, start time.Time, output string) {
	r.line("%d/%d Testing: %s", test.Index, total, test.Name)
	r.line("%d/%d Test: %s", test.Index, total, test.Name)
	r.b.WriteString(quoteCommand(command, args))
	r.b.WriteString("\n")
	r.line("Directory: %s", test.Directory)
	r.line("\"%s\" start time: %s", test.Name, start.Format(logTimeLayout))
	r.line("Output:")
	r.line(logSeparator)
	r.b.WriteString(output)
	r.line(endOfOutput)
}

// testTime records the console formatted duration.
func (r *logRecord) testTime(elapsed string) {
	r.line("Test time = %s", elapsed)
}

// bottom holds the verdict and timing.
func (r *logRecord) bottom(test *types.TestConfig, status types.Status, reason string, end time.Time, elapsed time.Duration) {
	pass := status == types.StatusCompleted || status == types.StatusNotRun
	r.line(logSeparator)
	switch {
	case reason != "" && pass:
		r.line("Test Pass Reason:\n%s", reason)
	case reason != "":
		r.line("Test Fail Reason:\n%s", reason)
	case pass:
		r.line("Test Passed.")
	default:
		r.line("Test Failed.")
	}
	r.line("\"%s\" end time: %s", test.Name, end.Format(logTimeLayout))
	r.line("\"%s\" time elapsed: %s", test.Name, formatElapsed(elapsed))
	r.line(logSeparator)
	r.b.WriteString("\n")
}

func (r *logRecord) String() string {
	return r.b.String()
}

func quoteCommand(command string, args []string) string {
	var b strings.Builder
	b.WriteString("Command: \"")
	b.WriteString(command)
	b.WriteString("\"")
	for _, a := range args {
		b.WriteString(" \"")
		b.WriteString(a)
		b.WriteString("\"")
	}
	return b.String()
}

// fullCommandLine is the command as reported in outcomes.
func fullCommandLine(command string, args []string) string {
	var b strings.Builder
	b.WriteString(command)
	for _, a := range args {
		b.WriteString(" \"")
		b.WriteString(a)
		b.WriteString("\"")
	}
	return b.String()
}

// formatElapsed renders d as HH:MM:SS.
func formatElapsed(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	h := d / time.Hour
	d -= h * time.Hour
	m := d / time.Minute
	d -= m * time.Minute
	s := d / time.Second
	return fmt.Sprintf("%02d:%02d:%02d", h, m, s)
}

// formatSeconds renders d the way the console and log report test time.
func formatSeconds(d time.Duration) string {
	return fmt.Sprintf("%6.2f sec", float64(d.Milliseconds())/1000.0)
}
