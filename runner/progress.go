package runner

import (
	"fmt"
	"io"
	"strconv"
	"strings"
	"sync"

	"github.com/ethereum-optimism/infra/op-runtest/types"
)

// Progress writes the human readable console lines of a run.
type Progress struct {
	settings *Settings
}

// NewProgress creates a console writer for settings.Console.
func NewProgress(settings *Settings) *Progress {
	return &Progress{settings: settings}
}

func numWidth(n int) int {
	return len(strconv.Itoa(n))
}

// StartLine announces a test, e.g. "    Start  3: name".
func (p *Progress) StartLine(test *types.TestConfig) string {
	total := p.settings.TotalTests
	return fmt.Sprintf("%*s%*d: %s\n", 2*numWidth(total)+8, "Start ", numWidth(p.settings.MaxIndex), test.Index, test.Name)
}

// EndLine reports the verdict of an attempt. completed/total is replaced by
// blanks while further runs of the same test are pending.
func (p *Progress) EndLine(test *types.TestConfig, completed int, lastRun bool, label, elapsed string) string {
	var b strings.Builder
	w := numWidth(p.settings.TotalTests)
	if lastRun {
		fmt.Fprintf(&b, "%*d/%*d ", w, completed, w, p.settings.TotalTests)
	} else {
		fmt.Fprintf(&b, "%*s %*s ", w, "", w, "")
	}
	b.WriteString(p.settings.ModeLabel())
	fmt.Fprintf(&b, "%*s", 3+numWidth(p.settings.MaxIndex), fmt.Sprintf(" #%d:", test.Index))
	b.WriteString(" ")
	b.WriteString(dottedName(test.Name, p.settings.MaxTestNameWidth+4))
	b.WriteString(label)
	b.WriteString(elapsed)
	b.WriteString("\n")
	return b.String()
}

// dottedName pads "name " with dots, or cuts it, to exactly width bytes.
func dottedName(name string, width int) string {
	out := name + " "
	if len(out) >= width {
		return out[:width]
	}
	return out + strings.Repeat(".", width-len(out))
}

// Write sends s to the console in one call.
func (p *Progress) Write(s string) {
	_, _ = io.WriteString(p.settings.Console, s)
}

// statusLabel is the console verdict that precedes the elapsed time.
func statusLabel(o *types.TestOutcome, reason string) string {
	switch o.Status {
	case types.StatusCompleted:
		return "   Passed  "
	case types.StatusFailed:
		return "***Failed  " + reason
	case types.StatusTimeout:
		return "***Timeout "
	case types.StatusSegFault:
		return "***Exception: SegFault"
	case types.StatusIllegalInstruction:
		return "***Exception: Illegal"
	case types.StatusInterrupted:
		return "***Exception: Interrupt"
	case types.StatusNumericalFault:
		return "***Exception: Numerical"
	case types.StatusOtherFault:
		return "***Exception: " + o.ExceptionStatus
	}
	switch {
	case o.Skipped():
		return "***Skipped "
	case o.CompletionStatus == types.CompletionDisabled:
		return "***Not Run (Disabled) "
	default:
		return "***Not Run "
	}
}

// SyncWriter serialises writes to an underlying writer.
type SyncWriter struct {
	mu sync.Mutex
	w  io.Writer
}

// NewSyncWriter wraps w.
func NewSyncWriter(w io.Writer) *SyncWriter {
	return &SyncWriter{w: w}
}

func (s *SyncWriter) Write(p []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.w.Write(p)
}

// Counter numbers finished tests for the completed/total column. Attempts
// followed by a rerun take no number.
type Counter struct {
	mu sync.Mutex
	n  int
}

// Next counts one more finished attempt and returns the new total.
func (c *Counter) Next() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.n++
	return c.n
}

// Value is the current count.
func (c *Counter) Value() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.n
}
