package runtest

import (
	"fmt"
	"io"
	"math"
	"strings"
	"time"

	"github.com/acarl005/stripansi"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"

	"github.com/ethereum-optimism/infra/op-runtest/types"
)

const maxErrorWidth = 80

// Summary counts the outcomes of a run. Skipped and disabled tests count as
// passed but are listed as not run.
type Summary struct {
	Total       int
	Passed      int
	Failed      []*types.TestOutcome
	DidNotRun   []*types.TestOutcome
	NotLaunched []string
}

func Summarize(res *RunResult) Summary {
	s := Summary{
		Total:       len(res.Outcomes) + len(res.NotLaunched),
		NotLaunched: res.NotLaunched,
	}
	for _, o := range res.Outcomes {
		switch {
		case o.Passed():
			s.Passed++
		case notRunOnPurpose(o):
			s.Passed++
			s.DidNotRun = append(s.DidNotRun, o)
		default:
			s.Failed = append(s.Failed, o)
		}
	}
	return s
}

// Success reports whether every test passed or did not run on purpose.
func (s Summary) Success() bool {
	return len(s.Failed) == 0 && len(s.NotLaunched) == 0
}

// FailedNames lists the failed and never launched tests.
func (s Summary) FailedNames() []string {
	names := make([]string, 0, len(s.Failed)+len(s.NotLaunched))
	for _, o := range s.Failed {
		names = append(names, o.Name)
	}
	return append(names, s.NotLaunched...)
}

// PercentPassed rounds the pass rate, never reporting 100 while a test failed.
func (s Summary) PercentPassed() int {
	if s.Total == 0 {
		return 100
	}
	percent := float64(s.Passed) * 100 / float64(s.Total)
	if s.Passed < s.Total && percent > 99 {
		percent = 99
	}
	return int(math.Round(percent))
}

func notRunOnPurpose(o *types.TestOutcome) bool {
	return o.Skipped() || o.Status == types.StatusNotRun && o.CompletionStatus == types.CompletionDisabled
}

// resultLabel is the short label of an outcome in the summary and table.
func resultLabel(o *types.TestOutcome) string {
	switch {
	case o.Passed():
		return "Passed"
	case o.Skipped():
		return "Skipped"
	case o.Status == types.StatusNotRun && o.CompletionStatus == types.CompletionDisabled:
		return "Disabled"
	case o.Status == types.StatusNotRun:
		return "Not Run"
	}
	return o.Status.String()
}

// WriteSummary prints the pass rate, the total time and the lists of tests
// that did not run or failed.
func WriteSummary(w io.Writer, res *RunResult, s Summary) {
	fmt.Fprintf(w, "\n%d%% tests passed, %d tests failed out of %d\n", s.PercentPassed(), s.Total-s.Passed, s.Total)
	fmt.Fprintf(w, "\nTotal Test time (real) = %6.2f sec\n", res.Duration.Seconds())

	if len(s.DidNotRun) > 0 || len(s.NotLaunched) > 0 {
		fmt.Fprintln(w, "\nThe following tests did not run:")
		for _, o := range s.DidNotRun {
			fmt.Fprintf(w, "\t%3d - %s (%s)\n", o.Index, o.Name, resultLabel(o))
		}
		for _, name := range s.NotLaunched {
			fmt.Fprintf(w, "\t    %s (Not Started)\n", name)
		}
	}
	if len(s.Failed) > 0 {
		fmt.Fprintln(w, "\nThe following tests FAILED:")
		for _, o := range s.Failed {
			fmt.Fprintf(w, "\t%3d - %s (%s)\n", o.Index, o.Name, resultLabel(o))
		}
	}
}

// WriteResultsTable prints one row per outcome.
func WriteResultsTable(w io.Writer, runID string, res *RunResult, s Summary) {
	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.SetTitle(fmt.Sprintf("Test Results %s (%s)", runID, formatDuration(res.Duration)))

	t.AppendHeader(table.Row{"#", "Test", "Duration", "Status", "Return", "Error"})
	t.SetColumnConfigs([]table.ColumnConfig{
		{Name: "#", Align: text.AlignRight},
		{Name: "Test", WidthMax: 50, WidthMaxEnforcer: text.WrapSoft},
		{Name: "Duration", Align: text.AlignRight},
		{Name: "Return", Align: text.AlignRight},
		{Name: "Error", WidthMax: maxErrorWidth, WidthMaxEnforcer: text.WrapSoft},
	})

	for _, o := range res.Outcomes {
		t.AppendRow(table.Row{
			o.Index,
			o.Name,
			formatDuration(o.ExecutionTime),
			resultLabel(o),
			o.ReturnValue,
			errorSummary(o),
		})
	}
	for _, name := range res.NotLaunched {
		t.AppendRow(table.Row{"-", name, "-", "Not Started", "-", ""})
	}

	switch {
	case !s.Success():
		t.SetStyle(table.StyleColoredBlackOnRedWhite)
	case len(s.DidNotRun) > 0:
		t.SetStyle(table.StyleColoredBlackOnYellowWhite)
	default:
		t.SetStyle(table.StyleColoredBlackOnGreenWhite)
	}

	t.AppendFooter(table.Row{
		"TOTAL",
		fmt.Sprintf("%d passed / %d", s.Passed, s.Total),
		formatDuration(res.Duration),
		"",
		"",
		"",
	})
	t.Render()
}

// errorSummary picks the most useful one-line explanation of a non-passing
// outcome: the classifier reason, the exception, or the first output line.
func errorSummary(o *types.TestOutcome) string {
	if o.Passed() {
		return ""
	}
	var msg string
	switch {
	case o.Reason != "":
		msg = o.Reason
	case o.ExceptionStatus != "":
		msg = o.ExceptionStatus
	case o.Status == types.StatusNotRun && !o.CompressedOutput:
		msg = firstLine(o.Output)
	default:
		msg = o.CompletionStatus
	}
	msg = stripansi.Strip(msg)
	if len(msg) > maxErrorWidth*2 {
		msg = msg[:maxErrorWidth*2] + "..."
	}
	return msg
}

func firstLine(s string) string {
	s = strings.TrimSpace(s)
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i]
	}
	return s
}

func formatDuration(d time.Duration) string {
	return fmt.Sprintf("%.1fs", d.Seconds())
}
