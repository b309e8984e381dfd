package runtest

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ethereum-optimism/infra/op-runtest/types"
)

func sampleResult() *RunResult {
	return &RunResult{
		Outcomes: []*types.TestOutcome{
			{Name: "pass", Index: 1, Status: types.StatusCompleted, CompletionStatus: types.CompletionCompleted},
			{Name: "fail", Index: 2, Status: types.StatusFailed, Reason: "Required regular expression not found. Regex=[ok]", ReturnValue: 1},
			{Name: "skip", Index: 3, Status: types.StatusNotRun, CompletionStatus: types.SkipCompletionStatus(77), ReturnValue: 77},
			{Name: "off", Index: 4, Status: types.StatusNotRun, CompletionStatus: types.CompletionDisabled, ReturnValue: -1},
			{Name: "crash", Index: 5, Status: types.StatusSegFault, ExceptionStatus: "Segmentation fault", ReturnValue: -1},
			{Name: "missing", Index: 6, Status: types.StatusNotRun, CompletionStatus: types.CompletionMissingExecutable, Output: "Unable to find executable: nope\n", ReturnValue: -1},
		},
		NotLaunched: []string{"late"},
		Duration:    1500 * time.Millisecond,
	}
}

func TestSummarize(t *testing.T) {
	s := Summarize(sampleResult())
	assert.Equal(t, 7, s.Total)
	assert.Equal(t, 3, s.Passed)
	require.Len(t, s.Failed, 3)
	require.Len(t, s.DidNotRun, 2)
	assert.False(t, s.Success())
	assert.Equal(t, []string{"fail", "crash", "missing", "late"}, s.FailedNames())
	assert.Equal(t, 43, s.PercentPassed())
}

func TestPercentPassed(t *testing.T) {
	tests := []struct {
		name   string
		total  int
		passed int
		want   int
	}{
		{"empty", 0, 0, 100},
		{"all", 4, 4, 100},
		{"none", 4, 0, 0},
		{"almost all never rounds up", 1000, 999, 99},
		{"half", 2, 1, 50},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := Summary{Total: tt.total, Passed: tt.passed}
			assert.Equal(t, tt.want, s.PercentPassed())
		})
	}
}

func TestResultLabel(t *testing.T) {
	res := sampleResult()
	want := []string{"Passed", "Failed", "Skipped", "Disabled", "SEGFAULT", "Not Run"}
	for i, o := range res.Outcomes {
		assert.Equal(t, want[i], resultLabel(o), o.Name)
	}
}

func TestWriteSummary(t *testing.T) {
	res := sampleResult()
	var buf bytes.Buffer
	WriteSummary(&buf, res, Summarize(res))

	out := buf.String()
	assert.Contains(t, out, "43% tests passed, 4 tests failed out of 7")
	assert.Contains(t, out, "Total Test time (real) =   1.50 sec")
	assert.Contains(t, out, "The following tests did not run:\n\t  3 - skip (Skipped)\n\t  4 - off (Disabled)\n\t    late (Not Started)\n")
	assert.Contains(t, out, "The following tests FAILED:\n\t  2 - fail (Failed)\n\t  5 - crash (SEGFAULT)\n\t  6 - missing (Not Run)\n")
}

func TestWriteSummaryAllPassed(t *testing.T) {
	res := &RunResult{
		Outcomes: []*types.TestOutcome{{Name: "a", Index: 1, Status: types.StatusCompleted}},
		Duration: time.Second,
	}
	var buf bytes.Buffer
	WriteSummary(&buf, res, Summarize(res))
	assert.Contains(t, buf.String(), "100% tests passed, 0 tests failed out of 1")
	assert.NotContains(t, buf.String(), "FAILED")
}

func TestWriteResultsTable(t *testing.T) {
	res := sampleResult()
	res.Outcomes[1].Reason = "\x1b[31mred reason\x1b[0m"

	var buf bytes.Buffer
	WriteResultsTable(&buf, "run-1", res, Summarize(res))
	out := buf.String()

	assert.Contains(t, strings.ToLower(out), "run-1")
	assert.Contains(t, out, "red reason")
	assert.NotContains(t, out, "\x1b[31mred")
	assert.Contains(t, out, "Segmentation fault")
	assert.Contains(t, out, "Unable to find executable: nope")
	assert.Contains(t, out, "Not Started")
	assert.Contains(t, strings.ToLower(out), "3 passed / 7")
}

func TestErrorSummary(t *testing.T) {
	long := strings.Repeat("x", 500)
	o := &types.TestOutcome{Status: types.StatusFailed, Reason: long}
	got := errorSummary(o)
	assert.Len(t, got, maxErrorWidth*2+3)

	assert.Empty(t, errorSummary(&types.TestOutcome{Status: types.StatusCompleted, Reason: "ignored"}))
	assert.Equal(t, types.CompletionCompleted, errorSummary(&types.TestOutcome{Status: types.StatusTimeout, CompletionStatus: types.CompletionCompleted}))
}
