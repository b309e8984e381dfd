package runner

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/ethereum-optimism/infra/op-runtest/types"
)

func exited(code int) ProcessResult {
	return ProcessResult{State: ProcessExited, ExitCode: code}
}

func TestClassify(t *testing.T) {
	tests := []struct {
		name       string
		in         ClassifyInput
		want       types.Status
		reason     string
		completion string
	}{
		{
			name: "clean exit passes",
			in:   ClassifyInput{Result: exited(0), SkipReturnCode: -1},
			want: types.StatusCompleted,
		},
		{
			name: "non zero exit fails",
			in:   ClassifyInput{Result: exited(1), SkipReturnCode: -1},
			want: types.StatusFailed,
		},
		{
			name: "error regex forces failure",
			in: ClassifyInput{
				Result:         exited(0),
				Output:         "step 1\nFAIL here\n",
				ErrorRegex:     []types.RegexRule{types.MustRegexRule("FAIL")},
				SkipReturnCode: -1,
			},
			want:   types.StatusFailed,
			reason: "Error regular expression found in output. Regex=[FAIL]",
		},
		{
			name: "error regex with non zero exit",
			in: ClassifyInput{
				Result:         exited(1),
				Output:         "FAIL\n",
				ErrorRegex:     []types.RegexRule{types.MustRegexRule("nope"), types.MustRegexRule("FAIL")},
				SkipReturnCode: -1,
			},
			want:   types.StatusFailed,
			reason: "Error regular expression found in output. Regex=[FAIL]",
		},
		{
			name:       "skip return code",
			in:         ClassifyInput{Result: exited(77), SkipReturnCode: 77},
			want:       types.StatusNotRun,
			completion: "SKIP_RETURN_CODE=77",
		},
		{
			name:       "skip return code beats will fail",
			in:         ClassifyInput{Result: exited(77), SkipReturnCode: 77, WillFail: true},
			want:       types.StatusNotRun,
			completion: "SKIP_RETURN_CODE=77",
		},
		{
			name: "will fail inverts failure",
			in:   ClassifyInput{Result: exited(2), SkipReturnCode: -1, WillFail: true},
			want: types.StatusCompleted,
		},
		{
			name: "will fail inverts success",
			in:   ClassifyInput{Result: exited(0), SkipReturnCode: -1, WillFail: true},
			want: types.StatusFailed,
		},
		{
			name: "required regex found ignores exit code",
			in: ClassifyInput{
				Result:         exited(3),
				Output:         "all good\n",
				RequiredRegex:  []types.RegexRule{types.MustRegexRule("missing"), types.MustRegexRule("good")},
				SkipReturnCode: -1,
			},
			want:   types.StatusCompleted,
			reason: "Required regular expression found.Regex=[missing\ngood\n]",
		},
		{
			name: "required regex not found",
			in: ClassifyInput{
				Result:         exited(0),
				Output:         "nothing\n",
				RequiredRegex:  []types.RegexRule{types.MustRegexRule("passed")},
				SkipReturnCode: -1,
			},
			want:   types.StatusFailed,
			reason: "Required regular expression not found.Regex=[passed\n]",
		},
		{
			name: "error regex reason replaces required reason",
			in: ClassifyInput{
				Result:         exited(0),
				Output:         "passed\nERROR\n",
				RequiredRegex:  []types.RegexRule{types.MustRegexRule("passed")},
				ErrorRegex:     []types.RegexRule{types.MustRegexRule("ERROR")},
				SkipReturnCode: -1,
			},
			want:   types.StatusFailed,
			reason: "Error regular expression found in output. Regex=[ERROR]",
		},
		{
			name: "failed dependencies skip regex checks",
			in: ClassifyInput{
				Result:             exited(0),
				Output:             "FAIL\n",
				ErrorRegex:         []types.RegexRule{types.MustRegexRule("FAIL")},
				FailedDependencies: []string{"setup"},
				SkipReturnCode:     -1,
			},
			want: types.StatusCompleted,
		},
		{
			name: "timeout",
			in:   ClassifyInput{Result: ProcessResult{State: ProcessExpired}, SkipReturnCode: -1},
			want: types.StatusTimeout,
		},
		{
			name: "timeout keeps regex reason",
			in: ClassifyInput{
				Result:         ProcessResult{State: ProcessExpired},
				Output:         "FAIL\n",
				ErrorRegex:     []types.RegexRule{types.MustRegexRule("FAIL")},
				SkipReturnCode: -1,
			},
			want:   types.StatusTimeout,
			reason: "Error regular expression found in output. Regex=[FAIL]",
		},
		{
			name: "spawn error",
			in:   ClassifyInput{Result: ProcessResult{State: ProcessError, ExitCode: -1}, SkipReturnCode: -1},
			want: types.StatusNotRun,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Classify(tt.in)
			assert.Equal(t, tt.want, got.Status)
			assert.Equal(t, tt.reason, got.Reason)
			assert.Equal(t, tt.completion, got.CompletionStatus)
			assert.Equal(t, tt.completion != "", got.Skipped)
		})
	}
}

func TestClassifyFaults(t *testing.T) {
	faults := map[types.FaultKind]types.Status{
		types.FaultSegmentation:       types.StatusSegFault,
		types.FaultIllegalInstruction: types.StatusIllegalInstruction,
		types.FaultInterrupt:          types.StatusInterrupted,
		types.FaultNumerical:          types.StatusNumericalFault,
		types.FaultOther:              types.StatusOtherFault,
	}
	for kind, want := range faults {
		t.Run(kind.String(), func(t *testing.T) {
			got := Classify(ClassifyInput{
				Result:         ProcessResult{State: ProcessException, Fault: kind, FaultDescription: "raw " + kind.String()},
				SkipReturnCode: -1,
			})
			assert.Equal(t, want, got.Status)
			assert.Equal(t, "raw "+kind.String(), got.ExceptionStatus)
		})
	}
}

func TestClassifyAlwaysYieldsKnownStatus(t *testing.T) {
	states := []ProcessState{ProcessError, ProcessExited, ProcessExpired, ProcessException}
	for _, state := range states {
		for _, code := range []int{-1, 0, 1, 77} {
			for _, willFail := range []bool{false, true} {
				got := Classify(ClassifyInput{
					Result:         ProcessResult{State: state, ExitCode: code, Fault: types.FaultOther},
					SkipReturnCode: 77,
					WillFail:       willFail,
				})
				assert.True(t, got.Status.IsValid(), "state %v code %d", state, code)
			}
		}
	}
}
