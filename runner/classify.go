package runner

import (
	"strings"

	"github.com/ethereum-optimism/infra/op-runtest/types"
)

// ClassifyInput holds everything that decides the terminal status of an attempt.
type ClassifyInput struct {
	Result             ProcessResult
	Output             string
	RequiredRegex      []types.RegexRule
	ErrorRegex         []types.RegexRule
	FailedDependencies []string
	SkipReturnCode     int
	WillFail           bool
}

// Classification is the terminal status of an attempt and why it was chosen.
type Classification struct {
	Status           types.Status
	Reason           string
	CompletionStatus string // only set when the skip return code matched
	ExceptionStatus  string
	Skipped          bool
}

// Classify reduces a finished process and its output into a terminal status.
// It is a pure function of its input.
func Classify(in ClassifyInput) Classification {
	var c Classification
	forceFail := false
	checkRegex := len(in.FailedDependencies) == 0

	if checkRegex && len(in.RequiredRegex) > 0 {
		found := false
		for _, rule := range in.RequiredRegex {
			if rule.Matches(in.Output) {
				found = true
				break
			}
		}
		var reason strings.Builder
		if found {
			reason.WriteString("Required regular expression found.")
		} else {
			reason.WriteString("Required regular expression not found.")
			forceFail = true
		}
		reason.WriteString("Regex=[")
		for _, rule := range in.RequiredRegex {
			reason.WriteString(rule.Label)
			reason.WriteString("\n")
		}
		reason.WriteString("]")
		c.Reason = reason.String()
	}

	if checkRegex {
		for _, rule := range in.ErrorRegex {
			if rule.Matches(in.Output) {
				c.Reason = "Error regular expression found in output. Regex=[" + rule.Label + "]"
				forceFail = true
				break
			}
		}
	}

	switch in.Result.State {
	case ProcessExited:
		success := !forceFail && (in.Result.ExitCode == 0 || len(in.RequiredRegex) > 0)
		switch {
		case in.SkipReturnCode >= 0 && in.SkipReturnCode == in.Result.ExitCode:
			c.Status = types.StatusNotRun
			c.CompletionStatus = types.SkipCompletionStatus(in.SkipReturnCode)
			c.Skipped = true
		case success != in.WillFail:
			c.Status = types.StatusCompleted
		default:
			c.Status = types.StatusFailed
		}
	case ProcessExpired:
		c.Status = types.StatusTimeout
	case ProcessException:
		c.ExceptionStatus = in.Result.FaultDescription
		c.Status = in.Result.Fault.Status()
	default:
		c.Status = types.StatusNotRun
	}
	return c
}
