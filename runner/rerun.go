package runner

import "github.com/ethereum-optimism/infra/op-runtest/types"

// RerunPolicy counts the remaining runs of a test and decides whether a
// finished attempt is followed by another one.
type RerunPolicy struct {
	runsLeft     int
	runUntilFail bool
	runAgain     bool
}

// NewRerunPolicy allows runs attempts (at least one).
func NewRerunPolicy(runs int, runUntilFail bool) *RerunPolicy {
	if runs < 1 {
		runs = 1
	}
	return &RerunPolicy{runsLeft: runs, runUntilFail: runUntilFail}
}

// RunsLeft includes the attempt currently running.
func (p *RerunPolicy) RunsLeft() int {
	return p.runsLeft
}

// NeedsToRerun consumes one run and reports whether another attempt follows.
func (p *RerunPolicy) NeedsToRerun(status types.Status) bool {
	if p.runsLeft > 0 {
		p.runsLeft--
	}
	if p.runsLeft == 0 {
		return false
	}
	if p.runUntilFail && status == types.StatusCompleted {
		p.runAgain = true
		return true
	}
	return false
}

// StartAgain reports and clears a pending restart.
func (p *RerunPolicy) StartAgain() bool {
	if !p.runAgain {
		return false
	}
	p.runAgain = false
	return true
}
