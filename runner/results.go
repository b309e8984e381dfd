package runner

import (
	"sync"

	"github.com/ethereum-optimism/infra/op-runtest/types"
)

// OutcomeSink receives the final outcome of every unit.
type OutcomeSink interface {
	Append(outcome *types.TestOutcome)
}

// Results is an OutcomeSink safe for concurrent units.
type Results struct {
	mu       sync.Mutex
	outcomes []*types.TestOutcome
}

// NewResults creates an empty result list.
func NewResults() *Results {
	return &Results{}
}

func (r *Results) Append(outcome *types.TestOutcome) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.outcomes = append(r.outcomes, outcome)
}

// Outcomes returns a copy of the appended outcomes in append order.
func (r *Results) Outcomes() []*types.TestOutcome {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*types.TestOutcome, len(r.outcomes))
	copy(out, r.outcomes)
	return out
}
