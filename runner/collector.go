package runner

import (
	"strings"
	"time"

	"github.com/ethereum-optimism/infra/op-runtest/types"
	"github.com/ethereum/go-ethereum/log"
)

// outputSource is the part of a process handle the collector polls.
type outputSource interface {
	NextLine(wait time.Duration) (string, pipeEvent)
	ResetStartTime()
	ChangeTimeout(d time.Duration)
}

// OutputCollector streams process output into an attempt buffer and applies
// timeout triggers as lines arrive.
type OutputCollector struct {
	slice time.Duration
	log   log.Logger
}

// NewOutputCollector creates a collector polling in OutputPollSlice slices.
func NewOutputCollector(logger log.Logger) *OutputCollector {
	if logger == nil {
		logger = log.NewLogger(log.DiscardHandler())
	}
	return &OutputCollector{slice: OutputPollSlice, log: logger}
}

// triggerState is the per-attempt view of the timeout triggers.
type triggerState struct {
	rules     []types.RegexRule
	alternate time.Duration
}

// CheckOutput reads lines for up to one poll slice. It returns false exactly
// when the process has terminated and all of its output has been read.
func (c *OutputCollector) CheckOutput(src outputSource, buf *strings.Builder, triggers *triggerState) bool {
	end := time.Now().Add(c.slice)
	for {
		wait := time.Until(end)
		if wait <= 0 {
			return true
		}
		line, ev := src.NextLine(wait)
		switch ev {
		case pipeClosed:
			return false
		case pipeTimeout:
			return true
		}

		c.log.Trace("Test output", "line", line)
		buf.WriteString(line)
		buf.WriteString("\n")

		if triggers == nil || len(triggers.rules) == 0 {
			continue
		}
		output := buf.String()
		for _, rule := range triggers.rules {
			if !rule.Matches(output) {
				continue
			}
			c.log.Debug("Test timeout changed", "timeout", FormatTimeout(triggers.alternate), "regex", rule.Label)
			src.ResetStartTime()
			src.ChangeTimeout(triggers.alternate)
			triggers.rules = nil
			break
		}
	}
}
