package runner

import (
	"strings"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ethereum-optimism/infra/op-runtest/types"
)

type scriptedEvent struct {
	line string
	ev   pipeEvent
}

// scriptedSource replays a fixed sequence of pipe events.
type scriptedSource struct {
	events   []scriptedEvent
	resets   int
	timeouts []time.Duration
}

func (s *scriptedSource) NextLine(time.Duration) (string, pipeEvent) {
	if len(s.events) == 0 {
		return "", pipeClosed
	}
	e := s.events[0]
	s.events = s.events[1:]
	return e.line, e.ev
}

func (s *scriptedSource) ResetStartTime()               { s.resets++ }
func (s *scriptedSource) ChangeTimeout(d time.Duration) { s.timeouts = append(s.timeouts, d) }

func lines(ls ...string) []scriptedEvent {
	out := make([]scriptedEvent, 0, len(ls))
	for _, l := range ls {
		out = append(out, scriptedEvent{line: l, ev: pipeLine})
	}
	return out
}

func TestCheckOutputAccumulatesUntilClosed(t *testing.T) {
	c := NewOutputCollector(log.NewLogger(log.DiscardHandler()))
	src := &scriptedSource{events: lines("one", "two")}
	var buf strings.Builder

	assert.False(t, c.CheckOutput(src, &buf, &triggerState{}))
	assert.Equal(t, "one\ntwo\n", buf.String())
}

func TestCheckOutputSliceElapsed(t *testing.T) {
	c := NewOutputCollector(nil)
	src := &scriptedSource{events: append(lines("one"), scriptedEvent{ev: pipeTimeout}, scriptedEvent{line: "two", ev: pipeLine})}
	var buf strings.Builder

	assert.True(t, c.CheckOutput(src, &buf, nil))
	assert.Equal(t, "one\n", buf.String())
	assert.False(t, c.CheckOutput(src, &buf, nil))
	assert.Equal(t, "one\ntwo\n", buf.String())
}

func TestCheckOutputTriggerFiresOnce(t *testing.T) {
	c := NewOutputCollector(nil)
	src := &scriptedSource{events: lines("starting", "READY", "READY again")}
	triggers := &triggerState{
		rules:     []types.RegexRule{types.MustRegexRule("READY")},
		alternate: 3 * time.Second,
	}
	var buf strings.Builder

	assert.False(t, c.CheckOutput(src, &buf, triggers))
	assert.Equal(t, 1, src.resets)
	assert.Equal(t, []time.Duration{3 * time.Second}, src.timeouts)
	assert.Empty(t, triggers.rules)
}

func TestCheckOutputTriggerMatchesWholeBuffer(t *testing.T) {
	c := NewOutputCollector(nil)
	// the pattern spans two lines, so only the accumulated buffer can match it
	src := &scriptedSource{events: lines("phase", "two")}
	triggers := &triggerState{
		rules:     []types.RegexRule{types.MustRegexRule(`phase\ntwo`)},
		alternate: time.Second,
	}
	var buf strings.Builder

	require.False(t, c.CheckOutput(src, &buf, triggers))
	assert.Equal(t, 1, src.resets)
	assert.Nil(t, triggers.rules)
}
