package runner

import (
	"io"
	"sync"
	"time"

	"github.com/ethereum-optimism/infra/op-runtest/types"
)

// Settings is the read-only run configuration shared by all units. It is
// built once by the caller and never mutated while units run; the mutable
// pieces (StopClock, Budget clock) carry their own synchronisation.
type Settings struct {
	StopTime        string // time of day, e.g. "23:30:00" or "23:30 -0500"
	NextDayStopTime bool
	StopClock       *StopClock
	Budget          *Budget

	DefaultTimeout time.Duration // used when a test declares none; zero means none

	CompressOutput         bool
	CompressMemCheckOutput bool

	MemCheck         bool
	MemoryTester     string
	MemoryTesterArgs []string

	ConfigType string

	MaxPassedOutput  int
	MaxFailedOutput  int
	OutputOnFailure  bool
	TotalTests       int
	MaxIndex         int
	MaxTestNameWidth int

	Location *time.Location
	Now      func() time.Time

	Console io.Writer // progress lines
	LogFile io.Writer // structured per-attempt records
}

// withDefaults returns a copy with zero values replaced by usable defaults.
func (s Settings) withDefaults() Settings {
	if s.Now == nil {
		s.Now = time.Now
	}
	if s.Location == nil {
		s.Location = time.Local
	}
	if s.StopClock == nil {
		s.StopClock = NewStopClock()
	}
	if s.Console == nil {
		s.Console = io.Discard
	}
	if s.LogFile == nil {
		s.LogFile = io.Discard
	}
	if s.MaxTestNameWidth <= 0 {
		s.MaxTestNameWidth = DefaultMaxTestNameWidth
	}
	if s.TotalTests <= 0 {
		s.TotalTests = 1
	}
	if s.MaxIndex <= 0 {
		s.MaxIndex = s.TotalTests
	}
	return s
}

// CompressionEnabled reports whether output compression applies to the current mode.
func (s *Settings) CompressionEnabled() bool {
	if s.MemCheck {
		return s.CompressMemCheckOutput
	}
	return s.CompressOutput
}

// ModeLabel is the console label of the current mode.
func (s *Settings) ModeLabel() string {
	if s.MemCheck {
		return "MemCheck"
	}
	return "Test"
}

// RemainingTime returns the remaining run budget, or types.NoTimeout.
func (s *Settings) RemainingTime() time.Duration {
	if s.Budget == nil {
		return types.NoTimeout
	}
	return s.Budget.Remaining()
}

// StopClock remembers the last observed time-until-stop window so that a
// window which grows again (the stop time wrapped past midnight) is detected.
type StopClock struct {
	mu     sync.Mutex
	last   time.Duration
	passed bool
}

// NewStopClock returns a clock whose initial window is a full day.
func NewStopClock() *StopClock {
	return &StopClock{last: 24 * time.Hour}
}

// Observe records the window returned by remaining and reports whether the
// stop time has passed. remaining is called with the clock locked, so
// concurrent observers record their windows in clock order.
func (c *StopClock) Observe(remaining func() time.Duration) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	window := remaining()
	if window <= 0 || window > c.last {
		c.passed = true
	}
	c.last = window
	return c.passed
}

// Passed reports whether any unit observed the stop time as passed.
func (c *StopClock) Passed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.passed
}

// Budget is the overall wall-clock allowance of a run.
type Budget struct {
	start time.Time
	limit time.Duration
	now   func() time.Time
}

// NewBudget starts a budget of limit at start. A non-positive limit is infinite.
func NewBudget(start time.Time, limit time.Duration, now func() time.Time) *Budget {
	if now == nil {
		now = time.Now
	}
	return &Budget{start: start, limit: limit, now: now}
}

// Remaining returns what is left of the budget, or types.NoTimeout.
func (b *Budget) Remaining() time.Duration {
	if b == nil || b.limit <= 0 {
		return types.NoTimeout
	}
	return b.limit - b.now().Sub(b.start)
}
