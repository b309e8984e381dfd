package runner

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/ethereum-optimism/infra/op-runtest/types"
	"github.com/ethereum/go-ethereum/log"
)

var errBadStopTime = errors.New("unrecognised stop time")

var stopTimeLayouts = []string{
	"20060102 15:04:05 -0700",
	"20060102 15:04 -0700",
}

// TimeoutResolver computes the timeout of an attempt from the declared test
// timeout, the global stop time and the remaining run budget.
type TimeoutResolver struct {
	settings *Settings
	log      log.Logger
}

// NewTimeoutResolver creates a resolver bound to settings.
func NewTimeoutResolver(settings *Settings, logger log.Logger) *TimeoutResolver {
	if logger == nil {
		logger = log.NewLogger(log.DiscardHandler())
	}
	return &TimeoutResolver{settings: settings, log: logger}
}

// Resolve applies the stop time to the declared timeout. The second result is
// true when the stop time has been passed, in which case no test should start.
func (r *TimeoutResolver) Resolve(test *types.TestConfig) (time.Duration, bool) {
	timeout := test.Timeout
	if r.settings.StopTime == "" {
		return timeout, false
	}

	if _, err := ParseStopTime(r.settings.StopTime, r.settings.Now()); err != nil {
		r.log.Debug("Ignoring stop time", "stopTime", r.settings.StopTime, "err", err)
		return timeout, false
	}

	var remaining time.Duration
	passed := r.settings.StopClock.Observe(func() time.Duration {
		remaining = r.stopWindow()
		return remaining
	})
	if passed {
		r.log.Error("The stop time has been passed. Stopping all tests.", "test", test.Name, "stopTime", r.settings.StopTime)
		return 0, true
	}

	if timeout == 0 || remaining < timeout {
		return remaining, false
	}
	return timeout, false
}

// stopWindow is the time left until the stop time, read from the clock now.
func (r *TimeoutResolver) stopWindow() time.Duration {
	now := r.settings.Now().In(r.settings.Location)
	stop, err := ParseStopTime(r.settings.StopTime, now)
	if err != nil {
		return 24 * time.Hour
	}
	if r.settings.NextDayStopTime {
		stop = stop.Add(24 * time.Hour)
	}
	return stop.Sub(now) % (24 * time.Hour)
}

// EffectiveTimeout clamps a resolved timeout against the default ceiling and
// the remaining budget. types.NoTimeout means the process may run forever.
func (r *TimeoutResolver) EffectiveTimeout(resolved time.Duration, explicit bool) time.Duration {
	if resolved == 0 && explicit {
		return types.NoTimeout
	}

	timeout := resolved
	if timeout <= 0 {
		timeout = types.NoTimeout
		if r.settings.DefaultTimeout > 0 {
			timeout = r.settings.DefaultTimeout
		}
	}

	if remaining := r.settings.RemainingTime(); remaining != types.NoTimeout {
		if budget := remaining - BudgetSafetyMargin; budget < timeout {
			timeout = budget
		}
	}

	if timeout < MinimumTimeout {
		timeout = MinimumTimeout
	}
	return timeout
}

// FormatTimeout renders a timeout for logs.
func FormatTimeout(d time.Duration) string {
	if d == types.NoTimeout || d <= 0 {
		return "infinite"
	}
	return fmt.Sprintf("%d", int64(d/time.Second))
}

// ParseStopTime turns a time of day such as "23:30", "23:30:00" or
// "23:30:00 -0500" into an absolute timestamp on now's date. Without an
// explicit zone the local offset of now is used.
func ParseStopTime(stopTime string, now time.Time) (time.Time, error) {
	fields := strings.Fields(stopTime)
	if len(fields) == 0 || len(fields) > 2 {
		return time.Time{}, errBadStopTime
	}

	zone := fmt.Sprintf("%+05d", ZoneOffsetHours(now)*100)
	if len(fields) == 2 {
		z, err := normaliseZone(fields[1])
		if err != nil {
			return time.Time{}, err
		}
		zone = z
	}

	value := fmt.Sprintf("%04d%02d%02d %s %s", now.Year(), int(now.Month()), now.Day(), fields[0], zone)
	for _, layout := range stopTimeLayouts {
		if t, err := time.Parse(layout, value); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("%w: %q", errBadStopTime, stopTime)
}

func normaliseZone(zone string) (string, error) {
	switch strings.ToUpper(zone) {
	case "UTC", "GMT", "Z":
		return "+0000", nil
	}
	if len(zone) == 5 && (zone[0] == '+' || zone[0] == '-') {
		return zone, nil
	}
	return "", fmt.Errorf("%w: zone %q", errBadStopTime, zone)
}

// ZoneOffsetHours returns the whole-hour offset of now's location from UTC,
// derived from the wall clock hours and corrected when the UTC date differs
// from the local date.
func ZoneOffsetHours(now time.Time) int {
	utc := now.UTC()
	offset := now.Hour() - utc.Hour()

	localDay := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	utcDay := time.Date(utc.Year(), utc.Month(), utc.Day(), 0, 0, 0, 0, time.UTC)
	switch {
	case utcDay.After(localDay) && utc.Hour() < now.Hour():
		offset -= 24
	case utcDay.Before(localDay) && utc.Hour() > now.Hour():
		offset += 24
	}
	return offset
}

// NextDayStop reports whether stopTime has already passed today at now, which
// means the run refers to tomorrow's stop time.
func NextDayStop(stopTime string, now time.Time) bool {
	if stopTime == "" {
		return false
	}
	stop, err := ParseStopTime(stopTime, now)
	if err != nil {
		return false
	}
	return stop.Before(now)
}
