package app

import (
	"time"

	"livein-auction-engine/internal/domain/session"

	"github.com/jonboulle/clockwork"
)

// SessionClock tracks the authoritative timeline of one session: scheduled
// start, end time, and extension accounting. It owns a single one-shot
// deadline timer whose channel the session worker selects on; client-side
// countdowns are advisory and resynchronize from Remaining.
//
// A SessionClock is owned by exactly one worker goroutine and is not safe for
// concurrent use.
type SessionClock struct {
	clock clockwork.Clock

	startTime time.Time
	endTime   time.Time

	extensionDuration time.Duration
	maxExtensions     int
	extensionsUsed    int

	timer      clockwork.Timer
	deadlineCh <-chan time.Time
}

// NewSessionClock creates a clock for a session from its config.
func NewSessionClock(clock clockwork.Clock, cfg session.Config) *SessionClock {
	return &SessionClock{
		clock:             clock,
		startTime:         cfg.StartTime,
		endTime:           cfg.EndTime,
		extensionDuration: cfg.ExtensionDuration,
		maxExtensions:     cfg.MaxExtensions,
	}
}

// Now returns the authoritative server time.
func (c *SessionClock) Now() time.Time {
	return c.clock.Now()
}

// StartTime returns the scheduled start of the session.
func (c *SessionClock) StartTime() time.Time {
	return c.startTime
}

// EndTime returns the current scheduled end, including any extensions.
func (c *SessionClock) EndTime() time.Time {
	return c.endTime
}

// Remaining returns the time left until the end, floored at zero.
func (c *SessionClock) Remaining() time.Duration {
	remaining := c.endTime.Sub(c.clock.Now())
	if remaining < 0 {
		return 0
	}
	return remaining
}

// ExtensionsUsed returns how many extensions have fired.
func (c *SessionClock) ExtensionsUsed() int {
	return c.extensionsUsed
}

// Extend moves the end time to now plus the configured extension duration,
// leaving exactly that much remaining. The end never moves backward; returns
// false once the extension cap is reached or when the current end is already
// further out.
func (c *SessionClock) Extend(now time.Time) (time.Time, bool) {
	if c.extensionsUsed >= c.maxExtensions {
		return c.endTime, false
	}
	newEnd := now.Add(c.extensionDuration)
	if !newEnd.After(c.endTime) {
		return c.endTime, false
	}
	c.extensionsUsed++
	c.endTime = newEnd
	return c.endTime, true
}

// ArmAt replaces the deadline timer with one firing at t. A past t fires
// immediately.
func (c *SessionClock) ArmAt(t time.Time) {
	c.Stop()

	d := t.Sub(c.clock.Now())
	if d < 0 {
		d = 0
	}
	c.timer = c.clock.NewTimer(d)
	c.deadlineCh = c.timer.Chan()
}

// Deadline returns the channel of the armed timer, or nil when unarmed.
// Selecting on a nil channel blocks, which is what an unarmed clock should do.
func (c *SessionClock) Deadline() <-chan time.Time {
	return c.deadlineCh
}

// Stop disarms the deadline timer, draining it if it already fired.
func (c *SessionClock) Stop() {
	if c.timer == nil {
		return
	}
	if !c.timer.Stop() {
		select {
		case <-c.timer.Chan():
		default:
		}
	}
	c.timer = nil
	c.deadlineCh = nil
}
