package app

import (
	"testing"
	"time"

	"livein-auction-engine/internal/domain/session"

	"github.com/jonboulle/clockwork"
)

func newTestClock(fc *clockwork.FakeClock, endIn time.Duration, extension time.Duration, maxExtensions int) *SessionClock {
	return NewSessionClock(fc, session.Config{
		StartTime:         fc.Now(),
		EndTime:           fc.Now().Add(endIn),
		ExtensionDuration: extension,
		MaxExtensions:     maxExtensions,
	})
}

func TestSessionClockRemaining(t *testing.T) {
	fc := clockwork.NewFakeClock()
	clock := newTestClock(fc, 10*time.Minute, 30*time.Second, 10)

	if got := clock.Remaining(); got != 10*time.Minute {
		t.Errorf("remaining = %v, want 10m", got)
	}

	fc.Advance(4 * time.Minute)
	if got := clock.Remaining(); got != 6*time.Minute {
		t.Errorf("remaining = %v, want 6m", got)
	}

	// past the end, remaining floors at zero
	fc.Advance(10 * time.Minute)
	if got := clock.Remaining(); got != 0 {
		t.Errorf("remaining = %v, want 0", got)
	}
}

func TestSessionClockExtend(t *testing.T) {
	fc := clockwork.NewFakeClock()
	clock := newTestClock(fc, 10*time.Second, 30*time.Second, 2)

	// an extension leaves exactly the extension duration remaining
	newEnd, extended := clock.Extend(fc.Now())
	if !extended {
		t.Fatal("first extension refused")
	}
	if want := fc.Now().Add(30 * time.Second); !newEnd.Equal(want) {
		t.Errorf("end after extension = %v, want %v", newEnd, want)
	}
	if clock.ExtensionsUsed() != 1 {
		t.Errorf("extensions used = %d, want 1", clock.ExtensionsUsed())
	}

	fc.Advance(5 * time.Second)
	newEnd, extended = clock.Extend(fc.Now())
	if !extended {
		t.Fatal("second extension refused")
	}
	if want := fc.Now().Add(30 * time.Second); !newEnd.Equal(want) {
		t.Errorf("end after second extension = %v, want %v", newEnd, want)
	}

	// cap reached, end time stays put
	fc.Advance(5 * time.Second)
	endBefore := clock.EndTime()
	newEnd, extended = clock.Extend(fc.Now())
	if extended {
		t.Error("extension granted past the cap")
	}
	if !newEnd.Equal(endBefore) {
		t.Errorf("end moved past the cap: %v, want %v", newEnd, endBefore)
	}
	if clock.ExtensionsUsed() != 2 {
		t.Errorf("extensions used = %d, want 2", clock.ExtensionsUsed())
	}
}

func TestSessionClockExtendNeverShortens(t *testing.T) {
	fc := clockwork.NewFakeClock()
	clock := newTestClock(fc, 2*time.Minute, 30*time.Second, 5)
	originalEnd := clock.EndTime()

	// with more than the extension duration left, extending would pull
	// the end closer, so it is refused and no extension is consumed
	newEnd, extended := clock.Extend(fc.Now())
	if extended {
		t.Error("extension granted that would have shortened the session")
	}
	if !newEnd.Equal(originalEnd) {
		t.Errorf("end moved: %v, want %v", newEnd, originalEnd)
	}
	if clock.ExtensionsUsed() != 0 {
		t.Errorf("extensions used = %d, want 0", clock.ExtensionsUsed())
	}
}

func TestSessionClockArmAtFires(t *testing.T) {
	fc := clockwork.NewFakeClock()
	clock := newTestClock(fc, time.Minute, 30*time.Second, 10)

	clock.ArmAt(fc.Now().Add(10 * time.Second))

	select {
	case <-clock.Deadline():
		t.Fatal("deadline fired before its time")
	default:
	}

	fc.Advance(10 * time.Second)

	select {
	case <-clock.Deadline():
	case <-time.After(time.Second):
		t.Fatal("deadline did not fire")
	}
}

func TestSessionClockRearmReplacesDeadline(t *testing.T) {
	fc := clockwork.NewFakeClock()
	clock := newTestClock(fc, time.Minute, 30*time.Second, 10)

	clock.ArmAt(fc.Now().Add(5 * time.Second))
	clock.ArmAt(fc.Now().Add(20 * time.Second))

	// the first deadline was replaced, 5s elapsing fires nothing
	fc.Advance(5 * time.Second)
	select {
	case <-clock.Deadline():
		t.Fatal("replaced deadline fired")
	default:
	}

	fc.Advance(15 * time.Second)
	select {
	case <-clock.Deadline():
	case <-time.After(time.Second):
		t.Fatal("rearmed deadline did not fire")
	}
}

func TestSessionClockStopDisarms(t *testing.T) {
	fc := clockwork.NewFakeClock()
	clock := newTestClock(fc, time.Minute, 30*time.Second, 10)

	clock.ArmAt(fc.Now().Add(5 * time.Second))
	clock.Stop()

	if clock.Deadline() != nil {
		t.Fatal("deadline channel not nil after stop")
	}

	// stopping twice is fine
	clock.Stop()
}

func TestSessionClockArmAtPastFiresImmediately(t *testing.T) {
	fc := clockwork.NewFakeClock()
	clock := newTestClock(fc, time.Minute, 30*time.Second, 10)

	clock.ArmAt(fc.Now().Add(-time.Second))

	select {
	case <-clock.Deadline():
	case <-time.After(time.Second):
		t.Fatal("past deadline did not fire immediately")
	}
}
