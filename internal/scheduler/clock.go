package scheduler

import (
	"context"
	"time"
)

// Timer is the subset of *time.Timer the clock needs.
type Timer interface {
	C() <-chan time.Time
	Stop() bool
}

type realTimer struct{ t *time.Timer }

func (r realTimer) C() <-chan time.Time { return r.t.C }
func (r realTimer) Stop() bool          { return r.t.Stop() }

// NewRealTimer wraps time.NewTimer.
func NewRealTimer(d time.Duration) Timer { return realTimer{t: time.NewTimer(d)} }

// UntilNextMinute is the delay to the next whole minute.
func UntilNextMinute(now time.Time) time.Duration {
	next := now.Truncate(time.Minute).Add(time.Minute)
	return next.Sub(now)
}

// UntilNextMidnight is the delay to the next local midnight in now's location.
// Computed by calendar so DST days are 23 or 25 hours long.
func UntilNextMidnight(now time.Time) time.Duration {
	y, m, d := now.Date()
	return time.Date(y, m, d+1, 0, 0, 0, 0, now.Location()).Sub(now)
}

// Clock fires a callback on every minute boundary and another at each local
// midnight. Timers are re-armed from the exact remaining delta each time so
// drift does not accumulate.
type Clock struct {
	Now      func() time.Time
	NewTimer func(time.Duration) Timer
}

func (c Clock) now() time.Time {
	if c.Now == nil {
		return time.Now()
	}
	return c.Now()
}

func (c Clock) newTimer(d time.Duration) Timer {
	if c.NewTimer == nil {
		return NewRealTimer(d)
	}
	return c.NewTimer(d)
}

// Run blocks until ctx is done.
func (c Clock) Run(ctx context.Context, onMinute, onMidnight func(time.Time)) error {
	minute := c.newTimer(UntilNextMinute(c.now()))
	midnight := c.newTimer(UntilNextMidnight(c.now()))
	defer func() {
		minute.Stop()
		midnight.Stop()
	}()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-minute.C():
			onMinute(c.now())
			minute = c.newTimer(UntilNextMinute(c.now()))
		case <-midnight.C():
			onMidnight(c.now())
			midnight = c.newTimer(UntilNextMidnight(c.now()))
		}
	}
}
