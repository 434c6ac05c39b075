package scheduler

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUntilNextMinute(t *testing.T) {
	assert.Equal(t, 30*time.Second, UntilNextMinute(time.Date(2025, 3, 10, 7, 0, 30, 0, time.UTC)))
	assert.Equal(t, time.Minute, UntilNextMinute(time.Date(2025, 3, 10, 7, 0, 0, 0, time.UTC)))
}

func TestUntilNextMidnightFollowsCalendar(t *testing.T) {
	ny, err := time.LoadLocation("America/New_York")
	require.NoError(t, err)
	// DST starts 2025-03-09 and ends 2025-11-02
	assert.Equal(t, 23*time.Hour, UntilNextMidnight(time.Date(2025, 3, 9, 0, 0, 0, 0, ny)))
	assert.Equal(t, 25*time.Hour, UntilNextMidnight(time.Date(2025, 11, 2, 0, 0, 0, 0, ny)))
	assert.Equal(t, time.Minute, UntilNextMidnight(time.Date(2025, 3, 10, 23, 59, 0, 0, ny)))
}

type fakeTimer struct {
	d time.Duration
	c chan time.Time
}

func (f *fakeTimer) C() <-chan time.Time { return f.c }
func (f *fakeTimer) Stop() bool          { return true }

func TestClockRearmsFromExactDelta(t *testing.T) {
	clock := &manualClock{t: time.Date(2025, 3, 10, 23, 59, 30, 0, time.UTC)}
	armed := make(chan *fakeTimer, 8)
	c := Clock{
		Now: clock.Now,
		NewTimer: func(d time.Duration) Timer {
			ft := &fakeTimer{d: d, c: make(chan time.Time)}
			armed <- ft
			return ft
		},
	}

	minutes := make(chan time.Time, 4)
	midnights := make(chan time.Time, 4)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- c.Run(ctx,
			func(now time.Time) { minutes <- now },
			func(now time.Time) { midnights <- now },
		)
	}()

	minute, midnight := <-armed, <-armed
	assert.Equal(t, 30*time.Second, minute.d)
	assert.Equal(t, 30*time.Second, midnight.d)

	clock.Set(time.Date(2025, 3, 11, 0, 0, 0, 0, time.UTC))
	minute.c <- clock.Now()
	assert.Equal(t, clock.Now(), <-minutes)
	next := <-armed
	assert.Equal(t, time.Minute, next.d)

	midnight.c <- clock.Now()
	assert.Equal(t, clock.Now(), <-midnights)
	next = <-armed
	assert.Equal(t, 24*time.Hour, next.d)

	cancel()
	assert.ErrorIs(t, <-done, context.Canceled)
}

func TestSessionRunStopsOnCancel(t *testing.T) {
	clock := &manualClock{t: monday(6, 59)}
	store := newFakeStore(clock.Now, scheduled(1, 1, "07:00"))
	armed := make(chan *fakeTimer, 8)
	s := NewSession(store, Options{
		UserID:   "u1",
		Location: time.UTC,
		Now:      clock.Now,
		Clock: Clock{NewTimer: func(d time.Duration) Timer {
			ft := &fakeTimer{d: d, c: make(chan time.Time)}
			armed <- ft
			return ft
		}},
	})
	require.NoError(t, s.Reload(context.Background()))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()

	minute := <-armed
	<-armed
	clock.Set(monday(7, 0))
	minute.c <- clock.Now()
	<-armed

	cur, ok := s.Current()
	require.True(t, ok)
	assert.Equal(t, int64(1), cur.DefinitionID)

	cancel()
	assert.NoError(t, <-done)
}
