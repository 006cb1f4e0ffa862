package retention

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/kiranshivaraju/sensordash/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type countingPurger struct {
	calls atomic.Int32
}

func (p *countingPurger) PurgeReadings(_ context.Context, _ models.SensorClass) (int64, error) {
	p.calls.Add(1)
	return 0, nil
}

func TestRun_FiresWhenTimerElapsesAndStopsOnCancel(t *testing.T) {
	loc, err := time.LoadLocation("Asia/Singapore")
	require.NoError(t, err)

	p := &countingPurger{}
	s := NewScheduler(p, nil, nil, Config{
		Location:     loc,
		Classes:      []models.SensorClass{models.SensorDoor, models.SensorVibration},
		TableTimeout: time.Second,
	})

	now := time.Date(2024, 6, 10, 23, 59, 0, 0, loc)
	s.now = func() time.Time { return now }

	fire := make(chan time.Time)
	waits := make(chan time.Duration, 4)
	s.timer = func(d time.Duration) (<-chan time.Time, func() bool) {
		waits <- d
		return fire, func() bool { return true }
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		s.Run(ctx)
	}()

	assert.Equal(t, time.Minute, <-waits)
	assert.Equal(t, time.Date(2024, 6, 11, 0, 0, 0, 0, loc), s.NextRun())

	fire <- now
	<-waits // rescheduled after firing
	assert.Equal(t, int32(2), p.calls.Load())

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("scheduler did not stop after cancel")
	}
}

func TestRun_ClockSteppedBackDoesNotRefireSlot(t *testing.T) {
	loc, err := time.LoadLocation("Asia/Singapore")
	require.NoError(t, err)

	p := &countingPurger{}
	s := NewScheduler(p, nil, nil, Config{
		Location:     loc,
		Classes:      []models.SensorClass{models.SensorDoor},
		TableTimeout: time.Second,
	})

	var now atomic.Pointer[time.Time]
	setNow := func(v time.Time) { now.Store(&v) }
	setNow(time.Date(2024, 6, 10, 23, 59, 0, 0, loc))
	s.now = func() time.Time { return *now.Load() }

	fire := make(chan time.Time)
	waits := make(chan time.Duration, 4)
	s.timer = func(d time.Duration) (<-chan time.Time, func() bool) {
		waits <- d
		return fire, func() bool { return true }
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go s.Run(ctx)

	<-waits
	midnight := time.Date(2024, 6, 11, 0, 0, 0, 0, loc)
	require.Equal(t, midnight, s.NextRun())

	// The timer fires, then the wall clock is stepped back two seconds.
	setNow(midnight.Add(-2 * time.Second))
	fire <- midnight

	wait := <-waits
	assert.Equal(t, int32(1), p.calls.Load())
	assert.Equal(t, midnight.AddDate(0, 0, 1), s.NextRun())
	assert.Equal(t, 24*time.Hour+2*time.Second, wait)
}
