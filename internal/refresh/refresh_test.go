package refresh

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestController_ReschedulesOnServerDelay(t *testing.T) {
	var runs atomic.Int32
	c := New(func(ctx context.Context) (time.Duration, error) {
		runs.Add(1)
		return 20 * time.Millisecond, nil
	}, Config{})
	t.Cleanup(c.Cancel)

	c.Start(context.Background())

	assert.Eventually(t, func() bool { return runs.Load() >= 3 }, time.Second, 5*time.Millisecond)
	assert.Eventually(t, func() bool {
		d, ok := c.Pending()
		return ok && d == 20*time.Millisecond
	}, time.Second, 5*time.Millisecond)
}

func TestController_NewScheduleSupersedes(t *testing.T) {
	var runs atomic.Int32
	c := New(func(ctx context.Context) (time.Duration, error) {
		runs.Add(1)
		return time.Hour, nil
	}, Config{})
	t.Cleanup(c.Cancel)

	c.ScheduleNext(10 * time.Millisecond)
	c.ScheduleNext(time.Hour)

	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, int32(0), runs.Load())

	d, ok := c.Pending()
	require.True(t, ok)
	assert.Equal(t, time.Hour, d)
}

func TestController_Cancel(t *testing.T) {
	var runs atomic.Int32
	c := New(func(ctx context.Context) (time.Duration, error) {
		runs.Add(1)
		return 10 * time.Millisecond, nil
	}, Config{})

	c.ScheduleNext(10 * time.Millisecond)
	c.Cancel()
	c.ScheduleNext(10 * time.Millisecond) // No effect after cancel

	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, int32(0), runs.Load())

	_, ok := c.Pending()
	assert.False(t, ok)
}

func TestController_CancelDuringRun(t *testing.T) {
	var (
		runs    atomic.Int32
		started = make(chan struct{})
		release = make(chan struct{})
	)
	c := New(func(ctx context.Context) (time.Duration, error) {
		if runs.Add(1) == 1 {
			close(started)
		}
		<-release
		return time.Millisecond, nil
	}, Config{})

	c.ScheduleNext(0)
	<-started
	c.Cancel()
	close(release)

	time.Sleep(30 * time.Millisecond)
	assert.Equal(t, int32(1), runs.Load())
	_, ok := c.Pending()
	assert.False(t, ok)
}

func TestController_BacksOffOnFailure(t *testing.T) {
	var (
		runs atomic.Int32
		fail atomic.Bool
	)
	fail.Store(true)
	c := New(func(ctx context.Context) (time.Duration, error) {
		runs.Add(1)
		if fail.Load() {
			return 0, errors.New("connection refused")
		}
		return time.Hour, nil
	}, Config{MinBackoff: 5 * time.Millisecond, MaxBackoff: 20 * time.Millisecond})
	t.Cleanup(c.Cancel)

	c.Start(context.Background())

	// Failures keep the cycle alive instead of stopping it
	assert.Eventually(t, func() bool { return runs.Load() >= 3 }, time.Second, time.Millisecond)
	d, ok := c.Pending()
	if ok {
		assert.LessOrEqual(t, d, 20*time.Millisecond)
	}

	fail.Store(false)
	assert.Eventually(t, func() bool {
		d, ok := c.Pending()
		return ok && d == time.Hour
	}, time.Second, time.Millisecond)
}

func TestController_DefaultIntervalWhenServerSilent(t *testing.T) {
	done := make(chan struct{})
	c := New(func(ctx context.Context) (time.Duration, error) {
		defer close(done)
		return 0, nil
	}, Config{DefaultInterval: 42 * time.Minute})
	t.Cleanup(c.Cancel)

	c.ScheduleNext(0)
	<-done

	assert.Eventually(t, func() bool {
		d, ok := c.Pending()
		return ok && d == 42*time.Minute
	}, time.Second, time.Millisecond)
}

func TestController_StopsWithContext(t *testing.T) {
	var runs atomic.Int32
	c := New(func(ctx context.Context) (time.Duration, error) {
		runs.Add(1)
		return 10 * time.Millisecond, nil
	}, Config{})

	ctx, cancel := context.WithCancel(context.Background())
	c.Start(ctx)
	assert.Eventually(t, func() bool { return runs.Load() >= 1 }, time.Second, time.Millisecond)

	cancel()
	assert.Eventually(t, func() bool {
		_, ok := c.Pending()
		return !ok
	}, time.Second, time.Millisecond)
}

func TestController_RunIsBoundedByTimeout(t *testing.T) {
	deadlines := make(chan bool, 1)
	c := New(func(ctx context.Context) (time.Duration, error) {
		_, ok := ctx.Deadline()
		deadlines <- ok
		return time.Hour, nil
	}, Config{Timeout: time.Second})
	t.Cleanup(c.Cancel)

	c.ScheduleNext(0)
	assert.True(t, <-deadlines)
}
