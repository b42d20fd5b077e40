package reliability

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestRandomizedExponential(t *testing.T) {
	t.Run("upper bound doubles per attempt", func(t *testing.T) {
		r := NewRandomizedExponential()
		r.random = func() float64 { return 1 }

		assert.Equal(t, 500*time.Millisecond, r.NextDelay(1))
		assert.Equal(t, 1500*time.Millisecond, r.NextDelay(2))
		assert.Equal(t, 3500*time.Millisecond, r.NextDelay(3))
		assert.Equal(t, 7500*time.Millisecond, r.NextDelay(4))
	})

	t.Run("lower bound is zero", func(t *testing.T) {
		r := NewRandomizedExponential()
		r.random = func() float64 { return 0 }

		assert.Zero(t, r.NextDelay(5))
	})

	t.Run("random delays stay in range", func(t *testing.T) {
		r := NewRandomizedExponential()
		for attempt := 1; attempt <= 6; attempt++ {
			upper := time.Duration((1<<attempt)-1) * DefaultBaseInterval
			for i := 0; i < 50; i++ {
				d := r.NextDelay(attempt)
				assert.GreaterOrEqual(t, d, time.Duration(0))
				assert.LessOrEqual(t, d, upper)
			}
		}
	})

	t.Run("no delay before the first attempt", func(t *testing.T) {
		r := NewRandomizedExponential()
		assert.Zero(t, r.NextDelay(0))
		assert.Zero(t, r.NextDelay(-3))
	})

	t.Run("caps at max interval", func(t *testing.T) {
		r := &RandomizedExponential{
			BaseInterval: 100 * time.Millisecond,
			MaxInterval:  time.Second,
			random:       func() float64 { return 1 },
		}
		assert.Equal(t, time.Second, r.NextDelay(10))
	})

	t.Run("large attempts do not overflow", func(t *testing.T) {
		r := NewRandomizedExponential()
		r.random = func() float64 { return 1 }
		assert.Greater(t, r.NextDelay(1000), time.Duration(0))
	})
}

func TestFixedDelay(t *testing.T) {
	f := NewFixedDelay(DefaultFixedDelay)
	for attempt := 1; attempt < 5; attempt++ {
		assert.Equal(t, time.Second, f.NextDelay(attempt))
	}
}

func TestBackoffFunc(t *testing.T) {
	var policy BackoffPolicy = BackoffFunc(func(attempt int) time.Duration {
		return time.Duration(attempt) * time.Millisecond
	})
	assert.Equal(t, 3*time.Millisecond, policy.NextDelay(3))
}

func TestSleep(t *testing.T) {
	t.Run("waits for the duration", func(t *testing.T) {
		start := time.Now()
		err := Sleep(context.Background(), 20*time.Millisecond, nil)
		assert.NoError(t, err)
		assert.GreaterOrEqual(t, time.Since(start), 20*time.Millisecond)
	})

	t.Run("stop channel wakes early", func(t *testing.T) {
		stop := make(chan struct{})
		close(stop)

		start := time.Now()
		err := Sleep(context.Background(), time.Minute, stop)
		assert.NoError(t, err)
		assert.Less(t, time.Since(start), time.Second)
	})

	t.Run("context cancellation wakes early", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		err := Sleep(ctx, time.Minute, nil)
		assert.ErrorIs(t, err, context.Canceled)
	})

	t.Run("zero duration returns immediately", func(t *testing.T) {
		assert.NoError(t, Sleep(context.Background(), 0, nil))
	})
}
