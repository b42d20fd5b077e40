package reliability

import (
	"context"
	"math/rand"
	"time"
)

const (
	// DefaultBaseInterval is the unit of the default exponential policy
	DefaultBaseInterval = 500 * time.Millisecond

	// DefaultFixedDelay is the delay of the "infinite" strategy
	DefaultFixedDelay = time.Second

	// maxExponent keeps 2^attempt within int64 nanoseconds
	maxExponent = 30
)

// BackoffPolicy computes reconnect delays
type BackoffPolicy interface {
	// NextDelay returns the delay to wait after the given failed attempt
	NextDelay(attempt int) time.Duration
}

// BackoffFunc is a function adapter for BackoffPolicy
type BackoffFunc func(attempt int) time.Duration

// NextDelay implements BackoffPolicy
func (f BackoffFunc) NextDelay(attempt int) time.Duration {
	return f(attempt)
}

// RandomizedExponential picks a delay uniformly from
// [0, (2^attempt - 1) * BaseInterval], optionally capped by MaxInterval
type RandomizedExponential struct {
	BaseInterval time.Duration
	MaxInterval  time.Duration // 0 means uncapped

	random func() float64
}

// NewRandomizedExponential creates the default policy with a 500ms base
func NewRandomizedExponential() *RandomizedExponential {
	return &RandomizedExponential{
		BaseInterval: DefaultBaseInterval,
		random:       rand.Float64,
	}
}

// NextDelay implements BackoffPolicy
func (r *RandomizedExponential) NextDelay(attempt int) time.Duration {
	if attempt < 1 {
		return 0
	}
	if attempt > maxExponent {
		attempt = maxExponent
	}

	base := r.BaseInterval
	if base <= 0 {
		base = DefaultBaseInterval
	}

	upper := float64(int64(1)<<uint(attempt)-1) * float64(base)
	if r.MaxInterval > 0 && upper > float64(r.MaxInterval) {
		upper = float64(r.MaxInterval)
	}

	random := r.random
	if random == nil {
		random = rand.Float64
	}

	return time.Duration(random() * upper).Round(time.Millisecond)
}

// FixedDelay waits the same amount of time after every attempt
type FixedDelay struct {
	Delay time.Duration
}

// NewFixedDelay creates a fixed delay policy
func NewFixedDelay(delay time.Duration) *FixedDelay {
	return &FixedDelay{Delay: delay}
}

// NextDelay implements BackoffPolicy
func (f *FixedDelay) NextDelay(attempt int) time.Duration {
	return f.Delay
}

// Sleep waits for d, returning early with ctx.Err() when ctx is done or with
// nil when stop is closed. Callers re-check their own state afterwards.
func Sleep(ctx context.Context, d time.Duration, stop <-chan struct{}) error {
	if d <= 0 {
		return ctx.Err()
	}

	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-timer.C:
		return nil
	case <-stop:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
