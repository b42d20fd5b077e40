// Package reliability provides the reconnect backoff policies.
//
// Policies map a 1-based attempt number to the delay to wait before the next
// attempt:
//   - RandomizedExponential: uniform random delay in [0, (2^attempt-1)*Base],
//     the default, which spreads reconnect storms across many clients
//   - FixedDelay: the same delay every time, used for "retry forever" setups
//
// Any type with a NextDelay(attempt int) time.Duration method can be
// plugged in, and BackoffFunc adapts a plain function:
//
//	policy := reliability.BackoffFunc(func(attempt int) time.Duration {
//	    return time.Duration(attempt) * time.Second
//	})
package reliability
