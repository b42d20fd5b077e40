package rabbitmq

import (
	"errors"
	"fmt"
	"time"
)

var (
	// ErrInvalidConfiguration is wrapped by every ConfigurationError
	ErrInvalidConfiguration = errors.New("rabbitmq: invalid configuration")

	// ErrMaxRetriesExceeded is wrapped by ConnectionError when attempts run out
	ErrMaxRetriesExceeded = errors.New("rabbitmq: maximum reconnection attempts exceeded")

	// ErrGracefullyStopped aborts a connect loop after Close was called
	ErrGracefullyStopped = errors.New("rabbitmq: connection process gracefully stopped")

	// ErrNotInitialized is returned by operations that need Connect first
	ErrNotInitialized = errors.New("rabbitmq: connection was not initialized with Connect")
)

// ConfigurationError reports options that cannot produce a connection string
type ConfigurationError struct {
	Reason string
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("rabbitmq: wrong configuration: %s", e.Reason)
}

func (e *ConfigurationError) Unwrap() error {
	return ErrInvalidConfiguration
}

// ConnectionError reports a connect loop that gave up. Options never carry
// the password.
type ConnectionError struct {
	Op        string            // Operation that failed
	Options   ConnectionOptions // Redacted options
	Reason    string            // Why the loop gave up
	Attempts  int               // Number of attempts made
	Err       error             // Last underlying error
	Timestamp time.Time
}

func (e *ConnectionError) Error() string {
	return fmt.Sprintf("rabbitmq connection error: %s failed after %d attempts (%s) host=%q cluster=%v vhost=%q user=%q: %v",
		e.Op, e.Attempts, e.Reason, e.Options.Host, e.Options.Cluster, e.Options.VHost, e.Options.Username, e.Err)
}

// Is matches ErrMaxRetriesExceeded as well as the underlying error
func (e *ConnectionError) Is(target error) bool {
	return target == ErrMaxRetriesExceeded
}

func (e *ConnectionError) Unwrap() error {
	return e.Err
}

// TopologyError represents a failed declaration or binding
type TopologyError struct {
	Component string // exchange, queue, binding
	Name      string
	Op        string
	Err       error
}

func (e *TopologyError) Error() string {
	return fmt.Sprintf("rabbitmq topology error: failed to %s %s '%s': %v",
		e.Op, e.Component, e.Name, e.Err)
}

func (e *TopologyError) Unwrap() error {
	return e.Err
}

// IsFatal reports errors that must not be retried
func IsFatal(err error) bool {
	switch {
	case err == nil:
		return false
	case errors.Is(err, ErrInvalidConfiguration),
		errors.Is(err, ErrMaxRetriesExceeded),
		errors.Is(err, ErrGracefullyStopped):
		return true
	}
	return false
}
