package dispatch

import (
	"time"

	"github.com/glimte/mmate-dispatch/internal/rabbitmq"
	"github.com/glimte/mmate-dispatch/internal/reliability"
	"github.com/glimte/mmate-dispatch/messaging"
)

// Connection status
type (
	ConnectionStatus   = rabbitmq.ConnectionStatus
	StatusListener     = rabbitmq.StatusListener
	StatusListenerFunc = rabbitmq.StatusListenerFunc
)

const (
	StatusConnecting    = rabbitmq.StatusConnecting
	StatusConnected     = rabbitmq.StatusConnected
	StatusDisconnecting = rabbitmq.StatusDisconnecting
	StatusDisconnected  = rabbitmq.StatusDisconnected
)

// UnboundedReconnects disables the reconnect attempt limit
const UnboundedReconnects = rabbitmq.UnboundedReconnects

// Handlers
type (
	MessageHandler     = messaging.MessageHandler
	MessageHandlerFunc = messaging.MessageHandlerFunc
	Delivery           = messaging.Delivery
)

// Errors
type (
	ConfigurationError        = rabbitmq.ConfigurationError
	ConnectionError           = rabbitmq.ConnectionError
	TopologyError             = rabbitmq.TopologyError
	UnexpectedActionTypeError = messaging.UnexpectedActionTypeError
)

var (
	ErrInvalidConfiguration = rabbitmq.ErrInvalidConfiguration
	ErrMaxRetriesExceeded   = rabbitmq.ErrMaxRetriesExceeded
	ErrGracefullyStopped    = rabbitmq.ErrGracefullyStopped
	ErrNotInitialized       = rabbitmq.ErrNotInitialized
	ErrEmptyMessage         = messaging.ErrEmptyMessage
)

// NewErrorContent returns {"error": msg} as a JSON string, ready to use as
// a reply payload
func NewErrorContent(msg string) string {
	return messaging.NewErrorContent(msg)
}

// BackoffPolicy computes the delay after a failed connection attempt
type BackoffPolicy = reliability.BackoffPolicy

// BackoffFunc adapts a function to BackoffPolicy
type BackoffFunc = reliability.BackoffFunc

// DefaultBackoff returns the randomized exponential policy: a delay drawn
// uniformly from [0, (2^attempt-1) * 500ms]
func DefaultBackoff() BackoffPolicy {
	return reliability.NewRandomizedExponential()
}

// FixedBackoff waits delay after every attempt
func FixedBackoff(delay time.Duration) BackoffPolicy {
	return reliability.NewFixedDelay(delay)
}
