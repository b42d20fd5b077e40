package interceptors

import (
	"context"
	"log/slog"
	"time"

	"github.com/glimte/mmate-dispatch/messaging"
)

// Interceptor processes a delivery before it reaches the handler
type Interceptor interface {
	// Intercept processes a delivery and calls next to continue the chain
	Intercept(ctx context.Context, d *messaging.Delivery, next messaging.MessageHandler) error

	// Name returns the interceptor name for logging and debugging
	Name() string
}

// InterceptorFunc is a function adapter for Interceptor
type InterceptorFunc struct {
	name string
	fn   func(ctx context.Context, d *messaging.Delivery, next messaging.MessageHandler) error
}

// NewInterceptorFunc creates a new function-based interceptor
func NewInterceptorFunc(name string, fn func(ctx context.Context, d *messaging.Delivery, next messaging.MessageHandler) error) *InterceptorFunc {
	return &InterceptorFunc{name: name, fn: fn}
}

// Intercept implements Interceptor
func (i *InterceptorFunc) Intercept(ctx context.Context, d *messaging.Delivery, next messaging.MessageHandler) error {
	return i.fn(ctx, d, next)
}

// Name implements Interceptor
func (i *InterceptorFunc) Name() string {
	return i.name
}

// Chain is an ordered list of interceptors
type Chain struct {
	interceptors []Interceptor
	logger       *slog.Logger
}

// NewChain creates an empty chain
func NewChain(logger *slog.Logger) *Chain {
	if logger == nil {
		logger = slog.Default()
	}
	return &Chain{logger: logger}
}

// Add appends an interceptor to the chain
func (c *Chain) Add(interceptor Interceptor) *Chain {
	c.interceptors = append(c.interceptors, interceptor)
	return c
}

// Len returns the number of interceptors
func (c *Chain) Len() int {
	return len(c.interceptors)
}

// Then wraps handler with the chain
func (c *Chain) Then(handler messaging.MessageHandler) messaging.MessageHandler {
	if c == nil || len(c.interceptors) == 0 {
		return handler
	}

	names := make([]string, len(c.interceptors))
	for i, interceptor := range c.interceptors {
		names[i] = interceptor.Name()
	}
	c.logger.Debug("building interceptor chain", "interceptors", names)

	// Build the chain in reverse order
	wrapped := handler
	for i := len(c.interceptors) - 1; i >= 0; i-- {
		interceptor := c.interceptors[i]
		next := wrapped
		wrapped = messaging.MessageHandlerFunc(func(ctx context.Context, d *messaging.Delivery) error {
			return interceptor.Intercept(ctx, d, next)
		})
	}
	return wrapped
}

// LoggingInterceptor logs every delivery and its outcome
type LoggingInterceptor struct {
	logger *slog.Logger
}

// NewLoggingInterceptor creates a new logging interceptor
func NewLoggingInterceptor(logger *slog.Logger) *LoggingInterceptor {
	if logger == nil {
		logger = slog.Default()
	}
	return &LoggingInterceptor{logger: logger}
}

// Intercept implements Interceptor
func (i *LoggingInterceptor) Intercept(ctx context.Context, d *messaging.Delivery, next messaging.MessageHandler) error {
	start := time.Now()

	i.logger.Debug("processing message",
		"action", d.Action,
		"messageId", d.Properties.MessageID,
		"correlationId", d.Properties.CorrelationID,
		"redelivered", d.Fields.Redelivered,
	)

	err := next.Handle(ctx, d)
	duration := time.Since(start)

	if err != nil {
		i.logger.Error("message processing failed",
			"action", d.Action,
			"messageId", d.Properties.MessageID,
			"duration", duration,
			"error", err,
		)
	} else {
		i.logger.Info("message processed",
			"action", d.Action,
			"messageId", d.Properties.MessageID,
			"duration", duration,
		)
	}

	return err
}

// Name implements Interceptor
func (i *LoggingInterceptor) Name() string {
	return "LoggingInterceptor"
}

// TimeoutInterceptor bounds the handler context
type TimeoutInterceptor struct {
	timeout time.Duration
}

// NewTimeoutInterceptor creates a new timeout interceptor
func NewTimeoutInterceptor(timeout time.Duration) *TimeoutInterceptor {
	return &TimeoutInterceptor{timeout: timeout}
}

// Intercept implements Interceptor. The handler keeps running after the
// deadline; it is expected to honour ctx.
func (i *TimeoutInterceptor) Intercept(ctx context.Context, d *messaging.Delivery, next messaging.MessageHandler) error {
	ctx, cancel := context.WithTimeout(ctx, i.timeout)
	defer cancel()
	return next.Handle(ctx, d)
}

// Name implements Interceptor
func (i *TimeoutInterceptor) Name() string {
	return "TimeoutInterceptor"
}
