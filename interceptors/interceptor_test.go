package interceptors

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/glimte/mmate-dispatch/messaging"
)

func recordingInterceptor(name string, calls *[]string) Interceptor {
	return NewInterceptorFunc(name, func(ctx context.Context, d *messaging.Delivery, next messaging.MessageHandler) error {
		*calls = append(*calls, name+":before")
		err := next.Handle(ctx, d)
		*calls = append(*calls, name+":after")
		return err
	})
}

func TestChain(t *testing.T) {
	t.Run("runs interceptors in order", func(t *testing.T) {
		var calls []string
		chain := NewChain(nil).
			Add(recordingInterceptor("first", &calls)).
			Add(recordingInterceptor("second", &calls))

		handler := chain.Then(messaging.MessageHandlerFunc(func(ctx context.Context, d *messaging.Delivery) error {
			calls = append(calls, "handler")
			return nil
		}))

		require.NoError(t, handler.Handle(context.Background(), messaging.NewDelivery("a", messaging.Message{}, nil, nil)))
		assert.Equal(t, []string{"first:before", "second:before", "handler", "second:after", "first:after"}, calls)
		assert.Equal(t, 2, chain.Len())
	})

	t.Run("logs the chain it builds", func(t *testing.T) {
		var buf bytes.Buffer
		logger := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))

		NewChain(logger).
			Add(NewLoggingInterceptor(logger)).
			Add(NewTimeoutInterceptor(time.Second)).
			Then(messaging.MessageHandlerFunc(func(ctx context.Context, d *messaging.Delivery) error { return nil }))

		assert.Contains(t, buf.String(), "building interceptor chain")
		assert.Contains(t, buf.String(), "LoggingInterceptor")
		assert.Contains(t, buf.String(), "TimeoutInterceptor")
	})

	t.Run("empty chain returns the handler", func(t *testing.T) {
		called := false
		handler := NewChain(nil).Then(messaging.MessageHandlerFunc(func(ctx context.Context, d *messaging.Delivery) error {
			called = true
			return nil
		}))

		require.NoError(t, handler.Handle(context.Background(), nil))
		assert.True(t, called)
	})

	t.Run("nil chain returns the handler", func(t *testing.T) {
		var chain *Chain
		h := messaging.MessageHandlerFunc(func(ctx context.Context, d *messaging.Delivery) error { return nil })
		assert.NotNil(t, chain.Then(h))
	})
}

func TestLoggingInterceptor(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, nil))
	interceptor := NewLoggingInterceptor(logger)

	d := messaging.NewDelivery("created", messaging.Message{
		Properties: messaging.Properties{MessageID: "m-1"},
	}, nil, nil)

	err := interceptor.Intercept(context.Background(), d, messaging.MessageHandlerFunc(
		func(ctx context.Context, d *messaging.Delivery) error { return errors.New("boom") },
	))

	assert.EqualError(t, err, "boom")
	assert.Contains(t, buf.String(), "message processing failed")
	assert.Contains(t, buf.String(), "messageId=m-1")
}

func TestTimeoutInterceptor(t *testing.T) {
	interceptor := NewTimeoutInterceptor(10 * time.Millisecond)

	err := interceptor.Intercept(context.Background(), nil, messaging.MessageHandlerFunc(
		func(ctx context.Context, d *messaging.Delivery) error {
			<-ctx.Done()
			return ctx.Err()
		},
	))

	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestFilteringInterceptor(t *testing.T) {
	newDelivery := func(action string, redelivered bool, acked, nacked *bool) *messaging.Delivery {
		return messaging.NewDelivery(action,
			messaging.Message{Fields: messaging.Fields{Redelivered: redelivered}},
			func() error { *acked = true; return nil },
			func() error { *nacked = true; return nil },
		)
	}

	passed := false
	next := messaging.MessageHandlerFunc(func(ctx context.Context, d *messaging.Delivery) error {
		passed = true
		return nil
	})

	t.Run("allowed action passes", func(t *testing.T) {
		passed = false
		var acked, nacked bool
		i := NewFilteringInterceptor(NewActionFilter("created"), SkipAck)

		require.NoError(t, i.Intercept(context.Background(), newDelivery("created", false, &acked, &nacked), next))
		assert.True(t, passed)
		assert.False(t, acked)
	})

	t.Run("filtered action is acked", func(t *testing.T) {
		passed = false
		var acked, nacked bool
		i := NewFilteringInterceptor(NewActionFilter("created"), SkipAck)

		require.NoError(t, i.Intercept(context.Background(), newDelivery("deleted", false, &acked, &nacked), next))
		assert.False(t, passed)
		assert.True(t, acked)
	})

	t.Run("redelivery is requeued", func(t *testing.T) {
		passed = false
		var acked, nacked bool
		i := NewFilteringInterceptor(RedeliveryFilter{}, SkipNack)

		require.NoError(t, i.Intercept(context.Background(), newDelivery("created", true, &acked, &nacked), next))
		assert.False(t, passed)
		assert.True(t, nacked)
	})
}
