package rabbitmq

import (
	"context"
	"errors"
	"fmt"

	"github.com/glimte/mmate-dispatch/messaging"
)

// Subscribe makes handler the default action and starts consuming the
// service queue if nothing consumes it yet
func (m *ConnectionManager) Subscribe(ctx context.Context, handler messaging.MessageHandler) error {
	m.registry.Set(messaging.DefaultAction, handler)
	return m.initQueue(ctx, m.name)
}

// SubscribeOn registers handler for action, starts consuming the service
// queue if needed and binds "*.<action>" on the topic exchange
func (m *ConnectionManager) SubscribeOn(ctx context.Context, action string, handler messaging.MessageHandler) error {
	if m.conn.Load() == nil {
		return ErrNotInitialized
	}

	m.registry.Set(action, handler)

	if err := m.initQueue(ctx, m.name); err != nil {
		return err
	}

	ch, err := m.channel(ctx)
	if err != nil {
		return err
	}
	return m.bindAction(ctx, ch, action)
}

// ConsumerTag returns the consumer tag recorded for queue
func (m *ConnectionManager) ConsumerTag(queue string) (string, bool) {
	m.tagsMu.Lock()
	defer m.tagsMu.Unlock()
	tag, ok := m.consumerTags[queue]
	return tag, ok
}

func (m *ConnectionManager) setConsumerTag(queue, tag string) {
	m.tagsMu.Lock()
	defer m.tagsMu.Unlock()
	m.consumerTags[queue] = tag
}

// clearConsumerTag forgets tag for queue unless a newer consumer replaced it
func (m *ConnectionManager) clearConsumerTag(queue, tag string) {
	m.tagsMu.Lock()
	defer m.tagsMu.Unlock()
	if m.consumerTags[queue] == tag {
		delete(m.consumerTags, queue)
	}
}

// initQueue starts the one consumer of queue. Prefetch is pinned to 1: more
// unacked messages per consumer, or a second consumer on the queue, turns
// nack-and-requeue into endless redelivery cycles.
func (m *ConnectionManager) initQueue(ctx context.Context, queue string) error {
	m.consumeMu.Lock()
	defer m.consumeMu.Unlock()

	if _, ok := m.ConsumerTag(queue); ok {
		return nil
	}

	ch, err := m.channel(ctx)
	if err != nil {
		return err
	}

	if err := ch.Prefetch(1); err != nil {
		return fmt.Errorf("failed to set prefetch: %w", err)
	}

	tag, err := ch.Consume(ctx, queue, messaging.ConsumeOptions{}, func(msg *messaging.RawMessage) {
		m.handleMessage(ch, msg)
	})
	if err != nil {
		return fmt.Errorf("failed to consume queue %s: %w", queue, err)
	}
	m.setConsumerTag(queue, tag)

	m.logger.Info("subscribed to queue", "queue", queue, "consumerTag", tag)
	return nil
}

// Unsubscribe cancels the consumer of the service queue. Failures are
// logged, never returned, and the cancelled tag is always cleared so the
// teardown and reconnect paths can call it unconditionally. It holds the
// same lock as initQueue, so a cancel and a consumer start never interleave.
func (m *ConnectionManager) Unsubscribe(ctx context.Context) error {
	if m.conn.Load() == nil {
		return ErrNotInitialized
	}

	m.consumeMu.Lock()
	defer m.consumeMu.Unlock()

	tag, ok := m.ConsumerTag(m.name)
	if !ok {
		m.logger.Info("no consumer to cancel", "queue", m.name)
		return nil
	}

	m.logger.Warn("unsubscribing from service queue", "queue", m.name, "consumerTag", tag)
	defer m.clearConsumerTag(m.name, tag)

	ch, err := m.channel(ctx)
	if err != nil {
		m.logger.Error("cannot unsubscribe", "queue", m.name, "error", err)
		return nil
	}
	if err := ch.Cancel(ctx, tag); err != nil {
		m.logger.Error("cannot unsubscribe", "queue", m.name, "consumerTag", tag, "error", err)
		return nil
	}

	m.logger.Info("unsubscribed from queue", "queue", m.name, "consumerTag", tag)
	return nil
}

// handleMessage runs on the transport's delivery goroutine. Nothing escapes
// it: every error is logged here.
func (m *ConnectionManager) handleMessage(ch messaging.Channel, msg *messaging.RawMessage) {
	err := m.dispatch(m.ctx, ch, msg)
	if err == nil {
		return
	}

	if errors.Is(err, messaging.ErrEmptyMessage) {
		go func() {
			_ = m.Unsubscribe(m.ctx)
		}()
	}

	attrs := []any{"queue", m.name, "error", err}
	if msg != nil {
		attrs = append(attrs, "deliveryTag", msg.Fields.DeliveryTag, "messageId", msg.Properties.MessageID)
	}
	m.logger.Error("failed to handle message", attrs...)
}

func (m *ConnectionManager) dispatch(ctx context.Context, ch messaging.Channel, msg *messaging.RawMessage) (err error) {
	if err := messaging.ValidateMessage(msg); err != nil {
		return err
	}

	tag := msg.Fields.DeliveryTag
	action, err := messaging.ActionOf(msg.Properties)
	if err != nil {
		// redelivering it would only fail the same way
		if rerr := ch.Reject(tag); rerr != nil {
			return errors.Join(err, fmt.Errorf("failed to reject delivery %d: %w", tag, rerr))
		}
		return err
	}

	handler := m.registry.Get(action)
	delivery := messaging.NewDelivery(action,
		messaging.Message{
			Content:    messaging.DecodeContent(msg.Body),
			Body:       msg.Body,
			Fields:     msg.Fields,
			Properties: msg.Properties,
		},
		func() error { return ch.Ack(tag) },
		func() error { return ch.Nack(tag) },
	)

	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("handler for action %q panicked: %v", action, r)
		}
		if err != nil && !delivery.Settled() {
			m.settleFailed(ch, delivery)
		}
	}()

	if err := handler.Handle(ctx, delivery); err != nil {
		return fmt.Errorf("handler for action %q failed: %w", action, err)
	}
	return nil
}

// settleFailed settles a delivery whose handler failed without settling it.
// A first failure is requeued; a redelivered message that fails again is
// rejected so it cannot hold the single prefetch slot forever.
func (m *ConnectionManager) settleFailed(ch messaging.Channel, d *messaging.Delivery) {
	tag := d.Fields.DeliveryTag

	var err error
	if d.Fields.Redelivered {
		err = ch.Reject(tag)
		m.logger.Warn("rejected redelivered message after handler failure", "action", d.Action, "deliveryTag", tag)
	} else {
		err = ch.Nack(tag)
	}
	if err != nil {
		m.logger.Error("failed to settle message", "action", d.Action, "deliveryTag", tag, "error", err)
	}
}
