package rabbitmq

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/glimte/mmate-dispatch/messaging"
)

// DefaultRoutingAction names the routing key suffix of messages without action
const DefaultRoutingAction = "default"

// PostMessage sends payload. With recipients it goes straight to each
// recipient's queue, in parallel, bypassing the exchange; without, it is
// published to the topic exchange as "<service>.<action>". Caller-set
// properties win over the defaults (replyTo, message id, timestamp,
// persistent delivery).
func (m *ConnectionManager) PostMessage(ctx context.Context, recipients []string, payload interface{}, properties messaging.Properties) error {
	ch, err := m.channel(ctx)
	if err != nil {
		return err
	}

	properties = m.withDefaults(properties)

	body, err := messaging.EncodeContent(payload, properties.IsOriginalContent())
	if err != nil {
		return err
	}

	m.logger.Info("sending message",
		"recipients", recipients,
		"messageId", properties.MessageID,
		"correlationId", properties.CorrelationID,
	)

	if len(recipients) > 0 {
		g, gctx := errgroup.WithContext(ctx)
		for _, recipient := range recipients {
			recipient := recipient
			g.Go(func() error {
				if err := ch.SendToQueue(gctx, recipient, body, properties); err != nil {
					return fmt.Errorf("failed to send to %s: %w", recipient, err)
				}
				return nil
			})
		}
		return g.Wait()
	}

	exchange := m.options.TopicExchange()
	routingKey := m.routingKey(properties)
	if err := ch.Publish(ctx, exchange, routingKey, body, properties); err != nil {
		return fmt.Errorf("failed to publish to %s/%s: %w", exchange, routingKey, err)
	}
	return nil
}

func (m *ConnectionManager) withDefaults(p messaging.Properties) messaging.Properties {
	if p.MessageID == "" {
		p.MessageID = uuid.NewString()
	}
	if p.Timestamp.IsZero() {
		p.Timestamp = time.Now()
	}
	if p.DeliveryMode == 0 {
		p.DeliveryMode = messaging.Persistent
	}
	if p.ReplyTo == "" {
		p.ReplyTo = m.name
	}
	return p
}

func (m *ConnectionManager) routingKey(p messaging.Properties) string {
	if v, ok := p.Header(messaging.HeaderRoutingKey); ok {
		if key, ok := v.(string); ok && key != "" {
			return key
		}
	}

	action := DefaultRoutingAction
	if v, ok := p.Header(messaging.HeaderAction); ok {
		if a, ok := v.(string); ok && a != "" {
			action = a
		}
	}
	return m.name + "." + action
}
