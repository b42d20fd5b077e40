package messaging

import (
	"context"
)

// Transport opens broker channels. Implementations live under transports/.
type Transport interface {
	// Connect dials the broker described by connectionString and opens a
	// channel on it. onClose is invoked at most once, from a transport
	// goroutine, when the broker or network closes the connection with an
	// error. A graceful Channel.Close never triggers it.
	Connect(ctx context.Context, connectionString string, onClose func(err error)) (Channel, error)
}

// Channel exposes the primitive broker operations the client needs
type Channel interface {
	// DeclareExchange declares an exchange if it doesn't exist
	DeclareExchange(ctx context.Context, name, kind string, options ExchangeOptions) error

	// DeclareQueue declares a queue if it doesn't exist
	DeclareQueue(ctx context.Context, name string, options QueueOptions) error

	// BindQueue binds queue to exchange using a routing pattern
	BindQueue(ctx context.Context, queue, exchange, pattern string) error

	// Publish sends body to an exchange with the given routing key
	Publish(ctx context.Context, exchange, routingKey string, body []byte, properties Properties) error

	// SendToQueue sends body straight to a queue, bypassing exchanges
	SendToQueue(ctx context.Context, queue string, body []byte, properties Properties) error

	// Consume starts a consumer on queue and returns its consumer tag.
	// handler is called sequentially for every delivery. A nil message
	// signals that the broker ended the delivery stream without a local
	// cancel, e.g. because the queue or virtual host was deleted.
	Consume(ctx context.Context, queue string, options ConsumeOptions, handler func(msg *RawMessage)) (string, error)

	// Ack acknowledges a delivery
	Ack(deliveryTag uint64) error

	// Nack negatively acknowledges a delivery and requeues it
	Nack(deliveryTag uint64) error

	// Reject discards a delivery without requeueing it. The broker drops it
	// or dead-letters it when the queue has a dead-letter exchange.
	Reject(deliveryTag uint64) error

	// Cancel stops the consumer identified by consumerTag
	Cancel(ctx context.Context, consumerTag string) error

	// Prefetch limits unacknowledged deliveries per consumer
	Prefetch(count int) error

	// Close closes the channel and its connection
	Close() error
}

// ExchangeOptions defines options for exchange declaration
type ExchangeOptions struct {
	Durable    bool
	AutoDelete bool
	Args       map[string]interface{}
}

// QueueOptions defines options for queue declaration
type QueueOptions struct {
	Durable    bool
	AutoDelete bool
	Exclusive  bool
	Args       map[string]interface{}
}

// ConsumeOptions defines options for starting a consumer
type ConsumeOptions struct {
	Exclusive bool
	Args      map[string]interface{}
}
