package rabbitmq

import (
	"context"

	"github.com/glimte/mmate-dispatch/messaging"
)

const exchangeKindTopic = "topic"

// queueDeclaration returns the service queue declaration. Clusters get mirrored
// queues; single-active-consumer is requested when configured.
func (m *ConnectionManager) queueDeclaration() messaging.QueueOptions {
	options := messaging.QueueOptions{Durable: true}

	args := make(map[string]interface{})
	if m.options.IsCluster() {
		args[ArgHAMode] = "all"
	}
	if m.queueOptions.SingleActiveConsumer {
		args[ArgSingleActiveConsumer] = true
	}
	if len(args) > 0 {
		options.Args = args
	}

	return options
}

// assertTopicExchange declares the durable topic exchange used for
// broadcast sends. Redeclaring with the same options is a no-op.
func (m *ConnectionManager) assertTopicExchange(ctx context.Context, ch messaging.Channel) error {
	name := m.options.TopicExchange()
	if err := ch.DeclareExchange(ctx, name, exchangeKindTopic, messaging.ExchangeOptions{Durable: true}); err != nil {
		return &TopologyError{Component: "exchange", Name: name, Op: "declare", Err: err}
	}
	return nil
}

// assertServiceQueue declares the durable queue named after the service
func (m *ConnectionManager) assertServiceQueue(ctx context.Context, ch messaging.Channel) error {
	if err := ch.DeclareQueue(ctx, m.name, m.queueDeclaration()); err != nil {
		return &TopologyError{Component: "queue", Name: m.name, Op: "declare", Err: err}
	}
	return nil
}

// bindAction routes "*.<action>" from the topic exchange to the service queue
func (m *ConnectionManager) bindAction(ctx context.Context, ch messaging.Channel, action string) error {
	pattern := "*." + action
	if err := ch.BindQueue(ctx, m.name, m.options.TopicExchange(), pattern); err != nil {
		return &TopologyError{Component: "binding", Name: pattern, Op: "bind", Err: err}
	}
	return nil
}
