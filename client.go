// Copyright 2024 Mmate Contributors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package dispatch is a resilient client for a RabbitMQ topic-routed
// service mesh. Each service owns a durable queue named after it, consumes
// it with one consumer and dispatches deliveries to handlers keyed by the
// "action" header. Broadcasts go through a shared topic exchange as
// "<service>.<action>"; point-to-point sends go straight to the recipient
// queues. Broker-side disconnects are recovered transparently with
// randomized exponential backoff and every action binding is restored.
//
//	client, err := dispatch.NewClient(ctx, "orders",
//	    dispatch.WithCredentials("guest", "guest"),
//	    dispatch.WithHost("localhost:5672"),
//	)
//	if err != nil {
//	    return err
//	}
//	defer client.Close(ctx)
//
//	err = client.ConsumeByAction(ctx, "created", dispatch.MessageHandlerFunc(
//	    func(ctx context.Context, d *dispatch.Delivery) error {
//	        return d.Ack()
//	    }))
package dispatch

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/glimte/mmate-dispatch/interceptors"
	"github.com/glimte/mmate-dispatch/internal/rabbitmq"
	"github.com/glimte/mmate-dispatch/messaging"
	rabbitmqTransport "github.com/glimte/mmate-dispatch/transports/rabbitmq"
	streadwayTransport "github.com/glimte/mmate-dispatch/transports/streadway"
)

// Client provides the main entry point for mmate-dispatch. It owns one
// broker connection for one service: the service queue is named after the
// service and every message sent carries replyTo = service name.
type Client struct {
	manager     *rabbitmq.ConnectionManager
	serviceName string
	logger      *slog.Logger
	chain       *interceptors.Chain
}

// SendMessage describes an outgoing message
type SendMessage struct {
	// Action selects the handler on the receiving side and, for broadcasts,
	// the routing key suffix
	Action  string
	Payload interface{}
	// Recipients are queue names. When set the message goes straight to
	// each queue; otherwise it is broadcast on the topic exchange.
	Recipients    []string
	RequestID     string
	CorrelationID string
	// RoutingKey overrides "<service>.<action>" for broadcasts
	RoutingKey string
	// IsOriginalContent sends a []byte Payload as is instead of JSON encoding it
	IsOriginalContent bool
}

// NewClient connects to the broker and provisions the service queue and
// topic exchange. It blocks until connected, until the reconnect limit is
// reached or until ctx is done.
func NewClient(ctx context.Context, serviceName string, options ...ClientOption) (*Client, error) {
	cfg := newClientConfig()
	for _, opt := range options {
		opt(cfg)
	}

	if serviceName == "" {
		return nil, &ConfigurationError{Reason: "service name is required"}
	}
	if cfg.connection.Host == "" && len(cfg.connection.Cluster) == 0 {
		cfg.connection.Host = rabbitmq.DefaultHost
	}

	transport, err := cfg.newTransport(serviceName)
	if err != nil {
		return nil, err
	}

	manager := rabbitmq.NewConnectionManager(serviceName, transport, cfg.connection,
		rabbitmq.WithLogger(cfg.logger),
		rabbitmq.WithQueueOptions(cfg.queue),
	)
	for _, l := range cfg.listeners {
		manager.AddStatusListener(l)
	}

	if _, err := manager.Connect(ctx); err != nil {
		return nil, err
	}

	cfg.logger.Info("client connected", "service", serviceName, "exchange", cfg.connection.TopicExchange())

	return &Client{
		manager:     manager,
		serviceName: serviceName,
		logger:      cfg.logger,
		chain:       cfg.chain,
	}, nil
}

func (cfg *clientConfig) newTransport(serviceName string) (messaging.Transport, error) {
	if cfg.transport != nil {
		return cfg.transport, nil
	}

	switch cfg.driver {
	case "", DriverAMQP091:
		return rabbitmqTransport.NewTransport(
			rabbitmqTransport.WithLogger(cfg.logger),
			rabbitmqTransport.WithConnectionName(serviceName),
		), nil
	case DriverStreadway:
		return streadwayTransport.NewTransport(streadwayTransport.WithLogger(cfg.logger)), nil
	default:
		return nil, &ConfigurationError{Reason: fmt.Sprintf("unknown driver %q", cfg.driver)}
	}
}

// ServiceName returns the service name, which is also the service queue name
func (c *Client) ServiceName() string {
	return c.serviceName
}

// Status returns the current connection status
func (c *Client) Status() ConnectionStatus {
	return c.manager.Status()
}

// AddStatusListener subscribes to connection status transitions and returns
// a function that removes the listener
func (c *Client) AddStatusListener(listener StatusListener) (remove func()) {
	return c.manager.AddStatusListener(listener)
}

// OnStatus is AddStatusListener for a plain function
func (c *Client) OnStatus(fn func(ConnectionStatus)) (remove func()) {
	return c.manager.AddStatusListener(StatusListenerFunc(fn))
}

// Send sends msg point-to-point to its recipients, or broadcasts it on the
// topic exchange when it has none
func (c *Client) Send(ctx context.Context, msg SendMessage) error {
	headers := map[string]interface{}{
		messaging.HeaderRecipients:        strings.Join(msg.Recipients, ","),
		messaging.HeaderIsOriginalContent: msg.IsOriginalContent,
	}
	if msg.Action != "" {
		headers[messaging.HeaderAction] = msg.Action
	}
	if msg.RequestID != "" {
		headers[messaging.HeaderRequestID] = msg.RequestID
	}
	if msg.RoutingKey != "" {
		headers[messaging.HeaderRoutingKey] = msg.RoutingKey
	}

	properties := messaging.Properties{
		Headers:       headers,
		CorrelationID: msg.CorrelationID,
		ReplyTo:       c.serviceName,
	}

	return c.manager.PostMessage(ctx, msg.Recipients, msg.Payload, properties)
}

// Publish sends payload with explicit properties. Caller-set properties
// take precedence over the defaults Send applies.
func (c *Client) Publish(ctx context.Context, recipients []string, payload interface{}, properties messaging.Properties) error {
	return c.manager.PostMessage(ctx, recipients, payload, properties)
}

// Consume handles every message on the service queue whose action has no
// dedicated handler
func (c *Client) Consume(ctx context.Context, handler MessageHandler) error {
	return c.manager.Subscribe(ctx, c.chain.Then(handler))
}

// ConsumeByAction handles messages carrying action and binds "*.<action>"
// broadcasts to the service queue
func (c *Client) ConsumeByAction(ctx context.Context, action string, handler MessageHandler) error {
	return c.manager.SubscribeOn(ctx, action, c.chain.Then(handler))
}

// Cancel stops consuming the service queue. Registered handlers are kept.
func (c *Client) Cancel(ctx context.Context) error {
	return c.manager.Unsubscribe(ctx)
}

// Close stops any reconnect in progress and closes the connection
func (c *Client) Close(ctx context.Context) error {
	return c.manager.Close(ctx)
}
