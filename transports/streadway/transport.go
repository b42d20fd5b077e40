package streadway

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/streadway/amqp"

	"github.com/glimte/mmate-dispatch/messaging"
)

// Transport implements messaging.Transport on github.com/streadway/amqp
type Transport struct {
	logger      *slog.Logger
	tlsConfig   *tls.Config
	dialTimeout time.Duration
}

// TransportOption configures the transport
type TransportOption func(*Transport)

// WithLogger sets the logger
func WithLogger(logger *slog.Logger) TransportOption {
	return func(t *Transport) {
		t.logger = logger
	}
}

// WithTLSConfig sets the TLS configuration used for amqps connection strings
func WithTLSConfig(cfg *tls.Config) TransportOption {
	return func(t *Transport) {
		t.tlsConfig = cfg
	}
}

// NewTransport creates a new transport
func NewTransport(options ...TransportOption) *Transport {
	t := &Transport{
		logger:      slog.Default(),
		dialTimeout: 30 * time.Second,
	}
	for _, opt := range options {
		opt(t)
	}
	return t
}

// Connect implements messaging.Transport
func (t *Transport) Connect(ctx context.Context, connectionString string, onClose func(err error)) (messaging.Channel, error) {
	settings, err := messaging.ParseConnectionString(connectionString)
	if err != nil {
		return nil, err
	}

	cfg := amqp.Config{
		Heartbeat: settings.Heartbeat,
		FrameSize: settings.FrameMax,
		Vhost:     settings.Vhost,
		Dial: func(network, addr string) (net.Conn, error) {
			d := net.Dialer{Timeout: t.dialTimeout}
			conn, err := d.DialContext(ctx, network, addr)
			if err != nil {
				return nil, err
			}
			if err := conn.SetDeadline(time.Now().Add(t.dialTimeout)); err != nil {
				_ = conn.Close()
				return nil, err
			}
			return conn, nil
		},
	}
	if settings.Secure {
		cfg.TLSClientConfig = t.tlsConfig
		if cfg.TLSClientConfig == nil {
			cfg.TLSClientConfig = &tls.Config{MinVersion: tls.VersionTLS12}
		}
	}

	conn, err := amqp.DialConfig(settings.URL, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to dial: %w", err)
	}

	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("failed to open channel: %w", err)
	}

	c := &channel{conn: conn, ch: ch, logger: t.logger}
	go c.watch(
		conn.NotifyClose(make(chan *amqp.Error, 1)),
		ch.NotifyClose(make(chan *amqp.Error, 1)),
		onClose,
	)
	go c.watchBlocked(conn.NotifyBlocked(make(chan amqp.Blocking, 1)))

	return c, nil
}

type channel struct {
	conn      *amqp.Connection
	ch        *amqp.Channel
	logger    *slog.Logger
	closing   atomic.Bool
	broken    atomic.Bool
	cancelled sync.Map
}

func (c *channel) watch(connClose, chClose <-chan *amqp.Error, onClose func(error)) {
	var err *amqp.Error
	select {
	case err = <-connClose:
	case err = <-chClose:
		if err != nil {
			_ = c.conn.Close()
		}
	}
	c.broken.Store(true)

	if err == nil || c.closing.Load() {
		return
	}

	c.logger.Warn("amqp connection closed by broker", "code", err.Code, "reason", err.Reason)
	if onClose != nil {
		onClose(err)
	}
}

// watchBlocked logs broker flow control. Publishes stall while the
// connection is blocked. The channel is closed with the connection.
func (c *channel) watchBlocked(blocked <-chan amqp.Blocking) {
	for b := range blocked {
		if b.Active {
			c.logger.Warn("amqp connection blocked by broker", "reason", b.Reason)
		} else {
			c.logger.Info("amqp connection unblocked")
		}
	}
}

func (c *channel) DeclareExchange(ctx context.Context, name, kind string, options messaging.ExchangeOptions) error {
	return c.ch.ExchangeDeclare(name, kind, options.Durable, options.AutoDelete, false, false, amqp.Table(options.Args))
}

func (c *channel) DeclareQueue(ctx context.Context, name string, options messaging.QueueOptions) error {
	_, err := c.ch.QueueDeclare(name, options.Durable, options.AutoDelete, options.Exclusive, false, amqp.Table(options.Args))
	return err
}

func (c *channel) BindQueue(ctx context.Context, queue, exchange, pattern string) error {
	return c.ch.QueueBind(queue, pattern, exchange, false, nil)
}

// Publish ignores ctx; the legacy client has no cancellable publish
func (c *channel) Publish(ctx context.Context, exchange, routingKey string, body []byte, properties messaging.Properties) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return c.ch.Publish(exchange, routingKey, false, false, toPublishing(body, properties))
}

func (c *channel) SendToQueue(ctx context.Context, queue string, body []byte, properties messaging.Properties) error {
	return c.Publish(ctx, "", queue, body, properties)
}

func (c *channel) Consume(ctx context.Context, queue string, options messaging.ConsumeOptions, handler func(*messaging.RawMessage)) (string, error) {
	tag := fmt.Sprintf("%s-%s", queue, uuid.NewString())

	deliveries, err := c.ch.Consume(queue, tag, false, options.Exclusive, false, false, amqp.Table(options.Args))
	if err != nil {
		return "", err
	}

	go func() {
		for d := range deliveries {
			handler(toRawMessage(d))
		}

		if _, cancelled := c.cancelled.Load(tag); cancelled {
			return
		}
		if c.closing.Load() || c.broken.Load() || c.conn.IsClosed() {
			return
		}
		handler(nil)
	}()

	return tag, nil
}

func (c *channel) Ack(deliveryTag uint64) error {
	return c.ch.Ack(deliveryTag, false)
}

func (c *channel) Nack(deliveryTag uint64) error {
	return c.ch.Nack(deliveryTag, false, true)
}

func (c *channel) Reject(deliveryTag uint64) error {
	return c.ch.Reject(deliveryTag, false)
}

func (c *channel) Cancel(ctx context.Context, consumerTag string) error {
	c.cancelled.Store(consumerTag, struct{}{})
	return c.ch.Cancel(consumerTag, false)
}

func (c *channel) Prefetch(count int) error {
	return c.ch.Qos(count, 0, false)
}

func (c *channel) Close() error {
	c.closing.Store(true)

	var errs []error
	if err := c.ch.Close(); err != nil && !errors.Is(err, amqp.ErrClosed) {
		errs = append(errs, err)
	}
	if err := c.conn.Close(); err != nil && !errors.Is(err, amqp.ErrClosed) {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

func toPublishing(body []byte, p messaging.Properties) amqp.Publishing {
	var headers amqp.Table
	if len(p.Headers) > 0 {
		headers = make(amqp.Table, len(p.Headers))
		for k, v := range p.Headers {
			headers[k] = v
		}
	}

	return amqp.Publishing{
		Headers:         headers,
		ContentType:     p.ContentType,
		ContentEncoding: p.ContentEncoding,
		DeliveryMode:    p.DeliveryMode,
		Priority:        p.Priority,
		CorrelationId:   p.CorrelationID,
		ReplyTo:         p.ReplyTo,
		Expiration:      p.Expiration,
		MessageId:       p.MessageID,
		Timestamp:       p.Timestamp,
		Type:            p.Type,
		UserId:          p.UserID,
		AppId:           p.AppID,
		Body:            body,
	}
}

func toRawMessage(d amqp.Delivery) *messaging.RawMessage {
	var headers map[string]interface{}
	if len(d.Headers) > 0 {
		headers = make(map[string]interface{}, len(d.Headers))
		for k, v := range d.Headers {
			headers[k] = v
		}
	}

	return &messaging.RawMessage{
		Body: d.Body,
		Fields: messaging.Fields{
			ConsumerTag: d.ConsumerTag,
			DeliveryTag: d.DeliveryTag,
			Redelivered: d.Redelivered,
			Exchange:    d.Exchange,
			RoutingKey:  d.RoutingKey,
		},
		Properties: messaging.Properties{
			Headers:         headers,
			ContentType:     d.ContentType,
			ContentEncoding: d.ContentEncoding,
			DeliveryMode:    d.DeliveryMode,
			Priority:        d.Priority,
			CorrelationID:   d.CorrelationId,
			ReplyTo:         d.ReplyTo,
			Expiration:      d.Expiration,
			MessageID:       d.MessageId,
			Timestamp:       d.Timestamp,
			Type:            d.Type,
			UserID:          d.UserId,
			AppID:           d.AppId,
		},
	}
}
