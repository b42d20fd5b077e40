package messaging

import (
	"context"
	"encoding/json"
	"errors"
	"sync/atomic"
	"time"
)

// Header keys carried on every message sent by the client
const (
	HeaderRecipients        = "recipients"
	HeaderRequestID         = "requestId"
	HeaderAction            = "action"
	HeaderRoutingKey        = "routingKey"
	HeaderIsOriginalContent = "isOriginalContent"
)

// Delivery modes
const (
	Transient  uint8 = 1
	Persistent uint8 = 2
)

// Fields describes how a message was delivered
type Fields struct {
	ConsumerTag string
	DeliveryTag uint64
	Redelivered bool
	Exchange    string
	RoutingKey  string
}

// Properties are the AMQP basic properties of a message. Zero values mean
// "not set".
type Properties struct {
	Headers         map[string]interface{}
	ContentType     string
	ContentEncoding string
	DeliveryMode    uint8
	Priority        uint8
	CorrelationID   string
	ReplyTo         string
	Expiration      string
	MessageID       string
	Timestamp       time.Time
	Type            string
	UserID          string
	AppID           string
}

// Header returns the header value for key
func (p Properties) Header(key string) (interface{}, bool) {
	if p.Headers == nil {
		return nil, false
	}
	v, ok := p.Headers[key]
	return v, ok
}

// IsOriginalContent reports whether the sender marked the body as pre-encoded
func (p Properties) IsOriginalContent() bool {
	v, ok := p.Header(HeaderIsOriginalContent)
	if !ok {
		return false
	}
	b, _ := v.(bool)
	return b
}

// RawMessage is a delivery as handed over by a transport
type RawMessage struct {
	Body       []byte
	Fields     Fields
	Properties Properties
}

// Message is a delivery with its content decoded
type Message struct {
	// Content is the JSON-decoded body, or {"data": <body text>} when the
	// body is not JSON.
	Content    interface{}
	Body       []byte
	Fields     Fields
	Properties Properties
}

// Delivery is what a MessageHandler receives
type Delivery struct {
	Message
	Action string

	ack     func() error
	nack    func() error
	settled atomic.Bool
}

// NewDelivery binds msg to acknowledgment callbacks
func NewDelivery(action string, msg Message, ack, nack func() error) *Delivery {
	return &Delivery{
		Message: msg,
		Action:  action,
		ack:     ack,
		nack:    nack,
	}
}

var errNoAcknowledger = errors.New("messaging: delivery has no acknowledger")

// Ack acknowledges the message
func (d *Delivery) Ack() error {
	if d.ack == nil {
		return errNoAcknowledger
	}
	d.settled.Store(true)
	return d.ack()
}

// Nack rejects the message and asks the broker to requeue it
func (d *Delivery) Nack() error {
	if d.nack == nil {
		return errNoAcknowledger
	}
	d.settled.Store(true)
	return d.nack()
}

// Settled reports whether Ack or Nack was called
func (d *Delivery) Settled() bool {
	return d.settled.Load()
}

// Decode unmarshals the raw body into v
func (d *Delivery) Decode(v interface{}) error {
	return json.Unmarshal(d.Body, v)
}

// MessageHandler processes a delivery
type MessageHandler interface {
	Handle(ctx context.Context, d *Delivery) error
}

// MessageHandlerFunc is a function adapter for MessageHandler
type MessageHandlerFunc func(ctx context.Context, d *Delivery) error

// Handle implements MessageHandler
func (f MessageHandlerFunc) Handle(ctx context.Context, d *Delivery) error {
	return f(ctx, d)
}
