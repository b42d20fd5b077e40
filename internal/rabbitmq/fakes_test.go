package rabbitmq

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/stretchr/testify/mock"

	"github.com/glimte/mmate-dispatch/messaging"
)

var errRefused = errors.New("dial tcp: connection refused")

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// MockBackoff records the attempts it was asked about
type MockBackoff struct {
	mock.Mock
}

func (m *MockBackoff) NextDelay(attempt int) time.Duration {
	args := m.Called(attempt)
	return args.Get(0).(time.Duration)
}

type sentMessage struct {
	exchange   string
	routingKey string
	queue      string
	body       []byte
	properties messaging.Properties
}

type binding struct {
	queue, exchange, pattern string
}

// fakeChannel is an in-memory messaging.Channel
type fakeChannel struct {
	mu sync.Mutex

	exchanges map[string]messaging.ExchangeOptions
	queues    map[string]messaging.QueueOptions
	bindings  []binding
	published []sentMessage
	sent      []sentMessage
	consumers map[string]func(*messaging.RawMessage)
	acks      []uint64
	nacks     []uint64
	rejects   []uint64

	consumeCalls int
	cancelCalls  int
	prefetch     int
	closed       bool
	nextTag      int

	cancelErr  error
	declareErr error

	// when set, Cancel reports its tag on cancelStarted and then blocks
	// until cancelGate is closed
	cancelStarted chan string
	cancelGate    chan struct{}
}

func newFakeChannel() *fakeChannel {
	return &fakeChannel{
		exchanges: make(map[string]messaging.ExchangeOptions),
		queues:    make(map[string]messaging.QueueOptions),
		consumers: make(map[string]func(*messaging.RawMessage)),
	}
}

func (c *fakeChannel) DeclareExchange(ctx context.Context, name, kind string, options messaging.ExchangeOptions) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.declareErr != nil {
		return c.declareErr
	}
	c.exchanges[name] = options
	return nil
}

func (c *fakeChannel) DeclareQueue(ctx context.Context, name string, options messaging.QueueOptions) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.queues[name] = options
	return nil
}

func (c *fakeChannel) BindQueue(ctx context.Context, queue, exchange, pattern string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.bindings = append(c.bindings, binding{queue, exchange, pattern})
	return nil
}

func (c *fakeChannel) Publish(ctx context.Context, exchange, routingKey string, body []byte, properties messaging.Properties) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.published = append(c.published, sentMessage{exchange: exchange, routingKey: routingKey, body: body, properties: properties})
	return nil
}

func (c *fakeChannel) SendToQueue(ctx context.Context, queue string, body []byte, properties messaging.Properties) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sent = append(c.sent, sentMessage{queue: queue, body: body, properties: properties})
	return nil
}

func (c *fakeChannel) Consume(ctx context.Context, queue string, options messaging.ConsumeOptions, handler func(*messaging.RawMessage)) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.consumeCalls++
	c.nextTag++
	tag := fmt.Sprintf("%s-%d", queue, c.nextTag)
	c.consumers[tag] = handler
	return tag, nil
}

func (c *fakeChannel) Ack(deliveryTag uint64) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.acks = append(c.acks, deliveryTag)
	return nil
}

func (c *fakeChannel) Nack(deliveryTag uint64) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.nacks = append(c.nacks, deliveryTag)
	return nil
}

func (c *fakeChannel) Reject(deliveryTag uint64) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.rejects = append(c.rejects, deliveryTag)
	return nil
}

func (c *fakeChannel) Cancel(ctx context.Context, consumerTag string) error {
	c.mu.Lock()
	c.cancelCalls++
	started, gate := c.cancelStarted, c.cancelGate
	c.mu.Unlock()

	if started != nil {
		started <- consumerTag
	}
	if gate != nil {
		<-gate
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.cancelErr != nil {
		return c.cancelErr
	}
	delete(c.consumers, consumerTag)
	return nil
}

func (c *fakeChannel) Prefetch(count int) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.prefetch = count
	return nil
}

func (c *fakeChannel) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	return nil
}

// deliver hands msg to the active consumer, as the transport would
func (c *fakeChannel) deliver(msg *messaging.RawMessage) {
	c.mu.Lock()
	var handler func(*messaging.RawMessage)
	for _, h := range c.consumers {
		handler = h
	}
	c.mu.Unlock()

	if handler != nil {
		handler(msg)
	}
}

func (c *fakeChannel) stats() (consumes, cancels int, bindings []binding) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.consumeCalls, c.cancelCalls, append([]binding(nil), c.bindings...)
}

func (c *fakeChannel) ackedTags() []uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]uint64(nil), c.acks...)
}

func (c *fakeChannel) nackedTags() []uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]uint64(nil), c.nacks...)
}

func (c *fakeChannel) rejectedTags() []uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]uint64(nil), c.rejects...)
}

// liveConsumers counts consumers started and not cancelled
func (c *fakeChannel) liveConsumers() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.consumers)
}

func (c *fakeChannel) isClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

// fakeTransport fails the first `failures` connects (all of them when
// failures < 0) and hands out fakeChannels afterwards
type fakeTransport struct {
	mu       sync.Mutex
	failures int
	err      error
	calls    int
	urls     []string
	channels []*fakeChannel
	onClose  []func(error)
	attempts chan int
	// gate, when set, holds every connect after the first until closed
	gate chan struct{}
}

func newFakeTransport(failures int) *fakeTransport {
	return &fakeTransport{
		failures: failures,
		err:      errRefused,
		attempts: make(chan int, 64),
	}
}

func (t *fakeTransport) Connect(ctx context.Context, connectionString string, onClose func(error)) (messaging.Channel, error) {
	t.mu.Lock()
	t.calls++
	call := t.calls
	t.urls = append(t.urls, connectionString)
	gate := t.gate
	t.mu.Unlock()

	select {
	case t.attempts <- call:
	default:
	}
	if gate != nil && call > 1 {
		<-gate
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	if t.failures < 0 || call <= t.failures {
		return nil, t.err
	}

	ch := newFakeChannel()
	t.channels = append(t.channels, ch)
	t.onClose = append(t.onClose, onClose)
	return ch, nil
}

func (t *fakeTransport) connectCalls() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.calls
}

func (t *fakeTransport) channel(i int) *fakeChannel {
	t.mu.Lock()
	defer t.mu.Unlock()
	if i >= len(t.channels) {
		return nil
	}
	return t.channels[i]
}

func (t *fakeTransport) channelCount() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.channels)
}

func (t *fakeTransport) lastURL() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.urls[len(t.urls)-1]
}

// statusRecorder collects status notifications
type statusRecorder struct {
	mu       sync.Mutex
	statuses []ConnectionStatus
}

func (r *statusRecorder) OnStatusChange(status ConnectionStatus) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.statuses = append(r.statuses, status)
}

func (r *statusRecorder) all() []ConnectionStatus {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]ConnectionStatus(nil), r.statuses...)
}

func zeroBackoff() *MockBackoff {
	b := &MockBackoff{}
	b.On("NextDelay", mock.Anything).Return(time.Duration(0))
	return b
}

func testOptions() ConnectionOptions {
	return ConnectionOptions{
		Username: "guest",
		Password: "secret",
		Host:     "localhost:5672",
		VHost:    "",
		Backoff:  zeroBackoff(),
	}
}

func newTestManager(transport *fakeTransport, options ConnectionOptions, opts ...ManagerOption) *ConnectionManager {
	opts = append([]ManagerOption{WithLogger(testLogger())}, opts...)
	return NewConnectionManager("orders", transport, options, opts...)
}
