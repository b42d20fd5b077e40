package rabbitmq

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand"
	"sync"
	"sync/atomic"
	"time"

	"github.com/glimte/mmate-dispatch/internal/reliability"
	"github.com/glimte/mmate-dispatch/messaging"
)

// ConnectionManager manages the broker connection of one service: it
// provisions the service queue and topic exchange, reconnects with backoff
// and restores consumption after the broker drops the connection
type ConnectionManager struct {
	name         string
	options      ConnectionOptions
	queueOptions QueueOptions
	transport    messaging.Transport
	registry     *messaging.ActionRegistry
	logger       *slog.Logger
	pick         func(n int) int

	status   atomic.Int32
	conn     atomic.Pointer[connFuture]
	done     chan struct{}
	stopOnce sync.Once
	ctx      context.Context
	cancel   context.CancelFunc

	consumeMu    sync.Mutex
	tagsMu       sync.Mutex
	consumerTags map[string]string

	listeners    map[int]StatusListener
	nextListener int
	listenersMu  sync.RWMutex
}

// ManagerOption configures the ConnectionManager
type ManagerOption func(*ConnectionManager)

// WithLogger sets the logger
func WithLogger(logger *slog.Logger) ManagerOption {
	return func(m *ConnectionManager) {
		m.logger = logger
	}
}

// WithQueueOptions sets the service queue declaration flags
func WithQueueOptions(options QueueOptions) ManagerOption {
	return func(m *ConnectionManager) {
		m.queueOptions = options
	}
}

// WithRegistry shares an action registry with the manager
func WithRegistry(registry *messaging.ActionRegistry) ManagerOption {
	return func(m *ConnectionManager) {
		m.registry = registry
	}
}

// WithNodePicker overrides how a cluster node is chosen for each attempt
func WithNodePicker(pick func(n int) int) ManagerOption {
	return func(m *ConnectionManager) {
		m.pick = pick
	}
}

// NewConnectionManager creates a manager for the service queue serviceName
func NewConnectionManager(serviceName string, transport messaging.Transport, options ConnectionOptions, opts ...ManagerOption) *ConnectionManager {
	m := &ConnectionManager{
		name:         serviceName,
		options:      options,
		transport:    transport,
		logger:       slog.Default(),
		pick:         rand.Intn,
		done:         make(chan struct{}),
		consumerTags: make(map[string]string),
		listeners:    make(map[int]StatusListener),
	}

	for _, opt := range opts {
		opt(m)
	}

	if m.registry == nil {
		m.registry = messaging.NewActionRegistry(m.logger)
	}
	m.ctx, m.cancel = context.WithCancel(context.Background())
	m.status.Store(int32(StatusConnecting))

	return m
}

// Name returns the service name, which is also the service queue name
func (m *ConnectionManager) Name() string {
	return m.name
}

// Status returns the current connection status
func (m *ConnectionManager) Status() ConnectionStatus {
	return ConnectionStatus(m.status.Load())
}

// Registry returns the action registry
func (m *ConnectionManager) Registry() *messaging.ActionRegistry {
	return m.registry
}

// Connect obtains a channel, retrying with backoff, then declares the topic
// exchange and the service queue. Any error is final for this call.
func (m *ConnectionManager) Connect(ctx context.Context) (messaging.Channel, error) {
	if !m.beginConnecting() {
		return nil, ErrGracefullyStopped
	}

	f := newConnFuture()
	m.conn.Store(f)

	ch, err := m.connect(ctx)
	f.resolve(ch, err)

	if err != nil && !errors.Is(err, ErrGracefullyStopped) {
		if m.status.CompareAndSwap(int32(StatusConnecting), int32(StatusDisconnected)) {
			m.notifyStatus(StatusDisconnected)
		}
	}

	return ch, err
}

func (m *ConnectionManager) connect(ctx context.Context) (messaging.Channel, error) {
	ch, err := m.getConnection(ctx)
	if err != nil {
		return nil, err
	}

	if err := m.assertTopicExchange(ctx, ch); err != nil {
		_ = ch.Close()
		return nil, err
	}
	if err := m.assertServiceQueue(ctx, ch); err != nil {
		_ = ch.Close()
		return nil, err
	}

	return ch, nil
}

// beginConnecting moves to CONNECTING unless a close is in progress
func (m *ConnectionManager) beginConnecting() bool {
	for {
		if m.stopped() {
			return false
		}

		current := m.status.Load()
		if ConnectionStatus(current) == StatusDisconnecting {
			return false
		}
		if m.status.CompareAndSwap(current, int32(StatusConnecting)) {
			if ConnectionStatus(current) != StatusConnecting {
				m.notifyStatus(StatusConnecting)
			}
			return true
		}
	}
}

// getConnection is the retry loop. Status is checked before every attempt
// and after every backoff sleep so Close stops it cooperatively.
func (m *ConnectionManager) getConnection(ctx context.Context) (messaging.Channel, error) {
	var (
		policy        = m.options.backoff()
		maxReconnects = m.options.MaxReconnects
		lastErr       error
	)

	for attempt := 1; ; {
		if m.stopping() {
			return nil, ErrGracefullyStopped
		}

		connectionString, err := ConnectionString(m.options, m.pick)
		if err != nil {
			return nil, err
		}
		if m.options.IsCluster() {
			m.logger.Info("configured for cluster", "url", SanitizeURL(connectionString))
		} else {
			m.logger.Info("configured for standalone", "url", SanitizeURL(connectionString))
		}

		ch, err := m.transport.Connect(ctx, connectionString, m.onTransportClose)
		if err == nil {
			if !m.status.CompareAndSwap(int32(StatusConnecting), int32(StatusConnected)) {
				// Close won the race while we were dialing
				_ = ch.Close()
				return nil, ErrGracefullyStopped
			}
			m.notifyStatus(StatusConnected)
			return ch, nil
		}
		lastErr = err

		m.logger.Error("connection attempt failed",
			"error", err,
			"url", SanitizeURL(connectionString),
			"attempt", attempt,
			"maxReconnects", maxReconnects,
		)

		if err := reliability.Sleep(ctx, policy.NextDelay(attempt), m.done); err != nil {
			return nil, fmt.Errorf("connect aborted: %w", err)
		}
		if m.stopping() {
			return nil, ErrGracefullyStopped
		}

		attempt++
		if maxReconnects > 0 && attempt > maxReconnects {
			return nil, &ConnectionError{
				Op:        "connect",
				Options:   m.options.Redacted(),
				Reason:    "maximum attempts exceeded",
				Attempts:  attempt - 1,
				Err:       lastErr,
				Timestamp: time.Now(),
			}
		}

		m.logger.Info("retrying connection", "attempt", attempt, "maxReconnects", maxReconnects)
	}
}

func (m *ConnectionManager) stopped() bool {
	select {
	case <-m.done:
		return true
	default:
		return false
	}
}

func (m *ConnectionManager) stopping() bool {
	return m.stopped() || m.Status() == StatusDisconnecting
}

func (m *ConnectionManager) onTransportClose(err error) {
	go func() {
		if err := m.HandleConnectionClose(m.ctx, err); err != nil {
			m.logger.Error("failed to recover connection", "service", m.name, "error", err)
		}
	}()
}

// HandleConnectionClose reacts to a broker-side close. Only the first of
// several concurrent calls does anything: the CONNECTED -> DISCONNECTED
// swap happens before any blocking call and every later caller fails it.
func (m *ConnectionManager) HandleConnectionClose(ctx context.Context, cause error) error {
	if m.stopped() {
		return nil
	}
	if !m.status.CompareAndSwap(int32(StatusConnected), int32(StatusDisconnected)) {
		return nil
	}
	m.notifyStatus(StatusDisconnected)

	if !m.status.CompareAndSwap(int32(StatusDisconnected), int32(StatusConnecting)) {
		// Close started in between
		return nil
	}
	m.notifyStatus(StatusConnecting)

	m.logger.Error("connection closed", "service", m.name, "error", cause, "options", m.options)

	if err := m.Unsubscribe(ctx); err != nil {
		m.logger.Error("failed to unsubscribe after close", "error", err)
	}

	ch, err := m.Connect(ctx)
	if err != nil {
		if errors.Is(err, ErrGracefullyStopped) {
			m.logger.Info("reconnect stopped by close", "service", m.name)
			return nil
		}
		return fmt.Errorf("reconnect failed: %w", err)
	}

	if !m.registry.HasActions() && !m.registry.HasDefault() {
		return nil
	}

	if err := m.initQueue(ctx, m.name); err != nil {
		return fmt.Errorf("failed to resume consumption: %w", err)
	}
	for _, action := range m.registry.Actions() {
		if err := m.bindAction(ctx, ch, action); err != nil {
			return fmt.Errorf("failed to restore binding for action %q: %w", action, err)
		}
	}

	m.logger.Info("connection recovered", "service", m.name, "actions", len(m.registry.Actions()))
	return nil
}

// Close stops any connect loop and closes the channel. A loop aborted by
// this call is expected and not reported as an error.
func (m *ConnectionManager) Close(ctx context.Context) error {
	f := m.conn.Load()
	if f == nil {
		return ErrNotInitialized
	}

	m.status.Store(int32(StatusDisconnecting))
	m.notifyStatus(StatusDisconnecting)
	m.stopOnce.Do(func() { close(m.done) })

	defer func() {
		m.cancel()
		m.status.Store(int32(StatusDisconnected))
		m.notifyStatus(StatusDisconnected)
	}()

	ch, err := f.wait(ctx)
	if err == nil {
		err = ch.Close()
	}

	switch {
	case err == nil:
		m.logger.Info("connection closed", "service", m.name)
		return nil
	case errors.Is(err, ErrGracefullyStopped):
		m.logger.Info("connection retry process gracefully stopped", "service", m.name)
		return nil
	default:
		m.logger.Error("cannot close connection", "service", m.name, "error", err)
		return fmt.Errorf("failed to close connection: %w", err)
	}
}

// channel waits for the current connection to settle
func (m *ConnectionManager) channel(ctx context.Context) (messaging.Channel, error) {
	f := m.conn.Load()
	if f == nil {
		return nil, ErrNotInitialized
	}
	return f.wait(ctx)
}
