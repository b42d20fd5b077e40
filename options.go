package dispatch

import (
	"log/slog"
	"time"

	"github.com/glimte/mmate-dispatch/interceptors"
	"github.com/glimte/mmate-dispatch/internal/rabbitmq"
	"github.com/glimte/mmate-dispatch/internal/reliability"
	"github.com/glimte/mmate-dispatch/messaging"
)

// clientConfig holds client configuration
type clientConfig struct {
	logger     *slog.Logger
	connection rabbitmq.ConnectionOptions
	queue      rabbitmq.QueueOptions
	transport  messaging.Transport
	driver     string
	listeners  []StatusListener
	chain      *interceptors.Chain
}

func newClientConfig() *clientConfig {
	return &clientConfig{
		logger: slog.Default(),
		connection: rabbitmq.ConnectionOptions{
			Username:  "guest",
			Password:  "guest",
			Heartbeat: rabbitmq.DefaultHeartbeat,
			FrameMax:  rabbitmq.DefaultFrameMax,
			Exchange:  rabbitmq.DefaultExchange,
		},
	}
}

// ClientOption configures the client
type ClientOption func(*clientConfig)

// WithLogger sets the logger for all components
func WithLogger(logger *slog.Logger) ClientOption {
	return func(cfg *clientConfig) {
		cfg.logger = logger
	}
}

// WithCredentials sets the broker user and password
func WithCredentials(username, password string) ClientOption {
	return func(cfg *clientConfig) {
		cfg.connection.Username = username
		cfg.connection.Password = password
	}
}

// WithHost connects to a single broker, "host:port"
func WithHost(host string) ClientOption {
	return func(cfg *clientConfig) {
		cfg.connection.Host = host
	}
}

// WithCluster connects to one of nodes, picked at random on every attempt,
// and declares the service queue mirrored
func WithCluster(nodes ...string) ClientOption {
	return func(cfg *clientConfig) {
		cfg.connection.Cluster = append([]string(nil), nodes...)
	}
}

// WithVHost sets the virtual host
func WithVHost(vhost string) ClientOption {
	return func(cfg *clientConfig) {
		cfg.connection.VHost = vhost
	}
}

// WithHeartbeat sets the heartbeat interval, rounded down to seconds
func WithHeartbeat(interval time.Duration) ClientOption {
	return func(cfg *clientConfig) {
		cfg.connection.Heartbeat = int(interval / time.Second)
	}
}

// WithFrameMax sets the maximum frame size in bytes
func WithFrameMax(size int) ClientOption {
	return func(cfg *clientConfig) {
		cfg.connection.FrameMax = size
	}
}

// WithSecure switches to amqps
func WithSecure(secure bool) ClientOption {
	return func(cfg *clientConfig) {
		cfg.connection.Secure = secure
	}
}

// WithExchange sets the topic exchange used for broadcasts
func WithExchange(name string) ClientOption {
	return func(cfg *clientConfig) {
		cfg.connection.Exchange = name
	}
}

// WithBackoff sets the reconnect backoff policy
func WithBackoff(policy BackoffPolicy) ClientOption {
	return func(cfg *clientConfig) {
		cfg.connection.Backoff = policy
	}
}

// WithMaxReconnects bounds connection attempts; zero or negative retries forever
func WithMaxReconnects(max int) ClientOption {
	return func(cfg *clientConfig) {
		cfg.connection.MaxReconnects = max
	}
}

// WithInfiniteRetry retries forever, one second apart
func WithInfiniteRetry() ClientOption {
	return func(cfg *clientConfig) {
		cfg.connection.Backoff = FixedBackoff(reliability.DefaultFixedDelay)
		cfg.connection.MaxReconnects = UnboundedReconnects
	}
}

// WithSingleActiveConsumer declares the service queue with
// x-single-active-consumer so only one instance consumes at a time
func WithSingleActiveConsumer(enabled bool) ClientOption {
	return func(cfg *clientConfig) {
		cfg.queue.SingleActiveConsumer = enabled
	}
}

// WithTransport replaces the default amqp091 transport
func WithTransport(transport messaging.Transport) ClientOption {
	return func(cfg *clientConfig) {
		cfg.transport = transport
	}
}

// WithDriver selects the built-in transport: DriverAMQP091 (default) or
// DriverStreadway. WithTransport takes precedence.
func WithDriver(driver string) ClientOption {
	return func(cfg *clientConfig) {
		cfg.driver = driver
	}
}

// WithInterceptors wraps every handler passed to Consume and
// ConsumeByAction with chain
func WithInterceptors(chain *interceptors.Chain) ClientOption {
	return func(cfg *clientConfig) {
		cfg.chain = chain
	}
}

// WithStatusListener registers listener before the first connect so it
// sees the initial CONNECTED transition
func WithStatusListener(listener StatusListener) ClientOption {
	return func(cfg *clientConfig) {
		cfg.listeners = append(cfg.listeners, listener)
	}
}
