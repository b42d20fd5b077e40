package rabbitmq

import (
	"log/slog"
	"strings"

	"github.com/glimte/mmate-dispatch/internal/reliability"
)

const (
	// DefaultHeartbeat is the heartbeat interval in seconds
	DefaultHeartbeat = 30
	// DefaultFrameMax is the maximum frame size in bytes
	DefaultFrameMax = 4096
	// DefaultHost is used when neither a host nor a cluster is configured
	DefaultHost = "localhost:5672"
	// DefaultExchange is the shared topic exchange
	DefaultExchange = "dispatcher"
	// UnboundedReconnects disables the reconnect attempt limit
	UnboundedReconnects = -1

	// ArgHAMode requests mirroring on every node of a cluster
	ArgHAMode = "ha-mode"
	// ArgSingleActiveConsumer lets only one consumer receive at a time
	ArgSingleActiveConsumer = "x-single-active-consumer"
)

// ConnectionOptions describes how to reach the broker
type ConnectionOptions struct {
	Username string
	Password string
	// Host is used in standalone mode
	Host string
	// Cluster lists "host:port" nodes; a non-empty list selects cluster mode
	Cluster   []string
	VHost     string
	Heartbeat int // seconds
	FrameMax  int // bytes
	Secure    bool
	// Exchange names the topic exchange, DefaultExchange when empty
	Exchange string
	Backoff  reliability.BackoffPolicy
	// MaxReconnects bounds connection attempts per connect; zero or negative is unbounded
	MaxReconnects int
}

// QueueOptions affects the service queue declaration
type QueueOptions struct {
	SingleActiveConsumer bool
}

// IsCluster reports whether the options describe a cluster of nodes
func (o ConnectionOptions) IsCluster() bool {
	return len(o.Cluster) > 0
}

// TopicExchange returns the configured exchange or DefaultExchange
func (o ConnectionOptions) TopicExchange() string {
	if o.Exchange == "" {
		return DefaultExchange
	}
	return o.Exchange
}

// Redacted returns a copy safe to log or attach to errors
func (o ConnectionOptions) Redacted() ConnectionOptions {
	if o.Password != "" {
		o.Password = "***"
	}
	o.Cluster = append([]string(nil), o.Cluster...)
	return o
}

// LogValue implements slog.LogValuer so options never leak the password
func (o ConnectionOptions) LogValue() slog.Value {
	r := o.Redacted()
	return slog.GroupValue(
		slog.String("username", r.Username),
		slog.String("password", r.Password),
		slog.String("host", r.Host),
		slog.String("cluster", strings.Join(r.Cluster, ",")),
		slog.String("vhost", r.VHost),
		slog.Int("heartbeat", r.Heartbeat),
		slog.Int("frameMax", r.FrameMax),
		slog.Bool("secure", r.Secure),
		slog.String("exchange", r.TopicExchange()),
		slog.Int("maxReconnects", r.MaxReconnects),
	)
}

func (o ConnectionOptions) backoff() reliability.BackoffPolicy {
	if o.Backoff == nil {
		return reliability.NewRandomizedExponential()
	}
	return o.Backoff
}
