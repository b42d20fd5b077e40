package dispatch

import (
	"errors"
	"fmt"
	"io/fs"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

// Retry strategies accepted by AMQP_RETRY_STRATEGY
const (
	RetryStrategyDefault  = "default"
	RetryStrategyInfinite = "infinite"
)

// Drivers accepted by AMQP_DRIVER
const (
	DriverAMQP091   = "amqp091"
	DriverStreadway = "streadway"
)

// Config is the environment form of the client options
type Config struct {
	ServiceName          string   `env:"SERVICE_NAME,required,notEmpty"`
	Username             string   `env:"AMQP_USERNAME" envDefault:"guest"`
	Password             string   `env:"AMQP_PASSWORD" envDefault:"guest"`
	Host                 string   `env:"AMQP_HOST" envDefault:"localhost:5672"`
	Cluster              []string `env:"AMQP_CLUSTER" envSeparator:","`
	VHost                string   `env:"AMQP_VHOST"`
	Heartbeat            int      `env:"AMQP_HEARTBEAT" envDefault:"30"`
	FrameMax             int      `env:"AMQP_FRAME_MAX" envDefault:"4096"`
	Secure               bool     `env:"AMQP_SECURE"`
	Exchange             string   `env:"AMQP_EXCHANGE" envDefault:"dispatcher"`
	MaxReconnects        int      `env:"AMQP_MAX_RECONNECTS"`
	RetryStrategy        string   `env:"AMQP_RETRY_STRATEGY" envDefault:"default"`
	SingleActiveConsumer bool     `env:"AMQP_SINGLE_ACTIVE_CONSUMER"`
	Driver               string   `env:"AMQP_DRIVER" envDefault:"amqp091"`
}

// LoadConfig reads the optional dotenv files (".env" when none are given)
// and parses the environment
func LoadConfig(files ...string) (Config, error) {
	if err := godotenv.Load(files...); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return Config{}, fmt.Errorf("failed to load env file: %w", err)
	}

	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("failed to parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks the enumerated settings
func (c Config) Validate() error {
	switch c.RetryStrategy {
	case RetryStrategyDefault, RetryStrategyInfinite:
	default:
		return &ConfigurationError{Reason: fmt.Sprintf("unknown retry strategy %q", c.RetryStrategy)}
	}
	switch c.Driver {
	case DriverAMQP091, DriverStreadway:
	default:
		return &ConfigurationError{Reason: fmt.Sprintf("unknown driver %q", c.Driver)}
	}
	return nil
}

// Options converts the config into client options. extra options are
// applied last and win.
func (c Config) Options(extra ...ClientOption) []ClientOption {
	opts := []ClientOption{
		WithCredentials(c.Username, c.Password),
		WithVHost(c.VHost),
		WithHeartbeat(time.Duration(c.Heartbeat) * time.Second),
		WithFrameMax(c.FrameMax),
		WithSecure(c.Secure),
		WithExchange(c.Exchange),
		WithSingleActiveConsumer(c.SingleActiveConsumer),
	}

	if len(c.Cluster) > 0 {
		opts = append(opts, WithCluster(c.Cluster...))
	} else {
		opts = append(opts, WithHost(c.Host))
	}

	if c.RetryStrategy == RetryStrategyInfinite {
		opts = append(opts, WithInfiniteRetry())
	} else {
		opts = append(opts, WithBackoff(DefaultBackoff()), WithMaxReconnects(c.MaxReconnects))
	}

	if c.Driver != "" {
		opts = append(opts, WithDriver(c.Driver))
	}

	return append(opts, extra...)
}
