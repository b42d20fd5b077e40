package messaging

import (
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"
)

// Connection string query parameters understood by the transports
const (
	ParamFrameMax  = "frameMax"
	ParamHeartbeat = "heartbeat"
)

// DialSettings is a connection string split into what a broker driver needs
type DialSettings struct {
	// URL is the connection string without the frameMax/heartbeat parameters
	URL       string
	Secure    bool
	Vhost     string
	Heartbeat time.Duration
	FrameMax  int
}

// ParseConnectionString parses
// <scheme>://<user>:<pass>@<host>/<vhost>?frameMax=<n>&heartbeat=<n>.
// An empty vhost path selects the broker's default vhost "/".
func ParseConnectionString(connectionString string) (DialSettings, error) {
	u, err := url.Parse(connectionString)
	if err != nil {
		return DialSettings{}, fmt.Errorf("invalid connection string: %w", err)
	}

	var settings DialSettings
	switch u.Scheme {
	case "amqp":
	case "amqps":
		settings.Secure = true
	default:
		return DialSettings{}, fmt.Errorf("invalid connection string: unsupported scheme %q", u.Scheme)
	}

	query := u.Query()
	if v := query.Get(ParamHeartbeat); v != "" {
		seconds, err := strconv.Atoi(v)
		if err != nil {
			return DialSettings{}, fmt.Errorf("invalid connection string: heartbeat %q: %w", v, err)
		}
		settings.Heartbeat = time.Duration(seconds) * time.Second
	}
	if v := query.Get(ParamFrameMax); v != "" {
		frameMax, err := strconv.Atoi(v)
		if err != nil {
			return DialSettings{}, fmt.Errorf("invalid connection string: frameMax %q: %w", v, err)
		}
		settings.FrameMax = frameMax
	}
	query.Del(ParamHeartbeat)
	query.Del(ParamFrameMax)
	u.RawQuery = query.Encode()

	settings.Vhost = strings.TrimPrefix(u.Path, "/")
	if settings.Vhost == "" {
		settings.Vhost = "/"
	}
	settings.URL = u.String()

	return settings, nil
}
