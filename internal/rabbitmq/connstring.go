package rabbitmq

import (
	"net/url"
	"strconv"
)

// ConnectionString builds
// <scheme>://<user>:<pass>@<host>/<vhost>?frameMax=<n>&heartbeat=<n>.
// In cluster mode pick chooses the node index among n candidates, so every
// attempt may land on a different node.
func ConnectionString(o ConnectionOptions, pick func(n int) int) (string, error) {
	var host string
	switch {
	case o.IsCluster():
		i := pick(len(o.Cluster))
		if i < 0 || i >= len(o.Cluster) {
			i = 0
		}
		host = o.Cluster[i]
	default:
		host = o.Host
	}

	if host == "" {
		return "", &ConfigurationError{
			Reason: "either cluster or standalone mode should be enabled",
		}
	}

	return formatConnectionString(o, host), nil
}

func formatConnectionString(o ConnectionOptions, host string) string {
	scheme := "amqp"
	if o.Secure {
		scheme = "amqps"
	}

	heartbeat := o.Heartbeat
	if heartbeat <= 0 {
		heartbeat = DefaultHeartbeat
	}
	frameMax := o.FrameMax
	if frameMax <= 0 {
		frameMax = DefaultFrameMax
	}

	query := url.Values{}
	query.Set("frameMax", strconv.Itoa(frameMax))
	query.Set("heartbeat", strconv.Itoa(heartbeat))

	u := url.URL{
		Scheme:   scheme,
		User:     url.UserPassword(o.Username, o.Password),
		Host:     host,
		Path:     "/" + o.VHost,
		RawPath:  "/" + url.PathEscape(o.VHost),
		RawQuery: query.Encode(),
	}

	return u.String()
}

// SanitizeURL masks the password of a connection string
func SanitizeURL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return "***"
	}
	return u.Redacted()
}
