package health

import (
	"context"
	"sync"
	"time"

	dispatch "github.com/glimte/mmate-dispatch"
)

// StatusSource reports the current connection status. *dispatch.Client
// implements it.
type StatusSource interface {
	Status() dispatch.ConnectionStatus
}

// ConnectionChecker maps the connection status to health: connected is
// healthy, connecting is degraded and anything else is unhealthy. Register
// it as a status listener to also report when the status last changed and
// how many times the connection was lost. Without a source it reports the
// last status it was notified of.
type ConnectionChecker struct {
	mu          sync.Mutex
	source      StatusSource
	last        dispatch.ConnectionStatus
	seen        bool
	lastChange  time.Time
	disconnects int
}

// NewConnectionChecker creates a checker reading from source, which may be nil
func NewConnectionChecker(source StatusSource) *ConnectionChecker {
	return &ConnectionChecker{source: source}
}

// SetSource sets the status source once the client exists
func (c *ConnectionChecker) SetSource(source StatusSource) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.source = source
}

func (c *ConnectionChecker) status() dispatch.ConnectionStatus {
	c.mu.Lock()
	source, last, seen := c.source, c.last, c.seen
	c.mu.Unlock()

	switch {
	case source != nil:
		return source.Status()
	case seen:
		return last
	default:
		return dispatch.StatusDisconnected
	}
}

func (c *ConnectionChecker) Name() string {
	return "amqp"
}

// OnStatusChange implements dispatch.StatusListener
func (c *ConnectionChecker) OnStatusChange(status dispatch.ConnectionStatus) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.last, c.seen = status, true
	c.lastChange = time.Now()
	if status == dispatch.StatusDisconnected {
		c.disconnects++
	}
}

func (c *ConnectionChecker) Check(ctx context.Context) CheckResult {
	start := time.Now()
	status := c.status()

	result := CheckResult{
		Name:      c.Name(),
		Timestamp: start,
		Message:   "connection is " + status.String(),
		Details: map[string]interface{}{
			"status": status.String(),
		},
	}

	switch status {
	case dispatch.StatusConnected:
		result.Status = StatusHealthy
	case dispatch.StatusConnecting:
		result.Status = StatusDegraded
	default:
		result.Status = StatusUnhealthy
	}

	c.mu.Lock()
	if !c.lastChange.IsZero() {
		result.Details["since"] = c.lastChange
	}
	result.Details["disconnects"] = c.disconnects
	c.mu.Unlock()

	result.Duration = time.Since(start)
	return result
}

// ComponentChecker allows checking custom components
type ComponentChecker struct {
	name    string
	checker func(ctx context.Context) (Status, string, error)
}

// NewComponentChecker creates a checker for custom components
func NewComponentChecker(name string, checker func(ctx context.Context) (Status, string, error)) *ComponentChecker {
	return &ComponentChecker{
		name:    name,
		checker: checker,
	}
}

func (c *ComponentChecker) Name() string {
	return c.name
}

func (c *ComponentChecker) Check(ctx context.Context) CheckResult {
	start := time.Now()
	status, message, err := c.checker(ctx)

	result := CheckResult{
		Name:      c.name,
		Status:    status,
		Message:   message,
		Timestamp: start,
		Duration:  time.Since(start),
	}
	if err != nil {
		result.Error = err.Error()
		if status == "" {
			result.Status = StatusUnhealthy
		}
	}
	return result
}
