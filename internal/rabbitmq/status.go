package rabbitmq

// ConnectionStatus is the lifecycle state of a ConnectionManager
type ConnectionStatus int32

const (
	StatusConnecting ConnectionStatus = iota
	StatusConnected
	StatusDisconnecting
	StatusDisconnected
)

func (s ConnectionStatus) String() string {
	switch s {
	case StatusConnecting:
		return "connecting"
	case StatusConnected:
		return "connected"
	case StatusDisconnecting:
		return "disconnecting"
	case StatusDisconnected:
		return "disconnected"
	default:
		return "unknown"
	}
}

// StatusListener receives connection status transitions. Listeners are
// called synchronously, in transition order, and must not block.
type StatusListener interface {
	OnStatusChange(status ConnectionStatus)
}

// StatusListenerFunc is a function adapter for StatusListener
type StatusListenerFunc func(status ConnectionStatus)

// OnStatusChange implements StatusListener
func (f StatusListenerFunc) OnStatusChange(status ConnectionStatus) {
	f(status)
}

// AddStatusListener registers listener and returns a function removing it
func (m *ConnectionManager) AddStatusListener(listener StatusListener) (remove func()) {
	m.listenersMu.Lock()
	defer m.listenersMu.Unlock()

	id := m.nextListener
	m.nextListener++
	m.listeners[id] = listener

	return func() {
		m.listenersMu.Lock()
		defer m.listenersMu.Unlock()
		delete(m.listeners, id)
	}
}

func (m *ConnectionManager) notifyStatus(status ConnectionStatus) {
	m.logger.Info("connection status changed", "service", m.name, "status", status.String())

	m.listenersMu.RLock()
	listeners := make([]StatusListener, 0, len(m.listeners))
	for _, l := range m.listeners {
		listeners = append(listeners, l)
	}
	m.listenersMu.RUnlock()

	for _, l := range listeners {
		l.OnStatusChange(status)
	}
}
