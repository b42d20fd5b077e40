package messaging

import (
	"context"
	"log/slog"
	"sort"
	"sync"
)

// ActionRegistry maps action names to handlers. It always holds an entry
// for DefaultAction; lookups of unknown actions resolve to it.
type ActionRegistry struct {
	handlers      map[string]MessageHandler
	customDefault bool
	mu            sync.RWMutex
	logger        *slog.Logger
}

// NewActionRegistry creates a registry whose default handler acknowledges
// the message and logs it as unhandled, so unmatched messages are not
// redelivered forever
func NewActionRegistry(logger *slog.Logger) *ActionRegistry {
	if logger == nil {
		logger = slog.Default()
	}

	r := &ActionRegistry{
		handlers: make(map[string]MessageHandler),
		logger:   logger,
	}
	r.handlers[DefaultAction] = MessageHandlerFunc(r.unhandled)

	return r
}

func (r *ActionRegistry) unhandled(ctx context.Context, d *Delivery) error {
	err := d.Ack()
	r.logger.Warn("unhandled action",
		"action", d.Action,
		"exchange", d.Fields.Exchange,
		"routingKey", d.Fields.RoutingKey,
		"deliveryTag", d.Fields.DeliveryTag,
	)
	return err
}

// Set registers handler for action. The last registration wins.
func (r *ActionRegistry) Set(action string, handler MessageHandler) {
	if action == "" {
		action = DefaultAction
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	r.handlers[action] = handler
	if action == DefaultAction {
		r.customDefault = true
	}
}

// Get returns the handler for action, or the default handler
func (r *ActionRegistry) Get(action string) MessageHandler {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if h, ok := r.handlers[action]; ok {
		return h
	}
	return r.handlers[DefaultAction]
}

// HasActions reports whether any named (non-default) action is registered
func (r *ActionRegistry) HasActions() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.handlers) > 1
}

// HasDefault reports whether the default handler was replaced by the caller
func (r *ActionRegistry) HasDefault() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.customDefault
}

// Actions returns the registered named actions in sorted order
func (r *ActionRegistry) Actions() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	actions := make([]string, 0, len(r.handlers))
	for name := range r.handlers {
		if name != DefaultAction {
			actions = append(actions, name)
		}
	}
	sort.Strings(actions)
	return actions
}
