package interceptors

import (
	"context"

	"github.com/glimte/mmate-dispatch/messaging"
)

// MessageFilter decides whether a delivery should reach the handler
type MessageFilter interface {
	ShouldProcess(ctx context.Context, d *messaging.Delivery) bool
}

// MessageFilterFunc is a function adapter for MessageFilter
type MessageFilterFunc func(ctx context.Context, d *messaging.Delivery) bool

// ShouldProcess implements MessageFilter
func (f MessageFilterFunc) ShouldProcess(ctx context.Context, d *messaging.Delivery) bool {
	return f(ctx, d)
}

// SkipBehavior is what happens to a filtered-out delivery
type SkipBehavior int

const (
	// SkipAck acknowledges filtered deliveries so they are not redelivered
	SkipAck SkipBehavior = iota
	// SkipNack requeues filtered deliveries for another consumer
	SkipNack
)

// FilteringInterceptor drops deliveries rejected by its filter
type FilteringInterceptor struct {
	filter       MessageFilter
	skipBehavior SkipBehavior
}

// NewFilteringInterceptor creates a new filtering interceptor
func NewFilteringInterceptor(filter MessageFilter, skipBehavior SkipBehavior) *FilteringInterceptor {
	return &FilteringInterceptor{
		filter:       filter,
		skipBehavior: skipBehavior,
	}
}

// Intercept implements Interceptor
func (i *FilteringInterceptor) Intercept(ctx context.Context, d *messaging.Delivery, next messaging.MessageHandler) error {
	if i.filter.ShouldProcess(ctx, d) {
		return next.Handle(ctx, d)
	}

	if i.skipBehavior == SkipNack {
		return d.Nack()
	}
	return d.Ack()
}

// Name implements Interceptor
func (i *FilteringInterceptor) Name() string {
	return "FilteringInterceptor"
}

// ActionFilter passes deliveries whose action is in the allowed set
type ActionFilter struct {
	allowed map[string]struct{}
}

// NewActionFilter creates a filter allowing the given actions
func NewActionFilter(actions ...string) *ActionFilter {
	allowed := make(map[string]struct{}, len(actions))
	for _, a := range actions {
		allowed[a] = struct{}{}
	}
	return &ActionFilter{allowed: allowed}
}

// ShouldProcess implements MessageFilter
func (f *ActionFilter) ShouldProcess(ctx context.Context, d *messaging.Delivery) bool {
	_, ok := f.allowed[d.Action]
	return ok
}

// RedeliveryFilter rejects deliveries the broker already tried once
type RedeliveryFilter struct{}

// ShouldProcess implements MessageFilter
func (RedeliveryFilter) ShouldProcess(ctx context.Context, d *messaging.Delivery) bool {
	return !d.Fields.Redelivered
}
