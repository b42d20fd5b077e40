package rabbitmq

import (
	"context"

	"github.com/glimte/mmate-dispatch/messaging"
)

// connFuture settles exactly once with the outcome of one Connect call
type connFuture struct {
	done chan struct{}
	ch   messaging.Channel
	err  error
}

func newConnFuture() *connFuture {
	return &connFuture{done: make(chan struct{})}
}

func (f *connFuture) resolve(ch messaging.Channel, err error) {
	f.ch, f.err = ch, err
	close(f.done)
}

func (f *connFuture) wait(ctx context.Context) (messaging.Channel, error) {
	select {
	case <-f.done:
		return f.ch, f.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}
