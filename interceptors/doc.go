// Package interceptors wraps message handlers with cross-cutting behaviour.
//
// An interceptor sees every delivery before the handler does and decides
// whether, and how, to call the next handler in the chain:
//
//	chain := interceptors.NewChain(logger).
//	    Add(interceptors.NewLoggingInterceptor(logger)).
//	    Add(interceptors.NewTimeoutInterceptor(30 * time.Second))
//
//	client, err := dispatch.NewClient(ctx, "orders",
//	    dispatch.WithInterceptors(chain),
//	)
//
// Interceptors run in the order they were added; the first one added is the
// outermost.
package interceptors
