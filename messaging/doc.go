// Package messaging defines the broker-facing contract and the message model
// used by the dispatch client.
//
// This package includes:
//   - Transport and Channel: the adapter contract every broker binding implements
//   - RawMessage, Message, Fields, Properties, Headers: the message envelope
//   - MessageHandler and Delivery: the handler capability invoked per message
//   - ActionRegistry: maps the "action" header to a handler, with a reserved default
//   - Content codec: JSON encoding on send, tolerant decoding on receive
//
// Handlers receive the decoded content together with ack/nack closures bound
// to the delivery:
//
//	registry := messaging.NewActionRegistry(logger)
//	registry.Set("user.created", messaging.MessageHandlerFunc(
//		func(ctx context.Context, d *messaging.Delivery) error {
//			var evt UserCreated
//			if err := d.Decode(&evt); err != nil {
//				return d.Nack()
//			}
//			return d.Ack()
//		}))
//
// Delivery is at-least-once: a handler that neither acks nor nacks leaves the
// message unacknowledged until the channel closes.
package messaging
