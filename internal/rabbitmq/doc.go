// Package rabbitmq implements the connection lifecycle of the dispatch client
// on top of the messaging.Transport contract.
//
// This package includes:
//   - ConnectionManager: owns the connection status, retries with backoff,
//     collapses concurrent close signals into one reconnect and restores
//     consumption and bindings afterwards
//   - Connection string building for standalone and cluster setups
//   - Provisioning of the durable topic exchange and the service queue
//   - Consumer tag bookkeeping that keeps one consumer per queue
//   - Action dispatch of incoming deliveries and point-to-point/broadcast sends
//   - Connection status notifications
//
// The broker driver itself is supplied by a messaging.Transport, see
// transports/rabbitmq and transports/streadway.
package rabbitmq
