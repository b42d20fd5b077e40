// Package streadway provides a messaging.Transport on the legacy
// github.com/streadway/amqp client, for services still pinned to it.
//
// New code should use transports/rabbitmq. Both adapters honour the same
// connection string and close semantics.
package streadway
