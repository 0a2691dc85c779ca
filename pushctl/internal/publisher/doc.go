// Package publisher enqueues push events on RabbitMQ for the presencehub
// server's queue consumer.
package publisher
