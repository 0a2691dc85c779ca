package queue

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/storyhub/presencehub/pkg/pushapi"
	"github.com/storyhub/presencehub/server/internal/hub"
)

const (
	backoffInitial = 1 * time.Second
	backoffMax     = 30 * time.Second

	// applyTimeout bounds one push call into the hub.
	applyTimeout = 5 * time.Second

	consumerTag = "presencehub"
)

// Consumer reads push events from a durable AMQP queue and applies them to
// the hub. One delivery is in flight at a time (Qos 1) and each is acked
// only after the hub has run it.
type Consumer struct {
	url    string
	queue  string
	pusher pushapi.Pusher
	logger *slog.Logger
}

// New creates a Consumer for queue on the broker at url.
func New(url, queue string, p pushapi.Pusher, logger *slog.Logger) *Consumer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Consumer{
		url:    url,
		queue:  queue,
		pusher: p,
		logger: logger.With("component", "queue", "queue", queue),
	}
}

// Run consumes until ctx is cancelled, reconnecting with exponential backoff
// whenever the connection or channel drops.
func (c *Consumer) Run(ctx context.Context) error {
	backoff := backoffInitial
	for {
		err := c.session(ctx)
		if ctx.Err() != nil {
			return nil
		}
		c.logger.Error("amqp session ended, will reconnect", "err", err, "after", backoff)
		select {
		case <-ctx.Done():
			return nil
		case <-time.After(backoff):
		}
		backoff *= 2
		if backoff > backoffMax {
			backoff = backoffMax
		}
		if err == nil {
			backoff = backoffInitial
		}
	}
}

// session runs one connection until it fails or ctx is cancelled. A nil
// return means the broker closed the delivery channel cleanly.
func (c *Consumer) session(ctx context.Context) error {
	conn, err := amqp.Dial(c.url)
	if err != nil {
		return fmt.Errorf("queue: connect: %w", err)
	}
	defer conn.Close()

	ch, err := conn.Channel()
	if err != nil {
		return fmt.Errorf("queue: open channel: %w", err)
	}
	defer ch.Close()

	if err := ch.Qos(1, 0, false); err != nil {
		return fmt.Errorf("queue: set qos: %w", err)
	}
	if _, err := ch.QueueDeclare(c.queue, true, false, false, false, nil); err != nil {
		return fmt.Errorf("queue: declare %q: %w", c.queue, err)
	}
	deliveries, err := ch.Consume(c.queue, consumerTag, false, false, false, false, nil)
	if err != nil {
		return fmt.Errorf("queue: consume: %w", err)
	}

	closed := conn.NotifyClose(make(chan *amqp.Error, 1))
	c.logger.Info("amqp consumer connected")

	for {
		select {
		case <-ctx.Done():
			return nil
		case amqpErr := <-closed:
			if amqpErr == nil {
				return nil
			}
			return amqpErr
		case d, ok := <-deliveries:
			if !ok {
				return nil
			}
			c.handle(ctx, d)
		}
	}
}

// outcome is what to tell the broker about one delivery.
type outcome int

const (
	ack     outcome = iota
	reject          // drop, never redeliver
	requeue         // hand back for another attempt
)

// handle applies one delivery and settles it with the broker.
func (c *Consumer) handle(ctx context.Context, d amqp.Delivery) {
	var err error
	switch c.process(ctx, d.Body) {
	case ack:
		err = d.Ack(false)
	case reject:
		err = d.Nack(false, false)
	case requeue:
		err = d.Nack(false, true)
	}
	if err != nil {
		c.logger.Error("settle delivery", "message_id", d.MessageId, "err", err)
	}
}

// process decodes and applies one envelope.
func (c *Consumer) process(ctx context.Context, body []byte) outcome {
	ev, err := pushapi.DecodeEvent(body)
	if err != nil {
		c.logger.Warn("discarding undecodable push event", "err", err)
		return reject
	}

	applyCtx, cancel := context.WithTimeout(ctx, applyTimeout)
	defer cancel()

	delivered, err := ev.Apply(applyCtx, c.pusher)
	switch {
	case err == nil:
		c.logger.Debug("push event applied", "type", ev.Type, "delivered", delivered)
		return ack
	case errors.Is(err, hub.ErrInvalidPayload):
		c.logger.Warn("discarding invalid push event", "type", ev.Type, "err", err)
		return reject
	default:
		// The hub only errors for calls it never ran, so redelivery cannot
		// duplicate a push.
		c.logger.Warn("push event not applied, requeueing", "type", ev.Type, "err", err)
		return requeue
	}
}
