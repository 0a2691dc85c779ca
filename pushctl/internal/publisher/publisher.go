package publisher

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/storyhub/presencehub/pkg/pushapi"
)

// DefaultQueue is the queue the server consumes from unless configured
// otherwise.
const DefaultQueue = "presencehub.push"

const confirmTimeout = 5 * time.Second

// ErrNotConfirmed is returned when the broker nacks a publish.
var ErrNotConfirmed = errors.New("publisher: broker did not confirm message")

// Publisher sends push events to a durable AMQP queue with publisher
// confirms enabled. It is not safe for concurrent use.
type Publisher struct {
	conn     *amqp.Connection
	ch       *amqp.Channel
	queue    string
	confirms <-chan amqp.Confirmation
	logger   *slog.Logger
}

// Dial connects to url, enables confirms and declares queue.
func Dial(url, queue string, logger *slog.Logger) (*Publisher, error) {
	if queue == "" {
		queue = DefaultQueue
	}
	if logger == nil {
		logger = slog.Default()
	}

	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("publisher: connect: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("publisher: open channel: %w", err)
	}
	if err := ch.Confirm(false); err != nil {
		conn.Close()
		return nil, fmt.Errorf("publisher: enable confirms: %w", err)
	}
	if _, err := ch.QueueDeclare(queue, true, false, false, false, nil); err != nil {
		conn.Close()
		return nil, fmt.Errorf("publisher: declare %q: %w", queue, err)
	}

	return &Publisher{
		conn:     conn,
		ch:       ch,
		queue:    queue,
		confirms: ch.NotifyPublish(make(chan amqp.Confirmation, 1)),
		logger:   logger.With("component", "publisher", "queue", queue),
	}, nil
}

// Publish validates ev, sends it as a persistent message and waits for the
// broker's confirm. It returns the generated message id.
func (p *Publisher) Publish(ctx context.Context, ev pushapi.Event) (string, error) {
	msg, err := message(ev)
	if err != nil {
		return "", err
	}
	if err := p.ch.PublishWithContext(ctx, "", p.queue, false, false, msg); err != nil {
		return "", fmt.Errorf("publisher: publish: %w", err)
	}

	timer := time.NewTimer(confirmTimeout)
	defer timer.Stop()
	select {
	case c, ok := <-p.confirms:
		if !ok {
			return "", fmt.Errorf("publisher: channel closed before confirm")
		}
		if !c.Ack {
			return "", ErrNotConfirmed
		}
	case <-timer.C:
		return "", fmt.Errorf("publisher: confirm timed out after %s", confirmTimeout)
	case <-ctx.Done():
		return "", ctx.Err()
	}

	p.logger.Debug("event published", "type", ev.Type, "message_id", msg.MessageId)
	return msg.MessageId, nil
}

// Close closes the channel and connection.
func (p *Publisher) Close() error {
	chErr := p.ch.Close()
	connErr := p.conn.Close()
	return errors.Join(chErr, connErr)
}

// message builds the AMQP publishing for ev.
func message(ev pushapi.Event) (amqp.Publishing, error) {
	if err := ev.Validate(); err != nil {
		return amqp.Publishing{}, err
	}
	body, err := json.Marshal(ev)
	if err != nil {
		return amqp.Publishing{}, fmt.Errorf("publisher: encode event: %w", err)
	}
	return amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		MessageId:    uuid.NewString(),
		Timestamp:    time.Now().UTC(),
		Type:         ev.Type,
		Body:         body,
	}, nil
}
