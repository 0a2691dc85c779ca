package queue

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/storyhub/presencehub/server/internal/hub"
)

type fakePusher struct {
	err     error
	stories []string
	notify  map[int64]string
}

func (p *fakePusher) BroadcastNewStory(_ context.Context, story json.RawMessage) error {
	if p.err != nil {
		return p.err
	}
	p.stories = append(p.stories, string(story))
	return nil
}

func (p *fakePusher) BroadcastNewComment(_ context.Context, _, story json.RawMessage) error {
	if p.err != nil {
		return p.err
	}
	p.stories = append(p.stories, string(story))
	return nil
}

func (p *fakePusher) NotifyUser(_ context.Context, userID int64, message json.RawMessage) (bool, error) {
	if p.err != nil {
		return false, p.err
	}
	if p.notify == nil {
		p.notify = map[int64]string{}
	}
	p.notify[userID] = string(message)
	return true, nil
}

// settled records how a delivery was acknowledged.
type settled struct {
	mu      sync.Mutex
	acks    int
	nacks   int
	requeue []bool
}

func (s *settled) Ack(uint64, bool) error {
	s.mu.Lock()
	s.acks++
	s.mu.Unlock()
	return nil
}

func (s *settled) Nack(_ uint64, _ bool, requeue bool) error {
	s.mu.Lock()
	s.nacks++
	s.requeue = append(s.requeue, requeue)
	s.mu.Unlock()
	return nil
}

func (s *settled) Reject(tag uint64, requeue bool) error { return s.Nack(tag, false, requeue) }

func newConsumer(p *fakePusher) *Consumer {
	return New("amqp://unused", "presencehub.push", p, slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func deliver(c *Consumer, body string) *settled {
	s := &settled{}
	c.handle(context.Background(), amqp.Delivery{Acknowledger: s, DeliveryTag: 1, Body: []byte(body)})
	return s
}

func TestHandle_AppliesAndAcks(t *testing.T) {
	p := &fakePusher{}
	c := newConsumer(p)

	s := deliver(c, `{"type":"new_story","story":{"id":3}}`)
	assert.Equal(t, 1, s.acks)
	assert.Zero(t, s.nacks)
	assert.Equal(t, []string{`{"id":3}`}, p.stories)

	s = deliver(c, `{"type":"notify_user","user_id":7,"message":{"type":"mention"}}`)
	assert.Equal(t, 1, s.acks)
	assert.Equal(t, `{"type":"mention"}`, p.notify[7])
}

func TestHandle_UndecodableIsRejected(t *testing.T) {
	c := newConsumer(&fakePusher{})
	for _, body := range []string{`not json`, `{"type":"dance"}`, `{"type":"new_comment","story":{"id":1}}`} {
		s := deliver(c, body)
		require.Equal(t, 1, s.nacks, body)
		assert.Equal(t, []bool{false}, s.requeue, body)
	}
}

func TestHandle_InvalidPayloadIsRejected(t *testing.T) {
	c := newConsumer(&fakePusher{err: hub.ErrInvalidPayload})
	s := deliver(c, `{"type":"new_comment","comment":{},"story":{"title":"no id"}}`)
	assert.Equal(t, []bool{false}, s.requeue)
}

func TestHandle_HubUnavailableIsRequeued(t *testing.T) {
	for _, err := range []error{hub.ErrClosed, context.DeadlineExceeded, errors.New("boom")} {
		c := newConsumer(&fakePusher{err: err})
		s := deliver(c, `{"type":"new_story","story":{"id":1}}`)
		assert.Zero(t, s.acks, err)
		assert.Equal(t, []bool{true}, s.requeue, err)
	}
}

func TestHandle_AgainstRunningHub(t *testing.T) {
	h := hub.New(nil)
	ctx, cancel := context.WithCancel(context.Background())
	go h.Run(ctx)
	defer func() {
		cancel()
		<-h.Done()
	}()

	c := New("amqp://unused", "q", h, slog.New(slog.NewTextHandler(io.Discard, nil)))
	s := &settled{}
	c.handle(ctx, amqp.Delivery{Acknowledger: s, Body: []byte(`{"type":"new_comment","comment":{"id":1},"story":{"id":42}}`)})
	assert.Equal(t, 1, s.acks, "comment for an empty room is a no-op, not an error")

	s = &settled{}
	c.handle(ctx, amqp.Delivery{Acknowledger: s, Body: []byte(`{"type":"new_comment","comment":{"id":1},"story":{}}`)})
	assert.Equal(t, []bool{false}, s.requeue)
}
