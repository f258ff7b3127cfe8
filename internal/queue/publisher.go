package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/OFFIS-RIT/aai-resources/internal/util"
	"github.com/OFFIS-RIT/aai-resources/pkg/logger"
	"github.com/OFFIS-RIT/aai-resources/pkg/migration"

	"github.com/rabbitmq/amqp091-go"
)

type channel interface {
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp091.Publishing) error
}

// TopicPublisher publishes migration events as JSON on the event exchange,
// one message per event, routed by action.
type TopicPublisher struct {
	ch       channel
	exchange string
	retries  int
	now      func() time.Time
}

type PublisherOption func(*TopicPublisher)

func WithExchange(name string) PublisherOption {
	return func(p *TopicPublisher) {
		p.exchange = name
	}
}

func WithPublishRetries(n int) PublisherOption {
	return func(p *TopicPublisher) {
		p.retries = n
	}
}

func NewTopicPublisher(ch *amqp091.Channel, opts ...PublisherOption) *TopicPublisher {
	return newTopicPublisher(ch, opts...)
}

func newTopicPublisher(ch channel, opts ...PublisherOption) *TopicPublisher {
	p := &TopicPublisher{
		ch:       ch,
		exchange: Exchange,
		retries:  3,
		now:      time.Now,
	}
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		opt(p)
	}
	return p
}

// Topic returns the routing key for an event action.
func Topic(action string) string {
	return TopicPrefix + strings.ToLower(action)
}

// Publish sends every event and stops at the first one that cannot be
// delivered after retries.
func (p *TopicPublisher) Publish(ctx context.Context, events []migration.Event) error {
	for i, ev := range events {
		body, err := json.Marshal(ev)
		if err != nil {
			return fmt.Errorf("encode event %s: %w", ev.ID, err)
		}
		msg := persistent("application/json", body, p.now())
		msg.MessageId = ev.ID
		msg.CorrelationId = ev.TransactionID
		msg.AppId = ev.Source

		err = util.RetryErrWithContext(ctx, p.retries, 200*time.Millisecond, func(ctx context.Context) error {
			return p.ch.PublishWithContext(ctx, p.exchange, Topic(ev.Action), false, false, msg)
		})
		if err != nil {
			return fmt.Errorf("publish event %d of %d: %w", i+1, len(events), err)
		}
	}
	logger.Debug("[Queue][Publish] Published migration events", "count", len(events), "exchange", p.exchange)
	return nil
}
