package kafka

import (
	"context"
	"fmt"
	"strconv"

	kafkago "github.com/segmentio/kafka-go"

	"github.com/ariefw/go-shop-saga/internal/event"
)

// EventPublisher routes envelopes to per-topic producers by event type.
// It satisfies event.Publisher.
type EventPublisher struct {
	producers map[string]*Producer // event type -> producer
}

func NewEventPublisher() *EventPublisher {
	return &EventPublisher{producers: make(map[string]*Producer)}
}

func (p *EventPublisher) Route(eventType string, prod *Producer) *EventPublisher {
	p.producers[eventType] = prod
	return p
}

func (p *EventPublisher) Publish(ctx context.Context, env event.Envelope) error {
	prod, ok := p.producers[env.EventType]
	if !ok {
		return fmt.Errorf("kafka: no producer for event type %q", env.EventType)
	}
	prod.Publish(event.PartitionKey(env.CorrelationID), MustMarshal(env),
		kafkago.Header{Key: "x-event-type", Value: []byte(env.EventType)},
		kafkago.Header{Key: "x-event-version", Value: []byte(strconv.Itoa(env.EventVersion))},
	)
	return nil
}
