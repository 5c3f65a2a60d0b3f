package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
	"github.com/vladislavdragonenkov/storefront/internal/retry"
)

// OutboxTopicPublisher публикует outbox-сообщения в Kafka. Если topic пустой,
// он выбирается по типу события через TopicFor.
type OutboxTopicPublisher struct {
	producer *Producer
	topic    string
	breaker  *retry.CircuitBreaker
}

// PublisherOption настраивает OutboxTopicPublisher.
type PublisherOption func(*OutboxTopicPublisher)

// WithCircuitBreaker перестаёт дёргать брокер после серии ошибок.
func WithCircuitBreaker(cb *retry.CircuitBreaker) PublisherOption {
	return func(p *OutboxTopicPublisher) {
		p.breaker = cb
	}
}

// NewOutboxPublisher создаёт Kafka-паблишер для transactional outbox.
func NewOutboxPublisher(producer *Producer, topic string, options ...PublisherOption) *OutboxTopicPublisher {
	p := &OutboxTopicPublisher{
		producer: producer,
		topic:    topic,
	}
	for _, option := range options {
		option(p)
	}
	return p
}

func (p *OutboxTopicPublisher) Publish(ctx context.Context, event domain.OutboxMessage) error {
	if p == nil || p.producer == nil {
		return errors.New("kafka outbox publisher is not initialized")
	}

	topic := p.topic
	if topic == "" {
		topic = TopicFor(event.EventType)
	}

	key := event.AggregateID
	if key == "" {
		key = event.ID
	}

	payload := json.RawMessage(event.Payload)
	if len(payload) == 0 {
		payload = nil
	}

	envelope := Envelope{
		ID:            event.ID,
		AggregateType: event.AggregateType,
		AggregateID:   event.AggregateID,
		EventType:     event.EventType,
		Payload:       payload,
		OccurredAt:    event.CreatedAt,
		PublishedAt:   time.Now().UTC(),
	}
	headers := map[string]string{
		HeaderEventType:     event.EventType,
		HeaderAggregateType: event.AggregateType,
		HeaderOutboxID:      event.ID,
	}

	send := func() error {
		return p.producer.PublishEvent(ctx, topic, key, envelope, headers)
	}
	if p.breaker == nil {
		return send()
	}
	if err := p.breaker.Execute("kafka_publish", send); err != nil {
		return fmt.Errorf("publish %s: %w", event.EventType, err)
	}
	return nil
}

var _ domain.OutboxPublisher = (*OutboxTopicPublisher)(nil)
