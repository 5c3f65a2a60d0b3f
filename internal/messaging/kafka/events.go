package kafka

import (
	"encoding/json"
	"time"
)

// Topics для Kafka
const (
	TopicOrderEvents     = "storefront.order.events"
	TopicOrderHandoff    = "storefront.order.handoff"
	TopicDeadLetterQueue = "storefront.dlq"
)

// Kafka headers, которые producer ставит на каждое сообщение outbox.
const (
	HeaderEventType     = "x-event-type"
	HeaderAggregateType = "x-aggregate-type"
	HeaderOutboxID      = "x-outbox-id"
)

// handoffEvents уходят во внешний канал передачи заказа, остальное в общий поток событий.
var handoffEvents = map[string]struct{}{
	"OrderHandoffRequested": {},
}

// TopicFor выбирает topic по типу события.
func TopicFor(eventType string) string {
	if _, ok := handoffEvents[eventType]; ok {
		return TopicOrderHandoff
	}
	return TopicOrderEvents
}

// Envelope — формат сообщения outbox в Kafka.
type Envelope struct {
	ID            string          `json:"id"`
	AggregateType string          `json:"aggregate_type"`
	AggregateID   string          `json:"aggregate_id"`
	EventType     string          `json:"event_type"`
	Payload       json.RawMessage `json:"payload"`
	OccurredAt    time.Time       `json:"occurred_at"`
	PublishedAt   time.Time       `json:"published_at"`
}
