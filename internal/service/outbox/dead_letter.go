package outbox

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
)

// DeadLetter: запись, которую воркер кладёт в DLQ после исчерпания попыток.
// Исходное событие хранится целиком, чтобы его можно было переиграть.
type DeadLetter struct {
	OutboxID      string          `json:"outbox_id"`
	AggregateType string          `json:"aggregate_type"`
	AggregateID   string          `json:"aggregate_id"`
	EventType     string          `json:"event_type"`
	Payload       json.RawMessage `json:"payload"`
	PublishError  string          `json:"publish_error"`
	Attempts      int             `json:"attempts,omitempty"`
	FailedAt      time.Time       `json:"dlq_published_at"`
}

// NewDeadLetter фиксирует неудачную доставку события.
func NewDeadLetter(event domain.OutboxMessage, publishErr error, attempts int, at time.Time) DeadLetter {
	letter := DeadLetter{
		OutboxID:      event.ID,
		AggregateType: event.AggregateType,
		AggregateID:   event.AggregateID,
		EventType:     event.EventType,
		Attempts:      attempts,
		FailedAt:      at.UTC(),
	}
	if len(event.Payload) > 0 {
		letter.Payload = json.RawMessage(event.Payload)
	}
	if publishErr != nil {
		letter.PublishError = publishErr.Error()
	}
	return letter
}

// Message упаковывает запись в сообщение для DLQ-издателя с теми же
// идентификаторами, что и у исходного события.
func (l DeadLetter) Message(createdAt time.Time) (domain.OutboxMessage, error) {
	payload, err := json.Marshal(l)
	if err != nil {
		return domain.OutboxMessage{}, fmt.Errorf("marshal dead letter %s: %w", l.OutboxID, err)
	}
	return domain.OutboxMessage{
		ID:            l.OutboxID,
		AggregateType: l.AggregateType,
		AggregateID:   l.AggregateID,
		EventType:     l.EventType,
		Payload:       payload,
		CreatedAt:     createdAt,
	}, nil
}
