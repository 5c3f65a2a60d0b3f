package journal

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
	"github.com/vladislavdragonenkov/storefront/internal/metrics"
)

// Типы агрегатов в outbox.
const (
	AggregateOrder  = "order"
	AggregateReview = "review"
)

// Entry: одно доменное событие. Для заказов оно попадает и в outbox, и в timeline.
type Entry struct {
	AggregateType string
	AggregateID   string
	EventType     string
	Reason        string
	Actor         string
	Payload       map[string]any
	Occurred      time.Time
	// TimelineOnly не публикует событие наружу.
	TimelineOnly bool
}

// Recorder пишет события в outbox и ленту заказа.
type Recorder struct {
	outbox   domain.OutboxRepository
	timeline domain.TimelineRepository
	logger   *log.Entry
	metrics  *metrics.PlacementMetrics
}

// NewRecorder создаёт Recorder. Любой из репозиториев может быть nil.
func NewRecorder(outbox domain.OutboxRepository, timeline domain.TimelineRepository, logger *log.Entry, m *metrics.PlacementMetrics) *Recorder {
	if logger == nil {
		logger = log.WithField("component", "journal")
	}
	return &Recorder{
		outbox:   outbox,
		timeline: timeline,
		logger:   logger,
		metrics:  m,
	}
}

// Record сохраняет событие. Ошибка timeline только логируется,
// ошибка outbox возвращается: вызывающий решает, критична ли она.
func (r *Recorder) Record(ctx context.Context, entry Entry) error {
	if r == nil {
		return nil
	}
	if entry.AggregateType == "" {
		entry.AggregateType = AggregateOrder
	}
	if entry.Occurred.IsZero() {
		entry.Occurred = time.Now().UTC()
	}

	fields := log.Fields{
		"aggregate_id": entry.AggregateID,
		"event":        entry.EventType,
	}

	var enqueueErr error
	if r.outbox != nil && !entry.TimelineOnly {
		enqueueErr = r.enqueue(ctx, entry)
		if enqueueErr != nil {
			r.logger.WithError(enqueueErr).WithFields(fields).Error("enqueue event failed")
		} else {
			r.metrics.RecordOutboxEvent()
		}
	}

	if r.timeline != nil && entry.AggregateType == AggregateOrder {
		event := domain.TimelineEvent{
			OrderID:  entry.AggregateID,
			Type:     entry.EventType,
			Reason:   entry.Reason,
			Actor:    entry.Actor,
			Occurred: entry.Occurred,
		}
		if err := r.timeline.Append(ctx, event); err != nil {
			r.logger.WithError(err).WithFields(fields).Warn("append timeline event failed")
		} else {
			r.metrics.RecordTimelineEvent()
		}
	}

	return enqueueErr
}

func (r *Recorder) enqueue(ctx context.Context, entry Entry) error {
	payload := make(map[string]any, len(entry.Payload)+4)
	for k, v := range entry.Payload {
		payload[k] = v
	}
	payload[entry.AggregateType+"_id"] = entry.AggregateID
	payload["ts"] = entry.Occurred.Format(time.RFC3339Nano)
	if entry.Reason != "" {
		payload["reason"] = entry.Reason
	}
	if entry.Actor != "" {
		payload["actor"] = entry.Actor
	}

	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal %s payload: %w", entry.EventType, err)
	}

	_, err = r.outbox.Enqueue(ctx, domain.OutboxMessage{
		AggregateType: entry.AggregateType,
		AggregateID:   entry.AggregateID,
		EventType:     entry.EventType,
		Payload:       data,
		CreatedAt:     entry.Occurred,
	})
	if err != nil {
		return fmt.Errorf("enqueue %s: %w", entry.EventType, err)
	}
	return nil
}
