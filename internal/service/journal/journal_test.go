package journal

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
	"github.com/vladislavdragonenkov/storefront/internal/storage/memory"
)

func TestRecord_OrderEventGoesToOutboxAndTimeline(t *testing.T) {
	ctx := context.Background()
	outbox := memory.NewOutboxRepository()
	timeline := memory.NewTimelineRepository()
	rec := NewRecorder(outbox, timeline, nil, nil)

	err := rec.Record(ctx, Entry{
		AggregateID: "ORD-1",
		EventType:   domain.TimelineStatusChanged,
		Reason:      "shipped by courier",
		Actor:       "admin-1",
		Payload:     map[string]any{"status": "shipped"},
	})
	require.NoError(t, err)

	pending := outbox.AllPending()
	require.Len(t, pending, 1)
	assert.Equal(t, "order", pending[0].AggregateType)

	var payload map[string]any
	require.NoError(t, json.Unmarshal(pending[0].Payload, &payload))
	assert.Equal(t, "ORD-1", payload["order_id"])
	assert.Equal(t, "shipped", payload["status"])
	assert.Equal(t, "admin-1", payload["actor"])

	events, err := timeline.List(ctx, "ORD-1")
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, "shipped by courier", events[0].Reason)
}

func TestRecord_ReviewEventSkipsTimeline(t *testing.T) {
	ctx := context.Background()
	outbox := memory.NewOutboxRepository()
	timeline := memory.NewTimelineRepository()
	rec := NewRecorder(outbox, timeline, nil, nil)

	require.NoError(t, rec.Record(ctx, Entry{
		AggregateType: AggregateReview,
		AggregateID:   "rev-1",
		EventType:     "ReviewRecorded",
	}))

	assert.Len(t, outbox.AllPending(), 1)
	events, err := timeline.List(ctx, "rev-1")
	require.NoError(t, err)
	assert.Empty(t, events)
}

func TestRecord_TimelineOnly(t *testing.T) {
	ctx := context.Background()
	outbox := memory.NewOutboxRepository()
	timeline := memory.NewTimelineRepository()
	rec := NewRecorder(outbox, timeline, nil, nil)

	require.NoError(t, rec.Record(ctx, Entry{AggregateID: "ORD-2", EventType: domain.TimelineStatsSkipped, TimelineOnly: true}))

	assert.Empty(t, outbox.AllPending())
	events, err := timeline.List(ctx, "ORD-2")
	require.NoError(t, err)
	assert.Len(t, events, 1)
}

type failingOutbox struct {
	domain.OutboxRepository
}

func (failingOutbox) Enqueue(context.Context, domain.OutboxMessage) (domain.OutboxMessage, error) {
	return domain.OutboxMessage{}, errors.New("outbox down")
}

func TestRecord_ReturnsOutboxErrorButKeepsTimeline(t *testing.T) {
	ctx := context.Background()
	timeline := memory.NewTimelineRepository()
	rec := NewRecorder(failingOutbox{}, timeline, nil, nil)

	err := rec.Record(ctx, Entry{AggregateID: "ORD-3", EventType: domain.TimelinePlaced})
	require.Error(t, err)

	events, listErr := timeline.List(ctx, "ORD-3")
	require.NoError(t, listErr)
	assert.Len(t, events, 1)
}

func TestRecord_NilRecorder(t *testing.T) {
	var rec *Recorder
	assert.NoError(t, rec.Record(context.Background(), Entry{EventType: "x"}))
}
