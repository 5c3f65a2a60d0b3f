package outbox

import (
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
)

func TestDeadLetter_MessageKeepsOriginalEvent(t *testing.T) {
	t.Parallel()

	created := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	failed := created.Add(time.Minute)
	event := domain.OutboxMessage{
		ID:            "outbox-7",
		AggregateType: "order",
		AggregateID:   "ORD-7",
		EventType:     "OrderHandoffRequested",
		Payload:       []byte(`{"orderId":"ORD-7"}`),
		CreatedAt:     created,
	}

	letter := NewDeadLetter(event, errors.New("broker down"), 3, failed)
	msg, err := letter.Message(event.CreatedAt)
	require.NoError(t, err)

	assert.Equal(t, "outbox-7", msg.ID)
	assert.Equal(t, "ORD-7", msg.AggregateID)
	assert.Equal(t, "OrderHandoffRequested", msg.EventType)
	assert.Equal(t, created, msg.CreatedAt)

	var decoded DeadLetter
	require.NoError(t, json.Unmarshal(msg.Payload, &decoded))
	assert.Equal(t, letter.OutboxID, decoded.OutboxID)
	assert.Equal(t, "broker down", decoded.PublishError)
	assert.Equal(t, 3, decoded.Attempts)
	assert.True(t, decoded.FailedAt.Equal(failed))
	assert.JSONEq(t, `{"orderId":"ORD-7"}`, string(decoded.Payload))
}

func TestDeadLetter_EmptyPayloadEncodesAsNull(t *testing.T) {
	t.Parallel()

	letter := NewDeadLetter(domain.OutboxMessage{ID: "outbox-8", EventType: "OrderPlaced"}, nil, 1, time.Now())
	msg, err := letter.Message(time.Time{})
	require.NoError(t, err)

	var raw map[string]any
	require.NoError(t, json.Unmarshal(msg.Payload, &raw))
	assert.Nil(t, raw["payload"])
	assert.Equal(t, "", raw["publish_error"])
}
