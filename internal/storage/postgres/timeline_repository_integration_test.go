package postgres

import (
	"context"
	"testing"
	"time"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
)

func TestTimelineRepository_PostgresAppendAndList(t *testing.T) {
	store := openPostgresStoreForIntegrationTest(t)
	timelineRepo := NewTimelineRepository(store)
	ctx := context.Background()

	createdAt := time.Now().UTC().Add(-time.Minute).Round(time.Microsecond)

	// Zero occurred should be auto-filled.
	if err := timelineRepo.Append(ctx, domain.TimelineEvent{
		OrderID: "ORD-TL",
		Type:    domain.TimelinePlaced,
		Reason:  "placed",
		Actor:   "user-1",
	}); err != nil {
		t.Fatalf("append timeline event with zero occurred: %v", err)
	}

	if err := timelineRepo.Append(ctx, domain.TimelineEvent{
		OrderID:  "ORD-TL",
		Type:     domain.TimelineStatusChanged,
		Reason:   "pending -> processing",
		Actor:    "admin-1",
		Occurred: createdAt,
	}); err != nil {
		t.Fatalf("append timeline event with explicit occurred: %v", err)
	}

	events, err := timelineRepo.List(ctx, "ORD-TL")
	if err != nil {
		t.Fatalf("list timeline events: %v", err)
	}
	if len(events) != 2 {
		t.Fatalf("expected 2 timeline events, got %d", len(events))
	}
	if events[0].Type != domain.TimelineStatusChanged || events[0].Actor != "admin-1" {
		t.Fatalf("events should be sorted by occurred asc: %+v", events)
	}

	missing, err := timelineRepo.List(ctx, "missing-order")
	if err != nil {
		t.Fatalf("list for missing order should not fail: %v", err)
	}
	if len(missing) != 0 {
		t.Fatalf("expected no events for missing order, got %d", len(missing))
	}
}
