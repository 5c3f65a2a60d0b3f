package memory

import (
	"context"
	"slices"
	"sort"
	"sync"
	"time"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
)

// orderTimelines держит ленты заказов отсортированными по Occurred.
type orderTimelines struct {
	mu      sync.RWMutex
	byOrder map[string][]domain.TimelineEvent
}

// NewTimelineRepository создаёт in-memory ленту событий заказов.
func NewTimelineRepository() domain.TimelineRepository {
	return &orderTimelines{byOrder: make(map[string][]domain.TimelineEvent)}
}

// Append вставляет событие после всех событий с тем же или более ранним временем.
func (r *orderTimelines) Append(_ context.Context, event domain.TimelineEvent) error {
	if event.Occurred.IsZero() {
		event.Occurred = time.Now().UTC()
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	feed := r.byOrder[event.OrderID]
	at := sort.Search(len(feed), func(i int) bool { return feed[i].Occurred.After(event.Occurred) })
	r.byOrder[event.OrderID] = slices.Insert(feed, at, event)
	return nil
}

func (r *orderTimelines) List(_ context.Context, orderID string) ([]domain.TimelineEvent, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return slices.Clone(r.byOrder[orderID]), nil
}

var _ domain.TimelineRepository = (*orderTimelines)(nil)
