package orders

import (
	"context"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
)

// Reader отдаёт заказы и их ленту событий.
type Reader struct {
	orders   domain.OrderRepository
	timeline domain.TimelineRepository
}

// NewReader создаёт Reader.
func NewReader(orders domain.OrderRepository, timeline domain.TimelineRepository) *Reader {
	return &Reader{orders: orders, timeline: timeline}
}

// Get возвращает заказ.
func (r *Reader) Get(ctx context.Context, orderID string) (domain.Order, error) {
	return r.orders.Get(ctx, orderID)
}

// List возвращает страницу заказов.
func (r *Reader) List(ctx context.Context, filter domain.OrderFilter) (domain.OrderPage, error) {
	return r.orders.List(ctx, filter.Normalize())
}

// Timeline возвращает события заказа по времени.
func (r *Reader) Timeline(ctx context.Context, orderID string) ([]domain.TimelineEvent, error) {
	if r.timeline == nil {
		return nil, nil
	}
	return r.timeline.List(ctx, orderID)
}
