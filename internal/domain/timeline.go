package domain

import "time"

// Типы событий ленты заказа.
const (
	TimelinePlaced         = "OrderPlaced"
	TimelineStatusChanged  = "OrderStatusChanged"
	TimelineCanceled       = "OrderCanceled"
	TimelineRestocked      = "OrderRestocked"
	TimelineRestockFailed  = "OrderRestockFailed"
	TimelineStatsSkipped   = "UserStatsSkipped"
	TimelineTotalMismatch  = "ClientTotalMismatch"
	TimelineDeletedByAdmin = "OrderDeleted"
)

// TimelineEvent описывает событие в жизненном цикле заказа.
type TimelineEvent struct {
	OrderID  string
	Type     string
	Reason   string
	Actor    string
	Occurred time.Time
}
