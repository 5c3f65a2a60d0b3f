package domain

import (
	"context"
	"time"
)

// StockLedger — учёт остатков с атомарным резервом.
type StockLedger interface {
	// Reserve атомарно проверяет и списывает qty единиц.
	// Для неотслеживаемых товаров ничего не списывает. При нехватке возвращает ErrInsufficientStock.
	Reserve(ctx context.Context, productID string, qty int64) error
	// Release безусловно возвращает qty единиц (компенсация или отмена).
	Release(ctx context.Context, productID string, qty int64) error
}

// OutboxPublisher публикует события из transactional outbox.
type OutboxPublisher interface {
	// Publish передаёт событие наружу; должен быть идемпотентным.
	Publish(ctx context.Context, event OutboxMessage) error
}

// OutboxRepository позволяет сохранять события для последующей публикации.
type OutboxRepository interface {
	Enqueue(ctx context.Context, msg OutboxMessage) (OutboxMessage, error)
	PullPending(ctx context.Context, limit int) ([]OutboxMessage, error)
	Stats(ctx context.Context) (OutboxStats, error)
	MarkSent(ctx context.Context, id string) error
	MarkFailed(ctx context.Context, id string) error
}

// TimelineRepository хранит события жизненного цикла заказа.
type TimelineRepository interface {
	Append(ctx context.Context, event TimelineEvent) error
	List(ctx context.Context, orderID string) ([]TimelineEvent, error)
}

// IdempotencyRepository хранит состояние обработки запросов по idempotency-key.
type IdempotencyRepository interface {
	CreateProcessing(ctx context.Context, key, requestHash string, ttlAt time.Time) (IdempotencyRecord, error)
	Get(ctx context.Context, key string) (IdempotencyRecord, error)
	MarkDone(ctx context.Context, key string, responseBody []byte, httpStatus int) error
	MarkFailed(ctx context.Context, key string, responseBody []byte, httpStatus int) error
	// Release снимает ключ, который ещё в processing, чтобы повтор выполнился заново.
	Release(ctx context.Context, key string) error
	DeleteExpired(ctx context.Context, before time.Time, limit int) (int, error)
}

// PlacementStep задаёт константы шагов оформления для метрик/логов.
type PlacementStep string

const (
	PlacementStepValidate PlacementStep = "validate"
	PlacementStepReserve  PlacementStep = "reserve"
	PlacementStepCommit   PlacementStep = "commit"
	PlacementStepStats    PlacementStep = "stats"
	PlacementStepHandoff  PlacementStep = "handoff"
	PlacementStepRelease  PlacementStep = "release"
)

// OutboxMessage хранит данные для публикуемого события.
type OutboxMessage struct {
	ID            string
	AggregateType string
	AggregateID   string
	EventType     string
	Payload       []byte
	Attempts      int
	CreatedAt     time.Time
}

// OutboxStats описывает текущее состояние backlog transactional outbox.
type OutboxStats struct {
	PendingCount    int
	OldestPendingAt time.Time
}
