package orders

import (
	"context"
	"errors"
	"fmt"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
	"github.com/vladislavdragonenkov/storefront/internal/metrics"
	"github.com/vladislavdragonenkov/storefront/internal/retry"
	"github.com/vladislavdragonenkov/storefront/internal/service/journal"
)

// Lifecycle меняет статусы заказов по таблице переходов и возвращает остатки при отмене.
type Lifecycle struct {
	orders   domain.OrderRepository
	releaser PlanReleaser
	journal  *journal.Recorder
	logger   *log.Entry
	metrics  *metrics.PlacementMetrics
	save     retry.Config
	now      func() time.Time
}

// LifecycleOption настраивает Lifecycle.
type LifecycleOption func(*Lifecycle)

// WithLifecycleLogger задаёт logger.
func WithLifecycleLogger(logger *log.Entry) LifecycleOption {
	return func(l *Lifecycle) {
		if logger != nil {
			l.logger = logger
		}
	}
}

// WithLifecycleMetrics подключает метрики.
func WithLifecycleMetrics(m *metrics.PlacementMetrics) LifecycleOption {
	return func(l *Lifecycle) {
		l.metrics = m
	}
}

// WithSaveRetry задаёт политику повторов при конфликте версий.
func WithSaveRetry(cfg retry.Config) LifecycleOption {
	return func(l *Lifecycle) {
		l.save = cfg
	}
}

// NewLifecycle создаёт менеджер жизненного цикла заказа.
func NewLifecycle(orders domain.OrderRepository, releaser PlanReleaser, recorder *journal.Recorder, options ...LifecycleOption) *Lifecycle {
	l := &Lifecycle{
		orders:   orders,
		releaser: releaser,
		journal:  recorder,
		logger:   log.WithField("component", "order-lifecycle"),
		save:     retry.DefaultConfig(),
		now:      func() time.Time { return time.Now().UTC() },
	}
	for _, option := range options {
		option(l)
	}
	return l
}

type transitionOptions struct {
	actor  string
	reason string
}

// TransitionOption уточняет, кто и почему меняет статус.
type TransitionOption func(*transitionOptions)

// ByActor записывает автора изменения в ленту заказа.
func ByActor(actor string) TransitionOption {
	return func(o *transitionOptions) { o.actor = actor }
}

// WithReason добавляет причину изменения.
func WithReason(reason string) TransitionOption {
	return func(o *transitionOptions) { o.reason = reason }
}

// Transition переводит заказ в next. Запрещённый переход (включая повтор текущего статуса)
// возвращает *domain.InvalidTransitionError. При конфликте версий заказ перечитывается
// и переход проверяется заново, поэтому две одновременные отмены вернут товар на склад один раз.
func (l *Lifecycle) Transition(ctx context.Context, orderID string, next domain.OrderStatus, opts ...TransitionOption) (domain.Order, error) {
	var o transitionOptions
	for _, opt := range opts {
		opt(&o)
	}

	var (
		updated  domain.Order
		previous domain.OrderStatus
	)
	err := retry.Do(ctx, l.save, l.logger, "order_transition", func(ctx context.Context, _ int) error {
		order, err := l.orders.Get(ctx, orderID)
		if err != nil {
			if errors.Is(err, domain.ErrOrderNotFound) {
				return retry.Permanent(err)
			}
			return fmt.Errorf("load order %s: %w", orderID, err)
		}
		if err := order.Status.Transition(next); err != nil {
			return retry.Permanent(err)
		}

		previous = order.Status
		order.Status = next
		order.UpdatedAt = l.now()
		if err := l.orders.Save(ctx, order); err != nil {
			if domain.IsVersionConflict(err) {
				return err
			}
			return retry.Permanent(fmt.Errorf("save order %s: %w", orderID, err))
		}
		order.Version++
		updated = order
		return nil
	})
	if err != nil {
		return domain.Order{}, err
	}

	l.metrics.RecordTransition(string(previous), string(next))
	l.logger.WithFields(log.Fields{
		"order_id": updated.ID,
		"from":     previous,
		"to":       next,
		"actor":    o.actor,
	}).Info("order status changed")

	// Возврат на склад не должен прерываться отменой запроса.
	ctx = context.WithoutCancel(ctx)

	eventType := domain.TimelineStatusChanged
	if next == domain.OrderStatusCancelled {
		eventType = domain.TimelineCanceled
	}
	l.record(ctx, journal.Entry{
		AggregateID: updated.ID,
		EventType:   eventType,
		Reason:      o.reason,
		Actor:       o.actor,
		Occurred:    updated.UpdatedAt,
		Payload: map[string]any{
			"from":    string(previous),
			"status":  string(next),
			"user_id": updated.UserID,
		},
	})

	if next == domain.OrderStatusCancelled {
		l.restock(ctx, updated)
	}

	return updated, nil
}

func (l *Lifecycle) restock(ctx context.Context, order domain.Order) {
	if l.releaser == nil {
		return
	}

	plan := domain.PlanFromItems(order.Items)
	err := l.releaser.ReleasePlan(ctx, plan)
	if err == nil {
		l.record(ctx, journal.Entry{
			AggregateID:  order.ID,
			EventType:    domain.TimelineRestocked,
			TimelineOnly: true,
		})
		return
	}

	l.metrics.RecordRestockFailure()
	l.logger.WithError(err).WithField("order_id", order.ID).Error("restock after cancellation failed")

	lines := make([]map[string]any, 0, len(order.Items))
	for _, item := range order.Items {
		lines = append(lines, map[string]any{
			"product_id": item.ProductID,
			"quantity":   item.Quantity,
		})
	}
	l.record(ctx, journal.Entry{
		AggregateID: order.ID,
		EventType:   domain.TimelineRestockFailed,
		Reason:      err.Error(),
		Payload:     map[string]any{"items": lines},
	})
}

// Delete удаляет заказ администратором. Остатки не возвращаются.
func (l *Lifecycle) Delete(ctx context.Context, orderID, actor string) error {
	order, err := l.orders.Get(ctx, orderID)
	if err != nil {
		return err
	}
	if err := l.orders.Delete(ctx, orderID); err != nil {
		return err
	}

	l.logger.WithFields(log.Fields{
		"order_id": orderID,
		"status":   order.Status,
		"actor":    actor,
	}).Warn("order deleted by admin")
	l.record(context.WithoutCancel(ctx), journal.Entry{
		AggregateID: orderID,
		EventType:   domain.TimelineDeletedByAdmin,
		Actor:       actor,
		Payload: map[string]any{
			"status":  string(order.Status),
			"user_id": order.UserID,
		},
	})
	return nil
}

func (l *Lifecycle) record(ctx context.Context, entry journal.Entry) {
	// Ошибка уже залогирована внутри Recorder.
	_ = l.journal.Record(ctx, entry)
}
