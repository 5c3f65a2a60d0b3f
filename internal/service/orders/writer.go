package orders

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
	"github.com/vladislavdragonenkov/storefront/internal/metrics"
)

const defaultIDAttempts = 5

// PlanReleaser возвращает зарезервированный план на склад.
type PlanReleaser interface {
	ReleasePlan(ctx context.Context, plan domain.ReservationPlan) error
}

// CommitRequest: данные для сохранения заказа по уже зарезервированному плану.
type CommitRequest struct {
	UserID        string
	UserName      string
	Plan          domain.ReservationPlan
	PaymentMethod string
	Message       string
	// ClientTotal — сумма, посчитанная клиентом. На заказ не влияет.
	ClientTotal decimal.Decimal
}

// CommitResult: сохранённый заказ и признак расхождения с клиентской суммой.
type CommitResult struct {
	Order         domain.Order
	TotalMismatch bool
}

// Writer сохраняет заказ по плану резерва. При сбое сохранения план возвращается на склад.
type Writer struct {
	orders     domain.OrderRepository
	releaser   PlanReleaser
	logger     *log.Entry
	metrics    *metrics.PlacementMetrics
	now        func() time.Time
	newID      func(time.Time) string
	idAttempts int
}

// WriterOption настраивает Writer.
type WriterOption func(*Writer)

// WithWriterLogger задаёт logger.
func WithWriterLogger(logger *log.Entry) WriterOption {
	return func(w *Writer) {
		if logger != nil {
			w.logger = logger
		}
	}
}

// WithWriterMetrics подключает метрики.
func WithWriterMetrics(m *metrics.PlacementMetrics) WriterOption {
	return func(w *Writer) {
		w.metrics = m
	}
}

// WithClock подменяет источник времени.
func WithClock(now func() time.Time) WriterOption {
	return func(w *Writer) {
		if now != nil {
			w.now = now
		}
	}
}

// WithIDGenerator подменяет генератор идентификаторов заказа.
func WithIDGenerator(gen func(time.Time) string) WriterOption {
	return func(w *Writer) {
		if gen != nil {
			w.newID = gen
		}
	}
}

// NewWriter создаёт Writer.
func NewWriter(orders domain.OrderRepository, releaser PlanReleaser, options ...WriterOption) *Writer {
	w := &Writer{
		orders:     orders,
		releaser:   releaser,
		logger:     log.WithField("component", "order-writer"),
		now:        func() time.Time { return time.Now().UTC() },
		newID:      NewOrderID,
		idAttempts: defaultIDAttempts,
	}
	for _, option := range options {
		option(w)
	}
	return w
}

// NewOrderID генерирует идентификатор вида ORD-20240601-1A2B3C4D.
func NewOrderID(at time.Time) string {
	suffix := strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", "")[:8])
	return fmt.Sprintf("ORD-%s-%s", at.UTC().Format("20060102"), suffix)
}

// Commit сохраняет заказ в статусе pending. Итог считается только по снимкам цен плана.
func (w *Writer) Commit(ctx context.Context, req CommitRequest) (CommitResult, error) {
	now := w.now()
	total := req.Plan.Total()

	order := domain.Order{
		UserID:        strings.TrimSpace(req.UserID),
		UserName:      strings.TrimSpace(req.UserName),
		Items:         req.Plan.Items(),
		TotalAmount:   total,
		PaymentMethod: req.PaymentMethod,
		Message:       req.Message,
		Status:        domain.OrderStatusPending,
		Version:       1,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if errs := order.ValidateInvariants(); len(errs) > 0 {
		w.release(ctx, req.Plan, "")
		return CommitResult{}, errors.Join(errs...)
	}

	result := CommitResult{TotalMismatch: !req.ClientTotal.Equal(total)}

	var lastErr error
	for attempt := 1; attempt <= w.idAttempts; attempt++ {
		order.ID = w.newID(now)
		err := w.orders.Create(ctx, order)
		if err == nil {
			result.Order = order
			if result.TotalMismatch {
				w.metrics.RecordTotalMismatch()
				w.logger.WithFields(log.Fields{
					"order_id":     order.ID,
					"user_id":      order.UserID,
					"client_total": req.ClientTotal.String(),
					"total":        total.String(),
				}).Warn("client total differs from server total")
			}
			return result, nil
		}
		lastErr = err
		if !errors.Is(err, domain.ErrOrderAlreadyExists) {
			break
		}
		w.logger.WithFields(log.Fields{
			"order_id": order.ID,
			"attempt":  attempt,
		}).Warn("order id collision, regenerating")
	}

	w.release(ctx, req.Plan, order.ID)
	w.metrics.RecordFailed(metrics.FailurePersistence)
	return CommitResult{}, fmt.Errorf("%w: %w", domain.ErrOrderPersistenceFailed, lastErr)
}

func (w *Writer) release(ctx context.Context, plan domain.ReservationPlan, orderID string) {
	if w.releaser == nil || len(plan.Lines) == 0 {
		return
	}
	if err := w.releaser.ReleasePlan(ctx, plan); err != nil {
		w.logger.WithError(err).WithField("order_id", orderID).Error("release after failed commit incomplete")
		return
	}
	w.metrics.RecordCompensation(len(plan.Lines))
}
