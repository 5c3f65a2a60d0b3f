package saga

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	log "github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
	"github.com/vladislavdragonenkov/storefront/internal/metrics"
	"github.com/vladislavdragonenkov/storefront/internal/service/journal"
	"github.com/vladislavdragonenkov/storefront/internal/service/orders"
	"github.com/vladislavdragonenkov/storefront/internal/telemetry"
)

// EventHandoffRequested — событие для внешнего канала передачи заказа.
const EventHandoffRequested = "OrderHandoffRequested"

// CartValidator резервирует корзину целиком или не резервирует ничего.
type CartValidator interface {
	Validate(ctx context.Context, cart []domain.CartLine) (domain.ReservationPlan, error)
}

// OrderCommitter сохраняет заказ по плану резерва.
type OrderCommitter interface {
	Commit(ctx context.Context, req orders.CommitRequest) (orders.CommitResult, error)
}

// UserLedger даёт доступ к аккаунту и справочной статистике покупателя.
type UserLedger interface {
	Get(ctx context.Context, userID string) (domain.UserAccount, error)
	ApplyOrderEffects(ctx context.Context, userID, orderID string, total decimal.Decimal) error
}

// PlaceOrderRequest: запрос на оформление заказа из корзины.
type PlaceOrderRequest struct {
	UserID        string
	UserName      string
	Cart          []domain.CartLine
	ClientTotal   decimal.NullDecimal
	PaymentMethod string
	Message       string
}

// Validate проверяет запрос до обращения к складу.
func (r PlaceOrderRequest) Validate() error {
	switch {
	case strings.TrimSpace(r.UserID) == "":
		return domain.ErrUserRequired
	case strings.TrimSpace(r.UserName) == "":
		return domain.ErrUserNameRequired
	case !r.ClientTotal.Valid:
		return domain.ErrTotalRequired
	case len(r.Cart) == 0:
		return domain.ErrCartEmpty
	}
	return nil
}

// Handoff: сводка заказа для внешнего канала. Ядро не ждёт её доставки.
type Handoff struct {
	Queued  bool
	Summary string
}

// PlaceOrderResult — результат успешного оформления.
type PlaceOrderResult struct {
	Order    domain.Order
	Handoff  Handoff
	Warnings []string
}

// Placement проводит оформление: проверка → резерв → сохранение → статистика → передача.
// Каждый шаг атомарен сам по себе, сбой после резерва компенсируется возвратом остатков.
type Placement struct {
	validator CartValidator
	writer    OrderCommitter
	users     UserLedger
	journal   *journal.Recorder
	logger    *log.Entry
	metrics   *metrics.PlacementMetrics
	tracer    trace.Tracer
}

// Option настраивает Placement.
type Option func(*Placement)

// WithLogger задаёт logger.
func WithLogger(logger *log.Entry) Option {
	return func(p *Placement) {
		if logger != nil {
			p.logger = logger
		}
	}
}

// WithMetrics подключает метрики оформления.
func WithMetrics(m *metrics.PlacementMetrics) Option {
	return func(p *Placement) {
		p.metrics = m
	}
}

// WithTracer подменяет трейсер.
func WithTracer(tracer trace.Tracer) Option {
	return func(p *Placement) {
		if tracer != nil {
			p.tracer = tracer
		}
	}
}

// NewPlacement создаёт сагу оформления заказа.
func NewPlacement(validator CartValidator, writer OrderCommitter, users UserLedger, recorder *journal.Recorder, options ...Option) *Placement {
	p := &Placement{
		validator: validator,
		writer:    writer,
		users:     users,
		journal:   recorder,
		logger:    log.WithField("component", "placement"),
		tracer:    telemetry.Tracer(),
	}
	for _, option := range options {
		option(p)
	}
	return p
}

// PlaceOrder оформляет заказ. После начала резерва операция доводится до конца
// независимо от отмены ctx: отключение клиента не оставляет склад списанным без заказа.
func (p *Placement) PlaceOrder(ctx context.Context, req PlaceOrderRequest) (result PlaceOrderResult, err error) {
	start := time.Now()
	p.metrics.PlacementStarted()
	defer func() { p.metrics.PlacementFinished(time.Since(start)) }()

	ctx, span := p.tracer.Start(ctx, "PlaceOrder", trace.WithAttributes(
		attribute.String("user.id", req.UserID),
		attribute.Int("cart.lines", len(req.Cart)),
	))
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		} else {
			span.SetAttributes(attribute.String("order.id", result.Order.ID))
		}
		span.End()
	}()

	logger := p.logger.WithField("user_id", req.UserID)

	err = p.step(ctx, domain.PlacementStepValidate, func(ctx context.Context) error {
		if err := req.Validate(); err != nil {
			return err
		}
		if _, err := p.users.Get(ctx, req.UserID); err != nil {
			return fmt.Errorf("load user %s: %w", req.UserID, err)
		}
		return nil
	})
	if err != nil {
		p.metrics.RecordFailed(failureReason(err))
		return PlaceOrderResult{}, err
	}

	// С этого места отмена запроса не прерывает сагу.
	ctx = context.WithoutCancel(ctx)

	var plan domain.ReservationPlan
	err = p.step(ctx, domain.PlacementStepReserve, func(ctx context.Context) error {
		var err error
		plan, err = p.validator.Validate(ctx, req.Cart)
		return err
	})
	if err != nil {
		p.metrics.RecordFailed(failureReason(err))
		logger.WithError(err).Info("cart rejected")
		return PlaceOrderResult{}, err
	}

	var committed orders.CommitResult
	err = p.step(ctx, domain.PlacementStepCommit, func(ctx context.Context) error {
		var err error
		committed, err = p.writer.Commit(ctx, orders.CommitRequest{
			UserID:        req.UserID,
			UserName:      req.UserName,
			Plan:          plan,
			PaymentMethod: req.PaymentMethod,
			Message:       req.Message,
			ClientTotal:   req.ClientTotal.Decimal,
		})
		return err
	})
	if err != nil {
		logger.WithError(err).Error("order commit failed, reservation released")
		return PlaceOrderResult{}, err
	}

	order := committed.Order
	result.Order = order
	logger = logger.WithField("order_id", order.ID)

	p.record(ctx, journal.Entry{
		AggregateID: order.ID,
		EventType:   domain.TimelinePlaced,
		Actor:       req.UserID,
		Occurred:    order.CreatedAt,
		Payload: map[string]any{
			"user_id":      order.UserID,
			"total_amount": order.TotalAmount.String(),
			"items":        len(order.Items),
			"status":       string(order.Status),
		},
	})

	if committed.TotalMismatch {
		reason := fmt.Sprintf("client total %s, server total %s", req.ClientTotal.Decimal.String(), order.TotalAmount.String())
		result.Warnings = append(result.Warnings, "totalAmount differs from the order total; the order total was used")
		p.record(ctx, journal.Entry{
			AggregateID:  order.ID,
			EventType:    domain.TimelineTotalMismatch,
			Reason:       reason,
			TimelineOnly: true,
		})
	}

	statsErr := p.step(ctx, domain.PlacementStepStats, func(ctx context.Context) error {
		return p.users.ApplyOrderEffects(ctx, order.UserID, order.ID, order.TotalAmount)
	})
	if statsErr != nil {
		result.Warnings = append(result.Warnings, "account statistics will be updated later")
		p.record(ctx, journal.Entry{
			AggregateID:  order.ID,
			EventType:    domain.TimelineStatsSkipped,
			Reason:       statsErr.Error(),
			TimelineOnly: true,
		})
	}

	result.Handoff.Summary = FormatSummary(order)
	handoffErr := p.step(ctx, domain.PlacementStepHandoff, func(ctx context.Context) error {
		return p.journal.Record(ctx, journal.Entry{
			AggregateID: order.ID,
			EventType:   EventHandoffRequested,
			Payload: map[string]any{
				"user_id": order.UserID,
				"summary": result.Handoff.Summary,
			},
		})
	})
	result.Handoff.Queued = handoffErr == nil && p.journal != nil

	p.metrics.RecordPlaced()
	logger.WithFields(log.Fields{
		"total_amount": order.TotalAmount.String(),
		"items":        len(order.Items),
		"warnings":     len(result.Warnings),
	}).Info("order placed")

	return result, nil
}

func (p *Placement) step(ctx context.Context, step domain.PlacementStep, fn func(ctx context.Context) error) error {
	ctx, span := p.tracer.Start(ctx, "PlaceOrder."+string(step))
	defer span.End()

	start := time.Now()
	err := fn(ctx)
	p.metrics.RecordStepDuration(string(step), time.Since(start))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	return err
}

func (p *Placement) record(ctx context.Context, entry journal.Entry) {
	_ = p.journal.Record(ctx, entry)
}

func failureReason(err error) string {
	switch {
	case errors.Is(err, domain.ErrInsufficientStock):
		return metrics.FailureOutOfStock
	case errors.Is(err, domain.ErrProductNotFound):
		return metrics.FailureNotFound
	case errors.Is(err, domain.ErrUserNotFound):
		return metrics.FailureUserNotFound
	case errors.Is(err, domain.ErrOrderPersistenceFailed):
		return metrics.FailurePersistence
	case isValidationError(err):
		return metrics.FailureValidation
	default:
		return metrics.FailureInternal
	}
}

func isValidationError(err error) bool {
	for _, target := range []error{
		domain.ErrUserRequired,
		domain.ErrUserNameRequired,
		domain.ErrTotalRequired,
		domain.ErrCartEmpty,
		domain.ErrProductIDRequired,
		domain.ErrItemQtyInvalid,
		domain.ErrAmountTooLarge,
	} {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}
