package inventory

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
	"github.com/vladislavdragonenkov/storefront/internal/metrics"
	"github.com/vladislavdragonenkov/storefront/internal/retry"
)

// Validator проверяет корзину против каталога и резервирует остатки.
// Резерв либо проходит по всем строкам, либо не оставляет после себя ни одного списания.
type Validator struct {
	catalog domain.ProductRepository
	ledger  domain.StockLedger
	logger  *log.Entry
	metrics *metrics.PlacementMetrics
	release retry.Config
}

// Option настраивает Validator.
type Option func(*Validator)

// WithLogger задаёт logger.
func WithLogger(logger *log.Entry) Option {
	return func(v *Validator) {
		if logger != nil {
			v.logger = logger
		}
	}
}

// WithMetrics подключает метрики компенсаций.
func WithMetrics(m *metrics.PlacementMetrics) Option {
	return func(v *Validator) {
		v.metrics = m
	}
}

// WithReleaseRetry задаёт политику повторов при возврате остатков.
func WithReleaseRetry(cfg retry.Config) Option {
	return func(v *Validator) {
		v.release = cfg
	}
}

// NewValidator создаёт валидатор. catalog даёт снимок цены и названия, ledger держит остатки.
func NewValidator(catalog domain.ProductRepository, ledger domain.StockLedger, options ...Option) *Validator {
	v := &Validator{
		catalog: catalog,
		ledger:  ledger,
		logger:  log.WithField("component", "cart-validator"),
		release: retry.DefaultConfig(),
	}
	for _, option := range options {
		option(v)
	}
	return v
}

// Validate проверяет строки корзины и резервирует их по порядку.
// При первой ошибке все уже сделанные в этой попытке резервы возвращаются на склад.
func (v *Validator) Validate(ctx context.Context, cart []domain.CartLine) (domain.ReservationPlan, error) {
	if len(cart) == 0 {
		return domain.ReservationPlan{}, domain.ErrCartEmpty
	}
	for i, line := range cart {
		if err := line.Validate(); err != nil {
			return domain.ReservationPlan{}, &domain.LineError{Line: i, Err: err}
		}
	}

	plan := domain.ReservationPlan{Lines: make([]domain.PlannedLine, 0, len(cart))}
	for i, line := range cart {
		planned, err := v.reserveLine(ctx, i, line)
		if err != nil {
			v.compensate(ctx, plan, err)
			return domain.ReservationPlan{}, err
		}
		plan.Lines = append(plan.Lines, planned)
	}

	if err := domain.CheckAmount(plan.Total()); err != nil {
		v.compensate(ctx, plan, err)
		return domain.ReservationPlan{}, err
	}
	return plan, nil
}

func (v *Validator) reserveLine(ctx context.Context, index int, line domain.CartLine) (domain.PlannedLine, error) {
	productID := strings.TrimSpace(line.ProductID)

	product, err := v.catalog.Get(ctx, productID)
	if err != nil {
		if errors.Is(err, domain.ErrProductNotFound) {
			return domain.PlannedLine{}, &domain.ProductNotFoundError{Line: index, ProductID: productID}
		}
		return domain.PlannedLine{}, fmt.Errorf("load product %s: %w", productID, err)
	}

	if err := domain.CheckAmount(product.Price.Mul(decimal.NewFromInt(line.Quantity))); err != nil {
		return domain.PlannedLine{}, &domain.LineError{Line: index, Err: err}
	}

	if err := v.ledger.Reserve(ctx, productID, line.Quantity); err != nil {
		switch {
		case errors.Is(err, domain.ErrInsufficientStock):
			return domain.PlannedLine{}, &domain.OutOfStockError{
				ProductID: productID,
				Name:      product.Name,
				Requested: line.Quantity,
			}
		case errors.Is(err, domain.ErrProductNotFound):
			return domain.PlannedLine{}, &domain.ProductNotFoundError{Line: index, ProductID: productID}
		default:
			return domain.PlannedLine{}, fmt.Errorf("reserve product %s: %w", productID, err)
		}
	}

	if !line.PriceAtAdd.IsZero() && !line.PriceAtAdd.Equal(product.Price) {
		v.logger.WithFields(log.Fields{
			"product_id":   productID,
			"price_at_add": line.PriceAtAdd.String(),
			"price":        product.Price.String(),
		}).Warn("cart price differs from catalog, using catalog price")
	}

	image := line.Image
	if image == "" {
		image = product.Image
	}

	return domain.PlannedLine{
		ProductID: productID,
		Name:      product.Name,
		Price:     product.Price,
		Quantity:  line.Quantity,
		Image:     image,
		Variant:   line.Variant,
	}, nil
}

func (v *Validator) compensate(ctx context.Context, plan domain.ReservationPlan, cause error) {
	if len(plan.Lines) == 0 {
		return
	}
	if err := v.ReleasePlan(ctx, plan); err != nil {
		v.logger.WithError(err).WithField("cause", cause.Error()).Error("cart compensation incomplete")
	}
	v.metrics.RecordCompensation(len(plan.Lines))
}

// ReleaseFailure строка плана, которую не удалось вернуть на склад.
type ReleaseFailure struct {
	ProductID string
	Quantity  int64
	Err       error
}

// ReleaseError собирает все строки, по которым возврат не прошёл.
type ReleaseError struct {
	Failures []ReleaseFailure
}

func (e *ReleaseError) Error() string {
	parts := make([]string, 0, len(e.Failures))
	for _, f := range e.Failures {
		parts = append(parts, fmt.Sprintf("%s x%d: %v", f.ProductID, f.Quantity, f.Err))
	}
	return "release stock: " + strings.Join(parts, "; ")
}

func (e *ReleaseError) Unwrap() []error {
	errs := make([]error, 0, len(e.Failures))
	for _, f := range e.Failures {
		errs = append(errs, f.Err)
	}
	return errs
}

// ReleasePlan возвращает на склад все строки плана. Возврат не прерывается отменой
// запроса и не останавливается на первой ошибке. Неудачные строки перечислены в *ReleaseError.
func (v *Validator) ReleasePlan(ctx context.Context, plan domain.ReservationPlan) error {
	ctx = context.WithoutCancel(ctx)

	var failures []ReleaseFailure
	for _, line := range plan.Lines {
		err := retry.Do(ctx, v.release, v.logger, "release_stock", func(ctx context.Context, _ int) error {
			err := v.ledger.Release(ctx, line.ProductID, line.Quantity)
			if errors.Is(err, domain.ErrProductNotFound) {
				return retry.Permanent(err)
			}
			return err
		})
		if err != nil {
			failures = append(failures, ReleaseFailure{
				ProductID: line.ProductID,
				Quantity:  line.Quantity,
				Err:       err,
			})
		}
	}

	if len(failures) > 0 {
		return &ReleaseError{Failures: failures}
	}
	return nil
}
