package inventory

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
)

// StockMirror дублирует ручные правки склада во внешний журнал остатков (Redis).
type StockMirror interface {
	SetStock(ctx context.Context, product domain.Product) error
}

// StockUpdate: частичная правка карточки товара. nil-поля не меняются.
type StockUpdate struct {
	ProductID                     string
	Name                          *string
	Price                         *decimal.Decimal
	Image                         *string
	Quantity                      *int64
	TrackQuantity                 *bool
	ContinueSellingWhenOutOfStock *bool
}

// StockAdmin применяет административные правки остатков и складской политики.
type StockAdmin struct {
	catalog domain.ProductRepository
	mirror  StockMirror
	logger  *log.Entry
	now     func() time.Time
}

// NewStockAdmin создаёт сервис правки склада. mirror может быть nil.
func NewStockAdmin(catalog domain.ProductRepository, mirror StockMirror, logger *log.Entry) *StockAdmin {
	if logger == nil {
		logger = log.WithField("component", "stock-admin")
	}
	return &StockAdmin{
		catalog: catalog,
		mirror:  mirror,
		logger:  logger,
		now:     func() time.Time { return time.Now().UTC() },
	}
}

// Upsert создаёт товар или обновляет переданные поля существующего.
// Новый товар по умолчанию учитывает остатки.
func (a *StockAdmin) Upsert(ctx context.Context, upd StockUpdate) (domain.Product, error) {
	upd.ProductID = strings.TrimSpace(upd.ProductID)
	if upd.ProductID == "" {
		return domain.Product{}, domain.ErrProductIDRequired
	}

	product, err := a.catalog.Get(ctx, upd.ProductID)
	switch {
	case errors.Is(err, domain.ErrProductNotFound):
		product = domain.Product{ID: upd.ProductID, TrackQuantity: true}
	case err != nil:
		return domain.Product{}, fmt.Errorf("load product %s: %w", upd.ProductID, err)
	}

	if upd.Name != nil {
		product.Name = *upd.Name
	}
	if upd.Price != nil {
		product.Price = *upd.Price
	}
	if upd.Image != nil {
		product.Image = *upd.Image
	}
	if upd.Quantity != nil {
		product.Quantity = *upd.Quantity
	}
	if upd.TrackQuantity != nil {
		product.TrackQuantity = *upd.TrackQuantity
	}
	if upd.ContinueSellingWhenOutOfStock != nil {
		product.ContinueSellingWhenOutOfStock = *upd.ContinueSellingWhenOutOfStock
	}
	product.UpdatedAt = a.now()

	if errs := product.Validate(); len(errs) > 0 {
		return domain.Product{}, errors.Join(errs...)
	}
	if err := a.catalog.Upsert(ctx, product); err != nil {
		return domain.Product{}, fmt.Errorf("save product %s: %w", product.ID, err)
	}

	if a.mirror != nil {
		if err := a.mirror.SetStock(ctx, product); err != nil {
			return domain.Product{}, fmt.Errorf("mirror stock %s: %w", product.ID, err)
		}
	}

	a.logger.WithFields(log.Fields{
		"product_id": product.ID,
		"quantity":   product.Quantity,
		"track":      product.TrackQuantity,
		"oversell":   product.ContinueSellingWhenOutOfStock,
	}).Info("stock updated")

	return product, nil
}
