package orders

import (
	"context"
	"testing"

	"github.com/shopspring/decimal"
	log "github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
	"github.com/vladislavdragonenkov/storefront/internal/service/inventory"
	"github.com/vladislavdragonenkov/storefront/internal/storage/memory"
)

func quietLogger() *log.Entry {
	logger := log.New()
	logger.SetLevel(log.PanicLevel)
	return logger.WithField("component", "orders-test")
}

type fixture struct {
	store     *memory.ProductStore
	orders    domain.OrderRepository
	validator *inventory.Validator
}

func newFixture(t *testing.T, products ...domain.Product) fixture {
	t.Helper()
	store := memory.NewProductStore()
	for _, p := range products {
		require.NoError(t, store.Upsert(context.Background(), p))
	}
	return fixture{
		store:     store,
		orders:    memory.NewOrderRepository(),
		validator: inventory.NewValidator(store, store, inventory.WithLogger(quietLogger())),
	}
}

func (f fixture) reserve(t *testing.T, cart ...domain.CartLine) domain.ReservationPlan {
	t.Helper()
	plan, err := f.validator.Validate(context.Background(), cart)
	require.NoError(t, err)
	return plan
}

func (f fixture) quantity(t *testing.T, id string) int64 {
	t.Helper()
	p, err := f.store.Get(context.Background(), id)
	require.NoError(t, err)
	return p.Quantity
}

func product(id string, price string, qty int64) domain.Product {
	return domain.Product{
		ID:            id,
		Name:          "Product " + id,
		Price:         decimal.RequireFromString(price),
		Quantity:      qty,
		TrackQuantity: true,
	}
}
