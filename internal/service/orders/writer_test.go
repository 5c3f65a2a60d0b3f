package orders

import (
	"context"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
)

func TestNewOrderID_Format(t *testing.T) {
	at := time.Date(2024, 6, 1, 23, 59, 0, 0, time.UTC)
	id := NewOrderID(at)

	assert.Regexp(t, regexp.MustCompile(`^ORD-20240601-[0-9A-F]{8}$`), id)
	assert.NotEqual(t, id, NewOrderID(at))
}

func TestCommit_TotalComesFromSnapshots(t *testing.T) {
	f := newFixture(t, product("p-1", "12.40", 10), product("p-2", "0.30", 10))
	w := NewWriter(f.orders, f.validator, WithWriterLogger(quietLogger()))

	plan := f.reserve(t,
		domain.CartLine{ProductID: "p-1", Quantity: 2},
		domain.CartLine{ProductID: "p-2", Quantity: 3},
	)

	result, err := w.Commit(context.Background(), CommitRequest{
		UserID:      "u-1",
		UserName:    "Ann",
		Plan:        plan,
		ClientTotal: decimal.RequireFromString("1.00"),
	})
	require.NoError(t, err)

	assert.True(t, result.TotalMismatch)
	assert.True(t, result.Order.TotalAmount.Equal(decimal.RequireFromString("25.70")))
	assert.Equal(t, domain.OrderStatusPending, result.Order.Status)

	stored, err := f.orders.Get(context.Background(), result.Order.ID)
	require.NoError(t, err)
	assert.True(t, stored.TotalAmount.Equal(stored.ItemsTotal()))
	assert.Len(t, stored.Items, 2)
}

func TestCommit_MatchingClientTotal(t *testing.T) {
	f := newFixture(t, product("p-1", "5", 10))
	w := NewWriter(f.orders, f.validator, WithWriterLogger(quietLogger()))

	result, err := w.Commit(context.Background(), CommitRequest{
		UserID:      "u-1",
		Plan:        f.reserve(t, domain.CartLine{ProductID: "p-1", Quantity: 2}),
		ClientTotal: decimal.RequireFromString("10.00"),
	})
	require.NoError(t, err)
	assert.False(t, result.TotalMismatch)
}

func TestCommit_RegeneratesIDOnCollision(t *testing.T) {
	f := newFixture(t, product("p-1", "5", 10))
	ctx := context.Background()
	require.NoError(t, f.orders.Create(ctx, domain.Order{
		ID:          "ORD-TAKEN",
		UserID:      "u-0",
		Items:       []domain.OrderItem{{ProductID: "p-1", Price: decimal.NewFromInt(5), Quantity: 1}},
		TotalAmount: decimal.NewFromInt(5),
		Status:      domain.OrderStatusPending,
		Version:     1,
	}))

	ids := []string{"ORD-TAKEN", "ORD-FREE"}
	w := NewWriter(f.orders, f.validator,
		WithWriterLogger(quietLogger()),
		WithIDGenerator(func(time.Time) string {
			id := ids[0]
			ids = ids[1:]
			return id
		}),
	)

	result, err := w.Commit(ctx, CommitRequest{
		UserID: "u-1",
		Plan:   f.reserve(t, domain.CartLine{ProductID: "p-1", Quantity: 1}),
	})
	require.NoError(t, err)
	assert.Equal(t, "ORD-FREE", result.Order.ID)
	assert.EqualValues(t, 9, f.quantity(t, "p-1"))
}

type brokenOrders struct {
	domain.OrderRepository
}

func (brokenOrders) Create(context.Context, domain.Order) error {
	return errors.New("connection reset")
}

func TestCommit_PersistenceFailureReleasesPlan(t *testing.T) {
	f := newFixture(t, product("p-1", "5", 10), product("p-2", "7", 4))
	w := NewWriter(brokenOrders{}, f.validator, WithWriterLogger(quietLogger()))

	plan := f.reserve(t,
		domain.CartLine{ProductID: "p-1", Quantity: 3},
		domain.CartLine{ProductID: "p-2", Quantity: 4},
	)
	require.EqualValues(t, 0, f.quantity(t, "p-2"))

	_, err := w.Commit(context.Background(), CommitRequest{UserID: "u-1", Plan: plan})
	require.ErrorIs(t, err, domain.ErrOrderPersistenceFailed)
	assert.Contains(t, err.Error(), "connection reset")

	assert.EqualValues(t, 10, f.quantity(t, "p-1"))
	assert.EqualValues(t, 4, f.quantity(t, "p-2"))
}

func TestCommit_InvalidRequestReleasesPlan(t *testing.T) {
	f := newFixture(t, product("p-1", "5", 10))
	w := NewWriter(f.orders, f.validator, WithWriterLogger(quietLogger()))

	plan := f.reserve(t, domain.CartLine{ProductID: "p-1", Quantity: 2})
	_, err := w.Commit(context.Background(), CommitRequest{Plan: plan})

	require.ErrorIs(t, err, domain.ErrUserRequired)
	assert.EqualValues(t, 10, f.quantity(t, "p-1"))
}
