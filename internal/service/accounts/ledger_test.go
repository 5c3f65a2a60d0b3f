package accounts

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/shopspring/decimal"
	log "github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
	"github.com/vladislavdragonenkov/storefront/internal/metrics"
	"github.com/vladislavdragonenkov/storefront/internal/storage/memory"
)

func quietLogger() *log.Entry {
	logger := log.New()
	logger.SetLevel(log.PanicLevel)
	return logger.WithField("component", "user-ledger-test")
}

func TestApplyOrderEffects_UpdatesStatsOncePerOrder(t *testing.T) {
	ctx := context.Background()
	users := memory.NewUserRepository()
	require.NoError(t, users.Upsert(ctx, domain.UserAccount{
		ID:   "u-1",
		Cart: []domain.CartLine{{ProductID: "p-1", Quantity: 2}},
	}))

	ledger := NewLedger(users, quietLogger(), nil)
	fixed := time.Date(2024, 6, 1, 10, 0, 0, 0, time.UTC)
	ledger.now = func() time.Time { return fixed }

	require.NoError(t, ledger.ApplyOrderEffects(ctx, "u-1", "ORD-1", decimal.RequireFromString("150")))
	require.NoError(t, ledger.ApplyOrderEffects(ctx, "u-1", "ORD-1", decimal.RequireFromString("150")))

	user, err := ledger.Get(ctx, "u-1")
	require.NoError(t, err)
	assert.EqualValues(t, 1, user.TotalOrders)
	assert.True(t, user.TotalSpent.Equal(decimal.NewFromInt(150)))
	assert.Equal(t, fixed, user.LastOrderDate)
	assert.Empty(t, user.Cart)
}

type brokenUsers struct {
	domain.UserRepository
}

func (brokenUsers) ApplyOrderEffects(context.Context, string, string, decimal.Decimal, time.Time) error {
	return errors.New("db timeout")
}

func TestApplyOrderEffects_FailureIsCounted(t *testing.T) {
	m := metrics.NewPlacementMetricsWithRegisterer(prometheus.NewRegistry())
	ledger := NewLedger(brokenUsers{}, quietLogger(), m)

	err := ledger.ApplyOrderEffects(context.Background(), "u-1", "ORD-1", decimal.NewFromInt(1))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "db timeout")
}

func TestSaveCart(t *testing.T) {
	ctx := context.Background()
	users := memory.NewUserRepository()
	require.NoError(t, users.Upsert(ctx, domain.UserAccount{ID: "u-1"}))
	ledger := NewLedger(users, quietLogger(), nil)

	err := ledger.SaveCart(ctx, "u-1", []domain.CartLine{{ProductID: "p-1", Quantity: 0}})
	require.ErrorIs(t, err, domain.ErrItemQtyInvalid)

	require.NoError(t, ledger.SaveCart(ctx, "u-1", []domain.CartLine{{ProductID: "p-1", Quantity: 3}}))
	user, err := ledger.Get(ctx, "u-1")
	require.NoError(t, err)
	require.Len(t, user.Cart, 1)

	_, err = ledger.Get(ctx, " ")
	require.ErrorIs(t, err, domain.ErrUserRequired)
}
