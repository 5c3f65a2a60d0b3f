package memory_test

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
	"github.com/vladislavdragonenkov/storefront/internal/storage/memory"
)

func TestUserRepository_ApplyOrderEffectsIsIdempotentPerOrder(t *testing.T) {
	ctx := context.Background()
	repo := memory.NewUserRepository()
	require.NoError(t, repo.Upsert(ctx, domain.UserAccount{
		ID:   "user-1",
		Name: "Alice",
		Cart: []domain.CartLine{{ProductID: "p-1", Quantity: 1}},
	}))

	at := time.Date(2024, 2, 1, 10, 0, 0, 0, time.UTC)
	require.NoError(t, repo.ApplyOrderEffects(ctx, "user-1", "ORD-1", decimal.RequireFromString("12.50"), at))
	require.NoError(t, repo.ApplyOrderEffects(ctx, "user-1", "ORD-1", decimal.RequireFromString("12.50"), at))
	require.NoError(t, repo.ApplyOrderEffects(ctx, "user-1", "ORD-2", decimal.RequireFromString("7.50"), at.Add(time.Hour)))

	user, err := repo.Get(ctx, "user-1")
	require.NoError(t, err)
	assert.EqualValues(t, 2, user.TotalOrders)
	assert.True(t, user.TotalSpent.Equal(decimal.NewFromInt(20)))
	assert.Equal(t, at.Add(time.Hour), user.LastOrderDate)
	assert.Empty(t, user.Cart)
}

func TestUserRepository_UnknownUser(t *testing.T) {
	ctx := context.Background()
	repo := memory.NewUserRepository()

	_, err := repo.Get(ctx, "nobody")
	assert.ErrorIs(t, err, domain.ErrUserNotFound)
	assert.ErrorIs(t, repo.ApplyOrderEffects(ctx, "nobody", "ORD-1", decimal.Zero, time.Now()), domain.ErrUserNotFound)
	assert.ErrorIs(t, repo.Upsert(ctx, domain.UserAccount{}), domain.ErrUserRequired)
}

func TestUserRepository_ReplaceCartKeepsStats(t *testing.T) {
	ctx := context.Background()
	repo := memory.NewUserRepository()
	require.NoError(t, repo.Upsert(ctx, domain.UserAccount{ID: "user-1", Name: "Alice"}))
	require.NoError(t, repo.ApplyOrderEffects(ctx, "user-1", "ORD-1", decimal.NewFromInt(5), time.Now().UTC()))

	require.NoError(t, repo.ReplaceCart(ctx, "user-1", []domain.CartLine{{ProductID: "p-9", Quantity: 2}}))

	user, err := repo.Get(ctx, "user-1")
	require.NoError(t, err)
	assert.EqualValues(t, 1, user.TotalOrders)
	require.Len(t, user.Cart, 1)
	assert.Equal(t, "p-9", user.Cart[0].ProductID)

	assert.ErrorIs(t, repo.ReplaceCart(ctx, "nobody", nil), domain.ErrUserNotFound)
}
