package app

import (
	"context"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
	"github.com/vladislavdragonenkov/storefront/internal/storage/memory"
)

func TestParseSeed(t *testing.T) {
	seed, err := ParseSeed([]byte(testSeedYAML))
	require.NoError(t, err)
	require.Len(t, seed.Products, 2)
	require.Len(t, seed.Users, 1)

	lamp, err := seed.Products[0].toProduct()
	require.NoError(t, err)
	require.True(t, lamp.TrackQuantity)
	require.EqualValues(t, 2, lamp.Quantity)
	require.True(t, decimal.RequireFromString("100").Equal(lamp.Price))

	ebook, err := seed.Products[1].toProduct()
	require.NoError(t, err)
	require.False(t, ebook.TrackQuantity)
}

func TestParseSeed_Invalid(t *testing.T) {
	testCases := []struct {
		name string
		raw  string
	}{
		{name: "broken yaml", raw: "products: ["},
		{name: "bad price", raw: "products:\n  - id: p\n    price: cheap\n"},
		{name: "negative price", raw: "products:\n  - id: p\n    price: \"-1\"\n"},
		{name: "negative tracked quantity", raw: "products:\n  - id: p\n    quantity: -3\n"},
		{name: "missing product id", raw: "products:\n  - name: nameless\n"},
		{name: "missing user id", raw: "users:\n  - name: Ghost\n"},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := ParseSeed([]byte(tc.raw))
			require.Error(t, err)
		})
	}
}

func TestApplySeed_DoesNotOverwriteExisting(t *testing.T) {
	ctx := context.Background()
	products := memory.NewProductStore()
	users := memory.NewUserRepository()

	require.NoError(t, products.Upsert(ctx, domain.Product{ID: "p-lamp", Name: "Desk Lamp", Quantity: 7, TrackQuantity: true}))

	seed, err := LoadSeed(writeSeedFile(t, testSeedYAML))
	require.NoError(t, err)
	require.NoError(t, ApplySeed(ctx, seed, products, users, quietLogger()))

	lamp, err := products.Get(ctx, "p-lamp")
	require.NoError(t, err)
	require.EqualValues(t, 7, lamp.Quantity)

	_, err = products.Get(ctx, "p-ebook")
	require.NoError(t, err)
	ann, err := users.Get(ctx, "u-ann")
	require.NoError(t, err)
	require.Equal(t, "Ann", ann.Name)
}

func TestLoadSeed_MissingFile(t *testing.T) {
	_, err := LoadSeed("/nonexistent/seed.yaml")
	require.Error(t, err)
}
