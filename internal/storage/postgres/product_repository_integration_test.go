package postgres

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/shopspring/decimal"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
)

func TestProductRepository_PostgresReservePolicies(t *testing.T) {
	store := openPostgresStoreForIntegrationTest(t)
	repo := NewProductRepository(store)
	ctx := context.Background()

	products := []domain.Product{
		{ID: "tracked", Name: "Lamp", Price: decimal.RequireFromString("9.99"), Quantity: 2, TrackQuantity: true},
		{ID: "oversell", Name: "Poster", Price: decimal.RequireFromString("5"), Quantity: 0, TrackQuantity: true, ContinueSellingWhenOutOfStock: true},
		{ID: "untracked", Name: "E-book", Price: decimal.RequireFromString("3"), Quantity: 0, TrackQuantity: false},
	}
	for _, p := range products {
		if err := repo.Upsert(ctx, p); err != nil {
			t.Fatalf("upsert %s: %v", p.ID, err)
		}
	}

	if err := repo.Reserve(ctx, "tracked", 3); !errors.Is(err, domain.ErrInsufficientStock) {
		t.Fatalf("expected ErrInsufficientStock, got %v", err)
	}
	if err := repo.Reserve(ctx, "tracked", 2); err != nil {
		t.Fatalf("reserve tracked: %v", err)
	}
	if err := repo.Reserve(ctx, "oversell", 4); err != nil {
		t.Fatalf("reserve oversell: %v", err)
	}
	if err := repo.Reserve(ctx, "untracked", 10); err != nil {
		t.Fatalf("reserve untracked: %v", err)
	}
	if err := repo.Reserve(ctx, "ghost", 1); !errors.Is(err, domain.ErrProductNotFound) {
		t.Fatalf("expected ErrProductNotFound, got %v", err)
	}

	tracked, _ := repo.Get(ctx, "tracked")
	oversell, _ := repo.Get(ctx, "oversell")
	untracked, _ := repo.Get(ctx, "untracked")
	if tracked.Quantity != 0 || oversell.Quantity != -4 || untracked.Quantity != 0 {
		t.Fatalf("unexpected quantities: tracked=%d oversell=%d untracked=%d", tracked.Quantity, oversell.Quantity, untracked.Quantity)
	}

	if err := repo.Release(ctx, "tracked", 2); err != nil {
		t.Fatalf("release tracked: %v", err)
	}
	if err := repo.Release(ctx, "untracked", 2); err != nil {
		t.Fatalf("release untracked: %v", err)
	}
	if err := repo.Release(ctx, "ghost", 1); !errors.Is(err, domain.ErrProductNotFound) {
		t.Fatalf("expected ErrProductNotFound on release, got %v", err)
	}
	tracked, _ = repo.Get(ctx, "tracked")
	if tracked.Quantity != 2 {
		t.Fatalf("expected restocked quantity 2, got %d", tracked.Quantity)
	}
}

func TestProductRepository_PostgresConcurrentReserve(t *testing.T) {
	store := openPostgresStoreForIntegrationTest(t)
	repo := NewProductRepository(store)
	ctx := context.Background()

	if err := repo.Upsert(ctx, domain.Product{ID: "hot", Name: "Hot", Price: decimal.NewFromInt(1), Quantity: 5, TrackQuantity: true}); err != nil {
		t.Fatalf("upsert: %v", err)
	}

	var (
		wg      sync.WaitGroup
		success atomic.Int64
	)
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := repo.Reserve(ctx, "hot", 1); err == nil {
				success.Add(1)
			}
		}()
	}
	wg.Wait()

	product, err := repo.Get(ctx, "hot")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if success.Load() != 5 || product.Quantity != 0 {
		t.Fatalf("expected exactly 5 reservations and zero stock, got success=%d quantity=%d", success.Load(), product.Quantity)
	}

	list, err := repo.List(ctx)
	if err != nil || len(list) != 1 {
		t.Fatalf("unexpected list result: %v %v", list, err)
	}
}
