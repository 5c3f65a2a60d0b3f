package postgres

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/shopspring/decimal"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
)

func sampleOrder(id, userID string, createdAt time.Time) domain.Order {
	return domain.Order{
		ID:            id,
		UserID:        userID,
		UserName:      "Alice",
		Status:        domain.OrderStatusPending,
		TotalAmount:   decimal.RequireFromString("31.50"),
		PaymentMethod: "cod",
		Message:       "leave at the door",
		Items: []domain.OrderItem{
			{ProductID: "p-1", Name: "Lamp", Price: decimal.RequireFromString("10.50"), Quantity: 2, Variant: map[string]any{"color": "red"}},
			{ProductID: "p-2", Name: "Bulb", Price: decimal.RequireFromString("10.50"), Quantity: 1},
		},
		CreatedAt: createdAt,
		UpdatedAt: createdAt,
	}
}

func TestOrderRepository_PostgresCreateGetListAndSave(t *testing.T) {
	store := openPostgresStoreForIntegrationTest(t)
	repo := NewOrderRepository(store)
	ctx := context.Background()

	now := time.Now().UTC().Round(time.Microsecond)
	order1 := sampleOrder("ORD-1", "user-1", now.Add(-2*time.Minute))
	order2 := sampleOrder("ORD-2", "user-1", now.Add(-time.Minute))
	order3 := sampleOrder("ORD-3", "user-2", now)

	for _, order := range []domain.Order{order1, order2, order3} {
		if err := repo.Create(ctx, order); err != nil {
			t.Fatalf("create %s: %v", order.ID, err)
		}
	}

	got, err := repo.Get(ctx, order1.ID)
	if err != nil {
		t.Fatalf("get order1: %v", err)
	}
	if got.UserID != order1.UserID || got.Status != order1.Status || !got.TotalAmount.Equal(order1.TotalAmount) {
		t.Fatalf("unexpected order payload: %+v", got)
	}
	if len(got.Items) != 2 || got.Items[0].Variant["color"] != "red" || !got.Items[0].Price.Equal(decimal.RequireFromString("10.50")) {
		t.Fatalf("unexpected items: %+v", got.Items)
	}

	page, err := repo.List(ctx, domain.OrderFilter{UserID: "user-1", Page: 1, Limit: 1})
	if err != nil {
		t.Fatalf("list by user: %v", err)
	}
	if page.Total != 2 || len(page.Orders) != 1 || page.Orders[0].ID != order2.ID {
		t.Fatalf("unexpected page: total=%d orders=%+v", page.Total, page.Orders)
	}

	got.Status = domain.OrderStatusProcessing
	got.UpdatedAt = now.Add(time.Minute)
	if err := repo.Save(ctx, got); err != nil {
		t.Fatalf("save: %v", err)
	}
	if err := repo.Save(ctx, got); !errors.Is(err, domain.ErrOrderVersionConflict) {
		t.Fatalf("expected version conflict on stale save, got %v", err)
	}

	byStatus, err := repo.List(ctx, domain.OrderFilter{Status: domain.OrderStatusProcessing})
	if err != nil {
		t.Fatalf("list by status: %v", err)
	}
	if byStatus.Total != 1 || byStatus.Orders[0].ID != order1.ID {
		t.Fatalf("unexpected status filter: %+v", byStatus)
	}
}

func TestOrderRepository_PostgresDuplicateAndDelete(t *testing.T) {
	store := openPostgresStoreForIntegrationTest(t)
	repo := NewOrderRepository(store)
	ctx := context.Background()

	order := sampleOrder("ORD-DUP", "user-1", time.Now().UTC())
	if err := repo.Create(ctx, order); err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := repo.Create(ctx, order); !errors.Is(err, domain.ErrOrderAlreadyExists) {
		t.Fatalf("expected ErrOrderAlreadyExists, got %v", err)
	}

	if err := repo.Delete(ctx, order.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err := repo.Get(ctx, order.ID); !errors.Is(err, domain.ErrOrderNotFound) {
		t.Fatalf("expected ErrOrderNotFound, got %v", err)
	}
	if err := repo.Delete(ctx, order.ID); !errors.Is(err, domain.ErrOrderNotFound) {
		t.Fatalf("expected ErrOrderNotFound on second delete, got %v", err)
	}
	if err := repo.Save(ctx, order); !errors.Is(err, domain.ErrOrderNotFound) {
		t.Fatalf("expected ErrOrderNotFound on save, got %v", err)
	}
}

func TestIsUniqueViolation(t *testing.T) {
	if !isUniqueViolation(&pgconn.PgError{Code: "23505"}) {
		t.Fatal("expected unique violation")
	}
	if isUniqueViolation(&pgconn.PgError{Code: "22001"}) {
		t.Fatal("unexpected unique violation for different code")
	}
	if isUniqueViolation(errors.New("plain error")) {
		t.Fatal("unexpected unique violation for plain error")
	}
}
