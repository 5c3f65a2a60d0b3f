package memory

import (
	"context"
	"slices"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
)

type userRepositoryInMemory struct {
	mu      sync.RWMutex
	items   map[string]domain.UserAccount
	applied map[string]struct{}
}

// NewUserRepository создаёт in-memory хранилище аккаунтов.
func NewUserRepository() domain.UserRepository {
	return &userRepositoryInMemory{
		items:   make(map[string]domain.UserAccount),
		applied: make(map[string]struct{}),
	}
}

func (r *userRepositoryInMemory) Get(_ context.Context, id string) (domain.UserAccount, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	user, ok := r.items[id]
	if !ok {
		return domain.UserAccount{}, domain.ErrUserNotFound
	}
	user.Cart = slices.Clone(user.Cart)
	return user, nil
}

func (r *userRepositoryInMemory) Upsert(_ context.Context, user domain.UserAccount) error {
	if user.ID == "" {
		return domain.ErrUserRequired
	}
	now := time.Now().UTC()
	if user.CreatedAt.IsZero() {
		user.CreatedAt = now
	}
	user.UpdatedAt = now
	user.Cart = slices.Clone(user.Cart)

	r.mu.Lock()
	defer r.mu.Unlock()
	r.items[user.ID] = user
	return nil
}

// ApplyOrderEffects применяет статистику заказа один раз на пару (пользователь, заказ).
func (r *userRepositoryInMemory) ApplyOrderEffects(_ context.Context, userID, orderID string, total decimal.Decimal, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	user, ok := r.items[userID]
	if !ok {
		return domain.ErrUserNotFound
	}
	key := userID + "/" + orderID
	if _, done := r.applied[key]; done {
		return nil
	}

	user.ApplyOrder(total, at)
	r.items[userID] = user
	r.applied[key] = struct{}{}
	return nil
}

func (r *userRepositoryInMemory) ReplaceCart(_ context.Context, userID string, cart []domain.CartLine) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	user, ok := r.items[userID]
	if !ok {
		return domain.ErrUserNotFound
	}
	user.Cart = slices.Clone(cart)
	user.UpdatedAt = time.Now().UTC()
	r.items[userID] = user
	return nil
}

var _ domain.UserRepository = (*userRepositoryInMemory)(nil)
