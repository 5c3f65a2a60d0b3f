package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
)

// ProductStore: in-memory каталог и складской журнал под одним мьютексом.
// Проверка остатка и списание выполняются в одной критической секции.
type ProductStore struct {
	mu    sync.RWMutex
	items map[string]domain.Product
}

// NewProductStore создаёт пустой каталог.
func NewProductStore() *ProductStore {
	return &ProductStore{items: make(map[string]domain.Product)}
}

// Get возвращает товар или ErrProductNotFound.
func (s *ProductStore) Get(_ context.Context, id string) (domain.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	product, ok := s.items[id]
	if !ok {
		return domain.Product{}, domain.ErrProductNotFound
	}
	return product, nil
}

// Upsert создаёт или заменяет карточку товара.
func (s *ProductStore) Upsert(_ context.Context, product domain.Product) error {
	if product.ID == "" {
		return domain.ErrProductIDRequired
	}
	if product.UpdatedAt.IsZero() {
		product.UpdatedAt = time.Now().UTC()
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.items[product.ID] = product
	return nil
}

// List возвращает каталог, упорядоченный по ID.
func (s *ProductStore) List(_ context.Context) ([]domain.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]domain.Product, 0, len(s.items))
	for _, product := range s.items {
		result = append(result, product)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].ID < result[j].ID })
	return result, nil
}

// Reserve атомарно проверяет и списывает остаток.
func (s *ProductStore) Reserve(_ context.Context, productID string, qty int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := domain.CheckLineQuantity(qty); err != nil {
		return err
	}
	product, ok := s.items[productID]
	if !ok {
		return domain.ErrProductNotFound
	}
	if !product.CanReserve(qty) {
		return domain.ErrInsufficientStock
	}
	if product.Decrements() {
		left, err := product.AfterReserve(qty)
		if err != nil {
			return err
		}
		product.Quantity = left
		product.UpdatedAt = time.Now().UTC()
		s.items[productID] = product
	}
	return nil
}

// Release возвращает остаток. Для неотслеживаемых товаров ничего не делает.
func (s *ProductStore) Release(_ context.Context, productID string, qty int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := domain.CheckLineQuantity(qty); err != nil {
		return err
	}
	product, ok := s.items[productID]
	if !ok {
		return domain.ErrProductNotFound
	}
	if product.Decrements() {
		restocked, err := product.AfterRelease(qty)
		if err != nil {
			return err
		}
		product.Quantity = restocked
		product.UpdatedAt = time.Now().UTC()
		s.items[productID] = product
	}
	return nil
}

var (
	_ domain.ProductRepository = (*ProductStore)(nil)
	_ domain.StockLedger       = (*ProductStore)(nil)
)
