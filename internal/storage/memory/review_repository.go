package memory

import (
	"context"
	"slices"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
)

// reviewRepositoryInMemory держит уникальный индекс по тройке (товар, заказ, пользователь).
type reviewRepositoryInMemory struct {
	mu    sync.RWMutex
	items map[string]domain.Review
	byKey map[domain.ReviewKey]string
}

// NewReviewRepository создаёт in-memory хранилище отзывов.
func NewReviewRepository() domain.ReviewRepository {
	return &reviewRepositoryInMemory{
		items: make(map[string]domain.Review),
		byKey: make(map[domain.ReviewKey]string),
	}
}

// CreateIfAbsent вставляет отзыв, проверка и вставка под одной блокировкой.
func (r *reviewRepositoryInMemory) CreateIfAbsent(_ context.Context, review domain.Review) (domain.Review, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	key := review.Key()
	if _, exists := r.byKey[key]; exists {
		return domain.Review{}, domain.ErrAlreadyReviewed
	}

	if review.ID == "" {
		review.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if review.CreatedAt.IsZero() {
		review.CreatedAt = now
	}
	review.UpdatedAt = review.CreatedAt
	review.Images = slices.Clone(review.Images)

	r.items[review.ID] = review
	r.byKey[key] = review.ID
	return review, nil
}

func (r *reviewRepositoryInMemory) Get(_ context.Context, id string) (domain.Review, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	review, ok := r.items[id]
	if !ok {
		return domain.Review{}, domain.ErrReviewNotFound
	}
	review.Images = slices.Clone(review.Images)
	return review, nil
}

// Update перезаписывает изменяемые поля. Ключ уникальности не меняется.
func (r *reviewRepositoryInMemory) Update(_ context.Context, review domain.Review) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	current, ok := r.items[review.ID]
	if !ok {
		return domain.ErrReviewNotFound
	}
	current.Rating = review.Rating
	current.Title = review.Title
	current.Comment = review.Comment
	current.Images = slices.Clone(review.Images)
	current.Status = review.Status
	current.UpdatedAt = review.UpdatedAt
	if current.UpdatedAt.IsZero() {
		current.UpdatedAt = time.Now().UTC()
	}
	r.items[review.ID] = current
	return nil
}

func (r *reviewRepositoryInMemory) ListByOrder(_ context.Context, orderID, userID string) ([]domain.Review, error) {
	return r.filter(func(review domain.Review) bool {
		return review.OrderID == orderID && review.UserID == userID
	}), nil
}

// ListByProduct возвращает отзывы товара; пустой status означает все статусы.
func (r *reviewRepositoryInMemory) ListByProduct(_ context.Context, productID string, status domain.ReviewStatus) ([]domain.Review, error) {
	return r.filter(func(review domain.Review) bool {
		return review.ProductID == productID && (status == "" || review.Status == status)
	}), nil
}

func (r *reviewRepositoryInMemory) RatingSummary(_ context.Context, productID string) (domain.RatingSummary, error) {
	reviews := r.filter(func(review domain.Review) bool { return review.ProductID == productID })
	return domain.SummarizeRatings(productID, reviews), nil
}

func (r *reviewRepositoryInMemory) filter(match func(domain.Review) bool) []domain.Review {
	r.mu.RLock()
	defer r.mu.RUnlock()

	result := make([]domain.Review, 0)
	for _, review := range r.items {
		if match(review) {
			review.Images = slices.Clone(review.Images)
			result = append(result, review)
		}
	}
	sort.Slice(result, func(i, j int) bool {
		if !result[i].CreatedAt.Equal(result[j].CreatedAt) {
			return result[i].CreatedAt.After(result[j].CreatedAt)
		}
		return result[i].ID < result[j].ID
	})
	return result
}

var _ domain.ReviewRepository = (*reviewRepositoryInMemory)(nil)
