package reviews

import (
	"context"
	"errors"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
	"github.com/vladislavdragonenkov/storefront/internal/metrics"
	"github.com/vladislavdragonenkov/storefront/internal/service/journal"
)

// Тип события outbox для отзывов.
const (
	EventReviewRecorded  = "ReviewRecorded"
	EventReviewEdited    = "ReviewEdited"
	EventReviewModerated = "ReviewModerated"
)

// RecordInput: новый отзыв на позицию заказа.
type RecordInput struct {
	OrderID   string
	ProductID string
	UserID    string
	UserName  string
	Rating    int
	Title     string
	Comment   string
	Images    []string
}

// EditInput — правка отзыва автором.
type EditInput struct {
	ReviewID string
	UserID   string
	Rating   int
	Title    string
	Comment  string
	Images   []string
}

// Gate решает, можно ли оставить отзыв, и хранит отзывы с рейтингом товара.
type Gate struct {
	orders  domain.OrderRepository
	reviews domain.ReviewRepository
	journal *journal.Recorder
	logger  *log.Entry
	metrics *metrics.PlacementMetrics
	now     func() time.Time
}

// NewGate создаёт Gate.
func NewGate(orders domain.OrderRepository, reviews domain.ReviewRepository, recorder *journal.Recorder, logger *log.Entry, m *metrics.PlacementMetrics) *Gate {
	if logger == nil {
		logger = log.WithField("component", "review-gate")
	}
	return &Gate{
		orders:  orders,
		reviews: reviews,
		journal: recorder,
		logger:  logger,
		metrics: m,
		now:     func() time.Time { return time.Now().UTC() },
	}
}

// IsReviewable: заказ доставлен и по тройке (товар, заказ, владелец заказа) отзыва ещё нет.
func (g *Gate) IsReviewable(ctx context.Context, order domain.Order, productID string) (bool, error) {
	if order.Status != domain.OrderStatusDelivered {
		return false, nil
	}
	if _, ok := order.Item(productID); !ok {
		return false, nil
	}
	existing, err := g.reviews.ListByOrder(ctx, order.ID, order.UserID)
	if err != nil {
		return false, err
	}
	for _, review := range existing {
		if review.ProductID == productID {
			return false, nil
		}
	}
	return true, nil
}

// LineStatuses возвращает состояние отзыва для каждой позиции заказа в исходном порядке.
func (g *Gate) LineStatuses(ctx context.Context, order domain.Order) ([]domain.LineReviewState, error) {
	existing, err := g.reviews.ListByOrder(ctx, order.ID, order.UserID)
	if err != nil {
		return nil, err
	}
	byProduct := make(map[string]domain.Review, len(existing))
	for _, review := range existing {
		byProduct[review.ProductID] = review
	}

	delivered := order.Status == domain.OrderStatusDelivered
	states := make([]domain.LineReviewState, 0, len(order.Items))
	for _, item := range order.Items {
		state := domain.LineReviewState{ProductID: item.ProductID}
		if review, ok := byProduct[item.ProductID]; ok {
			state.Review = &review
			state.Reviewed = review.Status == domain.ReviewStatusApproved || review.Status == domain.ReviewStatusPending
		} else {
			state.Reviewable = delivered
		}
		states = append(states, state)
	}
	return states, nil
}

// RecordReview создаёт отзыв на позицию доставленного заказа. Уникальность тройки
// (товар, заказ, пользователь) обеспечивает хранилище, поэтому из двух одновременных
// попыток успешна только одна.
func (g *Gate) RecordReview(ctx context.Context, in RecordInput) (domain.Review, error) {
	if err := domain.ValidateRating(in.Rating); err != nil {
		return domain.Review{}, err
	}
	if strings.TrimSpace(in.ProductID) == "" {
		return domain.Review{}, domain.ErrProductIDRequired
	}

	order, err := g.orders.Get(ctx, in.OrderID)
	if err != nil {
		return domain.Review{}, err
	}
	if order.UserID != in.UserID {
		return domain.Review{}, domain.ErrReviewForbidden
	}
	if _, ok := order.Item(in.ProductID); !ok {
		return domain.Review{}, domain.ErrProductNotInOrder
	}
	if order.Status != domain.OrderStatusDelivered {
		g.metrics.RecordReview("not_delivered")
		return domain.Review{}, domain.ErrNotDelivered
	}

	now := g.now()
	review, err := g.reviews.CreateIfAbsent(ctx, domain.Review{
		ProductID:        in.ProductID,
		OrderID:          order.ID,
		UserID:           in.UserID,
		UserName:         strings.TrimSpace(in.UserName),
		Rating:           in.Rating,
		Title:            strings.TrimSpace(in.Title),
		Comment:          strings.TrimSpace(in.Comment),
		Images:           in.Images,
		VerifiedPurchase: true,
		Status:           domain.ReviewStatusPending,
		CreatedAt:        now,
	})
	if err != nil {
		if errors.Is(err, domain.ErrAlreadyReviewed) {
			g.metrics.RecordReview("duplicate")
		}
		return domain.Review{}, err
	}

	g.metrics.RecordReview("created")
	g.logger.WithFields(log.Fields{
		"review_id":  review.ID,
		"order_id":   review.OrderID,
		"product_id": review.ProductID,
	}).Info("review recorded")
	g.record(ctx, review, EventReviewRecorded, in.UserID)
	return review, nil
}

// EditReview меняет отзыв автора. Изменённый отзыв снова уходит на модерацию.
func (g *Gate) EditReview(ctx context.Context, in EditInput) (domain.Review, error) {
	if err := domain.ValidateRating(in.Rating); err != nil {
		return domain.Review{}, err
	}

	review, err := g.reviews.Get(ctx, in.ReviewID)
	if err != nil {
		return domain.Review{}, err
	}
	if review.UserID != in.UserID {
		return domain.Review{}, domain.ErrReviewForbidden
	}

	review.Rating = in.Rating
	review.Title = strings.TrimSpace(in.Title)
	review.Comment = strings.TrimSpace(in.Comment)
	review.Images = in.Images
	review.Status = domain.ReviewStatusPending
	review.UpdatedAt = g.now()

	if err := g.reviews.Update(ctx, review); err != nil {
		return domain.Review{}, err
	}
	g.metrics.RecordReview("edited")
	g.record(ctx, review, EventReviewEdited, in.UserID)
	return review, nil
}

// Moderate одобряет или отклоняет отзыв.
func (g *Gate) Moderate(ctx context.Context, reviewID string, status domain.ReviewStatus, actor string) (domain.Review, error) {
	if status != domain.ReviewStatusApproved && status != domain.ReviewStatusRejected {
		return domain.Review{}, domain.ErrUnknownReviewStatus
	}

	review, err := g.reviews.Get(ctx, reviewID)
	if err != nil {
		return domain.Review{}, err
	}
	review.Status = status
	review.UpdatedAt = g.now()
	if err := g.reviews.Update(ctx, review); err != nil {
		return domain.Review{}, err
	}

	g.metrics.RecordReview("moderated")
	g.record(ctx, review, EventReviewModerated, actor)
	return review, nil
}

// ProductRating считает средний рейтинг по одобренным отзывам на момент чтения.
func (g *Gate) ProductRating(ctx context.Context, productID string) (domain.RatingSummary, error) {
	return g.reviews.RatingSummary(ctx, productID)
}

// ApprovedReviews возвращает одобренные отзывы товара, новые первыми.
func (g *Gate) ApprovedReviews(ctx context.Context, productID string) ([]domain.Review, error) {
	return g.reviews.ListByProduct(ctx, productID, domain.ReviewStatusApproved)
}

func (g *Gate) record(ctx context.Context, review domain.Review, eventType, actor string) {
	_ = g.journal.Record(ctx, journal.Entry{
		AggregateType: journal.AggregateReview,
		AggregateID:   review.ID,
		EventType:     eventType,
		Actor:         actor,
		Payload: map[string]any{
			"product_id": review.ProductID,
			"order_id":   review.OrderID,
			"rating":     review.Rating,
			"status":     string(review.Status),
		},
	})
}
