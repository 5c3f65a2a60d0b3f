package domain

import (
	"strings"
	"time"
)

// ReviewStatus: статус модерации отзыва.
type ReviewStatus string

const (
	ReviewStatusPending  ReviewStatus = "pending"
	ReviewStatusApproved ReviewStatus = "approved"
	ReviewStatusRejected ReviewStatus = "rejected"
)

const (
	MinRating = 1
	MaxRating = 5
)

// ParseReviewStatus разбирает статус модерации.
func ParseReviewStatus(raw string) (ReviewStatus, error) {
	status := ReviewStatus(strings.ToLower(strings.TrimSpace(raw)))
	if !status.Valid() {
		return "", ErrUnknownReviewStatus
	}
	return status, nil
}

// Valid проверяет, что статус известен.
func (s ReviewStatus) Valid() bool {
	switch s {
	case ReviewStatusPending, ReviewStatusApproved, ReviewStatusRejected:
		return true
	default:
		return false
	}
}

// Review: отзыв покупателя на позицию доставленного заказа.
type Review struct {
	ID        string
	ProductID string
	OrderID   string
	UserID    string
	UserName  string
	Rating    int
	Title     string
	Comment   string
	Images    []string
	// VerifiedPurchase выставляется, только если заказ принадлежит автору и доставлен.
	VerifiedPurchase bool
	Status           ReviewStatus
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// ReviewKey — уникальная тройка: не больше одного отзыва на позицию заказа.
type ReviewKey struct {
	ProductID string
	OrderID   string
	UserID    string
}

// Key возвращает ключ уникальности отзыва.
func (r Review) Key() ReviewKey {
	return ReviewKey{ProductID: r.ProductID, OrderID: r.OrderID, UserID: r.UserID}
}

// ValidateRating проверяет диапазон оценки.
func ValidateRating(rating int) error {
	if rating < MinRating || rating > MaxRating {
		return ErrInvalidRating
	}
	return nil
}

// RatingSummary: рейтинг товара, вычисляемый при чтении.
type RatingSummary struct {
	ProductID string
	Average   float64
	Count     int
}

// SummarizeRatings считает среднее по одобренным отзывам. Без одобренных отзывов рейтинг нулевой.
func SummarizeRatings(productID string, reviews []Review) RatingSummary {
	summary := RatingSummary{ProductID: productID}
	sum := 0
	for _, review := range reviews {
		if review.ProductID != productID || review.Status != ReviewStatusApproved {
			continue
		}
		sum += review.Rating
		summary.Count++
	}
	if summary.Count > 0 {
		summary.Average = float64(sum) / float64(summary.Count)
	}
	return summary
}

// LineReviewState: состояние отзыва по одной позиции заказа.
// Reviewed выставлен, если по позиции есть отзыв на модерации или одобренный.
type LineReviewState struct {
	ProductID  string
	Reviewable bool
	Reviewed   bool
	Review     *Review
}
