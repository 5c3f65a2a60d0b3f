package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
)

type reviewRepository struct {
	db *sql.DB
}

// NewReviewRepository создаёт PostgreSQL-реализацию ReviewRepository.
func NewReviewRepository(store *Store) domain.ReviewRepository {
	return &reviewRepository{db: store.DB()}
}

const reviewColumns = `id, product_id, order_id, user_id, user_name, rating, title, comment, images, verified_purchase, status, created_at, updated_at`

// CreateIfAbsent опирается на уникальный индекс reviews_line_unique: конкурентные вставки не создают дублей.
func (r *reviewRepository) CreateIfAbsent(ctx context.Context, review domain.Review) (domain.Review, error) {
	if review.ID == "" {
		review.ID = uuid.NewString()
	}
	if review.CreatedAt.IsZero() {
		review.CreatedAt = time.Now().UTC()
	}
	review.UpdatedAt = review.CreatedAt

	images, err := marshalImages(review.Images)
	if err != nil {
		return domain.Review{}, err
	}

	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	var id string
	err = r.db.QueryRowContext(ctx, `
		INSERT INTO reviews (`+reviewColumns+`)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13)
		ON CONFLICT (product_id, order_id, user_id) DO NOTHING
		RETURNING id
	`,
		review.ID, review.ProductID, review.OrderID, review.UserID, review.UserName,
		review.Rating, review.Title, review.Comment, images, review.VerifiedPurchase,
		string(review.Status), review.CreatedAt, review.UpdatedAt,
	).Scan(&id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.Review{}, domain.ErrAlreadyReviewed
		}
		return domain.Review{}, fmt.Errorf("insert review: %w", err)
	}
	return review, nil
}

func (r *reviewRepository) Get(ctx context.Context, id string) (domain.Review, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	review, err := scanReview(r.db.QueryRowContext(ctx, `SELECT `+reviewColumns+` FROM reviews WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.Review{}, domain.ErrReviewNotFound
		}
		return domain.Review{}, fmt.Errorf("select review: %w", err)
	}
	return review, nil
}

func (r *reviewRepository) Update(ctx context.Context, review domain.Review) error {
	if review.UpdatedAt.IsZero() {
		review.UpdatedAt = time.Now().UTC()
	}

	images, err := marshalImages(review.Images)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	res, err := r.db.ExecContext(ctx, `
		UPDATE reviews
		SET rating = $2,
		    title = $3,
		    comment = $4,
		    images = $5,
		    status = $6,
		    updated_at = $7
		WHERE id = $1
	`, review.ID, review.Rating, review.Title, review.Comment, images, string(review.Status), review.UpdatedAt)
	if err != nil {
		return fmt.Errorf("update review: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if affected == 0 {
		return domain.ErrReviewNotFound
	}
	return nil
}

func (r *reviewRepository) ListByOrder(ctx context.Context, orderID, userID string) ([]domain.Review, error) {
	return r.query(ctx, `
		SELECT `+reviewColumns+`
		FROM reviews
		WHERE order_id = $1 AND user_id = $2
		ORDER BY created_at DESC, id ASC
	`, orderID, userID)
}

func (r *reviewRepository) ListByProduct(ctx context.Context, productID string, status domain.ReviewStatus) ([]domain.Review, error) {
	if status == "" {
		return r.query(ctx, `
			SELECT `+reviewColumns+`
			FROM reviews
			WHERE product_id = $1
			ORDER BY created_at DESC, id ASC
		`, productID)
	}
	return r.query(ctx, `
		SELECT `+reviewColumns+`
		FROM reviews
		WHERE product_id = $1 AND status = $2
		ORDER BY created_at DESC, id ASC
	`, productID, string(status))
}

// RatingSummary агрегирует только одобренные отзывы при каждом чтении.
func (r *reviewRepository) RatingSummary(ctx context.Context, productID string) (domain.RatingSummary, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	summary := domain.RatingSummary{ProductID: productID}
	if err := r.db.QueryRowContext(ctx, `
		SELECT COALESCE(AVG(rating)::float8, 0), COUNT(*)
		FROM reviews
		WHERE product_id = $1 AND status = $2
	`, productID, string(domain.ReviewStatusApproved)).Scan(&summary.Average, &summary.Count); err != nil {
		return domain.RatingSummary{}, fmt.Errorf("rating summary: %w", err)
	}
	return summary, nil
}

func (r *reviewRepository) query(ctx context.Context, query string, args ...any) ([]domain.Review, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list reviews: %w", err)
	}
	defer rows.Close()

	reviews := make([]domain.Review, 0)
	for rows.Next() {
		review, err := scanReview(rows)
		if err != nil {
			return nil, fmt.Errorf("scan review: %w", err)
		}
		reviews = append(reviews, review)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate reviews: %w", err)
	}
	return reviews, nil
}

func scanReview(row rowScanner) (domain.Review, error) {
	var (
		review domain.Review
		status string
		images []byte
	)
	if err := row.Scan(
		&review.ID, &review.ProductID, &review.OrderID, &review.UserID, &review.UserName,
		&review.Rating, &review.Title, &review.Comment, &images, &review.VerifiedPurchase,
		&status, &review.CreatedAt, &review.UpdatedAt,
	); err != nil {
		return domain.Review{}, err
	}
	if len(images) > 0 {
		if err := json.Unmarshal(images, &review.Images); err != nil {
			return domain.Review{}, fmt.Errorf("decode review images: %w", err)
		}
	}
	review.Status = domain.ReviewStatus(status)
	review.CreatedAt = review.CreatedAt.UTC()
	review.UpdatedAt = review.UpdatedAt.UTC()
	return review, nil
}

func marshalImages(images []string) ([]byte, error) {
	if images == nil {
		images = []string{}
	}
	data, err := json.Marshal(images)
	if err != nil {
		return nil, fmt.Errorf("encode review images: %w", err)
	}
	return data, nil
}

var _ domain.ReviewRepository = (*reviewRepository)(nil)
