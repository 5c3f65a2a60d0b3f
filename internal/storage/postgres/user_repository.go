package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
)

type userRepository struct {
	db *sql.DB
}

// NewUserRepository создаёт PostgreSQL-реализацию UserRepository.
func NewUserRepository(store *Store) domain.UserRepository {
	return &userRepository{db: store.DB()}
}

func (r *userRepository) Get(ctx context.Context, id string) (domain.UserAccount, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	var (
		user      domain.UserAccount
		lastOrder sql.NullTime
		cart      []byte
	)
	err := r.db.QueryRowContext(ctx, `
		SELECT id, name, total_orders, total_spent, last_order_date, cart, created_at, updated_at
		FROM users
		WHERE id = $1
	`, id).Scan(
		&user.ID, &user.Name, &user.TotalOrders, &user.TotalSpent, &lastOrder, &cart, &user.CreatedAt, &user.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.UserAccount{}, domain.ErrUserNotFound
		}
		return domain.UserAccount{}, fmt.Errorf("select user: %w", err)
	}
	if lastOrder.Valid {
		user.LastOrderDate = lastOrder.Time.UTC()
	}
	if len(cart) > 0 {
		if err := json.Unmarshal(cart, &user.Cart); err != nil {
			return domain.UserAccount{}, fmt.Errorf("decode cart: %w", err)
		}
	}
	return user, nil
}

func (r *userRepository) Upsert(ctx context.Context, user domain.UserAccount) error {
	if user.ID == "" {
		return domain.ErrUserRequired
	}
	cart, err := json.Marshal(cartOrEmpty(user.Cart))
	if err != nil {
		return fmt.Errorf("encode cart: %w", err)
	}

	now := time.Now().UTC()
	if user.CreatedAt.IsZero() {
		user.CreatedAt = now
	}
	var lastOrder sql.NullTime
	if !user.LastOrderDate.IsZero() {
		lastOrder = sql.NullTime{Time: user.LastOrderDate, Valid: true}
	}

	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	if _, err := r.db.ExecContext(ctx, `
		INSERT INTO users (id, name, total_orders, total_spent, last_order_date, cart, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
		ON CONFLICT (id) DO UPDATE
		SET name = EXCLUDED.name,
		    total_orders = EXCLUDED.total_orders,
		    total_spent = EXCLUDED.total_spent,
		    last_order_date = EXCLUDED.last_order_date,
		    cart = EXCLUDED.cart,
		    updated_at = EXCLUDED.updated_at
	`, user.ID, user.Name, user.TotalOrders, user.TotalSpent, lastOrder, cart, user.CreatedAt, now); err != nil {
		return fmt.Errorf("upsert user: %w", err)
	}
	return nil
}

// ApplyOrderEffects фиксирует пару (пользователь, заказ) и обновляет статистику в одной транзакции.
func (r *userRepository) ApplyOrderEffects(ctx context.Context, userID, orderID string, total decimal.Decimal, at time.Time) (err error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	res, err := tx.ExecContext(ctx, `
		INSERT INTO user_order_effects (user_id, order_id, applied_at)
		VALUES ($1,$2,$3)
		ON CONFLICT (user_id, order_id) DO NOTHING
	`, userID, orderID, at)
	if err != nil {
		return fmt.Errorf("record order effect: %w", err)
	}
	inserted, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if inserted == 0 {
		// Эффект уже применён.
		if err = tx.Commit(); err != nil {
			return fmt.Errorf("commit order effect: %w", err)
		}
		return nil
	}

	res, err = tx.ExecContext(ctx, `
		UPDATE users
		SET total_orders = total_orders + 1,
		    total_spent = total_spent + $2,
		    last_order_date = $3,
		    cart = '[]'::jsonb,
		    updated_at = $3
		WHERE id = $1
	`, userID, total, at)
	if err != nil {
		return fmt.Errorf("update user stats: %w", err)
	}
	updated, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if updated == 0 {
		err = domain.ErrUserNotFound
		return err
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit order effect: %w", err)
	}
	return nil
}

func (r *userRepository) ReplaceCart(ctx context.Context, userID string, cart []domain.CartLine) error {
	data, err := json.Marshal(cartOrEmpty(cart))
	if err != nil {
		return fmt.Errorf("encode cart: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	res, err := r.db.ExecContext(ctx, `
		UPDATE users SET cart = $2, updated_at = $3 WHERE id = $1
	`, userID, data, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("replace cart: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if affected == 0 {
		return domain.ErrUserNotFound
	}
	return nil
}

func cartOrEmpty(cart []domain.CartLine) []domain.CartLine {
	if cart == nil {
		return []domain.CartLine{}
	}
	return cart
}

var _ domain.UserRepository = (*userRepository)(nil)
