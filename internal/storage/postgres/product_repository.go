package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
)

// ProductRepository: каталог и складской журнал на PostgreSQL.
// Резерв: одно условное UPDATE: проверка и списание атомарны без явных блокировок.
type ProductRepository struct {
	db *sql.DB
}

// NewProductRepository создаёт PostgreSQL-реализацию каталога и StockLedger.
func NewProductRepository(store *Store) *ProductRepository {
	return &ProductRepository{db: store.DB()}
}

const productColumns = `id, name, price, image, quantity, track_quantity, continue_selling_when_out_of_stock, updated_at`

func (r *ProductRepository) Get(ctx context.Context, id string) (domain.Product, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	product, err := scanProduct(r.db.QueryRowContext(ctx, `SELECT `+productColumns+` FROM products WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.Product{}, domain.ErrProductNotFound
		}
		return domain.Product{}, fmt.Errorf("select product: %w", err)
	}
	return product, nil
}

func (r *ProductRepository) Upsert(ctx context.Context, product domain.Product) error {
	if product.ID == "" {
		return domain.ErrProductIDRequired
	}
	if product.UpdatedAt.IsZero() {
		product.UpdatedAt = time.Now().UTC()
	}

	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	if _, err := r.db.ExecContext(ctx, `
		INSERT INTO products (`+productColumns+`)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
		ON CONFLICT (id) DO UPDATE
		SET name = EXCLUDED.name,
		    price = EXCLUDED.price,
		    image = EXCLUDED.image,
		    quantity = EXCLUDED.quantity,
		    track_quantity = EXCLUDED.track_quantity,
		    continue_selling_when_out_of_stock = EXCLUDED.continue_selling_when_out_of_stock,
		    updated_at = EXCLUDED.updated_at
	`,
		product.ID, product.Name, product.Price, product.Image, product.Quantity,
		product.TrackQuantity, product.ContinueSellingWhenOutOfStock, product.UpdatedAt,
	); err != nil {
		return fmt.Errorf("upsert product: %w", err)
	}
	return nil
}

func (r *ProductRepository) List(ctx context.Context) ([]domain.Product, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	rows, err := r.db.QueryContext(ctx, `SELECT `+productColumns+` FROM products ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("list products: %w", err)
	}
	defer rows.Close()

	products := make([]domain.Product, 0)
	for rows.Next() {
		product, err := scanProduct(rows)
		if err != nil {
			return nil, fmt.Errorf("scan product: %w", err)
		}
		products = append(products, product)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate products: %w", err)
	}
	return products, nil
}

// Reserve списывает остаток, только если политика товара это позволяет.
func (r *ProductRepository) Reserve(ctx context.Context, productID string, qty int64) error {
	if err := domain.CheckLineQuantity(qty); err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	res, err := r.db.ExecContext(ctx, `
		UPDATE products
		SET quantity = CASE WHEN track_quantity THEN quantity - $2 ELSE quantity END,
		    updated_at = $3
		WHERE id = $1
		  AND (NOT track_quantity OR continue_selling_when_out_of_stock OR quantity >= $2)
	`, productID, qty, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("reserve stock: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if affected == 0 {
		return r.missingOr(ctx, productID, domain.ErrInsufficientStock)
	}
	return nil
}

// Release безусловно возвращает остаток отслеживаемого товара.
func (r *ProductRepository) Release(ctx context.Context, productID string, qty int64) error {
	if err := domain.CheckLineQuantity(qty); err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	res, err := r.db.ExecContext(ctx, `
		UPDATE products
		SET quantity = quantity + $2,
		    updated_at = $3
		WHERE id = $1
		  AND track_quantity
	`, productID, qty, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("release stock: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if affected == 0 {
		// Неотслеживаемый товар: возвращать нечего.
		return r.missingOr(ctx, productID, nil)
	}
	return nil
}

func (r *ProductRepository) missingOr(ctx context.Context, productID string, fallback error) error {
	var exists bool
	if err := r.db.QueryRowContext(ctx, `SELECT EXISTS (SELECT 1 FROM products WHERE id = $1)`, productID).Scan(&exists); err != nil {
		return fmt.Errorf("check product existence: %w", err)
	}
	if !exists {
		return domain.ErrProductNotFound
	}
	return fallback
}

func scanProduct(row rowScanner) (domain.Product, error) {
	var product domain.Product
	if err := row.Scan(
		&product.ID, &product.Name, &product.Price, &product.Image, &product.Quantity,
		&product.TrackQuantity, &product.ContinueSellingWhenOutOfStock, &product.UpdatedAt,
	); err != nil {
		return domain.Product{}, err
	}
	product.UpdatedAt = product.UpdatedAt.UTC()
	return product, nil
}

var (
	_ domain.ProductRepository = (*ProductRepository)(nil)
	_ domain.StockLedger       = (*ProductRepository)(nil)
)
