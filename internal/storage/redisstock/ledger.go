// Package redisstock хранит остатки в Redis и резервирует их Lua-скриптами.
package redisstock

import (
	"context"
	_ "embed"
	"fmt"
	"strconv"
	"time"

	"github.com/go-redis/redis/v8"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
)

//go:embed scripts/reserve_stock.lua
var reserveStockScript string

//go:embed scripts/release_stock.lua
var releaseStockScript string

const (
	keyPrefix = "storefront:stock:"

	fieldQuantity = "quantity"
	fieldTrack    = "track"
	fieldOversell = "oversell"
)

// Ledger: StockLedger поверх Redis. Скрипт выполняется атомарно, поэтому
// проверка и списание не пересекаются с другими резервами того же товара.
type Ledger struct {
	rdb           *redis.Client
	reserveScript *redis.Script
	releaseScript *redis.Script
}

// Connect создаёт клиента и проверяет доступность Redis.
func Connect(ctx context.Context, addr, password string, db int) (*redis.Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := rdb.Ping(pingCtx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}
	return rdb, nil
}

// NewLedger создаёт журнал остатков поверх готового клиента.
func NewLedger(rdb *redis.Client) *Ledger {
	return &Ledger{
		rdb:           rdb,
		reserveScript: redis.NewScript(reserveStockScript),
		releaseScript: redis.NewScript(releaseStockScript),
	}
}

func stockKey(productID string) string {
	return keyPrefix + productID
}

// Reserve атомарно проверяет и списывает остаток.
func (l *Ledger) Reserve(ctx context.Context, productID string, qty int64) error {
	if err := domain.CheckLineQuantity(qty); err != nil {
		return err
	}
	result, err := l.reserveScript.Run(ctx, l.rdb, []string{stockKey(productID)}, qty).Int64()
	if err != nil {
		return fmt.Errorf("reserve stock script failed: %w", err)
	}

	switch result {
	case 1:
		return nil
	case 0:
		return domain.ErrInsufficientStock
	case -1:
		return domain.ErrProductNotFound
	default:
		return fmt.Errorf("unexpected reserve script result %d", result)
	}
}

// Release возвращает остаток (компенсация или отмена заказа).
func (l *Ledger) Release(ctx context.Context, productID string, qty int64) error {
	if err := domain.CheckLineQuantity(qty); err != nil {
		return err
	}
	result, err := l.releaseScript.Run(ctx, l.rdb, []string{stockKey(productID)}, qty).Int64()
	if err != nil {
		return fmt.Errorf("release stock script failed: %w", err)
	}
	if result == -1 {
		return domain.ErrProductNotFound
	}
	return nil
}

// Sync переносит политики товаров из каталога в Redis.
// Остаток записывается только для новых ключей: Redis остаётся источником правды по количеству.
func (l *Ledger) Sync(ctx context.Context, products []domain.Product) error {
	pipe := l.rdb.Pipeline()
	for _, product := range products {
		key := stockKey(product.ID)
		pipe.HSetNX(ctx, key, fieldQuantity, product.Quantity)
		pipe.HSet(ctx, key,
			fieldTrack, boolFlag(product.TrackQuantity),
			fieldOversell, boolFlag(product.ContinueSellingWhenOutOfStock),
		)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("sync stock to redis: %w", err)
	}
	return nil
}

// SetStock перезаписывает остаток и политику товара. Вызывается при ручной правке склада.
func (l *Ledger) SetStock(ctx context.Context, product domain.Product) error {
	err := l.rdb.HSet(ctx, stockKey(product.ID),
		fieldQuantity, product.Quantity,
		fieldTrack, boolFlag(product.TrackQuantity),
		fieldOversell, boolFlag(product.ContinueSellingWhenOutOfStock),
	).Err()
	if err != nil {
		return fmt.Errorf("set stock %s: %w", product.ID, err)
	}
	return nil
}

// Quantity возвращает текущий остаток товара из Redis.
func (l *Ledger) Quantity(ctx context.Context, productID string) (int64, error) {
	raw, err := l.rdb.HGet(ctx, stockKey(productID), fieldQuantity).Result()
	if err == redis.Nil {
		return 0, domain.ErrProductNotFound
	}
	if err != nil {
		return 0, fmt.Errorf("read stock quantity: %w", err)
	}
	qty, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("parse stock quantity %q: %w", raw, err)
	}
	return qty, nil
}

// Ping проверяет доступность Redis для readiness-проб.
func (l *Ledger) Ping(ctx context.Context) error {
	return l.rdb.Ping(ctx).Err()
}

func boolFlag(v bool) string {
	if v {
		return "1"
	}
	return "0"
}

var _ domain.StockLedger = (*Ledger)(nil)
