package app

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/go-redis/redis/v8"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
	healthcheck "github.com/vladislavdragonenkov/storefront/internal/health"
	"github.com/vladislavdragonenkov/storefront/internal/service/inventory"
	"github.com/vladislavdragonenkov/storefront/internal/storage/memory"
	"github.com/vladislavdragonenkov/storefront/internal/storage/postgres"
	"github.com/vladislavdragonenkov/storefront/internal/storage/redisstock"
)

// runtimeDependencies: хранилища, выбранные по драйверам конфигурации.
type runtimeDependencies struct {
	products        domain.ProductRepository
	stock           domain.StockLedger
	stockMirror     inventory.StockMirror
	orders          domain.OrderRepository
	users           domain.UserRepository
	reviews         domain.ReviewRepository
	outboxRepo      domain.OutboxRepository
	timeline        domain.TimelineRepository
	idempotencyRepo domain.IdempotencyRepository

	checkers map[string]healthcheck.Checker
	closers  []func() error
}

func (d *runtimeDependencies) close() error {
	var errs []error
	for i := len(d.closers) - 1; i >= 0; i-- {
		if err := d.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	d.closers = nil
	return errors.Join(errs...)
}

// initRuntimeDependencies открывает хранилища, применяет сид и при необходимости переносит остатки в Redis.
func initRuntimeDependencies(ctx context.Context, cfg Config, logger *log.Entry) (deps *runtimeDependencies, err error) {
	deps = &runtimeDependencies{checkers: make(map[string]healthcheck.Checker)}
	defer func() {
		if err != nil {
			_ = deps.close()
			deps = nil
		}
	}()

	switch cfg.StorageDriver {
	case StorageDriverMemory:
		store := memory.NewProductStore()
		deps.products = store
		deps.stock = store
		deps.orders = memory.NewOrderRepository()
		deps.users = memory.NewUserRepository()
		deps.reviews = memory.NewReviewRepository()
		deps.outboxRepo = memory.NewOutboxRepository()
		deps.timeline = memory.NewTimelineRepository()
		deps.idempotencyRepo = memory.NewIdempotencyRepository()
	case StorageDriverPostgres:
		if err := initPostgres(ctx, cfg, deps, logger); err != nil {
			return nil, err
		}
	default:
		return nil, fmt.Errorf("unsupported storage driver %q", cfg.StorageDriver)
	}

	if cfg.SeedFile != "" {
		seed, err := LoadSeed(cfg.SeedFile)
		if err != nil {
			return nil, err
		}
		if err := ApplySeed(ctx, seed, deps.products, deps.users, logger); err != nil {
			return nil, err
		}
	}

	switch cfg.StockDriver {
	case StockDriverStore, "":
	case StockDriverRedis:
		if err := initRedisStock(ctx, cfg, deps, logger); err != nil {
			return nil, err
		}
	default:
		return nil, fmt.Errorf("unsupported stock driver %q", cfg.StockDriver)
	}

	return deps, nil
}

func initPostgres(ctx context.Context, cfg Config, deps *runtimeDependencies, logger *log.Entry) error {
	if strings.TrimSpace(cfg.PostgresDSN) == "" {
		return errors.New("postgres dsn is required for postgres storage driver")
	}

	store, err := postgres.Open(ctx, cfg.PostgresDSN, postgres.WithMaxConns(cfg.PostgresMaxConns))
	if err != nil {
		return err
	}
	deps.closers = append(deps.closers, store.Close)

	if cfg.PostgresAutoMigrate {
		if err := store.MigrateUp(ctx, 0); err != nil {
			return fmt.Errorf("apply migrations: %w", err)
		}
	}

	products := postgres.NewProductRepository(store)
	deps.products = products
	deps.stock = products
	deps.orders = postgres.NewOrderRepository(store)
	deps.users = postgres.NewUserRepository(store)
	deps.reviews = postgres.NewReviewRepository(store)
	deps.outboxRepo = postgres.NewOutboxRepository(store)
	deps.timeline = postgres.NewTimelineRepository(store)
	deps.idempotencyRepo = postgres.NewIdempotencyRepository(store)
	deps.checkers["postgres"] = healthcheck.NewPingChecker("postgres", 0, store.Ping)

	logger.WithField("auto_migrate", cfg.PostgresAutoMigrate).Info("postgres storage initialized")
	return nil
}

// initRedisStock переключает резерв на Redis. Каталог остаётся в основном хранилище,
// остатки переносятся в Redis только для отсутствующих там товаров.
func initRedisStock(ctx context.Context, cfg Config, deps *runtimeDependencies, logger *log.Entry) error {
	rdb, err := redisstock.Connect(ctx, cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
	if err != nil {
		return err
	}
	deps.closers = append(deps.closers, func() error { return closeRedis(rdb) })

	ledger := redisstock.NewLedger(rdb)
	products, err := deps.products.List(ctx)
	if err != nil {
		return fmt.Errorf("list catalog for redis sync: %w", err)
	}
	if err := ledger.Sync(ctx, products); err != nil {
		return err
	}

	deps.stock = ledger
	deps.stockMirror = ledger
	deps.checkers["redis"] = healthcheck.NewPingChecker("redis", 0, ledger.Ping)

	logger.WithFields(log.Fields{"addr": cfg.RedisAddr, "products": len(products)}).Info("redis stock ledger initialized")
	return nil
}

func closeRedis(rdb *redis.Client) error {
	if err := rdb.Close(); err != nil {
		return fmt.Errorf("close redis: %w", err)
	}
	return nil
}
