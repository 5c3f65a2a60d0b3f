package app

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Драйверы хранилища заказов, каталога и аккаунтов.
const (
	StorageDriverMemory   = "memory"
	StorageDriverPostgres = "postgres"
)

// Драйверы складского журнала: store — остатки в основном хранилище, redis — Lua-резерв в Redis.
const (
	StockDriverStore = "store"
	StockDriverRedis = "redis"
)

const envPrefix = "STOREFRONT_"

// Config описывает настройки запуска витрины.
type Config struct {
	HTTPAddr    string
	GRPCAddr    string
	MetricsAddr string

	StorageDriver       string
	PostgresDSN         string
	PostgresAutoMigrate bool
	PostgresMaxConns    int

	StockDriver   string
	RedisAddr     string
	RedisPassword string
	RedisDB       int

	// KafkaBrokers: список брокеров через запятую. Пустое значение отключает публикацию outbox.
	KafkaBrokers string

	OutboxPollInterval time.Duration
	OutboxBatchSize    int
	OutboxMaxAttempts  int
	OutboxRetryDelay   time.Duration

	IdempotencyTTL              time.Duration
	IdempotencyCleanupInterval  time.Duration
	IdempotencyCleanupBatchSize int

	OTLPEndpoint string
	OTLPInsecure bool

	// SeedFile: YAML с товарами и покупателями для режима memory.
	SeedFile string
	LogLevel string
}

// DefaultConfig возвращает настройки для локального запуска в памяти.
func DefaultConfig() Config {
	return Config{
		HTTPAddr:    ":8080",
		GRPCAddr:    ":50051",
		MetricsAddr: ":9090",

		StorageDriver:       StorageDriverMemory,
		PostgresAutoMigrate: true,
		PostgresMaxConns:    25,

		StockDriver: StockDriverStore,
		RedisAddr:   "localhost:6379",

		OutboxPollInterval: time.Second,
		OutboxBatchSize:    100,
		OutboxMaxAttempts:  3,
		OutboxRetryDelay:   100 * time.Millisecond,

		IdempotencyTTL:              24 * time.Hour,
		IdempotencyCleanupInterval:  10 * time.Minute,
		IdempotencyCleanupBatchSize: 500,

		OTLPInsecure: true,
		LogLevel:     "info",
	}
}

// ConfigFromEnv накладывает переменные STOREFRONT_* поверх DefaultConfig.
// Все ошибки разбора возвращаются разом.
func ConfigFromEnv(getenv func(string) string) (Config, error) {
	cfg := DefaultConfig()
	p := envParser{getenv: getenv}

	p.str("HTTP_ADDR", &cfg.HTTPAddr)
	p.str("GRPC_ADDR", &cfg.GRPCAddr)
	p.str("METRICS_ADDR", &cfg.MetricsAddr)

	p.str("STORAGE_DRIVER", &cfg.StorageDriver)
	p.str("POSTGRES_DSN", &cfg.PostgresDSN)
	p.boolean("POSTGRES_AUTO_MIGRATE", &cfg.PostgresAutoMigrate)
	p.integer("POSTGRES_MAX_CONNS", &cfg.PostgresMaxConns)

	p.str("STOCK_DRIVER", &cfg.StockDriver)
	p.str("REDIS_ADDR", &cfg.RedisAddr)
	p.str("REDIS_PASSWORD", &cfg.RedisPassword)
	p.integer("REDIS_DB", &cfg.RedisDB)

	p.str("KAFKA_BROKERS", &cfg.KafkaBrokers)

	p.duration("OUTBOX_POLL_INTERVAL", &cfg.OutboxPollInterval)
	p.integer("OUTBOX_BATCH_SIZE", &cfg.OutboxBatchSize)
	p.integer("OUTBOX_MAX_ATTEMPTS", &cfg.OutboxMaxAttempts)
	p.duration("OUTBOX_RETRY_DELAY", &cfg.OutboxRetryDelay)

	p.duration("IDEMPOTENCY_TTL", &cfg.IdempotencyTTL)
	p.duration("IDEMPOTENCY_CLEANUP_INTERVAL", &cfg.IdempotencyCleanupInterval)
	p.integer("IDEMPOTENCY_CLEANUP_BATCH_SIZE", &cfg.IdempotencyCleanupBatchSize)

	p.str("OTLP_ENDPOINT", &cfg.OTLPEndpoint)
	p.boolean("OTLP_INSECURE", &cfg.OTLPInsecure)

	p.str("SEED_FILE", &cfg.SeedFile)
	p.str("LOG_LEVEL", &cfg.LogLevel)

	if err := errors.Join(p.errs...); err != nil {
		return cfg, err
	}
	return cfg, cfg.Validate()
}

// Validate проверяет согласованность драйверов и обязательных адресов.
func (c Config) Validate() error {
	var errs []error

	switch c.StorageDriver {
	case StorageDriverMemory:
	case StorageDriverPostgres:
		if strings.TrimSpace(c.PostgresDSN) == "" {
			errs = append(errs, errors.New("postgres dsn is required for postgres storage driver"))
		}
	default:
		errs = append(errs, fmt.Errorf("unsupported storage driver %q", c.StorageDriver))
	}

	switch c.StockDriver {
	case StockDriverStore, "":
	case StockDriverRedis:
		if strings.TrimSpace(c.RedisAddr) == "" {
			errs = append(errs, errors.New("redis address is required for redis stock driver"))
		}
	default:
		errs = append(errs, fmt.Errorf("unsupported stock driver %q", c.StockDriver))
	}

	if c.OutboxBatchSize < 0 || c.OutboxMaxAttempts < 0 || c.IdempotencyCleanupBatchSize < 0 {
		errs = append(errs, errors.New("batch sizes and attempts must be non-negative"))
	}

	return errors.Join(errs...)
}

// Brokers разбирает KafkaBrokers в список без пустых элементов.
func (c Config) Brokers() []string {
	var brokers []string
	for _, broker := range strings.Split(c.KafkaBrokers, ",") {
		if broker = strings.TrimSpace(broker); broker != "" {
			brokers = append(brokers, broker)
		}
	}
	return brokers
}

type envParser struct {
	getenv func(string) string
	errs   []error
}

func (p *envParser) lookup(name string) (string, bool) {
	v := strings.TrimSpace(p.getenv(envPrefix + name))
	return v, v != ""
}

func (p *envParser) str(name string, dst *string) {
	if v, ok := p.lookup(name); ok {
		*dst = v
	}
}

func (p *envParser) integer(name string, dst *int) {
	v, ok := p.lookup(name)
	if !ok {
		return
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		p.errs = append(p.errs, fmt.Errorf("%s%s: %w", envPrefix, name, err))
		return
	}
	*dst = n
}

func (p *envParser) boolean(name string, dst *bool) {
	v, ok := p.lookup(name)
	if !ok {
		return
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		p.errs = append(p.errs, fmt.Errorf("%s%s: %w", envPrefix, name, err))
		return
	}
	*dst = b
}

func (p *envParser) duration(name string, dst *time.Duration) {
	v, ok := p.lookup(name)
	if !ok {
		return
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		p.errs = append(p.errs, fmt.Errorf("%s%s: %w", envPrefix, name, err))
		return
	}
	*dst = d
}
