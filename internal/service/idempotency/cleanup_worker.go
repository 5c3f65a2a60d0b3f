package idempotency

import (
	"context"
	"errors"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/storefront/internal/metrics"
)

const (
	defaultCleanupInterval   = 10 * time.Minute
	defaultCleanupBatchSize  = 500
	defaultCleanupMaxBatches = 100
)

// KeyPurger удаляет просроченные ключи порциями не больше limit.
type KeyPurger interface {
	DeleteExpired(ctx context.Context, before time.Time, limit int) (int, error)
}

// CleanupConfig задаёт расписание очистки ключей оформления заказов.
type CleanupConfig struct {
	Interval  time.Duration
	BatchSize int
	// MaxBatches ограничивает один проход, остаток дочищается на следующем тике.
	MaxBatches int
}

func (c CleanupConfig) normalized() CleanupConfig {
	if c.Interval <= 0 {
		c.Interval = defaultCleanupInterval
	}
	if c.BatchSize <= 0 {
		c.BatchSize = defaultCleanupBatchSize
	}
	if c.MaxBatches <= 0 {
		c.MaxBatches = defaultCleanupMaxBatches
	}
	return c
}

// SweepResult итог одного прохода очистки.
type SweepResult struct {
	Deleted int
	Batches int
	// Truncated: проход упёрся в MaxBatches, просроченные ключи могли остаться.
	Truncated bool
}

// CleanupWorker периодически удаляет просроченные Idempotency-Key.
type CleanupWorker struct {
	purger  KeyPurger
	cfg     CleanupConfig
	logger  *log.Entry
	metrics *metrics.WorkerMetrics
	now     func() time.Time
}

// NewCleanupWorker создаёт воркер; logger и metrics могут быть nil.
func NewCleanupWorker(purger KeyPurger, cfg CleanupConfig, logger *log.Entry, m *metrics.WorkerMetrics) *CleanupWorker {
	if logger == nil {
		logger = log.WithField("worker", "idempotency-cleanup")
	}
	return &CleanupWorker{
		purger:  purger,
		cfg:     cfg.normalized(),
		logger:  logger,
		metrics: m,
		now:     func() time.Time { return time.Now().UTC() },
	}
}

// Run чистит ключи сразу и затем раз в Interval, пока ctx не отменён.
func (w *CleanupWorker) Run(ctx context.Context) {
	if w.purger == nil {
		w.logger.Warn("очистка ключей идемпотентности отключена: хранилище не задано")
		return
	}

	ticker := time.NewTicker(w.cfg.Interval)
	defer ticker.Stop()

	for {
		w.tick(ctx)
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func (w *CleanupWorker) tick(ctx context.Context) {
	res, err := w.Sweep(ctx, w.now())
	switch {
	case errors.Is(err, context.Canceled):
		return
	case err != nil:
		w.metrics.RecordCleanupRun("error")
		w.logger.WithError(err).WithField("deleted", res.Deleted).Warn("очистка ключей идемпотентности не удалась")
		return
	}

	w.metrics.RecordCleanupRun("ok")
	entry := w.logger.WithFields(log.Fields{"deleted": res.Deleted, "batches": res.Batches})
	switch {
	case res.Truncated:
		entry.Info("очистка ключей прервана по лимиту порций, продолжим на следующем тике")
	case res.Deleted > 0:
		entry.Info("просроченные ключи идемпотентности удалены")
	}
}

// Sweep удаляет ключи с expires_at <= before, пока порции заполнены целиком.
func (w *CleanupWorker) Sweep(ctx context.Context, before time.Time) (SweepResult, error) {
	if before.IsZero() {
		before = w.now()
	}

	var res SweepResult
	for res.Batches < w.cfg.MaxBatches {
		if err := ctx.Err(); err != nil {
			return res, err
		}

		n, err := w.purger.DeleteExpired(ctx, before, w.cfg.BatchSize)
		if err != nil {
			return res, err
		}
		res.Batches++
		res.Deleted += n
		w.metrics.RecordExpiredKeysDeleted(n)

		if n < w.cfg.BatchSize {
			return res, nil
		}
	}
	res.Truncated = true
	return res, nil
}
