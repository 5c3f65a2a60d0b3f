package outbox

import (
	"context"
	"fmt"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
	"github.com/vladislavdragonenkov/storefront/internal/metrics"
	"github.com/vladislavdragonenkov/storefront/internal/retry"
)

const (
	defaultPollInterval   = 1 * time.Second
	defaultBatchSize      = 100
	defaultMaxAttempts    = 3
	defaultRetryBaseDelay = 50 * time.Millisecond
	maxRetryDelay         = 5 * time.Second
)

// WorkerOptions задаёт параметры outbox worker.
type WorkerOptions struct {
	Logger         *log.Entry
	Metrics        *metrics.WorkerMetrics
	DLQPublisher   domain.OutboxPublisher
	PollInterval   time.Duration
	BatchSize      int
	MaxAttempts    int
	RetryBaseDelay time.Duration
}

// Option настраивает Worker.
type Option func(*WorkerOptions)

// WithLogger задаёт logger для воркера.
func WithLogger(logger *log.Entry) Option {
	return func(opts *WorkerOptions) {
		opts.Logger = logger
	}
}

// WithMetrics подключает prometheus-метрики воркера.
func WithMetrics(m *metrics.WorkerMetrics) Option {
	return func(opts *WorkerOptions) {
		opts.Metrics = m
	}
}

// WithDLQPublisher задаёт publisher для отправки в DLQ после исчерпания retry.
func WithDLQPublisher(publisher domain.OutboxPublisher) Option {
	return func(opts *WorkerOptions) {
		opts.DLQPublisher = publisher
	}
}

// WithPollInterval задаёт частоту опроса outbox.
func WithPollInterval(interval time.Duration) Option {
	return func(opts *WorkerOptions) {
		opts.PollInterval = interval
	}
}

// WithBatchSize задаёт размер батча из outbox.
func WithBatchSize(batchSize int) Option {
	return func(opts *WorkerOptions) {
		opts.BatchSize = batchSize
	}
}

// WithMaxAttempts задаёт число попыток публикации перед failed/DLQ.
func WithMaxAttempts(maxAttempts int) Option {
	return func(opts *WorkerOptions) {
		opts.MaxAttempts = maxAttempts
	}
}

// WithRetryBaseDelay задаёт базовый delay для exponential backoff.
func WithRetryBaseDelay(delay time.Duration) Option {
	return func(opts *WorkerOptions) {
		opts.RetryBaseDelay = delay
	}
}

// Worker доставляет события заказов и отзывов из outbox в брокер.
// Событие OrderHandoffRequested уходит этим же путём, поэтому сбой брокера
// не влияет на уже оформленный заказ.
type Worker struct {
	repo         domain.OutboxRepository
	publisher    domain.OutboxPublisher
	dlqPublisher domain.OutboxPublisher
	logger       *log.Entry
	metrics      *metrics.WorkerMetrics
	pollInterval time.Duration
	batchSize    int
	retry        retry.Config
	now          func() time.Time
}

// NewWorker создаёт outbox worker.
func NewWorker(repo domain.OutboxRepository, publisher domain.OutboxPublisher, options ...Option) *Worker {
	opts := WorkerOptions{
		PollInterval:   defaultPollInterval,
		BatchSize:      defaultBatchSize,
		MaxAttempts:    defaultMaxAttempts,
		RetryBaseDelay: defaultRetryBaseDelay,
	}
	for _, option := range options {
		option(&opts)
	}

	logger := opts.Logger
	if logger == nil {
		logger = log.WithField("component", "outbox-worker")
	}

	if opts.PollInterval <= 0 {
		opts.PollInterval = defaultPollInterval
	}
	if opts.BatchSize <= 0 {
		opts.BatchSize = defaultBatchSize
	}
	if opts.MaxAttempts <= 0 {
		opts.MaxAttempts = defaultMaxAttempts
	}
	if opts.RetryBaseDelay < 0 {
		opts.RetryBaseDelay = 0
	}

	return &Worker{
		repo:         repo,
		publisher:    publisher,
		dlqPublisher: opts.DLQPublisher,
		logger:       logger,
		metrics:      opts.Metrics,
		pollInterval: opts.PollInterval,
		batchSize:    opts.BatchSize,
		retry: retry.Config{
			MaxAttempts:   opts.MaxAttempts,
			InitialDelay:  opts.RetryBaseDelay,
			MaxDelay:      maxRetryDelay,
			BackoffFactor: 2,
		},
		now: func() time.Time { return time.Now().UTC() },
	}
}

// Run опрашивает outbox сразу и затем раз в PollInterval, пока ctx не отменён.
func (w *Worker) Run(ctx context.Context) {
	if w.repo == nil || w.publisher == nil {
		w.logger.Warn("outbox worker выключен: нет хранилища или издателя")
		return
	}

	ticker := time.NewTicker(w.pollInterval)
	defer ticker.Stop()

	for {
		w.ProcessOnce(ctx)
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// delivery итог обработки одного события.
type delivery int

const (
	delivered delivery = iota
	deadLettered
	interrupted
)

// ProcessOnce разбирает одну порцию outbox и возвращает число доставленных событий.
func (w *Worker) ProcessOnce(ctx context.Context) int {
	if ctx.Err() != nil {
		return 0
	}
	w.observeBacklog(ctx)

	batch, err := w.repo.PullPending(ctx, w.batchSize)
	if err != nil {
		w.logger.WithError(err).Warn("не удалось выбрать события из outbox")
		return 0
	}
	if len(batch) == 0 {
		return 0
	}

	sent := 0
	for _, event := range batch {
		switch w.deliver(ctx, event) {
		case delivered:
			sent++
		case interrupted:
			// необработанные события остаются pending до следующего запуска
			return sent
		}
	}

	w.observeBacklog(ctx)
	return sent
}

func (w *Worker) deliver(ctx context.Context, event domain.OutboxMessage) delivery {
	if ctx.Err() != nil {
		return interrupted
	}
	entry := w.logger.WithFields(log.Fields{
		"outbox_id":    event.ID,
		"event_type":   event.EventType,
		"aggregate_id": event.AggregateID,
	})

	attempts, err := w.publish(ctx, event)
	if err == nil {
		if err := w.repo.MarkSent(ctx, event.ID); err != nil {
			entry.WithError(err).Warn("событие доставлено, но не отмечено как sent")
		}
		return delivered
	}
	if ctx.Err() != nil {
		return interrupted
	}

	entry.WithError(err).WithField("attempts", attempts).Error("событие не доставлено, отправляем в DLQ")
	w.metrics.RecordPublish("failed")
	if dlqErr := w.sendToDLQ(ctx, NewDeadLetter(event, err, attempts, w.now()), event.CreatedAt); dlqErr != nil {
		entry.WithError(dlqErr).Warn("не удалось записать событие в DLQ")
		w.metrics.RecordPublish("dlq_failed")
	}
	if err := w.repo.MarkFailed(ctx, event.ID); err != nil {
		entry.WithError(err).Warn("не удалось отметить событие как failed")
	}
	return deadLettered
}

// publish отправляет событие с повторами и возвращает число сделанных попыток.
func (w *Worker) publish(ctx context.Context, event domain.OutboxMessage) (int, error) {
	attempts := 0
	err := retry.Do(ctx, w.retry, nil, "outbox_publish", func(ctx context.Context, _ int) error {
		attempts++
		if err := w.publisher.Publish(ctx, event); err != nil {
			w.metrics.RecordPublish("retry_error")
			return err
		}
		w.metrics.RecordPublish("sent")
		return nil
	})
	if err != nil {
		return attempts, fmt.Errorf("publish failed after %d attempts: %w", attempts, err)
	}
	return attempts, nil
}

func (w *Worker) sendToDLQ(ctx context.Context, letter DeadLetter, createdAt time.Time) error {
	if w.dlqPublisher == nil {
		return nil
	}
	msg, err := letter.Message(createdAt)
	if err != nil {
		return err
	}
	if err := w.dlqPublisher.Publish(ctx, msg); err != nil {
		return fmt.Errorf("publish to dlq: %w", err)
	}
	return nil
}

func (w *Worker) observeBacklog(ctx context.Context) {
	if w.metrics == nil {
		return
	}
	stats, err := w.repo.Stats(ctx)
	if err != nil {
		w.logger.WithError(err).Warn("не удалось снять размер backlog outbox")
		return
	}
	w.metrics.SetBacklog(stats.PendingCount, stats.OldestPendingAt, w.now())
}
