package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Причины отказа в оформлении заказа для метки reason.
const (
	FailureOutOfStock   = "out_of_stock"
	FailureNotFound     = "product_not_found"
	FailureValidation   = "validation"
	FailureUserNotFound = "user_not_found"
	FailurePersistence  = "persistence"
	// FailureInternal: сбой инфраструктуры (хранилище, таймаут), а не запрос покупателя.
	FailureInternal = "internal"
)

// PlacementMetrics содержит метрики оформления и жизненного цикла заказов.
// Все методы безопасны для nil-получателя: сервисы работают и без метрик.
type PlacementMetrics struct {
	placed         prometheus.Counter
	failed         *prometheus.CounterVec
	compensations  prometheus.Counter
	totalMismatch  prometheus.Counter
	statsFailures  prometheus.Counter
	restockFailure prometheus.Counter

	placementDuration prometheus.Histogram
	stepDuration      *prometheus.HistogramVec

	transitions *prometheus.CounterVec
	reviews     *prometheus.CounterVec

	timelineEvents prometheus.Counter
	outboxEvents   prometheus.Counter

	inFlight prometheus.Gauge
}

// NewPlacementMetrics регистрирует метрики в DefaultRegisterer.
func NewPlacementMetrics() *PlacementMetrics {
	return NewPlacementMetricsWithRegisterer(prometheus.DefaultRegisterer)
}

// NewPlacementMetricsWithRegisterer регистрирует метрики в переданном реестре.
func NewPlacementMetricsWithRegisterer(registerer prometheus.Registerer) *PlacementMetrics {
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}

	return &PlacementMetrics{
		placed: registerCounter(registerer, prometheus.CounterOpts{
			Name: "storefront_orders_placed_total",
			Help: "Total number of orders placed successfully",
		}),
		failed: registerCounterVec(registerer, prometheus.CounterOpts{
			Name: "storefront_order_placement_failed_total",
			Help: "Total number of rejected order placements by reason",
		}, []string{"reason"}),
		compensations: registerCounter(registerer, prometheus.CounterOpts{
			Name: "storefront_stock_compensations_total",
			Help: "Total number of stock reservations released by compensation",
		}),
		totalMismatch: registerCounter(registerer, prometheus.CounterOpts{
			Name: "storefront_client_total_mismatch_total",
			Help: "Total number of orders where client total differed from server total",
		}),
		statsFailures: registerCounter(registerer, prometheus.CounterOpts{
			Name: "storefront_user_stats_failures_total",
			Help: "Total number of failed advisory user stats updates",
		}),
		restockFailure: registerCounter(registerer, prometheus.CounterOpts{
			Name: "storefront_restock_failures_total",
			Help: "Total number of cancellation restocks that failed",
		}),
		placementDuration: registerHistogram(registerer, prometheus.HistogramOpts{
			Name:    "storefront_order_placement_duration_seconds",
			Help:    "Duration of order placement in seconds",
			Buckets: prometheus.DefBuckets,
		}),
		stepDuration: registerHistogramVec(registerer, prometheus.HistogramOpts{
			Name:    "storefront_placement_step_duration_seconds",
			Help:    "Duration of individual placement steps in seconds",
			Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0, 2.5, 5.0},
		}, []string{"step"}),
		transitions: registerCounterVec(registerer, prometheus.CounterOpts{
			Name: "storefront_order_transitions_total",
			Help: "Total number of applied order status transitions",
		}, []string{"from", "to"}),
		reviews: registerCounterVec(registerer, prometheus.CounterOpts{
			Name: "storefront_reviews_total",
			Help: "Total number of review operations by outcome",
		}, []string{"outcome"}),
		timelineEvents: registerCounter(registerer, prometheus.CounterOpts{
			Name: "storefront_timeline_events_total",
			Help: "Total number of timeline events recorded",
		}),
		outboxEvents: registerCounter(registerer, prometheus.CounterOpts{
			Name: "storefront_outbox_events_total",
			Help: "Total number of events enqueued to outbox",
		}),
		inFlight: registerGauge(registerer, prometheus.GaugeOpts{
			Name: "storefront_placements_in_flight",
			Help: "Number of order placements currently running",
		}),
	}
}

// PlacementStarted увеличивает количество выполняемых оформлений.
func (m *PlacementMetrics) PlacementStarted() {
	if m == nil {
		return
	}
	m.inFlight.Inc()
}

// PlacementFinished фиксирует длительность и уменьшает количество выполняемых оформлений.
func (m *PlacementMetrics) PlacementFinished(duration time.Duration) {
	if m == nil {
		return
	}
	m.inFlight.Dec()
	m.placementDuration.Observe(duration.Seconds())
}

// RecordPlaced увеличивает счётчик оформленных заказов.
func (m *PlacementMetrics) RecordPlaced() {
	if m == nil {
		return
	}
	m.placed.Inc()
}

// RecordFailed увеличивает счётчик отказов с причиной.
func (m *PlacementMetrics) RecordFailed(reason string) {
	if m == nil {
		return
	}
	m.failed.WithLabelValues(reason).Inc()
}

// RecordCompensation считает снятые компенсацией резервы.
func (m *PlacementMetrics) RecordCompensation(lines int) {
	if m == nil || lines <= 0 {
		return
	}
	m.compensations.Add(float64(lines))
}

func (m *PlacementMetrics) RecordTotalMismatch() {
	if m == nil {
		return
	}
	m.totalMismatch.Inc()
}

func (m *PlacementMetrics) RecordStatsFailure() {
	if m == nil {
		return
	}
	m.statsFailures.Inc()
}

func (m *PlacementMetrics) RecordRestockFailure() {
	if m == nil {
		return
	}
	m.restockFailure.Inc()
}

// RecordStepDuration записывает время выполнения шага оформления.
func (m *PlacementMetrics) RecordStepDuration(step string, duration time.Duration) {
	if m == nil {
		return
	}
	m.stepDuration.WithLabelValues(step).Observe(duration.Seconds())
}

// RecordTransition считает переходы статусов.
func (m *PlacementMetrics) RecordTransition(from, to string) {
	if m == nil {
		return
	}
	m.transitions.WithLabelValues(from, to).Inc()
}

// RecordReview считает операции с отзывами: created, duplicate, rejected_not_delivered, moderated.
func (m *PlacementMetrics) RecordReview(outcome string) {
	if m == nil {
		return
	}
	m.reviews.WithLabelValues(outcome).Inc()
}

// RecordTimelineEvent увеличивает счётчик событий timeline.
func (m *PlacementMetrics) RecordTimelineEvent() {
	if m == nil {
		return
	}
	m.timelineEvents.Inc()
}

// RecordOutboxEvent увеличивает счётчик событий outbox.
func (m *PlacementMetrics) RecordOutboxEvent() {
	if m == nil {
		return
	}
	m.outboxEvents.Inc()
}
