package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	dto "github.com/prometheus/client_model/go"
)

func TestNewPlacementMetrics_RegistersAllCollectors(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewPlacementMetricsWithRegisterer(reg)

	m.RecordPlaced()
	m.RecordFailed(FailureOutOfStock)
	m.RecordTransition("pending", "processing")
	m.RecordReview("created")

	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("gather: %v", err)
	}
	names := make(map[string]bool, len(families))
	for _, family := range families {
		names[family.GetName()] = true
	}
	for _, want := range []string{
		"storefront_orders_placed_total",
		"storefront_order_placement_failed_total",
		"storefront_order_transitions_total",
		"storefront_reviews_total",
		"storefront_placements_in_flight",
	} {
		if !names[want] {
			t.Errorf("expected metric %s to be registered", want)
		}
	}
}

func TestNewPlacementMetrics_ReusesAlreadyRegistered(t *testing.T) {
	reg := prometheus.NewRegistry()
	first := NewPlacementMetricsWithRegisterer(reg)
	second := NewPlacementMetricsWithRegisterer(reg)

	first.RecordPlaced()
	second.RecordPlaced()

	if got := testutil.ToFloat64(first.placed); got != 2 {
		t.Fatalf("expected shared counter value 2, got %f", got)
	}
}

func TestPlacementInFlightGauge(t *testing.T) {
	m := NewPlacementMetricsWithRegisterer(prometheus.NewRegistry())

	m.PlacementStarted()
	m.PlacementStarted()
	m.PlacementFinished(10 * time.Millisecond)

	gauge := &dto.Metric{}
	if err := m.inFlight.Write(gauge); err != nil {
		t.Fatalf("write gauge: %v", err)
	}
	if gauge.Gauge.GetValue() != 1 {
		t.Fatalf("expected 1 placement in flight, got %f", gauge.Gauge.GetValue())
	}
}

func TestPlacementFailuresByReason(t *testing.T) {
	m := NewPlacementMetricsWithRegisterer(prometheus.NewRegistry())

	m.RecordFailed(FailureOutOfStock)
	m.RecordFailed(FailureOutOfStock)
	m.RecordFailed(FailurePersistence)
	m.RecordCompensation(3)
	m.RecordCompensation(0)

	if got := testutil.ToFloat64(m.failed.WithLabelValues(FailureOutOfStock)); got != 2 {
		t.Fatalf("expected 2 out_of_stock failures, got %f", got)
	}
	if got := testutil.ToFloat64(m.compensations); got != 3 {
		t.Fatalf("expected 3 compensations, got %f", got)
	}
}

func TestNilPlacementMetricsIsSafe(t *testing.T) {
	var m *PlacementMetrics

	m.PlacementStarted()
	m.PlacementFinished(time.Second)
	m.RecordPlaced()
	m.RecordFailed(FailureValidation)
	m.RecordCompensation(1)
	m.RecordTotalMismatch()
	m.RecordStatsFailure()
	m.RecordRestockFailure()
	m.RecordStepDuration("reserve", time.Millisecond)
	m.RecordTransition("a", "b")
	m.RecordReview("created")
	m.RecordTimelineEvent()
	m.RecordOutboxEvent()
}
