package fairlock

import (
	"context"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

func TestPrometheusMetrics_RegisteredCounters(t *testing.T) {
	registry := prometheus.NewRegistry()
	m := NewPrometheusMetrics(registry)

	m.Increment(MetricAcquireSuccess, "resource", "shorts")
	m.Increment(MetricAcquireSuccess, "resource", "shorts")
	m.Increment(MetricAcquireFailed, "resource", "shorts")

	families, err := registry.Gather()
	if err != nil {
		t.Fatalf("gather failed: %v", err)
	}

	found := map[string]float64{}
	for _, mf := range families {
		for _, metric := range mf.GetMetric() {
			if c := metric.GetCounter(); c != nil {
				found[mf.GetName()] += c.GetValue()
			}
		}
	}

	if found["fairlock_acquire_success_total"] != 2 {
		t.Errorf("success counter = %v, want 2", found["fairlock_acquire_success_total"])
	}
	if found["fairlock_acquire_failed_total"] != 1 {
		t.Errorf("failed counter = %v, want 1", found["fairlock_acquire_failed_total"])
	}
}

func TestPrometheusMetrics_GaugeAndTiming(t *testing.T) {
	registry := prometheus.NewRegistry()
	m := NewPrometheusMetrics(registry)

	m.Gauge(MetricFifoPosition, 3, "resource", "shorts")
	m.Timing(MetricAcquireDuration, 150*time.Millisecond, "resource", "shorts")
	m.Timing(MetricFifoWaitTime, 2*time.Second, "resource", "shorts")

	families, err := registry.Gather()
	if err != nil {
		t.Fatalf("gather failed: %v", err)
	}

	names := map[string]bool{}
	for _, mf := range families {
		names[mf.GetName()] = true
	}

	for _, want := range []string{
		"fairlock_fifo_position",
		"fairlock_acquire_duration_seconds",
		"fairlock_fifo_wait_duration_seconds",
	} {
		if !names[want] {
			t.Errorf("metric %s should have been gathered, got %v", want, names)
		}
	}
}

func TestPrometheusMetrics_EndToEnd(t *testing.T) {
	registry := prometheus.NewRegistry()
	m := NewPrometheusMetrics(registry)

	f := newFleet(t, 1, 0)
	locker, err := NewLockerWithInstances(f.instances, fastConfig(), nil, m)
	if err != nil {
		t.Fatalf("failed to build locker: %v", err)
	}

	ctx := context.Background()
	lock, err := locker.Lock(ctx, "shorts", 10*time.Second)
	if err != nil {
		t.Fatalf("acquisition failed: %v", err)
	}
	locker.Unlock(ctx, lock)

	families, err := registry.Gather()
	if err != nil {
		t.Fatalf("gather failed: %v", err)
	}
	if len(families) == 0 {
		t.Error("a real acquisition should have produced samples")
	}
}

func TestPrometheusMetrics_GetRegistry(t *testing.T) {
	registry := prometheus.NewRegistry()
	m := NewPrometheusMetrics(registry)
	if m.GetRegistry() != registry {
		t.Error("GetRegistry should return the registry passed in")
	}
}
