// Package telemetry provides OpenTelemetry instrumentation for the sync service.
package telemetry

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const (
	// SyncMetricsMeterName is the name used for the sync metrics meter
	SyncMetricsMeterName = "github.com/datamast/essync/sync"

	// ReconcileMetricsMeterName is the name used for the reconcile metrics meter
	ReconcileMetricsMeterName = "github.com/datamast/essync/reconcile"
)

// SyncMetrics holds the OpenTelemetry instruments for per-document sync metrics
type SyncMetrics struct {
	syncOutcomes metric.Int64Counter
	syncDuration metric.Float64Histogram
}

// NewSyncMetrics creates a new SyncMetrics instance with the given meter provider.
// If provider is nil, it returns nil (no-op metrics).
func NewSyncMetrics(provider metric.MeterProvider) (*SyncMetrics, error) {
	if provider == nil {
		return nil, nil
	}

	meter := provider.Meter(SyncMetricsMeterName)

	syncOutcomes, err := meter.Int64Counter(
		"essync_sync_outcomes_total",
		metric.WithDescription("Number of document synchronizations by outcome"),
		metric.WithUnit("{document}"),
	)
	if err != nil {
		return nil, err
	}

	syncDuration, err := meter.Float64Histogram(
		"essync_sync_duration_seconds",
		metric.WithDescription("Duration of single-document synchronizations in seconds"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5),
	)
	if err != nil {
		return nil, err
	}

	return &SyncMetrics{
		syncOutcomes: syncOutcomes,
		syncDuration: syncDuration,
	}, nil
}

// RecordSync records the outcome and duration of one document synchronization
func (m *SyncMetrics) RecordSync(ctx context.Context, index, outcome string, duration time.Duration) {
	if m == nil {
		return
	}

	attrs := []attribute.KeyValue{
		attribute.String("index", index),
		attribute.String("outcome", outcome),
	}

	if m.syncOutcomes != nil {
		m.syncOutcomes.Add(ctx, 1, metric.WithAttributes(attrs...))
	}
	if m.syncDuration != nil {
		m.syncDuration.Record(ctx, duration.Seconds(), metric.WithAttributes(attrs...))
	}
}

// ReconcileMetrics holds the OpenTelemetry instruments for reconcile run metrics
type ReconcileMetrics struct {
	runsTotal   metric.Int64Counter
	runDuration metric.Float64Histogram
}

// NewReconcileMetrics creates a new ReconcileMetrics instance with the given meter
// provider. If provider is nil, it returns nil (no-op metrics).
func NewReconcileMetrics(provider metric.MeterProvider) (*ReconcileMetrics, error) {
	if provider == nil {
		return nil, nil
	}

	meter := provider.Meter(ReconcileMetricsMeterName)

	runsTotal, err := meter.Int64Counter(
		"essync_reconcile_runs_total",
		metric.WithDescription("Number of reconcile runs by result"),
		metric.WithUnit("{run}"),
	)
	if err != nil {
		return nil, err
	}

	runDuration, err := meter.Float64Histogram(
		"essync_reconcile_duration_seconds",
		metric.WithDescription("Duration of reconcile runs in seconds"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(0.1, 0.5, 1, 2.5, 5, 10, 30, 60, 120, 300),
	)
	if err != nil {
		return nil, err
	}

	return &ReconcileMetrics{
		runsTotal:   runsTotal,
		runDuration: runDuration,
	}, nil
}

// RecordRun records the duration and result of one reconcile run over an index
func (m *ReconcileMetrics) RecordRun(ctx context.Context, index string, duration time.Duration, success bool) {
	if m == nil {
		return
	}

	attrs := []attribute.KeyValue{
		attribute.String("index", index),
		attribute.Bool("success", success),
	}

	if m.runsTotal != nil {
		m.runsTotal.Add(ctx, 1, metric.WithAttributes(attrs...))
	}
	if m.runDuration != nil {
		m.runDuration.Record(ctx, duration.Seconds(), metric.WithAttributes(attrs...))
	}
}
