package vectordb

import (
	"context"
	"strings"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	monitoringmetrics "github.com/compozy/docqa/engine/infra/monitoring/metrics"
)

const labelUnknownValue = "unknown"

var (
	vectorMetricsOnce   sync.Once
	vectorMetricsErr    error
	vectorSearchLatency metric.Float64Histogram
	vectorResultsCount  metric.Float64Histogram
	vectorTopScore      metric.Float64Histogram
	vectorErrorsTotal   metric.Int64Counter
)

// ensureVectorMetrics lazily initializes the store instruments.
func ensureVectorMetrics() error {
	vectorMetricsOnce.Do(func() {
		meter := otel.GetMeterProvider().Meter("docqa.knowledge.vector")
		if err := initVectorHistograms(meter); err != nil {
			vectorMetricsErr = err
			return
		}
		vectorErrorsTotal, vectorMetricsErr = meter.Int64Counter(
			monitoringmetrics.MetricNameWithSubsystem("vectordb", "store_errors_total"),
			metric.WithDescription("Chunk store operation errors"),
		)
	})
	return vectorMetricsErr
}

func initVectorHistograms(meter metric.Meter) error {
	var err error
	vectorSearchLatency, err = meter.Float64Histogram(
		monitoringmetrics.MetricNameWithSubsystem("vectordb", "hybrid_search_seconds"),
		metric.WithDescription("Hybrid search latency"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(monitoringmetrics.LatencyBuckets...),
	)
	if err != nil {
		return err
	}
	vectorResultsCount, err = meter.Float64Histogram(
		monitoringmetrics.MetricNameWithSubsystem("vectordb", "results_per_search"),
		metric.WithDescription("Number of results returned per search"),
		metric.WithExplicitBucketBoundaries(monitoringmetrics.CountBuckets...),
	)
	if err != nil {
		return err
	}
	vectorTopScore, err = meter.Float64Histogram(
		monitoringmetrics.MetricNameWithSubsystem("vectordb", "top_score"),
		metric.WithDescription("Score of the best ranked result"),
		metric.WithExplicitBucketBoundaries(0, 0.1, 0.2, 0.3, 0.4, 0.5, 0.6, 0.7, 0.8, 0.9, 1.0),
	)
	return err
}

// recordSearch captures latency, result counts, and the best score for a search.
func recordSearch(ctx context.Context, backend string, topK int, duration time.Duration, results []Match) {
	if err := ensureVectorMetrics(); err != nil {
		return
	}
	labels := metric.WithAttributes(
		attribute.String("backend", sanitizeLabel(backend)),
		attribute.Int("top_k", topK),
	)
	vectorSearchLatency.Record(ctx, duration.Seconds(), labels)
	vectorResultsCount.Record(ctx, float64(len(results)), labels)
	if len(results) > 0 {
		vectorTopScore.Record(ctx, results[0].Score, labels)
	}
}

// recordStoreError increments the error counter for operation.
func recordStoreError(ctx context.Context, operation string) {
	if err := ensureVectorMetrics(); err != nil || vectorErrorsTotal == nil {
		return
	}
	vectorErrorsTotal.Add(ctx, 1, metric.WithAttributes(
		attribute.String("operation", sanitizeLabel(operation)),
	))
}

func sanitizeLabel(value string) string {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return labelUnknownValue
	}
	return strings.ToLower(trimmed)
}
