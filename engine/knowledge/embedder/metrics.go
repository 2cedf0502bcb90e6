package embedder

import (
	"context"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	monitoringmetrics "github.com/compozy/docqa/engine/infra/monitoring/metrics"
)

var (
	metricsOnce    sync.Once
	metricsInitErr error
	requestLatency metric.Float64Histogram
	textsCounter   metric.Int64Counter
	tokensCounter  metric.Int64Counter
	cacheCounter   metric.Int64Counter
	errorCounter   metric.Int64Counter
)

func ensureMetrics() error {
	metricsOnce.Do(func() {
		meter := otel.GetMeterProvider().Meter("docqa.embedder")
		var err error
		if requestLatency, err = meter.Float64Histogram(
			monitoringmetrics.MetricNameWithSubsystem("embedder", "request_seconds"),
			metric.WithDescription("Latency of embedding provider calls"),
			metric.WithUnit("s"),
			metric.WithExplicitBucketBoundaries(monitoringmetrics.LatencyBuckets...),
		); err != nil {
			metricsInitErr = err
			return
		}
		if textsCounter, err = meter.Int64Counter(
			monitoringmetrics.MetricNameWithSubsystem("embedder", "texts_total"),
			metric.WithDescription("Texts sent to the embedding provider"),
		); err != nil {
			metricsInitErr = err
			return
		}
		if tokensCounter, err = meter.Int64Counter(
			monitoringmetrics.MetricNameWithSubsystem("embedder", "tokens_total"),
			metric.WithDescription("Estimated tokens sent to the embedding provider"),
		); err != nil {
			metricsInitErr = err
			return
		}
		if cacheCounter, err = meter.Int64Counter(
			monitoringmetrics.MetricNameWithSubsystem("embedder", "cache_lookups_total"),
			metric.WithDescription("Embedding cache lookups by outcome"),
		); err != nil {
			metricsInitErr = err
			return
		}
		errorCounter, metricsInitErr = meter.Int64Counter(
			monitoringmetrics.MetricNameWithSubsystem("embedder", "errors_total"),
			metric.WithDescription("Failed embedding provider calls"),
		)
	})
	return metricsInitErr
}

func recordRequest(ctx context.Context, provider Provider, model string, texts int, tokens int, d time.Duration) {
	if ensureMetrics() != nil {
		return
	}
	attrs := metric.WithAttributes(attribute.String("provider", string(provider)), attribute.String("model", model))
	requestLatency.Record(ctx, d.Seconds(), attrs)
	textsCounter.Add(ctx, int64(texts), attrs)
	if tokens > 0 {
		tokensCounter.Add(ctx, int64(tokens), attrs)
	}
}

func recordCache(ctx context.Context, provider Provider, hits int, misses int) {
	if ensureMetrics() != nil {
		return
	}
	if hits > 0 {
		cacheCounter.Add(ctx, int64(hits), metric.WithAttributes(
			attribute.String("provider", string(provider)),
			attribute.String("outcome", "hit"),
		))
	}
	if misses > 0 {
		cacheCounter.Add(ctx, int64(misses), metric.WithAttributes(
			attribute.String("provider", string(provider)),
			attribute.String("outcome", "miss"),
		))
	}
}

func recordError(ctx context.Context, provider Provider, model string) {
	if ensureMetrics() != nil {
		return
	}
	errorCounter.Add(ctx, 1, metric.WithAttributes(
		attribute.String("provider", string(provider)),
		attribute.String("model", model),
	))
}
