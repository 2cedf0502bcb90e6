package ingest

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
	metricsOnce        sync.Once
	metricsInitErr     error
	pipelineLatency    metric.Float64Histogram
	documentsCounter   metric.Int64Counter
	chunksCounter      metric.Int64Counter
	batchSizeHistogram metric.Float64Histogram
	errorsCounter      metric.Int64Counter
)

func ensureMetrics() error {
	metricsOnce.Do(func() {
		meter := otel.GetMeterProvider().Meter("docqa.knowledge.ingest")
		metricsInitErr = initMetrics(meter)
	})
	return metricsInitErr
}

func initMetrics(meter metric.Meter) error {
	var err error
	if pipelineLatency, err = meter.Float64Histogram(
		monitoringmetrics.MetricNameWithSubsystem("ingest", "duration_seconds"),
		metric.WithDescription("Latency of ingestion runs"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(.05, .1, .25, .5, 1, 2.5, 5, 10, 30, 60, 120),
	); err != nil {
		return err
	}
	if documentsCounter, err = meter.Int64Counter(
		monitoringmetrics.MetricNameWithSubsystem("ingest", "documents_total"),
		metric.WithDescription("Documents ingested"),
	); err != nil {
		return err
	}
	if chunksCounter, err = meter.Int64Counter(
		monitoringmetrics.MetricNameWithSubsystem("ingest", "chunks_total"),
		metric.WithDescription("Chunks processed by outcome"),
	); err != nil {
		return err
	}
	if batchSizeHistogram, err = meter.Float64Histogram(
		monitoringmetrics.MetricNameWithSubsystem("ingest", "embedding_batch_size"),
		metric.WithDescription("Texts per embedding batch"),
		metric.WithExplicitBucketBoundaries(monitoringmetrics.CountBuckets...),
	); err != nil {
		return err
	}
	errorsCounter, err = meter.Int64Counter(
		monitoringmetrics.MetricNameWithSubsystem("ingest", "errors_total"),
		metric.WithDescription("Ingestion failures by stage"),
	)
	return err
}

func recordRun(ctx context.Context, d time.Duration, inserted, duplicates int) {
	if ensureMetrics() != nil {
		return
	}
	pipelineLatency.Record(ctx, d.Seconds())
	documentsCounter.Add(ctx, 1)
	chunksCounter.Add(ctx, int64(inserted), metric.WithAttributes(attribute.String("outcome", "inserted")))
	chunksCounter.Add(ctx, int64(duplicates), metric.WithAttributes(attribute.String("outcome", "duplicate")))
}

func recordBatch(ctx context.Context, size int) {
	if ensureMetrics() != nil {
		return
	}
	batchSizeHistogram.Record(ctx, float64(size))
}

func recordFailure(ctx context.Context, stage string) {
	if ensureMetrics() != nil {
		return
	}
	errorsCounter.Add(ctx, 1, metric.WithAttributes(attribute.String("stage", stage)))
}
