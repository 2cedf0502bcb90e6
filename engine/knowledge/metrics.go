package knowledge

import (
	"context"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	monitoringmetrics "github.com/compozy/docqa/engine/infra/monitoring/metrics"
)

const subsystem = "knowledge"

var (
	metricsOnce           sync.Once
	metricsMu             sync.Mutex
	metricsInitErr        error
	queryLatencyHist      metric.Float64Histogram
	retrievalEmptyCounter metric.Int64Counter
	answerCounter         metric.Int64Counter
)

// RecordQueryLatency records one question answering round trip.
func RecordQueryLatency(ctx context.Context, mode string, d time.Duration) {
	if err := ensureMetrics(); err != nil || queryLatencyHist == nil {
		return
	}
	queryLatencyHist.Record(ctx, d.Seconds(), metric.WithAttributes(attribute.String("mode", mode)))
}

// RecordRetrievalEmpty counts retrievals that returned no chunks.
func RecordRetrievalEmpty(ctx context.Context, mode string) {
	if err := ensureMetrics(); err != nil || retrievalEmptyCounter == nil {
		return
	}
	retrievalEmptyCounter.Add(ctx, 1, metric.WithAttributes(attribute.String("mode", mode)))
}

// RecordAnswer counts answers by whether the documents contained the information.
func RecordAnswer(ctx context.Context, mode string, found bool) {
	if err := ensureMetrics(); err != nil || answerCounter == nil {
		return
	}
	answerCounter.Add(ctx, 1, metric.WithAttributes(
		attribute.String("mode", mode),
		attribute.Bool("found", found),
	))
}

func ResetMetricsForTesting() {
	metricsMu.Lock()
	metricsOnce = sync.Once{}
	metricsInitErr = nil
	queryLatencyHist = nil
	retrievalEmptyCounter = nil
	answerCounter = nil
	metricsMu.Unlock()
}

func ensureMetrics() error {
	metricsOnce.Do(func() {
		meter := otel.GetMeterProvider().Meter("docqa.knowledge")
		if err := initLatencyMetrics(meter); err != nil {
			metricsInitErr = err
			return
		}
		if err := initAnswerMetrics(meter); err != nil {
			metricsInitErr = err
		}
	})
	return metricsInitErr
}

func initLatencyMetrics(meter metric.Meter) error {
	var err error
	queryLatencyHist, err = meter.Float64Histogram(
		monitoringmetrics.MetricNameWithSubsystem(subsystem, "query_latency_seconds"),
		metric.WithDescription("Latency of question answering requests"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(monitoringmetrics.LatencyBuckets...),
	)
	return err
}

func initAnswerMetrics(meter metric.Meter) error {
	var err error
	retrievalEmptyCounter, err = meter.Int64Counter(
		monitoringmetrics.MetricNameWithSubsystem(subsystem, "retrieval_empty_total"),
		metric.WithDescription("Number of retrievals that returned no chunks"),
		metric.WithUnit("1"),
	)
	if err != nil {
		return err
	}
	answerCounter, err = meter.Int64Counter(
		monitoringmetrics.MetricNameWithSubsystem(subsystem, "answers_total"),
		metric.WithDescription("Number of synthesized answers by outcome"),
		metric.WithUnit("1"),
	)
	return err
}
