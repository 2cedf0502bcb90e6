package postgres

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/jackc/pgx/v5/pgxpool"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const (
	defaultPoolLabel  = "docqa"
	postgresMeterName = "docqa.postgres"
)

var (
	postgresMetricsOnce      sync.Once
	postgresMetricsErr       error
	postgresConnectionsOpen  metric.Int64ObservableGauge
	postgresConnectionsInUse metric.Int64ObservableGauge
	postgresConnectionsIdle  metric.Int64ObservableGauge
	postgresMaxConns         metric.Int64ObservableGauge
	postgresPools            sync.Map
)

// poolMetrics exposes pool statistics through asynchronous gauges.
type poolMetrics struct {
	label string
	pool  atomic.Pointer[pgxpool.Pool]
}

func newPoolMetrics(cfg *Config) (*poolMetrics, error) {
	if err := ensurePostgresMetrics(); err != nil {
		return nil, fmt.Errorf("postgres: init metrics: %w", err)
	}
	label := defaultPoolLabel
	if cfg != nil && cfg.Label != "" {
		label = cfg.Label
	}
	return &poolMetrics{label: label}, nil
}

func ensurePostgresMetrics() error {
	postgresMetricsOnce.Do(func() {
		meter := otel.GetMeterProvider().Meter(postgresMeterName)
		if postgresMetricsErr = initPostgresGauges(meter); postgresMetricsErr != nil {
			return
		}
		postgresMetricsErr = registerPostgresCallback(meter)
	})
	return postgresMetricsErr
}

func initPostgresGauges(meter metric.Meter) error {
	var err error
	postgresConnectionsOpen, err = meter.Int64ObservableGauge(
		"docqa_postgres_connections_open",
		metric.WithDescription("Number of open Postgres connections"),
	)
	if err != nil {
		return err
	}
	postgresConnectionsInUse, err = meter.Int64ObservableGauge(
		"docqa_postgres_connections_in_use",
		metric.WithDescription("Number of Postgres connections currently in use"),
	)
	if err != nil {
		return err
	}
	postgresConnectionsIdle, err = meter.Int64ObservableGauge(
		"docqa_postgres_connections_idle",
		metric.WithDescription("Number of idle Postgres connections"),
	)
	if err != nil {
		return err
	}
	postgresMaxConns, err = meter.Int64ObservableGauge(
		"docqa_postgres_max_connections",
		metric.WithDescription("Configured Postgres connection pool size"),
	)
	return err
}

func registerPostgresCallback(meter metric.Meter) error {
	_, err := meter.RegisterCallback(
		func(_ context.Context, observer metric.Observer) error {
			postgresPools.Range(func(_, value any) bool {
				pm, ok := value.(*poolMetrics)
				if !ok || pm == nil {
					return true
				}
				pool := pm.pool.Load()
				if pool == nil {
					return true
				}
				stats := pool.Stat()
				attrs := metric.WithAttributes(attribute.String("pool", pm.label))
				observer.ObserveInt64(postgresConnectionsOpen, int64(stats.TotalConns()), attrs)
				observer.ObserveInt64(postgresConnectionsInUse, int64(stats.AcquiredConns()), attrs)
				observer.ObserveInt64(postgresConnectionsIdle, int64(stats.IdleConns()), attrs)
				observer.ObserveInt64(postgresMaxConns, int64(stats.MaxConns()), attrs)
				return true
			})
			return nil
		},
		postgresConnectionsOpen,
		postgresConnectionsInUse,
		postgresConnectionsIdle,
		postgresMaxConns,
	)
	return err
}

func (p *poolMetrics) attach(pool *pgxpool.Pool) {
	if p == nil || pool == nil {
		return
	}
	p.pool.Store(pool)
	postgresPools.Store(p, p)
}

func (p *poolMetrics) unregister() {
	if p == nil {
		return
	}
	postgresPools.Delete(p)
	p.pool.Store(nil)
}
