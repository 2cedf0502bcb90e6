package monitoring

import (
	"context"
	"fmt"

	prom "github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"

	"github.com/compozy/docqa/pkg/logger"
)

// Service owns the meter provider that every component records into.
type Service struct {
	meter       metric.Meter
	exporter    *prometheus.Exporter
	provider    *sdkmetric.MeterProvider
	registry    *prom.Registry
	config      *Config
	initialized bool
}

func newDisabledService(cfg *Config) *Service {
	return &Service{
		config: cfg,
		meter:  noop.NewMeterProvider().Meter("docqa"),
	}
}

// NewMonitoringService creates a monitoring service backed by a private Prometheus registry.
func NewMonitoringService(ctx context.Context, cfg *Config) (*Service, error) {
	log := logger.FromContext(ctx)
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if !cfg.Enabled {
		log.Debug("Monitoring disabled, using no-op meter")
		return newDisabledService(cfg), nil
	}
	registry := prom.NewRegistry()
	exporter, err := prometheus.New(prometheus.WithRegisterer(registry))
	if err != nil {
		return nil, fmt.Errorf("failed to initialize Prometheus exporter: %w", err)
	}
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(exporter))
	meter := provider.Meter("docqa")
	service := &Service{
		meter:       meter,
		exporter:    exporter,
		provider:    provider,
		registry:    registry,
		config:      cfg,
		initialized: true,
	}
	InitSystemMetrics(ctx, meter)
	log.Debug("Monitoring service initialized", "file", cfg.File)
	return service, nil
}

// Meter returns the OpenTelemetry meter for custom instrumentation
func (s *Service) Meter() metric.Meter {
	return s.meter
}

// IsInitialized returns whether metrics are being collected.
func (s *Service) IsInitialized() bool {
	return s.initialized
}

// SetAsGlobal installs the provider as the global OpenTelemetry meter provider.
// Component instruments are created lazily, so call this before any work runs.
func (s *Service) SetAsGlobal() {
	if s.provider != nil {
		otel.SetMeterProvider(s.provider)
	}
}

// Flush writes the current metric values to the configured file.
func (s *Service) Flush(ctx context.Context) error {
	if !s.initialized {
		return nil
	}
	if err := prom.WriteToTextfile(s.config.File, s.registry); err != nil {
		return fmt.Errorf("failed to write metrics snapshot: %w", err)
	}
	logger.FromContext(ctx).Debug("Metrics snapshot written", "file", s.config.File)
	return nil
}

// Shutdown flushes and stops the provider.
func (s *Service) Shutdown(ctx context.Context) error {
	if s.provider == nil {
		return nil
	}
	flushErr := s.Flush(ctx)
	if err := s.provider.Shutdown(ctx); err != nil {
		return err
	}
	return flushErr
}
