package observability

import (
	"context"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/snow-ghost/skillforge/pkg/logging"
	"github.com/snow-ghost/skillforge/pkg/metrics"
	"github.com/snow-ghost/skillforge/pkg/tracing"
)

// Manager bundles the logger, metrics and tracer shared by runtimes and agents.
type Manager struct {
	metrics *metrics.PrometheusMetrics
	tracer  *tracing.Tracer
	logger  *zap.Logger
}

// Config holds observability configuration
type Config struct {
	Logging        logging.Config `koanf:"log"`
	Tracing        tracing.Config `koanf:"tracing"`
	MetricsEnabled bool           `koanf:"metrics_enabled"`
}

// NewManager creates a new observability manager. Metrics are registered on reg
// when enabled.
func NewManager(config Config, reg prometheus.Registerer) (*Manager, error) {
	logger, err := logging.NewLogger(config.Logging)
	if err != nil {
		return nil, err
	}

	tracer, err := tracing.NewTracer(config.Tracing)
	if err != nil {
		return nil, err
	}

	var m *metrics.PrometheusMetrics
	if config.MetricsEnabled {
		m = metrics.NewPrometheusMetrics(reg)
	}

	return &Manager{metrics: m, tracer: tracer, logger: logger}, nil
}

// New assembles a manager from existing parts. Nil parts become no-ops.
func New(logger *zap.Logger, m *metrics.PrometheusMetrics, tracer *tracing.Tracer) *Manager {
	return &Manager{
		metrics: m,
		tracer:  tracing.OrNop(tracer),
		logger:  logging.OrNop(logger),
	}
}

// Nop returns a manager that records nothing.
func Nop() *Manager {
	return New(nil, nil, nil)
}

// OrNop returns m, or a no-op manager when m is nil.
func OrNop(m *Manager) *Manager {
	if m == nil {
		return Nop()
	}
	return m
}

// Metrics returns the metrics instance; it may be nil, which is safe to use.
func (m *Manager) Metrics() *metrics.PrometheusMetrics {
	return m.metrics
}

// Tracer returns the tracer instance
func (m *Manager) Tracer() *tracing.Tracer {
	return m.tracer
}

// Logger returns the logger instance
func (m *Manager) Logger() *zap.Logger {
	return m.logger
}

// Named returns a copy whose logger carries the given name.
func (m *Manager) Named(name string) *Manager {
	return &Manager{metrics: m.metrics, tracer: m.tracer, logger: m.logger.Named(name)}
}

// Shutdown flushes the tracer and the logger.
func (m *Manager) Shutdown(ctx context.Context) error {
	err := m.tracer.Shutdown(ctx)
	// Sync on stderr/stdout returns EINVAL on some platforms; ignore it.
	_ = m.logger.Sync()
	return err
}
