package observability

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.uber.org/zap"
)

const metricNamespace = "shipping-api"

// Metrics bundles the service-level counters. Instruments that fail to
// register degrade to no-ops; quoting never depends on telemetry.
type Metrics struct {
	quotes           metric.Int64Counter
	quotesEnabled    bool
	fallbacks        metric.Int64Counter
	fallbacksEnabled bool
	reloads          metric.Int64Counter
	reloadsEnabled   bool
	verifies         metric.Int64Counter
	verifiesEnabled  bool
}

// NewMetrics registers the counters on the given meter, falling back to the
// global meter provider when none is supplied.
func NewMetrics(meter metric.Meter, logger *zap.Logger) *Metrics {
	if logger == nil {
		logger = zap.NewNop()
	}
	if meter == nil {
		meter = otel.GetMeterProvider().Meter(metricNamespace)
	}

	m := &Metrics{}

	quotes, err := meter.Int64Counter(
		"shipping.quotes.emitted",
		metric.WithDescription("Count of shipping quotes returned to checkout"),
	)
	if err != nil {
		logger.Warn("observability: unable to register quotes metric", zap.Error(err))
	} else {
		m.quotes = quotes
		m.quotesEnabled = true
	}

	fallbacks, err := meter.Int64Counter(
		"shipping.quotes.fallbacks",
		metric.WithDescription("Count of requests served by the international fallback quote"),
	)
	if err != nil {
		logger.Warn("observability: unable to register fallback metric", zap.Error(err))
	} else {
		m.fallbacks = fallbacks
		m.fallbacksEnabled = true
	}

	reloads, err := meter.Int64Counter(
		"shipping.registry.reloads",
		metric.WithDescription("Count of carrier registry reload attempts by outcome"),
	)
	if err != nil {
		logger.Warn("observability: unable to register reload metric", zap.Error(err))
	} else {
		m.reloads = reloads
		m.reloadsEnabled = true
	}

	verifies, err := meter.Int64Counter(
		"shipping.auth.verifications",
		metric.WithDescription("Count of signed-request verification attempts by outcome"),
	)
	if err != nil {
		logger.Warn("observability: unable to register verification metric", zap.Error(err))
	} else {
		m.verifies = verifies
		m.verifiesEnabled = true
	}

	return m
}

// RecordQuotes counts quotes emitted for one request, attributed by tier.
func (m *Metrics) RecordQuotes(ctx context.Context, tier string, count int) {
	if m == nil || !m.quotesEnabled || count <= 0 {
		return
	}
	m.quotes.Add(ctx, int64(count), metric.WithAttributes(attribute.String("tier", tier)))
}

// RecordFallback counts a request that fell through to the default quote.
func (m *Metrics) RecordFallback(ctx context.Context) {
	if m == nil || !m.fallbacksEnabled {
		return
	}
	m.fallbacks.Add(ctx, 1)
}

// RecordVerification counts a signed-request verification attempt. The
// signature matches the auth package's MetricsRecorder contract.
func (m *Metrics) RecordVerification(ctx context.Context, kind string, success bool, reason string, _ time.Duration) {
	if m == nil || !m.verifiesEnabled {
		return
	}
	outcome := "success"
	if !success {
		outcome = "failure"
	}
	m.verifies.Add(ctx, 1, metric.WithAttributes(
		attribute.String("kind", kind),
		attribute.String("outcome", outcome),
		attribute.String("reason", reason),
	))
}

// RecordRegistryReload counts a registry reload attempt.
func (m *Metrics) RecordRegistryReload(ctx context.Context, success bool) {
	if m == nil || !m.reloadsEnabled {
		return
	}
	outcome := "success"
	if !success {
		outcome = "failure"
	}
	m.reloads.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", outcome)))
}
