package observability

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	semconv "go.opentelemetry.io/otel/semconv/v1.4.0"
)

// Metrics holds all application metrics
type Metrics struct {
	meter metric.Meter

	// Chain head metrics
	BlocksReceived         metric.Int64Counter
	WebSocketReconnections metric.Int64Counter

	// Health monitor metrics
	HealthEvents  metric.Int64Counter
	PoolsDisabled metric.Int64Counter

	// Composition pipeline metrics
	CandidatesSeen     metric.Int64Counter
	CandidatesAccepted metric.Int64Counter
	CandidatesRejected metric.Int64Counter
	CandidateProfit    metric.Float64Histogram
	StageDuration      metric.Float64Histogram

	// Event bus metrics
	BusPublished metric.Int64Counter
	BusDropped   metric.Int64Counter

	// Relay submission metrics
	RelaySubmissions metric.Int64Counter
	RelayDuration    metric.Float64Histogram

	// Cache metrics
	CacheHits   metric.Int64Counter
	CacheMisses metric.Int64Counter

	// Circuit breaker metrics
	CircuitBreakerState metric.Int64Gauge

	// Error metrics
	Errors metric.Int64Counter

	// Prometheus exporter for HTTP handler
	exporter *prometheus.Exporter
}

// NewMetrics creates a new Metrics instance
func NewMetrics(serviceName string, enabled bool) (*Metrics, error) {
	if !enabled {
		return &Metrics{}, nil
	}

	// Create resource
	res, err := resource.New(
		context.Background(),
		resource.WithAttributes(
			semconv.ServiceNameKey.String(serviceName),
			semconv.ServiceVersionKey.String("1.0.0"),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create resource: %w", err)
	}

	// Create Prometheus exporter
	exporter, err := prometheus.New()
	if err != nil {
		return nil, fmt.Errorf("failed to create Prometheus exporter: %w", err)
	}

	// Create meter provider
	provider := sdkmetric.NewMeterProvider(
		sdkmetric.WithResource(res),
		sdkmetric.WithReader(exporter),
	)

	// Get meter
	meter := provider.Meter(serviceName)

	// Create metrics instance
	m := &Metrics{
		meter:    meter,
		exporter: exporter,
	}

	// Initialize all metrics
	if err := m.initMetrics(); err != nil {
		return nil, fmt.Errorf("failed to initialize metrics: %w", err)
	}

	return m, nil
}

// initMetrics initializes all metric instruments
func (m *Metrics) initMetrics() error {
	var err error

	// Chain head metrics
	m.BlocksReceived, err = m.meter.Int64Counter(
		"loom.blocks.received",
		metric.WithDescription("Total chain head events received"),
	)
	if err != nil {
		return err
	}

	m.WebSocketReconnections, err = m.meter.Int64Counter(
		"loom.websocket.reconnections",
		metric.WithDescription("Total WebSocket reconnections"),
	)
	if err != nil {
		return err
	}

	// Health monitor metrics
	m.HealthEvents, err = m.meter.Int64Counter(
		"loom.health.events",
		metric.WithDescription("Total health events consumed"),
	)
	if err != nil {
		return err
	}

	m.PoolsDisabled, err = m.meter.Int64Counter(
		"loom.health.pools_disabled",
		metric.WithDescription("Total pools disabled by the health monitor"),
	)
	if err != nil {
		return err
	}

	// Composition pipeline metrics
	m.CandidatesSeen, err = m.meter.Int64Counter(
		"loom.compose.candidates.seen",
		metric.WithDescription("Candidates observed per pipeline stage"),
	)
	if err != nil {
		return err
	}

	m.CandidatesAccepted, err = m.meter.Int64Counter(
		"loom.compose.candidates.accepted",
		metric.WithDescription("Candidates accepted by the best-candidate selector"),
	)
	if err != nil {
		return err
	}

	m.CandidatesRejected, err = m.meter.Int64Counter(
		"loom.compose.candidates.rejected",
		metric.WithDescription("Candidates rejected by the best-candidate selector"),
	)
	if err != nil {
		return err
	}

	m.CandidateProfit, err = m.meter.Float64Histogram(
		"loom.compose.candidate.profit",
		metric.WithDescription("Candidate profit in gwei"),
		metric.WithUnit("gwei"),
	)
	if err != nil {
		return err
	}

	m.StageDuration, err = m.meter.Float64Histogram(
		"loom.compose.stage.duration",
		metric.WithDescription("Pipeline stage processing duration in milliseconds"),
		metric.WithUnit("ms"),
	)
	if err != nil {
		return err
	}

	// Event bus metrics
	m.BusPublished, err = m.meter.Int64Counter(
		"loom.bus.published",
		metric.WithDescription("Messages published per bus topic"),
	)
	if err != nil {
		return err
	}

	m.BusDropped, err = m.meter.Int64Counter(
		"loom.bus.dropped",
		metric.WithDescription("Messages dropped for lagging subscribers"),
	)
	if err != nil {
		return err
	}

	// Relay submission metrics
	m.RelaySubmissions, err = m.meter.Int64Counter(
		"loom.relay.submissions",
		metric.WithDescription("Bundle submissions to the relay"),
	)
	if err != nil {
		return err
	}

	m.RelayDuration, err = m.meter.Float64Histogram(
		"loom.relay.duration",
		metric.WithDescription("Relay submission duration in milliseconds"),
		metric.WithUnit("ms"),
	)
	if err != nil {
		return err
	}

	// Cache metrics
	m.CacheHits, err = m.meter.Int64Counter(
		"loom.cache.hits",
		metric.WithDescription("Total cache hits"),
	)
	if err != nil {
		return err
	}

	m.CacheMisses, err = m.meter.Int64Counter(
		"loom.cache.misses",
		metric.WithDescription("Total cache misses"),
	)
	if err != nil {
		return err
	}

	// Circuit breaker metrics
	m.CircuitBreakerState, err = m.meter.Int64Gauge(
		"loom.circuit_breaker.state",
		metric.WithDescription("Circuit breaker state (0=closed, 1=open, 2=half-open)"),
	)
	if err != nil {
		return err
	}

	// Error metrics
	m.Errors, err = m.meter.Int64Counter(
		"loom.errors",
		metric.WithDescription("Total errors by type"),
	)
	if err != nil {
		return err
	}

	return nil
}

// enabled reports whether instruments were initialized.
func (m *Metrics) enabled() bool {
	return m != nil && m.meter != nil
}

// RecordBlockReceived records a chain head event
func (m *Metrics) RecordBlockReceived(ctx context.Context, blockNumber uint64) {
	if !m.enabled() {
		return
	}
	m.BlocksReceived.Add(ctx, 1, metric.WithAttributes(
		attribute.Int64("block_number", int64(blockNumber)),
	))
}

// RecordWebSocketReconnection records a WebSocket reconnection
func (m *Metrics) RecordWebSocketReconnection(ctx context.Context, attempts int) {
	if !m.enabled() {
		return
	}
	m.WebSocketReconnections.Add(ctx, 1, metric.WithAttributes(
		attribute.Int("attempts", attempts),
	))
}

// RecordHealthEvent records a consumed health event by kind
func (m *Metrics) RecordHealthEvent(ctx context.Context, kind string) {
	if !m.enabled() {
		return
	}
	m.HealthEvents.Add(ctx, 1, metric.WithAttributes(attribute.String("kind", kind)))
}

// RecordPoolDisabled records a pool disable action
func (m *Metrics) RecordPoolDisabled(ctx context.Context, pool string) {
	if !m.enabled() {
		return
	}
	m.PoolsDisabled.Add(ctx, 1, metric.WithAttributes(attribute.String("pool", pool)))
}

// RecordCandidate records a candidate observed at a pipeline stage
func (m *Metrics) RecordCandidate(ctx context.Context, stage string, duration time.Duration) {
	if !m.enabled() {
		return
	}
	attrs := metric.WithAttributes(attribute.String("stage", stage))
	m.CandidatesSeen.Add(ctx, 1, attrs)
	m.StageDuration.Record(ctx, float64(duration.Milliseconds()), attrs)
}

// RecordSelection records a selector decision with the candidate profit in gwei
func (m *Metrics) RecordSelection(ctx context.Context, accepted bool, profitGwei float64) {
	if !m.enabled() {
		return
	}
	if accepted {
		m.CandidatesAccepted.Add(ctx, 1)
	} else {
		m.CandidatesRejected.Add(ctx, 1)
	}
	m.CandidateProfit.Record(ctx, profitGwei, metric.WithAttributes(attribute.Bool("accepted", accepted)))
}

// RecordBusPublish records a publish with the number of lagging subscribers
func (m *Metrics) RecordBusPublish(ctx context.Context, topic string, dropped int) {
	if !m.enabled() {
		return
	}
	attrs := metric.WithAttributes(attribute.String("topic", topic))
	m.BusPublished.Add(ctx, 1, attrs)
	if dropped > 0 {
		m.BusDropped.Add(ctx, int64(dropped), attrs)
	}
}

// RecordRelaySubmission records a bundle submission
func (m *Metrics) RecordRelaySubmission(ctx context.Context, success bool, duration time.Duration) {
	if !m.enabled() {
		return
	}
	attrs := metric.WithAttributes(attribute.Bool("success", success))
	m.RelaySubmissions.Add(ctx, 1, attrs)
	m.RelayDuration.Record(ctx, float64(duration.Milliseconds()), attrs)
}

// RecordCacheHit records a cache hit
func (m *Metrics) RecordCacheHit(ctx context.Context, layer string) {
	if !m.enabled() {
		return
	}
	m.CacheHits.Add(ctx, 1, metric.WithAttributes(attribute.String("layer", layer)))
}

// RecordCacheMiss records a cache miss
func (m *Metrics) RecordCacheMiss(ctx context.Context, layer string) {
	if !m.enabled() {
		return
	}
	m.CacheMisses.Add(ctx, 1, metric.WithAttributes(attribute.String("layer", layer)))
}

// SetCircuitBreakerState sets circuit breaker state
// 0 = closed, 1 = open, 2 = half-open
func (m *Metrics) SetCircuitBreakerState(ctx context.Context, service string, state int64) {
	if !m.enabled() {
		return
	}
	m.CircuitBreakerState.Record(ctx, state, metric.WithAttributes(attribute.String("service", service)))
}

// RecordError records an error
func (m *Metrics) RecordError(ctx context.Context, errorType string) {
	if !m.enabled() {
		return
	}
	m.Errors.Add(ctx, 1, metric.WithAttributes(attribute.String("type", errorType)))
}

// Handler returns the HTTP handler for Prometheus metrics
func (m *Metrics) Handler() http.Handler {
	// The OpenTelemetry Prometheus exporter registers with the default
	// Prometheus registry.
	return promhttp.Handler()
}
