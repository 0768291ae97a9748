// Package obsmetrics instruments this library's own operation with
// OpenTelemetry metrics: queue depth, cache capacity, and the outcome of
// every send attempt. This is additive beyond spec.md's scope (the
// original C daemon carries no metrics-about-metrics layer) but follows
// the teacher's own pattern of wrapping every long-running component
// with an OTel meter, disabled by default. Grounded on
// internal/otel/metrics.go, rewritten around this library's instruments
// instead of an MCP load-test run's session/stage/reconnect counters.
package obsmetrics

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetricgrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetrichttp"
	"go.opentelemetry.io/otel/exporters/stdout/stdoutmetric"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"

	"github.com/endlessm/eos-metrics-go/cache"
)

// ExporterType selects which OTel metrics exporter backs a Metrics
// instance.
type ExporterType string

const (
	ExporterNone      ExporterType = "none"
	ExporterStdout    ExporterType = "stdout"
	ExporterOTLPGRPC  ExporterType = "otlp-grpc"
	ExporterOTLPHTTP  ExporterType = "otlp-http"
)

// Config configures a Metrics instance.
type Config struct {
	// Enabled controls whether metrics collection is active. Default: false (no-op).
	Enabled bool
	// ServiceName identifies this process for metric attribution.
	ServiceName string
	// ExporterType selects the exporter backend.
	ExporterType ExporterType
	// OTLPEndpoint is the endpoint for OTLP exporters (e.g. "localhost:4317").
	OTLPEndpoint string
	// OTLPInsecure disables TLS for OTLP connections.
	OTLPInsecure bool
}

// DefaultConfig returns a configuration with metrics disabled.
func DefaultConfig() Config {
	return Config{ServiceName: "eosmetrics", ExporterType: ExporterNone}
}

// Metrics wraps the instruments this library records against: queue
// depth, cache capacity state, and per-send outcome counters/latency.
type Metrics struct {
	cfg           Config
	meterProvider *sdkmetric.MeterProvider
	meter         metric.Meter
	shutdown      func(context.Context) error

	mu            sync.RWMutex
	currentQueue  atomic.Int64
	currentCap    atomic.Int64
	queueCallback metric.Int64ObservableGauge
	capCallback   metric.Int64ObservableGauge
	queueReg      metric.Registration
	capReg        metric.Registration

	sendLatency   metric.Float64Histogram
	sendOutcomes  metric.Int64Counter
	enqueued      metric.Int64Counter
	dropped       metric.Int64Counter
}

// New creates a Metrics instance per cfg. A disabled or unset exporter
// yields a fully functional no-op meter — every Record* call is safe to
// make unconditionally.
func New(ctx context.Context, cfg Config) (*Metrics, error) {
	if cfg.ServiceName == "" {
		cfg.ServiceName = "eosmetrics"
	}

	m := &Metrics{cfg: cfg}

	if !cfg.Enabled || cfg.ExporterType == ExporterNone {
		m.meterProvider = sdkmetric.NewMeterProvider()
		m.meter = m.meterProvider.Meter(cfg.ServiceName)
		m.shutdown = func(context.Context) error { return nil }
		return m, nil
	}

	exporter, err := m.createExporter(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("create metrics exporter: %w", err)
	}

	res, err := resource.Merge(resource.Default(), resource.NewWithAttributes("",
		semconv.ServiceName(cfg.ServiceName)))
	if err != nil {
		return nil, fmt.Errorf("create metrics resource: %w", err)
	}

	mp := sdkmetric.NewMeterProvider(
		sdkmetric.WithReader(sdkmetric.NewPeriodicReader(exporter)),
		sdkmetric.WithResource(res),
	)
	m.meterProvider = mp
	m.meter = mp.Meter(cfg.ServiceName)
	m.shutdown = mp.Shutdown

	if err := m.registerInstruments(); err != nil {
		return nil, fmt.Errorf("register instruments: %w", err)
	}
	return m, nil
}

func (m *Metrics) createExporter(ctx context.Context, cfg Config) (sdkmetric.Exporter, error) {
	switch cfg.ExporterType {
	case ExporterStdout:
		return stdoutmetric.New()
	case ExporterOTLPGRPC:
		opts := []otlpmetricgrpc.Option{}
		if cfg.OTLPEndpoint != "" {
			opts = append(opts, otlpmetricgrpc.WithEndpoint(cfg.OTLPEndpoint))
		}
		if cfg.OTLPInsecure {
			opts = append(opts, otlpmetricgrpc.WithInsecure())
		}
		return otlpmetricgrpc.New(ctx, opts...)
	case ExporterOTLPHTTP:
		opts := []otlpmetrichttp.Option{}
		if cfg.OTLPEndpoint != "" {
			opts = append(opts, otlpmetrichttp.WithEndpoint(cfg.OTLPEndpoint))
		}
		if cfg.OTLPInsecure {
			opts = append(opts, otlpmetrichttp.WithInsecure())
		}
		return otlpmetrichttp.New(ctx, opts...)
	default:
		return nil, fmt.Errorf("unknown exporter type: %s", cfg.ExporterType)
	}
}

func (m *Metrics) registerInstruments() error {
	var err error

	m.sendLatency, err = m.meter.Float64Histogram(
		"eosmetrics.send.latency",
		metric.WithDescription("Latency of a single send attempt"),
		metric.WithUnit("ms"),
	)
	if err != nil {
		return fmt.Errorf("send latency histogram: %w", err)
	}

	m.sendOutcomes, err = m.meter.Int64Counter(
		"eosmetrics.send.outcomes",
		metric.WithDescription("Count of send attempts by outcome"),
	)
	if err != nil {
		return fmt.Errorf("send outcomes counter: %w", err)
	}

	m.enqueued, err = m.meter.Int64Counter(
		"eosmetrics.queue.enqueued",
		metric.WithDescription("Count of payloads enqueued after a failed direct send"),
	)
	if err != nil {
		return fmt.Errorf("enqueued counter: %w", err)
	}

	m.dropped, err = m.meter.Int64Counter(
		"eosmetrics.cache.dropped",
		metric.WithDescription("Count of cache records dropped due to Max capacity"),
	)
	if err != nil {
		return fmt.Errorf("dropped counter: %w", err)
	}

	m.queueCallback, err = m.meter.Int64ObservableGauge(
		"eosmetrics.queue.depth",
		metric.WithDescription("Current number of payloads awaiting drain"),
	)
	if err != nil {
		return fmt.Errorf("queue depth gauge: %w", err)
	}
	m.queueReg, err = m.meter.RegisterCallback(func(_ context.Context, o metric.Observer) error {
		o.ObserveInt64(m.queueCallback, m.currentQueue.Load())
		return nil
	}, m.queueCallback)
	if err != nil {
		return fmt.Errorf("register queue depth callback: %w", err)
	}

	m.capCallback, err = m.meter.Int64ObservableGauge(
		"eosmetrics.cache.capacity",
		metric.WithDescription("Current cache capacity state (0=low, 1=high, 2=max)"),
	)
	if err != nil {
		return fmt.Errorf("cache capacity gauge: %w", err)
	}
	m.capReg, err = m.meter.RegisterCallback(func(_ context.Context, o metric.Observer) error {
		o.ObserveInt64(m.capCallback, m.currentCap.Load())
		return nil
	}, m.capCallback)
	if err != nil {
		return fmt.Errorf("register cache capacity callback: %w", err)
	}

	return nil
}

// RecordSend records the outcome and latency of one send attempt
// (direct or replayed from the queue).
func (m *Metrics) RecordSend(ctx context.Context, latencyMs float64, ok bool) {
	if m.sendLatency == nil {
		return
	}
	outcome := "ok"
	if !ok {
		outcome = "error"
	}
	attrs := metric.WithAttributes(attribute.String("outcome", outcome))
	m.sendLatency.Record(ctx, latencyMs, attrs)
	m.sendOutcomes.Add(ctx, 1, attrs)
}

// RecordEnqueue records a payload being queued after a failed direct
// send.
func (m *Metrics) RecordEnqueue(ctx context.Context) {
	if m.enqueued == nil {
		return
	}
	m.enqueued.Add(ctx, 1)
}

// RecordCacheDrop records a cache record dropped due to Max capacity.
func (m *Metrics) RecordCacheDrop(ctx context.Context, n int) {
	if m.dropped == nil || n == 0 {
		return
	}
	m.dropped.Add(ctx, int64(n))
}

// SetQueueDepth updates the queue-depth gauge, read by the next metrics
// collection cycle.
func (m *Metrics) SetQueueDepth(depth int) {
	m.currentQueue.Store(int64(depth))
}

// SetCacheCapacity updates the cache-capacity gauge.
func (m *Metrics) SetCacheCapacity(c cache.Capacity) {
	m.currentCap.Store(int64(c))
}

// Shutdown flushes and releases the underlying meter provider.
func (m *Metrics) Shutdown(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.queueReg != nil {
		if err := m.queueReg.Unregister(); err != nil {
			return fmt.Errorf("unregister queue depth callback: %w", err)
		}
	}
	if m.capReg != nil {
		if err := m.capReg.Unregister(); err != nil {
			return fmt.Errorf("unregister cache capacity callback: %w", err)
		}
	}
	if m.shutdown != nil {
		return m.shutdown(ctx)
	}
	return nil
}

// Enabled reports whether this instance is backed by a real exporter.
func (m *Metrics) Enabled() bool {
	return m.cfg.Enabled && m.cfg.ExporterType != ExporterNone
}

// Noop returns a Metrics instance that records nothing, for library
// consumers that don't want observability wired up.
func Noop() *Metrics {
	mp := sdkmetric.NewMeterProvider()
	return &Metrics{
		cfg:           DefaultConfig(),
		meterProvider: mp,
		meter:         mp.Meter("eosmetrics"),
		shutdown:      func(context.Context) error { return nil },
	}
}
