// Package otel wires the auth service's OpenTelemetry pipeline: spans and counters from the flow
// controller, otelgrpc stats from the health server, and flow events as OTel log records, all
// exported over OTLP/gRPC.
package otel

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlplog/otlploggrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetricgrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	sdklog "go.opentelemetry.io/otel/sdk/log"
	"go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.39.0"
	"go.uber.org/zap"
)

const defaultMetricInterval = 10 * time.Second

// Config describes where and how telemetry is exported.
type Config struct {
	// Endpoint is the collector, as host:port or a URL; any path is dropped. Empty disables export.
	Endpoint string
	// Insecure forces plaintext even for https endpoints.
	Insecure bool
	// ServiceName and Environment become service.name and deployment.environment.name.
	ServiceName string
	Environment string
	// SampleRatio is the fraction of new traces kept (parent decisions are honoured). Values
	// outside (0, 1] mean 1.
	SampleRatio float64
	// MetricInterval is how often counters are pushed. Zero means 10s.
	MetricInterval time.Duration
}

// Providers holds the OpenTelemetry providers and a shutdown function.
type Providers struct {
	TracerProvider *sdktrace.TracerProvider
	MeterProvider  *metric.MeterProvider
	LoggerProvider *sdklog.LoggerProvider
	Shutdown       func(context.Context) error
}

type component struct {
	name     string
	shutdown func(context.Context) error
}

// NewProviders builds the three providers for cfg. With no endpoint the providers record nothing
// and Shutdown is a no-op. Shutdown failures are reported to log, which may be nil.
func NewProviders(ctx context.Context, cfg Config, log *zap.Logger) (*Providers, error) {
	if log == nil {
		log = zap.NewNop()
	}
	if strings.TrimSpace(cfg.Endpoint) == "" {
		return &Providers{
			TracerProvider: sdktrace.NewTracerProvider(),
			MeterProvider:  metric.NewMeterProvider(),
			LoggerProvider: sdklog.NewLoggerProvider(),
			Shutdown:       func(context.Context) error { return nil },
		}, nil
	}
	target, insecure, err := parseEndpoint(strings.TrimSpace(cfg.Endpoint), cfg.Insecure)
	if err != nil {
		return nil, err
	}
	res, err := newResource(cfg)
	if err != nil {
		return nil, err
	}

	var started []component
	shutdown := func(ctx context.Context) error {
		var errs []error
		for i := len(started) - 1; i >= 0; i-- {
			if err := started[i].shutdown(ctx); err != nil {
				log.Warn("telemetry: shutdown failed", zap.String("provider", started[i].name), zap.Error(err))
				errs = append(errs, fmt.Errorf("%s: %w", started[i].name, err))
			}
		}
		return errors.Join(errs...)
	}
	fail := func(err error) (*Providers, error) {
		_ = shutdown(ctx)
		return nil, err
	}

	tp, err := newTracerProvider(ctx, target, insecure, res, cfg.SampleRatio)
	if err != nil {
		return fail(fmt.Errorf("trace exporter: %w", err))
	}
	started = append(started, component{"traces", tp.Shutdown})

	mp, err := newMeterProvider(ctx, target, insecure, res, cfg.MetricInterval)
	if err != nil {
		return fail(fmt.Errorf("metric exporter: %w", err))
	}
	started = append(started, component{"metrics", mp.Shutdown})

	lp, err := newLoggerProvider(ctx, target, insecure, res)
	if err != nil {
		return fail(fmt.Errorf("log exporter: %w", err))
	}
	started = append(started, component{"logs", lp.Shutdown})

	log.Info("telemetry: exporting over OTLP",
		zap.String("endpoint", target), zap.Bool("insecure", insecure), zap.Float64("sample_ratio", sampleRatio(cfg.SampleRatio)))
	return &Providers{TracerProvider: tp, MeterProvider: mp, LoggerProvider: lp, Shutdown: shutdown}, nil
}

// SetGlobal sets the global TracerProvider and MeterProvider so the flow controller's spans and
// counters and the otelgrpc stats handler use them. The LoggerProvider is passed explicitly to
// NewEventEmitter.
func (p *Providers) SetGlobal() {
	if p.TracerProvider != nil {
		otel.SetTracerProvider(p.TracerProvider)
	}
	if p.MeterProvider != nil {
		otel.SetMeterProvider(p.MeterProvider)
	}
}

func newResource(cfg Config) (*resource.Resource, error) {
	attrs := []attribute.KeyValue{semconv.ServiceNameKey.String(cfg.ServiceName)}
	if cfg.Environment != "" {
		attrs = append(attrs, attribute.String("deployment.environment.name", cfg.Environment))
	}
	return resource.Merge(resource.Default(), resource.NewWithAttributes(semconv.SchemaURL, attrs...))
}

func newTracerProvider(ctx context.Context, target string, insecure bool, res *resource.Resource, ratio float64) (*sdktrace.TracerProvider, error) {
	opts := []otlptracegrpc.Option{otlptracegrpc.WithEndpoint(target)}
	if insecure {
		opts = append(opts, otlptracegrpc.WithInsecure())
	}
	exp, err := otlptracegrpc.New(ctx, opts...)
	if err != nil {
		return nil, err
	}
	return sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exp),
		sdktrace.WithResource(res),
		sdktrace.WithSampler(sdktrace.ParentBased(sdktrace.TraceIDRatioBased(sampleRatio(ratio)))),
	), nil
}

func newMeterProvider(ctx context.Context, target string, insecure bool, res *resource.Resource, interval time.Duration) (*metric.MeterProvider, error) {
	opts := []otlpmetricgrpc.Option{otlpmetricgrpc.WithEndpoint(target)}
	if insecure {
		opts = append(opts, otlpmetricgrpc.WithInsecure())
	}
	exp, err := otlpmetricgrpc.New(ctx, opts...)
	if err != nil {
		return nil, err
	}
	if interval <= 0 {
		interval = defaultMetricInterval
	}
	return metric.NewMeterProvider(
		metric.WithResource(res),
		metric.WithReader(metric.NewPeriodicReader(exp, metric.WithInterval(interval))),
	), nil
}

func newLoggerProvider(ctx context.Context, target string, insecure bool, res *resource.Resource) (*sdklog.LoggerProvider, error) {
	opts := []otlploggrpc.Option{otlploggrpc.WithEndpoint(target)}
	if insecure {
		opts = append(opts, otlploggrpc.WithInsecure())
	}
	exp, err := otlploggrpc.New(ctx, opts...)
	if err != nil {
		return nil, err
	}
	return sdklog.NewLoggerProvider(
		sdklog.WithProcessor(sdklog.NewBatchProcessor(exp)),
		sdklog.WithResource(res),
	), nil
}

func sampleRatio(r float64) float64 {
	if r <= 0 || r > 1 {
		return 1
	}
	return r
}

// parseEndpoint reduces an OTLP endpoint to the host:port the gRPC exporters dial. Only https
// endpoints use TLS, and insecureOverride forces plaintext.
func parseEndpoint(endpoint string, insecureOverride bool) (string, bool, error) {
	if !strings.Contains(endpoint, "://") {
		endpoint = "http://" + endpoint
	}
	u, err := url.Parse(endpoint)
	if err != nil {
		return "", false, fmt.Errorf("invalid OTLP endpoint %q: %w", endpoint, err)
	}
	if u.Host == "" {
		return "", false, fmt.Errorf("invalid OTLP endpoint %q: missing host", endpoint)
	}
	return u.Host, insecureOverride || u.Scheme != "https", nil
}
