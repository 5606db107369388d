package telemetry

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel"
	otelprom "go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/metric"
	metricnoop "go.opentelemetry.io/otel/metric/noop"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"

	"github.com/iliyamo/auth-session-api/internal/config"
)

// InstrumentationName scopes the meter and tracer.
const InstrumentationName = "github.com/iliyamo/auth-session-api"

// Providers owns the SDK providers created by Setup.
type Providers struct {
	meterProvider  *sdkmetric.MeterProvider
	tracerProvider *sdktrace.TracerProvider
	registry       *prometheus.Registry
}

// Setup installs global meter and tracer providers according to cfg.
// Disabled pieces fall back to the OpenTelemetry no-op implementations.
func Setup(cfg config.TelemetryConfig) (*Providers, error) {
	p := &Providers{}

	if cfg.MetricsEnabled {
		p.registry = prometheus.NewRegistry()
		exp, err := otelprom.New(otelprom.WithRegisterer(p.registry))
		if err != nil {
			return nil, fmt.Errorf("create prometheus exporter: %w", err)
		}
		p.meterProvider = sdkmetric.NewMeterProvider(sdkmetric.WithReader(exp))
		otel.SetMeterProvider(p.meterProvider)
	}

	switch cfg.TraceExporter {
	case "stdout":
		exp, err := stdouttrace.New(stdouttrace.WithWriter(os.Stdout))
		if err != nil {
			return nil, fmt.Errorf("create stdout trace exporter: %w", err)
		}
		p.tracerProvider = sdktrace.NewTracerProvider(sdktrace.WithBatcher(exp))
		otel.SetTracerProvider(p.tracerProvider)
	case "none", "":
	default:
		return nil, fmt.Errorf("unknown trace exporter: %q", cfg.TraceExporter)
	}

	return p, nil
}

// Meter returns the meter for auth instruments.
func (p *Providers) Meter() metric.Meter {
	if p == nil || p.meterProvider == nil {
		return metricnoop.NewMeterProvider().Meter(InstrumentationName)
	}
	return p.meterProvider.Meter(InstrumentationName)
}

// MetricsHandler serves the Prometheus exposition, or nil when metrics are
// disabled.
func (p *Providers) MetricsHandler() http.Handler {
	if p == nil || p.registry == nil {
		return nil
	}
	return promhttp.HandlerFor(p.registry, promhttp.HandlerOpts{})
}

// Shutdown flushes and stops the providers.
func (p *Providers) Shutdown(ctx context.Context) error {
	if p == nil {
		return nil
	}
	var errs []error
	if p.tracerProvider != nil {
		errs = append(errs, p.tracerProvider.Shutdown(ctx))
	}
	if p.meterProvider != nil {
		errs = append(errs, p.meterProvider.Shutdown(ctx))
	}
	return errors.Join(errs...)
}
