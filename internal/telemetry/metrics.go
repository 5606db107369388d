// Package telemetry wires OpenTelemetry metrics and tracing for the auth
// operations.
package telemetry

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Recorder records the outcome of one auth operation.
//
// Contract:
// - Concurrency: implementations must be safe for concurrent use.
// - Errors: implementations must not panic.
type Recorder interface {
	// Record counts op with outcome ("ok" or an error class) and its duration.
	Record(ctx context.Context, op, outcome string, duration time.Duration)
}

type recorder struct {
	total    metric.Int64Counter
	errors   metric.Int64Counter
	duration metric.Float64Histogram
}

// NewRecorder creates the auth instruments on meter.
func NewRecorder(meter metric.Meter) (Recorder, error) {
	total, err := meter.Int64Counter(
		"auth.requests.total",
		metric.WithDescription("Total number of auth operations"),
		metric.WithUnit("{call}"),
	)
	if err != nil {
		return nil, err
	}

	errs, err := meter.Int64Counter(
		"auth.requests.errors",
		metric.WithDescription("Auth operations that did not succeed"),
		metric.WithUnit("{error}"),
	)
	if err != nil {
		return nil, err
	}

	duration, err := meter.Float64Histogram(
		"auth.requests.duration_ms",
		metric.WithDescription("Auth operation duration in milliseconds"),
		metric.WithUnit("ms"),
	)
	if err != nil {
		return nil, err
	}

	return &recorder{total: total, errors: errs, duration: duration}, nil
}

func (r *recorder) Record(ctx context.Context, op, outcome string, d time.Duration) {
	opt := metric.WithAttributes(
		attribute.String("auth.operation", op),
		attribute.String("auth.outcome", outcome),
	)
	r.total.Add(ctx, 1, opt)
	if outcome != "ok" {
		r.errors.Add(ctx, 1, opt)
	}
	r.duration.Record(ctx, float64(d.Microseconds())/1000, opt)
}

type nopRecorder struct{}

func (nopRecorder) Record(context.Context, string, string, time.Duration) {}

// Nop returns a Recorder that discards everything.
func Nop() Recorder { return nopRecorder{} }
