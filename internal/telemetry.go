// Package internal contains shared utilities for the passerella library.
package internal

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/lmittmann/tint"
	"github.com/mattn/go-colorable"
	"github.com/mattn/go-isatty"
	"go.opentelemetry.io/contrib/bridges/otelslog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

const scopeName = "github.com/FerroO2000/passerella"

// Telemetry bundles the logger, the meter, and the tracer
// for a single component of a given layer.
type Telemetry struct {
	layer string
	name  string

	console *slog.Logger
	bridge  *slog.Logger

	meter  metric.Meter
	tracer trace.Tracer
}

// NewTelemetry returns a new telemetry instance
// for the component with the given layer and name.
func NewTelemetry(layer, name string) *Telemetry {
	out := os.Stderr

	handler := tint.NewHandler(colorable.NewColorable(out), &tint.Options{
		NoColor: !isatty.IsTerminal(out.Fd()),
	})

	console := slog.New(handler).With("layer", layer, "component", name)
	bridge := otelslog.NewLogger(scopeName).With("layer", layer, "component", name)

	return &Telemetry{
		layer: layer,
		name:  name,

		console: console,
		bridge:  bridge,

		meter:  otel.Meter(scopeName + "/" + layer),
		tracer: otel.Tracer(scopeName + "/" + layer),
	}
}

// LogInfo logs an info message.
func (t *Telemetry) LogInfo(msg string, args ...any) {
	t.console.Info(msg, args...)
	t.bridge.Info(msg, args...)
}

// LogWarn logs a warning message.
func (t *Telemetry) LogWarn(msg string, args ...any) {
	t.console.Warn(msg, args...)
	t.bridge.Warn(msg, args...)
}

// LogError logs an error message.
func (t *Telemetry) LogError(msg string, err error, args ...any) {
	t.console.Error(msg, append(args, tint.Err(err))...)
	t.bridge.Error(msg, append(args, "error", err)...)
}

func (t *Telemetry) metricName(name string) string {
	return fmt.Sprintf("%s_%s_%s", t.layer, t.name, name)
}

// NewCounter registers a monotonic counter observed through the given callback.
func (t *Telemetry) NewCounter(name string, callback func() int64) {
	counter, err := t.meter.Int64ObservableCounter(t.metricName(name))
	if err != nil {
		t.LogError("failed to create counter", err, "metric", name)
		return
	}

	_, err = t.meter.RegisterCallback(func(_ context.Context, observer metric.Observer) error {
		observer.ObserveInt64(counter, callback())
		return nil
	}, counter)
	if err != nil {
		t.LogError("failed to register counter callback", err, "metric", name)
	}
}

// NewUpDownCounter registers a non-monotonic counter observed through the given callback.
func (t *Telemetry) NewUpDownCounter(name string, callback func() int64) {
	counter, err := t.meter.Int64ObservableUpDownCounter(t.metricName(name))
	if err != nil {
		t.LogError("failed to create up-down counter", err, "metric", name)
		return
	}

	_, err = t.meter.RegisterCallback(func(_ context.Context, observer metric.Observer) error {
		observer.ObserveInt64(counter, callback())
		return nil
	}, counter)
	if err != nil {
		t.LogError("failed to register up-down counter callback", err, "metric", name)
	}
}

// NewHistogram returns a new histogram instrument.
func (t *Telemetry) NewHistogram(name string, opts ...metric.Int64HistogramOption) metric.Int64Histogram {
	histogram, err := t.meter.Int64Histogram(t.metricName(name), opts...)
	if err != nil {
		t.LogError("failed to create histogram", err, "metric", name)
	}
	return histogram
}

// NewTrace starts a new span with the given name.
func (t *Telemetry) NewTrace(ctx context.Context, name string) (context.Context, trace.Span) {
	return t.tracer.Start(ctx, name)
}
