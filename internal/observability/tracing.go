// Package observability configures run tracing.
package observability

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/zulandar/quill/internal/config"
	"github.com/zulandar/quill/internal/logging"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
)

// TracerName names the tracer the orchestrator uses.
const TracerName = "github.com/zulandar/quill/orchestrator"

// Shutdown flushes and stops the tracer provider.
type Shutdown func(context.Context) error

// Init installs a global tracer provider. With tracing disabled it
// installs nothing and returns a no-op shutdown.
func Init(ctx context.Context, cfg config.TracingConfig, version string, log *logging.Logger) (Shutdown, error) {
	if !cfg.Enabled {
		return func(context.Context) error { return nil }, nil
	}
	var w io.Writer = os.Stdout
	var file *os.File
	if cfg.Output != "" {
		f, err := os.OpenFile(cfg.Output, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
		if err != nil {
			return nil, fmt.Errorf("observability: open %s: %w", cfg.Output, err)
		}
		w, file = f, f
	}
	tp, err := NewProvider(ctx, w, version)
	if err != nil {
		if file != nil {
			file.Close()
		}
		return nil, err
	}
	otel.SetTracerProvider(tp)
	if log != nil {
		log.Info("tracing initialized", "output", cfg.Output)
	}
	return func(ctx context.Context) error {
		err := tp.Shutdown(ctx)
		if file != nil {
			file.Close()
		}
		return err
	}, nil
}

// NewProvider returns a provider that exports spans synchronously as JSON
// to w.
func NewProvider(ctx context.Context, w io.Writer, version string) (*sdktrace.TracerProvider, error) {
	exp, err := stdouttrace.New(stdouttrace.WithWriter(w))
	if err != nil {
		return nil, fmt.Errorf("observability: exporter: %w", err)
	}
	res, err := resource.New(ctx, resource.WithAttributes(
		attribute.String("service.name", "quill"),
		attribute.String("service.version", version),
	))
	if err != nil {
		return nil, fmt.Errorf("observability: resource: %w", err)
	}
	return sdktrace.NewTracerProvider(
		sdktrace.WithSyncer(exp),
		sdktrace.WithResource(res),
	), nil
}

// Tracer returns the global tracer, or tp's tracer when tp is non-nil.
func Tracer(tp trace.TracerProvider) trace.Tracer {
	if tp == nil {
		tp = otel.GetTracerProvider()
	}
	return tp.Tracer(TracerName)
}

// NopTracer returns a tracer that records nothing.
func NopTracer() trace.Tracer {
	return noop.NewTracerProvider().Tracer(TracerName)
}

// Fail marks span as failed with err.
func Fail(span trace.Span, err error) {
	if err == nil {
		return
	}
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
}
