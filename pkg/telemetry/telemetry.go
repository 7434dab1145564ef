package telemetry

import (
	"context"
	"fmt"
	"io"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/sdk/resource"
	"go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.28.0"
)

// InitTracer installs a global tracer provider. Spans go to the OTLP HTTP
// endpoint when one is given (the exporter reads the OTEL_EXPORTER_OTLP_*
// variables itself), otherwise they are pretty-printed to debugDest.
func InitTracer(ctx context.Context, serviceName, version, otlpEndpoint string, debugDest io.Writer) (func(context.Context) error, error) {
	var (
		exporter trace.SpanExporter
		err      error
	)
	if otlpEndpoint != "" {
		exporter, err = otlptracehttp.New(ctx)
		if err != nil {
			return nil, fmt.Errorf("creating otlp exporter: %w", err)
		}
	} else {
		exporter, err = stdouttrace.New(
			stdouttrace.WithWriter(debugDest),
			stdouttrace.WithPrettyPrint(),
		)
		if err != nil {
			return nil, fmt.Errorf("creating stdout exporter: %w", err)
		}
	}

	res, err := resource.Merge(
		resource.Default(),
		resource.NewWithAttributes(
			"",
			semconv.ServiceName(serviceName),
			semconv.ServiceVersion(version),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("creating resource: %w", err)
	}

	tp := trace.NewTracerProvider(
		trace.WithBatcher(exporter),
		trace.WithResource(res),
	)
	otel.SetTracerProvider(tp)

	return tp.Shutdown, nil
}
