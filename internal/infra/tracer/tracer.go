package tracer

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"

	"chatkit/internal/infra/config"
)

const tracerName = "chatkit"

// Attribute keys shared by reducer and dispatch spans.
const (
	AttrThreadID    = attribute.Key("chatkit.thread_id")
	AttrRequestID   = attribute.Key("chatkit.request.id")
	AttrEventType   = attribute.Key("chatkit.event.type")
	AttrRequestType = attribute.Key("chatkit.request.type")
	AttrMode        = attribute.Key("chatkit.request.mode")
	AttrErrorCode   = attribute.Key("chatkit.error.code")
	AttrEventCount  = attribute.Key("chatkit.event.count")
)

// Setup installs the global TracerProvider described by cfg and returns its
// shutdown function. Disabled tracing and the noop exporter install a noop
// provider.
func Setup(ctx context.Context, cfg config.TracerConfig) (func(context.Context) error, error) {
	noopShutdown := func(context.Context) error { return nil }
	if !cfg.Enabled {
		otel.SetTracerProvider(noop.NewTracerProvider())
		return noopShutdown, nil
	}

	var exporter sdktrace.SpanExporter
	switch cfg.Exporter {
	case "noop", "":
		otel.SetTracerProvider(noop.NewTracerProvider())
		return noopShutdown, nil
	case "stdout":
		exp, err := stdouttrace.New(stdouttrace.WithPrettyPrint())
		if err != nil {
			return nil, fmt.Errorf("create stdout exporter: %w", err)
		}
		exporter = exp
	default:
		return nil, fmt.Errorf("unsupported exporter: %s", cfg.Exporter)
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithSampler(sdktrace.AlwaysSample()),
	)
	otel.SetTracerProvider(tp)
	return tp.Shutdown, nil
}

// StartSpan starts a span on the chatkit tracer.
func StartSpan(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	return otel.Tracer(tracerName).Start(ctx, name, trace.WithAttributes(attrs...))
}

// End finishes span, recording err when non-nil. code, when set, is
// attached as the protocol error code.
func End(span trace.Span, err error, code string) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		if code != "" {
			span.SetAttributes(AttrErrorCode.String(code))
		}
	} else {
		span.SetStatus(codes.Ok, "")
	}
	span.End()
}
