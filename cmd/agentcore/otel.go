package main

import (
	"context"
	"log/slog"

	"go.opentelemetry.io/otel"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"
)

// setupOtel installs an SDK tracer provider when --otel is set, so
// orchestrator.Orchestrator.Tracer records real spans instead of the
// default no-op ones. Shutdown is tied to ctx's cancellation.
func setupOtel(ctx context.Context, enabled bool) {
	if !enabled {
		return
	}
	if err := initOTelSDK(ctx); err != nil {
		slog.Warn("failed to initialize OpenTelemetry SDK, tracing disabled", "error", err)
	}
}

func initOTelSDK(ctx context.Context) error {
	tp := sdktrace.NewTracerProvider()
	otel.SetTracerProvider(tp)

	go func() {
		<-ctx.Done()
		if err := tp.Shutdown(context.Background()); err != nil {
			slog.Warn("otel tracer provider shutdown failed", "error", err)
		}
	}()

	return nil
}

// tracer returns the process-wide tracer, a no-op unless setupOtel
// installed a real SDK provider.
func tracer() trace.Tracer {
	return otel.Tracer("github.com/docker/agentcore")
}
