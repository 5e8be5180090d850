package observability

import (
	"context"
	"fmt"
	"net/http"
	"os"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/sdk/resource"
	"go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.uber.org/zap"
)

// SetupLogger returns a zap logger tagged with the service name. LOG_MODE=dev
// switches to the human-readable development encoder; failures fall back to
// a no-op logger rather than aborting startup.
func SetupLogger(service string) *zap.Logger {
	build := zap.NewProduction
	if os.Getenv("LOG_MODE") == "dev" {
		build = zap.NewDevelopment
	}
	logger, err := build()
	if err != nil {
		return zap.NewNop()
	}
	return logger.With(zap.String("service", service))
}

// SetupTracer configures an OTEL tracer provider with a stdout exporter and
// returns its shutdown func.
func SetupTracer(ctx context.Context, service string) (func(context.Context) error, error) {
	exporter, err := stdouttrace.New(stdouttrace.WithPrettyPrint())
	if err != nil {
		return nil, fmt.Errorf("create exporter: %w", err)
	}
	tp := trace.NewTracerProvider(
		trace.WithBatcher(exporter),
		trace.WithResource(resource.NewWithAttributes(
			semconv.SchemaURL,
			semconv.ServiceName(service),
		)),
	)
	otel.SetTracerProvider(tp)
	return tp.Shutdown, nil
}

// MetricsRouter exposes Prometheus metrics and the health endpoint.
func MetricsRouter() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	r.Handle("/metrics", promhttp.Handler())
	return r
}
