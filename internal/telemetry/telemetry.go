// Package telemetry wires OpenTelemetry tracing and bridges its metrics into
// the shared Prometheus registry. Prometheus collectors for the pipeline live
// in internal/metrics; this package only owns the providers.
package telemetry

import (
	"context"
	"fmt"
	"sync"

	texporter "github.com/GoogleCloudPlatform/opentelemetry-operations-go/exporter/trace"
	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/otel"
	otelprom "go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel/propagation"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.17.0"

	"github.com/sitelens/sitelens/internal/config"
)

var (
	initOnce  sync.Once
	traceProv *sdktrace.TracerProvider
	meterProv *sdkmetric.MeterProvider
	initErr   error
)

// Init sets up the global tracer and meter providers. Traces export to Google
// Cloud Trace when cfg.ProjectID is set; without a project the provider keeps
// spans local. OTel metrics land on the same Prometheus registry the
// internal/metrics collectors use, so one /metrics endpoint serves both.
// Init is safe to call more than once; later calls return the first result.
func Init(
	ctx context.Context,
	cfg config.TelemetryConfig,
) (*sdktrace.TracerProvider, *sdkmetric.MeterProvider, error) {
	initOnce.Do(func() {
		attrs := []resource.Option{
			resource.WithAttributes(
				semconv.ServiceName(cfg.ServiceName),
				semconv.ServiceVersion(cfg.Version),
			),
		}
		if cfg.Region != "" {
			attrs = append(attrs, resource.WithAttributes(
				semconv.CloudRegion(cfg.Region),
				semconv.CloudProviderGCP,
			))
		}
		res, err := resource.New(ctx, attrs...)
		if err != nil {
			initErr = fmt.Errorf("create telemetry resource: %w", err)
			return
		}

		var traceExporter sdktrace.SpanExporter
		if cfg.ProjectID != "" {
			traceExporter, err = texporter.New(texporter.WithProjectID(cfg.ProjectID))
			if err != nil {
				initErr = fmt.Errorf("create cloud trace exporter: %w", err)
				return
			}
		}

		opts := []sdktrace.TracerProviderOption{
			sdktrace.WithResource(res),
			sdktrace.WithSampler(sdktrace.AlwaysSample()),
		}
		if traceExporter != nil {
			opts = append(opts, sdktrace.WithBatcher(traceExporter))
		}
		tp := sdktrace.NewTracerProvider(opts...)
		otel.SetTracerProvider(tp)
		otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
			propagation.TraceContext{},
			propagation.Baggage{},
		))

		promExporter, err := otelprom.New(
			otelprom.WithRegisterer(prometheus.DefaultRegisterer),
		)
		if err != nil {
			initErr = fmt.Errorf("create prometheus exporter: %w", err)
			return
		}
		mp := sdkmetric.NewMeterProvider(
			sdkmetric.WithResource(res),
			sdkmetric.WithReader(promExporter),
		)
		otel.SetMeterProvider(mp)

		traceProv = tp
		meterProv = mp
	})
	return traceProv, meterProv, initErr
}
