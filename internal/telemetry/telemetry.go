// Package telemetry настраивает OpenTelemetry tracing для relay.
package telemetry

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.24.0"

	"github.com/ilkoid/poncho-relay/pkg/config"
	"github.com/ilkoid/poncho-relay/pkg/utils"
)

// DefaultServiceName используется, если service_name не задан.
const DefaultServiceName = "poncho-relay"

// ShutdownFunc сбрасывает буферы экспортера.
type ShutdownFunc func(context.Context) error

// Init включает экспорт спанов по OTLP gRPC.
//
// Если телеметрия выключена или endpoint пуст, глобальный провайдер не
// меняется (спаны pipeline и chain остаются no-op), а возвращаемый
// ShutdownFunc ничего не делает.
func Init(ctx context.Context, cfg config.TelemetryConfig) (ShutdownFunc, error) {
	if !cfg.Enabled || cfg.OTLPEndpoint == "" {
		utils.Debug("OpenTelemetry disabled")
		return func(context.Context) error { return nil }, nil
	}

	exporter, err := otlptracegrpc.New(ctx,
		otlptracegrpc.WithEndpoint(cfg.OTLPEndpoint),
		otlptracegrpc.WithInsecure(),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create OTLP exporter: %w", err)
	}

	service := cfg.ServiceName
	if service == "" {
		service = DefaultServiceName
	}
	res, err := resource.New(ctx,
		resource.WithAttributes(semconv.ServiceNameKey.String(service)),
		resource.WithHost(),
		resource.WithProcess(),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create resource: %w", err)
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
		sdktrace.WithSampler(sdktrace.AlwaysSample()),
	)
	otel.SetTracerProvider(tp)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))

	utils.Info("OpenTelemetry tracing initialized",
		"endpoint", cfg.OTLPEndpoint,
		"service", service)

	return tp.Shutdown, nil
}
