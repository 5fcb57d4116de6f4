package telemetry

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"attendance-service/internal/config"
	"attendance-service/internal/metrics"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetricgrpc"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
)

type Telemetry struct {
	MeterProvider *sdkmetric.MeterProvider
	Metrics       *metrics.Metrics
}

// InitMeterProvider installs an OTLP/gRPC meter provider as the global one.
func InitMeterProvider(ctx context.Context, endpoint, serviceName, serviceVersion string, logger *slog.Logger) (*sdkmetric.MeterProvider, error) {
	logger.InfoContext(ctx, "initializing OTel metrics", "endpoint", endpoint)

	res, err := resource.New(ctx,
		resource.WithAttributes(
			semconv.ServiceName(serviceName),
			semconv.ServiceVersion(serviceVersion),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create resource: %w", err)
	}

	exporter, err := otlpmetricgrpc.New(ctx,
		otlpmetricgrpc.WithEndpoint(endpoint),
		otlpmetricgrpc.WithInsecure(),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create metric exporter: %w", err)
	}

	provider := sdkmetric.NewMeterProvider(
		sdkmetric.WithResource(res),
		sdkmetric.WithReader(sdkmetric.NewPeriodicReader(exporter,
			sdkmetric.WithInterval(10*time.Second))),
	)

	otel.SetMeterProvider(provider)
	logger.InfoContext(ctx, "OTel metrics initialized successfully")

	return provider, nil
}

// Init wires the exporter (when enabled) and the service collectors.
// With telemetry disabled the collectors are bound to the global no-op provider.
func Init(ctx context.Context, cfg config.TelemetryConfig, serviceName, serviceVersion, env string, logger *slog.Logger) (*Telemetry, error) {
	t := &Telemetry{}

	if cfg.Enabled {
		provider, err := InitMeterProvider(ctx, cfg.OTLPEndpoint, serviceName, serviceVersion, logger)
		if err != nil {
			return nil, err
		}
		t.MeterProvider = provider
	}

	m, err := metrics.New(ctx, serviceName, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize metrics: %w", err)
	}
	t.Metrics = m

	if err := m.Health.RegisterServiceInfo(m.Meter(), serviceName, serviceVersion, env); err != nil {
		logger.WarnContext(ctx, "failed to register service info", "error", err)
	}

	return t, nil
}

func (t *Telemetry) Shutdown(ctx context.Context, logger *slog.Logger) error {
	if t == nil || t.MeterProvider == nil {
		return nil
	}
	logger.InfoContext(ctx, "shutting down OTel meter provider")
	if err := t.MeterProvider.Shutdown(ctx); err != nil {
		return fmt.Errorf("failed to shutdown meter provider: %w", err)
	}
	return nil
}
