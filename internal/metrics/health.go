package metrics

import (
	"context"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

type HealthMetrics struct {
	dependencyUp           metric.Int64ObservableGauge
	dependencyResponseTime metric.Float64Histogram
	serviceInfo            metric.Int64ObservableGauge

	mu           sync.RWMutex
	dependencies map[string]*DependencyStatus
}

type DependencyStatus struct {
	Name      string
	Available bool
}

func NewHealthMetrics(meter metric.Meter) (*HealthMetrics, error) {
	hm := &HealthMetrics{
		dependencies: make(map[string]*DependencyStatus),
	}

	var err error

	// 1 = up, 0 = down
	hm.dependencyUp, err = meter.Int64ObservableGauge(
		"dependency.up",
		metric.WithDescription("Dependency availability status (1=up, 0=down)"),
		metric.WithUnit("{status}"),
	)
	if err != nil {
		return nil, err
	}

	hm.dependencyResponseTime, err = meter.Float64Histogram(
		"dependency.response_time",
		metric.WithDescription("Dependency health check response time"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(
			0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0, 2.5, 5.0, 10.0,
		),
	)
	if err != nil {
		return nil, err
	}

	// Always 1, carries metadata as labels
	hm.serviceInfo, err = meter.Int64ObservableGauge(
		"service.info",
		metric.WithDescription("Service metadata information"),
		metric.WithUnit("{info}"),
	)
	if err != nil {
		return nil, err
	}

	return hm, nil
}

func (hm *HealthMetrics) RegisterServiceInfo(meter metric.Meter, serviceName, version, env string) error {
	if hm == nil || hm.serviceInfo == nil || meter == nil {
		return nil
	}
	_, err := meter.RegisterCallback(
		func(ctx context.Context, observer metric.Observer) error {
			observer.ObserveInt64(hm.serviceInfo, 1, metric.WithAttributes(
				attribute.String("service_name", serviceName),
				attribute.String("version", version),
				attribute.String("environment", env),
			))
			return nil
		},
		hm.serviceInfo,
	)
	return err
}

func (hm *HealthMetrics) RegisterDependencies(meter metric.Meter, dependencies []string) error {
	if hm == nil || hm.dependencyUp == nil || meter == nil {
		return nil
	}

	hm.mu.Lock()
	for _, dep := range dependencies {
		hm.dependencies[dep] = &DependencyStatus{Name: dep}
	}
	hm.mu.Unlock()

	_, err := meter.RegisterCallback(
		func(ctx context.Context, observer metric.Observer) error {
			hm.mu.RLock()
			defer hm.mu.RUnlock()

			for _, dep := range hm.dependencies {
				value := int64(0)
				if dep.Available {
					value = 1
				}
				observer.ObserveInt64(hm.dependencyUp, value,
					metric.WithAttributes(attribute.String("dependency", dep.Name)))
			}
			return nil
		},
		hm.dependencyUp,
	)

	return err
}

// Available reports the last observed status of a dependency.
func (hm *HealthMetrics) Available(name string) bool {
	if hm == nil {
		return false
	}
	hm.mu.RLock()
	defer hm.mu.RUnlock()
	dep, ok := hm.dependencies[name]
	return ok && dep.Available
}

func (hm *HealthMetrics) RecordDependencyCheck(ctx context.Context, dependency string, duration time.Duration, err error) {
	if hm == nil {
		return
	}

	if hm.dependencyResponseTime != nil {
		hm.dependencyResponseTime.Record(ctx, duration.Seconds(),
			metric.WithAttributes(attribute.String("dependency", dependency)))
	}

	hm.mu.Lock()
	defer hm.mu.Unlock()
	dep, ok := hm.dependencies[dependency]
	if !ok {
		dep = &DependencyStatus{Name: dependency}
		hm.dependencies[dependency] = dep
	}
	dep.Available = err == nil
}
