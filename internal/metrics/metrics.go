package metrics

import (
	"context"
	"log/slog"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
)

type Metrics struct {
	Database   *DatabaseMetrics
	Health     *HealthMetrics
	Attendance *AttendanceMetrics
	Messaging  *MessagingMetrics
	Runtime    *RuntimeMetrics
	meter      metric.Meter
}

func New(ctx context.Context, serviceName string, logger *slog.Logger) (*Metrics, error) {
	meter := otel.Meter(serviceName)

	database, err := NewDatabaseMetrics(meter)
	if err != nil {
		return nil, err
	}

	health, err := NewHealthMetrics(meter)
	if err != nil {
		return nil, err
	}

	attendance, err := NewAttendanceMetrics(meter)
	if err != nil {
		return nil, err
	}

	messaging, err := NewMessagingMetrics(meter)
	if err != nil {
		return nil, err
	}

	runtime, err := NewRuntimeMetrics(meter)
	if err != nil {
		return nil, err
	}

	logger.InfoContext(ctx, "metrics collectors initialized successfully")

	return &Metrics{
		Database:   database,
		Health:     health,
		Attendance: attendance,
		Messaging:  messaging,
		Runtime:    runtime,
		meter:      meter,
	}, nil
}

// Meter exposes the meter the collectors were created from, for callback registration.
func (m *Metrics) Meter() metric.Meter {
	return m.meter
}

// NewMock creates a no-op Metrics instance for testing
// The returned Metrics will safely ignore all Record* calls
func NewMock() *Metrics {
	return &Metrics{
		Database:   &DatabaseMetrics{},
		Health:     &HealthMetrics{dependencies: make(map[string]*DependencyStatus)},
		Attendance: &AttendanceMetrics{},
		Messaging:  &MessagingMetrics{},
		Runtime:    &RuntimeMetrics{},
	}
}
