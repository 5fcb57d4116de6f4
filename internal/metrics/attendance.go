package metrics

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

type AttendanceMetrics struct {
	marked          metric.Int64Counter
	updated         metric.Int64Counter
	deleted         metric.Int64Counter
	denied          metric.Int64Counter
	upsertConflicts metric.Int64Counter
	historyViewed   metric.Int64Counter
	dashboardViewed metric.Int64Counter
}

func NewAttendanceMetrics(meter metric.Meter) (*AttendanceMetrics, error) {
	am := &AttendanceMetrics{}

	var err error

	am.marked, err = meter.Int64Counter(
		"attendance_service.records.marked",
		metric.WithDescription("Attendance marks, split by created/updated outcome"),
		metric.WithUnit("{record}"),
	)
	if err != nil {
		return nil, err
	}

	am.updated, err = meter.Int64Counter(
		"attendance_service.records.updated",
		metric.WithDescription("Attendance records patched by id"),
		metric.WithUnit("{record}"),
	)
	if err != nil {
		return nil, err
	}

	am.deleted, err = meter.Int64Counter(
		"attendance_service.records.deleted",
		metric.WithDescription("Attendance records deleted"),
		metric.WithUnit("{record}"),
	)
	if err != nil {
		return nil, err
	}

	am.denied, err = meter.Int64Counter(
		"attendance_service.authorization.denied",
		metric.WithDescription("Attendance operations rejected by the authorization rules"),
		metric.WithUnit("{request}"),
	)
	if err != nil {
		return nil, err
	}

	am.upsertConflicts, err = meter.Int64Counter(
		"attendance_service.upsert.conflicts",
		metric.WithDescription("Unique (user_id, date) violations recovered by retrying as update"),
		metric.WithUnit("{conflict}"),
	)
	if err != nil {
		return nil, err
	}

	am.historyViewed, err = meter.Int64Counter(
		"attendance_service.history.viewed",
		metric.WithDescription("Attendance history pages served"),
		metric.WithUnit("{view}"),
	)
	if err != nil {
		return nil, err
	}

	am.dashboardViewed, err = meter.Int64Counter(
		"attendance_service.dashboard.viewed",
		metric.WithDescription("Dashboard snapshots served, by role"),
		metric.WithUnit("{view}"),
	)
	if err != nil {
		return nil, err
	}

	return am, nil
}

func (am *AttendanceMetrics) RecordMarked(ctx context.Context, created bool) {
	if am == nil || am.marked == nil {
		return
	}
	outcome := "updated"
	if created {
		outcome = "created"
	}
	am.marked.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", outcome)))
}

func (am *AttendanceMetrics) RecordUpdated(ctx context.Context) {
	if am != nil && am.updated != nil {
		am.updated.Add(ctx, 1)
	}
}

func (am *AttendanceMetrics) RecordDeleted(ctx context.Context) {
	if am != nil && am.deleted != nil {
		am.deleted.Add(ctx, 1)
	}
}

func (am *AttendanceMetrics) RecordDenied(ctx context.Context, operation string) {
	if am != nil && am.denied != nil {
		am.denied.Add(ctx, 1, metric.WithAttributes(attribute.String("operation", operation)))
	}
}

func (am *AttendanceMetrics) RecordUpsertConflict(ctx context.Context) {
	if am != nil && am.upsertConflicts != nil {
		am.upsertConflicts.Add(ctx, 1)
	}
}

func (am *AttendanceMetrics) RecordHistoryViewed(ctx context.Context) {
	if am != nil && am.historyViewed != nil {
		am.historyViewed.Add(ctx, 1)
	}
}

func (am *AttendanceMetrics) RecordDashboardViewed(ctx context.Context, role string) {
	if am != nil && am.dashboardViewed != nil {
		am.dashboardViewed.Add(ctx, 1, metric.WithAttributes(attribute.String("role", role)))
	}
}
