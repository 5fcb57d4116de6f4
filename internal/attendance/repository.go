package attendance

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"attendance-service/internal/metrics"

	"github.com/uptrace/bun"
	"github.com/uptrace/bun/driver/pgdriver"
)

const table = "attendance_records"

type Store interface {
	FindByUserAndDate(ctx context.Context, userID int, date time.Time) (*Record, error)
	GetByID(ctx context.Context, id int) (*Record, error)
	Create(ctx context.Context, rec *Record) error
	Update(ctx context.Context, rec *Record) error
	Delete(ctx context.Context, id int) error
	ListByUser(ctx context.Context, userID, limit, offset int) ([]Record, int, error)
	ListForUsersOnDate(ctx context.Context, userIDs []int, date time.Time) ([]Record, error)
}

type repository struct {
	db      *bun.DB
	metrics *metrics.Metrics
}

func NewRepository(db *bun.DB, m *metrics.Metrics) Store {
	return &repository{
		db:      db,
		metrics: m,
	}
}

func selectMarker(q *bun.SelectQuery) *bun.SelectQuery {
	return q.Column("id", "name")
}

func (r *repository) FindByUserAndDate(ctx context.Context, userID int, date time.Time) (*Record, error) {
	start := time.Now()
	rec := new(Record)
	err := r.db.NewSelect().
		Model(rec).
		Relation("Marker", selectMarker).
		Where("ar.user_id = ?", userID).
		Where("ar.date = ?::date", date.Format(DateLayout)).
		Scan(ctx)

	r.metrics.Database.RecordQuery(ctx, "select", table, time.Since(start), err)

	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrRecordNotFound
		}
		return nil, err
	}
	return rec, nil
}

// GetByID loads the record with its owner, which authorization needs.
func (r *repository) GetByID(ctx context.Context, id int) (*Record, error) {
	start := time.Now()
	rec := new(Record)
	err := r.db.NewSelect().
		Model(rec).
		Relation("User").
		Relation("Marker", selectMarker).
		Where("ar.id = ?", id).
		Scan(ctx)

	r.metrics.Database.RecordQuery(ctx, "select", table, time.Since(start), err)

	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrRecordNotFound
		}
		return nil, err
	}
	return rec, nil
}

// Create inserts rec, returning ErrConflict when (user_id, date) is already taken.
func (r *repository) Create(ctx context.Context, rec *Record) error {
	start := time.Now()
	_, err := r.db.NewInsert().
		Model(rec).
		ExcludeColumn("created_at", "updated_at").
		Returning("*").
		Exec(ctx)

	r.metrics.Database.RecordQuery(ctx, "insert", table, time.Since(start), err)

	if err != nil {
		if isUniqueViolation(err) {
			return ErrConflict
		}
		return err
	}
	return nil
}

// Update writes status, notes and marked_by; owner and date never change.
func (r *repository) Update(ctx context.Context, rec *Record) error {
	start := time.Now()
	res, err := r.db.NewUpdate().
		Model(rec).
		Column("status", "notes", "marked_by").
		WherePK().
		Returning("*").
		Exec(ctx)

	r.metrics.Database.RecordQuery(ctx, "update", table, time.Since(start), err)

	if err != nil {
		return err
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrRecordNotFound
	}
	return nil
}

func (r *repository) Delete(ctx context.Context, id int) error {
	start := time.Now()
	res, err := r.db.NewDelete().
		Model((*Record)(nil)).
		Where("id = ?", id).
		Exec(ctx)

	r.metrics.Database.RecordQuery(ctx, "delete", table, time.Since(start), err)

	if err != nil {
		return err
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrRecordNotFound
	}
	return nil
}

// ListByUser returns one page of the user's records, newest first, and the total count.
func (r *repository) ListByUser(ctx context.Context, userID, limit, offset int) ([]Record, int, error) {
	start := time.Now()
	records := make([]Record, 0, limit)
	total, err := r.db.NewSelect().
		Model(&records).
		Relation("Marker", selectMarker).
		Where("ar.user_id = ?", userID).
		OrderExpr("ar.date DESC, ar.id DESC").
		Limit(limit).
		Offset(offset).
		ScanAndCount(ctx)

	r.metrics.Database.RecordQuery(ctx, "select", table, time.Since(start), err)

	if err != nil {
		return nil, 0, err
	}
	return records, total, nil
}

// ListForUsersOnDate returns the records on date owned by any of userIDs.
func (r *repository) ListForUsersOnDate(ctx context.Context, userIDs []int, date time.Time) ([]Record, error) {
	if len(userIDs) == 0 {
		return []Record{}, nil
	}

	start := time.Now()
	var records []Record
	err := r.db.NewSelect().
		Model(&records).
		Relation("Marker", selectMarker).
		Where("ar.user_id IN (?)", bun.In(userIDs)).
		Where("ar.date = ?::date", date.Format(DateLayout)).
		Scan(ctx)

	r.metrics.Database.RecordQuery(ctx, "select", table, time.Since(start), err)

	if err != nil {
		return nil, err
	}
	return records, nil
}

func isUniqueViolation(err error) bool {
	var pgErr pgdriver.Error
	return errors.As(err, &pgErr) && pgErr.Field('C') == "23505"
}
