package user

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"attendance-service/internal/metrics"

	"github.com/uptrace/bun"
	"github.com/uptrace/bun/driver/pgdriver"
)

var (
	ErrUserNotFound        = errors.New("user not found")
	ErrEmailExists         = errors.New("email already exists")
	ErrStudentNumberExists = errors.New("student number already exists")
	ErrInvalidTeacher      = errors.New("teacher_id must reference a teacher")
)

const (
	emailConstraint         = "users_email_key"
	studentNumberConstraint = "users_student_number_key"
)

type Repository interface {
	Create(ctx context.Context, u *User) error
	GetByID(ctx context.Context, id int) (*User, error)
	GetByEmail(ctx context.Context, email string) (*User, error)
	ListStudentsOfTeacher(ctx context.Context, teacherID int) ([]User, error)
}

type repository struct {
	db      *bun.DB
	metrics *metrics.Metrics
}

func NewRepository(db *bun.DB, m *metrics.Metrics) Repository {
	return &repository{
		db:      db,
		metrics: m,
	}
}

func (r *repository) Create(ctx context.Context, u *User) error {
	start := time.Now()
	_, err := r.db.NewInsert().Model(u).Returning("*").Exec(ctx)

	r.metrics.Database.RecordQuery(ctx, "insert", "users", time.Since(start), err)

	if err != nil {
		return uniqueViolation(err)
	}
	return nil
}

// uniqueViolation maps a unique constraint failure to the column it guards.
func uniqueViolation(err error) error {
	var pgErr pgdriver.Error
	if !errors.As(err, &pgErr) || pgErr.Field('C') != "23505" {
		return err
	}
	switch pgErr.Field('n') {
	case emailConstraint:
		return ErrEmailExists
	case studentNumberConstraint:
		return ErrStudentNumberExists
	default:
		return err
	}
}

func (r *repository) GetByID(ctx context.Context, id int) (*User, error) {
	start := time.Now()
	u := new(User)
	err := r.db.NewSelect().Model(u).Where("u.id = ?", id).Scan(ctx)

	r.metrics.Database.RecordQuery(ctx, "select", "users", time.Since(start), err)

	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrUserNotFound
		}
		return nil, err
	}
	return u, nil
}

func (r *repository) GetByEmail(ctx context.Context, email string) (*User, error) {
	start := time.Now()
	u := new(User)
	err := r.db.NewSelect().
		Model(u).
		Where("lower(u.email) = lower(?)", email).
		Scan(ctx)

	r.metrics.Database.RecordQuery(ctx, "select", "users", time.Since(start), err)

	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrUserNotFound
		}
		return nil, err
	}
	return u, nil
}

// ListStudentsOfTeacher returns the students supervised by teacherID, ordered by name.
func (r *repository) ListStudentsOfTeacher(ctx context.Context, teacherID int) ([]User, error) {
	start := time.Now()
	var students []User
	err := r.db.NewSelect().
		Model(&students).
		Where("u.teacher_id = ?", teacherID).
		Where("u.role = ?", RoleStudent).
		OrderExpr("u.name ASC, u.id ASC").
		Scan(ctx)

	r.metrics.Database.RecordQuery(ctx, "select", "users", time.Since(start), err)

	if err != nil {
		return nil, err
	}
	return students, nil
}
