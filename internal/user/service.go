package user

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

var ErrInvalidRole = errors.New("role must be teacher or student")

type Service interface {
	Create(ctx context.Context, u *User) error
	GetByID(ctx context.Context, id int) (*User, error)
	GetByEmail(ctx context.Context, email string) (*User, error)
	ListStudentsOfTeacher(ctx context.Context, teacherID int) ([]User, error)
}

type service struct {
	repo Repository
}

func NewService(repo Repository) Service {
	return &service{repo: repo}
}

// Create stores u after checking the role and supervision invariants.
func (s *service) Create(ctx context.Context, u *User) error {
	u.Email = strings.TrimSpace(u.Email)
	if u.StudentNumber != nil && strings.TrimSpace(*u.StudentNumber) == "" {
		u.StudentNumber = nil
	}

	switch u.Role {
	case RoleTeacher:
		if u.TeacherID != nil {
			return ErrInvalidTeacher
		}
		u.StudentNumber = nil
	case RoleStudent:
		if u.TeacherID != nil {
			teacher, err := s.repo.GetByID(ctx, *u.TeacherID)
			if err != nil {
				if errors.Is(err, ErrUserNotFound) {
					return ErrInvalidTeacher
				}
				return fmt.Errorf("lookup teacher: %w", err)
			}
			if !teacher.IsTeacher() {
				return ErrInvalidTeacher
			}
		}
	default:
		return ErrInvalidRole
	}

	return s.repo.Create(ctx, u)
}

func (s *service) GetByID(ctx context.Context, id int) (*User, error) {
	return s.repo.GetByID(ctx, id)
}

func (s *service) GetByEmail(ctx context.Context, email string) (*User, error) {
	return s.repo.GetByEmail(ctx, strings.TrimSpace(email))
}

func (s *service) ListStudentsOfTeacher(ctx context.Context, teacherID int) ([]User, error) {
	return s.repo.ListStudentsOfTeacher(ctx, teacherID)
}
