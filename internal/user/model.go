package user

import (
	"time"

	"github.com/uptrace/bun"
)

type Role string

const (
	RoleTeacher Role = "teacher"
	RoleStudent Role = "student"
)

func (r Role) Valid() bool {
	switch r {
	case RoleTeacher, RoleStudent:
		return true
	default:
		return false
	}
}

type User struct {
	bun.BaseModel `bun:"table:users,alias:u"`

	ID            int       `bun:"id,pk,autoincrement" json:"id"`
	Name          string    `bun:"name,notnull" json:"name"`
	Email         string    `bun:"email,unique,notnull" json:"email"`
	Password      string    `bun:"password,notnull" json:"-"` // Never expose password in JSON
	Role          Role      `bun:"role,notnull" json:"role"`
	StudentNumber *string   `bun:"student_number" json:"student_number,omitempty"`
	TeacherID     *int      `bun:"teacher_id" json:"teacher_id,omitempty"`
	CreatedAt     time.Time `bun:"created_at,nullzero,notnull,default:current_timestamp" json:"created_at"`
	UpdatedAt     time.Time `bun:"updated_at,nullzero,notnull,default:current_timestamp" json:"updated_at"`
}

func (u *User) IsTeacher() bool { return u.Role == RoleTeacher }
func (u *User) IsStudent() bool { return u.Role == RoleStudent }

// SupervisedBy reports whether teacherID is this user's supervising teacher.
func (u *User) SupervisedBy(teacherID int) bool {
	return u.TeacherID != nil && *u.TeacherID == teacherID
}
