package auth

import (
	"time"

	"attendance-service/internal/user"

	"github.com/uptrace/bun"
)

// RefreshToken stores refresh tokens in database
type RefreshToken struct {
	bun.BaseModel `bun:"table:refresh_tokens,alias:rt"`

	ID        int       `bun:"id,pk,autoincrement"`
	UserID    int       `bun:"user_id,notnull"`
	Token     string    `bun:"token,unique,notnull"`
	ExpiresAt time.Time `bun:"expires_at,notnull"`
	CreatedAt time.Time `bun:"created_at,nullzero,notnull,default:current_timestamp"`
}

type LoginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

type RegisterRequest struct {
	Name          string    `json:"name" validate:"required,max=255"`
	Email         string    `json:"email" validate:"required,email,max=255"`
	Password      string    `json:"password" validate:"required,min=8,max=72"`
	Role          user.Role `json:"role" validate:"required,oneof=teacher student"`
	StudentNumber *string   `json:"student_number" validate:"omitempty,max=32"`
	TeacherID     *int      `json:"teacher_id" validate:"omitempty,gt=0"`
}

type RefreshRequest struct {
	RefreshToken string `json:"refresh_token" validate:"required"`
}

type AuthResponse struct {
	AccessToken  string     `json:"access_token"`
	RefreshToken string     `json:"refresh_token"`
	User         *user.User `json:"user"`
}
