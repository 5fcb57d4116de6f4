package auth

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"attendance-service/internal/user"

	"golang.org/x/crypto/bcrypt"
)

var (
	ErrInvalidCredentials  = errors.New("invalid email or password")
	ErrEmailExists         = errors.New("email already exists")
	ErrStudentNumberExists = errors.New("student number already exists")
	ErrInvalidRefreshToken = errors.New("invalid or expired refresh token")
)

type Service struct {
	authRepo   *Repository
	users      user.Service
	tokens     *TokenManager
	refreshTTL time.Duration
}

func NewService(authRepo *Repository, users user.Service, tokens *TokenManager, refreshTTL time.Duration) *Service {
	if refreshTTL <= 0 {
		refreshTTL = 7 * 24 * time.Hour
	}
	return &Service{
		authRepo:   authRepo,
		users:      users,
		tokens:     tokens,
		refreshTTL: refreshTTL,
	}
}

func (s *Service) Register(ctx context.Context, req RegisterRequest) (*AuthResponse, error) {
	hashedPassword, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}

	u := &user.User{
		Name:          req.Name,
		Email:         req.Email,
		Password:      string(hashedPassword),
		Role:          req.Role,
		StudentNumber: req.StudentNumber,
		TeacherID:     req.TeacherID,
	}

	if err := s.users.Create(ctx, u); err != nil {
		switch {
		case errors.Is(err, user.ErrEmailExists):
			return nil, ErrEmailExists
		case errors.Is(err, user.ErrStudentNumberExists):
			return nil, ErrStudentNumberExists
		}
		return nil, err
	}

	return s.generateTokenPair(ctx, u)
}

func (s *Service) Login(ctx context.Context, req LoginRequest) (*AuthResponse, error) {
	u, err := s.users.GetByEmail(ctx, req.Email)
	if err != nil {
		if errors.Is(err, user.ErrUserNotFound) {
			return nil, ErrInvalidCredentials
		}
		return nil, err
	}

	if err := bcrypt.CompareHashAndPassword([]byte(u.Password), []byte(req.Password)); err != nil {
		return nil, ErrInvalidCredentials
	}

	return s.generateTokenPair(ctx, u)
}

// RefreshAccessToken rotates the refresh token and issues a new access token.
// The old token is consumed before the new pair is minted.
func (s *Service) RefreshAccessToken(ctx context.Context, refreshTokenString string) (*AuthResponse, error) {
	refreshToken, err := s.authRepo.ConsumeRefreshToken(ctx, refreshTokenString)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrInvalidRefreshToken
		}
		return nil, fmt.Errorf("consume refresh token: %w", err)
	}

	u, err := s.users.GetByID(ctx, refreshToken.UserID)
	if err != nil {
		if errors.Is(err, user.ErrUserNotFound) {
			return nil, ErrInvalidRefreshToken
		}
		return nil, err
	}

	return s.generateTokenPair(ctx, u)
}

func (s *Service) Logout(ctx context.Context, refreshTokenString string) error {
	return s.authRepo.DeleteRefreshToken(ctx, refreshTokenString)
}

// PurgeExpired removes refresh tokens past their expiry.
func (s *Service) PurgeExpired(ctx context.Context) (int64, error) {
	return s.authRepo.DeleteExpiredTokens(ctx)
}

func (s *Service) generateTokenPair(ctx context.Context, u *user.User) (*AuthResponse, error) {
	accessToken, err := s.tokens.GenerateAccessToken(u.ID, u.Email, u.Role)
	if err != nil {
		return nil, fmt.Errorf("sign access token: %w", err)
	}

	refreshToken := GenerateRefreshToken()
	expiresAt := time.Now().Add(s.refreshTTL)
	if err := s.authRepo.CreateRefreshToken(ctx, u.ID, refreshToken, expiresAt); err != nil {
		return nil, fmt.Errorf("store refresh token: %w", err)
	}

	return &AuthResponse{
		AccessToken:  accessToken,
		RefreshToken: refreshToken,
		User:         u,
	}, nil
}
