package auth

import (
	"context"
	"database/sql"
	"time"

	"attendance-service/internal/metrics"

	"github.com/uptrace/bun"
)

type Repository struct {
	db      *bun.DB
	metrics *metrics.Metrics
}

func NewRepository(db *bun.DB, m *metrics.Metrics) *Repository {
	return &Repository{
		db:      db,
		metrics: m,
	}
}

func (r *Repository) CreateRefreshToken(ctx context.Context, userID int, token string, expiresAt time.Time) error {
	start := time.Now()
	refreshToken := &RefreshToken{
		UserID:    userID,
		Token:     token,
		ExpiresAt: expiresAt,
	}

	_, err := r.db.NewInsert().Model(refreshToken).Exec(ctx)

	r.metrics.Database.RecordQuery(ctx, "insert", "refresh_tokens", time.Since(start), err)

	return err
}

// ConsumeRefreshToken deletes an unexpired token and returns the deleted row.
// Concurrent callers race on the delete, so at most one of them gets the token.
func (r *Repository) ConsumeRefreshToken(ctx context.Context, token string) (*RefreshToken, error) {
	start := time.Now()
	refreshToken := &RefreshToken{}
	res, err := r.db.NewDelete().
		Model(refreshToken).
		Where("token = ?", token).
		Where("expires_at > ?", time.Now()).
		Returning("*").
		Exec(ctx)

	r.metrics.Database.RecordQuery(ctx, "delete", "refresh_tokens", time.Since(start), err)

	if err != nil {
		return nil, err
	}
	if n, err := res.RowsAffected(); err != nil || n == 0 {
		return nil, sql.ErrNoRows
	}

	return refreshToken, nil
}

func (r *Repository) DeleteRefreshToken(ctx context.Context, token string) error {
	start := time.Now()
	_, err := r.db.NewDelete().
		Model((*RefreshToken)(nil)).
		Where("token = ?", token).
		Exec(ctx)

	r.metrics.Database.RecordQuery(ctx, "delete", "refresh_tokens", time.Since(start), err)

	return err
}

func (r *Repository) DeleteExpiredTokens(ctx context.Context) (int64, error) {
	start := time.Now()
	res, err := r.db.NewDelete().
		Model((*RefreshToken)(nil)).
		Where("expires_at < ?", time.Now()).
		Exec(ctx)

	r.metrics.Database.RecordQuery(ctx, "delete", "refresh_tokens", time.Since(start), err)

	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
