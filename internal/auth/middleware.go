package auth

import (
	"context"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"attendance-service/internal/httputil"
	"attendance-service/internal/user"
)

type contextKey string

const (
	UserIDKey contextKey = "user_id"
	RoleKey   contextKey = "role"
)

const cookieName = "token"

// AuthMiddleware validates the JWT from the token cookie or a Bearer header
// and stores the caller's identity in the request context.
func AuthMiddleware(tokens *TokenManager, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			raw := tokenFromRequest(r)
			if raw == "" {
				logger.Warn("no auth token found", "path", r.URL.Path)
				httputil.RespondWithError(w, http.StatusUnauthorized, "unauthorized")
				return
			}

			claims, err := tokens.ValidateAccessToken(raw)
			if err != nil {
				logger.Warn("invalid token", "error", err, "path", r.URL.Path)
				httputil.RespondWithError(w, http.StatusUnauthorized, "unauthorized")
				return
			}

			ctx := WithIdentity(r.Context(), claims.UserID, claims.Role)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// RequireRole rejects authenticated callers whose role is not allowed.
func RequireRole(roles ...user.Role) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			role, ok := GetRole(r.Context())
			if !ok {
				httputil.RespondWithError(w, http.StatusUnauthorized, "unauthorized")
				return
			}
			for _, allowed := range roles {
				if role == allowed {
					next.ServeHTTP(w, r)
					return
				}
			}
			httputil.RespondWithError(w, http.StatusForbidden, "forbidden")
		})
	}
}

func tokenFromRequest(r *http.Request) string {
	if cookie, err := r.Cookie(cookieName); err == nil && cookie.Value != "" {
		return cookie.Value
	}
	if h := r.Header.Get("Authorization"); h != "" {
		if token, ok := strings.CutPrefix(h, "Bearer "); ok {
			return strings.TrimSpace(token)
		}
	}
	return ""
}

func WithIdentity(ctx context.Context, userID int, role user.Role) context.Context {
	ctx = context.WithValue(ctx, UserIDKey, userID)
	return context.WithValue(ctx, RoleKey, role)
}

func GetUserID(ctx context.Context) (int, bool) {
	userID, ok := ctx.Value(UserIDKey).(int)
	return userID, ok
}

func GetRole(ctx context.Context) (user.Role, bool) {
	role, ok := ctx.Value(RoleKey).(user.Role)
	return role, ok
}

// CookieOptions controls how the access token cookie is written.
type CookieOptions struct {
	Env    string
	MaxAge time.Duration
}

func (o CookieOptions) SetAuthCookie(w http.ResponseWriter, token string) {
	sameSite := http.SameSiteStrictMode
	if o.Env == "development" || o.Env == "local" {
		sameSite = http.SameSiteLaxMode // Allow testing from Postman
	}

	maxAge := int(o.MaxAge.Seconds())
	if maxAge <= 0 {
		maxAge = 900
	}

	http.SetCookie(w, &http.Cookie{
		Name:     cookieName,
		Value:    token,
		HttpOnly: true,
		Secure:   o.secure(),
		SameSite: sameSite,
		Path:     "/",
		MaxAge:   maxAge,
	})
}

func (o CookieOptions) ClearAuthCookie(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     cookieName,
		Value:    "",
		HttpOnly: true,
		Secure:   o.secure(),
		SameSite: http.SameSiteStrictMode,
		Path:     "/",
		MaxAge:   -1,
	})
}

// Secure cookies require HTTPS.
func (o CookieOptions) secure() bool {
	return o.Env == "production" || o.Env == "prod"
}
