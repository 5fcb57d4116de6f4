package health

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"attendance-service/internal/httputil"
	"attendance-service/internal/metrics"

	"github.com/go-chi/chi/v5"
)

// Pinger is satisfied by *bun.DB and *sql.DB.
type Pinger interface {
	PingContext(ctx context.Context) error
}

type Handler struct {
	db      Pinger
	metrics *metrics.Metrics
	logger  *slog.Logger
	now     func() time.Time
}

func NewHandler(db Pinger, m *metrics.Metrics, logger *slog.Logger) *Handler {
	return &Handler{db: db, metrics: m, logger: logger, now: time.Now}
}

func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/health", h.Health)
	r.Get("/ready", h.Ready)
}

type Response struct {
	Status    string    `json:"status"`
	Timestamp time.Time `json:"timestamp"`
}

func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	httputil.RespondWithJSON(w, http.StatusOK, Response{Status: "ok", Timestamp: h.now().UTC()})
}

func (h *Handler) Ready(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	start := time.Now()
	err := h.db.PingContext(ctx)
	h.metrics.Health.RecordDependencyCheck(ctx, "postgres", time.Since(start), err)

	if err != nil {
		h.logger.WarnContext(r.Context(), "readiness check failed", "dependency", "postgres", "error", err)
		httputil.RespondWithJSON(w, http.StatusServiceUnavailable, Response{Status: "unavailable", Timestamp: h.now().UTC()})
		return
	}

	httputil.RespondWithJSON(w, http.StatusOK, Response{Status: "ready", Timestamp: h.now().UTC()})
}
