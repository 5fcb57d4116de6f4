package attendance

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"attendance-service/internal/auth"
	"attendance-service/internal/httputil"
	"attendance-service/internal/pagination"
	"attendance-service/internal/user"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
)

var fieldMessages = map[string]string{
	"date.required":   MsgDateRequired,
	"date.datetime":   MsgDateInvalid,
	"status.required": MsgStatusRequired,
	"status.oneof":    MsgStatusInvalid,
	"notes.max":       MsgNotesTooLong,
	"user_id.gte":     MsgUserInvalid,
}

// MarkRequest is the body of POST /attendance. A user_id of 0 means the caller.
type MarkRequest struct {
	UserID *int    `json:"user_id" validate:"omitempty,gte=0"`
	Date   string  `json:"date" validate:"required,datetime=2006-01-02"`
	Status string  `json:"status" validate:"required,oneof=present absent sick excused late"`
	Notes  *string `json:"notes" validate:"omitempty,max=1000"`
}

// PatchRequest is validated by the engine after authorization.
type PatchRequest struct {
	Status *string `json:"status"`
	Notes  *string `json:"notes"`
}

type recordResponse struct {
	Message string  `json:"message"`
	Record  *Record `json:"record"`
	Created bool    `json:"created"`
}

type Handler struct {
	service  Service
	validate *validator.Validate
	logger   *slog.Logger
}

func NewHandler(service Service, logger *slog.Logger) *Handler {
	return &Handler{
		service:  service,
		validate: httputil.NewValidator(),
		logger:   logger,
	}
}

// RegisterRoutes mounts the attendance API. r must already be behind auth.AuthMiddleware.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Route("/attendance", func(r chi.Router) {
		r.Get("/", h.Dashboard)
		r.Post("/", h.Mark)
		r.Get("/history", h.MyHistory)
		r.Patch("/{id}", h.Update)
		r.Delete("/{id}", h.Delete)
		r.With(auth.RequireRole(user.RoleTeacher)).Get("/student/{userId}", h.StudentHistory)
	})
}

func (h *Handler) Dashboard(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFromRequest(r)
	if !ok {
		httputil.RespondWithError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	var date time.Time
	if raw := r.URL.Query().Get("date"); raw != "" {
		parsed, err := ParseDate(raw)
		if err != nil {
			httputil.RespondWithValidation(w, map[string]string{"date": MsgDateInvalid})
			return
		}
		date = parsed
	}

	dash, err := h.service.DashboardSnapshot(r.Context(), actor, date, pagination.Parse(r))
	if err != nil {
		h.handleServiceError(w, r, err)
		return
	}

	httputil.RespondWithJSON(w, http.StatusOK, dash)
}

func (h *Handler) Mark(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFromRequest(r)
	if !ok {
		httputil.RespondWithError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	var req MarkRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		h.logger.WarnContext(r.Context(), "failed to decode request", "error", err)
		httputil.RespondWithError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := h.validate.Struct(&req); err != nil {
		httputil.RespondWithValidation(w, httputil.FieldErrors(err, fieldMessages))
		return
	}

	date, err := ParseDate(req.Date)
	if err != nil {
		httputil.RespondWithValidation(w, map[string]string{"date": MsgDateInvalid})
		return
	}

	in := MarkInput{
		TargetUserID: req.UserID,
		Date:         date,
		Status:       Status(req.Status),
		Notes:        req.Notes,
	}
	if in.TargetUserID != nil && *in.TargetUserID == 0 {
		in.TargetUserID = nil
	}

	rec, created, err := h.service.MarkAttendance(r.Context(), actor, in)
	if err != nil {
		h.handleServiceError(w, r, err)
		return
	}

	code, msg := http.StatusOK, "Attendance updated successfully."
	if created {
		code, msg = http.StatusCreated, "Attendance marked successfully."
	}
	httputil.RespondWithJSON(w, code, recordResponse{Message: msg, Record: rec, Created: created})
}

func (h *Handler) Update(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFromRequest(r)
	if !ok {
		httputil.RespondWithError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	id, err := pathID(r, "id")
	if err != nil {
		httputil.RespondWithError(w, http.StatusBadRequest, "invalid attendance id")
		return
	}

	var req PatchRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		h.logger.WarnContext(r.Context(), "failed to decode request", "error", err)
		httputil.RespondWithError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	patch := Patch{Notes: req.Notes}
	if req.Status != nil {
		st := Status(*req.Status)
		patch.Status = &st
	}

	rec, err := h.service.UpdateAttendance(r.Context(), actor, id, patch)
	if err != nil {
		h.handleServiceError(w, r, err)
		return
	}

	httputil.RespondWithJSON(w, http.StatusOK, recordResponse{Message: "Attendance updated successfully.", Record: rec})
}

func (h *Handler) Delete(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFromRequest(r)
	if !ok {
		httputil.RespondWithError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	id, err := pathID(r, "id")
	if err != nil {
		httputil.RespondWithError(w, http.StatusBadRequest, "invalid attendance id")
		return
	}

	if err := h.service.DeleteAttendance(r.Context(), actor, id); err != nil {
		h.handleServiceError(w, r, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) MyHistory(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFromRequest(r)
	if !ok {
		httputil.RespondWithError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	hist, err := h.service.ListAttendance(r.Context(), actor, actor.ID, pagination.Parse(r))
	if err != nil {
		h.handleServiceError(w, r, err)
		return
	}

	httputil.RespondWithJSON(w, http.StatusOK, hist)
}

func (h *Handler) StudentHistory(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFromRequest(r)
	if !ok {
		httputil.RespondWithError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	userID, err := pathID(r, "userId")
	if err != nil {
		httputil.RespondWithError(w, http.StatusBadRequest, "invalid user id")
		return
	}

	hist, err := h.service.ListAttendance(r.Context(), actor, userID, pagination.Parse(r))
	if err != nil {
		h.handleServiceError(w, r, err)
		return
	}

	httputil.RespondWithJSON(w, http.StatusOK, hist)
}

func (h *Handler) handleServiceError(w http.ResponseWriter, r *http.Request, err error) {
	var ve *ValidationError
	switch {
	case errors.As(err, &ve):
		httputil.RespondWithValidation(w, ve.Fields)
	case errors.Is(err, ErrForbidden):
		httputil.RespondWithError(w, http.StatusForbidden, "forbidden")
	case errors.Is(err, ErrRecordNotFound):
		httputil.RespondWithError(w, http.StatusNotFound, "Attendance record not found")
	case errors.Is(err, user.ErrUserNotFound):
		httputil.RespondWithError(w, http.StatusNotFound, "User not found")
	default:
		h.logger.ErrorContext(r.Context(), "attendance request failed", "error", err, "path", r.URL.Path)
		httputil.RespondWithError(w, http.StatusInternalServerError, "internal server error")
	}
}

func actorFromRequest(r *http.Request) (Actor, bool) {
	id, ok := auth.GetUserID(r.Context())
	if !ok {
		return Actor{}, false
	}
	role, ok := auth.GetRole(r.Context())
	if !ok {
		return Actor{}, false
	}
	return Actor{ID: id, Role: role}, true
}

func pathID(r *http.Request, name string) (int, error) {
	id, err := strconv.Atoi(chi.URLParam(r, name))
	if err != nil {
		return 0, err
	}
	if id <= 0 {
		return 0, strconv.ErrRange
	}
	return id, nil
}
