package auth

import (
	"errors"
	"log/slog"
	"net/http"

	"attendance-service/internal/httputil"
	"attendance-service/internal/user"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
)

var registerMessages = map[string]string{
	"name.required":      "Name is required.",
	"email.required":     "Email is required.",
	"email.email":        "Please provide a valid email address.",
	"password.required":  "Password is required.",
	"password.min":       "Password must be at least 8 characters.",
	"role.required":      "Role is required.",
	"role.oneof":         "Role must be teacher or student.",
	"student_number.max": "Student number must be at most 32 characters.",
}

type Handler struct {
	service   *Service
	cookies   CookieOptions
	logger    *slog.Logger
	validator *validator.Validate
}

func NewHandler(service *Service, cookies CookieOptions, logger *slog.Logger) *Handler {
	return &Handler{
		service:   service,
		cookies:   cookies,
		logger:    logger,
		validator: httputil.NewValidator(),
	}
}

func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Route("/auth", func(r chi.Router) {
		r.Post("/register", h.Register)
		r.Post("/login", h.Login)
		r.Post("/refresh", h.Refresh)
		r.Post("/logout", h.Logout)
	})
}

func (h *Handler) Register(w http.ResponseWriter, r *http.Request) {
	var req RegisterRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		h.logger.Warn("failed to decode request", "error", err)
		httputil.RespondWithError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if err := h.validator.Struct(req); err != nil {
		h.logger.Warn("validation failed", "error", err)
		httputil.RespondWithValidation(w, httputil.FieldErrors(err, registerMessages))
		return
	}

	resp, err := h.service.Register(r.Context(), req)
	if err != nil {
		switch {
		case errors.Is(err, ErrEmailExists):
			httputil.RespondWithError(w, http.StatusConflict, err.Error())
		case errors.Is(err, user.ErrInvalidTeacher):
			httputil.RespondWithValidation(w, map[string]string{"teacher_id": "Selected teacher does not exist."})
		case errors.Is(err, ErrStudentNumberExists):
			httputil.RespondWithValidation(w, map[string]string{"student_number": "Student number is already taken."})
		case errors.Is(err, user.ErrInvalidRole):
			httputil.RespondWithValidation(w, map[string]string{"role": registerMessages["role.oneof"]})
		default:
			h.logger.Error("registration failed", "error", err)
			httputil.RespondWithError(w, http.StatusInternalServerError, "internal server error")
		}
		return
	}

	h.logger.Info("user registered", "user_id", resp.User.ID, "role", resp.User.Role)

	h.cookies.SetAuthCookie(w, resp.AccessToken)
	httputil.RespondWithJSON(w, http.StatusCreated, resp)
}

func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		h.logger.Warn("failed to decode request", "error", err)
		httputil.RespondWithError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if err := h.validator.Struct(req); err != nil {
		h.logger.Warn("validation failed", "error", err)
		httputil.RespondWithValidation(w, httputil.FieldErrors(err, registerMessages))
		return
	}

	resp, err := h.service.Login(r.Context(), req)
	if err != nil {
		if errors.Is(err, ErrInvalidCredentials) {
			httputil.RespondWithError(w, http.StatusUnauthorized, err.Error())
			return
		}
		h.logger.Error("login failed", "error", err)
		httputil.RespondWithError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	h.logger.Info("user logged in", "user_id", resp.User.ID)

	h.cookies.SetAuthCookie(w, resp.AccessToken)
	httputil.RespondWithJSON(w, http.StatusOK, resp)
}

func (h *Handler) Refresh(w http.ResponseWriter, r *http.Request) {
	var req RefreshRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		h.logger.Warn("failed to decode request", "error", err)
		httputil.RespondWithError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if err := h.validator.Struct(req); err != nil {
		httputil.RespondWithValidation(w, httputil.FieldErrors(err, nil))
		return
	}

	resp, err := h.service.RefreshAccessToken(r.Context(), req.RefreshToken)
	if err != nil {
		if errors.Is(err, ErrInvalidRefreshToken) {
			httputil.RespondWithError(w, http.StatusUnauthorized, err.Error())
			return
		}
		h.logger.Error("token refresh failed", "error", err)
		httputil.RespondWithError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	h.cookies.SetAuthCookie(w, resp.AccessToken)
	httputil.RespondWithJSON(w, http.StatusOK, resp)
}

func (h *Handler) Logout(w http.ResponseWriter, r *http.Request) {
	var req RefreshRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		h.logger.Warn("failed to decode request", "error", err)
		httputil.RespondWithError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if err := h.service.Logout(r.Context(), req.RefreshToken); err != nil {
		h.logger.Error("logout failed", "error", err)
		httputil.RespondWithError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	h.cookies.ClearAuthCookie(w)

	w.WriteHeader(http.StatusNoContent)
}
