package auth

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/getsentry/sentry-go"

	"github.com/lekimminhquan/Online-Vina-BE/internal/httputil"
)

type Handler struct {
	service *Service
}

func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

type registerRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required,min=6,max=200"`
}

type loginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

type refreshRequest struct {
	RefreshToken string `json:"refresh_token" validate:"required"`
}

type forgotPasswordRequest struct {
	Email string `json:"email" validate:"required,email"`
}

type resetPasswordRequest struct {
	Token       string `json:"token" validate:"required"`
	NewPassword string `json:"new_password" validate:"required,min=6,max=200"`
}

type createUserRequest struct {
	Email    string  `json:"email" validate:"required,email"`
	Password string  `json:"password" validate:"required,min=6,max=200"`
	Name     *string `json:"name"`
	Avatar   *string `json:"avatar"`
	Type     *string `json:"user_type" validate:"omitempty,oneof=client admin collaborator"`
	Disabled *bool   `json:"disabled"`
}

type updateUserRequest struct {
	Email    *string `json:"email" validate:"omitempty,email"`
	Name     *string `json:"name"`
	Avatar   *string `json:"avatar"`
	Type     *string `json:"user_type" validate:"omitempty,oneof=client admin collaborator"`
	Disabled *bool   `json:"disabled"`
}

type disableUserRequest struct {
	Disabled *bool `json:"disabled" validate:"required"`
}

func (h *Handler) Register(w http.ResponseWriter, r *http.Request) {
	var body registerRequest
	if !httputil.DecodeJSON(w, r, &body) {
		return
	}

	user, err := h.service.Register(r.Context(), strings.TrimSpace(body.Email), body.Password)
	if err != nil {
		if errors.Is(err, ErrEmailTaken) {
			httputil.WriteError(w, http.StatusBadRequest, "email already registered")
			return
		}
		sentry.CaptureException(err)
		httputil.WriteError(w, http.StatusInternalServerError, "failed to register")
		return
	}

	httputil.WriteJSON(w, http.StatusCreated, user.Public())
}

func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	var body loginRequest
	if !httputil.DecodeJSON(w, r, &body) {
		return
	}

	tokens, err := h.service.Login(r.Context(), strings.TrimSpace(body.Email), body.Password)
	if err != nil {
		if errors.Is(err, ErrInvalidCredentials) {
			httputil.WriteError(w, http.StatusUnauthorized, "invalid email or password")
			return
		}
		sentry.CaptureException(err)
		httputil.WriteError(w, http.StatusInternalServerError, "failed to login")
		return
	}

	httputil.WriteJSON(w, http.StatusOK, tokens)
}

func (h *Handler) Refresh(w http.ResponseWriter, r *http.Request) {
	var body refreshRequest
	if !httputil.DecodeJSON(w, r, &body) {
		return
	}

	tokens, err := h.service.Refresh(r.Context(), strings.TrimSpace(body.RefreshToken))
	if err != nil {
		switch {
		case errors.Is(err, ErrSessionExpired):
			httputil.WriteError(w, http.StatusUnauthorized, "refresh token expired")
		case errors.Is(err, ErrInvalidSession):
			httputil.WriteError(w, http.StatusUnauthorized, "invalid refresh token")
		default:
			sentry.CaptureException(err)
			httputil.WriteError(w, http.StatusInternalServerError, "failed to refresh token")
		}
		return
	}

	httputil.WriteJSON(w, http.StatusOK, tokens)
}

func (h *Handler) Logout(w http.ResponseWriter, r *http.Request) {
	var body refreshRequest
	if !httputil.DecodeJSON(w, r, &body) {
		return
	}

	if err := h.service.Logout(r.Context(), strings.TrimSpace(body.RefreshToken)); err != nil {
		sentry.CaptureException(err)
		httputil.WriteError(w, http.StatusInternalServerError, "failed to logout")
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// RequestForgotPassword answers identically for known and unknown
// addresses; only the outbound email differs.
func (h *Handler) RequestForgotPassword(w http.ResponseWriter, r *http.Request) {
	var body forgotPasswordRequest
	if !httputil.DecodeJSON(w, r, &body) {
		return
	}

	if err := h.service.RequestPasswordReset(r.Context(), strings.TrimSpace(body.Email)); err != nil {
		sentry.CaptureException(err)
		httputil.WriteError(w, http.StatusInternalServerError, "failed to process request")
		return
	}

	httputil.WriteMessage(w, http.StatusOK, "If the account exists, a reset email has been sent")
}

func (h *Handler) ResetPassword(w http.ResponseWriter, r *http.Request) {
	var body resetPasswordRequest
	if !httputil.DecodeJSON(w, r, &body) {
		return
	}

	if err := h.service.ResetPassword(r.Context(), strings.TrimSpace(body.Token), body.NewPassword); err != nil {
		if errors.Is(err, ErrInvalidResetToken) {
			httputil.WriteError(w, http.StatusBadRequest, "invalid or expired reset token")
			return
		}
		sentry.CaptureException(err)
		httputil.WriteError(w, http.StatusInternalServerError, "failed to reset password")
		return
	}

	httputil.WriteMessage(w, http.StatusOK, "Password has been reset")
}

func (h *Handler) SendWelcome(w http.ResponseWriter, r *http.Request) {
	var body forgotPasswordRequest
	if !httputil.DecodeJSON(w, r, &body) {
		return
	}

	if err := h.service.SendWelcome(r.Context(), strings.TrimSpace(body.Email)); err != nil {
		sentry.CaptureException(err)
		httputil.WriteError(w, http.StatusInternalServerError, "failed to send email")
		return
	}

	httputil.WriteMessage(w, http.StatusOK, "Email sent")
}

func (h *Handler) CreateUser(w http.ResponseWriter, r *http.Request) {
	var body createUserRequest
	if !httputil.DecodeJSON(w, r, &body) {
		return
	}

	input := CreateUserInput{
		Email:    strings.TrimSpace(body.Email),
		Password: body.Password,
		Name:     body.Name,
		Avatar:   body.Avatar,
		Disabled: body.Disabled,
	}
	if body.Type != nil {
		userType := UserType(*body.Type)
		input.Type = &userType
	}

	user, err := h.service.CreateUser(r.Context(), input)
	if err != nil {
		if errors.Is(err, ErrEmailTaken) {
			httputil.WriteError(w, http.StatusBadRequest, "email already registered")
			return
		}
		sentry.CaptureException(err)
		httputil.WriteError(w, http.StatusInternalServerError, "failed to create user")
		return
	}

	httputil.WriteJSON(w, http.StatusCreated, user.Public())
}

func (h *Handler) UpdateUser(w http.ResponseWriter, r *http.Request) {
	var body updateUserRequest
	if !httputil.DecodeJSON(w, r, &body) {
		return
	}

	patch := UserPatch{
		Email:    body.Email,
		Name:     body.Name,
		Avatar:   body.Avatar,
		Disabled: body.Disabled,
	}
	if body.Type != nil {
		userType := UserType(*body.Type)
		patch.Type = &userType
	}

	user, err := h.service.UpdateUser(r.Context(), r.PathValue("id"), patch)
	if err != nil {
		switch {
		case errors.Is(err, ErrUserNotFound):
			httputil.WriteError(w, http.StatusNotFound, "user not found")
		case errors.Is(err, ErrEmailTaken):
			httputil.WriteError(w, http.StatusBadRequest, "email already registered")
		default:
			sentry.CaptureException(err)
			httputil.WriteError(w, http.StatusInternalServerError, "failed to update user")
		}
		return
	}

	httputil.WriteJSON(w, http.StatusOK, user.Public())
}

func (h *Handler) DisableUser(w http.ResponseWriter, r *http.Request) {
	var body disableUserRequest
	if !httputil.DecodeJSON(w, r, &body) {
		return
	}

	user, err := h.service.SetUserDisabled(r.Context(), r.PathValue("id"), *body.Disabled)
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			httputil.WriteError(w, http.StatusNotFound, "user not found")
			return
		}
		sentry.CaptureException(err)
		httputil.WriteError(w, http.StatusInternalServerError, "failed to update user")
		return
	}

	httputil.WriteJSON(w, http.StatusOK, user.Public())
}

func (h *Handler) DeleteUser(w http.ResponseWriter, r *http.Request) {
	if err := h.service.DeleteUser(r.Context(), r.PathValue("id")); err != nil {
		if errors.Is(err, ErrUserNotFound) {
			httputil.WriteError(w, http.StatusNotFound, "user not found")
			return
		}
		sentry.CaptureException(err)
		httputil.WriteError(w, http.StatusInternalServerError, "failed to delete user")
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) GetUser(w http.ResponseWriter, r *http.Request) {
	user, err := h.service.GetUser(r.Context(), r.PathValue("id"))
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			httputil.WriteError(w, http.StatusNotFound, "user not found")
			return
		}
		sentry.CaptureException(err)
		httputil.WriteError(w, http.StatusInternalServerError, "failed to load user")
		return
	}

	httputil.WriteJSON(w, http.StatusOK, user.Public())
}

func (h *Handler) ListUsers(w http.ResponseWriter, r *http.Request) {
	query := ListUsersQuery{
		Q:        strings.TrimSpace(r.URL.Query().Get("q")),
		Page:     queryInt(r, "page", 1),
		PageSize: queryInt(r, "page_size", 20),
	}
	if raw := r.URL.Query().Get("active"); raw != "" {
		active := raw == "true" || raw == "1"
		query.Active = &active
	}
	if raw := r.URL.Query().Get("user_type"); raw != "" {
		userType := UserType(raw)
		if !userType.Valid() {
			httputil.WriteError(w, http.StatusBadRequest, "invalid user_type filter")
			return
		}
		query.Type = userType
	}

	page, err := h.service.ListUsers(r.Context(), query)
	if err != nil {
		sentry.CaptureException(err)
		httputil.WriteError(w, http.StatusInternalServerError, "failed to list users")
		return
	}

	httputil.WriteJSON(w, http.StatusOK, page)
}

func (h *Handler) UserStats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.service.UserStats(r.Context())
	if err != nil {
		sentry.CaptureException(err)
		httputil.WriteError(w, http.StatusInternalServerError, "failed to load user stats")
		return
	}

	httputil.WriteJSON(w, http.StatusOK, stats)
}

// Me returns the caller's own profile based on the verified access token.
func (h *Handler) Me(w http.ResponseWriter, r *http.Request) {
	claims, ok := ClaimsFromContext(r.Context())
	if !ok {
		httputil.WriteError(w, http.StatusUnauthorized, "missing authorization token")
		return
	}

	user, err := h.service.GetUser(r.Context(), claims.UserID)
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			httputil.WriteError(w, http.StatusNotFound, "user not found")
			return
		}
		sentry.CaptureException(err)
		httputil.WriteError(w, http.StatusInternalServerError, "failed to load user")
		return
	}

	httputil.WriteJSON(w, http.StatusOK, user.Public())
}

func queryInt(r *http.Request, name string, fallback int) int {
	raw := strings.TrimSpace(r.URL.Query().Get(name))
	if raw == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(raw)
	if err != nil {
		return fallback
	}
	return parsed
}
