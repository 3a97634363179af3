package handler

import (
	"net/http"

	"github.com/s8d76f867sdf876ds-dev/rustplusplus-jeff-tracker/internal/api/middleware"
	"github.com/s8d76f867sdf876ds-dev/rustplusplus-jeff-tracker/internal/api/request"
	"github.com/s8d76f867sdf876ds-dev/rustplusplus-jeff-tracker/internal/api/response"
	"github.com/s8d76f867sdf876ds-dev/rustplusplus-jeff-tracker/internal/services/auth"
)

// AuthHandler exchanges admin tokens for sessions
type AuthHandler struct {
	authService *auth.Service
}

// NewAuthHandler creates a new auth handler
func NewAuthHandler(authService *auth.Service) *AuthHandler {
	return &AuthHandler{authService: authService}
}

// Login handles POST /api/v1/auth/login
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	if !h.authService.Enabled() {
		WriteError(w, auth.ErrAdminDisabled)
		return
	}

	var req request.LoginRequest
	if err := decode(r, &req); err != nil {
		WriteError(w, err)
		return
	}
	if req.Token == "" {
		WriteError(w, NewInvalidRequestError("token is required"))
		return
	}

	session, err := h.authService.Login(r.Context(), req.Token)
	if err != nil {
		WriteError(w, err)
		return
	}

	http.SetCookie(w, &http.Cookie{
		Name:     "session",
		Value:    session.Token,
		Path:     "/",
		Expires:  session.ExpiresAt,
		HttpOnly: true,
		SameSite: http.SameSiteStrictMode,
	})
	response.JSON(w, http.StatusOK, response.SessionFromAuth(session))
}

// Logout handles POST /api/v1/auth/logout
func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	if token := middleware.ExtractToken(r); token != "" {
		h.authService.InvalidateSession(token)
	}
	response.NoContent(w)
}
