package handlers

import (
	"context"
	"net/http"

	"github.com/upb/academic-records/authz"
	"github.com/upb/academic-records/middleware"
	authsvc "github.com/upb/academic-records/services/auth"
	"github.com/upb/academic-records/utils"
	"go.uber.org/zap"
)

// AuthService is the sign-in surface the auth handler needs
type AuthService interface {
	Login(ctx context.Context, credential string) (*authsvc.LoginResult, error)
	Logout(ctx context.Context, token string) bool
	LogoutAll(ctx context.Context, p authz.Principal) int
}

// GoogleLoginRequest carries the ID token returned by Google Identity Services
type GoogleLoginRequest struct {
	Credential string `json:"credential" validate:"required,notblank"`
}

// LogoutResponse reports whether a session was revoked
type LogoutResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

// MeResponse describes the caller behind the session token
type MeResponse struct {
	Email string `json:"email"`
	Role  string `json:"role"`
}

// AuthHandler handles sign-in and session endpoints
type AuthHandler struct {
	auth   AuthService
	logger *zap.Logger
}

// NewAuthHandler creates a new AuthHandler
func NewAuthHandler(auth AuthService, logger *zap.Logger) *AuthHandler {
	return &AuthHandler{
		auth:   auth,
		logger: logger,
	}
}

// HandleGoogleLogin handles POST /api/auth/google
func (h *AuthHandler) HandleGoogleLogin(w http.ResponseWriter, r *http.Request) {
	var req GoogleLoginRequest
	if !decodeAndValidate(w, r, &req, h.logger) {
		return
	}

	result, err := h.auth.Login(r.Context(), req.Credential)
	if err != nil {
		HandleServiceError(w, r, err, h.logger)
		return
	}

	_ = utils.WriteOK(w, result)
}

// HandleLogout handles POST /api/auth/logout. It always answers 200.
func (h *AuthHandler) HandleLogout(w http.ResponseWriter, r *http.Request) {
	removed := h.auth.Logout(r.Context(), middleware.TokenFromRequest(r))

	resp := LogoutResponse{Success: removed, Message: "Logged out"}
	if !removed {
		resp.Message = "No active session"
	}
	_ = utils.WriteOK(w, resp)
}

// HandleLogoutAll handles POST /api/auth/logout-all
func (h *AuthHandler) HandleLogoutAll(w http.ResponseWriter, r *http.Request) {
	p, ok := authz.PrincipalFromContext(r.Context())
	if !ok {
		_ = utils.WriteUnauthorized(w, "")
		return
	}

	n := h.auth.LogoutAll(r.Context(), p)
	_ = utils.WriteOK(w, map[string]int{"revoked": n})
}

// HandleMe handles GET /api/auth/me
func (h *AuthHandler) HandleMe(w http.ResponseWriter, r *http.Request) {
	p, ok := authz.PrincipalFromContext(r.Context())
	if !ok {
		_ = utils.WriteUnauthorized(w, "")
		return
	}
	_ = utils.WriteOK(w, MeResponse{Email: p.Email, Role: p.Role.String()})
}
