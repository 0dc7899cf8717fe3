package handlers

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/upb/academic-records/authz"
	"github.com/upb/academic-records/models"
	"github.com/upb/academic-records/repositories"
	"github.com/upb/academic-records/services/audit"
	"github.com/upb/academic-records/services/directory"
	"github.com/upb/academic-records/utils"
	"go.uber.org/zap"
)

// AuditLogReader reads the persisted audit trail
type AuditLogReader interface {
	List(ctx context.Context, filter repositories.AuditFilter) ([]*models.AuditLog, error)
}

// UserLister pages through directory users
type UserLister interface {
	ListUsers(ctx context.Context, limit, offset int) ([]*models.User, error)
}

// UserResponse is a directory entry as shown to admins
type UserResponse struct {
	ID          string      `json:"id"`
	Username    string      `json:"username"`
	Email       string      `json:"email"`
	DisplayName string      `json:"displayName"`
	Role        models.Role `json:"role"`
	CreatedAt   time.Time   `json:"createdAt"`
}

// AdminHandler serves the admin-only read endpoints
type AdminHandler struct {
	audit  AuditLogReader
	users  UserLister
	logger *zap.Logger
}

// NewAdminHandler creates a new AdminHandler
func NewAdminHandler(auditLogs AuditLogReader, users UserLister, logger *zap.Logger) *AdminHandler {
	return &AdminHandler{
		audit:  auditLogs,
		users:  users,
		logger: logger,
	}
}

// HandleListAuditLogs handles GET /api/audit-logs
// Query: actor, action, resource_type, limit, offset.
func (h *AdminHandler) HandleListAuditLogs(w http.ResponseWriter, r *http.Request) {
	if err := authz.RequireRoleFor(r.Context(), models.RoleAdmin, audit.MsgListForbidden); err != nil {
		HandleServiceError(w, r, err, h.logger)
		return
	}

	limit, offset, ok := pageParams(w, r)
	if !ok {
		return
	}

	q := r.URL.Query()
	filter := repositories.AuditFilter{
		ActorEmail:   models.NormalizeEmail(q.Get("actor")),
		Action:       models.AuditAction(q.Get("action")),
		ResourceType: q.Get("resource_type"),
		Limit:        limit,
		Offset:       offset,
	}

	logs, err := h.audit.List(r.Context(), filter)
	if err != nil {
		HandleServiceError(w, r, err, h.logger)
		return
	}
	if logs == nil {
		logs = []*models.AuditLog{}
	}
	_ = utils.WriteOK(w, logs)
}

// HandleListUsers handles GET /api/users
func (h *AdminHandler) HandleListUsers(w http.ResponseWriter, r *http.Request) {
	if err := authz.RequireRoleFor(r.Context(), models.RoleAdmin, directory.MsgListUsersForbidden); err != nil {
		HandleServiceError(w, r, err, h.logger)
		return
	}

	limit, offset, ok := pageParams(w, r)
	if !ok {
		return
	}

	users, err := h.users.ListUsers(r.Context(), limit, offset)
	if err != nil {
		HandleServiceError(w, r, err, h.logger)
		return
	}

	out := make([]UserResponse, 0, len(users))
	for _, u := range users {
		out = append(out, UserResponse{
			ID:          u.ID.String(),
			Username:    u.Username,
			Email:       u.Email,
			DisplayName: u.DisplayName,
			Role:        u.Role,
			CreatedAt:   u.CreatedAt,
		})
	}
	_ = utils.WriteOK(w, out)
}

// pageParams reads optional non-negative limit and offset query values.
// Missing values are zero and leave the bounds to the service.
func pageParams(w http.ResponseWriter, r *http.Request) (limit, offset int, ok bool) {
	q := r.URL.Query()
	for _, p := range []struct {
		name string
		dst  *int
	}{{"limit", &limit}, {"offset", &offset}} {
		raw := q.Get(p.name)
		if raw == "" {
			continue
		}
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			_ = utils.WriteBadRequest(w, "invalid "+p.name, map[string]interface{}{p.name: raw})
			return 0, 0, false
		}
		*p.dst = n
	}
	return limit, offset, true
}
