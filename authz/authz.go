// Package authz carries the authenticated principal through a request and
// enforces role requirements on privileged operations.
package authz

import (
	"context"

	"github.com/upb/academic-records/models"
	"github.com/upb/academic-records/services"
)

// Principal is the caller behind a resolved session token.
type Principal struct {
	Email string
	Role  models.Role
	Token string
}

// IsAdmin reports whether the principal holds the admin role.
func (p Principal) IsAdmin() bool {
	return p.Role == models.RoleAdmin
}

type principalKey struct{}

// WithPrincipal returns a context carrying p.
func WithPrincipal(ctx context.Context, p Principal) context.Context {
	return context.WithValue(ctx, principalKey{}, p)
}

// PrincipalFromContext returns the principal attached by the auth gate.
// Anonymous requests have none.
func PrincipalFromContext(ctx context.Context) (Principal, bool) {
	p, ok := ctx.Value(principalKey{}).(Principal)
	return p, ok
}

// Forbidden reasons recorded in error details
const (
	ReasonAnonymous        = "anonymous"
	ReasonInsufficientRole = "insufficient_role"
)

// RequireRole fails with a forbidden error unless ctx carries a principal holding role.
func RequireRole(ctx context.Context, role models.Role) error {
	return RequireRoleFor(ctx, role, "")
}

// RequireRoleFor is RequireRole with a client-facing message such as
// "Only admins can create courses".
func RequireRoleFor(ctx context.Context, role models.Role, message string) error {
	if message == "" {
		message = "access forbidden"
	}

	p, ok := PrincipalFromContext(ctx)
	if !ok {
		return services.Forbidden(message).WithDetail("reason", ReasonAnonymous)
	}
	if p.Role != role {
		return services.Forbidden(message).
			WithDetail("reason", ReasonInsufficientRole).
			WithDetail("required_role", role.String())
	}
	return nil
}
