package authz

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/upb/academic-records/models"
	"github.com/upb/academic-records/services"
)

func TestPrincipalContext(t *testing.T) {
	_, ok := PrincipalFromContext(context.Background())
	assert.False(t, ok)

	ctx := WithPrincipal(context.Background(), Principal{Email: "ada@example.com", Role: models.RoleAdmin, Token: "t"})
	p, ok := PrincipalFromContext(ctx)
	require.True(t, ok)
	assert.Equal(t, "ada@example.com", p.Email)
	assert.True(t, p.IsAdmin())
}

func TestRequireRole(t *testing.T) {
	admin := WithPrincipal(context.Background(), Principal{Email: "ada@example.com", Role: models.RoleAdmin})
	student := WithPrincipal(context.Background(), Principal{Email: "sam@example.com", Role: models.RoleStudent})

	tests := []struct {
		name       string
		ctx        context.Context
		role       models.Role
		wantReason string
	}{
		{"admin may act as admin", admin, models.RoleAdmin, ""},
		{"student may act as student", student, models.RoleStudent, ""},
		{"anonymous is forbidden", context.Background(), models.RoleAdmin, ReasonAnonymous},
		{"student is not admin", student, models.RoleAdmin, ReasonInsufficientRole},
		{"admin is not student", admin, models.RoleStudent, ReasonInsufficientRole},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := RequireRole(tt.ctx, tt.role)
			if tt.wantReason == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.True(t, services.IsForbiddenError(err))
			assert.False(t, services.IsUnauthorizedError(err))
			assert.Equal(t, tt.wantReason, services.GetErrorDetails(err)["reason"])
		})
	}
}

func TestRequireRoleFor_Message(t *testing.T) {
	err := RequireRoleFor(context.Background(), models.RoleAdmin, "Only admins can create courses")
	require.Error(t, err)
	assert.Equal(t, "Only admins can create courses", services.GetErrorMessage(err))

	err = RequireRole(context.Background(), models.RoleAdmin)
	assert.Equal(t, "access forbidden", services.GetErrorMessage(err))
}

func TestRequireRole_DoesNotMutateSentinel(t *testing.T) {
	_ = RequireRole(context.Background(), models.RoleAdmin)
	assert.Empty(t, services.ErrForbidden.Details)
}
