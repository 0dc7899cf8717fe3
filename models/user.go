package models

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// ProviderGoogle is the only external identity provider users sign in with.
const ProviderGoogle = "google"

// User is an identity record, created on first successful sign-in for an email.
type User struct {
	ID              uuid.UUID `json:"id" db:"id"`
	Username        string    `json:"username" db:"username"`
	Email           string    `json:"email" db:"email"`
	DisplayName     string    `json:"display_name" db:"display_name"`
	Role            Role      `json:"role" db:"role"`
	AuthProvider    string    `json:"auth_provider" db:"auth_provider"`
	ProviderSubject string    `json:"provider_subject,omitempty" db:"provider_subject"`
	CreatedAt       time.Time `json:"created_at" db:"created_at"`
	UpdatedAt       time.Time `json:"updated_at" db:"updated_at"`
}

// TableName returns the table name for the User model
func (User) TableName() string {
	return "users"
}

// NewGoogleUser creates a user linked to a Google subject. The username defaults to the email.
func NewGoogleUser(email, subject, displayName string, role Role) *User {
	now := time.Now().UTC()
	return &User{
		ID:              uuid.New(),
		Username:        email,
		Email:           email,
		DisplayName:     displayName,
		Role:            role,
		AuthProvider:    ProviderGoogle,
		ProviderSubject: subject,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
}

// IsAdmin returns true if the user has admin role
func (u *User) IsAdmin() bool {
	return u.Role == RoleAdmin
}

// NormalizeEmail lower-cases and trims an email address for lookups and comparisons.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
