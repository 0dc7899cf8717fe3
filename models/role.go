package models

import "strings"

// Role is the closed set of capabilities a user can hold.
type Role string

const (
	RoleStudent Role = "student"
	RoleAdmin   Role = "admin"
)

// ParseRole normalizes an external or stored role string.
// Unknown and empty values map to RoleStudent, the least-privileged role.
func ParseRole(s string) Role {
	switch Role(strings.ToLower(strings.TrimSpace(s))) {
	case RoleAdmin:
		return RoleAdmin
	default:
		return RoleStudent
	}
}

// IsValid reports whether r is one of the known roles.
func (r Role) IsValid() bool {
	return r == RoleStudent || r == RoleAdmin
}

func (r Role) String() string {
	return string(r)
}
