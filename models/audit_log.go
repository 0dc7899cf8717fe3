package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// AuditAction represents the type of action being audited
type AuditAction string

const (
	AuditActionLogin                 AuditAction = "login"
	AuditActionLoginFailed           AuditAction = "login_failed"
	AuditActionLogout                AuditAction = "logout"
	AuditActionUserCreated           AuditAction = "user_created"
	AuditActionRoleChanged           AuditAction = "role_changed"
	AuditActionCourseCreated         AuditAction = "course_created"
	AuditActionCourseUpdated         AuditAction = "course_updated"
	AuditActionCourseDeleted         AuditAction = "course_deleted"
	AuditActionSpecialisationCreated AuditAction = "specialisation_created"
	AuditActionSpecialisationUpdated AuditAction = "specialisation_updated"
	AuditActionSpecialisationDeleted AuditAction = "specialisation_deleted"
	AuditActionSpecialisationLinked  AuditAction = "specialisation_course_linked"
	AuditActionSpecialisationUnlink  AuditAction = "specialisation_course_unlinked"
)

// AuditLog represents an audit trail entry
type AuditLog struct {
	ID           uuid.UUID       `json:"id" db:"id"`
	ActorEmail   string          `json:"actor_email" db:"actor_email"`
	ActorRole    Role            `json:"actor_role" db:"actor_role"`
	Action       AuditAction     `json:"action" db:"action"`
	ResourceType string          `json:"resource_type" db:"resource_type"` // course, specialisation, session, user
	ResourceID   string          `json:"resource_id,omitempty" db:"resource_id"`
	Details      json.RawMessage `json:"details,omitempty" db:"details"`
	IPAddress    string          `json:"ip_address" db:"ip_address"`
	UserAgent    string          `json:"user_agent" db:"user_agent"`
	RequestID    string          `json:"request_id" db:"request_id"`
	Timestamp    time.Time       `json:"timestamp" db:"timestamp"`
}

// TableName returns the table name for the AuditLog model
func (AuditLog) TableName() string {
	return "audit_logs"
}

// NewAuditLog creates a new AuditLog instance
func NewAuditLog(action AuditAction, resourceType string) *AuditLog {
	return &AuditLog{
		ID:           uuid.New(),
		Action:       action,
		ResourceType: resourceType,
		Timestamp:    time.Now().UTC(),
	}
}

// WithActor sets who performed the action
func (a *AuditLog) WithActor(email string, role Role) *AuditLog {
	a.ActorEmail = email
	a.ActorRole = role
	return a
}

// WithResource sets the resource ID
func (a *AuditLog) WithResource(resourceID string) *AuditLog {
	a.ResourceID = resourceID
	return a
}

// WithDetails sets the details
func (a *AuditLog) WithDetails(details interface{}) *AuditLog {
	if data, err := json.Marshal(details); err == nil {
		a.Details = data
	}
	return a
}

// WithRequest sets request metadata
func (a *AuditLog) WithRequest(requestID, ipAddress, userAgent string) *AuditLog {
	a.RequestID = requestID
	a.IPAddress = ipAddress
	a.UserAgent = userAgent
	return a
}
