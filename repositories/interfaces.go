package repositories

import (
	"context"

	"github.com/upb/academic-records/models"
)

// TransactionManager manages database transactions
type TransactionManager interface {
	// Begin starts a new transaction. The returned Transaction's Context
	// carries the open tx so repositories called with it join the transaction.
	Begin(ctx context.Context) (Transaction, error)
}

// Transaction represents a database transaction
type Transaction interface {
	// Commit commits the transaction
	Commit() error

	// Rollback rolls back the transaction
	Rollback() error

	// Context returns the transaction context
	Context() context.Context
}

// UserRepository handles user data operations
type UserRepository interface {
	// GetByEmail retrieves a user by normalized email. Absent users yield a not-found domain error.
	GetByEmail(ctx context.Context, email string) (*models.User, error)

	// CreateIfAbsent inserts user unless a row with the same email exists.
	// It reports whether the insert happened.
	CreateIfAbsent(ctx context.Context, user *models.User) (bool, error)

	// UpdateRole sets the role for the user with the given email
	UpdateRole(ctx context.Context, email string, role models.Role) error

	// UpdateProviderSubject records the identity provider subject for a user
	UpdateProviderSubject(ctx context.Context, email, subject string) error

	// List retrieves users with pagination
	List(ctx context.Context, limit, offset int) ([]*models.User, error)
}

// CourseRepository handles course data operations
type CourseRepository interface {
	List(ctx context.Context) ([]*models.Course, error)
	GetByID(ctx context.Context, id int64) (*models.Course, error)

	// Create inserts course and fills in its ID and timestamps
	Create(ctx context.Context, course *models.Course) error

	Update(ctx context.Context, course *models.Course) error
	Delete(ctx context.Context, id int64) error
}

// SpecialisationRepository handles specialisation data operations
type SpecialisationRepository interface {
	List(ctx context.Context) ([]*models.Specialisation, error)
	GetByID(ctx context.Context, id int64) (*models.Specialisation, error)
	Create(ctx context.Context, spec *models.Specialisation) error
	Update(ctx context.Context, spec *models.Specialisation) error
	Delete(ctx context.Context, id int64) error

	// ListCourses returns the courses attached to a specialisation
	ListCourses(ctx context.Context, specialisationID int64) ([]*models.Course, error)

	// AddCourse links a course; linking an already linked course is a no-op
	AddCourse(ctx context.Context, specialisationID, courseID int64) error

	// RemoveCourse unlinks a course and reports whether a link existed
	RemoveCourse(ctx context.Context, specialisationID, courseID int64) (bool, error)
}

// AuditFilter narrows audit log queries
type AuditFilter struct {
	ActorEmail   string
	Action       models.AuditAction
	ResourceType string
	Limit        int
	Offset       int
}

// AuditRepository handles audit log data operations
type AuditRepository interface {
	// Insert inserts a new audit log entry
	Insert(ctx context.Context, log *models.AuditLog) error

	// List retrieves audit logs newest first
	List(ctx context.Context, filter AuditFilter) ([]*models.AuditLog, error)
}

// Repositories aggregates all repository interfaces
type Repositories struct {
	Users           UserRepository
	Courses         CourseRepository
	Specialisations SpecialisationRepository
	AuditLogs       AuditRepository
}
