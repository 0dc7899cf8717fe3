// Package courses implements the course catalogue. Reads are public; every
// mutation requires the admin role.
package courses

import (
	"context"

	"github.com/upb/academic-records/authz"
	"github.com/upb/academic-records/internal/observability"
	"github.com/upb/academic-records/models"
	"github.com/upb/academic-records/repositories"
	"github.com/upb/academic-records/services"
	"github.com/upb/academic-records/services/audit"
	"go.uber.org/zap"
)

// Forbidden messages returned to non-admin callers
const (
	MsgCreateForbidden = "Only admins can create courses"
	MsgUpdateForbidden = "Only admins can update courses"
	MsgDeleteForbidden = "Only admins can delete courses"
)

// Auditor receives course change events
type Auditor interface {
	LogCourseChange(ctx context.Context, action models.AuditAction, actor audit.Actor, course *models.Course)
}

// Service manages courses
type Service struct {
	repo    repositories.CourseRepository
	txMgr   repositories.TransactionManager
	auditor Auditor
	logger  *zap.Logger
}

// NewService creates a course service. auditor may be nil.
func NewService(repo repositories.CourseRepository, txMgr repositories.TransactionManager, auditor Auditor, logger *zap.Logger) *Service {
	return &Service{repo: repo, txMgr: txMgr, auditor: auditor, logger: logger}
}

// List returns every course
func (s *Service) List(ctx context.Context) ([]*models.Course, error) {
	courses, err := s.repo.List(ctx)
	if err != nil {
		return nil, wrap("failed to list courses", err)
	}
	return courses, nil
}

// Get returns a single course
func (s *Service) Get(ctx context.Context, id int64) (*models.Course, error) {
	course, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, wrap("failed to get course", err)
	}
	return course, nil
}

// Create stores a new course. Admin only.
func (s *Service) Create(ctx context.Context, data models.CourseData) (*models.Course, error) {
	if err := authz.RequireRoleFor(ctx, models.RoleAdmin, MsgCreateForbidden); err != nil {
		return nil, err
	}

	course := models.NewCourse(data)
	if err := s.repo.Create(ctx, course); err != nil {
		return nil, wrap("failed to create course", err)
	}

	s.record(ctx, models.AuditActionCourseCreated, course)
	return course, nil
}

// Update replaces the mutable fields of course id. The course number never changes. Admin only.
func (s *Service) Update(ctx context.Context, id int64, data models.CourseData) (*models.Course, error) {
	if err := authz.RequireRoleFor(ctx, models.RoleAdmin, MsgUpdateForbidden); err != nil {
		return nil, err
	}

	course, err := services.WithTransactionResult(ctx, s.txMgr, func(ctx context.Context, tx repositories.Transaction) (*models.Course, error) {
		course, err := s.repo.GetByID(ctx, id)
		if err != nil {
			return nil, err
		}
		course.Apply(data)
		if err := s.repo.Update(ctx, course); err != nil {
			return nil, err
		}
		return course, nil
	})
	if err != nil {
		return nil, wrap("failed to update course", err)
	}

	s.record(ctx, models.AuditActionCourseUpdated, course)
	return course, nil
}

// Delete removes course id. Admin only.
func (s *Service) Delete(ctx context.Context, id int64) error {
	if err := authz.RequireRoleFor(ctx, models.RoleAdmin, MsgDeleteForbidden); err != nil {
		return err
	}

	course, err := services.WithTransactionResult(ctx, s.txMgr, func(ctx context.Context, tx repositories.Transaction) (*models.Course, error) {
		course, err := s.repo.GetByID(ctx, id)
		if err != nil {
			return nil, err
		}
		return course, s.repo.Delete(ctx, id)
	})
	if err != nil {
		return wrap("failed to delete course", err)
	}

	s.record(ctx, models.AuditActionCourseDeleted, course)
	return nil
}

func (s *Service) record(ctx context.Context, action models.AuditAction, course *models.Course) {
	p, _ := authz.PrincipalFromContext(ctx)
	observability.RequestLogger(ctx, s.logger).Info("course changed",
		zap.String("action", string(action)),
		zap.Int64("course_id", course.ID),
		zap.String("actor", p.Email))
	if s.auditor != nil {
		s.auditor.LogCourseChange(ctx, action, audit.Actor{Email: p.Email, Role: p.Role}, course)
	}
}

// wrap passes domain errors through and marks anything else internal.
func wrap(message string, err error) error {
	if services.GetErrorType(err) != "" {
		return err
	}
	return services.WrapInternal(message, err)
}
