// Package specialisations manages study tracks and the courses attached to them.
package specialisations

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

const (
	MsgCreateForbidden = "Only admins can create specialisations"
	MsgUpdateForbidden = "Only admins can update specialisations"
	MsgDeleteForbidden = "Only admins can delete specialisations"
	MsgLinkForbidden   = "Only admins can change specialisation courses"
)

// Auditor receives specialisation change events
type Auditor interface {
	LogSpecialisationChange(ctx context.Context, action models.AuditAction, actor audit.Actor, spec *models.Specialisation)
	LogSpecialisationLink(ctx context.Context, action models.AuditAction, actor audit.Actor, specialisationID, courseID int64)
}

// Service manages specialisations
type Service struct {
	repo    repositories.SpecialisationRepository
	courses repositories.CourseRepository
	txMgr   repositories.TransactionManager
	auditor Auditor
	logger  *zap.Logger
}

// NewService creates a specialisation service. auditor may be nil.
func NewService(repo repositories.SpecialisationRepository, courses repositories.CourseRepository, txMgr repositories.TransactionManager, auditor Auditor, logger *zap.Logger) *Service {
	return &Service{repo: repo, courses: courses, txMgr: txMgr, auditor: auditor, logger: logger}
}

func (s *Service) List(ctx context.Context) ([]*models.Specialisation, error) {
	specs, err := s.repo.List(ctx)
	if err != nil {
		return nil, wrap("failed to list specialisations", err)
	}
	return specs, nil
}

func (s *Service) Get(ctx context.Context, id int64) (*models.Specialisation, error) {
	spec, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, wrap("failed to get specialisation", err)
	}
	return spec, nil
}

// ListCourses returns the courses of specialisation id. Unknown ids are not found.
func (s *Service) ListCourses(ctx context.Context, id int64) ([]*models.Course, error) {
	if _, err := s.repo.GetByID(ctx, id); err != nil {
		return nil, wrap("failed to get specialisation", err)
	}
	courses, err := s.repo.ListCourses(ctx, id)
	if err != nil {
		return nil, wrap("failed to list specialisation courses", err)
	}
	return courses, nil
}

// Create stores a new specialisation. Admin only.
func (s *Service) Create(ctx context.Context, data models.SpecialisationData) (*models.Specialisation, error) {
	if err := authz.RequireRoleFor(ctx, models.RoleAdmin, MsgCreateForbidden); err != nil {
		return nil, err
	}

	spec := &models.Specialisation{}
	spec.Apply(data)
	if err := s.repo.Create(ctx, spec); err != nil {
		return nil, wrap("failed to create specialisation", err)
	}

	s.recordChange(ctx, models.AuditActionSpecialisationCreated, spec)
	return spec, nil
}

// Update replaces the fields of specialisation id. Admin only.
func (s *Service) Update(ctx context.Context, id int64, data models.SpecialisationData) (*models.Specialisation, error) {
	if err := authz.RequireRoleFor(ctx, models.RoleAdmin, MsgUpdateForbidden); err != nil {
		return nil, err
	}

	spec, err := services.WithTransactionResult(ctx, s.txMgr, func(ctx context.Context, tx repositories.Transaction) (*models.Specialisation, error) {
		spec, err := s.repo.GetByID(ctx, id)
		if err != nil {
			return nil, err
		}
		spec.Apply(data)
		return spec, s.repo.Update(ctx, spec)
	})
	if err != nil {
		return nil, wrap("failed to update specialisation", err)
	}

	s.recordChange(ctx, models.AuditActionSpecialisationUpdated, spec)
	return spec, nil
}

// Delete removes specialisation id and its course links. Admin only.
func (s *Service) Delete(ctx context.Context, id int64) error {
	if err := authz.RequireRoleFor(ctx, models.RoleAdmin, MsgDeleteForbidden); err != nil {
		return err
	}

	spec, err := services.WithTransactionResult(ctx, s.txMgr, func(ctx context.Context, tx repositories.Transaction) (*models.Specialisation, error) {
		spec, err := s.repo.GetByID(ctx, id)
		if err != nil {
			return nil, err
		}
		return spec, s.repo.Delete(ctx, id)
	})
	if err != nil {
		return wrap("failed to delete specialisation", err)
	}

	s.recordChange(ctx, models.AuditActionSpecialisationDeleted, spec)
	return nil
}

// AddCourse attaches courseID to specialisation id. Admin only; repeating it is a no-op.
func (s *Service) AddCourse(ctx context.Context, id, courseID int64) error {
	if err := authz.RequireRoleFor(ctx, models.RoleAdmin, MsgLinkForbidden); err != nil {
		return err
	}

	err := services.WithTransaction(ctx, s.txMgr, func(ctx context.Context, tx repositories.Transaction) error {
		if _, err := s.repo.GetByID(ctx, id); err != nil {
			return err
		}
		if _, err := s.courses.GetByID(ctx, courseID); err != nil {
			return err
		}
		return s.repo.AddCourse(ctx, id, courseID)
	})
	if err != nil {
		return wrap("failed to link course", err)
	}

	s.recordLink(ctx, models.AuditActionSpecialisationLinked, id, courseID)
	return nil
}

// RemoveCourse detaches courseID from specialisation id. Admin only.
// A missing link is reported as not found.
func (s *Service) RemoveCourse(ctx context.Context, id, courseID int64) error {
	if err := authz.RequireRoleFor(ctx, models.RoleAdmin, MsgLinkForbidden); err != nil {
		return err
	}

	removed, err := s.repo.RemoveCourse(ctx, id, courseID)
	if err != nil {
		return wrap("failed to unlink course", err)
	}
	if !removed {
		return services.NotFound("specialisation course", courseID).WithDetail("specialisation_id", id)
	}

	s.recordLink(ctx, models.AuditActionSpecialisationUnlink, id, courseID)
	return nil
}

func (s *Service) recordChange(ctx context.Context, action models.AuditAction, spec *models.Specialisation) {
	p, _ := authz.PrincipalFromContext(ctx)
	observability.RequestLogger(ctx, s.logger).Info("specialisation changed",
		zap.String("action", string(action)),
		zap.Int64("specialisation_id", spec.ID),
		zap.String("actor", p.Email))
	if s.auditor != nil {
		s.auditor.LogSpecialisationChange(ctx, action, audit.Actor{Email: p.Email, Role: p.Role}, spec)
	}
}

func (s *Service) recordLink(ctx context.Context, action models.AuditAction, id, courseID int64) {
	p, _ := authz.PrincipalFromContext(ctx)
	if s.auditor != nil {
		s.auditor.LogSpecialisationLink(ctx, action, audit.Actor{Email: p.Email, Role: p.Role}, id, courseID)
	}
}

func wrap(message string, err error) error {
	if services.GetErrorType(err) != "" {
		return err
	}
	return services.WrapInternal(message, err)
}
