package specialisations

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"github.com/upb/academic-records/authz"
	"github.com/upb/academic-records/models"
	"github.com/upb/academic-records/repositories"
	"github.com/upb/academic-records/services"
	"github.com/upb/academic-records/services/audit"
	"go.uber.org/zap"
)

// MockSpecialisationRepository is a mock implementation of SpecialisationRepository
type MockSpecialisationRepository struct {
	mock.Mock
}

func (m *MockSpecialisationRepository) List(ctx context.Context) ([]*models.Specialisation, error) {
	args := m.Called(ctx)
	return args.Get(0).([]*models.Specialisation), args.Error(1)
}

func (m *MockSpecialisationRepository) GetByID(ctx context.Context, id int64) (*models.Specialisation, error) {
	args := m.Called(ctx, id)
	if s := args.Get(0); s != nil {
		return s.(*models.Specialisation), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockSpecialisationRepository) Create(ctx context.Context, spec *models.Specialisation) error {
	args := m.Called(ctx, spec)
	if args.Error(0) == nil {
		spec.ID = 5
	}
	return args.Error(0)
}

func (m *MockSpecialisationRepository) Update(ctx context.Context, spec *models.Specialisation) error {
	return m.Called(ctx, spec).Error(0)
}

func (m *MockSpecialisationRepository) Delete(ctx context.Context, id int64) error {
	return m.Called(ctx, id).Error(0)
}

func (m *MockSpecialisationRepository) ListCourses(ctx context.Context, id int64) ([]*models.Course, error) {
	args := m.Called(ctx, id)
	return args.Get(0).([]*models.Course), args.Error(1)
}

func (m *MockSpecialisationRepository) AddCourse(ctx context.Context, id, courseID int64) error {
	return m.Called(ctx, id, courseID).Error(0)
}

func (m *MockSpecialisationRepository) RemoveCourse(ctx context.Context, id, courseID int64) (bool, error) {
	args := m.Called(ctx, id, courseID)
	return args.Bool(0), args.Error(1)
}

// MockCourseRepository only needs GetByID here
type MockCourseRepository struct {
	mock.Mock
	repositories.CourseRepository
}

func (m *MockCourseRepository) GetByID(ctx context.Context, id int64) (*models.Course, error) {
	args := m.Called(ctx, id)
	if c := args.Get(0); c != nil {
		return c.(*models.Course), args.Error(1)
	}
	return nil, args.Error(1)
}

type stubTx struct{ ctx context.Context }

func (t stubTx) Commit() error            { return nil }
func (t stubTx) Rollback() error          { return nil }
func (t stubTx) Context() context.Context { return t.ctx }

type stubTxManager struct{}

func (stubTxManager) Begin(ctx context.Context) (repositories.Transaction, error) {
	return stubTx{ctx: ctx}, nil
}

type recordingAuditor struct {
	changes []models.AuditAction
	links   []models.AuditAction
}

func (a *recordingAuditor) LogSpecialisationChange(ctx context.Context, action models.AuditAction, actor audit.Actor, spec *models.Specialisation) {
	a.changes = append(a.changes, action)
}

func (a *recordingAuditor) LogSpecialisationLink(ctx context.Context, action models.AuditAction, actor audit.Actor, specialisationID, courseID int64) {
	a.links = append(a.links, action)
}

func adminCtx() context.Context {
	return authz.WithPrincipal(context.Background(), authz.Principal{Email: "registrar@example.edu", Role: models.RoleAdmin})
}

func newService(repo *MockSpecialisationRepository, courses *MockCourseRepository, auditor *recordingAuditor) *Service {
	if auditor == nil {
		return NewService(repo, courses, stubTxManager{}, nil, zap.NewNop())
	}
	return NewService(repo, courses, stubTxManager{}, auditor, zap.NewNop())
}

func aiTrack() models.SpecialisationData {
	return models.SpecialisationData{Code: "AI", Name: "Artificial Intelligence", Year: 2025, CreditsRequired: 48}
}

func TestService_ReadsArePublic(t *testing.T) {
	repo := new(MockSpecialisationRepository)
	repo.On("List", mock.Anything).Return([]*models.Specialisation{{ID: 1, Code: "AI"}}, nil)
	repo.On("GetByID", mock.Anything, int64(1)).Return(&models.Specialisation{ID: 1}, nil)
	repo.On("ListCourses", mock.Anything, int64(1)).Return([]*models.Course{{ID: 3}}, nil)
	svc := newService(repo, new(MockCourseRepository), nil)

	specs, err := svc.List(context.Background())
	require.NoError(t, err)
	assert.Len(t, specs, 1)

	courses, err := svc.ListCourses(context.Background(), 1)
	require.NoError(t, err)
	assert.Len(t, courses, 1)
}

func TestService_ListCoursesUnknownSpecialisation(t *testing.T) {
	repo := new(MockSpecialisationRepository)
	repo.On("GetByID", mock.Anything, int64(9)).Return(nil, services.NotFound("specialisation", int64(9)))
	svc := newService(repo, new(MockCourseRepository), nil)

	_, err := svc.ListCourses(context.Background(), 9)
	assert.True(t, services.IsNotFoundError(err))
	repo.AssertNotCalled(t, "ListCourses", mock.Anything, mock.Anything)
}

func TestService_MutationsRequireAdmin(t *testing.T) {
	student := authz.WithPrincipal(context.Background(), authz.Principal{Email: "ada@example.com", Role: models.RoleStudent})
	repo := new(MockSpecialisationRepository)
	svc := newService(repo, new(MockCourseRepository), nil)

	_, err := svc.Create(student, aiTrack())
	assert.True(t, services.IsForbiddenError(err))
	_, err = svc.Update(student, 1, aiTrack())
	assert.True(t, services.IsForbiddenError(err))
	assert.True(t, services.IsForbiddenError(svc.Delete(student, 1)))
	assert.True(t, services.IsForbiddenError(svc.AddCourse(context.Background(), 1, 2)))
	assert.True(t, services.IsForbiddenError(svc.RemoveCourse(context.Background(), 1, 2)))

	assert.Empty(t, repo.Calls)
}

func TestService_CreateUpdateDelete(t *testing.T) {
	repo := new(MockSpecialisationRepository)
	repo.On("Create", mock.Anything, mock.Anything).Return(nil)
	repo.On("GetByID", mock.Anything, int64(5)).Return(&models.Specialisation{ID: 5, Code: "AI"}, nil)
	repo.On("Update", mock.Anything, mock.Anything).Return(nil)
	repo.On("Delete", mock.Anything, int64(5)).Return(nil)
	auditor := &recordingAuditor{}
	svc := newService(repo, new(MockCourseRepository), auditor)

	spec, err := svc.Create(adminCtx(), aiTrack())
	require.NoError(t, err)
	assert.Equal(t, int64(5), spec.ID)

	data := aiTrack()
	data.CreditsRequired = 60
	spec, err = svc.Update(adminCtx(), 5, data)
	require.NoError(t, err)
	assert.Equal(t, 60, spec.CreditsRequired)

	require.NoError(t, svc.Delete(adminCtx(), 5))

	assert.Equal(t, []models.AuditAction{
		models.AuditActionSpecialisationCreated,
		models.AuditActionSpecialisationUpdated,
		models.AuditActionSpecialisationDeleted,
	}, auditor.changes)
}

func TestService_AddCourse(t *testing.T) {
	repo := new(MockSpecialisationRepository)
	courses := new(MockCourseRepository)
	repo.On("GetByID", mock.Anything, int64(5)).Return(&models.Specialisation{ID: 5}, nil)
	courses.On("GetByID", mock.Anything, int64(3)).Return(&models.Course{ID: 3}, nil)
	courses.On("GetByID", mock.Anything, int64(4)).Return(nil, services.NotFound("course", int64(4)))
	repo.On("AddCourse", mock.Anything, int64(5), int64(3)).Return(nil)
	auditor := &recordingAuditor{}
	svc := newService(repo, courses, auditor)

	require.NoError(t, svc.AddCourse(adminCtx(), 5, 3))
	assert.Equal(t, []models.AuditAction{models.AuditActionSpecialisationLinked}, auditor.links)

	err := svc.AddCourse(adminCtx(), 5, 4)
	assert.True(t, services.IsNotFoundError(err))
	repo.AssertNumberOfCalls(t, "AddCourse", 1)
}

func TestService_RemoveCourse(t *testing.T) {
	repo := new(MockSpecialisationRepository)
	repo.On("RemoveCourse", mock.Anything, int64(5), int64(3)).Return(true, nil).Once()
	repo.On("RemoveCourse", mock.Anything, int64(5), int64(3)).Return(false, nil)
	auditor := &recordingAuditor{}
	svc := newService(repo, new(MockCourseRepository), auditor)

	require.NoError(t, svc.RemoveCourse(adminCtx(), 5, 3))
	err := svc.RemoveCourse(adminCtx(), 5, 3)
	assert.True(t, services.IsNotFoundError(err))
	assert.Len(t, auditor.links, 1)
}
