package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/upb/academic-records/models"
	"github.com/upb/academic-records/repositories"
	"github.com/upb/academic-records/services"
	"go.uber.org/zap"
)

func newMockDB(t *testing.T) (*DB, sqlmock.Sqlmock) {
	t.Helper()
	sqlDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() {
		assert.NoError(t, mock.ExpectationsWereMet())
		sqlDB.Close()
	})
	return WrapDB(sqlDB, zap.NewNop()), mock
}

var userRowColumns = []string{"id", "username", "email", "display_name", "role", "auth_provider", "provider_subject", "created_at", "updated_at"}

func TestUserRepository_GetByEmail(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewUserRepository(db, zap.NewNop())

	id := uuid.New()
	now := time.Now().UTC()

	t.Run("found", func(t *testing.T) {
		mock.ExpectQuery(regexp.QuoteMeta("FROM users WHERE email = $1")).
			WithArgs("ada@example.com").
			WillReturnRows(sqlmock.NewRows(userRowColumns).
				AddRow(id.String(), "ada@example.com", "ada@example.com", "Ada", "ADMIN", "google", "sub-1", now, now))

		user, err := repo.GetByEmail(context.Background(), "ada@example.com")
		require.NoError(t, err)
		assert.Equal(t, id, user.ID)
		assert.Equal(t, models.RoleAdmin, user.Role, "stored role is normalized on read")
		assert.Equal(t, "sub-1", user.ProviderSubject)
	})

	t.Run("not found", func(t *testing.T) {
		mock.ExpectQuery(regexp.QuoteMeta("FROM users WHERE email = $1")).
			WithArgs("nobody@example.com").
			WillReturnError(sql.ErrNoRows)

		_, err := repo.GetByEmail(context.Background(), "nobody@example.com")
		assert.True(t, services.IsNotFoundError(err))
	})

	t.Run("driver error", func(t *testing.T) {
		mock.ExpectQuery(regexp.QuoteMeta("FROM users WHERE email = $1")).
			WithArgs("ada@example.com").
			WillReturnError(errors.New("connection reset"))

		_, err := repo.GetByEmail(context.Background(), "ada@example.com")
		require.Error(t, err)
		assert.False(t, services.IsNotFoundError(err))
	})
}

func TestUserRepository_CreateIfAbsent(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewUserRepository(db, zap.NewNop())
	user := models.NewGoogleUser("ada@example.com", "sub-1", "Ada", models.RoleStudent)

	t.Run("inserted", func(t *testing.T) {
		mock.ExpectExec(regexp.QuoteMeta("ON CONFLICT (email) DO NOTHING")).
			WithArgs(user.ID, user.Username, user.Email, user.DisplayName, "student", "google", "sub-1", sqlmock.AnyArg(), sqlmock.AnyArg()).
			WillReturnResult(sqlmock.NewResult(0, 1))

		created, err := repo.CreateIfAbsent(context.Background(), user)
		require.NoError(t, err)
		assert.True(t, created)
	})

	t.Run("already present", func(t *testing.T) {
		mock.ExpectExec(regexp.QuoteMeta("ON CONFLICT (email) DO NOTHING")).
			WillReturnResult(sqlmock.NewResult(0, 0))

		created, err := repo.CreateIfAbsent(context.Background(), user)
		require.NoError(t, err)
		assert.False(t, created)
	})
}

func TestUserRepository_UpdateRole(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewUserRepository(db, zap.NewNop())

	mock.ExpectExec(regexp.QuoteMeta("UPDATE users SET role = $2")).
		WithArgs("ada@example.com", "admin", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	require.NoError(t, repo.UpdateRole(context.Background(), "ada@example.com", models.RoleAdmin))

	mock.ExpectExec(regexp.QuoteMeta("UPDATE users SET role = $2")).
		WithArgs("ghost@example.com", "admin", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 0))
	assert.True(t, services.IsNotFoundError(repo.UpdateRole(context.Background(), "ghost@example.com", models.RoleAdmin)))
}

func TestUserRepository_UpdateProviderSubject(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewUserRepository(db, zap.NewNop())

	mock.ExpectExec(regexp.QuoteMeta("UPDATE users SET provider_subject = $2")).
		WithArgs("ada@example.com", "sub-9", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, repo.UpdateProviderSubject(context.Background(), "ada@example.com", "sub-9"))
}

func TestUserRepository_List(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewUserRepository(db, zap.NewNop())
	now := time.Now().UTC()

	mock.ExpectQuery(regexp.QuoteMeta("FROM users ORDER BY created_at ASC LIMIT $1 OFFSET $2")).
		WithArgs(10, 0).
		WillReturnRows(sqlmock.NewRows(userRowColumns).
			AddRow(uuid.New().String(), "a@example.com", "a@example.com", "", "student", "google", "", now, now).
			AddRow(uuid.New().String(), "b@example.com", "b@example.com", "", "mystery", "google", "", now, now))

	users, err := repo.List(context.Background(), 10, 0)
	require.NoError(t, err)
	require.Len(t, users, 2)
	assert.Equal(t, models.RoleStudent, users[1].Role)
}

var courseRowColumns = []string{"id", "course_number", "course_code", "name", "description", "year", "term", "faculty", "credits", "capacity", "created_at", "updated_at"}

func TestCourseRepository_List(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewCourseRepository(db, zap.NewNop())
	now := time.Now().UTC()

	t.Run("rows", func(t *testing.T) {
		mock.ExpectQuery(regexp.QuoteMeta("FROM courses ORDER BY id ASC")).
			WillReturnRows(sqlmock.NewRows(courseRowColumns).
				AddRow(1, 101, "CS101", "Intro", "", 2025, "Fall", "Engineering", 3, 40, now, now).
				AddRow(2, 102, "CS102", "Data Structures", "Lists and trees", 2025, "Spring", "Engineering", 4, 35, now, now))

		courses, err := repo.List(context.Background())
		require.NoError(t, err)
		require.Len(t, courses, 2)
		assert.Equal(t, "CS102", courses[1].CourseCode)
		assert.Equal(t, 4, courses[1].Credits)
	})

	t.Run("empty table returns empty slice", func(t *testing.T) {
		mock.ExpectQuery(regexp.QuoteMeta("FROM courses ORDER BY id ASC")).
			WillReturnRows(sqlmock.NewRows(courseRowColumns))

		courses, err := repo.List(context.Background())
		require.NoError(t, err)
		assert.NotNil(t, courses)
		assert.Empty(t, courses)
	})
}

func TestCourseRepository_GetByID(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewCourseRepository(db, zap.NewNop())

	mock.ExpectQuery(regexp.QuoteMeta("FROM courses WHERE id = $1")).
		WithArgs(int64(99)).
		WillReturnError(sql.ErrNoRows)

	_, err := repo.GetByID(context.Background(), 99)
	assert.True(t, services.IsNotFoundError(err))
}

func TestCourseRepository_Create(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewCourseRepository(db, zap.NewNop())
	now := time.Now().UTC()

	course := models.NewCourse(models.CourseData{
		CourseNumber: 101, CourseCode: "CS101", Name: "Intro", Year: 2025,
		Term: "Fall", Faculty: "Engineering", Credits: 3, Capacity: 40,
	})

	mock.ExpectQuery(regexp.QuoteMeta("INSERT INTO courses")).
		WithArgs(101, "CS101", "Intro", "", 2025, "Fall", "Engineering", 3, 40, sqlmock.AnyArg()).
		WillReturnRows(sqlmock.NewRows([]string{"id", "created_at", "updated_at"}).AddRow(7, now, now))

	require.NoError(t, repo.Create(context.Background(), course))
	assert.Equal(t, int64(7), course.ID)
	assert.Equal(t, now, course.CreatedAt)
}

func TestCourseRepository_UpdateAndDelete(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewCourseRepository(db, zap.NewNop())
	course := &models.Course{ID: 7, CourseCode: "CS101", Name: "Intro", Year: 2025, Term: "Fall", Faculty: "Eng", Credits: 3, Capacity: 40}

	mock.ExpectExec(regexp.QuoteMeta("UPDATE courses")).
		WithArgs(int64(7), "CS101", "Intro", "", 2025, "Fall", "Eng", 3, 40, sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	require.NoError(t, repo.Update(context.Background(), course))

	mock.ExpectExec(regexp.QuoteMeta("UPDATE courses")).
		WillReturnResult(sqlmock.NewResult(0, 0))
	assert.True(t, services.IsNotFoundError(repo.Update(context.Background(), course)))

	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM courses WHERE id = $1")).
		WithArgs(int64(7)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	require.NoError(t, repo.Delete(context.Background(), 7))

	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM courses WHERE id = $1")).
		WithArgs(int64(7)).
		WillReturnResult(sqlmock.NewResult(0, 0))
	assert.True(t, services.IsNotFoundError(repo.Delete(context.Background(), 7)))
}

func TestSpecialisationRepository_CRUD(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewSpecialisationRepository(db, zap.NewNop())
	now := time.Now().UTC()
	cols := []string{"id", "code", "name", "description", "year", "credits_required", "created_at", "updated_at"}

	spec := &models.Specialisation{Code: "AI", Name: "Artificial Intelligence", Year: 2025, CreditsRequired: 48}
	mock.ExpectQuery(regexp.QuoteMeta("INSERT INTO specialisations")).
		WithArgs("AI", "Artificial Intelligence", "", 2025, 48, sqlmock.AnyArg()).
		WillReturnRows(sqlmock.NewRows([]string{"id", "created_at", "updated_at"}).AddRow(3, now, now))
	require.NoError(t, repo.Create(context.Background(), spec))
	assert.Equal(t, int64(3), spec.ID)

	mock.ExpectQuery(regexp.QuoteMeta("FROM specialisations WHERE id = $1")).
		WithArgs(int64(3)).
		WillReturnRows(sqlmock.NewRows(cols).AddRow(3, "AI", "Artificial Intelligence", "", 2025, 48, now, now))
	got, err := repo.GetByID(context.Background(), 3)
	require.NoError(t, err)
	assert.Equal(t, "AI", got.Code)

	mock.ExpectQuery(regexp.QuoteMeta("FROM specialisations ORDER BY id ASC")).
		WillReturnRows(sqlmock.NewRows(cols).AddRow(3, "AI", "Artificial Intelligence", "", 2025, 48, now, now))
	list, err := repo.List(context.Background())
	require.NoError(t, err)
	assert.Len(t, list, 1)

	mock.ExpectExec(regexp.QuoteMeta("UPDATE specialisations")).
		WillReturnResult(sqlmock.NewResult(0, 1))
	require.NoError(t, repo.Update(context.Background(), spec))

	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM specialisations WHERE id = $1")).
		WithArgs(int64(3)).
		WillReturnResult(sqlmock.NewResult(0, 0))
	assert.True(t, services.IsNotFoundError(repo.Delete(context.Background(), 3)))
}

func TestSpecialisationRepository_CourseLinks(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewSpecialisationRepository(db, zap.NewNop())
	now := time.Now().UTC()

	mock.ExpectExec(regexp.QuoteMeta("ON CONFLICT (specialisation_id, course_id) DO NOTHING")).
		WithArgs(int64(3), int64(7), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	require.NoError(t, repo.AddCourse(context.Background(), 3, 7))

	mock.ExpectQuery(regexp.QuoteMeta("JOIN specialisation_courses sc ON sc.course_id = c.id")).
		WithArgs(int64(3)).
		WillReturnRows(sqlmock.NewRows(courseRowColumns).
			AddRow(7, 101, "CS101", "Intro", "", 2025, "Fall", "Engineering", 3, 40, now, now))
	courses, err := repo.ListCourses(context.Background(), 3)
	require.NoError(t, err)
	require.Len(t, courses, 1)
	assert.Equal(t, int64(7), courses[0].ID)

	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM specialisation_courses")).
		WithArgs(int64(3), int64(7)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	removed, err := repo.RemoveCourse(context.Background(), 3, 7)
	require.NoError(t, err)
	assert.True(t, removed)

	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM specialisation_courses")).
		WithArgs(int64(3), int64(7)).
		WillReturnResult(sqlmock.NewResult(0, 0))
	removed, err = repo.RemoveCourse(context.Background(), 3, 7)
	require.NoError(t, err)
	assert.False(t, removed)
}

func TestAuditRepository_Insert(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewAuditRepository(db, zap.NewNop())

	entry := models.NewAuditLog(models.AuditActionCourseCreated, "course").
		WithActor("ada@example.com", models.RoleAdmin).
		WithResource("7").
		WithDetails(map[string]string{"code": "CS101"}).
		WithRequest("req-1", "10.0.0.1", "curl/8")

	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO audit_logs")).
		WithArgs(entry.ID, "ada@example.com", "admin", "course_created", "course", "7",
			[]byte(entry.Details), "10.0.0.1", "curl/8", "req-1", entry.Timestamp).
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, repo.Insert(context.Background(), entry))
}

func TestAuditRepository_List(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewAuditRepository(db, zap.NewNop())
	cols := []string{"id", "actor_email", "actor_role", "action", "resource_type", "resource_id", "details", "ip_address", "user_agent", "request_id", "timestamp"}
	details, _ := json.Marshal(map[string]string{"code": "CS101"})

	t.Run("filtered", func(t *testing.T) {
		mock.ExpectQuery(regexp.QuoteMeta("WHERE actor_email = $1 AND action = $2")).
			WithArgs("ada@example.com", "course_created", 20, 0).
			WillReturnRows(sqlmock.NewRows(cols).
				AddRow(uuid.New().String(), "ada@example.com", "admin", "course_created", "course", "7", details, "", "", "req-1", time.Now()))

		logs, err := repo.List(context.Background(), repositories.AuditFilter{
			ActorEmail: "ada@example.com",
			Action:     models.AuditActionCourseCreated,
			Limit:      20,
		})
		require.NoError(t, err)
		require.Len(t, logs, 1)
		assert.Equal(t, models.RoleAdmin, logs[0].ActorRole)
		assert.JSONEq(t, `{"code":"CS101"}`, string(logs[0].Details))
	})

	t.Run("limit is clamped", func(t *testing.T) {
		mock.ExpectQuery(regexp.QuoteMeta("LIMIT $1 OFFSET $2")).
			WithArgs(maxAuditLimit, 0).
			WillReturnRows(sqlmock.NewRows(cols))

		logs, err := repo.List(context.Background(), repositories.AuditFilter{Limit: 10000, Offset: -5})
		require.NoError(t, err)
		assert.Empty(t, logs)
	})
}

func TestTransactionManager_RepositoriesJoinTransaction(t *testing.T) {
	db, mock := newMockDB(t)
	tm := NewTransactionManager(db, zap.NewNop())
	repo := NewUserRepository(db, zap.NewNop())

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("UPDATE users SET role = $2")).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	tx, err := tm.Begin(context.Background())
	require.NoError(t, err)

	_, inTx := GetTransactionFromContext(tx.Context())
	assert.True(t, inTx)

	require.NoError(t, repo.UpdateRole(tx.Context(), "ada@example.com", models.RoleAdmin))
	require.NoError(t, tx.Commit())
}

func TestTransaction_RollbackAfterCommitIsNoop(t *testing.T) {
	db, mock := newMockDB(t)
	tm := NewTransactionManager(db, zap.NewNop())

	mock.ExpectBegin()
	mock.ExpectCommit()

	tx, err := tm.Begin(context.Background())
	require.NoError(t, err)
	require.NoError(t, tx.Commit())
	assert.NoError(t, tx.Rollback())
}

func TestGetExecutor_WithoutTransaction(t *testing.T) {
	db, _ := newMockDB(t)
	assert.Equal(t, db.DB, GetExecutor(context.Background(), db))
}

func TestDB_HealthCheck(t *testing.T) {
	sqlDB, mock, err := sqlmock.New(sqlmock.MonitorPingsOption(true))
	require.NoError(t, err)
	defer sqlDB.Close()
	db := WrapDB(sqlDB, zap.NewNop())

	mock.ExpectPing()
	mock.ExpectQuery("SELECT 1").WillReturnRows(sqlmock.NewRows([]string{"?column?"}).AddRow(1))
	assert.NoError(t, db.HealthCheck(context.Background()))

	mock.ExpectPing().WillReturnError(errors.New("down"))
	err = db.HealthCheck(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), `records database "records" unreachable`)

	mock.ExpectPing()
	mock.ExpectQuery("SELECT 1").WillReturnError(errors.New("read-only transaction"))
	err = db.HealthCheck(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "did not answer a query")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestDB_PoolStats(t *testing.T) {
	sqlDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(7)
	db := WrapDB(sqlDB, zap.NewNop())

	stats := db.PoolStats()
	assert.Equal(t, 7, stats.MaxOpen)
	assert.Equal(t, 0, stats.InUse)

	mock.ExpectClose()
	require.NoError(t, db.Close())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestMapWriteError(t *testing.T) {
	tests := []struct {
		name  string
		err   error
		check func(error) bool
	}{
		{"unique violation", &pq.Error{Code: "23505", Constraint: "idx_users_email"}, services.IsConflictError},
		{"foreign key violation", &pq.Error{Code: "23503"}, services.IsNotFoundError},
		{"check violation", &pq.Error{Code: "23514"}, services.IsValidationError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := mapWriteError("op", tt.err)
			assert.True(t, tt.check(err), "got %v", err)
		})
	}

	t.Run("other errors are wrapped", func(t *testing.T) {
		cause := errors.New("broken pipe")
		err := mapWriteError("failed to create course", cause)
		assert.ErrorIs(t, err, cause)
		assert.Contains(t, err.Error(), "failed to create course")
	})
}

func TestSpecialisationRepository_AddCourseUnknownCourse(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewSpecialisationRepository(db, zap.NewNop())

	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO specialisation_courses")).
		WillReturnError(&pq.Error{Code: "23503", Constraint: "specialisation_courses_course_id_fkey"})

	err := repo.AddCourse(context.Background(), 3, 999)
	assert.True(t, services.IsNotFoundError(err))
}
