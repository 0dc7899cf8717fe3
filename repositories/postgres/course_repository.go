package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/upb/academic-records/models"
	"github.com/upb/academic-records/repositories"
	"github.com/upb/academic-records/services"
	"go.uber.org/zap"
)

const courseColumns = `id, course_number, course_code, name, description, year, term, faculty, credits, capacity, created_at, updated_at`

// CourseRepository implements the repositories.CourseRepository interface
type CourseRepository struct {
	db     *DB
	logger *zap.Logger
}

// NewCourseRepository creates a new course repository
func NewCourseRepository(db *DB, logger *zap.Logger) repositories.CourseRepository {
	return &CourseRepository{
		db:     db,
		logger: logger,
	}
}

func scanCourse(row rowScanner) (*models.Course, error) {
	c := &models.Course{}
	err := row.Scan(
		&c.ID,
		&c.CourseNumber,
		&c.CourseCode,
		&c.Name,
		&c.Description,
		&c.Year,
		&c.Term,
		&c.Faculty,
		&c.Credits,
		&c.Capacity,
		&c.CreatedAt,
		&c.UpdatedAt,
	)
	return c, err
}

func collectCourses(rows *sql.Rows) ([]*models.Course, error) {
	defer rows.Close()

	courses := make([]*models.Course, 0)
	for rows.Next() {
		c, err := scanCourse(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan course: %w", err)
		}
		courses = append(courses, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating course rows: %w", err)
	}
	return courses, nil
}

// List returns every course ordered by id
func (r *CourseRepository) List(ctx context.Context) ([]*models.Course, error) {
	query := `SELECT ` + courseColumns + ` FROM courses ORDER BY id ASC`

	executor := GetExecutor(ctx, r.db)
	rows, err := executor.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to query courses: %w", err)
	}
	return collectCourses(rows)
}

// GetByID retrieves a course by ID
func (r *CourseRepository) GetByID(ctx context.Context, id int64) (*models.Course, error) {
	query := `SELECT ` + courseColumns + ` FROM courses WHERE id = $1`

	executor := GetExecutor(ctx, r.db)
	c, err := scanCourse(executor.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, services.NotFound("course", id)
		}
		return nil, fmt.Errorf("failed to get course: %w", err)
	}
	return c, nil
}

// Create creates a new course
func (r *CourseRepository) Create(ctx context.Context, course *models.Course) error {
	query := `
		INSERT INTO courses (course_number, course_code, name, description, year, term, faculty, credits, capacity, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $10)
		RETURNING id, created_at, updated_at
	`

	now := time.Now().UTC()
	executor := GetExecutor(ctx, r.db)
	err := executor.QueryRowContext(ctx, query,
		course.CourseNumber,
		course.CourseCode,
		course.Name,
		course.Description,
		course.Year,
		course.Term,
		course.Faculty,
		course.Credits,
		course.Capacity,
		now,
	).Scan(&course.ID, &course.CreatedAt, &course.UpdatedAt)
	if err != nil {
		return mapWriteError("failed to create course", err)
	}

	r.logger.Debug("course created", zap.Int64("id", course.ID), zap.String("code", course.CourseCode))
	return nil
}

// Update updates a course
func (r *CourseRepository) Update(ctx context.Context, course *models.Course) error {
	query := `
		UPDATE courses
		SET course_code = $2,
		    name = $3,
		    description = $4,
		    year = $5,
		    term = $6,
		    faculty = $7,
		    credits = $8,
		    capacity = $9,
		    updated_at = $10
		WHERE id = $1
	`

	course.UpdatedAt = time.Now().UTC()
	executor := GetExecutor(ctx, r.db)
	result, err := executor.ExecContext(ctx, query,
		course.ID,
		course.CourseCode,
		course.Name,
		course.Description,
		course.Year,
		course.Term,
		course.Faculty,
		course.Credits,
		course.Capacity,
		course.UpdatedAt,
	)
	if err != nil {
		return mapWriteError("failed to update course", err)
	}
	return requireOneRow(result, "course", course.ID)
}

// Delete deletes a course
func (r *CourseRepository) Delete(ctx context.Context, id int64) error {
	query := `DELETE FROM courses WHERE id = $1`

	executor := GetExecutor(ctx, r.db)
	result, err := executor.ExecContext(ctx, query, id)
	if err != nil {
		return fmt.Errorf("failed to delete course: %w", err)
	}
	if err := requireOneRow(result, "course", id); err != nil {
		return err
	}

	r.logger.Debug("course deleted", zap.Int64("id", id))
	return nil
}
