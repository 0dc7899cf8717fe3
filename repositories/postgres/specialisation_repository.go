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

const specialisationColumns = `id, code, name, description, year, credits_required, created_at, updated_at`

// SpecialisationRepository implements the repositories.SpecialisationRepository interface
type SpecialisationRepository struct {
	db     *DB
	logger *zap.Logger
}

// NewSpecialisationRepository creates a new specialisation repository
func NewSpecialisationRepository(db *DB, logger *zap.Logger) repositories.SpecialisationRepository {
	return &SpecialisationRepository{
		db:     db,
		logger: logger,
	}
}

func scanSpecialisation(row rowScanner) (*models.Specialisation, error) {
	s := &models.Specialisation{}
	err := row.Scan(
		&s.ID,
		&s.Code,
		&s.Name,
		&s.Description,
		&s.Year,
		&s.CreditsRequired,
		&s.CreatedAt,
		&s.UpdatedAt,
	)
	return s, err
}

// List returns every specialisation ordered by id
func (r *SpecialisationRepository) List(ctx context.Context) ([]*models.Specialisation, error) {
	query := `SELECT ` + specialisationColumns + ` FROM specialisations ORDER BY id ASC`

	executor := GetExecutor(ctx, r.db)
	rows, err := executor.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to query specialisations: %w", err)
	}
	defer rows.Close()

	specs := make([]*models.Specialisation, 0)
	for rows.Next() {
		s, err := scanSpecialisation(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan specialisation: %w", err)
		}
		specs = append(specs, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating specialisation rows: %w", err)
	}
	return specs, nil
}

// GetByID retrieves a specialisation by ID
func (r *SpecialisationRepository) GetByID(ctx context.Context, id int64) (*models.Specialisation, error) {
	query := `SELECT ` + specialisationColumns + ` FROM specialisations WHERE id = $1`

	executor := GetExecutor(ctx, r.db)
	s, err := scanSpecialisation(executor.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, services.NotFound("specialisation", id)
		}
		return nil, fmt.Errorf("failed to get specialisation: %w", err)
	}
	return s, nil
}

// Create creates a new specialisation
func (r *SpecialisationRepository) Create(ctx context.Context, spec *models.Specialisation) error {
	query := `
		INSERT INTO specialisations (code, name, description, year, credits_required, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $6)
		RETURNING id, created_at, updated_at
	`

	executor := GetExecutor(ctx, r.db)
	err := executor.QueryRowContext(ctx, query,
		spec.Code,
		spec.Name,
		spec.Description,
		spec.Year,
		spec.CreditsRequired,
		time.Now().UTC(),
	).Scan(&spec.ID, &spec.CreatedAt, &spec.UpdatedAt)
	if err != nil {
		return mapWriteError("failed to create specialisation", err)
	}

	r.logger.Debug("specialisation created", zap.Int64("id", spec.ID), zap.String("code", spec.Code))
	return nil
}

// Update updates a specialisation
func (r *SpecialisationRepository) Update(ctx context.Context, spec *models.Specialisation) error {
	query := `
		UPDATE specialisations
		SET code = $2,
		    name = $3,
		    description = $4,
		    year = $5,
		    credits_required = $6,
		    updated_at = $7
		WHERE id = $1
	`

	spec.UpdatedAt = time.Now().UTC()
	executor := GetExecutor(ctx, r.db)
	result, err := executor.ExecContext(ctx, query,
		spec.ID,
		spec.Code,
		spec.Name,
		spec.Description,
		spec.Year,
		spec.CreditsRequired,
		spec.UpdatedAt,
	)
	if err != nil {
		return mapWriteError("failed to update specialisation", err)
	}
	return requireOneRow(result, "specialisation", spec.ID)
}

// Delete deletes a specialisation; its course links go with it
func (r *SpecialisationRepository) Delete(ctx context.Context, id int64) error {
	query := `DELETE FROM specialisations WHERE id = $1`

	executor := GetExecutor(ctx, r.db)
	result, err := executor.ExecContext(ctx, query, id)
	if err != nil {
		return fmt.Errorf("failed to delete specialisation: %w", err)
	}
	return requireOneRow(result, "specialisation", id)
}

// ListCourses returns the courses linked to a specialisation ordered by course id
func (r *SpecialisationRepository) ListCourses(ctx context.Context, specialisationID int64) ([]*models.Course, error) {
	query := `
		SELECT c.id, c.course_number, c.course_code, c.name, c.description, c.year, c.term, c.faculty, c.credits, c.capacity, c.created_at, c.updated_at
		FROM courses c
		JOIN specialisation_courses sc ON sc.course_id = c.id
		WHERE sc.specialisation_id = $1
		ORDER BY c.id ASC
	`

	executor := GetExecutor(ctx, r.db)
	rows, err := executor.QueryContext(ctx, query, specialisationID)
	if err != nil {
		return nil, fmt.Errorf("failed to query specialisation courses: %w", err)
	}
	return collectCourses(rows)
}

// AddCourse links a course to a specialisation
func (r *SpecialisationRepository) AddCourse(ctx context.Context, specialisationID, courseID int64) error {
	query := `
		INSERT INTO specialisation_courses (specialisation_id, course_id, created_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (specialisation_id, course_id) DO NOTHING
	`

	executor := GetExecutor(ctx, r.db)
	if _, err := executor.ExecContext(ctx, query, specialisationID, courseID, time.Now().UTC()); err != nil {
		return mapWriteError("failed to link course", err)
	}
	return nil
}

// RemoveCourse unlinks a course from a specialisation
func (r *SpecialisationRepository) RemoveCourse(ctx context.Context, specialisationID, courseID int64) (bool, error) {
	query := `DELETE FROM specialisation_courses WHERE specialisation_id = $1 AND course_id = $2`

	executor := GetExecutor(ctx, r.db)
	result, err := executor.ExecContext(ctx, query, specialisationID, courseID)
	if err != nil {
		return false, fmt.Errorf("failed to unlink course: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return rows > 0, nil
}
