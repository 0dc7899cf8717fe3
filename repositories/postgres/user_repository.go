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

const userColumns = `id, username, email, display_name, role, auth_provider, COALESCE(provider_subject, ''), created_at, updated_at`

// UserRepository implements the repositories.UserRepository interface
type UserRepository struct {
	db     *DB
	logger *zap.Logger
}

// NewUserRepository creates a new user repository
func NewUserRepository(db *DB, logger *zap.Logger) repositories.UserRepository {
	return &UserRepository{
		db:     db,
		logger: logger,
	}
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanUser(row rowScanner) (*models.User, error) {
	user := &models.User{}
	var role string
	err := row.Scan(
		&user.ID,
		&user.Username,
		&user.Email,
		&user.DisplayName,
		&role,
		&user.AuthProvider,
		&user.ProviderSubject,
		&user.CreatedAt,
		&user.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	user.Role = models.ParseRole(role)
	return user, nil
}

// GetByEmail retrieves a user by email
func (r *UserRepository) GetByEmail(ctx context.Context, email string) (*models.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE email = $1`

	executor := GetExecutor(ctx, r.db)
	user, err := scanUser(executor.QueryRowContext(ctx, query, email))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, services.NotFound("user", email)
		}
		return nil, fmt.Errorf("failed to get user: %w", err)
	}

	return user, nil
}

// CreateIfAbsent inserts the user unless the email is already taken.
// The unique index on email makes concurrent inserts for one email settle on a single row.
func (r *UserRepository) CreateIfAbsent(ctx context.Context, user *models.User) (bool, error) {
	query := `
		INSERT INTO users (id, username, email, display_name, role, auth_provider, provider_subject, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, NULLIF($7, ''), $8, $9)
		ON CONFLICT (email) DO NOTHING
	`

	executor := GetExecutor(ctx, r.db)
	result, err := executor.ExecContext(ctx, query,
		user.ID,
		user.Username,
		user.Email,
		user.DisplayName,
		user.Role.String(),
		user.AuthProvider,
		user.ProviderSubject,
		user.CreatedAt,
		user.UpdatedAt,
	)
	if err != nil {
		return false, mapWriteError("failed to create user", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get rows affected: %w", err)
	}

	if rows == 1 {
		r.logger.Debug("user created", zap.String("id", user.ID.String()), zap.String("email", user.Email))
	}
	return rows == 1, nil
}

// UpdateRole sets the role of the user with the given email
func (r *UserRepository) UpdateRole(ctx context.Context, email string, role models.Role) error {
	query := `UPDATE users SET role = $2, updated_at = $3 WHERE email = $1`

	executor := GetExecutor(ctx, r.db)
	result, err := executor.ExecContext(ctx, query, email, role.String(), time.Now().UTC())
	if err != nil {
		return fmt.Errorf("failed to update user role: %w", err)
	}
	return requireOneRow(result, "user", email)
}

// UpdateProviderSubject records the identity provider subject for a user
func (r *UserRepository) UpdateProviderSubject(ctx context.Context, email, subject string) error {
	query := `UPDATE users SET provider_subject = $2, updated_at = $3 WHERE email = $1`

	executor := GetExecutor(ctx, r.db)
	result, err := executor.ExecContext(ctx, query, email, subject, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("failed to update provider subject: %w", err)
	}
	return requireOneRow(result, "user", email)
}

// List retrieves users ordered by creation time
func (r *UserRepository) List(ctx context.Context, limit, offset int) ([]*models.User, error) {
	query := `SELECT ` + userColumns + ` FROM users ORDER BY created_at ASC LIMIT $1 OFFSET $2`

	executor := GetExecutor(ctx, r.db)
	rows, err := executor.QueryContext(ctx, query, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to query users: %w", err)
	}
	defer rows.Close()

	users := make([]*models.User, 0)
	for rows.Next() {
		user, err := scanUser(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan user: %w", err)
		}
		users = append(users, user)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating user rows: %w", err)
	}

	return users, nil
}

