package postgres

import (
	"database/sql"
	"errors"
	"fmt"

	"github.com/lib/pq"
	"github.com/upb/academic-records/services"
)

// PostgreSQL error codes the repositories translate
const (
	pqUniqueViolation     = "23505"
	pqForeignKeyViolation = "23503"
	pqCheckViolation      = "23514"
)

// mapWriteError converts constraint violations into domain errors and wraps everything else.
func mapWriteError(op string, err error) error {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		switch string(pqErr.Code) {
		case pqUniqueViolation:
			return services.NewDomainError(services.ErrorTypeConflict, "resource already exists", err).
				WithDetail("constraint", pqErr.Constraint)
		case pqForeignKeyViolation:
			return services.NewDomainError(services.ErrorTypeNotFound, "referenced resource not found", err).
				WithDetail("constraint", pqErr.Constraint)
		case pqCheckViolation:
			return services.NewDomainError(services.ErrorTypeValidation, "value out of range", err).
				WithDetail("constraint", pqErr.Constraint)
		}
	}
	return fmt.Errorf("%s: %w", op, err)
}

// requireOneRow turns an update or delete that touched nothing into a not-found error
func requireOneRow(result sql.Result, resource string, id interface{}) error {
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows == 0 {
		return services.NotFound(resource, id)
	}
	return nil
}
