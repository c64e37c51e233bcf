package postgresql

import (
	"errors"
	"fmt"
	"parking_lifecycle/internal/repository"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/lib/pq"
)

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Code.Name() == "unique_violation"
	}
	return false
}

// isServerError reports whether Postgres answered with an SQL error, as opposed to
// the request never completing.
func isServerError(err error) bool {
	var pgErr *pgconn.PgError
	var pqErr *pq.Error
	return errors.As(err, &pgErr) || errors.As(err, &pqErr)
}

// wrap tags transport failures (dial, timeout, cancelled context, broken pool) as
// repository.ErrUnavailable so callers can tell them from constraint violations.
func wrap(op string, err error) error {
	if isServerError(err) {
		return fmt.Errorf("%s: %w", op, err)
	}
	return fmt.Errorf("%s: %w: %v", op, repository.ErrUnavailable, err)
}
