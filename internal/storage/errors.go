package storage

import (
	"errors"

	"github.com/jackc/pgx/v5/pgconn"
)

// ErrNotFound is returned when a requested entity does not exist.
var ErrNotFound = errors.New("storage: not found")

// ErrIntegrity wraps constraint violations: duplicate versions, dangling
// references, relation cycles. Callers treat it as non-retryable.
var ErrIntegrity = errors.New("storage: integrity violation")

// isIntegrityViolation reports whether err is a PostgreSQL integrity
// constraint error (SQLSTATE class 23).
func isIntegrityViolation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return len(pgErr.Code) >= 2 && pgErr.Code[:2] == "23"
	}
	return false
}

// classify wraps integrity violations with ErrIntegrity so callers can
// branch on errors.Is without depending on pgconn.
func classify(err error) error {
	if err == nil {
		return nil
	}
	if isIntegrityViolation(err) {
		return errors.Join(ErrIntegrity, err)
	}
	return err
}
