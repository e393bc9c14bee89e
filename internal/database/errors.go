package database

import (
	"errors"

	"github.com/jackc/pgx/v5/pgconn"
)

// SQLSTATE codes the scheduler treats as store contention.
const (
	uniqueViolationCode      = "23505"
	serializationFailureCode = "40001"
	deadlockDetectedCode     = "40P01"
)

// IsUniqueViolation reports whether err is a Postgres unique-constraint
// violation. A violation of uq_incidents_open signals a concurrent incident
// insert and the surrounding transaction must be retried.
func IsUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == uniqueViolationCode
}

// IsContention reports whether err is a retryable store-contention failure:
// serialization failure, deadlock, or a unique violation. The violated index
// is not inspected; in the completion transaction only uq_incidents_open can
// raise one.
func IsContention(err error) bool {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return false
	}
	switch pgErr.Code {
	case uniqueViolationCode, serializationFailureCode, deadlockDetectedCode:
		return true
	}
	return false
}
