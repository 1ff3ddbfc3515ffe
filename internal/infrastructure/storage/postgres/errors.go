package postgres

import (
	"context"
	"errors"
	"net"

	"github.com/jackc/pgx/v5/pgconn"

	"prodflow/internal/core/apperror"
)

// Postgres error codes the repositories react to.
const (
	pgUniqueViolation      = "23505"
	pgSerializationFailure = "40001"
	pgDeadlockDetected     = "40P01"
	pgLockNotAvailable     = "55P03"
	pgQueryCanceled        = "57014"
)

// Classify maps driver errors onto the application taxonomy.
// Transport failures become STORAGE_UNAVAILABLE with the cause kept;
// AppErrors and nil pass through unchanged.
func Classify(err error) error {
	if err == nil || apperror.IsAppError(err) {
		return err
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case pgUniqueViolation:
			return apperror.NewConflict("record already exists").
				WithDetail("constraint", pgErr.ConstraintName).
				WithCause(err)
		case pgSerializationFailure, pgDeadlockDetected, pgLockNotAvailable:
			return apperror.NewConcurrencyConflict(pgErr.TableName, pgErr.Code).WithCause(err)
		case pgQueryCanceled:
			return apperror.NewStorageUnavailable(err)
		}
		if len(pgErr.Code) >= 2 && (pgErr.Code[:2] == "08" || pgErr.Code[:2] == "53" || pgErr.Code[:2] == "57") {
			return apperror.NewStorageUnavailable(err)
		}
		return err
	}

	var connErr *pgconn.ConnectError
	var netErr net.Error
	switch {
	case errors.As(err, &connErr), errors.As(err, &netErr), pgconn.Timeout(err):
		return apperror.NewStorageUnavailable(err)
	case errors.Is(err, context.DeadlineExceeded):
		return apperror.NewStorageUnavailable(err)
	}
	return err
}
