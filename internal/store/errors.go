package store

import (
	"errors"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/rotisserie/eris"

	"github.com/prensa-labs/newsgraph/internal/resilience"
)

// ConstraintError marks a persistence failure caused by the data's shape
// (constraint or validation violation). Retrying the same payload cannot
// succeed, so it is never retried and routes straight to the error record.
type ConstraintError struct {
	Err error
}

func (e *ConstraintError) Error() string {
	return "constraint violation: " + e.Err.Error()
}

func (e *ConstraintError) Unwrap() error { return e.Err }

// IsConstraint reports whether err is a data-shape failure.
func IsConstraint(err error) bool {
	var ce *ConstraintError
	return errors.As(err, &ce)
}

// classifyPg wraps a pgx error so the retry layer can tell connection-class
// failures (retried once) from constraint violations (not retried).
func classifyPg(err error, msg string) error {
	if err == nil {
		return nil
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code[:2] {
		case "23", "22", "42": // integrity, data, syntax/shape
			return &ConstraintError{Err: eris.Wrap(err, msg)}
		case "08", "57", "53": // connection, operator intervention, resources
			return resilience.NewTransientError(eris.Wrap(err, msg), 0)
		}
		return eris.Wrap(err, msg)
	}

	if resilience.IsTransient(err) {
		return resilience.NewTransientError(eris.Wrap(err, msg), 0)
	}
	return eris.Wrap(err, msg)
}

// classifySQLite is the SQLite counterpart of classifyPg. The driver reports
// lock contention as "database is locked" / "database table is locked"
// (SQLITE_BUSY, SQLITE_LOCKED) strings; those clear on retry. Constraint
// violations mention the violated constraint and never do.
func classifySQLite(err error, msg string) error {
	if err == nil {
		return nil
	}

	text := strings.ToLower(err.Error())
	switch {
	case strings.Contains(text, "constraint"):
		return &ConstraintError{Err: eris.Wrap(err, msg)}
	case strings.Contains(text, "database is locked"),
		strings.Contains(text, "database table is locked"),
		strings.Contains(text, "busy"):
		return resilience.NewTransientError(eris.Wrap(err, msg), 0)
	}
	return eris.Wrap(err, msg)
}
