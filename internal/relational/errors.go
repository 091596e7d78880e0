package relational

import (
	"database/sql"
	"errors"
	"strings"

	"github.com/lib/pq"
	"github.com/mattn/go-sqlite3"

	"workspacememory/internal/apperrors"
)

// ClassifyError maps a driver error to the taxonomy: unique-violation to
// conflict, sql.ErrNoRows to not_found (resource/id filled in by the
// caller, who knows which lookup missed), everything else to database.
// Callers never see driver-specific error types.
func ClassifyError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, sql.ErrNoRows) {
		return apperrors.NotFound("row", "")
	}

	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		if pqErr.Code.Class() == "23" { // integrity constraint violation
			return apperrors.Conflict(pqErr.Message)
		}
		return apperrors.Database(pqErr.Message, err)
	}

	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) {
		if sqliteErr.Code == sqlite3.ErrConstraint {
			return apperrors.Conflict(sqliteErr.Error())
		}
		return apperrors.Database(sqliteErr.Error(), err)
	}

	if strings.Contains(strings.ToLower(err.Error()), "unique") {
		return apperrors.Conflict(err.Error())
	}
	return apperrors.Database(err.Error(), err)
}

// RowsAffectedOrNotFound inspects a sql.Result from an UPDATE/DELETE and
// returns a not_found error if zero rows were affected.
func RowsAffectedOrNotFound(result sql.Result, resource, id string) error {
	n, err := result.RowsAffected()
	if err != nil {
		return apperrors.Database("failed to read rows affected", err)
	}
	if n == 0 {
		return apperrors.NotFound(resource, id)
	}
	return nil
}
