package relational

import (
	"database/sql"
	"errors"
	"testing"

	"github.com/mattn/go-sqlite3"
	"github.com/stretchr/testify/assert"

	"workspacememory/internal/apperrors"
)

func TestClassifyError_NilPassesThrough(t *testing.T) {
	assert.NoError(t, ClassifyError(nil))
}

func TestClassifyError_NoRowsBecomesNotFound(t *testing.T) {
	err := ClassifyError(sql.ErrNoRows)
	assert.True(t, apperrors.IsNotFound(err))
}

func TestClassifyError_SQLiteConstraintBecomesConflict(t *testing.T) {
	err := ClassifyError(sqlite3.Error{Code: sqlite3.ErrConstraint})
	assert.True(t, apperrors.IsConflict(err))
}

func TestClassifyError_SQLiteOtherBecomesDatabase(t *testing.T) {
	err := ClassifyError(sqlite3.Error{Code: sqlite3.ErrBusy})
	assert.True(t, apperrors.IsKind(err, apperrors.KindDatabase))
}

func TestClassifyError_UniqueSubstringFallback(t *testing.T) {
	err := ClassifyError(errors.New("UNIQUE constraint failed: memories.id"))
	assert.True(t, apperrors.IsConflict(err))
}

func TestClassifyError_UnknownBecomesDatabase(t *testing.T) {
	err := ClassifyError(errors.New("connection refused"))
	assert.True(t, apperrors.IsKind(err, apperrors.KindDatabase))
}

type fakeResult struct {
	rowsAffected int64
	err          error
}

func (r fakeResult) LastInsertId() (int64, error) { return 0, nil }
func (r fakeResult) RowsAffected() (int64, error) { return r.rowsAffected, r.err }

func TestRowsAffectedOrNotFound_ZeroRowsIsNotFound(t *testing.T) {
	err := RowsAffectedOrNotFound(fakeResult{rowsAffected: 0}, "memory", "m1")
	assert.True(t, apperrors.IsNotFound(err))
}

func TestRowsAffectedOrNotFound_NonZeroIsNil(t *testing.T) {
	assert.NoError(t, RowsAffectedOrNotFound(fakeResult{rowsAffected: 1}, "memory", "m1"))
}

func TestDialect_PlaceholderStyles(t *testing.T) {
	assert.Equal(t, "?", sqliteDialect{}.Placeholder(1))
	assert.Equal(t, "$3", postgresDialect{}.Placeholder(3))
}
