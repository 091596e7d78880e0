// Package relational defines the relational adapter: parameterized
// query/exec, transactions, and driver-error classification, uniform
// across the embedded (SQLite) and networked (PostgreSQL) backends.
package relational

import (
	"context"
	"database/sql"
)

// Querier is satisfied by both *sql.DB and *sql.Tx, letting callers write
// query helpers once and share them between top-level calls and
// transactions.
type Querier interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
}

// Dialect captures the SQL difference between backends that query code
// needs: the parameter placeholder style.
type Dialect interface {
	// Placeholder returns the parameter marker for the nth (1-indexed) bind
	// variable, e.g. "?" for SQLite, "$1" for PostgreSQL.
	Placeholder(n int) string
	Name() string
}

// Store is the relational adapter's capability set: query/exec plus
// transactions, uniform across backends.
type Store interface {
	Querier
	Dialect() Dialect
	BeginTx(ctx context.Context) (Tx, error)
	Close() error
}

// Tx is a transaction: the same query/exec surface plus commit/rollback.
type Tx interface {
	Querier
	Commit() error
	Rollback() error
}

// WithTransaction runs fn inside a transaction, committing on success and
// rolling back on any error or panic. Only the SQL transaction is rolled
// back; vector-store writes fn makes are not undone.
func WithTransaction(ctx context.Context, store Store, fn func(tx Tx) error) (err error) {
	tx, err := store.BeginTx(ctx)
	if err != nil {
		return err
	}
	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			panic(p)
		}
	}()

	if err = fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err = tx.Commit(); err != nil {
		return err
	}
	return nil
}
