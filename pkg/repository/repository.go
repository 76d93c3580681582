// Package repository holds the transaction and query helpers every store
// shares. Tenant-owned tables are read and written through WithScope or
// ReadScope so row-level security sees the caller's organization.
package repository

import (
	"context"
	"database/sql"
)

// Querier is satisfied by *sql.DB, *sql.Tx, and *sql.Conn.
type Querier interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// Executor is satisfied by *sql.DB, *sql.Tx, and *sql.Conn.
type Executor interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

// Scanner is satisfied by *sql.Row and *sql.Rows.
type Scanner interface {
	Scan(dest ...any) error
}

// ScanFunc reads one T from the current row.
type ScanFunc[T any] func(Scanner) (T, error)

var readOnly = &sql.TxOptions{ReadOnly: true}

// WithTx runs fn in a transaction, committing only if fn succeeds.
func WithTx[T any](ctx context.Context, db *sql.DB, fn func(tx *sql.Tx) (T, error)) (T, error) {
	return inTx(ctx, db, nil, fn)
}

// WithScope runs fn in a transaction bound to organizationID. The binding is
// transaction-local and never outlives the pooled connection's checkout.
func WithScope[T any](ctx context.Context, db *sql.DB, organizationID string, fn func(tx *sql.Tx) (T, error)) (T, error) {
	return inTx(ctx, db, nil, scoped(ctx, organizationID, fn))
}

// ReadScope is WithScope in a read-only transaction.
func ReadScope[T any](ctx context.Context, db *sql.DB, organizationID string, fn func(tx *sql.Tx) (T, error)) (T, error) {
	return inTx(ctx, db, readOnly, scoped(ctx, organizationID, fn))
}

func scoped[T any](ctx context.Context, organizationID string, fn func(tx *sql.Tx) (T, error)) func(tx *sql.Tx) (T, error) {
	return func(tx *sql.Tx) (T, error) {
		if _, err := tx.ExecContext(ctx, "SELECT set_config('app.current_org', $1, true)", organizationID); err != nil {
			var zero T
			return zero, err
		}
		return fn(tx)
	}
}

func inTx[T any](ctx context.Context, db *sql.DB, opts *sql.TxOptions, fn func(tx *sql.Tx) (T, error)) (T, error) {
	var zero T

	tx, err := db.BeginTx(ctx, opts)
	if err != nil {
		return zero, err
	}
	defer tx.Rollback()

	result, err := fn(tx)
	if err != nil {
		return zero, err
	}
	if err := tx.Commit(); err != nil {
		return zero, err
	}
	return result, nil
}

// QueryOne scans the single row query returns. A missing row surfaces as
// sql.ErrNoRows.
func QueryOne[T any](ctx context.Context, q Querier, query string, args []any, scan ScanFunc[T]) (T, error) {
	return scan(q.QueryRowContext(ctx, query, args...))
}

// QueryMany scans every row query returns. No rows yields an empty slice.
func QueryMany[T any](ctx context.Context, q Querier, query string, args []any, scan ScanFunc[T]) ([]T, error) {
	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	results := make([]T, 0)
	for rows.Next() {
		item, err := scan(rows)
		if err != nil {
			return nil, err
		}
		results = append(results, item)
	}
	return results, rows.Err()
}

// ExecExpectOne runs a statement that must touch exactly one row; touching
// none returns sql.ErrNoRows.
func ExecExpectOne(ctx context.Context, e Executor, query string, args ...any) error {
	result, err := e.ExecContext(ctx, query, args...)
	if err != nil {
		return err
	}

	n, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return sql.ErrNoRows
	}
	return nil
}
