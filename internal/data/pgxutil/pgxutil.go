// Package pgxutil holds transaction helpers shared by the Postgres repositories.
package pgxutil

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

// SQLTxConfig groups parameters for WithSQLTx to keep parameter count <= 3.
type SQLTxConfig struct {
	Opts *sql.TxOptions
	Fn   func(*sql.Tx) error
}

// WithSQLTx runs the given function within a database/sql transaction.
// The transaction commits when Fn returns nil and rolls back otherwise.
func WithSQLTx(ctx context.Context, db *sql.DB, cfg SQLTxConfig) (err error) {
	if db == nil {
		return errors.New("nil database")
	}
	tx, err := db.BeginTx(ctx, cfg.Opts)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() {
		if rerr := tx.Rollback(); rerr != nil && !errors.Is(rerr, sql.ErrTxDone) {
			err = errors.Join(err, fmt.Errorf("rollback: %w", rerr))
		}
	}()
	if err = cfg.Fn(tx); err != nil {
		return err
	}
	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

// AdvisoryLock names a two-key transaction-scoped advisory lock.
type AdvisoryLock struct {
	Major int32
	Minor int32
}

// TryXactLock attempts pg_try_advisory_xact_lock inside tx. The lock is released on commit or rollback.
func TryXactLock(ctx context.Context, tx *sql.Tx, lock AdvisoryLock) (bool, error) {
	var locked bool
	if err := tx.QueryRowContext(ctx, "SELECT pg_try_advisory_xact_lock($1, $2)", lock.Major, lock.Minor).Scan(&locked); err != nil {
		return false, fmt.Errorf("acquire advisory lock %d/%d: %w", lock.Major, lock.Minor, err)
	}
	return locked, nil
}

// XactLock blocks until pg_advisory_xact_lock is granted inside tx or ctx ends.
func XactLock(ctx context.Context, tx *sql.Tx, lock AdvisoryLock) error {
	if _, err := tx.ExecContext(ctx, "SELECT pg_advisory_xact_lock($1, $2)", lock.Major, lock.Minor); err != nil {
		return fmt.Errorf("wait for advisory lock %d/%d: %w", lock.Major, lock.Minor, err)
	}
	return nil
}
