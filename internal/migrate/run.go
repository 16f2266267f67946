// Package migrate applies the embedded session schema migrations.
package migrate

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"sort"
	"strings"

	"github.com/target/mmk-bff/internal/data/pgxutil"
)

const versionTable = "bff_schema_migrations"

// migrationLock serializes replicas that start with migrations enabled. A replica that waits
// on it finds the migration already recorded and skips it.
var migrationLock = pgxutil.AdvisoryLock{Major: 2000, Minor: 0}

// Migration is one embedded SQL file.
type Migration struct {
	Version string
	File    string
}

// Run applies every pending migration, each in its own transaction. It is safe to call
// multiple times and from several replicas.
func Run(ctx context.Context, db *sql.DB) error {
	if db == nil {
		return errors.New("nil database")
	}
	logger := slog.Default().With("component", "migrations")

	// Concurrent CREATE TABLE IF NOT EXISTS can still collide, so it runs under the lock too.
	err := pgxutil.WithSQLTx(ctx, db, pgxutil.SQLTxConfig{
		Fn: func(tx *sql.Tx) error {
			if err := pgxutil.XactLock(ctx, tx, migrationLock); err != nil {
				return err
			}
			_, err := tx.ExecContext(ctx, `
				CREATE TABLE IF NOT EXISTS `+versionTable+` (
					version    TEXT PRIMARY KEY,
					applied_at TIMESTAMPTZ NOT NULL DEFAULT now()
				)`)
			return err
		},
	})
	if err != nil {
		return fmt.Errorf("create %s table: %w", versionTable, err)
	}

	all, err := List(migrationsFS)
	if err != nil {
		return err
	}
	for _, m := range all {
		if err := apply(ctx, db, m, logger); err != nil {
			return err
		}
	}
	return nil
}

// List returns the .sql files under migrations/ ordered by version.
func List(fsys fs.FS) ([]Migration, error) {
	entries, err := fs.ReadDir(fsys, "migrations")
	if err != nil {
		return nil, fmt.Errorf("read migrations: %w", err)
	}
	out := make([]Migration, 0, len(entries))
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !strings.HasSuffix(name, ".sql") {
			continue
		}
		out = append(out, Migration{Version: strings.TrimSuffix(name, ".sql"), File: name})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Version < out[j].Version })
	return out, nil
}

func apply(ctx context.Context, db *sql.DB, m Migration, logger *slog.Logger) error {
	body, err := fs.ReadFile(migrationsFS, "migrations/"+m.File)
	if err != nil {
		return fmt.Errorf("read migration %s: %w", m.File, err)
	}

	return pgxutil.WithSQLTx(ctx, db, pgxutil.SQLTxConfig{
		Fn: func(tx *sql.Tx) error {
			if err := pgxutil.XactLock(ctx, tx, migrationLock); err != nil {
				return err
			}

			var applied bool
			if err := tx.QueryRowContext(ctx,
				`SELECT EXISTS(SELECT 1 FROM `+versionTable+` WHERE version = $1)`, m.Version).Scan(&applied); err != nil {
				return fmt.Errorf("check migration %s: %w", m.File, err)
			}
			if applied {
				return nil
			}

			logger.InfoContext(ctx, "applying migration", "version", m.Version)
			if _, err := tx.ExecContext(ctx, string(body)); err != nil {
				return fmt.Errorf("exec migration %s: %w", m.File, err)
			}
			if _, err := tx.ExecContext(ctx,
				`INSERT INTO `+versionTable+` (version) VALUES ($1)`, m.Version); err != nil {
				return fmt.Errorf("record migration %s: %w", m.File, err)
			}
			return nil
		},
	})
}
