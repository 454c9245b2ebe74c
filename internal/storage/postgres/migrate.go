package postgres

import (
	"context"
	"fmt"
	"io/fs"
	"log/slog"
	"sort"
	"strings"

	"github.com/jmoiron/sqlx"
)

// Migrate applies every *.up.sql file in fsys not yet recorded in
// schema_migrations, in name order, each in its own transaction.
func Migrate(ctx context.Context, db *sqlx.DB, fsys fs.FS, logger *slog.Logger) (int, error) {
	_, err := db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS schema_migrations (
			name       TEXT PRIMARY KEY,
			applied_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`)
	if err != nil {
		return 0, fmt.Errorf("create schema_migrations: %w", err)
	}

	names, err := fs.Glob(fsys, "*.up.sql")
	if err != nil {
		return 0, fmt.Errorf("list migrations: %w", err)
	}
	sort.Strings(names)

	var applied []string
	if err := db.SelectContext(ctx, &applied, "SELECT name FROM schema_migrations"); err != nil {
		return 0, fmt.Errorf("list applied migrations: %w", err)
	}
	done := make(map[string]bool, len(applied))
	for _, name := range applied {
		done[name] = true
	}

	tm := NewTransactionManager(db)
	count := 0
	for _, name := range names {
		if done[name] {
			continue
		}

		script, err := fs.ReadFile(fsys, name)
		if err != nil {
			return count, fmt.Errorf("read migration %s: %w", name, err)
		}

		err = tm.WithTransaction(ctx, func(txCtx context.Context) error {
			exec := GetExecutor(txCtx, db)
			if _, err := exec.ExecContext(txCtx, string(script)); err != nil {
				return err
			}
			_, err := exec.ExecContext(txCtx, "INSERT INTO schema_migrations (name) VALUES ($1)", name)
			return err
		})
		if err != nil {
			return count, fmt.Errorf("apply migration %s: %w", name, err)
		}

		logger.Info("migration applied", "name", strings.TrimSuffix(name, ".up.sql"))
		count++
	}
	return count, nil
}
