package store

import (
	"context"
	"fmt"
	"io/fs"
	"log"
	"path"
	"slices"

	"gitea.jw6.us/james/odoolink/internal/migrations"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// PgxPool is the subset of pgxpool.Pool used by the ledger and the
// migration runner. Tests supply a scripted mock.
type PgxPool interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	BeginTx(ctx context.Context, txOptions pgx.TxOptions) (pgx.Tx, error)
}

const (
	sqlTrackingExists = `SELECT EXISTS (SELECT 1 FROM information_schema.tables
WHERE table_schema = 'public' AND table_name = 'schema_migrations')`
	sqlCountTables = `SELECT COUNT(*) FROM information_schema.tables
WHERE table_schema NOT IN ('pg_catalog', 'information_schema')`
	sqlCreateTracking = `CREATE TABLE IF NOT EXISTS schema_migrations (
	version    TEXT PRIMARY KEY,
	applied_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
)`
	sqlVersionApplied = `SELECT EXISTS (SELECT 1 FROM schema_migrations WHERE version=$1)`
	sqlMarkApplied    = `INSERT INTO schema_migrations (version) VALUES ($1) ON CONFLICT (version) DO NOTHING`
)

// execer is satisfied by both the pool and a transaction.
type execer interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
}

// ApplyMigrations brings the ledger schema up to date with the embedded
// migrations. A database that already holds tables but has no
// schema_migrations table is assumed to carry the first migration.
func ApplyMigrations(ctx context.Context, pool PgxPool) error {
	defer observeDB(ctx, "db.migrate")()
	return applyFrom(ctx, pool, migrations.Files)
}

func applyFrom(ctx context.Context, pool PgxPool, files fs.FS) error {
	pending, err := sqlFiles(files)
	if err != nil || len(pending) == 0 {
		return err
	}

	if err := adoptUntracked(ctx, pool, pending[0]); err != nil {
		return err
	}

	count := 0
	for _, name := range pending {
		done, err := queryBool(ctx, pool, sqlVersionApplied, name)
		if err != nil {
			return fmt.Errorf("check migration %s: %w", name, err)
		}
		if done {
			continue
		}
		if err := runInTx(ctx, pool, files, name); err != nil {
			return err
		}
		count++
	}
	if count > 0 {
		log.Printf("[INFO] applied %d ledger migration(s)", count)
	}
	return nil
}

// adoptUntracked creates schema_migrations when it is missing. On a
// database that already has tables, first is marked applied instead of run.
func adoptUntracked(ctx context.Context, pool PgxPool, first string) error {
	tracked, err := queryBool(ctx, pool, sqlTrackingExists)
	if err != nil {
		return fmt.Errorf("check migration table: %w", err)
	}
	if tracked {
		return nil
	}

	var tables int
	if err := pool.QueryRow(ctx, sqlCountTables).Scan(&tables); err != nil {
		return fmt.Errorf("count tables: %w", err)
	}
	if _, err := pool.Exec(ctx, sqlCreateTracking); err != nil {
		return fmt.Errorf("create schema_migrations: %w", err)
	}
	if tables == 0 {
		return nil
	}
	return markApplied(ctx, pool, first)
}

func runInTx(ctx context.Context, pool PgxPool, files fs.FS, name string) error {
	script, err := fs.ReadFile(files, name)
	if err != nil {
		return fmt.Errorf("read migration %s: %w", name, err)
	}

	tx, err := pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return fmt.Errorf("begin migration %s: %w", name, err)
	}
	if _, err := tx.Exec(ctx, string(script)); err != nil {
		_ = tx.Rollback(ctx)
		return fmt.Errorf("apply migration %s: %w", name, err)
	}
	if err := markApplied(ctx, tx, name); err != nil {
		_ = tx.Rollback(ctx)
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit migration %s: %w", name, err)
	}
	return nil
}

func markApplied(ctx context.Context, db execer, name string) error {
	if _, err := db.Exec(ctx, sqlMarkApplied, name); err != nil {
		return fmt.Errorf("record migration %s: %w", name, err)
	}
	return nil
}

func queryBool(ctx context.Context, pool PgxPool, sql string, args ...any) (bool, error) {
	var ok bool
	err := pool.QueryRow(ctx, sql, args...).Scan(&ok)
	return ok, err
}

// sqlFiles lists the .sql files at the root of files in name order.
func sqlFiles(files fs.FS) ([]string, error) {
	entries, err := fs.ReadDir(files, ".")
	if err != nil {
		return nil, fmt.Errorf("list migrations: %w", err)
	}
	var names []string
	for _, e := range entries {
		if !e.IsDir() && path.Ext(e.Name()) == ".sql" {
			names = append(names, e.Name())
		}
	}
	slices.Sort(names)
	return names, nil
}
