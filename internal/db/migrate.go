package db

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"path"
	"sort"
	"strings"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/david/campus-notice/internal/logging"
)

//go:embed migrations/postgres/*.sql migrations/sqlite/*.sql
var migrationsFS embed.FS

// migrationFiles lists the .sql files of one dialect in apply order.
func migrationFiles(dialect string) ([]string, error) {
	dir := path.Join("migrations", dialect)
	entries, err := migrationsFS.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read embedded migrations: %w", err)
	}
	var files []string
	for _, entry := range entries {
		if !entry.IsDir() && strings.HasSuffix(entry.Name(), ".sql") {
			files = append(files, entry.Name())
		}
	}
	sort.Strings(files)
	return files, nil
}

func readMigration(dialect, name string) (string, error) {
	content, err := migrationsFS.ReadFile(path.Join("migrations", dialect, name))
	if err != nil {
		return "", fmt.Errorf("failed to read migration file %s: %w", name, err)
	}
	return string(content), nil
}

// ApplyMigrations runs the pending Postgres migrations.
func ApplyMigrations(ctx context.Context, pool *pgxpool.Pool) error {
	if _, err := pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS schema_migrations (
			filename TEXT PRIMARY KEY,
			applied_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)
	`); err != nil {
		return fmt.Errorf("failed to ensure schema_migrations table: %w", err)
	}

	files, err := migrationFiles("postgres")
	if err != nil {
		return err
	}
	log := logging.For("db")
	for _, name := range files {
		var alreadyApplied bool
		err := pool.QueryRow(ctx, "SELECT EXISTS(SELECT 1 FROM schema_migrations WHERE filename = $1)", name).Scan(&alreadyApplied)
		if err != nil {
			return fmt.Errorf("failed to check migration %s: %w", name, err)
		}
		if alreadyApplied {
			continue
		}
		content, err := readMigration("postgres", name)
		if err != nil {
			return err
		}

		log.Infof("applying migration %s", name)
		if _, err = pool.Exec(ctx, content); err != nil {
			return fmt.Errorf("failed to execute migration %s: %w", name, err)
		}
		if _, err = pool.Exec(ctx, "INSERT INTO schema_migrations (filename) VALUES ($1)", name); err != nil {
			return fmt.Errorf("failed to mark migration %s as applied: %w", name, err)
		}
	}
	return nil
}

// applySQLiteMigrations is ApplyMigrations for the SQLite schema.
func applySQLiteMigrations(ctx context.Context, db *sql.DB) error {
	if _, err := db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS schema_migrations (
			filename TEXT PRIMARY KEY,
			applied_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
		)
	`); err != nil {
		return fmt.Errorf("failed to ensure schema_migrations table: %w", err)
	}

	files, err := migrationFiles("sqlite")
	if err != nil {
		return err
	}
	for _, name := range files {
		var n int
		if err := db.QueryRowContext(ctx, "SELECT COUNT(1) FROM schema_migrations WHERE filename = ?", name).Scan(&n); err != nil {
			return fmt.Errorf("failed to check migration %s: %w", name, err)
		}
		if n > 0 {
			continue
		}
		content, err := readMigration("sqlite", name)
		if err != nil {
			return err
		}
		if _, err := db.ExecContext(ctx, content); err != nil {
			return fmt.Errorf("failed to execute migration %s: %w", name, err)
		}
		if _, err := db.ExecContext(ctx, "INSERT INTO schema_migrations (filename) VALUES (?)", name); err != nil {
			return fmt.Errorf("failed to mark migration %s as applied: %w", name, err)
		}
	}
	return nil
}
