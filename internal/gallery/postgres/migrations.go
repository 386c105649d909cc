package postgres

import (
	"context"
	"embed"
	"fmt"
	"slices"
	"strings"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

const migrationsTable = `
	CREATE TABLE IF NOT EXISTS schema_migrations (
		version VARCHAR(255) PRIMARY KEY,
		applied_at TIMESTAMPTZ DEFAULT NOW()
	)
`

// MigrationsApplied returns applied migration versions in order.
func (p *Pool) MigrationsApplied(ctx context.Context) ([]string, error) {
	if _, err := p.db.ExecContext(ctx, migrationsTable); err != nil {
		return nil, fmt.Errorf("create migrations table: %w", err)
	}

	rows, err := p.db.QueryContext(ctx, "SELECT version FROM schema_migrations ORDER BY version")
	if err != nil {
		return nil, fmt.Errorf("query applied migrations: %w", err)
	}
	defer rows.Close()

	var versions []string
	for rows.Next() {
		var v string
		if err := rows.Scan(&v); err != nil {
			return nil, fmt.Errorf("scan migration version: %w", err)
		}
		versions = append(versions, v)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate migration versions: %w", err)
	}
	return versions, nil
}

// pendingMigrations lists embedded migration files not in applied, sorted.
func pendingMigrations(applied []string) ([]string, error) {
	entries, err := migrationsFS.ReadDir("migrations")
	if err != nil {
		return nil, fmt.Errorf("read migrations directory: %w", err)
	}

	var files []string
	for _, e := range entries {
		if strings.HasSuffix(e.Name(), ".sql") && !slices.Contains(applied, e.Name()) {
			files = append(files, e.Name())
		}
	}
	slices.Sort(files)
	return files, nil
}

// Migrate applies pending migrations, each in its own transaction, and
// returns the versions it applied.
func (p *Pool) Migrate(ctx context.Context) ([]string, error) {
	applied, err := p.MigrationsApplied(ctx)
	if err != nil {
		return nil, err
	}

	files, err := pendingMigrations(applied)
	if err != nil {
		return nil, err
	}

	for _, file := range files {
		if err := p.applyMigration(ctx, file); err != nil {
			return nil, err
		}
	}
	return files, nil
}

func (p *Pool) applyMigration(ctx context.Context, file string) error {
	content, err := migrationsFS.ReadFile("migrations/" + file)
	if err != nil {
		return fmt.Errorf("read migration %s: %w", file, err)
	}

	tx, err := p.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction for %s: %w", file, err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, string(content)); err != nil {
		return fmt.Errorf("execute migration %s: %w", file, err)
	}
	if _, err := tx.ExecContext(ctx, "INSERT INTO schema_migrations (version) VALUES ($1)", file); err != nil {
		return fmt.Errorf("record migration %s: %w", file, err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit migration %s: %w", file, err)
	}
	return nil
}
