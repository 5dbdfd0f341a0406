package db

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
)

// SQLMigrator is the database/sql counterpart of Migrator, used with the
// lib/pq and go-sqlite3 drivers. Migration files must stick to DDL both
// dialects accept.
type SQLMigrator struct {
	db  *sqlx.DB
	dir string
}

func NewSQLMigrator(db *sqlx.DB, migrationsDir string) *SQLMigrator {
	return &SQLMigrator{db: db, dir: migrationsDir}
}

func (m *SQLMigrator) EnsureMigrationsTable(ctx context.Context) error {
	_, err := m.db.ExecContext(ctx, `CREATE TABLE IF NOT EXISTS _migrations (
    version INTEGER PRIMARY KEY,
    name VARCHAR(255) NOT NULL,
    applied_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
)`)
	if err != nil {
		return fmt.Errorf("create _migrations table: %w", err)
	}
	return nil
}

type appliedRow struct {
	Version   int       `db:"version"`
	AppliedAt time.Time `db:"applied_at"`
}

func (m *SQLMigrator) AppliedVersions(ctx context.Context) (map[int]time.Time, error) {
	var rows []appliedRow
	if err := m.db.SelectContext(ctx, &rows, `SELECT version, applied_at FROM _migrations`); err != nil {
		return nil, fmt.Errorf("query applied versions: %w", err)
	}
	applied := make(map[int]time.Time, len(rows))
	for _, r := range rows {
		applied[r.Version] = r.AppliedAt
	}
	return applied, nil
}

// Up applies all pending migrations, each in its own transaction.
func (m *SQLMigrator) Up(ctx context.Context) (int, error) {
	if err := m.EnsureMigrationsTable(ctx); err != nil {
		return 0, err
	}
	migrations, err := ReadMigrations(m.dir)
	if err != nil {
		return 0, err
	}
	applied, err := m.AppliedVersions(ctx)
	if err != nil {
		return 0, err
	}

	count := 0
	for _, mig := range migrations {
		if _, ok := applied[mig.Version]; ok {
			continue
		}
		if err := m.apply(ctx, mig); err != nil {
			return count, fmt.Errorf("apply migration %d (%s): %w", mig.Version, mig.Name, err)
		}
		count++
	}
	return count, nil
}

func (m *SQLMigrator) apply(ctx context.Context, mig Migration) error {
	tx, err := m.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, mig.SQL); err != nil {
		return fmt.Errorf("execute SQL: %w", err)
	}
	record := tx.Rebind("INSERT INTO _migrations (version, name) VALUES (?, ?)")
	if _, err := tx.ExecContext(ctx, record, mig.Version, mig.Name); err != nil {
		return fmt.Errorf("record migration: %w", err)
	}
	return tx.Commit()
}

func (m *SQLMigrator) Status(ctx context.Context) ([]MigrationStatus, error) {
	if err := m.EnsureMigrationsTable(ctx); err != nil {
		return nil, err
	}
	migrations, err := ReadMigrations(m.dir)
	if err != nil {
		return nil, err
	}
	applied, err := m.AppliedVersions(ctx)
	if err != nil {
		return nil, err
	}
	return buildStatus(migrations, applied), nil
}
