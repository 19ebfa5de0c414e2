package migrations

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
)

// Migration represents a database migration
type Migration struct {
	ID        string
	Name      string
	UpSQL     string
	DownSQL   string
	CreatedAt time.Time
}

// Status describes whether a migration has been applied
type Status struct {
	Name      string
	Applied   bool
	AppliedAt time.Time
}

// Migrator manages database migrations
type Migrator struct {
	db *sql.DB
}

// New creates a new Migrator
func New(db *sql.DB) *Migrator {
	return &Migrator{db: db}
}

// Initialize creates the migrations table if it doesn't exist
func (m *Migrator) Initialize(ctx context.Context) error {
	query := `
		CREATE TABLE IF NOT EXISTS migrations (
			id SERIAL PRIMARY KEY,
			name TEXT NOT NULL UNIQUE,
			applied_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)
	`
	_, err := m.db.ExecContext(ctx, query)
	return err
}

// GetAppliedMigrations returns the applied migrations and when they were applied
func (m *Migrator) GetAppliedMigrations(ctx context.Context) (map[string]time.Time, error) {
	query := `SELECT name, applied_at FROM migrations ORDER BY id`
	rows, err := m.db.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer func() {
		if cerr := rows.Close(); cerr != nil {
			log.Warn().Err(cerr).Msg("Error closing rows")
		}
	}()

	applied := make(map[string]time.Time)
	for rows.Next() {
		var (
			name string
			at   time.Time
		)
		if err := rows.Scan(&name, &at); err != nil {
			return nil, err
		}
		applied[name] = at
	}
	return applied, rows.Err()
}

// run executes a migration script and its bookkeeping in one transaction
func (m *Migrator) run(ctx context.Context, migration *Migration, script, recordQuery string) error {
	tx, err := m.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() {
		if err := tx.Rollback(); err != nil && !errors.Is(err, sql.ErrTxDone) {
			log.Warn().Err(err).Str("migration", migration.Name).Msg("Failed to rollback transaction")
		}
	}()

	if _, err := tx.ExecContext(ctx, script); err != nil {
		return fmt.Errorf("failed to execute migration %s: %w", migration.Name, err)
	}
	if _, err := tx.ExecContext(ctx, recordQuery, migration.Name); err != nil {
		return fmt.Errorf("failed to record migration %s: %w", migration.Name, err)
	}

	return tx.Commit()
}

// ApplyMigration applies a single migration
func (m *Migrator) ApplyMigration(ctx context.Context, migration *Migration) error {
	return m.run(ctx, migration, migration.UpSQL, "INSERT INTO migrations (name) VALUES ($1)")
}

// RollbackMigration rolls back a single migration
func (m *Migrator) RollbackMigration(ctx context.Context, migration *Migration) error {
	return m.run(ctx, migration, migration.DownSQL, "DELETE FROM migrations WHERE name = $1")
}

// Migrate applies all pending migrations in order
func (m *Migrator) Migrate(ctx context.Context, migrations []*Migration) error {
	if err := m.Initialize(ctx); err != nil {
		return fmt.Errorf("failed to initialize migrations: %w", err)
	}

	applied, err := m.GetAppliedMigrations(ctx)
	if err != nil {
		return fmt.Errorf("failed to get applied migrations: %w", err)
	}

	for _, migration := range migrations {
		if _, done := applied[migration.Name]; done {
			continue
		}
		if err := m.ApplyMigration(ctx, migration); err != nil {
			return fmt.Errorf("failed to apply migration %s: %w", migration.Name, err)
		}
		log.Info().Str("migration", migration.Name).Msg("Applied migration")
	}

	return nil
}

// Rollback rolls back the last applied migration
func (m *Migrator) Rollback(ctx context.Context, migrations []*Migration) error {
	applied, err := m.GetAppliedMigrations(ctx)
	if err != nil {
		return fmt.Errorf("failed to get applied migrations: %w", err)
	}

	var last *Migration
	for i := len(migrations) - 1; i >= 0; i-- {
		if _, done := applied[migrations[i].Name]; done {
			last = migrations[i]
			break
		}
	}
	if last == nil {
		return fmt.Errorf("no migrations to rollback")
	}

	if err := m.RollbackMigration(ctx, last); err != nil {
		return fmt.Errorf("failed to rollback migration %s: %w", last.Name, err)
	}

	log.Info().Str("migration", last.Name).Msg("Rolled back migration")
	return nil
}

// Status reports every known migration in order
func (m *Migrator) Status(ctx context.Context, migrations []*Migration) ([]Status, error) {
	if err := m.Initialize(ctx); err != nil {
		return nil, fmt.Errorf("failed to initialize migrations: %w", err)
	}
	applied, err := m.GetAppliedMigrations(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get applied migrations: %w", err)
	}

	out := make([]Status, 0, len(migrations))
	for _, migration := range migrations {
		at, done := applied[migration.Name]
		out = append(out, Status{Name: migration.Name, Applied: done, AppliedAt: at})
	}
	return out, nil
}
