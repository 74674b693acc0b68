package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/platinummonkey/gymledger/pkg/observability"
)

// Migration represents a database migration
type Migration struct {
	Version     int
	Description string
	SQL         string
}

// GetMigrations returns the ledger schema in order
func GetMigrations() []Migration {
	return []Migration{
		{
			Version:     1,
			Description: "Create plans table",
			SQL: `
				CREATE TABLE IF NOT EXISTS plans (
					id BIGSERIAL PRIMARY KEY,
					created_by BIGINT NOT NULL,
					name VARCHAR(255) NOT NULL,
					duration_type VARCHAR(16) NOT NULL CHECK (duration_type IN ('day', 'month')),
					duration INT NOT NULL CHECK (duration > 0),
					amount NUMERIC(12,2) NOT NULL CHECK (amount >= 0),
					created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
					UNIQUE(created_by, name, duration_type, duration, amount)
				);

				CREATE INDEX IF NOT EXISTS idx_plans_created_by ON plans(created_by);
			`,
		},
		{
			Version:     2,
			Description: "Create members table",
			SQL: `
				CREATE TABLE IF NOT EXISTS members (
					id BIGSERIAL PRIMARY KEY,
					created_by BIGINT NOT NULL,
					name VARCHAR(255) NOT NULL,
					contact VARCHAR(64) NOT NULL UNIQUE,
					email VARCHAR(255) NOT NULL UNIQUE,
					gender VARCHAR(32) NOT NULL,
					address TEXT NOT NULL DEFAULT '',
					batch VARCHAR(64) NOT NULL,
					plan_id BIGINT NOT NULL REFERENCES plans(id),
					join_date TIMESTAMPTZ NOT NULL,
					admission_amount NUMERIC(12,2) NOT NULL CHECK (admission_amount >= 0),
					discount NUMERIC(12,2) NOT NULL DEFAULT 0 CHECK (discount >= 0),
					collected_amount NUMERIC(12,2) NOT NULL CHECK (collected_amount >= 0),
					due_amount NUMERIC(12,2) NOT NULL CHECK (due_amount >= 0),
					created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
					updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
				);

				CREATE INDEX IF NOT EXISTS idx_members_created_by ON members(created_by);
				CREATE INDEX IF NOT EXISTS idx_members_join_date ON members(join_date);
			`,
		},
		{
			Version:     3,
			Description: "Create payments table",
			SQL: `
				CREATE TABLE IF NOT EXISTS payments (
					id BIGSERIAL PRIMARY KEY,
					created_by BIGINT NOT NULL,
					member_id BIGINT NOT NULL REFERENCES members(id),
					plan_id BIGINT NOT NULL REFERENCES plans(id),
					amount NUMERIC(12,2) NOT NULL CHECK (amount > 0),
					payment_date TIMESTAMPTZ NOT NULL,
					created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
				);

				CREATE INDEX IF NOT EXISTS idx_payments_member_id ON payments(member_id);
				CREATE INDEX IF NOT EXISTS idx_payments_owner_date ON payments(created_by, payment_date);
			`,
		},
		{
			Version:     4,
			Description: "Create expenses table",
			SQL: `
				CREATE TABLE IF NOT EXISTS expenses (
					id BIGSERIAL PRIMARY KEY,
					created_by BIGINT NOT NULL,
					amount NUMERIC(12,2) NOT NULL CHECK (amount > 0),
					category VARCHAR(128) NOT NULL,
					description TEXT NOT NULL DEFAULT '',
					expense_date TIMESTAMPTZ NOT NULL,
					created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
				);

				CREATE INDEX IF NOT EXISTS idx_expenses_owner_date ON expenses(created_by, expense_date);
			`,
		},
	}
}

// RunMigrations applies pending migrations, each in its own transaction
func RunMigrations(ctx context.Context, db *sql.DB, logger *observability.Logger) error {
	_, err := db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version INT PRIMARY KEY,
			description TEXT NOT NULL,
			applied_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)
	`)
	if err != nil {
		return fmt.Errorf("failed to create migrations table: %w", err)
	}

	rows, err := db.QueryContext(ctx, "SELECT version FROM schema_migrations ORDER BY version")
	if err != nil {
		return fmt.Errorf("failed to query migrations: %w", err)
	}

	applied := make(map[int]bool)
	for rows.Next() {
		var version int
		if err := rows.Scan(&version); err != nil {
			rows.Close()
			return fmt.Errorf("failed to scan migration version: %w", err)
		}
		applied[version] = true
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return fmt.Errorf("failed to read migrations: %w", err)
	}

	for _, m := range GetMigrations() {
		if applied[m.Version] {
			continue
		}
		if err := applyMigration(ctx, db, m); err != nil {
			return err
		}
		logger.WithFields(map[string]interface{}{
			"version":     m.Version,
			"description": m.Description,
		}).Info("Applied migration")
	}

	return nil
}

func applyMigration(ctx context.Context, db *sql.DB, m Migration) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to start transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, m.SQL); err != nil {
		return fmt.Errorf("failed to execute migration %d: %w", m.Version, err)
	}

	if _, err := tx.ExecContext(ctx,
		"INSERT INTO schema_migrations (version, description) VALUES ($1, $2)",
		m.Version, m.Description,
	); err != nil {
		return fmt.Errorf("failed to record migration %d: %w", m.Version, err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit migration %d: %w", m.Version, err)
	}
	return nil
}
