// Package migrations creates the database schema. Every statement is
// idempotent so Apply can run on every start.
package migrations

import (
	"context"
	"database/sql"
	"fmt"
)

const createMigrationsTable = `
	CREATE TABLE IF NOT EXISTS schema_migrations (
		version INTEGER PRIMARY KEY,
		applied_at TIMESTAMPTZ NOT NULL
	)`

var migrations = []string{
	`CREATE TABLE IF NOT EXISTS members (
		reference TEXT PRIMARY KEY,
		first_name TEXT NOT NULL,
		last_name TEXT NOT NULL,
		email TEXT NOT NULL DEFAULT '',
		birth_date TIMESTAMPTZ,
		active BOOLEAN NOT NULL DEFAULT TRUE,
		created_at TIMESTAMPTZ NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS accounts (
		reference TEXT PRIMARY KEY,
		member_reference TEXT NOT NULL DEFAULT '',
		name TEXT NOT NULL,
		created_at TIMESTAMPTZ NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS account_entries (
		id TEXT PRIMARY KEY,
		account_reference TEXT NOT NULL,
		entry_date TIMESTAMPTZ NOT NULL,
		amount NUMERIC(12,2) NOT NULL,
		description TEXT NOT NULL,
		additive BOOLEAN NOT NULL,
		ledger_account TEXT NOT NULL DEFAULT '',
		flight_id TEXT NOT NULL DEFAULT '',
		tags TEXT[] NOT NULL DEFAULT '{}',
		visible BOOLEAN NOT NULL DEFAULT TRUE,
		created_at TIMESTAMPTZ NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS account_entries_account_idx ON account_entries (account_reference, entry_date)`,
	`CREATE INDEX IF NOT EXISTS account_entries_tags_idx ON account_entries USING GIN (tags)`,
	`CREATE TABLE IF NOT EXISTS aircraft (
		registration TEXT PRIMARY KEY,
		competition_id TEXT NOT NULL DEFAULT '',
		name TEXT NOT NULL DEFAULT ''
	)`,
	`CREATE TABLE IF NOT EXISTS flights (
		id TEXT PRIMARY KEY,
		flight_date TIMESTAMPTZ NOT NULL,
		reference_id TEXT NOT NULL,
		account_reference TEXT NOT NULL DEFAULT '',
		aircraft TEXT NOT NULL,
		takeoff_time TIMESTAMPTZ,
		landing_time TIMESTAMPTZ,
		takeoff_location TEXT NOT NULL DEFAULT '',
		landing_location TEXT NOT NULL DEFAULT '',
		landing_count INTEGER NOT NULL DEFAULT 0,
		duration NUMERIC(12,2) NOT NULL,
		purpose TEXT NOT NULL DEFAULT '',
		captain TEXT NOT NULL DEFAULT '',
		passengers TEXT NOT NULL DEFAULT '',
		notes TEXT NOT NULL DEFAULT '',
		surcharge_reason TEXT NOT NULL DEFAULT '',
		discount_reason TEXT NOT NULL DEFAULT '',
		refund_entry_id TEXT NOT NULL DEFAULT '',
		created_at TIMESTAMPTZ NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS flights_aircraft_date_idx ON flights (aircraft, flight_date)`,
	`CREATE TABLE IF NOT EXISTS invoices (
		id TEXT PRIMARY KEY,
		number TEXT NOT NULL UNIQUE,
		account_reference TEXT NOT NULL,
		status TEXT NOT NULL,
		created_at TIMESTAMPTZ NOT NULL,
		due_date TIMESTAMPTZ,
		sent_at TIMESTAMPTZ,
		notes TEXT NOT NULL DEFAULT ''
	)`,
	`CREATE INDEX IF NOT EXISTS invoices_status_idx ON invoices (status)`,
	`CREATE TABLE IF NOT EXISTS invoice_entries (
		invoice_id TEXT NOT NULL REFERENCES invoices (id) ON DELETE CASCADE,
		entry_id TEXT NOT NULL REFERENCES account_entries (id),
		PRIMARY KEY (invoice_id, entry_id)
	)`,
}

// Apply runs all migrations in order and records the applied versions.
func Apply(ctx context.Context, db *sql.DB) error {
	if _, err := db.ExecContext(ctx, createMigrationsTable); err != nil {
		return fmt.Errorf("create schema_migrations: %w", err)
	}
	for i, stmt := range migrations {
		version := i + 1
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("migration %d: %w", version, err)
		}
		_, err := db.ExecContext(ctx, `
			INSERT INTO schema_migrations (version, applied_at)
			VALUES ($1, NOW())
			ON CONFLICT (version) DO NOTHING
		`, version)
		if err != nil {
			return fmt.Errorf("record migration %d: %w", version, err)
		}
	}
	return nil
}
