// Package migrations applies the schema required by the Postgres
// store. Statements are idempotent and run in order.
package migrations

import (
	"context"
	"database/sql"
	"fmt"
)

var statements = []string{
	`CREATE TABLE IF NOT EXISTS pool_counters (
		name       TEXT PRIMARY KEY,
		cap        INTEGER NOT NULL,
		occupancy  INTEGER NOT NULL DEFAULT 0,
		CONSTRAINT pool_occupancy_within_cap CHECK (occupancy >= 0 AND occupancy <= cap)
	)`,
	`CREATE TABLE IF NOT EXISTS signups (
		id               UUID PRIMARY KEY,
		email            TEXT NOT NULL UNIQUE,
		is_creator       BOOLEAN NOT NULL DEFAULT FALSE,
		tester_requested BOOLEAN NOT NULL DEFAULT FALSE,
		tester_granted   BOOLEAN NOT NULL DEFAULT FALSE,
		pool             TEXT NOT NULL DEFAULT '',
		tester_pool      TEXT NOT NULL DEFAULT '',
		wave_number      INTEGER,
		status           TEXT NOT NULL DEFAULT 'pending',
		promoted_at      TIMESTAMPTZ,
		created_at       TIMESTAMPTZ NOT NULL,
		updated_at       TIMESTAMPTZ NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS signups_wave_status_idx
		ON signups (wave_number, status, created_at)`,
	`CREATE INDEX IF NOT EXISTS signups_unassigned_idx
		ON signups (created_at)
		WHERE wave_number IS NULL AND pool = '' AND tester_pool = ''`,
	`CREATE TABLE IF NOT EXISTS audit_log (
		id         BIGSERIAL PRIMARY KEY,
		actor      TEXT NOT NULL DEFAULT '',
		action     TEXT NOT NULL,
		target     TEXT NOT NULL DEFAULT '',
		metadata   JSONB,
		created_at TIMESTAMPTZ NOT NULL
	)`,
}

// Apply runs all migration statements against the database.
func Apply(ctx context.Context, db *sql.DB) error {
	for i, stmt := range statements {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("migration %d: %w", i+1, err)
		}
	}
	return nil
}
