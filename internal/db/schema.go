package db

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog/log"
)

// schemaStatements bootstraps the four tables the mirror owns. The catalog
// projects the indexed certificate fields into columns and keeps the full
// upstream payload verbatim in full_json.
var schemaStatements = []string{
	`CREATE TABLE IF NOT EXISTS sync_state (
		id INT PRIMARY KEY,
		last_successful_validfromdate TEXT NOT NULL DEFAULT '1900-01-01T00:00:00Z',
		last_sync_timestamp TIMESTAMPTZ,
		total_records_collected BIGINT NOT NULL DEFAULT 0,
		status TEXT NOT NULL DEFAULT 'STOPPED'
	)`,
	`CREATE TABLE IF NOT EXISTS certificates (
		id TEXT PRIMARY KEY,
		certhash TEXT,
		valid_from_date TEXT,
		valid_to_date TEXT,
		serial_number TEXT,
		key_size BIGINT,
		signature_algorithm TEXT,
		extended_validation BOOLEAN,
		self_signed BOOLEAN,
		issuer_name TEXT,
		issuer_organization TEXT,
		subject_name TEXT,
		subject_organization TEXT,
		asset_count BIGINT,
		instance_count BIGINT,
		sources JSONB,
		assets JSONB,
		full_json JSONB NOT NULL,
		mapped_to_mip BOOLEAN NOT NULL DEFAULT FALSE,
		mip_status TEXT NOT NULL DEFAULT 'Unknown',
		updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
	`CREATE INDEX IF NOT EXISTS certificates_valid_from_date_idx
		ON certificates (valid_from_date DESC)`,
	`CREATE INDEX IF NOT EXISTS certificates_serial_number_idx
		ON certificates (serial_number)`,
	`CREATE TABLE IF NOT EXISTS inventory_mapping (
		id BIGSERIAL PRIMARY KEY,
		serial_number TEXT NOT NULL,
		certificate_name TEXT,
		certificate_status TEXT,
		processed BOOLEAN NOT NULL DEFAULT FALSE
	)`,
	`CREATE TABLE IF NOT EXISTS auth_tokens (
		id BIGSERIAL PRIMARY KEY,
		token_value TEXT,
		created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
		expires_at TIMESTAMPTZ,
		valid BOOLEAN NOT NULL DEFAULT FALSE,
		auth_url TEXT,
		status_code INT,
		error_message TEXT
	)`,
}

// EnsureSchema creates missing tables and indexes. Existing tables are left
// untouched; there is no migration of older layouts.
func EnsureSchema(ctx context.Context, pool *pgxpool.Pool) error {
	for _, stmt := range schemaStatements {
		if _, err := pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("ensure schema: %w", err)
		}
	}
	log.Debug().Msg("database schema ensured")
	return nil
}
