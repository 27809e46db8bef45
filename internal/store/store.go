// Package store persists the mirror's durable state: the singleton sync
// checkpoint row, the certificate catalog, the transient inventory mapping
// rows, and the auth token audit trail. It is the single serialization
// point for all catalog and state mutation.
package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/erauner12/certview-mirror/internal/payload"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog/log"
)

// Sync status values persisted in the sync_state row.
const (
	StatusStopped   = "STOPPED"
	StatusRunning   = "RUNNING"
	StatusCompleted = "COMPLETED"
	StatusError     = "ERROR"
)

// DefaultValidFromDate anchors a cold sweep before any certificate the
// upstream inventory could plausibly hold.
const DefaultValidFromDate = "1900-01-01T00:00:00Z"

// SyncState is the singleton checkpoint record.
type SyncState struct {
	LastSuccessfulValidFromDate string     `json:"lastSuccessfulValidFromDate"`
	LastSyncTimestamp           *time.Time `json:"lastSyncTimestamp"`
	TotalRecordsCollected       int64      `json:"totalRecordsCollected"`
	Status                      string     `json:"status"`
}

// StatePatch is a partial update of the sync state. Nil fields are left
// unchanged; the sync timestamp is always bumped.
type StatePatch struct {
	ValidFromDate *string
	TotalRecords  *int64
	Status        *string
}

// Store wraps the connection pool with the mirror's persistence operations.
type Store struct {
	DB *pgxpool.Pool
}

// New creates a Store on top of an open pool.
func New(db *pgxpool.Pool) *Store {
	return &Store{DB: db}
}

// GetState returns the current sync state, or the defaults when no state
// row has been written yet.
func (s *Store) GetState(ctx context.Context) (SyncState, error) {
	var state SyncState
	err := s.DB.QueryRow(ctx, `
		SELECT last_successful_validfromdate, last_sync_timestamp, total_records_collected, status
		FROM sync_state
		WHERE id = 1
	`).Scan(&state.LastSuccessfulValidFromDate, &state.LastSyncTimestamp, &state.TotalRecordsCollected, &state.Status)

	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return SyncState{
				LastSuccessfulValidFromDate: DefaultValidFromDate,
				TotalRecordsCollected:       0,
				Status:                      StatusStopped,
			}, nil
		}
		return SyncState{}, fmt.Errorf("store: get state: %w", err)
	}
	return state, nil
}

// SaveState applies a partial update to the singleton state row. The write
// is a single upsert statement, so a concurrent reader sees either the old
// or the new record, never a partial merge.
func (s *Store) SaveState(ctx context.Context, patch StatePatch) error {
	_, err := s.DB.Exec(ctx, `
		INSERT INTO sync_state (id, last_successful_validfromdate, last_sync_timestamp, total_records_collected, status)
		VALUES (1, COALESCE($1, $4), now(), COALESCE($2, 0), COALESCE($3, $5))
		ON CONFLICT (id) DO UPDATE SET
			last_successful_validfromdate = COALESCE($1, sync_state.last_successful_validfromdate),
			total_records_collected       = COALESCE($2, sync_state.total_records_collected),
			status                        = COALESCE($3, sync_state.status),
			last_sync_timestamp           = now()
	`, patch.ValidFromDate, patch.TotalRecords, patch.Status, DefaultValidFromDate, StatusStopped)

	if err != nil {
		return fmt.Errorf("store: save state: %w", err)
	}
	return nil
}

// SaveCertificates upserts a batch of normalized upstream records keyed by
// their "id" field. Records without a usable id are skipped silently. The
// whole batch commits or rolls back together. Returns the number of rows
// written.
//
// The local annotation columns (mapped_to_mip, mip_status) are deliberately
// absent from the update set: re-observing a certificate must not undo an
// inventory mapping.
func (s *Store) SaveCertificates(ctx context.Context, records []map[string]any) (int, error) {
	tx, err := s.DB.Begin(ctx)
	if err != nil {
		return 0, fmt.Errorf("store: begin save certificates: %w", err)
	}
	defer tx.Rollback(ctx)

	saved := 0
	for _, rec := range records {
		id, ok := payload.GetString(rec, "id")
		if !ok || id == "" {
			log.Warn().Msg("skipping certificate record without id")
			continue
		}

		fullJSON, err := json.Marshal(rec)
		if err != nil {
			return 0, fmt.Errorf("store: marshal certificate %s: %w", id, err)
		}

		cols := extractCertificate(rec)
		_, err = tx.Exec(ctx, `
			INSERT INTO certificates (
				id, certhash, valid_from_date, valid_to_date, serial_number,
				key_size, signature_algorithm, extended_validation, self_signed,
				issuer_name, issuer_organization, subject_name, subject_organization,
				asset_count, instance_count, sources, assets, full_json, updated_at
			) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, now())
			ON CONFLICT (id) DO UPDATE SET
				certhash             = EXCLUDED.certhash,
				valid_from_date      = EXCLUDED.valid_from_date,
				valid_to_date        = EXCLUDED.valid_to_date,
				serial_number        = EXCLUDED.serial_number,
				key_size             = EXCLUDED.key_size,
				signature_algorithm  = EXCLUDED.signature_algorithm,
				extended_validation  = EXCLUDED.extended_validation,
				self_signed          = EXCLUDED.self_signed,
				issuer_name          = EXCLUDED.issuer_name,
				issuer_organization  = EXCLUDED.issuer_organization,
				subject_name         = EXCLUDED.subject_name,
				subject_organization = EXCLUDED.subject_organization,
				asset_count          = EXCLUDED.asset_count,
				instance_count       = EXCLUDED.instance_count,
				sources              = EXCLUDED.sources,
				assets               = EXCLUDED.assets,
				full_json            = EXCLUDED.full_json,
				updated_at           = now()
		`, id, cols.certhash, cols.validFromDate, cols.validToDate, cols.serialNumber,
			cols.keySize, cols.signatureAlgorithm, cols.extendedValidation, cols.selfSigned,
			cols.issuerName, cols.issuerOrganization, cols.subjectName, cols.subjectOrganization,
			cols.assetCount, cols.instanceCount, cols.sources, cols.assets, fullJSON)

		if err != nil {
			return 0, fmt.Errorf("store: upsert certificate %s: %w", id, err)
		}
		saved++
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, fmt.Errorf("store: commit certificates: %w", err)
	}
	return saved, nil
}

// GetAllCertificates returns the whole catalog ordered by validFromDate
// descending. Each entry is the preserved upstream payload with the id and
// the local annotation fields merged in.
func (s *Store) GetAllCertificates(ctx context.Context) ([]map[string]any, error) {
	rows, err := s.DB.Query(ctx, `
		SELECT id, full_json, mapped_to_mip, mip_status
		FROM certificates
		ORDER BY valid_from_date DESC NULLS LAST
	`)
	if err != nil {
		return nil, fmt.Errorf("store: query certificates: %w", err)
	}
	defer rows.Close()

	results := make([]map[string]any, 0)
	for rows.Next() {
		var id string
		var data map[string]any
		var mapped bool
		var mipStatus string

		if err := rows.Scan(&id, &data, &mapped, &mipStatus); err != nil {
			return nil, fmt.Errorf("store: scan certificate row: %w", err)
		}
		if data == nil {
			data = map[string]any{}
		}
		data["id"] = id
		data["mappedToMip"] = mapped
		data["mipStatus"] = mipStatus
		results = append(results, data)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("store: iterate certificates: %w", err)
	}
	return results, nil
}

// ClearData deletes the catalog and the sync state row in one transaction.
// Inventory mapping rows are kept; they are replaced wholesale on the next
// import anyway.
func (s *Store) ClearData(ctx context.Context) error {
	tx, err := s.DB.Begin(ctx)
	if err != nil {
		return fmt.Errorf("store: begin clear: %w", err)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, `DELETE FROM certificates`); err != nil {
		return fmt.Errorf("store: clear certificates: %w", err)
	}
	if _, err := tx.Exec(ctx, `DELETE FROM sync_state`); err != nil {
		return fmt.Errorf("store: clear sync state: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("store: commit clear: %w", err)
	}
	log.Info().Msg("catalog and sync state cleared")
	return nil
}

// certColumns carries the typed projection of one upstream record. All
// fields are pointers so absent payload keys land as SQL NULLs.
type certColumns struct {
	certhash            *string
	validFromDate       *string
	validToDate         *string
	serialNumber        *string
	keySize             *int64
	signatureAlgorithm  *string
	extendedValidation  *bool
	selfSigned          *bool
	issuerName          *string
	issuerOrganization  *string
	subjectName         *string
	subjectOrganization *string
	assetCount          *int64
	instanceCount       *int64
	sources             []byte
	assets              []byte
}

func extractCertificate(rec map[string]any) certColumns {
	cols := certColumns{
		certhash:           textField(rec, "certhash"),
		validFromDate:      textField(rec, "validFromDate"),
		validToDate:        textField(rec, "validToDate"),
		serialNumber:       textField(rec, "serialNumber"),
		keySize:            intField(rec, "keySize"),
		signatureAlgorithm: textField(rec, "signatureAlgorithm"),
		extendedValidation: boolField(rec, "extendedValidation"),
		selfSigned:         boolField(rec, "selfSigned"),
		assetCount:         intField(rec, "assetCount"),
		instanceCount:      intField(rec, "instanceCount"),
		sources:            jsonField(rec, "sources"),
		assets:             jsonField(rec, "assets"),
	}
	if issuer, ok := payload.GetMap(rec, "issuer"); ok {
		cols.issuerName = textField(issuer, "name")
		cols.issuerOrganization = textField(issuer, "organization")
	}
	if subject, ok := payload.GetMap(rec, "subject"); ok {
		cols.subjectName = textField(subject, "name")
		cols.subjectOrganization = textField(subject, "organization")
	}
	return cols
}

func textField(m map[string]any, key string) *string {
	if s, ok := payload.GetString(m, key); ok && s != "" {
		return &s
	}
	return nil
}

func intField(m map[string]any, key string) *int64 {
	if n, ok := payload.GetInt(m, key); ok {
		return &n
	}
	return nil
}

func boolField(m map[string]any, key string) *bool {
	if b, ok := payload.GetBool(m, key); ok {
		return &b
	}
	return nil
}

// jsonField re-encodes a collection value for a JSONB column; nil when the
// key is absent.
func jsonField(m map[string]any, key string) []byte {
	v, ok := m[key]
	if !ok || v == nil {
		return nil
	}
	b, err := json.Marshal(v)
	if err != nil {
		return nil
	}
	return b
}
