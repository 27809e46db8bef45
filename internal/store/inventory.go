package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
)

// InventoryRow is one row of the user-supplied inventory spreadsheet,
// staged for the annotation pass.
type InventoryRow struct {
	ID                int64  `json:"id"`
	SerialNumber      string `json:"serialNumber"`
	CertificateName   string `json:"certificateName"`
	CertificateStatus string `json:"certificateStatus"`
	Processed         bool   `json:"processed"`
}

// InventoryCounts summarizes the staged mapping rows for the status
// endpoint.
type InventoryCounts struct {
	Total     int64 `json:"total"`
	Processed int64 `json:"processed"`
}

// CertMatch is the slice of a catalog entry the annotation pass needs.
type CertMatch struct {
	ID          string
	MappedToMip bool
}

// ReplaceInventoryMappings truncates the staging table and bulk-inserts the
// new rows in one transaction. Returns the number of rows staged.
func (s *Store) ReplaceInventoryMappings(ctx context.Context, rows []InventoryRow) (int, error) {
	tx, err := s.DB.Begin(ctx)
	if err != nil {
		return 0, fmt.Errorf("store: begin replace mappings: %w", err)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, `DELETE FROM inventory_mapping`); err != nil {
		return 0, fmt.Errorf("store: truncate inventory mappings: %w", err)
	}

	n, err := tx.CopyFrom(ctx,
		pgx.Identifier{"inventory_mapping"},
		[]string{"serial_number", "certificate_name", "certificate_status"},
		pgx.CopyFromSlice(len(rows), func(i int) ([]any, error) {
			return []any{rows[i].SerialNumber, rows[i].CertificateName, rows[i].CertificateStatus}, nil
		}),
	)
	if err != nil {
		return 0, fmt.Errorf("store: copy inventory mappings: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, fmt.Errorf("store: commit inventory mappings: %w", err)
	}
	return int(n), nil
}

// UnprocessedMappings returns the staged rows the annotation pass has not
// visited yet, in insertion order.
func (s *Store) UnprocessedMappings(ctx context.Context) ([]InventoryRow, error) {
	rows, err := s.DB.Query(ctx, `
		SELECT id, serial_number, certificate_name, certificate_status, processed
		FROM inventory_mapping
		WHERE processed = FALSE
		ORDER BY id
	`)
	if err != nil {
		return nil, fmt.Errorf("store: query unprocessed mappings: %w", err)
	}
	defer rows.Close()

	out := make([]InventoryRow, 0)
	for rows.Next() {
		var row InventoryRow
		if err := rows.Scan(&row.ID, &row.SerialNumber, &row.CertificateName, &row.CertificateStatus, &row.Processed); err != nil {
			return nil, fmt.Errorf("store: scan mapping row: %w", err)
		}
		out = append(out, row)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("store: iterate mappings: %w", err)
	}
	return out, nil
}

// MarkMappingProcessed flags one staged row as visited.
func (s *Store) MarkMappingProcessed(ctx context.Context, id int64) error {
	if _, err := s.DB.Exec(ctx, `UPDATE inventory_mapping SET processed = TRUE WHERE id = $1`, id); err != nil {
		return fmt.Errorf("store: mark mapping processed: %w", err)
	}
	return nil
}

// InventoryCounts reports total and processed staged rows.
func (s *Store) InventoryCounts(ctx context.Context) (InventoryCounts, error) {
	var c InventoryCounts
	err := s.DB.QueryRow(ctx, `
		SELECT COUNT(*), COUNT(*) FILTER (WHERE processed)
		FROM inventory_mapping
	`).Scan(&c.Total, &c.Processed)
	if err != nil {
		return InventoryCounts{}, fmt.Errorf("store: count mappings: %w", err)
	}
	return c, nil
}

// FindCertificateBySerial looks up a catalog entry by exact serial number.
// Returns nil when no entry matches.
func (s *Store) FindCertificateBySerial(ctx context.Context, serial string) (*CertMatch, error) {
	var match CertMatch
	err := s.DB.QueryRow(ctx, `
		SELECT id, mapped_to_mip
		FROM certificates
		WHERE serial_number = $1
		LIMIT 1
	`, serial).Scan(&match.ID, &match.MappedToMip)

	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("store: find certificate by serial: %w", err)
	}
	return &match, nil
}

// SetCertificateMapping flips a catalog entry to mapped with the given
// status. The predicate keeps the transition monotonic: an entry that is
// already mapped is left untouched. Returns whether a row changed.
func (s *Store) SetCertificateMapping(ctx context.Context, id, status string) (bool, error) {
	tag, err := s.DB.Exec(ctx, `
		UPDATE certificates
		SET mapped_to_mip = TRUE, mip_status = $2
		WHERE id = $1 AND mapped_to_mip = FALSE
	`, id, status)
	if err != nil {
		return false, fmt.Errorf("store: set certificate mapping: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}
