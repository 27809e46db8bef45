package store

import (
	"context"
	"fmt"
	"time"

	"github.com/erauner12/certview-mirror/internal/certview"
)

// AuthTokenRow is one audit entry for the operator token listing. The
// credential is reduced to a short prefix before it leaves the store.
type AuthTokenRow struct {
	ID           int64      `json:"id"`
	TokenPreview string     `json:"tokenPreview,omitempty"`
	CreatedAt    time.Time  `json:"createdAt"`
	ExpiresAt    *time.Time `json:"expiresAt,omitempty"`
	Valid        bool       `json:"valid"`
	AuthURL      string     `json:"authUrl,omitempty"`
	StatusCode   *int       `json:"statusCode,omitempty"`
	ErrorMessage string     `json:"errorMessage,omitempty"`
}

// RecordAuthToken appends one issuance outcome to the audit table. It
// implements certview.AuditSink.
func (s *Store) RecordAuthToken(ctx context.Context, rec certview.TokenRecord) error {
	var expires *time.Time
	if !rec.ExpiresAt.IsZero() {
		expires = &rec.ExpiresAt
	}
	var status *int
	if rec.StatusCode != 0 {
		status = &rec.StatusCode
	}

	_, err := s.DB.Exec(ctx, `
		INSERT INTO auth_tokens (token_value, created_at, expires_at, valid, auth_url, status_code, error_message)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, rec.Value, rec.CreatedAt, expires, rec.Valid, rec.AuthURL, status, nullableText(rec.ErrorMessage))

	if err != nil {
		return fmt.Errorf("store: record auth token: %w", err)
	}
	return nil
}

// RecentAuthTokens returns the newest audit rows, most recent first.
func (s *Store) RecentAuthTokens(ctx context.Context, limit int) ([]AuthTokenRow, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.DB.Query(ctx, `
		SELECT id, token_value, created_at, expires_at, valid, auth_url, status_code, error_message
		FROM auth_tokens
		ORDER BY id DESC
		LIMIT $1
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("store: query auth tokens: %w", err)
	}
	defer rows.Close()

	out := make([]AuthTokenRow, 0, limit)
	for rows.Next() {
		var row AuthTokenRow
		var value, authURL, errMsg *string
		if err := rows.Scan(&row.ID, &value, &row.CreatedAt, &row.ExpiresAt, &row.Valid, &authURL, &row.StatusCode, &errMsg); err != nil {
			return nil, fmt.Errorf("store: scan auth token row: %w", err)
		}
		if value != nil {
			row.TokenPreview = certview.TokenPreview(*value)
		}
		if authURL != nil {
			row.AuthURL = *authURL
		}
		if errMsg != nil {
			row.ErrorMessage = *errMsg
		}
		out = append(out, row)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("store: iterate auth tokens: %w", err)
	}
	return out, nil
}

func nullableText(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
