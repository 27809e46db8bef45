package certview

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/rs/zerolog/log"
)

const (
	// TokenRefreshInterval is the cached-credential age at which a new token
	// is fetched. Upstream tokens live 4 hours; the 30-minute margin keeps
	// in-flight requests from landing on an expired credential.
	TokenRefreshInterval = 3*time.Hour + 30*time.Minute

	// TokenLifetime is the upstream-advertised validity of an issued token.
	TokenLifetime = 4 * time.Hour

	// tokenFetchRetries is the retry budget after the initial attempt.
	tokenFetchRetries = 4

	tokenPreviewLen = 20
)

// TokenProvider supplies a bearer credential for upstream requests.
type TokenProvider interface {
	Token(ctx context.Context, forceRefresh bool) (string, error)
}

// TokenRecord captures the outcome of one issuance attempt for operator
// audit. Failed attempts carry Valid=false plus the upstream status/error.
type TokenRecord struct {
	Value        string    `json:"token"`
	CreatedAt    time.Time `json:"createdAt"`
	ExpiresAt    time.Time `json:"expiresAt"`
	Valid        bool      `json:"valid"`
	AuthURL      string    `json:"authUrl"`
	StatusCode   int       `json:"statusCode,omitempty"`
	ErrorMessage string    `json:"errorMessage,omitempty"`
}

// AuditSink persists token issuance outcomes. Audit failures are logged and
// never fail the fetch.
type AuditSink interface {
	RecordAuthToken(ctx context.Context, rec TokenRecord) error
}

// TokenSource caches the upstream bearer credential. The mutex brackets the
// whole fetch so concurrent callers waiting on a refresh all observe the
// same newly issued token and at most one fetch is in flight.
type TokenSource struct {
	authURL       string
	body          []byte
	client        *http.Client
	audit         AuditSink
	now           func() time.Time
	retryInterval time.Duration

	mu       sync.Mutex
	token    string
	issuedAt time.Time
}

// NewTokenSource builds a TokenSource. authBody is the normalized JSON
// object posted to the auth endpoint; audit may be nil.
func NewTokenSource(authURL string, authBody []byte, timeout time.Duration, audit AuditSink) *TokenSource {
	return &TokenSource{
		authURL:       authURL,
		body:          authBody,
		client:        &http.Client{Timeout: timeout},
		audit:         audit,
		now:           time.Now,
		retryInterval: time.Second,
	}
}

// Token returns a usable credential, fetching a new one when forced, when
// nothing is cached, or when the cached token aged past TokenRefreshInterval.
func (ts *TokenSource) Token(ctx context.Context, forceRefresh bool) (string, error) {
	ts.mu.Lock()
	defer ts.mu.Unlock()

	if forceRefresh {
		// Invalidate before issuing: a failed forced refresh must not fall
		// back to the credential that just got rejected downstream.
		ts.token = ""
		ts.issuedAt = time.Time{}
	}

	if ts.token != "" && ts.now().Sub(ts.issuedAt) < TokenRefreshInterval {
		return ts.token, nil
	}

	log.Info().Bool("forced", forceRefresh).Str("auth_url", ts.authURL).Msg("fetching new auth token")

	token, status, err := ts.fetch(ctx)
	issued := ts.now()
	if err != nil {
		ts.recordAudit(ctx, TokenRecord{
			CreatedAt:    issued,
			Valid:        false,
			AuthURL:      ts.authURL,
			StatusCode:   status,
			ErrorMessage: err.Error(),
		})
		var authErr *AuthError
		if errors.As(err, &authErr) {
			return "", authErr
		}
		return "", &AuthError{URL: ts.authURL, StatusCode: status, Reason: err.Error()}
	}

	ts.token = token
	ts.issuedAt = issued
	ts.recordAudit(ctx, TokenRecord{
		Value:      token,
		CreatedAt:  issued,
		ExpiresAt:  issued.Add(TokenLifetime),
		Valid:      true,
		AuthURL:    ts.authURL,
		StatusCode: status,
	})

	log.Info().Str("token_preview", TokenPreview(token)).Msg("auth token issued")
	return token, nil
}

// fetch posts the auth payload, retrying 429/5xx and transport failures
// with exponential backoff (5 attempts, 1s initial interval).
func (ts *TokenSource) fetch(ctx context.Context) (string, int, error) {
	var token string
	var lastStatus int

	op := func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, ts.authURL, bytes.NewReader(ts.body))
		if err != nil {
			return backoff.Permanent(err)
		}
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("Accept", "application/json")

		resp, err := ts.client.Do(req)
		if err != nil {
			log.Warn().Err(err).Msg("auth request failed, will retry")
			return err
		}
		defer resp.Body.Close()

		body, err := io.ReadAll(resp.Body)
		if err != nil {
			return err
		}
		lastStatus = resp.StatusCode

		if retriableStatus(resp.StatusCode) {
			log.Warn().Int("status", resp.StatusCode).Msg("auth endpoint busy, will retry")
			return &AuthError{URL: ts.authURL, StatusCode: resp.StatusCode, Reason: "retriable status"}
		}
		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			return backoff.Permanent(&AuthError{
				URL:        ts.authURL,
				StatusCode: resp.StatusCode,
				Reason:     strings.TrimSpace(string(body)),
			})
		}

		token = parseTokenBody(body)
		if token == "" {
			return backoff.Permanent(&AuthError{
				URL:        ts.authURL,
				StatusCode: resp.StatusCode,
				Reason:     "empty token in auth response",
			})
		}
		return nil
	}

	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = ts.retryInterval

	err := backoff.Retry(op, backoff.WithContext(backoff.WithMaxRetries(policy, tokenFetchRetries), ctx))
	return token, lastStatus, err
}

// parseTokenBody pulls the credential out of an auth response: the "token"
// key, else "access_token", else the raw body.
func parseTokenBody(body []byte) string {
	var data map[string]any
	if err := json.Unmarshal(body, &data); err == nil {
		if s, ok := data["token"].(string); ok && s != "" {
			return s
		}
		if s, ok := data["access_token"].(string); ok && s != "" {
			return s
		}
	}
	return strings.TrimSpace(string(body))
}

func (ts *TokenSource) recordAudit(ctx context.Context, rec TokenRecord) {
	if ts.audit == nil {
		return
	}
	// The sweep context may already be cancelled when the final audit row is
	// written; the audit trail should survive that.
	if err := ts.audit.RecordAuthToken(context.WithoutCancel(ctx), rec); err != nil {
		log.Warn().Err(err).Msg("failed to record auth token audit row")
	}
}

// TokenPreview returns an operator-safe prefix of a credential.
func TokenPreview(token string) string {
	if len(token) <= tokenPreviewLen {
		return token
	}
	return token[:tokenPreviewLen] + "..."
}
