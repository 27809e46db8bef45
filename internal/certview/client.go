package certview

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

const (
	// listRetries is the transport-layer retry budget after the initial
	// attempt (3 attempts total).
	listRetries = 2

	// listBackoffInterval is the initial backoff between list attempts.
	listBackoffInterval = 2 * time.Second

	maxErrorBodyLen = 512
)

// PageQuery addresses one page of one sweep window.
type PageQuery struct {
	StartDate  string
	EndDate    string
	PageNumber int
	PageSize   int
}

type filterClause struct {
	Field    string `json:"field"`
	Value    string `json:"value"`
	Operator string `json:"operator"`
}

type listFilter struct {
	Filters   []filterClause `json:"filters"`
	Operation string         `json:"operation"`
}

type listRequest struct {
	Filter     listFilter `json:"filter"`
	PageNumber int        `json:"pageNumber"`
	PageSize   int        `json:"pageSize"`
}

func buildListRequest(q PageQuery) listRequest {
	return listRequest{
		Filter: listFilter{
			Filters: []filterClause{
				{Field: "certificate.type", Value: "Leaf", Operator: "EQUALS"},
				{Field: "certificate.validFromDate", Value: q.StartDate, Operator: "GREATER_THAN_EQUAL"},
				{Field: "certificate.validFromDate", Value: q.EndDate, Operator: "LESS_THAN_EQUAL"},
			},
			Operation: "AND",
		},
		PageNumber: q.PageNumber,
		PageSize:   q.PageSize,
	}
}

// Client issues page requests against the upstream list endpoint. Transient
// failures (429, 5xx, transport errors) are retried at the transport layer;
// a 401/403 triggers exactly one top-level retry with a force-refreshed
// credential.
type Client struct {
	listURL       string
	client        *http.Client
	tokens        TokenProvider
	retryInterval time.Duration
}

// NewClient builds a list client. listURL is the full endpoint URL.
func NewClient(listURL string, timeout time.Duration, tokens TokenProvider) *Client {
	return &Client{
		listURL:       listURL,
		client:        &http.Client{Timeout: timeout},
		tokens:        tokens,
		retryInterval: listBackoffInterval,
	}
}

// FetchPage returns the raw records of one page. An empty slice signals the
// end of the window to the sweep loop.
func (c *Client) FetchPage(ctx context.Context, q PageQuery) ([]map[string]any, error) {
	body, err := json.Marshal(buildListRequest(q))
	if err != nil {
		return nil, err
	}

	correlationID := uuid.New().String()
	logger := log.With().
		Str("correlation_id", correlationID).
		Str("window_start", q.StartDate).
		Str("window_end", q.EndDate).
		Int("page", q.PageNumber).
		Logger()

	// One initial attempt plus one re-auth attempt on 401/403.
	for attempt := 0; attempt < 2; attempt++ {
		token, err := c.tokens.Token(ctx, attempt > 0)
		if err != nil {
			return nil, err
		}

		records, status, err := c.postList(ctx, &logger, correlationID, body, token)
		if err != nil {
			return nil, err
		}
		if status == http.StatusUnauthorized || status == http.StatusForbidden {
			if attempt == 0 {
				logger.Warn().Int("status", status).Msg("credential rejected, retrying with forced refresh")
				continue
			}
			return nil, &AuthError{
				URL:        c.listURL,
				StatusCode: status,
				Reason:     "credential rejected after forced refresh",
			}
		}
		return records, nil
	}

	// Unreachable: the second loop iteration always returns.
	return nil, &AuthError{URL: c.listURL, Reason: "auth retry exhausted"}
}

// postList performs the POST with transport-layer retries. A 401/403 is not
// retried here; it is reported through the returned status so the caller
// can run the re-auth path.
func (c *Client) postList(ctx context.Context, logger *zerolog.Logger, correlationID string, body []byte, token string) ([]map[string]any, int, error) {
	var records []map[string]any
	var status int
	var serverDelay time.Duration

	op := func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.listURL, bytes.NewReader(body))
		if err != nil {
			return backoff.Permanent(err)
		}
		req.Header.Set("Authorization", "Bearer "+token)
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("Accept", "application/json")
		req.Header.Set("X-Requested-With", "certview-mirror")
		req.Header.Set("X-Correlation-ID", correlationID)

		start := time.Now()
		resp, err := c.client.Do(req)
		if err != nil {
			logger.Warn().Err(err).Msg("list request failed, will retry")
			return &TransportError{Op: "post", URL: c.listURL, Err: err}
		}
		defer resp.Body.Close()
		status = resp.StatusCode

		respBody, err := io.ReadAll(resp.Body)
		if err != nil {
			return &TransportError{Op: "read", URL: c.listURL, Err: err}
		}

		logger.Debug().
			Int("status", resp.StatusCode).
			Dur("duration", time.Since(start)).
			Msg("list request completed")

		switch {
		case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
			records = nil
			return nil

		case retriableStatus(resp.StatusCode):
			if resp.StatusCode == http.StatusTooManyRequests {
				if secs := retryAfterSeconds(resp.Header.Get("Retry-After")); secs > 0 {
					serverDelay = time.Duration(secs) * time.Second
					logger.Warn().Int("retry_after_secs", secs).Msg("rate limited, honoring Retry-After")
					return &UpstreamError{StatusCode: resp.StatusCode, Body: truncateBody(respBody)}
				}
			}
			logger.Warn().Int("status", resp.StatusCode).Msg("transient upstream status, will retry")
			return &UpstreamError{StatusCode: resp.StatusCode, Body: truncateBody(respBody)}

		case resp.StatusCode < 200 || resp.StatusCode >= 300:
			return backoff.Permanent(&UpstreamError{StatusCode: resp.StatusCode, Body: truncateBody(respBody)})
		}

		recs, err := decodeRecords(respBody)
		if err != nil {
			return backoff.Permanent(&UpstreamError{StatusCode: resp.StatusCode, Body: "undecodable response body"})
		}
		records = recs
		return nil
	}

	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = c.retryInterval
	paced := &retryAfterBackOff{BackOff: policy, pending: &serverDelay}

	if err := backoff.Retry(op, backoff.WithContext(backoff.WithMaxRetries(paced, listRetries), ctx)); err != nil {
		return nil, status, err
	}
	return records, status, nil
}

// retryAfterBackOff replaces the next wait with a pending server-advertised
// delay. Each delay is consumed by a single NextBackOff call; with none
// pending the wrapped policy decides.
type retryAfterBackOff struct {
	backoff.BackOff
	pending *time.Duration
}

func (b *retryAfterBackOff) NextBackOff() time.Duration {
	if d := *b.pending; d > 0 {
		*b.pending = 0
		return d
	}
	return b.BackOff.NextBackOff()
}

func (b *retryAfterBackOff) Reset() {
	*b.pending = 0
	b.BackOff.Reset()
}

// decodeRecords parses the upstream response. The endpoint normally returns
// a bare JSON array; some deployments wrap it as {"certificates": [...]}.
// A wrapper without the key counts as an empty page.
func decodeRecords(body []byte) ([]map[string]any, error) {
	var records []map[string]any
	if err := json.Unmarshal(body, &records); err == nil {
		if records == nil {
			records = []map[string]any{}
		}
		return records, nil
	}

	var wrapped struct {
		Certificates []map[string]any `json:"certificates"`
	}
	if err := json.Unmarshal(body, &wrapped); err != nil {
		return nil, err
	}
	if wrapped.Certificates == nil {
		wrapped.Certificates = []map[string]any{}
	}
	return wrapped.Certificates, nil
}

// retryAfterSeconds parses a Retry-After header, either integer seconds or
// an HTTP-date.
func retryAfterSeconds(value string) int {
	if value == "" {
		return 0
	}
	if seconds, err := strconv.Atoi(value); err == nil && seconds > 0 {
		return seconds
	}
	if t, err := http.ParseTime(value); err == nil {
		if d := time.Until(t); d > 0 {
			return int(d.Seconds()) + 1
		}
	}
	return 0
}

func truncateBody(body []byte) string {
	s := string(body)
	if len(s) > maxErrorBodyLen {
		return s[:maxErrorBodyLen] + "..."
	}
	return s
}
