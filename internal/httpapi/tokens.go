package httpapi

import (
	"net/http"

	"github.com/rs/zerolog/log"

	"github.com/erauner12/certview-mirror/internal/certview"
)

type tokenRefreshResponse struct {
	Message string `json:"message"`
	Token   string `json:"token"`
}

// RefreshToken forces a new upstream credential. Only a short prefix of the
// issued value leaves the service.
func (s *Server) RefreshToken(w http.ResponseWriter, r *http.Request) {
	token, err := s.Tokens.Token(r.Context(), true)
	if err != nil {
		log.Error().
			Err(err).
			Str("correlation_id", GetCorrelationID(r.Context())).
			Msg("forced token refresh failed")
		writeError(w, r, http.StatusInternalServerError, "token refresh failed")
		return
	}

	writeJSON(w, http.StatusOK, tokenRefreshResponse{
		Message: "Token refreshed",
		Token:   certview.TokenPreview(token),
	})
}

// ListTokens returns recent issuance audit rows, newest first, values
// truncated by the store.
func (s *Server) ListTokens(w http.ResponseWriter, r *http.Request) {
	limit := parseLimit(r.URL.Query().Get("limit"), 20, 100)

	rows, err := s.Store.RecentAuthTokens(r.Context(), limit)
	if err != nil {
		log.Error().
			Err(err).
			Str("correlation_id", GetCorrelationID(r.Context())).
			Msg("failed to load auth token audit rows")
		writeError(w, r, http.StatusInternalServerError, "failed to load tokens")
		return
	}
	writeJSON(w, http.StatusOK, rows)
}
