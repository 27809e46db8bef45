package httpapi

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/erauner12/certview-mirror/internal/sync"
)

type intervalRequest struct {
	Interval string `json:"interval"`
}

// requestInterval reads the optional {"interval": "…"} body. An absent or
// empty body selects the yearly default; malformed JSON is rejected.
func requestInterval(r *http.Request) (sync.Interval, error) {
	var req intervalRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		return "", errors.New("invalid request body")
	}
	return sync.ParseInterval(req.Interval)
}

func capitalize(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}

// StartSync wipes the mirrored data and launches a full sweep from the
// default anchor.
//
// Returns:
// - 200: sweep launched
// - 400: a sweep is already running, or the interval is unknown
// - 500: wipe or state write failed
func (s *Server) StartSync(w http.ResponseWriter, r *http.Request) {
	interval, err := requestInterval(r)
	if err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}

	if err := s.Engine.StartFull(r.Context(), interval); err != nil {
		if errors.Is(err, sync.ErrAlreadyRunning) {
			writeError(w, r, http.StatusBadRequest, "Sync already running")
			return
		}
		log.Error().
			Err(err).
			Str("correlation_id", GetCorrelationID(r.Context())).
			Msg("failed to start sync")
		writeError(w, r, http.StatusInternalServerError, "failed to start sync")
		return
	}

	writeJSON(w, http.StatusOK, messageResponse{
		Message: fmt.Sprintf("%s sync started", capitalize(string(interval))),
	})
}

// ResumeSync launches a sweep from the persisted checkpoint.
func (s *Server) ResumeSync(w http.ResponseWriter, r *http.Request) {
	interval, err := requestInterval(r)
	if err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}

	if err := s.Engine.Resume(r.Context(), interval); err != nil {
		if errors.Is(err, sync.ErrAlreadyRunning) {
			writeError(w, r, http.StatusBadRequest, "Sync already running")
			return
		}
		log.Error().
			Err(err).
			Str("correlation_id", GetCorrelationID(r.Context())).
			Msg("failed to resume sync")
		writeError(w, r, http.StatusInternalServerError, "failed to resume sync")
		return
	}

	writeJSON(w, http.StatusOK, messageResponse{
		Message: fmt.Sprintf("Sync resumed (%s)", interval),
	})
}

// StopSync requests cooperative cancellation. Idempotent: stopping an idle
// engine is a no-op.
func (s *Server) StopSync(w http.ResponseWriter, r *http.Request) {
	s.Engine.Stop()
	writeJSON(w, http.StatusOK, messageResponse{Message: "Sync stopped"})
}

// ResetState clears the mirrored data and the checkpoint. Rejected while a
// sweep is running.
func (s *Server) ResetState(w http.ResponseWriter, r *http.Request) {
	if err := s.Engine.Reset(r.Context()); err != nil {
		if errors.Is(err, sync.ErrAlreadyRunning) {
			writeError(w, r, http.StatusBadRequest, "Cannot clear state while running")
			return
		}
		log.Error().
			Err(err).
			Str("correlation_id", GetCorrelationID(r.Context())).
			Msg("failed to clear state")
		writeError(w, r, http.StatusInternalServerError, "failed to clear state")
		return
	}
	writeJSON(w, http.StatusOK, messageResponse{Message: "State cleared"})
}

// GetSyncStatus returns the persisted sweep state: checkpoint, running
// total, status, and last write time.
func (s *Server) GetSyncStatus(w http.ResponseWriter, r *http.Request) {
	state, err := s.Store.GetState(r.Context())
	if err != nil {
		log.Error().
			Err(err).
			Str("correlation_id", GetCorrelationID(r.Context())).
			Msg("failed to load sync state")
		writeError(w, r, http.StatusInternalServerError, "failed to load sync state")
		return
	}
	writeJSON(w, http.StatusOK, state)
}
