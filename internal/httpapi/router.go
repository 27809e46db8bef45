// Package httpapi is the operator control surface: sync lifecycle, catalog
// access and export, credential refresh, and the inventory upload.
package httpapi

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"

	"github.com/erauner12/certview-mirror/internal/auth"
	"github.com/erauner12/certview-mirror/internal/store"
	"github.com/erauner12/certview-mirror/internal/sync"
)

// Engine is the sweep lifecycle the control surface drives.
type Engine interface {
	StartFull(ctx context.Context, interval sync.Interval) error
	Resume(ctx context.Context, interval sync.Interval) error
	Stop()
	Reset(ctx context.Context) error
	Running() bool
}

// Store is the read-side slice of the persistence layer the handlers serve.
type Store interface {
	GetState(ctx context.Context) (store.SyncState, error)
	GetAllCertificates(ctx context.Context) ([]map[string]any, error)
	RecentAuthTokens(ctx context.Context, limit int) ([]store.AuthTokenRow, error)
}

// Tokens is the credential cache behind the refresh endpoint.
type Tokens interface {
	Token(ctx context.Context, forceRefresh bool) (string, error)
}

// Inventory is the annotation worker behind the upload endpoints.
type Inventory interface {
	Import(ctx context.Context, r io.Reader) (int, error)
	Running() bool
	Counts(ctx context.Context) (store.InventoryCounts, error)
}

// Server holds dependencies for HTTP handlers.
type Server struct {
	Engine    Engine
	Store     Store
	Tokens    Tokens
	Inventory Inventory

	// JWTSecret gates the mutating endpoints when non-empty.
	JWTSecret string
}

type messageResponse struct {
	Message string `json:"message"`
}

// writeJSON writes a JSON response with the given status code
func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Error().Err(err).Msg("failed to encode json response")
	}
}

// writeError writes a {"message": …} body with the given status code
func writeError(w http.ResponseWriter, r *http.Request, code int, msg string) {
	log.Ctx(r.Context()).Warn().Int("status", code).Str("path", r.URL.Path).Msg(msg)
	writeJSON(w, code, messageResponse{Message: msg})
}

// parseLimit parses a limit query param with default and max
func parseLimit(q string, def, max int) int {
	if q == "" {
		return def
	}
	n, err := strconv.Atoi(q)
	if err != nil || n <= 0 {
		return def
	}
	if n > max {
		return max
	}
	return n
}

// Routes creates the HTTP router with all control endpoints
func (s *Server) Routes() http.Handler {
	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(CorrelationMiddleware)

	// Health check (unauthenticated)
	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(200)
		w.Write([]byte("ok"))
	})
	r.Handle("/metrics", promhttp.Handler())

	// Read endpoints stay open
	r.Get("/api/sync/status", s.GetSyncStatus)
	r.Get("/api/certificates", s.GetCertificates)
	r.Get("/api/certificates/export", s.ExportCertificates)
	r.Get("/api/tokens", s.ListTokens)
	r.Get("/api/inventory/status", s.InventoryStatus)

	// Mutating endpoints require a control token when a secret is set
	r.Group(func(r chi.Router) {
		if s.JWTSecret != "" {
			r.Use(auth.Middleware(auth.JWTCfg{HS256Secret: s.JWTSecret}))
		}

		r.Post("/api/sync/start", s.StartSync)
		r.Post("/api/sync/resume", s.ResumeSync)
		r.Post("/api/sync/stop", s.StopSync)
		r.Post("/api/sync/reset", s.ResetState)
		r.Post("/api/token/refresh", s.RefreshToken)
		r.Post("/api/inventory/upload", s.UploadInventory)
	})

	log.Info().Msg("HTTP routes registered")
	return r
}
