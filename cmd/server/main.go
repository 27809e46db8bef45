package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/erauner12/certview-mirror/internal/certview"
	"github.com/erauner12/certview-mirror/internal/config"
	"github.com/erauner12/certview-mirror/internal/db"
	"github.com/erauner12/certview-mirror/internal/httpapi"
	"github.com/erauner12/certview-mirror/internal/inventory"
	"github.com/erauner12/certview-mirror/internal/store"
	"github.com/erauner12/certview-mirror/internal/sync"
)

func main() {
	// Configure structured logging
	zerolog.TimeFieldFormat = time.RFC3339Nano
	log.Logger = log.With().Str("service", "certview-mirror").Logger()

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load configuration")
	}

	// Pretty logging for local dev
	if cfg.DevMode() {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: "15:04:05"})
	}

	if err := cfg.Validate(); err != nil {
		log.Fatal().Err(err).Msg("invalid configuration")
	}

	ctx := context.Background()

	pool, err := db.Open(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to postgres")
	}
	defer pool.Close()

	if err := db.EnsureSchema(ctx, pool); err != nil {
		log.Fatal().Err(err).Msg("failed to ensure schema")
	}

	st := store.New(pool)

	// cfg.Validate already proved the payload parses
	authBody, _ := cfg.AuthBody()
	tokens := certview.NewTokenSource(cfg.AuthURL, authBody, cfg.Timeout(), st)
	client := certview.NewClient(cfg.ListURL(), cfg.Timeout(), tokens)

	engine := sync.NewEngine(client, st, cfg.PageSize)
	worker := inventory.NewWorker(st)

	srv := &httpapi.Server{
		Engine:    engine,
		Store:     st,
		Tokens:    tokens,
		Inventory: worker,
		JWTSecret: cfg.ControlJWTSecret,
	}
	if cfg.ControlJWTSecret == "" {
		log.Warn().Msg("CONTROL_JWT_SECRET not set, mutating endpoints are open")
	}

	httpServer := &http.Server{
		Addr:         cfg.ListenAddr,
		Handler:      srv.Routes(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	// Start server in goroutine
	go func() {
		log.Info().Str("addr", cfg.ListenAddr).Msg("starting HTTP server")
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("HTTP server failed")
		}
	}()

	// Graceful shutdown on SIGINT/SIGTERM
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan

	log.Info().Msg("shutting down gracefully...")

	// Halt the sweep first so the final checkpoint write lands before the
	// pool closes.
	engine.Stop()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("HTTP server shutdown error")
	}

	log.Info().Msg("server stopped")
}
