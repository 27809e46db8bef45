package config

import (
	"os"
	"strconv"
)

// Load builds the configuration from defaults plus environment variable
// overrides. Validation is deferred so callers can apply their own
// overrides first.
func Load() (*Config, error) {
	cfg := DefaultConfig()
	applyEnvironmentOverrides(cfg)

	// The auth endpoint usually lives on the same gateway as the list
	// endpoint; AUTH_URL only needs to be set when it does not.
	if cfg.AuthURL == "" && cfg.BaseURL != "" {
		cfg.AuthURL = cfg.BaseURL + "/auth/token"
	}

	return cfg, nil
}

// applyEnvironmentOverrides applies configuration from environment variables
func applyEnvironmentOverrides(cfg *Config) {
	if v := os.Getenv("BASE_URL"); v != "" {
		cfg.BaseURL = v
	}
	if v := os.Getenv("LIST_ENDPOINT"); v != "" {
		cfg.ListEndpoint = v
	}
	if v := os.Getenv("AUTH_URL"); v != "" {
		cfg.AuthURL = v
	}
	if v := os.Getenv("AUTH_PAYLOAD"); v != "" {
		cfg.AuthPayload = v
	}
	if v := os.Getenv("TIMEOUT_SECS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.TimeoutSecs = n
		}
	}
	if v := os.Getenv("PAGE_SIZE"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.PageSize = n
		}
	}
	if v := os.Getenv("DATABASE_URL"); v != "" {
		cfg.DatabaseURL = v
	}
	if v := os.Getenv("LISTEN_ADDR"); v != "" {
		cfg.ListenAddr = v
	}
	if v := os.Getenv("APP_ENV"); v != "" {
		cfg.AppEnv = v
	}
	if v := os.Getenv("CONTROL_JWT_SECRET"); v != "" {
		cfg.ControlJWTSecret = v
	}
}
