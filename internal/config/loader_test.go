package config

import (
	"errors"
	"os"
	"testing"
)

var configEnvKeys = []string{
	"BASE_URL", "LIST_ENDPOINT", "AUTH_URL", "AUTH_PAYLOAD",
	"TIMEOUT_SECS", "PAGE_SIZE", "DATABASE_URL",
	"LISTEN_ADDR", "APP_ENV", "CONTROL_JWT_SECRET",
}

func TestLoad(t *testing.T) {
	tests := []struct {
		name    string
		envVars map[string]string
		checks  func(*testing.T, *Config)
	}{
		{
			name:    "defaults when no env set",
			envVars: map[string]string{},
			checks: func(t *testing.T, cfg *Config) {
				if cfg.BaseURL != "https://gateway.qg1.apps.qualys.com" {
					t.Errorf("expected default BaseURL, got %s", cfg.BaseURL)
				}
				if cfg.ListEndpoint != "/certview/v2/certificates/list" {
					t.Errorf("expected default ListEndpoint, got %s", cfg.ListEndpoint)
				}
				if cfg.PageSize != 50 {
					t.Errorf("expected default PageSize=50, got %d", cfg.PageSize)
				}
				if cfg.TimeoutSecs != 60 {
					t.Errorf("expected default TimeoutSecs=60, got %d", cfg.TimeoutSecs)
				}
				if cfg.ListenAddr != ":8080" {
					t.Errorf("expected default ListenAddr=:8080, got %s", cfg.ListenAddr)
				}
			},
		},
		{
			name: "environment overrides",
			envVars: map[string]string{
				"BASE_URL":      "https://upstream.example.com",
				"LIST_ENDPOINT": "/v3/list",
				"AUTH_URL":      "https://upstream.example.com/auth",
				"AUTH_PAYLOAD":  `{"username":"u","password":"p"}`,
				"TIMEOUT_SECS":  "30",
				"PAGE_SIZE":     "100",
				"DATABASE_URL":  "postgres://localhost/mirror",
				"APP_ENV":       "development",
			},
			checks: func(t *testing.T, cfg *Config) {
				if cfg.BaseURL != "https://upstream.example.com" {
					t.Errorf("expected BaseURL override, got %s", cfg.BaseURL)
				}
				if cfg.ListURL() != "https://upstream.example.com/v3/list" {
					t.Errorf("ListURL() = %s, want https://upstream.example.com/v3/list", cfg.ListURL())
				}
				if cfg.PageSize != 100 {
					t.Errorf("expected PageSize=100, got %d", cfg.PageSize)
				}
				if cfg.TimeoutSecs != 30 {
					t.Errorf("expected TimeoutSecs=30, got %d", cfg.TimeoutSecs)
				}
				if !cfg.DevMode() {
					t.Error("expected DevMode()=true for APP_ENV=development")
				}
			},
		},
		{
			name: "non-numeric page size keeps default",
			envVars: map[string]string{
				"PAGE_SIZE": "fifty",
			},
			checks: func(t *testing.T, cfg *Config) {
				if cfg.PageSize != 50 {
					t.Errorf("expected PageSize to keep default 50, got %d", cfg.PageSize)
				}
			},
		},
		{
			name: "auth url falls back to base url",
			envVars: map[string]string{
				"BASE_URL": "https://upstream.example.com",
			},
			checks: func(t *testing.T, cfg *Config) {
				if cfg.AuthURL != "https://upstream.example.com/auth/token" {
					t.Errorf("expected derived AuthURL, got %s", cfg.AuthURL)
				}
			},
		},
		{
			name: "explicit auth url wins over fallback",
			envVars: map[string]string{
				"BASE_URL": "https://upstream.example.com",
				"AUTH_URL": "https://sso.example.com/token",
			},
			checks: func(t *testing.T, cfg *Config) {
				if cfg.AuthURL != "https://sso.example.com/token" {
					t.Errorf("expected explicit AuthURL, got %s", cfg.AuthURL)
				}
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for _, key := range configEnvKeys {
				os.Unsetenv(key)
			}
			for key, value := range tt.envVars {
				os.Setenv(key, value)
			}
			defer func() {
				for key := range tt.envVars {
					os.Unsetenv(key)
				}
			}()

			cfg, err := Load()
			if err != nil {
				t.Fatalf("Load() error = %v", err)
			}
			if tt.checks != nil {
				tt.checks(t, cfg)
			}
		})
	}
}

func TestConfigValidation(t *testing.T) {
	valid := func() *Config {
		cfg := DefaultConfig()
		cfg.AuthURL = "https://upstream.example.com/auth"
		cfg.AuthPayload = `{"username":"u","password":"p"}`
		cfg.DatabaseURL = "postgres://localhost/mirror"
		return cfg
	}

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr error
	}{
		{
			name:   "valid config",
			mutate: func(cfg *Config) {},
		},
		{
			name:    "missing auth url",
			mutate:  func(cfg *Config) { cfg.AuthURL = "" },
			wantErr: ErrMissingAuthURL,
		},
		{
			name:    "missing auth payload",
			mutate:  func(cfg *Config) { cfg.AuthPayload = "" },
			wantErr: ErrMissingAuthPayload,
		},
		{
			name:    "missing database url",
			mutate:  func(cfg *Config) { cfg.DatabaseURL = "" },
			wantErr: ErrMissingDatabaseURL,
		},
		{
			name:    "zero page size",
			mutate:  func(cfg *Config) { cfg.PageSize = 0 },
			wantErr: ErrInvalidPageSize,
		},
		{
			name:    "negative timeout",
			mutate:  func(cfg *Config) { cfg.TimeoutSecs = -1 },
			wantErr: ErrInvalidTimeout,
		},
		{
			name:    "auth payload not json",
			mutate:  func(cfg *Config) { cfg.AuthPayload = "user=u&pass=p" },
			wantErr: ErrInvalidAuthPayload,
		},
		{
			name:    "auth payload json array",
			mutate:  func(cfg *Config) { cfg.AuthPayload = `["u","p"]` },
			wantErr: ErrInvalidAuthPayload,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr == nil {
				if err != nil {
					t.Errorf("Validate() error = %v, want nil", err)
				}
				return
			}
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("Validate() error = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestAuthBody(t *testing.T) {
	tests := []struct {
		name    string
		payload string
		want    string
		wantErr bool
	}{
		{
			name:    "plain json object",
			payload: `{"username":"u","password":"p"}`,
			want:    `{"username":"u","password":"p"}`,
		},
		{
			name:    "json string wrapping an object",
			payload: `"{\"username\":\"u\",\"password\":\"p\"}"`,
			want:    `{"username":"u","password":"p"}`,
		},
		{
			name:    "double-wrapped string is rejected",
			payload: `"\"{}\""`,
			wantErr: true,
		},
		{
			name:    "bare string",
			payload: `"hello"`,
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := &Config{AuthPayload: tt.payload}
			got, err := cfg.AuthBody()
			if (err != nil) != tt.wantErr {
				t.Fatalf("AuthBody() error = %v, wantErr %v", err, tt.wantErr)
			}
			if err == nil && string(got) != tt.want {
				t.Errorf("AuthBody() = %s, want %s", got, tt.want)
			}
		})
	}
}
