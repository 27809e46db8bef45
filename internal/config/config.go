package config

import (
	"encoding/json"
	"time"
)

// Config holds all configuration for the mirror service.
type Config struct {
	BaseURL      string `json:"baseUrl"`
	ListEndpoint string `json:"listEndpoint"`
	AuthURL      string `json:"authUrl"`
	AuthPayload  string `json:"authPayload"`
	TimeoutSecs  int    `json:"timeoutSecs"`
	PageSize     int    `json:"pageSize"`
	DatabaseURL  string `json:"databaseUrl"`
	ListenAddr   string `json:"listenAddr"`
	AppEnv       string `json:"appEnv"`

	// ControlJWTSecret enables bearer auth on mutating control endpoints
	// when non-empty. Never serialized.
	ControlJWTSecret string `json:"-"`
}

// DefaultConfig returns a configuration with sensible defaults
func DefaultConfig() *Config {
	return &Config{
		BaseURL:      "https://gateway.qg1.apps.qualys.com",
		ListEndpoint: "/certview/v2/certificates/list",
		TimeoutSecs:  60,
		PageSize:     50,
		ListenAddr:   ":8080",
		AppEnv:       "production",
	}
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if c.AuthURL == "" {
		return ErrMissingAuthURL
	}
	if c.AuthPayload == "" {
		return ErrMissingAuthPayload
	}
	if c.DatabaseURL == "" {
		return ErrMissingDatabaseURL
	}
	if c.PageSize <= 0 {
		return ErrInvalidPageSize
	}
	if c.TimeoutSecs <= 0 {
		return ErrInvalidTimeout
	}
	if _, err := c.AuthBody(); err != nil {
		return err
	}
	return nil
}

// ListURL returns the full URL of the upstream list endpoint.
func (c *Config) ListURL() string {
	return c.BaseURL + c.ListEndpoint
}

// Timeout returns the per-request timeout as a duration.
func (c *Config) Timeout() time.Duration {
	return time.Duration(c.TimeoutSecs) * time.Second
}

// DevMode reports whether the service runs with development conveniences
// (console logging, open control surface).
func (c *Config) DevMode() bool {
	return c.AppEnv == "development"
}

// AuthBody normalizes AUTH_PAYLOAD into the JSON object sent to the auth
// endpoint. The value may be a JSON object, or a JSON string whose content
// is itself a serialized JSON object; the latter is unwrapped once.
func (c *Config) AuthBody() ([]byte, error) {
	raw := []byte(c.AuthPayload)

	var parsed any
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return nil, ErrInvalidAuthPayload
	}
	if inner, ok := parsed.(string); ok {
		raw = []byte(inner)
		if err := json.Unmarshal(raw, &parsed); err != nil {
			return nil, ErrInvalidAuthPayload
		}
	}
	if _, ok := parsed.(map[string]any); !ok {
		return nil, ErrInvalidAuthPayload
	}
	return raw, nil
}
