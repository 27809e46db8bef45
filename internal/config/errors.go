package config

import "errors"

// Configuration errors
var (
	ErrMissingAuthURL     = errors.New("AUTH_URL is required")
	ErrMissingAuthPayload = errors.New("AUTH_PAYLOAD is required")
	ErrMissingDatabaseURL = errors.New("DATABASE_URL is required")
	ErrInvalidAuthPayload = errors.New("AUTH_PAYLOAD must be a JSON object or a JSON string containing one")
	ErrInvalidPageSize    = errors.New("PAGE_SIZE must be a positive integer")
	ErrInvalidTimeout     = errors.New("TIMEOUT_SECS must be a positive integer")
)
