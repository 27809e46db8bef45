package certview

import "fmt"

// AuthError indicates the auth endpoint refused the request, returned an
// unusable body, or kept failing after retries.
type AuthError struct {
	URL        string
	StatusCode int
	Reason     string
}

func (e *AuthError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("auth request to %s failed with status %d: %s", e.URL, e.StatusCode, e.Reason)
	}
	return fmt.Sprintf("auth request to %s failed: %s", e.URL, e.Reason)
}

// TransportError wraps a network-level failure (dial, TLS, timeout) that
// survived the transport retry budget.
type TransportError struct {
	Op  string
	URL string
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Op, e.URL, e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// UpstreamError is a non-2xx response from the list endpoint after the
// transport retry budget is spent.
type UpstreamError struct {
	StatusCode int
	Body       string
}

func (e *UpstreamError) Error() string {
	return fmt.Sprintf("upstream returned status %d: %s", e.StatusCode, e.Body)
}

// retriableStatus reports whether a status code is worth another attempt at
// the transport layer.
func retriableStatus(code int) bool {
	switch code {
	case 429, 500, 502, 503, 504:
		return true
	}
	return false
}
