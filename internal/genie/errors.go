package genie

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
)

// ErrNotConfigured is returned before any network call when the host, token
// or space id is missing.
var ErrNotConfigured = errors.New("genie credentials are not configured")

// UpstreamError is a non-2xx reply from Genie. Body is kept for logs only.
type UpstreamError struct {
	StatusCode int
	Body       string
}

func (e *UpstreamError) Error() string {
	return fmt.Sprintf("genie returned status %d", e.StatusCode)
}

func (e *UpstreamError) StatusText() string {
	if text := http.StatusText(e.StatusCode); text != "" {
		return text
	}
	return strconv.Itoa(e.StatusCode)
}

// TransportError covers everything between sending the request and reading a
// usable reply: network failures, timeouts and unparseable bodies.
type TransportError struct {
	Op  string
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("error during %s: %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}
