package scraper

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"

	"github.com/aluiziolira/tululu-books/parser"
)

// FetchError reports a request that failed or came back with a non-2xx
// status. Redirect responses are FetchErrors too since they are never
// followed.
type FetchError struct {
	URL        string
	StatusCode int
	Err        error
}

func (e *FetchError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("fetch %s: status %d: %v", e.URL, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("fetch %s: %v", e.URL, e.Err)
}

func (e *FetchError) Unwrap() error {
	return e.Err
}

// Redirect reports whether the server answered with a 3xx status.
func (e *FetchError) Redirect() bool {
	return e.StatusCode >= 300 && e.StatusCode < 400
}

func errorTypeLabel(err error) string {
	if err == nil {
		return "unknown"
	}
	if errors.Is(err, parser.ErrMalformedPage) {
		return "malformed_page"
	}
	if errors.Is(err, context.Canceled) {
		return "canceled"
	}

	var fetchErr *FetchError
	if errors.As(err, &fetchErr) {
		switch {
		case fetchErr.Redirect():
			return "redirect"
		case fetchErr.StatusCode == http.StatusForbidden:
			return "forbidden"
		case fetchErr.StatusCode == http.StatusNotFound:
			return "not_found"
		case fetchErr.StatusCode == http.StatusTooManyRequests:
			return "rate_limited"
		case fetchErr.StatusCode != 0:
			return "http_status"
		}
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return "timeout"
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return "timeout"
	}
	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return "connection"
	}
	return "other"
}
