package common

import (
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"torrentstream/moviesearch/internal/domain"
)

const (
	errorBodyLimit   = 2048
	DefaultBodyLimit = 4 * 1024 * 1024
)

// NewHTTPClient returns a traced client with the given overall timeout.
func NewHTTPClient(timeout time.Duration) *http.Client {
	return &http.Client{Timeout: timeout, Transport: otelhttp.NewTransport(http.DefaultTransport)}
}

// HTTPError converts a non-2xx response into an error. Throttling and
// upstream 5xx responses are marked transient; 404 wraps domain.ErrNotFound.
func HTTPError(source string, resp *http.Response) error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, errorBodyLimit))
	err := fmt.Errorf("provider HTTP %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	switch {
	case resp.StatusCode == http.StatusNotFound:
		return fmt.Errorf("%s: %w: %v", source, domain.ErrNotFound, err)
	case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500:
		return domain.Transient(source, err)
	default:
		return fmt.Errorf("%s: %w", source, err)
	}
}

// ReadBody reads at most limit bytes of a successful response.
func ReadBody(resp *http.Response, limit int64) ([]byte, error) {
	if limit <= 0 {
		limit = DefaultBodyLimit
	}
	return io.ReadAll(io.LimitReader(resp.Body, limit))
}
