package common

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"torrentstream/moviesearch/internal/domain"
)

const defaultUserAgent = "moviesearch/1.0"

// Accept headers for the two payload kinds the indexes serve.
const (
	AcceptJSON = "application/json"
	AcceptHTML = "text/html,application/xhtml+xml"
)

// Getter issues GETs on behalf of one provider. Transport failures and
// throttled or 5xx answers come back as transient errors tagged with Source.
type Getter struct {
	Source    string
	Client    *http.Client
	UserAgent string
}

// NewGetter fills in a plain client and the default user agent when unset.
func NewGetter(source string, client *http.Client, userAgent string) Getter {
	if client == nil {
		client = &http.Client{}
	}
	return Getter{Source: source, Client: client, UserAgent: Or(userAgent, defaultUserAgent)}
}

// Get returns at most DefaultBodyLimit bytes of a 200 response.
func (g Getter) Get(ctx context.Context, target, accept string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, fmt.Errorf("%s: build request: %w", g.Source, err)
	}
	req.Header.Set("User-Agent", g.UserAgent)
	if accept != "" {
		req.Header.Set("Accept", accept)
	}

	resp, err := g.Client.Do(req)
	if err != nil {
		return nil, domain.Transient(g.Source, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, HTTPError(g.Source, resp)
	}

	body, err := ReadBody(resp, DefaultBodyLimit)
	if err != nil {
		return nil, domain.Transient(g.Source, err)
	}
	return body, nil
}

// WithQuery merges params into the query string of endpoint. Empty values are
// skipped.
func WithQuery(endpoint string, params map[string]string) (string, error) {
	uri, err := url.Parse(endpoint)
	if err != nil {
		return "", fmt.Errorf("invalid endpoint %q: %w", endpoint, err)
	}
	values := uri.Query()
	for key, value := range params {
		if value != "" {
			values.Set(key, value)
		}
	}
	uri.RawQuery = values.Encode()
	return uri.String(), nil
}

// Or returns the trimmed value, or fallback when it is blank.
func Or(value, fallback string) string {
	if trimmed := strings.TrimSpace(value); trimmed != "" {
		return trimmed
	}
	return fallback
}

// TrackersOr returns a copy of DefaultTrackers when trackers is empty.
func TrackersOr(trackers []string) []string {
	if len(trackers) == 0 {
		return append([]string(nil), DefaultTrackers...)
	}
	return trackers
}

// Cap returns limit, or fallback when limit is not positive.
func Cap(limit, fallback int) int {
	if limit <= 0 {
		return fallback
	}
	return limit
}
