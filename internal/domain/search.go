package domain

import "time"

type SearchRequest struct {
	Query    string
	Category string
	Limit    int
}

// RawSearchResult is a release as returned by a provider. A result is usable
// only when it carries a magnet link or a descriptor payload.
type RawSearchResult struct {
	Title      string `json:"title"`
	Size       string `json:"size"`
	Seeds      int    `json:"seeds"`
	Peers      int    `json:"peers"`
	Magnet     string `json:"magnet,omitempty"`
	InfoHash   string `json:"infoHash,omitempty"`
	Descriptor []byte `json:"-"`
	Provider   string `json:"provider"`
	PageURL    string `json:"pageUrl,omitempty"`
	IMDbID     string `json:"imdbId,omitempty"`
}

func (r RawSearchResult) HasSource() bool {
	return r.Magnet != "" || len(r.Descriptor) > 0
}

type ProviderInfo struct {
	Name    string `json:"name"`
	Label   string `json:"label"`
	Kind    string `json:"kind"`
	Enabled bool   `json:"enabled"`
}

type ProviderDiagnostics struct {
	Name                string     `json:"name"`
	Label               string     `json:"label"`
	Kind                string     `json:"kind"`
	Enabled             bool       `json:"enabled"`
	ConsecutiveFailures int        `json:"consecutiveFailures"`
	BlockedUntil        *time.Time `json:"blockedUntil,omitempty"`
	LastError           string     `json:"lastError,omitempty"`
	LastSuccessAt       *time.Time `json:"lastSuccessAt,omitempty"`
	LastFailureAt       *time.Time `json:"lastFailureAt,omitempty"`
	LastLatencyMS       int64      `json:"lastLatencyMs,omitempty"`
	LastTimeout         bool       `json:"lastTimeout,omitempty"`
	LastQuery           string     `json:"lastQuery,omitempty"`
	TotalRequests       int64      `json:"totalRequests,omitempty"`
	TotalFailures       int64      `json:"totalFailures,omitempty"`
	TimeoutCount        int64      `json:"timeoutCount,omitempty"`
}

type FindRequest struct {
	Query    string
	Category string
	Limit    int
	Offset   int
	NoCache  bool
}

type FindResponse struct {
	Query     string            `json:"query"`
	Items     []TranslatedMovie `json:"items"`
	Total     int               `json:"total"`
	Limit     int               `json:"limit"`
	Offset    int               `json:"offset"`
	HasMore   bool              `json:"hasMore"`
	Source    string            `json:"source"`
	ElapsedMS int64             `json:"elapsedMs"`
}
