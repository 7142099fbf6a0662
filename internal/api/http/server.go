package apihttp

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"torrentstream/moviesearch/internal/domain"
)

type FindService interface {
	Find(ctx context.Context, request domain.FindRequest) (domain.FindResponse, error)
}

type TranslateService interface {
	TranslateByID(ctx context.Context, id, title string) (domain.TranslatedMovie, error)
}

type ProviderService interface {
	Providers() []domain.ProviderInfo
	ProviderDiagnostics() []domain.ProviderDiagnostics
}

type Server struct {
	find       FindService
	translator TranslateService
	providers  ProviderService
	logger     *slog.Logger
	rps        float64
	burst      int
}

// envelope is the body of every API response. Data holds the payload on
// success and a message on failure.
type envelope struct {
	Status bool      `json:"status"`
	Data   any       `json:"data"`
	Meta   *findMeta `json:"meta,omitempty"`
}

type findMeta struct {
	Query     string `json:"query"`
	Total     int    `json:"total"`
	Limit     int    `json:"limit"`
	Offset    int    `json:"offset"`
	HasMore   bool   `json:"hasMore"`
	Source    string `json:"source"`
	ElapsedMS int64  `json:"elapsedMs"`
}

const (
	maxQueryLength     = 500
	msgNotFound        = "could not find movies"
	msgFindFailed      = "error getting torrents"
	msgTranslateFailed = "error translating movie"
)

type ServerOption func(*Server)

func WithLogger(logger *slog.Logger) ServerOption {
	return func(s *Server) {
		s.logger = logger
	}
}

func WithTranslator(translator TranslateService) ServerOption {
	return func(s *Server) {
		s.translator = translator
	}
}

func WithProviders(providers ProviderService) ServerOption {
	return func(s *Server) {
		s.providers = providers
	}
}

// WithRateLimit sets the global token bucket. Non-positive values keep the
// defaults.
func WithRateLimit(rps float64, burst int) ServerOption {
	return func(s *Server) {
		if rps > 0 {
			s.rps = rps
		}
		if burst > 0 {
			s.burst = burst
		}
	}
}

func NewServer(findService FindService, options ...ServerOption) *Server {
	server := &Server{
		find:   findService,
		logger: slog.Default(),
		rps:    50,
		burst:  100,
	}
	for _, option := range options {
		if option != nil {
			option(server)
		}
	}
	if server.logger == nil {
		server.logger = slog.Default()
	}
	return server
}

func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/health", s.handleHealth)
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/find", s.handleFind)
	mux.HandleFunc("/translate", s.handleTranslate)
	mux.HandleFunc("/providers", s.handleProviders)
	mux.HandleFunc("/providers/health", s.handleProvidersHealth)
	traced := otelhttp.NewHandler(observeMiddleware(s.logger, mux), "moviesearch",
		otelhttp.WithFilter(func(r *http.Request) bool {
			return !isInfraPath(r.URL.Path)
		}),
	)
	return recoveryMiddleware(s.logger, rateLimitMiddleware(s.rps, s.burst, traced))
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":    "ok",
		"timestamp": time.Now().UTC(),
	})
}

func (s *Server) handleFind(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	if s.find == nil {
		writeError(w, http.StatusInternalServerError, "find service is not configured")
		return
	}

	query := strings.TrimSpace(r.URL.Query().Get("search"))
	if query == "" {
		writeError(w, http.StatusBadRequest, "search is required")
		return
	}
	if len(query) > maxQueryLength {
		writeError(w, http.StatusBadRequest, "search too long (max 500 characters)")
		return
	}
	limit, err := parsePositiveInt(r, "limit", 0)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid limit")
		return
	}
	offset, err := parseNonNegativeInt(r, "offset", 0)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid offset")
		return
	}

	response, err := s.find.Find(r.Context(), domain.FindRequest{
		Query:    query,
		Category: strings.TrimSpace(r.URL.Query().Get("category")),
		Limit:    limit,
		Offset:   offset,
		NoCache:  parseOptionalBool(r.URL.Query().Get("nocache")),
	})
	if err != nil {
		switch {
		case errors.Is(err, domain.ErrNoResults), errors.Is(err, domain.ErrNoProviders):
			writeError(w, http.StatusNotFound, msgNotFound)
		case errors.Is(err, domain.ErrInvalidQuery), errors.Is(err, domain.ErrInvalidOffset):
			writeError(w, http.StatusBadRequest, err.Error())
		case errors.Is(err, context.Canceled):
			// client went away
		default:
			s.logger.Error("find failed", slog.String("query", query), slog.String("error", err.Error()))
			writeError(w, http.StatusInternalServerError, msgFindFailed)
		}
		return
	}
	if response.Total == 0 {
		writeError(w, http.StatusNotFound, msgNotFound)
		return
	}

	writeJSON(w, http.StatusOK, envelope{
		Status: true,
		Data:   response.Items,
		Meta: &findMeta{
			Query:     response.Query,
			Total:     response.Total,
			Limit:     response.Limit,
			Offset:    response.Offset,
			HasMore:   response.HasMore,
			Source:    response.Source,
			ElapsedMS: response.ElapsedMS,
		},
	})
}

func (s *Server) handleTranslate(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	if s.translator == nil {
		writeError(w, http.StatusInternalServerError, "translation is not configured")
		return
	}
	id := strings.TrimSpace(r.URL.Query().Get("imdbid"))
	if id == "" {
		writeError(w, http.StatusBadRequest, "imdbid is required")
		return
	}
	title := strings.TrimSpace(r.URL.Query().Get("title"))

	pair, err := s.translator.TranslateByID(r.Context(), id, title)
	if err != nil {
		switch {
		case errors.Is(err, domain.ErrNotFound):
			writeError(w, http.StatusNotFound, msgNotFound)
		case errors.Is(err, domain.ErrInvalidMovie):
			writeError(w, http.StatusBadRequest, err.Error())
		default:
			s.logger.Error("translate failed", slog.String("id", id), slog.String("error", err.Error()))
			writeError(w, http.StatusInternalServerError, msgTranslateFailed)
		}
		return
	}
	writeJSON(w, http.StatusOK, envelope{Status: true, Data: pair})
}

func (s *Server) handleProviders(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	if s.providers == nil {
		writeError(w, http.StatusInternalServerError, "search service is not configured")
		return
	}
	writeJSON(w, http.StatusOK, envelope{Status: true, Data: s.providers.Providers()})
}

func (s *Server) handleProvidersHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	if s.providers == nil {
		writeError(w, http.StatusInternalServerError, "search service is not configured")
		return
	}
	writeJSON(w, http.StatusOK, envelope{Status: true, Data: map[string]any{
		"checkedAt": time.Now().UTC(),
		"items":     s.providers.ProviderDiagnostics(),
	}})
}

func parsePositiveInt(r *http.Request, key string, fallback int) (int, error) {
	raw := strings.TrimSpace(r.URL.Query().Get(key))
	if raw == "" {
		return fallback, nil
	}
	value, err := strconv.Atoi(raw)
	if err != nil || value <= 0 {
		return 0, errors.New("invalid " + key)
	}
	return value, nil
}

func parseNonNegativeInt(r *http.Request, key string, fallback int) (int, error) {
	raw := strings.TrimSpace(r.URL.Query().Get(key))
	if raw == "" {
		return fallback, nil
	}
	value, err := strconv.Atoi(raw)
	if err != nil || value < 0 {
		return 0, errors.New("invalid " + key)
	}
	return value, nil
}

func parseOptionalBool(raw string) bool {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "1", "true", "yes", "on":
		return true
	default:
		return false
	}
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, envelope{Status: false, Data: message})
}
