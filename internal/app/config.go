package app

import (
	"os"
	"strconv"
	"strings"
	"time"

	"torrentstream/moviesearch/internal/release"
)

type Config struct {
	HTTPAddr       string
	LogLevel       string
	LogFormat      string
	RequestTimeout time.Duration
	ResolveTimeout time.Duration
	UserAgent      string
	HTTPRateLimit  float64
	HTTPRateBurst  int

	SearchInitialLimit    int
	SearchLimitIncrement  int
	SearchMaxRetries      int
	SearchCategory        string
	FetchDescriptors      bool
	DescriptorConcurrency int
	ProviderRateLimit     float64
	QualityMarkers        []string
	AdultMarkers          []string
	MaxReleaseSizeGB      float64
	GroupSizeCeilingGB    float64
	GroupSizeStepGB       float64
	GroupMaxExpansions    int
	ResolveConcurrency    int
	TranslationCandidates int
	PirateBayEndpoint     string
	X1337Endpoint         string
	YTSEndpoint           string
	DHTEndpoint           string
	TorrentCacheEndpoints []string
	IMDbSuggestURL        string
	IMDbTitleURL          string
	TMDBAPIKey            string
	TMDBBaseURL           string
	KinopoiskAPIKey       string
	KinopoiskBaseURL      string
	KinopoiskRPS          float64
	MongoURI              string
	MongoDB               string
	RedisURL              string
	FindCacheTTL          time.Duration
	FindCacheDisabled     bool
	FindStoredFirst       bool
	CatalogCacheTTL       time.Duration
}

func LoadConfig() Config {
	return Config{
		HTTPAddr:       getEnv("HTTP_ADDR", ":8090"),
		LogLevel:       strings.ToLower(getEnv("LOG_LEVEL", "info")),
		LogFormat:      strings.ToLower(getEnv("LOG_FORMAT", "text")),
		RequestTimeout: time.Duration(getEnvInt("REQUEST_TIMEOUT_SECONDS", 15)) * time.Second,
		ResolveTimeout: time.Duration(getEnvInt("RESOLVE_TIMEOUT_SECONDS", 45)) * time.Second,
		UserAgent:      getEnv("SEARCH_USER_AGENT", "moviesearch/1.0"),
		HTTPRateLimit:  getEnvFloat("HTTP_RATE_LIMIT_RPS", 50),
		HTTPRateBurst:  getEnvInt("HTTP_RATE_LIMIT_BURST", 100),

		SearchInitialLimit:    getEnvInt("SEARCH_INITIAL_LIMIT", 20),
		SearchLimitIncrement:  getEnvInt("SEARCH_LIMIT_INCREMENT", 20),
		SearchMaxRetries:      getEnvNonNegativeInt("SEARCH_MAX_RETRIES", 3),
		SearchCategory:        getEnv("SEARCH_CATEGORY", "Movies"),
		FetchDescriptors:      getEnvBool("SEARCH_FETCH_DESCRIPTORS", true),
		DescriptorConcurrency: getEnvInt("DESCRIPTOR_CONCURRENCY", 5),
		ProviderRateLimit:     getEnvFloat("PROVIDER_RATE_LIMIT_RPS", 2),
		QualityMarkers:        getEnvList("QUALITY_MARKERS", release.DefaultQualityMarkers),
		AdultMarkers:          getEnvList("ADULT_MARKERS", release.DefaultAdultMarkers),
		MaxReleaseSizeGB:      getEnvFloat("MAX_RELEASE_SIZE_GB", 0),
		GroupSizeCeilingGB:    getEnvFloat("GROUP_SIZE_CEILING_GB", 3),
		GroupSizeStepGB:       getEnvFloat("GROUP_SIZE_STEP_GB", 1),
		GroupMaxExpansions:    getEnvInt("GROUP_MAX_EXPANSIONS", 20),
		ResolveConcurrency:    getEnvInt("RESOLVE_CONCURRENCY", 6),
		TranslationCandidates: getEnvInt("TRANSLATION_MAX_CANDIDATES", 5),
		PirateBayEndpoint:     getEnv("PIRATEBAY_ENDPOINT", "https://apibay.org/q.php"),
		X1337Endpoint:         getEnv("X1337_ENDPOINT", "https://x1337x.ws,https://1337x.to,https://1377x.to"),
		YTSEndpoint:           getEnv("YTS_ENDPOINT", "https://yts.mx/api/v2/list_movies.json"),
		DHTEndpoint:           getEnv("DHT_ENDPOINT", "https://btdig.com/search"),
		TorrentCacheEndpoints: getEnvList("TORRENT_CACHE_ENDPOINTS", nil),
		IMDbSuggestURL:        getEnv("IMDB_SUGGEST_URL", "https://v3.sg.media-imdb.com/suggestion"),
		IMDbTitleURL:          getEnv("IMDB_TITLE_URL", "https://www.imdb.com/title"),
		TMDBAPIKey:            strings.TrimSpace(os.Getenv("TMDB_API_KEY")),
		TMDBBaseURL:           getEnv("TMDB_BASE_URL", "https://api.themoviedb.org/3"),
		KinopoiskAPIKey:       strings.TrimSpace(os.Getenv("KINOPOISK_API_KEY")),
		KinopoiskBaseURL:      getEnv("KINOPOISK_BASE_URL", "https://kinopoiskapiunofficial.tech"),
		KinopoiskRPS:          getEnvFloat("KINOPOISK_RPS", 5),
		MongoURI:              getEnv("MONGO_URI", ""),
		MongoDB:               getEnv("MONGO_DB", "moviesearch"),
		RedisURL:              getEnv("REDIS_URL", ""),
		FindCacheTTL:          time.Duration(getEnvInt("FIND_CACHE_TTL_MINUTES", 360)) * time.Minute,
		FindCacheDisabled:     getEnvBool("FIND_CACHE_DISABLED", false),
		FindStoredFirst:       getEnvBool("FIND_STORED_FIRST", false),
		CatalogCacheTTL:       time.Duration(getEnvInt("CATALOG_CACHE_TTL_HOURS", 168)) * time.Hour,
	}
}

func getEnv(key, fallback string) string {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return fallback
	}
	return value
}

func getEnvInt(key string, fallback int) int {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(raw)
	if err != nil || parsed <= 0 {
		return fallback
	}
	return parsed
}

// getEnvNonNegativeInt accepts zero, for counters where zero disables a step.
func getEnvNonNegativeInt(key string, fallback int) int {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(raw)
	if err != nil || parsed < 0 {
		return fallback
	}
	return parsed
}

func getEnvFloat(key string, fallback float64) float64 {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return fallback
	}
	parsed, err := strconv.ParseFloat(raw, 64)
	if err != nil || parsed < 0 {
		return fallback
	}
	return parsed
}

func getEnvBool(key string, fallback bool) bool {
	raw := strings.ToLower(strings.TrimSpace(os.Getenv(key)))
	if raw == "" {
		return fallback
	}
	switch raw {
	case "1", "true", "yes", "on":
		return true
	case "0", "false", "no", "off":
		return false
	default:
		return fallback
	}
}

// getEnvList splits a comma separated value. Blank items are dropped; an
// empty result keeps the fallback.
func getEnvList(key string, fallback []string) []string {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return append([]string(nil), fallback...)
	}
	items := make([]string, 0, 8)
	for _, part := range strings.Split(raw, ",") {
		if value := strings.TrimSpace(part); value != "" {
			items = append(items, value)
		}
	}
	if len(items) == 0 {
		return append([]string(nil), fallback...)
	}
	return items
}
