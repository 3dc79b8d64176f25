// Package config provides application configuration loaded from environment
// variables with defaults and validation. It centralizes the quota and
// pacing policy, state file locations, collaborator endpoints, the optional
// status server, logging and observability settings.
//
// A Config is built once per process and passed by value into every
// component; nothing re-reads the environment after startup.
package config

import (
	"errors"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

// CORSConfig defines Cross-Origin Resource Sharing settings for the status server.
type CORSConfig struct {
	AllowedOrigins []string
}

// OTELConfig defines OpenTelemetry observability settings.
type OTELConfig struct {
	Enabled     bool    // OTEL_ENABLED
	Endpoint    string  // OTEL_EXPORTER_OTLP_ENDPOINT (e.g. "otel:4317")
	Insecure    bool    // OTEL_EXPORTER_OTLP_INSECURE (true if no TLS)
	ServiceName string  // OTEL_SERVICE_NAME (e.g. "go-reply-bot")
	SampleRatio float64 // OTEL_TRACES_SAMPLER_ARG in [0..1]
}

// PolicyConfig holds the quota, cooldown and candidate selection rules.
type PolicyConfig struct {
	MaxActionsPerDay      int           // MAX_ACTIONS_PER_DAY
	CycleInterval         time.Duration // CYCLE_INTERVAL_HOURS
	Keywords              []string      // KEYWORD_FILTER (empty = accept all)
	FreshnessWindow       time.Duration // FRESHNESS_WINDOW_HOURS
	BaseDelay             time.Duration // BASE_DELAY_MINUTES
	ScaleFactor           float64       // SCALE_FACTOR
	MaxCandidatesPerCycle int           // MAX_CANDIDATES_PER_CYCLE (0 = no cap)

	MinResponseRunes  int      // MIN_RESPONSE_RUNES
	MaxResponseRunes  int      // MAX_RESPONSE_RUNES
	DisallowedPhrases []string // DISALLOWED_PHRASES

	// Pacing pauses: after a successful action and after a failed publish.
	SuccessPauseMin time.Duration
	SuccessPauseMax time.Duration
	FailurePauseMin time.Duration
	FailurePauseMax time.Duration
}

// SourceConfig configures the HTTP feed used as the content source.
type SourceConfig struct {
	URL             string   // SOURCE_URL
	Accounts        []string // TARGET_ACCOUNTS
	RPS             float64  // SOURCE_RPS
	Burst           int      // SOURCE_BURST
	PerAccountLimit int      // SOURCE_PER_ACCOUNT_LIMIT
}

// GeneratorConfig configures the chat-completions generator.
type GeneratorConfig struct {
	URL    string // GENERATOR_URL
	APIKey string // GENERATOR_API_KEY
	Model  string // GENERATOR_MODEL
}

// PublisherConfig configures the publishing webhook.
type PublisherConfig struct {
	URL    string // PUBLISHER_URL
	Token  string // PUBLISHER_TOKEN
	DryRun bool   // DRY_RUN
}

// RetryConfig is the bounded retry policy shared by collaborator adapters.
type RetryConfig struct {
	MaxRetries int           // RETRY_MAX
	BaseDelay  time.Duration // RETRY_BASE_DELAY
	MaxDelay   time.Duration // RETRY_MAX_DELAY
}

// Config holds all configuration values for the application.
type Config struct {
	// Status server
	StatusEnabled     bool
	Port              string        // just the number
	ReadTimeout       time.Duration // e.g. 15s
	ReadHeaderTimeout time.Duration // e.g. 10s
	WriteTimeout      time.Duration // e.g. 20s
	IdleTimeout       time.Duration // e.g. 60s
	GinMode           string        // debug|release|test
	APIBasePath       string        // base path for API routes

	// Logging
	LogLevel  string // debug|info|warn|error|fatal|panic
	LogPretty bool   // pretty console logs in dev

	// State
	DataDir    string
	LedgerPath string
	QuotaPath  string
	DBPath     string // SQLite attempt journal

	// Manual trigger rate limiting
	RateRPS   float64 // tokens per second (>= 0)
	RateBurst int     // bucket size (>= 1)

	Policy    PolicyConfig
	Source    SourceConfig
	Generator GeneratorConfig
	Publisher PublisherConfig
	Retry     RetryConfig

	CORS CORSConfig
	OTEL OTELConfig
}

// DefaultDisallowedPhrases are placeholder, apology and meta phrases that
// make a generated response unusable.
var DefaultDisallowedPhrases = []string{"[", "]", "as an AI", "as a language model", "I cannot", "I'm sorry"}

// MustLoad loads the configuration and panics if validation fails.
func MustLoad() Config {
	cfg, err := Load()
	if err != nil {
		panic(err)
	}
	return cfg
}

// Load reads configuration from environment variables,
// applies defaults, normalizes values, and validates the result.
func Load() (Config, error) {
	dataDir := getenv("DATA_DIR", "data")
	cfg := Config{
		// Status server
		StatusEnabled:     getbool("STATUS_ENABLED", true),
		Port:              getenv("PORT", "8080"),
		ReadTimeout:       getdur("READ_TIMEOUT", 15*time.Second),
		ReadHeaderTimeout: getdur("READ_HEADER_TIMEOUT", 10*time.Second),
		WriteTimeout:      getdur("WRITE_TIMEOUT", 20*time.Second),
		IdleTimeout:       getdur("IDLE_TIMEOUT", 60*time.Second),
		GinMode:           strings.ToLower(getenv("GIN_MODE", "release")),
		APIBasePath:       normalizeBasePath(getenv("API_BASE_PATH", "/api/v1")),

		// Logging
		LogLevel:  strings.ToLower(getenv("LOG_LEVEL", "info")),
		LogPretty: getbool("LOG_PRETTY", false),

		// State
		DataDir:    dataDir,
		LedgerPath: getenv("LEDGER_PATH", filepath.Join(dataDir, "processed_items.json")),
		QuotaPath:  getenv("QUOTA_PATH", filepath.Join(dataDir, "quota_state.json")),
		DBPath:     getenv("DB_PATH", filepath.Join(dataDir, "journal.db")),

		RateRPS:   getfloat("RATE_RPS", 1.0),
		RateBurst: getint("RATE_BURST", 2),

		Policy: PolicyConfig{
			MaxActionsPerDay:      getint("MAX_ACTIONS_PER_DAY", 5),
			CycleInterval:         time.Duration(getint("CYCLE_INTERVAL_HOURS", 24)) * time.Hour,
			Keywords:              splitCSV(getenv("KEYWORD_FILTER", "")),
			FreshnessWindow:       time.Duration(getint("FRESHNESS_WINDOW_HOURS", 24)) * time.Hour,
			BaseDelay:             time.Duration(getfloat("BASE_DELAY_MINUTES", 30) * float64(time.Minute)),
			ScaleFactor:           getfloat("SCALE_FACTOR", 2.0),
			MaxCandidatesPerCycle: getint("MAX_CANDIDATES_PER_CYCLE", 0),

			MinResponseRunes:  getint("MIN_RESPONSE_RUNES", 5),
			MaxResponseRunes:  getint("MAX_RESPONSE_RUNES", 200),
			DisallowedPhrases: splitCSVOr(os.Getenv("DISALLOWED_PHRASES"), DefaultDisallowedPhrases),
			SuccessPauseMin:   getdur("SUCCESS_PAUSE_MIN", 2*time.Minute),
			SuccessPauseMax:   getdur("SUCCESS_PAUSE_MAX", 5*time.Minute),
			FailurePauseMin:   getdur("FAILURE_PAUSE_MIN", 30*time.Second),
			FailurePauseMax:   getdur("FAILURE_PAUSE_MAX", 60*time.Second),
		},

		Source: SourceConfig{
			URL:             strings.TrimRight(getenv("SOURCE_URL", ""), "/"),
			Accounts:        splitCSV(getenv("TARGET_ACCOUNTS", "")),
			RPS:             getfloat("SOURCE_RPS", 1.0),
			Burst:           getint("SOURCE_BURST", 1),
			PerAccountLimit: getint("SOURCE_PER_ACCOUNT_LIMIT", 3),
		},

		Generator: GeneratorConfig{
			URL:    strings.TrimRight(getenv("GENERATOR_URL", "https://api.openai.com/v1"), "/"),
			APIKey: getenv("GENERATOR_API_KEY", os.Getenv("OPENAI_API_KEY")),
			Model:  getenv("GENERATOR_MODEL", "gpt-3.5-turbo"),
		},

		Publisher: PublisherConfig{
			URL:    strings.TrimRight(getenv("PUBLISHER_URL", ""), "/"),
			Token:  getenv("PUBLISHER_TOKEN", ""),
			DryRun: getbool("DRY_RUN", false),
		},

		Retry: RetryConfig{
			MaxRetries: getint("RETRY_MAX", 3),
			BaseDelay:  getdur("RETRY_BASE_DELAY", 5*time.Second),
			MaxDelay:   getdur("RETRY_MAX_DELAY", 15*time.Second),
		},

		CORS: CORSConfig{
			AllowedOrigins: splitCSV(getenv("CORS_ALLOWED_ORIGINS", "")),
		},

		// Observability (OpenTelemetry)
		OTEL: OTELConfig{
			Enabled:     getbool("OTEL_ENABLED", false),
			Endpoint:    getenv("OTEL_EXPORTER_OTLP_ENDPOINT", "localhost:4317"),
			Insecure:    getbool("OTEL_EXPORTER_OTLP_INSECURE", true),
			ServiceName: getenv("OTEL_SERVICE_NAME", "go-reply-bot"),
			SampleRatio: getfloat("OTEL_TRACES_SAMPLER_ARG", 1.0),
		},
	}

	// --- normalization ---
	if cfg.LogLevel == "warning" {
		cfg.LogLevel = "warn"
	}
	switch cfg.GinMode {
	case "debug", "release", "test":
	default:
		cfg.GinMode = "release"
	}
	if cfg.Policy.MaxCandidatesPerCycle < 0 {
		cfg.Policy.MaxCandidatesPerCycle = 0
	}
	if cfg.Policy.SuccessPauseMax < cfg.Policy.SuccessPauseMin {
		cfg.Policy.SuccessPauseMax = cfg.Policy.SuccessPauseMin
	}
	if cfg.Policy.FailurePauseMax < cfg.Policy.FailurePauseMin {
		cfg.Policy.FailurePauseMax = cfg.Policy.FailurePauseMin
	}
	if cfg.Retry.MaxRetries < 0 {
		cfg.Retry.MaxRetries = 0
	}

	// --- validation ---
	switch cfg.LogLevel {
	case "debug", "info", "warn", "error", "fatal", "panic":
	default:
		return cfg, errors.New("LOG_LEVEL must be one of: debug, info, warn, error, fatal, panic")
	}
	if strings.TrimSpace(cfg.Port) == "" {
		return cfg, errors.New("PORT must not be empty")
	}
	if cfg.ReadTimeout <= 0 || cfg.ReadHeaderTimeout <= 0 || cfg.WriteTimeout <= 0 || cfg.IdleTimeout <= 0 {
		return cfg, errors.New("timeouts must be positive durations")
	}
	if strings.TrimSpace(cfg.LedgerPath) == "" {
		return cfg, errors.New("LEDGER_PATH must not be empty")
	}
	if strings.TrimSpace(cfg.QuotaPath) == "" {
		return cfg, errors.New("QUOTA_PATH must not be empty")
	}
	if filepath.Clean(cfg.LedgerPath) == filepath.Clean(cfg.QuotaPath) {
		return cfg, errors.New("LEDGER_PATH and QUOTA_PATH must be different files")
	}
	if cfg.Policy.MaxActionsPerDay < 1 {
		return cfg, errors.New("MAX_ACTIONS_PER_DAY must be >= 1")
	}
	if cfg.Policy.CycleInterval <= 0 {
		return cfg, errors.New("CYCLE_INTERVAL_HOURS must be >= 1")
	}
	if cfg.Policy.FreshnessWindow <= 0 {
		return cfg, errors.New("FRESHNESS_WINDOW_HOURS must be >= 1")
	}
	if cfg.Policy.BaseDelay < 0 {
		return cfg, errors.New("BASE_DELAY_MINUTES must be >= 0")
	}
	if cfg.Policy.ScaleFactor < 0 {
		return cfg, errors.New("SCALE_FACTOR must be >= 0")
	}
	if cfg.Policy.MinResponseRunes < 1 || cfg.Policy.MaxResponseRunes < cfg.Policy.MinResponseRunes {
		return cfg, errors.New("MIN_RESPONSE_RUNES must be >= 1 and <= MAX_RESPONSE_RUNES")
	}
	if cfg.Policy.SuccessPauseMin < 0 || cfg.Policy.FailurePauseMin < 0 {
		return cfg, errors.New("pause durations must be >= 0")
	}
	if cfg.Source.RPS <= 0 {
		return cfg, errors.New("SOURCE_RPS must be > 0")
	}
	if cfg.Source.Burst < 1 {
		return cfg, errors.New("SOURCE_BURST must be >= 1")
	}
	if cfg.Source.PerAccountLimit < 1 {
		return cfg, errors.New("SOURCE_PER_ACCOUNT_LIMIT must be >= 1")
	}
	if cfg.RateRPS < 0 {
		return cfg, errors.New("RATE_RPS must be >= 0")
	}
	if cfg.RateBurst < 1 {
		return cfg, errors.New("RATE_BURST must be >= 1")
	}
	if cfg.OTEL.SampleRatio < 0 || cfg.OTEL.SampleRatio > 1 {
		return cfg, errors.New("OTEL_TRACES_SAMPLER_ARG must be in [0,1]")
	}

	return cfg, nil
}

// ---- helpers (no external deps) ----

func getenv(k, def string) string {
	if v, ok := os.LookupEnv(k); ok && v != "" {
		return v
	}
	return def
}

func getfloat(k string, def float64) float64 {
	if v, ok := os.LookupEnv(k); ok && v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return def
}

func getint(k string, def int) int {
	if v, ok := os.LookupEnv(k); ok && v != "" {
		if i, err := strconv.Atoi(strings.TrimSpace(v)); err == nil {
			return i
		}
	}
	return def
}

func getbool(k string, def bool) bool {
	if v, ok := os.LookupEnv(k); ok && v != "" {
		switch strings.ToLower(strings.TrimSpace(v)) {
		case "1", "true", "yes", "y", "on":
			return true
		case "0", "false", "no", "n", "off":
			return false
		}
	}
	return def
}

func getdur(k string, def time.Duration) time.Duration {
	if v, ok := os.LookupEnv(k); ok && v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return def
}

func splitCSV(s string) []string {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		t := strings.TrimSpace(p)
		if t != "" {
			out = append(out, t)
		}
	}
	return out
}

// splitCSVOr returns def when s is unset; an explicitly blank-only list
// disables the phrase check entirely.
func splitCSVOr(s string, def []string) []string {
	if s == "" {
		return append([]string(nil), def...)
	}
	return splitCSV(s)
}

// normalizeBasePath ensures leading '/' and strips trailing '/' (except root).
func normalizeBasePath(p string) string {
	p = strings.TrimSpace(p)
	if p == "" {
		return "/"
	}
	if !strings.HasPrefix(p, "/") {
		p = "/" + p
	}
	if len(p) > 1 && strings.HasSuffix(p, "/") {
		p = strings.TrimRight(p, "/")
	}
	return p
}
