package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// LoadDotenv loads KEY=VALUE pairs from the given .env files (default ".env")
// into the process environment. Variables that are already set win. A missing
// default file is not an error; an explicitly named missing file is.
func LoadDotenv(files ...string) error {
	if len(files) == 0 {
		if _, err := os.Stat(".env"); err != nil {
			return nil
		}
		return godotenv.Load()
	}
	return godotenv.Load(files...)
}

// knownKeys are the environment variables Load reads.
var knownKeys = map[string]struct{}{
	"DATA_DIR": {}, "STATUS_ENABLED": {}, "PORT": {}, "READ_TIMEOUT": {},
	"READ_HEADER_TIMEOUT": {}, "WRITE_TIMEOUT": {}, "IDLE_TIMEOUT": {},
	"GIN_MODE": {}, "API_BASE_PATH": {}, "LOG_LEVEL": {}, "LOG_PRETTY": {},
	"LEDGER_PATH": {}, "QUOTA_PATH": {}, "DB_PATH": {}, "RATE_RPS": {}, "RATE_BURST": {},
	"MAX_ACTIONS_PER_DAY": {}, "CYCLE_INTERVAL_HOURS": {}, "KEYWORD_FILTER": {},
	"FRESHNESS_WINDOW_HOURS": {}, "BASE_DELAY_MINUTES": {}, "SCALE_FACTOR": {},
	"MAX_CANDIDATES_PER_CYCLE": {}, "MIN_RESPONSE_RUNES": {}, "MAX_RESPONSE_RUNES": {},
	"DISALLOWED_PHRASES": {}, "SUCCESS_PAUSE_MIN": {}, "SUCCESS_PAUSE_MAX": {},
	"FAILURE_PAUSE_MIN": {}, "FAILURE_PAUSE_MAX": {},
	"SOURCE_URL": {}, "TARGET_ACCOUNTS": {}, "SOURCE_RPS": {}, "SOURCE_BURST": {},
	"SOURCE_PER_ACCOUNT_LIMIT": {}, "GENERATOR_URL": {}, "GENERATOR_API_KEY": {},
	"OPENAI_API_KEY": {}, "GENERATOR_MODEL": {}, "PUBLISHER_URL": {}, "PUBLISHER_TOKEN": {},
	"DRY_RUN": {}, "RETRY_MAX": {}, "RETRY_BASE_DELAY": {}, "RETRY_MAX_DELAY": {},
	"CORS_ALLOWED_ORIGINS": {}, "OTEL_ENABLED": {}, "OTEL_EXPORTER_OTLP_ENDPOINT": {},
	"OTEL_EXPORTER_OTLP_INSECURE": {}, "OTEL_SERVICE_NAME": {}, "OTEL_TRACES_SAMPLER_ARG": {},
}

// ApplyFile reads a flat YAML mapping of configuration keys (the same names
// as the environment variables) and exports each entry into the process
// environment, overriding any existing value. Lists are joined with commas
// so that KEYWORD_FILTER and friends can be written as YAML sequences.
// Unknown keys fail the whole file and nothing is exported.
//
// Example:
//
//	MAX_ACTIONS_PER_DAY: 3
//	KEYWORD_FILTER: [workout, protein, "leg day"]
//	DRY_RUN: true
func ApplyFile(path string) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file: %w", err)
	}
	var doc map[string]any
	if err := yaml.Unmarshal(raw, &doc); err != nil {
		return fmt.Errorf("parse config file %s: %w", path, err)
	}
	vals := make(map[string]string, len(doc))
	for k, v := range doc {
		key := strings.ToUpper(strings.TrimSpace(k))
		if _, ok := knownKeys[key]; !ok {
			return fmt.Errorf("config key %q: unknown", k)
		}
		val, err := scalarString(v)
		if err != nil {
			return fmt.Errorf("config key %s: %w", key, err)
		}
		vals[key] = val
	}
	for key, val := range vals {
		if err := os.Setenv(key, val); err != nil {
			return err
		}
	}
	return nil
}

func scalarString(v any) (string, error) {
	switch t := v.(type) {
	case nil:
		return "", nil
	case string:
		return t, nil
	case bool:
		return strconv.FormatBool(t), nil
	case int:
		return strconv.Itoa(t), nil
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64), nil
	case []any:
		parts := make([]string, 0, len(t))
		for _, item := range t {
			if _, nested := item.([]any); nested {
				return "", fmt.Errorf("nested lists are not supported")
			}
			s, err := scalarString(item)
			if err != nil {
				return "", err
			}
			parts = append(parts, s)
		}
		return strings.Join(parts, ","), nil
	default:
		return "", fmt.Errorf("unsupported value type %T", v)
	}
}
