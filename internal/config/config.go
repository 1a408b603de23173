package config

import (
	"encoding/json"
	"os"
	"strconv"
	"strings"
)

// DataSource is a seed entry for the registry, usually provided via the
// JSON config file. DSN and credential paths never leave this process.
type DataSource struct {
	ID        string     `json:"id"`
	Name      string     `json:"name"`
	Kind      string     `json:"kind"`
	DSN       string     `json:"dsn,omitempty"`
	ProjectID string     `json:"project_id,omitempty"`
	Dataset   string     `json:"dataset,omitempty"`
	Location  string     `json:"location,omitempty"`
	CredsFile string     `json:"credentials_file,omitempty"`
	Exemplars []Exemplar `json:"exemplars,omitempty"`
}

// Exemplar is a question→SQL pair used as a few-shot example for its
// data source.
type Exemplar struct {
	Question string `json:"question"`
	SQL      string `json:"sql"`
}

type Config struct {
	// Server
	Host        string `json:"host"`
	Port        int    `json:"port"`
	Environment string `json:"environment"`
	APIPrefix   string `json:"api_prefix"`
	LogLevel    string `json:"log_level"`

	// CORS
	CORSOrigins []string `json:"cors_origins"`

	// Auth
	APIKeyHeader string   `json:"api_key_header"`
	APIKeys      []string `json:"api_keys"`
	EnableAuth   bool     `json:"enable_auth"`

	// Rate limiting
	RateLimitPerMinute int `json:"rate_limit_per_minute"`

	// Pipeline budgets
	RequestTimeoutSeconds int   `json:"request_timeout_seconds"`
	MaxConcurrentQueries  int64 `json:"max_concurrent_queries"`
	RowCap                int   `json:"row_cap"`
	SnapshotMaxTables     int   `json:"snapshot_max_tables"`
	SnapshotMaxColumns    int   `json:"snapshot_max_columns"`

	// Data source pools
	PoolMaxOpenConns int `json:"pool_max_open_conns"`
	PoolMaxIdleConns int `json:"pool_max_idle_conns"`

	// AI / LLM
	AnthropicAPIKey  string `json:"anthropic_api_key"`
	AnthropicBaseURL string `json:"anthropic_base_url"` // override for a compatible proxy
	Model            string `json:"model"`

	// Pre-registered data sources
	DataSources []DataSource `json:"data_sources"`
}

func Load() (*Config, error) {
	cfg := &Config{
		Host:                  DefaultHost,
		Port:                  DefaultPort,
		Environment:           DefaultEnvironment,
		APIPrefix:             DefaultAPIPrefix,
		LogLevel:              DefaultLogLevel,
		CORSOrigins:           DefaultCORSOrigins,
		APIKeyHeader:          "X-API-Key",
		RateLimitPerMinute:    DefaultRateLimitPerMinute,
		RequestTimeoutSeconds: DefaultRequestTimeoutSeconds,
		MaxConcurrentQueries:  DefaultMaxConcurrentQueries,
		RowCap:                DefaultRowCap,
		SnapshotMaxTables:     DefaultSnapshotMaxTables,
		SnapshotMaxColumns:    DefaultSnapshotMaxColumns,
		PoolMaxOpenConns:      DefaultPoolMaxOpenConns,
		PoolMaxIdleConns:      DefaultPoolMaxIdleConns,
		Model:                 DefaultModel,
	}

	// Load from JSON config file if specified
	if path := getEnv("VIZQUERY_CONFIG", ""); path != "" {
		if err := loadJSON(path, cfg); err != nil {
			return nil, err
		}
	}

	applyEnvOverrides(cfg)

	return cfg, nil
}

func loadJSON(path string, cfg *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	return json.Unmarshal(data, cfg)
}

func applyEnvOverrides(cfg *Config) {
	if v := getEnv("VIZQUERY_HOST", ""); v != "" {
		cfg.Host = v
	}
	if v := getEnv("VIZQUERY_PORT", ""); v != "" {
		if p, err := strconv.Atoi(v); err == nil {
			cfg.Port = p
		}
	}
	if v := getEnv("VIZQUERY_ENV", ""); v != "" {
		cfg.Environment = v
	}
	if v := getEnv("VIZQUERY_LOG_LEVEL", ""); v != "" {
		cfg.LogLevel = v
	}
	if v := getEnv("VIZQUERY_API_KEYS", ""); v != "" {
		cfg.APIKeys = strings.Split(v, ",")
		cfg.EnableAuth = true
	}
	if v := getEnv("VIZQUERY_RATE_LIMIT_PER_MINUTE", ""); v != "" {
		if r, err := strconv.Atoi(v); err == nil {
			cfg.RateLimitPerMinute = r
		}
	}
	if v := getEnv("VIZQUERY_REQUEST_TIMEOUT_SECONDS", ""); v != "" {
		if s, err := strconv.Atoi(v); err == nil {
			cfg.RequestTimeoutSeconds = s
		}
	}
	if v := getEnv("VIZQUERY_ROW_CAP", ""); v != "" {
		if c, err := strconv.Atoi(v); err == nil {
			cfg.RowCap = c
		}
	}
	if v := getEnv("ANTHROPIC_API_KEY", ""); v != "" {
		cfg.AnthropicAPIKey = v
	}
	if v := getEnv("ANTHROPIC_BASE_URL", ""); v != "" {
		cfg.AnthropicBaseURL = v
	}
	if v := getEnv("VIZQUERY_MODEL", ""); v != "" {
		cfg.Model = v
	}
}

func getEnv(key, fallback string) string {
	if v, ok := os.LookupEnv(key); ok {
		return v
	}
	return fallback
}
