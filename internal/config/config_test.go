package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Port != DefaultPort {
		t.Errorf("Port = %d, want %d", cfg.Port, DefaultPort)
	}
	if cfg.APIPrefix != DefaultAPIPrefix {
		t.Errorf("APIPrefix = %q", cfg.APIPrefix)
	}
	if cfg.RowCap != DefaultRowCap {
		t.Errorf("RowCap = %d", cfg.RowCap)
	}
	if cfg.Model != DefaultModel {
		t.Errorf("Model = %q", cfg.Model)
	}
	if cfg.EnableAuth {
		t.Error("auth should be disabled by default")
	}
}

func TestLoadEnvOverrides(t *testing.T) {
	t.Setenv("VIZQUERY_PORT", "9100")
	t.Setenv("VIZQUERY_LOG_LEVEL", "debug")
	t.Setenv("VIZQUERY_API_KEYS", "k1,k2")
	t.Setenv("VIZQUERY_ROW_CAP", "250")
	t.Setenv("ANTHROPIC_API_KEY", "test-key")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Port != 9100 {
		t.Errorf("Port = %d", cfg.Port)
	}
	if cfg.LogLevel != "debug" {
		t.Errorf("LogLevel = %q", cfg.LogLevel)
	}
	if len(cfg.APIKeys) != 2 || !cfg.EnableAuth {
		t.Errorf("APIKeys = %v, EnableAuth = %v", cfg.APIKeys, cfg.EnableAuth)
	}
	if cfg.RowCap != 250 {
		t.Errorf("RowCap = %d", cfg.RowCap)
	}
	if cfg.AnthropicAPIKey != "test-key" {
		t.Errorf("AnthropicAPIKey = %q", cfg.AnthropicAPIKey)
	}
}

func TestLoadInvalidPortIgnored(t *testing.T) {
	t.Setenv("VIZQUERY_PORT", "not-a-number")
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Port != DefaultPort {
		t.Errorf("Port = %d, want default %d", cfg.Port, DefaultPort)
	}
}

func TestLoadJSONFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	content := `{
		"port": 9200,
		"row_cap": 50,
		"data_sources": [
			{
				"id": "warehouse",
				"kind": "postgres",
				"dsn": "postgres://app@db/sales",
				"exemplars": [{"question": "row count", "sql": "SELECT COUNT(*) FROM sales_data"}]
			}
		]
	}`
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write fixture: %v", err)
	}
	t.Setenv("VIZQUERY_CONFIG", path)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Port != 9200 {
		t.Errorf("Port = %d", cfg.Port)
	}
	if cfg.RowCap != 50 {
		t.Errorf("RowCap = %d", cfg.RowCap)
	}
	if len(cfg.DataSources) != 1 {
		t.Fatalf("data sources = %d", len(cfg.DataSources))
	}
	ds := cfg.DataSources[0]
	if ds.ID != "warehouse" || ds.Kind != "postgres" {
		t.Errorf("data source = %+v", ds)
	}
	if len(ds.Exemplars) != 1 || ds.Exemplars[0].SQL != "SELECT COUNT(*) FROM sales_data" {
		t.Errorf("exemplars = %+v", ds.Exemplars)
	}
}

func TestLoadMissingConfigFile(t *testing.T) {
	t.Setenv("VIZQUERY_CONFIG", filepath.Join(t.TempDir(), "missing.json"))
	if _, err := Load(); err == nil {
		t.Error("expected error for missing config file")
	}
}
