package config

import (
	"bytes"
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/MikeSquared-Agency/Territoires/internal/refstats"
	"github.com/MikeSquared-Agency/Territoires/internal/territory"
)

var envVars = []string{
	"TERRITOIRES_PORT", "TERRITOIRES_METRICS_PORT", "TERRITOIRES_ADMIN_TOKEN",
	"TERRITOIRES_CORS_ORIGINS", "TERRITOIRES_RATE_LIMIT_PER_MINUTE",
	"TERRITOIRES_DATA_BACKEND", "TERRITOIRES_DATA_DIR", "TERRITOIRES_DATA_BASE_URL", "TERRITOIRES_S3_BUCKET",
	"TERRITOIRES_S3_PREFIX", "TERRITOIRES_S3_REGION", "TERRITOIRES_S3_ENDPOINT",
	"TERRITOIRES_DATABASE_URL", "TERRITOIRES_SQLITE_PATH", "TERRITOIRES_RELOAD_CRON",
	"TERRITOIRES_HERMES_URL", "TERRITOIRES_DEFAULT_ALPHA",
	"TERRITOIRES_LOG_LEVEL", "TERRITOIRES_LOG_FORMAT",
}

func clearEnv(t *testing.T) {
	t.Helper()
	for _, k := range envVars {
		t.Setenv(k, "")
		os.Unsetenv(k)
	}
}

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadDefaults(t *testing.T) {
	clearEnv(t)

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.Server.Port != 8700 {
		t.Errorf("expected port 8700, got %d", cfg.Server.Port)
	}
	if cfg.Server.MetricsPort != 8701 {
		t.Errorf("expected metrics port 8701, got %d", cfg.Server.MetricsPort)
	}
	if cfg.Data.Backend != BackendJSON {
		t.Errorf("expected json backend, got %s", cfg.Data.Backend)
	}
	if cfg.Data.Dir != "data" {
		t.Errorf("expected data dir 'data', got %s", cfg.Data.Dir)
	}
	if cfg.Hermes.URL != "" {
		t.Errorf("expected hermes disabled by default, got %s", cfg.Hermes.URL)
	}
	if cfg.Scoring.DefaultAlpha != 0.5 {
		t.Errorf("expected default alpha 0.5, got %f", cfg.Scoring.DefaultAlpha)
	}
	if cfg.Scoring.DefaultWeight != 0.3 {
		t.Errorf("expected default weight 0.3, got %f", cfg.Scoring.DefaultWeight)
	}
	if len(cfg.Scoring.DefaultVariables) != 2 || cfg.Scoring.DefaultVariables[0] != "Taux de pauvreté" {
		t.Errorf("unexpected default variables %v", cfg.Scoring.DefaultVariables)
	}
	if cfg.Scoring.DefaultAccess != "Médecins généralistes" {
		t.Errorf("unexpected default access %q", cfg.Scoring.DefaultAccess)
	}
	if len(cfg.Scoring.Classes) != 4 || cfg.Scoring.Classes[3].Name != "prioritaire" {
		t.Errorf("unexpected default classes %v", cfg.Scoring.Classes)
	}
	if cfg.Logging.Level != "info" {
		t.Errorf("expected log level 'info', got '%s'", cfg.Logging.Level)
	}
	if cfg.Logging.Format != "json" {
		t.Errorf("expected log format 'json', got '%s'", cfg.Logging.Format)
	}
}

func TestLoadFromYAML(t *testing.T) {
	clearEnv(t)
	path := writeConfig(t, `
server:
  port: 9000
  cors_origins: ["https://carte.example.fr"]
data:
  backend: sqlite
  sqlite_path: /tmp/t.db
  reload_cron: "0 0 3 * * *"
scoring:
  default_alpha: 0.25
variables:
  definitions:
    - label: Taux de pauvreté
      column: tx_pauvrete
      category: socio
      vulnerability_increasing: true
      unit: "%"
      granularities: [communes]
    - label: Infirmiers
      column: apl_infirmiers
      category: access
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Server.Port != 9000 {
		t.Errorf("expected port 9000, got %d", cfg.Server.Port)
	}
	if cfg.Server.MetricsPort != 8701 {
		t.Errorf("expected default metrics port to survive, got %d", cfg.Server.MetricsPort)
	}
	if len(cfg.Server.CORSOrigins) != 1 {
		t.Errorf("expected one CORS origin, got %v", cfg.Server.CORSOrigins)
	}
	if cfg.Data.Backend != BackendSQLite || cfg.Data.SQLitePath != "/tmp/t.db" {
		t.Errorf("unexpected data config %+v", cfg.Data)
	}
	if cfg.Scoring.DefaultAlpha != 0.25 {
		t.Errorf("expected alpha 0.25, got %f", cfg.Scoring.DefaultAlpha)
	}

	if len(cfg.Variables.Definitions) != 2 {
		t.Fatalf("expected 2 definitions, got %d", len(cfg.Variables.Definitions))
	}
	d := cfg.Variables.Definitions[0]
	if d.Column != "tx_pauvrete" || d.Category != refstats.CategorySocio || !d.VulnerabilityIncreasing {
		t.Errorf("inline definition not decoded: %+v", d)
	}

	communes := cfg.DefinitionsFor(territory.Commune)
	deps := cfg.DefinitionsFor(territory.Departement)
	if len(communes) != 2 {
		t.Errorf("expected 2 commune definitions, got %d", len(communes))
	}
	if len(deps) != 1 || deps[0].Label != "Infirmiers" {
		t.Errorf("expected only Infirmiers for departements, got %v", deps)
	}
}

func TestEnvOverrides(t *testing.T) {
	clearEnv(t)
	t.Setenv("TERRITOIRES_PORT", "9100")
	t.Setenv("TERRITOIRES_ADMIN_TOKEN", "secret")
	t.Setenv("TERRITOIRES_CORS_ORIGINS", "https://a.fr, https://b.fr")
	t.Setenv("TERRITOIRES_DATA_BACKEND", "postgres")
	t.Setenv("TERRITOIRES_DATABASE_URL", "postgres://localhost/territoires")
	t.Setenv("TERRITOIRES_LOG_LEVEL", "debug")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Server.Port != 9100 {
		t.Errorf("expected port 9100, got %d", cfg.Server.Port)
	}
	if cfg.Server.AdminToken != "secret" {
		t.Errorf("expected admin token from env, got %q", cfg.Server.AdminToken)
	}
	if len(cfg.Server.CORSOrigins) != 2 || cfg.Server.CORSOrigins[1] != "https://b.fr" {
		t.Errorf("unexpected CORS origins %v", cfg.Server.CORSOrigins)
	}
	if cfg.Data.Backend != BackendPostgres {
		t.Errorf("expected postgres backend, got %s", cfg.Data.Backend)
	}
	if cfg.Logging.Level != "debug" {
		t.Errorf("expected debug, got %s", cfg.Logging.Level)
	}
}

func TestInvalidEnvIgnored(t *testing.T) {
	clearEnv(t)
	t.Setenv("TERRITOIRES_PORT", "not-a-number")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Server.Port != 8700 {
		t.Errorf("expected default port on bad env, got %d", cfg.Server.Port)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name string
		yaml string
	}{
		{"unknown backend", "data:\n  backend: mongo\n"},
		{"postgres without url", "data:\n  backend: postgres\n"},
		{"alpha out of range", "scoring:\n  default_alpha: 1.5\n"},
		{"negative weight", "scoring:\n  default_weight: -1\n"},
		{"classes not increasing", "scoring:\n  classes:\n    - {name: a, upper_quantile: 0.5}\n    - {name: b, upper_quantile: 0.5}\n"},
		{"bad category", "variables:\n  definitions:\n    - {label: x, column: x, category: other}\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clearEnv(t)
			if _, err := Load(writeConfig(t, tt.yaml)); err == nil {
				t.Error("expected validation error")
			}
		})
	}
}

func TestLoadMissingFile(t *testing.T) {
	clearEnv(t)
	if _, err := Load(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Error("expected error for missing file")
	}
}

func TestNewLogger(t *testing.T) {
	var buf bytes.Buffer
	logger := LoggingConfig{Level: "warn", Format: "json"}.NewLogger(&buf)
	if logger.Enabled(context.Background(), slog.LevelInfo) {
		t.Error("info should be filtered at warn level")
	}
	logger.Warn("loaded", "units", 3)
	if !bytes.Contains(buf.Bytes(), []byte(`"units":3`)) {
		t.Errorf("expected JSON output, got %s", buf.String())
	}

	buf.Reset()
	logger = LoggingConfig{Level: "loud", Format: "text"}.NewLogger(&buf)
	if !logger.Enabled(context.Background(), slog.LevelInfo) {
		t.Error("unknown level should default to info")
	}
	logger.Info("loaded", "units", 3)
	if !bytes.Contains(buf.Bytes(), []byte("units=3")) {
		t.Errorf("expected text output, got %s", buf.String())
	}
}
