package config

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/MikeSquared-Agency/Territoires/internal/refstats"
	"github.com/MikeSquared-Agency/Territoires/internal/territory"
)

type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Data      DataConfig      `yaml:"data"`
	Hermes    HermesConfig    `yaml:"hermes"`
	Scoring   ScoringConfig   `yaml:"scoring"`
	Variables VariablesConfig `yaml:"variables"`
	Logging   LoggingConfig   `yaml:"logging"`
}

type ServerConfig struct {
	Port               int      `yaml:"port"`
	MetricsPort        int      `yaml:"metrics_port"`
	AdminToken         string   `yaml:"admin_token"`
	CORSOrigins        []string `yaml:"cors_origins"`
	RateLimitPerMinute int      `yaml:"rate_limit_per_minute"`
}

const (
	BackendJSON     = "json"
	BackendPostgres = "postgres"
	BackendSQLite   = "sqlite"
)

type DataConfig struct {
	Backend     string   `yaml:"backend"`
	Dir         string   `yaml:"dir"`
	BaseURL     string   `yaml:"base_url"`
	S3          S3Config `yaml:"s3"`
	DatabaseURL string   `yaml:"database_url"`
	SQLitePath  string   `yaml:"sqlite_path"`
	ReloadCron  string   `yaml:"reload_cron"`
}

// S3Config points the JSON backend at a bucket instead of Dir. Endpoint is
// only needed for S3-compatible stores (MinIO, Scaleway, ...).
type S3Config struct {
	Bucket   string `yaml:"bucket"`
	Prefix   string `yaml:"prefix"`
	Region   string `yaml:"region"`
	Endpoint string `yaml:"endpoint"`
}

type HermesConfig struct {
	URL string `yaml:"url"`
}

type ScoringConfig struct {
	DefaultAlpha     float64    `yaml:"default_alpha"`
	DefaultWeight    float64    `yaml:"default_weight"`
	DefaultVariables []string   `yaml:"default_variables"`
	DefaultAccess    string     `yaml:"default_access"`
	Classes          []ClassDef `yaml:"classes"`
}

// ClassDef is one vulnerability class. A unit falls in the first class whose
// UpperQuantile threshold of the live score_double distribution is not below
// its score.
type ClassDef struct {
	Name          string  `yaml:"name" json:"name"`
	UpperQuantile float64 `yaml:"upper_quantile" json:"upper_quantile"`
}

type VariablesConfig struct {
	Definitions []VariableDef `yaml:"definitions"`
}

// VariableDef declares a candidate indicator. An empty Granularities list
// means every granularity.
type VariableDef struct {
	refstats.Definition `yaml:",inline"`
	Granularities       []string `yaml:"granularities"`
}

type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// NewLogger builds the process logger: JSON unless Format is "text", at
// Level (debug, info, warn, error; info when unrecognized).
func (l LoggingConfig) NewLogger(w io.Writer) *slog.Logger {
	var level slog.Level
	if err := level.UnmarshalText([]byte(l.Level)); err != nil {
		level = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: level}
	if l.Format == "text" {
		return slog.New(slog.NewTextHandler(w, opts))
	}
	return slog.New(slog.NewJSONHandler(w, opts))
}

// DefinitionsFor returns the variable definitions that apply to g.
func (c *Config) DefinitionsFor(g territory.Granularity) []refstats.Definition {
	var out []refstats.Definition
	for _, d := range c.Variables.Definitions {
		if len(d.Granularities) == 0 {
			out = append(out, d.Definition)
			continue
		}
		for _, name := range d.Granularities {
			if pg, err := territory.ParseGranularity(name); err == nil && pg == g {
				out = append(out, d.Definition)
				break
			}
		}
	}
	return out
}

// DefaultClasses splits the live score_double distribution into quartiles.
func DefaultClasses() []ClassDef {
	return []ClassDef{
		{Name: "faible", UpperQuantile: 0.25},
		{Name: "moderee", UpperQuantile: 0.50},
		{Name: "elevee", UpperQuantile: 0.75},
		{Name: "prioritaire", UpperQuantile: 1.00},
	}
}

// DefaultVariables is the indicator catalog of the national datasets.
func DefaultVariables() []VariableDef {
	socio := func(label, column, unit string) VariableDef {
		return VariableDef{Definition: refstats.Definition{
			Label: label, Column: column, Category: refstats.CategorySocio,
			VulnerabilityIncreasing: true, Unit: unit,
		}}
	}
	access := func(label, column string) VariableDef {
		return VariableDef{Definition: refstats.Definition{
			Label: label, Column: column, Category: refstats.CategoryAccess,
			Unit: "APL",
		}}
	}
	return []VariableDef{
		socio("Taux de pauvreté", "tx_pauvrete", "%"),
		socio("Indice FDep", "fdep", "indice"),
		socio("EDI", "EDI", "indice"),
		socio("Part des familles monoparentales", "part_familles_monoparentales", "%"),
		socio("Part des 75 ans et +", "part_personnes_agees_75_plus", "%"),
		socio("Taux de chômage moyen", "tx_chomage_moyen", "%"),
		socio("Taux de chômage moyen des 15-24 ans", "tx_chomage_moyen_15_24_ans", "%"),
		socio("Taux de chômage moyen des 25-49 ans", "tx_chomage_moyen_25_49_ans", "%"),
		socio("Taux de chômage moyen des 50 ans et +", "tx_chomage_moyen_50_ans_plus", "%"),
		socio("Taux de chômage moyen des femmes", "tx_chomage_moyen_femmes", "%"),
		socio("Taux de chômage moyen des hommes", "tx_chomage_moyen_hommes", "%"),
		access("Médecins généralistes", "apl_medecins"),
		access("Infirmiers", "apl_infirmiers"),
		access("Dentistes", "apl_dentistes"),
		access("Sages-femmes", "apl_sagesfemmes"),
		access("Kinésithérapeutes", "apl_kine"),
	}
}

// Load reads defaults, then the optional YAML file at path, then TERRITOIRES_*
// environment variables. A .env file in the working directory, if any, is
// loaded into the environment first.
func Load(path string) (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		Server: ServerConfig{
			Port:               8700,
			MetricsPort:        8701,
			RateLimitPerMinute: 120,
		},
		Data: DataConfig{
			Backend:    BackendJSON,
			Dir:        "data",
			SQLitePath: "territoires.db",
		},
		Scoring: ScoringConfig{
			DefaultAlpha:     0.5,
			DefaultWeight:    0.3,
			DefaultVariables: []string{"Taux de pauvreté", "Indice FDep"},
			DefaultAccess:    "Médecins généralistes",
			Classes:          DefaultClasses(),
		},
		Variables: VariablesConfig{
			Definitions: DefaultVariables(),
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
	}

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	}

	applyEnv(cfg)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks the settings that would otherwise fail at first use.
func (c *Config) Validate() error {
	switch c.Data.Backend {
	case BackendJSON:
		if c.Data.Dir == "" && c.Data.S3.Bucket == "" && c.Data.BaseURL == "" {
			return fmt.Errorf("data: json backend needs dir, base_url or s3.bucket")
		}
	case BackendPostgres:
		if c.Data.DatabaseURL == "" {
			return fmt.Errorf("data: postgres backend needs database_url")
		}
	case BackendSQLite:
		if c.Data.SQLitePath == "" {
			return fmt.Errorf("data: sqlite backend needs sqlite_path")
		}
	default:
		return fmt.Errorf("data: unknown backend %q", c.Data.Backend)
	}
	if c.Scoring.DefaultAlpha < 0 || c.Scoring.DefaultAlpha > 1 {
		return fmt.Errorf("scoring: default_alpha %v outside [0, 1]", c.Scoring.DefaultAlpha)
	}
	if c.Scoring.DefaultWeight < 0 {
		return fmt.Errorf("scoring: default_weight %v is negative", c.Scoring.DefaultWeight)
	}
	prev := 0.0
	for _, cl := range c.Scoring.Classes {
		if cl.Name == "" || cl.UpperQuantile <= prev || cl.UpperQuantile > 1 {
			return fmt.Errorf("scoring: class %q needs an increasing upper_quantile within (0, 1]", cl.Name)
		}
		prev = cl.UpperQuantile
	}
	for _, d := range c.Variables.Definitions {
		if d.Label == "" || d.Column == "" {
			return fmt.Errorf("variables: definition needs label and column (%q/%q)", d.Label, d.Column)
		}
		if _, err := refstats.ParseCategory(string(d.Category)); err != nil {
			return fmt.Errorf("variables: %q: %w", d.Label, err)
		}
	}
	return nil
}

func applyEnv(cfg *Config) {
	if v := os.Getenv("TERRITOIRES_PORT"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Server.Port = n
		}
	}
	if v := os.Getenv("TERRITOIRES_METRICS_PORT"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Server.MetricsPort = n
		}
	}
	if v := os.Getenv("TERRITOIRES_ADMIN_TOKEN"); v != "" {
		cfg.Server.AdminToken = v
	}
	if v := os.Getenv("TERRITOIRES_CORS_ORIGINS"); v != "" {
		cfg.Server.CORSOrigins = splitList(v)
	}
	if v := os.Getenv("TERRITOIRES_RATE_LIMIT_PER_MINUTE"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Server.RateLimitPerMinute = n
		}
	}
	if v := os.Getenv("TERRITOIRES_DATA_BACKEND"); v != "" {
		cfg.Data.Backend = v
	}
	if v := os.Getenv("TERRITOIRES_DATA_DIR"); v != "" {
		cfg.Data.Dir = v
	}
	if v := os.Getenv("TERRITOIRES_DATA_BASE_URL"); v != "" {
		cfg.Data.BaseURL = v
	}
	if v := os.Getenv("TERRITOIRES_S3_BUCKET"); v != "" {
		cfg.Data.S3.Bucket = v
	}
	if v := os.Getenv("TERRITOIRES_S3_PREFIX"); v != "" {
		cfg.Data.S3.Prefix = v
	}
	if v := os.Getenv("TERRITOIRES_S3_REGION"); v != "" {
		cfg.Data.S3.Region = v
	}
	if v := os.Getenv("TERRITOIRES_S3_ENDPOINT"); v != "" {
		cfg.Data.S3.Endpoint = v
	}
	if v := os.Getenv("TERRITOIRES_DATABASE_URL"); v != "" {
		cfg.Data.DatabaseURL = v
	}
	if v := os.Getenv("TERRITOIRES_SQLITE_PATH"); v != "" {
		cfg.Data.SQLitePath = v
	}
	if v := os.Getenv("TERRITOIRES_RELOAD_CRON"); v != "" {
		cfg.Data.ReloadCron = v
	}
	if v := os.Getenv("TERRITOIRES_HERMES_URL"); v != "" {
		cfg.Hermes.URL = v
	}
	if v := os.Getenv("TERRITOIRES_DEFAULT_ALPHA"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			cfg.Scoring.DefaultAlpha = f
		}
	}
	if v := os.Getenv("TERRITOIRES_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
	if v := os.Getenv("TERRITOIRES_LOG_FORMAT"); v != "" {
		cfg.Logging.Format = v
	}
}

func splitList(v string) []string {
	var out []string
	for _, s := range strings.Split(v, ",") {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}
