package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"docconsole/internal/impact"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Addr           string        `yaml:"addr"`
	BackendURL     string        `yaml:"backend_url"`
	BackendTimeout time.Duration `yaml:"backend_timeout"`
	// DatabaseURL is optional; without it open conflicts live in memory.
	DatabaseURL   string `yaml:"database_url"`
	MigrationsDir string `yaml:"migrations_dir"`
	// ConflictRetention is how long resolved conflicts are kept before purging.
	ConflictRetention time.Duration `yaml:"conflict_retention"`
	// RedisURL is optional; without it the title cache is per process.
	RedisURL       string        `yaml:"redis_url"`
	TitleCacheTTL  time.Duration `yaml:"title_cache_ttl"`
	MeiliURL       string        `yaml:"meili_url"`
	MeiliMasterKey string        `yaml:"meili_master_key"`
	CORSOrigin     string        `yaml:"cors_origin"`

	DedupeWindow     time.Duration `yaml:"dedupe_window"`
	TreeDepth        int           `yaml:"tree_depth"`
	ExpandLevel      int           `yaml:"expand_level"`
	MaxReopen        int           `yaml:"max_reopen"`
	FetchConcurrency int           `yaml:"fetch_concurrency"`

	LogLevel  string `yaml:"log_level"`
	LogFormat string `yaml:"log_format"`

	Impact impact.Weights `yaml:"impact"`
}

func Defaults() Config {
	return Config{
		Addr:              ":8790",
		BackendURL:        "http://localhost:8080",
		BackendTimeout:    15 * time.Second,
		MigrationsDir:     "./db/migrations",
		ConflictRetention: 30 * 24 * time.Hour,
		TitleCacheTTL:     24 * time.Hour,
		CORSOrigin:        "*",
		DedupeWindow:      100 * time.Millisecond,
		TreeDepth:         10,
		ExpandLevel:       2,
		MaxReopen:         3,
		FetchConcurrency:  4,
		LogLevel:          "info",
		LogFormat:         "json",
		Impact:            impact.DefaultWeights(),
	}
}

// Load starts from Defaults, applies the YAML file named by DOCCONSOLE_CONFIG if
// set, then environment variables.
func Load() (Config, error) {
	cfg := Defaults()
	if path := os.Getenv("DOCCONSOLE_CONFIG"); path != "" {
		if err := loadFile(path, &cfg); err != nil {
			return Config{}, err
		}
	}
	applyEnv(&cfg)
	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func loadFile(path string, cfg *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("parse config file %s: %w", path, err)
	}
	return nil
}

func applyEnv(cfg *Config) {
	cfg.Addr = getenv("DOCCONSOLE_ADDR", cfg.Addr)
	cfg.BackendURL = getenv("DOCCONSOLE_BACKEND_URL", cfg.BackendURL)
	cfg.BackendTimeout = getenvDuration("DOCCONSOLE_BACKEND_TIMEOUT", cfg.BackendTimeout)
	cfg.DatabaseURL = getenv("DATABASE_URL", cfg.DatabaseURL)
	cfg.MigrationsDir = getenv("DOCCONSOLE_MIGRATIONS_DIR", cfg.MigrationsDir)
	cfg.ConflictRetention = getenvDuration("DOCCONSOLE_CONFLICT_RETENTION", cfg.ConflictRetention)
	cfg.RedisURL = getenv("REDIS_URL", cfg.RedisURL)
	cfg.TitleCacheTTL = getenvDuration("DOCCONSOLE_TITLE_CACHE_TTL", cfg.TitleCacheTTL)
	cfg.MeiliURL = getenv("MEILI_URL", cfg.MeiliURL)
	cfg.MeiliMasterKey = getenv("MEILI_MASTER_KEY", cfg.MeiliMasterKey)
	cfg.CORSOrigin = getenv("DOCCONSOLE_CORS_ORIGIN", cfg.CORSOrigin)
	cfg.DedupeWindow = getenvDuration("DOCCONSOLE_DEDUPE_WINDOW", cfg.DedupeWindow)
	cfg.TreeDepth = getenvInt("DOCCONSOLE_TREE_DEPTH", cfg.TreeDepth)
	cfg.ExpandLevel = getenvInt("DOCCONSOLE_EXPAND_LEVEL", cfg.ExpandLevel)
	cfg.MaxReopen = getenvInt("DOCCONSOLE_MAX_REOPEN", cfg.MaxReopen)
	cfg.FetchConcurrency = getenvInt("DOCCONSOLE_FETCH_CONCURRENCY", cfg.FetchConcurrency)
	cfg.LogLevel = getenv("DOCCONSOLE_LOG_LEVEL", cfg.LogLevel)
	cfg.LogFormat = getenv("DOCCONSOLE_LOG_FORMAT", cfg.LogFormat)
}

func (c Config) validate() error {
	if c.BackendURL == "" {
		return fmt.Errorf("backend url is required")
	}
	if c.TreeDepth <= 0 {
		return fmt.Errorf("tree depth must be positive, got %d", c.TreeDepth)
	}
	if c.Impact.Min > c.Impact.Max {
		return fmt.Errorf("impact min %.2f exceeds max %.2f", c.Impact.Min, c.Impact.Max)
	}
	return nil
}

func getenv(key, fallback string) string {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	return value
}

func getenvInt(key string, fallback int) int {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return fallback
	}
	return parsed
}

func getenvDuration(key string, fallback time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	parsed, err := time.ParseDuration(value)
	if err != nil {
		return fallback
	}
	return parsed
}
