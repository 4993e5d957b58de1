// Package config loads service settings from defaults, an optional YAML file,
// an optional .env file and the environment, in that order of precedence
// (later wins).
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

const (
	EnvDevelopment = "development"
	EnvProduction  = "production"
)

// maxGeoChunkSize matches the largest chunk the stream endpoint accepts.
const maxGeoChunkSize = 1000

var yearMonth = regexp.MustCompile(`^\d{4}-(0[1-9]|1[0-2])$`)

type Config struct {
	Port        int    `yaml:"port"`
	Environment string `yaml:"environment"`

	// Exactly one record source is used: Postgres when PostgresURL is set,
	// otherwise the CSV file at CSVPath.
	PostgresURL string `yaml:"postgres_url"`
	CrimeTable  string `yaml:"crime_table"`
	CSVPath     string `yaml:"csv_path"`

	// OverpassURL enables area boundary lookups when set.
	OverpassURL     string        `yaml:"overpass_url"`
	OverpassTimeout time.Duration `yaml:"overpass_timeout"`

	LatestMonth       string `yaml:"latest_month"`
	TopN              int    `yaml:"top_n"`
	GeoChunkSize      int    `yaml:"geo_chunk_size"`
	EvictOnAreaSwitch bool   `yaml:"evict_on_area_switch"`

	TrustedOrigins []string `yaml:"trusted_origins"`
	// RateLimit is requests per second per process; 0 disables limiting.
	RateLimit float64 `yaml:"rate_limit"`
	RateBurst int     `yaml:"rate_burst"`

	LogLevel       string `yaml:"log_level"`
	TracingEnabled bool   `yaml:"tracing_enabled"`
}

func Default() Config {
	return Config{
		Port:              3000,
		Environment:       EnvDevelopment,
		CrimeTable:        "big_data.crime_data",
		OverpassTimeout:   30 * time.Second,
		TopN:              5,
		GeoChunkSize:      100,
		EvictOnAreaSwitch: true,
		RateBurst:         20,
		LogLevel:          "info",
	}
}

// Load builds the configuration. path names an optional YAML file; an empty
// path skips it. A missing .env file is not an error.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
		}
	}

	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		slog.Warn("failed to load .env file", "error", err)
	}

	if err := applyEnv(&cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func applyEnv(cfg *Config) error {
	var errs []error

	setString(&cfg.Environment, "CRIME_ENV", "NODE_ENV")
	setString(&cfg.PostgresURL, "DATABASE_URL", "POSTGRES_URL")
	setString(&cfg.CrimeTable, "CRIME_TABLE")
	setString(&cfg.CSVPath, "CRIME_CSV_PATH")
	setString(&cfg.OverpassURL, "OVERPASS_URL")
	setString(&cfg.LatestMonth, "LATEST_MONTH")
	setString(&cfg.LogLevel, "LOG_LEVEL")

	errs = append(errs,
		setInt(&cfg.Port, "PORT"),
		setInt(&cfg.TopN, "TOP_N"),
		setInt(&cfg.GeoChunkSize, "GEO_CHUNK_SIZE"),
		setInt(&cfg.RateBurst, "RATE_BURST"),
		setFloat(&cfg.RateLimit, "RATE_LIMIT"),
		setBool(&cfg.EvictOnAreaSwitch, "EVICT_ON_AREA_SWITCH"),
		setBool(&cfg.TracingEnabled, "TRACING_ENABLED"),
		setDuration(&cfg.OverpassTimeout, "OVERPASS_TIMEOUT"),
	)

	if v := os.Getenv("TRUSTED_ORIGINS"); v != "" {
		cfg.TrustedOrigins = ParseOrigins(v)
	}

	return errors.Join(errs...)
}

// ParseOrigins splits a comma separated origin list, adding https:// to bare
// host names.
func ParseOrigins(v string) []string {
	var origins []string
	for _, origin := range strings.Split(v, ",") {
		origin = strings.TrimSpace(origin)
		if origin == "" {
			continue
		}
		if !strings.HasPrefix(origin, "http") {
			origin = "https://" + origin
		}
		origins = append(origins, origin)
	}
	return origins
}

func (c *Config) Validate() error {
	if c.PostgresURL == "" && c.CSVPath == "" {
		return errors.New("no record source configured: set DATABASE_URL or CRIME_CSV_PATH")
	}
	if c.Environment != EnvDevelopment && c.Environment != EnvProduction {
		return fmt.Errorf("unknown environment %q", c.Environment)
	}
	if c.LatestMonth != "" && !yearMonth.MatchString(c.LatestMonth) {
		return fmt.Errorf("latest month %q is not YYYY-MM", c.LatestMonth)
	}
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("invalid port %d", c.Port)
	}
	if c.TopN <= 0 {
		return fmt.Errorf("top_n must be positive, got %d", c.TopN)
	}
	if c.GeoChunkSize <= 0 || c.GeoChunkSize > maxGeoChunkSize {
		return fmt.Errorf("geo_chunk_size must be in 1..%d, got %d", maxGeoChunkSize, c.GeoChunkSize)
	}
	return nil
}

func (c *Config) IsProduction() bool {
	return c.Environment == EnvProduction
}

// SlogLevel maps LogLevel to a slog level, defaulting to info.
func (c *Config) SlogLevel() slog.Level {
	var level slog.Level
	if err := level.UnmarshalText([]byte(c.LogLevel)); err != nil {
		return slog.LevelInfo
	}
	return level
}

func setString(dst *string, keys ...string) {
	for _, key := range keys {
		if v := os.Getenv(key); v != "" {
			*dst = v
			return
		}
	}
}

func setInt(dst *int, key string) error {
	v := os.Getenv(key)
	if v == "" {
		return nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fmt.Errorf("%s: %w", key, err)
	}
	*dst = n
	return nil
}

func setFloat(dst *float64, key string) error {
	v := os.Getenv(key)
	if v == "" {
		return nil
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return fmt.Errorf("%s: %w", key, err)
	}
	*dst = f
	return nil
}

func setBool(dst *bool, key string) error {
	v := os.Getenv(key)
	if v == "" {
		return nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return fmt.Errorf("%s: %w", key, err)
	}
	*dst = b
	return nil
}

func setDuration(dst *time.Duration, key string) error {
	v := os.Getenv(key)
	if v == "" {
		return nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return fmt.Errorf("%s: %w", key, err)
	}
	*dst = d
	return nil
}
