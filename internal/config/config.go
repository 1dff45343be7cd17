// Package config resolves service settings from defaults, an optional YAML
// file and the environment, in that order of precedence (lowest first).
package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

type Config struct {
	HTTPAddr    string    `yaml:"http_addr"`
	DatabaseURL string    `yaml:"database_url"`
	Currency    string    `yaml:"currency"`
	ChartFile   string    `yaml:"chart_file"`
	DevSeed     bool      `yaml:"dev_seed"`
	Log         LogConfig `yaml:"log"`
	RateLimit   RateLimit `yaml:"rate_limit"`
}

type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"` // json or text
}

// RateLimit applies to write routes. RPS <= 0 disables limiting.
type RateLimit struct {
	RPS   float64 `yaml:"rps"`
	Burst int     `yaml:"burst"`
}

func Default() Config {
	return Config{
		HTTPAddr: ":8080",
		Currency: "USD",
		Log:      LogConfig{Level: "info", Format: "json"},
		RateLimit: RateLimit{
			RPS:   50,
			Burst: 100,
		},
	}
}

// Load returns defaults overlaid with path (when non-empty) and then the environment.
func Load(path string) (Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("reading config: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("parsing config: %w", err)
		}
	}
	if err := cfg.applyEnv(os.LookupEnv); err != nil {
		return Config{}, err
	}
	cfg.Currency = strings.ToUpper(strings.TrimSpace(cfg.Currency))
	if len(cfg.Currency) != 3 {
		return Config{}, fmt.Errorf("currency must be an ISO 4217 code, got %q", cfg.Currency)
	}
	return cfg, nil
}

func (c *Config) applyEnv(lookup func(string) (string, bool)) error {
	str := func(key string, dst *string) {
		if v, ok := lookup(key); ok && strings.TrimSpace(v) != "" {
			*dst = strings.TrimSpace(v)
		}
	}
	str("HTTP_ADDR", &c.HTTPAddr)
	str("DATABASE_URL", &c.DatabaseURL)
	str("LEDGER_CURRENCY", &c.Currency)
	str("CHART_FILE", &c.ChartFile)
	str("LOG_LEVEL", &c.Log.Level)
	str("LOG_FORMAT", &c.Log.Format)
	if v, ok := lookup("DEV_SEED"); ok {
		switch strings.ToLower(strings.TrimSpace(v)) {
		case "1", "true", "yes":
			c.DevSeed = true
		case "0", "false", "no", "":
			c.DevSeed = false
		default:
			return fmt.Errorf("DEV_SEED: unrecognized value %q", v)
		}
	}
	if v, ok := lookup("RATE_LIMIT_RPS"); ok && v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return fmt.Errorf("RATE_LIMIT_RPS: %w", err)
		}
		c.RateLimit.RPS = f
	}
	if v, ok := lookup("RATE_LIMIT_BURST"); ok && v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("RATE_LIMIT_BURST: %w", err)
		}
		c.RateLimit.Burst = n
	}
	return nil
}

// ParseLogLevel maps config values to slog levels; unknown values mean info.
func ParseLogLevel(s string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error", "err":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
