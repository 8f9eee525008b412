package config

import (
	"fmt"
	"net/url"
	"os"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/caarlos0/env/v10"
	"github.com/joho/godotenv"
)

// Config holds all configuration of the reactor
type Config struct {
	// API is the HTTP GraphQL endpoint, e.g. https://puzzle.example.com/api/graphql
	API string `toml:"api" env:"PUZZLE_API"`

	// WSOrigin sets the Origin header of subscription handshakes
	WSOrigin string `toml:"ws_origin" env:"PUZZLE_WS_ORIGIN"`

	// Credentials are checked by login, not here
	Credentials Credentials `toml:"credentials"`

	LogLevel string `toml:"log_level" env:"LOG_LEVEL"`

	// FetchProjects lists active projects after login
	FetchProjects bool `toml:"fetch_projects" env:"PUZZLE_FETCH_PROJECTS"`

	// MetricsAddr serves /metrics when not empty
	MetricsAddr string `toml:"metrics_addr" env:"PUZZLE_METRICS_ADDR"`

	Resubscribe ResubscribeConfig `toml:"resubscribe"`
}

// Credentials of the login mutation
type Credentials struct {
	Domain   string `toml:"domain" env:"PUZZLE_USER_DOMAIN"`
	Username string `toml:"username" env:"PUZZLE_USERNAME"`
	Password string `toml:"password" env:"PUZZLE_PASSWORD"`
}

// ResubscribeConfig controls what the reactor does after a subscription ends
type ResubscribeConfig struct {
	Enabled     bool          `toml:"enabled" env:"PUZZLE_RESUBSCRIBE"`
	MaxAttempts int           `toml:"max_attempts" env:"PUZZLE_RESUBSCRIBE_MAX_ATTEMPTS"`
	MinDelay    time.Duration `toml:"min_delay" env:"PUZZLE_RESUBSCRIBE_MIN_DELAY"`
	MaxDelay    time.Duration `toml:"max_delay" env:"PUZZLE_RESUBSCRIBE_MAX_DELAY"`
	Factor      float64       `toml:"factor" env:"PUZZLE_RESUBSCRIBE_FACTOR"`
}

// Default returns the configuration used when nothing is set
func Default() *Config {
	return &Config{
		LogLevel: "info",
		Resubscribe: ResubscribeConfig{
			MaxAttempts: 5,
			MinDelay:    time.Second,
			MaxDelay:    30 * time.Second,
			Factor:      1.5,
		},
	}
}

// Load reads an optional .env file, the optional TOML file named by PUZZLE_CONFIG_FILE
// and then the environment, later sources win.
func Load(dotenvFiles ...string) (*Config, error) {
	if err := loadDotenv(dotenvFiles...); err != nil {
		return nil, err
	}

	cfg := Default()
	if path := os.Getenv("PUZZLE_CONFIG_FILE"); path != "" {
		if err := loadToml(path, cfg); err != nil {
			return nil, err
		}
	}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

func loadDotenv(files ...string) error {
	if len(files) == 0 {
		files = []string{".env"}
	}
	for _, f := range files {
		if _, err := os.Stat(f); os.IsNotExist(err) {
			continue
		}
		// variables already set in the environment are not overridden
		if err := godotenv.Load(f); err != nil {
			return fmt.Errorf("dotenv load failed (%s): %w", f, err)
		}
	}
	return nil
}

func loadToml(path string, out any) error {
	if _, err := toml.DecodeFile(path, out); err != nil {
		return fmt.Errorf("config load failed (%s): %w", path, err)
	}
	return nil
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if c.API == "" {
		return fmt.Errorf("PUZZLE_API environment variable is not set")
	}
	u, err := url.Parse(c.API)
	if err != nil {
		return fmt.Errorf("invalid PUZZLE_API: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("invalid PUZZLE_API scheme: %q (must be http or https)", u.Scheme)
	}

	validLogLevels := map[string]bool{
		"debug": true,
		"info":  true,
		"warn":  true,
		"error": true,
	}
	if !validLogLevels[c.LogLevel] {
		return fmt.Errorf("invalid log level: %s (must be debug, info, warn, or error)", c.LogLevel)
	}

	if c.Resubscribe.Enabled {
		if c.Resubscribe.MaxAttempts < 1 {
			return fmt.Errorf("resubscribe max attempts must be at least 1")
		}
		if c.Resubscribe.MinDelay <= 0 || c.Resubscribe.MaxDelay < c.Resubscribe.MinDelay {
			return fmt.Errorf("invalid resubscribe delays: min %s, max %s", c.Resubscribe.MinDelay, c.Resubscribe.MaxDelay)
		}
		if c.Resubscribe.Factor < 1 {
			return fmt.Errorf("resubscribe factor must be at least 1")
		}
	}
	return nil
}
