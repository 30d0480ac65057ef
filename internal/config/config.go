package config

import (
	"errors"
	"fmt"
	"time"
)

// Config holds server configuration values.
type Config struct {
	Addr              string        `mapstructure:"addr" yaml:"addr"`
	ReadHeaderTimeout time.Duration `mapstructure:"read_header_timeout" yaml:"read_header_timeout"`
	ShutdownTimeout   time.Duration `mapstructure:"shutdown_timeout" yaml:"shutdown_timeout"`

	DatabasePath string `mapstructure:"database_path" yaml:"database_path"`
	LogLevel     string `mapstructure:"log_level" yaml:"log_level"`
	LogFormat    string `mapstructure:"log_format" yaml:"log_format"`

	JWTSecret   string        `mapstructure:"jwt_secret" yaml:"jwt_secret"`
	JWTIssuer   string        `mapstructure:"jwt_issuer" yaml:"jwt_issuer"`
	JWTAudience string        `mapstructure:"jwt_audience" yaml:"jwt_audience"`
	JWTTTL      time.Duration `mapstructure:"jwt_ttl" yaml:"jwt_ttl"`

	HistoryLimit       int           `mapstructure:"history_limit" yaml:"history_limit"`
	HistoryTimeout     time.Duration `mapstructure:"history_timeout" yaml:"history_timeout"`
	ProbeTimeout       time.Duration `mapstructure:"probe_timeout" yaml:"probe_timeout"`
	ClientBuffer       int           `mapstructure:"client_buffer" yaml:"client_buffer"`
	SingleRoom         bool          `mapstructure:"single_room" yaml:"single_room"`
	BestEffortFailures string        `mapstructure:"best_effort_failures" yaml:"best_effort_failures"`

	RateLimit       float64 `mapstructure:"rate_limit" yaml:"rate_limit"`
	RateBurst       int     `mapstructure:"rate_burst" yaml:"rate_burst"`
	MaxMessageBytes int64   `mapstructure:"max_message_bytes" yaml:"max_message_bytes"`
}

// Default returns configuration with reasonable starter defaults.
func Default() Config {
	return Config{
		Addr:               ":8080",
		ReadHeaderTimeout:  5 * time.Second,
		ShutdownTimeout:    5 * time.Second,
		DatabasePath:       "roomsync.db",
		LogLevel:           "info",
		LogFormat:          "console",
		JWTSecret:          "change-me",
		JWTIssuer:          "roomsync",
		JWTAudience:        "roomsync",
		JWTTTL:             24 * time.Hour,
		HistoryLimit:       200,
		HistoryTimeout:     5 * time.Second,
		ProbeTimeout:       time.Second,
		ClientBuffer:       64,
		SingleRoom:         false,
		BestEffortFailures: "silent",
		RateLimit:          20,
		RateBurst:          40,
		MaxMessageBytes:    64 << 10,
	}
}

// UpdateFrom overwrites non-zero values from other config into receiver.
func (c *Config) UpdateFrom(other Config) {
	if other.Addr != "" {
		c.Addr = other.Addr
	}
	if other.DatabasePath != "" {
		c.DatabasePath = other.DatabasePath
	}
	if other.LogLevel != "" {
		c.LogLevel = other.LogLevel
	}
	if other.ReadHeaderTimeout != 0 {
		c.ReadHeaderTimeout = other.ReadHeaderTimeout
	}
	if other.ShutdownTimeout != 0 {
		c.ShutdownTimeout = other.ShutdownTimeout
	}
}

// Validate rejects settings the server cannot run with.
func (c Config) Validate() error {
	var errs []error
	if c.Addr == "" {
		errs = append(errs, errors.New("addr is required"))
	}
	if c.DatabasePath == "" {
		errs = append(errs, errors.New("database_path is required"))
	}
	if c.JWTSecret == "" {
		errs = append(errs, errors.New("jwt_secret is required"))
	}
	if c.HistoryLimit <= 0 || c.HistoryLimit > 200 {
		errs = append(errs, fmt.Errorf("history_limit must be in 1..200, got %d", c.HistoryLimit))
	}
	if c.HistoryTimeout <= 0 {
		errs = append(errs, errors.New("history_timeout must be positive"))
	}
	if c.ProbeTimeout <= 0 {
		errs = append(errs, errors.New("probe_timeout must be positive"))
	}
	if c.BestEffortFailures != "silent" && c.BestEffortFailures != "loud" {
		errs = append(errs, fmt.Errorf("best_effort_failures must be silent or loud, got %q", c.BestEffortFailures))
	}
	if c.RateLimit < 0 || c.RateBurst < 0 {
		errs = append(errs, errors.New("rate_limit and rate_burst must not be negative"))
	}
	return errors.Join(errs...)
}
