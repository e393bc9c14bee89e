// Package config provides configuration loading and validation for the
// API and worker processes. All configuration is environment-driven.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds application configuration loaded from environment variables.
type Config struct {
	// DatabaseURL is the Postgres connection string. The store must support
	// row-level locking with SKIP LOCKED semantics.
	DatabaseURL string

	// APIPort is the TCP port the REST API listens on (e.g. "8000").
	APIPort string

	// LogLevel is the configured log level (e.g. debug, info, warn, error),
	// lower-cased, default "info". It is parsed and stored only; no log
	// output is filtered by it.
	LogLevel string

	// CheckerConcurrency is the per-worker ceiling of in-flight probes.
	CheckerConcurrency int

	// PollInterval is the idle delay between scheduler polls when no
	// targets are due.
	PollInterval time.Duration

	// LeaseTimeout is the lifetime of an acquired scheduler lease. A worker
	// that does not complete within this window loses the target to the
	// next acquirer.
	LeaseTimeout time.Duration

	// FetchBatchSize is the maximum number of due targets returned by a
	// single acquire call.
	FetchBatchSize int

	// ShutdownTimeout bounds graceful shutdown of the API server. The worker
	// does not use it: on shutdown it cancels in-flight probes and waits for
	// them to return.
	ShutdownTimeout time.Duration

	// TelegramBotToken enables the Telegram alert sender when set.
	TelegramBotToken string

	// TelegramChatID, when set, sends all alerts to a single chat instead
	// of resolving notification channels from the store.
	TelegramChatID string

	// TelegramParseMode is the Bot API parse_mode for alert messages.
	TelegramParseMode string
}

// Load reads configuration from environment variables, applies defaults and
// validates required values. It returns a configured Config or an error.
func Load() (*Config, error) {
	cfg := &Config{
		DatabaseURL: strings.TrimSpace(os.Getenv("DATABASE_URL")),
		APIPort:     strings.TrimSpace(os.Getenv("API_PORT")),
		LogLevel:    strings.TrimSpace(os.Getenv("LOG_LEVEL")),
	}

	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}

	if cfg.APIPort == "" {
		cfg.APIPort = "8000"
	}

	if cfg.LogLevel == "" {
		cfg.LogLevel = "info"
	} else {
		cfg.LogLevel = strings.ToLower(cfg.LogLevel)
	}

	var err error
	if cfg.CheckerConcurrency, err = intEnv("CHECKER_CONCURRENCY", 20, 1); err != nil {
		return nil, err
	}
	if cfg.FetchBatchSize, err = intEnv("FETCH_BATCH_SIZE", 100, 1); err != nil {
		return nil, err
	}
	if cfg.PollInterval, err = secondsEnv("POLL_INTERVAL_SEC", 1.0); err != nil {
		return nil, err
	}
	if cfg.LeaseTimeout, err = secondsEnv("LEASE_TIMEOUT_SEC", 30.0); err != nil {
		return nil, err
	}

	st := strings.TrimSpace(os.Getenv("SHUTDOWN_TIMEOUT"))
	if st == "" {
		cfg.ShutdownTimeout = 30 * time.Second
	} else {
		d, err := time.ParseDuration(st)
		if err != nil {
			return nil, fmt.Errorf("invalid SHUTDOWN_TIMEOUT: %w", err)
		}
		cfg.ShutdownTimeout = d
	}

	cfg.TelegramBotToken = strings.TrimSpace(os.Getenv("TELEGRAM_BOT_TOKEN"))
	cfg.TelegramChatID = strings.TrimSpace(os.Getenv("TELEGRAM_CHAT_ID"))
	cfg.TelegramParseMode = strings.TrimSpace(os.Getenv("TELEGRAM_PARSE_MODE"))
	if cfg.TelegramParseMode == "" {
		cfg.TelegramParseMode = "Markdown"
	}

	return cfg, nil
}

// intEnv parses an integer environment variable with a default and a lower
// bound. Values below min are rejected rather than clamped.
func intEnv(name string, def, min int) (int, error) {
	v := strings.TrimSpace(os.Getenv(name))
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", name, err)
	}
	if n < min {
		return 0, fmt.Errorf("invalid %s: must be >= %d, got %d", name, min, n)
	}
	return n, nil
}

// secondsEnv parses a positive (possibly fractional) seconds value.
func secondsEnv(name string, def float64) (time.Duration, error) {
	v := strings.TrimSpace(os.Getenv(name))
	if v == "" {
		return time.Duration(def * float64(time.Second)), nil
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", name, err)
	}
	if f <= 0 {
		return 0, fmt.Errorf("invalid %s: must be > 0, got %v", name, f)
	}
	return time.Duration(f * float64(time.Second)), nil
}
