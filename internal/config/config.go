package config

import (
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"strings"
	"time"
)

const minCookieSecretLen = 32

const (
	ConsistencyAtomic          = "atomic"
	ConsistencyReadModifyWrite = "read_modify_write"
)

// Config holds the application configuration read from the environment.
type Config struct {
	// HTTP Server
	Port               string
	RateLimitPerMinute int
	TrustUserHeader    bool
	UserHeader         string
	UserCookieSecret   string
	SecureCookies      bool

	// Logging
	LogLevel string

	// Backend selection
	DataBackend  string
	SQLiteDBPath string
	SeedFile     string

	// Income submission
	ConsistencyMode       string
	RemoteTimeout         time.Duration
	SuccessMessageTTL     time.Duration
	RollbackOnRemoteError bool

	// Per-session view state
	SessionCacheSize int
	SessionTTL       time.Duration

	// AMQP
	AMQPURL      string
	AMQPExchange string
	AMQPQueue    string

	// Google Sheets mirror
	GoogleSpreadsheetID    string
	GoogleIncomesSheetName string

	// Worker
	SyncInterval    time.Duration
	SyncConcurrency int
}

// Load reads the configuration from environment variables, applying defaults.
func Load() *Config {
	return &Config{
		Port:               getEnv("PORT", "8081"),
		RateLimitPerMinute: getEnvInt("RATE_LIMIT_PER_MINUTE", 60),
		TrustUserHeader:    getEnvBool("TRUST_USER_HEADER", false),
		UserHeader:         getEnv("USER_HEADER", "X-Forwarded-User"),
		UserCookieSecret:   getEnv("USER_COOKIE_SECRET", ""),
		SecureCookies:      getEnvBool("SECURE_COOKIES", false),

		LogLevel: getEnv("LOG_LEVEL", "info"),

		DataBackend:  getEnv("DATA_BACKEND", "memory"),
		SQLiteDBPath: getEnv("SQLITE_DB_PATH", "./data/entrate.db"),
		SeedFile:     getEnv("SEED_FILE", ""),

		ConsistencyMode:       getEnv("CONSISTENCY_MODE", ConsistencyAtomic),
		RemoteTimeout:         getEnvDuration("REMOTE_TIMEOUT", 7*time.Second),
		SuccessMessageTTL:     getEnvDuration("SUCCESS_MESSAGE_TTL", 2*time.Second),
		RollbackOnRemoteError: getEnvBool("ROLLBACK_ON_REMOTE_ERROR", false),

		SessionCacheSize: getEnvInt("SESSION_CACHE_SIZE", 1000),
		SessionTTL:       getEnvDuration("SESSION_TTL", 12*time.Hour),

		AMQPURL:      getEnv("AMQP_URL", ""),
		AMQPExchange: getEnv("AMQP_EXCHANGE", "entrate"),
		AMQPQueue:    getEnv("AMQP_QUEUE", "mirror_incomes"),

		GoogleSpreadsheetID:    getEnv("GOOGLE_SPREADSHEET_ID", ""),
		GoogleIncomesSheetName: getEnv("GOOGLE_INCOMES_SHEET_NAME", "Incomes"),

		SyncInterval:    getEnvDuration("SYNC_INTERVAL", 5*time.Minute),
		SyncConcurrency: getEnvInt("SYNC_CONCURRENCY", 4),
	}
}

// SlogLevel maps LogLevel to a slog level, defaulting to info.
func (c *Config) SlogLevel() slog.Level {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(c.LogLevel)); err != nil {
		return slog.LevelInfo
	}
	return lvl
}

// Validate validates the configuration and returns an error if invalid
func (c *Config) Validate() error {
	var errors []string

	if port, err := strconv.Atoi(c.Port); err != nil {
		errors = append(errors, fmt.Sprintf("invalid port '%s': must be a number", c.Port))
	} else if port < 1 || port > 65535 {
		errors = append(errors, fmt.Sprintf("invalid port %d: must be between 1 and 65535", port))
	}

	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(c.LogLevel)); err != nil {
		errors = append(errors, fmt.Sprintf("invalid log level '%s': must be debug, info, warn or error", c.LogLevel))
	}

	validBackends := []string{"memory", "sqlite"}
	if !slices.Contains(validBackends, c.DataBackend) {
		errors = append(errors, fmt.Sprintf("invalid data backend '%s': must be one of %v", c.DataBackend, validBackends))
	}

	if c.DataBackend == "sqlite" {
		if c.SQLiteDBPath == "" {
			errors = append(errors, "SQLite database path cannot be empty when using sqlite backend")
		} else {
			dir := filepath.Dir(c.SQLiteDBPath)
			if dir != "." && dir != "" {
				if _, err := os.Stat(dir); os.IsNotExist(err) {
					if err := os.MkdirAll(dir, 0o755); err != nil {
						errors = append(errors, fmt.Sprintf("cannot create SQLite database directory '%s': %v", dir, err))
					}
				}
			}
		}
	}

	if c.DataBackend == "memory" && c.SeedFile != "" {
		if _, err := os.Stat(c.SeedFile); err != nil && !os.IsNotExist(err) {
			errors = append(errors, fmt.Sprintf("cannot read seed file '%s': %v", c.SeedFile, err))
		}
	}

	validModes := []string{ConsistencyAtomic, ConsistencyReadModifyWrite}
	if !slices.Contains(validModes, c.ConsistencyMode) {
		errors = append(errors, fmt.Sprintf("invalid consistency mode '%s': must be one of %v", c.ConsistencyMode, validModes))
	}

	if c.RemoteTimeout < 100*time.Millisecond || c.RemoteTimeout > time.Minute {
		errors = append(errors, fmt.Sprintf("invalid remote timeout %v: must be between 100ms and 1m", c.RemoteTimeout))
	}
	if c.SuccessMessageTTL <= 0 {
		errors = append(errors, fmt.Sprintf("invalid success message ttl %v: must be positive", c.SuccessMessageTTL))
	}

	if c.SessionCacheSize < 1 {
		errors = append(errors, fmt.Sprintf("invalid session cache size %d: must be at least 1", c.SessionCacheSize))
	}
	if c.SessionTTL < time.Minute {
		errors = append(errors, fmt.Sprintf("invalid session ttl %v: must be at least 1 minute", c.SessionTTL))
	}

	if c.RateLimitPerMinute < 1 {
		errors = append(errors, fmt.Sprintf("invalid rate limit %d: must be at least 1 request per minute", c.RateLimitPerMinute))
	}
	if c.TrustUserHeader && strings.TrimSpace(c.UserHeader) == "" {
		errors = append(errors, "user header name cannot be empty when TRUST_USER_HEADER is enabled")
	}
	if c.UserCookieSecret != "" && len(c.UserCookieSecret) < minCookieSecretLen {
		errors = append(errors, fmt.Sprintf("user cookie secret too short: must be at least %d bytes", minCookieSecretLen))
	}

	if c.AMQPURL != "" {
		if parsedURL, err := url.Parse(c.AMQPURL); err != nil {
			errors = append(errors, fmt.Sprintf("invalid AMQP URL '%s': %v", c.AMQPURL, err))
		} else if parsedURL.Scheme != "amqp" && parsedURL.Scheme != "amqps" {
			errors = append(errors, fmt.Sprintf("invalid AMQP URL scheme '%s': must be 'amqp' or 'amqps'", parsedURL.Scheme))
		}
		if c.AMQPExchange == "" {
			errors = append(errors, "AMQP exchange name cannot be empty when AMQP URL is provided")
		}
		if c.AMQPQueue == "" {
			errors = append(errors, "AMQP queue name cannot be empty when AMQP URL is provided")
		}
	}

	if c.GoogleSpreadsheetID != "" && c.GoogleIncomesSheetName == "" {
		errors = append(errors, "Google incomes sheet name is required when GOOGLE_SPREADSHEET_ID is set")
	}

	if c.SyncInterval < time.Second {
		errors = append(errors, fmt.Sprintf("invalid sync interval %v: must be at least 1 second", c.SyncInterval))
	} else if c.SyncInterval > 24*time.Hour {
		errors = append(errors, fmt.Sprintf("invalid sync interval %v: must be at most 24 hours", c.SyncInterval))
	}
	if c.SyncConcurrency < 1 || c.SyncConcurrency > 32 {
		errors = append(errors, fmt.Sprintf("invalid sync concurrency %d: must be between 1 and 32", c.SyncConcurrency))
	}

	if len(errors) > 0 {
		return fmt.Errorf("configuration validation failed:\n- %s", strings.Join(errors, "\n- "))
	}

	return nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}
