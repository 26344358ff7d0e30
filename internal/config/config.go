package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"checkin/internal/store"
)

// Store backends.
const (
	BackendPostgREST = store.BackendPostgREST
	BackendPostgres  = store.DialectPostgres
	BackendSQLite    = store.DialectSQLite
	BackendMemory    = store.BackendMemory
)

// Queue backends for the audit trail.
const (
	QueueMemory = "memory"
	QueueRedis  = "redis"
	QueueDirect = "direct"
)

// App holds the runtime configuration loaded from environment variables.
type App struct {
	Env              string
	HTTPPort         string
	StoreBackend     string
	StoreURL         string
	StoreKey         string
	StoreTimeout     time.Duration
	StoreRetries     int
	StoreAutoMigrate bool
	QueueBackend     string
	QueueKey         string
	RedisAddr        string
	RateLimitPerMin  int
	CORSOrigins      []string
	LogLevel         string
	LogFormat        string

	// Warnings collects env values that failed to parse and fell back to defaults.
	// Config is loaded before the logger exists, so main reports them.
	Warnings []string
}

// ErrMissingStore is returned when the record store endpoint or key is absent.
var ErrMissingStore = errors.New("store endpoint and access key are required")

// Load returns application config populated from environment variables.
// A .env file (or the file named by ENV_FILE) is read first when present;
// real environment variables win over file values.
func Load() (App, error) {
	if err := loadDotEnv(); err != nil {
		return App{}, err
	}

	cfg := App{
		Env:          getEnv("APP_ENV", "dev"),
		HTTPPort:     getEnv("HTTP_PORT", "8081"),
		StoreBackend: getEnv("STORE_BACKEND", BackendPostgREST),
		StoreURL:     os.Getenv("STORE_URL"),
		StoreKey:     os.Getenv("STORE_KEY"),
		QueueBackend: getEnv("QUEUE_BACKEND", QueueMemory),
		QueueKey:     getEnv("QUEUE_KEY", "checkin:audit"),
		RedisAddr:    getEnv("REDIS_ADDR", "localhost:6379"),
		LogLevel:     getEnv("LOG_LEVEL", "info"),
		LogFormat:    getEnv("LOG_FORMAT", "json"),
		CORSOrigins:  splitList(os.Getenv("CORS_ORIGINS")),
	}
	cfg.StoreTimeout = cfg.durationEnv("STORE_TIMEOUT", 5*time.Second)
	cfg.StoreRetries = cfg.intEnv("STORE_RETRIES", 2)
	cfg.StoreAutoMigrate = cfg.boolEnv("STORE_AUTOMIGRATE", true)
	cfg.RateLimitPerMin = cfg.intEnv("RATE_LIMIT_PER_MIN", 240)

	return cfg, cfg.Validate()
}

// Validate checks the values the process cannot start without.
func (c App) Validate() error {
	switch c.StoreBackend {
	case BackendPostgREST:
		if c.StoreURL == "" || c.StoreKey == "" {
			return fmt.Errorf("%w: set STORE_URL and STORE_KEY", ErrMissingStore)
		}
	case BackendPostgres, BackendSQLite:
		if c.StoreURL == "" {
			return fmt.Errorf("%w: set STORE_URL to the database DSN", ErrMissingStore)
		}
	case BackendMemory:
	default:
		return fmt.Errorf("unknown STORE_BACKEND %q", c.StoreBackend)
	}

	switch c.QueueBackend {
	case QueueMemory, QueueRedis, QueueDirect:
	default:
		return fmt.Errorf("unknown QUEUE_BACKEND %q", c.QueueBackend)
	}
	if c.StoreTimeout <= 0 {
		return errors.New("STORE_TIMEOUT must be positive")
	}
	return nil
}

// StoreOptions returns the record store settings.
func (c App) StoreOptions() store.Options {
	return store.Options{
		Backend:     c.StoreBackend,
		URL:         c.StoreURL,
		Key:         c.StoreKey,
		Timeout:     c.StoreTimeout,
		Retries:     c.StoreRetries,
		AutoMigrate: c.StoreAutoMigrate,
	}
}

// Production reports whether gin should run in release mode.
func (c App) Production() bool {
	return c.Env == "production" || c.Env == "prod"
}

func loadDotEnv() error {
	path := getEnv("ENV_FILE", ".env")
	if _, err := os.Stat(path); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return err
	}
	if err := godotenv.Load(path); err != nil {
		return fmt.Errorf("load %s: %w", path, err)
	}
	return nil
}

func getEnv(key, fallback string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return fallback
}

// splitList parses a comma-separated env value, dropping blanks.
func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func (c *App) durationEnv(key string, fallback time.Duration) time.Duration {
	if val := os.Getenv(key); val != "" {
		d, err := time.ParseDuration(val)
		if err != nil {
			c.warnf("invalid duration for %s: %v, using fallback %s", key, err, fallback)
			return fallback
		}
		return d
	}
	return fallback
}

func (c *App) boolEnv(key string, fallback bool) bool {
	if val := os.Getenv(key); val != "" {
		b, err := strconv.ParseBool(val)
		if err != nil {
			c.warnf("invalid bool for %s, using fallback %v", key, fallback)
			return fallback
		}
		return b
	}
	return fallback
}

func (c *App) intEnv(key string, fallback int) int {
	if val := os.Getenv(key); val != "" {
		parsed, err := strconv.Atoi(val)
		if err != nil {
			c.warnf("invalid int for %s, using fallback %d", key, fallback)
			return fallback
		}
		return parsed
	}
	return fallback
}

func (c *App) warnf(format string, args ...any) {
	c.Warnings = append(c.Warnings, fmt.Sprintf(format, args...))
}
