package store

import (
	"fmt"
	"time"

	"go.uber.org/zap"
)

// Backends accepted by Open. The SQL backends are named by dialect.
const (
	BackendPostgREST = "postgrest"
	BackendMemory    = "memory"
)

// Options selects and tunes a backend.
type Options struct {
	Backend     string
	URL         string // PostgREST base url or SQL DSN
	Key         string
	Timeout     time.Duration
	Retries     int
	AutoMigrate bool
}

// Open builds the backend named by opts.Backend.
func Open(opts Options, logger *zap.Logger) (Store, error) {
	switch opts.Backend {
	case BackendPostgREST:
		return NewPostgREST(opts.URL, opts.Key, PostgRESTOptions{
			Timeout:    opts.Timeout,
			RetryCount: opts.Retries,
		}, logger), nil
	case DialectPostgres, DialectSQLite:
		return OpenSQL(opts.Backend, opts.URL, opts.AutoMigrate, logger)
	case BackendMemory:
		return NewMemory(), nil
	}
	return nil, fmt.Errorf("unknown store backend %q", opts.Backend)
}
