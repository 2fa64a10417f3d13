package store

import (
	"context"
	"fmt"
	"path/filepath"
)

// Options selects and configures a backend.
type Options struct {
	Backend     string
	DataDir     string
	DatabaseURL string
	QuotaBytes  int64
}

// New creates a Store based on the backend name.
//
// Supported backends:
//
//	"json"     - JSON files in DataDir (default)
//	"sqlite"   - SQLite database at DataDir/site.db
//	"postgres" - PostgreSQL at DatabaseURL
//	"memory"   - In-memory (ephemeral, for testing)
//
// A positive QuotaBytes wraps the backend with WithQuota.
func New(ctx context.Context, opts Options) (Store, error) {
	var (
		s   Store
		err error
	)
	switch opts.Backend {
	case "json", "":
		s, err = NewJsonFileStore(opts.DataDir)
	case "sqlite":
		s, err = NewSqliteStore(filepath.Join(opts.DataDir, "site.db"))
	case "postgres":
		if opts.DatabaseURL == "" {
			return nil, fmt.Errorf("postgres backend requires a database url")
		}
		s, err = NewPostgresStore(ctx, opts.DatabaseURL)
	case "memory":
		s = NewMemoryStore()
	default:
		return nil, fmt.Errorf("unknown store backend: %q (supported: json, sqlite, postgres, memory)", opts.Backend)
	}
	if err != nil {
		return nil, err
	}
	return WithQuota(s, opts.QuotaBytes), nil
}
