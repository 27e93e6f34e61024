// Package store provides search-history storage backends for BizFinder.
//
// It records completed lookups (who searched for what, where, and how it went)
// in SQLite or PostgreSQL, selected by DSN shape. Conversation sessions are
// deliberately NOT stored here; they live in process memory only.
package store

import (
	"context"
	"strings"

	"github.com/willmcdaniel/BizFinder/internal/models"
)

// Store is the persistence interface for completed search records.
type Store interface {
	// AddSearchRecord persists one completed lookup.
	AddSearchRecord(ctx context.Context, rec models.SearchRecord) error

	// GetSearchRecords returns recorded lookups, newest first, capped at limit.
	// A limit <= 0 applies DefaultQueryLimit.
	GetSearchRecords(ctx context.Context, limit int) ([]models.SearchRecord, error)

	// Close releases the underlying database handle.
	Close() error
}

// DefaultQueryLimit caps history queries when the caller passes no limit.
const DefaultQueryLimit = 100

// Opts holds configuration options for store backends.
type Opts struct {
	DSN string
}

// Option defines a configuration option for store backends.
type Option func(*Opts)

// WithDSN sets the database DSN (a file path for SQLite, a connection string
// for PostgreSQL).
func WithDSN(dsn string) Option {
	return func(o *Opts) { o.DSN = dsn }
}

// IsPostgresDSN reports whether dsn looks like a PostgreSQL connection string
// rather than an SQLite file path.
func IsPostgresDSN(dsn string) bool {
	return strings.HasPrefix(dsn, "postgres://") ||
		strings.HasPrefix(dsn, "postgresql://") ||
		strings.Contains(dsn, "host=")
}

// NewFromDSN creates the store backend matching the DSN shape.
func NewFromDSN(dsn string) (Store, error) {
	if IsPostgresDSN(dsn) {
		return NewPostgresStore(WithDSN(dsn))
	}
	return NewSQLiteStore(WithDSN(dsn))
}
