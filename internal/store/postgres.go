// Package store provides storage backends for BizFinder.
//
// This file implements the PostgreSQL-backed search-history store.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"

	_ "embed"

	_ "github.com/lib/pq"

	"github.com/willmcdaniel/BizFinder/internal/models"
)

//go:embed migrations_postgres.sql
var postgresMigrations string

// PostgresStore persists search records in PostgreSQL.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore creates a new PostgreSQL store with the given DSN.
func NewPostgresStore(opts ...Option) (*PostgresStore, error) {
	var cfg Opts
	for _, opt := range opts {
		opt(&cfg)
	}
	slog.Debug("store.NewPostgresStore invoked", "DSN_set", cfg.DSN != "")

	if cfg.DSN == "" {
		slog.Error("PostgresStore DSN not set")
		return nil, fmt.Errorf("database DSN not set")
	}

	db, err := sql.Open("postgres", cfg.DSN)
	if err != nil {
		slog.Error("Failed to open PostgreSQL connection", "error", err)
		return nil, err
	}
	if err := db.Ping(); err != nil {
		slog.Error("PostgreSQL ping failed", "error", err)
		return nil, err
	}

	if _, err := db.Exec(postgresMigrations); err != nil {
		slog.Error("Failed to run PostgreSQL migrations", "error", err)
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}
	slog.Debug("PostgreSQL migrations applied")

	return &PostgresStore{db: db}, nil
}

// AddSearchRecord persists one completed lookup.
func (s *PostgresStore) AddSearchRecord(ctx context.Context, rec models.SearchRecord) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO search_records (sender_id, keyword, address, result_count, outcome, created_at) VALUES ($1, $2, $3, $4, $5, $6)`,
		rec.SenderID, rec.Keyword, rec.Address, rec.ResultCount, rec.Outcome, rec.CreatedAt)
	if err != nil {
		slog.Error("PostgresStore AddSearchRecord failed", "error", err, "sender", rec.SenderID)
		return fmt.Errorf("failed to insert search record for %s: %w", rec.SenderID, err)
	}
	slog.Debug("PostgresStore AddSearchRecord succeeded", "sender", rec.SenderID, "outcome", rec.Outcome)
	return nil
}

// GetSearchRecords returns recorded lookups, newest first.
func (s *PostgresStore) GetSearchRecords(ctx context.Context, limit int) ([]models.SearchRecord, error) {
	if limit <= 0 {
		limit = DefaultQueryLimit
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, sender_id, keyword, address, result_count, outcome, created_at FROM search_records ORDER BY created_at DESC, id DESC LIMIT $1`,
		limit)
	if err != nil {
		slog.Error("PostgresStore GetSearchRecords query failed", "error", err)
		return nil, fmt.Errorf("failed to query search records: %w", err)
	}
	defer rows.Close()

	var records []models.SearchRecord
	for rows.Next() {
		rec, err := scanSearchRecord(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate search records: %w", err)
	}
	return records, nil
}

// Close releases the database handle.
func (s *PostgresStore) Close() error {
	return s.db.Close()
}
