// Package store provides storage backends for BizFinder.
//
// This file implements the SQLite-backed search-history store.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	_ "embed"

	_ "github.com/mattn/go-sqlite3"

	"github.com/willmcdaniel/BizFinder/internal/models"
)

// DefaultDirPermissions defines the default permissions for database directories.
const DefaultDirPermissions = 0755

//go:embed migrations_sqlite.sql
var sqliteMigrations string

// SQLiteStore persists search records in a local SQLite database.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore creates a new SQLite store with the given DSN.
// The DSN is a file path to the SQLite database file; its directory is
// created if missing.
func NewSQLiteStore(opts ...Option) (*SQLiteStore, error) {
	var cfg Opts
	for _, opt := range opts {
		opt(&cfg)
	}
	slog.Debug("store.NewSQLiteStore invoked", "DSN_set", cfg.DSN != "")

	dsn := cfg.DSN
	if dsn == "" {
		slog.Error("SQLiteStore DSN not set")
		return nil, fmt.Errorf("database DSN not set")
	}

	dir := filepath.Dir(dsn)
	if err := os.MkdirAll(dir, DefaultDirPermissions); err != nil {
		slog.Error("Failed to create database directory", "error", err, "dir", dir)
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		slog.Error("Failed to open SQLite connection", "error", err)
		return nil, err
	}
	if err := db.Ping(); err != nil {
		slog.Error("SQLite ping failed", "error", err)
		return nil, err
	}

	if _, err := db.Exec(sqliteMigrations); err != nil {
		slog.Error("Failed to run SQLite migrations", "error", err)
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}
	slog.Debug("SQLite migrations applied")

	return &SQLiteStore{db: db}, nil
}

// AddSearchRecord persists one completed lookup.
func (s *SQLiteStore) AddSearchRecord(ctx context.Context, rec models.SearchRecord) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO search_records (sender_id, keyword, address, result_count, outcome, created_at) VALUES (?, ?, ?, ?, ?, ?)`,
		rec.SenderID, rec.Keyword, rec.Address, rec.ResultCount, rec.Outcome, rec.CreatedAt)
	if err != nil {
		slog.Error("SQLiteStore AddSearchRecord failed", "error", err, "sender", rec.SenderID)
		return fmt.Errorf("failed to insert search record for %s: %w", rec.SenderID, err)
	}
	slog.Debug("SQLiteStore AddSearchRecord succeeded", "sender", rec.SenderID, "outcome", rec.Outcome)
	return nil
}

// GetSearchRecords returns recorded lookups, newest first.
func (s *SQLiteStore) GetSearchRecords(ctx context.Context, limit int) ([]models.SearchRecord, error) {
	if limit <= 0 {
		limit = DefaultQueryLimit
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, sender_id, keyword, address, result_count, outcome, created_at FROM search_records ORDER BY created_at DESC, id DESC LIMIT ?`,
		limit)
	if err != nil {
		slog.Error("SQLiteStore GetSearchRecords query failed", "error", err)
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
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
