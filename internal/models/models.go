// Package models defines the core data types shared across BizFinder components.
//
// It contains the conversation session record, the value types produced by the
// Google lookup clients, and the JSON envelope used by the HTTP API.
package models

import "time"

// CoordinatePair is an immutable latitude/longitude value in signed decimal
// degrees. It is produced only by the geocoding resolver.
type CoordinatePair struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

// OpenStatus reports whether a business is currently open.
// Unknown means the places API supplied no opening-hours data; it is never
// collapsed into Closed.
type OpenStatus string

const (
	OpenStatusOpen    OpenStatus = "Open"
	OpenStatusClosed  OpenStatus = "Closed"
	OpenStatusUnknown OpenStatus = "N/A"
)

// BusinessRecord is a read-only business result from the places API.
type BusinessRecord struct {
	Name    string     `json:"name"`
	Address string     `json:"address"`
	Open    OpenStatus `json:"open"`
	// Rating is nil when the places API did not supply one.
	Rating *float64 `json:"rating,omitempty"`
}

// SearchRecord is one completed lookup, persisted for history reporting.
// It records the outcome of a pipeline run, never conversation state.
type SearchRecord struct {
	ID          int64     `json:"id,omitempty"`
	SenderID    string    `json:"sender_id"`
	Keyword     string    `json:"keyword"`
	Address     string    `json:"address"`
	ResultCount int       `json:"result_count"`
	Outcome     string    `json:"outcome"`
	CreatedAt   time.Time `json:"created_at"`
}
