// Package places wraps the Google Places Nearby Search API for BizFinder.
//
// It converts a coordinate pair and a keyword into a capped, relevance-ordered
// list of business records, and renders records into reply text.
package places

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"time"

	"github.com/willmcdaniel/BizFinder/internal/models"
)

// DefaultBaseURL is the production Google Places Nearby Search endpoint.
const DefaultBaseURL = "https://maps.googleapis.com/maps/api/place/nearbysearch/json"

// DefaultHTTPTimeout bounds a single places call.
const DefaultHTTPTimeout = 10 * time.Second

// DefaultRadiusMeters is the default search radius (5 miles).
const DefaultRadiusMeters = 8047

// DefaultMaxResults caps how many businesses one reply lists.
const DefaultMaxResults = 5

const (
	statusOK          = "OK"
	statusZeroResults = "ZERO_RESULTS"
)

// Opts holds configuration options for the places client.
type Opts struct {
	APIKey  string
	BaseURL string
	Client  *http.Client
}

// Option defines a configuration option for the places client.
type Option func(*Opts)

// WithAPIKey sets the Google Maps API key.
func WithAPIKey(key string) Option {
	return func(o *Opts) { o.APIKey = key }
}

// WithBaseURL overrides the Nearby Search endpoint (used by tests).
func WithBaseURL(u string) Option {
	return func(o *Opts) { o.BaseURL = u }
}

// WithHTTPClient injects a custom HTTP client.
func WithHTTPClient(c *http.Client) Option {
	return func(o *Opts) { o.Client = c }
}

// Client searches for businesses near a coordinate pair.
type Client struct {
	apiKey  string
	baseURL string
	client  *http.Client
}

// NewClient creates a places client. The API key falls back to the
// GOOGLE_MAPS_API_KEY environment variable if not provided via options.
func NewClient(opts ...Option) (*Client, error) {
	var cfg Opts
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.APIKey == "" {
		cfg.APIKey = os.Getenv("GOOGLE_MAPS_API_KEY")
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.Client == nil {
		cfg.Client = &http.Client{Timeout: DefaultHTTPTimeout}
	}
	slog.Debug("places.NewClient: config loaded", "APIKey_set", cfg.APIKey != "", "base_url", cfg.BaseURL)

	if cfg.APIKey == "" {
		return nil, fmt.Errorf("google maps API key must be provided")
	}

	return &Client{apiKey: cfg.APIKey, baseURL: cfg.BaseURL, client: cfg.Client}, nil
}

// Search queries businesses matching keyword within radiusMeters of location,
// truncated to maxResults. The collaborator's ordering is preserved; no
// re-ranking happens here. An empty slice with a nil error is the valid
// "nothing nearby" outcome. A single call is made with no retries.
func (c *Client) Search(ctx context.Context, location models.CoordinatePair, keyword string, radiusMeters, maxResults int) ([]models.BusinessRecord, error) {
	params := url.Values{}
	params.Set("location", fmt.Sprintf("%f,%f", location.Latitude, location.Longitude))
	params.Set("radius", fmt.Sprintf("%d", radiusMeters))
	params.Set("keyword", keyword)
	params.Set("key", c.apiKey)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"?"+params.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build places request: %w", err)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		slog.Error("places.Client.Search: request failed", "error", err)
		return nil, models.NewTransportFailure(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		slog.Error("places.Client.Search: non-success HTTP status", "status_code", resp.StatusCode)
		return nil, models.NewTransportFailure(fmt.Errorf("places API returned HTTP %d", resp.StatusCode))
	}

	var payload struct {
		Status  string `json:"status"`
		Results []struct {
			Name         string `json:"name"`
			Vicinity     string `json:"vicinity"`
			OpeningHours *struct {
				OpenNow bool `json:"open_now"`
			} `json:"opening_hours"`
			Rating *float64 `json:"rating"`
		} `json:"results"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		slog.Error("places.Client.Search: malformed response payload", "error", err)
		return nil, models.NewTransportFailure(fmt.Errorf("malformed places response: %w", err))
	}

	switch payload.Status {
	case statusOK:
	case statusZeroResults:
		// Valid empty outcome, distinct from an upstream error.
		slog.Debug("places.Client.Search: no nearby results", "keyword", keyword)
		return []models.BusinessRecord{}, nil
	default:
		slog.Warn("places.Client.Search: upstream status not OK", "status", payload.Status)
		return nil, models.NewUpstreamFailure(payload.Status)
	}

	results := payload.Results
	if len(results) > maxResults {
		results = results[:maxResults]
	}

	records := make([]models.BusinessRecord, 0, len(results))
	for _, r := range results {
		rec := models.BusinessRecord{
			Name:    r.Name,
			Address: r.Vicinity,
			Open:    models.OpenStatusUnknown,
			Rating:  r.Rating,
		}
		// Missing opening_hours stays Unknown; it is never defaulted to Closed.
		if r.OpeningHours != nil {
			if r.OpeningHours.OpenNow {
				rec.Open = models.OpenStatusOpen
			} else {
				rec.Open = models.OpenStatusClosed
			}
		}
		records = append(records, rec)
	}

	slog.Debug("places.Client.Search: search completed", "keyword", keyword, "results", len(records))
	return records, nil
}
