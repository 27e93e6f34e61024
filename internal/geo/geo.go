// Package geo wraps the Google Geocoding API for BizFinder.
//
// It converts a free-text address into a coordinate pair. Failures are
// reported as models.LookupError values; user-facing wording is the
// conversation engine's concern.
package geo

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

// DefaultBaseURL is the production Google Geocoding endpoint.
const DefaultBaseURL = "https://maps.googleapis.com/maps/api/geocode/json"

// DefaultHTTPTimeout bounds a single geocoding call. The webhook response
// path must never block indefinitely on a collaborator.
const DefaultHTTPTimeout = 10 * time.Second

// statusOK is the Google success sentinel shared by both Maps APIs.
const statusOK = "OK"

// statusZeroResults is the Google sentinel for a valid query matching nothing.
const statusZeroResults = "ZERO_RESULTS"

// Opts holds configuration options for the geocoding client.
type Opts struct {
	APIKey  string
	BaseURL string
	Client  *http.Client
}

// Option defines a configuration option for the geocoding client.
type Option func(*Opts)

// WithAPIKey sets the Google Maps API key.
func WithAPIKey(key string) Option {
	return func(o *Opts) { o.APIKey = key }
}

// WithBaseURL overrides the Geocoding endpoint (used by tests).
func WithBaseURL(u string) Option {
	return func(o *Opts) { o.BaseURL = u }
}

// WithHTTPClient injects a custom HTTP client.
func WithHTTPClient(c *http.Client) Option {
	return func(o *Opts) { o.Client = c }
}

// Client resolves addresses to coordinates via the Google Geocoding API.
type Client struct {
	apiKey  string
	baseURL string
	client  *http.Client
}

// NewClient creates a geocoding client. The API key falls back to the
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
	slog.Debug("geo.NewClient: config loaded", "APIKey_set", cfg.APIKey != "", "base_url", cfg.BaseURL)

	if cfg.APIKey == "" {
		return nil, fmt.Errorf("google maps API key must be provided")
	}

	return &Client{apiKey: cfg.APIKey, baseURL: cfg.BaseURL, client: cfg.Client}, nil
}

// Resolve geocodes a free-text address to a coordinate pair. The address is
// forwarded verbatim; only emptiness is rejected locally. A single call is
// made with no retries, and only the first result is used.
func (c *Client) Resolve(ctx context.Context, address string) (models.CoordinatePair, error) {
	if address == "" {
		return models.CoordinatePair{}, fmt.Errorf("address must not be empty")
	}

	params := url.Values{}
	params.Set("address", address)
	params.Set("key", c.apiKey)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"?"+params.Encode(), nil)
	if err != nil {
		return models.CoordinatePair{}, fmt.Errorf("failed to build geocode request: %w", err)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		slog.Error("geo.Client.Resolve: request failed", "error", err)
		return models.CoordinatePair{}, models.NewTransportFailure(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		slog.Error("geo.Client.Resolve: non-success HTTP status", "status_code", resp.StatusCode)
		return models.CoordinatePair{}, models.NewTransportFailure(fmt.Errorf("geocode API returned HTTP %d", resp.StatusCode))
	}

	var payload struct {
		Status  string `json:"status"`
		Results []struct {
			Geometry struct {
				Location struct {
					Lat float64 `json:"lat"`
					Lng float64 `json:"lng"`
				} `json:"location"`
			} `json:"geometry"`
		} `json:"results"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		slog.Error("geo.Client.Resolve: malformed response payload", "error", err)
		return models.CoordinatePair{}, models.NewTransportFailure(fmt.Errorf("malformed geocode response: %w", err))
	}

	switch payload.Status {
	case statusOK:
		if len(payload.Results) == 0 {
			slog.Warn("geo.Client.Resolve: OK status with empty results")
			return models.CoordinatePair{}, models.NewNoMatchFailure()
		}
	case statusZeroResults:
		slog.Debug("geo.Client.Resolve: no geocode match")
		return models.CoordinatePair{}, models.NewNoMatchFailure()
	default:
		slog.Warn("geo.Client.Resolve: upstream status not OK", "status", payload.Status)
		return models.CoordinatePair{}, models.NewUpstreamFailure(payload.Status)
	}

	loc := payload.Results[0].Geometry.Location
	coords := models.CoordinatePair{Latitude: loc.Lat, Longitude: loc.Lng}
	slog.Debug("geo.Client.Resolve: resolved address", "lat", coords.Latitude, "lng", coords.Longitude)
	return coords, nil
}
