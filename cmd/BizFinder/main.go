// BizFinder receives SMS messages through a Twilio webhook, walks each sender
// through a short address/business dialogue, and replies with nearby
// businesses found via the Google Geocoding and Places APIs.
package main

import (
	"flag"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/joho/godotenv"

	"github.com/willmcdaniel/BizFinder/internal/api"
	"github.com/willmcdaniel/BizFinder/internal/engine"
	"github.com/willmcdaniel/BizFinder/internal/geo"
	"github.com/willmcdaniel/BizFinder/internal/places"
	"github.com/willmcdaniel/BizFinder/internal/store"
	"github.com/willmcdaniel/BizFinder/internal/twilioutil"
	"github.com/willmcdaniel/BizFinder/internal/util"
)

// Default configuration constants
const (
	// DefaultStateDir is the default directory for BizFinder state data
	DefaultStateDir = "/var/lib/bizfinder"
	// DefaultDBFileName is the default SQLite database filename
	DefaultDBFileName = "bizfinder.db"
)

func main() {
	initializeLogger()

	config := loadEnvironmentConfig()
	flags := parseCommandLineFlags(config)

	if *flags.apiKey == "" {
		slog.Error("GOOGLE_MAPS_API_KEY is required")
		os.Exit(1)
	}

	geoOpts := buildGeoOptions(flags)
	placesOpts := buildPlacesOptions(flags)
	storeOpts := buildStoreOptions(flags, config)
	engineOpts := buildEngineOptions(flags, config)
	apiOpts := buildAPIOptions(flags, config)

	slog.Info("Bootstrapping BizFinder with configured modules")
	slog.Debug("Final configuration",
		"state_dir", *flags.stateDir,
		"dsn_set", *flags.dbDSN != "",
		"api_addr", *flags.apiAddr,
		"radius_meters", *flags.radiusMeters,
		"max_results", *flags.maxResults)
	if err := api.Run(geoOpts, placesOpts, storeOpts, engineOpts, apiOpts); err != nil {
		slog.Error("BizFinder failed to run", "error", err)
		os.Exit(1)
	}
	slog.Info("BizFinder exited successfully")
}

// Config holds environment configuration
type Config struct {
	GoogleAPIKey     string
	RadiusMeters     int
	MaxResults       int
	APIAddr          string
	DatabaseDSN      string
	StateDir         string
	HistoryEnabled   bool
	TwilioAuthToken  string
	TwilioAccountSID string
	TwilioFromNumber string
	OperatorNumber   string
	PublicWebhookURL string
}

// Flags holds command line flag values
type Flags struct {
	apiKey       *string
	radiusMeters *int
	maxResults   *int
	apiAddr      *string
	dbDSN        *string
	stateDir     *string
}

// initializeLogger sets up structured logging with the level taken from LOG_LEVEL
func initializeLogger() {
	level := util.ParseLogLevelEnv("LOG_LEVEL", slog.LevelInfo)
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)
}

// loadEnvironmentConfig loads configuration from environment variables and .env file
func loadEnvironmentConfig() Config {
	if err := godotenv.Load(); err != nil {
		slog.Debug("failed to load .env file", "error", err)
	} else {
		slog.Debug("successfully loaded .env file")
	}

	config := Config{
		GoogleAPIKey:     os.Getenv("GOOGLE_MAPS_API_KEY"),
		RadiusMeters:     util.ParseIntEnv("RADIUS_METERS", places.DefaultRadiusMeters),
		MaxResults:       util.ParseIntEnv("NUM_RESULTS", places.DefaultMaxResults),
		APIAddr:          os.Getenv("API_ADDR"),
		DatabaseDSN:      os.Getenv("DATABASE_DSN"),
		StateDir:         os.Getenv("BIZFINDER_STATE_DIR"),
		HistoryEnabled:   util.ParseBoolEnv("SEARCH_HISTORY_ENABLED", true),
		TwilioAuthToken:  os.Getenv("TWILIO_AUTH_TOKEN"),
		TwilioAccountSID: os.Getenv("TWILIO_ACCOUNT_SID"),
		TwilioFromNumber: os.Getenv("TWILIO_FROM_NUMBER"),
		OperatorNumber:   os.Getenv("OPERATOR_PHONE_NUMBER"),
		PublicWebhookURL: os.Getenv("PUBLIC_WEBHOOK_URL"),
	}

	if config.StateDir == "" {
		config.StateDir = DefaultStateDir
		slog.Debug("No BIZFINDER_STATE_DIR set, using default", "default_state_dir", config.StateDir)
	}

	// If no database DSN is provided, default to SQLite in the state directory
	if config.DatabaseDSN == "" {
		config.DatabaseDSN = filepath.Join(config.StateDir, DefaultDBFileName)
		slog.Debug("No database DSN provided, defaulting to SQLite", "sqlite_path", config.DatabaseDSN)
	}

	slog.Debug("environment variables loaded",
		"GOOGLE_MAPS_API_KEY_SET", config.GoogleAPIKey != "",
		"RADIUS_METERS", config.RadiusMeters,
		"NUM_RESULTS", config.MaxResults,
		"API_ADDR", config.APIAddr,
		"DATABASE_DSN_SET", config.DatabaseDSN != "",
		"BIZFINDER_STATE_DIR", config.StateDir,
		"SEARCH_HISTORY_ENABLED", config.HistoryEnabled,
		"TWILIO_AUTH_TOKEN_SET", config.TwilioAuthToken != "",
		"TWILIO_ACCOUNT_SID_SET", config.TwilioAccountSID != "",
		"OPERATOR_PHONE_NUMBER_SET", config.OperatorNumber != "")

	return config
}

// parseCommandLineFlags parses command line arguments with environment defaults
func parseCommandLineFlags(config Config) Flags {
	flags := Flags{
		apiKey:       flag.String("api-key", config.GoogleAPIKey, "Google Maps API key (overrides $GOOGLE_MAPS_API_KEY)"),
		radiusMeters: flag.Int("radius", config.RadiusMeters, "search radius in meters (overrides $RADIUS_METERS)"),
		maxResults:   flag.Int("max-results", config.MaxResults, "maximum businesses per reply (overrides $NUM_RESULTS)"),
		apiAddr:      flag.String("api-addr", config.APIAddr, "API server address (overrides $API_ADDR)"),
		dbDSN:        flag.String("db-dsn", config.DatabaseDSN, "search-history database DSN (overrides $DATABASE_DSN)"),
		stateDir:     flag.String("state-dir", config.StateDir, "state directory for BizFinder data (overrides $BIZFINDER_STATE_DIR)"),
	}

	flag.Parse()

	// Update database DSN if not explicitly set but state directory is provided
	if *flags.dbDSN == config.DatabaseDSN && config.DatabaseDSN == filepath.Join(config.StateDir, DefaultDBFileName) && *flags.stateDir != config.StateDir {
		*flags.dbDSN = filepath.Join(*flags.stateDir, DefaultDBFileName)
		slog.Debug("Updated dbDSN based on state directory", "old_state_dir", config.StateDir, "new_state_dir", *flags.stateDir)
	}

	return flags
}

// buildGeoOptions constructs geocoding client configuration options
func buildGeoOptions(flags Flags) []geo.Option {
	var geoOpts []geo.Option
	if *flags.apiKey != "" {
		geoOpts = append(geoOpts, geo.WithAPIKey(*flags.apiKey))
	}
	return geoOpts
}

// buildPlacesOptions constructs places client configuration options
func buildPlacesOptions(flags Flags) []places.Option {
	var placesOpts []places.Option
	if *flags.apiKey != "" {
		placesOpts = append(placesOpts, places.WithAPIKey(*flags.apiKey))
	}
	return placesOpts
}

// buildStoreOptions constructs store configuration options
func buildStoreOptions(flags Flags, config Config) []store.Option {
	if !config.HistoryEnabled {
		slog.Warn("Search history disabled via SEARCH_HISTORY_ENABLED")
		return nil
	}
	var storeOpts []store.Option
	if *flags.dbDSN != "" {
		storeOpts = append(storeOpts, store.WithDSN(*flags.dbDSN))
	}
	return storeOpts
}

// buildEngineOptions constructs conversation engine configuration options
func buildEngineOptions(flags Flags, config Config) []engine.Option {
	var engineOpts []engine.Option
	if *flags.radiusMeters > 0 {
		engineOpts = append(engineOpts, engine.WithRadiusMeters(*flags.radiusMeters))
	}
	if *flags.maxResults > 0 {
		engineOpts = append(engineOpts, engine.WithMaxResults(*flags.maxResults))
	}
	if config.TwilioAccountSID != "" && config.TwilioAuthToken != "" && config.TwilioFromNumber != "" && config.OperatorNumber != "" {
		sender, err := twilioutil.NewClient(
			twilioutil.WithAccountSID(config.TwilioAccountSID),
			twilioutil.WithAuthToken(config.TwilioAuthToken),
			twilioutil.WithFrom(config.TwilioFromNumber),
		)
		if err != nil {
			slog.Warn("Operator notifications disabled, failed to create SMS sender", "error", err)
		} else {
			slog.Info("Operator notifications enabled", "operator_set", true)
			engineOpts = append(engineOpts, engine.WithOperatorNotifier(sender, config.OperatorNumber))
		}
	}
	return engineOpts
}

// buildAPIOptions constructs API server configuration options
func buildAPIOptions(flags Flags, config Config) []api.Option {
	var apiOpts []api.Option
	if *flags.apiAddr != "" {
		apiOpts = append(apiOpts, api.WithAddr(*flags.apiAddr))
	}
	if config.TwilioAuthToken != "" {
		apiOpts = append(apiOpts, api.WithTwilioAuthToken(config.TwilioAuthToken))
	}
	if config.PublicWebhookURL != "" {
		apiOpts = append(apiOpts, api.WithPublicWebhookURL(config.PublicWebhookURL))
	}
	return apiOpts
}
