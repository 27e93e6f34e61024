// Package api provides the HTTP surface for BizFinder.
//
// It exposes the Twilio SMS webhook that drives the conversation engine, plus
// health, search-history, and metrics endpoints. All business-logic failures
// are answered with HTTP 200 and user-facing reply text; non-200 statuses are
// reserved for malformed or unauthenticated inbound requests.
package api

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/willmcdaniel/BizFinder/internal/engine"
	"github.com/willmcdaniel/BizFinder/internal/geo"
	"github.com/willmcdaniel/BizFinder/internal/metrics"
	"github.com/willmcdaniel/BizFinder/internal/places"
	"github.com/willmcdaniel/BizFinder/internal/session"
	"github.com/willmcdaniel/BizFinder/internal/store"
	"github.com/willmcdaniel/BizFinder/internal/twilioutil"
)

// DefaultAddr is the default listen address.
const DefaultAddr = ":8080"

// DefaultShutdownTimeout bounds graceful shutdown on SIGINT/SIGTERM.
const DefaultShutdownTimeout = 10 * time.Second

// handlerTimeout bounds one webhook request end to end; the two sequential
// 10s lookup calls fit comfortably inside it.
const handlerTimeout = 30 * time.Second

// Opts holds configuration options for the API server.
type Opts struct {
	Addr             string
	PublicWebhookURL string
	TwilioAuthToken  string
}

// Option defines a configuration option for the API server.
type Option func(*Opts)

// WithAddr sets the listen address.
func WithAddr(addr string) Option {
	return func(o *Opts) { o.Addr = addr }
}

// WithPublicWebhookURL sets the externally visible webhook URL used for
// signature validation behind proxies.
func WithPublicWebhookURL(u string) Option {
	return func(o *Opts) { o.PublicWebhookURL = u }
}

// WithTwilioAuthToken enables webhook signature validation.
func WithTwilioAuthToken(token string) Option {
	return func(o *Opts) { o.TwilioAuthToken = token }
}

// Server holds the HTTP handlers and their collaborators.
type Server struct {
	engine    *engine.Engine
	sessions  *session.Store
	st        store.Store // nil when history is disabled
	validator *twilioutil.Validator
	addr      string
	publicURL string
}

// NewServer creates an API server over the given engine and session store.
// st may be nil to disable the history endpoint.
func NewServer(eng *engine.Engine, sessions *session.Store, st store.Store, opts ...Option) *Server {
	cfg := Opts{Addr: DefaultAddr}
	for _, opt := range opts {
		opt(&cfg)
	}
	slog.Debug("api.NewServer: server configured",
		"addr", cfg.Addr,
		"signature_validation", cfg.TwilioAuthToken != "",
		"history_enabled", st != nil)

	return &Server{
		engine:    eng,
		sessions:  sessions,
		st:        st,
		validator: twilioutil.NewValidator(cfg.TwilioAuthToken),
		addr:      cfg.Addr,
		publicURL: cfg.PublicWebhookURL,
	}
}

// Handler returns the route table as an http.Handler.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/sms", s.smsHandler)
	mux.HandleFunc("/health", s.healthHandler)
	mux.HandleFunc("/searches", s.searchesHandler)
	mux.HandleFunc("/sessions", s.sessionsHandler)
	mux.Handle("/metrics", promhttp.Handler())
	return mux
}

// Run builds all modules from their options and serves until SIGINT/SIGTERM.
func Run(geoOpts []geo.Option, placesOpts []places.Option, storeOpts []store.Option, engineOpts []engine.Option, apiOpts []Option) error {
	metrics.Init()

	resolver, err := geo.NewClient(geoOpts...)
	if err != nil {
		return fmt.Errorf("failed to create geocoding client: %w", err)
	}
	searcher, err := places.NewClient(placesOpts...)
	if err != nil {
		return fmt.Errorf("failed to create places client: %w", err)
	}

	var st store.Store
	var storeCfg store.Opts
	for _, opt := range storeOpts {
		opt(&storeCfg)
	}
	if storeCfg.DSN != "" {
		st, err = store.NewFromDSN(storeCfg.DSN)
		if err != nil {
			return fmt.Errorf("failed to open search-history store: %w", err)
		}
		defer st.Close()
		engineOpts = append(engineOpts, engine.WithRecorder(st))
	} else {
		slog.Warn("api.Run: no database DSN configured, search history disabled")
	}

	sessions := session.NewStore()
	eng := engine.New(sessions, resolver, searcher, engineOpts...)
	server := NewServer(eng, sessions, st, apiOpts...)

	httpServer := &http.Server{
		Addr:    server.addr,
		Handler: server.Handler(),
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("api.Run: BizFinder API listening", "addr", server.addr)
		errCh <- httpServer.ListenAndServe()
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server failed: %w", err)
		}
		return nil
	case sig := <-stop:
		slog.Info("api.Run: shutting down", "signal", sig.String())
		ctx, cancel := context.WithTimeout(context.Background(), DefaultShutdownTimeout)
		defer cancel()
		if err := httpServer.Shutdown(ctx); err != nil {
			return fmt.Errorf("graceful shutdown failed: %w", err)
		}
		return nil
	}
}
