// Package api provides HTTP handlers for BizFinder endpoints.
package api

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/willmcdaniel/BizFinder/internal/models"
	"github.com/willmcdaniel/BizFinder/internal/twilioutil"
	"github.com/willmcdaniel/BizFinder/internal/util"
)

// smsHandler handles the inbound Twilio SMS webhook. It parses the sender and
// message body, runs one conversation turn, and answers with a TwiML envelope
// wrapping exactly one outbound message. Every handled path returns HTTP 200;
// only malformed or unauthenticated requests get a non-200 status.
func (s *Server) smsHandler(w http.ResponseWriter, r *http.Request) {
	reqID := util.GenerateRequestID()
	slog.Debug("Server.smsHandler: processing webhook", "method", r.Method, "request_id", reqID)

	if r.Method != http.MethodPost {
		w.Header().Set("Allow", http.MethodPost)
		slog.Warn("Server.smsHandler: method not allowed", "method", r.Method, "request_id", reqID)
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	if err := r.ParseForm(); err != nil {
		slog.Warn("Server.smsHandler: failed to parse form", "error", err, "request_id", reqID)
		http.Error(w, "Bad request", http.StatusBadRequest)
		return
	}

	if !s.validator.ValidateRequest(r, s.publicURL) {
		slog.Warn("Server.smsHandler: webhook signature validation failed", "request_id", reqID)
		http.Error(w, "Forbidden", http.StatusForbidden)
		return
	}

	from := r.FormValue("From")
	body := r.FormValue("Body")
	if from == "" || body == "" {
		slog.Warn("Server.smsHandler: missing required fields", "from_set", from != "", "body_set", body != "", "request_id", reqID)
		http.Error(w, "Missing required fields", http.StatusBadRequest)
		return
	}

	slog.Info("Server.smsHandler: inbound message", "from", from, "request_id", reqID)

	ctx, cancel := context.WithTimeout(r.Context(), handlerTimeout)
	defer cancel()
	reply := s.engine.HandleMessage(ctx, from, body)

	doc, err := twilioutil.RenderMessageTwiML(reply)
	if err != nil {
		slog.Error("Server.smsHandler: failed to render TwiML", "error", err, "request_id", reqID)
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/xml")
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write([]byte(doc)); err != nil {
		slog.Error("Server.smsHandler: failed to write response", "error", err, "request_id", reqID)
	}
	slog.Debug("Server.smsHandler: reply sent", "from", from, "request_id", reqID)
}

// healthHandler reports liveness and the current session count.
func (s *Server) healthHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.Header().Set("Allow", http.MethodGet)
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	writeJSONResponse(w, http.StatusOK, models.SuccessWithMessage("healthy", map[string]interface{}{
		"active_sessions": s.sessions.Len(),
	}))
}

// searchesHandler returns recorded search history as JSON, newest first.
func (s *Server) searchesHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.Header().Set("Allow", http.MethodGet)
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	if s.st == nil {
		slog.Warn("Server.searchesHandler: search history not configured")
		writeJSONResponse(w, http.StatusServiceUnavailable, models.Error("Search history is not configured"))
		return
	}

	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			writeJSONResponse(w, http.StatusBadRequest, models.Error("Invalid limit parameter"))
			return
		}
		limit = n
	}

	records, err := s.st.GetSearchRecords(r.Context(), limit)
	if err != nil {
		slog.Error("Server.searchesHandler: failed to query search records", "error", err)
		writeJSONResponse(w, http.StatusInternalServerError, models.Error("Failed to query search history"))
		return
	}
	writeJSONResponse(w, http.StatusOK, models.Success(records))
}

// sessionsHandler lists live conversation sessions, for debugging.
func (s *Server) sessionsHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.Header().Set("Allow", http.MethodGet)
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	writeJSONResponse(w, http.StatusOK, models.Success(s.sessions.List(r.Context())))
}
