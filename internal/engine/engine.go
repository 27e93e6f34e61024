// Package engine implements the BizFinder conversation state machine.
//
// The engine turns (sender, inbound text, stored session) into the next reply
// and next session state. The only side effects are the two sequential
// external lookups (address to coordinates, then coordinates plus keyword to
// businesses), which run at most once per inbound message. Every lookup
// failure is converted to a reply string here; nothing below the transport
// boundary ever sees an error escape this package.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync/atomic"
	"time"

	"github.com/willmcdaniel/BizFinder/internal/metrics"
	"github.com/willmcdaniel/BizFinder/internal/models"
	"github.com/willmcdaniel/BizFinder/internal/places"
	"github.com/willmcdaniel/BizFinder/internal/session"
)

// Reply texts. These are the full user-facing vocabulary of the dialogue.
const (
	MsgWelcome           = "Welcome, what is your address?"
	MsgContinuePrompt    = `Do you want to search for another business? Reply "yes" or "no".`
	MsgGoodbye           = "Okay, goodbye."
	MsgNewBusinessPrompt = "Great, what new business would you like to search for?"
	MsgNewAddressPrompt  = "What is your new address?"
	MsgYesNoReprompt     = `Please reply with "yes" or "no".`
	MsgLookupApology     = "Sorry, something went wrong with that search. Please send that again."

	resultsHeader = "Nearby places:\n"
)

// Resolver converts a free-text address to a coordinate pair.
type Resolver interface {
	Resolve(ctx context.Context, address string) (models.CoordinatePair, error)
}

// Searcher finds businesses matching keyword near a coordinate pair.
type Searcher interface {
	Search(ctx context.Context, location models.CoordinatePair, keyword string, radiusMeters, maxResults int) ([]models.BusinessRecord, error)
}

// Recorder persists completed lookups for history reporting. Recording is
// best-effort; a recorder failure never affects the reply.
type Recorder interface {
	AddSearchRecord(ctx context.Context, rec models.SearchRecord) error
}

// Notifier delivers out-of-band messages to the operator. Notification is
// best-effort; a notifier failure never affects the reply.
type Notifier interface {
	SendMessage(ctx context.Context, to string, body string) error
}

// transportFailureAlertThreshold is how many consecutive transport failures
// trigger one operator alert.
const transportFailureAlertThreshold = 3

// Opts holds configuration options for the engine.
type Opts struct {
	RadiusMeters   int
	MaxResults     int
	Recorder       Recorder
	Notifier       Notifier
	OperatorNumber string
}

// Option defines a configuration option for the engine.
type Option func(*Opts)

// WithRadiusMeters overrides the default search radius.
func WithRadiusMeters(r int) Option {
	return func(o *Opts) { o.RadiusMeters = r }
}

// WithMaxResults overrides the default result cap.
func WithMaxResults(n int) Option {
	return func(o *Opts) { o.MaxResults = n }
}

// WithRecorder attaches a search-history recorder.
func WithRecorder(rec Recorder) Option {
	return func(o *Opts) { o.Recorder = rec }
}

// WithOperatorNotifier attaches an out-of-band sender used to alert the
// operator after repeated transport failures.
func WithOperatorNotifier(n Notifier, operatorNumber string) Option {
	return func(o *Opts) {
		o.Notifier = n
		o.OperatorNumber = operatorNumber
	}
}

// Engine drives the conversation state machine.
type Engine struct {
	sessions       *session.Store
	resolver       Resolver
	searcher       Searcher
	recorder       Recorder
	notifier       Notifier
	operatorNumber string
	radiusMeters   int
	maxResults     int

	// transportFailures counts consecutive transport failures across all
	// senders; any completed collaborator exchange resets it.
	transportFailures atomic.Int64
}

// New creates a conversation engine over the given session store and
// lookup collaborators.
func New(sessions *session.Store, resolver Resolver, searcher Searcher, opts ...Option) *Engine {
	cfg := Opts{
		RadiusMeters: places.DefaultRadiusMeters,
		MaxResults:   places.DefaultMaxResults,
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	slog.Debug("engine.New: engine configured",
		"radius_meters", cfg.RadiusMeters,
		"max_results", cfg.MaxResults,
		"recorder_set", cfg.Recorder != nil,
		"notifier_set", cfg.Notifier != nil)

	return &Engine{
		sessions:       sessions,
		resolver:       resolver,
		searcher:       searcher,
		recorder:       cfg.Recorder,
		notifier:       cfg.Notifier,
		operatorNumber: cfg.OperatorNumber,
		radiusMeters:   cfg.RadiusMeters,
		maxResults:     cfg.MaxResults,
	}
}

// NormalizeInput applies the input normalization contract: trim surrounding
// whitespace and lower-case. Both literal matching ("yes"/"no") and free-text
// capture use the normalized form.
func NormalizeInput(body string) string {
	return strings.ToLower(strings.TrimSpace(body))
}

// HandleMessage processes one inbound message and returns the reply text.
// The sender's session is mutated under its per-sender lock, so concurrent
// deliveries for the same sender serialize in arrival order.
func (e *Engine) HandleMessage(ctx context.Context, senderID, body string) string {
	input := NormalizeInput(body)
	var reply string

	e.sessions.Mutate(ctx, senderID, func(sess *models.Session, created bool) bool {
		if created {
			// First contact: the first message is the business keyword and
			// the reply asks for the address to search around.
			metrics.MessagesReceived.WithLabelValues("new").Inc()
			sess.Keyword = input
			reply = MsgWelcome
			slog.Info("engine.HandleMessage: new session", "sender", senderID, "keyword", input)
			return false
		}

		metrics.MessagesReceived.WithLabelValues(string(sess.State)).Inc()
		slog.Debug("engine.HandleMessage: dispatching", "sender", senderID, "state", sess.State)

		switch sess.State {
		case models.StateWaitingForAddress:
			reply = e.runSearch(ctx, sess, sess.Keyword, input)
			return false

		case models.StateSearchingContinue:
			switch input {
			case "yes":
				sess.State = models.StateSearchingForNewBusiness
				reply = MsgNewBusinessPrompt
			case "no":
				reply = MsgGoodbye
				metrics.SessionsTerminated.Inc()
				slog.Info("engine.HandleMessage: session terminated", "sender", senderID)
				return true
			default:
				// Self-loop: invalid input re-prompts without changing state.
				reply = MsgYesNoReprompt
			}
			return false

		case models.StateSearchingForNewBusiness:
			sess.PendingKeyword = input
			sess.State = models.StateSearchingNewAddress
			reply = MsgNewAddressPrompt
			return false

		case models.StateSearchingNewAddress:
			sess.PendingAddress = input
			reply = e.runSearch(ctx, sess, sess.PendingKeyword, input)
			return false

		default:
			// Unreachable with a well-formed store, but transitions must be
			// total: recover by restarting the dialogue with this message as
			// the keyword.
			slog.Error("engine.HandleMessage: session in unknown state, restarting", "sender", senderID, "state", sess.State)
			*sess = models.Session{
				SenderID:  sess.SenderID,
				State:     models.StateWaitingForAddress,
				Keyword:   input,
				CreatedAt: sess.CreatedAt,
			}
			reply = MsgWelcome
			return false
		}
	})

	metrics.ActiveSessions.Set(float64(e.sessions.Len()))
	metrics.RepliesSent.Inc()
	return reply
}

// runSearch drives the two-step lookup pipeline for the given keyword and
// address, updates the session per the failure policy, and returns the reply.
//
// Policy: a transport failure leaves the session exactly where it was so the
// user can retry by resending the same text. Every valid-but-empty outcome
// (no geocode match, upstream status error, empty business list) advances to
// the continue prompt so the user is never stuck.
func (e *Engine) runSearch(ctx context.Context, sess *models.Session, keyword, address string) string {
	start := time.Now()
	coords, err := e.resolver.Resolve(ctx, address)
	metrics.LookupDuration.WithLabelValues("geocode").Observe(time.Since(start).Seconds())
	if err != nil {
		return e.handleLookupFailure(ctx, sess, "geocode", keyword, address, err)
	}

	start = time.Now()
	records, err := e.searcher.Search(ctx, coords, keyword, e.radiusMeters, e.maxResults)
	metrics.LookupDuration.WithLabelValues("places").Observe(time.Since(start).Seconds())
	if err != nil {
		return e.handleLookupFailure(ctx, sess, "places", keyword, address, err)
	}

	e.transportFailures.Store(0)
	e.advance(sess, keyword, address)

	if len(records) == 0 {
		e.record(ctx, sess.SenderID, keyword, address, 0, "empty")
		return fmt.Sprintf("No %s found near %s.", keyword, address) + "\n\n" + MsgContinuePrompt
	}

	e.record(ctx, sess.SenderID, keyword, address, len(records), "ok")
	return resultsHeader + places.FormatRecords(records) + "\n\n" + MsgContinuePrompt
}

// handleLookupFailure renders a structured lookup failure into user text and
// applies the retain-or-advance policy.
func (e *Engine) handleLookupFailure(ctx context.Context, sess *models.Session, collaborator, keyword, address string, err error) string {
	kind := models.FailureKindOf(err)
	metrics.LookupFailures.WithLabelValues(collaborator, string(kind)).Inc()
	slog.Warn("engine.runSearch: lookup failed", "sender", sess.SenderID, "collaborator", collaborator, "kind", kind, "error", err)

	switch kind {
	case models.FailureNoMatch:
		// The collaborator answered; transport is healthy.
		e.transportFailures.Store(0)
		e.advance(sess, keyword, address)
		e.record(ctx, sess.SenderID, keyword, address, 0, "no_match")
		return fmt.Sprintf("Sorry, I couldn't find the address %q.", address) + "\n\n" + MsgContinuePrompt

	case models.FailureUpstream:
		status := "UNKNOWN"
		var le *models.LookupError
		if errors.As(err, &le) {
			status = le.Status
		}
		e.transportFailures.Store(0)
		e.advance(sess, keyword, address)
		e.record(ctx, sess.SenderID, keyword, address, 0, "upstream_error")
		return fmt.Sprintf("Sorry, the search failed with status %s.", status) + "\n\n" + MsgContinuePrompt

	default:
		// Transport failure, or anything unanticipated: keep the session in
		// the state that triggered the lookup and invite a retry.
		e.record(ctx, sess.SenderID, keyword, address, 0, "transport_error")
		if e.transportFailures.Add(1) >= transportFailureAlertThreshold {
			e.transportFailures.Store(0)
			e.notifyOperator(ctx, collaborator)
		}
		return MsgLookupApology
	}
}

// notifyOperator sends one out-of-band alert about a transport-failure
// streak, best-effort.
func (e *Engine) notifyOperator(ctx context.Context, collaborator string) {
	if e.notifier == nil || e.operatorNumber == "" {
		return
	}
	body := fmt.Sprintf("BizFinder: %d consecutive transport failures reaching the %s API.", transportFailureAlertThreshold, collaborator)
	if err := e.notifier.SendMessage(ctx, e.operatorNumber, body); err != nil {
		slog.Warn("engine.notifyOperator: failed to send operator alert", "collaborator", collaborator, "error", err)
		return
	}
	slog.Info("engine.notifyOperator: operator alerted", "collaborator", collaborator)
}

// advance commits the keyword/address pair that just completed a lookup and
// moves the session to the continue prompt, clearing any staged sub-flow data.
func (e *Engine) advance(sess *models.Session, keyword, address string) {
	sess.Keyword = keyword
	sess.Address = address
	sess.PendingKeyword = ""
	sess.PendingAddress = ""
	sess.State = models.StateSearchingContinue
}

// record persists a completed lookup, best-effort.
func (e *Engine) record(ctx context.Context, senderID, keyword, address string, count int, outcome string) {
	if e.recorder == nil {
		return
	}
	rec := models.SearchRecord{
		SenderID:    senderID,
		Keyword:     keyword,
		Address:     address,
		ResultCount: count,
		Outcome:     outcome,
		CreatedAt:   time.Now(),
	}
	if err := e.recorder.AddSearchRecord(ctx, rec); err != nil {
		slog.Warn("engine.record: failed to persist search record", "sender", senderID, "error", err)
	}
}
