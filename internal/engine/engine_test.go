package engine

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/willmcdaniel/BizFinder/internal/models"
	"github.com/willmcdaniel/BizFinder/internal/session"
	"github.com/willmcdaniel/BizFinder/internal/twilioutil"
)

// mockResolver implements Resolver for testing.
type mockResolver struct {
	coords models.CoordinatePair
	err    error
	calls  int
}

func (m *mockResolver) Resolve(ctx context.Context, address string) (models.CoordinatePair, error) {
	m.calls++
	return m.coords, m.err
}

// mockSearcher implements Searcher for testing.
type mockSearcher struct {
	records     []models.BusinessRecord
	err         error
	calls       int
	lastKeyword string
	lastCoords  models.CoordinatePair
}

func (m *mockSearcher) Search(ctx context.Context, location models.CoordinatePair, keyword string, radiusMeters, maxResults int) ([]models.BusinessRecord, error) {
	m.calls++
	m.lastKeyword = keyword
	m.lastCoords = location
	return m.records, m.err
}

// mockRecorder implements Recorder for testing.
type mockRecorder struct {
	records []models.SearchRecord
}

func (m *mockRecorder) AddSearchRecord(ctx context.Context, rec models.SearchRecord) error {
	m.records = append(m.records, rec)
	return nil
}

func acmeRecords() []models.BusinessRecord {
	rating := 4.5
	return []models.BusinessRecord{
		{Name: "Acme Cafe", Address: "1 Main St", Open: models.OpenStatusOpen, Rating: &rating},
	}
}

func newTestEngine(resolver *mockResolver, searcher *mockSearcher, opts ...Option) (*Engine, *session.Store) {
	sessions := session.NewStore()
	return New(sessions, resolver, searcher, opts...), sessions
}

func TestHandleMessage_FirstContactAlwaysWelcomes(t *testing.T) {
	for _, body := range []string{"pizza", "  HELP  ", "no", "yes"} {
		resolver := &mockResolver{}
		searcher := &mockSearcher{}
		eng, sessions := newTestEngine(resolver, searcher)

		reply := eng.HandleMessage(context.Background(), "sender", body)
		if reply != MsgWelcome {
			t.Errorf("first reply for %q = %q, want %q", body, reply, MsgWelcome)
		}

		sess := sessions.Get(context.Background(), "sender")
		if sess == nil {
			t.Fatal("session should exist after first contact")
		}
		if sess.State != models.StateWaitingForAddress {
			t.Errorf("state = %q, want %q", sess.State, models.StateWaitingForAddress)
		}
		if sess.Keyword != NormalizeInput(body) {
			t.Errorf("keyword = %q, want normalized first message %q", sess.Keyword, NormalizeInput(body))
		}
		if resolver.calls != 0 || searcher.calls != 0 {
			t.Error("first contact must not trigger lookups")
		}
	}
}

func TestHandleMessage_AddressTriggersFullPipeline(t *testing.T) {
	resolver := &mockResolver{coords: models.CoordinatePair{Latitude: 37.4220, Longitude: -122.0841}}
	searcher := &mockSearcher{records: acmeRecords()}
	rec := &mockRecorder{}
	eng, sessions := newTestEngine(resolver, searcher, WithRecorder(rec))
	ctx := context.Background()

	eng.HandleMessage(ctx, "sender", "cafe")
	reply := eng.HandleMessage(ctx, "sender", "1600 Amphitheatre Pkwy")

	if resolver.calls != 1 || searcher.calls != 1 {
		t.Fatalf("resolver calls = %d, searcher calls = %d, want 1 each", resolver.calls, searcher.calls)
	}
	if searcher.lastKeyword != "cafe" {
		t.Errorf("searched keyword = %q, want %q", searcher.lastKeyword, "cafe")
	}
	if searcher.lastCoords != resolver.coords {
		t.Errorf("search coords = %+v, want resolver output %+v", searcher.lastCoords, resolver.coords)
	}

	// One blank line separates the records from the continue prompt; each
	// record block already ends with its own newline.
	want := "Nearby places:\n" +
		"Name: Acme Cafe\nAddress: 1 Main St\nHours: Open\nRating: 4.5\n" +
		"\n\n" + MsgContinuePrompt
	if reply != want {
		t.Errorf("reply = %q, want %q", reply, want)
	}

	sess := sessions.Get(ctx, "sender")
	if sess.State != models.StateSearchingContinue {
		t.Errorf("state = %q, want %q", sess.State, models.StateSearchingContinue)
	}
	if len(rec.records) != 1 || rec.records[0].Outcome != "ok" || rec.records[0].ResultCount != 1 {
		t.Errorf("search record not persisted correctly: %+v", rec.records)
	}
}

func TestHandleMessage_ContinueYesAnyCaseAndWhitespace(t *testing.T) {
	for _, body := range []string{"yes", "YES", "  Yes \n"} {
		resolver := &mockResolver{}
		searcher := &mockSearcher{records: acmeRecords()}
		eng, sessions := newTestEngine(resolver, searcher)
		ctx := context.Background()

		eng.HandleMessage(ctx, "sender", "cafe")
		eng.HandleMessage(ctx, "sender", "1 Main St")
		reply := eng.HandleMessage(ctx, "sender", body)

		if reply != MsgNewBusinessPrompt {
			t.Errorf("reply to %q = %q, want %q", body, reply, MsgNewBusinessPrompt)
		}
		if sess := sessions.Get(ctx, "sender"); sess.State != models.StateSearchingForNewBusiness {
			t.Errorf("state after %q = %q, want %q", body, sess.State, models.StateSearchingForNewBusiness)
		}
	}
}

func TestHandleMessage_ContinueNoRemovesSession(t *testing.T) {
	resolver := &mockResolver{}
	searcher := &mockSearcher{records: acmeRecords()}
	eng, sessions := newTestEngine(resolver, searcher)
	ctx := context.Background()

	eng.HandleMessage(ctx, "sender", "cafe")
	eng.HandleMessage(ctx, "sender", "1 Main St")
	reply := eng.HandleMessage(ctx, "sender", " NO ")

	if reply != MsgGoodbye {
		t.Errorf("reply = %q, want %q", reply, MsgGoodbye)
	}
	if sessions.Get(ctx, "sender") != nil {
		t.Error("session should be removed after goodbye")
	}
}

func TestHandleMessage_ContinueInvalidInputSelfLoops(t *testing.T) {
	resolver := &mockResolver{}
	searcher := &mockSearcher{records: acmeRecords()}
	eng, sessions := newTestEngine(resolver, searcher)
	ctx := context.Background()

	eng.HandleMessage(ctx, "sender", "cafe")
	eng.HandleMessage(ctx, "sender", "1 Main St")

	for i := 0; i < 3; i++ {
		reply := eng.HandleMessage(ctx, "sender", "maybe")
		if reply != MsgYesNoReprompt {
			t.Errorf("reply = %q, want %q", reply, MsgYesNoReprompt)
		}
		if sess := sessions.Get(ctx, "sender"); sess.State != models.StateSearchingContinue {
			t.Errorf("state = %q, want unchanged %q", sess.State, models.StateSearchingContinue)
		}
	}
}

func TestHandleMessage_GoodbyeReplayBehavesLikeFirstContact(t *testing.T) {
	resolver := &mockResolver{}
	searcher := &mockSearcher{records: acmeRecords()}
	eng, sessions := newTestEngine(resolver, searcher)
	ctx := context.Background()

	eng.HandleMessage(ctx, "sender", "cafe")
	eng.HandleMessage(ctx, "sender", "1 Main St")
	eng.HandleMessage(ctx, "sender", "no")

	// Duplicate "no" after removal: the sender has no session, so this is a
	// fresh first contact capturing "no" as the keyword.
	reply := eng.HandleMessage(ctx, "sender", "no")
	if reply != MsgWelcome {
		t.Errorf("replayed no reply = %q, want %q", reply, MsgWelcome)
	}
	if sess := sessions.Get(ctx, "sender"); sess == nil || sess.State != models.StateWaitingForAddress {
		t.Errorf("replayed no should start a fresh session in %q", models.StateWaitingForAddress)
	}
}

func TestHandleMessage_NewSearchSubFlow(t *testing.T) {
	resolver := &mockResolver{}
	searcher := &mockSearcher{records: acmeRecords()}
	eng, sessions := newTestEngine(resolver, searcher)
	ctx := context.Background()

	eng.HandleMessage(ctx, "sender", "cafe")
	eng.HandleMessage(ctx, "sender", "1 Main St")
	eng.HandleMessage(ctx, "sender", "yes")

	reply := eng.HandleMessage(ctx, "sender", "Thai Food")
	if reply != MsgNewAddressPrompt {
		t.Errorf("reply = %q, want %q", reply, MsgNewAddressPrompt)
	}
	sess := sessions.Get(ctx, "sender")
	if sess.State != models.StateSearchingNewAddress {
		t.Errorf("state = %q, want %q", sess.State, models.StateSearchingNewAddress)
	}
	if sess.PendingKeyword != "thai food" {
		t.Errorf("pending keyword = %q, want %q", sess.PendingKeyword, "thai food")
	}

	eng.HandleMessage(ctx, "sender", "2 Elm St")
	if searcher.lastKeyword != "thai food" {
		t.Errorf("searched keyword = %q, want staged %q", searcher.lastKeyword, "thai food")
	}

	sess = sessions.Get(ctx, "sender")
	if sess.State != models.StateSearchingContinue {
		t.Errorf("state = %q, want %q", sess.State, models.StateSearchingContinue)
	}
	if sess.Keyword != "thai food" || sess.Address != "2 elm st" {
		t.Errorf("committed pair = (%q, %q), want staged pair promoted", sess.Keyword, sess.Address)
	}
	if sess.PendingKeyword != "" || sess.PendingAddress != "" {
		t.Error("pending fields must be cleared once consumed")
	}
}

func TestHandleMessage_TransportFailureRetainsState(t *testing.T) {
	resolver := &mockResolver{err: models.NewTransportFailure(errors.New("connection refused"))}
	searcher := &mockSearcher{}
	eng, sessions := newTestEngine(resolver, searcher)
	ctx := context.Background()

	eng.HandleMessage(ctx, "sender", "cafe")
	reply := eng.HandleMessage(ctx, "sender", "1 Main St")

	if reply != MsgLookupApology {
		t.Errorf("reply = %q, want %q", reply, MsgLookupApology)
	}
	sess := sessions.Get(ctx, "sender")
	if sess.State != models.StateWaitingForAddress {
		t.Errorf("state = %q, want retained %q", sess.State, models.StateWaitingForAddress)
	}

	// Resending after the collaborator recovers completes the search.
	resolver.err = nil
	searcher.records = acmeRecords()
	reply = eng.HandleMessage(ctx, "sender", "1 Main St")
	if !strings.Contains(reply, "Acme Cafe") {
		t.Errorf("retry reply = %q, want results", reply)
	}
}

func TestHandleMessage_GeocodeNoMatchSkipsBusinessSearch(t *testing.T) {
	resolver := &mockResolver{err: models.NewNoMatchFailure()}
	searcher := &mockSearcher{}
	eng, sessions := newTestEngine(resolver, searcher)
	ctx := context.Background()

	eng.HandleMessage(ctx, "sender", "cafe")
	reply := eng.HandleMessage(ctx, "sender", "gibberish address")

	if searcher.calls != 0 {
		t.Error("business search must not run when geocoding found no match")
	}
	if !strings.Contains(reply, "gibberish address") {
		t.Errorf("reply %q should name the unresolvable address", reply)
	}
	if !strings.Contains(reply, MsgContinuePrompt) {
		t.Errorf("reply %q should include the continue prompt", reply)
	}
	if sess := sessions.Get(ctx, "sender"); sess.State != models.StateSearchingContinue {
		t.Errorf("state = %q, want advanced %q", sess.State, models.StateSearchingContinue)
	}
}

func TestHandleMessage_UpstreamFailureIncludesStatus(t *testing.T) {
	resolver := &mockResolver{err: models.NewUpstreamFailure("OVER_QUERY_LIMIT")}
	searcher := &mockSearcher{}
	eng, sessions := newTestEngine(resolver, searcher)
	ctx := context.Background()

	eng.HandleMessage(ctx, "sender", "cafe")
	reply := eng.HandleMessage(ctx, "sender", "1 Main St")

	if !strings.Contains(reply, "OVER_QUERY_LIMIT") {
		t.Errorf("reply %q should include the upstream status", reply)
	}
	if sess := sessions.Get(ctx, "sender"); sess.State != models.StateSearchingContinue {
		t.Errorf("state = %q, want advanced %q", sess.State, models.StateSearchingContinue)
	}
}

func TestHandleMessage_EmptyResultsNamesKeywordAndAddress(t *testing.T) {
	resolver := &mockResolver{}
	searcher := &mockSearcher{records: []models.BusinessRecord{}}
	rec := &mockRecorder{}
	eng, sessions := newTestEngine(resolver, searcher, WithRecorder(rec))
	ctx := context.Background()

	eng.HandleMessage(ctx, "sender", "unicorn stables")
	reply := eng.HandleMessage(ctx, "sender", "1 Main St")

	if !strings.Contains(reply, "No unicorn stables found near 1 main st.") {
		t.Errorf("reply = %q, want a no-results message naming keyword and address", reply)
	}
	if !strings.Contains(reply, MsgContinuePrompt) {
		t.Errorf("reply %q should include the continue prompt", reply)
	}
	if sess := sessions.Get(ctx, "sender"); sess.State != models.StateSearchingContinue {
		t.Errorf("state = %q, want %q", sess.State, models.StateSearchingContinue)
	}
	if len(rec.records) != 1 || rec.records[0].Outcome != "empty" {
		t.Errorf("empty outcome not recorded: %+v", rec.records)
	}
}

func TestHandleMessage_RepeatedTransportFailuresAlertOperator(t *testing.T) {
	resolver := &mockResolver{err: models.NewTransportFailure(errors.New("connection refused"))}
	searcher := &mockSearcher{}
	notifier := twilioutil.NewMockSender()
	eng, _ := newTestEngine(resolver, searcher, WithOperatorNotifier(notifier, "+15559990000"))
	ctx := context.Background()

	eng.HandleMessage(ctx, "sender", "cafe")
	for i := 0; i < transportFailureAlertThreshold; i++ {
		eng.HandleMessage(ctx, "sender", "1 Main St")
	}

	if len(notifier.SentMessages) != 1 {
		t.Fatalf("got %d operator alerts after %d failures, want 1", len(notifier.SentMessages), transportFailureAlertThreshold)
	}
	if notifier.SentMessages[0].To != "+15559990000" {
		t.Errorf("alert sent to %q, want the operator number", notifier.SentMessages[0].To)
	}
	if !strings.Contains(notifier.SentMessages[0].Body, "geocode") {
		t.Errorf("alert body %q should name the failing collaborator", notifier.SentMessages[0].Body)
	}

	// A completed lookup resets the streak: one more failure stays below the
	// threshold and must not alert again.
	resolver.err = nil
	searcher.records = acmeRecords()
	eng.HandleMessage(ctx, "sender", "1 Main St")

	resolver.err = models.NewTransportFailure(errors.New("connection refused"))
	eng.HandleMessage(ctx, "sender", "yes")
	eng.HandleMessage(ctx, "sender", "thai food")
	eng.HandleMessage(ctx, "sender", "2 Elm St")

	if len(notifier.SentMessages) != 1 {
		t.Errorf("got %d operator alerts, want still 1 after the streak reset", len(notifier.SentMessages))
	}
}

func TestNormalizeInput(t *testing.T) {
	cases := map[string]string{
		"  YES  ":    "yes",
		"No\n":       "no",
		"Thai Food":  "thai food",
		"1 Main St ": "1 main st",
	}
	for in, want := range cases {
		if got := NormalizeInput(in); got != want {
			t.Errorf("NormalizeInput(%q) = %q, want %q", in, got, want)
		}
	}
}
