// Package session provides the in-memory per-sender session store for
// BizFinder conversations.
//
// The store is the only shared mutable state in the process. Each sender's
// record is protected by a per-sender lock so that duplicate webhook
// deliveries or rapid successive messages from the same sender serialize into
// at most one in-flight state transition at a time. Sessions never outlive
// the process.
package session

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/willmcdaniel/BizFinder/internal/models"
)

// Store holds one session per sender identifier.
type Store struct {
	mu      sync.RWMutex
	entries map[string]*entry
}

// entry pairs a session with its per-sender lock. The lock is held for the
// whole of a Mutate call, including the external lookups it may perform.
type entry struct {
	mu      sync.Mutex
	session *models.Session
	// removed marks an entry deleted while another goroutine was waiting on
	// its lock; the waiter must re-resolve through the map.
	removed bool
}

// NewStore creates an empty session store.
func NewStore() *Store {
	slog.Debug("session.NewStore: creating in-memory session store")
	return &Store{entries: make(map[string]*entry)}
}

// Get returns a copy of the sender's session, or nil if none exists.
func (s *Store) Get(ctx context.Context, senderID string) *models.Session {
	s.mu.RLock()
	e, ok := s.entries[senderID]
	s.mu.RUnlock()
	if !ok {
		return nil
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.removed || e.session == nil {
		return nil
	}
	copied := *e.session
	return &copied
}

// Len reports the number of live sessions.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}

// List returns copies of all live sessions, for the debug API.
func (s *Store) List(ctx context.Context) []models.Session {
	s.mu.RLock()
	entries := make([]*entry, 0, len(s.entries))
	for _, e := range s.entries {
		entries = append(entries, e)
	}
	s.mu.RUnlock()

	sessions := make([]models.Session, 0, len(entries))
	for _, e := range entries {
		e.mu.Lock()
		if !e.removed && e.session != nil {
			sessions = append(sessions, *e.session)
		}
		e.mu.Unlock()
	}
	return sessions
}

// Mutate runs fn with exclusive access to the sender's session, creating the
// session if the sender has none. fn receives created=true on first contact.
// If fn returns remove=true the session is deleted atomically with the
// mutation; otherwise the (possibly modified) session is kept and its
// UpdatedAt refreshed. This is the single-writer scope required for
// per-sender transition ordering.
func (s *Store) Mutate(ctx context.Context, senderID string, fn func(sess *models.Session, created bool) (remove bool)) {
	for {
		e, created := s.getOrCreateEntry(senderID)
		e.mu.Lock()
		if e.removed {
			// Lost a race with a removal; the map no longer holds this entry.
			e.mu.Unlock()
			continue
		}
		if e.session == nil {
			now := time.Now()
			e.session = &models.Session{
				SenderID:  senderID,
				State:     models.StateWaitingForAddress,
				CreatedAt: now,
				UpdatedAt: now,
			}
			created = true
			slog.Debug("session.Store.Mutate: created session", "sender", senderID)
		}

		remove := fn(e.session, created)
		if remove {
			e.removed = true
			e.mu.Unlock()
			s.mu.Lock()
			delete(s.entries, senderID)
			s.mu.Unlock()
			slog.Debug("session.Store.Mutate: removed session", "sender", senderID)
			return
		}
		e.session.UpdatedAt = time.Now()
		e.mu.Unlock()
		return
	}
}

// Remove deletes the sender's session if present.
func (s *Store) Remove(ctx context.Context, senderID string) {
	s.Mutate(ctx, senderID, func(sess *models.Session, created bool) bool {
		return true
	})
}

func (s *Store) getOrCreateEntry(senderID string) (*entry, bool) {
	s.mu.RLock()
	e, ok := s.entries[senderID]
	s.mu.RUnlock()
	if ok {
		return e, false
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if e, ok = s.entries[senderID]; ok {
		return e, false
	}
	e = &entry{}
	s.entries[senderID] = e
	return e, true
}
