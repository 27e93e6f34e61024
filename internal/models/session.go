// Package models defines session state structures for BizFinder conversations.
package models

import "time"

// SessionState identifies where a sender is in the search dialogue.
// The zero value is not a valid state; a sender with no session is implicitly
// in the "new" position and gets StateWaitingForAddress on first contact.
type SessionState string

const (
	// StateWaitingForAddress: the first message captured the keyword and the
	// engine is waiting for the address to search around.
	StateWaitingForAddress SessionState = "waiting_for_address"
	// StateSearchingContinue: results (or a handled failure) were delivered
	// and the engine is waiting for a yes/no to run another search.
	StateSearchingContinue SessionState = "searching_continue"
	// StateSearchingForNewBusiness: the user said yes and the engine is
	// waiting for the new business keyword.
	StateSearchingForNewBusiness SessionState = "searching_for_new_business"
	// StateSearchingNewAddress: the new keyword is staged and the engine is
	// waiting for the address to pair with it.
	StateSearchingNewAddress SessionState = "searching_new_address"
)

// IsValidSessionState checks if the given state is one of the defined states.
func IsValidSessionState(s SessionState) bool {
	switch s {
	case StateWaitingForAddress, StateSearchingContinue,
		StateSearchingForNewBusiness, StateSearchingNewAddress:
		return true
	default:
		return false
	}
}

// Session holds one sender's conversational state. It exists from the
// sender's first message until they answer "no" to the continue prompt, and
// lives only in process memory.
type Session struct {
	SenderID string       `json:"sender_id"`
	State    SessionState `json:"state"`

	// Keyword and Address are the pair used by the most recent lookup.
	Keyword string `json:"keyword,omitempty"`
	Address string `json:"address,omitempty"`

	// PendingKeyword and PendingAddress stage the "search again" sub-flow and
	// are cleared once a lookup consumes them.
	PendingKeyword string `json:"pending_keyword,omitempty"`
	PendingAddress string `json:"pending_address,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}
