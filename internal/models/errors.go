// Package models defines the tagged failure taxonomy for lookup errors.
package models

import (
	"errors"
	"fmt"
)

// FailureKind classifies a lookup failure. User-facing rendering happens only
// at the conversation engine boundary; everything below it passes these
// structured values around.
type FailureKind string

const (
	// FailureTransport: collaborator unreachable or non-2xx HTTP status.
	FailureTransport FailureKind = "transport"
	// FailureNoMatch: geocoding returned OK with an empty result list, or the
	// ZERO_RESULTS status sentinel.
	FailureNoMatch FailureKind = "no_match"
	// FailureUpstream: any other non-OK status sentinel from a collaborator.
	FailureUpstream FailureKind = "upstream"
)

// LookupError is a failure from one of the two external lookups.
type LookupError struct {
	Kind FailureKind
	// Status carries the upstream status sentinel for FailureUpstream.
	Status string
	// Err is the underlying cause for FailureTransport.
	Err error
}

func (e *LookupError) Error() string {
	switch e.Kind {
	case FailureTransport:
		return fmt.Sprintf("lookup transport failure: %v", e.Err)
	case FailureNoMatch:
		return "lookup returned no match"
	case FailureUpstream:
		return fmt.Sprintf("lookup upstream failure: status %s", e.Status)
	default:
		return fmt.Sprintf("lookup failure: %s", e.Kind)
	}
}

func (e *LookupError) Unwrap() error { return e.Err }

// NewTransportFailure wraps a network or HTTP-level error.
func NewTransportFailure(err error) *LookupError {
	return &LookupError{Kind: FailureTransport, Err: err}
}

// NewNoMatchFailure reports a valid lookup that matched nothing.
func NewNoMatchFailure() *LookupError {
	return &LookupError{Kind: FailureNoMatch}
}

// NewUpstreamFailure reports a non-OK status sentinel from a collaborator.
func NewUpstreamFailure(status string) *LookupError {
	return &LookupError{Kind: FailureUpstream, Status: status}
}

// FailureKindOf extracts the failure kind from err, or "" if err is not a
// LookupError.
func FailureKindOf(err error) FailureKind {
	var le *LookupError
	if errors.As(err, &le) {
		return le.Kind
	}
	return ""
}
