package shared

import "errors"

// Domain-specific errors
var (
	// Bid rejection errors, reported synchronously to the submitting caller
	ErrStalePrice          = errors.New("bid amount must exceed current price by at least the minimum increment")
	ErrSessionNotLive      = errors.New("session is not accepting bids")
	ErrNotVerified         = errors.New("participant has not verified a deposit")
	ErrDuplicateSubmission = errors.New("idempotency key already used")

	// Registry errors
	ErrSessionAlreadyActive = errors.New("listing already has an active session")
	ErrSessionNotFound      = errors.New("session not found")

	// Back-pressure error, the only condition signaling caller-side retry
	ErrEngineUnavailable = errors.New("engine unavailable, retry with backoff")

	// Internal-consistency fault, forces the session closed for manual audit
	ErrLedgerCorrupted = errors.New("ledger sequencing invariant violated")

	// Session config errors
	ErrInvalidStartingPrice = errors.New("starting price must be greater than 0")
	ErrInvalidIncrement     = errors.New("minimum increment must be greater than 0")
	ErrInvalidEndTime       = errors.New("end time must be after start time")

	// WebSocket message validation errors
	ErrMessageTypeRequired  = errors.New("message type is required")
	ErrSessionIDRequired    = errors.New("session_id is required")
	ErrListingIDRequired    = errors.New("listing_id is required")
	ErrInvalidAmount        = errors.New("valid amount is required")
	ErrInvalidListingID     = errors.New("invalid listing_id format")
	ErrUnknownMessageType   = errors.New("unknown message type")
	ErrViewerNotSubscribed  = errors.New("viewer not subscribed to session")
	ErrEventChannelNotFound = errors.New("client event channel not found")
)

// Rejection identifies the kind of a synchronous rejection on the wire.
type Rejection string

const (
	RejectionStalePrice           Rejection = "stale_price"
	RejectionSessionNotLive       Rejection = "session_not_live"
	RejectionNotVerified          Rejection = "not_verified"
	RejectionDuplicateSubmission  Rejection = "duplicate_submission"
	RejectionSessionAlreadyActive Rejection = "session_already_active"
	RejectionSessionNotFound      Rejection = "session_not_found"
	RejectionEngineUnavailable    Rejection = "engine_unavailable"
)

// RejectionKind maps a domain error to its wire-level rejection kind.
// The second return is false for errors outside the rejection taxonomy.
func RejectionKind(err error) (Rejection, bool) {
	switch {
	case errors.Is(err, ErrStalePrice):
		return RejectionStalePrice, true
	case errors.Is(err, ErrSessionNotLive):
		return RejectionSessionNotLive, true
	case errors.Is(err, ErrNotVerified):
		return RejectionNotVerified, true
	case errors.Is(err, ErrDuplicateSubmission):
		return RejectionDuplicateSubmission, true
	case errors.Is(err, ErrSessionAlreadyActive):
		return RejectionSessionAlreadyActive, true
	case errors.Is(err, ErrSessionNotFound):
		return RejectionSessionNotFound, true
	case errors.Is(err, ErrEngineUnavailable):
		return RejectionEngineUnavailable, true
	}
	return "", false
}
