package participant

import (
	"time"

	"github.com/google/uuid"
)

// Participant is a viewer of a session. Only deposit-verified participants
// may bid; the rest may watch but every bid they submit is rejected.
type Participant struct {
	ID          uuid.UUID `json:"id"`
	DisplayName string    `json:"display_name"`
	Verified    bool      `json:"verified"`
	JoinedAt    time.Time `json:"joined_at"`
	LastBidAt   time.Time `json:"last_bid_at,omitempty"`
}

// New creates a participant joining a session at now.
func New(id uuid.UUID, displayName string, verified bool, now time.Time) *Participant {
	return &Participant{
		ID:          id,
		DisplayName: displayName,
		Verified:    verified,
		JoinedAt:    now,
	}
}

// RecordBid marks the participant as having bid at now.
func (p *Participant) RecordBid(now time.Time) {
	p.LastBidAt = now
}

// LastActivity is the participant's join time or most recent bid, whichever
// is later. Used by the idle-nudge policy.
func (p *Participant) LastActivity() time.Time {
	if p.LastBidAt.After(p.JoinedAt) {
		return p.LastBidAt
	}
	return p.JoinedAt
}
