package bid

import (
	"time"

	"github.com/google/uuid"
)

// Bid is an accepted bid. Records are immutable once the ledger accepts them.
// Seq is the session-scoped monotonic sequence number; SubmittedAt and
// AcceptedAt are server-assigned, never client-supplied.
type Bid struct {
	ID          uuid.UUID `json:"id"`
	Seq         uint64    `json:"seq"`
	SessionID   uuid.UUID `json:"session_id"`
	BidderID    uuid.UUID `json:"bidder_id"`
	BidderName  string    `json:"bidder_name"`
	Amount      int64     `json:"amount"`
	SubmittedAt time.Time `json:"submitted_at"`
	AcceptedAt  time.Time `json:"accepted_at"`
}
