package bid

import (
	"sync"
	"time"

	"livein-auction-engine/internal/domain/shared"

	"github.com/google/uuid"
)

// Ledger is the append-only ordered record of accepted bids for one session
// and the source of truth for its current price and leader. Appends are
// serialized by the session worker; the internal lock exists so that a
// violation of that discipline surfaces as ErrLedgerCorrupted instead of a
// silent double-assigned sequence number.
type Ledger struct {
	mu            sync.Mutex
	sessionID     uuid.UUID
	startingPrice int64
	minIncrement  int64
	bids          []*Bid
	seenKeys      map[string]uuid.UUID
	frozen        bool
}

// NewLedger creates an empty ledger for a session.
func NewLedger(sessionID uuid.UUID, startingPrice, minIncrement int64) *Ledger {
	return &Ledger{
		sessionID:     sessionID,
		startingPrice: startingPrice,
		minIncrement:  minIncrement,
		seenKeys:      make(map[string]uuid.UUID),
	}
}

// Append validates and records a bid, assigning the next sequence number
// atomically with respect to all concurrent submissions. Ties at the same
// instant are broken by arrival order here, not by timestamp. now is the
// server-assigned submission time.
func (l *Ledger) Append(bidderID uuid.UUID, bidderName string, amount int64, idempotencyKey string, now time.Time) (*Bid, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.frozen {
		return nil, shared.ErrSessionNotLive
	}
	if amount < l.currentPriceLocked()+l.minIncrement {
		return nil, shared.ErrStalePrice
	}
	if idempotencyKey != "" {
		if _, seen := l.seenKeys[idempotencyKey]; seen {
			return nil, shared.ErrDuplicateSubmission
		}
	}

	seq := uint64(len(l.bids)) + 1
	if n := len(l.bids); n > 0 && l.bids[n-1].Seq+1 != seq {
		return nil, shared.ErrLedgerCorrupted
	}

	accepted := &Bid{
		ID:          uuid.New(),
		Seq:         seq,
		SessionID:   l.sessionID,
		BidderID:    bidderID,
		BidderName:  bidderName,
		Amount:      amount,
		SubmittedAt: now,
		AcceptedAt:  now,
	}
	l.bids = append(l.bids, accepted)
	if idempotencyKey != "" {
		l.seenKeys[idempotencyKey] = accepted.ID
	}

	return accepted, nil
}

// Freeze rejects all further appends. Called once when the session ends;
// the ledger never deletes or edits entries.
func (l *Ledger) Freeze() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.frozen = true
}

// CurrentPrice returns the highest accepted amount, or the starting price
// when no bids have been accepted.
func (l *Ledger) CurrentPrice() int64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.currentPriceLocked()
}

func (l *Ledger) currentPriceLocked() int64 {
	if n := len(l.bids); n > 0 {
		return l.bids[n-1].Amount
	}
	return l.startingPrice
}

// Highest returns the accepted bid with the highest sequence number, or nil
// when the ledger is empty.
func (l *Ledger) Highest() *Bid {
	l.mu.Lock()
	defer l.mu.Unlock()
	if n := len(l.bids); n > 0 {
		return l.bids[n-1]
	}
	return nil
}

// Recent returns up to n most recent accepted bids in sequence order.
func (l *Ledger) Recent(n int) []*Bid {
	l.mu.Lock()
	defer l.mu.Unlock()
	if n <= 0 || len(l.bids) == 0 {
		return nil
	}
	start := len(l.bids) - n
	if start < 0 {
		start = 0
	}
	out := make([]*Bid, len(l.bids)-start)
	copy(out, l.bids[start:])
	return out
}

// Len returns the number of accepted bids, which is also the highest assigned
// sequence number.
func (l *Ledger) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.bids)
}
