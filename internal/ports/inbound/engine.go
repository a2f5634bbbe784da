package inbound

import (
	"context"
	"time"

	"livein-auction-engine/internal/domain/bid"
	"livein-auction-engine/internal/domain/participant"
	"livein-auction-engine/internal/domain/session"
	"livein-auction-engine/internal/domain/shared"

	"github.com/google/uuid"
)

// AuctionEngine defines the interface consumed by presentation layers
type AuctionEngine interface {
	// OpenSession opens a live auction session for a listing. At most one
	// non-ended session may exist per listing at a time.
	OpenSession(ctx context.Context, req OpenSessionRequest) (*session.Session, error)

	// CloseSession ends a session if still active and tears it down.
	CloseSession(ctx context.Context, sessionID uuid.UUID) (*shared.CloseResult, error)

	// JoinSession registers a participant with a session.
	JoinSession(ctx context.Context, req JoinSessionRequest) (*participant.Participant, error)

	// SubmitBid validates and places a bid, returning the accepted record or
	// a rejection synchronously.
	SubmitBid(ctx context.Context, req SubmitBidRequest) (*bid.Bid, error)

	// GetSnapshot returns the full current state of a session.
	GetSnapshot(ctx context.Context, sessionID uuid.UUID) (*Snapshot, error)
}

// request to open a session
type OpenSessionRequest struct {
	ListingID uuid.UUID      `json:"listing_id"`
	Config    session.Config `json:"config"`
}

// request to join a session as a participant
type JoinSessionRequest struct {
	SessionID   uuid.UUID `json:"session_id"`
	Participant uuid.UUID `json:"participant_id"`
	DisplayName string    `json:"display_name"`
	Verified    bool      `json:"verified"`
}

// request to place a bid
type SubmitBidRequest struct {
	SessionID      uuid.UUID `json:"session_id"`
	BidderID       uuid.UUID `json:"bidder_id"`
	Amount         int64     `json:"amount"`
	IdempotencyKey string    `json:"idempotency_key"`
}

// Snapshot is the full current state of a session, served to reconnecting
// viewers instead of delta replay.
type Snapshot struct {
	SessionID      uuid.UUID      `json:"session_id"`
	ListingID      uuid.UUID      `json:"listing_id"`
	Status         session.Status `json:"status"`
	StartingPrice  int64          `json:"starting_price"`
	MarketPrice    int64          `json:"market_price"`
	MinIncrement   int64          `json:"min_increment"`
	CurrentPrice   int64          `json:"current_price"`
	LeaderID       *uuid.UUID     `json:"leader_id,omitempty"`
	LeaderName     string         `json:"leader_name,omitempty"`
	BidCount       int            `json:"bid_count"`
	RemainingMs    int64          `json:"remaining_ms"`
	EndTime        time.Time      `json:"end_time"`
	ExtensionsUsed int            `json:"extensions_used"`
	Participants   int            `json:"participants"`
	RecentBids     []*bid.Bid     `json:"recent_bids"`
}
