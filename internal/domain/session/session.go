package session

import (
	"time"

	"livein-auction-engine/internal/domain/shared"

	"github.com/google/uuid"
)

// Status represents the lifecycle state of an auction session
type Status string

const (
	StatusScheduled Status = "scheduled"
	StatusLive      Status = "live"
	StatusClosing   Status = "closing"
	StatusEnded     Status = "ended"
)

// Config holds the per-session auction parameters. Zero durations and counts
// are filled in from engine defaults when the session is opened.
type Config struct {
	StartingPrice int64 `json:"starting_price"`
	// MarketPrice is the listing's appraisal value, carried for display only.
	MarketPrice  int64     `json:"market_price"`
	MinIncrement int64     `json:"min_increment"`
	StartTime    time.Time `json:"start_time"`
	EndTime      time.Time `json:"end_time"`

	// ClosingThreshold is how long before the end time the session surfaces
	// urgency by moving to the closing state.
	ClosingThreshold time.Duration `json:"closing_threshold"`

	// Soft-close rule: a bid accepted within ExtensionWindow of the end time
	// pushes the end time out by ExtensionDuration, at most MaxExtensions times.
	ExtensionWindow   time.Duration `json:"extension_window"`
	ExtensionDuration time.Duration `json:"extension_duration"`
	MaxExtensions     int           `json:"max_extensions"`

	// IdleNudgeWindow is how long a participant may go without bidding before
	// an idle nudge signal is raised for them. Zero disables nudges.
	IdleNudgeWindow time.Duration `json:"idle_nudge_window"`
}

// Validate checks the required auction parameters.
func (c *Config) Validate() error {
	if c.StartingPrice <= 0 {
		return shared.ErrInvalidStartingPrice
	}
	if c.MinIncrement <= 0 {
		return shared.ErrInvalidIncrement
	}
	if !c.EndTime.After(c.StartTime) {
		return shared.ErrInvalidEndTime
	}
	return nil
}

// Session is one listing's live auction instance. Prices and the leading
// bidder are derived from the ledger, never stored here.
type Session struct {
	ID        uuid.UUID `json:"id"`
	ListingID uuid.UUID `json:"listing_id"`
	Config    Config    `json:"config"`
	Status    Status    `json:"status"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// New creates a session in the scheduled state.
func New(listingID uuid.UUID, cfg Config, now time.Time) *Session {
	return &Session{
		ID:        uuid.New(),
		ListingID: listingID,
		Config:    cfg,
		Status:    StatusScheduled,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// CanBid returns true if bids are accepted in the current state. Closing is a
// sub-state of active bidding, not a freeze.
func (s *Session) CanBid() bool {
	return s.Status == StatusLive || s.Status == StatusClosing
}

// IsEnded returns true once the session has been closed.
func (s *Session) IsEnded() bool {
	return s.Status == StatusEnded
}

// GoLive transitions the session into active bidding.
func (s *Session) GoLive(now time.Time) {
	s.Status = StatusLive
	s.UpdatedAt = now
}

// BeginClosing moves an active session into its closing window.
func (s *Session) BeginClosing(now time.Time) {
	s.Status = StatusClosing
	s.UpdatedAt = now
}

// End closes the session. Re-entry to live from ended is forbidden; there is
// no transition out of this state.
func (s *Session) End(now time.Time) {
	s.Status = StatusEnded
	s.UpdatedAt = now
}
