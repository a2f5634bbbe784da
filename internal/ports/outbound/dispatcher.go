package outbound

import (
	"context"

	"github.com/google/uuid"
)

// DeltaType represents the type of state delta being dispatched
type DeltaType string

const (
	DeltaBidAccepted   DeltaType = "bid.accepted"
	DeltaTimeExtended  DeltaType = "time.extended"
	DeltaStatusChanged DeltaType = "status.changed"
	DeltaAuctionClosed DeltaType = "auction.closed"
	DeltaNudge         DeltaType = "nudge"
)

// StateDelta is one state change of a session. Deltas for a session are
// published from its single worker goroutine, so any one subscriber receives
// them in ledger sequence order. Seq is the highest accepted bid sequence at
// the time of emission.
type StateDelta struct {
	Type      DeltaType              `json:"type"`
	SessionID uuid.UUID              `json:"session_id"`
	Seq       uint64                 `json:"seq"`
	Data      map[string]interface{} `json:"data"`
	Timestamp int64                  `json:"timestamp"`
}

// Dispatcher fans out state deltas to viewers of a session. Delivery is
// best-effort and at-least-once per connection; reconnecting viewers are
// expected to request a snapshot rather than rely on delta replay.
type Dispatcher interface {
	// Subscribe registers a viewer's delta channel for a session.
	// A viewer subscribed to multiple sessions reuses the same channel.
	Subscribe(ctx context.Context, sessionID uuid.UUID, viewerID string, deltaChan chan StateDelta) error

	// Unsubscribe removes a viewer's subscription to a session.
	Unsubscribe(ctx context.Context, sessionID uuid.UUID, viewerID string) error

	// Publish delivers a delta to every viewer subscribed to the session.
	Publish(ctx context.Context, sessionID uuid.UUID, delta StateDelta) error

	// Notify delivers a delta to a single viewer of the session. Used for
	// per-viewer advisories such as idle nudges, which are never broadcast.
	Notify(ctx context.Context, sessionID uuid.UUID, viewerID string, delta StateDelta) error

	// IsSubscribed checks if a viewer is subscribed to a session.
	IsSubscribed(ctx context.Context, sessionID uuid.UUID, viewerID string) bool
}
