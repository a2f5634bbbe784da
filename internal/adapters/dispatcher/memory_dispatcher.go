package dispatcher

import (
	"context"
	"sync"

	"livein-auction-engine/internal/ports/outbound"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// MemoryDispatcher implements the dispatcher interface with in-process
// channels. Deltas are pushed to each subscriber's buffered channel in
// publish order; a full channel drops the delta rather than blocking the
// publishing session worker. Reconnecting viewers recover via snapshot.
type MemoryDispatcher struct {
	mu sync.RWMutex
	// sessionID -> viewerID -> delta channel
	subs map[uuid.UUID]map[string]chan outbound.StateDelta
	// viewerID -> channel, for targeted delivery and channel reuse
	viewers map[string]chan outbound.StateDelta
	logger  zerolog.Logger
}

type MemoryDispatcherParams struct {
	Logger zerolog.Logger
}

// NewMemoryDispatcher creates an in-process dispatcher.
func NewMemoryDispatcher(params MemoryDispatcherParams) *MemoryDispatcher {
	return &MemoryDispatcher{
		subs:    make(map[uuid.UUID]map[string]chan outbound.StateDelta),
		viewers: make(map[string]chan outbound.StateDelta),
		logger:  params.Logger.With().Str("component", "memory_dispatcher").Logger(),
	}
}

// Subscribe registers a viewer's delta channel for a session.
func (d *MemoryDispatcher) Subscribe(ctx context.Context, sessionID uuid.UUID, viewerID string, deltaChan chan outbound.StateDelta) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.subs[sessionID] == nil {
		d.subs[sessionID] = make(map[string]chan outbound.StateDelta)
	}
	if existing, ok := d.viewers[viewerID]; ok {
		// keep one channel per viewer across sessions
		deltaChan = existing
	} else {
		d.viewers[viewerID] = deltaChan
	}
	d.subs[sessionID][viewerID] = deltaChan

	d.logger.Debug().
		Str("viewer_id", viewerID).
		Str("session_id", sessionID.String()).
		Msg("Viewer subscribed")
	return nil
}

// Unsubscribe removes a viewer's subscription to a session.
func (d *MemoryDispatcher) Unsubscribe(ctx context.Context, sessionID uuid.UUID, viewerID string) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if viewers, ok := d.subs[sessionID]; ok {
		delete(viewers, viewerID)
		if len(viewers) == 0 {
			delete(d.subs, sessionID)
		}
	}

	if !d.subscribedAnywhereLocked(viewerID) {
		delete(d.viewers, viewerID)
	}

	d.logger.Debug().
		Str("viewer_id", viewerID).
		Str("session_id", sessionID.String()).
		Msg("Viewer unsubscribed")
	return nil
}

func (d *MemoryDispatcher) subscribedAnywhereLocked(viewerID string) bool {
	for _, viewers := range d.subs {
		if _, ok := viewers[viewerID]; ok {
			return true
		}
	}
	return false
}

// Publish delivers a delta to every viewer subscribed to the session.
func (d *MemoryDispatcher) Publish(ctx context.Context, sessionID uuid.UUID, delta outbound.StateDelta) error {
	d.mu.RLock()
	defer d.mu.RUnlock()

	for viewerID, ch := range d.subs[sessionID] {
		select {
		case ch <- delta:
		default:
			d.logger.Warn().
				Str("viewer_id", viewerID).
				Str("session_id", sessionID.String()).
				Str("delta_type", string(delta.Type)).
				Msg("Viewer channel full, dropping delta")
		}
	}
	return nil
}

// Notify delivers a delta to a single viewer of the session.
func (d *MemoryDispatcher) Notify(ctx context.Context, sessionID uuid.UUID, viewerID string, delta outbound.StateDelta) error {
	d.mu.RLock()
	defer d.mu.RUnlock()

	ch, ok := d.subs[sessionID][viewerID]
	if !ok {
		return nil // viewer not connected, advisory deltas are best-effort
	}
	select {
	case ch <- delta:
	default:
		d.logger.Warn().
			Str("viewer_id", viewerID).
			Str("session_id", sessionID.String()).
			Msg("Viewer channel full, dropping targeted delta")
	}
	return nil
}

// IsSubscribed checks if a viewer is subscribed to a session.
func (d *MemoryDispatcher) IsSubscribed(ctx context.Context, sessionID uuid.UUID, viewerID string) bool {
	d.mu.RLock()
	defer d.mu.RUnlock()

	_, ok := d.subs[sessionID][viewerID]
	return ok
}
