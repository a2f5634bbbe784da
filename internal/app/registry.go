package app

import (
	"sync"

	"livein-auction-engine/internal/domain/session"
	"livein-auction-engine/internal/domain/shared"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Registry maps listing and session identifiers to live session workers.
// The lock covers only the maps; operations on different sessions proceed
// fully in parallel through their own workers.
type Registry struct {
	mu        sync.RWMutex
	sessions  map[uuid.UUID]*sessionWorker
	byListing map[uuid.UUID]uuid.UUID
	logger    zerolog.Logger
}

// NewRegistry creates an empty session registry.
func NewRegistry(logger zerolog.Logger) *Registry {
	return &Registry{
		sessions:  make(map[uuid.UUID]*sessionWorker),
		byListing: make(map[uuid.UUID]uuid.UUID),
		logger:    logger.With().Str("component", "session_registry").Logger(),
	}
}

// Register adds a worker, guaranteeing at most one non-ended session per
// listing at a time.
func (r *Registry) Register(w *sessionWorker) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	listingID := w.sess.ListingID
	if sid, ok := r.byListing[listingID]; ok {
		if existing, alive := r.sessions[sid]; alive && existing.Status() != session.StatusEnded {
			r.logger.Warn().
				Str("listing_id", listingID.String()).
				Str("session_id", sid.String()).
				Msg("Listing already has an active session")
			return shared.ErrSessionAlreadyActive
		}
	}

	r.sessions[w.sess.ID] = w
	r.byListing[listingID] = w.sess.ID

	r.logger.Info().
		Str("session_id", w.sess.ID.String()).
		Str("listing_id", listingID.String()).
		Int("total_sessions", len(r.sessions)).
		Msg("Session registered")
	return nil
}

// Get returns the worker for a session.
func (r *Registry) Get(sessionID uuid.UUID) (*sessionWorker, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	w, ok := r.sessions[sessionID]
	if !ok {
		return nil, shared.ErrSessionNotFound
	}
	return w, nil
}

// Remove drops a session from the registry.
func (r *Registry) Remove(sessionID uuid.UUID) {
	r.mu.Lock()
	defer r.mu.Unlock()

	w, ok := r.sessions[sessionID]
	if !ok {
		return
	}
	delete(r.sessions, sessionID)
	if r.byListing[w.sess.ListingID] == sessionID {
		delete(r.byListing, w.sess.ListingID)
	}

	r.logger.Info().
		Str("session_id", sessionID.String()).
		Int("total_sessions", len(r.sessions)).
		Msg("Session removed")
}

// Len returns the number of registered sessions.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}
