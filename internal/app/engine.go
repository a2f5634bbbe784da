package app

import (
	"context"
	"time"

	"livein-auction-engine/internal/domain/bid"
	"livein-auction-engine/internal/domain/participant"
	"livein-auction-engine/internal/domain/session"
	"livein-auction-engine/internal/domain/shared"
	"livein-auction-engine/internal/ports/inbound"
	"livein-auction-engine/internal/ports/outbound"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog"
)

// Defaults fill in session config fields left at zero when a session is
// opened, plus engine-wide tunables.
type Defaults struct {
	ClosingThreshold   time.Duration
	ExtensionWindow    time.Duration
	ExtensionDuration  time.Duration
	MaxExtensions      int
	IdleNudgeWindow    time.Duration
	NudgeCheckInterval time.Duration

	// SubmitTimeout bounds how long a caller waits on a session's
	// serialization point before ErrEngineUnavailable.
	SubmitTimeout   time.Duration
	SnapshotHistory int
}

func (d *Defaults) apply(cfg *session.Config) {
	if cfg.ClosingThreshold == 0 {
		cfg.ClosingThreshold = d.ClosingThreshold
	}
	if cfg.ExtensionWindow == 0 {
		cfg.ExtensionWindow = d.ExtensionWindow
	}
	if cfg.ExtensionDuration == 0 {
		cfg.ExtensionDuration = d.ExtensionDuration
	}
	if cfg.MaxExtensions == 0 {
		cfg.MaxExtensions = d.MaxExtensions
	}
	if cfg.IdleNudgeWindow == 0 {
		cfg.IdleNudgeWindow = d.IdleNudgeWindow
	}
}

// Engine implements inbound.AuctionEngine: the server-authoritative auction
// session engine behind the feed, detail, and live-room surfaces.
type Engine struct {
	registry   *Registry
	dispatcher outbound.Dispatcher
	clock      clockwork.Clock
	defaults   Defaults
	logger     zerolog.Logger
}

type EngineParams struct {
	Dispatcher outbound.Dispatcher
	Clock      clockwork.Clock
	Defaults   Defaults
	Logger     zerolog.Logger
}

// NewEngine creates a new auction engine.
func NewEngine(params EngineParams) *Engine {
	clock := params.Clock
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	defaults := params.Defaults
	if defaults.SubmitTimeout == 0 {
		defaults.SubmitTimeout = 2 * time.Second
	}
	if defaults.SnapshotHistory == 0 {
		defaults.SnapshotHistory = 20
	}

	return &Engine{
		registry:   NewRegistry(params.Logger),
		dispatcher: params.Dispatcher,
		clock:      clock,
		defaults:   defaults,
		logger:     params.Logger.With().Str("component", "auction_engine").Logger(),
	}
}

// OpenSession opens a live auction session for a listing. A zero start time
// means an explicit open: the session goes live immediately.
func (e *Engine) OpenSession(ctx context.Context, req inbound.OpenSessionRequest) (*session.Session, error) {
	cfg := req.Config
	e.defaults.apply(&cfg)

	now := e.clock.Now()
	if cfg.StartTime.IsZero() {
		cfg.StartTime = now
	}
	if err := cfg.Validate(); err != nil {
		e.logger.Warn().Err(err).Str("listing_id", req.ListingID.String()).Msg("Invalid session config")
		return nil, err
	}

	sess := session.New(req.ListingID, cfg, now)
	worker := newSessionWorker(sessionWorkerParams{
		Session:            sess,
		Clock:              NewSessionClock(e.clock, cfg),
		Dispatcher:         e.dispatcher,
		NudgeCheckInterval: e.defaults.NudgeCheckInterval,
		HistorySize:        e.defaults.SnapshotHistory,
		Logger:             e.logger,
	})

	if err := e.registry.Register(worker); err != nil {
		return nil, err
	}

	// Copy before the worker starts mutating its state.
	out := *sess
	worker.start()

	e.logger.Info().
		Str("session_id", sess.ID.String()).
		Str("listing_id", sess.ListingID.String()).
		Int64("starting_price", cfg.StartingPrice).
		Int64("min_increment", cfg.MinIncrement).
		Time("start_time", cfg.StartTime).
		Time("end_time", cfg.EndTime).
		Msg("Session opened")

	return &out, nil
}

// CloseSession ends a session if still active and tears its worker down.
func (e *Engine) CloseSession(ctx context.Context, sessionID uuid.UUID) (*shared.CloseResult, error) {
	worker, err := e.registry.Get(sessionID)
	if err != nil {
		return nil, err
	}

	result, err := worker.AdminClose(ctx, e.defaults.SubmitTimeout)
	if err != nil {
		return nil, err
	}

	e.registry.Remove(sessionID)
	worker.Stop()

	e.logger.Info().Str("session_id", sessionID.String()).Msg("Session closed and torn down")
	return result, nil
}

// JoinSession registers a participant with a session.
func (e *Engine) JoinSession(ctx context.Context, req inbound.JoinSessionRequest) (*participant.Participant, error) {
	worker, err := e.registry.Get(req.SessionID)
	if err != nil {
		return nil, err
	}
	return worker.Join(ctx, req, e.defaults.SubmitTimeout)
}

// SubmitBid validates and places a bid. Acceptance or rejection is reported
// synchronously; ErrEngineUnavailable signals retry with backoff.
func (e *Engine) SubmitBid(ctx context.Context, req inbound.SubmitBidRequest) (*bid.Bid, error) {
	worker, err := e.registry.Get(req.SessionID)
	if err != nil {
		return nil, err
	}
	return worker.SubmitBid(ctx, req, e.defaults.SubmitTimeout)
}

// GetSnapshot returns the full current state of a session.
func (e *Engine) GetSnapshot(ctx context.Context, sessionID uuid.UUID) (*inbound.Snapshot, error) {
	worker, err := e.registry.Get(sessionID)
	if err != nil {
		return nil, err
	}
	return worker.Snapshot(ctx, e.defaults.SubmitTimeout)
}

// SessionStatus reports a session's lifecycle status without touching its
// worker loop.
func (e *Engine) SessionStatus(sessionID uuid.UUID) (session.Status, error) {
	worker, err := e.registry.Get(sessionID)
	if err != nil {
		return "", err
	}
	return worker.Status(), nil
}

// Shutdown stops every registered worker. Sessions are not ended, only their
// loops terminated; this is process teardown, not auction closure.
func (e *Engine) Shutdown() {
	e.registry.mu.Lock()
	workers := make([]*sessionWorker, 0, len(e.registry.sessions))
	for _, w := range e.registry.sessions {
		workers = append(workers, w)
	}
	e.registry.mu.Unlock()

	for _, w := range workers {
		w.Stop()
	}
	e.logger.Info().Int("sessions", len(workers)).Msg("Engine shut down")
}
