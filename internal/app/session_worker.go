package app

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
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

// sessionWorker is the authoritative state machine for one session. All
// mutable session state is confined to the worker goroutine; callers submit
// closures through the command channel and the loop executes them one at a
// time, so two concurrent bids can never validate against the same stale
// price. Broadcast fan-out happens through the dispatcher and never mutates
// session state.
type sessionWorker struct {
	sess         *session.Session
	ledger       *bid.Ledger
	clock        *SessionClock
	participants map[uuid.UUID]*participant.Participant
	dispatcher   outbound.Dispatcher
	nudge        *nudgePolicy
	nudgeTicker  clockwork.Ticker
	historySize  int
	logger       zerolog.Logger

	cmds     chan func()
	stopCh   chan struct{}
	stopOnce sync.Once
	done     chan struct{}

	// status mirrors sess.Status for readers outside the worker goroutine
	status atomic.Value

	faulted bool
	result  *shared.CloseResult
}

type sessionWorkerParams struct {
	Session            *session.Session
	Clock              *SessionClock
	Dispatcher         outbound.Dispatcher
	NudgeCheckInterval time.Duration
	HistorySize        int
	Logger             zerolog.Logger
}

func newSessionWorker(params sessionWorkerParams) *sessionWorker {
	sess := params.Session
	w := &sessionWorker{
		sess:         sess,
		ledger:       bid.NewLedger(sess.ID, sess.Config.StartingPrice, sess.Config.MinIncrement),
		clock:        params.Clock,
		participants: make(map[uuid.UUID]*participant.Participant),
		dispatcher:   params.Dispatcher,
		nudge:        newNudgePolicy(sess.Config.IdleNudgeWindow),
		historySize:  params.HistorySize,
		logger: params.Logger.With().
			Str("component", "session_worker").
			Str("session_id", sess.ID.String()).
			Str("listing_id", sess.ListingID.String()).
			Logger(),
		cmds:   make(chan func(), 64),
		stopCh: make(chan struct{}),
		done:   make(chan struct{}),
	}
	w.status.Store(sess.Status)

	if w.nudge.enabled() && params.NudgeCheckInterval > 0 {
		w.nudgeTicker = w.clock.clock.NewTicker(params.NudgeCheckInterval)
	}
	return w
}

// start launches the worker loop.
func (w *sessionWorker) start() {
	go w.run()
}

// Stop terminates the worker loop. Safe to call more than once.
func (w *sessionWorker) Stop() {
	w.stopOnce.Do(func() { close(w.stopCh) })
}

// Status is safe to read from any goroutine.
func (w *sessionWorker) Status() session.Status {
	return w.status.Load().(session.Status)
}

// SessionID returns the session's identifier.
func (w *sessionWorker) SessionID() uuid.UUID {
	return w.sess.ID
}

func (w *sessionWorker) run() {
	defer close(w.done)
	defer w.clock.Stop()
	if w.nudgeTicker != nil {
		defer w.nudgeTicker.Stop()
	}

	w.bootstrap()

	var nudgeC <-chan time.Time
	if w.nudgeTicker != nil {
		nudgeC = w.nudgeTicker.Chan()
	}

	for {
		select {
		case fn := <-w.cmds:
			fn()
		case <-w.clock.Deadline():
			w.onDeadline()
		case <-nudgeC:
			w.checkIdle()
		case <-w.stopCh:
			w.logger.Info().Msg("Session worker stopped")
			return
		}
	}
}

func (w *sessionWorker) bootstrap() {
	if w.clock.Now().Before(w.clock.StartTime()) {
		w.logger.Info().Time("start_time", w.clock.StartTime()).Msg("Session scheduled")
		w.armDeadline()
		return
	}
	w.enterLive()
}

// do runs fn on the worker goroutine and waits for it, bounded by timeout.
// The bound is wall-clock back-pressure, not auction time, so it uses a
// stdlib timer rather than the session clock. A timeout after the closure was
// enqueued means it may still execute; idempotency keys make retries safe.
func (w *sessionWorker) do(ctx context.Context, timeout time.Duration, fn func()) error {
	executed := make(chan struct{})
	job := func() {
		defer close(executed)
		fn()
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case w.cmds <- job:
	case <-w.done:
		return shared.ErrSessionNotFound
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return shared.ErrEngineUnavailable
	}

	select {
	case <-executed:
		return nil
	case <-w.done:
		return shared.ErrSessionNotFound
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return shared.ErrEngineUnavailable
	}
}

// SubmitBid validates and places a bid, synchronously relative to the caller.
func (w *sessionWorker) SubmitBid(ctx context.Context, req inbound.SubmitBidRequest, timeout time.Duration) (*bid.Bid, error) {
	var accepted *bid.Bid
	var err error
	if doErr := w.do(ctx, timeout, func() {
		accepted, err = w.submit(req)
	}); doErr != nil {
		return nil, doErr
	}
	return accepted, err
}

// Snapshot returns the full current state of the session.
func (w *sessionWorker) Snapshot(ctx context.Context, timeout time.Duration) (*inbound.Snapshot, error) {
	var snap *inbound.Snapshot
	if err := w.do(ctx, timeout, func() {
		snap = w.buildSnapshot()
	}); err != nil {
		return nil, err
	}
	return snap, nil
}

// Join registers a participant with the session.
func (w *sessionWorker) Join(ctx context.Context, req inbound.JoinSessionRequest, timeout time.Duration) (*participant.Participant, error) {
	var pt *participant.Participant
	var err error
	if doErr := w.do(ctx, timeout, func() {
		pt, err = w.join(req)
	}); doErr != nil {
		return nil, doErr
	}
	return pt, err
}

// AdminClose ends the session immediately if it is still active and returns
// the final result.
func (w *sessionWorker) AdminClose(ctx context.Context, timeout time.Duration) (*shared.CloseResult, error) {
	var result *shared.CloseResult
	if err := w.do(ctx, timeout, func() {
		if !w.sess.IsEnded() {
			w.end()
		}
		result = w.result
	}); err != nil {
		return nil, err
	}
	return result, nil
}

// submit runs on the worker goroutine. Checks run in a fixed order against
// the worker's own state: lifecycle, verification, amount, idempotency key.
// The first failing check determines the rejection kind.
func (w *sessionWorker) submit(req inbound.SubmitBidRequest) (*bid.Bid, error) {
	if w.faulted || !w.sess.CanBid() {
		return nil, shared.ErrSessionNotLive
	}

	pt, ok := w.participants[req.BidderID]
	if !ok || !pt.Verified {
		return nil, shared.ErrNotVerified
	}

	now := w.clock.Now()
	accepted, err := w.ledger.Append(req.BidderID, pt.DisplayName, req.Amount, req.IdempotencyKey, now)
	if err != nil {
		if errors.Is(err, shared.ErrLedgerCorrupted) {
			w.fault(err)
			return nil, err
		}
		w.logger.Debug().
			Str("bidder_id", req.BidderID.String()).
			Int64("amount", req.Amount).
			Err(err).
			Msg("Bid rejected")
		return nil, err
	}

	pt.RecordBid(now)
	w.nudge.markActive(pt.ID)

	w.logger.Info().
		Str("bid_id", accepted.ID.String()).
		Str("bidder_id", accepted.BidderID.String()).
		Uint64("seq", accepted.Seq).
		Int64("amount", accepted.Amount).
		Msg("Bid accepted")

	w.publish(outbound.DeltaBidAccepted, map[string]interface{}{
		"bid_id":        accepted.ID.String(),
		"seq":           accepted.Seq,
		"bidder_id":     accepted.BidderID.String(),
		"bidder_name":   accepted.BidderName,
		"amount":        accepted.Amount,
		"current_price": accepted.Amount,
		"accepted_at":   accepted.AcceptedAt.Unix(),
	})

	// Soft close: extension eligibility is checked after, not instead of,
	// normal validation. A bid that lands inside the extension window pushes
	// the end out; the loser of the end-of-auction race was never accepted.
	if w.sess.Config.ExtensionWindow > 0 && w.clock.Remaining() <= w.sess.Config.ExtensionWindow {
		if newEnd, extended := w.clock.Extend(now); extended {
			w.armDeadline()
			w.logger.Info().
				Time("new_end_time", newEnd).
				Int("extensions_used", w.clock.ExtensionsUsed()).
				Msg("Session extended by late bid")
			w.publish(outbound.DeltaTimeExtended, map[string]interface{}{
				"new_end_time":    newEnd.Format(time.RFC3339),
				"extensions_used": w.clock.ExtensionsUsed(),
				"remaining_ms":    w.clock.Remaining().Milliseconds(),
			})
		}
	}

	return accepted, nil
}

func (w *sessionWorker) join(req inbound.JoinSessionRequest) (*participant.Participant, error) {
	if w.sess.IsEnded() {
		return nil, shared.ErrSessionNotLive
	}

	now := w.clock.Now()
	if existing, ok := w.participants[req.Participant]; ok {
		existing.DisplayName = req.DisplayName
		existing.Verified = req.Verified
		return existing, nil
	}

	pt := participant.New(req.Participant, req.DisplayName, req.Verified, now)
	w.participants[pt.ID] = pt

	w.logger.Info().
		Str("participant_id", pt.ID.String()).
		Bool("verified", pt.Verified).
		Int("participants", len(w.participants)).
		Msg("Participant joined session")

	return pt, nil
}

func (w *sessionWorker) buildSnapshot() *inbound.Snapshot {
	snap := &inbound.Snapshot{
		SessionID:      w.sess.ID,
		ListingID:      w.sess.ListingID,
		Status:         w.sess.Status,
		StartingPrice:  w.sess.Config.StartingPrice,
		MarketPrice:    w.sess.Config.MarketPrice,
		MinIncrement:   w.sess.Config.MinIncrement,
		CurrentPrice:   w.ledger.CurrentPrice(),
		BidCount:       w.ledger.Len(),
		RemainingMs:    w.clock.Remaining().Milliseconds(),
		EndTime:        w.clock.EndTime(),
		ExtensionsUsed: w.clock.ExtensionsUsed(),
		Participants:   len(w.participants),
		RecentBids:     w.ledger.Recent(w.historySize),
	}
	if highest := w.ledger.Highest(); highest != nil {
		snap.LeaderID = &highest.BidderID
		snap.LeaderName = highest.BidderName
	}
	return snap
}

func (w *sessionWorker) onDeadline() {
	now := w.clock.Now()

	switch w.sess.Status {
	case session.StatusScheduled:
		if now.Before(w.clock.StartTime()) {
			w.armDeadline()
			return
		}
		w.enterLive()

	case session.StatusLive, session.StatusClosing:
		if now.Before(w.clock.EndTime()) {
			// a bid moved the end time after this timer was armed
			w.armDeadline()
			return
		}
		w.end()

	case session.StatusEnded:
		// stale fire, ignore
	}
}

// armDeadline arms the clock for the next lifecycle deadline of the current
// state, entering the closing window directly when it has already begun.
func (w *sessionWorker) armDeadline() {
	switch w.sess.Status {
	case session.StatusScheduled:
		w.clock.ArmAt(w.clock.StartTime())

	case session.StatusLive:
		threshold := w.sess.Config.ClosingThreshold
		if threshold <= 0 {
			w.clock.ArmAt(w.clock.EndTime())
			return
		}
		closingAt := w.clock.EndTime().Add(-threshold)
		if w.clock.Now().Before(closingAt) {
			w.clock.ArmAt(closingAt)
			return
		}
		w.enterClosing()

	case session.StatusClosing:
		w.clock.ArmAt(w.clock.EndTime())
	}
}

func (w *sessionWorker) enterLive() {
	now := w.clock.Now()
	w.sess.GoLive(now)
	w.status.Store(session.StatusLive)

	w.logger.Info().Time("end_time", w.clock.EndTime()).Msg("Session live")

	w.publish(outbound.DeltaStatusChanged, map[string]interface{}{
		"status":       string(session.StatusLive),
		"end_time":     w.clock.EndTime().Format(time.RFC3339),
		"remaining_ms": w.clock.Remaining().Milliseconds(),
	})

	w.armDeadline()
}

func (w *sessionWorker) enterClosing() {
	now := w.clock.Now()
	w.sess.BeginClosing(now)
	w.status.Store(session.StatusClosing)

	w.logger.Info().Dur("remaining", w.clock.Remaining()).Msg("Session closing")

	w.publish(outbound.DeltaStatusChanged, map[string]interface{}{
		"status":       string(session.StatusClosing),
		"remaining_ms": w.clock.Remaining().Milliseconds(),
	})

	w.armDeadline()
}

// end freezes the ledger, emits the final result, and leaves the worker
// serving snapshots. Re-entry to live from here is forbidden.
func (w *sessionWorker) end() {
	now := w.clock.Now()
	w.ledger.Freeze()
	w.sess.End(now)
	w.status.Store(session.StatusEnded)
	w.clock.Stop()

	result := &shared.CloseResult{
		SessionID: w.sess.ID,
		ListingID: w.sess.ListingID,
		FinalSeq:  uint64(w.ledger.Len()),
		Status:    string(session.StatusEnded),
	}

	data := map[string]interface{}{
		"status":      string(session.StatusEnded),
		"final_seq":   result.FinalSeq,
		"final_price": w.ledger.CurrentPrice(),
	}
	if w.faulted {
		data["faulted"] = true
	}

	if highest := w.ledger.Highest(); highest != nil {
		result.WinnerID = &highest.BidderID
		result.WinnerName = highest.BidderName
		result.FinalPrice = &highest.Amount
		data["winner_id"] = highest.BidderID.String()
		data["winner_name"] = highest.BidderName

		w.logger.Info().
			Str("winner_id", highest.BidderID.String()).
			Int64("final_price", highest.Amount).
			Uint64("final_seq", highest.Seq).
			Msg("Session ended with winner")
	} else {
		w.logger.Info().Msg("Session ended with no bids")
	}

	w.result = result
	w.publish(outbound.DeltaAuctionClosed, data)
}

// fault handles a violated sequencing invariant: the session is forcibly
// closed and flagged for manual audit.
func (w *sessionWorker) fault(err error) {
	w.logger.Error().Err(err).Msg("Internal consistency fault, forcing session closed for audit")
	w.faulted = true
	w.end()
}

func (w *sessionWorker) checkIdle() {
	if !w.sess.CanBid() {
		return
	}
	now := w.clock.Now()
	for _, pt := range w.nudge.due(now, w.participants) {
		delta := outbound.StateDelta{
			Type:      outbound.DeltaNudge,
			SessionID: w.sess.ID,
			Seq:       uint64(w.ledger.Len()),
			Data: map[string]interface{}{
				"participant_id": pt.ID.String(),
				"idle_ms":        now.Sub(pt.LastActivity()).Milliseconds(),
				"current_price":  w.ledger.CurrentPrice(),
			},
			Timestamp: now.Unix(),
		}
		if err := w.dispatcher.Notify(context.Background(), w.sess.ID, pt.ID.String(), delta); err != nil {
			w.logger.Warn().Err(err).Str("participant_id", pt.ID.String()).Msg("Failed to deliver nudge")
		} else {
			w.logger.Debug().Str("participant_id", pt.ID.String()).Msg("Idle nudge delivered")
		}
	}
}

func (w *sessionWorker) publish(deltaType outbound.DeltaType, data map[string]interface{}) {
	delta := outbound.StateDelta{
		Type:      deltaType,
		SessionID: w.sess.ID,
		Seq:       uint64(w.ledger.Len()),
		Data:      data,
		Timestamp: w.clock.Now().Unix(),
	}
	if err := w.dispatcher.Publish(context.Background(), w.sess.ID, delta); err != nil {
		w.logger.Error().Err(err).Str("delta_type", string(deltaType)).Msg("Failed to publish state delta")
	}
}
