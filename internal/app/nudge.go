package app

import (
	"time"

	"livein-auction-engine/internal/domain/participant"

	"github.com/google/uuid"
)

// nudgePolicy decides which participants get an idle nudge: anyone who has
// gone longer than the window without bidding since joining. Each idle
// stretch produces one nudge; bidding resets it. The policy only raises the
// signal, presentation decides what to show.
type nudgePolicy struct {
	window   time.Duration
	notified map[uuid.UUID]bool
}

func newNudgePolicy(window time.Duration) *nudgePolicy {
	return &nudgePolicy{
		window:   window,
		notified: make(map[uuid.UUID]bool),
	}
}

func (p *nudgePolicy) enabled() bool {
	return p.window > 0
}

// due returns the participants whose idle window has elapsed and who have not
// been nudged during this idle stretch, marking them as notified.
func (p *nudgePolicy) due(now time.Time, participants map[uuid.UUID]*participant.Participant) []*participant.Participant {
	if !p.enabled() {
		return nil
	}
	var out []*participant.Participant
	for id, pt := range participants {
		if p.notified[id] {
			continue
		}
		if now.Sub(pt.LastActivity()) >= p.window {
			p.notified[id] = true
			out = append(out, pt)
		}
	}
	return out
}

// markActive resets a participant's nudge state after they bid.
func (p *nudgePolicy) markActive(id uuid.UUID) {
	delete(p.notified, id)
}
