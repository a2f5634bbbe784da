package broadcaster

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"livein-auction-engine/internal/ports/outbound"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// RedisDispatcher implements the dispatcher interface over Redis pub/sub so
// that viewers connected to other engine instances still receive deltas.
// Broadcast deltas go to a per-session channel; targeted deltas (nudges) go
// to a per-viewer channel that every connected viewer listens on.
type RedisDispatcher struct {
	client *redis.Client
	// viewerID -> local delta channel
	viewers map[string]chan outbound.StateDelta
	// viewerID -> pubsub instance
	pubsubs map[string]*redis.PubSub
	// viewerID -> sessionID -> subscribed
	viewerSessions map[string]map[string]bool
	mu             sync.RWMutex
	ctx            context.Context
	cancel         context.CancelFunc
	logger         zerolog.Logger
}

type RedisDispatcherParams struct {
	RedisClient *redis.Client
	Logger      zerolog.Logger
}

// NewRedisDispatcher creates a Redis-backed dispatcher.
func NewRedisDispatcher(params RedisDispatcherParams) *RedisDispatcher {
	ctx, cancel := context.WithCancel(context.Background())

	return &RedisDispatcher{
		client:         params.RedisClient,
		viewers:        make(map[string]chan outbound.StateDelta),
		pubsubs:        make(map[string]*redis.PubSub),
		viewerSessions: make(map[string]map[string]bool),
		ctx:            ctx,
		cancel:         cancel,
		logger:         params.Logger.With().Str("component", "redis_dispatcher").Logger(),
	}
}

func sessionChannel(sessionID uuid.UUID) string {
	return fmt.Sprintf("session:%s", sessionID.String())
}

func viewerChannel(viewerID string) string {
	return fmt.Sprintf("viewer:%s", viewerID)
}

// Subscribe subscribes a viewer to deltas for a session. The first
// subscription of a viewer also subscribes their private channel for
// targeted deltas.
func (r *RedisDispatcher) Subscribe(ctx context.Context, sessionID uuid.UUID, viewerID string, deltaChan chan outbound.StateDelta) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.viewerSessions[viewerID] != nil && r.viewerSessions[viewerID][sessionID.String()] {
		r.logger.Debug().
			Str("viewer_id", viewerID).
			Str("session_id", sessionID.String()).
			Msg("Viewer already subscribed to session")
		return nil
	}

	if r.viewers[viewerID] == nil {
		r.viewers[viewerID] = deltaChan
	}
	if r.viewerSessions[viewerID] == nil {
		r.viewerSessions[viewerID] = make(map[string]bool)
	}
	r.viewerSessions[viewerID][sessionID.String()] = true

	pubsub, exists := r.pubsubs[viewerID]
	if !exists {
		pubsub = r.client.Subscribe(ctx, viewerChannel(viewerID))
		r.pubsubs[viewerID] = pubsub
		go r.forwardRedisMessages(pubsub, viewerID, r.viewers[viewerID])
	}

	if err := pubsub.Subscribe(ctx, sessionChannel(sessionID)); err != nil {
		r.logger.Error().Err(err).
			Str("viewer_id", viewerID).
			Str("session_id", sessionID.String()).
			Msg("Failed to subscribe to Redis channel")
		return err
	}

	r.logger.Info().
		Str("viewer_id", viewerID).
		Str("session_id", sessionID.String()).
		Msg("Viewer subscribed via Redis")
	return nil
}

// Unsubscribe removes a viewer's subscription to a session, tearing down
// their pubsub connection once no sessions remain.
func (r *RedisDispatcher) Unsubscribe(ctx context.Context, sessionID uuid.UUID, viewerID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	sessions, exists := r.viewerSessions[viewerID]
	if !exists {
		return nil
	}
	delete(sessions, sessionID.String())

	if len(sessions) == 0 {
		delete(r.viewerSessions, viewerID)
		// the delta channel belongs to the caller, only drop the reference
		delete(r.viewers, viewerID)

		if pubsub, ok := r.pubsubs[viewerID]; ok {
			if err := pubsub.Close(); err != nil {
				r.logger.Error().Err(err).Str("viewer_id", viewerID).Msg("Error closing Redis pubsub for viewer")
			}
			delete(r.pubsubs, viewerID)
		}
	} else if pubsub, ok := r.pubsubs[viewerID]; ok {
		if err := pubsub.Unsubscribe(ctx, sessionChannel(sessionID)); err != nil {
			r.logger.Error().Err(err).
				Str("viewer_id", viewerID).
				Str("session_id", sessionID.String()).
				Msg("Error unsubscribing from Redis channel")
		}
	}

	r.logger.Info().
		Str("viewer_id", viewerID).
		Str("session_id", sessionID.String()).
		Msg("Viewer unsubscribed")
	return nil
}

// Publish delivers a delta to every viewer of the session via Redis.
func (r *RedisDispatcher) Publish(ctx context.Context, sessionID uuid.UUID, delta outbound.StateDelta) error {
	return r.publishTo(ctx, sessionChannel(sessionID), delta)
}

// Notify delivers a delta to a single viewer via their private channel.
func (r *RedisDispatcher) Notify(ctx context.Context, sessionID uuid.UUID, viewerID string, delta outbound.StateDelta) error {
	return r.publishTo(ctx, viewerChannel(viewerID), delta)
}

func (r *RedisDispatcher) publishTo(ctx context.Context, channel string, delta outbound.StateDelta) error {
	if delta.Timestamp == 0 {
		delta.Timestamp = time.Now().Unix()
	}

	payload, err := json.Marshal(delta)
	if err != nil {
		return fmt.Errorf("failed to marshal delta: %w", err)
	}

	result := r.client.Publish(ctx, channel, payload)
	if err := result.Err(); err != nil {
		r.logger.Error().Err(err).Str("channel", channel).Msg("Failed to publish to Redis")
		return fmt.Errorf("failed to publish to Redis: %w", err)
	}

	r.logger.Debug().
		Str("delta_type", string(delta.Type)).
		Str("channel", channel).
		Int64("subscriber_count", result.Val()).
		Msg("Published delta")
	return nil
}

// IsSubscribed checks if a viewer is subscribed to a session.
func (r *RedisDispatcher) IsSubscribed(ctx context.Context, sessionID uuid.UUID, viewerID string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	sessions, exists := r.viewerSessions[viewerID]
	if !exists {
		return false
	}
	return sessions[sessionID.String()]
}

// forwardRedisMessages forwards a viewer's Redis messages to their local channel.
func (r *RedisDispatcher) forwardRedisMessages(pubsub *redis.PubSub, viewerID string, localChan chan outbound.StateDelta) {
	ch := pubsub.Channel()

	for {
		select {
		case msg, ok := <-ch:
			if !ok {
				r.logger.Debug().Str("viewer_id", viewerID).Msg("Redis channel closed for viewer")
				return
			}

			var delta outbound.StateDelta
			if err := json.Unmarshal([]byte(msg.Payload), &delta); err != nil {
				r.logger.Error().Err(err).Str("viewer_id", viewerID).Msg("Failed to unmarshal Redis message")
				continue
			}

			select {
			case localChan <- delta:
			default:
				r.logger.Warn().Str("viewer_id", viewerID).Msg("Viewer channel full, dropping delta")
			}

		case <-r.ctx.Done():
			return
		}
	}
}

// Close tears down all viewer channels and pubsub connections.
func (r *RedisDispatcher) Close() error {
	r.cancel()

	r.mu.Lock()
	defer r.mu.Unlock()

	for viewerID := range r.viewers {
		delete(r.viewers, viewerID)
	}
	for viewerID, pubsub := range r.pubsubs {
		if err := pubsub.Close(); err != nil {
			r.logger.Error().Err(err).Str("viewer_id", viewerID).Msg("Error closing Redis pubsub for viewer")
		}
		delete(r.pubsubs, viewerID)
	}

	return r.client.Close()
}
