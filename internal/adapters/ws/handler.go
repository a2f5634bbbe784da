package ws

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"livein-auction-engine/internal/domain/session"
	"livein-auction-engine/internal/domain/shared"
	"livein-auction-engine/internal/ports/inbound"
	"livein-auction-engine/internal/ports/outbound"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
)

// WsHandler manages WebSocket connections and routes client messages to the
// engine. Each viewer gets a delta channel subscribed through the dispatcher;
// deltas are forwarded to the connection in the order they arrive.
type WsHandler struct {
	clients       map[string]*WsClient // clientID -> client
	clientsMu     sync.RWMutex
	deltaChannels map[string]chan outbound.StateDelta // viewerID -> delta channel
	subscriptions map[string]map[uuid.UUID]bool       // viewerID -> subscribed sessions
	channelsMu    sync.RWMutex
	upgrader      websocket.Upgrader
	engine        inbound.AuctionEngine
	dispatcher    outbound.Dispatcher
	logger        zerolog.Logger
}

type WsHandlerParams struct {
	Upgrader   websocket.Upgrader
	Engine     inbound.AuctionEngine
	Dispatcher outbound.Dispatcher
	Logger     zerolog.Logger
}

// NewHandler creates a new WebSocket handler
func NewHandler(params WsHandlerParams) *WsHandler {
	return &WsHandler{
		clients:       make(map[string]*WsClient),
		deltaChannels: make(map[string]chan outbound.StateDelta),
		subscriptions: make(map[string]map[uuid.UUID]bool),
		upgrader:      params.Upgrader,
		engine:        params.Engine,
		dispatcher:    params.Dispatcher,
		logger:        params.Logger.With().Str("component", "ws_handler").Logger(),
	}
}

// HandleWebSocket handles WebSocket connection upgrades
func (handler *WsHandler) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	userIDStr := r.URL.Query().Get("user_id")
	if userIDStr == "" {
		http.Error(w, "user_id is required", http.StatusBadRequest)
		return
	}

	userID, err := uuid.Parse(userIDStr)
	if err != nil {
		http.Error(w, "invalid user_id format", http.StatusBadRequest)
		return
	}

	conn, err := handler.upgrader.Upgrade(w, r, nil)
	if err != nil {
		handler.logger.Error().Err(err).Msg("Failed to upgrade WebSocket connection")
		return
	}

	client := NewClient(WsClientParams{
		UserID:  userID,
		Conn:    conn,
		Handler: handler,
		Logger:  handler.logger,
	})

	handler.registerClient(client)
	handler.createDeltaChannel(client.viewerID())

	client.Start()
	go handler.listenForClientDeltas(client)

	go func() {
		<-client.ctx.Done()
		handler.unregisterClient(client)
	}()

	handler.logger.Info().
		Str("client_id", client.id).
		Str("user_id", client.userID.String()).
		Msg("WebSocket client connected")
}

// viewerID is the identity used for dispatcher subscriptions: the user, so
// targeted deltas addressed to a participant reach their connection.
func (client *WsClient) viewerID() string {
	return client.userID.String()
}

func (handler *WsHandler) createDeltaChannel(viewerID string) chan outbound.StateDelta {
	handler.channelsMu.Lock()
	defer handler.channelsMu.Unlock()

	if deltaChan, exists := handler.deltaChannels[viewerID]; exists {
		return deltaChan
	}

	deltaChan := make(chan outbound.StateDelta, 100)
	handler.deltaChannels[viewerID] = deltaChan
	return deltaChan
}

func (handler *WsHandler) getDeltaChannel(viewerID string) chan outbound.StateDelta {
	handler.channelsMu.RLock()
	defer handler.channelsMu.RUnlock()

	return handler.deltaChannels[viewerID]
}

// removeDeltaChannel drops the viewer's channel reference. The channel is
// never closed; the dispatcher may still be forwarding to it and the reader
// goroutine exits through the client context instead.
func (handler *WsHandler) removeDeltaChannel(viewerID string) {
	handler.channelsMu.Lock()
	defer handler.channelsMu.Unlock()
	delete(handler.deltaChannels, viewerID)
}

func (handler *WsHandler) trackSubscription(viewerID string, sessionID uuid.UUID) {
	handler.channelsMu.Lock()
	defer handler.channelsMu.Unlock()
	if handler.subscriptions[viewerID] == nil {
		handler.subscriptions[viewerID] = make(map[uuid.UUID]bool)
	}
	handler.subscriptions[viewerID][sessionID] = true
}

func (handler *WsHandler) untrackSubscription(viewerID string, sessionID uuid.UUID) {
	handler.channelsMu.Lock()
	defer handler.channelsMu.Unlock()
	if sessions := handler.subscriptions[viewerID]; sessions != nil {
		delete(sessions, sessionID)
		if len(sessions) == 0 {
			delete(handler.subscriptions, viewerID)
		}
	}
}

func (handler *WsHandler) takeSubscriptions(viewerID string) []uuid.UUID {
	handler.channelsMu.Lock()
	defer handler.channelsMu.Unlock()
	var out []uuid.UUID
	for sessionID := range handler.subscriptions[viewerID] {
		out = append(out, sessionID)
	}
	delete(handler.subscriptions, viewerID)
	return out
}

func (handler *WsHandler) registerClient(client *WsClient) {
	handler.clientsMu.Lock()
	defer handler.clientsMu.Unlock()
	handler.clients[client.id] = client
}

func (handler *WsHandler) unregisterClient(client *WsClient) {
	handler.clientsMu.Lock()
	defer handler.clientsMu.Unlock()

	delete(handler.clients, client.id)
	client.Stop()

	for _, sessionID := range handler.takeSubscriptions(client.viewerID()) {
		if err := handler.dispatcher.Unsubscribe(context.Background(), sessionID, client.viewerID()); err != nil {
			handler.logger.Error().Err(err).
				Str("session_id", sessionID.String()).
				Msg("Failed to unsubscribe disconnected viewer")
		}
	}
	handler.removeDeltaChannel(client.viewerID())

	handler.logger.Info().
		Str("client_id", client.id).
		Str("user_id", client.userID.String()).
		Int("total_clients", len(handler.clients)).
		Msg("WebSocket client disconnected")
}

// listenForClientDeltas forwards dispatched deltas to the WebSocket client.
func (handler *WsHandler) listenForClientDeltas(client *WsClient) {
	deltaChan := handler.getDeltaChannel(client.viewerID())
	if deltaChan == nil {
		handler.logger.Error().Str("client_id", client.id).Msg("No delta channel found for client")
		return
	}

	for {
		select {
		case delta, ok := <-deltaChan:
			if !ok {
				return
			}
			if err := client.Send(NewDeltaMessage(delta)); err != nil {
				handler.logger.Error().Err(err).
					Str("client_id", client.id).
					Str("delta_type", string(delta.Type)).
					Msg("Failed to send delta to WebSocket client")
			}

		case <-client.ctx.Done():
			return
		}
	}
}

func (handler *WsHandler) HandleClientMessage(client *WsClient, msg *ClientMessage) error {
	switch msg.Type {
	case MessageTypeSubscribe:
		return handler.handleSubscribe(client, msg)
	case MessageTypeUnsubscribe:
		return handler.handleUnsubscribe(client, msg)
	case MessageTypeJoinSession:
		return handler.handleJoinSession(client, msg)
	case MessageTypePlaceBid:
		return handler.handlePlaceBid(client, msg)
	case MessageTypeGetSnapshot:
		return handler.handleGetSnapshot(client, msg)
	case MessageTypeOpenSession:
		return handler.handleOpenSession(client, msg)
	case MessageTypeCloseSession:
		return handler.handleCloseSession(client, msg)
	default:
		handler.logger.Warn().
			Str("client_id", client.id).
			Str("message_type", string(msg.Type)).
			Msg("Unknown message type from client")
		return shared.ErrUnknownMessageType
	}
}

func (handler *WsHandler) handleSubscribe(client *WsClient, msg *ClientMessage) error {
	ctx := context.Background()

	deltaChan := handler.getDeltaChannel(client.viewerID())
	if deltaChan == nil {
		return shared.ErrEventChannelNotFound
	}

	if err := handler.dispatcher.Subscribe(ctx, *msg.SessionID, client.viewerID(), deltaChan); err != nil {
		handler.logger.Error().Err(err).
			Str("client_id", client.id).
			Str("session_id", msg.SessionID.String()).
			Msg("Failed to subscribe to session")
		return err
	}
	handler.trackSubscription(client.viewerID(), *msg.SessionID)

	// Send a snapshot immediately so a (re)connecting viewer does not depend
	// on delta replay.
	snap, err := handler.engine.GetSnapshot(ctx, *msg.SessionID)
	if err != nil {
		return client.Send(NewErrorMessage(err.Error(), msg.SessionID))
	}

	handler.logger.Info().
		Str("client_id", client.id).
		Str("session_id", msg.SessionID.String()).
		Msg("Client subscribed to session")
	return client.Send(newSnapshotMessage(snap))
}

func (handler *WsHandler) handleUnsubscribe(client *WsClient, msg *ClientMessage) error {
	ctx := context.Background()

	if err := handler.dispatcher.Unsubscribe(ctx, *msg.SessionID, client.viewerID()); err != nil {
		return err
	}
	handler.untrackSubscription(client.viewerID(), *msg.SessionID)

	response := NewServerMessage(MessageTypeStatusChanged)
	response.SessionID = msg.SessionID
	response.Data["status"] = "unsubscribed"

	return client.Send(response)
}

func (handler *WsHandler) handleJoinSession(client *WsClient, msg *ClientMessage) error {
	ctx := context.Background()

	displayName, _ := msg.Data["display_name"].(string)
	verified, _ := msg.Data["verified"].(bool)

	pt, err := handler.engine.JoinSession(ctx, inbound.JoinSessionRequest{
		SessionID:   *msg.SessionID,
		Participant: client.userID,
		DisplayName: displayName,
		Verified:    verified,
	})
	if err != nil {
		return client.Send(NewErrorMessage(err.Error(), msg.SessionID))
	}

	response := NewServerMessage(MessageTypeJoined)
	response.SessionID = msg.SessionID
	response.Data["participant_id"] = pt.ID.String()
	response.Data["display_name"] = pt.DisplayName
	response.Data["verified"] = pt.Verified

	return client.Send(response)
}

func (handler *WsHandler) handlePlaceBid(client *WsClient, msg *ClientMessage) error {
	amount, ok := msg.Data["amount"].(float64)
	if !ok {
		return shared.ErrInvalidAmount
	}
	idempotencyKey, _ := msg.Data["idempotency_key"].(string)

	ctx := context.Background()

	accepted, err := handler.engine.SubmitBid(ctx, inbound.SubmitBidRequest{
		SessionID:      *msg.SessionID,
		BidderID:       client.userID,
		Amount:         int64(amount),
		IdempotencyKey: idempotencyKey,
	})
	if err != nil {
		if kind, ok := shared.RejectionKind(err); ok {
			return client.Send(NewRejectionMessage(*msg.SessionID, kind, err.Error()))
		}
		return client.Send(NewErrorMessage(err.Error(), msg.SessionID))
	}

	handler.logger.Info().
		Str("bid_id", accepted.ID.String()).
		Str("session_id", msg.SessionID.String()).
		Str("user_id", client.userID.String()).
		Int64("amount", accepted.Amount).
		Msg("Bid placed")

	// acceptance reaches the client through the broadcast delta
	return nil
}

func (handler *WsHandler) handleGetSnapshot(client *WsClient, msg *ClientMessage) error {
	ctx := context.Background()

	snap, err := handler.engine.GetSnapshot(ctx, *msg.SessionID)
	if err != nil {
		return client.Send(NewErrorMessage(err.Error(), msg.SessionID))
	}

	return client.Send(newSnapshotMessage(snap))
}

func (handler *WsHandler) handleOpenSession(client *WsClient, msg *ClientMessage) error {
	ctx := context.Background()

	listingIDStr, ok := msg.Data["listing_id"].(string)
	if !ok {
		return shared.ErrListingIDRequired
	}
	listingID, err := uuid.Parse(listingIDStr)
	if err != nil {
		return shared.ErrInvalidListingID
	}

	cfg, err := sessionConfigFromData(msg.Data)
	if err != nil {
		return client.Send(NewErrorMessage(err.Error(), nil))
	}

	sess, err := handler.engine.OpenSession(ctx, inbound.OpenSessionRequest{
		ListingID: listingID,
		Config:    cfg,
	})
	if err != nil {
		if kind, ok := shared.RejectionKind(err); ok {
			return client.Send(NewRejectionMessage(uuid.Nil, kind, err.Error()))
		}
		return client.Send(NewErrorMessage(err.Error(), nil))
	}

	response := NewServerMessage(MessageTypeSessionOpened)
	response.SessionID = &sess.ID
	response.Data["listing_id"] = sess.ListingID.String()
	response.Data["status"] = string(sess.Status)
	response.Data["starting_price"] = sess.Config.StartingPrice
	response.Data["end_time"] = sess.Config.EndTime.Format(time.RFC3339)

	handler.logger.Info().
		Str("session_id", sess.ID.String()).
		Str("user_id", client.userID.String()).
		Msg("Session opened")
	return client.Send(response)
}

func (handler *WsHandler) handleCloseSession(client *WsClient, msg *ClientMessage) error {
	ctx := context.Background()

	result, err := handler.engine.CloseSession(ctx, *msg.SessionID)
	if err != nil {
		if kind, ok := shared.RejectionKind(err); ok {
			return client.Send(NewRejectionMessage(*msg.SessionID, kind, err.Error()))
		}
		return client.Send(NewErrorMessage(err.Error(), msg.SessionID))
	}

	response := NewServerMessage(MessageTypeSessionClosed)
	response.SessionID = msg.SessionID
	response.Data["status"] = result.Status
	response.Data["final_seq"] = result.FinalSeq
	if result.WinnerID != nil {
		response.Data["winner_id"] = result.WinnerID.String()
		response.Data["final_price"] = *result.FinalPrice
	}

	return client.Send(response)
}

func sessionConfigFromData(data map[string]interface{}) (cfg session.Config, err error) {
	startingPrice, _ := data["starting_price"].(float64)
	cfg.StartingPrice = int64(startingPrice)

	if marketPrice, ok := data["market_price"].(float64); ok {
		cfg.MarketPrice = int64(marketPrice)
	}
	if minIncrement, ok := data["min_increment"].(float64); ok {
		cfg.MinIncrement = int64(minIncrement)
	}

	if startTimeStr, ok := data["start_time"].(string); ok {
		cfg.StartTime, err = time.Parse(time.RFC3339, startTimeStr)
		if err != nil {
			return cfg, errors.New("invalid start_time format")
		}
	}

	endTimeStr, ok := data["end_time"].(string)
	if !ok {
		return cfg, shared.ErrInvalidEndTime
	}
	cfg.EndTime, err = time.Parse(time.RFC3339, endTimeStr)
	if err != nil {
		return cfg, errors.New("invalid end_time format")
	}

	return cfg, nil
}

func newSnapshotMessage(snap *inbound.Snapshot) *ServerMessage {
	msg := NewServerMessage(MessageTypeSnapshot)
	msg.SessionID = &snap.SessionID

	msg.Data["listing_id"] = snap.ListingID.String()
	msg.Data["status"] = string(snap.Status)
	msg.Data["starting_price"] = snap.StartingPrice
	msg.Data["market_price"] = snap.MarketPrice
	msg.Data["min_increment"] = snap.MinIncrement
	msg.Data["current_price"] = snap.CurrentPrice
	msg.Data["bid_count"] = snap.BidCount
	msg.Data["remaining_ms"] = snap.RemainingMs
	msg.Data["end_time"] = snap.EndTime.Format(time.RFC3339)
	msg.Data["extensions_used"] = snap.ExtensionsUsed
	msg.Data["participants"] = snap.Participants
	msg.Data["recent_bids"] = snap.RecentBids
	if snap.LeaderID != nil {
		msg.Data["leader_id"] = snap.LeaderID.String()
		msg.Data["leader_name"] = snap.LeaderName
	}

	return msg
}

// GetConnectedClients returns the number of connected clients
func (handler *WsHandler) GetConnectedClients() int {
	handler.clientsMu.RLock()
	defer handler.clientsMu.RUnlock()
	return len(handler.clients)
}
