package ws

import (
	"encoding/json"
	"fmt"
	"time"

	"livein-auction-engine/internal/domain/shared"
	"livein-auction-engine/internal/ports/outbound"

	"github.com/google/uuid"
)

type MessageType string

const (
	// Client to Server message types
	MessageTypeSubscribe    MessageType = "subscribe"
	MessageTypeUnsubscribe  MessageType = "unsubscribe"
	MessageTypeJoinSession  MessageType = "join_session"
	MessageTypePlaceBid     MessageType = "place_bid"
	MessageTypeGetSnapshot  MessageType = "get_snapshot"
	MessageTypeOpenSession  MessageType = "open_session"
	MessageTypeCloseSession MessageType = "close_session"
	MessageTypePing         MessageType = "ping"

	// Server to Client message types
	MessageTypeBidAccepted   MessageType = "bid_accepted"
	MessageTypeBidRejected   MessageType = "bid_rejected"
	MessageTypeTimeExtended  MessageType = "time_extended"
	MessageTypeStatusChanged MessageType = "status_changed"
	MessageTypeAuctionClosed MessageType = "auction_closed"
	MessageTypeNudge         MessageType = "nudge"
	MessageTypeSnapshot      MessageType = "snapshot"
	MessageTypeSessionOpened MessageType = "session_opened"
	MessageTypeSessionClosed MessageType = "session_closed"
	MessageTypeJoined        MessageType = "joined"
	MessageTypeError         MessageType = "error"
	MessageTypePong          MessageType = "pong"
)

// ClientMessage represents a message sent from client to server
type ClientMessage struct {
	Type      MessageType            `json:"type"`
	SessionID *uuid.UUID             `json:"session_id,omitempty"`
	Data      map[string]interface{} `json:"data,omitempty"`
	Timestamp int64                  `json:"timestamp"`
}

// ServerMessage represents a message sent from server to client
type ServerMessage struct {
	Type      MessageType            `json:"type"`
	SessionID *uuid.UUID             `json:"session_id,omitempty"`
	Data      map[string]interface{} `json:"data,omitempty"`
	Error     *string                `json:"error,omitempty"`
	Timestamp int64                  `json:"timestamp"`
}

func NewServerMessage(msgType MessageType) *ServerMessage {
	return &ServerMessage{
		Type:      msgType,
		Data:      make(map[string]interface{}),
		Timestamp: time.Now().Unix(),
	}
}

func NewErrorMessage(err string, sessionID *uuid.UUID) *ServerMessage {
	return &ServerMessage{
		Type:      MessageTypeError,
		SessionID: sessionID,
		Error:     &err,
		Timestamp: time.Now().Unix(),
	}
}

// NewRejectionMessage creates a bid rejection message carrying the wire-level
// rejection kind.
func NewRejectionMessage(sessionID uuid.UUID, kind shared.Rejection, detail string) *ServerMessage {
	msg := NewServerMessage(MessageTypeBidRejected)
	msg.SessionID = &sessionID
	msg.Data["kind"] = string(kind)
	msg.Data["detail"] = detail
	return msg
}

// NewDeltaMessage converts a dispatched state delta into a server message.
func NewDeltaMessage(delta outbound.StateDelta) *ServerMessage {
	msg := &ServerMessage{
		SessionID: &delta.SessionID,
		Data:      delta.Data,
		Timestamp: delta.Timestamp,
	}

	switch delta.Type {
	case outbound.DeltaBidAccepted:
		msg.Type = MessageTypeBidAccepted
	case outbound.DeltaTimeExtended:
		msg.Type = MessageTypeTimeExtended
	case outbound.DeltaStatusChanged:
		msg.Type = MessageTypeStatusChanged
	case outbound.DeltaAuctionClosed:
		msg.Type = MessageTypeAuctionClosed
	case outbound.DeltaNudge:
		msg.Type = MessageTypeNudge
	default:
		msg.Type = MessageTypeStatusChanged
	}

	return msg
}

// ParseClientMessage parses a JSON message from client
func ParseClientMessage(data []byte) (*ClientMessage, error) {
	var msg ClientMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, fmt.Errorf("failed to parse client message: %w", err)
	}

	if msg.Type == "" {
		return nil, shared.ErrMessageTypeRequired
	}

	return &msg, nil
}

func (m *ClientMessage) validateSessionID() error {
	if m.SessionID == nil || *m.SessionID == uuid.Nil {
		return shared.ErrSessionIDRequired
	}
	return nil
}

// Validate validates a client message
func (m *ClientMessage) Validate() error {
	switch m.Type {
	case MessageTypeSubscribe, MessageTypeUnsubscribe, MessageTypeGetSnapshot, MessageTypeCloseSession:
		if err := m.validateSessionID(); err != nil {
			return err
		}

	case MessageTypeJoinSession:
		if err := m.validateSessionID(); err != nil {
			return err
		}

	case MessageTypePlaceBid:
		if err := m.validateSessionID(); err != nil {
			return err
		}
		amount, ok := m.Data["amount"].(float64)
		if !ok || amount <= 0 {
			return shared.ErrInvalidAmount
		}

	case MessageTypeOpenSession:
		if m.Data["listing_id"] == nil {
			return shared.ErrListingIDRequired
		}
		startingPrice, ok := m.Data["starting_price"].(float64)
		if !ok || startingPrice <= 0 {
			return shared.ErrInvalidStartingPrice
		}
		if m.Data["end_time"] == nil {
			return shared.ErrInvalidEndTime
		}

	case MessageTypePing:

	default:
		return shared.ErrUnknownMessageType
	}

	return nil
}
