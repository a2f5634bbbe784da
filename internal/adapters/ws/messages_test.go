package ws

import (
	"encoding/json"
	"errors"
	"testing"

	"livein-auction-engine/internal/domain/shared"
	"livein-auction-engine/internal/ports/outbound"

	"github.com/google/uuid"
)

func TestParseClientMessage(t *testing.T) {
	sessionID := uuid.New()
	raw := []byte(`{"type":"place_bid","session_id":"` + sessionID.String() + `","data":{"amount":452}}`)

	msg, err := ParseClientMessage(raw)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if msg.Type != MessageTypePlaceBid {
		t.Errorf("type = %s, want place_bid", msg.Type)
	}
	if msg.SessionID == nil || *msg.SessionID != sessionID {
		t.Errorf("session_id = %v, want %s", msg.SessionID, sessionID)
	}
	if amount := msg.Data["amount"].(float64); amount != 452 {
		t.Errorf("amount = %v, want 452", amount)
	}
}

func TestParseClientMessageRequiresType(t *testing.T) {
	_, err := ParseClientMessage([]byte(`{"data":{}}`))
	if !errors.Is(err, shared.ErrMessageTypeRequired) {
		t.Errorf("error = %v, want ErrMessageTypeRequired", err)
	}

	if _, err := ParseClientMessage([]byte(`not json`)); err == nil {
		t.Error("expected error for malformed JSON")
	}
}

func TestClientMessageValidate(t *testing.T) {
	sessionID := uuid.New()

	tests := []struct {
		name    string
		msg     ClientMessage
		wantErr error
	}{
		{
			name: "valid bid",
			msg: ClientMessage{
				Type:      MessageTypePlaceBid,
				SessionID: &sessionID,
				Data:      map[string]interface{}{"amount": float64(452)},
			},
		},
		{
			name:    "bid without session",
			msg:     ClientMessage{Type: MessageTypePlaceBid, Data: map[string]interface{}{"amount": float64(452)}},
			wantErr: shared.ErrSessionIDRequired,
		},
		{
			name:    "bid without amount",
			msg:     ClientMessage{Type: MessageTypePlaceBid, SessionID: &sessionID, Data: map[string]interface{}{}},
			wantErr: shared.ErrInvalidAmount,
		},
		{
			name:    "bid with negative amount",
			msg:     ClientMessage{Type: MessageTypePlaceBid, SessionID: &sessionID, Data: map[string]interface{}{"amount": float64(-5)}},
			wantErr: shared.ErrInvalidAmount,
		},
		{
			name: "valid subscribe",
			msg:  ClientMessage{Type: MessageTypeSubscribe, SessionID: &sessionID},
		},
		{
			name:    "subscribe without session",
			msg:     ClientMessage{Type: MessageTypeSubscribe},
			wantErr: shared.ErrSessionIDRequired,
		},
		{
			name: "valid open session",
			msg: ClientMessage{
				Type: MessageTypeOpenSession,
				Data: map[string]interface{}{
					"listing_id":     uuid.New().String(),
					"starting_price": float64(450),
					"end_time":       "2026-09-01T12:00:00Z",
				},
			},
		},
		{
			name:    "open session without listing",
			msg:     ClientMessage{Type: MessageTypeOpenSession, Data: map[string]interface{}{"starting_price": float64(450)}},
			wantErr: shared.ErrListingIDRequired,
		},
		{
			name: "open session without end time",
			msg: ClientMessage{
				Type: MessageTypeOpenSession,
				Data: map[string]interface{}{"listing_id": uuid.New().String(), "starting_price": float64(450)},
			},
			wantErr: shared.ErrInvalidEndTime,
		},
		{
			name: "ping needs nothing",
			msg:  ClientMessage{Type: MessageTypePing},
		},
		{
			name:    "unknown type",
			msg:     ClientMessage{Type: "teleport"},
			wantErr: shared.ErrUnknownMessageType,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.msg.Validate()
			if tt.wantErr == nil {
				if err != nil {
					t.Errorf("unexpected error: %v", err)
				}
				return
			}
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("error = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestNewDeltaMessageMapsTypes(t *testing.T) {
	sessionID := uuid.New()

	tests := []struct {
		deltaType outbound.DeltaType
		want      MessageType
	}{
		{outbound.DeltaBidAccepted, MessageTypeBidAccepted},
		{outbound.DeltaTimeExtended, MessageTypeTimeExtended},
		{outbound.DeltaStatusChanged, MessageTypeStatusChanged},
		{outbound.DeltaAuctionClosed, MessageTypeAuctionClosed},
		{outbound.DeltaNudge, MessageTypeNudge},
	}

	for _, tt := range tests {
		delta := outbound.StateDelta{
			Type:      tt.deltaType,
			SessionID: sessionID,
			Seq:       7,
			Data:      map[string]interface{}{"amount": int64(452)},
			Timestamp: 1700000000,
		}
		msg := NewDeltaMessage(delta)
		if msg.Type != tt.want {
			t.Errorf("delta %s mapped to %s, want %s", tt.deltaType, msg.Type, tt.want)
		}
		if msg.SessionID == nil || *msg.SessionID != sessionID {
			t.Errorf("delta %s: session_id = %v, want %s", tt.deltaType, msg.SessionID, sessionID)
		}
		if msg.Timestamp != 1700000000 {
			t.Errorf("delta %s: timestamp = %d", tt.deltaType, msg.Timestamp)
		}
	}
}

func TestNewRejectionMessage(t *testing.T) {
	sessionID := uuid.New()
	msg := NewRejectionMessage(sessionID, shared.RejectionStalePrice, "bid below current price")

	if msg.Type != MessageTypeBidRejected {
		t.Errorf("type = %s, want bid_rejected", msg.Type)
	}
	if msg.Data["kind"] != string(shared.RejectionStalePrice) {
		t.Errorf("kind = %v, want stale_price", msg.Data["kind"])
	}

	// the message round-trips as JSON for the wire
	raw, err := json.Marshal(msg)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var decoded map[string]interface{}
	if err := json.Unmarshal(raw, &decoded); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if decoded["type"] != "bid_rejected" {
		t.Errorf("wire type = %v", decoded["type"])
	}
}

func TestRejectionKindCoversTaxonomy(t *testing.T) {
	tests := []struct {
		err  error
		want shared.Rejection
	}{
		{shared.ErrStalePrice, shared.RejectionStalePrice},
		{shared.ErrSessionNotLive, shared.RejectionSessionNotLive},
		{shared.ErrNotVerified, shared.RejectionNotVerified},
		{shared.ErrDuplicateSubmission, shared.RejectionDuplicateSubmission},
		{shared.ErrSessionAlreadyActive, shared.RejectionSessionAlreadyActive},
		{shared.ErrSessionNotFound, shared.RejectionSessionNotFound},
		{shared.ErrEngineUnavailable, shared.RejectionEngineUnavailable},
	}

	for _, tt := range tests {
		kind, ok := shared.RejectionKind(tt.err)
		if !ok || kind != tt.want {
			t.Errorf("RejectionKind(%v) = %s, %v; want %s", tt.err, kind, ok, tt.want)
		}
	}

	if _, ok := shared.RejectionKind(errors.New("disk on fire")); ok {
		t.Error("arbitrary error mapped to a rejection kind")
	}
}
