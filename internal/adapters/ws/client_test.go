package ws

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
)

// dialTestClient runs a loopback WebSocket server with the given handler and
// returns a WsClient wrapping the dialed connection.
func dialTestClient(t *testing.T, serve func(*websocket.Conn)) *WsClient {
	t.Helper()

	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		serve(conn)
	}))
	t.Cleanup(srv.Close)

	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http"), nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}

	return NewClient(WsClientParams{
		UserID: uuid.New(),
		Conn:   conn,
		Logger: zerolog.Nop(),
	})
}

func TestStopDuringConcurrentSendsDoesNotPanic(t *testing.T) {
	client := dialTestClient(t, func(conn *websocket.Conn) {
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	})

	// no sender goroutine is started, so the queue fills up and late sends
	// block in their fallback select while Stop races them
	var wg sync.WaitGroup
	for i := 0; i < 150; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			client.Send(NewServerMessage(MessageTypePong))
		}()
	}
	client.Stop()
	wg.Wait()

	if err := client.Send(NewServerMessage(MessageTypePong)); err == nil {
		t.Error("send after stop succeeded, want error")
	}

	// stopping twice is fine
	client.Stop()
}

func TestMalformedMessageGetsErrorReply(t *testing.T) {
	received := make(chan ServerMessage, 1)
	client := dialTestClient(t, func(conn *websocket.Conn) {
		if err := conn.WriteMessage(websocket.TextMessage, []byte("not json")); err != nil {
			return
		}
		var msg ServerMessage
		if err := conn.ReadJSON(&msg); err != nil {
			return
		}
		received <- msg
	})

	client.Start()
	defer client.Stop()

	// the error reply travels through the send queue and reaches the peer
	select {
	case msg := <-received:
		if msg.Type != MessageTypeError {
			t.Errorf("reply type = %s, want %s", msg.Type, MessageTypeError)
		}
		if msg.Error == nil {
			t.Error("reply carries no error detail")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("no error reply received")
	}
}
