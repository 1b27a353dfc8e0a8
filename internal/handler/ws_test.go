package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"

	"github.com/studyverse/chat-platform/internal/identity"
	"github.com/studyverse/chat-platform/internal/model"
	"github.com/studyverse/chat-platform/internal/notify"
	"github.com/studyverse/chat-platform/internal/realtime"
	"github.com/studyverse/chat-platform/internal/service"
	"github.com/studyverse/chat-platform/internal/store"
	"github.com/studyverse/chat-platform/pkg/logger"
)

type wsFixture struct {
	apiFixture
	msgs   *service.MessageService
	server *httptest.Server
	convID string
}

func newWSFixture(t *testing.T) *wsFixture {
	t.Helper()
	ctx := context.Background()
	m := store.NewMemory()
	log := logger.NewNop()

	convSvc := service.NewConversationService(m, m, log)
	msgSvc := service.NewMessageService(m, m, m, notify.NopNotifier{}, log)
	resolver := identity.NewJWTResolver(testSecret, m)
	hub := realtime.NewHub()

	wsHandler := NewWSHandler(resolver, hub, nil, convSvc, msgSvc,
		"", 10*time.Second, 5*time.Second, log)

	r := chi.NewRouter()
	r.Get("/ws", wsHandler.Serve)

	f := &wsFixture{
		apiFixture: apiFixture{store: m, router: r},
		msgs:       msgSvc,
		server:     httptest.NewServer(r),
	}
	t.Cleanup(f.server.Close)

	alice := f.seedUser(t, "fb|alice", "alice", "alice@example.com")
	f.seedUser(t, "fb|bob", "bob", "bob@example.com")
	conv, err := convSvc.CreateDirect(ctx, model.Identity{
		InternalID: alice.ID, ExternalID: alice.ExternalID, DisplayName: alice.Username,
	}, "fb|bob")
	if err != nil {
		t.Fatalf("create conversation: %v", err)
	}
	f.convID = conv.ID
	return f
}

func (f *wsFixture) wsURL(token string) string {
	url := "ws" + strings.TrimPrefix(f.server.URL, "http") + "/ws"
	if token != "" {
		url += "?token=" + token
	}
	return url
}

func (f *wsFixture) dial(t *testing.T, token string) *websocket.Conn {
	t.Helper()
	conn, _, err := websocket.DefaultDialer.Dial(f.wsURL(token), nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

func TestWSHandshakeRejectsMissingToken(t *testing.T) {
	f := newWSFixture(t)

	conn, resp, err := websocket.DefaultDialer.Dial(f.wsURL(""), nil)
	if err == nil {
		conn.Close()
		t.Fatal("expected handshake failure without token")
	}
	if resp == nil || resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %+v", resp)
	}
}

func TestWSHandshakeRejectsInvalidToken(t *testing.T) {
	f := newWSFixture(t)

	conn, resp, err := websocket.DefaultDialer.Dial(f.wsURL("bogus-token"), nil)
	if err == nil {
		conn.Close()
		t.Fatal("expected handshake failure with invalid token")
	}
	if resp == nil || resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %+v", resp)
	}

	// A connection that never authenticated left no trace.
	msgs, listErr := f.msgs.List(context.Background(), f.convID)
	if listErr != nil {
		t.Fatalf("list: %v", listErr)
	}
	if len(msgs) != 0 {
		t.Fatalf("expected no messages, got %d", len(msgs))
	}
}

func TestWSDeliversFrames(t *testing.T) {
	f := newWSFixture(t)

	alice := f.dial(t, f.token(t, "fb|alice"))
	bob := f.dial(t, f.token(t, "fb|bob"))

	join := model.InboundFrame{Type: model.FrameJoin, ConversationID: f.convID}
	if err := alice.WriteJSON(join); err != nil {
		t.Fatalf("alice join: %v", err)
	}
	if err := bob.WriteJSON(join); err != nil {
		t.Fatalf("bob join: %v", err)
	}

	// Joins are processed by each connection's read loop; typing relays
	// only once both memberships are live, so repeat until one arrives.
	stop := make(chan struct{})
	defer close(stop)
	go func() {
		ticker := time.NewTicker(20 * time.Millisecond)
		defer ticker.Stop()
		for {
			select {
			case <-stop:
				return
			case <-ticker.C:
				_ = alice.WriteJSON(model.InboundFrame{
					Type:           model.FrameTyping,
					ConversationID: f.convID,
					IsTyping:       true,
				})
			}
		}
	}()

	_ = bob.SetReadDeadline(time.Now().Add(3 * time.Second))
	var typing model.TypingFrame
	if err := bob.ReadJSON(&typing); err != nil {
		t.Fatalf("waiting for typing relay: %v", err)
	}
	if typing.Type != model.FrameTyping || typing.UserID != "fb|alice" {
		t.Fatalf("unexpected typing frame: %+v", typing)
	}

	if err := alice.WriteJSON(model.InboundFrame{
		Type:           model.FrameSend,
		ConversationID: f.convID,
		ReceiverID:     "fb|bob",
		Text:           "over the wire",
		CorrelationID:  "tmp-ws-1",
	}); err != nil {
		t.Fatalf("alice send: %v", err)
	}

	// Skip any typing frames still queued ahead of the delivery.
	var delivered model.MessageDeliveredFrame
	for {
		_, raw, err := bob.ReadMessage()
		if err != nil {
			t.Fatalf("waiting for delivery: %v", err)
		}
		var envelope struct {
			Type string `json:"type"`
		}
		if err := json.Unmarshal(raw, &envelope); err != nil {
			t.Fatalf("decode frame: %v", err)
		}
		if envelope.Type != model.FrameMessageDelivered {
			continue
		}
		if err := json.Unmarshal(raw, &delivered); err != nil {
			t.Fatalf("decode delivery: %v", err)
		}
		break
	}

	if delivered.CorrelationID != "tmp-ws-1" {
		t.Fatalf("correlation id not echoed: %q", delivered.CorrelationID)
	}
	if delivered.Message.Text != "over the wire" || delivered.Message.Sender.Username != "alice" {
		t.Fatalf("unexpected message: %+v", delivered.Message)
	}

	msgs, err := f.msgs.List(context.Background(), f.convID)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(msgs) != 1 || msgs[0].ID != delivered.Message.ID {
		t.Fatalf("expected the delivered message persisted, got %+v", msgs)
	}
}
