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
	"github.com/golang-jwt/jwt/v5"

	"github.com/studyverse/chat-platform/internal/identity"
	"github.com/studyverse/chat-platform/internal/middleware"
	"github.com/studyverse/chat-platform/internal/model"
	"github.com/studyverse/chat-platform/internal/notify"
	"github.com/studyverse/chat-platform/internal/service"
	"github.com/studyverse/chat-platform/internal/store"
	"github.com/studyverse/chat-platform/pkg/logger"
)

const testSecret = "test-secret"

type apiFixture struct {
	store  *store.Memory
	router chi.Router
}

func newAPIFixture(t *testing.T) *apiFixture {
	t.Helper()
	m := store.NewMemory()
	log := logger.NewNop()

	convSvc := service.NewConversationService(m, m, log)
	msgSvc := service.NewMessageService(m, m, m, notify.NopNotifier{}, log)
	resolver := identity.NewJWTResolver(testSecret, m)

	convHandler := NewConversationHandler(convSvc, log)
	msgHandler := NewMessageHandler(msgSvc, convSvc, log)

	r := chi.NewRouter()
	r.Route("/api/v1/chats", func(r chi.Router) {
		r.Use(middleware.Auth(resolver))
		r.Get("/", convHandler.List)
		r.Post("/", convHandler.Create)
		r.Route("/{id}", func(r chi.Router) {
			r.Delete("/", convHandler.Delete)
			r.Get("/messages", msgHandler.List)
			r.Post("/messages", msgHandler.Send)
			r.Put("/messages/read", msgHandler.MarkRead)
		})
	})

	return &apiFixture{store: m, router: r}
}

func (f *apiFixture) seedUser(t *testing.T, externalID, username, email string) *model.User {
	t.Helper()
	u := &model.User{ExternalID: externalID, Username: username, Email: email}
	if err := f.store.Create(context.Background(), u); err != nil {
		t.Fatalf("create user %s: %v", externalID, err)
	}
	return u
}

func (f *apiFixture) token(t *testing.T, externalID string) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, identity.Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
		UserID: externalID,
	})
	signed, err := token.SignedString([]byte(testSecret))
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	return signed
}

func (f *apiFixture) do(t *testing.T, method, path, token, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, req)
	return rec
}

func TestAuthRequired(t *testing.T) {
	f := newAPIFixture(t)

	rec := f.do(t, http.MethodGet, "/api/v1/chats", "", "")
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rec.Code)
	}

	rec = f.do(t, http.MethodGet, "/api/v1/chats", "bogus-token", "")
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 for invalid token, got %d", rec.Code)
	}
}

func TestCreateAndListConversations(t *testing.T) {
	f := newAPIFixture(t)
	f.seedUser(t, "fb|alice", "alice", "alice@example.com")
	f.seedUser(t, "fb|bob", "bob", "bob@example.com")
	aliceToken := f.token(t, "fb|alice")

	rec := f.do(t, http.MethodPost, "/api/v1/chats", aliceToken, `{"recipient_id":"fb|bob"}`)
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rec.Code, rec.Body.String())
	}
	var created model.ConversationSummary
	if err := json.Unmarshal(rec.Body.Bytes(), &created); err != nil {
		t.Fatalf("decode create response: %v", err)
	}
	if created.Name == nil || *created.Name != "bob" {
		t.Fatalf("expected counterpart name bob, got %v", created.Name)
	}

	// Creating again returns the same conversation.
	rec = f.do(t, http.MethodPost, "/api/v1/chats", aliceToken, `{"recipient_id":"fb|bob"}`)
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201 on repeat, got %d", rec.Code)
	}
	var repeat model.ConversationSummary
	if err := json.Unmarshal(rec.Body.Bytes(), &repeat); err != nil {
		t.Fatalf("decode repeat response: %v", err)
	}
	if repeat.ID != created.ID {
		t.Fatalf("expected same conversation, got %s and %s", created.ID, repeat.ID)
	}

	rec = f.do(t, http.MethodGet, "/api/v1/chats", aliceToken, "")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var list []model.ConversationSummary
	if err := json.Unmarshal(rec.Body.Bytes(), &list); err != nil {
		t.Fatalf("decode list: %v", err)
	}
	if len(list) != 1 || list[0].ID != created.ID {
		t.Fatalf("expected the one conversation, got %+v", list)
	}
}

func TestCreateConversationValidation(t *testing.T) {
	f := newAPIFixture(t)
	f.seedUser(t, "fb|alice", "alice", "alice@example.com")
	aliceToken := f.token(t, "fb|alice")

	rec := f.do(t, http.MethodPost, "/api/v1/chats", aliceToken, `{"recipient_id":"fb|alice"}`)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("self chat: expected 400, got %d", rec.Code)
	}
	rec = f.do(t, http.MethodPost, "/api/v1/chats", aliceToken, `{"recipient_id":"fb|nobody"}`)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("unknown recipient: expected 400, got %d", rec.Code)
	}
	rec = f.do(t, http.MethodPost, "/api/v1/chats", aliceToken, `{`)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("bad body: expected 400, got %d", rec.Code)
	}
}

func TestMessageFlow(t *testing.T) {
	f := newAPIFixture(t)
	f.seedUser(t, "fb|alice", "alice", "alice@example.com")
	f.seedUser(t, "fb|bob", "bob", "bob@example.com")
	aliceToken := f.token(t, "fb|alice")
	bobToken := f.token(t, "fb|bob")

	rec := f.do(t, http.MethodPost, "/api/v1/chats", aliceToken, `{"recipient_id":"fb|bob"}`)
	var conv model.ConversationSummary
	if err := json.Unmarshal(rec.Body.Bytes(), &conv); err != nil {
		t.Fatalf("decode conversation: %v", err)
	}

	rec = f.do(t, http.MethodPost, "/api/v1/chats/"+conv.ID+"/messages", aliceToken,
		`{"content":"quiz tomorrow","receiver_id":"fb|bob"}`)
	if rec.Code != http.StatusCreated {
		t.Fatalf("send: expected 201, got %d: %s", rec.Code, rec.Body.String())
	}
	var msg model.Message
	if err := json.Unmarshal(rec.Body.Bytes(), &msg); err != nil {
		t.Fatalf("decode message: %v", err)
	}

	rec = f.do(t, http.MethodGet, "/api/v1/chats/"+conv.ID+"/messages", bobToken, "")
	if rec.Code != http.StatusOK {
		t.Fatalf("list: expected 200, got %d", rec.Code)
	}
	var msgs []model.Message
	if err := json.Unmarshal(rec.Body.Bytes(), &msgs); err != nil {
		t.Fatalf("decode messages: %v", err)
	}
	if len(msgs) != 1 || msgs[0].ID != msg.ID {
		t.Fatalf("expected the sent message, got %+v", msgs)
	}

	rec = f.do(t, http.MethodPut, "/api/v1/chats/"+conv.ID+"/messages/read", bobToken,
		`{"message_ids":["`+msg.ID+`"]}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("mark read: expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	var marked model.MarkReadResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &marked); err != nil {
		t.Fatalf("decode mark read: %v", err)
	}
	if marked.ModifiedCount != 1 {
		t.Fatalf("expected 1 modified, got %d", marked.ModifiedCount)
	}

	// Re-acknowledging is a no-op, not an error.
	rec = f.do(t, http.MethodPut, "/api/v1/chats/"+conv.ID+"/messages/read", bobToken,
		`{"message_ids":["`+msg.ID+`"]}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("repeat mark read: expected 200, got %d", rec.Code)
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &marked); err != nil {
		t.Fatalf("decode repeat mark read: %v", err)
	}
	if marked.ModifiedCount != 0 {
		t.Fatalf("expected 0 modified on repeat, got %d", marked.ModifiedCount)
	}
}

func TestMessageAccessGuard(t *testing.T) {
	f := newAPIFixture(t)
	f.seedUser(t, "fb|alice", "alice", "alice@example.com")
	f.seedUser(t, "fb|bob", "bob", "bob@example.com")
	f.seedUser(t, "fb|carol", "carol", "carol@example.com")
	aliceToken := f.token(t, "fb|alice")
	carolToken := f.token(t, "fb|carol")

	rec := f.do(t, http.MethodPost, "/api/v1/chats", aliceToken, `{"recipient_id":"fb|bob"}`)
	var conv model.ConversationSummary
	if err := json.Unmarshal(rec.Body.Bytes(), &conv); err != nil {
		t.Fatalf("decode conversation: %v", err)
	}

	rec = f.do(t, http.MethodGet, "/api/v1/chats/"+conv.ID+"/messages", carolToken, "")
	if rec.Code != http.StatusForbidden {
		t.Fatalf("outsider list: expected 403, got %d", rec.Code)
	}
	rec = f.do(t, http.MethodPost, "/api/v1/chats/"+conv.ID+"/messages", carolToken,
		`{"content":"hi","receiver_id":"fb|bob"}`)
	if rec.Code != http.StatusForbidden {
		t.Fatalf("outsider send: expected 403, got %d", rec.Code)
	}
	rec = f.do(t, http.MethodDelete, "/api/v1/chats/"+conv.ID, carolToken, "")
	if rec.Code != http.StatusForbidden {
		t.Fatalf("outsider delete: expected 403, got %d", rec.Code)
	}

	// Malformed conversation id fails validation before the store lookup.
	rec = f.do(t, http.MethodGet, "/api/v1/chats/not-a-uuid/messages", aliceToken, "")
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("bad conversation id: expected 400, got %d", rec.Code)
	}

	rec = f.do(t, http.MethodDelete, "/api/v1/chats/"+conv.ID, aliceToken, "")
	if rec.Code != http.StatusOK {
		t.Fatalf("participant delete: expected 200, got %d", rec.Code)
	}
	rec = f.do(t, http.MethodDelete, "/api/v1/chats/"+conv.ID, aliceToken, "")
	if rec.Code != http.StatusNotFound {
		t.Fatalf("deleted conversation: expected 404, got %d", rec.Code)
	}
}
