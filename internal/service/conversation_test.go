package service

import (
	"context"
	"errors"
	"testing"

	"github.com/studyverse/chat-platform/internal/model"
	"github.com/studyverse/chat-platform/internal/store"
	"github.com/studyverse/chat-platform/pkg/logger"
)

func seedIdentity(t *testing.T, m *store.Memory, externalID, username, email string) model.Identity {
	t.Helper()
	u := &model.User{ExternalID: externalID, Username: username, Email: email}
	if err := m.Create(context.Background(), u); err != nil {
		t.Fatalf("create user %s: %v", externalID, err)
	}
	return model.Identity{
		InternalID:  u.ID,
		ExternalID:  u.ExternalID,
		DisplayName: u.Username,
		Email:       u.Email,
	}
}

func TestCreateDirectRejectsSelf(t *testing.T) {
	ctx := context.Background()
	m := store.NewMemory()
	svc := NewConversationService(m, m, logger.NewNop())
	alice := seedIdentity(t, m, "fb|alice", "alice", "alice@example.com")

	if _, err := svc.CreateDirect(ctx, alice, "fb|alice"); !errors.Is(err, store.ErrValidation) {
		t.Fatalf("self chat: expected ErrValidation, got %v", err)
	}
	// External ids differing only in case are the same user.
	if _, err := svc.CreateDirect(ctx, alice, "FB|Alice"); !errors.Is(err, store.ErrValidation) {
		t.Fatalf("case-variant self chat: expected ErrValidation, got %v", err)
	}
	if _, err := svc.CreateDirect(ctx, alice, ""); !errors.Is(err, store.ErrValidation) {
		t.Fatalf("empty recipient: expected ErrValidation, got %v", err)
	}
}

func TestCreateDirectUnknownRecipient(t *testing.T) {
	ctx := context.Background()
	m := store.NewMemory()
	svc := NewConversationService(m, m, logger.NewNop())
	alice := seedIdentity(t, m, "fb|alice", "alice", "alice@example.com")

	if _, err := svc.CreateDirect(ctx, alice, "fb|nobody"); !errors.Is(err, store.ErrValidation) {
		t.Fatalf("unknown recipient: expected ErrValidation, got %v", err)
	}
}

func TestCreateDirectIdempotent(t *testing.T) {
	ctx := context.Background()
	m := store.NewMemory()
	svc := NewConversationService(m, m, logger.NewNop())
	alice := seedIdentity(t, m, "fb|alice", "alice", "alice@example.com")
	bob := seedIdentity(t, m, "fb|bob", "bob", "bob@example.com")

	first, err := svc.CreateDirect(ctx, alice, "fb|bob")
	if err != nil {
		t.Fatalf("first create: %v", err)
	}
	if first.Name == nil || *first.Name != "bob" {
		t.Fatalf("expected counterpart name bob, got %v", first.Name)
	}

	// Same pair from the other side resolves to the same conversation.
	second, err := svc.CreateDirect(ctx, bob, "fb|alice")
	if err != nil {
		t.Fatalf("second create: %v", err)
	}
	if first.ID != second.ID {
		t.Fatalf("expected same conversation, got %s and %s", first.ID, second.ID)
	}
	if second.Name == nil || *second.Name != "alice" {
		t.Fatalf("expected counterpart name alice, got %v", second.Name)
	}
}

func TestIsParticipant(t *testing.T) {
	ctx := context.Background()
	m := store.NewMemory()
	svc := NewConversationService(m, m, logger.NewNop())
	alice := seedIdentity(t, m, "fb|alice", "alice", "alice@example.com")
	seedIdentity(t, m, "fb|bob", "bob", "bob@example.com")
	carol := seedIdentity(t, m, "fb|carol", "carol", "carol@example.com")

	conv, err := svc.CreateDirect(ctx, alice, "fb|bob")
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	ok, err := svc.IsParticipant(ctx, conv.ID, alice.InternalID)
	if err != nil || !ok {
		t.Fatalf("alice should be a participant, ok=%v err=%v", ok, err)
	}
	ok, err = svc.IsParticipant(ctx, conv.ID, carol.InternalID)
	if err != nil || ok {
		t.Fatalf("carol should not be a participant, ok=%v err=%v", ok, err)
	}
	if _, err := svc.IsParticipant(ctx, "missing", alice.InternalID); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("missing conversation: expected ErrNotFound, got %v", err)
	}
}

func TestDeleteRequiresParticipation(t *testing.T) {
	ctx := context.Background()
	m := store.NewMemory()
	svc := NewConversationService(m, m, logger.NewNop())
	alice := seedIdentity(t, m, "fb|alice", "alice", "alice@example.com")
	seedIdentity(t, m, "fb|bob", "bob", "bob@example.com")
	carol := seedIdentity(t, m, "fb|carol", "carol", "carol@example.com")

	conv, err := svc.CreateDirect(ctx, alice, "fb|bob")
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	if err := svc.Delete(ctx, conv.ID, carol); !errors.Is(err, ErrForbidden) {
		t.Fatalf("outsider delete: expected ErrForbidden, got %v", err)
	}
	if err := svc.Delete(ctx, conv.ID, alice); err != nil {
		t.Fatalf("participant delete: %v", err)
	}
	if err := svc.Delete(ctx, conv.ID, alice); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("double delete: expected ErrNotFound, got %v", err)
	}
}
