package store

import (
	"context"
	"testing"

	"github.com/studyverse/chat-platform/internal/cache"
	"github.com/studyverse/chat-platform/internal/model"
)

// countingUsers counts pass-through reads so tests can observe cache hits.
type countingUsers struct {
	UserStore
	byExternal int
	byID       int
}

func (c *countingUsers) GetByExternalID(ctx context.Context, externalID string) (*model.User, error) {
	c.byExternal++
	return c.UserStore.GetByExternalID(ctx, externalID)
}

func (c *countingUsers) GetByID(ctx context.Context, id string) (*model.User, error) {
	c.byID++
	return c.UserStore.GetByID(ctx, id)
}

func TestCachedUsersReadThrough(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	u := seedUser(t, m, "fb|alice", "alice", "alice@example.com")

	counting := &countingUsers{UserStore: m}
	cached := NewCachedUsers(counting, cache.NewMemoryCache())

	for i := 0; i < 3; i++ {
		got, err := cached.GetByExternalID(ctx, "fb|alice")
		if err != nil {
			t.Fatalf("lookup %d: %v", i, err)
		}
		if got.ID != u.ID || got.Username != "alice" {
			t.Fatalf("lookup %d: unexpected user %+v", i, got)
		}
	}
	if counting.byExternal != 1 {
		t.Fatalf("expected 1 store read, got %d", counting.byExternal)
	}

	for i := 0; i < 2; i++ {
		if _, err := cached.GetByID(ctx, u.ID); err != nil {
			t.Fatalf("id lookup %d: %v", i, err)
		}
	}
	if counting.byID != 1 {
		t.Fatalf("expected 1 store read by id, got %d", counting.byID)
	}
}

func TestCachedUsersMissesAreNotCached(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	counting := &countingUsers{UserStore: m}
	cached := NewCachedUsers(counting, cache.NewMemoryCache())

	if _, err := cached.GetByExternalID(ctx, "fb|ghost"); err == nil {
		t.Fatal("expected miss for unknown user")
	}

	seedUser(t, m, "fb|ghost", "ghost", "ghost@example.com")
	got, err := cached.GetByExternalID(ctx, "fb|ghost")
	if err != nil {
		t.Fatalf("lookup after create: %v", err)
	}
	if got.Username != "ghost" {
		t.Fatalf("unexpected user %+v", got)
	}
}

func TestCachedUsersCreateInvalidates(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	counting := &countingUsers{UserStore: m}
	cached := NewCachedUsers(counting, cache.NewMemoryCache())

	u := &model.User{ExternalID: "fb|alice", Username: "alice", Email: "alice@example.com"}
	if err := cached.Create(ctx, u); err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, err := cached.GetByExternalID(ctx, "fb|alice"); err != nil {
		t.Fatalf("lookup: %v", err)
	}

	// Rewriting the record must evict the stale cached copy.
	renamed := &model.User{ID: u.ID, ExternalID: u.ExternalID, Username: "alicia", Email: u.Email}
	if err := cached.Create(ctx, renamed); err != nil {
		t.Fatalf("rewrite: %v", err)
	}
	got, err := cached.GetByExternalID(ctx, "fb|alice")
	if err != nil {
		t.Fatalf("lookup after rewrite: %v", err)
	}
	if got.Username != "alicia" {
		t.Fatalf("expected refreshed record, got %+v", got)
	}
}
