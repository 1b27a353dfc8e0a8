package store

import (
	"context"
	"encoding/json"
	"time"

	"github.com/studyverse/chat-platform/internal/cache"
	"github.com/studyverse/chat-platform/internal/model"
)

const userCacheTTL = 5 * time.Minute

// CachedUsers is a read-through cache over a UserStore. Identity resolution
// happens on every REST request and every live handshake, so external-id
// lookups are the hottest read in the system.
type CachedUsers struct {
	next  UserStore
	cache cache.Cache
}

// NewCachedUsers wraps next with the given cache.
func NewCachedUsers(next UserStore, c cache.Cache) *CachedUsers {
	return &CachedUsers{next: next, cache: c}
}

var _ UserStore = (*CachedUsers)(nil)

func (c *CachedUsers) GetByExternalID(ctx context.Context, externalID string) (*model.User, error) {
	key := "user:ext:" + model.NormalizeID(externalID)
	if u, ok := c.lookup(ctx, key); ok {
		return u, nil
	}
	u, err := c.next.GetByExternalID(ctx, externalID)
	if err != nil {
		return nil, err
	}
	c.fill(ctx, key, u)
	return u, nil
}

func (c *CachedUsers) GetByID(ctx context.Context, id string) (*model.User, error) {
	key := "user:id:" + model.NormalizeID(id)
	if u, ok := c.lookup(ctx, key); ok {
		return u, nil
	}
	u, err := c.next.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	c.fill(ctx, key, u)
	return u, nil
}

func (c *CachedUsers) Create(ctx context.Context, u *model.User) error {
	if err := c.next.Create(ctx, u); err != nil {
		return err
	}
	// Drop any stale entries for the written record.
	_ = c.cache.Del(ctx,
		"user:id:"+model.NormalizeID(u.ID),
		"user:ext:"+model.NormalizeID(u.ExternalID),
	)
	return nil
}

func (c *CachedUsers) lookup(ctx context.Context, key string) (*model.User, bool) {
	raw, err := c.cache.Get(ctx, key)
	if err != nil {
		return nil, false
	}
	var u model.User
	if err := json.Unmarshal([]byte(raw), &u); err != nil {
		return nil, false
	}
	return &u, true
}

func (c *CachedUsers) fill(ctx context.Context, key string, u *model.User) {
	raw, err := json.Marshal(u)
	if err != nil {
		return
	}
	// Cache failures are invisible to callers; the store remains the
	// source of truth.
	_ = c.cache.Set(ctx, key, string(raw), userCacheTTL)
}
