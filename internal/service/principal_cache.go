package service

import (
	"sync"
	"time"

	"backoffice/internal/tenancy"

	"github.com/google/uuid"
)

const defaultPrincipalTTL = 5 * time.Minute

type principalCacheEntry struct {
	principal tenancy.Principal
	expiresAt time.Time
}

// PrincipalCache keeps resolved principals per user for a short TTL so the
// auth middleware does not reload role assignments on every request.
type PrincipalCache struct {
	entries sync.Map // uuid.UUID -> principalCacheEntry
	ttl     time.Duration
}

func NewPrincipalCache(ttl time.Duration) *PrincipalCache {
	if ttl <= 0 {
		ttl = defaultPrincipalTTL
	}
	return &PrincipalCache{ttl: ttl}
}

// Get returns a copy of the cached principal
func (c *PrincipalCache) Get(userID uuid.UUID) (*tenancy.Principal, bool) {
	if c == nil {
		return nil, false
	}
	v, ok := c.entries.Load(userID)
	if !ok {
		return nil, false
	}
	entry := v.(principalCacheEntry)
	if time.Now().After(entry.expiresAt) {
		c.entries.Delete(userID)
		return nil, false
	}
	p := entry.principal
	return &p, true
}

func (c *PrincipalCache) Store(p *tenancy.Principal) {
	if c == nil || p == nil {
		return
	}
	c.entries.Store(p.UserID, principalCacheEntry{principal: *p, expiresAt: time.Now().Add(c.ttl)})
}

// Invalidate drops one user's entry
func (c *PrincipalCache) Invalidate(userID uuid.UUID) {
	if c == nil {
		return
	}
	c.entries.Delete(userID)
}

// Clear drops every entry, e.g. after a role's permissions change
func (c *PrincipalCache) Clear() {
	if c == nil {
		return
	}
	c.entries.Range(func(key, _ interface{}) bool {
		c.entries.Delete(key)
		return true
	})
}
