// Package contextcache keeps recently built conversation contexts warm so
// consecutive turns in the same session skip the backend round trips.
package contextcache

import (
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/secmon-lab/mnemos/pkg/domain/model"
)

// Key identifies one cached context. Both fields participate so two
// conversations sharing a session never see each other's context.
type Key struct {
	ConversationID string
	SessionID      string
}

const (
	// DefaultTTL bounds how stale a served context can be
	DefaultTTL = 5 * time.Minute

	// DefaultCapacity bounds memory use; least recently used entries are evicted
	DefaultCapacity = 1024
)

// Cache is a TTL-bounded LRU of built conversation contexts
type Cache struct {
	lru *expirable.LRU[Key, *model.ConversationMemoryContext]
}

// New creates a cache. Non-positive ttl or capacity fall back to the defaults.
func New(ttl time.Duration, capacity int) *Cache {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Cache{
		lru: expirable.NewLRU[Key, *model.ConversationMemoryContext](capacity, nil, ttl),
	}
}

// Get returns the cached context for the key, if present and fresh
func (c *Cache) Get(key Key) (*model.ConversationMemoryContext, bool) {
	return c.lru.Get(key)
}

// Set stores a freshly built context
func (c *Cache) Set(key Key, mctx *model.ConversationMemoryContext) {
	c.lru.Add(key, mctx)
}

// Invalidate drops the entry for the key, if any. Called after memory writes
// so the next context read reflects them.
func (c *Cache) Invalidate(key Key) {
	c.lru.Remove(key)
}

// InvalidateSession drops every entry whose session matches. Writes carry a
// session but not always a conversation, so invalidation sweeps by session.
func (c *Cache) InvalidateSession(sessionID string) {
	for _, key := range c.lru.Keys() {
		if key.SessionID == sessionID {
			c.lru.Remove(key)
		}
	}
}

// Len returns the number of live entries
func (c *Cache) Len() int {
	return c.lru.Len()
}
