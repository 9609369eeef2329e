package auth

import (
	"sync"
	"time"

	"tallybooks.org/internal/obs"
)

// DefaultCacheTTL bounds how long a stale authorization decision can survive
// a role change that bypassed explicit invalidation.
const DefaultCacheTTL = 300 * time.Second

type decisionKey struct {
	userID string
	perm   Permission
}

type decisionEntry struct {
	allowed   bool
	expiresAt time.Time
}

// DecisionCache memoizes (user, permission) -> bool decisions with a fixed
// TTL. It is an optimization only: resolution produces identical answers with
// a cold cache, modulo the TTL staleness window. Entries expire passively at
// read time; there is no eviction goroutine.
type DecisionCache struct {
	mu      sync.Mutex
	ttl     time.Duration
	now     func() time.Time
	entries map[decisionKey]decisionEntry
}

// CacheOption configures a DecisionCache.
type CacheOption func(*DecisionCache)

// WithCacheTTL overrides the default entry lifetime.
func WithCacheTTL(ttl time.Duration) CacheOption {
	return func(c *DecisionCache) {
		if ttl > 0 {
			c.ttl = ttl
		}
	}
}

// WithCacheClock overrides the time source (useful for tests).
func WithCacheClock(fn func() time.Time) CacheOption {
	return func(c *DecisionCache) {
		if fn != nil {
			c.now = fn
		}
	}
}

// NewDecisionCache constructs an empty cache. The cache is owned by the
// application root and injected into the Resolver; it is not a package-level
// singleton.
func NewDecisionCache(opts ...CacheOption) *DecisionCache {
	c := &DecisionCache{
		ttl:     DefaultCacheTTL,
		now:     time.Now,
		entries: make(map[decisionKey]decisionEntry),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Get returns the cached decision and whether it was present and fresh.
func (c *DecisionCache) Get(userID string, perm Permission) (bool, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	key := decisionKey{userID: userID, perm: perm}
	entry, ok := c.entries[key]
	if !ok {
		obs.PermCacheLookup("miss")
		return false, false
	}
	if c.now().After(entry.expiresAt) {
		delete(c.entries, key)
		obs.PermCacheLookup("miss")
		return false, false
	}
	obs.PermCacheLookup("hit")
	return entry.allowed, true
}

// Set stores a decision with the configured TTL.
func (c *DecisionCache) Set(userID string, perm Permission, allowed bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[decisionKey{userID: userID, perm: perm}] = decisionEntry{
		allowed:   allowed,
		expiresAt: c.now().Add(c.ttl),
	}
}

// InvalidateUser removes every entry for the user. Must be called
// synchronously whenever the user's role or a role's permission set changes so
// a stale allow cannot outlive a demotion.
func (c *DecisionCache) InvalidateUser(userID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for key := range c.entries {
		if key.userID == userID {
			delete(c.entries, key)
		}
	}
}

// Len reports the number of stored entries, expired or not.
func (c *DecisionCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}
