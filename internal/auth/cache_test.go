package auth

import (
	"testing"
	"time"
)

func TestDecisionCacheHitAndMiss(t *testing.T) {
	cache := NewDecisionCache()

	if _, ok := cache.Get("u1", PermInvoicesRead); ok {
		t.Fatal("expected miss on empty cache")
	}

	cache.Set("u1", PermInvoicesRead, true)
	cache.Set("u1", PermRolesManage, false)

	allowed, ok := cache.Get("u1", PermInvoicesRead)
	if !ok || !allowed {
		t.Fatalf("expected cached allow, got allowed=%v ok=%v", allowed, ok)
	}
	allowed, ok = cache.Get("u1", PermRolesManage)
	if !ok || allowed {
		t.Fatalf("expected cached deny, got allowed=%v ok=%v", allowed, ok)
	}
	if _, ok := cache.Get("u2", PermInvoicesRead); ok {
		t.Fatal("expected miss for other user")
	}
}

func TestDecisionCacheTTLExpiry(t *testing.T) {
	current := time.Now()
	cache := NewDecisionCache(
		WithCacheTTL(300*time.Second),
		WithCacheClock(func() time.Time { return current }),
	)

	cache.Set("u1", PermInvoicesRead, true)

	current = current.Add(299 * time.Second)
	if _, ok := cache.Get("u1", PermInvoicesRead); !ok {
		t.Fatal("entry expired before its TTL")
	}

	current = current.Add(2 * time.Second)
	if _, ok := cache.Get("u1", PermInvoicesRead); ok {
		t.Fatal("entry survived past its TTL")
	}
	if cache.Len() != 0 {
		t.Fatalf("expired entry not dropped, len=%d", cache.Len())
	}
}

func TestDecisionCacheInvalidateUser(t *testing.T) {
	cache := NewDecisionCache()
	cache.Set("u1", PermInvoicesRead, true)
	cache.Set("u1", PermRolesManage, true)
	cache.Set("u2", PermInvoicesRead, true)

	cache.InvalidateUser("u1")

	if _, ok := cache.Get("u1", PermInvoicesRead); ok {
		t.Fatal("u1 entry survived invalidation")
	}
	if _, ok := cache.Get("u1", PermRolesManage); ok {
		t.Fatal("u1 entry survived invalidation")
	}
	if allowed, ok := cache.Get("u2", PermInvoicesRead); !ok || !allowed {
		t.Fatal("u2 entry was dropped by u1 invalidation")
	}
}
