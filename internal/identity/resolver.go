// Package identity maps e-mail addresses to user identities known from
// authorship records.
package identity

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"

	"codecollab/api/internal/store"
)

type Lookup interface {
	FindIdentityByEmail(ctx context.Context, email string) (store.Identity, error)
}

type cacheItem struct {
	identity  store.Identity
	expiresAt time.Time
}

// Resolver caches positive lookups in a bounded LRU with a TTL. Misses are
// never cached so a newly active user resolves on their first mention.
type Resolver struct {
	lookup Lookup
	cache  *lru.Cache[string, cacheItem]
	ttl    time.Duration
	now    func() time.Time
}

func NewResolver(lookup Lookup, size int, ttl time.Duration) (*Resolver, error) {
	if size <= 0 {
		size = 1024
	}
	cache, err := lru.New[string, cacheItem](size)
	if err != nil {
		return nil, fmt.Errorf("create identity cache: %w", err)
	}
	return &Resolver{lookup: lookup, cache: cache, ttl: ttl, now: time.Now}, nil
}

// Resolve returns the identity owning email. ok is false when no
// authorship record carries the address.
func (r *Resolver) Resolve(ctx context.Context, email string) (store.Identity, bool, error) {
	key := strings.ToLower(strings.TrimSpace(email))
	if key == "" {
		return store.Identity{}, false, nil
	}
	if item, found := r.cache.Get(key); found {
		if r.ttl <= 0 || r.now().Before(item.expiresAt) {
			return item.identity, true, nil
		}
		r.cache.Remove(key)
	}

	identity, err := r.lookup.FindIdentityByEmail(ctx, key)
	if errors.Is(err, store.ErrNotFound) {
		return store.Identity{}, false, nil
	}
	if err != nil {
		return store.Identity{}, false, fmt.Errorf("resolve %s: %w", key, err)
	}
	r.cache.Add(key, cacheItem{identity: identity, expiresAt: r.now().Add(r.ttl)})
	return identity, true, nil
}
