package auth

import (
	"context"
	"crypto/sha256"
	"fmt"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/jonboulle/clockwork"
)

// DefaultCacheTTL bounds how long a successful authentication is reused.
const DefaultCacheTTL = 30 * time.Second

// CacheConfig configures Cached.
type CacheConfig struct {
	// Size is the number of tokens remembered. Required.
	Size int
	// TTL bounds each entry. Entries never outlive the token's own "exp"
	// claim. Default: DefaultCacheTTL
	TTL   time.Duration
	Clock clockwork.Clock
}

type cacheEntry struct {
	user      UserInfo
	expiresAt time.Time
}

type cached struct {
	next  Authenticator
	ttl   time.Duration
	clock clockwork.Clock

	mu    sync.Mutex
	cache *lru.Cache[[32]byte, cacheEntry]
}

// Cached wraps next so that repeated presentations of a token skip
// verification until the entry expires. Only successes are remembered.
func Cached(next Authenticator, cfg CacheConfig) (Authenticator, error) {
	if next == nil {
		return nil, fmt.Errorf("auth cache: authenticator is required")
	}
	c, err := lru.New[[32]byte, cacheEntry](cfg.Size)
	if err != nil {
		return nil, fmt.Errorf("auth cache: %w", err)
	}
	if cfg.TTL <= 0 {
		cfg.TTL = DefaultCacheTTL
	}
	if cfg.Clock == nil {
		cfg.Clock = clockwork.NewRealClock()
	}
	return &cached{next: next, ttl: cfg.TTL, clock: cfg.Clock, cache: c}, nil
}

func (c *cached) CheckAuthentication(ctx context.Context, tok string) (UserInfo, error) {
	key := sha256.Sum256([]byte(tok))
	now := c.clock.Now()

	c.mu.Lock()
	e, ok := c.cache.Get(key)
	if ok && !now.Before(e.expiresAt) {
		c.cache.Remove(key)
		ok = false
	}
	c.mu.Unlock()
	if ok {
		return e.user, nil
	}

	u, err := c.next.CheckAuthentication(ctx, tok)
	if err != nil {
		return nil, err
	}
	exp := now.Add(c.ttl)
	var claims struct {
		Exp *float64 `json:"exp"`
	}
	if u.Claims(&claims) == nil && claims.Exp != nil {
		if t := time.Unix(int64(*claims.Exp), 0); t.Before(exp) {
			exp = t
		}
	}
	c.mu.Lock()
	c.cache.Add(key, cacheEntry{user: u, expiresAt: exp})
	c.mu.Unlock()
	return u, nil
}
