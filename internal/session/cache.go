package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"orgcore.org/internal/authz"
)

// ErrNotFound reports a missing or expired session.
var ErrNotFound = errors.New("session: not found")

// Cache stores assembled claims per session id. Claims are written exactly
// once, at session establishment; permission changes only surface when a new
// session is established. That staleness window is intentional.
type Cache interface {
	Put(ctx context.Context, sessionID string, c authz.Claims, ttl time.Duration) error
	Get(ctx context.Context, sessionID string) (authz.Claims, error)
	Drop(ctx context.Context, sessionID string) error
}

// RedisCache keeps session claims in Redis so every API replica sees the
// same session state.
type RedisCache struct {
	client *redis.Client
}

// NewRedis connects and pings the Redis instance at addr.
func NewRedis(ctx context.Context, addr string) (*RedisCache, error) {
	client := redis.NewClient(&redis.Options{Addr: addr})
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("pinging redis: %w", err)
	}
	return &RedisCache{client: client}, nil
}

// Close releases the underlying connection pool.
func (c *RedisCache) Close() error { return c.client.Close() }

func sessionKey(id string) string { return "session:claims:" + id }

func (c *RedisCache) Put(ctx context.Context, sessionID string, claims authz.Claims, ttl time.Duration) error {
	if sessionID == "" {
		return errors.New("session id is required")
	}
	data, err := json.Marshal(claims)
	if err != nil {
		return fmt.Errorf("encode claims: %w", err)
	}
	if err := c.client.Set(ctx, sessionKey(sessionID), data, ttl).Err(); err != nil {
		return fmt.Errorf("store session %s: %w", sessionID, err)
	}
	return nil
}

func (c *RedisCache) Get(ctx context.Context, sessionID string) (authz.Claims, error) {
	data, err := c.client.Get(ctx, sessionKey(sessionID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return authz.Claims{}, ErrNotFound
	}
	if err != nil {
		return authz.Claims{}, fmt.Errorf("load session %s: %w", sessionID, err)
	}
	var claims authz.Claims
	if err := json.Unmarshal(data, &claims); err != nil {
		return authz.Claims{}, fmt.Errorf("decode session %s: %w", sessionID, err)
	}
	return claims, nil
}

func (c *RedisCache) Drop(ctx context.Context, sessionID string) error {
	return c.client.Del(ctx, sessionKey(sessionID)).Err()
}

// MemoryCache is the single-process fallback used when no Redis address is
// configured.
type MemoryCache struct {
	mu      sync.RWMutex
	entries map[string]memoryEntry
	now     func() time.Time
}

type memoryEntry struct {
	claims    authz.Claims
	expiresAt time.Time
}

// NewMemory creates an empty in-process cache.
func NewMemory() *MemoryCache {
	return &MemoryCache{entries: make(map[string]memoryEntry), now: time.Now}
}

func (c *MemoryCache) Put(ctx context.Context, sessionID string, claims authz.Claims, ttl time.Duration) error {
	if sessionID == "" {
		return errors.New("session id is required")
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	var expires time.Time
	if ttl > 0 {
		expires = c.now().Add(ttl)
	}
	c.entries[sessionID] = memoryEntry{claims: claims, expiresAt: expires}
	return nil
}

func (c *MemoryCache) Get(ctx context.Context, sessionID string) (authz.Claims, error) {
	c.mu.RLock()
	entry, ok := c.entries[sessionID]
	c.mu.RUnlock()
	if !ok {
		return authz.Claims{}, ErrNotFound
	}
	if !entry.expiresAt.IsZero() && c.now().After(entry.expiresAt) {
		c.mu.Lock()
		delete(c.entries, sessionID)
		c.mu.Unlock()
		return authz.Claims{}, ErrNotFound
	}
	return entry.claims, nil
}

func (c *MemoryCache) Drop(ctx context.Context, sessionID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, sessionID)
	return nil
}
