// Package revocation tracks revoked token IDs and per-user token epochs
// in Redis.
//
// Revoked JTIs are stored with a TTL equal to the token's remaining
// life, so the cache never outlives the tokens it denies. Epochs are
// monotonic counters: a missing key reads as zero, bumping is a plain
// INCR, and the value is never reset, so a refresh token minted before a
// bump is stale forever.
package revocation

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// ErrUnavailable is returned when Redis cannot be reached. Whether the
// caller fails open or closed on it is policy, decided above this
// package.
var ErrUnavailable = errors.New("revocation cache unavailable")

const (
	jtiKeyPrefix   = "rvk:"
	epochKeyPrefix = "epoch:"
)

// Cache is a Redis-backed revocation and epoch store.
type Cache struct {
	redis redis.UniversalClient
}

// NewCache returns a revocation [Cache] backed by the given Redis client.
func NewCache(client redis.UniversalClient) (*Cache, error) {
	if client == nil {
		return nil, errors.New("redis client required")
	}
	return &Cache{redis: client}, nil
}

func (c *Cache) jtiKey(jti string) string {
	return jtiKeyPrefix + jti
}

func (c *Cache) epochKey(userID string) string {
	return epochKeyPrefix + userID
}

// Revoke marks a token ID as revoked for its remaining life. A token
// that has already expired needs no entry, so a non-positive ttl is a
// no-op. Revoking the same JTI twice is a no-op success.
//
//	Performance: 1 Redis SET NX.
func (c *Cache) Revoke(ctx context.Context, jti string, ttl time.Duration) error {
	if jti == "" {
		return errors.New("jti required")
	}
	if ttl <= 0 {
		return nil
	}

	if err := c.redis.SetNX(ctx, c.jtiKey(jti), 1, ttl).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return nil
}

// IsRevoked reports whether the token ID has a live revocation entry.
//
//	Performance: 1 Redis EXISTS.
func (c *Cache) IsRevoked(ctx context.Context, jti string) (bool, error) {
	n, err := c.redis.Exists(ctx, c.jtiKey(jti)).Result()
	if err != nil {
		return false, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return n > 0, nil
}

// CurrentEpoch returns the user's token epoch. A user that has never
// bumped reads as epoch zero.
//
//	Performance: 1 Redis GET.
func (c *Cache) CurrentEpoch(ctx context.Context, userID string) (int64, error) {
	epoch, err := c.redis.Get(ctx, c.epochKey(userID)).Int64()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return 0, nil
		}
		return 0, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return epoch, nil
}

// BumpEpoch advances the user's token epoch by one and returns the new
// value. Every refresh token carrying an older epoch becomes stale the
// moment this returns. The counter has no TTL and is never reset.
//
//	Performance: 1 Redis INCR.
func (c *Cache) BumpEpoch(ctx context.Context, userID string) (int64, error) {
	epoch, err := c.redis.Incr(ctx, c.epochKey(userID)).Result()
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return epoch, nil
}
