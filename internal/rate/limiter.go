package rate

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

var (
	// ErrRateLimited reports an exhausted attempt window.
	ErrRateLimited = errors.New("rate limited")
	// ErrRedisUnavailable reports an unreachable counter backend.
	ErrRedisUnavailable = errors.New("redis unavailable")
)

// Config tunes the fixed windows. Zero attempt maxima effectively
// disable the corresponding throttle.
type Config struct {
	EnableIPThrottle        bool
	EnableRefreshThrottle   bool
	MaxLoginAttempts        int
	LoginCooldownDuration   time.Duration
	MaxRefreshAttempts      int
	RefreshCooldownDuration time.Duration
}

// Limiter tracks fixed-window attempt counters in Redis. Login attempts
// are counted per identifier and, optionally, per source IP; refreshes
// are counted per session.
type Limiter struct {
	client redis.UniversalClient
	cfg    Config
}

func New(client redis.UniversalClient, cfg Config) *Limiter {
	return &Limiter{client: client, cfg: cfg}
}

// Key prefixes are documented in the package doc; they share the Redis
// keyspace with sessions and artifacts.
func loginIdentifierKey(identifier string) string { return "al:" + identifier }
func loginIPKey(ip string) string                 { return "ali:" + ip }
func refreshKey(sessionID string) string          { return "ar:" + sessionID }

// CheckLogin reports whether a login attempt may proceed. It only
// reads; recording the attempt is IncrementLogin's job so that callers
// can count failures without counting successes.
func (l *Limiter) CheckLogin(ctx context.Context, identifier, ip string) error {
	for _, key := range l.loginKeys(identifier, ip) {
		n, err := l.peek(ctx, key)
		if err != nil {
			return err
		}
		if n > int64(l.cfg.MaxLoginAttempts) {
			return ErrRateLimited
		}
	}
	return nil
}

// IncrementLogin counts a failed attempt against every applicable
// window and reports ErrRateLimited once any window overflows.
func (l *Limiter) IncrementLogin(ctx context.Context, identifier, ip string) error {
	for _, key := range l.loginKeys(identifier, ip) {
		n, err := l.bump(ctx, key, l.cfg.LoginCooldownDuration)
		if err != nil {
			return err
		}
		if n > int64(l.cfg.MaxLoginAttempts) {
			return ErrRateLimited
		}
	}
	return nil
}

// ResetLogin forgives outstanding attempts, typically after a
// successful login or a completed password reset.
func (l *Limiter) ResetLogin(ctx context.Context, identifier, ip string) error {
	if err := l.client.Del(ctx, l.loginKeys(identifier, ip)...).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return nil
}

// CheckRefresh counts the refresh and rejects when the session exceeds
// its window. Unlike logins, every refresh counts; a client refreshing
// this hot is misbehaving whether or not the tokens verify.
func (l *Limiter) CheckRefresh(ctx context.Context, sessionID string) error {
	if !l.cfg.EnableRefreshThrottle {
		return nil
	}
	n, err := l.bump(ctx, refreshKey(sessionID), l.cfg.RefreshCooldownDuration)
	if err != nil {
		return err
	}
	if n > int64(l.cfg.MaxRefreshAttempts) {
		return ErrRateLimited
	}
	return nil
}

// GetLoginAttempts exposes the identifier counter for introspection.
// A missing key reads as zero; the answer never reveals whether the
// identifier maps to an account.
func (l *Limiter) GetLoginAttempts(ctx context.Context, identifier string) (int, error) {
	n, err := l.peek(ctx, loginIdentifierKey(identifier))
	if err != nil {
		return 0, err
	}
	if n < 0 {
		n = 0
	}
	return int(n), nil
}

func (l *Limiter) loginKeys(identifier, ip string) []string {
	keys := []string{loginIdentifierKey(identifier)}
	if l.cfg.EnableIPThrottle && ip != "" {
		keys = append(keys, loginIPKey(ip))
	}
	return keys
}

// bump increments a window counter, arming the window TTL on whichever
// hit finds the key without one. INCR and EXPIRE NX ride one pipeline.
func (l *Limiter) bump(ctx context.Context, key string, window time.Duration) (int64, error) {
	var incr *redis.IntCmd
	_, err := l.client.Pipelined(ctx, func(pipe redis.Pipeliner) error {
		incr = pipe.Incr(ctx, key)
		pipe.ExpireNX(ctx, key, window)
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return incr.Val(), nil
}

func (l *Limiter) peek(ctx context.Context, key string) (int64, error) {
	n, err := l.client.Get(ctx, key).Int64()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return 0, nil
		}
		return 0, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return n, nil
}
