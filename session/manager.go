package session

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// ErrUnavailable is returned when Redis cannot be reached or answers
// with an unexpected payload.
var ErrUnavailable = errors.New("session store unavailable")

// ErrNotFound is returned when no session exists under the given ID.
var ErrNotFound = errors.New("session not found")

// ErrNotActive is returned by Touch when the session exists but is
// expired or revoked.
var ErrNotActive = errors.New("session not active")

const (
	sessionKeyPrefix = "ses:"
	userIndexPrefix  = "seu:"
)

const (
	staleSessionAge = 60 * 24 * time.Hour
	distinctIPLimit = 2
)

// Touch: patch lastActivity and expiresAt in the fixed head, optionally
// replace the location field in the tail, keep retention TTL sliding.
// Only active sessions are touched; status never changes here.
//
// Returns 0 missing, 1 not active, 2 touched, -1 corrupt blob.
const touchScript = `
local function read_be64(s, i)
  local v = 0
  for j = 0, 7 do
    local b = string.byte(s, i + j)
    if not b then return nil end
    v = v * 256 + b
  end
  return v
end

local data = redis.call("GET", KEYS[1])
if not data then
  return 0
end
if #data < 60 then
  return -1
end
if string.byte(data, 2) ~= 0 then
  return 1
end
local exp = read_be64(data, 21)
if not exp or exp <= tonumber(ARGV[1]) then
  return 1
end

local head = string.sub(data, 1, 12) .. ARGV[2] .. ARGV[3] .. string.sub(data, 29, 60)
local tail = string.sub(data, 61)

if ARGV[5] == "1" then
  local idx = 1
  for i = 1, 4 do
    local n = string.byte(tail, idx)
    if not n then return -1 end
    idx = idx + 1 + n
  end
  tail = string.sub(tail, 1, idx - 1) .. string.char(#ARGV[6]) .. ARGV[6]
end

redis.call("SET", KEYS[1], head .. tail, "PX", ARGV[4])
return 2
`

var touchLua = redis.NewScript(touchScript)

// Revoke: CAS active -> revoked. An active blob already past its expiry
// is moved to expired instead, so an expired session can never read back
// as revoked. Terminal states are left untouched.
//
// Returns 0 missing, 1 no-op, 2 revoked, -1 corrupt blob.
const revokeScript = `
local function read_be64(s, i)
  local v = 0
  for j = 0, 7 do
    local b = string.byte(s, i + j)
    if not b then return nil end
    v = v * 256 + b
  end
  return v
end

local data = redis.call("GET", KEYS[1])
if not data then
  return 0
end
if #data < 60 then
  return -1
end
if string.byte(data, 2) ~= 0 then
  return 1
end
local exp = read_be64(data, 21)
if not exp then
  return -1
end

local status = 2
if exp <= tonumber(ARGV[1]) then
  status = 1
end
redis.call("SET", KEYS[1], string.sub(data, 1, 1) .. string.char(status) .. string.sub(data, 3), "KEEPTTL")
if status == 1 then
  return 1
end
return 2
`

var revokeLua = redis.NewScript(revokeScript)

// Returns 0 missing, 1 already flagged, 2 flagged, -1 corrupt blob.
const flagScript = `
local data = redis.call("GET", KEYS[1])
if not data then
  return 0
end
if #data < 60 then
  return -1
end
local flags = string.byte(data, 3)
if flags % 2 == 1 then
  return 1
end
redis.call("SET", KEYS[1], string.sub(data, 1, 2) .. string.char(flags + 1) .. string.sub(data, 4), "KEEPTTL")
return 2
`

var flagLua = redis.NewScript(flagScript)

// Returns 1 when an active-past-expiry session was moved to expired,
// 0 otherwise.
const sweepScript = `
local function read_be64(s, i)
  local v = 0
  for j = 0, 7 do
    local b = string.byte(s, i + j)
    if not b then return nil end
    v = v * 256 + b
  end
  return v
end

local data = redis.call("GET", KEYS[1])
if not data or #data < 60 then
  return 0
end
if string.byte(data, 2) ~= 0 then
  return 0
end
local exp = read_be64(data, 21)
if not exp or exp > tonumber(ARGV[1]) then
  return 0
end
redis.call("SET", KEYS[1], string.sub(data, 1, 1) .. string.char(1) .. string.sub(data, 3), "KEEPTTL")
return 1
`

var sweepLua = redis.NewScript(sweepScript)

// Config controls session lifetimes and per-platform caps.
type Config struct {
	// TTL is the session lifetime from creation or last touch.
	TTL time.Duration
	// Retention keeps expired and revoked blobs readable after expiry so
	// their terminal status can still be reported. PurgeOld reclaims them.
	Retention time.Duration

	WebCap    int
	MobileCap int
}

// Manager owns the `ses:` and `seu:` Redis keyspace. All session
// mutations go through it; no other component touches those keys.
//
//	Docs: docs/session.md
type Manager struct {
	redis  redis.UniversalClient
	config Config
	now    func() time.Time
}

// NewManager validates the configuration and returns a session [Manager]
// backed by the given Redis client.
func NewManager(client redis.UniversalClient, cfg Config) (*Manager, error) {
	if client == nil {
		return nil, errors.New("redis client required")
	}
	if cfg.TTL <= 0 {
		return nil, errors.New("session TTL must be positive")
	}
	if cfg.Retention < 0 {
		return nil, errors.New("session retention must not be negative")
	}
	if cfg.Retention == 0 {
		cfg.Retention = 30 * 24 * time.Hour
	}
	if cfg.WebCap <= 0 {
		cfg.WebCap = 5
	}
	if cfg.MobileCap <= 0 {
		cfg.MobileCap = 3
	}

	return &Manager{redis: client, config: cfg, now: time.Now}, nil
}

func (m *Manager) key(sessionID string) string {
	return sessionKeyPrefix + sessionID
}

func (m *Manager) userKey(userID string) string {
	return userIndexPrefix + userID
}

func (m *Manager) cap(platform Platform) int {
	if platform == PlatformMobile {
		return m.config.MobileCap
	}
	return m.config.WebCap
}

// CreateInput carries the client context a new session is bound to.
type CreateInput struct {
	UserID      string
	DeviceID    string
	Platform    Platform
	UserAgent   string
	IPAddress   string
	Location    string
	Fingerprint [32]byte
}

// Create enforces the per-platform cap for the user, then persists a new
// active session. The cap is soft: creation itself always succeeds, and
// racing logins that transiently exceed it are corrected by the next
// eviction pass.
//
//	Performance: cap check + 2 Redis commands (SET + SADD).
func (m *Manager) Create(ctx context.Context, in CreateInput) (*Session, error) {
	if in.UserID == "" {
		return nil, errors.New("userID required")
	}

	if _, err := m.EnforceLimit(ctx, in.UserID, in.Platform); err != nil {
		return nil, err
	}

	now := m.now()
	sess := &Session{
		ID:           uuid.NewString(),
		UserID:       in.UserID,
		DeviceID:     in.DeviceID,
		Platform:     in.Platform,
		UserAgent:    in.UserAgent,
		IPAddress:    in.IPAddress,
		Location:     in.Location,
		Fingerprint:  in.Fingerprint,
		Status:       StatusActive,
		CreatedAt:    now.Unix(),
		LastActivity: now.Unix(),
		ExpiresAt:    now.Add(m.config.TTL).Unix(),
	}

	data, err := Encode(sess)
	if err != nil {
		return nil, err
	}

	_, err = m.redis.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, m.key(sess.ID), data, m.config.TTL+m.config.Retention)
		pipe.SAdd(ctx, m.userKey(in.UserID), sess.ID)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	return sess, nil
}

// EnforceLimit revokes least-recently-active sessions until the user's
// active count on the platform is below the cap. Ties on activity break
// by creation time. Returns the number of sessions revoked.
func (m *Manager) EnforceLimit(ctx context.Context, userID string, platform Platform) (int, error) {
	sessions, err := m.loadForUser(ctx, userID)
	if err != nil {
		return 0, err
	}

	now := m.now()
	active := sessions[:0]
	for _, sess := range sessions {
		if sess.Active(now) && sess.Platform == platform {
			active = append(active, sess)
		}
	}

	limit := m.cap(platform)
	if len(active) < limit {
		return 0, nil
	}

	sort.Slice(active, func(i, j int) bool {
		if active[i].LastActivity != active[j].LastActivity {
			return active[i].LastActivity < active[j].LastActivity
		}
		return active[i].CreatedAt < active[j].CreatedAt
	})

	revoked := 0
	for len(active)-revoked >= limit {
		if _, err := m.Revoke(ctx, active[revoked].ID); err != nil {
			return revoked, err
		}
		revoked++
	}

	return revoked, nil
}

// Activity carries per-request context for Touch.
type Activity struct {
	Location       string
	UpdateLocation bool
}

// Touch records activity on an active session: LastActivity moves to
// now, ExpiresAt slides forward by the configured TTL, and the location
// is replaced when requested. Expired and revoked sessions are never
// resurrected.
//
//	Performance: 1 Lua EVALSHA.
func (m *Manager) Touch(ctx context.Context, sessionID string, act Activity) error {
	now := m.now()

	var lastActivity, expiresAt [8]byte
	binary.BigEndian.PutUint64(lastActivity[:], uint64(now.Unix()))
	binary.BigEndian.PutUint64(expiresAt[:], uint64(now.Add(m.config.TTL).Unix()))

	hasLocation := "0"
	if act.UpdateLocation {
		if len(act.Location) > 255 {
			return errors.New("location too long")
		}
		hasLocation = "1"
	}

	code, err := touchLua.Run(ctx, m.redis, []string{m.key(sessionID)},
		now.Unix(),
		string(lastActivity[:]),
		string(expiresAt[:]),
		(m.config.TTL + m.config.Retention).Milliseconds(),
		hasLocation,
		act.Location,
	).Int64()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	switch code {
	case 0:
		return ErrNotFound
	case 1:
		return ErrNotActive
	case 2:
		return nil
	default:
		return ErrCorruptBlob
	}
}

// Revoke moves an active session to revoked. Revoking a missing,
// expired, or already-revoked session is a no-op success, so callers can
// retry freely. Returns true when this call performed the transition.
//
//	Performance: 1 Lua EVALSHA (atomic compare-and-swap).
func (m *Manager) Revoke(ctx context.Context, sessionID string) (bool, error) {
	code, err := revokeLua.Run(ctx, m.redis, []string{m.key(sessionID)}, m.now().Unix()).Int64()
	if err != nil {
		return false, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	if code < 0 {
		return false, ErrCorruptBlob
	}
	return code == 2, nil
}

// RevokeAll revokes every session of the user except the given one.
// Pass an empty exceptSessionID to revoke all. Returns the number of
// sessions transitioned by this call.
func (m *Manager) RevokeAll(ctx context.Context, userID, exceptSessionID string) (int, error) {
	ids, err := m.redis.SMembers(ctx, m.userKey(userID)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return 0, nil
		}
		return 0, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	revoked := 0
	for _, id := range ids {
		if id == exceptSessionID {
			continue
		}
		done, err := m.Revoke(ctx, id)
		if err != nil {
			return revoked, err
		}
		if done {
			revoked++
		}
	}

	return revoked, nil
}

// Get fetches a session by ID. An active blob already past its expiry
// reads back as expired without writing.
//
//	Performance: 1 Redis GET.
func (m *Manager) Get(ctx context.Context, sessionID string) (*Session, error) {
	data, err := m.redis.Get(ctx, m.key(sessionID)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	sess, err := Decode(data)
	if err != nil {
		return nil, err
	}
	sess.ID = sessionID

	if sess.Status == StatusActive && sess.ExpiresAt <= m.now().Unix() {
		sess.Status = StatusExpired
	}

	return sess, nil
}

// FindActive returns the user's currently active sessions, excluding
// expired and revoked ones.
func (m *Manager) FindActive(ctx context.Context, userID string) ([]*Session, error) {
	sessions, err := m.loadForUser(ctx, userID)
	if err != nil {
		return nil, err
	}

	now := m.now()
	active := make([]*Session, 0, len(sessions))
	for _, sess := range sessions {
		if sess.Active(now) {
			active = append(active, sess)
		}
	}

	return active, nil
}

// MarkSuspicious sets the advisory suspicious flag on a session. The
// flag never affects lifecycle decisions.
func (m *Manager) MarkSuspicious(ctx context.Context, sessionID string) error {
	code, err := flagLua.Run(ctx, m.redis, []string{m.key(sessionID)}).Int64()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	switch code {
	case 0:
		return ErrNotFound
	case 1, 2:
		return nil
	default:
		return ErrCorruptBlob
	}
}

// FlagSuspicious scans all sessions and flags two advisory patterns:
// users with more than two distinct IP addresses among concurrently
// active sessions, and active sessions older than sixty days. Nothing is
// ever revoked here. Returns the sessions flagged by this pass.
//
// This is an admin-only O(n) scan and must not run in request hot paths.
func (m *Manager) FlagSuspicious(ctx context.Context) ([]*Session, error) {
	now := m.now()
	byUser := make(map[string][]*Session)
	var stale []*Session

	err := m.scanSessions(ctx, func(sess *Session) error {
		if !sess.Active(now) {
			return nil
		}
		byUser[sess.UserID] = append(byUser[sess.UserID], sess)
		if now.Unix()-sess.CreatedAt > int64(staleSessionAge/time.Second) {
			stale = append(stale, sess)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	candidates := make(map[string]*Session)
	for _, sessions := range byUser {
		ips := make(map[string]struct{})
		for _, sess := range sessions {
			ips[sess.IPAddress] = struct{}{}
		}
		if len(ips) <= distinctIPLimit {
			continue
		}
		for _, sess := range sessions {
			candidates[sess.ID] = sess
		}
	}
	for _, sess := range stale {
		candidates[sess.ID] = sess
	}

	flagged := make([]*Session, 0, len(candidates))
	for _, sess := range candidates {
		if sess.Suspicious {
			continue
		}
		if err := m.MarkSuspicious(ctx, sess.ID); err != nil {
			if errors.Is(err, ErrNotFound) {
				continue
			}
			return flagged, err
		}
		sess.Suspicious = true
		flagged = append(flagged, sess)
	}

	return flagged, nil
}

// SweepExpired scans all sessions and moves active ones past their
// expiry to expired. The transition is a Lua CAS, so concurrent sweeps
// never double-count or clobber a revocation.
//
// This is an admin-only O(n) scan and must not run in request hot paths.
func (m *Manager) SweepExpired(ctx context.Context) (int, error) {
	now := m.now().Unix()
	swept := 0

	err := m.scanKeys(ctx, func(key string) error {
		code, err := sweepLua.Run(ctx, m.redis, []string{key}, now).Int64()
		if err != nil {
			return fmt.Errorf("%w: %v", ErrUnavailable, err)
		}
		swept += int(code)
		return nil
	})
	if err != nil {
		return swept, err
	}

	return swept, nil
}

// PurgeOld hard-deletes expired and revoked sessions whose last activity
// is older than the given age, reclaiming storage and pruning the user
// index. Active sessions are never purged.
//
// This is an admin-only O(n) scan and must not run in request hot paths.
func (m *Manager) PurgeOld(ctx context.Context, olderThan time.Duration) (int, error) {
	cutoff := m.now().Add(-olderThan).Unix()
	purged := 0

	err := m.scanKeys(ctx, func(key string) error {
		sessionID := key[len(sessionKeyPrefix):]

		data, err := m.redis.Get(ctx, key).Bytes()
		if err != nil {
			if errors.Is(err, redis.Nil) {
				return nil
			}
			return fmt.Errorf("%w: %v", ErrUnavailable, err)
		}

		sess, decErr := Decode(data)
		if decErr != nil {
			// Undecodable blobs are unrecoverable; reclaim them too.
			if err := m.redis.Del(ctx, key).Err(); err != nil {
				return fmt.Errorf("%w: %v", ErrUnavailable, err)
			}
			purged++
			return nil
		}

		if sess.Status == StatusActive || sess.LastActivity > cutoff {
			return nil
		}

		_, err = m.redis.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Del(ctx, key)
			pipe.SRem(ctx, m.userKey(sess.UserID), sessionID)
			return nil
		})
		if err != nil {
			return fmt.Errorf("%w: %v", ErrUnavailable, err)
		}
		purged++
		return nil
	})
	if err != nil {
		return purged, err
	}

	return purged, nil
}

// Ping returns a point-in-time Redis availability check and latency.
func (m *Manager) Ping(ctx context.Context) (time.Duration, error) {
	start := time.Now()
	if err := m.redis.Ping(ctx).Err(); err != nil {
		return time.Since(start), fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return time.Since(start), nil
}

func (m *Manager) loadForUser(ctx context.Context, userID string) ([]*Session, error) {
	ids, err := m.redis.SMembers(ctx, m.userKey(userID)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	if len(ids) == 0 {
		return nil, nil
	}

	pipe := m.redis.Pipeline()
	cmds := make([]*redis.StringCmd, len(ids))
	for i, id := range ids {
		cmds[i] = pipe.Get(ctx, m.key(id))
	}
	if _, err := pipe.Exec(ctx); err != nil && !errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	sessions := make([]*Session, 0, len(ids))
	for i, cmd := range cmds {
		data, cmdErr := cmd.Bytes()
		if cmdErr != nil {
			if errors.Is(cmdErr, redis.Nil) {
				continue
			}
			return nil, fmt.Errorf("%w: %v", ErrUnavailable, cmdErr)
		}

		sess, decErr := Decode(data)
		if decErr != nil {
			continue
		}
		sess.ID = ids[i]
		sessions = append(sessions, sess)
	}

	return sessions, nil
}

func (m *Manager) scanKeys(ctx context.Context, fn func(key string) error) error {
	var cursor uint64
	for {
		keys, next, err := m.redis.Scan(ctx, cursor, sessionKeyPrefix+"*", 1000).Result()
		if err != nil {
			return fmt.Errorf("%w: %v", ErrUnavailable, err)
		}
		for _, key := range keys {
			if err := fn(key); err != nil {
				return err
			}
		}
		cursor = next
		if cursor == 0 {
			return nil
		}
	}
}

func (m *Manager) scanSessions(ctx context.Context, fn func(*Session) error) error {
	return m.scanKeys(ctx, func(key string) error {
		data, err := m.redis.Get(ctx, key).Bytes()
		if err != nil {
			if errors.Is(err, redis.Nil) {
				return nil
			}
			return fmt.Errorf("%w: %v", ErrUnavailable, err)
		}

		sess, decErr := Decode(data)
		if decErr != nil {
			return nil
		}
		sess.ID = key[len(sessionKeyPrefix):]
		return fn(sess)
	})
}
