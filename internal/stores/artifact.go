package stores

import (
	"bytes"
	"context"
	"crypto/subtle"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/skillbridge/authcore/internal"
)

const artifactRecordVersionV1 = 1

var (
	ErrArtifactNotFound         = errors.New("verification artifact not found")
	ErrArtifactExpired          = errors.New("verification artifact expired")
	ErrArtifactSecretMismatch   = errors.New("verification artifact secret mismatch")
	ErrArtifactAttemptsExceeded = errors.New("verification artifact attempts exceeded")
	ErrArtifactRedisUnavailable = errors.New("verification artifact redis unavailable")
)

// Purpose distinguishes the one-time artifacts a user can hold. At most
// one artifact per (user, purpose) exists; issuing a new one replaces
// and invalidates the previous.
type Purpose byte

const (
	PurposeEmailVerify   Purpose = 1
	PurposePhoneVerify   Purpose = 2
	PurposePasswordReset Purpose = 3
)

func (p Purpose) String() string {
	switch p {
	case PurposeEmailVerify:
		return "email"
	case PurposePhoneVerify:
		return "phone"
	case PurposePasswordReset:
		return "reset"
	default:
		return "unknown"
	}
}

// consumeArtifactLua atomically validates and redeems an artifact record.
// KEYS[1] = record key
// ARGV[1] = provided salted hash (32 bytes)
// ARGV[2] = max attempts (int string)
// ARGV[3] = current unix timestamp (int string)
//
// Record head is fixed-width:
// version(1) purpose(1) attempts(2 big-endian) expiresAt(8 big-endian)
// salt(16) secretHash(32), payload after.
//
// Returns:
//
//	record bytes on success
//	error string: "not_found", "expired", "attempts_exceeded", "secret_mismatch"
var consumeArtifactLua = redis.NewScript(`
local data = redis.call('GET', KEYS[1])
if not data then
  return {err='not_found'}
end

local providedHash = ARGV[1]
local maxAttempts = tonumber(ARGV[2])
local nowUnix = tonumber(ARGV[3])

local version = string.byte(data, 1)
if version ~= 1 then
  redis.call('DEL', KEYS[1])
  return {err='not_found'}
end

local a0 = string.byte(data, 3)
local a1 = string.byte(data, 4)
local attempts = a0 * 256 + a1

local e0,e1,e2,e3,e4,e5,e6,e7 = string.byte(data, 5, 12)
local expiresAt = e0
for _, b in ipairs({e1,e2,e3,e4,e5,e6,e7}) do
  expiresAt = expiresAt * 256 + b
end

if nowUnix > expiresAt then
  redis.call('DEL', KEYS[1])
  return {err='expired'}
end

local storedHash = string.sub(data, 29, 60)

if storedHash ~= providedHash then
  attempts = attempts + 1
  if attempts >= maxAttempts then
    redis.call('DEL', KEYS[1])
    return {err='attempts_exceeded'}
  end
  local newA0 = math.floor(attempts / 256)
  local newA1 = attempts % 256
  local newData = string.sub(data, 1, 2) .. string.char(newA0, newA1) .. string.sub(data, 5)
  local ttlMs = redis.call('PTTL', KEYS[1])
  if ttlMs <= 0 then
    redis.call('DEL', KEYS[1])
    return {err='expired'}
  end
  redis.call('SET', KEYS[1], newData, 'PX', ttlMs)
  return {err='secret_mismatch'}
end

redis.call('DEL', KEYS[1])
return data
`)

// ArtifactRecord is a pending one-time verification challenge. Only the
// salted hash of the secret is stored; the plaintext goes to the user
// out of band and is never persisted.
type ArtifactRecord struct {
	Purpose    Purpose
	Attempts   uint16
	ExpiresAt  int64
	Salt       [16]byte
	SecretHash [32]byte

	// Payload carries purpose-specific metadata, for example the email
	// address a verification was sent to.
	Payload string
}

// ArtifactStore persists one-time verification artifacts in Redis under
// av:<userID>:<purpose> keys.
type ArtifactStore struct {
	redis  redis.UniversalClient
	prefix string
}

func NewArtifactStore(redisClient redis.UniversalClient, prefix string) *ArtifactStore {
	if prefix == "" {
		prefix = "av"
	}
	return &ArtifactStore{
		redis:  redisClient,
		prefix: prefix,
	}
}

func (s *ArtifactStore) key(userID string, purpose Purpose) string {
	return s.prefix + ":" + userID + ":" + purpose.String()
}

// Save persists an artifact record, replacing any previous artifact for
// the same user and purpose.
func (s *ArtifactStore) Save(ctx context.Context, userID string, record *ArtifactRecord, ttl time.Duration) error {
	encoded, err := encodeArtifactRecord(record)
	if err != nil {
		return err
	}

	if err := s.redis.Set(ctx, s.key(userID, record.Purpose), encoded, ttl).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrArtifactRedisUnavailable, err)
	}

	return nil
}

// Consume redeems an artifact with the presented plaintext secret.
//
// Two round trips: the record is read once to recover the salt, then a
// Lua script compares the salted hash, increments attempts on mismatch,
// deletes on the configured strike or on a match. The deletion paths are
// atomic, so an artifact is never redeemed twice. A replaced record
// between the two steps reads as a mismatch against the new secret.
func (s *ArtifactStore) Consume(
	ctx context.Context,
	userID string,
	purpose Purpose,
	presented string,
	maxAttempts int,
) (*ArtifactRecord, error) {
	key := s.key(userID, purpose)

	data, err := s.redis.Get(ctx, key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrArtifactNotFound
		}
		return nil, fmt.Errorf("%w: %v", ErrArtifactRedisUnavailable, err)
	}
	current, err := decodeArtifactRecord(data)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrArtifactRedisUnavailable, err)
	}

	providedHash := internal.HashArtifactSecret(current.Salt, presented)
	nowUnix := time.Now().Unix()

	result, err := consumeArtifactLua.Run(ctx, s.redis,
		[]string{key},
		string(providedHash[:]),
		maxAttempts,
		nowUnix,
	).Result()

	if err != nil {
		switch err.Error() {
		case "not_found":
			return nil, ErrArtifactNotFound
		case "expired":
			return nil, ErrArtifactExpired
		case "attempts_exceeded":
			return nil, ErrArtifactAttemptsExceeded
		case "secret_mismatch":
			return nil, ErrArtifactSecretMismatch
		default:
			return nil, fmt.Errorf("%w: %v", ErrArtifactRedisUnavailable, err)
		}
	}

	raw, ok := result.(string)
	if !ok {
		return nil, fmt.Errorf("%w: unexpected lua result type", ErrArtifactRedisUnavailable)
	}

	record, decErr := decodeArtifactRecord([]byte(raw))
	if decErr != nil {
		return nil, fmt.Errorf("%w: %v", ErrArtifactRedisUnavailable, decErr)
	}

	// Final constant-time comparison in Go as defense-in-depth
	// (Lua already checked, but Lua string comparison is not constant-time)
	recheck := internal.HashArtifactSecret(record.Salt, presented)
	if subtle.ConstantTimeCompare(record.SecretHash[:], recheck[:]) != 1 {
		return nil, ErrArtifactSecretMismatch
	}

	return record, nil
}

// Delete drops a pending artifact if one exists. Missing records are a
// no-op success.
func (s *ArtifactStore) Delete(ctx context.Context, userID string, purpose Purpose) error {
	if err := s.redis.Del(ctx, s.key(userID, purpose)).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrArtifactRedisUnavailable, err)
	}
	return nil
}

func encodeArtifactRecord(record *ArtifactRecord) ([]byte, error) {
	var buf bytes.Buffer

	buf.WriteByte(artifactRecordVersionV1)
	buf.WriteByte(byte(record.Purpose))

	if err := binary.Write(&buf, binary.BigEndian, record.Attempts); err != nil {
		return nil, err
	}
	if err := binary.Write(&buf, binary.BigEndian, record.ExpiresAt); err != nil {
		return nil, err
	}

	buf.Write(record.Salt[:])
	buf.Write(record.SecretHash[:])

	if len(record.Payload) > 65535 {
		return nil, errors.New("artifact payload too long")
	}
	if err := binary.Write(&buf, binary.BigEndian, uint16(len(record.Payload))); err != nil {
		return nil, err
	}
	buf.WriteString(record.Payload)

	return buf.Bytes(), nil
}

func decodeArtifactRecord(data []byte) (*ArtifactRecord, error) {
	reader := bytes.NewReader(data)

	version, err := reader.ReadByte()
	if err != nil {
		return nil, err
	}
	if version != artifactRecordVersionV1 {
		return nil, errors.New("invalid artifact record version")
	}

	purpose, err := reader.ReadByte()
	if err != nil {
		return nil, err
	}

	record := &ArtifactRecord{
		Purpose: Purpose(purpose),
	}

	if err := binary.Read(reader, binary.BigEndian, &record.Attempts); err != nil {
		return nil, err
	}
	if err := binary.Read(reader, binary.BigEndian, &record.ExpiresAt); err != nil {
		return nil, err
	}
	if _, err := io.ReadFull(reader, record.Salt[:]); err != nil {
		return nil, err
	}
	if _, err := io.ReadFull(reader, record.SecretHash[:]); err != nil {
		return nil, err
	}

	var payloadLen uint16
	if err := binary.Read(reader, binary.BigEndian, &payloadLen); err != nil {
		return nil, err
	}
	payload := make([]byte, payloadLen)
	if _, err := io.ReadFull(reader, payload); err != nil {
		return nil, err
	}
	record.Payload = string(payload)

	return record, nil
}
