package stores

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"github.com/skillbridge/authcore/internal"
)

func newArtifactStoreTest(t *testing.T) (*ArtifactStore, *miniredis.Miniredis, func()) {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis start: %v", err)
	}
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	store := NewArtifactStore(rdb, "")
	return store, mr, func() {
		rdb.Close()
		mr.Close()
	}
}

func saveArtifact(t *testing.T, store *ArtifactStore, userID string, purpose Purpose, secret string, ttl time.Duration) *ArtifactRecord {
	t.Helper()
	salt, err := internal.NewArtifactSalt()
	if err != nil {
		t.Fatalf("new salt: %v", err)
	}
	record := &ArtifactRecord{
		Purpose:    purpose,
		ExpiresAt:  time.Now().Add(ttl).Unix(),
		Salt:       salt,
		SecretHash: internal.HashArtifactSecret(salt, secret),
		Payload:    "user@example.com",
	}
	if err := store.Save(context.Background(), userID, record, ttl); err != nil {
		t.Fatalf("save: %v", err)
	}
	return record
}

func TestConsumeSingleRedemption(t *testing.T) {
	store, _, done := newArtifactStoreTest(t)
	defer done()
	ctx := context.Background()

	saveArtifact(t, store, "u-1", PurposeEmailVerify, "482913", 10*time.Minute)

	record, err := store.Consume(ctx, "u-1", PurposeEmailVerify, "482913", 3)
	if err != nil {
		t.Fatalf("consume: %v", err)
	}
	if record.Payload != "user@example.com" {
		t.Fatalf("payload: got %q", record.Payload)
	}

	// The record is deleted on redemption; the same secret cannot be
	// redeemed twice.
	if _, err := store.Consume(ctx, "u-1", PurposeEmailVerify, "482913", 3); !errors.Is(err, ErrArtifactNotFound) {
		t.Fatalf("second consume: got %v want ErrArtifactNotFound", err)
	}
}

func TestConsumeThreeStrikes(t *testing.T) {
	store, _, done := newArtifactStoreTest(t)
	defer done()
	ctx := context.Background()

	saveArtifact(t, store, "u-1", PurposePhoneVerify, "482913", 10*time.Minute)

	for i := 0; i < 2; i++ {
		if _, err := store.Consume(ctx, "u-1", PurposePhoneVerify, "000000", 3); !errors.Is(err, ErrArtifactSecretMismatch) {
			t.Fatalf("wrong attempt %d: got %v want ErrArtifactSecretMismatch", i+1, err)
		}
	}

	// Third wrong attempt invalidates the artifact entirely.
	if _, err := store.Consume(ctx, "u-1", PurposePhoneVerify, "000000", 3); !errors.Is(err, ErrArtifactAttemptsExceeded) {
		t.Fatalf("third wrong attempt: got %v want ErrArtifactAttemptsExceeded", err)
	}

	// Even the correct secret is now rejected.
	if _, err := store.Consume(ctx, "u-1", PurposePhoneVerify, "482913", 3); !errors.Is(err, ErrArtifactNotFound) {
		t.Fatalf("correct secret after strikes: got %v want ErrArtifactNotFound", err)
	}
}

func TestConsumeExpired(t *testing.T) {
	store, _, done := newArtifactStoreTest(t)
	defer done()
	ctx := context.Background()

	salt, err := internal.NewArtifactSalt()
	if err != nil {
		t.Fatalf("new salt: %v", err)
	}
	record := &ArtifactRecord{
		Purpose:    PurposePasswordReset,
		ExpiresAt:  time.Now().Add(-time.Minute).Unix(),
		Salt:       salt,
		SecretHash: internal.HashArtifactSecret(salt, "482913"),
	}
	if err := store.Save(ctx, "u-1", record, time.Hour); err != nil {
		t.Fatalf("save: %v", err)
	}

	if _, err := store.Consume(ctx, "u-1", PurposePasswordReset, "482913", 3); !errors.Is(err, ErrArtifactExpired) {
		t.Fatalf("expired consume: got %v want ErrArtifactExpired", err)
	}

	// Expiry deletes the record; a retry reads as missing, not expired.
	if _, err := store.Consume(ctx, "u-1", PurposePasswordReset, "482913", 3); !errors.Is(err, ErrArtifactNotFound) {
		t.Fatalf("consume after expiry: got %v want ErrArtifactNotFound", err)
	}
}

func TestSaveReplacesPrevious(t *testing.T) {
	store, _, done := newArtifactStoreTest(t)
	defer done()
	ctx := context.Background()

	saveArtifact(t, store, "u-1", PurposeEmailVerify, "111111", 10*time.Minute)
	saveArtifact(t, store, "u-1", PurposeEmailVerify, "222222", 10*time.Minute)

	// The first secret was invalidated by reissue.
	if _, err := store.Consume(ctx, "u-1", PurposeEmailVerify, "111111", 3); !errors.Is(err, ErrArtifactSecretMismatch) {
		t.Fatalf("old secret: got %v want ErrArtifactSecretMismatch", err)
	}
	if _, err := store.Consume(ctx, "u-1", PurposeEmailVerify, "222222", 3); err != nil {
		t.Fatalf("new secret: %v", err)
	}
}

func TestPurposesAreIsolated(t *testing.T) {
	store, _, done := newArtifactStoreTest(t)
	defer done()
	ctx := context.Background()

	saveArtifact(t, store, "u-1", PurposeEmailVerify, "482913", 10*time.Minute)
	saveArtifact(t, store, "u-1", PurposePhoneVerify, "777777", 10*time.Minute)

	if _, err := store.Consume(ctx, "u-1", PurposePhoneVerify, "777777", 3); err != nil {
		t.Fatalf("phone consume: %v", err)
	}
	if _, err := store.Consume(ctx, "u-1", PurposeEmailVerify, "482913", 3); err != nil {
		t.Fatalf("email consume: %v", err)
	}
}

func TestDeleteIdempotent(t *testing.T) {
	store, _, done := newArtifactStoreTest(t)
	defer done()
	ctx := context.Background()

	saveArtifact(t, store, "u-1", PurposeEmailVerify, "482913", 10*time.Minute)

	if err := store.Delete(ctx, "u-1", PurposeEmailVerify); err != nil {
		t.Fatalf("first delete: %v", err)
	}
	if err := store.Delete(ctx, "u-1", PurposeEmailVerify); err != nil {
		t.Fatalf("second delete: %v", err)
	}
	if _, err := store.Consume(ctx, "u-1", PurposeEmailVerify, "482913", 3); !errors.Is(err, ErrArtifactNotFound) {
		t.Fatalf("consume after delete: got %v want ErrArtifactNotFound", err)
	}
}
