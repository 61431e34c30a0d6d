package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/skillbridge/authcore"
)

// Schema is the table the store reads and writes. lock_until and
// timestamps are Unix seconds to match the engine's UserRecord.
const Schema = `
CREATE TABLE IF NOT EXISTS auth_users (
    id              UUID PRIMARY KEY,
    identifier      TEXT NOT NULL UNIQUE,
    phone           TEXT NOT NULL DEFAULT '',
    password_hash   TEXT NOT NULL,
    role            TEXT NOT NULL,
    status          TEXT NOT NULL,
    email_verified  BOOLEAN NOT NULL DEFAULT FALSE,
    phone_verified  BOOLEAN NOT NULL DEFAULT FALSE,
    failed_attempts INT NOT NULL DEFAULT 0,
    lock_until      BIGINT NOT NULL DEFAULT 0,
    created_at      BIGINT NOT NULL,
    updated_at      BIGINT NOT NULL
);
`

const userColumns = `id, identifier, phone, password_hash, role, status,
	email_verified, phone_verified, failed_attempts, lock_until`

// uniqueViolation is the Postgres error code for duplicate keys.
const uniqueViolation = "23505"

// Store implements authcore.CredentialStore over a pgx connection pool.
// The pool belongs to the caller.
type Store struct {
	pool *pgxpool.Pool
}

var _ authcore.CredentialStore = (*Store)(nil)

// New returns a store over the given pool.
func New(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

func (s *Store) FindByIdentifier(ctx context.Context, identifier string) (*authcore.UserRecord, error) {
	return s.findWhere(ctx, "identifier = $1", identifier)
}

func (s *Store) FindByID(ctx context.Context, userID string) (*authcore.UserRecord, error) {
	return s.findWhere(ctx, "id = $1", userID)
}

func (s *Store) findWhere(ctx context.Context, where string, arg any) (*authcore.UserRecord, error) {
	query := `SELECT ` + userColumns + ` FROM auth_users WHERE ` + where

	var user authcore.UserRecord
	err := s.pool.QueryRow(ctx, query, arg).Scan(
		&user.ID,
		&user.Identifier,
		&user.Phone,
		&user.PasswordHash,
		&user.Role,
		&user.Status,
		&user.EmailVerified,
		&user.PhoneVerified,
		&user.FailedAttempts,
		&user.LockUntil,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, authcore.ErrUserNotFound
		}
		return nil, fmt.Errorf("find user: %w", err)
	}
	return &user, nil
}

func (s *Store) Create(ctx context.Context, user authcore.NewUser) (*authcore.UserRecord, error) {
	query := `INSERT INTO auth_users
		(id, identifier, phone, password_hash, role, status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, EXTRACT(EPOCH FROM now())::BIGINT, EXTRACT(EPOCH FROM now())::BIGINT)`

	id := uuid.NewString()
	_, err := s.pool.Exec(ctx, query,
		id, user.Identifier, user.Phone, user.PasswordHash, user.Role, user.Status)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return nil, authcore.ErrDuplicateIdentifier
		}
		return nil, fmt.Errorf("create user: %w", err)
	}

	return &authcore.UserRecord{
		ID:           id,
		Identifier:   user.Identifier,
		Phone:        user.Phone,
		PasswordHash: user.PasswordHash,
		Role:         user.Role,
		Status:       user.Status,
	}, nil
}

func (s *Store) UpdatePassword(ctx context.Context, userID, passwordHash string) error {
	query := `UPDATE auth_users SET password_hash = $2,
		updated_at = EXTRACT(EPOCH FROM now())::BIGINT WHERE id = $1`
	return s.exec(ctx, query, userID, passwordHash)
}

// RecordLoginFailure advances the failure counter atomically and arms
// the lock when lockUntil is non-zero. Returns the new counter value.
func (s *Store) RecordLoginFailure(ctx context.Context, userID string, lockUntil int64) (int, error) {
	query := `UPDATE auth_users
		SET failed_attempts = failed_attempts + 1,
		    lock_until = GREATEST(lock_until, $2),
		    updated_at = EXTRACT(EPOCH FROM now())::BIGINT
		WHERE id = $1
		RETURNING failed_attempts`

	var attempts int
	err := s.pool.QueryRow(ctx, query, userID, lockUntil).Scan(&attempts)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, authcore.ErrUserNotFound
		}
		return 0, fmt.Errorf("record login failure: %w", err)
	}
	return attempts, nil
}

func (s *Store) ClearLoginFailures(ctx context.Context, userID string) error {
	query := `UPDATE auth_users SET failed_attempts = 0, lock_until = 0,
		updated_at = EXTRACT(EPOCH FROM now())::BIGINT WHERE id = $1`
	return s.exec(ctx, query, userID)
}

func (s *Store) MarkVerified(ctx context.Context, userID, channel string) error {
	column := "email_verified"
	if channel == authcore.ChannelPhone {
		column = "phone_verified"
	}
	query := `UPDATE auth_users SET ` + column + ` = TRUE,
		updated_at = EXTRACT(EPOCH FROM now())::BIGINT WHERE id = $1`
	return s.exec(ctx, query, userID)
}

func (s *Store) SetStatus(ctx context.Context, userID, status string) error {
	query := `UPDATE auth_users SET status = $2,
		updated_at = EXTRACT(EPOCH FROM now())::BIGINT WHERE id = $1`
	return s.exec(ctx, query, userID, status)
}

func (s *Store) exec(ctx context.Context, query string, args ...any) error {
	tag, err := s.pool.Exec(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("update user: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return authcore.ErrUserNotFound
	}
	return nil
}
