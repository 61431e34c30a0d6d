package authcore

import (
	"context"
	"errors"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"github.com/skillbridge/authcore/password"
)

type memCredStore struct {
	mu     sync.Mutex
	byID   map[string]*UserRecord
	idents map[string]string
	nextID int
}

func newMemCredStore() *memCredStore {
	return &memCredStore{
		byID:   map[string]*UserRecord{},
		idents: map[string]string{},
	}
}

func (s *memCredStore) FindByIdentifier(_ context.Context, identifier string) (*UserRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id, ok := s.idents[identifier]
	if !ok {
		return nil, ErrUserNotFound
	}
	u := *s.byID[id]
	return &u, nil
}

func (s *memCredStore) FindByID(_ context.Context, userID string) (*UserRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.byID[userID]
	if !ok {
		return nil, ErrUserNotFound
	}
	copied := *u
	return &copied, nil
}

func (s *memCredStore) Create(_ context.Context, user NewUser) (*UserRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, taken := s.idents[user.Identifier]; taken {
		return nil, ErrDuplicateIdentifier
	}
	s.nextID++
	rec := &UserRecord{
		ID:           "u" + strconv.Itoa(s.nextID),
		Identifier:   user.Identifier,
		Phone:        user.Phone,
		PasswordHash: user.PasswordHash,
		Role:         user.Role,
		Status:       user.Status,
	}
	s.byID[rec.ID] = rec
	s.idents[user.Identifier] = rec.ID
	copied := *rec
	return &copied, nil
}

func (s *memCredStore) UpdatePassword(_ context.Context, userID, hash string) error {
	return s.update(userID, func(u *UserRecord) { u.PasswordHash = hash })
}

func (s *memCredStore) RecordLoginFailure(_ context.Context, userID string, lockUntil int64) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.byID[userID]
	if !ok {
		return 0, ErrUserNotFound
	}
	u.FailedAttempts++
	if lockUntil > u.LockUntil {
		u.LockUntil = lockUntil
	}
	return u.FailedAttempts, nil
}

func (s *memCredStore) ClearLoginFailures(_ context.Context, userID string) error {
	return s.update(userID, func(u *UserRecord) {
		u.FailedAttempts = 0
		u.LockUntil = 0
	})
}

func (s *memCredStore) MarkVerified(_ context.Context, userID, channel string) error {
	return s.update(userID, func(u *UserRecord) {
		if channel == ChannelPhone {
			u.PhoneVerified = true
		} else {
			u.EmailVerified = true
		}
	})
}

func (s *memCredStore) SetStatus(_ context.Context, userID, status string) error {
	return s.update(userID, func(u *UserRecord) { u.Status = status })
}

func (s *memCredStore) update(userID string, fn func(*UserRecord)) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.byID[userID]
	if !ok {
		return ErrUserNotFound
	}
	fn(u)
	return nil
}

type captureNotifier struct {
	mu     sync.Mutex
	links  map[string]string
	otps   map[string]string
	resets map[string]string
}

func newCaptureNotifier() *captureNotifier {
	return &captureNotifier{
		links:  map[string]string{},
		otps:   map[string]string{},
		resets: map[string]string{},
	}
}

func (n *captureNotifier) SendEmailVerification(_ context.Context, email, linkToken string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.links[email] = linkToken
	return nil
}

func (n *captureNotifier) SendOTP(_ context.Context, phone, code string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.otps[phone] = code
	return nil
}

func (n *captureNotifier) SendPasswordReset(_ context.Context, email, code string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.resets[email] = code
	return nil
}

func (n *captureNotifier) link(dest string) string {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.links[dest]
}

func (n *captureNotifier) otp(dest string) string {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.otps[dest]
}

func (n *captureNotifier) reset(dest string) string {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.resets[dest]
}

type engineEnv struct {
	engine *Engine
	store  *memCredStore
	notify *captureNotifier
	sink   *ChannelSink
}

func testConfig() Config {
	cfg := DefaultConfig()
	cfg.Token.AccessSecret = []byte("test-access-secret-0123456789abcdef")
	cfg.Token.RefreshSecret = []byte("test-refresh-secret-0123456789abcd")
	// Test-grade cost so seeding stays fast.
	cfg.Password.BcryptCost = 10
	return cfg
}

func newEngineEnv(t *testing.T, mutate func(*Config)) *engineEnv {
	t.Helper()

	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	cfg := testConfig()
	if mutate != nil {
		mutate(&cfg)
	}

	env := &engineEnv{
		store:  newMemCredStore(),
		notify: newCaptureNotifier(),
		sink:   NewChannelSink(64),
	}

	engine, err := New().
		WithConfig(cfg).
		WithRedis(rdb).
		WithCredentialStore(env.store).
		WithNotifier(env.notify).
		WithAuditSink(env.sink).
		Build()
	if err != nil {
		t.Fatalf("build engine: %v", err)
	}
	t.Cleanup(engine.Close)

	env.engine = engine
	return env
}

const (
	testUserAgent = "integration-test/1.0"
	testIP        = "198.51.100.7"
)

func testCtx() context.Context {
	ctx := WithClientIP(context.Background(), testIP)
	return WithUserAgent(ctx, testUserAgent)
}

func webDevice(deviceID string) DeviceInfo {
	return DeviceInfo{
		DeviceID:  deviceID,
		Platform:  "web",
		UserAgent: testUserAgent,
		IPAddress: testIP,
	}
}

func (env *engineEnv) seedActiveUser(t *testing.T, identifier, pw string) string {
	t.Helper()
	hasher, err := password.NewBcrypt(10)
	if err != nil {
		t.Fatalf("hasher: %v", err)
	}
	hashed, err := hasher.Hash(pw)
	if err != nil {
		t.Fatalf("hash: %v", err)
	}
	user, err := env.store.Create(context.Background(), NewUser{
		Identifier:   identifier,
		PasswordHash: hashed,
		Role:         "buyer",
		Status:       AccountActive,
	})
	if err != nil {
		t.Fatalf("seed user: %v", err)
	}
	return user.ID
}

func TestBuilderRequiresDependencies(t *testing.T) {
	if _, err := New().Build(); err == nil {
		t.Fatal("expected error without redis")
	}

	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer rdb.Close()

	if _, err := New().WithRedis(rdb).Build(); err == nil {
		t.Fatal("expected error without credential store")
	}

	b := New().WithConfig(testConfig()).WithRedis(rdb).WithCredentialStore(newMemCredStore())
	if _, err := b.Build(); err != nil {
		t.Fatalf("build: %v", err)
	}
	if _, err := b.Build(); err == nil {
		t.Fatal("builder must refuse to build twice")
	}
}

func TestBuilderRejectsInvalidConfig(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer rdb.Close()

	cfg := testConfig()
	cfg.Token.RefreshTTL = cfg.Token.AccessTTL / 2

	_, err := New().WithConfig(cfg).WithRedis(rdb).WithCredentialStore(newMemCredStore()).Build()
	if err == nil {
		t.Fatal("expected validation error")
	}
}

func TestLoginValidateLogout(t *testing.T) {
	env := newEngineEnv(t, nil)
	ctx := testCtx()
	env.seedActiveUser(t, "alice@example.com", "hunter2abc9")

	if _, err := env.engine.Login(ctx, "alice@example.com", "wrong-pass1", webDevice("dev-1")); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("wrong password: got %v", err)
	}
	if _, err := env.engine.Login(ctx, "nobody@example.com", "hunter2abc9", webDevice("dev-1")); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("unknown identifier: got %v", err)
	}

	out, err := env.engine.Login(ctx, "alice@example.com", "hunter2abc9", webDevice("dev-1"))
	if err != nil {
		t.Fatalf("login: %v", err)
	}
	if out.Pair.AccessToken == "" || out.Pair.RefreshToken == "" {
		t.Fatal("empty token pair")
	}

	res, err := env.engine.ValidateToken(ctx, out.Pair.AccessToken)
	if err != nil {
		t.Fatalf("validate: %v", err)
	}
	if res.UserID != out.UserID || res.SessionID != out.SessionID {
		t.Fatalf("claims mismatch: %+v vs outcome %+v", res, out)
	}
	if res.Role != "buyer" || res.Platform != "web" || res.Status != AccountActive {
		t.Fatalf("unexpected claims: %+v", res)
	}

	if err := env.engine.Logout(ctx, out.Pair.AccessToken); err != nil {
		t.Fatalf("logout: %v", err)
	}
	// Idempotent.
	if err := env.engine.Logout(ctx, out.Pair.AccessToken); err != nil {
		t.Fatalf("second logout: %v", err)
	}

	if _, err := env.engine.ValidateToken(ctx, out.Pair.AccessToken); !errors.Is(err, ErrTokenRevoked) {
		t.Fatalf("validate after logout: got %v", err)
	}
	if _, err := env.engine.ValidateToken(ctx, "not-a-token"); !errors.Is(err, ErrTokenMalformed) {
		t.Fatalf("garbage token: got %v", err)
	}
}

func TestRefreshIssuesNewPair(t *testing.T) {
	env := newEngineEnv(t, nil)
	ctx := testCtx()
	env.seedActiveUser(t, "alice@example.com", "hunter2abc9")

	out, err := env.engine.Login(ctx, "alice@example.com", "hunter2abc9", webDevice("dev-1"))
	if err != nil {
		t.Fatalf("login: %v", err)
	}

	refreshed, err := env.engine.Refresh(ctx, out.Pair.RefreshToken)
	if err != nil {
		t.Fatalf("refresh: %v", err)
	}
	if refreshed.Pair.RefreshToken == "" || refreshed.Pair.RefreshToken == out.Pair.RefreshToken {
		t.Fatal("refresh must mint a fresh refresh token")
	}
	if refreshed.Pair.AccessToken == out.Pair.AccessToken {
		t.Fatal("access token must be re-minted")
	}
	if refreshed.Pair.RefreshExpiresIn <= 0 {
		t.Fatal("refresh expiry must be reported")
	}

	if _, err := env.engine.ValidateToken(ctx, refreshed.Pair.AccessToken); err != nil {
		t.Fatalf("validate refreshed access: %v", err)
	}

	// The presented refresh token is not invalidated, and the minted
	// one is usable too.
	if _, err := env.engine.Refresh(ctx, out.Pair.RefreshToken); err != nil {
		t.Fatalf("refresh with presented token: %v", err)
	}
	if _, err := env.engine.Refresh(ctx, refreshed.Pair.RefreshToken); err != nil {
		t.Fatalf("refresh with minted token: %v", err)
	}
}

func TestRefreshDeviceMismatchFlagsSession(t *testing.T) {
	env := newEngineEnv(t, nil)
	ctx := testCtx()
	env.seedActiveUser(t, "alice@example.com", "hunter2abc9")

	out, err := env.engine.Login(ctx, "alice@example.com", "hunter2abc9", webDevice("dev-1"))
	if err != nil {
		t.Fatalf("login: %v", err)
	}

	strangeCtx := WithUserAgent(WithClientIP(context.Background(), testIP), "other-agent/9.9")
	if _, err := env.engine.Refresh(strangeCtx, out.Pair.RefreshToken); !errors.Is(err, ErrDeviceMismatch) {
		t.Fatalf("mismatched agent: got %v", err)
	}

	sessions, err := env.engine.ActiveSessions(ctx, out.UserID)
	if err != nil {
		t.Fatalf("active sessions: %v", err)
	}
	if len(sessions) != 1 || !sessions[0].Suspicious {
		t.Fatalf("session should be flagged suspicious: %+v", sessions)
	}
}

func TestLogoutAllStalesOtherDevices(t *testing.T) {
	env := newEngineEnv(t, nil)
	ctx := testCtx()
	env.seedActiveUser(t, "alice@example.com", "hunter2abc9")

	first, err := env.engine.Login(ctx, "alice@example.com", "hunter2abc9", webDevice("dev-1"))
	if err != nil {
		t.Fatalf("login 1: %v", err)
	}
	second, err := env.engine.Login(ctx, "alice@example.com", "hunter2abc9", webDevice("dev-2"))
	if err != nil {
		t.Fatalf("login 2: %v", err)
	}

	out, err := env.engine.LogoutAll(ctx, first.Pair.AccessToken)
	if err != nil {
		t.Fatalf("logout all: %v", err)
	}
	if out.SessionsRevoked != 2 {
		t.Fatalf("revoked %d sessions, want 2", out.SessionsRevoked)
	}
	if out.NewEpoch != 1 {
		t.Fatalf("epoch = %d, want 1", out.NewEpoch)
	}

	if _, err := env.engine.Refresh(ctx, second.Pair.RefreshToken); !errors.Is(err, ErrTokenStale) {
		t.Fatalf("refresh after logout-all: got %v", err)
	}
	if _, err := env.engine.ValidateToken(ctx, second.Pair.AccessToken); !errors.Is(err, ErrSessionNotActive) {
		t.Fatalf("validate after logout-all: got %v", err)
	}
}

func TestLockoutAfterRepeatedFailures(t *testing.T) {
	env := newEngineEnv(t, func(cfg *Config) {
		cfg.Lockout.MaxFailedAttempts = 3
		cfg.Lockout.LockDuration = 15 * time.Minute
	})
	ctx := testCtx()
	env.seedActiveUser(t, "alice@example.com", "hunter2abc9")

	for i := 0; i < 3; i++ {
		if _, err := env.engine.Login(ctx, "alice@example.com", "wrong-pass1", webDevice("dev-1")); !errors.Is(err, ErrInvalidCredentials) {
			t.Fatalf("attempt %d: got %v", i+1, err)
		}
	}

	// Correct password during the lock window is still rejected.
	if _, err := env.engine.Login(ctx, "alice@example.com", "hunter2abc9", webDevice("dev-1")); !errors.Is(err, ErrAccountLocked) {
		t.Fatalf("locked login: got %v", err)
	}
}

func TestChangePasswordKeepsCurrentSession(t *testing.T) {
	env := newEngineEnv(t, nil)
	ctx := testCtx()
	env.seedActiveUser(t, "alice@example.com", "hunter2abc9")

	current, err := env.engine.Login(ctx, "alice@example.com", "hunter2abc9", webDevice("dev-1"))
	if err != nil {
		t.Fatalf("login 1: %v", err)
	}
	other, err := env.engine.Login(ctx, "alice@example.com", "hunter2abc9", webDevice("dev-2"))
	if err != nil {
		t.Fatalf("login 2: %v", err)
	}

	if _, err := env.engine.ChangePassword(ctx, current.Pair.AccessToken, "wrong-pass1", "newpass99x"); !errors.Is(err, ErrPasswordMismatch) {
		t.Fatalf("wrong current password: got %v", err)
	}
	if _, err := env.engine.ChangePassword(ctx, current.Pair.AccessToken, "hunter2abc9", "short"); !errors.Is(err, ErrWeakPassword) {
		t.Fatalf("weak new password: got %v", err)
	}

	out, err := env.engine.ChangePassword(ctx, current.Pair.AccessToken, "hunter2abc9", "newpass99x")
	if err != nil {
		t.Fatalf("change password: %v", err)
	}
	if out.SessionsRevoked != 1 {
		t.Fatalf("revoked %d sessions, want 1", out.SessionsRevoked)
	}
	if out.Pair.RefreshToken == "" || out.Pair.RefreshToken == current.Pair.RefreshToken {
		t.Fatal("expected a fresh refresh token at the new epoch")
	}

	// The old refresh token died with the epoch bump; the reissued one works.
	if _, err := env.engine.Refresh(ctx, current.Pair.RefreshToken); !errors.Is(err, ErrTokenStale) {
		t.Fatalf("old refresh: got %v", err)
	}
	if _, err := env.engine.Refresh(ctx, out.Pair.RefreshToken); err != nil {
		t.Fatalf("reissued refresh: %v", err)
	}

	if _, err := env.engine.ValidateToken(ctx, other.Pair.AccessToken); !errors.Is(err, ErrSessionNotActive) {
		t.Fatalf("other session: got %v", err)
	}

	if _, err := env.engine.Login(ctx, "alice@example.com", "newpass99x", webDevice("dev-3")); err != nil {
		t.Fatalf("login with new password: %v", err)
	}
}

func TestRegisterAndVerificationActivates(t *testing.T) {
	env := newEngineEnv(t, nil)
	ctx := testCtx()

	out, err := env.engine.Register(ctx, RegisterRequest{
		Identifier: "bob@example.com",
		Phone:      "+15550100",
		Password:   "hunter2abc9",
		Device:     webDevice("dev-1"),
	})
	if err != nil {
		t.Fatalf("register: %v", err)
	}

	res, err := env.engine.ValidateToken(ctx, out.Pair.AccessToken)
	if err != nil {
		t.Fatalf("validate: %v", err)
	}
	if res.Status != AccountPending || res.Verification != VerificationNone {
		t.Fatalf("fresh account claims: %+v", res)
	}

	if _, err := env.engine.Register(ctx, RegisterRequest{
		Identifier: "bob@example.com",
		Password:   "hunter2abc9",
		Device:     webDevice("dev-1"),
	}); !errors.Is(err, ErrDuplicateIdentifier) {
		t.Fatalf("duplicate register: got %v", err)
	}
	if _, err := env.engine.Register(ctx, RegisterRequest{
		Identifier: "carol@example.com",
		Password:   "short",
		Device:     webDevice("dev-1"),
	}); !errors.Is(err, ErrWeakPassword) {
		t.Fatalf("weak password: got %v", err)
	}

	link := env.notify.link("bob@example.com")
	otp := env.notify.otp("+15550100")
	if link == "" || otp == "" {
		t.Fatal("verification challenges not dispatched at signup")
	}

	emailOut, err := env.engine.ConfirmVerification(ctx, out.UserID, ChannelEmail, link)
	if err != nil {
		t.Fatalf("confirm email: %v", err)
	}
	if emailOut.Activated {
		t.Fatal("account must not activate before phone confirms")
	}

	phoneOut, err := env.engine.ConfirmVerification(ctx, out.UserID, ChannelPhone, otp)
	if err != nil {
		t.Fatalf("confirm phone: %v", err)
	}
	if !phoneOut.Activated {
		t.Fatal("account should activate after both channels confirm")
	}

	user, err := env.store.FindByID(ctx, out.UserID)
	if err != nil {
		t.Fatalf("find user: %v", err)
	}
	if user.Status != AccountActive {
		t.Fatalf("status = %q, want active", user.Status)
	}

	if _, err := env.engine.ConfirmVerification(ctx, out.UserID, ChannelEmail, link); !errors.Is(err, ErrAlreadyVerified) {
		t.Fatalf("re-confirm: got %v", err)
	}
}

func TestVerificationThreeStrikes(t *testing.T) {
	env := newEngineEnv(t, nil)
	ctx := testCtx()

	out, err := env.engine.Register(ctx, RegisterRequest{
		Identifier: "bob@example.com",
		Phone:      "+15550100",
		Password:   "hunter2abc9",
		Device:     webDevice("dev-1"),
	})
	if err != nil {
		t.Fatalf("register: %v", err)
	}

	for i := 0; i < 2; i++ {
		if _, err := env.engine.ConfirmVerification(ctx, out.UserID, ChannelPhone, "000000"); !errors.Is(err, ErrVerificationCodeInvalid) {
			t.Fatalf("wrong code %d: got %v", i+1, err)
		}
	}
	if _, err := env.engine.ConfirmVerification(ctx, out.UserID, ChannelPhone, "000000"); !errors.Is(err, ErrTooManyAttempts) {
		t.Fatalf("third wrong code: got %v", err)
	}

	// The challenge burned with the third strike; even the real code is dead.
	otp := env.notify.otp("+15550100")
	if _, err := env.engine.ConfirmVerification(ctx, out.UserID, ChannelPhone, otp); !errors.Is(err, ErrVerificationCodeInvalid) {
		t.Fatalf("burned code: got %v", err)
	}
}

func TestPasswordResetInvalidatesEverything(t *testing.T) {
	env := newEngineEnv(t, nil)
	ctx := testCtx()
	env.seedActiveUser(t, "alice@example.com", "hunter2abc9")

	session, err := env.engine.Login(ctx, "alice@example.com", "hunter2abc9", webDevice("dev-1"))
	if err != nil {
		t.Fatalf("login: %v", err)
	}

	// Unknown identifiers succeed silently and deliver nothing.
	if err := env.engine.RequestPasswordReset(ctx, "nobody@example.com"); err != nil {
		t.Fatalf("unknown identifier: %v", err)
	}
	if env.notify.reset("nobody@example.com") != "" {
		t.Fatal("nothing should be delivered for unknown identifiers")
	}

	if err := env.engine.RequestPasswordReset(ctx, "alice@example.com"); err != nil {
		t.Fatalf("request reset: %v", err)
	}
	code := env.notify.reset("alice@example.com")
	if code == "" {
		t.Fatal("reset code not delivered")
	}

	if _, err := env.engine.ResetPassword(ctx, "alice@example.com", "000000", "newpass99x"); !errors.Is(err, ErrVerificationCodeInvalid) {
		t.Fatalf("wrong code: got %v", err)
	}

	out, err := env.engine.ResetPassword(ctx, "alice@example.com", code, "newpass99x")
	if err != nil {
		t.Fatalf("reset: %v", err)
	}
	if out.SessionsRevoked != 1 {
		t.Fatalf("revoked %d sessions, want 1", out.SessionsRevoked)
	}

	if _, err := env.engine.Refresh(ctx, session.Pair.RefreshToken); !errors.Is(err, ErrTokenStale) {
		t.Fatalf("old refresh: got %v", err)
	}
	if _, err := env.engine.Login(ctx, "alice@example.com", "hunter2abc9", webDevice("dev-1")); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("old password: got %v", err)
	}
	if _, err := env.engine.Login(ctx, "alice@example.com", "newpass99x", webDevice("dev-1")); err != nil {
		t.Fatalf("new password: %v", err)
	}

	// Codes are single use.
	if _, err := env.engine.ResetPassword(ctx, "alice@example.com", code, "anotherpw7"); !errors.Is(err, ErrVerificationCodeInvalid) {
		t.Fatalf("reused code: got %v", err)
	}
}

func TestSuspendAndRestoreAccount(t *testing.T) {
	env := newEngineEnv(t, nil)
	ctx := testCtx()
	userID := env.seedActiveUser(t, "alice@example.com", "hunter2abc9")

	session, err := env.engine.Login(ctx, "alice@example.com", "hunter2abc9", webDevice("dev-1"))
	if err != nil {
		t.Fatalf("login: %v", err)
	}

	out, err := env.engine.SetAccountStatus(ctx, userID, AccountSuspended)
	if err != nil {
		t.Fatalf("suspend: %v", err)
	}
	if out.SessionsRevoked != 1 || out.NewEpoch != 1 {
		t.Fatalf("suspension scope: %+v", out)
	}

	if _, err := env.engine.Login(ctx, "alice@example.com", "hunter2abc9", webDevice("dev-1")); !errors.Is(err, ErrAccountSuspended) {
		t.Fatalf("login while suspended: got %v", err)
	}
	if _, err := env.engine.Refresh(ctx, session.Pair.RefreshToken); !errors.Is(err, ErrTokenStale) {
		t.Fatalf("refresh while suspended: got %v", err)
	}

	if _, err := env.engine.SetAccountStatus(ctx, userID, AccountActive); err != nil {
		t.Fatalf("restore: %v", err)
	}
	if _, err := env.engine.Login(ctx, "alice@example.com", "hunter2abc9", webDevice("dev-1")); err != nil {
		t.Fatalf("login after restore: %v", err)
	}

	if _, err := env.engine.SetAccountStatus(ctx, "missing", AccountSuspended); !errors.Is(err, ErrUserNotFound) {
		t.Fatalf("unknown user: got %v", err)
	}
}

func TestSessionCapEvictsOldest(t *testing.T) {
	env := newEngineEnv(t, func(cfg *Config) {
		cfg.Session.WebCap = 2
	})
	ctx := testCtx()
	userID := env.seedActiveUser(t, "alice@example.com", "hunter2abc9")

	var outs []*LoginOutcome
	for i := 0; i < 3; i++ {
		out, err := env.engine.Login(ctx, "alice@example.com", "hunter2abc9", webDevice("dev-"+strconv.Itoa(i)))
		if err != nil {
			t.Fatalf("login %d: %v", i, err)
		}
		outs = append(outs, out)
	}

	sessions, err := env.engine.ActiveSessions(ctx, userID)
	if err != nil {
		t.Fatalf("active sessions: %v", err)
	}
	if len(sessions) != 2 {
		t.Fatalf("active sessions = %d, want 2", len(sessions))
	}

	// Exactly one of the three tokens was evicted; same-second logins
	// tie on activity so which one is unspecified.
	evicted := 0
	for i, out := range outs {
		_, err := env.engine.ValidateToken(ctx, out.Pair.AccessToken)
		switch {
		case err == nil:
		case errors.Is(err, ErrSessionNotActive):
			evicted++
		default:
			t.Fatalf("validate %d: %v", i, err)
		}
	}
	if evicted != 1 {
		t.Fatalf("evicted %d sessions, want 1", evicted)
	}
}

func TestRevokeSessionOwnership(t *testing.T) {
	env := newEngineEnv(t, nil)
	ctx := testCtx()
	env.seedActiveUser(t, "alice@example.com", "hunter2abc9")
	bobID := env.seedActiveUser(t, "bob@example.com", "hunter2abc9")

	out, err := env.engine.Login(ctx, "alice@example.com", "hunter2abc9", webDevice("dev-1"))
	if err != nil {
		t.Fatalf("login: %v", err)
	}

	if err := env.engine.RevokeSession(ctx, bobID, out.SessionID); !errors.Is(err, ErrSessionNotFound) {
		t.Fatalf("cross-user revoke: got %v", err)
	}
	if err := env.engine.RevokeSession(ctx, out.UserID, out.SessionID); err != nil {
		t.Fatalf("revoke: %v", err)
	}
	if _, err := env.engine.ValidateToken(ctx, out.Pair.AccessToken); !errors.Is(err, ErrSessionNotActive) {
		t.Fatalf("validate revoked session: got %v", err)
	}
}

func TestAuditAndMetrics(t *testing.T) {
	env := newEngineEnv(t, func(cfg *Config) {
		cfg.Audit.Enabled = true
	})
	ctx := testCtx()
	env.seedActiveUser(t, "alice@example.com", "hunter2abc9")

	if _, err := env.engine.Login(ctx, "alice@example.com", "hunter2abc9", webDevice("dev-1")); err != nil {
		t.Fatalf("login: %v", err)
	}

	select {
	case ev := <-env.sink.Events():
		if ev.EventType != "login_success" || !ev.Success {
			t.Fatalf("unexpected audit event: %+v", ev)
		}
		if ev.IP != testIP {
			t.Fatalf("audit IP = %q, want %q", ev.IP, testIP)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("no audit event delivered")
	}

	snap := env.engine.MetricsSnapshot()
	if snap.Counters[MetricLoginSuccess] != 1 {
		t.Fatalf("login_success = %d, want 1", snap.Counters[MetricLoginSuccess])
	}
	if snap.Counters[MetricSessionCreated] != 1 {
		t.Fatalf("session_created = %d, want 1", snap.Counters[MetricSessionCreated])
	}
	if env.engine.AuditDropped() != 0 {
		t.Fatal("no audit events should be dropped")
	}
}

func TestSecurityReportReflectsConfig(t *testing.T) {
	env := newEngineEnv(t, func(cfg *Config) {
		cfg.Revocation.FailOpen = true
		cfg.Session.WebCap = 7
	})

	report := env.engine.SecurityReport()
	if !report.RevocationFailOpen {
		t.Fatal("fail-open not surfaced")
	}
	if report.WebCap != 7 {
		t.Fatalf("web cap = %d, want 7", report.WebCap)
	}
	if report.BcryptCost != 10 {
		t.Fatalf("bcrypt cost = %d, want 10", report.BcryptCost)
	}
}

func TestEngineNotReady(t *testing.T) {
	var engine *Engine
	if _, err := engine.Login(context.Background(), "a", "b", webDevice("d")); !errors.Is(err, ErrEngineNotReady) {
		t.Fatalf("nil engine: got %v", err)
	}
	if _, err := (&Engine{}).ValidateToken(context.Background(), "t"); !errors.Is(err, ErrEngineNotReady) {
		t.Fatalf("zero engine: got %v", err)
	}
}
