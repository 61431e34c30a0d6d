package token

import (
	"errors"
	"testing"
	"time"
)

func testConfig() Config {
	return Config{
		AccessSecret:    []byte("access-secret-0123456789abcdef"),
		RefreshSecret:   []byte("refresh-secret-0123456789abcdef"),
		Issuer:          "authcore-test",
		AccessAudience:  "authcore:access",
		RefreshAudience: "authcore:refresh",
		AccessTTL:       15 * time.Minute,
		RefreshTTL:      720 * time.Hour,
	}
}

func testSubject() Subject {
	return Subject{
		UserID:       "user-1",
		Role:         "buyer",
		Status:       "active",
		Verification: "both",
		Platform:     "web",
	}
}

func TestNewCodecValidation(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*Config)
	}{
		{"missing secrets", func(c *Config) { c.AccessSecret = nil }},
		{"equal secrets", func(c *Config) { c.RefreshSecret = c.AccessSecret }},
		{"zero access ttl", func(c *Config) { c.AccessTTL = 0 }},
		{"refresh not longer", func(c *Config) { c.RefreshTTL = c.AccessTTL }},
		{"missing audience", func(c *Config) { c.AccessAudience = "" }},
		{"equal audiences", func(c *Config) { c.RefreshAudience = c.AccessAudience }},
		{"excessive leeway", func(c *Config) { c.Leeway = 5 * time.Minute }},
		{"negative leeway", func(c *Config) { c.Leeway = -time.Second }},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := testConfig()
			tc.mutate(&cfg)
			if _, err := NewCodec(cfg); err == nil {
				t.Fatal("expected config error, got nil")
			}
		})
	}

	if _, err := NewCodec(testConfig()); err != nil {
		t.Fatalf("valid config rejected: %v", err)
	}
}

func TestIssueAndVerifyPair(t *testing.T) {
	codec, err := NewCodec(testConfig())
	if err != nil {
		t.Fatalf("NewCodec: %v", err)
	}

	pair, err := codec.IssuePair(testSubject(), "sess-1", "dev-1", 3)
	if err != nil {
		t.Fatalf("IssuePair: %v", err)
	}
	if pair.AccessToken == "" || pair.RefreshToken == "" {
		t.Fatal("empty token in pair")
	}
	if pair.AccessJTI == pair.RefreshJTI {
		t.Fatal("access and refresh jti must differ")
	}

	ac, err := codec.VerifyAccess(pair.AccessToken)
	if err != nil {
		t.Fatalf("VerifyAccess: %v", err)
	}
	if ac.UserID != "user-1" || ac.SessionID != "sess-1" || ac.DeviceID != "dev-1" {
		t.Fatalf("unexpected access claims: %+v", ac)
	}
	if ac.Role != "buyer" || ac.Status != "active" || ac.Platform != "web" {
		t.Fatalf("unexpected subject claims: %+v", ac)
	}
	if ac.ID != pair.AccessJTI {
		t.Fatalf("jti mismatch: got %q want %q", ac.ID, pair.AccessJTI)
	}

	rc, err := codec.VerifyRefresh(pair.RefreshToken)
	if err != nil {
		t.Fatalf("VerifyRefresh: %v", err)
	}
	if rc.UserID != "user-1" || rc.SessionID != "sess-1" {
		t.Fatalf("unexpected refresh claims: %+v", rc)
	}
	if rc.TokenVersion != 3 {
		t.Fatalf("token version: got %d want 3", rc.TokenVersion)
	}
}

func TestIssueAccessStandalone(t *testing.T) {
	codec, err := NewCodec(testConfig())
	if err != nil {
		t.Fatalf("NewCodec: %v", err)
	}

	signed, jti, ttl, err := codec.IssueAccess(testSubject(), "sess-1", "dev-1")
	if err != nil {
		t.Fatalf("IssueAccess: %v", err)
	}
	if ttl != 15*time.Minute {
		t.Fatalf("ttl: got %v want 15m", ttl)
	}

	ac, err := codec.VerifyAccess(signed)
	if err != nil {
		t.Fatalf("VerifyAccess: %v", err)
	}
	if ac.ID != jti {
		t.Fatalf("jti mismatch: got %q want %q", ac.ID, jti)
	}
	if ac.SessionID != "sess-1" {
		t.Fatalf("session: got %q", ac.SessionID)
	}
}

func TestCrossTokenRejection(t *testing.T) {
	codec, err := NewCodec(testConfig())
	if err != nil {
		t.Fatalf("NewCodec: %v", err)
	}
	pair, err := codec.IssuePair(testSubject(), "sess-1", "dev-1", 0)
	if err != nil {
		t.Fatalf("IssuePair: %v", err)
	}

	// An access token presented as a refresh token fails the signature
	// check before the audience check ever runs, and vice versa.
	if _, err := codec.VerifyRefresh(pair.AccessToken); !errors.Is(err, ErrMalformed) {
		t.Fatalf("access-as-refresh: got %v want ErrMalformed", err)
	}
	if _, err := codec.VerifyAccess(pair.RefreshToken); !errors.Is(err, ErrMalformed) {
		t.Fatalf("refresh-as-access: got %v want ErrMalformed", err)
	}
}

func TestVerifyExpired(t *testing.T) {
	codec, err := NewCodec(testConfig())
	if err != nil {
		t.Fatalf("NewCodec: %v", err)
	}

	past := time.Now().Add(-48 * time.Hour)
	codec.now = func() time.Time { return past }
	pair, err := codec.IssuePair(testSubject(), "sess-1", "dev-1", 0)
	if err != nil {
		t.Fatalf("IssuePair: %v", err)
	}
	codec.now = time.Now

	if _, err := codec.VerifyAccess(pair.AccessToken); !errors.Is(err, ErrExpired) {
		t.Fatalf("expired access: got %v want ErrExpired", err)
	}
}

func TestVerifyFutureIssuedAt(t *testing.T) {
	codec, err := NewCodec(testConfig())
	if err != nil {
		t.Fatalf("NewCodec: %v", err)
	}

	future := time.Now().Add(10 * time.Minute)
	codec.now = func() time.Time { return future }
	pair, err := codec.IssuePair(testSubject(), "sess-1", "dev-1", 0)
	if err != nil {
		t.Fatalf("IssuePair: %v", err)
	}
	codec.now = time.Now

	if _, err := codec.VerifyAccess(pair.AccessToken); !errors.Is(err, ErrMalformed) {
		t.Fatalf("future iat: got %v want ErrMalformed", err)
	}
}

func TestVerifyMalformed(t *testing.T) {
	codec, err := NewCodec(testConfig())
	if err != nil {
		t.Fatalf("NewCodec: %v", err)
	}

	for _, tok := range []string{"", "garbage", "a.b.c"} {
		if _, err := codec.VerifyAccess(tok); !errors.Is(err, ErrMalformed) {
			t.Fatalf("token %q: got %v want ErrMalformed", tok, err)
		}
	}
}

func TestVerifyClaimDomains(t *testing.T) {
	codec, err := NewCodec(testConfig())
	if err != nil {
		t.Fatalf("NewCodec: %v", err)
	}

	sub := testSubject()
	sub.Status = "banned"
	pair, err := codec.IssuePair(sub, "sess-1", "dev-1", 0)
	if err != nil {
		t.Fatalf("IssuePair: %v", err)
	}
	if _, err := codec.VerifyAccess(pair.AccessToken); !errors.Is(err, ErrClaimsInvalid) {
		t.Fatalf("bad status: got %v want ErrClaimsInvalid", err)
	}

	sub = testSubject()
	sub.Platform = "desktop"
	pair, err = codec.IssuePair(sub, "sess-1", "dev-1", 0)
	if err != nil {
		t.Fatalf("IssuePair: %v", err)
	}
	if _, err := codec.VerifyAccess(pair.AccessToken); !errors.Is(err, ErrClaimsInvalid) {
		t.Fatalf("bad platform: got %v want ErrClaimsInvalid", err)
	}
}

func TestIssuePairRequiresSubject(t *testing.T) {
	codec, err := NewCodec(testConfig())
	if err != nil {
		t.Fatalf("NewCodec: %v", err)
	}

	if _, err := codec.IssuePair(Subject{}, "sess-1", "dev-1", 0); !errors.Is(err, ErrClaimsInvalid) {
		t.Fatalf("empty subject: got %v want ErrClaimsInvalid", err)
	}
	if _, err := codec.IssuePair(testSubject(), "", "dev-1", 0); !errors.Is(err, ErrClaimsInvalid) {
		t.Fatalf("empty session: got %v want ErrClaimsInvalid", err)
	}
}
