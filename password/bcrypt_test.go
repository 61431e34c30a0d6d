package password

import (
	"errors"
	"strings"
	"testing"
)

func TestHashAndCompare(t *testing.T) {
	h, err := NewBcrypt(MinCost)
	if err != nil {
		t.Fatalf("new: %v", err)
	}

	hash, err := h.Hash("hunter2abc")
	if err != nil {
		t.Fatalf("hash: %v", err)
	}
	if hash == "hunter2abc" || !strings.HasPrefix(hash, "$2") {
		t.Fatalf("unexpected hash format: %q", hash)
	}

	if err := h.Compare(hash, "hunter2abc"); err != nil {
		t.Fatalf("compare correct: %v", err)
	}
	if err := h.Compare(hash, "wrongpass1"); !errors.Is(err, ErrMismatch) {
		t.Fatalf("compare wrong: got %v want ErrMismatch", err)
	}
}

func TestHashesAreSalted(t *testing.T) {
	h, _ := NewBcrypt(MinCost)

	a, err := h.Hash("hunter2abc")
	if err != nil {
		t.Fatalf("hash: %v", err)
	}
	b, err := h.Hash("hunter2abc")
	if err != nil {
		t.Fatalf("hash: %v", err)
	}
	if a == b {
		t.Fatal("identical hashes for the same password")
	}
}

func TestHashRejectsBadInput(t *testing.T) {
	h, _ := NewBcrypt(MinCost)

	if _, err := h.Hash(""); err == nil {
		t.Fatal("empty password accepted")
	}
	if _, err := h.Hash(strings.Repeat("x", 73)); err == nil {
		t.Fatal("over-length password accepted")
	}
}

func TestNewBcryptCostBounds(t *testing.T) {
	if _, err := NewBcrypt(4); err == nil {
		t.Fatal("cost below minimum accepted")
	}
	if _, err := NewBcrypt(32); err == nil {
		t.Fatal("cost above maximum accepted")
	}
}

func TestDummyHashVerifiesNothing(t *testing.T) {
	h, _ := NewBcrypt(MinCost)

	dummy, err := h.DummyHash()
	if err != nil {
		t.Fatalf("dummy: %v", err)
	}
	if err := h.Compare(dummy, "hunter2abc"); !errors.Is(err, ErrMismatch) {
		t.Fatalf("dummy must never match: %v", err)
	}
}
