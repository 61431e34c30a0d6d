package password

import (
	"errors"
	"fmt"

	"golang.org/x/crypto/bcrypt"
)

const (
	// MinCost is the lowest cost the hasher accepts. bcrypt's own
	// minimum is 4, far too cheap for real credentials.
	MinCost = 10
	// DefaultCost matches the engine's default configuration.
	DefaultCost = 12

	// bcrypt silently truncates beyond 72 bytes; reject instead.
	maxPasswordBytes = 72
)

// ErrMismatch is returned by Compare when the password does not match
// the hash.
var ErrMismatch = errors.New("password mismatch")

// Bcrypt hashes and verifies passwords with golang.org/x/crypto/bcrypt.
// Safe for concurrent use.
type Bcrypt struct {
	cost int
}

// NewBcrypt validates the cost and returns a hasher.
func NewBcrypt(cost int) (*Bcrypt, error) {
	if cost < MinCost || cost > bcrypt.MaxCost {
		return nil, fmt.Errorf("bcrypt cost must be between %d and %d", MinCost, bcrypt.MaxCost)
	}
	return &Bcrypt{cost: cost}, nil
}

func (b *Bcrypt) Hash(password string) (string, error) {
	if len(password) == 0 {
		return "", errors.New("password must not be empty")
	}
	if len(password) > maxPasswordBytes {
		return "", fmt.Errorf("password exceeds %d bytes", maxPasswordBytes)
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), b.cost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}

func (b *Bcrypt) Compare(hash, password string) error {
	err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(password))
	if err != nil {
		if errors.Is(err, bcrypt.ErrMismatchedHashAndPassword) {
			return ErrMismatch
		}
		return err
	}
	return nil
}

// DummyHash returns a valid hash of an unguessable sentinel, for timing
// equalization: login burns a Compare against it when the identifier is
// unknown, so lookup misses cost the same as password mismatches.
func (b *Bcrypt) DummyHash() (string, error) {
	return b.Hash("\x00authcore-dummy-credential\x00")
}
