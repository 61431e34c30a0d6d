package internal

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"errors"
)

const artifactSecretSize = 32

// NewArtifactSecret returns a random secret for link-style verification
// artifacts. The plaintext is sent to the user; only a salted hash is stored.
func NewArtifactSecret() ([artifactSecretSize]byte, error) {
	var secret [artifactSecretSize]byte
	_, err := rand.Read(secret[:])
	return secret, err
}

// NewArtifactSalt returns a per-artifact hash salt.
func NewArtifactSalt() ([16]byte, error) {
	var salt [16]byte
	_, err := rand.Read(salt[:])
	return salt, err
}

// HashArtifactSecret computes the salted digest stored in an artifact record.
// Salting matters for short numeric codes, which are trivially enumerable
// against an unsalted digest.
func HashArtifactSecret(salt [16]byte, presented string) [32]byte {
	h := sha256.New()
	h.Write(salt[:])
	h.Write([]byte(presented))

	var out [32]byte
	copy(out[:], h.Sum(nil))
	return out
}

// EncodeArtifactToken packs an artifact secret as a base64url bearer string
// suitable for embedding in an email link.
func EncodeArtifactToken(secret [artifactSecretSize]byte) string {
	return base64.RawURLEncoding.EncodeToString(secret[:])
}

// NewOTP generates a fixed-length numeric one-time code from
// crypto/rand. Rejection sampling keeps each digit uniform: bytes 250
// and above would bias the low digits and are thrown away.
func NewOTP(digits int) (string, error) {
	if digits < 6 || digits > 10 {
		return "", errors.New("invalid otp digits")
	}

	code := make([]byte, 0, digits)
	buf := make([]byte, 16)
	for len(code) < digits {
		if _, err := rand.Read(buf); err != nil {
			return "", err
		}
		for _, v := range buf {
			if v >= 250 {
				continue
			}
			code = append(code, '0'+v%10)
			if len(code) == digits {
				break
			}
		}
	}
	return string(code), nil
}
