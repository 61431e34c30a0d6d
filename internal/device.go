package internal

import "crypto/sha256"

// DeviceFingerprint digests the platform and user agent a session was created
// with. The digest is stored on the session and compared on every refresh;
// the raw user agent never participates in comparisons.
func DeviceFingerprint(platform, userAgent string) [32]byte {
	h := sha256.New()
	h.Write([]byte(platform))
	h.Write([]byte{0})
	h.Write([]byte(userAgent))

	var out [32]byte
	copy(out[:], h.Sum(nil))
	return out
}
