package session

import (
	"bytes"
	"encoding/binary"
	"errors"
	"io"
)

// Blob format v1. The head is fixed-width so Lua scripts can read and
// patch status, flags, and timestamps at known offsets without decoding
// the variable-length tail.
//
//	offset  size  field
//	0       1     format version
//	1       1     status
//	2       1     flags (bit 0: suspicious)
//	3       1     platform
//	4       8     createdAt (unix seconds, big endian)
//	12      8     lastActivity (unix seconds, big endian)
//	20      8     expiresAt (unix seconds, big endian)
//	28      32    fingerprint (sha256 of platform + user agent)
//	60      -     tail: length-prefixed userID, deviceID, ipAddress,
//	              userAgent, location
const (
	formatVersionCurrent = 1

	headSize = 60

	offStatus       = 1
	offFlags        = 2
	offPlatform     = 3
	offCreatedAt    = 4
	offLastActivity = 12
	offExpiresAt    = 20
	offFingerprint  = 28
)

const flagSuspicious = 0x01

// ErrCorruptBlob is returned when a stored session cannot be decoded.
var ErrCorruptBlob = errors.New("corrupt session blob")

// Encode serializes a session into the v1 binary blob.
func Encode(s *Session) ([]byte, error) {
	var buf bytes.Buffer

	buf.WriteByte(formatVersionCurrent)
	buf.WriteByte(byte(s.Status))

	var flags byte
	if s.Suspicious {
		flags |= flagSuspicious
	}
	buf.WriteByte(flags)
	buf.WriteByte(byte(s.Platform))

	if err := binary.Write(&buf, binary.BigEndian, s.CreatedAt); err != nil {
		return nil, err
	}
	if err := binary.Write(&buf, binary.BigEndian, s.LastActivity); err != nil {
		return nil, err
	}
	if err := binary.Write(&buf, binary.BigEndian, s.ExpiresAt); err != nil {
		return nil, err
	}
	buf.Write(s.Fingerprint[:])

	for _, field := range []struct {
		name  string
		value string
	}{
		{"userID", s.UserID},
		{"deviceID", s.DeviceID},
		{"ipAddress", s.IPAddress},
		{"userAgent", s.UserAgent},
		{"location", s.Location},
	} {
		if len(field.value) > 255 {
			return nil, errors.New(field.name + " too long")
		}
		buf.WriteByte(byte(len(field.value)))
		buf.WriteString(field.value)
	}

	return buf.Bytes(), nil
}

// Decode parses a v1 blob. The session ID is not stored in the blob and
// must be set by the caller from the Redis key.
func Decode(data []byte) (*Session, error) {
	if len(data) < headSize {
		return nil, ErrCorruptBlob
	}
	if data[0] != formatVersionCurrent {
		return nil, ErrCorruptBlob
	}

	s := &Session{
		Status:     Status(data[offStatus]),
		Suspicious: data[offFlags]&flagSuspicious != 0,
		Platform:   Platform(data[offPlatform]),
	}
	if s.Status > StatusRevoked {
		return nil, ErrCorruptBlob
	}
	if s.Platform > PlatformMobile {
		return nil, ErrCorruptBlob
	}
	if data[offFlags]&^flagSuspicious != 0 {
		return nil, ErrCorruptBlob
	}

	s.CreatedAt = int64(binary.BigEndian.Uint64(data[offCreatedAt:]))
	s.LastActivity = int64(binary.BigEndian.Uint64(data[offLastActivity:]))
	s.ExpiresAt = int64(binary.BigEndian.Uint64(data[offExpiresAt:]))
	copy(s.Fingerprint[:], data[offFingerprint:offFingerprint+32])

	reader := bytes.NewReader(data[headSize:])
	for _, dst := range []*string{
		&s.UserID, &s.DeviceID, &s.IPAddress, &s.UserAgent, &s.Location,
	} {
		n, err := reader.ReadByte()
		if err != nil {
			return nil, ErrCorruptBlob
		}
		field := make([]byte, n)
		if _, err := io.ReadFull(reader, field); err != nil {
			return nil, ErrCorruptBlob
		}
		*dst = string(field)
	}
	if reader.Len() != 0 {
		return nil, ErrCorruptBlob
	}
	if s.UserID == "" {
		return nil, ErrCorruptBlob
	}

	return s, nil
}
