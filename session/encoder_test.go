package session

import (
	"bytes"
	"errors"
	"testing"
	"time"
)

func sampleSession() *Session {
	now := time.Now()
	return &Session{
		ID:           "sid-1",
		UserID:       "u-1",
		DeviceID:     "dev-1",
		Platform:     PlatformMobile,
		UserAgent:    "authcore-test/1.0",
		IPAddress:    "203.0.113.7",
		Location:     "Berlin, DE",
		Fingerprint:  [32]byte{1, 2, 3},
		Status:       StatusActive,
		Suspicious:   true,
		CreatedAt:    now.Unix(),
		LastActivity: now.Unix(),
		ExpiresAt:    now.Add(time.Hour).Unix(),
	}
}

func TestEncodeDecodeRoundTrip(t *testing.T) {
	in := sampleSession()

	data, err := Encode(in)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}

	out, err := Decode(data)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	out.ID = in.ID

	if *out != *in {
		t.Fatalf("round trip mismatch:\n in: %+v\nout: %+v", in, out)
	}
}

func TestEncodeRejectsOversizedFields(t *testing.T) {
	s := sampleSession()
	s.UserAgent = string(bytes.Repeat([]byte("x"), 256))
	if _, err := Encode(s); err == nil {
		t.Fatal("expected oversized field error")
	}
}

func TestDecodeCorrupt(t *testing.T) {
	valid, err := Encode(sampleSession())
	if err != nil {
		t.Fatalf("encode: %v", err)
	}

	cases := map[string][]byte{
		"empty":           nil,
		"short head":      valid[:30],
		"bad version":     append([]byte{9}, valid[1:]...),
		"truncated tail":  valid[:len(valid)-4],
		"trailing bytes":  append(append([]byte{}, valid...), 0xFF),
		"bad status":      mutateByte(valid, offStatus, 7),
		"bad platform":    mutateByte(valid, offPlatform, 7),
		"missing user id": mutateByte(valid, headSize, 0),
	}

	for name, data := range cases {
		if _, err := Decode(data); !errors.Is(err, ErrCorruptBlob) {
			t.Fatalf("%s: expected ErrCorruptBlob, got %v", name, err)
		}
	}
}

func mutateByte(data []byte, offset int, value byte) []byte {
	out := append([]byte{}, data...)
	out[offset] = value
	return out
}

func FuzzDecode(f *testing.F) {
	valid, err := Encode(sampleSession())
	if err != nil {
		f.Fatalf("encode seed: %v", err)
	}
	f.Add(valid)
	f.Add([]byte{})
	f.Add([]byte{formatVersionCurrent})

	f.Fuzz(func(t *testing.T, data []byte) {
		sess, err := Decode(data)
		if err != nil {
			return
		}
		// Every successfully decoded blob must re-encode losslessly.
		encoded, encErr := Encode(sess)
		if encErr != nil {
			t.Fatalf("re-encode of decoded session failed: %v", encErr)
		}
		if !bytes.Equal(encoded, data) {
			t.Fatalf("re-encode mismatch:\n in: %x\nout: %x", data, encoded)
		}
	})
}
