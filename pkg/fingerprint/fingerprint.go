// Copyright 2025 Justifai
//
// Package fingerprint implements the document fingerprint codec: the
// fixed 48-byte encoding DI = H(d) || be64(Ed) || be64(Ei) that must
// reproduce byte-for-byte between issuance and verification so the
// signed digest H(DI) matches on both sides.
package fingerprint

import (
	"encoding/binary"
	"time"

	"github.com/justifai/certify/pkg/errkind"
	"github.com/justifai/certify/pkg/hashkernel"
)

// Size is the fixed length of an encoded DI: 32-byte document hash plus
// two big-endian int64 expiry timestamps.
const Size = hashkernel.HashSize + 8 + 8

// DI is the decoded form of a document fingerprint.
type DI struct {
	DocumentHash [hashkernel.HashSize]byte
	Ed           int64 // document-expiry, seconds since epoch; 0 = lifetime
	Ei           int64 // invalidation-expiry, seconds since epoch; 0 = lifetime
}

// Encode produces the 48-byte DI buffer. Null/missing expiries must be
// passed as 0, never omitted — the encoding has no presence bit.
func Encode(documentHash [hashkernel.HashSize]byte, ed, ei int64) [Size]byte {
	var out [Size]byte
	copy(out[:hashkernel.HashSize], documentHash[:])
	binary.BigEndian.PutUint64(out[hashkernel.HashSize:hashkernel.HashSize+8], uint64(ed))
	binary.BigEndian.PutUint64(out[hashkernel.HashSize+8:], uint64(ei))
	return out
}

// Decode inverts Encode, returning (H(d), Ed, Ei) exactly.
func Decode(buf []byte) (DI, error) {
	if len(buf) != Size {
		return DI{}, errkind.New(errkind.Crypto, "fingerprint must be exactly 48 bytes")
	}
	var di DI
	copy(di.DocumentHash[:], buf[:hashkernel.HashSize])
	di.Ed = int64(binary.BigEndian.Uint64(buf[hashkernel.HashSize : hashkernel.HashSize+8]))
	di.Ei = int64(binary.BigEndian.Uint64(buf[hashkernel.HashSize+8:]))
	return di, nil
}

// Hash computes H(DI) — the digest that is actually signed.
func Hash(di [Size]byte) [hashkernel.HashSize]byte {
	return hashkernel.H(di[:])
}

// NormalizeExpiry converts an expiry time to epoch seconds using an
// integer floor of milliseconds/1000, per spec. A nil input (no expiry) yields
// 0, the "lifetime" encoding.
func NormalizeExpiry(t *time.Time) int64 {
	if t == nil {
		return 0
	}
	return t.UnixMilli() / 1000
}

// ParseExpiry parses an ISO-8601 string into epoch seconds using the
// same floor(ms/1000) rule as NormalizeExpiry. An empty string means
// "no expiry" and returns 0.
func ParseExpiry(iso string) (int64, error) {
	if iso == "" {
		return 0, nil
	}
	t, err := time.Parse(time.RFC3339, iso)
	if err != nil {
		return 0, errkind.Wrap(errkind.Validation, err, "parse ISO-8601 expiry")
	}
	return t.UnixMilli() / 1000, nil
}

// ExpiryToISO renders an epoch-seconds expiry back to an ISO-8601 UTC
// string, or "" for the 0 ("lifetime"/"no expiry") sentinel.
func ExpiryToISO(epochSeconds int64) string {
	if epochSeconds == 0 {
		return ""
	}
	return time.Unix(epochSeconds, 0).UTC().Format(time.RFC3339)
}
