// Copyright 2025 Justifai
package fingerprint

import (
	"encoding/hex"
	"testing"

	"github.com/justifai/certify/pkg/hashkernel"
)

func TestEncodeDecodeRoundTrip(t *testing.T) {
	h := hashkernel.H([]byte("document bytes"))
	ed := int64(1699833600)
	ei := int64(1700784000)

	buf := Encode(h, ed, ei)
	if len(buf) != 48 {
		t.Fatalf("expected 48-byte DI, got %d", len(buf))
	}

	decoded, err := Decode(buf[:])
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if decoded.DocumentHash != h {
		t.Fatalf("document hash mismatch")
	}
	if decoded.Ed != ed || decoded.Ei != ei {
		t.Fatalf("expiry mismatch: got Ed=%d Ei=%d", decoded.Ed, decoded.Ei)
	}
}

func TestEncodeNullExpiriesAreZero(t *testing.T) {
	h := hashkernel.H([]byte("d"))
	buf := Encode(h, 0, 0)
	for i := 32; i < 48; i++ {
		if buf[i] != 0x00 {
			t.Fatalf("expected all-zero expiry bytes at %d, got %x", i, buf[i])
		}
	}
}

// TestFingerprintDeterminism pins the exact scenario from the testable
// properties list: a known document hash and expiries must produce a
// specific byte layout for Ed and Ei.
func TestFingerprintDeterminism(t *testing.T) {
	hashHex := "30917ef300000000000000000000000000000000000000000000000000006279"
	// Trim/pad to a valid 32-byte hash for the purpose of this layout check.
	raw, err := hex.DecodeString(hashHex[:64])
	if err != nil {
		t.Fatalf("bad test fixture: %v", err)
	}
	var h [32]byte
	copy(h[:], raw)

	ed := int64(1699833600)
	ei := int64(1700784000)
	buf := Encode(h, ed, ei)

	wantEd := []byte{0x00, 0x00, 0x00, 0x00, 0x65, 0x51, 0x67, 0x00}
	wantEi := []byte{0x00, 0x00, 0x00, 0x00, 0x65, 0x5f, 0xe7, 0x80}
	if hex.EncodeToString(buf[32:40]) != hex.EncodeToString(wantEd) {
		t.Fatalf("Ed encoding mismatch: got %x want %x", buf[32:40], wantEd)
	}
	if hex.EncodeToString(buf[40:48]) != hex.EncodeToString(wantEi) {
		t.Fatalf("Ei encoding mismatch: got %x want %x", buf[40:48], wantEi)
	}
}

func TestDecodeRejectsWrongLength(t *testing.T) {
	if _, err := Decode(make([]byte, 47)); err == nil {
		t.Fatalf("expected error for short buffer")
	}
	if _, err := Decode(make([]byte, 49)); err == nil {
		t.Fatalf("expected error for long buffer")
	}
}

func TestParseExpiryFloorsMilliseconds(t *testing.T) {
	got, err := ParseExpiry("2023-11-13T00:00:00.999Z")
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if got != 1699833600 {
		t.Fatalf("expected floor(ms/1000)=1699833600, got %d", got)
	}
}

func TestParseExpiryEmptyIsLifetime(t *testing.T) {
	got, err := ParseExpiry("")
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if got != 0 {
		t.Fatalf("expected 0 for empty expiry, got %d", got)
	}
}
