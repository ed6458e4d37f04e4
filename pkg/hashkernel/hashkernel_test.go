// Copyright 2025 Justifai
package hashkernel

import (
	"encoding/hex"
	"testing"

	"github.com/ethereum/go-ethereum/crypto"
)

func TestSignVerifyRoundTrip(t *testing.T) {
	priv, err := crypto.GenerateKey()
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	privHex := hex.EncodeToString(crypto.FromECDSA(priv))
	pubHex := hex.EncodeToString(crypto.FromECDSAPub(&priv.PublicKey))

	digest := H([]byte("hello world"))

	sigHex, err := Sign(digest, privHex)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	if !Verify(digest, sigHex, pubHex) {
		t.Fatalf("signature did not verify against correct public key")
	}

	other, _ := crypto.GenerateKey()
	otherPub := hex.EncodeToString(crypto.FromECDSAPub(&other.PublicKey))
	if Verify(digest, sigHex, otherPub) {
		t.Fatalf("signature verified against wrong public key")
	}
}

func TestVerifyBadInputsReturnFalse(t *testing.T) {
	digest := H([]byte("x"))
	if Verify(digest, "not-hex", "also-not-hex") {
		t.Fatalf("expected false on parse failure")
	}
	if Verify(digest, "", "") {
		t.Fatalf("expected false on empty input")
	}
}

func TestRecoverPublicKeyRequires65Bytes(t *testing.T) {
	digest := H([]byte("x"))
	_, err := RecoverPublicKey(digest, hex.EncodeToString(make([]byte, 64)))
	if err == nil {
		t.Fatalf("expected error for 64-byte signature")
	}
}

func TestRecoverPublicKeyRoundTrip(t *testing.T) {
	priv, err := crypto.GenerateKey()
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	digest := H([]byte("recover me"))
	sig, err := crypto.Sign(digest[:], priv)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	recovered, err := RecoverPublicKey(digest, hex.EncodeToString(sig))
	if err != nil {
		t.Fatalf("recover: %v", err)
	}
	want := hex.EncodeToString(crypto.FromECDSAPub(&priv.PublicKey))
	if recovered != want {
		t.Fatalf("recovered key mismatch: got %s want %s", recovered, want)
	}
}

func TestHHexDeterministic(t *testing.T) {
	a := HHex([]byte("data"))
	b := HHex([]byte("data"))
	if a != b {
		t.Fatalf("HHex not deterministic: %s vs %s", a, b)
	}
	if len(a) != 64 {
		t.Fatalf("expected 64 hex chars, got %d", len(a))
	}
}
