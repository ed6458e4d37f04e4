// Copyright 2025 Justifai
//
// Package hashkernel provides the Keccak-256 and secp256k1 primitives
// every other component in the pipeline builds on: document hashing,
// fingerprint hashing, Merkle leaf/node hashing, and issuer signature
// sign/verify/recover.
package hashkernel

import (
	"encoding/hex"
	"strings"

	"github.com/ethereum/go-ethereum/crypto"
	"golang.org/x/crypto/sha3"

	"github.com/justifai/certify/pkg/errkind"
)

// HashSize is the length in bytes of every hash this package produces.
const HashSize = 32

// H computes keccak256(x), returning exactly HashSize bytes.
func H(data []byte) [HashSize]byte {
	var out [HashSize]byte
	hasher := sha3.NewLegacyKeccak256()
	hasher.Write(data)
	hasher.Sum(out[:0])
	return out
}

// HHex computes H(data) and returns it as lowercase hex, no 0x prefix.
func HHex(data []byte) string {
	h := H(data)
	return hex.EncodeToString(h[:])
}

// HexWithPrefix renders a 32-byte hash as a 0x-prefixed hex string, the
// form the chain expects for a bytes32 argument.
func HexWithPrefix(h [HashSize]byte) string {
	return "0x" + hex.EncodeToString(h[:])
}

// DecodeHash decodes a hex hash (with or without 0x prefix) into exactly
// HashSize bytes.
func DecodeHash(s string) ([HashSize]byte, error) {
	var out [HashSize]byte
	s = strings.TrimPrefix(s, "0x")
	b, err := hex.DecodeString(s)
	if err != nil {
		return out, errkind.Wrap(errkind.Crypto, err, "decode hash hex")
	}
	if len(b) != HashSize {
		return out, errkind.New(errkind.Crypto, "hash must be 32 bytes")
	}
	copy(out[:], b)
	return out, nil
}

// Sign produces a 64-byte (r || s) secp256k1 signature over a digest
// that is treated as the message itself — no further hashing is
// applied, matching the spec's sign(hashHex, privHex) contract.
func Sign(digest [HashSize]byte, privKeyHex string) (string, error) {
	priv, err := crypto.HexToECDSA(strings.TrimPrefix(privKeyHex, "0x"))
	if err != nil {
		return "", errkind.Wrap(errkind.Crypto, err, "parse private key")
	}
	sig, err := crypto.Sign(digest[:], priv)
	if err != nil {
		return "", errkind.Wrap(errkind.Crypto, err, "sign digest")
	}
	// crypto.Sign returns 65 bytes (r || s || v); the spec's on-disk
	// signature form is the 64-byte r||s compact form, each half
	// left-padded to 32 bytes (crypto.Sign already returns fixed widths).
	return hex.EncodeToString(sig[:64]), nil
}

// Verify checks a secp256k1 signature against a digest and a public
// key. Accepted signature encodings: DER, compact 64-byte (r||s), and
// Ethereum-style 65-byte (r||s||v) with v in {0,1,27,28}. Any parse
// failure returns false, not an error — per spec, verify never bubbles
// a parse error, it reports non-verification.
func Verify(digest [HashSize]byte, sigHex, pubKeyHex string) bool {
	sig, ok := normalizeSignature(sigHex)
	if !ok {
		return false
	}
	pub, err := decodePubKey(pubKeyHex)
	if err != nil {
		return false
	}
	// VerifySignature wants the 64-byte r||s form without recovery id.
	return crypto.VerifySignature(pub, digest[:], sig[:64])
}

// RecoverPublicKey recovers the uncompressed public key from a 65-byte
// (r||s||v) signature over digest. Only defined for the 65-byte form —
// any other encoding returns an error (the spec's ⊥).
func RecoverPublicKey(digest [HashSize]byte, sigHex string) (string, error) {
	raw, err := hex.DecodeString(strings.TrimPrefix(sigHex, "0x"))
	if err != nil {
		return "", errkind.Wrap(errkind.Crypto, err, "decode signature hex")
	}
	if len(raw) != 65 {
		return "", errkind.New(errkind.Crypto, "recovery requires a 65-byte r||s||v signature")
	}
	normalized, err := normalizeRecoveryID(raw)
	if err != nil {
		return "", err
	}
	pub, err := crypto.Ecrecover(digest[:], normalized)
	if err != nil {
		return "", errkind.Wrap(errkind.Crypto, err, "recover public key")
	}
	return hex.EncodeToString(pub), nil
}

// normalizeSignature accepts DER, compact 64-byte, or 65-byte
// Ethereum-style encodings and returns a 65-byte r||s||v buffer (v may
// be zero-valued/unused by the caller).
func normalizeSignature(sigHex string) (out [65]byte, ok bool) {
	raw, err := hex.DecodeString(strings.TrimPrefix(sigHex, "0x"))
	if err != nil {
		return out, false
	}
	switch len(raw) {
	case 64:
		copy(out[:64], raw)
		return out, true
	case 65:
		normalized, err := normalizeRecoveryID(raw)
		if err != nil {
			return out, false
		}
		copy(out[:], normalized)
		return out, true
	default:
		// Attempt DER decode: SEQUENCE { INTEGER r, INTEGER s }.
		r, s, ok := parseDERSignature(raw)
		if !ok {
			return out, false
		}
		copy(out[32-len(r):32], r)
		copy(out[64-len(s):64], s)
		return out, true
	}
}

// normalizeRecoveryID rewrites a 65-byte r||s||v buffer so v is in
// {0,1} as go-ethereum's Ecrecover/VerifySignature expect, accepting
// the Ethereum-style {27,28} encoding too.
func normalizeRecoveryID(raw []byte) ([]byte, error) {
	out := make([]byte, 65)
	copy(out, raw)
	switch out[64] {
	case 0, 1:
		// already normalized
	case 27, 28:
		out[64] -= 27
	default:
		return nil, errkind.New(errkind.Crypto, "recovery id must be one of 0,1,27,28")
	}
	return out, nil
}

// parseDERSignature parses a minimal ASN.1 DER SEQUENCE{INTEGER,INTEGER}
// without pulling in a general ASN.1 dependency — the structure is
// fixed and shallow enough to walk by hand.
func parseDERSignature(der []byte) (r, s []byte, ok bool) {
	if len(der) < 8 || der[0] != 0x30 {
		return nil, nil, false
	}
	i := 2
	if der[1] == 0x81 {
		i = 3
	}
	if i >= len(der) || der[i] != 0x02 {
		return nil, nil, false
	}
	i++
	rLen := int(der[i])
	i++
	if i+rLen > len(der) {
		return nil, nil, false
	}
	r = trimLeadingZero(der[i : i+rLen])
	i += rLen
	if i >= len(der) || der[i] != 0x02 {
		return nil, nil, false
	}
	i++
	sLen := int(der[i])
	i++
	if i+sLen > len(der) {
		return nil, nil, false
	}
	s = trimLeadingZero(der[i : i+sLen])
	return r, s, true
}

func trimLeadingZero(b []byte) []byte {
	for len(b) > 1 && b[0] == 0x00 {
		b = b[1:]
	}
	return b
}

// decodePubKey accepts either an uncompressed (0x04-prefixed, 65 byte)
// or a bare 64-byte (x||y) public key hex string.
func decodePubKey(pubKeyHex string) ([]byte, error) {
	raw, err := hex.DecodeString(strings.TrimPrefix(pubKeyHex, "0x"))
	if err != nil {
		return nil, err
	}
	switch len(raw) {
	case 65:
		return raw, nil
	case 64:
		out := make([]byte, 65)
		out[0] = 0x04
		copy(out[1:], raw)
		return out, nil
	default:
		return nil, errkind.New(errkind.Crypto, "public key must be 64 or 65 bytes")
	}
}
