// Copyright 2025 Justifai
package verify

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"testing"

	"github.com/ethereum/go-ethereum/crypto"

	"github.com/justifai/certify/pkg/fingerprint"
	"github.com/justifai/certify/pkg/hashkernel"
	"github.com/justifai/certify/pkg/merkle"
	"github.com/justifai/certify/pkg/pdf"
)

type fakeExtractor struct {
	result *pdf.ExtractResult
	err    error
}

func (f fakeExtractor) Extract(_ []byte) (*pdf.ExtractResult, error) {
	return f.result, f.err
}

type fakeChain struct {
	matches bool
	err     error
}

func (f fakeChain) VerifyTransaction(_ context.Context, _, _ string) (bool, uint64, error) {
	return f.matches, 1, f.err
}

// validBundleFixture builds a self-consistent document + signature +
// single-leaf Merkle tree + verification bundle, the same shape p1-p4
// produce, so individual steps can be tampered with from a known-good
// baseline.
type validBundleFixture struct {
	bundle   Bundle
	original []byte
	pubHex   string
}

func newValidBundleFixture(t *testing.T) validBundleFixture {
	t.Helper()

	priv, err := crypto.GenerateKey()
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	privHex := hex.EncodeToString(crypto.FromECDSA(priv))
	pubHex := hex.EncodeToString(crypto.FromECDSAPub(&priv.PublicKey))

	original := []byte("%PDF-1.4 original document bytes")
	documentHash := hashkernel.H(original)
	di := fingerprint.Encode(documentHash, 0, 0)
	hdi := fingerprint.Hash(di)

	sigHex, err := hashkernel.Sign(hdi, privHex)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	leaf := hashkernel.H([]byte(sigHex))

	tree, err := merkle.Build([]merkle.Leaf{leaf})
	if err != nil {
		t.Fatalf("build tree: %v", err)
	}
	mri := tree.Root()

	bundle := Bundle{
		DocumentHash:           hex.EncodeToString(documentHash[:]),
		DocumentFingerprint:    hex.EncodeToString(di[:]),
		FingerprintHash:        hex.EncodeToString(hdi[:]),
		IssuerSignature:        sigHex,
		MerkleLeaf:             hex.EncodeToString(leaf[:]),
		IssuerPublicKey:        pubHex,
		MerkleProofIntermediate: []string{},
		MerkleRootIntermediate: hex.EncodeToString(mri[:]),
		MerkleRootUltimate:     hex.EncodeToString(mri[:]),
		MerkleProofUltimate:    []string{},
	}

	return validBundleFixture{bundle: bundle, original: original, pubHex: pubHex}
}

func (f validBundleFixture) extractResult(t *testing.T) *pdf.ExtractResult {
	t.Helper()
	vdJSON, err := json.Marshal(f.bundle)
	if err != nil {
		t.Fatalf("marshal bundle: %v", err)
	}
	return &pdf.ExtractResult{
		OriginalPDF:             f.original,
		OriginalPDFFound:        true,
		VerificationBundle:      vdJSON,
		VerificationBundleFound: true,
	}
}

func TestRunAcceptsFullyConsistentBundle(t *testing.T) {
	fx := newValidBundleFixture(t)
	extractor := fakeExtractor{result: fx.extractResult(t)}

	result, err := Run(context.Background(), extractor, Input{Candidate: []byte("candidate"), Chain: nil})
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if !result.Valid {
		t.Fatalf("expected valid result, got errors=%v warnings=%v", result.Errors, result.Warnings)
	}
}

func TestRunRejectsMissingVerificationBundle(t *testing.T) {
	extractor := fakeExtractor{result: &pdf.ExtractResult{VerificationBundleFound: false}}

	result, err := Run(context.Background(), extractor, Input{Candidate: []byte("candidate")})
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if result.Valid {
		t.Fatalf("expected invalid result when no bundle is found")
	}
}

func TestRunRejectsTamperedSignature(t *testing.T) {
	fx := newValidBundleFixture(t)
	fx.bundle.IssuerSignature = fx.bundle.IssuerSignature[:len(fx.bundle.IssuerSignature)-2] + "00"
	extractor := fakeExtractor{result: fx.extractResult(t)}

	result, err := Run(context.Background(), extractor, Input{Candidate: []byte("candidate")})
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if result.Valid {
		t.Fatalf("expected invalid result for a tampered signature")
	}
	if result.Steps["verifySignature"] {
		t.Fatalf("expected verifySignature step to be recorded as failed")
	}
}

func TestRunRejectsTamperedOriginalText(t *testing.T) {
	fx := newValidBundleFixture(t)
	candidate := []byte("5 0 obj\n<< /Length 20 >>\nstream\n(Original Text) Tj\nendstream\nendobj\n")
	extracted := fx.extractResult(t)
	extracted.OriginalPDF = []byte("5 0 obj\n<< /Length 20 >>\nstream\n(Tampered Text) Tj\nendstream\nendobj\n")
	extractor := fakeExtractor{result: extracted}

	result, err := Run(context.Background(), extractor, Input{Candidate: candidate})
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if result.Valid {
		t.Fatalf("expected invalid result when the original PDF's visible text changed")
	}
	if result.Steps["textIntegrity"] {
		t.Fatalf("expected textIntegrity to fail when the original PDF's visible text changed")
	}
}

func TestRunVerifiesOnChainAnchorWhenTxHashPresent(t *testing.T) {
	fx := newValidBundleFixture(t)
	fx.bundle.TxHash = "0xdeadbeef"
	extractor := fakeExtractor{result: fx.extractResult(t)}

	result, err := Run(context.Background(), extractor, Input{
		Candidate: []byte("candidate"),
		Chain:     fakeChain{matches: false},
	})
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if result.Valid {
		t.Fatalf("expected invalid result when the chain verifier reports a mismatch")
	}
}

func TestRunWarnsWhenNoChainVerifierConfigured(t *testing.T) {
	fx := newValidBundleFixture(t)
	fx.bundle.TxHash = "0xdeadbeef"
	extractor := fakeExtractor{result: fx.extractResult(t)}

	result, err := Run(context.Background(), extractor, Input{Candidate: []byte("candidate"), Chain: nil})
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if !result.Valid {
		t.Fatalf("expected valid result: a missing chain verifier warns, it does not fail")
	}
	if !result.Steps["verifyAnchor"] {
		t.Fatalf("expected verifyAnchor step recorded (as a warning-pass) even with no chain verifier configured")
	}
}
