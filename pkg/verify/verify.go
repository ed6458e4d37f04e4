// Copyright 2025 Justifai
//
// Package verify runs the full verification pipeline (C9): extract,
// recompute every hash, check the signature and both Merkle proofs,
// check the on-chain anchor, and run the PDF content-integrity
// heuristics. It separates errors (reject) from warnings (accept with
// caveat) per the error-handling design.
package verify

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"time"

	"github.com/justifai/certify/pkg/errkind"
	"github.com/justifai/certify/pkg/fingerprint"
	"github.com/justifai/certify/pkg/hashkernel"
	"github.com/justifai/certify/pkg/merkle"
	"github.com/justifai/certify/pkg/pdf"
)

// Bundle mirrors the VD JSON object's required keys (§6).
type Bundle struct {
	DocumentHash            string   `json:"documentHash"`
	DocumentFingerprint     string   `json:"documentFingerprint"`
	FingerprintHash         string   `json:"fingerprintHash"`
	IssuerSignature         string   `json:"issuerSignature"`
	MerkleLeaf              string   `json:"merkleLeaf"`
	ExpiryDate              string   `json:"expiryDate"`
	InvalidationExpiry      string   `json:"invalidationExpiry"`
	IssuerID                string   `json:"issuerId"`
	IssuerPublicKey         string   `json:"issuerPublicKey"`
	MerkleProofIntermediate []string `json:"merkleProofIntermediate"`
	MerkleRootIntermediate  string   `json:"merkleRootIntermediate"`
	MerkleRootUltimate      string   `json:"merkleRootUltimate"`
	MerkleProofUltimate     []string `json:"merkleProofUltimate"`
	TxHash                  string   `json:"txHash"`
	Network                 string   `json:"network"`
}

// ChainVerifier is the subset of the anchor client the verifier needs;
// kept as an interface here so this package never imports the chain
// RPC client directly.
type ChainVerifier interface {
	VerifyTransaction(ctx context.Context, txHash, expectedMRU string) (mruMatches bool, blockNumber uint64, err error)
}

// QRKeySource supplies the issuer public key recovered from the QR
// payload, when the caller has one (priority 2 of step 5).
type QRKeySource func() (publicKeyHex string, ok bool)

// Input carries everything Run needs.
type Input struct {
	Candidate []byte
	// ExpectedIssuerName is the configured issuer name the augmentor
	// stamps into Producer/Creator on legitimate output (step 10f).
	ExpectedIssuerName string
	EnvIssuerPubKey    string
	QRIssuerPubKey     QRKeySource
	Chain              ChainVerifier
}

// Result is the verification surface: valid iff Errors is empty.
type Result struct {
	Valid    bool
	Errors   []string
	Warnings []string
	Steps    map[string]bool
}

func (r *Result) fail(step, msg string) {
	r.Errors = append(r.Errors, msg)
	r.Steps[step] = false
}

func (r *Result) warn(step, msg string) {
	r.Warnings = append(r.Warnings, msg)
	if _, set := r.Steps[step]; !set {
		r.Steps[step] = true
	}
}

func (r *Result) pass(step string) {
	r.Steps[step] = true
}

// Run executes steps 1-10 of the verification pipeline.
func Run(ctx context.Context, extractor pdf.Extractor, in Input) (*Result, error) {
	result := &Result{Steps: make(map[string]bool)}

	extracted, err := extractor.Extract(in.Candidate)
	if err != nil {
		return nil, errkind.Wrap(errkind.PDF, err, "extract candidate PDF")
	}

	// Step 2: extract VD.
	var bundle Bundle
	if extracted.VerificationBundleFound {
		if err := json.Unmarshal(extracted.VerificationBundle, &bundle); err != nil {
			result.fail("extractVD", "verification bundle is not valid JSON: "+err.Error())
			return finalize(result), nil
		}
		result.pass("extractVD")
	} else {
		result.fail("extractVD", "no verification bundle found in candidate PDF")
		return finalize(result), nil
	}

	// Step 1/3: recompute H(d); mismatch vs VD is a warning only.
	var documentHashHex string
	if extracted.OriginalPDFFound {
		documentHashHex = hashkernel.HHex(extracted.OriginalPDF)
		result.pass("extractOriginal")
		if bundle.DocumentHash != "" && bundle.DocumentHash != documentHashHex {
			result.warn("recomputeDocumentHash", "recomputed H(d) does not match VD.documentHash")
		} else {
			result.pass("recomputeDocumentHash")
		}
	} else {
		result.warn("extractOriginal", "original PDF attachment not found; verifying against VD.documentHash directly")
		documentHashHex = bundle.DocumentHash
	}

	// Step 4: rebuild DI, recompute H(DI).
	documentHash, err := hashkernel.DecodeHash(documentHashHex)
	if err != nil {
		result.fail("rebuildFingerprint", "document hash is not a valid 32-byte hex value")
		return finalize(result), nil
	}
	ed, _ := fingerprint.ParseExpiry(bundle.ExpiryDate)
	ei, _ := fingerprint.ParseExpiry(bundle.InvalidationExpiry)
	di := fingerprint.Encode(documentHash, ed, ei)
	hdi := fingerprint.Hash(di)
	hdiHex := hex.EncodeToString(hdi[:])
	if bundle.FingerprintHash != "" && bundle.FingerprintHash != hdiHex {
		result.fail("rebuildFingerprint", "recomputed H(DI) does not match VD.fingerprintHash")
	} else {
		result.pass("rebuildFingerprint")
	}

	// Step 5: verify signature, key priority VD > QR > env.
	issuerKey := bundle.IssuerPublicKey
	if issuerKey == "" && in.QRIssuerPubKey != nil {
		if k, ok := in.QRIssuerPubKey(); ok {
			issuerKey = k
		}
	}
	if issuerKey == "" {
		issuerKey = in.EnvIssuerPubKey
	}
	if issuerKey == "" {
		result.warn("verifySignature", "no issuer public key available from VD, QR, or configuration; skipped")
	} else if hashkernel.Verify(hdi, bundle.IssuerSignature, issuerKey) {
		result.pass("verifySignature")
	} else {
		result.fail("verifySignature", "issuer signature does not verify against H(DI)")
	}

	// Step 6: recompute L, compare to VD.merkleLeaf.
	leaf := hashkernel.H([]byte(bundle.IssuerSignature))
	leafHex := hex.EncodeToString(leaf[:])
	if bundle.MerkleLeaf != "" && bundle.MerkleLeaf != leafHex {
		result.fail("recomputeLeaf", "recomputed L does not match VD.merkleLeaf")
	} else {
		result.pass("recomputeLeaf")
	}

	// Step 7: verify MPI.
	verifyMerklePath(result, "verifyMPI", leaf, bundle.MerkleProofIntermediate, bundle.MerkleRootIntermediate)

	// Step 8: verify MPU, MRI==MRU empty-proof case included.
	if bundle.MerkleRootIntermediate != "" {
		mri, err := hashkernel.DecodeHash(bundle.MerkleRootIntermediate)
		if err != nil {
			result.fail("verifyMPU", "MRI is not valid hex")
		} else {
			verifyMerklePath(result, "verifyMPU", mri, bundle.MerkleProofUltimate, bundle.MerkleRootUltimate)
		}
	} else {
		result.warn("verifyMPU", "no MRI to verify against MRU")
	}

	// Step 9: on-chain anchor.
	if in.Chain != nil && bundle.TxHash != "" {
		matches, _, err := in.Chain.VerifyTransaction(ctx, bundle.TxHash, bundle.MerkleRootUltimate)
		if err != nil {
			result.fail("verifyAnchor", "failed to verify on-chain anchor: "+err.Error())
		} else if !matches {
			result.fail("verifyAnchor", "on-chain MerkleRootSubmitted event does not match MRU")
		} else {
			result.pass("verifyAnchor")
		}
	} else {
		result.warn("verifyAnchor", "no transaction hash to verify")
	}

	// Step 10: content-integrity heuristics against the extracted original.
	runIntegrityHeuristics(result, in.Candidate, extracted, in.ExpectedIssuerName)

	return finalize(result), nil
}

func verifyMerklePath(result *Result, step string, leaf merkle.Leaf, proofHex []string, rootHex string) {
	if rootHex == "" {
		result.warn(step, "no root to verify against")
		return
	}
	root, err := hashkernel.DecodeHash(rootHex)
	if err != nil {
		result.fail(step, "root is not valid hex")
		return
	}
	proof, err := merkle.ProofFromHex(proofHex)
	if err != nil {
		result.fail(step, "proof contains invalid hex siblings")
		return
	}
	if merkle.Verify(leaf, proof, root) {
		result.pass(step)
	} else {
		result.fail(step, "Merkle proof does not verify")
	}
}

func runIntegrityHeuristics(result *Result, outer []byte, extracted *pdf.ExtractResult, expectedIssuerName string) {
	outerText := pdf.NormalizeWhitespace(pdf.ExtractTextLayer(outer))
	if extracted.OriginalPDFFound {
		originalText := pdf.NormalizeWhitespace(pdf.ExtractTextLayer(extracted.OriginalPDF))
		if outerText != originalText {
			result.fail("textIntegrity", "visible text layer differs from the original document")
		} else {
			result.pass("textIntegrity")
		}
	} else {
		result.warn("textIntegrity", "no original PDF to compare text layers against")
	}

	if extracted.StartxrefCount > 1 {
		result.warn("incrementalUpdate", "multiple startxref markers found; PDF may have been incrementally edited")
	} else {
		result.pass("incrementalUpdate")
	}

	if extracted.OriginalPDFFound {
		originalAnnotations, originalImages := pdf.CountAnnotationsAndImages(extracted.OriginalPDF)
		if extracted.AnnotationCount > originalAnnotations+1 {
			result.warn("annotationCount", "annotation count increased by more than the marker annotation")
		} else {
			result.pass("annotationCount")
		}
		if extracted.ImageCount > originalImages+1 {
			result.warn("imageCount", "image count increased by more than the QR image")
		} else {
			result.pass("imageCount")
		}
	} else {
		result.warn("annotationCount", "no original PDF to compare annotation counts against")
		result.warn("imageCount", "no original PDF to compare image counts against")
	}

	if !extracted.CreationDate.IsZero() && !extracted.ModDate.IsZero() {
		delta := extracted.ModDate.Sub(extracted.CreationDate)
		if delta < 0 {
			delta = -delta
		}
		if delta > 60*time.Second {
			result.warn("dateDelta", "creation/modification date delta exceeds 60s")
		} else {
			result.pass("dateDelta")
		}
	} else {
		result.warn("dateDelta", "creation or modification date not found in candidate PDF")
	}

	switch {
	case extracted.Producer == "":
		result.warn("producer", "no Producer metadata found in candidate PDF")
	case extracted.Producer == expectedIssuerName || extracted.Producer == pdf.DefaultProducer:
		result.pass("producer")
	default:
		result.warn("producer", "Producer metadata does not match the issuer name or library default")
	}
}

func finalize(r *Result) *Result {
	r.Valid = len(r.Errors) == 0
	return r
}
