// Copyright 2025 Justifai
//
// Package domain holds the value types shared across the issuance and
// verification pipelines: Tenant, Template, Batch, Job, and the status
// enums the scheduler drives jobs and batches through. The status
// types are plain string enums and every field lives on the one Job or
// Batch struct in every state, so the type system does not restrict
// which fields are set in which state; the helper methods below
// (HasMRI, HasSignatureAndLeaf, EligibleForPDFReaugment) check those
// state invariants at run time.
package domain

import "time"

// Tenant is an opaque issuing party, optionally carrying a fallback
// public key used during verification when no bundle- or QR-supplied
// key is present.
type Tenant struct {
	ID              string
	IssuerPublicKey string // hex, optional
}

// QRPlacement names where, on which page, a template wants its QR code
// drawn, in CSS pixels.
type QRPlacement struct {
	PageIndex int
	X, Y      float64
	Width     float64
	Height    float64
}

// Template describes a document template: its HTML source, the
// parameter names it declares (used to scope the QR payload's `fields`
// subset), and QR placement hints.
type Template struct {
	ID         string
	HTML       string
	ParamNames []string // empty means "use the whole job input"
	QR         QRPlacement
}

// BatchStatus is the overall lifecycle status of a batch.
type BatchStatus string

const (
	BatchPending    BatchStatus = "Pending"
	BatchProcessing BatchStatus = "Processing"
	BatchCompleted  BatchStatus = "Completed"
	BatchFailed     BatchStatus = "Failed"
)

// SigningStatus is the batch's position in the intermediate-tree
// lifecycle, independent of BatchStatus.
type SigningStatus string

const (
	SigningPending  SigningStatus = "PendingSigning"
	SigningSigned   SigningStatus = "Signed"
	SigningFinalize SigningStatus = "Finalized"
)

// Batch is the unit of Merkle-tree construction and anchoring.
type Batch struct {
	ID         string
	TenantID   string
	TemplateID string
	Status     BatchStatus

	// Expiry fields bound into every job's fingerprint in this batch.
	// 0 means "lifetime" (no expiry).
	Ed int64
	Ei int64

	IssuerPublicKey string // optional; may be auto-captured from first valid signature

	MerkleRoot          string // MRI, hex, immutable once set
	MerkleRootUltimate  string // MRU, hex
	MerkleProofUltimate []string

	TxHash  string
	Network string

	SigningStatus SigningStatus
	FinalizedAt   *time.Time

	CreatedAt time.Time
}

// HasMRI reports whether the batch's intermediate root has been set.
func (b *Batch) HasMRI() bool { return b.MerkleRoot != "" }

// HasMRU reports whether the batch's ultimate root has been set.
func (b *Batch) HasMRU() bool { return b.MerkleRootUltimate != "" }

// JobStatus is the lifecycle status driven by the six scheduler loops.
type JobStatus string

const (
	JobPending        JobStatus = "Pending"
	JobProcessing     JobStatus = "Processing"
	JobPendingSigning JobStatus = "PendingSigning"
	JobGenerated      JobStatus = "Generated"
	JobFailed         JobStatus = "Failed"
)

// Job is a single document within a batch.
type Job struct {
	ID      string
	BatchID string
	Data    map[string]any // template parameter values

	Status       JobStatus
	ErrorMessage string

	CertificatePath       string // original PDF
	QRCodePath            string // QR image
	CertificateWithQRPath string // augmented PDF

	DocumentHash       string // H(d), hex
	DataHash           string // content-canonical hash, optional
	DocumentFingerprint string // DI, hex
	FingerprintHash     string // H(DI), hex
	IssuerSignature     string // SI, hex
	MerkleLeaf          string // L = H(SI), hex

	MerkleProofIntermediate []string // MPI
	MerkleProofUltimate     []string // MPU mirror

	VerificationBundle  string // VD, serialized JSON
	QRPayloadFragment   string // opaque compressed payload

	CreatedAt time.Time
}

// ReadyForSignatureIntake reports whether the job is awaiting an
// externally supplied signature.
func (j *Job) ReadyForSignatureIntake() bool {
	return j.Status == JobPendingSigning
}

// HasSignatureAndLeaf reports invariant (iii): status=Generated implies
// SI and L are present.
func (j *Job) HasSignatureAndLeaf() bool {
	return j.IssuerSignature != "" && j.MerkleLeaf != ""
}

// EligibleForPDFReaugment reports invariant (v): a job with no
// augmented PDF but with both an MRI (via its batch) and a recorded
// txHash should be re-augmented by P6.
func (j *Job) EligibleForPDFReaugment(batchHasMRI, batchHasTxHash bool) bool {
	return j.CertificateWithQRPath == "" && batchHasMRI && batchHasTxHash
}
