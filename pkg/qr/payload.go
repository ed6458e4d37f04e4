// Copyright 2025 Justifai
//
// Package qr builds the v2 QR payload, canonicalizes and hashes its
// template-binding fields, and compresses it for the full-payload
// "?p=" verify URL. Rendering (payload -> PNG) lives in render.go.
package qr

import (
	"github.com/justifai/certify/pkg/canonical"
	"github.com/justifai/certify/pkg/errkind"
	"github.com/justifai/certify/pkg/hashkernel"
)

// Version is the payload schema version, serialized as "v".
const Version = 2

// Payload is the v2 QR payload object. Keys are fixed by the wire
// format: json tags below must not change without a version bump.
type Payload struct {
	V               int      `json:"v"`
	JobID           string   `json:"jobId"`
	BatchID         string   `json:"batchId"`
	TenantID        string   `json:"tenantId"`
	TemplateID      string   `json:"templateId"`
	TemplateHash    string   `json:"templateHash"`
	Fields          any      `json:"fields"`
	FieldsHash      string   `json:"fieldsHash"`
	DocumentHash    string   `json:"documentHash"`
	TxHash          string   `json:"txHash"`
	Network         string   `json:"network"`
	MPU             []string `json:"MPU"`
	MPI             []string `json:"MPI"`
	IssuerID        string   `json:"issuerId"`
	IssuerPublicKey string   `json:"issuerPublicKey"`
	MRI             string   `json:"MRI"`
	MRU             string   `json:"MRU"`
	Ed              *int64   `json:"Ed"`
	Ei              *int64   `json:"Ei"`
	SI              string   `json:"SI"`
}

// TemplateHash computes keccak256(utf8(templateContent)).
func TemplateHash(templateContent string) string {
	return hashkernel.HHex([]byte(templateContent))
}

// SelectFields restricts data to the names declared by a template; an
// empty declaredNames means "use the whole input".
func SelectFields(data map[string]any, declaredNames []string) map[string]any {
	if len(declaredNames) == 0 {
		return data
	}
	out := make(map[string]any, len(declaredNames))
	for _, name := range declaredNames {
		if v, ok := data[name]; ok {
			out[name] = v
		}
	}
	return out
}

// FieldsHash computes keccak256(canonicalJson({templateId, templateHash, fields})).
func FieldsHash(templateID, templateHash string, fields map[string]any) (string, error) {
	raw, err := canonical.Canonicalize(map[string]any{
		"templateId":   templateID,
		"templateHash": templateHash,
		"fields":       fields,
	})
	if err != nil {
		return "", errkind.Wrap(errkind.Crypto, err, "canonicalize fields for hashing")
	}
	return hashkernel.HHex(raw), nil
}

// epochOrNil converts 0 (the codec's "no expiry" sentinel) to a nil
// pointer so the payload serializes that field as JSON null.
func epochOrNil(seconds int64) *int64 {
	if seconds == 0 {
		return nil
	}
	v := seconds
	return &v
}

// Build assembles a complete v2 payload.
func Build(p BuildInput) (*Payload, error) {
	fields := SelectFields(p.Data, p.DeclaredFieldNames)
	templateHash := TemplateHash(p.TemplateContent)
	fieldsHash, err := FieldsHash(p.TemplateID, templateHash, fields)
	if err != nil {
		return nil, err
	}

	return &Payload{
		V:               Version,
		JobID:           p.JobID,
		BatchID:         p.BatchID,
		TenantID:        p.TenantID,
		TemplateID:      p.TemplateID,
		TemplateHash:    templateHash,
		Fields:          fields,
		FieldsHash:      fieldsHash,
		DocumentHash:    p.DocumentHash,
		TxHash:          p.TxHash,
		Network:         p.Network,
		MPU:             p.MPU,
		MPI:             p.MPI,
		IssuerID:        p.IssuerID,
		IssuerPublicKey: p.IssuerPublicKey,
		MRI:             p.MRI,
		MRU:             p.MRU,
		Ed:              epochOrNil(p.Ed),
		Ei:              epochOrNil(p.Ei),
		SI:              p.SI,
	}, nil
}

// BuildInput carries everything Build needs from the job/batch records.
type BuildInput struct {
	JobID              string
	BatchID            string
	TenantID           string
	TemplateID         string
	TemplateContent    string
	Data               map[string]any
	DeclaredFieldNames []string
	DocumentHash       string
	TxHash             string
	Network            string
	MPU                []string
	MPI                []string
	IssuerID           string
	IssuerPublicKey    string
	MRI                string
	MRU                string
	Ed                 int64
	Ei                 int64
	SI                 string
}

// Minimal is the last-resort fallback payload when the primary content
// (short URL or compressed full payload) fails to render at every
// error-correction level.
type Minimal struct {
	JobID string `json:"jobId"`
}
