// Copyright 2025 Justifai
package qr

import (
	"strings"
	"testing"
)

func TestCompressDecompressRoundTrip(t *testing.T) {
	p, err := Build(BuildInput{
		JobID:           "job-1",
		BatchID:         "batch-1",
		TenantID:        "tenant-1",
		TemplateID:      "tpl-1",
		TemplateContent: "<h1>{{name}}</h1>",
		Data:            map[string]any{"name": "Ada"},
		DocumentHash:    strings.Repeat("ab", 32),
		MPI:             []string{"aa", "bb"},
		MRI:             "cc",
	})
	if err != nil {
		t.Fatalf("build: %v", err)
	}

	encoded, err := CompressPayload(p)
	if err != nil {
		t.Fatalf("compress: %v", err)
	}

	var decoded Payload
	if err := DecompressPayload(encoded, &decoded); err != nil {
		t.Fatalf("decompress: %v", err)
	}
	if decoded.JobID != p.JobID || decoded.MRI != p.MRI {
		t.Fatalf("round trip mismatch: %+v vs %+v", decoded, p)
	}
}

func TestBuildNullExpiriesSerializeAsNil(t *testing.T) {
	p, err := Build(BuildInput{JobID: "j1", Ed: 0, Ei: 0})
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	if p.Ed != nil || p.Ei != nil {
		t.Fatalf("expected nil Ed/Ei for zero epoch, got %v %v", p.Ed, p.Ei)
	}
}

func TestSelectFieldsRestrictsToDeclaredNames(t *testing.T) {
	data := map[string]any{"name": "Ada", "secret": "x"}
	got := SelectFields(data, []string{"name"})
	if _, ok := got["secret"]; ok {
		t.Fatalf("expected secret field to be excluded")
	}
	if got["name"] != "Ada" {
		t.Fatalf("expected name field retained")
	}
}
