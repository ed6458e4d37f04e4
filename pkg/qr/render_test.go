// Copyright 2025 Justifai
package qr

import (
	"strings"
	"testing"
)

func TestBuildWithFallbackPrefersShortURLWhenConfigured(t *testing.T) {
	payload, err := Build(BuildInput{JobID: "job-1", MRI: "cc"})
	if err != nil {
		t.Fatalf("build: %v", err)
	}

	_, content, err := BuildWithFallback(payload, "https://verify.example.com", RenderOptions{})
	if err != nil {
		t.Fatalf("build with fallback: %v", err)
	}
	want := VerifyURL("https://verify.example.com", "job-1")
	if content != want {
		t.Fatalf("expected short URL as primary content, got %q, want %q", content, want)
	}
}

func TestBuildWithFallbackEmbedsFullPayloadWhenNoVerifyURL(t *testing.T) {
	payload, err := Build(BuildInput{JobID: "job-1", MRI: "cc"})
	if err != nil {
		t.Fatalf("build: %v", err)
	}

	_, content, err := BuildWithFallback(payload, "", RenderOptions{})
	if err != nil {
		t.Fatalf("build with fallback: %v", err)
	}
	if !strings.HasPrefix(content, "/verify?p=") {
		t.Fatalf("expected full-payload fragment content, got %q", content)
	}
	if strings.Contains(content, "jobId=") {
		t.Fatalf("expected full-payload form, not the short URL form, got %q", content)
	}
}
