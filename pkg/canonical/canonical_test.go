// Copyright 2025 Justifai
package canonical

import (
	"bytes"
	"testing"
)

func TestCanonicalizeDropsNullAndEmpty(t *testing.T) {
	out, err := Canonicalize(map[string]any{
		"a":       "keep",
		"b":       nil,
		"c":       "",
		"_schema": 99, // must be overwritten, not duplicated
	})
	if err != nil {
		t.Fatalf("canonicalize: %v", err)
	}
	if bytes.Contains(out, []byte(`"b"`)) || bytes.Contains(out, []byte(`"c"`)) {
		t.Fatalf("expected null/empty keys dropped, got %s", out)
	}
	if !bytes.Contains(out, []byte(`"_schema":1`)) {
		t.Fatalf("expected _schema:1, got %s", out)
	}
}

func TestCanonicalizeSortsKeys(t *testing.T) {
	out, err := Canonicalize(map[string]any{"zeta": 1, "alpha": 2, "mid": 3})
	if err != nil {
		t.Fatalf("canonicalize: %v", err)
	}
	wantOrder := []byte(`{"_schema":1,"alpha":2,"mid":3,"zeta":1}`)
	if !bytes.Equal(out, wantOrder) {
		t.Fatalf("got %s want %s", out, wantOrder)
	}
}

func TestCanonicalizeIdempotent(t *testing.T) {
	input := map[string]any{"name": "élan", "tags": []any{"b", "a", "c"}}
	once, err := Canonicalize(input)
	if err != nil {
		t.Fatalf("first pass: %v", err)
	}
	twice, err := FromJSON(once)
	if err != nil {
		t.Fatalf("second pass: %v", err)
	}
	if !bytes.Equal(once, twice) {
		t.Fatalf("canonicalize not idempotent:\n%s\nvs\n%s", once, twice)
	}
}

func TestCanonicalizeTruncatesDecimals(t *testing.T) {
	out, err := FromJSON([]byte(`{"amount": 1.123456789012345}`))
	if err != nil {
		t.Fatalf("from json: %v", err)
	}
	if !bytes.Contains(out, []byte(`"amount":1.123456789}`)) {
		t.Fatalf("expected truncation to 10 decimals, got %s", out)
	}
}

func TestCanonicalizeSortsPrimitiveArrays(t *testing.T) {
	out, err := FromJSON([]byte(`{"tags": ["zebra", "apple", "mango"]}`))
	if err != nil {
		t.Fatalf("from json: %v", err)
	}
	want := []byte(`"tags":["apple","mango","zebra"]`)
	if !bytes.Contains(out, want) {
		t.Fatalf("expected sorted array, got %s", out)
	}
}
