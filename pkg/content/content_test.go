// Copyright 2025 Justifai
package content

import "testing"

func TestTokenizeMergesFragmentedLetters(t *testing.T) {
	tokens := Tokenize("c e r t i f i c a t e of completion")
	if tokens[0] != "certificate" {
		t.Fatalf("expected fragmented letters merged into 'certificate', got %q", tokens[0])
	}
}

func TestTokenizeDropsLongPunctuationRuns(t *testing.T) {
	tokens := Tokenize("Name: Ada ------ Score: 100")
	for _, tok := range tokens {
		if tok == "------" {
			t.Fatalf("expected long punctuation run dropped, got it in %v", tokens)
		}
	}
}

func TestHashIsDeterministic(t *testing.T) {
	h1, err := Hash("This Certificate is awarded to Ada Lovelace.")
	if err != nil {
		t.Fatalf("hash: %v", err)
	}
	h2, err := Hash("This Certificate is awarded to Ada Lovelace.")
	if err != nil {
		t.Fatalf("hash: %v", err)
	}
	if h1 != h2 {
		t.Fatalf("expected deterministic hash, got %s vs %s", h1, h2)
	}
}

func TestHashIgnoresCaseAndSmartQuotes(t *testing.T) {
	h1, err := Hash(`Ada’s certificate`)
	if err != nil {
		t.Fatalf("hash: %v", err)
	}
	h2, err := Hash(`ADA'S CERTIFICATE`)
	if err != nil {
		t.Fatalf("hash: %v", err)
	}
	if h1 != h2 {
		t.Fatalf("expected case/quote-insensitive hash, got %s vs %s", h1, h2)
	}
}
