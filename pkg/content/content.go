// Copyright 2025 Justifai
//
// Package content implements the optional strict content fingerprint
// (C12): tokenize a PDF's visible text layer, build a canonical token
// histogram, and hash it. Resilient to raster-only edits since it
// never looks at pixels, only extracted text.
package content

import (
	"regexp"
	"strings"
	"unicode"

	"golang.org/x/text/unicode/norm"

	"github.com/justifai/certify/pkg/canonical"
	"github.com/justifai/certify/pkg/errkind"
	"github.com/justifai/certify/pkg/hashkernel"
)

// MaxPages bounds how much of the text layer is considered.
const MaxPages = 20

// tokenPattern matches runs of letters/numbers, or runs of punctuation
// from a small separator set, mirroring the spec's
// "[L|N]+ | [.,-/]+" rule expressed in Go's unicode-aware regexp.
var tokenPattern = regexp.MustCompile(`[\p{L}\p{N}]+|[.,\-/]+`)

var smartQuoteReplacer = strings.NewReplacer(
	"‘", "'", "’", "'", "“", `"`, "”", `"`,
	"–", "-", "—", "-", " ", " ",
)

// Normalize applies NFKC normalization, lowercasing, and smart
// punctuation unification ahead of tokenization.
func Normalize(text string) string {
	nfkc := norm.NFKC.String(text)
	unified := smartQuoteReplacer.Replace(nfkc)
	return strings.ToLower(unified)
}

// Tokenize splits normalized text into tokens, dropping long runs of
// bare punctuation and merging fragmented single-letter runs that are
// adjacent to each other back into one word (an OCR/kerning artifact
// in extracted PDF text layers).
func Tokenize(text string) []string {
	normalized := Normalize(text)
	raw := tokenPattern.FindAllString(normalized, -1)

	var tokens []string
	for _, tok := range raw {
		if isBarePunctuationRun(tok) && len(tok) > 3 {
			continue // long punctuation runs carry no semantic content
		}
		tokens = append(tokens, tok)
	}
	return mergeFragmentedWords(tokens)
}

func isBarePunctuationRun(tok string) bool {
	for _, r := range tok {
		if unicode.IsLetter(r) || unicode.IsNumber(r) {
			return false
		}
	}
	return true
}

// mergeFragmentedWords joins consecutive single-character letter
// tokens (e.g. "c","e","r","t" from a kerned header) into one word.
func mergeFragmentedWords(tokens []string) []string {
	var out []string
	var run strings.Builder
	flush := func() {
		if run.Len() > 0 {
			out = append(out, run.String())
			run.Reset()
		}
	}
	for _, tok := range tokens {
		if len(tok) == 1 && isLetterRune(tok) {
			run.WriteString(tok)
			continue
		}
		flush()
		out = append(out, tok)
	}
	flush()
	return out
}

func isLetterRune(tok string) bool {
	r := []rune(tok)
	return len(r) == 1 && unicode.IsLetter(r[0])
}

// Counts maps a token to its occurrence count.
type Counts map[string]int

// BuildCounts tallies token frequency.
func BuildCounts(tokens []string) Counts {
	counts := make(Counts, len(tokens))
	for _, t := range tokens {
		counts[t]++
	}
	return counts
}

// Fingerprint is the canonical payload hashed into dataHash.
type Fingerprint struct {
	V          int    `json:"v"`
	Counts     Counts `json:"counts"`
	TokenCount int    `json:"tokenCount"`
}

// Hash builds the canonical {v, counts, tokenCount} payload from a
// text layer and returns its keccak256 hash as dataHash.
func Hash(textLayer string) (string, error) {
	tokens := Tokenize(textLayer)
	counts := BuildCounts(tokens)

	countsAny := make(map[string]any, len(counts))
	for k, v := range counts {
		countsAny[k] = v
	}

	raw, err := canonical.Canonicalize(map[string]any{
		"v":          1,
		"counts":     countsAny,
		"tokenCount": len(tokens),
	})
	if err != nil {
		return "", errkind.Wrap(errkind.Integrity, err, "canonicalize content fingerprint")
	}
	return hashkernel.HHex(raw), nil
}
