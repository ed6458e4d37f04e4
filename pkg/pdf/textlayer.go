// Copyright 2025 Justifai
//
// Minimal text-layer extraction used only for the content-integrity
// heuristics (step 10a) and the optional C12 content hash: pulls
// literal strings out of Tj/TJ show-text operators found in the
// document's own page content streams, inflating FlateDecode/raw-zlib
// streams the same way extractor.go's decodeStream does (real PDFs,
// especially HTML-to-PDF output, almost always compress content
// streams). This intentionally does not handle embedded font encoding
// tables, matching the content extractor's tolerance for an
// approximate, whitespace-normalized comparison rather than exact
// glyph recovery.
package pdf

import (
	"regexp"
	"strings"
)

var showTextPattern = regexp.MustCompile(`\(((?:[^()\\]|\\.)*)\)\s*Tj|\[((?:[^\[\]]|\\.)*)\]\s*TJ`)

var tjArrayLiteralPattern = regexp.MustCompile(`\(((?:[^()\\]|\\.)*)\)`)

var pdfEscapeReplacer = strings.NewReplacer(`\(`, "(", `\)`, ")", `\\`, `\`)

// objDictStreamPattern matches an object's dictionary immediately
// followed by its stream body, the same shape extractor.go scans for
// attachments. Page content streams are anonymous (referenced only by
// a page's /Contents entry) and so never declare a /Type key, unlike
// attachment, image XObject, or object streams; typeKeyPattern is used
// to skip those so scanning the outer candidate doesn't also pull in
// an embedded original PDF's own text a second time.
var objDictStreamPattern = regexp.MustCompile(`(?s)<<([^<>]*)>>\s*stream\r?\n(.*?)\r?\nendstream`)
var typeKeyPattern = regexp.MustCompile(`/Type\s*/`)

// ExtractTextLayer returns a best-effort concatenation of every
// literal string shown via Tj/TJ across every page content stream in
// the document, with no page limit.
func ExtractTextLayer(pdfBytes []byte) string {
	return ExtractTextLayerPages(pdfBytes, 0)
}

// ExtractTextLayerPages is ExtractTextLayer capped to the first
// maxPages content streams (maxPages <= 0 means unlimited), the
// extraction-side half of C12 step 1's "up to 20 pages" rule. Content
// streams are a practical stand-in for pages here, consistent with
// this package's approximate, regex-based parsing elsewhere.
func ExtractTextLayerPages(pdfBytes []byte, maxPages int) string {
	var sb strings.Builder

	seen := 0
	matchedAny := false
	for _, m := range objDictStreamPattern.FindAllSubmatch(pdfBytes, -1) {
		dict := string(m[1])
		if typeKeyPattern.MatchString(dict) {
			continue
		}
		if maxPages > 0 && seen >= maxPages {
			break
		}

		data, err := decodeStream(m[2], dict)
		if err != nil {
			continue
		}
		matchedAny = true
		seen++
		appendShowText(&sb, data)
	}

	if !matchedAny {
		// No (or no usable) wrapped content streams found; fall back to
		// scanning the bytes directly, for bare content-stream fragments
		// with no surrounding object/stream framing.
		appendShowText(&sb, pdfBytes)
	}

	return sb.String()
}

func appendShowText(sb *strings.Builder, data []byte) {
	for _, m := range showTextPattern.FindAllSubmatch(data, -1) {
		if len(m[1]) > 0 {
			sb.WriteString(pdfEscapeReplacer.Replace(string(m[1])))
			sb.WriteByte(' ')
		}
		if len(m[2]) > 0 {
			for _, lit := range tjArrayLiteralPattern.FindAllSubmatch(m[2], -1) {
				sb.WriteString(pdfEscapeReplacer.Replace(string(lit[1])))
				sb.WriteByte(' ')
			}
		}
	}
}

// NormalizeWhitespace collapses runs of whitespace to a single space
// and trims the ends, for step 10a's text-layer equality check.
func NormalizeWhitespace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
