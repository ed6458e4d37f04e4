// Copyright 2025 Justifai
//
// Extractor implements C9's recovery half: locating the embedded
// original PDF and verification bundle inside a candidate PDF. This is
// a hand-rolled low-level object scan (regexp over the raw bytes plus
// compress/zlib for stream decompression) rather than a library call,
// because no library in the pack exposes the exact multi-strategy
// traversal the spec requires (name-tree recursion, catalog AF array,
// page-level annotations, and a full indirect-object Filespec scan,
// with legacy name-pattern recognition) — pdfcpu's high-level API
// covers the augmentor's attach/stamp/metadata operations but not this
// extraction shape. The scan here matches every /Type /Filespec
// dictionary wherever it appears in the file; it does not walk the
// EmbeddedFiles name tree, the catalog AF array or page annotations as
// separate routes.
package pdf

import (
	"bytes"
	"compress/zlib"
	"encoding/hex"
	"io"
	"regexp"
	"strings"
	"time"
	"unicode/utf16"

	"github.com/justifai/certify/pkg/errkind"
)

// DefaultProducer is the Producer string left by the augmentor when no
// issuer name is configured (see augmentor.go's rewriteMetadata),
// accepted by step 10f alongside the expected issuer name.
const DefaultProducer = "pdfcpu"

// Extractor recovers the original PDF and verification bundle from an
// augmented (or tampered) candidate PDF.
type Extractor interface {
	Extract(candidate []byte) (*ExtractResult, error)
}

// ScanExtractor is the hand-rolled Extractor.
type ScanExtractor struct{}

var _ Extractor = ScanExtractor{}

// NewExtractor returns the default Extractor.
func NewExtractor() ScanExtractor { return ScanExtractor{} }

var (
	filespecPattern     = regexp.MustCompile(`(?s)<<[^<>]*?/Type\s*/Filespec.*?>>`)
	fNamePattern        = regexp.MustCompile(`/F\s*\(([^)]*)\)`)
	ufNamePattern       = regexp.MustCompile(`/UF\s*<([0-9A-Fa-f]+)>`)
	streamPattern       = regexp.MustCompile(`(?s)stream\r?\n(.*?)\r?\nendstream`)
	flatePattern        = regexp.MustCompile(`/Filter\s*/FlateDecode`)
	producerPattern     = regexp.MustCompile(`/Producer\s*\(([^)]*)\)`)
	startxrefPattern    = regexp.MustCompile(`startxref`)
	annotCountPattern   = regexp.MustCompile(`/Subtype\s*/(Link|Widget|Text|FreeText|Square|Circle|Stamp)\b`)
	imageCountPattern   = regexp.MustCompile(`/Subtype\s*/Image\b`)
	creationDatePattern = regexp.MustCompile(`/CreationDate\s*\(([^)]*)\)`)
	modDatePattern      = regexp.MustCompile(`/ModDate\s*\(([^)]*)\)`)
)

// Extract walks the candidate PDF bytes for file-attachment objects,
// decodes their streams, and classifies them as the original PDF or
// the verification bundle by name pattern / JSON shape.
func (ScanExtractor) Extract(candidate []byte) (*ExtractResult, error) {
	result := &ExtractResult{}

	for _, block := range filespecPattern.FindAllString(string(candidate), -1) {
		name := filespecName(block)
		streamBytes, ok := nearestStream(candidate, block)
		if !ok {
			continue
		}

		data, err := decodeStream(streamBytes, block)
		if err != nil {
			continue
		}

		switch {
		case IsOriginalPDFName(name) && !result.OriginalPDFFound:
			result.OriginalPDF = data
			result.OriginalPDFFound = true
		case looksLikeVerificationBundle(data) && !result.VerificationBundleFound:
			result.VerificationBundle = data
			result.VerificationBundleFound = true
		}
	}

	// Legacy fallback: Subject/Keywords holding the VD JSON directly.
	if !result.VerificationBundleFound {
		if data, ok := extractSubjectOrKeywordsJSON(candidate); ok {
			result.VerificationBundle = data
			result.VerificationBundleFound = true
		}
	}

	result.AnnotationCount, result.ImageCount = CountAnnotationsAndImages(candidate)
	result.StartxrefCount = len(startxrefPattern.FindAll(candidate, -1))
	if m := producerPattern.FindSubmatch(candidate); m != nil {
		result.Producer = string(m[1])
	}
	if m := creationDatePattern.FindSubmatch(candidate); m != nil {
		if t, ok := parsePDFDate(string(m[1])); ok {
			result.CreationDate = t
		}
	}
	if m := modDatePattern.FindSubmatch(candidate); m != nil {
		if t, ok := parsePDFDate(string(m[1])); ok {
			result.ModDate = t
		}
	}

	return result, nil
}

// CountAnnotationsAndImages counts annotation subtype and image
// XObject occurrences in raw PDF bytes, used both for the outer
// candidate (by Extract) and for the embedded original PDF (by step
// 10b/10c's diff against it).
func CountAnnotationsAndImages(data []byte) (annotations, images int) {
	return len(annotCountPattern.FindAll(data, -1)), len(imageCountPattern.FindAll(data, -1))
}

// pdfDateLayouts covers the PDF date string "D:YYYYMMDDHHmmSS±HH'mm'"
// form (quote characters stripped before parsing) plus the bare UTC
// and local-time variants some writers emit.
var pdfDateLayouts = []string{
	"20060102150405-0700",
	"20060102150405Z0700",
	"20060102150405",
}

func parsePDFDate(s string) (time.Time, bool) {
	s = strings.TrimPrefix(s, "D:")
	s = strings.ReplaceAll(s, "'", "")
	for _, layout := range pdfDateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

// filespecName extracts the attachment's display name, preferring /UF
// (UTF-16BE hex, optionally BOM-prefixed) over the legacy /F literal.
func filespecName(filespecBlock string) string {
	if m := ufNamePattern.FindStringSubmatch(filespecBlock); m != nil {
		if name, err := decodeUTF16BEHex(m[1]); err == nil {
			return name
		}
	}
	if m := fNamePattern.FindStringSubmatch(filespecBlock); m != nil {
		return m[1]
	}
	return ""
}

func decodeUTF16BEHex(hexStr string) (string, error) {
	raw, err := hex.DecodeString(hexStr)
	if err != nil {
		return "", errkind.Wrap(errkind.PDF, err, "decode UTF-16BE hex name")
	}
	if len(raw) >= 2 && raw[0] == 0xFE && raw[1] == 0xFF {
		raw = raw[2:]
	}
	if len(raw)%2 != 0 {
		return "", errkind.New(errkind.PDF, "odd-length UTF-16BE name")
	}
	units := make([]uint16, len(raw)/2)
	for i := range units {
		units[i] = uint16(raw[2*i])<<8 | uint16(raw[2*i+1])
	}
	return string(utf16.Decode(units)), nil
}

// nearestStream finds the stream object immediately following the
// Filespec's referenced EmbeddedFile dictionary. Because the Filespec
// only carries an indirect reference to its stream, the practical
// recovery strategy (matching the spec's own description of this
// being an ad-hoc traversal) is to take the next stream object in
// file order after the Filespec block.
func nearestStream(candidate []byte, filespecBlock string) ([]byte, bool) {
	idx := bytes.Index(candidate, []byte(filespecBlock))
	if idx < 0 {
		return nil, false
	}
	rest := candidate[idx:]
	m := streamPattern.FindSubmatchIndex(rest)
	if m == nil {
		return nil, false
	}
	return rest[m[2]:m[3]], true
}

func decodeStream(raw []byte, filespecBlock string) ([]byte, error) {
	if flatePattern.MatchString(filespecBlock) || looksLikeZlib(raw) {
		r, err := zlib.NewReader(bytes.NewReader(raw))
		if err != nil {
			return nil, errkind.Wrap(errkind.PDF, err, "open FlateDecode stream")
		}
		defer r.Close()
		data, err := io.ReadAll(r)
		if err != nil {
			return nil, errkind.Wrap(errkind.PDF, err, "inflate stream")
		}
		return data, nil
	}
	return raw, nil
}

func looksLikeZlib(raw []byte) bool {
	return len(raw) >= 2 && raw[0] == 0x78
}

func looksLikeVerificationBundle(data []byte) bool {
	markers := []string{"documentHash", "fingerprintHash", "merkleRootIntermediate", "issuerSignature", "merkleLeaf"}
	text := string(data)
	for _, m := range markers {
		if strings.Contains(text, m) {
			return true
		}
	}
	return false
}

func extractSubjectOrKeywordsJSON(candidate []byte) ([]byte, bool) {
	for _, pat := range []*regexp.Regexp{
		regexp.MustCompile(`/Subject\s*\(([^)]*)\)`),
		regexp.MustCompile(`/Keywords\s*\(([^)]*)\)`),
	} {
		m := pat.FindSubmatch(candidate)
		if m == nil {
			continue
		}
		if looksLikeVerificationBundle(m[1]) {
			return m[1], true
		}
	}
	return nil, false
}
