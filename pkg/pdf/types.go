// Copyright 2025 Justifai
package pdf

import "time"

// Placement is where, on which page, and at what size to draw the QR
// image. AugmentInput.Placement carries the CSS-pixel coordinates
// templates are authored in; the augmentor converts them to PDF points
// (72 pt/in) with CSSPixelsToPoints before stamping.
type Placement struct {
	PageIndex int // 0-based
	X, Y      float64
	Width     float64
	Height    float64
}

// cssPixelsPerInch and pdfPointsPerInch fix the 96px/in -> 72pt/in
// conversion the augmentor applies to template-declared placements.
const (
	cssPixelsPerInch = 96.0
	pdfPointsPerInch = 72.0
)

// CSSPixelsToPoints converts a CSS-pixel Placement to PDF points.
func CSSPixelsToPoints(p Placement) Placement {
	scale := pdfPointsPerInch / cssPixelsPerInch
	return Placement{
		PageIndex: p.PageIndex,
		X:         p.X * scale,
		Y:         p.Y * scale,
		Width:     p.Width * scale,
		Height:    p.Height * scale,
	}
}

// AugmentInput carries everything Augment needs to produce the
// outgoing PDF.
type AugmentInput struct {
	Original           []byte
	QRImagePNG         []byte
	VerificationBundle []byte // canonical JSON bytes
	Placement          Placement
	IssuerName         string
	Now                time.Time
}

// ExtractResult is everything the verifier recovers from a candidate PDF.
type ExtractResult struct {
	OriginalPDF             []byte
	OriginalPDFFound        bool
	VerificationBundle      []byte
	VerificationBundleFound bool
	AnnotationCount         int
	ImageCount              int
	CreationDate            time.Time
	ModDate                 time.Time
	Producer                string
	StartxrefCount          int
	TextLayer               string
}
