// Copyright 2025 Justifai
//
// PNG rendering via the ecosystem's go-qrcode library, with the
// adaptive error-correction-level ladder and payload-shrinking
// fallback chain described in the PDF augmentor's QR step.
package qr

import (
	"image/color"

	qrcode "github.com/skip2/go-qrcode"

	"github.com/justifai/certify/pkg/errkind"
)

// Style selects the foreground/background colors used when rendering.
type Style string

const (
	StyleClassic     Style = "classic"
	StyleDark        Style = "dark"
	StyleTransparent Style = "transparent"
)

// RenderOptions controls PNG output.
type RenderOptions struct {
	SizePixels int
	Style      Style
}

// eclLadder is tried in the order Medium, Low, Quartile (go-qrcode's
// High), High (go-qrcode's Highest). Low holds the most data, so a
// payload that overflows Low also overflows the two levels after it.
var eclLadder = []qrcode.RecoveryLevel{qrcode.Medium, qrcode.Low, qrcode.High, qrcode.Highest}

// RenderPNG encodes content as a QR PNG, walking the ECL ladder on
// any encode or PNG-output error, not only on capacity overflow; the
// last error is returned when every level fails. It never tries to shrink content itself — callers
// supply progressively smaller payload strings via the fallback chain
// in BuildWithFallback.
func RenderPNG(content string, opts RenderOptions) ([]byte, error) {
	size := opts.SizePixels
	if size <= 0 {
		size = 768
	}

	var lastErr error
	for _, level := range eclLadder {
		qr, err := qrcode.New(content, level)
		if err != nil {
			lastErr = err
			continue
		}
		applyStyle(qr, opts.Style)

		png, err := qr.PNG(size)
		if err != nil {
			lastErr = err
			continue
		}
		return png, nil
	}
	return nil, errkind.Wrap(errkind.PDF, lastErr, "encode QR PNG at every error-correction level")
}

func applyStyle(qr *qrcode.QRCode, style Style) {
	switch style {
	case StyleDark:
		qr.BackgroundColor = color.Black
		qr.ForegroundColor = color.White
	case StyleTransparent:
		qr.BackgroundColor = color.Transparent
		qr.ForegroundColor = color.Black
	case StyleClassic, "":
		// library defaults: black on white
	}
}

// BuildWithFallback picks the primary content strategy from
// verifyURL's presence, not from render failures: a configured
// verifyURL means the portal can fetch the persisted payload by job
// id, so the short URL is primary; with no verifyURL configured, the
// full compressed payload is embedded directly. Either primary's
// render failure (every ECL overflowing) falls through to the minimal
// {jobId} JSON, the last resort regardless of which primary was tried.
func BuildWithFallback(full *Payload, verifyURL string, opts RenderOptions) ([]byte, string, error) {
	if verifyURL != "" {
		shortURL := VerifyURL(verifyURL, full.JobID)
		if png, err := RenderPNG(shortURL, opts); err == nil {
			return png, shortURL, nil
		}
	} else if fullJSON, err := CompressPayload(full); err == nil {
		content := VerifyURLWithFragment(verifyURL, fullJSON)
		if png, err := RenderPNG(content, opts); err == nil {
			return png, content, nil
		}
	}

	minimal, err := CompressPayload(Minimal{JobID: full.JobID})
	if err != nil {
		return nil, "", errkind.Wrap(errkind.PDF, err, "compress minimal fallback payload")
	}
	content := VerifyURLWithFragment(verifyURL, minimal)
	png, err := RenderPNG(content, opts)
	if err != nil {
		return nil, "", errkind.Wrap(errkind.PDF, err, "render QR even with minimal fallback payload")
	}
	return png, content, nil
}
