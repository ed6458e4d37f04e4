// Copyright 2025 Justifai
package qr

import (
	"bytes"
	"compress/flate"
	"encoding/base64"
	"encoding/json"
	"io"

	"github.com/justifai/certify/pkg/errkind"
)

// CompressPayload serializes p to JSON, deflates it (raw, no zlib
// header/trailer), and base64url-encodes without padding — the exact
// transform the verify portal's "p=" query parameter expects.
func CompressPayload(p any) (string, error) {
	raw, err := json.Marshal(p)
	if err != nil {
		return "", errkind.Wrap(errkind.Validation, err, "marshal QR payload")
	}

	var buf bytes.Buffer
	w, err := flate.NewWriter(&buf, flate.BestCompression)
	if err != nil {
		return "", errkind.Wrap(errkind.Validation, err, "create deflate writer")
	}
	if _, err := w.Write(raw); err != nil {
		return "", errkind.Wrap(errkind.Validation, err, "deflate QR payload")
	}
	if err := w.Close(); err != nil {
		return "", errkind.Wrap(errkind.Validation, err, "close deflate writer")
	}

	return base64.RawURLEncoding.EncodeToString(buf.Bytes()), nil
}

// DecompressPayload inverts CompressPayload, decoding into dst (a
// pointer to a Payload or any other JSON-compatible type).
func DecompressPayload(encoded string, dst any) error {
	compressed, err := base64.RawURLEncoding.DecodeString(encoded)
	if err != nil {
		return errkind.Wrap(errkind.Validation, err, "base64url decode QR fragment")
	}

	r := flate.NewReader(bytes.NewReader(compressed))
	defer r.Close()
	raw, err := io.ReadAll(r)
	if err != nil {
		return errkind.Wrap(errkind.Validation, err, "inflate QR fragment")
	}

	if err := json.Unmarshal(raw, dst); err != nil {
		return errkind.Wrap(errkind.Validation, err, "unmarshal QR fragment")
	}
	return nil
}

// VerifyURL builds the short-URL form "<base>/verify?jobId=<id>".
func VerifyURL(baseURL, jobID string) string {
	return baseURL + "/verify?jobId=" + jobID
}

// VerifyURLWithFragment builds the full-payload URL form
// "<base>/verify?p=<compressed>".
func VerifyURLWithFragment(baseURL, compressed string) string {
	return baseURL + "/verify?p=" + compressed
}
