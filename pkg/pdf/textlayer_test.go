// Copyright 2025 Justifai
package pdf

import (
	"bytes"
	"compress/zlib"
	"testing"
)

func TestExtractTextLayerHandlesTjAndTJ(t *testing.T) {
	input := []byte(`(Hello) Tj [(World) (!)] TJ`)
	got := ExtractTextLayer(input)
	want := "Hello World ! "
	if got != want {
		t.Fatalf("got %q, want %q", got, want)
	}
}

func TestExtractTextLayerUnescapesParens(t *testing.T) {
	input := []byte(`(Price \(discounted\)) Tj`)
	got := ExtractTextLayer(input)
	if got != "Price (discounted) " {
		t.Fatalf("unexpected unescape result: %q", got)
	}
}

func TestNormalizeWhitespaceCollapsesAndTrims(t *testing.T) {
	got := NormalizeWhitespace("  Hello   World  \n\t ")
	if got != "Hello World" {
		t.Fatalf("got %q", got)
	}
}

func TestExtractTextLayerDecodesUncompressedContentStream(t *testing.T) {
	input := []byte("5 0 obj\n<< /Length 10 >>\nstream\n(Hello) Tj\nendstream\nendobj\n")
	got := ExtractTextLayer(input)
	want := "Hello "
	if got != want {
		t.Fatalf("got %q, want %q", got, want)
	}
}

func TestExtractTextLayerDecodesFlateContentStream(t *testing.T) {
	var buf bytes.Buffer
	zw := zlib.NewWriter(&buf)
	if _, err := zw.Write([]byte("(Compressed Text) Tj")); err != nil {
		t.Fatalf("write compressed fixture: %v", err)
	}
	if err := zw.Close(); err != nil {
		t.Fatalf("close zlib writer: %v", err)
	}

	input := append([]byte("5 0 obj\n<< /Length 99 /Filter /FlateDecode >>\nstream\n"), buf.Bytes()...)
	input = append(input, []byte("\nendstream\nendobj\n")...)

	got := ExtractTextLayer(input)
	want := "Compressed Text "
	if got != want {
		t.Fatalf("got %q, want %q", got, want)
	}
}

func TestExtractTextLayerPagesCapsContentStreams(t *testing.T) {
	input := []byte(
		"5 0 obj\n<< /Length 10 >>\nstream\n(Page One) Tj\nendstream\nendobj\n" +
			"6 0 obj\n<< /Length 10 >>\nstream\n(Page Two) Tj\nendstream\nendobj\n")

	got := ExtractTextLayerPages(input, 1)
	want := "Page One "
	if got != want {
		t.Fatalf("got %q, want %q", got, want)
	}
}

func TestExtractTextLayerSkipsTypedStreams(t *testing.T) {
	input := []byte(
		"4 0 obj\n<< /Type /EmbeddedFile /Length 10 >>\nstream\n(Attachment Text) Tj\nendstream\nendobj\n" +
			"5 0 obj\n<< /Length 10 >>\nstream\n(Page Text) Tj\nendstream\nendobj\n")

	got := ExtractTextLayer(input)
	want := "Page Text "
	if got != want {
		t.Fatalf("got %q, want %q", got, want)
	}
}
