// Copyright 2025 Justifai
package storage

import (
	"bytes"
	"context"
	"testing"
)

func TestLocalDriverRoundTripAndKeying(t *testing.T) {
	dir := t.TempDir()
	d := NewLocalDriver(dir, "")

	rel, err := d.Store(context.Background(), []byte("hello"), "tenant1", "batch1", "job1", Options{})
	if err != nil {
		t.Fatalf("store: %v", err)
	}
	if rel != "certificates/tenant1/batch1/job1.pdf" {
		t.Fatalf("unexpected key: %s", rel)
	}

	got, err := d.Retrieve(context.Background(), rel)
	if err != nil {
		t.Fatalf("retrieve: %v", err)
	}
	if !bytes.Equal(got, []byte("hello")) {
		t.Fatalf("round-trip mismatch: %s", got)
	}
}

func TestLocalDriverCustomFolderAndExtension(t *testing.T) {
	dir := t.TempDir()
	d := NewLocalDriver(dir, "")

	rel, err := d.Store(context.Background(), []byte("png"), "t1", "b1", "j1", Options{Folder: "qr-codes", Extension: ".png"})
	if err != nil {
		t.Fatalf("store: %v", err)
	}
	if rel != "qr-codes/t1/b1/j1.png" {
		t.Fatalf("unexpected key: %s", rel)
	}
}
