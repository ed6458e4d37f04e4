// Copyright 2025 Justifai
//
// Package storage is the binary-blob gateway (C5): two drivers, local
// filesystem and S3-compatible, keyed identically so the scheduler
// never knows which backend it is talking to.
package storage

import "context"

// DefaultFolder and DefaultExtension are applied when Options omits them.
const (
	DefaultFolder    = "certificates"
	DefaultExtension = ".pdf"
)

// Options customize a single Store call.
type Options struct {
	Folder      string
	Extension   string
	ContentType string
}

func (o Options) folder() string {
	if o.Folder != "" {
		return o.Folder
	}
	return DefaultFolder
}

func (o Options) extension() string {
	if o.Extension != "" {
		return o.Extension
	}
	return DefaultExtension
}

func (o Options) contentType() string {
	if o.ContentType != "" {
		return o.ContentType
	}
	return "application/octet-stream"
}

// Gateway is the storage driver interface. Keying is
// "{folder}/{tenantId}/{batchId}/{objectId}{ext}" in both drivers.
type Gateway interface {
	Store(ctx context.Context, data []byte, tenantID, batchID, objectID string, opts Options) (relativePath string, err error)
	Retrieve(ctx context.Context, relativePath string) ([]byte, error)
	PublicURL(relativePath string) string
	Name() string
}

func key(tenantID, batchID, objectID string, opts Options) string {
	return opts.folder() + "/" + tenantID + "/" + batchID + "/" + objectID + opts.extension()
}
