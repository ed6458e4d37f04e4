// Copyright 2025 Justifai
package storage

import (
	"context"
	"os"
	"path/filepath"

	"github.com/justifai/certify/pkg/errkind"
)

// LocalDriver stores blobs under a root directory on the local filesystem.
type LocalDriver struct {
	root    string
	baseURL string
}

var _ Gateway = (*LocalDriver)(nil)

// NewLocalDriver returns a LocalDriver rooted at root. baseURL, if set,
// is prefixed to relative paths by PublicURL; otherwise PublicURL
// returns a file:// path.
func NewLocalDriver(root, baseURL string) *LocalDriver {
	return &LocalDriver{root: root, baseURL: baseURL}
}

func (d *LocalDriver) Name() string { return "local" }

func (d *LocalDriver) Store(ctx context.Context, data []byte, tenantID, batchID, objectID string, opts Options) (string, error) {
	rel := key(tenantID, batchID, objectID, opts)
	abs := filepath.Join(d.root, filepath.FromSlash(rel))

	if err := os.MkdirAll(filepath.Dir(abs), 0o755); err != nil {
		return "", errkind.Wrap(errkind.Storage, err, "create storage directory")
	}
	if err := os.WriteFile(abs, data, 0o644); err != nil {
		return "", errkind.Wrap(errkind.Storage, err, "write blob")
	}
	return rel, nil
}

func (d *LocalDriver) Retrieve(ctx context.Context, relativePath string) ([]byte, error) {
	abs := filepath.Join(d.root, filepath.FromSlash(relativePath))
	data, err := os.ReadFile(abs)
	if err != nil {
		return nil, errkind.Wrap(errkind.Storage, err, "read blob")
	}
	return data, nil
}

func (d *LocalDriver) PublicURL(relativePath string) string {
	if d.baseURL == "" {
		return "file://" + filepath.Join(d.root, filepath.FromSlash(relativePath))
	}
	return d.baseURL + "/" + relativePath
}
