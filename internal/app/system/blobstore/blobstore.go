// Package blobstore defines the object-store surface the drive needs
// and provides backends beyond the built-in local and S3 providers.
package blobstore

import (
	"context"
	"io"

	"github.com/dalemusser/waffle/pantry/storage"
)

// Store is the object-store contract the drive depends on. Blobs are
// opaque: nothing above this interface ever inspects content. The
// waffle local and S3 providers satisfy it as-is.
type Store interface {
	Put(ctx context.Context, path string, r io.Reader, opts *storage.PutOptions) error
	Get(ctx context.Context, path string) (io.ReadCloser, error)
	Delete(ctx context.Context, path string) error
	URL(path string) string
}
