// Package mirror copies a completed frame's image bytes to an external
// storage destination, best-effort and asynchronous: it never replaces
// the canonical renders/{frame}.jpg kept by the job store. Each backend
// implements Backend, keyed by models.MirrorSpec.Type.
package mirror

import (
	"context"
	"fmt"
	"io"
)

// Backend writes one object to an external destination.
type Backend interface {
	Write(ctx context.Context, creds map[string]string, remotePath string, r io.Reader) error
}

// Registry dispatches to a Backend by name.
type Registry struct {
	backends map[string]Backend
}

// NewRegistry returns a Registry with the four supported backends: s3,
// gcs, sftp, and directServe.
func NewRegistry(directServeBaseDir string) *Registry {
	return &Registry{backends: map[string]Backend{
		"s3":          &s3Backend{},
		"gcs":         &gcsBackend{},
		"sftp":        &sftpBackend{},
		"directServe": &directServeBackend{baseDir: directServeBaseDir},
	}}
}

// Write dispatches to the named backend.
func (r *Registry) Write(ctx context.Context, backendType string, creds map[string]string, remotePath string, data io.Reader) error {
	backend, ok := r.backends[backendType]
	if !ok {
		return fmt.Errorf("mirror: unknown backend type %q", backendType)
	}
	return backend.Write(ctx, creds, remotePath, data)
}
