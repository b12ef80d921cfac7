package mirror

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"renderfarm/logger"
)

// directServeBackend writes a frame's bytes to a local directory rather
// than to remote storage. Nothing in this module serves that directory;
// the admin HTTP surface exposes only /health and /version.
type directServeBackend struct {
	baseDir string
}

func (b *directServeBackend) Write(ctx context.Context, creds map[string]string, remotePath string, r io.Reader) error {
	fullPath := filepath.Join(b.baseDir, remotePath)
	if err := os.MkdirAll(filepath.Dir(fullPath), 0o755); err != nil {
		return fmt.Errorf("mirror/directServe: create dir for %s: %w", fullPath, err)
	}

	f, err := os.Create(fullPath)
	if err != nil {
		return fmt.Errorf("mirror/directServe: create %s: %w", fullPath, err)
	}
	defer f.Close()

	if _, err := io.Copy(f, r); err != nil {
		return fmt.Errorf("mirror/directServe: write %s: %w", fullPath, err)
	}

	logger.Debugf("mirror/directServe: saved %s", fullPath)
	return nil
}
