package mirror

import (
	"context"
	"encoding/base64"
	"fmt"
	"io"

	"cloud.google.com/go/storage"
	"google.golang.org/api/option"

	"renderfarm/logger"
)

// gcsBackend uploads a frame's bytes to a Google Cloud Storage object.
type gcsBackend struct{}

func (b *gcsBackend) Write(ctx context.Context, creds map[string]string, remotePath string, r io.Reader) error {
	bucketName := creds["bucket"]
	if bucketName == "" {
		return fmt.Errorf("mirror/gcs: missing bucket in credentials")
	}

	var opts []option.ClientOption
	if raw := creds["credentialsJSON"]; raw != "" {
		decoded, err := base64.StdEncoding.DecodeString(raw)
		if err != nil {
			return fmt.Errorf("mirror/gcs: decode credentialsJSON: %w", err)
		}
		opts = append(opts, option.WithCredentialsJSON(decoded))
	}

	client, err := storage.NewClient(ctx, opts...)
	if err != nil {
		return fmt.Errorf("mirror/gcs: new client: %w", err)
	}
	defer client.Close()

	w := client.Bucket(bucketName).Object(remotePath).NewWriter(ctx)
	if _, err := io.Copy(w, r); err != nil {
		w.Close()
		return fmt.Errorf("mirror/gcs: copy to %s: %w", remotePath, err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("mirror/gcs: close writer for %s: %w", remotePath, err)
	}

	logger.Debugf("mirror/gcs: uploaded %s to bucket %s", remotePath, bucketName)
	return nil
}
