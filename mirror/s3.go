package mirror

import (
	"context"
	"fmt"
	"io"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"renderfarm/logger"
)

// s3Backend uploads a frame's bytes to an S3-compatible bucket.
type s3Backend struct{}

func (b *s3Backend) Write(ctx context.Context, creds map[string]string, remotePath string, r io.Reader) error {
	bucket := creds["bucket"]
	if bucket == "" {
		return fmt.Errorf("mirror/s3: missing bucket in credentials")
	}

	staticCreds := credentials.NewStaticCredentialsProvider(creds["accessKey"], creds["secretKey"], "")
	client := s3.New(s3.Options{
		Region:      creds["region"],
		Credentials: staticCreds,
	})

	uploader := manager.NewUploader(client)
	_, err := uploader.Upload(ctx, &s3.PutObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(remotePath),
		Body:   r,
	})
	if err != nil {
		return fmt.Errorf("mirror/s3: upload %s to %s: %w", remotePath, bucket, err)
	}

	logger.Debugf("mirror/s3: uploaded %s to bucket %s", remotePath, bucket)
	return nil
}
