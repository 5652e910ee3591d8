package imagestore

import (
	"bytes"
	"context"
	"fmt"
	"net/url"
	"strings"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// S3Uploader puts objects into an S3-compatible bucket (Backblaze B2, MinIO, AWS).
type S3Uploader struct {
	client *minio.Client
	bucket string
}

// NewS3Uploader connects to endpoint, given as a URL ("https://s3.eu-central-003.backblazeb2.com")
// or a bare host.
func NewS3Uploader(endpoint, accessKey, secretKey, bucket string) (*S3Uploader, error) {
	host, secure, err := splitEndpoint(endpoint)
	if err != nil {
		return nil, err
	}
	client, err := minio.New(host, &minio.Options{
		Creds:  credentials.NewStaticV4(accessKey, secretKey, ""),
		Secure: secure,
	})
	if err != nil {
		return nil, fmt.Errorf("imagestore: s3 client: %w", err)
	}
	return &S3Uploader{client: client, bucket: bucket}, nil
}

func (u *S3Uploader) Upload(ctx context.Context, key string, data []byte, contentType string) error {
	_, err := u.client.PutObject(ctx, u.bucket, key, bytes.NewReader(data), int64(len(data)),
		minio.PutObjectOptions{ContentType: contentType})
	return err
}

func splitEndpoint(endpoint string) (host string, secure bool, err error) {
	if !strings.Contains(endpoint, "://") {
		return endpoint, true, nil
	}
	u, err := url.Parse(endpoint)
	if err != nil {
		return "", false, fmt.Errorf("imagestore: parse endpoint %q: %w", endpoint, err)
	}
	if u.Host == "" {
		return "", false, fmt.Errorf("imagestore: endpoint %q has no host", endpoint)
	}
	return u.Host, u.Scheme == "https", nil
}
