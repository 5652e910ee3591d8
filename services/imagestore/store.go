// Package imagestore re-hosts listing images on S3-compatible object storage.
package imagestore

import (
	"context"
	"fmt"
	"net/url"
	"path"
	"strings"

	"leboncoin-scraper/utils"
)

// FailureSentinel is what callers receive as URL when an image could not be
// re-hosted and no source URL is available.
const FailureSentinel = "N/A"

// Fetcher downloads an image.
type Fetcher interface {
	Fetch(ctx context.Context, sourceURL string) (data []byte, contentType string, err error)
}

// Uploader writes an object under key.
type Uploader interface {
	Upload(ctx context.Context, key string, data []byte, contentType string) error
}

// Passthrough keeps source URLs as they are. It is used when no object
// storage is configured.
type Passthrough struct{}

func (Passthrough) Store(_ context.Context, sourceURL, _ string) (string, error) {
	return sourceURL, nil
}

// Store downloads images and uploads them under <namespace>/<file name>.
type Store struct {
	fetcher   Fetcher
	uploader  Uploader
	publicURL string
	bucket    string
	retry     *utils.RetryConfig
	logger    *utils.Logger
}

// NewStore wires a Fetcher and an Uploader. publicURL is the storage
// endpoint used to build public links: <publicURL>/file/<bucket>/<key>.
func NewStore(fetcher Fetcher, uploader Uploader, publicURL, bucket string, retry *utils.RetryConfig, logger *utils.Logger) *Store {
	return &Store{
		fetcher:   fetcher,
		uploader:  uploader,
		publicURL: strings.TrimRight(publicURL, "/"),
		bucket:    bucket,
		retry:     retry,
		logger:    logger,
	}
}

// Store re-hosts one image and returns its public URL. On failure it returns
// the source URL (or FailureSentinel when that is empty) along with the error.
func (s *Store) Store(ctx context.Context, sourceURL, namespace string) (string, error) {
	fallback := sourceURL
	if fallback == "" {
		return FailureSentinel, fmt.Errorf("imagestore: empty source url")
	}

	name, err := FileName(sourceURL)
	if err != nil {
		return fallback, err
	}
	key := name
	if namespace != "" {
		key = namespace + "/" + name
	}

	var (
		data        []byte
		contentType string
	)
	err = s.retry.Do(ctx, "image download", func() error {
		var ferr error
		data, contentType, ferr = s.fetcher.Fetch(ctx, sourceURL)
		return ferr
	})
	if err != nil {
		return fallback, fmt.Errorf("imagestore: fetch %s: %w", sourceURL, err)
	}
	if contentType == "" || !strings.HasPrefix(contentType, "image/") {
		contentType = "image/jpeg"
	}

	if err := s.uploader.Upload(ctx, key, data, contentType); err != nil {
		return fallback, fmt.Errorf("imagestore: upload %s: %w", key, err)
	}

	public := fmt.Sprintf("%s/file/%s/%s", s.publicURL, s.bucket, key)
	s.logger.Debug("[imagestore] %s -> %s (%d bytes)", sourceURL, public, len(data))
	return public, nil
}

// FileName derives the object name from the last path segment of the URL,
// ignoring the query string.
func FileName(sourceURL string) (string, error) {
	u, err := url.Parse(sourceURL)
	if err != nil {
		return "", fmt.Errorf("imagestore: parse %q: %w", sourceURL, err)
	}
	name := path.Base(u.Path)
	if name == "" || name == "." || name == "/" {
		return "", fmt.Errorf("imagestore: no file name in %q", sourceURL)
	}
	return name, nil
}
