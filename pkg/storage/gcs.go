package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	gcs "cloud.google.com/go/storage"
	"google.golang.org/api/option"
)

// GCSBackend stores objects in a Google Cloud Storage bucket.
type GCSBackend struct {
	client  *gcs.Client
	bucket  string
	baseURL string
}

// NewGCSBackend opens a storage client. credentialsFile may be empty to use ambient credentials.
// publicBaseURL may point at a CDN fronting the bucket.
func NewGCSBackend(ctx context.Context, bucket, credentialsFile, publicBaseURL string) (*GCSBackend, error) {
	opts := []option.ClientOption{option.WithScopes(gcs.ScopeReadWrite)}
	if credentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(credentialsFile))
	}
	client, err := gcs.NewClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create storage client: %w", err)
	}
	return &GCSBackend{client: client, bucket: bucket, baseURL: strings.TrimRight(publicBaseURL, "/")}, nil
}

// Put streams r into the object.
func (b *GCSBackend) Put(ctx context.Context, objectPath string, r io.Reader, contentType string) error {
	w := b.client.Bucket(b.bucket).Object(objectPath).NewWriter(ctx)
	if contentType == "" {
		contentType = contentTypeForKey(objectPath)
	}
	if contentType != "" {
		w.ContentType = contentType
	}
	if _, err := io.Copy(w, r); err != nil {
		_ = w.Close()
		return fmt.Errorf("failed to write data to GCS: %w", err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("failed to close GCS writer: %w", err)
	}
	return nil
}

// Delete removes the object; an already-deleted object is not an error.
func (b *GCSBackend) Delete(ctx context.Context, objectPath string) error {
	err := b.client.Bucket(b.bucket).Object(objectPath).Delete(ctx)
	if err == nil || errors.Is(err, gcs.ErrObjectNotExist) {
		return nil
	}
	return fmt.Errorf("failed to delete GCS object %q in bucket %q: %w", objectPath, b.bucket, err)
}

// PublicURL keeps the bucket segment in the URL so stored references stay extractable.
func (b *GCSBackend) PublicURL(objectPath string) string {
	if b.baseURL != "" {
		return fmt.Sprintf("%s/%s/%s", b.baseURL, b.bucket, objectPath)
	}
	return fmt.Sprintf("https://storage.googleapis.com/%s/%s", b.bucket, objectPath)
}

// Close releases the underlying client.
func (b *GCSBackend) Close() error {
	return b.client.Close()
}
