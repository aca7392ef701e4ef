package storage

import (
	"context"
	"fmt"
	"io"
	"log"
	"strings"

	gcs "cloud.google.com/go/storage"
	"google.golang.org/api/option"
)

const gcsPublicBase = "https://storage.googleapis.com"

// GCSStorage implements Storage on a Google Cloud Storage bucket.
//
// Public access: with uniform bucket-level access, per-object ACLs are rejected
// and readability is decided by bucket IAM ("allUsers: Storage Object Viewer").
// publicRead only attempts the object ACL and logs when the bucket refuses it.
type GCSStorage struct {
	client     *gcs.Client
	bucket     string
	publicRead bool
}

// NewGCSStorage creates a GCS client. credentialsFile may be empty to use
// Application Default Credentials.
func NewGCSStorage(ctx context.Context, bucket string, publicRead bool, credentialsFile string) (*GCSStorage, error) {
	bucket = strings.TrimSpace(bucket)
	if bucket == "" {
		return nil, fmt.Errorf("gcs bucket is empty")
	}

	var opts []option.ClientOption
	if f := strings.TrimSpace(credentialsFile); f != "" {
		opts = append(opts, option.WithCredentialsFile(f))
	}

	client, err := gcs.NewClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("create gcs client: %w", err)
	}
	log.Printf("[storage.gcs] client initialized bucket=%s publicRead=%t", bucket, publicRead)

	return NewGCSStorageFromClient(client, bucket, publicRead), nil
}

// NewGCSStorageFromClient wraps an existing client.
func NewGCSStorageFromClient(client *gcs.Client, bucket string, publicRead bool) *GCSStorage {
	return &GCSStorage{
		client:     client,
		bucket:     strings.TrimSpace(bucket),
		publicRead: publicRead,
	}
}

// Upload writes reader to bucket/key with the given content type.
func (s *GCSStorage) Upload(ctx context.Context, key string, reader io.Reader, size int64, contentType string) error {
	obj := s.client.Bucket(s.bucket).Object(key)

	w := obj.NewWriter(ctx)
	if ct := strings.TrimSpace(contentType); ct != "" {
		w.ContentType = ct
	}
	// Payloads are already in memory; send them in one request instead of a
	// resumable session.
	w.ChunkSize = 0

	if _, err := io.Copy(w, reader); err != nil {
		_ = w.Close()
		return fmt.Errorf("write object %q: %w", key, err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("close object %q: %w", key, err)
	}

	if s.publicRead {
		if err := obj.ACL().Set(ctx, gcs.AllUsers, gcs.RoleReader); err != nil {
			log.Printf("[storage.gcs] WARN: public-read ACL on %q failed: %v (bucket policy decides access)", key, err)
		}
	}
	return nil
}

// PublicURL returns https://storage.googleapis.com/{bucket}/{key}. Keys built
// by ObjectKey contain only URL-safe characters, so the path is used as is and
// stays identical to the one in URI.
func (s *GCSStorage) PublicURL(key string) string {
	return gcsPublicBase + "/" + s.bucket + "/" + key
}

// URI returns gs://{bucket}/{key}.
func (s *GCSStorage) URI(key string) string {
	return "gs://" + s.bucket + "/" + key
}

// Close releases the underlying client.
func (s *GCSStorage) Close() error {
	return s.client.Close()
}
