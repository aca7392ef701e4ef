// Package storage persists generated media and builds the public URLs returned to
// tool callers. Backends are swapped by configuration: local disk, Google Cloud
// Storage, or any S3-compatible provider through the MinIO client.
package storage

import (
	"context"
	"io"
)

// Storage is the interface for uploading objects and addressing them afterwards.
type Storage interface {
	// Upload streams data to the store under the given key, overwriting any
	// existing object with the same key.
	Upload(ctx context.Context, key string, reader io.Reader, size int64, contentType string) error
	// PublicURL constructs the browser-accessible URL for a given key.
	PublicURL(key string) string
}

// Locator is implemented by backends that have a native object locator
// (gs://bucket/key, s3://bucket/key) in addition to the public URL.
type Locator interface {
	URI(key string) string
}

// Backend names a concrete storage destination.
type Backend string

const (
	BackendLocal Backend = "local"
	BackendGCS   Backend = "gcs"
	BackendS3    Backend = "s3"
)

// ModeAuto picks GCS when a bucket is configured and local disk otherwise.
const ModeAuto = "auto"

// UploadRequest is a single payload to persist.
type UploadRequest struct {
	Payload     []byte
	Filename    string
	ContentType string
}

// UploadResult is returned once per upload and never persisted.
type UploadResult struct {
	PublicURL  string  `json:"url"`
	BackendURI string  `json:"backend_uri"`
	Backend    Backend `json:"backend"`
}
