package storage

import (
	"bytes"
	"context"
	"errors"
	"io"
	"mime"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/genmedia/mcpgen/internal/apperr"
	"github.com/genmedia/mcpgen/internal/config"
)

// ResolveBackend decides which backend an upload goes to. It is a pure
// function of cfg:
//
//	local -> local disk
//	gcs   -> GCS, bucket required
//	auto  -> GCS when a bucket is configured, local disk otherwise
//	s3    -> S3-compatible, endpoint and bucket required (never chosen by auto)
func ResolveBackend(cfg config.StorageConfig) (Backend, error) {
	mode := strings.ToLower(strings.TrimSpace(cfg.Backend))
	bucket := strings.TrimSpace(cfg.BucketName)

	switch mode {
	case string(BackendLocal):
		return BackendLocal, nil
	case string(BackendGCS):
		if bucket == "" {
			return "", apperr.Config("resolve backend", "storage backend gcs requires a bucket name")
		}
		return BackendGCS, nil
	case ModeAuto, "":
		if bucket != "" {
			return BackendGCS, nil
		}
		return BackendLocal, nil
	case string(BackendS3):
		if strings.TrimSpace(cfg.S3Endpoint) == "" || strings.TrimSpace(cfg.S3Bucket) == "" {
			return "", apperr.Config("resolve backend", "storage backend s3 requires an endpoint and a bucket")
		}
		return BackendS3, nil
	default:
		return "", apperr.Config("resolve backend", "unknown storage backend %q", cfg.Backend)
	}
}

// DefaultOpenTimeout bounds backend construction, which may call the network
// (the s3 backend checks and creates its bucket) while other uploads wait on it.
const DefaultOpenTimeout = 30 * time.Second

// Opener constructs the Storage for a backend on first use.
type Opener func(ctx context.Context, cfg config.StorageConfig) (Storage, error)

// Option customizes a Resolver.
type Option func(*Resolver)

// WithOpener replaces the constructor used for backend b.
func WithOpener(b Backend, open Opener) Option {
	return func(r *Resolver) {
		r.openers[b] = open
	}
}

// WithOpenTimeout replaces DefaultOpenTimeout.
func WithOpenTimeout(d time.Duration) Option {
	return func(r *Resolver) {
		if d > 0 {
			r.openTimeout = d
		}
	}
}

// Resolver routes each upload to exactly one backend and returns its URLs.
// Backends are opened lazily, so a process running on GCS never creates the
// local static dir and a local-only process never needs cloud credentials.
type Resolver struct {
	cfg         config.StorageConfig
	openers     map[Backend]Opener
	openTimeout time.Duration

	mu     sync.Mutex
	opened map[Backend]Storage
}

// NewResolver returns a Resolver for cfg with the default backend constructors.
func NewResolver(cfg config.StorageConfig, opts ...Option) *Resolver {
	r := &Resolver{
		cfg: cfg,
		openers: map[Backend]Opener{
			BackendLocal: openLocal,
			BackendGCS:   openGCS,
			BackendS3:    openS3,
		},
		opened:      make(map[Backend]Storage),
		openTimeout: DefaultOpenTimeout,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Backend reports which backend uploads currently go to.
func (r *Resolver) Backend() (Backend, error) {
	return ResolveBackend(r.cfg)
}

// Upload validates req and writes it to the resolved backend. Nothing is
// written when resolution or validation fails. There is no retry: backend
// errors come back as apperr.ErrIO. Re-using a filename overwrites it.
func (r *Resolver) Upload(ctx context.Context, req UploadRequest) (*UploadResult, error) {
	backend, err := ResolveBackend(r.cfg)
	if err != nil {
		return nil, err
	}

	name, err := SanitizeFilename(req.Filename)
	if err != nil {
		return nil, err
	}
	size := int64(len(req.Payload))
	if r.cfg.MaxUploadBytes > 0 && size > r.cfg.MaxUploadBytes {
		return nil, apperr.Validation("upload", "payload is %d bytes, limit is %d", size, r.cfg.MaxUploadBytes)
	}

	store, err := r.open(ctx, backend)
	if err != nil {
		return nil, err
	}

	key := ObjectKey(backend, r.cfg.ObjectPrefix, name)
	contentType := req.ContentType
	if contentType == "" {
		contentType = contentTypeFor(name)
	}

	if err := store.Upload(ctx, key, bytes.NewReader(req.Payload), size, contentType); err != nil {
		return nil, apperr.IO("upload to "+string(backend), err)
	}

	res := &UploadResult{
		PublicURL: store.PublicURL(key),
		Backend:   backend,
	}
	if loc, ok := store.(Locator); ok {
		res.BackendURI = loc.URI(key)
	}
	return res, nil
}

// Close releases any opened backend that holds resources.
func (r *Resolver) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	var errs []error
	for b, s := range r.opened {
		if c, ok := s.(io.Closer); ok {
			if err := c.Close(); err != nil {
				errs = append(errs, err)
			}
		}
		delete(r.opened, b)
	}
	return errors.Join(errs...)
}

func (r *Resolver) open(ctx context.Context, b Backend) (Storage, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if s, ok := r.opened[b]; ok {
		return s, nil
	}
	opener, ok := r.openers[b]
	if !ok || opener == nil {
		return nil, apperr.Config("open backend", "no constructor for backend %q", b)
	}

	// The client outlives the request that happened to open it. Openers must
	// not keep openCtx beyond their return.
	openCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), r.openTimeout)
	defer cancel()
	s, err := opener(openCtx, r.cfg)
	if err != nil {
		if apperr.KindOf(err) != 0 {
			return nil, err
		}
		return nil, apperr.Wrap(apperr.KindConfig, "open "+string(b), err)
	}
	r.opened[b] = s
	return s, nil
}

func openLocal(_ context.Context, cfg config.StorageConfig) (Storage, error) {
	return NewLocalStorage(cfg.LocalBaseDir, cfg.PublicBaseURL), nil
}

func openGCS(ctx context.Context, cfg config.StorageConfig) (Storage, error) {
	// The GCS client refreshes credentials with the context it was built with.
	return NewGCSStorage(context.WithoutCancel(ctx), cfg.BucketName, cfg.PublicReadDefault, cfg.CredentialsFile)
}

func openS3(ctx context.Context, cfg config.StorageConfig) (Storage, error) {
	return NewMinioStorage(ctx, MinioOptions{
		Endpoint:   cfg.S3Endpoint,
		AccessKey:  cfg.S3AccessKey,
		SecretKey:  cfg.S3SecretKey,
		Bucket:     cfg.S3Bucket,
		PublicBase: cfg.S3PublicBase,
		UseSSL:     cfg.S3UseSSL,
		PublicRead: cfg.PublicReadDefault,
	})
}

func contentTypeFor(name string) string {
	if ct := mime.TypeByExtension(filepath.Ext(name)); ct != "" {
		return ct
	}
	return "application/octet-stream"
}
