package storage

import (
	"bytes"
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/genmedia/mcpgen/internal/apperr"
	"github.com/genmedia/mcpgen/internal/config"
)

// recordingGCS keeps GCSStorage's URL rules but stores uploads in memory.
type recordingGCS struct {
	*GCSStorage

	mu           sync.Mutex
	objects      map[string][]byte
	contentTypes map[string]string
}

func newRecordingGCS(bucket string) *recordingGCS {
	return &recordingGCS{
		GCSStorage:   NewGCSStorageFromClient(nil, bucket, false),
		objects:      make(map[string][]byte),
		contentTypes: make(map[string]string),
	}
}

func (f *recordingGCS) Upload(_ context.Context, key string, reader io.Reader, _ int64, contentType string) error {
	b, err := io.ReadAll(reader)
	if err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.objects[key] = b
	f.contentTypes[key] = contentType
	return nil
}

type failingStorage struct{ err error }

func (f failingStorage) Upload(context.Context, string, io.Reader, int64, string) error { return f.err }
func (f failingStorage) PublicURL(key string) string                                    { return "unused/" + key }

func TestResolveBackend(t *testing.T) {
	tests := []struct {
		name    string
		cfg     config.StorageConfig
		want    Backend
		wantErr error
	}{
		{"local", config.StorageConfig{Backend: "local", BucketName: "ignored"}, BackendLocal, nil},
		{"gcs with bucket", config.StorageConfig{Backend: "gcs", BucketName: "b"}, BackendGCS, nil},
		{"gcs without bucket", config.StorageConfig{Backend: "gcs"}, "", apperr.ErrConfig},
		{"gcs whitespace bucket", config.StorageConfig{Backend: "gcs", BucketName: "  "}, "", apperr.ErrConfig},
		{"auto with bucket", config.StorageConfig{Backend: "auto", BucketName: "b"}, BackendGCS, nil},
		{"auto without bucket", config.StorageConfig{Backend: "auto"}, BackendLocal, nil},
		{"empty means auto", config.StorageConfig{BucketName: "b"}, BackendGCS, nil},
		{"case insensitive", config.StorageConfig{Backend: "GCS", BucketName: "b"}, BackendGCS, nil},
		{"s3 complete", config.StorageConfig{Backend: "s3", S3Endpoint: "minio:9000", S3Bucket: "m"}, BackendS3, nil},
		{"s3 missing bucket", config.StorageConfig{Backend: "s3", S3Endpoint: "minio:9000"}, "", apperr.ErrConfig},
		{"auto never picks s3", config.StorageConfig{Backend: "auto", S3Endpoint: "minio:9000", S3Bucket: "m"}, BackendLocal, nil},
		{"unknown", config.StorageConfig{Backend: "ftp"}, "", apperr.ErrConfig},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ResolveBackend(tt.cfg)
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("ResolveBackend() error = %v, want %v", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("ResolveBackend() unexpected error: %v", err)
			}
			if got != tt.want {
				t.Errorf("ResolveBackend() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestUploadLocalExampleScenario(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "static")
	r := NewResolver(config.StorageConfig{
		Backend:       "auto",
		LocalBaseDir:  dir,
		PublicBaseURL: "http://localhost:8000",
	})

	res, err := r.Upload(context.Background(), UploadRequest{Payload: []byte("abc"), Filename: "x.png"})
	if err != nil {
		t.Fatalf("Upload() error: %v", err)
	}
	if res.PublicURL != "http://localhost:8000/static/x.png" {
		t.Errorf("PublicURL = %q", res.PublicURL)
	}
	if res.Backend != BackendLocal {
		t.Errorf("Backend = %q, want local", res.Backend)
	}
	if res.BackendURI != "" {
		t.Errorf("BackendURI = %q, want empty for local", res.BackendURI)
	}

	got, err := os.ReadFile(filepath.Join(dir, "x.png"))
	if err != nil {
		t.Fatalf("read back: %v", err)
	}
	if !bytes.Equal(got, []byte("abc")) {
		t.Errorf("round trip = %q, want %q", got, "abc")
	}
}

func TestUploadGCSExampleScenario(t *testing.T) {
	fake := newRecordingGCS("my-bucket")
	r := NewResolver(
		config.StorageConfig{Backend: "gcs", BucketName: "my-bucket", ObjectPrefix: "out"},
		WithOpener(BackendGCS, func(context.Context, config.StorageConfig) (Storage, error) { return fake, nil }),
	)

	res, err := r.Upload(context.Background(), UploadRequest{Payload: []byte{1, 2, 3}, Filename: "y.png"})
	if err != nil {
		t.Fatalf("Upload() error: %v", err)
	}
	if res.PublicURL != "https://storage.googleapis.com/my-bucket/out/y.png" {
		t.Errorf("PublicURL = %q", res.PublicURL)
	}
	if res.BackendURI != "gs://my-bucket/out/y.png" {
		t.Errorf("BackendURI = %q", res.BackendURI)
	}
	if res.Backend != BackendGCS {
		t.Errorf("Backend = %q", res.Backend)
	}
	if _, ok := fake.objects["out/y.png"]; !ok {
		t.Errorf("object not written under out/y.png: %v", fake.objects)
	}
	if ct := fake.contentTypes["out/y.png"]; ct != "image/png" {
		t.Errorf("content type = %q, want image/png from extension", ct)
	}
}

func TestUploadGCSWithoutBucketNeverOpens(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "static")
	opened := false
	r := NewResolver(
		config.StorageConfig{Backend: "gcs", LocalBaseDir: dir},
		WithOpener(BackendGCS, func(context.Context, config.StorageConfig) (Storage, error) {
			opened = true
			return newRecordingGCS("x"), nil
		}),
	)

	_, err := r.Upload(context.Background(), UploadRequest{Payload: []byte("a"), Filename: "a.png"})
	if !errors.Is(err, apperr.ErrConfig) {
		t.Fatalf("Upload() error = %v, want ErrConfig", err)
	}
	if opened {
		t.Error("GCS backend was opened despite missing bucket")
	}
	if _, err := os.Stat(dir); !os.IsNotExist(err) {
		t.Errorf("local dir should not exist, stat err = %v", err)
	}
}

func TestUploadGCSDoesNotCreateLocalDir(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "static")
	fake := newRecordingGCS("b")
	r := NewResolver(
		config.StorageConfig{Backend: "auto", BucketName: "b", LocalBaseDir: dir},
		WithOpener(BackendGCS, func(context.Context, config.StorageConfig) (Storage, error) { return fake, nil }),
	)

	if _, err := r.Upload(context.Background(), UploadRequest{Payload: []byte("a"), Filename: "a.png"}); err != nil {
		t.Fatalf("Upload() error: %v", err)
	}
	if _, err := os.Stat(dir); !os.IsNotExist(err) {
		t.Errorf("local dir created while running on gcs (stat err = %v)", err)
	}
	if _, ok := fake.objects["a.png"]; !ok {
		t.Errorf("expected unprefixed key a.png, got %v", fake.objects)
	}
}

func TestUploadSameFilenameOverwrites(t *testing.T) {
	dir := t.TempDir()
	r := NewResolver(config.StorageConfig{Backend: "local", LocalBaseDir: dir, PublicBaseURL: "http://h"})

	first, err := r.Upload(context.Background(), UploadRequest{Payload: []byte("one"), Filename: "same.wav"})
	if err != nil {
		t.Fatalf("first Upload() error: %v", err)
	}
	second, err := r.Upload(context.Background(), UploadRequest{Payload: []byte("two"), Filename: "same.wav"})
	if err != nil {
		t.Fatalf("second Upload() error: %v", err)
	}
	if first.PublicURL != second.PublicURL {
		t.Errorf("URLs differ: %q vs %q", first.PublicURL, second.PublicURL)
	}
	got, _ := os.ReadFile(filepath.Join(dir, "same.wav"))
	if string(got) != "two" {
		t.Errorf("content = %q, want last write", got)
	}
}

func TestUploadValidation(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "static")
	r := NewResolver(config.StorageConfig{Backend: "local", LocalBaseDir: dir, MaxUploadBytes: 4})

	tests := []struct {
		name string
		req  UploadRequest
	}{
		{"oversized payload", UploadRequest{Payload: []byte("12345"), Filename: "a.png"}},
		{"unusable filename", UploadRequest{Payload: []byte("1"), Filename: "../.."}},
		{"empty filename", UploadRequest{Payload: []byte("1"), Filename: ""}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := r.Upload(context.Background(), tt.req)
			if !errors.Is(err, apperr.ErrValidation) {
				t.Fatalf("Upload() error = %v, want ErrValidation", err)
			}
		})
	}

	if _, err := os.Stat(dir); !os.IsNotExist(err) {
		t.Errorf("rejected uploads touched the filesystem (stat err = %v)", err)
	}
}

func TestUploadPathSeparatorsAreSanitized(t *testing.T) {
	dir := t.TempDir()
	r := NewResolver(config.StorageConfig{Backend: "local", LocalBaseDir: dir, PublicBaseURL: "http://h"})

	res, err := r.Upload(context.Background(), UploadRequest{Payload: []byte("x"), Filename: "../../etc/passwd"})
	if err != nil {
		t.Fatalf("Upload() error: %v", err)
	}
	if res.PublicURL != "http://h/static/etc_passwd" {
		t.Errorf("PublicURL = %q", res.PublicURL)
	}
	if _, err := os.Stat(filepath.Join(dir, "etc_passwd")); err != nil {
		t.Errorf("sanitized file missing: %v", err)
	}
}

func TestUploadBackendFailureIsIOError(t *testing.T) {
	cause := errors.New("connection reset")
	r := NewResolver(
		config.StorageConfig{Backend: "gcs", BucketName: "b"},
		WithOpener(BackendGCS, func(context.Context, config.StorageConfig) (Storage, error) {
			return failingStorage{err: cause}, nil
		}),
	)

	_, err := r.Upload(context.Background(), UploadRequest{Payload: []byte("a"), Filename: "a.png"})
	if !errors.Is(err, apperr.ErrIO) {
		t.Fatalf("Upload() error = %v, want ErrIO", err)
	}
	if !errors.Is(err, cause) {
		t.Errorf("cause lost: %v", err)
	}
}

func TestOpenFailureIsConfigErrorAndNotCached(t *testing.T) {
	calls := 0
	r := NewResolver(
		config.StorageConfig{Backend: "gcs", BucketName: "b"},
		WithOpener(BackendGCS, func(context.Context, config.StorageConfig) (Storage, error) {
			calls++
			if calls == 1 {
				return nil, errors.New("no credentials")
			}
			return newRecordingGCS("b"), nil
		}),
	)

	_, err := r.Upload(context.Background(), UploadRequest{Payload: []byte("a"), Filename: "a.png"})
	if !errors.Is(err, apperr.ErrConfig) {
		t.Fatalf("first Upload() error = %v, want ErrConfig", err)
	}
	if _, err := r.Upload(context.Background(), UploadRequest{Payload: []byte("a"), Filename: "a.png"}); err != nil {
		t.Fatalf("second Upload() error = %v", err)
	}
	if calls != 2 {
		t.Errorf("opener calls = %d, want 2", calls)
	}
}

func TestHangingOpenerTimesOut(t *testing.T) {
	r := NewResolver(
		config.StorageConfig{Backend: "s3", S3Endpoint: "s3.invalid", S3Bucket: "b"},
		WithOpenTimeout(50*time.Millisecond),
		WithOpener(BackendS3, func(ctx context.Context, _ config.StorageConfig) (Storage, error) {
			if _, ok := ctx.Deadline(); !ok {
				return nil, errors.New("open context has no deadline")
			}
			<-ctx.Done()
			return nil, ctx.Err()
		}),
	)

	// The request context carries no deadline of its own.
	start := time.Now()
	_, err := r.Upload(context.Background(), UploadRequest{Payload: []byte("a"), Filename: "a.mp4"})
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("Upload() error = %v, want DeadlineExceeded", err)
	}
	if !errors.Is(err, apperr.ErrConfig) {
		t.Errorf("Upload() error = %v, want ErrConfig", err)
	}
	if elapsed := time.Since(start); elapsed > 5*time.Second {
		t.Errorf("Upload() took %s", elapsed)
	}
}

func TestConcurrentDistinctUploads(t *testing.T) {
	dir := t.TempDir()
	r := NewResolver(config.StorageConfig{Backend: "local", LocalBaseDir: dir, PublicBaseURL: "http://h"})

	var wg sync.WaitGroup
	errs := make(chan error, 16)
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			name := NewFilename("bin", "part")
			if _, err := r.Upload(context.Background(), UploadRequest{Payload: []byte{byte(i)}, Filename: name}); err != nil {
				errs <- err
			}
		}(i)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Errorf("concurrent Upload() error: %v", err)
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("ReadDir: %v", err)
	}
	if len(entries) != 16 {
		t.Errorf("files = %d, want 16", len(entries))
	}
}
