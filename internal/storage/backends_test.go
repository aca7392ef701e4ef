package storage

import (
	"context"
	"encoding/json"
	"io"
	"mime"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
)

func TestLocalStorageCreatesDirLazily(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "nested", "static")
	s := NewLocalStorage(dir, "http://localhost:8000/")

	if _, err := os.Stat(dir); !os.IsNotExist(err) {
		t.Fatalf("NewLocalStorage created %s eagerly", dir)
	}
	if err := s.Upload(context.Background(), "a.txt", strings.NewReader("hi"), 2, "text/plain"); err != nil {
		t.Fatalf("Upload() error: %v", err)
	}
	if got := s.PublicURL("a.txt"); got != "http://localhost:8000/static/a.txt" {
		t.Errorf("PublicURL = %q", got)
	}

	entries, _ := os.ReadDir(dir)
	if len(entries) != 1 || entries[0].Name() != "a.txt" {
		t.Errorf("dir entries = %v, want only a.txt (no leftover temp files)", entries)
	}
}

func TestLocalStorageCancelledContext(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "static")
	s := NewLocalStorage(dir, "http://h")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := s.Upload(ctx, "a.txt", strings.NewReader("hi"), 2, ""); err == nil {
		t.Fatal("Upload() with cancelled context succeeded")
	}
}

func TestGCSURLs(t *testing.T) {
	s := NewGCSStorageFromClient(nil, " my-bucket ", true)
	key := ObjectKey(BackendGCS, "my renders", "y.png")
	if got := s.PublicURL(key); got != "https://storage.googleapis.com/my-bucket/my_renders/y.png" {
		t.Errorf("PublicURL = %q", got)
	}
	if got := s.URI(key); got != "gs://my-bucket/my_renders/y.png" {
		t.Errorf("URI = %q", got)
	}
}

func TestMinioURLs(t *testing.T) {
	s := &MinioStorage{bucket: "media", publicBase: "https://cdn.example.com"}
	if got := s.PublicURL("out/v.mp4"); got != "https://cdn.example.com/out/v.mp4" {
		t.Errorf("PublicURL = %q", got)
	}
	if got := s.URI("out/v.mp4"); got != "s3://media/out/v.mp4" {
		t.Errorf("URI = %q", got)
	}
}

func TestPublicReadPolicy(t *testing.T) {
	var policy struct {
		Statement []struct {
			Effect   string
			Action   string
			Resource string
		}
	}
	if err := json.Unmarshal([]byte(publicReadPolicy("media")), &policy); err != nil {
		t.Fatalf("policy is not JSON: %v", err)
	}
	if len(policy.Statement) != 1 {
		t.Fatalf("statements = %d", len(policy.Statement))
	}
	st := policy.Statement[0]
	if st.Effect != "Allow" || st.Action != "s3:GetObject" || st.Resource != "arn:aws:s3:::media/*" {
		t.Errorf("statement = %+v", st)
	}
}

// fakeGCSServer answers the JSON API calls GCSStorage makes: one multipart
// object insert and, optionally, an object ACL update.
type fakeGCSServer struct {
	aclStatus int

	mu          sync.Mutex
	contentType string
	payload     string
	aclCalls    int
	aclEntity   string
}

func (f *fakeGCSServer) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	switch {
	case r.Method == http.MethodPost && strings.HasPrefix(r.URL.Path, "/upload/storage/v1/b/media-bucket/o"):
		f.readUpload(r)
		_, _ = io.WriteString(w, `{"bucket":"media-bucket","name":"a.png","contentType":"image/png","size":"3"}`)
	case r.Method == http.MethodPut && strings.Contains(r.URL.Path, "/acl/"):
		f.mu.Lock()
		f.aclCalls++
		f.aclEntity = r.URL.Path[strings.LastIndex(r.URL.Path, "/")+1:]
		f.mu.Unlock()
		if f.aclStatus != http.StatusOK {
			w.WriteHeader(f.aclStatus)
			_, _ = io.WriteString(w, `{"error":{"code":400,"message":"uniform bucket-level access is enabled"}}`)
			return
		}
		_, _ = io.WriteString(w, `{"entity":"allUsers","role":"READER"}`)
	default:
		http.Error(w, `{"error":{"code":404,"message":"not found"}}`, http.StatusNotFound)
	}
}

// readUpload records the content type from the metadata part (or the media
// part's header) and the media bytes.
func (f *fakeGCSServer) readUpload(r *http.Request) {
	_, params, err := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if err != nil {
		return
	}
	mr := multipart.NewReader(r.Body, params["boundary"])

	f.mu.Lock()
	defer f.mu.Unlock()
	for i := 0; ; i++ {
		part, err := mr.NextPart()
		if err != nil {
			return
		}
		body, _ := io.ReadAll(part)
		if i == 0 {
			var meta struct {
				ContentType string `json:"contentType"`
			}
			_ = json.Unmarshal(body, &meta)
			f.contentType = meta.ContentType
			continue
		}
		if f.contentType == "" {
			f.contentType = part.Header.Get("Content-Type")
		}
		f.payload = string(body)
	}
}

func TestGCSStorageUpload(t *testing.T) {
	tests := []struct {
		name         string
		publicRead   bool
		aclStatus    int
		wantACLCalls int
	}{
		{"private", false, http.StatusOK, 0},
		{"public read", true, http.StatusOK, 1},
		{"public read refused by bucket", true, http.StatusBadRequest, 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fake := &fakeGCSServer{aclStatus: tt.aclStatus}
			srv := httptest.NewServer(fake)
			defer srv.Close()
			t.Setenv("STORAGE_EMULATOR_HOST", srv.URL)

			ctx := context.Background()
			s, err := NewGCSStorage(ctx, "media-bucket", tt.publicRead, "")
			if err != nil {
				t.Fatalf("NewGCSStorage() error: %v", err)
			}
			defer s.Close()

			if err := s.Upload(ctx, "a.png", strings.NewReader("png"), 3, "image/png"); err != nil {
				t.Fatalf("Upload() error: %v", err)
			}

			fake.mu.Lock()
			defer fake.mu.Unlock()
			if fake.contentType != "image/png" {
				t.Errorf("content type = %q, want image/png", fake.contentType)
			}
			if fake.payload != "png" {
				t.Errorf("payload = %q", fake.payload)
			}
			if fake.aclCalls != tt.wantACLCalls {
				t.Errorf("ACL calls = %d, want %d", fake.aclCalls, tt.wantACLCalls)
			}
			if tt.wantACLCalls > 0 && fake.aclEntity != "allUsers" {
				t.Errorf("ACL entity = %q, want allUsers", fake.aclEntity)
			}
		})
	}
}

func TestUploadResultJSONNamesLocatorNeutrally(t *testing.T) {
	b, err := json.Marshal(UploadResult{PublicURL: "https://cdn/x", BackendURI: "s3://media/x", Backend: BackendS3})
	if err != nil {
		t.Fatal(err)
	}
	var got map[string]string
	if err := json.Unmarshal(b, &got); err != nil {
		t.Fatal(err)
	}
	if got["backend_uri"] != "s3://media/x" {
		t.Errorf("json = %s", b)
	}
	if _, ok := got["gs_uri"]; ok {
		t.Errorf("json still has gs_uri: %s", b)
	}
}
