// Package fetch downloads remote images with a size cap and timeout.
package fetch

import (
	"context"
	"fmt"
	"io"
	"mime"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/genmedia/mcpgen/internal/apperr"
)

// Result is a downloaded resource.
type Result struct {
	Data     []byte
	MimeType string
}

// Fetcher performs bounded GET requests.
type Fetcher struct {
	client   *http.Client
	maxBytes int64
}

// New returns a Fetcher. maxBytes <= 0 means unlimited.
func New(timeout time.Duration, maxBytes int64) *Fetcher {
	return &Fetcher{
		client:   &http.Client{Timeout: timeout},
		maxBytes: maxBytes,
	}
}

// Get downloads rawURL. Only http and https URLs are accepted; bodies larger
// than the limit fail with a validation error before anything is returned.
func (f *Fetcher) Get(ctx context.Context, rawURL string) (*Result, error) {
	u, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return nil, apperr.Validation("fetch", "image_url must be an absolute http(s) URL")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, apperr.IO("fetch "+u.Host, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, apperr.IO("fetch "+u.Host, fmt.Errorf("unexpected status %d", resp.StatusCode))
	}
	if f.maxBytes > 0 && resp.ContentLength > f.maxBytes {
		return nil, apperr.Validation("fetch", "image is %d bytes, limit is %d", resp.ContentLength, f.maxBytes)
	}

	var body io.Reader = resp.Body
	if f.maxBytes > 0 {
		body = io.LimitReader(resp.Body, f.maxBytes+1)
	}
	data, err := io.ReadAll(body)
	if err != nil {
		return nil, apperr.IO("read "+u.Host, err)
	}
	if f.maxBytes > 0 && int64(len(data)) > f.maxBytes {
		return nil, apperr.Validation("fetch", "image exceeds %d bytes", f.maxBytes)
	}

	return &Result{Data: data, MimeType: mimeTypeOf(resp.Header.Get("Content-Type"), data)}, nil
}

func mimeTypeOf(header string, data []byte) string {
	if mt, _, err := mime.ParseMediaType(header); err == nil && mt != "" && mt != "application/octet-stream" {
		return mt
	}
	mt, _, _ := mime.ParseMediaType(http.DetectContentType(data))
	return mt
}
