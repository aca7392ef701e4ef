// Package genai is a small REST client for the Gemini API: generateContent for
// images, analysis and speech, and long-running predictions for Veo video.
package genai

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/genmedia/mcpgen/internal/apperr"
	"github.com/genmedia/mcpgen/internal/config"
)

const apiKeyHeader = "x-goog-api-key"

// maxErrorBody bounds how much of a failed response is kept in APIError.
const maxErrorBody = 4 << 10

// APIError is a non-2xx reply from the API.
type APIError struct {
	Status int
	Body   string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("gemini api: status=%d body=%s", e.Status, e.Body)
}

// Client calls the Gemini REST API.
type Client struct {
	http     *http.Client
	download *http.Client
	baseURL  string
	apiKey   string
}

// New creates a Client. timeout bounds regular calls; media downloads get ten
// times as long since generated videos are large.
func New(cfg config.GeminiConfig, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Client{
		http:     &http.Client{Timeout: timeout},
		download: &http.Client{Timeout: 10 * timeout},
		baseURL:  strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/"),
		apiKey:   strings.TrimSpace(cfg.APIKey),
	}
}

// GenerateContent calls models/{model}:generateContent.
func (c *Client) GenerateContent(ctx context.Context, model string, req *GenerateContentRequest) (*GenerateContentResponse, error) {
	var out GenerateContentResponse
	if err := c.do(ctx, http.MethodPost, "/models/"+model+":generateContent", req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// PredictLongRunning starts models/{model}:predictLongRunning and returns the
// operation name.
func (c *Client) PredictLongRunning(ctx context.Context, model string, body interface{}) (string, error) {
	var out struct {
		Name string `json:"name"`
	}
	if err := c.do(ctx, http.MethodPost, "/models/"+model+":predictLongRunning", body, &out); err != nil {
		return "", err
	}
	if strings.TrimSpace(out.Name) == "" {
		return "", fmt.Errorf("predictLongRunning: response has no operation name")
	}
	return out.Name, nil
}

// GetOperation fetches the state of a long-running operation.
func (c *Client) GetOperation(ctx context.Context, name string) (*Operation, error) {
	var op Operation
	if err := c.do(ctx, http.MethodGet, "/"+strings.TrimLeft(name, "/"), nil, &op); err != nil {
		return nil, err
	}
	return &op, nil
}

// WaitOperation polls name every interval until it is done, ctx ends or
// timeout elapses. A finished operation carrying an error is returned as an error.
func (c *Client) WaitOperation(ctx context.Context, name string, interval, timeout time.Duration) (*Operation, error) {
	if interval <= 0 {
		interval = time.Second
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		op, err := c.GetOperation(ctx, name)
		if err != nil {
			return nil, err
		}
		if op.Done {
			if op.Error != nil {
				return nil, fmt.Errorf("operation %s failed: %s", name, op.Error)
			}
			return op, nil
		}

		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("operation %s not done after %s: %w", name, timeout, ctx.Err())
		case <-ticker.C:
		}
	}
}

// Download fetches a generated file (e.g. a Veo video URI) with the API key
// attached, following redirects.
func (c *Client) Download(ctx context.Context, uri string) ([]byte, error) {
	if err := c.requireKey(); err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, uri, nil)
	if err != nil {
		return nil, fmt.Errorf("create download request: %w", err)
	}
	req.Header.Set(apiKeyHeader, c.apiKey)

	resp, err := c.download.Do(req)
	if err != nil {
		return nil, fmt.Errorf("download %s: %w", uri, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return nil, &APIError{Status: resp.StatusCode, Body: string(body)}
	}
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read download body: %w", err)
	}
	return data, nil
}

func (c *Client) requireKey() error {
	if c.apiKey == "" {
		return apperr.Config("gemini", "GEMINI_API_KEY is not configured")
	}
	if c.baseURL == "" {
		return apperr.Config("gemini", "GEMINI_BASE_URL is not configured")
	}
	return nil
}

func (c *Client) do(ctx context.Context, method, path string, in, out interface{}) error {
	if err := c.requireKey(); err != nil {
		return err
	}

	var body io.Reader
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		body = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set(apiKeyHeader, c.apiKey)
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		if len(respBody) > maxErrorBody {
			respBody = respBody[:maxErrorBody]
		}
		log.Printf("[genai] %s %s FAILED status=%d took=%s", method, path, resp.StatusCode, time.Since(start))
		return &APIError{Status: resp.StatusCode, Body: string(respBody)}
	}

	if out != nil {
		if err := json.Unmarshal(respBody, out); err != nil {
			return fmt.Errorf("decode response: %w", err)
		}
	}
	return nil
}
