// Package tools implements the generation and analysis tools exposed over MCP.
package tools

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"mime"
	"strings"
	"time"

	"github.com/genmedia/mcpgen/internal/apperr"
	"github.com/genmedia/mcpgen/internal/config"
	"github.com/genmedia/mcpgen/internal/fetch"
	"github.com/genmedia/mcpgen/internal/genai"
	"github.com/genmedia/mcpgen/internal/storage"
)

// ErrUnknownTool is returned by Call for a name not in Definitions.
var ErrUnknownTool = errors.New("unknown tool")

// Generator is the subset of the Gemini client the tools use.
type Generator interface {
	GenerateContent(ctx context.Context, model string, req *genai.GenerateContentRequest) (*genai.GenerateContentResponse, error)
	PredictLongRunning(ctx context.Context, model string, body interface{}) (string, error)
	WaitOperation(ctx context.Context, name string, interval, timeout time.Duration) (*genai.Operation, error)
	Download(ctx context.Context, uri string) ([]byte, error)
}

// Uploader stores generated media and returns where it can be fetched.
type Uploader interface {
	Upload(ctx context.Context, req storage.UploadRequest) (*storage.UploadResult, error)
}

// Fetcher downloads caller-referenced images.
type Fetcher interface {
	Get(ctx context.Context, url string) (*fetch.Result, error)
}

// Observer receives per-call outcomes. *metrics.Metrics satisfies it.
type Observer interface {
	ObserveTool(tool string, took time.Duration, err error)
	ObserveUpload(backend string, size int, err error)
}

type nopObserver struct{}

func (nopObserver) ObserveTool(string, time.Duration, error) {}
func (nopObserver) ObserveUpload(string, int, error)         {}

// Service runs tool calls.
type Service struct {
	gen     Generator
	store   Uploader
	fetcher Fetcher
	obs     Observer
	models  config.GeminiConfig

	videoModels  []string
	pollInterval time.Duration
	pollTimeout  time.Duration
}

// Option customizes a Service.
type Option func(*Service)

// WithObserver reports call and upload outcomes to o.
func WithObserver(o Observer) Option {
	return func(s *Service) {
		if o != nil {
			s.obs = o
		}
	}
}

// WithVideoPolling overrides how often and how long video operations are polled.
func WithVideoPolling(interval, timeout time.Duration) Option {
	return func(s *Service) {
		s.pollInterval = interval
		s.pollTimeout = timeout
	}
}

// WithVideoModels replaces the ordered list of video models to try.
func WithVideoModels(models ...string) Option {
	return func(s *Service) {
		s.videoModels = append([]string(nil), models...)
	}
}

// New returns a Service. models supplies the image, text and speech model names.
func New(gen Generator, store Uploader, fetcher Fetcher, models config.GeminiConfig, opts ...Option) *Service {
	s := &Service{
		gen:          gen,
		store:        store,
		fetcher:      fetcher,
		obs:          nopObserver{},
		models:       models,
		videoModels:  append([]string(nil), DefaultVideoModels...),
		pollInterval: DefaultPollInterval,
		pollTimeout:  DefaultPollTimeout,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Call dispatches a tool by name. args is the raw "arguments" object.
func (s *Service) Call(ctx context.Context, name string, args json.RawMessage) (interface{}, error) {
	if len(args) == 0 || string(args) == "null" {
		args = json.RawMessage("{}")
	}

	start := time.Now()
	var (
		result interface{}
		err    error
	)
	switch name {
	case "create_visualization":
		result, err = s.createVisualization(ctx, args)
	case "analyze_image":
		result, err = s.analyzeImage(ctx, args)
	case "text_to_speech":
		result, err = s.textToSpeech(ctx, args)
	case "create_video":
		result, err = s.createVideo(ctx, args)
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnknownTool, name)
	}

	took := time.Since(start)
	s.obs.ObserveTool(name, took, err)
	if err != nil {
		log.Printf("[tools] %s failed after %s: %v", name, took, err)
		return nil, err
	}
	config.Debugf("[tools] %s ok in %s", name, took)
	return result, nil
}

func decodeArgs(args json.RawMessage, v interface{}) error {
	if err := json.Unmarshal(args, v); err != nil {
		return apperr.Validation("arguments", "%v", err)
	}
	return nil
}

func required(field, value string) error {
	if strings.TrimSpace(value) == "" {
		return apperr.Validation("arguments", "%s is required", field)
	}
	return nil
}

// save uploads payload under a fresh name derived from hint.
func (s *Service) save(ctx context.Context, payload []byte, ext, hint, contentType string) (*storage.UploadResult, error) {
	res, err := s.store.Upload(ctx, storage.UploadRequest{
		Payload:     payload,
		Filename:    storage.NewFilename(ext, hint),
		ContentType: contentType,
	})
	backend := ""
	if res != nil {
		backend = string(res.Backend)
	}
	s.obs.ObserveUpload(backend, len(payload), err)
	if err != nil {
		return nil, err
	}
	return res, nil
}

func orDefault(v, def string) string {
	if strings.TrimSpace(v) == "" {
		return def
	}
	return strings.TrimSpace(v)
}

// extensionFor maps a MIME type to a file extension without the dot.
func extensionFor(mimeType string) string {
	mt, _, _ := mime.ParseMediaType(mimeType)
	switch mt {
	case "image/png":
		return "png"
	case "image/jpeg":
		return "jpg"
	case "image/webp":
		return "webp"
	case "image/gif":
		return "gif"
	case "audio/wav", "audio/x-wav":
		return "wav"
	case "video/mp4":
		return "mp4"
	}
	if exts, err := mime.ExtensionsByType(mt); err == nil && len(exts) > 0 {
		return strings.TrimPrefix(exts[0], ".")
	}
	return "bin"
}
