package tools

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/genmedia/mcpgen/internal/apperr"
)

// DefaultVideoModels are tried in order until one produces a video.
var DefaultVideoModels = []string{
	"veo-3.0-generate-001",
	"veo-3.0-fast-generate-001",
	"veo-3.1-generate-001",
	"veo-3.1-fast-generate-001",
	"veo-3.1-generate-preview",
}

const (
	DefaultPollInterval = 10 * time.Second
	DefaultPollTimeout  = 10 * time.Minute

	defaultVideoAspect     = "16:9"
	defaultVideoResolution = "720p"
)

var (
	videoAspects     = map[string]bool{"16:9": true, "9:16": true}
	videoResolutions = map[string]bool{"720p": true, "1080p": true}
)

type videoArgs struct {
	Prompt         string `json:"prompt"`
	NegativePrompt string `json:"negative_prompt"`
	AspectRatio    string `json:"aspect_ratio"`
	Resolution     string `json:"resolution"`
	ImageURL       string `json:"image_url"`
	ImageBase64    string `json:"image_base64"`
	ImageMimeType  string `json:"image_mime_type"`
	FilenameHint   string `json:"filename_hint"`
}

// VideoResult is returned by create_video.
type VideoResult struct {
	Prompt      string `json:"prompt"`
	Model       string `json:"model"`
	AspectRatio string `json:"aspect_ratio"`
	Resolution  string `json:"resolution"`
	MimeType    string `json:"mime_type"`
	URL         string `json:"url"`
	GSURI       string `json:"gs_uri"`
}

type videoInstance struct {
	Prompt string      `json:"prompt"`
	Image  *videoImage `json:"image,omitempty"`
}

type videoImage struct {
	ImageBytes string `json:"imageBytes"`
	MimeType   string `json:"mimeType"`
}

type videoParameters struct {
	AspectRatio    string `json:"aspectRatio"`
	Resolution     string `json:"resolution"`
	NegativePrompt string `json:"negativePrompt,omitempty"`
}

type videoRequest struct {
	Instances  []videoInstance `json:"instances"`
	Parameters videoParameters `json:"parameters"`
}

func validateVideo(a *videoArgs) error {
	if err := required("prompt", a.Prompt); err != nil {
		return err
	}
	if !videoAspects[a.AspectRatio] {
		return apperr.Validation("arguments", `aspect_ratio must be one of ["16:9" "9:16"]`)
	}
	if !videoResolutions[a.Resolution] {
		return apperr.Validation("arguments", `resolution must be one of ["1080p" "720p"]`)
	}
	if a.AspectRatio == "9:16" && a.Resolution != "720p" {
		return apperr.Validation("arguments", `resolution must be "720p" when aspect_ratio is "9:16"`)
	}
	if a.Resolution == "1080p" && a.AspectRatio != "16:9" {
		return apperr.Validation("arguments", `aspect_ratio must be "16:9" when resolution is "1080p"`)
	}
	if a.ImageURL != "" && a.ImageBase64 != "" {
		return apperr.Validation("arguments", "provide either image_url or image_base64, not both")
	}
	return nil
}

func (s *Service) createVideo(ctx context.Context, raw json.RawMessage) (*VideoResult, error) {
	var a videoArgs
	if err := decodeArgs(raw, &a); err != nil {
		return nil, err
	}
	a.AspectRatio = orDefault(a.AspectRatio, defaultVideoAspect)
	a.Resolution = orDefault(a.Resolution, defaultVideoResolution)
	if err := validateVideo(&a); err != nil {
		return nil, err
	}

	body := videoRequest{
		Instances: []videoInstance{{Prompt: a.Prompt}},
		Parameters: videoParameters{
			AspectRatio:    a.AspectRatio,
			Resolution:     a.Resolution,
			NegativePrompt: a.NegativePrompt,
		},
	}
	img, err := s.loadImage(ctx, a.ImageURL, a.ImageBase64, a.ImageMimeType)
	if err != nil {
		return nil, err
	}
	if img != nil {
		body.Instances[0].Image = &videoImage{
			ImageBytes: base64.StdEncoding.EncodeToString(img.data),
			MimeType:   img.mimeType,
		}
	}

	model, video, err := s.generateVideo(ctx, body)
	if err != nil {
		return nil, err
	}

	saved, err := s.save(ctx, video, "mp4", orDefault(a.FilenameHint, "video"), "video/mp4")
	if err != nil {
		return nil, err
	}
	return &VideoResult{
		Prompt:      a.Prompt,
		Model:       model,
		AspectRatio: a.AspectRatio,
		Resolution:  a.Resolution,
		MimeType:    "video/mp4",
		URL:         saved.PublicURL,
		GSURI:       saved.BackendURI,
	}, nil
}

// generateVideo tries each configured model until one returns a video.
// Configuration errors and a cancelled ctx stop the loop early since every
// other model would fail the same way.
func (s *Service) generateVideo(ctx context.Context, body videoRequest) (string, []byte, error) {
	var lastErr error
	for _, model := range s.videoModels {
		video, err := s.tryVideoModel(ctx, model, body)
		if err == nil {
			return model, video, nil
		}
		lastErr = err
		if errors.Is(err, apperr.ErrConfig) || ctx.Err() != nil {
			break
		}
		log.Printf("[tools] video model %s failed, trying next: %v", model, err)
	}
	if lastErr == nil {
		return "", nil, apperr.Config("create_video", "no video models configured")
	}
	return "", nil, fmt.Errorf("all video models failed, last error: %w", lastErr)
}

func (s *Service) tryVideoModel(ctx context.Context, model string, body videoRequest) ([]byte, error) {
	opName, err := s.gen.PredictLongRunning(ctx, model, body)
	if err != nil {
		return nil, err
	}
	log.Printf("[tools] video operation %s started on %s", opName, model)

	op, err := s.gen.WaitOperation(ctx, opName, s.pollInterval, s.pollTimeout)
	if err != nil {
		return nil, err
	}
	uri, err := op.VideoURI()
	if err != nil {
		return nil, err
	}
	return s.gen.Download(ctx, uri)
}
