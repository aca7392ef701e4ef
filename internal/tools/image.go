package tools

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/genmedia/mcpgen/internal/apperr"
	"github.com/genmedia/mcpgen/internal/config"
	"github.com/genmedia/mcpgen/internal/genai"
	"github.com/genmedia/mcpgen/internal/media"
)

const (
	defaultAspectRatio   = "1:1"
	defaultImageSize     = "2K"
	defaultAnalysisMime  = "image/jpeg"
	defaultAnalyzePrompt = "Describe this image in detail."
	dominantColorCount   = 5
)

type visualizationArgs struct {
	Prompt       string `json:"prompt"`
	AspectRatio  string `json:"aspect_ratio"`
	ImageSize    string `json:"image_size"`
	FilenameHint string `json:"filename_hint"`
}

// VisualizationResult is returned by create_visualization.
type VisualizationResult struct {
	Prompt      string `json:"prompt"`
	AspectRatio string `json:"aspect_ratio"`
	ImageSize   string `json:"image_size"`
	MimeType    string `json:"mime_type"`
	URL         string `json:"url"`
	GSURI       string `json:"gs_uri"`
}

func (s *Service) createVisualization(ctx context.Context, raw json.RawMessage) (*VisualizationResult, error) {
	var a visualizationArgs
	if err := decodeArgs(raw, &a); err != nil {
		return nil, err
	}
	if err := required("prompt", a.Prompt); err != nil {
		return nil, err
	}
	a.AspectRatio = orDefault(a.AspectRatio, defaultAspectRatio)
	a.ImageSize = orDefault(a.ImageSize, defaultImageSize)

	resp, err := s.gen.GenerateContent(ctx, s.models.ImageModel, &genai.GenerateContentRequest{
		Contents: []genai.Content{{Role: "user", Parts: []genai.Part{genai.TextPart(a.Prompt)}}},
		GenerationConfig: &genai.GenerationConfig{
			ResponseModalities: []string{"IMAGE"},
			ImageConfig:        &genai.ImageConfig{AspectRatio: a.AspectRatio, ImageSize: a.ImageSize},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("generate image: %w", err)
	}
	blob, err := resp.FirstBlob("image/")
	if err != nil {
		return nil, fmt.Errorf("generate image: %w", err)
	}
	data, err := blob.Bytes()
	if err != nil {
		return nil, err
	}

	saved, err := s.save(ctx, data, extensionFor(blob.MimeType), orDefault(a.FilenameHint, "image"), blob.MimeType)
	if err != nil {
		return nil, err
	}
	return &VisualizationResult{
		Prompt:      a.Prompt,
		AspectRatio: a.AspectRatio,
		ImageSize:   a.ImageSize,
		MimeType:    blob.MimeType,
		URL:         saved.PublicURL,
		GSURI:       saved.BackendURI,
	}, nil
}

type analyzeArgs struct {
	ImageURL    string `json:"image_url"`
	ImageBase64 string `json:"image_base64"`
	MimeType    string `json:"mime_type"`
	Prompt      string `json:"prompt"`
}

// AnalysisResult is returned by analyze_image. Width, Height, Format and
// DominantColors are filled only when the image could be decoded locally.
type AnalysisResult struct {
	Prompt         string                `json:"prompt"`
	Analysis       string                `json:"analysis"`
	ImageURL       string                `json:"image_url"`
	MimeType       string                `json:"mime_type"`
	Width          int                   `json:"width,omitempty"`
	Height         int                   `json:"height,omitempty"`
	Format         string                `json:"format,omitempty"`
	DominantColors []media.DominantColor `json:"dominant_colors,omitempty"`
}

func (s *Service) analyzeImage(ctx context.Context, raw json.RawMessage) (*AnalysisResult, error) {
	var a analyzeArgs
	if err := decodeArgs(raw, &a); err != nil {
		return nil, err
	}
	img, err := s.loadImage(ctx, a.ImageURL, a.ImageBase64, a.MimeType)
	if err != nil {
		return nil, err
	}
	if img == nil {
		return nil, apperr.Validation("analyze_image", "provide image_url or image_base64")
	}
	prompt := orDefault(a.Prompt, defaultAnalyzePrompt)

	resp, err := s.gen.GenerateContent(ctx, s.models.TextModel, &genai.GenerateContentRequest{
		Contents: []genai.Content{{Role: "user", Parts: []genai.Part{
			genai.BlobPart(img.mimeType, img.data),
			genai.TextPart(prompt),
		}}},
	})
	if err != nil {
		return nil, fmt.Errorf("analyze image: %w", err)
	}
	analysis := resp.Text()
	if analysis == "" {
		return nil, fmt.Errorf("analyze image: model returned no text")
	}

	out := &AnalysisResult{
		Prompt:   prompt,
		Analysis: analysis,
		ImageURL: img.source,
		MimeType: img.mimeType,
	}
	if info, err := media.Inspect(img.data, dominantColorCount); err == nil {
		out.Width, out.Height, out.Format = info.Width, info.Height, info.Format
		out.DominantColors = info.DominantColors
		config.Debugf("[tools] analyze_image inspected %s", info.Describe())
	} else {
		config.Debugf("[tools] analyze_image skipped local inspection: %v", err)
	}
	return out, nil
}

type sourceImage struct {
	data     []byte
	mimeType string
	source   string
}

// loadImage resolves exactly one of url or b64 into bytes. It returns nil
// when neither is set. The MIME type is the explicit one, else what the
// download or data URL reported, else image/jpeg.
func (s *Service) loadImage(ctx context.Context, url, b64, explicitMime string) (*sourceImage, error) {
	hasURL, hasB64 := url != "", b64 != ""
	switch {
	case hasURL && hasB64:
		return nil, apperr.Validation("arguments", "provide either image_url or image_base64, not both")
	case hasURL:
		res, err := s.fetcher.Get(ctx, url)
		if err != nil {
			return nil, err
		}
		return &sourceImage{data: res.Data, mimeType: orDefault(explicitMime, orDefault(res.MimeType, defaultAnalysisMime)), source: url}, nil
	case hasB64:
		data, detected, err := media.DecodeBase64(b64)
		if err != nil {
			return nil, err
		}
		return &sourceImage{data: data, mimeType: orDefault(explicitMime, orDefault(detected, defaultAnalysisMime)), source: "<base64>"}, nil
	default:
		return nil, nil
	}
}
