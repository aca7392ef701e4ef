package genai

import (
	"encoding/base64"
	"fmt"
	"strings"
)

// Blob is inline binary data, base64-encoded on the wire.
type Blob struct {
	MimeType string `json:"mimeType"`
	Data     string `json:"data"`
}

// Bytes decodes the blob payload.
func (b *Blob) Bytes() ([]byte, error) {
	out, err := base64.StdEncoding.DecodeString(b.Data)
	if err != nil {
		return nil, fmt.Errorf("decode inline data: %w", err)
	}
	return out, nil
}

// Part is one element of a content turn: text or inline data.
type Part struct {
	Text       string `json:"text,omitempty"`
	InlineData *Blob  `json:"inlineData,omitempty"`
}

// TextPart builds a text part.
func TextPart(s string) Part { return Part{Text: s} }

// BlobPart builds an inline-data part from raw bytes.
func BlobPart(mimeType string, data []byte) Part {
	return Part{InlineData: &Blob{MimeType: mimeType, Data: base64.StdEncoding.EncodeToString(data)}}
}

// Content is a single turn.
type Content struct {
	Role  string `json:"role,omitempty"`
	Parts []Part `json:"parts"`
}

type ImageConfig struct {
	AspectRatio string `json:"aspectRatio,omitempty"`
	ImageSize   string `json:"imageSize,omitempty"`
}

type PrebuiltVoiceConfig struct {
	VoiceName string `json:"voiceName"`
}

type VoiceConfig struct {
	PrebuiltVoiceConfig PrebuiltVoiceConfig `json:"prebuiltVoiceConfig"`
}

type SpeakerVoiceConfig struct {
	Speaker     string      `json:"speaker"`
	VoiceConfig VoiceConfig `json:"voiceConfig"`
}

type MultiSpeakerVoiceConfig struct {
	SpeakerVoiceConfigs []SpeakerVoiceConfig `json:"speakerVoiceConfigs"`
}

// SpeechConfig sets either a single voice or a multi-speaker mapping.
type SpeechConfig struct {
	VoiceConfig             *VoiceConfig             `json:"voiceConfig,omitempty"`
	MultiSpeakerVoiceConfig *MultiSpeakerVoiceConfig `json:"multiSpeakerVoiceConfig,omitempty"`
}

type GenerationConfig struct {
	ResponseModalities []string      `json:"responseModalities,omitempty"`
	ImageConfig        *ImageConfig  `json:"imageConfig,omitempty"`
	SpeechConfig       *SpeechConfig `json:"speechConfig,omitempty"`
}

// GenerateContentRequest is the body of models/{model}:generateContent.
type GenerateContentRequest struct {
	Contents         []Content         `json:"contents"`
	GenerationConfig *GenerationConfig `json:"generationConfig,omitempty"`
}

type Candidate struct {
	Content      Content `json:"content"`
	FinishReason string  `json:"finishReason,omitempty"`
}

type PromptFeedback struct {
	BlockReason string `json:"blockReason,omitempty"`
}

// GenerateContentResponse is the reply of generateContent.
type GenerateContentResponse struct {
	Candidates     []Candidate     `json:"candidates"`
	PromptFeedback *PromptFeedback `json:"promptFeedback,omitempty"`
}

// Text concatenates the text parts of the first candidate.
func (r *GenerateContentResponse) Text() string {
	if len(r.Candidates) == 0 {
		return ""
	}
	var sb strings.Builder
	for _, p := range r.Candidates[0].Content.Parts {
		sb.WriteString(p.Text)
	}
	return strings.TrimSpace(sb.String())
}

// FirstBlob returns the first inline-data part whose MIME type starts with
// mimePrefix (e.g. "image/", "audio/"), or an error describing why none came back.
func (r *GenerateContentResponse) FirstBlob(mimePrefix string) (*Blob, error) {
	if r.PromptFeedback != nil && r.PromptFeedback.BlockReason != "" {
		return nil, fmt.Errorf("prompt blocked: %s", r.PromptFeedback.BlockReason)
	}
	for _, c := range r.Candidates {
		for _, p := range c.Content.Parts {
			if p.InlineData != nil && strings.HasPrefix(p.InlineData.MimeType, mimePrefix) {
				return p.InlineData, nil
			}
		}
	}
	if len(r.Candidates) > 0 && r.Candidates[0].FinishReason != "" {
		return nil, fmt.Errorf("no %s* data in response (finishReason=%s)", mimePrefix, r.Candidates[0].FinishReason)
	}
	return nil, fmt.Errorf("no %s* data in response", mimePrefix)
}
