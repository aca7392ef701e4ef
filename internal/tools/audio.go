package tools

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"mime"
	"strings"

	"github.com/genmedia/mcpgen/internal/apperr"
	"github.com/genmedia/mcpgen/internal/genai"
	"github.com/genmedia/mcpgen/internal/media"
)

const defaultVoice = "Kore"

// SpeakerVoice maps a speaker label in the prompt to a prebuilt voice.
type SpeakerVoice struct {
	Speaker   string `json:"speaker"`
	VoiceName string `json:"voice_name"`
}

type speechArgs struct {
	Prompt             string          `json:"prompt"`
	VoiceName          string          `json:"voice_name"`
	MultiSpeakerConfig json.RawMessage `json:"multi_speaker_config"`
	FilenameHint       string          `json:"filename_hint"`
}

// SpeechResult is returned by text_to_speech.
type SpeechResult struct {
	Prompt       string `json:"prompt"`
	VoiceName    string `json:"voice_name"`
	MultiSpeaker bool   `json:"multi_speaker"`
	MimeType     string `json:"mime_type"`
	URL          string `json:"url"`
	GSURI        string `json:"gs_uri"`
}

func (s *Service) textToSpeech(ctx context.Context, raw json.RawMessage) (*SpeechResult, error) {
	var a speechArgs
	if err := decodeArgs(raw, &a); err != nil {
		return nil, err
	}
	if err := required("prompt", a.Prompt); err != nil {
		return nil, err
	}
	voice := orDefault(a.VoiceName, defaultVoice)
	speakers, err := parseSpeakers(a.MultiSpeakerConfig, voice)
	if err != nil {
		return nil, err
	}

	speech := &genai.SpeechConfig{}
	if len(speakers) > 0 {
		cfgs := make([]genai.SpeakerVoiceConfig, len(speakers))
		for i, sp := range speakers {
			cfgs[i] = genai.SpeakerVoiceConfig{
				Speaker:     sp.Speaker,
				VoiceConfig: genai.VoiceConfig{PrebuiltVoiceConfig: genai.PrebuiltVoiceConfig{VoiceName: sp.VoiceName}},
			}
		}
		speech.MultiSpeakerVoiceConfig = &genai.MultiSpeakerVoiceConfig{SpeakerVoiceConfigs: cfgs}
	} else {
		speech.VoiceConfig = &genai.VoiceConfig{PrebuiltVoiceConfig: genai.PrebuiltVoiceConfig{VoiceName: voice}}
	}

	resp, err := s.gen.GenerateContent(ctx, s.models.TTSModel, &genai.GenerateContentRequest{
		Contents: []genai.Content{{Role: "user", Parts: []genai.Part{genai.TextPart(a.Prompt)}}},
		GenerationConfig: &genai.GenerationConfig{
			ResponseModalities: []string{"AUDIO"},
			SpeechConfig:       speech,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("generate speech: %w", err)
	}
	blob, err := resp.FirstBlob("audio/")
	if err != nil {
		return nil, fmt.Errorf("generate speech: %w", err)
	}
	audio, err := blob.Bytes()
	if err != nil {
		return nil, err
	}
	if !isWAV(blob.MimeType, audio) {
		audio = media.WrapPCM(audio, media.PCMFormatFromMime(blob.MimeType))
	}

	saved, err := s.save(ctx, audio, "wav", orDefault(a.FilenameHint, "speech"), "audio/wav")
	if err != nil {
		return nil, err
	}
	return &SpeechResult{
		Prompt:       a.Prompt,
		VoiceName:    voice,
		MultiSpeaker: len(speakers) > 0,
		MimeType:     "audio/wav",
		URL:          saved.PublicURL,
		GSURI:        saved.BackendURI,
	}, nil
}

// parseSpeakers accepts a JSON array of SpeakerVoice or a string holding one.
// Entries without a voice get fallbackVoice.
func parseSpeakers(raw json.RawMessage, fallbackVoice string) ([]SpeakerVoice, error) {
	raw = json.RawMessage(bytes.TrimSpace(raw))
	if len(raw) == 0 || string(raw) == "null" {
		return nil, nil
	}
	if raw[0] == '"' {
		var inner string
		if err := json.Unmarshal(raw, &inner); err != nil {
			return nil, apperr.Validation("multi_speaker_config", "%v", err)
		}
		inner = strings.TrimSpace(inner)
		if inner == "" {
			return nil, nil
		}
		raw = json.RawMessage(inner)
	}

	var speakers []SpeakerVoice
	if err := json.Unmarshal(raw, &speakers); err != nil {
		return nil, apperr.Validation("multi_speaker_config", "must be a JSON array of {speaker, voice_name}: %v", err)
	}
	for i := range speakers {
		speakers[i].Speaker = strings.TrimSpace(speakers[i].Speaker)
		if speakers[i].Speaker == "" {
			return nil, apperr.Validation("multi_speaker_config", "entry %d has no speaker", i)
		}
		speakers[i].VoiceName = orDefault(speakers[i].VoiceName, fallbackVoice)
	}
	return speakers, nil
}

func isWAV(mimeType string, data []byte) bool {
	mt, _, _ := mime.ParseMediaType(mimeType)
	if mt == "audio/wav" || mt == "audio/x-wav" || mt == "audio/wave" {
		return true
	}
	return len(data) >= 12 && string(data[0:4]) == "RIFF" && string(data[8:12]) == "WAVE"
}
