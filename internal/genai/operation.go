package genai

import (
	"encoding/json"
	"fmt"
	"strings"
)

// OperationError is the google.rpc.Status of a failed operation.
type OperationError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (e *OperationError) String() string {
	return fmt.Sprintf("code=%d message=%s", e.Code, e.Message)
}

// Operation is a long-running prediction.
type Operation struct {
	Name     string          `json:"name"`
	Done     bool            `json:"done"`
	Error    *OperationError `json:"error,omitempty"`
	Response json.RawMessage `json:"response,omitempty"`
}

type videoRef struct {
	Video struct {
		URI string `json:"uri"`
	} `json:"video"`
}

// VideoURI extracts the first generated video URI. Both the
// generateVideoResponse.generatedSamples and the generatedVideos shapes are
// accepted, in camelCase or snake_case.
func (op *Operation) VideoURI() (string, error) {
	if len(op.Response) == 0 {
		return "", fmt.Errorf("operation %s has no response", op.Name)
	}

	var resp struct {
		GVR      *videoSamples `json:"generateVideoResponse"`
		GVRSnake *videoSamples `json:"generate_video_response"`
		Videos   []videoRef    `json:"generatedVideos"`
		VSnake   []videoRef    `json:"generated_videos"`
	}
	if err := json.Unmarshal(op.Response, &resp); err != nil {
		return "", fmt.Errorf("decode operation response: %w", err)
	}

	for _, s := range []*videoSamples{resp.GVR, resp.GVRSnake} {
		if s == nil {
			continue
		}
		for _, list := range [][]videoRef{s.Samples, s.SamplesSnake} {
			if len(list) > 0 && strings.TrimSpace(list[0].Video.URI) != "" {
				return list[0].Video.URI, nil
			}
		}
	}
	for _, list := range [][]videoRef{resp.Videos, resp.VSnake} {
		if len(list) > 0 && strings.TrimSpace(list[0].Video.URI) != "" {
			return list[0].Video.URI, nil
		}
	}
	return "", fmt.Errorf("operation %s response has no video uri", op.Name)
}

type videoSamples struct {
	Samples      []videoRef `json:"generatedSamples"`
	SamplesSnake []videoRef `json:"generated_samples"`
}
