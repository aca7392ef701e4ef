package tools

// Tool is an MCP tool definition as listed by tools/list.
type Tool struct {
	Name        string                 `json:"name"`
	Description string                 `json:"description"`
	InputSchema map[string]interface{} `json:"inputSchema"`
}

func str(desc string) map[string]interface{} {
	return map[string]interface{}{"type": "string", "description": desc}
}

func strDefault(desc, def string) map[string]interface{} {
	m := str(desc)
	m["default"] = def
	return m
}

func strEnum(desc, def string, values ...string) map[string]interface{} {
	m := strDefault(desc, def)
	m["enum"] = values
	return m
}

// Definitions returns the tools this server exposes.
func Definitions() []Tool {
	return []Tool{
		{
			Name:        "create_visualization",
			Description: "Generate an image from a text prompt and return a URL to the stored image.",
			InputSchema: map[string]interface{}{
				"type": "object",
				"properties": map[string]interface{}{
					"prompt":        str("What the image should show"),
					"aspect_ratio":  strDefault("Aspect ratio such as 1:1, 16:9 or 9:16", defaultAspectRatio),
					"image_size":    strDefault("Output size hint such as 1K or 2K", defaultImageSize),
					"filename_hint": str("Optional readable part of the stored filename"),
				},
				"required": []string{"prompt"},
			},
		},
		{
			Name:        "analyze_image",
			Description: "Describe or answer questions about an image given by URL or base64. Also reports its size, format and dominant colors when it can be decoded locally.",
			InputSchema: map[string]interface{}{
				"type": "object",
				"properties": map[string]interface{}{
					"image_url":    str("Public http(s) URL of the image"),
					"image_base64": str("Image bytes as base64 or a data URL"),
					"mime_type":    strDefault("MIME type of the image", defaultAnalysisMime),
					"prompt":       strDefault("Question or instruction about the image", defaultAnalyzePrompt),
				},
			},
		},
		{
			Name:        "text_to_speech",
			Description: "Synthesize speech for a prompt and return a URL to a 24 kHz mono WAV file.",
			InputSchema: map[string]interface{}{
				"type": "object",
				"properties": map[string]interface{}{
					"prompt":     str("Text to speak; for multiple speakers prefix lines with the speaker name"),
					"voice_name": strDefault("Prebuilt voice name", defaultVoice),
					"multi_speaker_config": map[string]interface{}{
						"description": `JSON array (or a string holding one) of {"speaker": "...", "voice_name": "..."}`,
						"oneOf": []interface{}{
							map[string]interface{}{"type": "string"},
							map[string]interface{}{
								"type": "array",
								"items": map[string]interface{}{
									"type": "object",
									"properties": map[string]interface{}{
										"speaker":    str("Speaker label used in the prompt"),
										"voice_name": str("Prebuilt voice name"),
									},
									"required": []string{"speaker"},
								},
							},
						},
					},
					"filename_hint": str("Optional readable part of the stored filename"),
				},
				"required": []string{"prompt"},
			},
		},
		{
			Name:        "create_video",
			Description: "Generate a short video with Veo, optionally starting from an image. 9:16 supports only 720p; 1080p requires 16:9.",
			InputSchema: map[string]interface{}{
				"type": "object",
				"properties": map[string]interface{}{
					"prompt":          str("What the video should show"),
					"negative_prompt": str("What the video should avoid"),
					"aspect_ratio":    strEnum("Video aspect ratio", defaultVideoAspect, "16:9", "9:16"),
					"resolution":      strEnum("Video resolution", defaultVideoResolution, "720p", "1080p"),
					"image_url":       str("Optional starting image URL"),
					"image_base64":    str("Optional starting image as base64 or a data URL"),
					"image_mime_type": str("MIME type of the starting image"),
					"filename_hint":   str("Optional readable part of the stored filename"),
				},
				"required": []string{"prompt"},
			},
		},
	}
}
