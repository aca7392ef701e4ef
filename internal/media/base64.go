package media

import (
	"encoding/base64"
	"strings"

	"github.com/genmedia/mcpgen/internal/apperr"
)

// DecodeBase64 accepts plain base64 (standard or URL alphabet, padded or not)
// or a data URL. The MIME type from a data URL is returned; otherwise "".
func DecodeBase64(s string) ([]byte, string, error) {
	s = strings.TrimSpace(s)
	var mimeType string

	if strings.HasPrefix(s, "data:") {
		comma := strings.IndexByte(s, ',')
		if comma < 0 {
			return nil, "", apperr.Validation("decode base64", "malformed data URL")
		}
		meta := s[len("data:"):comma]
		if !strings.HasSuffix(meta, ";base64") {
			return nil, "", apperr.Validation("decode base64", "data URL is not base64-encoded")
		}
		mimeType = strings.TrimSuffix(meta, ";base64")
		s = s[comma+1:]
	}

	s = strings.Map(func(r rune) rune {
		switch r {
		case ' ', '\n', '\r', '\t':
			return -1
		}
		return r
	}, s)
	if s == "" {
		return nil, "", apperr.Validation("decode base64", "empty payload")
	}

	for _, enc := range []*base64.Encoding{
		base64.StdEncoding, base64.RawStdEncoding, base64.URLEncoding, base64.RawURLEncoding,
	} {
		if data, err := enc.DecodeString(s); err == nil {
			return data, mimeType, nil
		}
	}
	return nil, "", apperr.Validation("decode base64", "payload is not valid base64")
}
