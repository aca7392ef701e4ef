package storage

import (
	"regexp"
	"strings"

	"github.com/google/uuid"

	"github.com/genmedia/mcpgen/internal/apperr"
)

var unsafeFilenameChars = regexp.MustCompile(`[^A-Za-z0-9._-]`)

// SanitizeFilename replaces everything outside [A-Za-z0-9._-] with "_" and trims
// leading/trailing dots, dashes and underscores, so the result never contains a
// path separator and never starts with a dot. A name with nothing safe left is a
// validation error.
func SanitizeFilename(name string) (string, error) {
	clean := unsafeFilenameChars.ReplaceAllString(strings.TrimSpace(name), "_")
	clean = strings.Trim(clean, "._-")
	if clean == "" {
		return "", apperr.Validation("sanitize filename", "%q has no usable characters", name)
	}
	return clean, nil
}

// NewFilename builds "<12 hex>_<hint>.<ext>". The random prefix gives callers
// the uniqueness the resolver deliberately does not provide.
func NewFilename(ext, hint string) string {
	ext = strings.TrimLeft(strings.TrimSpace(ext), ".")
	if ext == "" {
		ext = "bin"
	}
	h, err := SanitizeFilename(hint)
	if err != nil {
		h = "file"
	}
	unique := strings.ReplaceAll(uuid.NewString(), "-", "")[:12]
	return unique + "_" + h + "." + ext
}

// ObjectKey composes the key a backend stores name under. Local files live
// directly in the static dir; cloud objects get "<prefix>/" when a prefix is set.
// Prefix segments are cleaned like filenames, so keys need no URL escaping.
func ObjectKey(b Backend, prefix, name string) string {
	if b == BackendLocal {
		return name
	}
	var segs []string
	for _, seg := range strings.Split(prefix, "/") {
		if clean, err := SanitizeFilename(seg); err == nil {
			segs = append(segs, clean)
		}
	}
	if len(segs) == 0 {
		return name
	}
	return strings.Join(segs, "/") + "/" + name
}
