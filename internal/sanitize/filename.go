package sanitize

import (
	"path/filepath"
	"regexp"
	"strings"
)

const (
	// MaxFilenameLength is the maximum allowed length for the filename base.
	MaxFilenameLength = 120
	// DefaultName is the replacement name when the base is empty.
	DefaultName = "audio"
)

var unsafeChars = regexp.MustCompile(`[\\/:*?"<>|\x00-\x1f]+`)

// BaseName makes name safe to use as a file base inside a single directory.
// Path separators never survive, so the result cannot escape the output directory.
func BaseName(name string) string {
	name = strings.TrimSpace(name)
	name = unsafeChars.ReplaceAllString(name, "_")
	name = strings.TrimSpace(name)
	if len(name) > MaxFilenameLength {
		name = name[:MaxFilenameLength]
	}
	if name == "" || name == "." || name == ".." {
		return DefaultName
	}
	return name
}

// WithExt joins a sanitized base and an extension (with or without dot).
func WithExt(base, ext string) string {
	ext = strings.TrimPrefix(strings.ToLower(strings.TrimSpace(ext)), ".")
	if ext == "" {
		return filepath.Clean(BaseName(base))
	}
	return filepath.Clean(BaseName(base) + "." + ext)
}
