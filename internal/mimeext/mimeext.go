package mimeext

import (
	"strings"
)

const (
	// DefaultExt is the extension used when MIME is unknown or empty.
	DefaultExt = "m4a"

	// ExtM4A is the file extension for MP4 audio.
	ExtM4A = "m4a"
	// ExtWebM is the file extension for WebM media.
	ExtWebM = "webm"
	// ExtMP3 is the file extension for MPEG audio.
	ExtMP3 = "mp3"
	// ExtMP4 is the file extension for MP4 video.
	ExtMP4 = "mp4"

	// MimeAudioMP4 is the MIME type for MP4 audio.
	MimeAudioMP4 = "audio/mp4"
	// MimeAudioWebM is the MIME type for WebM audio.
	MimeAudioWebM = "audio/webm"
	// MimeAudioMPEG is the MIME type for MPEG audio.
	MimeAudioMPEG = "audio/mpeg"
	// MimeVideoMP4 is the MIME type for MP4 video.
	MimeVideoMP4 = "video/mp4"
	// MimeVideoWebM is the MIME type for WebM video.
	MimeVideoWebM = "video/webm"
)

// Base strips parameters (codecs etc.) and lowercases a MIME type.
func Base(mime string) string {
	mime = strings.TrimSpace(mime)
	if i := strings.Index(mime, ";"); i >= 0 {
		mime = strings.TrimSpace(mime[:i])
	}
	return strings.ToLower(mime)
}

// IsAudio reports whether mime has the audio major type.
func IsAudio(mime string) bool {
	return strings.HasPrefix(Base(mime), "audio/")
}

// ExtFromMime returns file extension (without dot) for given mime type.
// Falls back to subtype or m4a if unknown.
func ExtFromMime(mime string) string {
	base := Base(mime)
	if base == "" {
		return DefaultExt
	}
	switch base {
	case MimeAudioMP4:
		return ExtM4A
	case MimeAudioWebM, MimeVideoWebM:
		return ExtWebM
	case MimeAudioMPEG:
		return ExtMP3
	case MimeVideoMP4:
		return ExtMP4
	}
	parts := strings.Split(base, "/")
	if len(parts) == 2 && parts[1] != "" {
		return parts[1]
	}
	return DefaultExt
}
