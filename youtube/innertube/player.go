package innertube

import (
	"fmt"
	"strings"

	"github.com/ytget/audiofetch/errs"
)

// PlayerResponse represents a response from the InnerTube /player endpoint.
type PlayerResponse struct {
	StreamingData     StreamingData     `json:"streamingData"`
	VideoDetails      VideoDetails      `json:"videoDetails"`
	PlayabilityStatus PlayabilityStatus `json:"playabilityStatus"`
}

// StreamingData lists progressive and adaptive formats.
type StreamingData struct {
	ExpiresInSeconds string   `json:"expiresInSeconds"`
	Formats          []Format `json:"formats"`
	AdaptiveFormats  []Format `json:"adaptiveFormats"`
}

// Format is a raw stream entry as returned by InnerTube.
type Format struct {
	Itag             int    `json:"itag"`
	URL              string `json:"url"`
	SignatureCipher  string `json:"signatureCipher"`
	Cipher           string `json:"cipher"`
	MimeType         string `json:"mimeType"`
	Bitrate          int    `json:"bitrate"`
	AverageBitrate   int    `json:"averageBitrate"`
	ContentLength    string `json:"contentLength"`
	QualityLabel     string `json:"qualityLabel"`
	AudioQuality     string `json:"audioQuality"`
	AudioSampleRate  string `json:"audioSampleRate"`
	AudioChannels    int    `json:"audioChannels"`
	Width            int    `json:"width"`
	Height           int    `json:"height"`
	ApproxDurationMs string `json:"approxDurationMs"`
}

// VideoDetails carries basic metadata.
type VideoDetails struct {
	VideoID       string `json:"videoId"`
	Title         string `json:"title"`
	Author        string `json:"author"`
	LengthSeconds string `json:"lengthSeconds"`
	IsLive        bool   `json:"isLiveContent"`
}

// PlayabilityStatus tells whether streams can be served.
type PlayabilityStatus struct {
	Status string `json:"status"`
	Reason string `json:"reason"`
}

// AllFormats returns progressive formats followed by adaptive ones.
func (s StreamingData) AllFormats() []Format {
	out := make([]Format, 0, len(s.Formats)+len(s.AdaptiveFormats))
	out = append(out, s.Formats...)
	return append(out, s.AdaptiveFormats...)
}

// Err maps a non-OK playability status to an errs sentinel.
func (p PlayabilityStatus) Err() error {
	status := strings.ToUpper(strings.TrimSpace(p.Status))
	reason := strings.ToLower(p.Reason)
	var kind error
	switch status {
	case "", "OK":
		return nil
	case "ERROR":
		switch {
		case strings.Contains(reason, "geograph") || strings.Contains(reason, "available in your country"):
			kind = errs.ErrGeoBlocked
		case strings.Contains(reason, "rate limit") || strings.Contains(reason, "quota"):
			kind = errs.ErrRateLimited
		default:
			kind = errs.ErrVideoUnavailable
		}
	case "LOGIN_REQUIRED":
		if strings.Contains(reason, "private") {
			kind = errs.ErrPrivate
		} else {
			kind = errs.ErrAgeRestricted
		}
	case "AGE_CHECK_REQUIRED", "AGE_VERIFICATION_REQUIRED", "CONTENT_CHECK_REQUIRED":
		kind = errs.ErrAgeRestricted
	case "UNPLAYABLE":
		if strings.Contains(reason, "private") {
			kind = errs.ErrPrivate
		} else {
			kind = errs.ErrVideoUnavailable
		}
	default:
		kind = errs.ErrVideoUnavailable
	}
	if p.Reason == "" {
		return fmt.Errorf("%w (%s)", kind, status)
	}
	return fmt.Errorf("%w: %s", kind, p.Reason)
}
