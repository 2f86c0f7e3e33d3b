package innertube

import (
	"fmt"
	"net/url"
	"regexp"
	"strings"

	"github.com/ytget/audiofetch/errs"
)

var videoIDRe = regexp.MustCompile(`^[A-Za-z0-9_-]{11}$`)

var youtubeHosts = map[string]bool{
	"youtube.com":              true,
	"www.youtube.com":          true,
	"m.youtube.com":            true,
	"music.youtube.com":        true,
	"youtube-nocookie.com":     true,
	"www.youtube-nocookie.com": true,
}

// pathPrefixes carry the ID as the next path segment.
var pathPrefixes = []string{"/shorts/", "/embed/", "/live/", "/v/", "/e/"}

// ExtractVideoID returns the 11-character video ID from a YouTube URL or a bare ID.
func ExtractVideoID(raw string) (string, error) {
	raw = strings.TrimSpace(raw)
	if videoIDRe.MatchString(raw) {
		return raw, nil
	}
	if !strings.Contains(raw, "://") {
		raw = "https://" + raw
	}
	u, err := url.Parse(raw)
	if err != nil {
		return "", fmt.Errorf("%w: %v", errs.ErrInvalidURL, err)
	}
	host := strings.ToLower(u.Hostname())

	var id string
	switch {
	case host == "youtu.be" || host == "www.youtu.be":
		id, _, _ = strings.Cut(strings.TrimPrefix(u.Path, "/"), "/")
	case youtubeHosts[host]:
		if u.Path == "/watch" || u.Path == "/watch/" {
			id = u.Query().Get("v")
			break
		}
		for _, p := range pathPrefixes {
			if rest, ok := strings.CutPrefix(u.Path, p); ok {
				id, _, _ = strings.Cut(rest, "/")
				break
			}
		}
	default:
		return "", fmt.Errorf("%w: unsupported host %q", errs.ErrInvalidURL, host)
	}

	if !videoIDRe.MatchString(id) {
		return "", fmt.Errorf("%w: no video id in %q", errs.ErrInvalidURL, raw)
	}
	return id, nil
}
