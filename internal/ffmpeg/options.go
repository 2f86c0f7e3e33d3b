package ffmpeg

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// Bitrate bounds in kbps.
const (
	MinBitrate = 64
	MaxBitrate = 320
)

// timestampRe accepts ffmpeg durations: SS, MM:SS or HH:MM:SS, each with
// optional fractional seconds.
var timestampRe = regexp.MustCompile(`^\d+(?::[0-5]?\d){0,2}(?:\.\d+)?$`)

// Options configures the MP3 stage.
type Options struct {
	// Bitrate is the constant MP3 bitrate in kbps. Zero disables the stage.
	Bitrate   int
	TrimStart string
	TrimEnd   string
	// Normalize applies the dynaudnorm filter.
	Normalize bool
	Title     string
	Artist    string
}

// Enabled reports whether the MP3 stage runs.
func (o Options) Enabled() bool {
	return o.Bitrate > 0
}

// Validate checks the bitrate range and trim timestamps. Trim, normalize
// and tags are only meaningful together with a bitrate.
func (o Options) Validate() error {
	if o.Bitrate < 0 {
		return fmt.Errorf("mp3 bitrate must not be negative, got %d", o.Bitrate)
	}
	if !o.Enabled() {
		if o.TrimStart != "" || o.TrimEnd != "" || o.Normalize || o.Title != "" || o.Artist != "" {
			return errors.New("trim, normalize, title and artist need an mp3 bitrate")
		}
		return nil
	}
	if o.Bitrate < MinBitrate || o.Bitrate > MaxBitrate {
		return fmt.Errorf("mp3 bitrate %d outside %d-%d kbps", o.Bitrate, MinBitrate, MaxBitrate)
	}

	start, err := parseTimestamp(o.TrimStart)
	if err != nil {
		return fmt.Errorf("trim start: %w", err)
	}
	end, err := parseTimestamp(o.TrimEnd)
	if err != nil {
		return fmt.Errorf("trim end: %w", err)
	}
	if o.TrimEnd != "" && end <= start {
		return fmt.Errorf("trim end %s is not after start %s", o.TrimEnd, o.TrimStart)
	}
	return nil
}

// Args builds the ffmpeg command line encoding in to out.
func (o Options) Args(in, out string) []string {
	args := []string{"-hide_banner", "-nostdin", "-loglevel", "error", "-y", "-i", in}
	if o.TrimStart != "" {
		args = append(args, "-ss", o.TrimStart)
	}
	if o.TrimEnd != "" {
		args = append(args, "-to", o.TrimEnd)
	}
	if o.Normalize {
		args = append(args, "-af", "dynaudnorm")
	}
	args = append(args, "-vn", "-codec:a", "libmp3lame", "-b:a", strconv.Itoa(o.Bitrate)+"k")
	if o.Title != "" || o.Artist != "" {
		args = append(args, "-id3v2_version", "3")
	}
	if o.Title != "" {
		args = append(args, "-metadata", "title="+o.Title)
	}
	if o.Artist != "" {
		args = append(args, "-metadata", "artist="+o.Artist)
	}
	return append(args, out)
}

// parseTimestamp returns s in seconds; empty is zero.
func parseTimestamp(s string) (float64, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, nil
	}
	if !timestampRe.MatchString(s) {
		return 0, fmt.Errorf("invalid timestamp %q (want SS, MM:SS or HH:MM:SS)", s)
	}
	var total float64
	for _, part := range strings.Split(s, ":") {
		v, err := strconv.ParseFloat(part, 64)
		if err != nil {
			return 0, fmt.Errorf("invalid timestamp %q: %w", s, err)
		}
		total = total*60 + v
	}
	return total, nil
}
