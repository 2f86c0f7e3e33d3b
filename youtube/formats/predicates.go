// Package formats turns InnerTube format entries into stream descriptors and
// resolves their playable URLs.
package formats

import (
	"strconv"
	"strings"

	"github.com/samber/lo"

	"github.com/ytget/audiofetch/types"
	"github.com/ytget/audiofetch/youtube/innertube"
)

// hasDirectURL returns true when the stream already contains a resolvable URL.
// Streams without direct URLs need signature deciphering.
func hasDirectURL(s types.Stream) bool {
	return strings.TrimSpace(s.URL) != ""
}

// signatureCipher returns the cipher blob; older responses name it "cipher".
func signatureCipher(f innertube.Format) string {
	if f.SignatureCipher != "" {
		return f.SignatureCipher
	}
	return f.Cipher
}

// kbps returns averageBitrate in kbps, falling back to the peak bitrate when
// the average is not reported. It is not rounded.
func kbps(f innertube.Format) float64 {
	bps := f.AverageBitrate
	if bps <= 0 {
		bps = f.Bitrate
	}
	if bps <= 0 {
		return 0
	}
	return float64(bps) / 1000
}

func contentLength(v string) int64 {
	n, err := strconv.ParseInt(strings.TrimSpace(v), 10, 64)
	if err != nil || n < 0 {
		return 0
	}
	return n
}

func countAudio(streams []types.Stream) int {
	return lo.CountBy(streams, func(s types.Stream) bool { return s.AudioOnly })
}
