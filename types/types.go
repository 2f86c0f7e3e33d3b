package types

import "github.com/samber/lo"

// Stream describes one downloadable stream reported by an extraction service.
type Stream struct {
	// ID is the backend identifier: the itag for the native backend,
	// the format_id for yt-dlp.
	ID       string
	Itag     int
	MimeType string
	// Ext is the container extension (without dot) the download will carry.
	Ext       string
	AudioOnly bool
	// AverageBitrate is the average audio bitrate in kbps, unrounded so that
	// close streams still rank apart.
	AverageBitrate float64
	// Bitrate is the peak bitrate in bps as reported by the service.
	Bitrate         int
	Size            int64
	URL             string
	SignatureCipher string
}

// VideoInfo describes the video a set of streams belongs to.
type VideoInfo struct {
	ID       string
	Title    string
	Duration int
	Uploader string
	Streams  []Stream
}

// AudioStreams returns the audio-only subset of v.Streams in reported order.
func (v VideoInfo) AudioStreams() []Stream {
	return lo.Filter(v.Streams, func(s Stream, _ int) bool {
		return s.AudioOnly
	})
}
