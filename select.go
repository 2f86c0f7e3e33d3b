package audiofetch

import (
	"github.com/samber/lo"

	"github.com/ytget/audiofetch/errs"
	"github.com/ytget/audiofetch/types"
)

// SelectBestAudio returns the audio-only stream with the highest average
// bitrate. Ties keep the stream reported first.
func SelectBestAudio(streams []types.Stream) (types.Stream, error) {
	audio := types.VideoInfo{Streams: streams}.AudioStreams()
	if len(audio) == 0 {
		return types.Stream{}, errs.ErrNoAudioStream
	}
	return lo.MaxBy(audio, func(a, b types.Stream) bool {
		return a.AverageBitrate > b.AverageBitrate
	}), nil
}
