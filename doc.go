// Package audiofetch downloads the best audio-only stream of a remote video.
//
// A Fetcher asks an Extractor for the stream descriptors of a URL, keeps the
// audio-only ones, picks the one with the highest average bitrate and has the
// extractor write it to <outDir>/<baseName>.<ext>. The absolute path of the
// written file is returned.
//
// Basic usage:
//
//	path, err := audiofetch.New().
//		WithExtractor(youtube.New()).
//		Fetch(ctx, "https://www.youtube.com/watch?v=dQw4w9WgXcQ", "out", "song")
//
// Failures are reported with the sentinels of package errs; errs.ExitCode maps
// them to process exit codes.
package audiofetch
