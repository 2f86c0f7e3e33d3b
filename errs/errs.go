package errs

import (
	"errors"
)

var (
	// ErrMissingArguments indicates that fewer than the required positional arguments were given.
	ErrMissingArguments = errors.New("missing arguments")
	// ErrInvalidUsage indicates malformed flags or options.
	ErrInvalidUsage = errors.New("invalid usage")
	// ErrExtraction indicates that the extraction service failed to list or download streams.
	ErrExtraction = errors.New("extraction failed")
	// ErrNoAudioStream indicates that no audio-only stream was reported for the URL.
	ErrNoAudioStream = errors.New("no audio-only stream found")
	// ErrDependencyUnavailable indicates that a required external tool is not installed.
	ErrDependencyUnavailable = errors.New("dependency unavailable")

	// ErrInvalidURL indicates that no video ID could be extracted from the URL.
	ErrInvalidURL = errors.New("invalid video url")
	// ErrVideoUnavailable indicates that the requested video cannot be accessed.
	ErrVideoUnavailable = errors.New("video unavailable")
	// ErrPrivate indicates that the video is private and cannot be downloaded.
	ErrPrivate = errors.New("video is private")
	// ErrAgeRestricted indicates that the video has an age restriction.
	ErrAgeRestricted = errors.New("age restricted")
	// ErrCipherFailed indicates failure during signature deciphering.
	ErrCipherFailed = errors.New("cipher failed")
	// ErrGeoBlocked indicates the video is not available in the current region.
	ErrGeoBlocked = errors.New("geo blocked")
	// ErrRateLimited indicates throttling or rate limiting by the remote service.
	ErrRateLimited = errors.New("rate limited")
)

// Process exit codes.
const (
	ExitOK      = 0
	ExitFailure = 1
	ExitUsage   = 2
	ExitNoAudio = 3
)

// ExitCode maps an error returned by the fetcher or the command line to a process exit code.
func ExitCode(err error) int {
	switch {
	case err == nil:
		return ExitOK
	case errors.Is(err, ErrMissingArguments), errors.Is(err, ErrInvalidUsage):
		return ExitUsage
	case errors.Is(err, ErrNoAudioStream):
		return ExitNoAudio
	default:
		return ExitFailure
	}
}
