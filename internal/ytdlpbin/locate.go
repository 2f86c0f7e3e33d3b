package ytdlpbin

import (
	"context"
	"os"

	"github.com/ytget/audiofetch/internal/command"
	"github.com/ytget/audiofetch/internal/logger"
)

// EnvPath names the environment variable that may point at a yt-dlp binary.
const EnvPath = "YTDLP_PATH"

// CommandRunner runs yt-dlp; tests substitute it.
type CommandRunner = command.Runner

var tool = command.Tool{Name: "yt-dlp", VersionArgs: []string{"--version"}, Component: logger.ComponentYtDlp}

// DefaultCandidates lists where yt-dlp is looked for, in order: the
// configured path, $YTDLP_PATH, the usual install locations and $PATH.
func DefaultCandidates(configured string) []string {
	return []string{
		configured,
		os.Getenv(EnvPath),
		"/usr/local/bin/yt-dlp",
		"/usr/bin/yt-dlp",
		"yt-dlp",
	}
}

// Locate returns the first candidate that answers --version.
// When none does the error wraps errs.ErrDependencyUnavailable.
func Locate(ctx context.Context, runner CommandRunner, candidates ...string) (string, error) {
	return command.Locate(ctx, runner, tool, candidates...)
}
