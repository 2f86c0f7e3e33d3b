// Package ffmpeg re-encodes a downloaded audio file to constant bitrate MP3,
// optionally trimmed, loudness-normalised and tagged.
//
// The stage is opt-in: with a zero bitrate the downloaded container is kept.
// When no ffmpeg binary can be found Process reports
// errs.ErrDependencyUnavailable and leaves the input untouched, so callers
// can fall back to the original file.
package ffmpeg

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/spf13/afero"

	"github.com/ytget/audiofetch/internal/command"
	"github.com/ytget/audiofetch/internal/logger"
)

// EnvPath names the environment variable that may point at an ffmpeg binary.
const EnvPath = "FFMPEG_PATH"

const partSuffix = ".part.mp3"

var tool = command.Tool{Name: "ffmpeg", VersionArgs: []string{"-version"}, Component: logger.ComponentFFmpeg}

// DefaultCandidates lists where ffmpeg is looked for, in order: the
// configured path, $FFMPEG_PATH, the usual install locations and $PATH.
func DefaultCandidates(configured string) []string {
	return []string{
		configured,
		os.Getenv(EnvPath),
		"/usr/local/bin/ffmpeg",
		"/usr/bin/ffmpeg",
		"ffmpeg",
	}
}

// Converter runs the MP3 stage through ffmpeg.
type Converter struct {
	runner     command.Runner
	candidates []string
	fs         afero.Fs
	opts       Options

	once    sync.Once
	path    string
	pathErr error

	log *logger.ComponentLogger
}

// New creates a Converter. A nil runner uses command.Exec.
func New(runner command.Runner) *Converter {
	if runner == nil {
		runner = command.Exec{}
	}
	return &Converter{
		runner:     runner,
		candidates: DefaultCandidates(""),
		fs:         afero.NewOsFs(),
		log:        logger.WithComponent(logger.ComponentFFmpeg),
	}
}

// WithPath puts an explicit binary path ahead of the default candidates.
func (c *Converter) WithPath(path string) *Converter {
	c.candidates = DefaultCandidates(path)
	return c
}

// WithFs sets the filesystem the source and result files live on.
func (c *Converter) WithFs(fsys afero.Fs) *Converter {
	if fsys != nil {
		c.fs = fsys
	}
	return c
}

// WithOptions sets the encoding options.
func (c *Converter) WithOptions(o Options) *Converter {
	c.opts = o
	return c
}

// Binary locates ffmpeg once and returns its path.
func (c *Converter) Binary(ctx context.Context) (string, error) {
	c.once.Do(func() {
		c.path, c.pathErr = command.Locate(ctx, c.runner, tool, c.candidates...)
	})
	return c.path, c.pathErr
}

// Process encodes the file at path to <stem>.mp3 and returns the new path.
// The source is removed once the MP3 is in place. With conversion disabled
// path is returned unchanged.
func (c *Converter) Process(ctx context.Context, path string) (string, error) {
	if !c.opts.Enabled() {
		return path, nil
	}
	bin, err := c.Binary(ctx)
	if err != nil {
		return path, err
	}

	stem := strings.TrimSuffix(path, filepath.Ext(path))
	part := stem + partSuffix
	out := stem + ".mp3"

	args := c.opts.Args(path, part)
	c.log.Debug("Running ffmpeg", map[string]interface{}{"args": strings.Join(args, " ")})
	if _, err := c.runner.Output(ctx, bin, args...); err != nil {
		_ = c.fs.Remove(part)
		return "", fmt.Errorf("encode mp3: %w", err)
	}
	if ok, _ := afero.Exists(c.fs, part); !ok {
		return "", errors.New("encode mp3: ffmpeg produced no output")
	}
	if err := c.fs.Rename(part, out); err != nil {
		return "", fmt.Errorf("rename %s: %w", part, err)
	}
	if out != path {
		if err := c.fs.Remove(path); err != nil {
			c.log.Warn("Could not remove source file", map[string]interface{}{"path": path, "error": err.Error()})
		}
	}

	c.log.Info("Converted to mp3", map[string]interface{}{
		"path":      out,
		"bitrate":   c.opts.Bitrate,
		"normalize": c.opts.Normalize,
	})
	return out, nil
}
