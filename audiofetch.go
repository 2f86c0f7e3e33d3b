package audiofetch

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/spf13/afero"

	"github.com/ytget/audiofetch/errs"
	"github.com/ytget/audiofetch/internal/logger"
	"github.com/ytget/audiofetch/internal/sanitize"
	"github.com/ytget/audiofetch/types"
)

// Extractor lists the streams of a URL and downloads one of them.
type Extractor interface {
	Streams(ctx context.Context, url string) ([]types.Stream, error)
	// Download writes s to outDir/baseName.<ext> and returns the written path.
	Download(ctx context.Context, url string, s types.Stream, outDir, baseName string) (string, error)
}

// PostProcessor transforms the downloaded file and returns the path of the
// result. Returning an error wrapping errs.ErrDependencyUnavailable keeps the
// downloaded file as the result.
type PostProcessor interface {
	Process(ctx context.Context, path string) (string, error)
}

// Fetcher runs one fetch per call. Configure it with the chainable setters.
type Fetcher struct {
	extractor Extractor
	post      PostProcessor
	fs        afero.Fs
	log       *logger.ComponentLogger
}

// New creates a Fetcher writing to the OS filesystem. An extractor must be
// set with WithExtractor before Fetch.
func New() *Fetcher {
	return &Fetcher{
		fs:  afero.NewOsFs(),
		log: logger.WithComponent(logger.ComponentApp),
	}
}

// WithExtractor sets the extraction service.
func (f *Fetcher) WithExtractor(e Extractor) *Fetcher {
	f.extractor = e
	return f
}

// WithPostProcessor runs p on every downloaded file.
func (f *Fetcher) WithPostProcessor(p PostProcessor) *Fetcher {
	f.post = p
	return f
}

// WithFs sets the filesystem the output directory is created on.
func (f *Fetcher) WithFs(fsys afero.Fs) *Fetcher {
	if fsys != nil {
		f.fs = fsys
	}
	return f
}

// WithLogger routes fetcher logs through l.
func (f *Fetcher) WithLogger(l *logger.Logger) *Fetcher {
	if l != nil {
		f.log = l.WithComponent(logger.ComponentApp)
	}
	return f
}

// Fetch downloads the best audio-only stream of url into
// outDir/outBaseName.<ext> and returns the absolute path of the file.
func (f *Fetcher) Fetch(ctx context.Context, url, outDir, outBaseName string) (string, error) {
	url = strings.TrimSpace(url)
	outDir = strings.TrimSpace(outDir)
	outBaseName = strings.TrimSpace(outBaseName)
	if url == "" || outDir == "" || outBaseName == "" {
		return "", errs.ErrMissingArguments
	}
	if f.extractor == nil {
		return "", errors.New("audiofetch: no extractor configured")
	}

	if err := f.fs.MkdirAll(outDir, 0o755); err != nil {
		return "", fmt.Errorf("create output directory %s: %w", outDir, err)
	}

	f.log.Debug("Listing streams", map[string]interface{}{"url": url})
	streams, err := f.extractor.Streams(ctx, url)
	if err != nil {
		return "", extractionErr("list streams", err)
	}

	best, err := SelectBestAudio(streams)
	if err != nil {
		f.log.Info("No audio-only stream", map[string]interface{}{
			"url":     url,
			"streams": len(streams),
		})
		return "", err
	}
	f.log.Info("Selected audio stream", map[string]interface{}{
		"id":      best.ID,
		"abr":     best.AverageBitrate,
		"ext":     best.Ext,
		"streams": len(streams),
	})

	path, err := f.extractor.Download(ctx, url, best, outDir, sanitize.BaseName(outBaseName))
	if err != nil {
		return "", extractionErr("download", err)
	}

	if f.post != nil {
		processed, err := f.post.Process(ctx, path)
		switch {
		case errors.Is(err, errs.ErrDependencyUnavailable):
			f.log.Warn("Post-processing unavailable, keeping downloaded file", map[string]interface{}{
				"path":  path,
				"error": err.Error(),
			})
		case err != nil:
			return "", fmt.Errorf("post-process %s: %w", path, err)
		default:
			path = processed
		}
	}

	abs, err := filepath.Abs(path)
	if err != nil {
		return "", fmt.Errorf("resolve %s: %w", path, err)
	}
	f.log.Debug("Download complete", map[string]interface{}{"path": abs})
	return abs, nil
}

// extractionErr tags err as an extraction failure unless it already reports
// a missing dependency or a cancelled context.
func extractionErr(op string, err error) error {
	if errors.Is(err, errs.ErrDependencyUnavailable) ||
		errors.Is(err, context.Canceled) ||
		errors.Is(err, errs.ErrExtraction) {
		return fmt.Errorf("%s: %w", op, err)
	}
	return fmt.Errorf("%s: %w: %w", op, errs.ErrExtraction, err)
}
