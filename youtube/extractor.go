// Package youtube is the native extraction service: it lists streams through
// the InnerTube player endpoint and downloads them over ranged HTTP.
package youtube

import (
	"context"
	"fmt"
	"net/url"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/afero"

	"github.com/ytget/audiofetch/downloader"
	"github.com/ytget/audiofetch/internal/botguard"
	"github.com/ytget/audiofetch/internal/logger"
	"github.com/ytget/audiofetch/internal/mimeext"
	"github.com/ytget/audiofetch/internal/sanitize"
	"github.com/ytget/audiofetch/pkg/client"
	"github.com/ytget/audiofetch/types"
	"github.com/ytget/audiofetch/youtube/cipher"
	"github.com/ytget/audiofetch/youtube/formats"
	"github.com/ytget/audiofetch/youtube/innertube"
)

// Options contains configuration for the native extractor.
//
// Use chainable setters on Extractor to populate these options.
type Options struct {
	HTTPClient      *client.Client
	BaseURL         string
	ITClientName    string
	ITClientVersion string
	RateLimitBps    int64
	ProgressFunc    func(downloader.Progress)
}

// Extractor implements stream listing and download against YouTube directly.
type Extractor struct {
	options Options
	fs      afero.Fs
	bg      struct {
		solver botguard.Solver
		mode   botguard.Mode
		cache  botguard.Cache
		ttl    time.Duration
	}

	it     *innertube.Client
	cipher *cipher.Cipher
	log    *logger.ComponentLogger
}

// New creates an Extractor with default options.
func New() *Extractor {
	return &Extractor{
		fs:  afero.NewOsFs(),
		log: logger.WithComponent(logger.ComponentFetcher),
	}
}

// WithHTTPClient sets the HTTP client used for API, page and media requests.
func (e *Extractor) WithHTTPClient(c *client.Client) *Extractor {
	e.options.HTTPClient = c
	e.it, e.cipher = nil, nil
	return e
}

// WithBaseURL points the extractor at another YouTube origin.
func (e *Extractor) WithBaseURL(base string) *Extractor {
	e.options.BaseURL = strings.TrimSpace(base)
	e.it, e.cipher = nil, nil
	return e
}

// WithInnertubeClient sets the Innertube client name and version to use.
func (e *Extractor) WithInnertubeClient(name, version string) *Extractor {
	e.options.ITClientName = strings.TrimSpace(name)
	e.options.ITClientVersion = strings.TrimSpace(version)
	e.it = nil
	return e
}

// WithRateLimit sets a download rate limit in bytes per second. Zero disables limiting.
func (e *Extractor) WithRateLimit(bytesPerSecond int64) *Extractor {
	if bytesPerSecond < 0 {
		bytesPerSecond = 0
	}
	e.options.RateLimitBps = bytesPerSecond
	return e
}

// WithProgress registers a callback that receives download progress updates.
func (e *Extractor) WithProgress(f func(downloader.Progress)) *Extractor {
	e.options.ProgressFunc = f
	return e
}

// WithFs sets the filesystem downloads are written to.
func (e *Extractor) WithFs(fsys afero.Fs) *Extractor {
	if fsys != nil {
		e.fs = fsys
	}
	return e
}

// WithBotguard configures Botguard attestation usage.
func (e *Extractor) WithBotguard(mode botguard.Mode, solver botguard.Solver, cache botguard.Cache) *Extractor {
	e.bg.mode = mode
	e.bg.solver = solver
	e.bg.cache = cache
	e.it = nil
	return e
}

// WithBotguardTTL sets default Botguard TTL when solver does not specify ExpiresAt.
func (e *Extractor) WithBotguardTTL(ttl time.Duration) *Extractor {
	e.bg.ttl = ttl
	e.it = nil
	return e
}

func (e *Extractor) httpClient() *client.Client {
	if e.options.HTTPClient == nil {
		e.options.HTTPClient = client.New()
	}
	return e.options.HTTPClient
}

func (e *Extractor) innertube() *innertube.Client {
	if e.it != nil {
		return e.it
	}
	name := e.options.ITClientName
	ver := e.options.ITClientVersion
	if name == "" {
		name = innertube.DefaultClientName
	}
	if ver == "" && strings.EqualFold(name, innertube.DefaultClientName) {
		ver = innertube.DefaultClientVersion
	}
	e.it = innertube.New(e.httpClient()).
		WithBaseURL(e.options.BaseURL).
		WithClient(name, ver).
		WithBotguard(e.bg.solver, e.bg.mode, e.bg.cache).
		WithBotguardTTL(e.bg.ttl)
	return e.it
}

func (e *Extractor) decipherer() *cipher.Cipher {
	if e.cipher == nil {
		e.cipher = cipher.New(e.httpClient()).WithBaseURL(e.options.BaseURL)
	}
	return e.cipher
}

// Info fetches video metadata and the stream descriptors of rawURL.
func (e *Extractor) Info(ctx context.Context, rawURL string) (*types.VideoInfo, error) {
	videoID, err := innertube.ExtractVideoID(rawURL)
	if err != nil {
		return nil, err
	}
	e.log.Debug("Extracted video ID", map[string]interface{}{"id": videoID})

	pr, err := e.innertube().GetPlayerResponse(ctx, videoID)
	if err != nil {
		return nil, err
	}
	if err := pr.PlayabilityStatus.Err(); err != nil {
		return nil, err
	}

	duration, _ := strconv.Atoi(pr.VideoDetails.LengthSeconds)
	info := &types.VideoInfo{
		ID:       videoID,
		Title:    pr.VideoDetails.Title,
		Duration: duration,
		Uploader: pr.VideoDetails.Author,
		Streams:  formats.ParseStreams(pr),
	}
	e.log.Debug("Video metadata received", map[string]interface{}{
		"title":   info.Title,
		"streams": len(info.Streams),
	})
	return info, nil
}

// Streams returns every stream descriptor reported for rawURL.
func (e *Extractor) Streams(ctx context.Context, rawURL string) ([]types.Stream, error) {
	info, err := e.Info(ctx, rawURL)
	if err != nil {
		return nil, err
	}
	return info.Streams, nil
}

// needsPlayer reports whether resolving s requires player.js.
func needsPlayer(s types.Stream) bool {
	if strings.TrimSpace(s.URL) == "" {
		return true
	}
	u, err := url.Parse(s.URL)
	return err == nil && u.Query().Get("n") != ""
}

// Download resolves the playable URL of s and writes it to
// outDir/baseName.<ext>, the extension following the stream container.
func (e *Extractor) Download(ctx context.Context, rawURL string, s types.Stream, outDir, baseName string) (string, error) {
	var dec formats.Decoder
	if needsPlayer(s) {
		videoID, err := innertube.ExtractVideoID(rawURL)
		if err != nil {
			return "", err
		}
		c := e.decipherer()
		jsURL, err := c.FetchPlayerJS(ctx, videoID)
		switch {
		case err == nil:
			dec = c.Player(jsURL)
		case strings.TrimSpace(s.URL) == "":
			return "", fmt.Errorf("fetch player.js url failed: %w", err)
		default:
			e.log.Warn("player.js unavailable, downloading without n decoding", map[string]interface{}{"error": err.Error()})
		}
	}

	finalURL, err := formats.ResolveStreamURL(ctx, dec, s)
	if err != nil {
		return "", fmt.Errorf("resolve stream url failed: %w", err)
	}

	ext := s.Ext
	if ext == "" {
		ext = mimeext.ExtFromMime(s.MimeType)
	}
	outputPath := filepath.Join(outDir, sanitize.WithExt(baseName, ext))

	e.log.Info("Starting download", map[string]interface{}{
		"itag": s.Itag,
		"abr":  s.AverageBitrate,
		"path": outputPath,
	})
	dl := downloader.New(e.httpClient().HTTPClient, e.options.ProgressFunc, e.options.RateLimitBps).WithFs(e.fs)
	if err := dl.Download(ctx, finalURL, outputPath); err != nil {
		return "", fmt.Errorf("download failed: %w", err)
	}
	return outputPath, nil
}
