// Package ytdlpbin is an extraction service backed by an installed yt-dlp binary.
package ytdlpbin

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"path/filepath"
	"strings"
	"sync"

	"github.com/ytget/audiofetch/internal/command"
	"github.com/ytget/audiofetch/internal/logger"
	"github.com/ytget/audiofetch/internal/sanitize"
	"github.com/ytget/audiofetch/types"
)

// Extractor lists and downloads streams by driving yt-dlp.
type Extractor struct {
	runner     CommandRunner
	candidates []string
	cookies    string

	once    sync.Once
	path    string
	pathErr error

	log *logger.ComponentLogger
}

// New creates an Extractor. A nil runner uses command.Exec.
func New(runner CommandRunner) *Extractor {
	if runner == nil {
		runner = command.Exec{}
	}
	return &Extractor{
		runner:     runner,
		candidates: DefaultCandidates(""),
		log:        logger.WithComponent(logger.ComponentYtDlp),
	}
}

// WithPath puts an explicit binary path ahead of the default candidates.
func (e *Extractor) WithPath(path string) *Extractor {
	e.candidates = DefaultCandidates(path)
	return e
}

// WithCookies passes a Netscape cookies.txt file to yt-dlp.
func (e *Extractor) WithCookies(path string) *Extractor {
	e.cookies = strings.TrimSpace(path)
	return e
}

// Binary locates yt-dlp once and returns its path.
func (e *Extractor) Binary(ctx context.Context) (string, error) {
	e.once.Do(func() {
		e.path, e.pathErr = Locate(ctx, e.runner, e.candidates...)
	})
	return e.path, e.pathErr
}

func (e *Extractor) run(ctx context.Context, args ...string) ([]byte, error) {
	bin, err := e.Binary(ctx)
	if err != nil {
		return nil, err
	}
	if e.cookies != "" {
		args = append([]string{"--cookies", e.cookies}, args...)
	}
	e.log.Debug("Running yt-dlp", map[string]interface{}{"args": strings.Join(args, " ")})
	return e.runner.Output(ctx, bin, args...)
}

type dumpJSON struct {
	ID       string       `json:"id"`
	Title    string       `json:"title"`
	Duration float64      `json:"duration"`
	Uploader string       `json:"uploader"`
	Formats  []formatJSON `json:"formats"`
}

type formatJSON struct {
	FormatID       string  `json:"format_id"`
	Ext            string  `json:"ext"`
	URL            string  `json:"url"`
	ACodec         string  `json:"acodec"`
	VCodec         string  `json:"vcodec"`
	ABR            float64 `json:"abr"`
	TBR            float64 `json:"tbr"`
	Filesize       int64   `json:"filesize"`
	FilesizeApprox int64   `json:"filesize_approx"`
}

func (f formatJSON) audioOnly() bool {
	return f.VCodec == "none" && f.ACodec != "" && f.ACodec != "none"
}

func (f formatJSON) stream() types.Stream {
	size := f.Filesize
	if size <= 0 {
		size = f.FilesizeApprox
	}
	mime := ""
	if f.Ext != "" {
		kind := "video"
		if f.audioOnly() {
			kind = "audio"
		}
		mime = kind + "/" + f.Ext
	}
	return types.Stream{
		ID:             f.FormatID,
		MimeType:       mime,
		Ext:            f.Ext,
		AudioOnly:      f.audioOnly(),
		AverageBitrate: f.ABR,
		Bitrate:        int(math.Round(f.TBR * 1000)),
		Size:           size,
		URL:            f.URL,
	}
}

// Info runs yt-dlp -J and maps its formats to stream descriptors in reported order.
func (e *Extractor) Info(ctx context.Context, rawURL string) (*types.VideoInfo, error) {
	out, err := e.run(ctx, "-J", "--no-playlist", "--no-warnings", rawURL)
	if err != nil {
		return nil, err
	}
	var dump dumpJSON
	if err := json.Unmarshal(out, &dump); err != nil {
		return nil, fmt.Errorf("yt-dlp: decode -J output: %w", err)
	}

	info := &types.VideoInfo{
		ID:       dump.ID,
		Title:    dump.Title,
		Duration: int(dump.Duration),
		Uploader: dump.Uploader,
		Streams:  make([]types.Stream, 0, len(dump.Formats)),
	}
	for _, f := range dump.Formats {
		info.Streams = append(info.Streams, f.stream())
	}
	e.log.Debug("yt-dlp formats", map[string]interface{}{"total": len(info.Streams), "title": info.Title})
	return info, nil
}

// Streams returns every stream descriptor yt-dlp reports for rawURL.
func (e *Extractor) Streams(ctx context.Context, rawURL string) ([]types.Stream, error) {
	info, err := e.Info(ctx, rawURL)
	if err != nil {
		return nil, err
	}
	return info.Streams, nil
}

// Download fetches format s.ID into outDir/baseName.<ext>; yt-dlp picks the
// extension and prints the final path.
func (e *Extractor) Download(ctx context.Context, rawURL string, s types.Stream, outDir, baseName string) (string, error) {
	// yt-dlp treats % in -o as a template field.
	base := strings.ReplaceAll(sanitize.BaseName(baseName), "%", "%%")
	tmpl := filepath.Join(outDir, base+".%(ext)s")

	out, err := e.run(ctx,
		"--no-playlist", "--no-warnings", "--no-progress",
		"-f", s.ID,
		"-o", tmpl,
		"--print", "after_move:filepath",
		rawURL,
	)
	if err != nil {
		return "", err
	}
	if path := command.LastLine(string(out)); path != "" {
		return path, nil
	}
	return filepath.Join(outDir, sanitize.WithExt(baseName, s.Ext)), nil
}
