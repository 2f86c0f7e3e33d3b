package downloader

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/afero"

	"github.com/ytget/audiofetch/internal/logger"
)

const (
	defaultChunkSizeBytes  = 1 << 20 // 1MB
	defaultMaxRetries      = 3       // chunk retries
	temporaryFileSuffix    = ".tmp"  // suffix for temp download
	initialBackoffDuration = 200 * time.Millisecond
	maxBackoffDuration     = 3 * time.Second
	copyBufferSizeBytes    = 32 * 1024 // 32KB

	headerRange          = "Range"
	headerContentRange   = "Content-Range"
	headerContentLength  = "Content-Length"
	headerUserAgent      = "User-Agent"
	headerAccept         = "Accept"
	headerAcceptLanguage = "Accept-Language"
	headerAcceptEncoding = "Accept-Encoding"
	headerConnection     = "Connection"
	headerCacheControl   = "Cache-Control"

	successMinHTTPStatusCode      = 200
	successMaxHTTPStatusExclusive = 300

	userAgentValue = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/135.0.0.0 Safari/537.36"
)

// ErrEmptyDownload is returned when the server delivered no bytes.
var ErrEmptyDownload = errors.New("empty download: 0 bytes written")

// Progress holds information about download progress.
type Progress struct {
	TotalSize      int64
	DownloadedSize int64
	Percent        float64
}

// String renders progress for humans, e.g. "1.2 MB / 4.0 MB (30.0%)".
func (p Progress) String() string {
	if p.TotalSize <= 0 {
		return humanize.Bytes(uint64(p.DownloadedSize))
	}
	return fmt.Sprintf("%s / %s (%.1f%%)",
		humanize.Bytes(uint64(p.DownloadedSize)), humanize.Bytes(uint64(p.TotalSize)), p.Percent)
}

// Downloader is responsible for downloading media files with chunked HTTP
// requests, simple retry/backoff, and optional rate limiting.
type Downloader struct {
	Client       *http.Client
	Fs           afero.Fs
	ProgressFunc func(Progress)

	chunkSize    int64
	maxRetries   int
	rateLimitBps int64
	log          *logger.ComponentLogger
}

// New creates a new downloader instance with sane defaults.
// If client is nil, a default http.Client is used. rateLimitBps=0 disables limiting.
// Files are written to the OS filesystem unless WithFs is used.
func New(client *http.Client, progressFunc func(Progress), rateLimitBps int64) *Downloader {
	if client == nil {
		client = &http.Client{}
	}
	return &Downloader{
		Client:       client,
		Fs:           afero.NewOsFs(),
		ProgressFunc: progressFunc,
		chunkSize:    defaultChunkSizeBytes,
		maxRetries:   defaultMaxRetries,
		rateLimitBps: rateLimitBps,
		log:          logger.WithComponent(logger.ComponentDownloader),
	}
}

// WithFs sets the filesystem downloads are written to.
func (d *Downloader) WithFs(fsys afero.Fs) *Downloader {
	if fsys != nil {
		d.Fs = fsys
	}
	return d
}

func isGoogleVideoHost(rawURL string) bool {
	u, err := url.Parse(rawURL)
	if err != nil {
		return false
	}
	h := strings.ToLower(u.Hostname())
	return strings.HasSuffix(h, ".googlevideo.com") || h == "googlevideo.com"
}

func (d *Downloader) newRequest(ctx context.Context, method, urlStr string) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, method, urlStr, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set(headerUserAgent, userAgentValue)
	req.Header.Set(headerAccept, "*/*")
	req.Header.Set(headerAcceptEncoding, "identity")
	req.Header.Set(headerConnection, "keep-alive")
	req.Header.Set(headerCacheControl, "no-cache")
	if !isGoogleVideoHost(urlStr) {
		req.Header.Set(headerAcceptLanguage, "en-US,en;q=0.9")
	}
	return req, nil
}

// sizeFromHeaders reads the total size from Content-Range, falling back to
// Content-Length only for full (non-206) replies. A partial reply without a
// numeric complete length, e.g. "bytes 0-1/*", leaves the size unknown.
func sizeFromHeaders(status int, h http.Header) (int64, bool) {
	if cr := h.Get(headerContentRange); cr != "" {
		i := strings.LastIndex(cr, "/")
		if i < 0 {
			return 0, false
		}
		v, err := strconv.ParseInt(strings.TrimSpace(cr[i+1:]), 10, 64)
		if err != nil {
			return 0, false
		}
		return v, true
	}
	if status == http.StatusPartialContent {
		return 0, false
	}
	if cl := h.Get(headerContentLength); cl != "" {
		if v, err := strconv.ParseInt(cl, 10, 64); err == nil {
			return v, true
		}
	}
	return 0, false
}

func (d *Downloader) probe(ctx context.Context, method, urlStr string) (int64, error) {
	req, err := d.newRequest(ctx, method, urlStr)
	if err != nil {
		return 0, err
	}
	req.Header.Set(headerRange, "bytes=0-1")
	resp, err := d.Client.Do(req)
	if err != nil {
		return 0, err
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode < successMinHTTPStatusCode || resp.StatusCode >= successMaxHTTPStatusExclusive {
		return 0, fmt.Errorf("%s probe: HTTP status %d", method, resp.StatusCode)
	}
	if v, ok := sizeFromHeaders(resp.StatusCode, resp.Header); ok {
		return v, nil
	}
	return 0, errors.New("cannot determine total size")
}

// detectTotalSize tries HEAD first, then GET range 0-1 to infer total size.
// googlevideo hosts reject HEAD, so they go straight to GET.
func (d *Downloader) detectTotalSize(ctx context.Context, urlStr string) (int64, error) {
	if !isGoogleVideoHost(urlStr) {
		if v, err := d.probe(ctx, http.MethodHead, urlStr); err == nil {
			return v, nil
		}
	}
	return d.probe(ctx, http.MethodGet, urlStr)
}

// sleepForRate enforces simple rate limit based on bytes written in this step.
func (d *Downloader) sleepForRate(ctx context.Context, written int64) error {
	if d.rateLimitBps <= 0 || written <= 0 {
		return nil
	}
	dur := time.Duration(int64(time.Second) * written / d.rateLimitBps)
	if dur <= 0 {
		return nil
	}
	return sleepCtx(ctx, dur)
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// fetchChunk requests bytes [start, end] with retry and backoff.
func (d *Downloader) fetchChunk(ctx context.Context, urlStr string, start, end int64) (*http.Response, error) {
	var lastErr error
	backoff := initialBackoffDuration
	for attempt := 0; attempt < d.maxRetries; attempt++ {
		req, err := d.newRequest(ctx, http.MethodGet, urlStr)
		if err != nil {
			return nil, err
		}
		req.Header.Set(headerRange, fmt.Sprintf("bytes=%d-%d", start, end))

		resp, err := d.Client.Do(req)
		if err == nil && resp.StatusCode >= successMinHTTPStatusCode && resp.StatusCode < successMaxHTTPStatusExclusive {
			return resp, nil
		}
		if err != nil {
			lastErr = err
		} else {
			_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
			_ = resp.Body.Close()
			lastErr = fmt.Errorf("HTTP status %d", resp.StatusCode)
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		d.log.Warn("Chunk request failed", map[string]interface{}{
			"attempt": attempt + 1,
			"start":   start,
			"end":     end,
			"error":   lastErr.Error(),
		})
		if attempt == d.maxRetries-1 {
			break
		}
		if err := sleepCtx(ctx, backoff); err != nil {
			return nil, err
		}
		backoff *= 2
		if backoff > maxBackoffDuration {
			backoff = maxBackoffDuration
		}
	}
	return nil, lastErr
}

// Download downloads a file by URL and saves it to outputPath. It supports
// resuming from an existing temporary file and reports progress per read.
// The file only appears at outputPath once it is complete.
func (d *Downloader) Download(ctx context.Context, urlStr string, outputPath string) error {
	if d.chunkSize <= 0 {
		d.chunkSize = defaultChunkSizeBytes
	}
	if d.maxRetries <= 0 {
		d.maxRetries = defaultMaxRetries
	}
	if d.Fs == nil {
		d.Fs = afero.NewOsFs()
	}

	tmpPath := outputPath + temporaryFileSuffix
	outFile, err := d.Fs.OpenFile(tmpPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("open temp file: %w", err)
	}
	defer func() { _ = outFile.Close() }()

	info, err := outFile.Stat()
	if err != nil {
		return fmt.Errorf("stat temp file: %w", err)
	}
	downloaded := info.Size()

	totalSize, err := d.detectTotalSize(ctx, urlStr)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		d.log.Warn("Could not determine total size", map[string]interface{}{"error": err.Error()})
		totalSize = 0
	}

	restart := func() error {
		if err := outFile.Truncate(0); err != nil {
			return fmt.Errorf("truncate temp file: %w", err)
		}
		if _, err := outFile.Seek(0, io.SeekStart); err != nil {
			return fmt.Errorf("rewind temp file: %w", err)
		}
		downloaded = 0
		return nil
	}
	// Unknown size or a stale temp file larger than the stream: start over.
	if downloaded > 0 && (totalSize == 0 || downloaded > totalSize) {
		if err := restart(); err != nil {
			return err
		}
	}

	d.log.Info("Starting download", map[string]interface{}{
		"path":    outputPath,
		"size":    totalSize,
		"resumed": downloaded,
	})

	buf := make([]byte, copyBufferSizeBytes)
	for totalSize == 0 || downloaded < totalSize {
		start := downloaded
		end := start + d.chunkSize - 1
		if totalSize > 0 && end >= totalSize {
			end = totalSize - 1
		}

		resp, err := d.fetchChunk(ctx, urlStr, start, end)
		if err != nil {
			return fmt.Errorf("download chunk %d-%d: %w", start, end, err)
		}

		// A 200 means the server ignored Range and sends the whole body.
		whole := resp.StatusCode == http.StatusOK
		if whole && start > 0 {
			if err := restart(); err != nil {
				_ = resp.Body.Close()
				return err
			}
		}

		read, err := d.copyBody(ctx, outFile, resp.Body, &downloaded, totalSize, buf)
		_ = resp.Body.Close()
		if err != nil {
			return err
		}

		if whole || read == 0 {
			break
		}
		if totalSize == 0 && read < end-start+1 {
			break
		}
	}

	if totalSize > 0 && downloaded < totalSize {
		return fmt.Errorf("incomplete download: %d of %d bytes", downloaded, totalSize)
	}
	if downloaded == 0 {
		_ = outFile.Close()
		_ = d.Fs.Remove(tmpPath)
		return ErrEmptyDownload
	}
	if err := outFile.Close(); err != nil {
		return fmt.Errorf("close temp file: %w", err)
	}
	if err := d.Fs.Rename(tmpPath, outputPath); err != nil {
		return fmt.Errorf("rename temp file: %w", err)
	}
	d.log.Info("Download complete", map[string]interface{}{"path": outputPath, "bytes": downloaded})
	return nil
}

func (d *Downloader) copyBody(ctx context.Context, w io.Writer, r io.Reader, downloaded *int64, totalSize int64, buf []byte) (int64, error) {
	var read int64
	for {
		n, rerr := r.Read(buf)
		if n > 0 {
			if _, werr := w.Write(buf[:n]); werr != nil {
				return read, fmt.Errorf("write chunk: %w", werr)
			}
			*downloaded += int64(n)
			read += int64(n)
			if d.ProgressFunc != nil {
				p := Progress{TotalSize: totalSize, DownloadedSize: *downloaded}
				if totalSize > 0 {
					p.Percent = float64(*downloaded) / float64(totalSize) * 100
				}
				d.ProgressFunc(p)
			}
			if err := d.sleepForRate(ctx, int64(n)); err != nil {
				return read, err
			}
		}
		if rerr == io.EOF {
			return read, nil
		}
		if rerr != nil {
			return read, fmt.Errorf("read response body: %w", rerr)
		}
	}
}
