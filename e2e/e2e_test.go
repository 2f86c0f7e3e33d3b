//go:build e2e

package e2e

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/afero"

	"github.com/ytget/audiofetch"
	"github.com/ytget/audiofetch/internal/ytdlpbin"
	"github.com/ytget/audiofetch/youtube"
)

func e2eURL(t *testing.T) string {
	t.Helper()
	if os.Getenv("AUDIOFETCH_E2E") == "" {
		t.Skip("AUDIOFETCH_E2E not set")
	}
	if url := os.Getenv("AUDIOFETCH_E2E_URL"); url != "" {
		return url
	}
	return "https://www.youtube.com/watch?v=dQw4w9WgXcQ"
}

func fetch(t *testing.T, ex audiofetch.Extractor) {
	t.Helper()
	url := e2eURL(t)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	dir := t.TempDir()
	path, err := audiofetch.New().WithExtractor(ex).Fetch(ctx, url, dir, "e2e")
	if err != nil {
		t.Fatalf("fetch failed: %v", err)
	}
	if filepath.Dir(path) != dir {
		t.Errorf("path %s is outside %s", path, dir)
	}
	fi, err := os.Stat(path)
	if err != nil {
		t.Fatal(err)
	}
	if fi.Size() == 0 {
		t.Errorf("%s is empty", path)
	}
}

func TestE2E_Native(t *testing.T) {
	fetch(t, youtube.New().WithFs(afero.NewOsFs()))
}

func TestE2E_YtDlp(t *testing.T) {
	ex := ytdlpbin.New(nil)
	if _, err := ex.Binary(context.Background()); err != nil {
		t.Skipf("yt-dlp not available: %v", err)
	}
	fetch(t, ex)
}
