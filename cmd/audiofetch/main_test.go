package main

import (
	"bytes"
	"context"
	"errors"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"

	"github.com/spf13/afero"

	"github.com/ytget/audiofetch"
	"github.com/ytget/audiofetch/downloader"
	"github.com/ytget/audiofetch/errs"
	"github.com/ytget/audiofetch/internal/botguard"
	"github.com/ytget/audiofetch/internal/config"
	"github.com/ytget/audiofetch/pkg/client"
	"github.com/ytget/audiofetch/types"
	"github.com/ytget/audiofetch/youtube"
)

type stubExtractor struct {
	fs      afero.Fs
	streams []types.Stream
	err     error
}

func (s *stubExtractor) Streams(context.Context, string) ([]types.Stream, error) {
	return s.streams, s.err
}

func (s *stubExtractor) Download(_ context.Context, _ string, st types.Stream, outDir, base string) (string, error) {
	path := filepath.Join(outDir, base+"."+st.Ext)
	return path, afero.WriteFile(s.fs, path, []byte("audio"), 0o644)
}

func testApp(ex *stubExtractor, factoryErr error) (*app, *int) {
	fs := afero.NewMemMapFs()
	ex.fs = fs
	calls := 0
	a := newApp(fs)
	a.newExtractor = func(context.Context, *config.Config, io.Writer) (audiofetch.Extractor, error) {
		calls++
		if factoryErr != nil {
			return nil, factoryErr
		}
		return ex, nil
	}
	return a, &calls
}

func runCmd(t *testing.T, a *app, args ...string) (code int, stdout, stderr string) {
	t.Helper()
	var out, errOut bytes.Buffer
	code = run(context.Background(), args, &out, &errOut, a)
	return code, out.String(), errOut.String()
}

var mixedStreams = []types.Stream{
	{ID: "18", AudioOnly: false, AverageBitrate: 160, Ext: "mp4"},
	{ID: "140", AudioOnly: true, AverageBitrate: 128, Ext: "m4a"},
	{ID: "251", AudioOnly: true, AverageBitrate: 256, Ext: "webm"},
}

func TestRun_Success(t *testing.T) {
	a, _ := testApp(&stubExtractor{streams: mixedStreams}, nil)
	code, stdout, _ := runCmd(t, a, "https://youtu.be/dQw4w9WgXcQ", "/music", "track")
	if code != errs.ExitOK {
		t.Fatalf("exit code = %d, want 0", code)
	}
	if stdout != "/music/track.webm\n" {
		t.Errorf("stdout = %q, want the path as the only line", stdout)
	}
}

func TestRun_MissingArguments(t *testing.T) {
	tests := []struct {
		name string
		args []string
	}{
		{"none", nil},
		{"one", []string{"https://youtu.be/x"}},
		{"two", []string{"https://youtu.be/x", "/music"}},
		{"blank", []string{"https://youtu.be/x", "/music", " "}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a, calls := testApp(&stubExtractor{streams: mixedStreams}, nil)
			code, stdout, stderr := runCmd(t, a, tt.args...)
			if code != errs.ExitUsage {
				t.Errorf("exit code = %d, want %d", code, errs.ExitUsage)
			}
			if stdout != "" {
				t.Errorf("stdout = %q, want empty", stdout)
			}
			if !strings.Contains(stderr, "Usage:") {
				t.Errorf("stderr lacks usage: %q", stderr)
			}
			if *calls != 0 {
				t.Errorf("extractor built %d times, want 0", *calls)
			}
		})
	}
}

func TestRun_NoAudioStream(t *testing.T) {
	a, _ := testApp(&stubExtractor{streams: mixedStreams[:1]}, nil)
	code, stdout, stderr := runCmd(t, a, "https://youtu.be/x", "/music", "track")
	if code != errs.ExitNoAudio {
		t.Fatalf("exit code = %d, want %d", code, errs.ExitNoAudio)
	}
	if stdout != "" {
		t.Errorf("stdout = %q, want empty", stdout)
	}
	if !strings.Contains(stderr, errs.ErrNoAudioStream.Error()) {
		t.Errorf("stderr = %q", stderr)
	}
	if ok, _ := afero.Exists(a.fs, "/music/track.webm"); ok {
		t.Error("file written without an audio stream")
	}
}

func TestRun_Failures(t *testing.T) {
	tests := []struct {
		name       string
		ex         *stubExtractor
		factoryErr error
		args       []string
		want       int
	}{
		{
			name:       "dependency unavailable",
			ex:         &stubExtractor{},
			factoryErr: errs.ErrDependencyUnavailable,
			want:       errs.ExitFailure,
		},
		{
			name: "extraction failure",
			ex:   &stubExtractor{err: errors.New("http 500")},
			want: errs.ExitFailure,
		},
		{
			name: "unknown flag",
			ex:   &stubExtractor{streams: mixedStreams},
			args: []string{"--bogus"},
			want: errs.ExitUsage,
		},
		{
			name: "bad backend",
			ex:   &stubExtractor{streams: mixedStreams},
			args: []string{"--backend=ffmpeg"},
			want: errs.ExitUsage,
		},
		{
			name: "bad rate limit",
			ex:   &stubExtractor{streams: mixedStreams},
			args: []string{"--rate-limit=quick"},
			want: errs.ExitUsage,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a, _ := testApp(tt.ex, tt.factoryErr)
			args := append(tt.args, "https://youtu.be/x", "/music", "track")
			code, stdout, _ := runCmd(t, a, args...)
			if code != tt.want {
				t.Errorf("exit code = %d, want %d", code, tt.want)
			}
			if stdout != "" {
				t.Errorf("stdout = %q, want empty", stdout)
			}
		})
	}
}

func TestRun_ExtraArgumentsIgnored(t *testing.T) {
	a, _ := testApp(&stubExtractor{streams: mixedStreams}, nil)
	code, stdout, _ := runCmd(t, a, "https://youtu.be/x", "/music", "track", "extra")
	if code != errs.ExitOK {
		t.Fatalf("exit code = %d, want 0", code)
	}
	if stdout != "/music/track.webm\n" {
		t.Errorf("stdout = %q", stdout)
	}
}

// fakeFFmpeg answers version checks when installed and writes the output
// file (the last argument) of every encode into fs.
type fakeFFmpeg struct {
	fs        afero.Fs
	installed bool
	encodes   int
}

func (f *fakeFFmpeg) Output(_ context.Context, _ string, args ...string) ([]byte, error) {
	if !f.installed {
		return nil, exec.ErrNotFound
	}
	if len(args) == 1 && args[0] == "-version" {
		return []byte("ffmpeg version 6.1\n"), nil
	}
	f.encodes++
	return nil, afero.WriteFile(f.fs, args[len(args)-1], []byte("ID3"), 0o644)
}

func TestRun_MP3(t *testing.T) {
	tests := []struct {
		name        string
		installed   bool
		args        []string
		want        int
		wantStdout  string
		wantEncodes int
	}{
		{
			name:        "converted",
			installed:   true,
			args:        []string{"--mp3-bitrate=192", "--normalize", "--title=Song"},
			want:        errs.ExitOK,
			wantStdout:  "/music/track.mp3\n",
			wantEncodes: 1,
		},
		{
			name:       "ffmpeg missing keeps container",
			args:       []string{"--mp3-bitrate=192"},
			want:       errs.ExitOK,
			wantStdout: "/music/track.webm\n",
		},
		{
			name:       "disabled by default",
			installed:  true,
			want:       errs.ExitOK,
			wantStdout: "/music/track.webm\n",
		},
		{
			name:      "bitrate out of range",
			installed: true,
			args:      []string{"--mp3-bitrate=500"},
			want:      errs.ExitUsage,
		},
		{
			name:      "trim without bitrate",
			installed: true,
			args:      []string{"--trim-start=10"},
			want:      errs.ExitUsage,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a, _ := testApp(&stubExtractor{streams: mixedStreams}, nil)
			ff := &fakeFFmpeg{fs: a.fs, installed: tt.installed}
			a.runner = ff

			args := append(tt.args, "https://youtu.be/x", "/music", "track")
			code, stdout, stderr := runCmd(t, a, args...)
			if code != tt.want {
				t.Fatalf("exit code = %d, want %d (stderr %q)", code, tt.want, stderr)
			}
			if stdout != tt.wantStdout {
				t.Errorf("stdout = %q, want %q", stdout, tt.wantStdout)
			}
			if ff.encodes != tt.wantEncodes {
				t.Errorf("encodes = %d, want %d", ff.encodes, tt.wantEncodes)
			}
			if tt.wantStdout != "" {
				if ok, _ := afero.Exists(a.fs, strings.TrimSpace(tt.wantStdout)); !ok {
					t.Errorf("%s missing", strings.TrimSpace(tt.wantStdout))
				}
			}
		})
	}
}

func TestRun_InvalidProxy(t *testing.T) {
	a, calls := testApp(&stubExtractor{streams: mixedStreams}, nil)
	code, stdout, stderr := runCmd(t, a, "--proxy=proxy.example.com:8080", "https://youtu.be/x", "/music", "track")
	if code != errs.ExitUsage {
		t.Fatalf("exit code = %d, want %d", code, errs.ExitUsage)
	}
	if stdout != "" {
		t.Errorf("stdout = %q, want empty", stdout)
	}
	if !strings.Contains(stderr, "proxy") {
		t.Errorf("stderr = %q", stderr)
	}
	if *calls != 0 {
		t.Errorf("extractor built %d times, want 0", *calls)
	}
}

func TestRun_LogOutput(t *testing.T) {
	t.Run("stdout refused", func(t *testing.T) {
		a, calls := testApp(&stubExtractor{streams: mixedStreams}, nil)
		code, stdout, _ := runCmd(t, a, "--log-output=stdout", "--log-level=debug", "https://youtu.be/x", "/music", "track")
		if code != errs.ExitUsage {
			t.Fatalf("exit code = %d, want %d", code, errs.ExitUsage)
		}
		if stdout != "" {
			t.Errorf("stdout = %q, want empty", stdout)
		}
		if *calls != 0 {
			t.Errorf("extractor built %d times, want 0", *calls)
		}
	})

	t.Run("file path", func(t *testing.T) {
		logFile := filepath.Join(t.TempDir(), "af.log")
		a, _ := testApp(&stubExtractor{streams: mixedStreams}, nil)
		code, stdout, stderr := runCmd(t, a, "--log-output="+logFile, "--log-level=info", "https://youtu.be/x", "/music", "track")
		if code != errs.ExitOK {
			t.Fatalf("exit code = %d, want 0 (stderr %q)", code, stderr)
		}
		if stdout != "/music/track.webm\n" {
			t.Errorf("stdout = %q, want the path as the only line", stdout)
		}
		data, err := os.ReadFile(logFile)
		if err != nil {
			t.Fatal(err)
		}
		if !strings.Contains(string(data), "Selected audio stream") {
			t.Errorf("log file = %q", data)
		}
		if strings.Contains(stderr, "Selected audio stream") {
			t.Errorf("log line leaked to stderr: %q", stderr)
		}
	})
}

func TestBuildExtractor(t *testing.T) {
	fs := afero.NewMemMapFs()
	a := newApp(fs)
	base := config.Config{Backend: config.BackendNative, HTTPRetries: 1}

	ex, err := a.buildExtractor(context.Background(), &base, io.Discard)
	if err != nil {
		t.Fatalf("native: %v", err)
	}
	if _, ok := ex.(*youtube.Extractor); !ok {
		t.Errorf("native backend built %T", ex)
	}

	withBotguard := base
	withBotguard.BotguardMode = botguard.Auto
	if _, err := a.buildExtractor(context.Background(), &withBotguard, io.Discard); !errors.Is(err, errs.ErrInvalidUsage) {
		t.Errorf("botguard without script: err = %v, want ErrInvalidUsage", err)
	}

	withBotguard.BotguardScript = "/bg.js"
	withBotguard.BotguardCache = "/cache"
	if _, err := a.buildExtractor(context.Background(), &withBotguard, io.Discard); err != nil {
		t.Errorf("botguard with script: %v", err)
	}

	withCookies := base
	withCookies.Cookies = "/missing-cookies.txt"
	if _, err := a.buildExtractor(context.Background(), &withCookies, io.Discard); err == nil {
		t.Error("missing cookies file: expected error")
	}
}

func TestClientConfig_Retries(t *testing.T) {
	tests := []struct {
		retries int
		want    int
	}{
		{retries: 0, want: 1},
		{retries: 1, want: 1},
		{retries: 4, want: 4},
	}
	for _, tt := range tests {
		cc := clientConfig(&config.Config{HTTPRetries: tt.retries, HTTPProxy: "socks5://127.0.0.1:1080"})
		if cc.ProxyURL != "socks5://127.0.0.1:1080" {
			t.Errorf("ProxyURL = %q", cc.ProxyURL)
		}
		if got := client.NewWith(cc).Retries; got != tt.want {
			t.Errorf("--retries %d: attempts = %d, want %d", tt.retries, got, tt.want)
		}
	}
}

func TestProgressPrinter(t *testing.T) {
	var buf bytes.Buffer
	p := progressPrinter(&buf)
	p(downloader.Progress{TotalSize: 2000, DownloadedSize: 1000, Percent: 50})
	p(downloader.Progress{TotalSize: 2000, DownloadedSize: 2000, Percent: 100})

	got := buf.String()
	if !strings.HasPrefix(got, "\rDownloading 1.0 kB / 2.0 kB (50.0%)") {
		t.Errorf("progress = %q", got)
	}
	if !strings.HasSuffix(got, "(100.0%)\n") {
		t.Errorf("final progress line not terminated: %q", got)
	}
}
