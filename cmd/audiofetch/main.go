// Command audiofetch downloads the best audio-only stream of a video URL and
// prints the absolute path of the written file.
//
//	audiofetch [flags] <url> <outDir> <outBaseName>
//
// Exit codes: 0 success, 1 failure, 2 usage error, 3 no audio-only stream.
package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/samber/lo"
	"github.com/spf13/afero"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/ytget/audiofetch"
	"github.com/ytget/audiofetch/downloader"
	"github.com/ytget/audiofetch/errs"
	"github.com/ytget/audiofetch/internal/botguard"
	"github.com/ytget/audiofetch/internal/command"
	"github.com/ytget/audiofetch/internal/config"
	"github.com/ytget/audiofetch/internal/ffmpeg"
	"github.com/ytget/audiofetch/internal/logger"
	"github.com/ytget/audiofetch/internal/ytdlpbin"
	"github.com/ytget/audiofetch/pkg/client"
	"github.com/ytget/audiofetch/youtube"
)

const usageLine = "audiofetch [flags] <url> <outDir> <outBaseName>"

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := run(ctx, os.Args[1:], os.Stdout, os.Stderr, newApp(afero.NewOsFs()))
	stop()
	os.Exit(code)
}

// app carries what the command needs from the outside world.
type app struct {
	fs           afero.Fs
	v            *viper.Viper
	runner       command.Runner
	newExtractor func(ctx context.Context, cfg *config.Config, stderr io.Writer) (audiofetch.Extractor, error)
}

func newApp(fsys afero.Fs) *app {
	a := &app{fs: fsys, v: config.New(fsys), runner: command.Exec{}}
	a.newExtractor = a.buildExtractor
	return a
}

// run executes the command and returns the process exit code.
func run(ctx context.Context, args []string, stdout, stderr io.Writer, a *app) int {
	cmd := a.rootCmd(stdout, stderr)
	if args == nil {
		args = []string{}
	}
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(ctx)
	if err == nil {
		return errs.ExitOK
	}

	code := errs.ExitCode(err)
	_, _ = fmt.Fprintf(stderr, "Error: %v\n", err)
	if code == errs.ExitUsage {
		_, _ = fmt.Fprint(stderr, cmd.UsageString())
	}
	return code
}

func (a *app) rootCmd(stdout, stderr io.Writer) *cobra.Command {
	var configFile string

	cmd := &cobra.Command{
		Use:   usageLine,
		Short: "Download the best audio-only stream of a video",
		Long: `Downloads the audio-only stream with the highest average bitrate of a video
URL to <outDir>/<outBaseName>.<ext> and prints the absolute path of the file.

With --mp3-bitrate the file is re-encoded by ffmpeg to <outBaseName>.mp3;
when ffmpeg is not installed the downloaded file is kept.

Every flag can also be set with an AUDIOFETCH_* environment variable
(e.g. AUDIOFETCH_HTTP_TIMEOUT=1m), a .env file in the working directory or
a config file.`,
		Args:          validateArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := a.loadConfig(configFile)
			if err != nil {
				return err
			}
			log, err := logger.CreateLoggerFromConfig(&cfg.Log)
			if err != nil {
				return fmt.Errorf("%w: %w", errs.ErrInvalidUsage, err)
			}
			prev := logger.GetGlobalLogger()
			logger.SetGlobalLogger(log)
			defer func() {
				logger.SetGlobalLogger(prev)
				_ = log.Close()
			}()
			if len(args) > 3 {
				log.WithComponent(logger.ComponentApp).Warn("Ignoring extra arguments", map[string]interface{}{
					"args": args[3:],
				})
			}

			ex, err := a.newExtractor(cmd.Context(), cfg, stderr)
			if err != nil {
				return err
			}
			f := audiofetch.New().
				WithExtractor(ex).
				WithFs(a.fs).
				WithLogger(log)
			if cfg.MP3.Enabled() {
				f.WithPostProcessor(ffmpeg.New(a.runner).
					WithPath(cfg.FFmpegPath).
					WithFs(a.fs).
					WithOptions(cfg.MP3))
			}
			path, err := f.Fetch(cmd.Context(), args[0], args[1], args[2])
			if err != nil {
				return err
			}
			_, err = fmt.Fprintln(stdout, path)
			return err
		},
	}
	cmd.SetOut(stderr)
	cmd.SetErr(stderr)
	cmd.SetFlagErrorFunc(func(_ *cobra.Command, err error) error {
		return fmt.Errorf("%w: %w", errs.ErrInvalidUsage, err)
	})

	flags := cmd.Flags()
	flags.StringVar(&configFile, "config", "", "config file (default ./audiofetch.yaml or <user config dir>/audiofetch/audiofetch.yaml)")
	flags.String("backend", config.BackendNative, "extraction backend: native or yt-dlp")
	flags.String("ytdlp-path", "", "yt-dlp binary to try first (yt-dlp backend)")
	flags.String("cookies", "", "Netscape cookies.txt file")
	flags.Duration("http-timeout", config.Default[config.KeyHTTPTimeout].(time.Duration), "HTTP timeout")
	flags.Int("retries", config.Default[config.KeyHTTPRetries].(int), "HTTP retries for transient errors")
	flags.String("proxy", "", "proxy URL (http, https or socks5)")
	flags.String("ua", "", "override the User-Agent header")
	flags.String("rate-limit", "", "download rate limit, e.g. 2MiB/s or 500KiB/s")
	flags.Bool("progress", false, "print download progress to stderr")
	flags.String("it-client", "", "Innertube client name (default ANDROID)")
	flags.String("it-version", "", "Innertube client version")
	flags.String("botguard", "off", "Botguard attestation: off, auto or force")
	flags.String("botguard-script", "", "JS file defining bgAttest(input)")
	flags.String("botguard-cache", "", "directory for cached Botguard tokens (in memory when empty)")
	flags.Duration("botguard-ttl", config.Default[config.KeyBotguardTTL].(time.Duration), "token lifetime when the solver reports none")
	flags.String("log-level", "warn", "log level: debug, info, warn or error")
	flags.String("log-format", "text", "log format: text, json or color")
	flags.String("log-output", "stderr", "log output: stderr, null or a file path")
	flags.String("log-components", "", "comma separated components to log, or all")
	flags.Int("mp3-bitrate", 0, "re-encode to constant bitrate MP3 at this many kbps (64-320, 0 keeps the container)")
	flags.String("trim-start", "", "MP3 start position, SS, MM:SS or HH:MM:SS")
	flags.String("trim-end", "", "MP3 end position, SS, MM:SS or HH:MM:SS")
	flags.Bool("normalize", false, "normalise MP3 loudness with dynaudnorm")
	flags.String("title", "", "ID3 title tag")
	flags.String("artist", "", "ID3 artist tag")
	flags.String("ffmpeg-path", "", "ffmpeg binary to try first")

	lo.Must0(config.BindFlags(a.v, flags))
	return cmd
}

func validateArgs(_ *cobra.Command, args []string) error {
	if len(args) < 3 {
		return fmt.Errorf("%w: want <url> <outDir> <outBaseName>, got %d argument(s)", errs.ErrMissingArguments, len(args))
	}
	if lo.SomeBy(args[:3], func(s string) bool { return strings.TrimSpace(s) == "" }) {
		return fmt.Errorf("%w: arguments must not be empty", errs.ErrMissingArguments)
	}
	return nil
}

func (a *app) loadConfig(configFile string) (*config.Config, error) {
	if err := config.LoadDotEnv(a.fs, ".env"); err != nil {
		return nil, err
	}
	if err := config.ReadFile(a.v, configFile); err != nil {
		return nil, err
	}
	cfg, err := config.Load(a.v)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", errs.ErrInvalidUsage, err)
	}
	return cfg, nil
}

func (a *app) buildExtractor(ctx context.Context, cfg *config.Config, stderr io.Writer) (audiofetch.Extractor, error) {
	if cfg.Backend == config.BackendYtDlp {
		ex := ytdlpbin.New(a.runner).WithPath(cfg.YtDlpPath).WithCookies(cfg.Cookies)
		if _, err := ex.Binary(ctx); err != nil {
			return nil, err
		}
		return ex, nil
	}

	clientCfg := clientConfig(cfg)
	if cfg.Cookies != "" {
		jar, err := client.LoadCookieJar(a.fs, cfg.Cookies)
		if err != nil {
			return nil, err
		}
		clientCfg.Jar = jar
	}

	ex := youtube.New().
		WithHTTPClient(client.NewWith(clientCfg)).
		WithInnertubeClient(cfg.ITClient, cfg.ITVersion).
		WithRateLimit(cfg.RateLimitBps).
		WithFs(a.fs)
	if cfg.Progress {
		ex.WithProgress(progressPrinter(stderr))
	}
	if cfg.BotguardMode != botguard.Off {
		if cfg.BotguardScript == "" {
			return nil, fmt.Errorf("%w: --botguard %s needs --botguard-script", errs.ErrInvalidUsage, cfg.BotguardMode)
		}
		var cache botguard.Cache = botguard.NewMemoryCache()
		if cfg.BotguardCache != "" {
			fc, err := botguard.NewFileCache(a.fs, cfg.BotguardCache)
			if err != nil {
				return nil, err
			}
			cache = fc
		}
		ex.WithBotguard(cfg.BotguardMode, botguard.NewGojaSolver(a.fs, cfg.BotguardScript), cache).
			WithBotguardTTL(cfg.BotguardTTL)
	}
	return ex, nil
}

// clientConfig maps the HTTP settings; --retries 0 means a single attempt.
func clientConfig(cfg *config.Config) client.Config {
	cc := client.Config{
		Timeout:   cfg.HTTPTimeout,
		Retries:   cfg.HTTPRetries,
		UserAgent: cfg.HTTPUserAgent,
		ProxyURL:  cfg.HTTPProxy,
	}
	if cc.Retries == 0 {
		cc.Retries = client.NoRetries
	}
	return cc
}

// progressPrinter rewrites a single stderr line; stdout stays reserved for the result.
func progressPrinter(w io.Writer) func(downloader.Progress) {
	return func(p downloader.Progress) {
		_, _ = fmt.Fprintf(w, "\rDownloading %s", p)
		if p.TotalSize > 0 && p.DownloadedSize >= p.TotalSize {
			_, _ = fmt.Fprintln(w)
		}
	}
}
