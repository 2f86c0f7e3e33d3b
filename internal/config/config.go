// Package config resolves runtime settings from flags, AUDIOFETCH_* environment
// variables, an optional .env file and an optional config file, in that order
// of precedence.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/joho/godotenv"
	"github.com/spf13/afero"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/ytget/audiofetch/internal/botguard"
	"github.com/ytget/audiofetch/internal/ffmpeg"
	"github.com/ytget/audiofetch/internal/logger"
	"github.com/ytget/audiofetch/pkg/client"
)

// EnvPrefix prefixes every environment variable, e.g. AUDIOFETCH_HTTP_TIMEOUT.
const EnvPrefix = "AUDIOFETCH"

// ConfigName is the config file base name looked up without --config.
const ConfigName = "audiofetch"

// Backends.
const (
	BackendNative = "native"
	BackendYtDlp  = "yt-dlp"
)

// Keys.
const (
	KeyBackend        = "backend"
	KeyYtDlpPath      = "ytdlp.path"
	KeyCookies        = "cookies"
	KeyHTTPTimeout    = "http.timeout"
	KeyHTTPRetries    = "http.retries"
	KeyHTTPProxy      = "http.proxy"
	KeyHTTPUserAgent  = "http.user_agent"
	KeyRateLimit      = "download.rate_limit"
	KeyProgress       = "download.progress"
	KeyITClient       = "innertube.client"
	KeyITVersion      = "innertube.version"
	KeyBotguardMode   = "botguard.mode"
	KeyBotguardScript = "botguard.script"
	KeyBotguardCache  = "botguard.cache"
	KeyBotguardTTL    = "botguard.ttl"
	KeyLogLevel       = "log.level"
	KeyLogFormat      = "log.format"
	KeyLogOutput      = "log.output"
	KeyLogComponents  = "log.components"
	KeyFFmpegPath     = "ffmpeg.path"
	KeyMP3Bitrate     = "mp3.bitrate"
	KeyMP3TrimStart   = "mp3.trim_start"
	KeyMP3TrimEnd     = "mp3.trim_end"
	KeyMP3Normalize   = "mp3.normalize"
	KeyMP3Title       = "mp3.title"
	KeyMP3Artist      = "mp3.artist"
)

// EnvKeyReplacer maps config keys to environment variable names.
var EnvKeyReplacer = strings.NewReplacer(".", "_", "-", "_")

// Default holds the value of every key when nothing else sets it.
var Default = map[string]any{
	KeyBackend:        BackendNative,
	KeyYtDlpPath:      "",
	KeyCookies:        "",
	KeyHTTPTimeout:    30 * time.Second,
	KeyHTTPRetries:    3,
	KeyHTTPProxy:      "",
	KeyHTTPUserAgent:  "",
	KeyRateLimit:      "",
	KeyProgress:       false,
	KeyITClient:       "",
	KeyITVersion:      "",
	KeyBotguardMode:   "off",
	KeyBotguardScript: "",
	KeyBotguardCache:  "",
	KeyBotguardTTL:    30 * time.Minute,
	KeyLogLevel:       "warn",
	KeyLogFormat:      "text",
	KeyLogOutput:      "stderr",
	KeyLogComponents:  "",
	KeyFFmpegPath:     "",
	KeyMP3Bitrate:     0,
	KeyMP3TrimStart:   "",
	KeyMP3TrimEnd:     "",
	KeyMP3Normalize:   false,
	KeyMP3Title:       "",
	KeyMP3Artist:      "",
}

// FlagKeys maps command line flag names to config keys.
var FlagKeys = map[string]string{
	"backend":         KeyBackend,
	"ytdlp-path":      KeyYtDlpPath,
	"cookies":         KeyCookies,
	"http-timeout":    KeyHTTPTimeout,
	"retries":         KeyHTTPRetries,
	"proxy":           KeyHTTPProxy,
	"ua":              KeyHTTPUserAgent,
	"rate-limit":      KeyRateLimit,
	"progress":        KeyProgress,
	"it-client":       KeyITClient,
	"it-version":      KeyITVersion,
	"botguard":        KeyBotguardMode,
	"botguard-script": KeyBotguardScript,
	"botguard-cache":  KeyBotguardCache,
	"botguard-ttl":    KeyBotguardTTL,
	"log-level":       KeyLogLevel,
	"log-format":      KeyLogFormat,
	"log-output":      KeyLogOutput,
	"log-components":  KeyLogComponents,
	"ffmpeg-path":     KeyFFmpegPath,
	"mp3-bitrate":     KeyMP3Bitrate,
	"trim-start":      KeyMP3TrimStart,
	"trim-end":        KeyMP3TrimEnd,
	"normalize":       KeyMP3Normalize,
	"title":           KeyMP3Title,
	"artist":          KeyMP3Artist,
}

// Config is the resolved runtime configuration.
type Config struct {
	Backend   string
	YtDlpPath string
	Cookies   string

	HTTPTimeout   time.Duration
	HTTPRetries   int
	HTTPProxy     string
	HTTPUserAgent string

	RateLimitBps int64
	Progress     bool

	ITClient  string
	ITVersion string

	BotguardMode   botguard.Mode
	BotguardScript string
	BotguardCache  string
	BotguardTTL    time.Duration

	// FFmpegPath is tried before the default ffmpeg locations.
	FFmpegPath string
	// MP3 configures the optional MP3 stage; disabled with a zero bitrate.
	MP3 ffmpeg.Options

	Log logger.LogConfig
}

// New returns a viper instance with defaults and environment bindings.
// Files are read through fsys.
func New(fsys afero.Fs) *viper.Viper {
	v := viper.New()
	if fsys != nil {
		v.SetFs(fsys)
	}
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(EnvKeyReplacer)
	v.AutomaticEnv()
	for key, value := range Default {
		v.SetDefault(key, value)
	}
	return v
}

// BindFlags binds every known flag present in flags to its key.
func BindFlags(v *viper.Viper, flags *pflag.FlagSet) error {
	for name, key := range FlagKeys {
		f := flags.Lookup(name)
		if f == nil {
			continue
		}
		if err := v.BindPFlag(key, f); err != nil {
			return fmt.Errorf("bind flag %s: %w", name, err)
		}
	}
	return nil
}

// LoadDotEnv exports the variables of a .env file that are not already set.
// A missing file is not an error.
func LoadDotEnv(fsys afero.Fs, path string) error {
	f, err := fsys.Open(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return err
	}
	defer f.Close()

	vars, err := godotenv.Parse(f)
	if err != nil {
		return fmt.Errorf("parse %s: %w", path, err)
	}
	for k, val := range vars {
		if _, set := os.LookupEnv(k); set {
			continue
		}
		if err := os.Setenv(k, val); err != nil {
			return err
		}
	}
	return nil
}

// ReadFile reads configFile, or looks for audiofetch.{yaml,json,toml} in the
// working directory and the user config directory when it is empty. Only an
// explicitly named file is required to exist.
func ReadFile(v *viper.Viper, configFile string) error {
	if configFile != "" {
		v.SetConfigFile(configFile)
		if err := v.ReadInConfig(); err != nil {
			return fmt.Errorf("read config %s: %w", configFile, err)
		}
		return nil
	}

	v.SetConfigName(ConfigName)
	v.AddConfigPath(".")
	if dir, err := os.UserConfigDir(); err == nil {
		v.AddConfigPath(filepath.Join(dir, ConfigName))
	}
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if errors.As(err, &notFound) {
			return nil
		}
		return fmt.Errorf("read config: %w", err)
	}
	return nil
}

// ParseRateLimit parses sizes like "2MiB/s", "500k" or "1048576" into bytes
// per second. Empty and "0" disable limiting.
func ParseRateLimit(s string) (int64, error) {
	s = strings.TrimSpace(s)
	s = strings.TrimSuffix(strings.TrimSuffix(s, "/s"), "ps")
	if s == "" || s == "0" {
		return 0, nil
	}
	n, err := humanize.ParseBytes(s)
	if err != nil {
		return 0, fmt.Errorf("invalid rate limit %q: %w", s, err)
	}
	return int64(n), nil
}

// Load resolves v into a validated Config.
func Load(v *viper.Viper) (*Config, error) {
	backend := strings.ToLower(strings.TrimSpace(v.GetString(KeyBackend)))
	switch backend {
	case BackendNative, BackendYtDlp:
	case "ytdlp":
		backend = BackendYtDlp
	default:
		return nil, fmt.Errorf("unknown backend %q (want %s or %s)", backend, BackendNative, BackendYtDlp)
	}

	rate, err := ParseRateLimit(v.GetString(KeyRateLimit))
	if err != nil {
		return nil, err
	}
	mode, err := botguard.ParseMode(v.GetString(KeyBotguardMode))
	if err != nil {
		return nil, err
	}
	if retries := v.GetInt(KeyHTTPRetries); retries < 0 {
		return nil, fmt.Errorf("retries must not be negative, got %d", retries)
	}
	proxy := strings.TrimSpace(v.GetString(KeyHTTPProxy))
	if proxy != "" {
		if _, err := client.ParseProxyURL(proxy); err != nil {
			return nil, err
		}
	}
	mp3 := ffmpeg.Options{
		Bitrate:   v.GetInt(KeyMP3Bitrate),
		TrimStart: strings.TrimSpace(v.GetString(KeyMP3TrimStart)),
		TrimEnd:   strings.TrimSpace(v.GetString(KeyMP3TrimEnd)),
		Normalize: v.GetBool(KeyMP3Normalize),
		Title:     strings.TrimSpace(v.GetString(KeyMP3Title)),
		Artist:    strings.TrimSpace(v.GetString(KeyMP3Artist)),
	}
	if err := mp3.Validate(); err != nil {
		return nil, err
	}

	logCfg := logger.DefaultLogConfig()
	logCfg.Level = v.GetString(KeyLogLevel)
	logCfg.Format = v.GetString(KeyLogFormat)
	logCfg.Output = v.GetString(KeyLogOutput)
	for name, on := range logger.ParseComponents(v.GetString(KeyLogComponents)) {
		logCfg.Components[name] = on
	}

	return &Config{
		Backend:        backend,
		YtDlpPath:      strings.TrimSpace(v.GetString(KeyYtDlpPath)),
		Cookies:        strings.TrimSpace(v.GetString(KeyCookies)),
		HTTPTimeout:    v.GetDuration(KeyHTTPTimeout),
		HTTPRetries:    v.GetInt(KeyHTTPRetries),
		HTTPProxy:      proxy,
		HTTPUserAgent:  strings.TrimSpace(v.GetString(KeyHTTPUserAgent)),
		RateLimitBps:   rate,
		Progress:       v.GetBool(KeyProgress),
		ITClient:       strings.TrimSpace(v.GetString(KeyITClient)),
		ITVersion:      strings.TrimSpace(v.GetString(KeyITVersion)),
		BotguardMode:   mode,
		BotguardScript: strings.TrimSpace(v.GetString(KeyBotguardScript)),
		BotguardCache:  strings.TrimSpace(v.GetString(KeyBotguardCache)),
		BotguardTTL:    v.GetDuration(KeyBotguardTTL),
		FFmpegPath:     strings.TrimSpace(v.GetString(KeyFFmpegPath)),
		MP3:            mp3,
		Log:            *logCfg,
	}, nil
}
