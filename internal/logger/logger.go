package logger

import (
	"io"
	"os"
	"sync"

	"github.com/sirupsen/logrus"
)

// Level represents the logging level
type Level = logrus.Level

const (
	TRACE = logrus.TraceLevel
	DEBUG = logrus.DebugLevel
	INFO  = logrus.InfoLevel
	WARN  = logrus.WarnLevel
	ERROR = logrus.ErrorLevel
)

// Component represents the logging component
type Component string

const (
	ComponentApp        Component = "app"
	ComponentFetcher    Component = "fetcher"
	ComponentDownloader Component = "downloader"
	ComponentCipher     Component = "cipher"
	ComponentInnerTube  Component = "innertube"
	ComponentClient     Component = "client"
	ComponentFormat     Component = "format"
	ComponentBotGuard   Component = "botguard"
	ComponentYtDlp      Component = "ytdlp"
	ComponentFFmpeg     Component = "ffmpeg"
)

// Format represents the log output format
type Format int

const (
	FormatText Format = iota
	FormatJSON
	FormatColor
)

// Config holds logger configuration
type Config struct {
	Level      Level
	Format     Format
	Output     io.Writer
	Components map[Component]bool
	Timestamp  bool
}

// DefaultConfig returns default logger configuration.
// Output goes to stderr; stdout is reserved for command results.
func DefaultConfig() *Config {
	return &Config{
		Level:  INFO,
		Format: FormatText,
		Output: os.Stderr,
		Components: map[Component]bool{
			ComponentApp:        true,
			ComponentFetcher:    true,
			ComponentDownloader: false,
			ComponentCipher:     false,
			ComponentInnerTube:  false,
			ComponentClient:     false,
			ComponentFormat:     false,
			ComponentBotGuard:   false,
			ComponentYtDlp:      false,
			ComponentFFmpeg:     false,
		},
	}
}

// Logger provides component-filtered structured logging on top of logrus.
type Logger struct {
	base       *logrus.Logger
	components map[Component]bool
	mu         sync.RWMutex
	closer     io.Closer
}

// New creates a new logger instance
func New(config *Config) *Logger {
	if config == nil {
		config = DefaultConfig()
	}
	base := logrus.New()
	base.SetLevel(config.Level)
	if config.Output != nil {
		base.SetOutput(config.Output)
	}
	base.SetFormatter(formatter(config.Format, config.Timestamp))

	components := make(map[Component]bool, len(config.Components))
	for c, on := range config.Components {
		components[c] = on
	}
	return &Logger{base: base, components: components}
}

func formatter(f Format, timestamp bool) logrus.Formatter {
	switch f {
	case FormatJSON:
		return &logrus.JSONFormatter{
			DisableTimestamp: !timestamp,
			FieldMap:         logrus.FieldMap{logrus.FieldKeyMsg: "message"},
		}
	case FormatColor:
		return &logrus.TextFormatter{ForceColors: true, DisableTimestamp: !timestamp, FullTimestamp: timestamp}
	default:
		return &logrus.TextFormatter{DisableColors: true, DisableTimestamp: !timestamp, FullTimestamp: timestamp}
	}
}

// Close releases the log file opened by CreateLoggerFromConfig, if any.
func (l *Logger) Close() error {
	if l == nil || l.closer == nil {
		return nil
	}
	err := l.closer.Close()
	l.closer = nil
	return err
}

// WithComponent creates a new logger instance for a specific component
func (l *Logger) WithComponent(component Component) *ComponentLogger {
	return &ComponentLogger{
		logger:    l,
		component: component,
	}
}

// SetLevel changes the logging level
func (l *Logger) SetLevel(level Level) {
	l.base.SetLevel(level)
}

// SetFormat changes the log format
func (l *Logger) SetFormat(format Format) {
	l.base.SetFormatter(formatter(format, false))
}

// SetOutput changes the log output
func (l *Logger) SetOutput(w io.Writer) {
	l.base.SetOutput(w)
}

// EnableComponent enables logging for a specific component
func (l *Logger) EnableComponent(component Component) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.components[component] = true
}

// DisableComponent disables logging for a specific component
func (l *Logger) DisableComponent(component Component) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.components[component] = false
}

func (l *Logger) enabled(component Component) bool {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.components[component]
}

func (l *Logger) log(level Level, component Component, message string, fields map[string]interface{}) {
	if !l.base.IsLevelEnabled(level) || !l.enabled(component) {
		return
	}
	entry := l.base.WithField("component", string(component))
	if len(fields) > 0 {
		entry = entry.WithFields(logrus.Fields(fields))
	}
	entry.Log(level, message)
}

// ComponentLogger provides component-specific logging
type ComponentLogger struct {
	logger    *Logger
	component Component
}

// Trace logs a trace message
func (cl *ComponentLogger) Trace(message string, fields ...map[string]interface{}) {
	cl.log(TRACE, message, fields...)
}

// Debug logs a debug message
func (cl *ComponentLogger) Debug(message string, fields ...map[string]interface{}) {
	cl.log(DEBUG, message, fields...)
}

// Info logs an info message
func (cl *ComponentLogger) Info(message string, fields ...map[string]interface{}) {
	cl.log(INFO, message, fields...)
}

// Warn logs a warning message
func (cl *ComponentLogger) Warn(message string, fields ...map[string]interface{}) {
	cl.log(WARN, message, fields...)
}

// Error logs an error message
func (cl *ComponentLogger) Error(message string, fields ...map[string]interface{}) {
	cl.log(ERROR, message, fields...)
}

func (cl *ComponentLogger) log(level Level, message string, fields ...map[string]interface{}) {
	if cl == nil || cl.logger == nil {
		return
	}
	var merged map[string]interface{}
	switch len(fields) {
	case 0:
	case 1:
		merged = fields[0]
	default:
		merged = make(map[string]interface{})
		for _, f := range fields {
			for k, v := range f {
				merged[k] = v
			}
		}
	}
	cl.logger.log(level, cl.component, message, merged)
}

var (
	globalMu     sync.RWMutex
	globalLogger = New(DefaultConfig())
)

// SetGlobalLogger sets the global logger instance
func SetGlobalLogger(logger *Logger) {
	globalMu.Lock()
	globalLogger = logger
	globalMu.Unlock()
}

// GetGlobalLogger returns the global logger instance
func GetGlobalLogger() *Logger {
	globalMu.RLock()
	defer globalMu.RUnlock()
	return globalLogger
}

// WithComponent returns a component logger from global logger
func WithComponent(component Component) *ComponentLogger {
	return GetGlobalLogger().WithComponent(component)
}
