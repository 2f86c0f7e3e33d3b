package logger

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/sirupsen/logrus"
)

// LogConfig is the string-typed logging configuration as it arrives from
// flags, environment or a config file.
type LogConfig struct {
	Level      string          `mapstructure:"level"`
	Format     string          `mapstructure:"format"`
	Output     string          `mapstructure:"output"`
	Components map[string]bool `mapstructure:"components"`
	Timestamp  bool            `mapstructure:"timestamp"`
}

// DefaultLogConfig returns default logging configuration
func DefaultLogConfig() *LogConfig {
	components := make(map[string]bool)
	for c, on := range DefaultConfig().Components {
		components[string(c)] = on
	}
	return &LogConfig{
		Level:      "info",
		Format:     "text",
		Output:     "stderr",
		Components: components,
	}
}

// ParseComponents turns a comma separated list into an enable map.
// "all" enables every known component.
func ParseComponents(list string) map[string]bool {
	out := make(map[string]bool)
	for _, comp := range strings.Split(list, ",") {
		comp = strings.ToLower(strings.TrimSpace(comp))
		if comp == "" {
			continue
		}
		if comp == "all" {
			for c := range DefaultConfig().Components {
				out[string(c)] = true
			}
			continue
		}
		out[comp] = true
	}
	return out
}

// ToLoggerConfig converts LogConfig to logger.Config
func (c *LogConfig) ToLoggerConfig() (*Config, error) {
	level, err := parseLevel(c.Level)
	if err != nil {
		return nil, fmt.Errorf("parse level: %w", err)
	}
	format, err := parseFormat(c.Format)
	if err != nil {
		return nil, fmt.Errorf("parse format: %w", err)
	}
	output, err := parseOutput(c.Output)
	if err != nil {
		return nil, fmt.Errorf("parse output: %w", err)
	}

	components := DefaultConfig().Components
	for name, enabled := range c.Components {
		components[Component(name)] = enabled
	}

	return &Config{
		Level:      level,
		Format:     format,
		Output:     output,
		Components: components,
		Timestamp:  c.Timestamp,
	}, nil
}

func parseLevel(levelStr string) (Level, error) {
	if strings.TrimSpace(levelStr) == "" {
		return INFO, nil
	}
	return logrus.ParseLevel(levelStr)
}

func parseFormat(formatStr string) (Format, error) {
	switch strings.ToLower(formatStr) {
	case "", "text":
		return FormatText, nil
	case "json":
		return FormatJSON, nil
	case "color", "colored":
		return FormatColor, nil
	default:
		return FormatText, fmt.Errorf("unknown format: %s", formatStr)
	}
}

// parseOutput resolves "stderr", "null" or a log file path (optionally
// prefixed with "file:"). stdout is refused: it carries the command result.
func parseOutput(outputStr string) (io.Writer, error) {
	switch strings.ToLower(strings.TrimSpace(outputStr)) {
	case "", "stderr":
		return os.Stderr, nil
	case "null", "none":
		return io.Discard, nil
	case "stdout", "-":
		return nil, fmt.Errorf("output %q is reserved for the result path", outputStr)
	}
	filePath, _ := strings.CutPrefix(strings.TrimSpace(outputStr), "file:")
	if filePath == "" {
		return nil, fmt.Errorf("unknown output: %s", outputStr)
	}
	if err := os.MkdirAll(filepath.Dir(filePath), 0o755); err != nil {
		return nil, fmt.Errorf("create log directory: %w", err)
	}
	file, err := os.OpenFile(filePath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open log file: %w", err)
	}
	return file, nil
}

// CreateLoggerFromConfig creates a logger from LogConfig
func CreateLoggerFromConfig(config *LogConfig) (*Logger, error) {
	loggerConfig, err := config.ToLoggerConfig()
	if err != nil {
		return nil, fmt.Errorf("convert config: %w", err)
	}
	l := New(loggerConfig)
	if f, ok := loggerConfig.Output.(*os.File); ok && f != os.Stderr {
		l.closer = f
	}
	return l, nil
}
