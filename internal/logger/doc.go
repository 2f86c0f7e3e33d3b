// Package logger provides component-filtered structured logging for audiofetch,
// backed by logrus.
//
// Usage:
//
//	log := logger.WithComponent(logger.ComponentDownloader)
//	log.Info("Starting download", map[string]interface{}{
//		"url":  "https://example.com/audio.m4a",
//		"size": 1024,
//	})
//
//	cfg := logger.DefaultConfig()
//	cfg.Level = logger.DEBUG
//	cfg.Format = logger.FormatJSON
//	logger.SetGlobalLogger(logger.New(cfg))
//
// Logs are written to stderr by default. The command prints the downloaded
// file path on stdout, and callers parse that stream.
package logger
