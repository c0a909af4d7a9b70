package config

import (
	"io"
	"log/slog"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/lmittmann/tint"
	"gopkg.in/natefinch/lumberjack.v2"
)

var (
	logFileMu sync.Mutex
	logFile   *lumberjack.Logger
)

// SetupLogging configures the global slog logger based on config. It may be
// called again on reload; the previous log file is closed.
func SetupLogging(cfg LoggingConfig) {
	logFileMu.Lock()
	defer logFileMu.Unlock()

	var (
		w    io.Writer = os.Stdout
		file *lumberjack.Logger
	)
	if cfg.File != "" {
		file = &lumberjack.Logger{
			Filename:   cfg.File,
			MaxSize:    cfg.MaxSizeMB,
			MaxBackups: cfg.MaxBackups,
			Compress:   true,
		}
		w = io.MultiWriter(os.Stdout, file)
	}

	slog.SetDefault(slog.New(NewHandler(cfg, w)))

	if logFile != nil {
		_ = logFile.Close()
	}
	logFile = file
}

// NewHandler builds the slog handler for the given logging settings.
// The text format is colorized unless it is also written to a file.
func NewHandler(cfg LoggingConfig, w io.Writer) slog.Handler {
	level := ParseLevel(cfg.Level)

	if strings.ToLower(cfg.Format) == "text" {
		return tint.NewHandler(w, &tint.Options{
			Level:      level,
			TimeFormat: time.DateTime,
			NoColor:    cfg.File != "",
		})
	}
	return slog.NewJSONHandler(w, &slog.HandlerOptions{Level: level})
}

// ParseLevel maps a level name to a slog level, defaulting to info.
func ParseLevel(name string) slog.Level {
	switch strings.ToLower(name) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
