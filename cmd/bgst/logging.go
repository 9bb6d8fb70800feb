package main

import (
	"fmt"
	"io"
	"log"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/lmittmann/tint"
	"golang.org/x/term"

	"github.com/sagarc03/bigstash/config"
)

var logCloser io.Closer

// setupLogging installs the default logger. Logs go to stderr so that
// they never mix with command output, or to cfg.File when set.
func setupLogging(cfg config.LogConfig) (io.Closer, error) {
	var (
		out    io.Writer = os.Stderr
		closer io.Closer
		color  = term.IsTerminal(int(os.Stderr.Fd()))
	)

	if cfg.File != "" {
		f, err := os.OpenFile(cfg.File, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o600) //#nosec G304 -- path is user-provided
		if err != nil {
			return nil, fmt.Errorf("open log file: %w", err)
		}
		out, closer, color = f, f, false
	}

	level := parseLevel(cfg.Level)

	var h slog.Handler
	if cfg.Format == "json" {
		h = slog.NewJSONHandler(out, &slog.HandlerOptions{
			Level: level,
			ReplaceAttr: func(groups []string, a slog.Attr) slog.Attr {
				if a.Key == slog.TimeKey {
					return slog.String("ts", a.Value.Time().UTC().Format(time.RFC3339Nano))
				}
				return a
			},
		})
	} else {
		h = tint.NewHandler(out, &tint.Options{
			Level:      level,
			AddSource:  level == slog.LevelDebug,
			TimeFormat: "15:04:05.000",
			NoColor:    !color,
		})
	}

	slog.SetDefault(slog.New(h))

	log.SetFlags(0)
	log.SetOutput(
		slog.NewLogLogger(
			slog.Default().Handler(),
			slog.LevelInfo,
		).Writer(),
	)

	return closer, nil
}

func closeLogging() {
	if logCloser != nil {
		_ = logCloser.Close()
		logCloser = nil
	}
}

func parseLevel(s string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "warn", "warning":
		return slog.LevelWarn
	default:
		return slog.LevelError
	}
}
