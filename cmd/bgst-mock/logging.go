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

	"github.com/sagarc03/bigstash/config"
)

func setupLogging(cfg config.LogConfig) (io.Closer, error) {
	var (
		out    io.Writer = os.Stderr
		closer io.Closer
	)

	if cfg.File != "" {
		f, err := os.OpenFile(cfg.File, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o600) //#nosec G304 -- path is user-provided
		if err != nil {
			return nil, fmt.Errorf("open log file: %w", err)
		}
		out, closer = f, f
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
			NoColor:    closer != nil,
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
