// Package logging monta o *slog.Logger dos binários a partir de LOG_LEVEL e
// LOG_FORMAT.
package logging

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
)

// ParseLevel aceita debug, info, warn/warning e error (sem diferenciar caixa).
// Vazio vira info.
func ParseLevel(s string) (slog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "info":
		return slog.LevelInfo, nil
	case "debug":
		return slog.LevelDebug, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error", "err":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("unsupported log level %q", s)
	}
}

type Options struct {
	Level string
	// Format é "text" (padrão) ou "json".
	Format string
	// Writer padrão é stderr.
	Writer io.Writer
	// SetDefault também instala o logger em slog.SetDefault.
	SetDefault bool
}

func New(opt Options) (*slog.Logger, error) {
	level, err := ParseLevel(opt.Level)
	if err != nil {
		return nil, err
	}

	var w io.Writer = os.Stderr
	if opt.Writer != nil {
		w = opt.Writer
	}
	ho := &slog.HandlerOptions{
		Level:     level,
		AddSource: level == slog.LevelDebug,
	}

	var h slog.Handler
	switch strings.ToLower(strings.TrimSpace(opt.Format)) {
	case "", "text":
		h = slog.NewTextHandler(w, ho)
	case "json":
		h = slog.NewJSONHandler(w, ho)
	default:
		return nil, fmt.Errorf("unsupported log format %q", opt.Format)
	}

	lg := slog.New(h)
	if opt.SetDefault {
		slog.SetDefault(lg)
	}
	return lg, nil
}
