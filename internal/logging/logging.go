// Package logging builds the process logger. Every component takes a
// *slog.Logger in its options and falls back to slog.Default().
package logging

import (
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/nuvos/nuvos-index/pkg/types"
)

const (
	FormatText = "text"
	FormatJSON = "json"
)

// ParseLevel maps a case-insensitive level name to a slog.Level
func ParseLevel(s string) (slog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return slog.LevelDebug, nil
	case "", "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("%w: unknown log level %q", types.ErrConfig, s)
	}
}

// New returns a logger writing to w. stdout carries CLI output and the
// MCP protocol, so callers pass os.Stderr.
func New(w io.Writer, level, format string) (*slog.Logger, error) {
	lvl, err := ParseLevel(level)
	if err != nil {
		return nil, err
	}
	opts := &slog.HandlerOptions{Level: lvl}

	var h slog.Handler
	switch strings.ToLower(strings.TrimSpace(format)) {
	case "", FormatText:
		h = slog.NewTextHandler(w, opts)
	case FormatJSON:
		h = slog.NewJSONHandler(w, opts)
	default:
		return nil, fmt.Errorf("%w: unknown log format %q", types.ErrConfig, format)
	}
	return slog.New(h), nil
}

// Discard returns a logger that drops everything
func Discard() *slog.Logger {
	return slog.New(slog.DiscardHandler)
}
