package asyncmanager

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/Swind/go-async-manager/core"
)

// Log output formats accepted by NewLogger.
const (
	LogFormatText = "text"
	LogFormatJSON = "json"
)

// NewLogger builds a core.Logger on slog. level is one of debug, info, warn
// or error; format is "text" or "json". A nil w writes to stderr.
func NewLogger(level, format string, w io.Writer) (*core.SlogLogger, error) {
	if w == nil {
		w = os.Stderr
	}

	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(level)); err != nil {
		return nil, fmt.Errorf("parse log level %q: %w", level, err)
	}

	opts := &slog.HandlerOptions{Level: lvl}
	var h slog.Handler
	switch strings.ToLower(format) {
	case "", LogFormatText:
		h = slog.NewTextHandler(w, opts)
	case LogFormatJSON:
		h = slog.NewJSONHandler(w, opts)
	default:
		return nil, fmt.Errorf("unknown log format %q", format)
	}
	return core.NewSlogLogger(slog.New(h)), nil
}
