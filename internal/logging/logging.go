// Package logging wraps rs/zerolog with the component-scoped-logger
// convention the rest of this codebase uses: a base logger built once at
// start-up, narrowed per component with a "component" field (For does
// this; internal/position.Manager and internal/tradegate.Gate add the field
// with logger.With() themselves), and enriched with
// structured fields via the zerolog chain rather than printf formatting.
package logging

import (
	"io"
	"os"
	"strings"

	"github.com/rs/zerolog"
)

// Config controls the base logger created by New.
type Config struct {
	Level       string // debug, info, warn, error
	Output      string // "stdout", "stderr", or a file path
	JSONFormat  bool
	IncludeFile bool
}

// New builds the base logger the rest of the process derives component
// loggers from via For.
func New(cfg Config) zerolog.Logger {
	var out io.Writer = os.Stdout
	switch strings.ToLower(cfg.Output) {
	case "", "stdout":
		out = os.Stdout
	case "stderr":
		out = os.Stderr
	default:
		if f, err := os.OpenFile(cfg.Output, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644); err == nil {
			out = f
		}
	}

	if !cfg.JSONFormat {
		out = zerolog.ConsoleWriter{Out: out, TimeFormat: "15:04:05"}
	}

	level, err := zerolog.ParseLevel(strings.ToLower(cfg.Level))
	if err != nil {
		level = zerolog.InfoLevel
	}

	ctx := zerolog.New(out).Level(level).With().Timestamp()
	if cfg.IncludeFile {
		ctx = ctx.Caller()
	}
	return ctx.Logger()
}

// For narrows base to a named component, e.g. logging.For(base, "tradegate").
func For(base zerolog.Logger, component string) zerolog.Logger {
	return base.With().Str("component", component).Logger()
}
