package logging

import (
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// New builds the process logger. env "dev" renders human readable console
// output; anything else writes JSON lines. An unknown level falls back to
// info. A nil out writes to stderr.
func New(env, level string, out io.Writer) zerolog.Logger {
	if out == nil {
		out = os.Stderr
	}
	zerolog.TimeFieldFormat = time.RFC3339
	lvl, err := zerolog.ParseLevel(strings.ToLower(strings.TrimSpace(level)))
	if err != nil || level == "" {
		lvl = zerolog.InfoLevel
	}
	if env == "dev" {
		out = zerolog.ConsoleWriter{Out: out, TimeFormat: time.RFC3339}
	}
	return zerolog.New(out).Level(lvl).With().Timestamp().Logger()
}

// Discard is a logger that writes nothing, for quiet modes and tests.
func Discard() zerolog.Logger {
	return zerolog.Nop()
}
