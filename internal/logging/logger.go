package logging

import (
	"io"
	"os"

	"github.com/rs/zerolog"
)

// New creates a timestamped zerolog.Logger writing to w (stderr when nil).
// An unparsable level falls back to info.
func New(level string, w io.Writer) zerolog.Logger {
	if w == nil {
		w = os.Stderr
	}
	lvl, err := zerolog.ParseLevel(level)
	if err != nil || level == "" {
		lvl = zerolog.InfoLevel
	}
	return zerolog.New(w).With().Timestamp().Str("service", "elasticache-jumphost").Logger().Level(lvl)
}
