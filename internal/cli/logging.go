package cli

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/rmed/simpleice/internal/config"
)

// newLogger builds the logger used by check and daemon. Console output is
// meant for people; json for log collectors.
func newLogger(cfg config.LogConfig, w io.Writer) (zerolog.Logger, error) {
	level := zerolog.InfoLevel
	if cfg.Level != "" {
		l, err := zerolog.ParseLevel(strings.ToLower(cfg.Level))
		if err != nil {
			return zerolog.Nop(), fmt.Errorf("%w: invalid log.level %q", errConfig, cfg.Level)
		}
		level = l
	}

	var out io.Writer
	switch strings.ToLower(cfg.Format) {
	case "", "console":
		out = zerolog.ConsoleWriter{Out: w, TimeFormat: time.DateTime}
	case "json":
		out = w
	default:
		return zerolog.Nop(), fmt.Errorf("%w: invalid log.format %q (want console or json)", errConfig, cfg.Format)
	}

	return zerolog.New(out).Level(level).With().Timestamp().Str("component", "scheduler").Logger(), nil
}
