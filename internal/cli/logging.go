package cli

import (
	"io"
	"log/slog"
	"strings"

	"github.com/pkg/errors"

	"github.com/askiada/go-looprelax/internal/config"
)

func newLogger(wrt io.Writer, cfg config.LogConfig) (*slog.Logger, error) {
	var level slog.Level
	err := level.UnmarshalText([]byte(strings.ToLower(cfg.Level)))
	if err != nil {
		return nil, errors.Wrapf(err, "log level %q", cfg.Level)
	}
	opts := &slog.HandlerOptions{Level: level}

	switch cfg.Format {
	case "json":
		return slog.New(slog.NewJSONHandler(wrt, opts)), nil
	case "text":
		return slog.New(slog.NewTextHandler(wrt, opts)), nil
	default:
		return nil, errors.Wrapf(config.ErrInvalid, "log format %q", cfg.Format)
	}
}
