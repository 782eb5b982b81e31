package config

import (
	"io"
	"log/slog"

	"github.com/rhuss/trellis/pkg/logging"
)

// Apply installs the configured thresholds and output format process-wide
// and returns a slog.Logger writing to the same handler, for components
// that take one directly.
func (c LoggingConfig) Apply(w io.Writer) (*slog.Logger, error) {
	root, err := logging.ParseLevel(c.Level)
	if err != nil {
		return nil, err
	}
	levels := make(map[string]slog.Level, len(c.Loggers))
	for name, s := range c.Loggers {
		lvl, err := logging.ParseLevel(s)
		if err != nil {
			return nil, err
		}
		levels[name] = lvl
	}

	logging.ResetLevels()
	logging.SetLevel(root)
	for name, lvl := range levels {
		logging.SetLoggerLevel(name, lvl)
	}
	// The facade gates levels itself; its handler passes everything.
	logging.SetHandler(c.handler(w, logging.LevelTrace))

	return slog.New(c.handler(w, root)), nil
}

func (c LoggingConfig) handler(w io.Writer, level slog.Level) slog.Handler {
	opts := &slog.HandlerOptions{Level: level}
	if c.Format == "json" {
		return slog.NewJSONHandler(w, opts)
	}
	return slog.NewTextHandler(w, opts)
}
