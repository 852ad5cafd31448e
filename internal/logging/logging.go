// Package logging sets up the process-wide structured logger shared by
// every cmd/* entrypoint, using log/slog with lmittmann/tint for
// colourised, human-readable terminal output.
package logging

import (
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/lmittmann/tint"
)

// Options configures New.
type Options struct {
	Debug bool
	// Writer defaults to os.Stderr.
	Writer io.Writer
}

// New builds the shared slog.Logger. Debug raises the level to Debug and
// includes source file:line; otherwise the level is Info.
func New(opts Options) *slog.Logger {
	w := opts.Writer
	if w == nil {
		w = os.Stderr
	}

	level := slog.LevelInfo
	if opts.Debug {
		level = slog.LevelDebug
	}

	handler := tint.NewHandler(w, &tint.Options{
		Level:      level,
		TimeFormat: time.Kitchen,
		AddSource:  opts.Debug,
	})

	logger := slog.New(handler)
	slog.SetDefault(logger)
	return logger
}
