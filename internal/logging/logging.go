// Package logging installs the process logger: a tint console handler
// wrapped by slog-context so attributes added to a context.Context show up on
// every record logged with it.
package logging

import (
	"context"
	"io"
	"log/slog"
	"time"

	"github.com/lmittmann/tint"
	slogctx "github.com/veqryn/slog-context"
)

// Options configures the handler.
type Options struct {
	Level   slog.Leveler
	NoColor bool
	// AddSource adds file:line to each record.
	AddSource bool
}

// New returns a logger writing to w.
func New(w io.Writer, opts Options) *slog.Logger {
	h := tint.NewHandler(w, &tint.Options{
		Level:      opts.Level,
		NoColor:    opts.NoColor,
		AddSource:  opts.AddSource,
		TimeFormat: time.TimeOnly,
	})
	return slog.New(slogctx.NewHandler(h, nil))
}

// Setup installs a logger as the default and returns ctx carrying it.
func Setup(ctx context.Context, w io.Writer, opts Options) context.Context {
	l := New(w, opts)
	slog.SetDefault(l)
	return slogctx.NewCtx(ctx, l)
}
