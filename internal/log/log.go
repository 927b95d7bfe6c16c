package log

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
)

const (
	TargetStderr  = "stderr"
	TargetStdout  = "stdout"
	TargetDiscard = "discard"
)

type ctxAttrsKey struct{}

// New returns a text logger writing to stderr. Verbose enables debug level.
// Attributes stored via ContextAttrs are appended to every record logged
// with a context.
func New(verbose bool) *slog.Logger {
	return NewWithWriter(os.Stderr, verbose)
}

func NewWithWriter(w io.Writer, verbose bool) *slog.Logger {
	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}
	base := slog.NewTextHandler(w, &slog.HandlerOptions{
		Level: level,
	})
	return slog.New(NewContextHandler(base))
}

// Open resolves a log target: stderr, stdout, discard or a path to a file
// opened for appending. The returned closer is a no-op for the standard
// streams.
func Open(target string) (io.Writer, io.Closer, error) {
	switch target {
	case "", TargetStderr:
		return os.Stderr, nopCloser{}, nil
	case TargetStdout:
		return os.Stdout, nopCloser{}, nil
	case TargetDiscard:
		return io.Discard, nopCloser{}, nil
	}
	f, err := os.OpenFile(target, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, nil, fmt.Errorf("opening log file: %w", err)
	}
	return f, f, nil
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }

// ContextAttrs returns a copy of ctx carrying attrs in addition to those
// already stored in it.
func ContextAttrs(ctx context.Context, attrs ...slog.Attr) context.Context {
	if len(attrs) == 0 {
		return ctx
	}
	prev, _ := ctx.Value(ctxAttrsKey{}).([]slog.Attr)
	merged := make([]slog.Attr, 0, len(prev)+len(attrs))
	merged = append(merged, prev...)
	merged = append(merged, attrs...)
	return context.WithValue(ctx, ctxAttrsKey{}, merged)
}

// ContextHandler decorates a slog.Handler with the attributes stored in the
// context passed to the logging call.
type ContextHandler struct {
	slog.Handler
}

func NewContextHandler(h slog.Handler) ContextHandler {
	return ContextHandler{Handler: h}
}

func (h ContextHandler) Handle(ctx context.Context, r slog.Record) error {
	if attrs, ok := ctx.Value(ctxAttrsKey{}).([]slog.Attr); ok {
		r.AddAttrs(attrs...)
	}
	return h.Handler.Handle(ctx, r)
}

func (h ContextHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return ContextHandler{Handler: h.Handler.WithAttrs(attrs)}
}

func (h ContextHandler) WithGroup(name string) slog.Handler {
	return ContextHandler{Handler: h.Handler.WithGroup(name)}
}
