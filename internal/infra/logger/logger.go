package logger

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"chatkit/internal/domain"
	"chatkit/internal/infra/config"
)

// New builds the process logger from cfg. Records logged with a context
// that carries a thread ID get a thread_id attribute. The returned closer
// releases file outputs and must be called on shutdown.
func New(cfg config.LoggerConfig) (*slog.Logger, func() error, error) {
	w, closer, err := openOutput(cfg.Output)
	if err != nil {
		return nil, nil, fmt.Errorf("open log output: %w", err)
	}
	return slog.New(NewThreadHandler(newHandler(w, cfg))), closer, nil
}

func newHandler(w io.Writer, cfg config.LoggerConfig) slog.Handler {
	opts := &slog.HandlerOptions{Level: parseLevel(cfg.Level)}
	if strings.EqualFold(cfg.Format, "json") {
		return slog.NewJSONHandler(w, opts)
	}
	return slog.NewTextHandler(w, opts)
}

// ThreadHandler decorates a slog.Handler with the thread ID found in the
// record's context.
type ThreadHandler struct {
	next slog.Handler
}

// NewThreadHandler wraps next.
func NewThreadHandler(next slog.Handler) *ThreadHandler {
	return &ThreadHandler{next: next}
}

func (h *ThreadHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.next.Enabled(ctx, level)
}

func (h *ThreadHandler) Handle(ctx context.Context, r slog.Record) error {
	if id := domain.ThreadIDFromContext(ctx); id != "" {
		r = r.Clone()
		r.AddAttrs(slog.String("thread_id", id))
	}
	return h.next.Handle(ctx, r)
}

func (h *ThreadHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &ThreadHandler{next: h.next.WithAttrs(attrs)}
}

func (h *ThreadHandler) WithGroup(name string) slog.Handler {
	return &ThreadHandler{next: h.next.WithGroup(name)}
}

// Discard returns a logger that drops everything. Components fall back to
// it when the caller passes no logger.
func Discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelError + 1}))
}

func parseLevel(s string) slog.Level {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// openOutput resolves stdout, stderr (the default) or a file path opened
// for appending.
func openOutput(output string) (io.Writer, func() error, error) {
	noop := func() error { return nil }

	switch strings.ToLower(output) {
	case "stdout":
		return os.Stdout, noop, nil
	case "stderr", "":
		return os.Stderr, noop, nil
	}
	f, err := os.OpenFile(output, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o600)
	if err != nil {
		return nil, nil, err
	}
	return f, f.Close, nil
}
