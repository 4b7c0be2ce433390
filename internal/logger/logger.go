// Package logger provides a convenience function to constructing a logger
// for use. This is required not just for applications but for testing.
package logger

import (
	"context"
	"io"
	"log/slog"
	"runtime"
	"time"

	"github.com/rschio/billing/internal/web"
)

// New constructs a slog Logger that writes JSON records to w, tagging each
// record with the service name and the trace id of the request.
func New(w io.Writer, minLevel slog.Level, service string) *slog.Logger {
	opts := slog.HandlerOptions{
		AddSource: true,
		Level:     minLevel,
	}
	jh := slog.NewJSONHandler(w, &opts)
	return slog.New(withTraceID{Handler: jh}).With("service", service)
}

type withTraceID struct {
	slog.Handler
}

func (h withTraceID) Handle(ctx context.Context, r slog.Record) error {
	r.Add("trace_id", web.GetTraceID(ctx))

	return h.Handler.Handle(ctx, r)
}

func (h withTraceID) WithAttrs(attrs []slog.Attr) slog.Handler {
	hwa := h.Handler.WithAttrs(attrs)
	return withTraceID{Handler: hwa}
}

func (h withTraceID) WithGroup(name string) slog.Handler {
	hwg := h.Handler.WithGroup(name)
	return withTraceID{Handler: hwg}
}

// InfoCtx logs at info level reporting the source of the function caller
// frames up the stack instead of the helper that called InfoCtx.
func InfoCtx(ctx context.Context, log *slog.Logger, caller int, msg string, args ...any) {
	logCtx(ctx, log, caller+1, slog.LevelInfo, msg, args...)
}

// ErrorCtx is InfoCtx at error level.
func ErrorCtx(ctx context.Context, log *slog.Logger, caller int, msg string, args ...any) {
	logCtx(ctx, log, caller+1, slog.LevelError, msg, args...)
}

func logCtx(ctx context.Context, log *slog.Logger, caller int, level slog.Level, msg string, args ...any) {
	if !log.Enabled(ctx, level) {
		return
	}

	var pcs [1]uintptr
	runtime.Callers(caller, pcs[:]) // skip [Callers, logCtx, ...]

	r := slog.NewRecord(time.Now(), level, msg, pcs[0])
	r.Add(args...)

	log.Handler().Handle(ctx, r)
}
