package web

import (
	"context"
	"log/slog"

	"github.com/teslashibe/go-human/pkg/protocol"
)

// LogHandler tees records at or above level into the dashboard log stream.
type LogHandler struct {
	next   slog.Handler
	server *Server
	level  slog.Level
	attrs  []slog.Attr
}

// LogHandler wraps next so that records also reach /ws/logs.
func (s *Server) LogHandler(next slog.Handler, level slog.Level) slog.Handler {
	return &LogHandler{next: next, server: s, level: level}
}

// Enabled implements slog.Handler.
func (h *LogHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return level >= h.level || h.next.Enabled(ctx, level)
}

// Handle implements slog.Handler.
func (h *LogHandler) Handle(ctx context.Context, r slog.Record) error {
	if r.Level >= h.level {
		attrs := make(map[string]any, len(h.attrs)+r.NumAttrs())
		for _, a := range h.attrs {
			attrs[a.Key] = plain(a.Value)
		}
		r.Attrs(func(a slog.Attr) bool {
			attrs[a.Key] = plain(a.Value)
			return true
		})
		h.server.AddLog(protocol.LogData{
			Level:   r.Level.String(),
			Message: r.Message,
			Attrs:   attrs,
		})
	}
	if h.next.Enabled(ctx, r.Level) {
		return h.next.Handle(ctx, r)
	}
	return nil
}

// WithAttrs implements slog.Handler.
func (h *LogHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &LogHandler{
		next:   h.next.WithAttrs(attrs),
		server: h.server,
		level:  h.level,
		attrs:  append(append([]slog.Attr(nil), h.attrs...), attrs...),
	}
}

// WithGroup implements slog.Handler.
func (h *LogHandler) WithGroup(name string) slog.Handler {
	return &LogHandler{next: h.next.WithGroup(name), server: h.server, level: h.level, attrs: h.attrs}
}

// plain converts a log value into something JSON can always encode.
func plain(v slog.Value) any {
	v = v.Resolve()
	switch v.Kind() {
	case slog.KindString, slog.KindInt64, slog.KindUint64, slog.KindFloat64, slog.KindBool:
		return v.Any()
	default:
		return v.String()
	}
}
