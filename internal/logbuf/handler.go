package logbuf

import (
	"context"
	"log/slog"
	"strings"
)

// Handler tees slog records into a Buffer and an inner handler. The buffer
// sees every record at or above its own capture level, independent of the
// inner handler's level, so GET /logs can show debug lines while stdout stays quiet.
type Handler struct {
	inner   slog.Handler
	buf     *Buffer
	capture slog.Level
	attrs   []slog.Attr
	groups  []string
}

// NewHandler creates a handler that captures everything into buf and
// forwards to inner.
func NewHandler(inner slog.Handler, buf *Buffer) *Handler {
	return &Handler{inner: inner, buf: buf, capture: slog.LevelDebug}
}

// WithCaptureLevel returns a copy that only buffers records at or above lvl.
func (h *Handler) WithCaptureLevel(lvl slog.Level) *Handler {
	c := *h
	c.capture = lvl
	return &c
}

func (h *Handler) Enabled(ctx context.Context, lvl slog.Level) bool {
	return lvl >= h.capture || h.inner.Enabled(ctx, lvl)
}

func (h *Handler) Handle(ctx context.Context, r slog.Record) error {
	if r.Level >= h.capture {
		attrs := make(map[string]any, len(h.attrs)+r.NumAttrs())
		for _, a := range h.attrs {
			attrs[h.qualify(a.Key)] = resolveAttrValue(a.Value)
		}
		r.Attrs(func(a slog.Attr) bool {
			attrs[h.qualify(a.Key)] = resolveAttrValue(a.Value)
			return true
		})
		if len(attrs) == 0 {
			attrs = nil
		}
		h.buf.Write(Entry{
			Time:    r.Time,
			Level:   r.Level.String(),
			Message: r.Message,
			Attrs:   attrs,
		})
	}

	if h.inner.Enabled(ctx, r.Level) {
		return h.inner.Handle(ctx, r)
	}
	return nil
}

func (h *Handler) qualify(key string) string {
	if len(h.groups) == 0 {
		return key
	}
	return strings.Join(h.groups, ".") + "." + key
}

// resolveAttrValue converts slog values to JSON-safe types. Errors become
// their message so they don't marshal to {}.
func resolveAttrValue(v slog.Value) any {
	v = v.Resolve()
	raw := v.Any()
	if err, ok := raw.(error); ok {
		return err.Error()
	}
	return raw
}

func (h *Handler) WithAttrs(attrs []slog.Attr) slog.Handler {
	c := *h
	c.inner = h.inner.WithAttrs(attrs)
	c.attrs = append(h.attrs[:len(h.attrs):len(h.attrs)], attrs...)
	return &c
}

func (h *Handler) WithGroup(name string) slog.Handler {
	c := *h
	c.inner = h.inner.WithGroup(name)
	c.groups = append(h.groups[:len(h.groups):len(h.groups)], name)
	return &c
}
