package loghub

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"
)

// Handler renders records as dashboard lines, e.g.
//
//	[2026-01-02T15:04:05Z] INFO: login_ok user_id=900
//
// and publishes them to a Hub with URL credentials redacted. Warnings render
// as INFO and everything at error level or above as ERROR.
type Handler struct {
	hub   *Hub
	level slog.Leveler
	attrs []slog.Attr
	group string
}

func NewHandler(hub *Hub, level slog.Leveler) *Handler {
	if level == nil {
		level = slog.LevelInfo
	}
	return &Handler{hub: hub, level: level}
}

func (h *Handler) Enabled(_ context.Context, level slog.Level) bool {
	return h.hub != nil && level >= h.level.Level()
}

func (h *Handler) Handle(_ context.Context, r slog.Record) error {
	if h.hub == nil {
		return nil
	}
	h.hub.Publish(Redact(h.render(r)))
	return nil
}

func (h *Handler) WithAttrs(attrs []slog.Attr) slog.Handler {
	out := *h
	out.attrs = append(append([]slog.Attr(nil), h.attrs...), h.qualify(attrs)...)
	return &out
}

func (h *Handler) WithGroup(name string) slog.Handler {
	if name == "" {
		return h
	}
	out := *h
	if out.group != "" {
		out.group += "."
	}
	out.group += name
	return &out
}

func (h *Handler) qualify(attrs []slog.Attr) []slog.Attr {
	if h.group == "" {
		return attrs
	}
	out := make([]slog.Attr, 0, len(attrs))
	for _, a := range attrs {
		out = append(out, slog.Attr{Key: h.group + "." + a.Key, Value: a.Value})
	}
	return out
}

func (h *Handler) render(r slog.Record) string {
	ts := r.Time
	if ts.IsZero() {
		ts = time.Now()
	}
	tag := "INFO"
	if r.Level >= slog.LevelError {
		tag = "ERROR"
	}
	var b strings.Builder
	fmt.Fprintf(&b, "[%s] %s: %s", ts.UTC().Format(time.RFC3339), tag, r.Message)
	for _, a := range h.attrs {
		writeAttr(&b, "", a)
	}
	r.Attrs(func(a slog.Attr) bool {
		writeAttr(&b, h.group, a)
		return true
	})
	return b.String()
}

func writeAttr(b *strings.Builder, prefix string, a slog.Attr) {
	a.Value = a.Value.Resolve()
	if a.Equal(slog.Attr{}) {
		return
	}
	key := a.Key
	if prefix != "" {
		key = prefix + "." + key
	}
	if a.Value.Kind() == slog.KindGroup {
		for _, ga := range a.Value.Group() {
			writeAttr(b, key, ga)
		}
		return
	}
	val := a.Value.String()
	if strings.ContainsAny(val, " \t\n\"=") {
		val = fmt.Sprintf("%q", val)
	}
	fmt.Fprintf(b, " %s=%s", key, val)
}
