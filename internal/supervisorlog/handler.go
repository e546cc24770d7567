// Package supervisorlog renders log/slog records in the exact wire format
// spec.md §6 mandates for cinit's own stderr: one line per record,
// "YYYY-MM-DDTHH:MM:SS.mmm LEVEL [NAME] MESSAGE". It plays the same role
// for cinit that the teacher's internal/logger.ColorTextHandler plays for
// provisr: a small slog.Handler fixed to one house format, rather than a
// pull from a general-purpose structured-logging sink.
package supervisorlog

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync"
)

// LevelTrace extends slog's four standard levels with a fifth, below
// Debug, for the TRACE level spec.md §6 names (reachable via -vv on the
// CLI).
const LevelTrace = slog.Level(-8)

// Handler writes directly to w; it doesn't wrap slog.TextHandler the way
// ColorTextHandler does, since the target format isn't key=value pairs.
type Handler struct {
	mu    *sync.Mutex
	w     io.Writer
	level slog.Leveler
	name  string // "name" attr value inherited via WithAttrs, "cinit" if unset
}

// New returns a Handler writing to w, emitting only records at or above
// level. Supervisor-originated records default to NAME=cinit; child
// output loggers get their own handler via WithAttrs(slog.String("name", ...)).
func New(w io.Writer, level slog.Leveler) *Handler {
	if level == nil {
		level = slog.LevelInfo
	}
	return &Handler{mu: &sync.Mutex{}, w: w, level: level, name: "cinit"}
}

func (h *Handler) Enabled(_ context.Context, level slog.Level) bool {
	return level >= h.level.Level()
}

func levelName(l slog.Level) string {
	switch {
	case l < slog.LevelDebug:
		return "TRACE"
	case l < slog.LevelInfo:
		return "DEBUG"
	case l < slog.LevelWarn:
		return "INFO"
	case l < slog.LevelError:
		return "WARN"
	default:
		return "ERROR"
	}
}

func (h *Handler) Handle(_ context.Context, r slog.Record) error {
	name := h.name
	r.Attrs(func(a slog.Attr) bool {
		if a.Key == "name" {
			name = a.Value.String()
		}
		return true
	})

	var buf bytes.Buffer
	fmt.Fprintf(&buf, "%s %s [%s] %s\n",
		r.Time.Format("2006-01-02T15:04:05.000"), levelName(r.Level), name, r.Message)

	h.mu.Lock()
	defer h.mu.Unlock()
	_, err := h.w.Write(buf.Bytes())
	return err
}

func (h *Handler) WithAttrs(attrs []slog.Attr) slog.Handler {
	name := h.name
	for _, a := range attrs {
		if a.Key == "name" {
			name = a.Value.String()
		}
	}
	return &Handler{mu: h.mu, w: h.w, level: h.level, name: name}
}

func (h *Handler) WithGroup(_ string) slog.Handler {
	return h
}
