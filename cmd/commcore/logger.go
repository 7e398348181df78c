// ABOUTME: Logger setup for the commcore command line
// ABOUTME: Colorized text or JSON output on stderr so command output stays clean on stdout

package main

import (
	"context"
	"io"
	"log/slog"
	"strings"
	"sync"

	"github.com/fatih/color"

	"github.com/2389/comm-core/internal/config"
)

func setupLogger(cfg config.LoggingConfig, w io.Writer) *slog.Logger {
	var level slog.Level
	if err := level.UnmarshalText([]byte(cfg.Level)); err != nil {
		level = slog.LevelInfo
	}

	if cfg.Format == "json" {
		return slog.New(slog.NewJSONHandler(w, &slog.HandlerOptions{Level: level}))
	}
	return slog.New(&colorHandler{mu: &sync.Mutex{}, w: w, level: level})
}

var levelTags = map[slog.Level]struct {
	label string
	color *color.Color
}{
	slog.LevelDebug: {"DBG", color.New(color.FgMagenta)},
	slog.LevelInfo:  {"INF", color.New(color.FgCyan)},
	slog.LevelWarn:  {"WRN", color.New(color.FgYellow)},
	slog.LevelError: {"ERR", color.New(color.FgRed, color.Bold)},
}

// colorHandler writes one colored line per record. The CLI only derives
// loggers with With, so groups are not rendered.
type colorHandler struct {
	mu    *sync.Mutex
	w     io.Writer
	level slog.Level
	attrs string // preformatted " key=value" pairs from WithAttrs
}

func (h *colorHandler) Enabled(_ context.Context, level slog.Level) bool {
	return level >= h.level
}

func (h *colorHandler) Handle(_ context.Context, r slog.Record) error {
	tag := r.Level.String()
	if t, ok := levelTags[r.Level]; ok {
		tag = t.color.Sprint(t.label)
	}

	var b strings.Builder
	b.WriteString(color.HiBlackString(r.Time.Format("15:04:05")))
	b.WriteString(" " + tag + " " + r.Message + h.attrs)
	r.Attrs(func(a slog.Attr) bool {
		appendAttr(&b, a)
		return true
	})
	b.WriteByte('\n')

	h.mu.Lock()
	defer h.mu.Unlock()
	_, err := io.WriteString(h.w, b.String())
	return err
}

func appendAttr(b *strings.Builder, a slog.Attr) {
	b.WriteString(color.HiBlackString(" " + a.Key + "="))
	b.WriteString(a.Value.String())
}

func (h *colorHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	var b strings.Builder
	b.WriteString(h.attrs)
	for _, a := range attrs {
		appendAttr(&b, a)
	}
	clone := *h
	clone.attrs = b.String()
	return &clone
}

func (h *colorHandler) WithGroup(string) slog.Handler {
	return h
}
