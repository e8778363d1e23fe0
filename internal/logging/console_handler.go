package logging

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/mattn/go-isatty"
)

const (
	ansiReset  = "\x1b[0m"
	ansiDim    = "\x1b[2m"
	ansiYellow = "\x1b[33m"
	ansiRed    = "\x1b[31m"
	ansiCyan   = "\x1b[36m"
)

// consoleHandler renders compact single-line records for interactive runs.
// Component, run, chunk, and stage attributes are folded into a subject
// prefix; remaining attributes trail as key=value pairs.
type consoleHandler struct {
	mu    sync.Mutex
	w     io.Writer
	level *slog.LevelVar
	attrs []slog.Attr
	color bool
}

func newConsoleHandler(w io.Writer, lvl *slog.LevelVar) slog.Handler {
	return &consoleHandler{w: w, level: lvl, color: writerSupportsColor(w)}
}

func writerSupportsColor(w io.Writer) bool {
	file, ok := w.(*os.File)
	if !ok {
		return false
	}
	fd := file.Fd()
	return isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd)
}

func (h *consoleHandler) Enabled(_ context.Context, level slog.Level) bool {
	return level >= h.level.Level()
}

func (h *consoleHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	clone := &consoleHandler{w: h.w, level: h.level, color: h.color}
	clone.attrs = append(append([]slog.Attr{}, h.attrs...), attrs...)
	return clone
}

func (h *consoleHandler) WithGroup(string) slog.Handler { return h }

func (h *consoleHandler) Handle(_ context.Context, record slog.Record) error {
	timestamp := record.Time
	if timestamp.IsZero() {
		timestamp = time.Now()
	}

	var component, runID, chunk, stage string
	trailing := make([]slog.Attr, 0, record.NumAttrs()+len(h.attrs))
	consume := func(attr slog.Attr) {
		switch attr.Key {
		case FieldComponent:
			component = attr.Value.String()
		case FieldRunID:
			runID = attr.Value.String()
		case FieldChunk:
			chunk = attr.Value.String()
		case FieldStage:
			stage = attr.Value.String()
		default:
			trailing = append(trailing, attr)
		}
	}
	for _, attr := range h.attrs {
		consume(attr)
	}
	record.Attrs(func(attr slog.Attr) bool {
		consume(attr)
		return true
	})

	var buf bytes.Buffer
	buf.Grow(128 + len(trailing)*24)

	buf.WriteString(h.dim(timestamp.Format("15:04:05")))
	buf.WriteByte(' ')
	buf.WriteString(h.levelLabel(record.Level))
	buf.WriteByte(' ')
	if subject := formatSubject(component, runID, chunk, stage); subject != "" {
		buf.WriteString(h.colorize(ansiCyan, subject))
		buf.WriteString(" · ")
	}
	buf.WriteString(strings.TrimSpace(record.Message))
	for _, attr := range trailing {
		buf.WriteByte(' ')
		buf.WriteString(h.dim(fmt.Sprintf("%s=%s", attr.Key, formatAttrValue(attr.Value))))
	}
	buf.WriteByte('\n')

	h.mu.Lock()
	defer h.mu.Unlock()
	_, err := h.w.Write(buf.Bytes())
	return err
}

func (h *consoleHandler) levelLabel(level slog.Level) string {
	switch {
	case level >= slog.LevelError:
		return h.colorize(ansiRed, "ERROR")
	case level >= slog.LevelWarn:
		return h.colorize(ansiYellow, " WARN")
	case level >= slog.LevelInfo:
		return " INFO"
	default:
		return h.dim("DEBUG")
	}
}

func (h *consoleHandler) colorize(code, s string) string {
	if !h.color {
		return s
	}
	return code + s + ansiReset
}

func (h *consoleHandler) dim(s string) string {
	return h.colorize(ansiDim, s)
}

// formatSubject builds the component/run/chunk/stage prefix used in console output.
func formatSubject(component, runID, chunk, stage string) string {
	parts := make([]string, 0, 3)
	if component != "" {
		parts = append(parts, component)
	}
	if runID != "" && len(runID) >= 8 {
		parts = append(parts, "run "+runID[:8])
	}
	switch {
	case chunk != "" && stage != "":
		parts = append(parts, "chunk #"+chunk+" ("+stage+")")
	case chunk != "":
		parts = append(parts, "chunk #"+chunk)
	case stage != "":
		parts = append(parts, stage)
	}
	return strings.Join(parts, " · ")
}

func formatAttrValue(value slog.Value) string {
	resolved := value.Resolve()
	text := resolved.String()
	if strings.ContainsAny(text, " \t") {
		return fmt.Sprintf("%q", text)
	}
	return text
}
