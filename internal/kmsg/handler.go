package kmsg

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strconv"
	"strings"
	"sync"

	"github.com/coreos/go-systemd/v22/journal"
)

// Handler is a slog.Handler that emits one kernel-log record per log call,
// tagged with the syslog priority corresponding to the record's level.
type Handler struct {
	mu    *sync.Mutex
	w     io.Writer
	tag   string
	level slog.Leveler

	// attrs holds preformatted attrs from WithAttrs, group the dotted
	// prefix accumulated from WithGroup.
	attrs string
	group string
}

var _ slog.Handler = (*Handler)(nil)

// NewHandler creates a Handler writing to w. Records below level are
// discarded. The tag prefixes every line, syslog style.
func NewHandler(w io.Writer, tag string, level slog.Leveler) *Handler {
	return &Handler{
		mu:    &sync.Mutex{},
		w:     w,
		tag:   tag,
		level: level,
	}
}

// Enabled implements slog.Handler.
func (h *Handler) Enabled(_ context.Context, level slog.Level) bool {
	min := slog.LevelInfo
	if h.level != nil {
		min = h.level.Level()
	}
	return level >= min
}

// Handle implements slog.Handler. Each record becomes a single write, since
// the kernel treats every write to /dev/kmsg as one log entry.
func (h *Handler) Handle(_ context.Context, r slog.Record) error {
	var b strings.Builder
	fmt.Fprintf(&b, "<%d>%s: %s", priority(r.Level), h.tag, r.Message)
	b.WriteString(h.attrs)
	r.Attrs(func(a slog.Attr) bool {
		appendAttr(&b, h.group, a)
		return true
	})

	// Records must not contain newlines.
	line := strings.ReplaceAll(b.String(), "\n", " ")
	if len(line) > maxRecord-1 {
		line = line[:maxRecord-1]
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	_, err := io.WriteString(h.w, line+"\n")
	return err
}

// WithAttrs implements slog.Handler.
func (h *Handler) WithAttrs(attrs []slog.Attr) slog.Handler {
	var b strings.Builder
	for _, a := range attrs {
		appendAttr(&b, h.group, a)
	}
	clone := *h
	clone.attrs = h.attrs + b.String()
	return &clone
}

// WithGroup implements slog.Handler.
func (h *Handler) WithGroup(name string) slog.Handler {
	if name == "" {
		return h
	}
	clone := *h
	if h.group != "" {
		clone.group = h.group + "." + name
	} else {
		clone.group = name
	}
	return &clone
}

func appendAttr(b *strings.Builder, group string, a slog.Attr) {
	if a.Equal(slog.Attr{}) {
		return
	}
	key := a.Key
	if group != "" {
		key = group + "." + key
	}
	v := a.Value.Resolve()
	if v.Kind() == slog.KindGroup {
		for _, ga := range v.Group() {
			appendAttr(b, key, ga)
		}
		return
	}
	s := v.String()
	if strings.ContainsAny(s, " \t\"=") {
		s = strconv.Quote(s)
	}
	fmt.Fprintf(b, " %s=%s", key, s)
}

// priority maps slog levels onto the syslog severities journald uses.
func priority(level slog.Level) journal.Priority {
	switch {
	case level >= slog.LevelError:
		return journal.PriErr
	case level >= slog.LevelWarn:
		return journal.PriWarning
	case level >= slog.LevelInfo:
		return journal.PriInfo
	default:
		return journal.PriDebug
	}
}
