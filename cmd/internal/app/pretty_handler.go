package app

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"
	"sync"
	"time"
	"unicode/utf8"
)

const (
	ansiReset   = "\x1b[0m"
	ansiBright  = "\x1b[1m"
	ansiDim     = "\x1b[2m"
	ansiRed     = "\x1b[31m"
	ansiGreen   = "\x1b[32m"
	ansiYellow  = "\x1b[33m"
	ansiBlue    = "\x1b[34m"
	ansiMagenta = "\x1b[35m"
	ansiCyan    = "\x1b[36m"

	defaultLogWidth = 100
	minLogWidth     = 40
	wrapIndent      = "   ↳ "
	segmentSep      = "  "
	ellipsis        = "…"
)

// prettyHandler prints one record per line (wrapped to the terminal width) with
// the HTTP and chat fields highlighted. It is meant for local development.
type prettyHandler struct {
	w      io.Writer
	opts   slog.HandlerOptions
	attrs  []slog.Attr
	groups []string
	color  bool
	mu     *sync.Mutex
}

func newPrettyHandler(w io.Writer, opts *slog.HandlerOptions, color bool) slog.Handler {
	h := &prettyHandler{w: w, color: color, mu: &sync.Mutex{}}
	if opts != nil {
		h.opts = *opts
	}
	return h
}

func (h *prettyHandler) Enabled(_ context.Context, level slog.Level) bool {
	minLevel := slog.LevelInfo
	if h.opts.Level != nil {
		minLevel = h.opts.Level.Level()
	}
	return level >= minLevel
}

func (h *prettyHandler) Handle(_ context.Context, r slog.Record) error {
	ts := r.Time
	if ts.IsZero() {
		ts = time.Now()
	}

	segs := []string{
		h.paint(ansiDim, ts.Format("15:04:05.000")),
		levelTag(r.Level, h.color),
		h.paint(ansiBright, r.Message),
	}

	for _, a := range h.attrs {
		segs = h.appendAttr(segs, a, "")
	}
	r.Attrs(func(a slog.Attr) bool {
		segs = h.appendAttr(segs, a, "")
		return true
	})

	if h.opts.AddSource && r.PC != 0 {
		frame, _ := runtime.CallersFrames([]uintptr{r.PC}).Next()
		if frame.File != "" {
			segs = append(segs, h.paint(ansiDim, fmt.Sprintf("%s:%d", filepath.Base(frame.File), frame.Line)))
		}
	}

	lines := wrapSegments(segs, segmentSep, h.terminalWidth(), wrapIndent)

	h.mu.Lock()
	defer h.mu.Unlock()
	_, err := io.WriteString(h.w, strings.Join(lines, "\n")+"\n")
	return err
}

func (h *prettyHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	cp := *h
	cp.attrs = append(append([]slog.Attr{}, h.attrs...), attrs...)
	return &cp
}

func (h *prettyHandler) WithGroup(name string) slog.Handler {
	if strings.TrimSpace(name) == "" {
		return h
	}
	cp := *h
	cp.groups = append(append([]string{}, h.groups...), name)
	return &cp
}

// terminalWidth prefers AXIONX_LOG_WIDTH, then COLUMNS. Widths below minLogWidth
// are ignored.
func (h *prettyHandler) terminalWidth() int {
	for _, key := range []string{"AXIONX_LOG_WIDTH", "COLUMNS"} {
		n, err := strconv.Atoi(strings.TrimSpace(os.Getenv(key)))
		if err == nil && n >= minLogWidth {
			return n
		}
	}
	return defaultLogWidth
}

func (h *prettyHandler) appendAttr(segs []string, a slog.Attr, parent string) []string {
	a.Value = a.Value.Resolve()
	key := strings.TrimSpace(a.Key)
	if key == "" || a.Equal(slog.Attr{}) {
		return segs
	}
	if parent != "" {
		key = parent + "." + key
	}

	if a.Value.Kind() == slog.KindGroup {
		for _, ga := range a.Value.Group() {
			segs = h.appendAttr(segs, ga, key)
		}
		return segs
	}

	full := key
	if len(h.groups) > 0 {
		full = strings.Join(h.groups, ".") + "." + key
	}
	return append(segs, h.paint(ansiDim, full+"=")+h.value(key, a.Value))
}

func (h *prettyHandler) value(key string, v slog.Value) string {
	switch key {
	case "method":
		return h.paint(ansiMagenta, strings.ToUpper(v.String()))
	case "path", "route":
		return h.paint(ansiCyan, v.String())
	case "status":
		if v.Kind() == slog.KindInt64 {
			return h.paint(statusColor(int(v.Int64())), strconv.FormatInt(v.Int64(), 10))
		}
	case "result", "outcome":
		return h.paint(resultColor(v.String()), v.String())
	case "err":
		return h.paint(ansiRed, quoteIfNeeded(valueToString(v)))
	case "duration_ms":
		if v.Kind() == slog.KindInt64 {
			return strconv.FormatInt(v.Int64(), 10) + "ms"
		}
	}
	return quoteIfNeeded(valueToString(v))
}

func (h *prettyHandler) paint(code, s string) string {
	if !h.color || s == "" {
		return s
	}
	return code + s + ansiReset
}

func statusColor(status int) string {
	switch {
	case status >= 500:
		return ansiRed
	case status >= 400:
		return ansiYellow
	case status >= 300:
		return ansiCyan
	default:
		return ansiGreen
	}
}

func resultColor(result string) string {
	switch strings.ToLower(result) {
	case "success", "ok", "answered", "stored", "relayed":
		return ansiGreen
	case "redirect":
		return ansiCyan
	case "client_error", "invalid", "rejected":
		return ansiYellow
	default:
		return ansiRed
	}
}

func levelTag(level slog.Level, color bool) string {
	tag, code := "INFO ", ansiBlue
	switch {
	case level >= slog.LevelError:
		tag, code = "ERROR", ansiRed
	case level >= slog.LevelWarn:
		tag, code = "WARN ", ansiYellow
	case level < slog.LevelInfo:
		tag, code = "DEBUG", ansiMagenta
	}
	if !color {
		return tag
	}
	return code + tag + ansiReset
}

func valueToString(v slog.Value) string {
	switch v.Kind() {
	case slog.KindString:
		return v.String()
	case slog.KindDuration:
		return v.Duration().String()
	case slog.KindTime:
		return v.Time().Format(time.RFC3339)
	case slog.KindAny:
		if err, ok := v.Any().(error); ok {
			return err.Error()
		}
		return fmt.Sprint(v.Any())
	default:
		return v.String()
	}
}

func quoteIfNeeded(s string) string {
	if s == "" {
		return `""`
	}
	if strings.ContainsAny(s, " \t\r\n\"=") {
		return strconv.Quote(s)
	}
	return s
}

// wrapSegments joins segs with sep into lines no wider than width (ANSI codes do
// not count). Continuation lines start with indent; a segment too wide for a line
// of its own is truncated with an ellipsis.
func wrapSegments(segs []string, sep string, width int, indent string) []string {
	var (
		lines []string
		cur   strings.Builder
		used  int
	)
	for _, s := range segs {
		n := visualLen(s)
		switch {
		case used == 0:
		case used+visualLen(sep)+n <= width:
			cur.WriteString(sep)
			used += visualLen(sep)
		default:
			lines = append(lines, cur.String())
			cur.Reset()
			cur.WriteString(indent)
			used = visualLen(indent)
		}
		if used+n > width {
			s = truncateVisual(s, width-used)
			n = visualLen(s)
		}
		cur.WriteString(s)
		used += n
	}
	if cur.Len() > 0 {
		lines = append(lines, cur.String())
	}
	return lines
}

func truncateVisual(s string, room int) string {
	plain := []rune(stripANSI(s))
	if room <= 1 {
		return ellipsis
	}
	if len(plain) <= room {
		return s
	}
	return string(plain[:room-1]) + ellipsis
}

func visualLen(s string) int {
	return utf8.RuneCountInString(stripANSI(s))
}

// stripANSI removes CSI escape sequences.
func stripANSI(s string) string {
	if !strings.Contains(s, "\x1b[") {
		return s
	}
	var b strings.Builder
	b.Grow(len(s))
	for i := 0; i < len(s); i++ {
		if s[i] == 0x1b && i+1 < len(s) && s[i+1] == '[' {
			j := i + 2
			for j < len(s) && (s[j] < 0x40 || s[j] > 0x7e) {
				j++
			}
			i = j
			continue
		}
		b.WriteByte(s[i])
	}
	return b.String()
}
