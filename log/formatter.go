package log

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"
)

// LogLevel represents the severity of a log entry.
type LogLevel int

const (
	// DEBUG is the most verbose level, used for development diagnostics.
	DEBUG LogLevel = iota
	// INFO is for general operational messages.
	INFO
	// WARN indicates a potentially harmful situation.
	WARN
	// ERROR indicates a failure that does not stop the application.
	ERROR
)

// String returns the uppercase name of the level.
func (l LogLevel) String() string {
	switch l {
	case DEBUG:
		return "DEBUG"
	case INFO:
		return "INFO"
	case WARN:
		return "WARN"
	case ERROR:
		return "ERROR"
	default:
		return fmt.Sprintf("LEVEL(%d)", int(l))
	}
}

// levelFromSlog maps an slog.Level onto the formatter's LogLevel.
func levelFromSlog(l slog.Level) LogLevel {
	switch {
	case l < slog.LevelInfo:
		return DEBUG
	case l < slog.LevelWarn:
		return INFO
	case l < slog.LevelError:
		return WARN
	default:
		return ERROR
	}
}

// LogEntry holds all data for a single log event.
type LogEntry struct {
	Timestamp time.Time
	Level     LogLevel
	Message   string
	Fields    map[string]interface{}
}

// LogFormatter formats a LogEntry into a printable string.
type LogFormatter interface {
	Format(entry LogEntry) string
}

// ---------------------------------------------------------------------------
// TextFormatter
// ---------------------------------------------------------------------------

// TextFormatter renders log entries as plain text in the format:
//
//	[2024-01-01 12:00:00] INFO  message key=value
type TextFormatter struct {
	// TimeFormat controls the timestamp layout. Defaults to
	// "2006-01-02 15:04:05" when empty.
	TimeFormat string
}

// Format produces a plain-text line for the given entry.
func (f *TextFormatter) Format(entry LogEntry) string {
	tf := f.TimeFormat
	if tf == "" {
		tf = "2006-01-02 15:04:05"
	}

	var b strings.Builder
	b.WriteString("[")
	b.WriteString(entry.Timestamp.Format(tf))
	b.WriteString("] ")
	// Pad level name to 5 chars for alignment (DEBUG/INFO /WARN /ERROR).
	b.WriteString(fmt.Sprintf("%-5s", entry.Level.String()))
	b.WriteString(" ")
	b.WriteString(entry.Message)

	// Append fields sorted by key for deterministic output.
	if len(entry.Fields) > 0 {
		keys := sortedKeys(entry.Fields)
		for _, k := range keys {
			b.WriteString(" ")
			b.WriteString(k)
			b.WriteString("=")
			b.WriteString(fmt.Sprintf("%v", entry.Fields[k]))
		}
	}
	return b.String()
}

// ---------------------------------------------------------------------------
// ColorFormatter
// ---------------------------------------------------------------------------

// ANSI color escape codes used by ColorFormatter.
const (
	ansiReset  = "\033[0m"
	ansiGray   = "\033[37m"
	ansiGreen  = "\033[32m"
	ansiYellow = "\033[33m"
	ansiRed    = "\033[31m"
)

// ColorFormatter renders log entries as ANSI-colored text. Each log level
// gets a distinct color:
//
//	DEBUG -> gray
//	INFO  -> green
//	WARN  -> yellow
//	ERROR -> red
type ColorFormatter struct {
	// TimeFormat controls the timestamp layout. Defaults to
	// "2006-01-02 15:04:05" when empty.
	TimeFormat string
}

// colorForLevel returns the ANSI escape sequence for the given level.
func colorForLevel(level LogLevel) string {
	switch level {
	case DEBUG:
		return ansiGray
	case INFO:
		return ansiGreen
	case WARN:
		return ansiYellow
	case ERROR:
		return ansiRed
	default:
		return ansiReset
	}
}

// Format produces a colored text line for the given entry.
func (f *ColorFormatter) Format(entry LogEntry) string {
	tf := f.TimeFormat
	if tf == "" {
		tf = "2006-01-02 15:04:05"
	}

	color := colorForLevel(entry.Level)

	var b strings.Builder
	b.WriteString("[")
	b.WriteString(entry.Timestamp.Format(tf))
	b.WriteString("] ")
	b.WriteString(color)
	b.WriteString(fmt.Sprintf("%-5s", entry.Level.String()))
	b.WriteString(ansiReset)
	b.WriteString(" ")
	b.WriteString(entry.Message)

	if len(entry.Fields) > 0 {
		keys := sortedKeys(entry.Fields)
		for _, k := range keys {
			b.WriteString(" ")
			b.WriteString(k)
			b.WriteString("=")
			b.WriteString(fmt.Sprintf("%v", entry.Fields[k]))
		}
	}
	return b.String()
}

// sortedKeys returns the map keys in sorted order.
func sortedKeys(m map[string]interface{}) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// ---------------------------------------------------------------------------
// ConsoleHandler
// ---------------------------------------------------------------------------

// ConsoleHandler is an slog.Handler that renders records through a
// LogFormatter, one line per record. It backs the human-readable stderr
// output used for interactive runs on the HTTP transport; stdio sessions
// stay on the JSON handler.
type ConsoleHandler struct {
	mu     *sync.Mutex
	w      io.Writer
	level  slog.Leveler
	f      LogFormatter
	attrs  []slog.Attr
	prefix string // dotted group prefix for nested keys
}

// NewConsoleHandler creates a ConsoleHandler writing formatted lines to w.
// A nil formatter defaults to TextFormatter.
func NewConsoleHandler(w io.Writer, level slog.Leveler, f LogFormatter) *ConsoleHandler {
	if f == nil {
		f = &TextFormatter{}
	}
	return &ConsoleHandler{
		mu:    &sync.Mutex{},
		w:     w,
		level: level,
		f:     f,
	}
}

// Enabled reports whether records at the given level are logged.
func (h *ConsoleHandler) Enabled(_ context.Context, l slog.Level) bool {
	min := slog.LevelInfo
	if h.level != nil {
		min = h.level.Level()
	}
	return l >= min
}

// Handle formats the record and writes it as a single line.
func (h *ConsoleHandler) Handle(_ context.Context, r slog.Record) error {
	entry := LogEntry{
		Timestamp: r.Time,
		Level:     levelFromSlog(r.Level),
		Message:   r.Message,
		Fields:    make(map[string]interface{}, r.NumAttrs()+len(h.attrs)),
	}
	for _, a := range h.attrs {
		appendAttr(entry.Fields, "", a)
	}
	r.Attrs(func(a slog.Attr) bool {
		appendAttr(entry.Fields, h.prefix, a)
		return true
	})

	line := h.f.Format(entry)
	h.mu.Lock()
	defer h.mu.Unlock()
	_, err := io.WriteString(h.w, line+"\n")
	return err
}

// WithAttrs returns a handler whose records carry the given attributes.
func (h *ConsoleHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	clone := *h
	clone.attrs = make([]slog.Attr, 0, len(h.attrs)+len(attrs))
	clone.attrs = append(clone.attrs, h.attrs...)
	for _, a := range attrs {
		// Bake the current group prefix into stored attrs now.
		clone.attrs = append(clone.attrs, slog.Attr{Key: h.prefix + a.Key, Value: a.Value})
	}
	return &clone
}

// WithGroup returns a handler that prefixes subsequent keys with name.
func (h *ConsoleHandler) WithGroup(name string) slog.Handler {
	if name == "" {
		return h
	}
	clone := *h
	clone.prefix = h.prefix + name + "."
	return &clone
}

// appendAttr resolves a and stores it under prefix, flattening groups into
// dotted keys.
func appendAttr(fields map[string]interface{}, prefix string, a slog.Attr) {
	a.Value = a.Value.Resolve()
	if a.Value.Kind() == slog.KindGroup {
		p := prefix
		if a.Key != "" {
			p = prefix + a.Key + "."
		}
		for _, ga := range a.Value.Group() {
			appendAttr(fields, p, ga)
		}
		return
	}
	if a.Key == "" {
		return
	}
	fields[prefix+a.Key] = a.Value.Any()
}
