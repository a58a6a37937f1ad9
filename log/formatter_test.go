package log

import (
	"bytes"
	"context"
	"log/slog"
	"strings"
	"testing"
	"time"
)

// fixed timestamp used across tests for deterministic output.
var testTime = time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)

func makeEntry(level LogLevel, msg string, fields map[string]interface{}) LogEntry {
	return LogEntry{
		Timestamp: testTime,
		Level:     level,
		Message:   msg,
		Fields:    fields,
	}
}

// ---------------------------------------------------------------------------
// LogLevel tests
// ---------------------------------------------------------------------------

func TestLogLevel_String(t *testing.T) {
	tests := []struct {
		level LogLevel
		want  string
	}{
		{DEBUG, "DEBUG"},
		{INFO, "INFO"},
		{WARN, "WARN"},
		{ERROR, "ERROR"},
		{LogLevel(99), "LEVEL(99)"},
	}
	for _, tt := range tests {
		got := tt.level.String()
		if got != tt.want {
			t.Errorf("LogLevel(%d).String() = %q, want %q", int(tt.level), got, tt.want)
		}
	}
}

func TestLevelFromSlog(t *testing.T) {
	tests := []struct {
		in   slog.Level
		want LogLevel
	}{
		{slog.LevelDebug, DEBUG},
		{slog.LevelDebug + 1, DEBUG},
		{slog.LevelInfo, INFO},
		{slog.LevelWarn, WARN},
		{slog.LevelError, ERROR},
		{slog.LevelError + 4, ERROR},
	}
	for _, tt := range tests {
		got := levelFromSlog(tt.in)
		if got != tt.want {
			t.Errorf("levelFromSlog(%v) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

// ---------------------------------------------------------------------------
// TextFormatter tests
// ---------------------------------------------------------------------------

func TestTextFormatter_Basic(t *testing.T) {
	f := &TextFormatter{}
	entry := makeEntry(INFO, "gateway started", nil)
	out := f.Format(entry)

	if !strings.Contains(out, "[2024-01-01 12:00:00]") {
		t.Errorf("missing timestamp in output: %s", out)
	}
	if !strings.Contains(out, "INFO") {
		t.Errorf("missing level in output: %s", out)
	}
	if !strings.Contains(out, "gateway started") {
		t.Errorf("missing message in output: %s", out)
	}
}

func TestTextFormatter_WithFields(t *testing.T) {
	f := &TextFormatter{}
	fields := map[string]interface{}{
		"port":  3000,
		"chain": "iota",
	}
	entry := makeEntry(INFO, "listening", fields)
	out := f.Format(entry)

	// Fields are sorted alphabetically.
	if !strings.Contains(out, "chain=iota") {
		t.Errorf("missing chain field: %s", out)
	}
	if !strings.Contains(out, "port=3000") {
		t.Errorf("missing port field: %s", out)
	}
	// chain should come before port (alphabetical).
	chainIdx := strings.Index(out, "chain=")
	portIdx := strings.Index(out, "port=")
	if chainIdx > portIdx {
		t.Errorf("fields not sorted: chain at %d, port at %d", chainIdx, portIdx)
	}
}

func TestTextFormatter_CustomTimeFormat(t *testing.T) {
	f := &TextFormatter{TimeFormat: time.RFC822}
	entry := makeEntry(WARN, "slow", nil)
	out := f.Format(entry)

	expected := testTime.Format(time.RFC822)
	if !strings.Contains(out, expected) {
		t.Errorf("expected time format %q in output: %s", expected, out)
	}
}

func TestTextFormatter_LevelPadding(t *testing.T) {
	f := &TextFormatter{}
	// INFO is 4 chars, padded to 5 -> "INFO " with trailing space.
	entry := makeEntry(INFO, "msg", nil)
	out := f.Format(entry)
	if !strings.Contains(out, "INFO ") {
		t.Errorf("expected padded 'INFO ' in output: %s", out)
	}

	// ERROR is 5 chars, no extra padding needed.
	entry2 := makeEntry(ERROR, "msg", nil)
	out2 := f.Format(entry2)
	if !strings.Contains(out2, "ERROR") {
		t.Errorf("expected 'ERROR' in output: %s", out2)
	}
}

// ---------------------------------------------------------------------------
// ColorFormatter tests
// ---------------------------------------------------------------------------

func TestColorFormatter_ContainsANSI(t *testing.T) {
	f := &ColorFormatter{}
	levels := []LogLevel{DEBUG, INFO, WARN, ERROR}

	for _, lvl := range levels {
		entry := makeEntry(lvl, "test", nil)
		out := f.Format(entry)

		// Every colored output must contain the reset sequence.
		if !strings.Contains(out, ansiReset) {
			t.Errorf("level %v: missing ANSI reset in output: %s", lvl, out)
		}
		// Must contain the level name.
		if !strings.Contains(out, lvl.String()) {
			t.Errorf("level %v: missing level name in output: %s", lvl, out)
		}
	}
}

func TestColorFormatter_DifferentColors(t *testing.T) {
	// Verify that different levels produce different color codes.
	colors := make(map[string]LogLevel)
	for _, lvl := range []LogLevel{DEBUG, INFO, WARN, ERROR} {
		c := colorForLevel(lvl)
		if prev, exists := colors[c]; exists {
			t.Errorf("levels %v and %v share the same color code %q", prev, lvl, c)
		}
		colors[c] = lvl
	}
}

func TestColorFormatter_WithFields(t *testing.T) {
	f := &ColorFormatter{}
	fields := map[string]interface{}{"key": "value"}
	entry := makeEntry(INFO, "msg", fields)
	out := f.Format(entry)

	if !strings.Contains(out, "key=value") {
		t.Errorf("missing field in colored output: %s", out)
	}
}

// ---------------------------------------------------------------------------
// LogEntry tests
// ---------------------------------------------------------------------------

func TestLogEntry_NilFields(t *testing.T) {
	// Formatters must handle nil Fields gracefully.
	entry := LogEntry{
		Timestamp: testTime,
		Level:     INFO,
		Message:   "no fields",
		Fields:    nil,
	}

	text := (&TextFormatter{}).Format(entry)
	if !strings.Contains(text, "no fields") {
		t.Errorf("TextFormatter failed with nil fields: %s", text)
	}

	color := (&ColorFormatter{}).Format(entry)
	if !strings.Contains(color, "no fields") {
		t.Errorf("ColorFormatter failed with nil fields: %s", color)
	}
}

// ---------------------------------------------------------------------------
// ConsoleHandler tests
// ---------------------------------------------------------------------------

func TestConsoleHandler_RendersRecord(t *testing.T) {
	var buf bytes.Buffer
	h := NewConsoleHandler(&buf, slog.LevelInfo, &TextFormatter{})
	l := NewWithHandler(h)

	l.Info("tool invoked", "tool", "get_gas_price", "chain", "shimmer")

	out := buf.String()
	if !strings.Contains(out, "tool invoked") {
		t.Fatalf("missing message in output: %s", out)
	}
	if !strings.Contains(out, "tool=get_gas_price") {
		t.Errorf("missing tool field: %s", out)
	}
	if !strings.Contains(out, "chain=shimmer") {
		t.Errorf("missing chain field: %s", out)
	}
	if !strings.HasSuffix(out, "\n") {
		t.Errorf("output not newline-terminated: %q", out)
	}
}

func TestConsoleHandler_LevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	h := NewConsoleHandler(&buf, slog.LevelWarn, &TextFormatter{})
	l := NewWithHandler(h)

	l.Info("ignored")
	if buf.Len() != 0 {
		t.Fatalf("info record passed a warn-level handler: %s", buf.String())
	}

	l.Warn("kept")
	if !strings.Contains(buf.String(), "kept") {
		t.Fatalf("warn record dropped: %s", buf.String())
	}
}

func TestConsoleHandler_ModuleAttr(t *testing.T) {
	var buf bytes.Buffer
	h := NewConsoleHandler(&buf, slog.LevelDebug, &TextFormatter{})
	l := NewWithHandler(h).Module("arb")

	l.Debug("scan complete", "pairs", 4)

	out := buf.String()
	if !strings.Contains(out, "module=arb") {
		t.Errorf("missing module attr: %s", out)
	}
	if !strings.Contains(out, "pairs=4") {
		t.Errorf("missing record attr: %s", out)
	}
}

func TestConsoleHandler_GroupsFlattened(t *testing.T) {
	var buf bytes.Buffer
	h := NewConsoleHandler(&buf, slog.LevelDebug, &TextFormatter{})
	l := slog.New(h).WithGroup("rpc")

	l.Info("call", "method", "eth_blockNumber")

	out := buf.String()
	if !strings.Contains(out, "rpc.method=eth_blockNumber") {
		t.Errorf("group prefix not applied: %s", out)
	}
}

func TestConsoleHandler_DefaultFormatter(t *testing.T) {
	var buf bytes.Buffer
	h := NewConsoleHandler(&buf, slog.LevelInfo, nil)
	if err := h.Handle(context.Background(), slog.NewRecord(testTime, slog.LevelInfo, "msg", 0)); err != nil {
		t.Fatalf("Handle: %v", err)
	}
	if !strings.Contains(buf.String(), "msg") {
		t.Fatalf("nil formatter did not default to text: %s", buf.String())
	}
}

// ---------------------------------------------------------------------------
// Interface compliance
// ---------------------------------------------------------------------------

func TestFormatterInterfaceCompliance(t *testing.T) {
	// Compile-time check that both formatters satisfy LogFormatter and the
	// console handler satisfies slog.Handler.
	var _ LogFormatter = (*TextFormatter)(nil)
	var _ LogFormatter = (*ColorFormatter)(nil)
	var _ slog.Handler = (*ConsoleHandler)(nil)
}
