package gologger

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"strings"
	"testing"
)

type ctxKey struct{}

type contextHandler struct {
	slog.Handler
}

func (h contextHandler) Handle(ctx context.Context, record slog.Record) error {
	if value, ok := ctx.Value(ctxKey{}).(string); ok {
		record.AddAttrs(slog.String("request_id", value))
	}
	return h.Handler.Handle(ctx, record)
}

func (h contextHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return contextHandler{Handler: h.Handler.WithAttrs(attrs)}
}

func (h contextHandler) WithGroup(name string) slog.Handler {
	return contextHandler{Handler: h.Handler.WithGroup(name)}
}

func newBufferLogger(level slog.Level) (*bytes.Buffer, *slog.Logger) {
	buf := &bytes.Buffer{}
	handler := slog.NewJSONHandler(buf, &slog.HandlerOptions{Level: level})
	return buf, slog.New(contextHandler{Handler: handler})
}

func decodeLines(t *testing.T, buf *bytes.Buffer) []map[string]any {
	t.Helper()
	var out []map[string]any
	for _, line := range strings.Split(strings.TrimSpace(buf.String()), "\n") {
		if line == "" {
			continue
		}
		entry := map[string]any{}
		if err := json.Unmarshal([]byte(line), &entry); err != nil {
			t.Fatalf("decode log line %q: %v", line, err)
		}
		out = append(out, entry)
	}
	return out
}

func TestSlogLogger_WritesLevelsAndContext(t *testing.T) {
	buf, base := newBufferLogger(slog.LevelDebug)
	logger := NewSlogProvider(base).GetLogger("inbox")

	logger.Trace("dropped")
	logger.Debug("debug line", "k", "v")
	ctx := context.WithValue(context.Background(), ctxKey{}, "req-1")
	logger.WithContext(ctx).Warn("warn line", "inbox_id", "inbox_1")

	lines := decodeLines(t, buf)
	if len(lines) != 2 {
		t.Fatalf("expected trace to be filtered, got %d lines", len(lines))
	}
	if lines[0]["msg"] != "debug line" || lines[0]["k"] != "v" || lines[0]["logger"] != "inbox" {
		t.Fatalf("unexpected debug entry %#v", lines[0])
	}
	if lines[1]["level"] != "WARN" || lines[1]["request_id"] != "req-1" || lines[1]["inbox_id"] != "inbox_1" {
		t.Fatalf("unexpected warn entry %#v", lines[1])
	}
}

func TestSlogLogger_FatalExits(t *testing.T) {
	buf, base := newBufferLogger(slog.LevelInfo)
	logger := NewSlogLogger(base)
	code := -1
	logger.exit = func(c int) { code = c }
	logger.Fatal("boom")
	if code != 1 {
		t.Fatalf("expected exit code 1, got %d", code)
	}
	if lines := decodeLines(t, buf); len(lines) != 1 || lines[0]["level"] != "ERROR" {
		t.Fatalf("expected error entry before exit, got %#v", lines)
	}
}

func TestParseLevel(t *testing.T) {
	cases := map[string]slog.Level{
		"":        slog.LevelInfo,
		"TRACE":   LevelTrace,
		"debug":   slog.LevelDebug,
		"warning": slog.LevelWarn,
		"error":   slog.LevelError,
	}
	for input, want := range cases {
		if got := ParseLevel(input); got != want {
			t.Fatalf("ParseLevel(%q) = %v, want %v", input, got, want)
		}
	}
}

func TestGoJobBridge(t *testing.T) {
	buf, base := newBufferLogger(slog.LevelInfo)
	provider := NewSlogProvider(base)
	if ToJobLogger(nil) != nil || ToJobProvider(nil) != nil {
		t.Fatalf("expected nil bridges for nil inputs")
	}
	jobLogger := ToJobProvider(provider).GetLogger("worker")
	jobLogger.Info("job ran", "job_id", "j1")
	ToJobLogger(provider.GetLogger("queue")).Info("queued")

	lines := decodeLines(t, buf)
	if len(lines) != 2 || lines[0]["job_id"] != "j1" || lines[1]["logger"] != "queue" {
		t.Fatalf("unexpected bridged entries %#v", lines)
	}
}
