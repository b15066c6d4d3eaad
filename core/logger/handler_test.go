package logger

import (
	"bytes"
	"io"
	"log/slog"
	"strings"
	"testing"
)

func newTestHandler(buf *bytes.Buffer, format logFormat) *structuredHandler {
	return newStructuredHandler(handlerConfig{
		level:   slog.LevelInfo,
		writers: []io.Writer{buf},
		format:  format,
	})
}

func TestStructuredHandlerKVOrder(t *testing.T) {
	buf := &bytes.Buffer{}
	handler := newTestHandler(buf, formatKV)

	ctx := WithRID(nil, "rid-123")
	ctx = WithUpdateMeta(ctx, 42, 7, 9)

	log := slog.New(handler).With("component", "session")
	LogEvent(ctx, log, slog.LevelInfo, "test.event",
		slog.String("status", "ok"),
	)

	line := strings.TrimSpace(buf.String())
	if line == "" {
		t.Fatal("expected log line")
	}
	tokens := strings.Split(line, " ")
	expected := []string{"ts=", "level=INFO", "component=session", "event=test.event", "status=ok", "rid=rid-123"}
	if len(tokens) < len(expected) {
		t.Fatalf("unexpected token count: %d (%s)", len(tokens), line)
	}
	for i, prefix := range expected {
		if !strings.HasPrefix(tokens[i], prefix) {
			t.Fatalf("token %d = %s, expected prefix %s", i, tokens[i], prefix)
		}
	}
	if !strings.Contains(line, "user_id=7") || !strings.Contains(line, "chat_id=9") {
		t.Fatalf("expected context meta in line: %s", line)
	}
}

func TestStructuredHandlerJSONOrder(t *testing.T) {
	buf := &bytes.Buffer{}
	handler := newTestHandler(buf, formatJSON)

	ctx := WithRID(nil, "rid-json")
	log := slog.New(handler).With("component", "flow.expense")
	LogEvent(ctx, log, slog.LevelError, "commit.failed",
		slog.String("status", "fail"),
		slog.String("err", "boom"),
	)

	line := strings.TrimSpace(buf.String())
	if !strings.HasPrefix(line, "{") {
		t.Fatalf("expected JSON, got %s", line)
	}
	prefixes := []string{`{"ts":`, `"level":"ERROR"`, `"component":"flow.expense"`, `"event":"commit.failed"`, `"status":"fail"`, `"rid":"rid-json"`}
	pos := -1
	for _, pref := range prefixes {
		idx := strings.Index(line, pref)
		if idx == -1 || idx < pos {
			t.Fatalf("prefix %s not found in order within %s", pref, line)
		}
		pos = idx
	}
}

func TestStructuredHandlerCompactRID(t *testing.T) {
	buf := &bytes.Buffer{}
	handler := newTestHandler(buf, formatKV)

	rawRID := "123:456:789"
	ctx := WithRID(nil, rawRID)
	log := slog.New(handler).With("component", "app")
	LogEvent(ctx, log, slog.LevelInfo, "rid.test", slog.String("status", "ok"))

	line := strings.TrimSpace(buf.String())
	if !strings.Contains(line, "rid="+CompactRID(rawRID)) {
		t.Fatalf("expected compact rid, got %s", line)
	}
	if strings.Contains(line, "rid_full=") {
		t.Fatalf("rid_full should be omitted in KV output, got %s", line)
	}
}

func TestStructuredHandlerDurationNormalized(t *testing.T) {
	buf := &bytes.Buffer{}
	handler := newTestHandler(buf, formatKV)

	log := slog.New(handler).With("component", "db")
	LogEvent(nil, log, slog.LevelInfo, "query",
		slog.Duration("duration", 1500000), // 1.5ms
	)

	line := strings.TrimSpace(buf.String())
	if !strings.Contains(line, "duration_ms=2") {
		t.Fatalf("expected rounded duration_ms, got %s", line)
	}
}

func TestCompactRIDPassthrough(t *testing.T) {
	for _, rid := range []string{"", "not-a-rid", "1:2", "a:b:c"} {
		if got := CompactRID(rid); got != rid {
			t.Fatalf("CompactRID(%q) = %q, expected passthrough", rid, got)
		}
	}
	if got := CompactRID("10:10:10"); got != "a.a.a" {
		t.Fatalf("CompactRID(10:10:10) = %q, expected a.a.a", got)
	}
}
