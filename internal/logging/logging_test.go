package logging

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"strings"
	"testing"
)

func TestContextWithLogger(t *testing.T) {
	t.Parallel()

	logger := slog.New(slog.NewTextHandler(&bytes.Buffer{}, nil))
	ctx := ContextWithLogger(context.Background(), logger)
	if got := FromContext(ctx); got != logger {
		t.Fatalf("expected logger to round trip through context")
	}
	if got := FromContext(context.Background()); got != nil {
		t.Fatalf("expected nil logger for bare context, got %v", got)
	}
}

func TestWith(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	ctx := ContextWithLogger(context.Background(), slog.New(slog.NewJSONHandler(&buf, nil)))
	ctx = With(ctx, "principal_id", "emp-7")
	FromContext(ctx).Info("request handled")

	if !strings.Contains(buf.String(), `"principal_id":"emp-7"`) {
		t.Fatalf("expected enriched logger output, got %q", buf.String())
	}
	if bare := With(context.Background(), "k", "v"); FromContext(bare) != nil {
		t.Fatalf("expected bare context to stay without logger")
	}
}

func TestNew(t *testing.T) {
	t.Parallel()

	t.Run("json by default", func(t *testing.T) {
		t.Parallel()

		var buf bytes.Buffer
		New(&buf, Options{Level: "warn"}).Info("dropped")
		New(&buf, Options{Level: "warn"}).Warn("kept", "shift_id", "s1")

		lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
		if len(lines) != 1 {
			t.Fatalf("expected one line at warn level, got %q", buf.String())
		}
		var entry map[string]any
		if err := json.Unmarshal([]byte(lines[0]), &entry); err != nil {
			t.Fatalf("expected JSON output: %v", err)
		}
		if entry["msg"] != "kept" || entry["shift_id"] != "s1" {
			t.Fatalf("unexpected entry %v", entry)
		}
	})

	t.Run("text uses tint", func(t *testing.T) {
		t.Parallel()

		var buf bytes.Buffer
		New(&buf, Options{Format: "text", NoColor: true}).Info("hello", "game_id", "g1")
		out := buf.String()
		if !strings.Contains(out, "hello") || !strings.Contains(out, "game_id=g1") {
			t.Fatalf("unexpected text output %q", out)
		}
	})
}

func TestParseLevel(t *testing.T) {
	t.Parallel()

	cases := map[string]slog.Level{
		"debug":   slog.LevelDebug,
		"INFO":    slog.LevelInfo,
		"warning": slog.LevelWarn,
		"error":   slog.LevelError,
		"":        slog.LevelInfo,
	}
	for input, want := range cases {
		if got := ParseLevel(input); got != want {
			t.Fatalf("ParseLevel(%q): expected %v, got %v", input, want, got)
		}
	}
}
