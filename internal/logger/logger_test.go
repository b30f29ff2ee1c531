package logger

import (
	"bytes"
	"context"
	"strings"
	"testing"

	"github.com/rs/zerolog"
)

func TestNew(t *testing.T) {
	log := New()
	if log.GetLevel() != zerolog.InfoLevel {
		t.Errorf("Expected info level, got %s", log.GetLevel())
	}
}

func TestNewWithWriter(t *testing.T) {
	buf := &bytes.Buffer{}
	log := NewWithWriter(buf)

	log.Info().Str("message_id", "abc").Msg("Parsed transaction")

	output := buf.String()
	if !strings.Contains(output, "Parsed transaction") {
		t.Errorf("Expected output to contain message, got: %s", output)
	}
	if !strings.Contains(output, `"message_id":"abc"`) {
		t.Errorf("Expected output to contain message_id field, got: %s", output)
	}
}

func TestWithLevel(t *testing.T) {
	buf := &bytes.Buffer{}
	log := NewWithWriter(buf)

	log.Debug().Msg("hidden")
	if buf.Len() != 0 {
		t.Fatalf("Expected debug to be filtered at info level, got: %s", buf.String())
	}

	debugLog := WithLevel(log, "DEBUG")
	debugLog.Debug().Msg("visible")
	if !strings.Contains(buf.String(), "visible") {
		t.Errorf("Expected debug output after WithLevel, got: %s", buf.String())
	}

	if got := WithLevel(log, "not-a-level").GetLevel(); got != zerolog.InfoLevel {
		t.Errorf("Expected unknown level to keep info, got %s", got)
	}
	if got := WithLevel(log, "").GetLevel(); got != zerolog.InfoLevel {
		t.Errorf("Expected empty level to keep info, got %s", got)
	}
}

func TestComponent(t *testing.T) {
	buf := &bytes.Buffer{}
	log := Component(NewWithWriter(buf), "watcher")
	log.Info().Msg("Starting")

	if !strings.Contains(buf.String(), `"component":"watcher"`) {
		t.Errorf("Expected component field, got: %s", buf.String())
	}
}

func TestWithContext(t *testing.T) {
	ctx := WithContext(context.Background(), New())

	if ctx.Value(LoggerKey) == nil {
		t.Error("Expected logger in context, got nil")
	}
}

func TestFromContext(t *testing.T) {
	buf := &bytes.Buffer{}
	ctx := WithContext(context.Background(), NewWithWriter(buf))

	retrieved := FromContext(ctx)
	retrieved.Info().Msg("test")

	if buf.Len() == 0 {
		t.Error("Expected log output from retrieved logger")
	}
}

func TestFromContext_DefaultLogger(t *testing.T) {
	log := FromContext(context.Background())

	if log.GetLevel() == zerolog.Disabled {
		t.Error("Expected default logger to be enabled")
	}
}

func TestWithFields(t *testing.T) {
	buf := &bytes.Buffer{}
	log := WithFields(NewWithWriter(buf), map[string]interface{}{
		"sender": "venmo@venmo.com",
		"listed": 3,
	})
	log.Info().Msg("Refresh finished")

	output := buf.String()
	if !strings.Contains(output, `"sender":"venmo@venmo.com"`) {
		t.Errorf("Expected sender field, got: %s", output)
	}
	if !strings.Contains(output, `"listed":3`) {
		t.Errorf("Expected listed field, got: %s", output)
	}
}
