package logx

import (
	"bytes"
	"context"
	"encoding/json"
	"testing"

	"github.com/rs/zerolog/log"
)

func TestWithSessionTagsContextLogger(t *testing.T) {
	var buf bytes.Buffer
	InitWriter(&buf, Config{Debug: true})

	ctx := WithSession(context.Background(), "s-1")
	log.Ctx(ctx).Debug().Str("tool", "list_events").Msg("hello")

	var entry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("expected one json line, got %q: %v", buf.String(), err)
	}
	if entry["session_id"] != "s-1" || entry["tool"] != "list_events" || entry["level"] != "debug" {
		t.Fatalf("unexpected entry: %v", entry)
	}
}

func TestInitRespectsLevel(t *testing.T) {
	var buf bytes.Buffer
	InitWriter(&buf, Config{})

	log.Ctx(context.Background()).Debug().Msg("hidden")
	if buf.Len() != 0 {
		t.Fatalf("debug line written at info level: %q", buf.String())
	}
}
