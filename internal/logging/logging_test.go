package logging

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"

	"github.com/rs/zerolog"
)

func TestNewWithWriterLevels(t *testing.T) {
	var buf bytes.Buffer
	log := NewWithWriter(&buf, "warn", false)
	log.Info().Msg("hidden")
	log.Warn().Str("session", "s1").Msg("shown")

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 1 {
		t.Fatalf("expected one line, got %q", buf.String())
	}
	var entry map[string]any
	if err := json.Unmarshal([]byte(lines[0]), &entry); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if entry["session"] != "s1" || entry["message"] != "shown" {
		t.Fatalf("unexpected entry %v", entry)
	}
}

func TestUnknownLevelFallsBackToInfo(t *testing.T) {
	for _, level := range []string{"", "loud"} {
		if got := NewWithWriter(&bytes.Buffer{}, level, false).GetLevel(); got != zerolog.InfoLevel {
			t.Fatalf("level %q: got %v", level, got)
		}
	}
}

func TestPrettyOutput(t *testing.T) {
	var buf bytes.Buffer
	logger := NewWithWriter(&buf, "debug", true)
	logger.Debug().Msg("console")
	if strings.HasPrefix(buf.String(), "{") || !strings.Contains(buf.String(), "console") {
		t.Fatalf("expected console output, got %q", buf.String())
	}
}
