package logger

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestInitOffDiscardsOutput(t *testing.T) {
	var buf bytes.Buffer
	if err := Init(Options{Level: "off", Writer: &buf}); err != nil {
		t.Fatalf("Init failed: %v", err)
	}
	t.Cleanup(Close)
	Error("should not appear %d", 1)
	if buf.Len() != 0 {
		t.Fatalf("expected no output, got %q", buf.String())
	}
}

func TestInitLevelFilters(t *testing.T) {
	var buf bytes.Buffer
	if err := Init(Options{Level: "warn", Writer: &buf}); err != nil {
		t.Fatalf("Init failed: %v", err)
	}
	t.Cleanup(Close)
	Info("hidden")
	Warn("nonce reset for %s", "0xabc")
	out := buf.String()
	if strings.Contains(out, "hidden") {
		t.Fatalf("info message leaked at warn level: %q", out)
	}
	if !strings.Contains(out, "nonce reset for 0xabc") || !strings.Contains(out, "[warn]") {
		t.Fatalf("unexpected output %q", out)
	}
}

func TestInitFileWritesJSON(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "nova.log")
	if err := Init(Options{Level: "debug", File: path}); err != nil {
		t.Fatalf("Init failed: %v", err)
	}
	l := With("executor")
	l.Info().Str("tx", "0x1").Msg("submitted")
	Close()

	raw, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read log: %v", err)
	}
	if !strings.Contains(string(raw), `"component":"executor"`) || !strings.Contains(string(raw), `"tx":"0x1"`) {
		t.Fatalf("unexpected log contents %q", string(raw))
	}
}

func TestParseLevelRejectsUnknown(t *testing.T) {
	if _, err := ParseLevel("loud"); err == nil {
		t.Fatal("expected unknown level error")
	}
}
