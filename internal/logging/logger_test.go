package logging

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/charmbracelet/log"
)

func TestHelpersNoopBeforeInit(t *testing.T) {
	Logger = nil
	Info("nothing", "k", "v")
	Warn("nothing")
	Error("nothing")
	Debug("nothing")
}

func TestInitLevel(t *testing.T) {
	defer func() { Logger = nil }()

	var buf bytes.Buffer
	Init(&buf, "warn")
	Info("hidden")
	Warn("ambiguous location", "post", "p1")

	out := buf.String()
	if strings.Contains(out, "hidden") {
		t.Errorf("info line written at warn level: %q", out)
	}
	if !strings.Contains(out, "ambiguous location") || !strings.Contains(out, "post=p1") {
		t.Errorf("warn line missing: %q", out)
	}
}

func TestParseLevel(t *testing.T) {
	tests := map[string]log.Level{
		"debug":   log.DebugLevel,
		" WARN ":  log.WarnLevel,
		"warning": log.WarnLevel,
		"error":   log.ErrorLevel,
		"":        log.InfoLevel,
		"chatty":  log.InfoLevel,
	}
	for in, want := range tests {
		if got := ParseLevel(in); got != want {
			t.Errorf("ParseLevel(%q) = %v, want %v", in, got, want)
		}
	}
}

func TestInitFile(t *testing.T) {
	defer func() {
		Close()
		Logger = nil
	}()

	dir := t.TempDir()
	if err := InitFile(dir, "info"); err != nil {
		t.Fatalf("InitFile() err = %v", err)
	}
	Info("batch complete", "posts", 3)
	Close()

	matches, _ := filepath.Glob(filepath.Join(dir, "logs", "cuas-*.log"))
	if len(matches) != 1 {
		t.Fatalf("log files = %v, want 1", matches)
	}
	data, err := os.ReadFile(matches[0])
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(data), "batch complete") {
		t.Errorf("log file = %q", data)
	}
}
