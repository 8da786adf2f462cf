package logging

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/charmbracelet/log"
)

func TestSetupInfo(t *testing.T) {
	prev := log.Default()
	t.Cleanup(func() { log.SetDefault(prev) })

	var buf bytes.Buffer
	logger, closer, err := Setup(Options{Output: &buf})
	if err != nil {
		t.Fatal(err)
	}
	defer closer()

	logger.Debug("hidden")
	logger.Info("shown", "key", "value")

	out := buf.String()
	if strings.Contains(out, "hidden") {
		t.Error("debug message logged at info level")
	}
	if !strings.Contains(out, "key=value") {
		t.Errorf("expected logfmt output, got %q", out)
	}
}

func TestSetupDebugWritesFile(t *testing.T) {
	prev := log.Default()
	t.Cleanup(func() { log.SetDefault(prev) })

	dir := t.TempDir()
	var buf bytes.Buffer
	logger, closer, err := Setup(Options{Debug: true, Output: &buf, LogDir: dir})
	if err != nil {
		t.Fatal(err)
	}

	logger.Debug("generation started", "phrase", 7)
	if err := closer(); err != nil {
		t.Fatal(err)
	}

	b, err := os.ReadFile(filepath.Join(dir, DebugLogName))
	if err != nil {
		t.Fatalf("debug log not written: %v", err)
	}
	if !strings.Contains(string(b), "generation started") {
		t.Errorf("debug log = %q", b)
	}
	if !strings.Contains(buf.String(), "generation started") {
		t.Error("debug message missing from console")
	}
}
