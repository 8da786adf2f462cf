package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/charmbracelet/log"
	"github.com/dgnsrekt/mediavoice/internal/cache"
	"github.com/dgnsrekt/mediavoice/internal/config"
)

func TestReadTextsFromArgs(t *testing.T) {
	texts, err := readTexts([]string{"hello", "world"})
	if err != nil {
		t.Fatal(err)
	}
	if len(texts) != 1 || texts[0] != "hello world" {
		t.Errorf("texts = %q", texts)
	}
}

func TestReadTextsFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "phrases.txt")
	if err := os.WriteFile(path, []byte("first\n\n  second  \n"), 0o644); err != nil {
		t.Fatal(err)
	}
	textFile = path
	t.Cleanup(func() { textFile = "" })

	texts, err := readTexts(nil)
	if err != nil {
		t.Fatal(err)
	}
	if len(texts) != 2 || texts[0] != "first" || texts[1] != "second" {
		t.Errorf("texts = %q", texts)
	}
}

func TestEnsureConfigFile(t *testing.T) {
	prev := configFile
	t.Cleanup(func() { configFile = prev })

	configFile = filepath.Join(t.TempDir(), "nested", "mediavoice.yml")
	if err := ensureConfigFile(); err != nil {
		t.Fatal(err)
	}
	if err := config.CheckFile(configFile); err != nil {
		t.Fatalf("default config is not valid YAML: %v", err)
	}
	b, err := os.ReadFile(configFile)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(b), "engine: espeak") {
		t.Errorf("default config missing engine:\n%s", b)
	}

	configFile = filepath.Join(t.TempDir(), "mediavoice.toml")
	if err := ensureConfigFile(); err == nil {
		t.Error("expected error for unsupported extension")
	}
}

func TestDependencyReport(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Piper.Binary = "definitely-not-installed-piper"
	deps := checkDependencies(cfg)

	var mock, piper *dependency
	for i := range deps {
		switch deps[i].Name {
		case "mock":
			mock = &deps[i]
		case "piper":
			piper = &deps[i]
		}
	}
	if mock == nil || !mock.Installed {
		t.Error("mock engine should always be usable")
	}
	if piper == nil || piper.Installed {
		t.Error("missing piper binary reported as installed")
	}

	report := dependencyReport(deps)
	for _, want := range []string{"Engines:", "Players:", "piper"} {
		if !strings.Contains(report, want) {
			t.Errorf("report missing %q", want)
		}
	}
}

// syncBuffer is a bytes.Buffer safe for the watcher goroutine.
type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func TestWatchCacheLogsExternalEntries(t *testing.T) {
	cfg := cache.DefaultConfig(t.TempDir())
	cfg.SweepInterval = 0
	c, err := cache.New(cfg, nil)
	if err != nil {
		t.Fatal(err)
	}
	defer c.Close() //nolint:errcheck

	var out syncBuffer
	logger := log.NewWithOptions(&out, log.Options{Level: log.DebugLevel})

	stop := watchCache(context.Background(), c, logger)
	defer stop()
	time.Sleep(100 * time.Millisecond)

	key := cache.Key{Engine: "piper", Language: "en", Territory: "us", Text: "from elsewhere"}
	path := c.PathFor(key, "wav")
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, bytes.Repeat([]byte{1}, 200), 0o644); err != nil {
		t.Fatal(err)
	}

	deadline := time.Now().Add(3 * time.Second)
	for !strings.Contains(out.String(), "engine=piper") {
		if time.Now().After(deadline) {
			t.Fatalf("external entry not logged, output: %q", out.String())
		}
		time.Sleep(10 * time.Millisecond)
	}
}
