package cache

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"
)

// startWatch runs Watch until the test ends and returns a channel of
// changed subdirectories.
func startWatch(t *testing.T, c *Cache) <-chan string {
	t.Helper()

	changes := make(chan string, 32)
	var listen func(string)
	listen = func(subdir string) {
		changes <- subdir
		c.RegisterChangeListener(listen)
	}
	c.RegisterChangeListener(listen)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- c.Watch(ctx) }()
	t.Cleanup(func() {
		cancel()
		if err := <-done; err != nil {
			t.Errorf("Watch() error = %v", err)
		}
	})

	deadline := time.Now().Add(2 * time.Second)
	for !c.watching.Load() {
		if time.Now().After(deadline) {
			t.Fatal("watcher did not start")
		}
		time.Sleep(5 * time.Millisecond)
	}
	// Let the root watch register before writing.
	time.Sleep(100 * time.Millisecond)
	return changes
}

// writeExternal commits an entry the way another process would: create the
// directories, write a temp file, rename it into place.
func writeExternal(t *testing.T, c *Cache, key Key, fileType string) string {
	t.Helper()

	path := c.PathFor(key, fileType)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatal(err)
	}
	tmp := filepath.Join(filepath.Dir(path), "."+filepath.Base(path)+".1"+tmpSuffix)
	if err := os.WriteFile(tmp, audio(200), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.Rename(tmp, path); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestWatchReportsEntriesInNewDirectories(t *testing.T) {
	c := newTestCache(t, nil)
	changes := startWatch(t, c)

	engines := []string{"gtts", "piper", "google"}
	for _, engine := range engines {
		writeExternal(t, c, Key{Engine: engine, Language: "en", Territory: "us", Text: "hello " + engine}, "mp3")
	}

	seen := make(map[string]bool)
	timeout := time.After(3 * time.Second)
	for len(seen) < len(engines) {
		select {
		case subdir := <-changes:
			seen[subdir] = true
		case <-timeout:
			t.Fatalf("changes seen = %v, want all of %v", seen, engines)
		}
	}
	for subdir := range seen {
		switch subdir {
		case "gtts", "piper", "google":
		default:
			t.Errorf("unexpected change in %q", subdir)
		}
	}
}

func TestWatchReportsEntriesInExistingDirectory(t *testing.T) {
	c := newTestCache(t, nil)
	key := Key{Engine: "espeak", Language: "en", Territory: "gb", Text: "first"}
	if err := os.MkdirAll(filepath.Dir(c.PathFor(key, "wav")), 0o755); err != nil {
		t.Fatal(err)
	}
	changes := startWatch(t, c)

	writeExternal(t, c, key, "wav")

	select {
	case subdir := <-changes:
		if subdir != "espeak" {
			t.Errorf("changed subdir = %q, want espeak", subdir)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("external write not reported")
	}
}

func TestWatchIgnoresTextFiles(t *testing.T) {
	c := newTestCache(t, nil)
	changes := startWatch(t, c)

	key := Key{Engine: "gtts", Language: "en", Territory: "us", Text: "words"}
	path := c.PathFor(key, "mp3")
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(TextPath(path), []byte("words"), 0o644); err != nil {
		t.Fatal(err)
	}

	select {
	case subdir := <-changes:
		t.Errorf("text file reported as change in %q", subdir)
	case <-time.After(300 * time.Millisecond):
	}
}

func TestCommitTextLeavesNoWatchMarker(t *testing.T) {
	c := newTestCache(t, nil)
	c.watching.Store(true)
	defer c.watching.Store(false)

	key := Key{Engine: "mock", Language: "en", Territory: "us", Text: "marker"}
	if err := c.CommitText(c.PathFor(key, "mp3"), "marker"); err != nil {
		t.Fatalf("CommitText() error = %v", err)
	}

	c.commitMu.Lock()
	n := len(c.committed)
	c.commitMu.Unlock()
	if n != 0 {
		t.Errorf("committed markers = %d, want 0", n)
	}
}
