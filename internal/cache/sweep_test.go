package cache

import (
	"os"
	"testing"
	"time"
)

func TestSweeperRemovesExpired(t *testing.T) {
	c := newTestCache(t, func(cfg *Config) {
		cfg.ExpirationDays = 1
		cfg.SweepInterval = 20 * time.Millisecond
	})

	stale := Key{Engine: "gtts", Language: "en", Territory: "us", Text: "stale"}
	fresh := Key{Engine: "gtts", Language: "en", Territory: "us", Text: "fresh"}
	stalePath := writeEntry(t, c, stale, "mp3", audio(200))
	freshPath := writeEntry(t, c, fresh, "mp3", audio(200))
	if err := c.CommitText(stalePath, "stale"); err != nil {
		t.Fatal(err)
	}

	old := time.Now().Add(-48 * time.Hour)
	if err := os.Chtimes(stalePath, old, old); err != nil {
		t.Fatal(err)
	}

	deadline := time.Now().Add(3 * time.Second)
	for fileExists(stalePath) {
		if time.Now().After(deadline) {
			t.Fatal("sweeper did not remove expired entry")
		}
		time.Sleep(10 * time.Millisecond)
	}

	if fileExists(TextPath(stalePath)) {
		t.Error("text sibling of expired entry not removed")
	}
	if !fileExists(freshPath) {
		t.Error("sweeper removed a fresh entry")
	}
}

func TestSweeperStopsOnClose(t *testing.T) {
	c := newTestCache(t, func(cfg *Config) {
		cfg.ExpirationDays = 1
		cfg.SweepInterval = 10 * time.Millisecond
	})
	if err := c.Close(); err != nil {
		t.Fatal(err)
	}

	path := writeEntry(t, c, Key{Engine: "mock", Language: "en", Text: "kept"}, "wav", audio(200))
	old := time.Now().Add(-48 * time.Hour)
	if err := os.Chtimes(path, old, old); err != nil {
		t.Fatal(err)
	}

	time.Sleep(100 * time.Millisecond)
	if !fileExists(path) {
		t.Error("sweeper ran after Close")
	}
}

func TestRemoveKeepsSharedText(t *testing.T) {
	c := newTestCache(t, func(cfg *Config) { cfg.ExpirationDays = 7 })
	key := Key{Engine: "mock", Language: "en", Territory: "us", Text: "shared"}

	mp3 := writeEntry(t, c, key, "mp3", audio(200))
	wav := writeEntry(t, c, key, "wav", audio(200))
	if err := c.CommitText(mp3, "shared"); err != nil {
		t.Fatal(err)
	}

	old := time.Now().Add(-30 * 24 * time.Hour)
	if err := os.Chtimes(mp3, old, old); err != nil {
		t.Fatal(err)
	}

	info := c.GetBestPath(key, []string{"mp3", "wav"})
	if !info.Exists || info.FileType != "wav" {
		t.Fatalf("GetBestPath() = %+v, want wav hit", info)
	}
	if !info.TextExists {
		t.Error("text sibling removed while wav still valid")
	}
	if fileExists(mp3) {
		t.Error("expired mp3 not removed")
	}

	if err := os.Chtimes(wav, old, old); err != nil {
		t.Fatal(err)
	}
	if info := c.GetBestPath(key, []string{"mp3", "wav"}); info.Exists {
		t.Fatal("expired wav reported as hit")
	}
	if fileExists(TextPath(wav)) {
		t.Error("text sibling kept after last audio file removed")
	}
}
