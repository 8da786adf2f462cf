package cache

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"
)

// staleTempAge is how old an orphaned temp file must be before the sweeper
// removes it. Younger temp files may belong to a write in progress.
const staleTempAge = time.Hour

// startSweeper starts the background expiration goroutine.
func (c *Cache) startSweeper() {
	ticker := time.NewTicker(c.cfg.SweepInterval)
	c.sweepWg.Add(1)

	go func() {
		defer c.sweepWg.Done()
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				removed, bytes, err := c.Purge(true)
				if err != nil {
					c.logger.Warn("Cache sweep failed", "error", err)
					continue
				}
				if removed > 0 {
					c.logger.Debug("Cache sweep removed entries", "count", removed, "bytes", bytes)
				}
			case <-c.sweepStop:
				return
			}
		}
	}()
}

// walkEntries visits every regular file under the root. Unreadable
// directories are skipped.
func (c *Cache) walkEntries(fn func(path string, d fs.DirEntry, info fs.FileInfo)) error {
	err := filepath.WalkDir(c.cfg.Root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if path == c.cfg.Root {
				return err
			}
			c.logger.Debug("Skipping unreadable cache path", "path", path, "error", err)
			if d != nil && d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if d.IsDir() || !d.Type().IsRegular() {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return nil
		}
		fn(path, d, info)
		return nil
	})
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	return err
}

func isTemp(name string) bool {
	return strings.HasPrefix(name, ".") && strings.HasSuffix(name, tmpSuffix)
}

func isText(name string) bool {
	return strings.HasSuffix(name, "."+TextSuffix)
}

// Stats walks the cache and summarizes usage per engine.
func (c *Cache) Stats() (Stats, error) {
	stats := Stats{Root: c.cfg.Root}
	byEngine := make(map[string]*EngineStats)

	err := c.walkEntries(func(path string, d fs.DirEntry, info fs.FileInfo) {
		if isTemp(d.Name()) {
			stats.TempFiles++
			return
		}
		engine := c.topLevel(path)
		if engine == "" {
			return
		}
		es, ok := byEngine[engine]
		if !ok {
			es = &EngineStats{Engine: engine}
			byEngine[engine] = es
		}
		es.Bytes += info.Size()
		stats.Bytes += info.Size()
		if isText(d.Name()) {
			return
		}
		es.Entries++
		stats.Entries++
		if c.isExpired(info.ModTime()) {
			es.Expired++
			stats.Expired++
		}
	})
	if err != nil {
		return stats, err
	}

	for _, es := range byEngine {
		stats.Engines = append(stats.Engines, *es)
	}
	sort.Slice(stats.Engines, func(i, j int) bool {
		return stats.Engines[i].Engine < stats.Engines[j].Engine
	})
	return stats, nil
}

// Purge removes cache entries. With expiredOnly set it removes only
// expired or truncated entries and orphaned temp files; otherwise it
// removes everything. It returns the number of audio entries removed and
// the bytes freed.
func (c *Cache) Purge(expiredOnly bool) (int, int64, error) {
	var (
		removed int
		freed   int64
	)

	err := c.walkEntries(func(path string, d fs.DirEntry, info fs.FileInfo) {
		name := d.Name()
		switch {
		case isTemp(name):
			if expiredOnly && time.Since(info.ModTime()) < staleTempAge {
				return
			}
		case isText(name):
			if expiredOnly {
				return
			}
		default:
			if expiredOnly && !c.isExpired(info.ModTime()) && info.Size() >= c.cfg.MinFileSize {
				return
			}
			removed++
			if expiredOnly {
				if !c.hasSibling(path) {
					if st, err := os.Stat(TextPath(path)); err == nil {
						freed += st.Size()
					}
				}
				c.remove(path)
				freed += info.Size()
				return
			}
		}

		if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
			c.logger.Warn("Failed to remove cache file", "path", path, "error", err)
			return
		}
		freed += info.Size()
	})
	if err != nil {
		return removed, freed, err
	}

	if !expiredOnly {
		c.removeEmptyDirs()
	}
	return removed, freed, nil
}

// removeEmptyDirs prunes empty directories below the root, deepest first.
func (c *Cache) removeEmptyDirs() {
	var dirs []string
	_ = filepath.WalkDir(c.cfg.Root, func(path string, d fs.DirEntry, err error) error {
		if err == nil && d.IsDir() && path != c.cfg.Root {
			dirs = append(dirs, path)
		}
		return nil
	})
	for i := len(dirs) - 1; i >= 0; i-- {
		_ = os.Remove(dirs[i])
	}
}
