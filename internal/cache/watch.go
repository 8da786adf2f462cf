package cache

import (
	"context"
	"errors"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/fsnotify/fsnotify"
)

// Watch notifies change listeners about entries written into the cache by
// other processes. It blocks until ctx is done. Commits made through this
// Cache are already reported and are not reported twice.
func (c *Cache) Watch(ctx context.Context) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer watcher.Close()

	c.watching.Store(true)
	defer c.watching.Store(false)

	if err := c.addWatchTree(watcher, c.cfg.Root, false); err != nil {
		return err
	}
	c.logger.Debug("Watching cache directory", "root", c.cfg.Root)

	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			c.handleEvent(watcher, event)

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			c.logger.Warn("Cache watcher error", "error", err)
		}
	}
}

func (c *Cache) handleEvent(watcher *fsnotify.Watcher, event fsnotify.Event) {
	if !event.Has(fsnotify.Create) {
		return
	}

	st, err := os.Stat(event.Name)
	if err != nil {
		return
	}
	if st.IsDir() {
		if err := c.addWatchTree(watcher, event.Name, true); err != nil {
			c.logger.Debug("Failed to watch cache directory", "dir", event.Name, "error", err)
		}
		return
	}

	c.reportExternal(event.Name)
}

// reportExternal notifies listeners about an audio entry this process did
// not commit.
func (c *Cache) reportExternal(path string) {
	name := filepath.Base(path)
	if isTemp(name) || isText(name) || c.wasCommitted(path) {
		return
	}
	c.logger.Debug("External cache entry", "path", path)
	c.touch(path)
}

// addWatchTree watches dir and every directory below it. fsnotify does not
// recurse on its own. With report set, files already present in a directory
// created after the watch started are reported, since they may have been
// renamed into place before the directory was watched.
func (c *Cache) addWatchTree(watcher *fsnotify.Watcher, dir string, report bool) error {
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if path == dir {
				return err
			}
			return nil
		}
		if d.IsDir() {
			return watcher.Add(path)
		}
		if report && d.Type().IsRegular() {
			c.reportExternal(path)
		}
		return nil
	})
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	return err
}
