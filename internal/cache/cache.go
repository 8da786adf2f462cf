package cache

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/charmbracelet/log"
)

// Cache is a content-addressed audio cache rooted at one directory.
type Cache struct {
	cfg    Config
	logger *log.Logger

	lockMu sync.Mutex
	locks  map[string]*targetLock

	listenMu  sync.Mutex
	listeners []func(subdir string)
	pending   []string

	commitMu  sync.Mutex
	committed map[string]time.Time
	watching  atomic.Bool

	sweepStop chan struct{}
	sweepWg   sync.WaitGroup
	closeOnce sync.Once
}

// targetLock serializes writers of one cache path. It is a one-slot
// semaphore so waiting can observe cancellation.
type targetLock struct {
	sem  chan struct{}
	refs int
}

// New creates a cache rooted at cfg.Root, creating the root if needed.
func New(cfg Config, logger *log.Logger) (*Cache, error) {
	cfg = cfg.withDefaults()
	if cfg.Root == "" {
		return nil, errors.New("cache root not set")
	}
	if logger == nil {
		logger = log.Default()
	}
	if err := os.MkdirAll(cfg.Root, cfg.DirMode); err != nil {
		return nil, fmt.Errorf("failed to create cache directory: %w", err)
	}

	c := &Cache{
		cfg:       cfg,
		logger:    logger.WithPrefix("cache"),
		locks:     make(map[string]*targetLock),
		committed: make(map[string]time.Time),
		sweepStop: make(chan struct{}),
	}

	if cfg.SweepInterval > 0 && cfg.maxAge() > 0 {
		c.startSweeper()
	}
	return c, nil
}

// Root returns the cache root directory.
func (c *Cache) Root() string {
	return c.cfg.Root
}

// Config returns the effective configuration.
func (c *Cache) Config() Config {
	return c.cfg
}

// PathFor returns the absolute path of key's entry with the given suffix.
func (c *Cache) PathFor(key Key, fileType string) string {
	return filepath.Join(c.cfg.Root, key.RelPath(fileType))
}

// GetBestPath returns the first candidate file type whose entry exists and
// validates. Expired, truncated, or unreadable entries are skipped; expired
// and truncated ones are deleted. When nothing validates, the path for the
// most preferred type is returned with Exists false.
func (c *Cache) GetBestPath(key Key, fileTypes []string) Info {
	if len(fileTypes) == 0 {
		return Info{}
	}

	var best Info
	for i, ft := range fileTypes {
		path := c.PathFor(key, ft)
		info := Info{Path: path, FileType: ft}
		if i == 0 {
			best = info
		}
		if !c.validate(path) {
			continue
		}
		info.Exists = true
		info.TextExists = fileExists(TextPath(path))
		return info
	}

	best.TextExists = fileExists(TextPath(best.Path))
	return best
}

// validate checks one candidate path.
func (c *Cache) validate(path string) bool {
	st, err := os.Stat(path)
	if err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			c.logger.Debug("Cache stat failed", "path", path, "error", err)
		}
		return false
	}
	if !st.Mode().IsRegular() {
		return false
	}

	if st.Size() < c.cfg.MinFileSize {
		c.logger.Debug("Removing truncated cache entry", "path", path, "size", st.Size())
		c.remove(path)
		return false
	}

	f, err := os.Open(path)
	if err != nil {
		c.logger.Debug("Cache entry not readable", "path", path, "error", err)
		return false
	}
	_ = f.Close()

	if c.isExpired(st.ModTime()) {
		c.logger.Debug("Removing expired cache entry", "path", path, "modified", st.ModTime())
		c.remove(path)
		return false
	}
	return true
}

func (c *Cache) isExpired(mtime time.Time) bool {
	maxAge := c.cfg.maxAge()
	return maxAge > 0 && time.Since(mtime) > maxAge
}

// remove deletes a stale entry. The text sibling is shared by every file
// type of the same hash and goes only with the last one. Failures are
// logged.
func (c *Cache) remove(path string) {
	paths := []string{path}
	if !c.hasSibling(path) {
		paths = append(paths, TextPath(path))
	}
	for _, p := range paths {
		if err := os.Remove(p); err != nil && !errors.Is(err, fs.ErrNotExist) {
			c.logger.Warn("Failed to remove cache file", "path", p, "error", err)
		}
	}
}

// hasSibling reports whether another audio file with the same hash as path
// exists next to it.
func (c *Cache) hasSibling(path string) bool {
	dir := filepath.Dir(path)
	base := filepath.Base(path)
	stem := strings.TrimSuffix(base, filepath.Ext(base))

	entries, err := os.ReadDir(dir)
	if err != nil {
		return false
	}
	for _, e := range entries {
		name := e.Name()
		if name == base || !e.Type().IsRegular() || isTemp(name) || isText(name) {
			continue
		}
		if strings.TrimSuffix(name, filepath.Ext(name)) == stem {
			return true
		}
	}
	return false
}

// TempFile is an uncommitted write destined for a cache path.
type TempFile struct {
	// Path is the temporary file's location, in the same directory as the
	// final path.
	Path string

	// File is the open handle, or nil when only the directory was created.
	File *os.File
}

// Write implements io.Writer.
func (t *TempFile) Write(p []byte) (int, error) {
	if t == nil || t.File == nil {
		return 0, os.ErrInvalid
	}
	return t.File.Write(p)
}

// Size returns the bytes written so far.
func (t *TempFile) Size() int64 {
	if t == nil || t.File == nil {
		return 0
	}
	st, err := t.File.Stat()
	if err != nil {
		return 0
	}
	return st.Size()
}

// CreateTmpSoundFile creates the directory for finalPath and, unless
// dirOnly, opens a temporary file beside it.
func (c *Cache) CreateTmpSoundFile(finalPath string, dirOnly bool) (*TempFile, error) {
	dir := filepath.Dir(finalPath)
	if err := os.MkdirAll(dir, c.cfg.DirMode); err != nil {
		c.logger.Warn("Failed to create cache directory", "dir", dir, "error", err)
		return nil, fmt.Errorf("failed to create cache directory: %w", err)
	}
	if dirOnly {
		return &TempFile{}, nil
	}

	pattern := "." + filepath.Base(finalPath) + ".*" + tmpSuffix
	f, err := os.CreateTemp(dir, pattern)
	if err != nil {
		c.logger.Warn("Failed to create cache temp file", "dir", dir, "error", err)
		return nil, fmt.Errorf("failed to create cache temp file: %w", err)
	}
	return &TempFile{Path: f.Name(), File: f}, nil
}

// Discard closes and deletes an uncommitted temp file.
func (c *Cache) Discard(tmp *TempFile) {
	if tmp == nil || tmp.Path == "" {
		return
	}
	if tmp.File != nil {
		_ = tmp.File.Close()
	}
	if err := os.Remove(tmp.Path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		c.logger.Warn("Failed to remove cache temp file", "path", tmp.Path, "error", err)
	}
}

// Commit publishes tmp at finalPath when ok is set and the file reaches the
// minimum size. Otherwise tmp is deleted. The rename is the only point at
// which the entry becomes visible.
func (c *Cache) Commit(tmp *TempFile, finalPath string, ok bool) error {
	if tmp == nil || tmp.Path == "" {
		return ErrNotCommitted
	}

	size := tmp.Size()
	if tmp.File != nil {
		if err := tmp.File.Sync(); err != nil {
			c.Discard(tmp)
			return fmt.Errorf("failed to sync cache file: %w", err)
		}
		if err := tmp.File.Close(); err != nil {
			tmp.File = nil
			c.Discard(tmp)
			return fmt.Errorf("failed to close cache file: %w", err)
		}
		tmp.File = nil
	}

	if !ok {
		c.Discard(tmp)
		return ErrNotCommitted
	}
	if size < c.cfg.MinFileSize {
		c.logger.Debug("Discarding undersized cache write", "path", finalPath, "size", size)
		c.Discard(tmp)
		return ErrTooSmall
	}

	c.markCommitted(finalPath)
	if err := os.Rename(tmp.Path, finalPath); err != nil {
		c.Discard(tmp)
		return fmt.Errorf("failed to commit cache file: %w", err)
	}
	tmp.Path = ""

	c.logger.Debug("Committed cache entry", "path", finalPath, "size", size)
	c.touch(finalPath)
	return nil
}

// CommitText writes the sibling text file for audioPath through the same
// temp file and rename sequence.
func (c *Cache) CommitText(audioPath, text string) error {
	path := TextPath(audioPath)
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, c.cfg.DirMode); err != nil {
		return fmt.Errorf("failed to create cache directory: %w", err)
	}

	f, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*"+tmpSuffix)
	if err != nil {
		return fmt.Errorf("failed to create text temp file: %w", err)
	}
	tmpPath := f.Name()

	_, err = f.WriteString(text)
	closeErr := f.Close()
	if err == nil {
		err = closeErr
	}
	if err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("failed to write text file: %w", err)
	}

	if err := os.Rename(tmpPath, path); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("failed to commit text file: %w", err)
	}
	return nil
}

// SavesText reports whether commits should also write the text sibling.
func (c *Cache) SavesText() bool {
	return c.cfg.SaveText
}

// Lock acquires the exclusive writer lock for finalPath. It returns the
// context's error if ctx is done first.
func (c *Cache) Lock(ctx context.Context, finalPath string) (func(), error) {
	c.lockMu.Lock()
	l, ok := c.locks[finalPath]
	if !ok {
		l = &targetLock{sem: make(chan struct{}, 1)}
		c.locks[finalPath] = l
	}
	l.refs++
	c.lockMu.Unlock()

	release := func() {
		c.lockMu.Lock()
		l.refs--
		if l.refs == 0 {
			delete(c.locks, finalPath)
		}
		c.lockMu.Unlock()
	}

	select {
	case l.sem <- struct{}{}:
	case <-ctx.Done():
		release()
		return nil, ctx.Err()
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			<-l.sem
			release()
		})
	}, nil
}

// Exists reports whether finalPath currently holds a valid entry.
func (c *Cache) Exists(finalPath string) bool {
	return c.validate(finalPath)
}

// RegisterChangeListener registers fn to be called once with the name of
// the next top-level cache subdirectory that changes. If changes are
// already pending, fn is called immediately with the oldest one.
func (c *Cache) RegisterChangeListener(fn func(subdir string)) {
	c.listenMu.Lock()
	if len(c.pending) > 0 {
		subdir := c.pending[0]
		c.pending = c.pending[1:]
		c.listenMu.Unlock()
		fn(subdir)
		return
	}
	c.listeners = append(c.listeners, fn)
	c.listenMu.Unlock()
}

// touch records a change under path and notifies listeners.
func (c *Cache) touch(path string) {
	subdir := c.topLevel(path)
	if subdir == "" {
		return
	}

	c.listenMu.Lock()
	listeners := c.listeners
	c.listeners = nil
	if len(listeners) == 0 {
		for _, s := range c.pending {
			if s == subdir {
				c.listenMu.Unlock()
				return
			}
		}
		c.pending = append(c.pending, subdir)
	}
	c.listenMu.Unlock()

	for _, fn := range listeners {
		fn(subdir)
	}
}

// topLevel returns the first path component below the root.
func (c *Cache) topLevel(path string) string {
	rel, err := filepath.Rel(c.cfg.Root, path)
	if err != nil || rel == "." || strings.HasPrefix(rel, "..") {
		return ""
	}
	parts := strings.SplitN(filepath.ToSlash(rel), "/", 2)
	if len(parts) < 2 {
		return ""
	}
	return parts[0]
}

// markCommitted lets the watcher skip events caused by this process.
func (c *Cache) markCommitted(path string) {
	if !c.watching.Load() {
		return
	}
	c.commitMu.Lock()
	c.committed[path] = time.Now()
	c.commitMu.Unlock()
}

// wasCommitted consumes a self-commit marker for path.
func (c *Cache) wasCommitted(path string) bool {
	c.commitMu.Lock()
	defer c.commitMu.Unlock()
	if _, ok := c.committed[path]; ok {
		delete(c.committed, path)
		return true
	}
	for p, at := range c.committed {
		if time.Since(at) > time.Minute {
			delete(c.committed, p)
		}
	}
	return false
}

// Close stops background work.
func (c *Cache) Close() error {
	c.closeOnce.Do(func() {
		close(c.sweepStop)
		c.sweepWg.Wait()
	})
	return nil
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
