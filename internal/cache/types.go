package cache

import (
	"crypto/md5" //nolint:gosec
	"encoding/hex"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// Common errors for cache operations
var (
	// ErrTooSmall is returned when a write is below the plausible-size floor
	ErrTooSmall = errors.New("cache entry too small")

	// ErrNotCommitted is returned when a failed generation is discarded
	ErrNotCommitted = errors.New("cache entry not committed")

	// ErrInvalidArchive is returned when an archive entry escapes the cache root
	ErrInvalidArchive = errors.New("invalid cache archive entry")
)

const (
	// DefaultMinFileSize is the smallest audio file accepted as valid.
	DefaultMinFileSize = 100

	// TextSuffix is the sibling file holding the raw text.
	TextSuffix = "txt"

	tmpSuffix = ".tmp"
)

// Config holds configuration for a Cache
type Config struct {
	// Root is the cache directory.
	Root string

	// ExpirationDays is the age after which entries are stale. Zero or
	// negative disables expiration.
	ExpirationDays int

	// IgnoreExpiration keeps stale entries valid.
	IgnoreExpiration bool

	// MinFileSize rejects smaller audio files as corrupt (default 100).
	MinFileSize int64

	// SaveText writes the sibling .txt file on commit.
	SaveText bool

	// SweepInterval is how often expired entries are removed in the
	// background. Zero disables the sweeper.
	SweepInterval time.Duration

	// DirMode is the mode for new directories (default 0777, before umask).
	DirMode os.FileMode
}

// DefaultConfig returns default cache configuration
func DefaultConfig(root string) Config {
	return Config{
		Root:           root,
		ExpirationDays: 365,
		MinFileSize:    DefaultMinFileSize,
		SaveText:       true,
		SweepInterval:  time.Hour,
		DirMode:        0o777,
	}
}

func (c Config) withDefaults() Config {
	if c.MinFileSize <= 0 {
		c.MinFileSize = DefaultMinFileSize
	}
	if c.DirMode == 0 {
		c.DirMode = 0o777
	}
	return c
}

// maxAge returns the expiration window, or zero if entries never expire.
func (c Config) maxAge() time.Duration {
	if c.IgnoreExpiration || c.ExpirationDays <= 0 {
		return 0
	}
	return time.Duration(c.ExpirationDays) * 24 * time.Hour
}

// Key identifies the audio for one text in one engine/locale context.
type Key struct {
	Engine    string
	Language  string
	Territory string
	Text      string
}

// Hash returns the hex MD5 of the UTF-8 text.
func (k Key) Hash() string {
	sum := md5.Sum([]byte(k.Text)) //nolint:gosec
	return hex.EncodeToString(sum[:])
}

// Dir returns the directory holding the entry, relative to the cache root.
func (k Key) Dir() string {
	hash := k.Hash()
	return filepath.Join(
		pathSegment(k.Engine),
		pathSegment(k.Language),
		pathSegment(k.Territory),
		hash[:2],
	)
}

// RelPath returns the entry's path relative to the cache root.
func (k Key) RelPath(fileType string) string {
	return filepath.Join(k.Dir(), k.Hash()+"."+fileType)
}

// pathSegment lowercases a layout component and replaces anything that
// could escape its directory.
func pathSegment(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "" {
		return "_"
	}
	return strings.Map(func(r rune) rune {
		switch r {
		case '/', '\\', ':', '.':
			return '_'
		}
		return r
	}, s)
}

// Info is the result of a cache lookup.
type Info struct {
	// Path is the validated entry, or where a new entry should be written.
	Path string

	// Exists reports a valid cache hit at Path.
	Exists bool

	// FileType is the suffix of Path.
	FileType string

	// TextExists reports whether the sibling text file is present.
	TextExists bool
}

// TextPath returns the sibling text file path for an audio path.
func TextPath(audioPath string) string {
	ext := filepath.Ext(audioPath)
	return strings.TrimSuffix(audioPath, ext) + "." + TextSuffix
}

// EngineStats summarizes one engine's entries.
type EngineStats struct {
	Engine  string
	Entries int
	Bytes   int64
	Expired int
}

// Stats holds cache usage for every engine.
type Stats struct {
	Root      string
	Engines   []EngineStats
	Entries   int
	Bytes     int64
	Expired   int
	TempFiles int
}
