package phrase

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/dgnsrekt/mediavoice/internal/tts"
)

// FileState tracks the cache artifact backing a phrase.
type FileState int

const (
	// FileUnknown means the cache has not been consulted yet.
	FileUnknown FileState = iota

	// FileCreationIncomplete means generation is in flight.
	FileCreationIncomplete

	// FileBad means generation failed; the entry is never a cache hit.
	FileBad

	// FileOK means the audio is committed under the cache path.
	FileOK
)

// String returns the string representation of the file state
func (s FileState) String() string {
	switch s {
	case FileUnknown:
		return "unknown"
	case FileCreationIncomplete:
		return "creation_incomplete"
	case FileBad:
		return "bad"
	case FileOK:
		return "ok"
	default:
		return "invalid"
	}
}

// entry is the cache status of a phrase. Clones share it so a background
// generation job and the foreground caller observe the same transitions.
type entry struct {
	mu              sync.RWMutex
	path            string
	fileType        string
	exists          bool
	textExists      bool
	state           FileState
	downloadPending bool
	events          []string
}

// Phrase is one unit of text to be voiced.
type Phrase struct {
	text      string
	serial    int64
	tracker   *Tracker
	voice     tts.Voice
	prePause  time.Duration
	postPause time.Duration
	interrupt bool

	mu           sync.RWMutex
	checkExpired bool

	entry *entry
}

// Option configures a Phrase at creation.
type Option func(*Phrase)

// WithVoice sets the voice metadata.
func WithVoice(v tts.Voice) Option {
	return func(p *Phrase) { p.voice = v }
}

// WithPauses sets the silence played before and after the phrase.
func WithPauses(pre, post time.Duration) Option {
	return func(p *Phrase) {
		p.prePause = pre
		p.postPause = post
	}
}

// WithInterrupt marks the phrase as superseding everything queued before it.
func WithInterrupt(interrupt bool) Option {
	return func(p *Phrase) { p.interrupt = interrupt }
}

// New creates a phrase with the next serial number from tracker.
func New(tracker *Tracker, text string, opts ...Option) *Phrase {
	p := &Phrase{
		text:         text,
		serial:       tracker.Next(),
		tracker:      tracker,
		checkExpired: true,
		entry:        &entry{},
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Text returns the text to voice.
func (p *Phrase) Text() string { return p.text }

// Serial returns the phrase's serial number.
func (p *Phrase) Serial() int64 { return p.serial }

// Voice returns the voice metadata.
func (p *Phrase) Voice() tts.Voice { return p.voice }

// Pauses returns the pre and post pause durations.
func (p *Phrase) Pauses() (pre, post time.Duration) { return p.prePause, p.postPause }

// Interrupt reports whether the phrase supersedes earlier work.
func (p *Phrase) Interrupt() bool { return p.interrupt }

// IsEmpty reports whether there is nothing to voice.
func (p *Phrase) IsEmpty() bool {
	return strings.TrimSpace(p.text) == ""
}

// CheckExpired reports whether expiration checks are enabled.
func (p *Phrase) CheckExpired() bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.checkExpired
}

// SetCheckExpired enables or disables expiration checks on this copy.
func (p *Phrase) SetCheckExpired(check bool) {
	p.mu.Lock()
	p.checkExpired = check
	p.mu.Unlock()
}

// IsExpired reports whether the phrase has been superseded. A phrase with
// expiration checks disabled never expires.
func (p *Phrase) IsExpired() bool {
	if !p.CheckExpired() {
		return false
	}
	return p.tracker.IsExpired(p.serial)
}

// Check returns tts.ErrExpired when the phrase has been superseded.
func (p *Phrase) Check() error {
	if p.IsExpired() {
		return tts.ErrExpired
	}
	return nil
}

// Clone returns a copy with the same serial and shared cache status. With
// checkExpired false the copy ignores the watermark, which lets background
// cache seeding outlive the foreground request.
func (p *Phrase) Clone(checkExpired bool) *Phrase {
	return &Phrase{
		text:         p.text,
		serial:       p.serial,
		tracker:      p.tracker,
		voice:        p.voice,
		prePause:     p.prePause,
		postPause:    p.postPause,
		interrupt:    p.interrupt,
		checkExpired: checkExpired,
		entry:        p.entry,
	}
}

// CachePath returns the assigned cache path and file type.
func (p *Phrase) CachePath() (path, fileType string) {
	p.entry.mu.RLock()
	defer p.entry.mu.RUnlock()
	return p.entry.path, p.entry.fileType
}

// SetCachePath records where the phrase's audio lives. exists marks a
// validated cache hit and moves the state to FileOK.
func (p *Phrase) SetCachePath(path, fileType string, exists, textExists bool) {
	p.entry.mu.Lock()
	defer p.entry.mu.Unlock()
	p.entry.path = path
	p.entry.fileType = fileType
	p.entry.exists = exists
	p.entry.textExists = textExists
	if exists {
		p.entry.state = FileOK
	}
}

// Exists reports whether the cache path holds committed audio.
func (p *Phrase) Exists() bool {
	p.entry.mu.RLock()
	defer p.entry.mu.RUnlock()
	return p.entry.exists && p.entry.state == FileOK
}

// TextExists reports whether the sibling text file was present.
func (p *Phrase) TextExists() bool {
	p.entry.mu.RLock()
	defer p.entry.mu.RUnlock()
	return p.entry.textExists
}

// FileState returns the cache file state.
func (p *Phrase) FileState() FileState {
	p.entry.mu.RLock()
	defer p.entry.mu.RUnlock()
	return p.entry.state
}

// SetFileState updates the cache file state.
func (p *Phrase) SetFileState(state FileState) {
	p.entry.mu.Lock()
	defer p.entry.mu.Unlock()
	p.entry.state = state
	p.entry.exists = state == FileOK
}

// DownloadPending reports whether background generation is in flight.
func (p *Phrase) DownloadPending() bool {
	p.entry.mu.RLock()
	defer p.entry.mu.RUnlock()
	return p.entry.downloadPending
}

// SetDownloadPending marks background generation as started or finished.
func (p *Phrase) SetDownloadPending(pending bool) {
	p.entry.mu.Lock()
	p.entry.downloadPending = pending
	p.entry.mu.Unlock()
}

// AddEvent records a diagnostic event.
func (p *Phrase) AddEvent(format string, args ...any) {
	msg := fmt.Sprintf(format, args...)
	p.entry.mu.Lock()
	p.entry.events = append(p.entry.events, msg)
	p.entry.mu.Unlock()
}

// Events returns the recorded diagnostic events.
func (p *Phrase) Events() []string {
	p.entry.mu.RLock()
	defer p.entry.mu.RUnlock()
	return append([]string(nil), p.entry.events...)
}

// String implements fmt.Stringer for logging.
func (p *Phrase) String() string {
	text := p.text
	if r := []rune(text); len(r) > 40 {
		text = string(r[:40]) + "…"
	}
	return fmt.Sprintf("#%d %q", p.serial, text)
}
