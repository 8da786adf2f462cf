package tts

import (
	"context"
	"io"
)

// Synthesizer defines the contract for speech engines.
// Implementations include espeak and piper (offline) and gtts and Google
// Cloud TTS (online). Engines are stateless with respect to caching; the
// speech coordinator owns the cache.
type Synthesizer interface {
	// Name returns the engine code used to namespace the cache.
	Name() string

	// Synthesize converts one chunk of text to audio bytes in FileType format.
	// Remote failures must be reported as a *DownloadError.
	Synthesize(ctx context.Context, text string, voice Voice) ([]byte, error)

	// FileType returns the suffix of the produced audio ("mp3", "wav").
	FileType() string

	// MaxPhraseLength returns the longest chunk, in UTF-8 bytes, the engine
	// accepts in one request, or 0 when unlimited.
	MaxPhraseLength() int

	// Close releases any resources held by the engine.
	Close() error
}

// Speaker is implemented by engines that can voice text directly without
// producing a file (engine-native playback).
type Speaker interface {
	Speak(ctx context.Context, text string, voice Voice, owner Expirable) error
}

// Player defines the contract for audio playback of cached files.
type Player interface {
	// Play voices the file at path and blocks until playback ends, the
	// owner expires, Stop is called, or ctx is done.
	Play(ctx context.Context, path string, owner Expirable) error

	// IsPlaying reports whether audio is currently playing.
	IsPlaying() bool

	// Stop halts playback. When now is false the player is asked to
	// terminate gracefully; otherwise it escalates to a forced stop.
	Stop(now bool) error

	// FileTypes lists the accepted suffixes in preference order.
	FileTypes() []string

	// Capabilities reports what the player can adjust.
	Capabilities() Capabilities

	// Close releases the audio device and resources.
	Close() error
}

// Piper is implemented by players that accept a live byte stream.
type Piper interface {
	Pipe(ctx context.Context, r io.Reader, fileType string, owner Expirable) error
}

// Expirable is anything whose work can be superseded.
type Expirable interface {
	IsExpired() bool
}

// Capabilities are consumed by the settings negotiation layer.
type Capabilities struct {
	CanSetVolume bool
	CanSetSpeed  bool
	CanSetPitch  bool
	CanPipe      bool
}

// Never is an Expirable that never expires.
var Never Expirable = never{}

type never struct{}

func (never) IsExpired() bool { return false }
