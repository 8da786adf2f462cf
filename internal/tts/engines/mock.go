package engines

import (
	"bytes"
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/dgnsrekt/mediavoice/internal/tts"
)

// MockConfig configures the in-process engine.
type MockConfig struct {
	// FileType of the produced audio (defaults to "wav")
	FileType string

	// Size is the byte length produced per chunk (defaults to 256)
	Size int

	// Delay simulates synthesis latency
	Delay time.Duration

	// MaxPhraseLength splits long text (0 means unlimited)
	MaxPhraseLength int
}

// MockEngine produces deterministic bytes derived from the text. It is
// used by tests and dry runs.
type MockEngine struct {
	config MockConfig

	mu       sync.Mutex
	calls    []string
	spoken   []string
	failNext error
	failAll  error
}

// NewMockEngine creates a mock engine.
func NewMockEngine(config MockConfig) *MockEngine {
	if config.FileType == "" {
		config.FileType = "wav"
	}
	if config.Size == 0 {
		config.Size = 256
	}
	return &MockEngine{config: config}
}

// Name returns the cache namespace.
func (e *MockEngine) Name() string { return tts.EngineMock.String() }

// FileType returns the produced audio suffix.
func (e *MockEngine) FileType() string { return e.config.FileType }

// MaxPhraseLength returns the configured chunk limit.
func (e *MockEngine) MaxPhraseLength() int { return e.config.MaxPhraseLength }

// Synthesize returns Size bytes seeded with the voice locale and text.
func (e *MockEngine) Synthesize(ctx context.Context, text string, voice tts.Voice) ([]byte, error) {
	e.mu.Lock()
	e.calls = append(e.calls, text)
	err := e.failAll
	if e.failNext != nil {
		err = e.failNext
		e.failNext = nil
	}
	e.mu.Unlock()

	if err := e.sleep(ctx, nil); err != nil {
		return nil, err
	}
	if err != nil {
		return nil, err
	}
	return MockAudio(text, voice, e.config.Size), nil
}

// Speak records text and waits Delay.
func (e *MockEngine) Speak(ctx context.Context, text string, voice tts.Voice, owner tts.Expirable) error {
	e.mu.Lock()
	e.spoken = append(e.spoken, text)
	e.mu.Unlock()
	return e.sleep(ctx, owner)
}

func (e *MockEngine) sleep(ctx context.Context, owner tts.Expirable) error {
	if e.config.Delay <= 0 {
		return nil
	}
	if owner == nil {
		owner = tts.Never
	}

	timer := time.NewTimer(e.config.Delay)
	defer timer.Stop()
	ticker := time.NewTicker(5 * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-timer.C:
			return nil
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if owner.IsExpired() {
				return tts.ErrExpired
			}
		}
	}
}

// MockAudio returns the bytes MockEngine produces for text.
func MockAudio(text string, voice tts.Voice, size int) []byte {
	seed := []byte(fmt.Sprintf("MOCK %s %s|", voice.Locale(), text))
	out := bytes.Repeat(seed, size/len(seed)+1)
	return out[:size]
}

// FailNext makes the next Synthesize call return err.
func (e *MockEngine) FailNext(err error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.failNext = err
}

// FailAll makes every Synthesize call return err until cleared with nil.
func (e *MockEngine) FailAll(err error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.failAll = err
}

// Calls returns the text of every Synthesize call.
func (e *MockEngine) Calls() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]string(nil), e.calls...)
}

// Spoken returns the text of every Speak call.
func (e *MockEngine) Spoken() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]string(nil), e.spoken...)
}

// Close releases resources held by the engine.
func (e *MockEngine) Close() error {
	return nil
}

var (
	_ tts.Synthesizer = (*MockEngine)(nil)
	_ tts.Speaker     = (*MockEngine)(nil)
)
