package audio

import (
	"context"
	"errors"
	"io"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/dgnsrekt/mediavoice/internal/tts"
)

// MockPlayer implements tts.Player for testing purposes.
// It simulates playback without producing sound.
type MockPlayer struct {
	state atomic.Int32

	// Test callbacks
	callbacks MockCallbacks

	mu       sync.Mutex
	duration time.Duration
	stopCh   chan struct{}
	played   []string
	data     []byte
	failNext error

	playCount atomic.Int64
	stopCount atomic.Int64
}

// MockCallbacks provides hooks for testing.
type MockCallbacks struct {
	OnPlay  func(path string, data []byte)
	OnStop  func()
	OnClose func()
}

// NewMockPlayer creates a mock player with custom callbacks. Each play
// lasts 10ms unless SetDuration is called.
func NewMockPlayer(callbacks MockCallbacks) *MockPlayer {
	mp := &MockPlayer{
		callbacks: callbacks,
		duration:  10 * time.Millisecond,
	}
	mp.state.Store(int32(StateStopped))
	return mp
}

// Play records path, reads its contents, and simulates playback.
func (mp *MockPlayer) Play(ctx context.Context, path string, owner tts.Expirable) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	return mp.play(ctx, path, data, owner)
}

// Pipe records the piped bytes and simulates playback.
func (mp *MockPlayer) Pipe(ctx context.Context, r io.Reader, fileType string, owner tts.Expirable) error {
	data, err := io.ReadAll(r)
	if err != nil {
		return err
	}
	return mp.play(ctx, "pipe:"+fileType, data, owner)
}

func (mp *MockPlayer) play(ctx context.Context, path string, data []byte, owner tts.Expirable) error {
	if owner == nil {
		owner = tts.Never
	}

	mp.mu.Lock()
	if PlayerState(mp.state.Load()) == StateClosed {
		mp.mu.Unlock()
		return ErrPlayerClosed
	}
	if err := mp.failNext; err != nil {
		mp.failNext = nil
		mp.mu.Unlock()
		return err
	}
	if mp.stopCh != nil {
		close(mp.stopCh)
	}
	stopCh := make(chan struct{})
	mp.stopCh = stopCh
	mp.played = append(mp.played, path)
	mp.data = data
	duration := mp.duration
	mp.state.Store(int32(StatePlaying))
	mp.mu.Unlock()

	mp.playCount.Add(1)
	if mp.callbacks.OnPlay != nil {
		mp.callbacks.OnPlay(path, data)
	}

	defer func() {
		mp.mu.Lock()
		if mp.stopCh == stopCh {
			mp.stopCh = nil
			if PlayerState(mp.state.Load()) == StatePlaying {
				mp.state.Store(int32(StateStopped))
			}
		}
		mp.mu.Unlock()
	}()

	timer := time.NewTimer(duration)
	defer timer.Stop()
	ticker := time.NewTicker(5 * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-timer.C:
			return nil
		case <-stopCh:
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

// IsPlaying returns whether audio is currently playing.
func (mp *MockPlayer) IsPlaying() bool {
	return PlayerState(mp.state.Load()) == StatePlaying
}

// Stop ends the simulated playback.
func (mp *MockPlayer) Stop(now bool) error {
	mp.mu.Lock()
	defer mp.mu.Unlock()

	if mp.stopCh == nil {
		return nil
	}
	close(mp.stopCh)
	mp.stopCh = nil
	if PlayerState(mp.state.Load()) == StatePlaying {
		mp.state.Store(int32(StateStopped))
	}
	mp.stopCount.Add(1)

	if mp.callbacks.OnStop != nil {
		mp.callbacks.OnStop()
	}
	return nil
}

// FileTypes lists accepted suffixes in preference order.
func (mp *MockPlayer) FileTypes() []string {
	return []string{"mp3", "wav"}
}

// Capabilities reports what the player can adjust.
func (mp *MockPlayer) Capabilities() tts.Capabilities {
	return tts.Capabilities{CanSetVolume: true, CanPipe: true}
}

// Close releases the player.
func (mp *MockPlayer) Close() error {
	_ = mp.Stop(true)
	mp.state.Store(int32(StateClosed))

	if mp.callbacks.OnClose != nil {
		mp.callbacks.OnClose()
	}
	return nil
}

// Test helper methods

// SetDuration sets how long each simulated playback lasts.
func (mp *MockPlayer) SetDuration(d time.Duration) {
	mp.mu.Lock()
	defer mp.mu.Unlock()
	mp.duration = d
}

// FailNext makes the next play return err.
func (mp *MockPlayer) FailNext(err error) {
	if err == nil {
		err = errors.New("simulated playback error")
	}
	mp.mu.Lock()
	defer mp.mu.Unlock()
	mp.failNext = err
}

// Played returns the paths played so far.
func (mp *MockPlayer) Played() []string {
	mp.mu.Lock()
	defer mp.mu.Unlock()
	return append([]string(nil), mp.played...)
}

// LastData returns the bytes of the most recent play.
func (mp *MockPlayer) LastData() []byte {
	mp.mu.Lock()
	defer mp.mu.Unlock()
	return append([]byte(nil), mp.data...)
}

// GetState returns the current player state for testing.
func (mp *MockPlayer) GetState() PlayerState {
	return PlayerState(mp.state.Load())
}

// GetMetrics returns playback metrics for testing.
func (mp *MockPlayer) GetMetrics() MockPlayerMetrics {
	return MockPlayerMetrics{
		PlayCount: mp.playCount.Load(),
		StopCount: mp.stopCount.Load(),
	}
}

// MockPlayerMetrics contains playback metrics for testing.
type MockPlayerMetrics struct {
	PlayCount int64
	StopCount int64
}
