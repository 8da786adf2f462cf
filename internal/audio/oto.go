package audio

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/charmbracelet/log"
	"github.com/dgnsrekt/mediavoice/internal/lifecycle"
	"github.com/dgnsrekt/mediavoice/internal/tts"
	"github.com/ebitengine/oto/v3"
)

// oto allows a single context per process.
var (
	otoOnce sync.Once
	otoCtx  *oto.Context
	otoErr  error
	otoRate int
	otoChan int
)

func sharedContext(sampleRate, channels int) (*oto.Context, int, int, error) {
	otoOnce.Do(func() {
		op := &oto.NewContextOptions{
			SampleRate:   sampleRate,
			ChannelCount: channels,
			Format:       oto.FormatSignedInt16LE,
		}
		ctx, ready, err := oto.NewContext(op)
		if err != nil {
			otoErr = fmt.Errorf("failed to create oto context: %w", err)
			return
		}
		<-ready
		otoCtx, otoRate, otoChan = ctx, sampleRate, channels
	})
	return otoCtx, otoRate, otoChan, otoErr
}

// OtoConfig contains configuration for the oto player.
type OtoConfig struct {
	SampleRate int     // 44100 or 48000 Hz only
	Channels   int     // 1 = mono, 2 = stereo
	Volume     float64 // 0.0 to 1.0
	Poll       time.Duration
}

// DefaultOtoConfig returns the default oto configuration.
func DefaultOtoConfig() OtoConfig {
	return OtoConfig{
		SampleRate: 44100,
		Channels:   1,
		Volume:     1.0,
		Poll:       20 * time.Millisecond,
	}
}

// OtoPlayer decodes mp3 and wav files in-process and plays them through
// the OS audio API.
type OtoPlayer struct {
	context    *oto.Context
	sampleRate int
	channels   int
	poll       time.Duration
	life       *lifecycle.Manager
	logger     *log.Logger

	state  atomic.Int32
	volume atomic.Uint64

	mu     sync.Mutex
	player *oto.Player
	stopCh chan struct{}
}

// NewOtoPlayer creates an oto player.
func NewOtoPlayer(cfg OtoConfig, life *lifecycle.Manager, logger *log.Logger) (*OtoPlayer, error) {
	def := DefaultOtoConfig()
	if cfg.SampleRate == 0 {
		cfg.SampleRate = def.SampleRate
	}
	if cfg.Channels == 0 {
		cfg.Channels = def.Channels
	}
	if cfg.Volume <= 0 {
		cfg.Volume = def.Volume
	}
	if cfg.Poll <= 0 {
		cfg.Poll = def.Poll
	}
	if err := validateOtoConfig(cfg); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	ctx, rate, channels, err := sharedContext(cfg.SampleRate, cfg.Channels)
	if err != nil {
		return nil, err
	}
	if logger == nil {
		logger = log.Default()
	}

	p := &OtoPlayer{
		context:    ctx,
		sampleRate: rate,
		channels:   channels,
		poll:       cfg.Poll,
		life:       life,
		logger:     logger.WithPrefix("player").With("player", "oto"),
	}
	p.state.Store(int32(StateStopped))
	_ = p.SetVolume(cfg.Volume)
	return p, nil
}

func validateOtoConfig(cfg OtoConfig) error {
	if cfg.SampleRate != 44100 && cfg.SampleRate != 48000 {
		return fmt.Errorf("sample rate must be 44100 or 48000 Hz, got %d", cfg.SampleRate)
	}
	if cfg.Channels != 1 && cfg.Channels != 2 {
		return fmt.Errorf("channels must be 1 (mono) or 2 (stereo), got %d", cfg.Channels)
	}
	if cfg.Volume > 1.0 {
		return fmt.Errorf("volume must be between 0.0 and 1.0, got %f", cfg.Volume)
	}
	return nil
}

// Play decodes the file at path and blocks until it has played.
func (p *OtoPlayer) Play(ctx context.Context, path string, owner tts.Expirable) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	fileType := strings.TrimPrefix(filepath.Ext(path), ".")
	return p.Pipe(ctx, f, fileType, owner)
}

// Pipe decodes r and blocks until it has played. r is closed if it
// implements io.Closer.
func (p *OtoPlayer) Pipe(ctx context.Context, r io.Reader, fileType string, owner tts.Expirable) error {
	if owner == nil {
		owner = tts.Never
	}
	rc, ok := r.(io.ReadCloser)
	if !ok {
		rc = io.NopCloser(r)
	}

	stream, err := decode(rc, fileType, p.sampleRate)
	if err != nil {
		return err
	}
	defer stream.Close()

	p.mu.Lock()
	if PlayerState(p.state.Load()) == StateClosed {
		p.mu.Unlock()
		return ErrPlayerClosed
	}
	p.stopLocked()
	player := p.context.NewPlayer(newPCMReader(stream, p.channels))
	player.SetVolume(p.getVolume())
	stopCh := make(chan struct{})
	p.player = player
	p.stopCh = stopCh
	p.state.Store(int32(StatePlaying))
	player.Play()
	p.mu.Unlock()

	defer func() {
		p.mu.Lock()
		if p.player == player {
			p.stopLocked()
		}
		p.mu.Unlock()
	}()

	ticker := time.NewTicker(p.poll)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			if !player.IsPlaying() {
				return nil
			}
			if owner.IsExpired() {
				return tts.ErrExpired
			}
		case <-stopCh:
			return nil
		case <-ctx.Done():
			return ctx.Err()
		case <-p.life.Done():
			return lifecycle.ErrAbort
		}
	}
}

// stopLocked halts the current oto player. p.mu must be held.
func (p *OtoPlayer) stopLocked() {
	if p.player != nil {
		p.player.Pause()
		_ = p.player.Close()
		p.player = nil
	}
	if p.stopCh != nil {
		close(p.stopCh)
		p.stopCh = nil
	}
	if PlayerState(p.state.Load()) == StatePlaying {
		p.state.Store(int32(StateStopped))
	}
}

// IsPlaying reports whether audio is currently playing.
func (p *OtoPlayer) IsPlaying() bool {
	return PlayerState(p.state.Load()) == StatePlaying
}

// Stop halts playback. oto stops immediately either way.
func (p *OtoPlayer) Stop(now bool) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.stopLocked()
	return nil
}

// SetVolume sets the playback volume (0.0 to 1.0).
func (p *OtoPlayer) SetVolume(volume float64) error {
	if volume < 0.0 || volume > 1.0 {
		return fmt.Errorf("volume must be between 0.0 and 1.0, got %f", volume)
	}
	p.volume.Store(uint64(volume * 1000000))

	p.mu.Lock()
	if p.player != nil {
		p.player.SetVolume(volume)
	}
	p.mu.Unlock()
	return nil
}

func (p *OtoPlayer) getVolume() float64 {
	return float64(p.volume.Load()) / 1000000.0
}

// FileTypes lists accepted suffixes in preference order.
func (p *OtoPlayer) FileTypes() []string {
	return []string{"mp3", "wav"}
}

// Capabilities reports what the player can adjust.
func (p *OtoPlayer) Capabilities() tts.Capabilities {
	return tts.Capabilities{CanSetVolume: true, CanPipe: true}
}

// Close stops playback. The shared oto context stays alive.
func (p *OtoPlayer) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.stopLocked()
	p.state.Store(int32(StateClosed))
	return nil
}
