package audio

import (
	"context"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/charmbracelet/log"
	"github.com/dgnsrekt/mediavoice/internal/lifecycle"
	"github.com/dgnsrekt/mediavoice/internal/process"
	"github.com/dgnsrekt/mediavoice/internal/tts"
)

const fileArg = "{file}"

// Preset describes a command line audio player.
type Preset struct {
	Name      string
	Command   string
	Args      []string
	PipeArgs  []string
	FileTypes []string
	Volume    bool
	Speed     bool
}

var presets = []Preset{
	{
		Name:      "mpg123",
		Command:   "mpg123",
		Args:      []string{"-q", fileArg},
		PipeArgs:  []string{"-q", "-"},
		FileTypes: []string{"mp3"},
		Volume:    true,
	},
	{
		Name:      "mpv",
		Command:   "mpv",
		Args:      []string{"--really-quiet", "--no-video", fileArg},
		PipeArgs:  []string{"--really-quiet", "--no-video", "-"},
		FileTypes: []string{"mp3", "wav"},
		Volume:    true,
		Speed:     true,
	},
	{
		Name:      "ffplay",
		Command:   "ffplay",
		Args:      []string{"-nodisp", "-autoexit", "-loglevel", "quiet", fileArg},
		PipeArgs:  []string{"-nodisp", "-autoexit", "-loglevel", "quiet", "-i", "-"},
		FileTypes: []string{"mp3", "wav"},
		Volume:    true,
	},
	{
		Name:      "afplay",
		Command:   "afplay",
		Args:      []string{fileArg},
		FileTypes: []string{"mp3", "wav"},
		Volume:    true,
		Speed:     true,
	},
	{
		Name:      "paplay",
		Command:   "paplay",
		Args:      []string{fileArg},
		PipeArgs:  []string{},
		FileTypes: []string{"wav"},
		Volume:    true,
	},
	{
		Name:      "aplay",
		Command:   "aplay",
		Args:      []string{"-q", fileArg},
		PipeArgs:  []string{"-q", "-"},
		FileTypes: []string{"wav"},
	},
}

// Presets returns the built-in players in auto-selection order.
func Presets() []Preset {
	out := make([]Preset, len(presets))
	copy(out, presets)
	return out
}

// LookupPreset finds a built-in player by name.
func LookupPreset(name string) (Preset, bool) {
	for _, p := range presets {
		if p.Name == name {
			return p, true
		}
	}
	return Preset{}, false
}

// SubprocessPlayer plays files by running an external command.
type SubprocessPlayer struct {
	preset Preset
	life   *lifecycle.Manager
	logger *log.Logger

	mu      sync.Mutex
	current *process.Runner
	closed  bool
}

// NewSubprocessPlayer creates a player for preset.
func NewSubprocessPlayer(preset Preset, life *lifecycle.Manager, logger *log.Logger) *SubprocessPlayer {
	if logger == nil {
		logger = log.Default()
	}
	return &SubprocessPlayer{
		preset: preset,
		life:   life,
		logger: logger.WithPrefix("player").With("player", preset.Name),
	}
}

// Play runs the player on path and waits for it to finish.
func (p *SubprocessPlayer) Play(ctx context.Context, path string, owner tts.Expirable) error {
	return p.run(ctx, process.Options{
		Name:    p.preset.Command,
		Args:    expandArgs(p.preset.Args, path),
		Capture: true,
	}, owner)
}

// Pipe streams r to the player's stdin.
func (p *SubprocessPlayer) Pipe(ctx context.Context, r io.Reader, fileType string, owner tts.Expirable) error {
	if p.preset.PipeArgs == nil {
		return fmt.Errorf("%s cannot play from a pipe", p.preset.Name)
	}
	return p.run(ctx, process.Options{
		Name:    p.preset.Command,
		Args:    p.preset.PipeArgs,
		Stdin:   r,
		Capture: true,
	}, owner)
}

func (p *SubprocessPlayer) run(ctx context.Context, opts process.Options, owner tts.Expirable) error {
	runner := process.New(opts, owner, p.life, p.logger)

	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return ErrPlayerClosed
	}
	if p.current != nil {
		p.current.Terminate(true)
	}
	p.current = runner
	p.mu.Unlock()

	defer func() {
		p.mu.Lock()
		if p.current == runner {
			p.current = nil
		}
		p.mu.Unlock()
	}()

	state, err := runner.Run(ctx)
	if err != nil {
		return err
	}
	if state == process.Complete && runner.ReturnCode() != 0 {
		msg := fmt.Sprintf("%s exited with code %d: %s",
			p.preset.Name, runner.ReturnCode(), strings.Join(runner.Stderr(), "\n"))
		return tts.NewTTSError(tts.ErrorCodeAudioFailure, msg, nil).
			WithContext("player", p.preset.Name).
			WithContext("code", runner.ReturnCode())
	}
	return nil
}

// IsPlaying reports whether the player process is running.
func (p *SubprocessPlayer) IsPlaying() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.current != nil && p.current.IsRunning()
}

// Stop terminates the running player process.
func (p *SubprocessPlayer) Stop(now bool) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.current != nil {
		p.current.Terminate(now)
	}
	return nil
}

// FileTypes lists accepted suffixes in preference order.
func (p *SubprocessPlayer) FileTypes() []string {
	return append([]string(nil), p.preset.FileTypes...)
}

// Capabilities reports what the player can adjust.
func (p *SubprocessPlayer) Capabilities() tts.Capabilities {
	return tts.Capabilities{
		CanSetVolume: p.preset.Volume,
		CanSetSpeed:  p.preset.Speed,
		CanPipe:      p.preset.PipeArgs != nil,
	}
}

// Close stops playback and rejects further calls.
func (p *SubprocessPlayer) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closed = true
	if p.current != nil {
		p.current.Terminate(true)
	}
	return nil
}

// Name returns the preset name.
func (p *SubprocessPlayer) Name() string {
	return p.preset.Name
}

func expandArgs(args []string, path string) []string {
	out := make([]string, 0, len(args)+1)
	replaced := false
	for _, a := range args {
		if strings.Contains(a, fileArg) {
			a = strings.ReplaceAll(a, fileArg, path)
			replaced = true
		}
		out = append(out, a)
	}
	if !replaced {
		out = append(out, path)
	}
	return out
}
