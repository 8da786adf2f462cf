package audio

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/charmbracelet/log"
	"github.com/dgnsrekt/mediavoice/internal/lifecycle"
	"github.com/dgnsrekt/mediavoice/internal/process"
	"github.com/dgnsrekt/mediavoice/internal/tts"
)

var (
	// ErrPlayerClosed is returned by a closed player.
	ErrPlayerClosed = errors.New("player is closed")

	// ErrNoPlayer is returned when no playback method is available.
	ErrNoPlayer = errors.New("no audio player available")
)

// PlayerState represents the current state of the player.
type PlayerState int32

const (
	StateStopped PlayerState = iota
	StatePlaying
	StateClosed
)

// String returns the state name.
func (s PlayerState) String() string {
	switch s {
	case StateStopped:
		return "stopped"
	case StatePlaying:
		return "playing"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// Config selects and configures a player.
type Config struct {
	// Player is a preset name, "oto", "mock", or "auto".
	Player string

	// Command overrides the preset with a custom command line. "{file}" in
	// Args is replaced with the audio path.
	Command string
	Args    []string

	// FileTypes are the suffixes a custom command accepts.
	FileTypes []string

	// Volume is the oto player's gain in [0,1].
	Volume float64
}

// New creates the configured player.
func New(cfg Config, life *lifecycle.Manager, logger *log.Logger) (tts.Player, error) {
	if logger == nil {
		logger = log.Default()
	}

	if cfg.Command != "" {
		preset := Preset{
			Name:      filepath.Base(cfg.Command),
			Command:   cfg.Command,
			Args:      cfg.Args,
			FileTypes: cfg.FileTypes,
		}
		if len(preset.FileTypes) == 0 {
			preset.FileTypes = []string{"wav"}
		}
		return NewSubprocessPlayer(preset, life, logger), nil
	}

	switch name := strings.ToLower(cfg.Player); name {
	case "", "auto":
		for _, preset := range Presets() {
			if process.CheckBinary(preset.Command) == nil {
				logger.Debug("Selected audio player", "player", preset.Name)
				return NewSubprocessPlayer(preset, life, logger), nil
			}
		}
		return NewOtoPlayer(OtoConfig{Volume: cfg.Volume}, life, logger)
	case "oto":
		return NewOtoPlayer(OtoConfig{Volume: cfg.Volume}, life, logger)
	case "mock":
		return NewMockPlayer(MockCallbacks{}), nil
	default:
		preset, ok := LookupPreset(name)
		if !ok {
			return nil, fmt.Errorf("%w: unknown player %q", ErrNoPlayer, cfg.Player)
		}
		if err := process.CheckBinary(preset.Command); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrNoPlayer, err)
		}
		return NewSubprocessPlayer(preset, life, logger), nil
	}
}
