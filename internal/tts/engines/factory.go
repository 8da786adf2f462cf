package engines

import (
	"context"
	"fmt"

	"github.com/charmbracelet/log"
	"github.com/dgnsrekt/mediavoice/internal/lifecycle"
	"github.com/dgnsrekt/mediavoice/internal/tts"
)

// Config selects and configures one engine.
type Config struct {
	Engine tts.EngineType
	ESpeak ESpeakConfig
	Piper  PiperConfig
	GTTS   GTTSConfig
	Google GoogleConfig
	Mock   MockConfig
}

// New creates the configured engine.
func New(ctx context.Context, config Config, life *lifecycle.Manager, logger *log.Logger) (tts.Synthesizer, error) {
	switch config.Engine {
	case tts.EngineESpeak:
		return NewESpeakEngine(config.ESpeak, life, logger)
	case tts.EnginePiper:
		return NewPiperEngine(config.Piper, life, logger)
	case tts.EngineGTTS:
		return NewGTTSEngine(config.GTTS, life, logger)
	case tts.EngineGoogle:
		return NewGoogleEngine(ctx, config.Google, life, logger)
	case tts.EngineMock:
		return NewMockEngine(config.Mock), nil
	default:
		return nil, fmt.Errorf("%w: %q", tts.ErrInvalidEngine, config.Engine)
	}
}
