package engines

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	"github.com/dgnsrekt/mediavoice/internal/lifecycle"
	"github.com/dgnsrekt/mediavoice/internal/process"
	"github.com/dgnsrekt/mediavoice/internal/tts"
)

// ESpeakConfig holds configuration for the espeak engine.
type ESpeakConfig struct {
	// Binary overrides executable discovery (espeak-ng, then espeak).
	Binary string

	// Speed in words per minute (defaults to 175)
	Speed int

	// Pitch adjustment 0-99 (defaults to 50)
	Pitch int

	// Timeout for one synthesis (defaults to 30s)
	Timeout time.Duration
}

// ESpeakEngine synthesizes wav audio with espeak-ng. It can also voice
// text directly through the sound card.
type ESpeakEngine struct {
	binary  string
	speed   int
	pitch   int
	timeout time.Duration

	life   *lifecycle.Manager
	logger *log.Logger
}

// FindESpeak returns the first espeak executable found in PATH.
func FindESpeak() (string, error) {
	for _, candidate := range []string{"espeak-ng", "espeak"} {
		if process.CheckBinary(candidate) == nil {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("%w: espeak executable not found in PATH", tts.ErrEngineNotAvailable)
}

// NewESpeakEngine creates an espeak engine.
func NewESpeakEngine(config ESpeakConfig, life *lifecycle.Manager, logger *log.Logger) (*ESpeakEngine, error) {
	if config.Binary == "" {
		binary, err := FindESpeak()
		if err != nil {
			return nil, err
		}
		config.Binary = binary
	}
	if config.Speed == 0 {
		config.Speed = 175
	}
	if config.Pitch == 0 {
		config.Pitch = 50
	}
	if config.Speed < 80 || config.Speed > 500 {
		return nil, fmt.Errorf("espeak speed must be between 80 and 500, got %d", config.Speed)
	}
	if config.Pitch < 0 || config.Pitch > 99 {
		return nil, fmt.Errorf("espeak pitch must be between 0 and 99, got %d", config.Pitch)
	}
	if config.Timeout == 0 {
		config.Timeout = 30 * time.Second
	}
	if logger == nil {
		logger = log.Default()
	}

	return &ESpeakEngine{
		binary:  config.Binary,
		speed:   config.Speed,
		pitch:   config.Pitch,
		timeout: config.Timeout,
		life:    life,
		logger:  logger.WithPrefix("espeak"),
	}, nil
}

// Name returns the cache namespace.
func (e *ESpeakEngine) Name() string { return tts.EngineESpeak.String() }

// FileType returns the produced audio suffix.
func (e *ESpeakEngine) FileType() string { return "wav" }

// MaxPhraseLength returns 0; espeak has no request limit.
func (e *ESpeakEngine) MaxPhraseLength() int { return 0 }

// Synthesize renders text to wav bytes using --stdout.
func (e *ESpeakEngine) Synthesize(ctx context.Context, text string, voice tts.Voice) ([]byte, error) {
	if strings.TrimSpace(text) == "" {
		return nil, tts.NewTTSError(tts.ErrorCodeInvalidInput, "nothing to synthesize", tts.ErrEmptyText)
	}

	ctx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	out, err := process.Output(ctx, process.Options{
		Name:  e.binary,
		Args:  append(e.args(voice), "--stdout"),
		Stdin: strings.NewReader(text),
	}, nil, e.life, e.logger)
	if err != nil {
		if errors.Is(err, lifecycle.ErrAbort) {
			return nil, err
		}
		return nil, tts.NewTTSError(tts.ErrorCodeEngineFailure, "espeak synthesis failed", err).
			WithContext("voice", espeakVoice(voice))
	}
	if len(out) == 0 {
		return nil, tts.NewTTSError(tts.ErrorCodeEngineFailure, "espeak produced no audio", nil)
	}
	return out, nil
}

// Speak voices text through the default audio device and returns when
// speech ends or owner expires.
func (e *ESpeakEngine) Speak(ctx context.Context, text string, voice tts.Voice, owner tts.Expirable) error {
	if strings.TrimSpace(text) == "" {
		return nil
	}

	r := process.New(process.Options{
		Name:    e.binary,
		Args:    e.args(voice),
		Stdin:   strings.NewReader(text),
		Capture: true,
	}, owner, e.life, e.logger)

	state, err := r.Run(ctx)
	if err != nil {
		return err
	}
	if state == process.Complete && r.ReturnCode() != 0 {
		return fmt.Errorf("espeak exited with code %d: %s", r.ReturnCode(), strings.Join(r.Stderr(), "\n"))
	}
	return nil
}

func (e *ESpeakEngine) args(voice tts.Voice) []string {
	return []string{
		"-v", espeakVoice(voice),
		"-s", strconv.Itoa(e.speed),
		"-p", strconv.Itoa(e.pitch),
	}
}

// espeakVoice builds the -v argument: "en-us", "en-us+f3", or a named voice.
func espeakVoice(voice tts.Voice) string {
	if voice.Name != "" {
		return voice.Name
	}
	v := voice.Language
	if v == "" {
		v = "en"
	}
	if voice.Territory != "" {
		v += "-" + strings.ToLower(voice.Territory)
	}
	switch strings.ToLower(voice.Gender) {
	case "female", "f":
		v += "+f3"
	case "male", "m":
		v += "+m3"
	}
	return v
}

// Close releases resources held by the engine.
func (e *ESpeakEngine) Close() error {
	return nil
}

var (
	_ tts.Synthesizer = (*ESpeakEngine)(nil)
	_ tts.Speaker     = (*ESpeakEngine)(nil)
)
