package engines

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	"github.com/dgnsrekt/mediavoice/internal/lifecycle"
	"github.com/dgnsrekt/mediavoice/internal/process"
	"github.com/dgnsrekt/mediavoice/internal/tts"
	"github.com/mitchellh/go-homedir"
)

// PiperEngine synthesizes wav audio with Piper (offline neural TTS).
// Each call runs a fresh process with stdin pre-configured, so no write can
// race the process reading its input.
type PiperEngine struct {
	binary      string
	modelPath   string
	configPath  string
	speaker     string
	lengthScale float64
	tempDir     string
	timeout     time.Duration

	life   *lifecycle.Manager
	logger *log.Logger
}

// PiperConfig holds configuration for the Piper engine.
type PiperConfig struct {
	// Binary is the piper executable (defaults to "piper")
	Binary string

	// Model file path (required)
	ModelPath string

	// Config file path (optional, defaults to model path with .json extension)
	ConfigPath string

	// Speaker id for multi-speaker models (optional)
	Speaker string

	// LengthScale slows (>1) or speeds up (<1) speech (defaults to 1.0)
	LengthScale float64

	// TempDir for intermediate files - defaults to system temp
	TempDir string

	// Timeout for one synthesis (defaults to 30s)
	Timeout time.Duration
}

// NewPiperEngine creates a new Piper TTS engine.
func NewPiperEngine(config PiperConfig, life *lifecycle.Manager, logger *log.Logger) (*PiperEngine, error) {
	if config.ModelPath == "" {
		return nil, errors.New("piper model path is required")
	}
	modelPath, err := homedir.Expand(config.ModelPath)
	if err != nil {
		return nil, fmt.Errorf("invalid model path: %w", err)
	}
	if _, err := os.Stat(modelPath); err != nil {
		return nil, fmt.Errorf("model file not found: %w", err)
	}

	if config.ConfigPath == "" {
		config.ConfigPath = strings.TrimSuffix(modelPath, filepath.Ext(modelPath)) + ".onnx.json"
		if _, err := os.Stat(config.ConfigPath); err != nil {
			config.ConfigPath = strings.TrimSuffix(modelPath, filepath.Ext(modelPath)) + ".json"
		}
	}
	if config.Binary == "" {
		config.Binary = "piper"
	}
	if config.LengthScale == 0 {
		config.LengthScale = 1.0
	}
	if config.LengthScale < 0.25 || config.LengthScale > 4 {
		return nil, fmt.Errorf("piper length scale must be between 0.25 and 4, got %.2f", config.LengthScale)
	}
	if config.TempDir == "" {
		config.TempDir = os.TempDir()
	}
	if config.Timeout == 0 {
		config.Timeout = 30 * time.Second
	}
	if logger == nil {
		logger = log.Default()
	}

	return &PiperEngine{
		binary:      config.Binary,
		modelPath:   modelPath,
		configPath:  config.ConfigPath,
		speaker:     config.Speaker,
		lengthScale: config.LengthScale,
		tempDir:     config.TempDir,
		timeout:     config.Timeout,
		life:        life,
		logger:      logger.WithPrefix("piper"),
	}, nil
}

// Name returns the cache namespace.
func (e *PiperEngine) Name() string { return tts.EnginePiper.String() }

// FileType returns the produced audio suffix.
func (e *PiperEngine) FileType() string { return "wav" }

// MaxPhraseLength limits one request; Piper handles long input but slowly.
func (e *PiperEngine) MaxPhraseLength() int { return 5000 }

// Synthesize converts text to wav bytes. The voice selects nothing here:
// Piper voices are chosen by model.
func (e *PiperEngine) Synthesize(ctx context.Context, text string, voice tts.Voice) ([]byte, error) {
	if strings.TrimSpace(text) == "" {
		return nil, tts.NewTTSError(tts.ErrorCodeInvalidInput, "nothing to synthesize", tts.ErrEmptyText)
	}

	out, err := os.CreateTemp(e.tempDir, "piper-*.wav")
	if err != nil {
		return nil, fmt.Errorf("failed to create temp wav file: %w", err)
	}
	outPath := out.Name()
	_ = out.Close()
	defer os.Remove(outPath)

	args := []string{
		"--model", e.modelPath,
		"--output_file", outPath,
		"--length_scale", fmt.Sprintf("%.2f", e.lengthScale),
	}
	if _, err := os.Stat(e.configPath); err == nil {
		args = append(args, "--config", e.configPath)
	}
	if e.speaker != "" {
		args = append(args, "--speaker", e.speaker)
	}

	ctx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	if _, err := process.Output(ctx, process.Options{
		Name:  e.binary,
		Args:  args,
		Stdin: strings.NewReader(text),
	}, nil, e.life, e.logger); err != nil {
		if errors.Is(err, lifecycle.ErrAbort) {
			return nil, err
		}
		return nil, tts.NewTTSError(tts.ErrorCodeEngineFailure, "piper synthesis failed", err).
			WithContext("model", filepath.Base(e.modelPath))
	}

	audio, err := os.ReadFile(outPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read piper output: %w", err)
	}
	if len(audio) == 0 {
		return nil, tts.NewTTSError(tts.ErrorCodeEngineFailure, "piper produced no audio", nil)
	}
	return audio, nil
}

// Close releases resources held by the engine.
func (e *PiperEngine) Close() error {
	return nil
}

var _ tts.Synthesizer = (*PiperEngine)(nil)
