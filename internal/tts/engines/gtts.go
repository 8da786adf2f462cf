package engines

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	"github.com/dgnsrekt/mediavoice/internal/lifecycle"
	"github.com/dgnsrekt/mediavoice/internal/process"
	"github.com/dgnsrekt/mediavoice/internal/tts"
	"golang.org/x/time/rate"
)

// GTTSEngine synthesizes mp3 audio with gtts-cli (Google Translate TTS).
// It needs no API key but is throttled to avoid being blocked.
type GTTSEngine struct {
	binary  string
	slow    bool
	timeout time.Duration

	// Rate limiting to avoid being blocked by Google
	rateLimiter *rate.Limiter

	life   *lifecycle.Manager
	logger *log.Logger
}

// GTTSConfig holds configuration for the gTTS engine.
type GTTSConfig struct {
	// Binary is the gtts-cli executable (defaults to "gtts-cli")
	Binary string

	// Slow speech (--slow flag) - defaults to false
	Slow bool

	// Rate limit requests per minute to avoid being blocked (defaults to 50)
	RequestsPerMinute int

	// Timeout for one request (defaults to 30s)
	Timeout time.Duration
}

// gttsTLDs maps territories to the Google Translate domain that carries
// the regional accent.
var gttsTLDs = map[string]string{
	"au": "com.au",
	"ca": "ca",
	"gb": "co.uk",
	"in": "co.in",
	"ie": "ie",
	"za": "co.za",
	"br": "com.br",
	"pt": "pt",
	"mx": "com.mx",
	"es": "es",
	"fr": "fr",
}

// NewGTTSEngine creates a new gTTS engine.
func NewGTTSEngine(config GTTSConfig, life *lifecycle.Manager, logger *log.Logger) (*GTTSEngine, error) {
	if config.Binary == "" {
		config.Binary = "gtts-cli"
	}
	if config.RequestsPerMinute == 0 {
		config.RequestsPerMinute = 50
	}
	if config.RequestsPerMinute < 0 {
		return nil, fmt.Errorf("gtts requests per minute must be positive, got %d", config.RequestsPerMinute)
	}
	if config.Timeout == 0 {
		config.Timeout = 30 * time.Second
	}
	if logger == nil {
		logger = log.Default()
	}

	return &GTTSEngine{
		binary:      config.Binary,
		slow:        config.Slow,
		timeout:     config.Timeout,
		rateLimiter: rate.NewLimiter(rate.Every(time.Minute/time.Duration(config.RequestsPerMinute)), 1),
		life:        life,
		logger:      logger.WithPrefix("gtts"),
	}, nil
}

// Name returns the cache namespace.
func (e *GTTSEngine) Name() string { return tts.EngineGTTS.String() }

// FileType returns the produced audio suffix.
func (e *GTTSEngine) FileType() string { return "mp3" }

// MaxPhraseLength keeps requests short enough for the translate endpoint
// to answer reliably.
func (e *GTTSEngine) MaxPhraseLength() int { return 100 }

// Synthesize fetches mp3 bytes for text. Network and service failures are
// returned as *tts.DownloadError.
func (e *GTTSEngine) Synthesize(ctx context.Context, text string, voice tts.Voice) ([]byte, error) {
	if strings.TrimSpace(text) == "" {
		return nil, tts.NewTTSError(tts.ErrorCodeInvalidInput, "nothing to synthesize", tts.ErrEmptyText)
	}

	if err := e.rateLimiter.Wait(ctx); err != nil {
		if e.life.Aborted() {
			return nil, lifecycle.ErrAbort
		}
		return nil, fmt.Errorf("rate limit wait cancelled: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	mp3, err := process.Output(ctx, process.Options{
		Name:  e.binary,
		Args:  e.args(voice),
		Stdin: strings.NewReader(text),
	}, nil, e.life, e.logger)
	if err != nil {
		if errors.Is(err, lifecycle.ErrAbort) {
			return nil, err
		}
		return nil, tts.NewDownloadError(e.Name(), err)
	}
	if len(mp3) == 0 {
		return nil, tts.NewDownloadError(e.Name(), errors.New("gtts-cli produced no MP3 output"))
	}

	// Sanity check: MP3 shouldn't be too large
	const maxMP3Size = 50 * 1024 * 1024
	if len(mp3) > maxMP3Size {
		return nil, tts.NewDownloadError(e.Name(), fmt.Errorf("MP3 output too large: %d bytes", len(mp3)))
	}
	return mp3, nil
}

func (e *GTTSEngine) args(voice tts.Voice) []string {
	lang := voice.Language
	if lang == "" {
		lang = "en"
	}
	args := []string{"-", "--lang", lang}
	if tld, ok := gttsTLDs[strings.ToLower(voice.Territory)]; ok {
		args = append(args, "--tld", tld)
	}
	if e.slow {
		args = append(args, "--slow")
	}
	return args
}

// Close releases resources held by the engine.
func (e *GTTSEngine) Close() error {
	return nil
}

var _ tts.Synthesizer = (*GTTSEngine)(nil)
