package engines

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	texttospeech "cloud.google.com/go/texttospeech/apiv1"
	"cloud.google.com/go/texttospeech/apiv1/texttospeechpb"
	"github.com/charmbracelet/log"
	"github.com/dgnsrekt/mediavoice/internal/lifecycle"
	"github.com/dgnsrekt/mediavoice/internal/tts"
	"github.com/mitchellh/go-homedir"
	"golang.org/x/time/rate"
	"google.golang.org/api/option"
)

// GoogleConfig holds configuration for the Google Cloud TTS engine.
type GoogleConfig struct {
	// CredentialsFile is a service account key. Application default
	// credentials are used when empty.
	CredentialsFile string

	// SpeakingRate in [0.25, 4.0] (defaults to 1.0). Chirp voices ignore it.
	SpeakingRate float64

	// VolumeGainDb in [-96, 16]
	VolumeGainDb float64

	// RequestsPerMinute throttles API calls (defaults to 300)
	RequestsPerMinute int

	// Timeout for one request (defaults to 30s)
	Timeout time.Duration
}

// speechClient is the part of the Cloud TTS client the engine uses.
type speechClient interface {
	synthesize(ctx context.Context, req *texttospeechpb.SynthesizeSpeechRequest) (*texttospeechpb.SynthesizeSpeechResponse, error)
	Close() error
}

type cloudClient struct {
	*texttospeech.Client
}

func (c cloudClient) synthesize(ctx context.Context, req *texttospeechpb.SynthesizeSpeechRequest) (*texttospeechpb.SynthesizeSpeechResponse, error) {
	return c.SynthesizeSpeech(ctx, req)
}

// GoogleEngine synthesizes mp3 audio with the Google Cloud Text-to-Speech
// API.
type GoogleEngine struct {
	client       speechClient
	speakingRate float64
	volumeGainDb float64
	timeout      time.Duration
	rateLimiter  *rate.Limiter

	life   *lifecycle.Manager
	logger *log.Logger
}

// NewGoogleEngine dials the Cloud TTS API.
func NewGoogleEngine(ctx context.Context, config GoogleConfig, life *lifecycle.Manager, logger *log.Logger) (*GoogleEngine, error) {
	var opts []option.ClientOption
	if config.CredentialsFile != "" {
		path, err := homedir.Expand(config.CredentialsFile)
		if err != nil {
			return nil, fmt.Errorf("invalid credentials path: %w", err)
		}
		opts = append(opts, option.WithCredentialsFile(path))
	}

	client, err := texttospeech.NewClient(ctx, opts...)
	if err != nil {
		return nil, tts.NewTTSError(tts.ErrorCodeEngineUnavailable, "failed to create TTS client", err)
	}
	return newGoogleEngine(cloudClient{client}, config, life, logger)
}

func newGoogleEngine(client speechClient, config GoogleConfig, life *lifecycle.Manager, logger *log.Logger) (*GoogleEngine, error) {
	if config.SpeakingRate == 0 {
		config.SpeakingRate = 1.0
	}
	if config.SpeakingRate < 0.25 || config.SpeakingRate > 4.0 {
		return nil, fmt.Errorf("google speaking rate must be between 0.25 and 4.0, got %.2f", config.SpeakingRate)
	}
	if config.VolumeGainDb < -96 || config.VolumeGainDb > 16 {
		return nil, fmt.Errorf("google volume gain must be between -96 and 16 dB, got %.1f", config.VolumeGainDb)
	}
	if config.RequestsPerMinute == 0 {
		config.RequestsPerMinute = 300
	}
	if config.Timeout == 0 {
		config.Timeout = 30 * time.Second
	}
	if logger == nil {
		logger = log.Default()
	}

	return &GoogleEngine{
		client:       client,
		speakingRate: config.SpeakingRate,
		volumeGainDb: config.VolumeGainDb,
		timeout:      config.Timeout,
		rateLimiter:  rate.NewLimiter(rate.Every(time.Minute/time.Duration(config.RequestsPerMinute)), 5),
		life:         life,
		logger:       logger.WithPrefix("google"),
	}, nil
}

// Name returns the cache namespace.
func (e *GoogleEngine) Name() string { return tts.EngineGoogle.String() }

// FileType returns the produced audio suffix.
func (e *GoogleEngine) FileType() string { return "mp3" }

// MaxPhraseLength stays under the API's 5000 byte input limit.
func (e *GoogleEngine) MaxPhraseLength() int { return 4500 }

// Synthesize requests mp3 audio for text.
func (e *GoogleEngine) Synthesize(ctx context.Context, text string, voice tts.Voice) ([]byte, error) {
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

	resp, err := e.client.synthesize(ctx, e.request(text, voice))
	if err != nil {
		if e.life.Aborted() {
			return nil, lifecycle.ErrAbort
		}
		return nil, tts.NewDownloadError(e.Name(), err)
	}
	if len(resp.GetAudioContent()) == 0 {
		return nil, tts.NewDownloadError(e.Name(), errors.New("empty audio content"))
	}
	return resp.GetAudioContent(), nil
}

func (e *GoogleEngine) request(text string, voice tts.Voice) *texttospeechpb.SynthesizeSpeechRequest {
	audioCfg := &texttospeechpb.AudioConfig{
		AudioEncoding: texttospeechpb.AudioEncoding_MP3,
	}
	// Chirp voices reject speakingRate and volume tuning.
	if !strings.Contains(strings.ToLower(voice.Name), "chirp") {
		audioCfg.SpeakingRate = e.speakingRate
		audioCfg.VolumeGainDb = e.volumeGainDb
	}

	locale := voice.Locale()
	if locale == "" {
		locale = "en-US"
	}

	return &texttospeechpb.SynthesizeSpeechRequest{
		Input: &texttospeechpb.SynthesisInput{
			InputSource: &texttospeechpb.SynthesisInput_Text{Text: text},
		},
		Voice: &texttospeechpb.VoiceSelectionParams{
			LanguageCode: locale,
			Name:         voice.Name,
			SsmlGender:   ssmlGender(voice.Gender),
		},
		AudioConfig: audioCfg,
	}
}

func ssmlGender(gender string) texttospeechpb.SsmlVoiceGender {
	switch strings.ToLower(gender) {
	case "female", "f":
		return texttospeechpb.SsmlVoiceGender_FEMALE
	case "male", "m":
		return texttospeechpb.SsmlVoiceGender_MALE
	case "neutral":
		return texttospeechpb.SsmlVoiceGender_NEUTRAL
	default:
		return texttospeechpb.SsmlVoiceGender_SSML_VOICE_GENDER_UNSPECIFIED
	}
}

// Close closes the API connection.
func (e *GoogleEngine) Close() error {
	return e.client.Close()
}

var _ tts.Synthesizer = (*GoogleEngine)(nil)
