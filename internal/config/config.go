// Package config loads mediavoice settings. Values are layered: built-in
// defaults, then the YAML config file read through viper, then
// MEDIAVOICE_* environment variables, then command line flags bound to
// the same viper keys.
package config

import (
	"fmt"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/dgnsrekt/mediavoice/internal/audio"
	"github.com/dgnsrekt/mediavoice/internal/cache"
	"github.com/dgnsrekt/mediavoice/internal/queue"
	"github.com/dgnsrekt/mediavoice/internal/tts"
	"github.com/dgnsrekt/mediavoice/internal/tts/engines"
	"github.com/mitchellh/go-homedir"
	gap "github.com/muesli/go-app-paths"
	"github.com/spf13/viper"
	"golang.org/x/text/language"
)

// AppName names the config file, the env prefix and the app directories.
const AppName = "mediavoice"

// Config contains every mediavoice option.
type Config struct {
	Engine        string        `env:"MEDIAVOICE_ENGINE"`
	Player        string        `env:"MEDIAVOICE_PLAYER"`
	PlayerCommand string        `env:"MEDIAVOICE_PLAYER_COMMAND"`
	PlayerArgs    []string      `env:"MEDIAVOICE_PLAYER_ARGS" envSeparator:" "`
	Language      string        `env:"MEDIAVOICE_LANGUAGE"`
	Voice         string        `env:"MEDIAVOICE_VOICE"`
	Gender        string        `env:"MEDIAVOICE_GENDER"`
	Volume        float64       `env:"MEDIAVOICE_VOLUME"`
	PrePause      time.Duration `env:"MEDIAVOICE_PRE_PAUSE"`
	PostPause     time.Duration `env:"MEDIAVOICE_POST_PAUSE"`
	Timeout       time.Duration `env:"MEDIAVOICE_GENERATE_TIMEOUT"`
	Debug         bool          `env:"MEDIAVOICE_DEBUG"`

	Cache  CacheConfig
	Queue  QueueConfig
	ESpeak ESpeakConfig
	Piper  PiperConfig
	GTTS   GTTSConfig
	Google GoogleConfig
}

// CacheConfig contains audio cache settings.
type CacheConfig struct {
	Enabled          bool          `env:"MEDIAVOICE_CACHE_ENABLED"`
	Dir              string        `env:"MEDIAVOICE_CACHE_DIR"`
	ExpirationDays   int           `env:"MEDIAVOICE_CACHE_EXPIRATION_DAYS"`
	IgnoreExpiration bool          `env:"MEDIAVOICE_CACHE_IGNORE_EXPIRATION"`
	SaveText         bool          `env:"MEDIAVOICE_CACHE_SAVE_TEXT"`
	MinFileSize      int64         `env:"MEDIAVOICE_CACHE_MIN_FILE_SIZE"`
	SweepInterval    time.Duration `env:"MEDIAVOICE_CACHE_SWEEP_INTERVAL"`
	Watch            bool          `env:"MEDIAVOICE_CACHE_WATCH"`
}

// QueueConfig contains dispatch queue settings.
type QueueConfig struct {
	Size   int    `env:"MEDIAVOICE_QUEUE_SIZE"`
	Policy string `env:"MEDIAVOICE_QUEUE_POLICY"`
}

// ESpeakConfig contains espeak engine settings.
type ESpeakConfig struct {
	Binary  string        `env:"MEDIAVOICE_ESPEAK_BINARY"`
	Speed   int           `env:"MEDIAVOICE_ESPEAK_SPEED"`
	Pitch   int           `env:"MEDIAVOICE_ESPEAK_PITCH"`
	Timeout time.Duration `env:"MEDIAVOICE_ESPEAK_TIMEOUT"`
}

// PiperConfig contains Piper engine settings.
type PiperConfig struct {
	Binary      string        `env:"MEDIAVOICE_PIPER_BINARY"`
	ModelPath   string        `env:"MEDIAVOICE_PIPER_MODEL_PATH"`
	ConfigPath  string        `env:"MEDIAVOICE_PIPER_CONFIG_PATH"`
	Speaker     string        `env:"MEDIAVOICE_PIPER_SPEAKER"`
	LengthScale float64       `env:"MEDIAVOICE_PIPER_LENGTH_SCALE"`
	Timeout     time.Duration `env:"MEDIAVOICE_PIPER_TIMEOUT"`
}

// GTTSConfig contains gtts-cli engine settings.
type GTTSConfig struct {
	Binary            string        `env:"MEDIAVOICE_GTTS_BINARY"`
	Slow              bool          `env:"MEDIAVOICE_GTTS_SLOW"`
	RequestsPerMinute int           `env:"MEDIAVOICE_GTTS_REQUESTS_PER_MINUTE"`
	Timeout           time.Duration `env:"MEDIAVOICE_GTTS_TIMEOUT"`
}

// GoogleConfig contains Google Cloud TTS settings.
type GoogleConfig struct {
	CredentialsFile   string        `env:"GOOGLE_APPLICATION_CREDENTIALS"`
	SpeakingRate      float64       `env:"MEDIAVOICE_GOOGLE_SPEAKING_RATE"`
	VolumeGainDb      float64       `env:"MEDIAVOICE_GOOGLE_VOLUME_GAIN_DB"`
	RequestsPerMinute int           `env:"MEDIAVOICE_GOOGLE_REQUESTS_PER_MINUTE"`
	Timeout           time.Duration `env:"MEDIAVOICE_GOOGLE_TIMEOUT"`
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		Engine:   tts.EngineESpeak.String(),
		Player:   "auto",
		Language: "en-US",
		Volume:   1.0,
		Timeout:  10 * time.Second,

		Cache: CacheConfig{
			Enabled:        true,
			Dir:            defaultCacheDir(),
			ExpirationDays: 365,
			SaveText:       true,
			MinFileSize:    cache.DefaultMinFileSize,
			SweepInterval:  time.Hour,
		},
		Queue: QueueConfig{
			Size:   64,
			Policy: queue.Block.String(),
		},
		ESpeak: ESpeakConfig{
			Speed:   175,
			Pitch:   50,
			Timeout: 30 * time.Second,
		},
		Piper: PiperConfig{
			Binary:      "piper",
			LengthScale: 1.0,
			Timeout:     30 * time.Second,
		},
		GTTS: GTTSConfig{
			Binary:            "gtts-cli",
			RequestsPerMinute: 50,
			Timeout:           30 * time.Second,
		},
		Google: GoogleConfig{
			SpeakingRate:      1.0,
			RequestsPerMinute: 300,
			Timeout:           30 * time.Second,
		},
	}
}

func defaultCacheDir() string {
	dir, err := gap.NewScope(gap.User, AppName).CacheDir()
	if err != nil || dir == "" {
		return filepath.Join("~", ".cache", AppName)
	}
	return dir
}

// Load reads the config from v, applies environment overrides, expands
// paths and validates the result.
func Load(v *viper.Viper) (Config, error) {
	cfg := LoadFromViper(v)

	if err := env.Parse(&cfg); err != nil {
		return cfg, fmt.Errorf("error parsing environment: %w", err)
	}

	var err error
	for _, p := range []*string{&cfg.Cache.Dir, &cfg.Piper.ModelPath, &cfg.Piper.ConfigPath, &cfg.Google.CredentialsFile} {
		if *p == "" {
			continue
		}
		if *p, err = homedir.Expand(*p); err != nil {
			return cfg, fmt.Errorf("unable to expand path %q: %w", *p, err)
		}
	}

	if err := cfg.Validate(); err != nil {
		return cfg, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

var validEngines = []string{
	tts.EngineESpeak.String(),
	tts.EnginePiper.String(),
	tts.EngineGTTS.String(),
	tts.EngineGoogle.String(),
	tts.EngineMock.String(),
}

// Validate checks if the configuration is valid.
func (c *Config) Validate() error {
	c.Engine = strings.ToLower(c.Engine)
	if !slices.Contains(validEngines, c.Engine) {
		return fmt.Errorf("invalid engine '%s': must be one of %v", c.Engine, validEngines)
	}

	if c.Volume < 0.0 || c.Volume > 1.0 {
		return fmt.Errorf("volume must be between 0.0 and 1.0, got %.2f", c.Volume)
	}
	if c.Timeout < 100*time.Millisecond {
		return fmt.Errorf("generate_timeout must be at least 100ms, got %v", c.Timeout)
	}
	if c.PrePause < 0 || c.PostPause < 0 {
		return fmt.Errorf("pauses cannot be negative")
	}
	if _, err := c.TTSVoice(); err != nil {
		return err
	}

	if c.Cache.Enabled && c.Cache.Dir == "" {
		return fmt.Errorf("cache.dir must be set when the cache is enabled")
	}
	if c.Cache.ExpirationDays < 0 {
		return fmt.Errorf("cache.expiration_days cannot be negative, got %d", c.Cache.ExpirationDays)
	}
	if c.Cache.MinFileSize < 0 {
		return fmt.Errorf("cache.min_file_size cannot be negative, got %d", c.Cache.MinFileSize)
	}

	if c.Queue.Size < 1 || c.Queue.Size > 10000 {
		return fmt.Errorf("queue.size must be between 1 and 10000, got %d", c.Queue.Size)
	}
	if _, err := queue.ParsePolicy(c.Queue.Policy); err != nil {
		return err
	}

	switch tts.EngineType(c.Engine) {
	case tts.EnginePiper:
		if c.Piper.ModelPath == "" {
			return fmt.Errorf("piper config: model_path is required")
		}
		if c.Piper.LengthScale < 0.25 || c.Piper.LengthScale > 4.0 {
			return fmt.Errorf("piper config: length_scale must be between 0.25 and 4.0, got %.2f", c.Piper.LengthScale)
		}
	case tts.EngineESpeak:
		if c.ESpeak.Speed < 80 || c.ESpeak.Speed > 500 {
			return fmt.Errorf("espeak config: speed must be between 80 and 500, got %d", c.ESpeak.Speed)
		}
	case tts.EngineGTTS:
		if c.GTTS.RequestsPerMinute < 1 {
			return fmt.Errorf("gtts config: requests_per_minute must be positive, got %d", c.GTTS.RequestsPerMinute)
		}
	case tts.EngineGoogle:
		if c.Google.SpeakingRate < 0.25 || c.Google.SpeakingRate > 4.0 {
			return fmt.Errorf("google config: speaking_rate must be between 0.25 and 4.0, got %.2f", c.Google.SpeakingRate)
		}
		if c.Google.VolumeGainDb < -96.0 || c.Google.VolumeGainDb > 16.0 {
			return fmt.Errorf("google config: volume_gain_db must be between -96.0 and 16.0, got %.1f", c.Google.VolumeGainDb)
		}
	}

	return nil
}

// TTSVoice parses Language as a BCP 47 tag into the voice used for cache
// layout and engine selection.
func (c *Config) TTSVoice() (tts.Voice, error) {
	tag, err := language.Parse(c.Language)
	if err != nil {
		return tts.Voice{}, fmt.Errorf("invalid language %q: %w", c.Language, err)
	}

	base, _ := tag.Base()
	v := tts.Voice{
		Language: base.String(),
		Name:     c.Voice,
		Gender:   c.Gender,
	}
	if region, conf := tag.Region(); conf == language.Exact {
		v.Territory = strings.ToLower(region.String())
	}
	return v, nil
}

// EngineConfig converts the config to engine settings.
func (c *Config) EngineConfig() engines.Config {
	return engines.Config{
		Engine: tts.EngineType(c.Engine),
		ESpeak: engines.ESpeakConfig{
			Binary:  c.ESpeak.Binary,
			Speed:   c.ESpeak.Speed,
			Pitch:   c.ESpeak.Pitch,
			Timeout: c.ESpeak.Timeout,
		},
		Piper: engines.PiperConfig{
			Binary:      c.Piper.Binary,
			ModelPath:   c.Piper.ModelPath,
			ConfigPath:  c.Piper.ConfigPath,
			Speaker:     c.Piper.Speaker,
			LengthScale: c.Piper.LengthScale,
			Timeout:     c.Piper.Timeout,
		},
		GTTS: engines.GTTSConfig{
			Binary:            c.GTTS.Binary,
			Slow:              c.GTTS.Slow,
			RequestsPerMinute: c.GTTS.RequestsPerMinute,
			Timeout:           c.GTTS.Timeout,
		},
		Google: engines.GoogleConfig{
			CredentialsFile:   c.Google.CredentialsFile,
			SpeakingRate:      c.Google.SpeakingRate,
			VolumeGainDb:      c.Google.VolumeGainDb,
			RequestsPerMinute: c.Google.RequestsPerMinute,
			Timeout:           c.Google.Timeout,
		},
	}
}

// CacheConfig converts the config to cache settings.
func (c *Config) CacheConfig() cache.Config {
	cfg := cache.DefaultConfig(c.Cache.Dir)
	cfg.ExpirationDays = c.Cache.ExpirationDays
	cfg.IgnoreExpiration = c.Cache.IgnoreExpiration
	cfg.SaveText = c.Cache.SaveText
	cfg.MinFileSize = c.Cache.MinFileSize
	cfg.SweepInterval = c.Cache.SweepInterval
	return cfg
}

// PlayerConfig converts the config to player settings.
func (c *Config) PlayerConfig() audio.Config {
	return audio.Config{
		Player:  c.Player,
		Command: c.PlayerCommand,
		Args:    c.PlayerArgs,
		Volume:  c.Volume,
	}
}

// QueuePolicy returns the parsed full-queue policy.
func (c *Config) QueuePolicy() queue.Policy {
	p, _ := queue.ParsePolicy(c.Queue.Policy)
	return p
}
