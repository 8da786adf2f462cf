package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	gap "github.com/muesli/go-app-paths"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

// Settings returns the config as flat viper keys. Durations are rendered
// as strings so they read back through viper.GetDuration.
func (c Config) Settings() map[string]any {
	return map[string]any{
		"engine":           c.Engine,
		"player":           c.Player,
		"player_command":   c.PlayerCommand,
		"player_args":      c.PlayerArgs,
		"language":         c.Language,
		"voice":            c.Voice,
		"gender":           c.Gender,
		"volume":           c.Volume,
		"pre_pause":        c.PrePause.String(),
		"post_pause":       c.PostPause.String(),
		"generate_timeout": c.Timeout.String(),
		"debug":            c.Debug,

		"cache.enabled":           c.Cache.Enabled,
		"cache.dir":               c.Cache.Dir,
		"cache.expiration_days":   c.Cache.ExpirationDays,
		"cache.ignore_expiration": c.Cache.IgnoreExpiration,
		"cache.save_text":         c.Cache.SaveText,
		"cache.min_file_size":     c.Cache.MinFileSize,
		"cache.sweep_interval":    c.Cache.SweepInterval.String(),
		"cache.watch":             c.Cache.Watch,

		"queue.size":   c.Queue.Size,
		"queue.policy": c.Queue.Policy,

		"espeak.binary":  c.ESpeak.Binary,
		"espeak.speed":   c.ESpeak.Speed,
		"espeak.pitch":   c.ESpeak.Pitch,
		"espeak.timeout": c.ESpeak.Timeout.String(),

		"piper.binary":       c.Piper.Binary,
		"piper.model_path":   c.Piper.ModelPath,
		"piper.config_path":  c.Piper.ConfigPath,
		"piper.speaker":      c.Piper.Speaker,
		"piper.length_scale": c.Piper.LengthScale,
		"piper.timeout":      c.Piper.Timeout.String(),

		"gtts.binary":              c.GTTS.Binary,
		"gtts.slow":                c.GTTS.Slow,
		"gtts.requests_per_minute": c.GTTS.RequestsPerMinute,
		"gtts.timeout":             c.GTTS.Timeout.String(),

		"google.credentials_file":    c.Google.CredentialsFile,
		"google.speaking_rate":       c.Google.SpeakingRate,
		"google.volume_gain_db":      c.Google.VolumeGainDb,
		"google.requests_per_minute": c.Google.RequestsPerMinute,
		"google.timeout":             c.Google.Timeout.String(),
	}
}

// SetDefaults registers every default value with v.
func SetDefaults(v *viper.Viper) {
	for key, value := range DefaultConfig().Settings() {
		v.SetDefault(key, value)
	}
}

// LoadFromViper reads every key from v. Keys v does not know keep their
// default value.
func LoadFromViper(v *viper.Viper) Config {
	cfg := DefaultConfig()
	for key, value := range cfg.Settings() {
		if !v.IsSet(key) {
			v.SetDefault(key, value)
		}
	}

	cfg.Engine = v.GetString("engine")
	cfg.Player = v.GetString("player")
	cfg.PlayerCommand = v.GetString("player_command")
	cfg.PlayerArgs = v.GetStringSlice("player_args")
	cfg.Language = v.GetString("language")
	cfg.Voice = v.GetString("voice")
	cfg.Gender = v.GetString("gender")
	cfg.Volume = v.GetFloat64("volume")
	cfg.PrePause = v.GetDuration("pre_pause")
	cfg.PostPause = v.GetDuration("post_pause")
	cfg.Timeout = v.GetDuration("generate_timeout")
	cfg.Debug = v.GetBool("debug")

	cfg.Cache.Enabled = v.GetBool("cache.enabled")
	cfg.Cache.Dir = v.GetString("cache.dir")
	cfg.Cache.ExpirationDays = v.GetInt("cache.expiration_days")
	cfg.Cache.IgnoreExpiration = v.GetBool("cache.ignore_expiration")
	cfg.Cache.SaveText = v.GetBool("cache.save_text")
	cfg.Cache.MinFileSize = v.GetInt64("cache.min_file_size")
	cfg.Cache.SweepInterval = v.GetDuration("cache.sweep_interval")
	cfg.Cache.Watch = v.GetBool("cache.watch")

	cfg.Queue.Size = v.GetInt("queue.size")
	cfg.Queue.Policy = v.GetString("queue.policy")

	cfg.ESpeak.Binary = v.GetString("espeak.binary")
	cfg.ESpeak.Speed = v.GetInt("espeak.speed")
	cfg.ESpeak.Pitch = v.GetInt("espeak.pitch")
	cfg.ESpeak.Timeout = v.GetDuration("espeak.timeout")

	cfg.Piper.Binary = v.GetString("piper.binary")
	cfg.Piper.ModelPath = v.GetString("piper.model_path")
	cfg.Piper.ConfigPath = v.GetString("piper.config_path")
	cfg.Piper.Speaker = v.GetString("piper.speaker")
	cfg.Piper.LengthScale = v.GetFloat64("piper.length_scale")
	cfg.Piper.Timeout = v.GetDuration("piper.timeout")

	cfg.GTTS.Binary = v.GetString("gtts.binary")
	cfg.GTTS.Slow = v.GetBool("gtts.slow")
	cfg.GTTS.RequestsPerMinute = v.GetInt("gtts.requests_per_minute")
	cfg.GTTS.Timeout = v.GetDuration("gtts.timeout")

	cfg.Google.CredentialsFile = v.GetString("google.credentials_file")
	cfg.Google.SpeakingRate = v.GetFloat64("google.speaking_rate")
	cfg.Google.VolumeGainDb = v.GetFloat64("google.volume_gain_db")
	cfg.Google.RequestsPerMinute = v.GetInt("google.requests_per_minute")
	cfg.Google.Timeout = v.GetDuration("google.timeout")

	return cfg
}

// Render returns c as a YAML document nested by key.
func Render(c Config) ([]byte, error) {
	root := make(map[string]any)
	for key, value := range c.Settings() {
		node := root
		parts := strings.Split(key, ".")
		for _, part := range parts[:len(parts)-1] {
			child, ok := node[part].(map[string]any)
			if !ok {
				child = make(map[string]any)
				node[part] = child
			}
			node = child
		}
		node[parts[len(parts)-1]] = value
	}

	out, err := yaml.Marshal(root)
	if err != nil {
		return nil, fmt.Errorf("unable to render config: %w", err)
	}
	return out, nil
}

// CheckFile parses path as YAML and reports syntax errors with their line.
func CheckFile(path string) error {
	b, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	var doc yaml.Node
	if err := yaml.Unmarshal(b, &doc); err != nil {
		return fmt.Errorf("%s: %w", path, err)
	}
	return nil
}

// ConfigDirs returns the directories searched for mediavoice.yml, most
// specific first.
func ConfigDirs() ([]string, error) {
	dirs, err := gap.NewScope(gap.User, AppName).ConfigDirs()
	if err != nil {
		return nil, fmt.Errorf("could not find configuration directory: %w", err)
	}

	if c := os.Getenv("XDG_CONFIG_HOME"); c != "" {
		dirs = append([]string{filepath.Join(c, AppName)}, dirs...)
	}
	if c := os.Getenv("MEDIAVOICE_CONFIG_HOME"); c != "" {
		dirs = append([]string{c}, dirs...)
	}
	return dirs, nil
}
