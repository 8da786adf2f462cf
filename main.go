// Package main provides the entry point for the mediavoice CLI application.
package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/charmbracelet/log"
	"github.com/dgnsrekt/mediavoice/internal/config"
	"github.com/dgnsrekt/mediavoice/internal/logging"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

var (
	// Version as provided by goreleaser.
	Version = ""
	// CommitSHA as provided by goreleaser.
	CommitSHA = ""

	configFile   string
	debug        bool
	changedFlags = map[string]bool{}

	rootCmd = &cobra.Command{
		Use:   "mediavoice",
		Short: "Speak text through pluggable speech engines and players",
		Long: paragraph(
			fmt.Sprintf("\nSpeak text through %s, with an on-disk audio cache.", keyword("pluggable speech engines")),
		),
		SilenceErrors:    false,
		SilenceUsage:     true,
		TraverseChildren: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			cmd.Flags().Visit(func(f *pflag.Flag) {
				changedFlags[f.Name] = true
			})
			if cmd.Flags().Changed("config") {
				viper.SetConfigFile(configFile)
				if err := config.CheckFile(configFile); err != nil {
					return fmt.Errorf("unable to parse config file: %w", err)
				}
				if err := viper.ReadInConfig(); err != nil {
					return fmt.Errorf("unable to read config file: %w", err)
				}
			}
			return nil
		},
	}
)

func main() {
	closer, err := setupLog()
	if err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
	if err := rootCmd.Execute(); err != nil {
		_ = closer()
		os.Exit(1)
	}
	_ = closer()
}

// setupLog installs the default logger. Debug output is enabled by the
// --debug flag or MEDIAVOICE_DEBUG before cobra has parsed anything, so the
// raw arguments are scanned here.
func setupLog() (func() error, error) {
	on := viper.GetBool("debug")
	for _, arg := range os.Args[1:] {
		if arg == "--debug" {
			on = true
		}
	}
	_, closer, err := logging.Setup(logging.Options{Debug: on})
	return closer, err
}

func init() {
	tryLoadConfigFromDefaultPlaces()
	if len(CommitSHA) >= 7 {
		vt := rootCmd.VersionTemplate()
		rootCmd.SetVersionTemplate(vt[:len(vt)-1] + " (" + CommitSHA[0:7] + ")\n")
	}
	if Version == "" {
		Version = "unknown (built from source)"
	}
	rootCmd.Version = Version
	rootCmd.InitDefaultCompletionCmd()

	rootCmd.PersistentFlags().StringVar(&configFile, "config", "", fmt.Sprintf("config file (default %s)", viper.GetViper().ConfigFileUsed()))
	rootCmd.PersistentFlags().BoolVar(&debug, "debug", false, "log debug output and write the debug log")
	rootCmd.PersistentFlags().StringP("engine", "e", "", "speech engine (espeak, piper, gtts, google, mock)")
	rootCmd.PersistentFlags().StringP("language", "l", "", "voice language, e.g. en-US")
	rootCmd.PersistentFlags().String("voice", "", "engine-specific voice name")

	_ = viper.BindPFlag("debug", rootCmd.PersistentFlags().Lookup("debug"))
	_ = viper.BindPFlag("engine", rootCmd.PersistentFlags().Lookup("engine"))
	_ = viper.BindPFlag("language", rootCmd.PersistentFlags().Lookup("language"))
	_ = viper.BindPFlag("voice", rootCmd.PersistentFlags().Lookup("voice"))

	config.SetDefaults(viper.GetViper())

	rootCmd.AddCommand(speakCmd, seedCmd, cacheCmd, configCmd)
}

func tryLoadConfigFromDefaultPlaces() {
	dirs, err := config.ConfigDirs()
	if err != nil {
		fmt.Println("Could not load find configuration directory.")
		os.Exit(1)
	}

	for _, v := range dirs {
		viper.AddConfigPath(v)
	}

	viper.SetConfigName(config.AppName)
	viper.SetConfigType("yaml")
	viper.SetEnvPrefix(config.AppName)
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			log.Warn("Could not parse configuration file", "err", err)
		}
	}

	if used := viper.ConfigFileUsed(); used != "" {
		log.Debug("Using configuration file", "path", viper.ConfigFileUsed())
		return
	}

	configFile = filepath.Join(dirs[0], config.AppName+".yml")
	if err := ensureConfigFile(); err != nil {
		log.Error("Could not create default configuration", "error", err)
	}
}

// flagKeys are the settings flags may override after the environment.
var flagKeys = []string{"engine", "language", "voice", "player", "debug"}

// loadConfig resolves the layered configuration for a command: defaults,
// config file, environment, then flags.
func loadConfig() (config.Config, error) {
	cfg, err := config.Load(viper.GetViper())
	if err != nil {
		return cfg, err
	}

	changed := false
	for _, key := range flagKeys {
		changed = changed || changedFlags[key]
	}
	if changed {
		cfg.Engine = viper.GetString("engine")
		cfg.Language = viper.GetString("language")
		cfg.Voice = viper.GetString("voice")
		cfg.Player = viper.GetString("player")
		cfg.Debug = cfg.Debug || debug
		if err := cfg.Validate(); err != nil {
			return cfg, fmt.Errorf("invalid configuration: %w", err)
		}
	}

	if cfg.Debug {
		log.SetLevel(log.DebugLevel)
	}
	return cfg, nil
}
