package main

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path"
	"path/filepath"

	"github.com/charmbracelet/x/editor"
	"github.com/dgnsrekt/mediavoice/internal/config"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

const defaultConfigHeader = `# mediavoice configuration
#
# engine: espeak, piper, gtts, google or mock
# player: auto, oto, mock, or a preset (mpg123, mpv, ffplay, afplay, paplay, aplay)
# Durations use Go syntax ("250ms", "10s"). Every key can also be set with
# a MEDIAVOICE_ environment variable, e.g. MEDIAVOICE_CACHE_DIR.

`

var (
	forceInit bool

	configCmd = &cobra.Command{
		Use:     "config",
		Hidden:  false,
		Short:   "Edit the mediavoice config file",
		Long:    paragraph(fmt.Sprintf("\n%s the mediavoice config file. We’ll use EDITOR to determine which editor to use. If the config file doesn't exist, it will be created.", keyword("Edit"))),
		Example: paragraph("mediavoice config\nmediavoice config --config path/to/config.yml"),
		Args:    cobra.NoArgs,
		RunE: func(*cobra.Command, []string) error {
			if err := ensureConfigFile(); err != nil {
				return err
			}

			c, err := editor.Cmd("mediavoice", configFile)
			if err != nil {
				return fmt.Errorf("unable to set config file: %w", err)
			}
			c.Stdin = os.Stdin
			c.Stdout = os.Stdout
			c.Stderr = os.Stderr
			if err := c.Run(); err != nil {
				return fmt.Errorf("unable to run command: %w", err)
			}

			if err := config.CheckFile(configFile); err != nil {
				return fmt.Errorf("config file is not valid YAML: %w", err)
			}
			fmt.Println("Wrote config file to:", configFile)
			return nil
		},
	}

	configShowCmd = &cobra.Command{
		Use:   "show",
		Short: "Print the effective configuration",
		Long:  paragraph(fmt.Sprintf("\n%s the configuration after defaults, the config file, environment variables and flags are applied.", keyword("Print"))),
		Args:  cobra.NoArgs,
		RunE: func(*cobra.Command, []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			out, err := config.Render(cfg)
			if err != nil {
				return err
			}
			_, err = os.Stdout.Write(out)
			return err
		},
	}

	configInitCmd = &cobra.Command{
		Use:   "init",
		Short: "Write the default config file",
		Args:  cobra.NoArgs,
		RunE: func(*cobra.Command, []string) error {
			if forceInit {
				if err := os.Remove(configFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
					return fmt.Errorf("unable to remove config file: %w", err)
				}
			}
			if err := ensureConfigFile(); err != nil {
				return err
			}
			fmt.Println("Config file:", configFile)
			return nil
		},
	}
)

func init() {
	configInitCmd.Flags().BoolVarP(&forceInit, "force", "f", false, "overwrite an existing config file")
	configCmd.AddCommand(configShowCmd, configInitCmd)
}

func ensureConfigFile() error {
	if configFile == "" {
		configFile = viper.GetViper().ConfigFileUsed()
		if err := os.MkdirAll(filepath.Dir(configFile), 0o755); err != nil { //nolint:gosec
			return fmt.Errorf("could not write configuration file: %w", err)
		}
	}

	if ext := path.Ext(configFile); ext != ".yaml" && ext != ".yml" {
		return fmt.Errorf("'%s' is not a supported configuration type: use '%s' or '%s'", ext, ".yaml", ".yml")
	}

	if _, err := os.Stat(configFile); errors.Is(err, fs.ErrNotExist) {
		// File doesn't exist yet, create all necessary directories and
		// write the default config file
		if err := os.MkdirAll(filepath.Dir(configFile), 0o700); err != nil {
			return fmt.Errorf("unable create directory: %w", err)
		}

		body, err := config.Render(config.DefaultConfig())
		if err != nil {
			return err
		}

		f, err := os.Create(configFile)
		if err != nil {
			return fmt.Errorf("unable to create config file: %w", err)
		}
		defer func() { _ = f.Close() }()

		if _, err := f.WriteString(defaultConfigHeader); err != nil {
			return fmt.Errorf("unable to write config file: %w", err)
		}
		if _, err := f.Write(body); err != nil {
			return fmt.Errorf("unable to write config file: %w", err)
		}
	} else if err != nil { // some other error occurred
		return fmt.Errorf("unable to stat config file: %w", err)
	}
	return nil
}
