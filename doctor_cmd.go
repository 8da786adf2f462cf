package main

import (
	"fmt"
	"os"
	"os/exec"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/dgnsrekt/mediavoice/internal/audio"
	"github.com/dgnsrekt/mediavoice/internal/config"
	"github.com/spf13/cobra"
)

// dependency is one external program or file an engine or player needs.
type dependency struct {
	Group        string
	Name         string
	Path         string
	Installed    bool
	Instructions string
}

var doctorCmd = &cobra.Command{
	Use:   "doctor",
	Short: "Check which engines and players are usable",
	Args:  cobra.NoArgs,
	RunE: func(*cobra.Command, []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		deps := checkDependencies(cfg)
		fmt.Print(dependencyReport(deps))

		for _, d := range deps {
			if d.Group == "Engines" && d.Name == cfg.Engine && !d.Installed {
				return fmt.Errorf("configured engine %q is not usable", cfg.Engine)
			}
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(doctorCmd)
}

func lookBinary(group, name string, candidates []string, instructions string) dependency {
	d := dependency{Group: group, Name: name, Instructions: instructions}
	for _, c := range candidates {
		if c == "" {
			continue
		}
		if p, err := exec.LookPath(c); err == nil {
			d.Path = p
			d.Installed = true
			break
		}
	}
	return d
}

func lookFile(group, name, path, instructions string) dependency {
	d := dependency{Group: group, Name: name, Path: path, Instructions: instructions}
	if path == "" {
		return d
	}
	if _, err := os.Stat(path); err == nil {
		d.Installed = true
	}
	return d
}

func checkDependencies(cfg config.Config) []dependency {
	deps := []dependency{
		lookBinary("Engines", "espeak", []string{cfg.ESpeak.Binary, "espeak-ng", "espeak"},
			"install espeak-ng from your package manager"),
		lookBinary("Engines", "piper", []string{cfg.Piper.Binary},
			"download piper from https://github.com/rhasspy/piper/releases"),
		lookFile("Engines", "piper model", cfg.Piper.ModelPath,
			"set piper.model_path to an .onnx voice model"),
		lookBinary("Engines", "gtts", []string{cfg.GTTS.Binary},
			"pip install gTTS"),
		lookFile("Engines", "google", cfg.Google.CredentialsFile,
			"set GOOGLE_APPLICATION_CREDENTIALS to a service account key"),
		{Group: "Engines", Name: "mock", Installed: true},
	}

	for _, p := range audio.Presets() {
		deps = append(deps, lookBinary("Players", p.Name, []string{p.Command},
			fmt.Sprintf("plays %s", strings.Join(p.FileTypes, ", "))))
	}
	deps = append(deps, dependency{Group: "Players", Name: "oto", Installed: true, Path: "built in"})
	return deps
}

func dependencyReport(deps []dependency) string {
	titleStyle := lipgloss.NewStyle().
		Bold(true).
		Foreground(lipgloss.Color("39")).
		MarginBottom(1)
	installedStyle := lipgloss.NewStyle().
		Foreground(lipgloss.Color("42"))
	missingStyle := lipgloss.NewStyle().
		Foreground(lipgloss.Color("196"))

	var report strings.Builder
	report.WriteString(titleStyle.Render("mediavoice dependency check"))
	report.WriteString("\n")

	group := ""
	for _, d := range deps {
		if d.Group != group {
			group = d.Group
			report.WriteString("\n" + group + ":\n")
		}
		if d.Installed {
			report.WriteString(installedStyle.Render("  ✓ " + d.Name + ": "))
			report.WriteString(d.Path + "\n")
			continue
		}
		report.WriteString(missingStyle.Render("  ✗ " + d.Name + ": "))
		report.WriteString("not found\n")
		if d.Instructions != "" {
			report.WriteString(fmt.Sprintf("    %s\n", d.Instructions))
		}
	}
	return report.String()
}
