// Package logging configures the charmbracelet/log logger shared by every
// mediavoice component.
package logging

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/log"
	gap "github.com/muesli/go-app-paths"
	"golang.org/x/term"
)

// DebugLogName is the file debug logs are appended to.
const DebugLogName = "mediavoice-debug.log"

// Options configures Setup.
type Options struct {
	// Debug lowers the level to debug and tees output to the debug log.
	Debug bool

	// Output is the console destination (default os.Stderr).
	Output io.Writer

	// LogDir overrides the debug log directory.
	LogDir string
}

// Setup builds the logger, installs it as the default and returns it with
// a closer for the debug log file.
func Setup(opts Options) (*log.Logger, func() error, error) {
	out := opts.Output
	if out == nil {
		out = os.Stderr
	}

	level := log.InfoLevel
	if opts.Debug {
		level = log.DebugLevel
	}

	closer := func() error { return nil }
	if opts.Debug {
		f, path, err := openDebugLog(opts.LogDir)
		if err != nil {
			return nil, nil, err
		}
		out = io.MultiWriter(out, f)
		closer = f.Close
		defer log.Debug("Appending debug log", "path", path)
	}

	logger := log.NewWithOptions(out, log.Options{
		Level:           level,
		ReportTimestamp: opts.Debug,
		TimeFormat:      time.TimeOnly,
		Formatter:       formatter(opts.Output),
	})
	logger.SetStyles(Styles())
	log.SetDefault(logger)

	return logger, closer, nil
}

// formatter selects logfmt when the console is not a terminal.
func formatter(w io.Writer) log.Formatter {
	if w == nil {
		w = os.Stderr
	}
	if f, ok := w.(*os.File); ok && term.IsTerminal(int(f.Fd())) {
		return log.TextFormatter
	}
	return log.LogfmtFormatter
}

func openDebugLog(dir string) (*os.File, string, error) {
	path := filepath.Join(dir, DebugLogName)
	if dir == "" {
		var err error
		path, err = gap.NewScope(gap.User, "mediavoice").LogPath(DebugLogName)
		if err != nil {
			return nil, "", fmt.Errorf("could not find log directory: %w", err)
		}
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, "", fmt.Errorf("could not create log directory: %w", err)
	}

	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, "", fmt.Errorf("error opening debug log: %w", err)
	}
	return f, path, nil
}

// Styles returns level styles for the text formatter.
func Styles() *log.Styles {
	styles := log.DefaultStyles()
	styles.Levels[log.DebugLevel] = lipgloss.NewStyle().
		SetString("DEBU").
		Bold(true).
		Foreground(lipgloss.Color("63"))
	styles.Levels[log.InfoLevel] = lipgloss.NewStyle().
		SetString("INFO").
		Bold(true).
		Foreground(lipgloss.Color("86"))
	styles.Levels[log.WarnLevel] = lipgloss.NewStyle().
		SetString("WARN").
		Bold(true).
		Foreground(lipgloss.Color("192"))
	styles.Levels[log.ErrorLevel] = lipgloss.NewStyle().
		SetString("ERRO").
		Bold(true).
		Foreground(lipgloss.Color("204"))
	styles.Keys["error"] = lipgloss.NewStyle().Foreground(lipgloss.Color("204"))
	styles.Values["error"] = lipgloss.NewStyle().Bold(true)
	return styles
}
