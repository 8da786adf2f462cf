package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"

	"github.com/charmbracelet/log"
	"github.com/dgnsrekt/mediavoice/internal/audio"
	"github.com/dgnsrekt/mediavoice/internal/cache"
	"github.com/dgnsrekt/mediavoice/internal/config"
	"github.com/dgnsrekt/mediavoice/internal/driver"
	"github.com/dgnsrekt/mediavoice/internal/lifecycle"
	"github.com/dgnsrekt/mediavoice/internal/phrase"
	"github.com/dgnsrekt/mediavoice/internal/tts"
	"github.com/dgnsrekt/mediavoice/internal/tts/engines"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	interrupt bool
	noCache   bool
	textFile  string

	speakCmd = &cobra.Command{
		Use:   "speak [TEXT...]",
		Short: "Speak text",
		Long: paragraph(fmt.Sprintf("\n%s the arguments as one phrase, or every line of stdin or --file as its own phrase.",
			keyword("Speak"))),
		Example: paragraph("mediavoice speak hello world\necho 'line one\\nline two' | mediavoice speak --engine piper"),
		RunE: func(cmd *cobra.Command, args []string) error {
			texts, err := readTexts(args)
			if err != nil {
				return err
			}
			return run(cmd.Context(), true, func(d *driver.Driver, cfg config.Config) error {
				opts := []phrase.Option{
					phrase.WithPauses(cfg.PrePause, cfg.PostPause),
					phrase.WithInterrupt(interrupt),
				}
				_, err := d.SayList(texts, opts...)
				return err
			})
		},
	}

	seedCmd = &cobra.Command{
		Use:   "seed [TEXT...]",
		Short: "Synthesize text into the cache without playing it",
		Long: paragraph(fmt.Sprintf("\n%s the cache so later requests for the same text play without waiting for the engine.",
			keyword("Warm"))),
		Example: paragraph("mediavoice seed --file phrases.txt"),
		RunE: func(cmd *cobra.Command, args []string) error {
			texts, err := readTexts(args)
			if err != nil {
				return err
			}
			return run(cmd.Context(), false, func(d *driver.Driver, _ config.Config) error {
				for _, text := range texts {
					if _, err := d.Seed(text); err != nil {
						return err
					}
				}
				return nil
			})
		},
	}
)

func init() {
	speakCmd.Flags().BoolVarP(&interrupt, "interrupt", "i", false, "stop anything already queued first")
	speakCmd.Flags().BoolVar(&noCache, "no-cache", false, "synthesize without the audio cache")
	speakCmd.Flags().String("player", "", "audio player (auto, oto, mock, or a preset name)")
	_ = viper.BindPFlag("player", speakCmd.Flags().Lookup("player"))

	for _, c := range []*cobra.Command{speakCmd, seedCmd} {
		c.Flags().StringVarP(&textFile, "file", "f", "", "read phrases from a file, one per line")
	}
}

// readTexts returns the phrases to speak: the joined arguments, or the
// lines of --file or stdin.
func readTexts(args []string) ([]string, error) {
	if len(args) > 0 {
		return []string{strings.Join(args, " ")}, nil
	}

	var r io.Reader = os.Stdin
	if textFile != "" && textFile != "-" {
		f, err := os.Open(textFile)
		if err != nil {
			return nil, fmt.Errorf("unable to open file: %w", err)
		}
		defer f.Close() //nolint:errcheck
		r = f
	} else if textFile == "" {
		if yes, err := stdinIsPipe(); err != nil {
			return nil, err
		} else if !yes {
			return nil, errors.New("no text given: pass arguments, --file, or pipe text on stdin")
		}
	}

	var texts []string
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		if line := strings.TrimSpace(scanner.Text()); line != "" {
			texts = append(texts, line)
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("unable to read text: %w", err)
	}
	if len(texts) == 0 {
		return nil, tts.ErrEmptyText
	}
	return texts, nil
}

func stdinIsPipe() (bool, error) {
	stat, err := os.Stdin.Stat()
	if err != nil {
		return false, fmt.Errorf("unable to open file: %w", err)
	}
	if stat.Mode()&os.ModeCharDevice == 0 || stat.Size() > 0 {
		return true, nil
	}
	return false, nil
}

// run builds the engine, player, cache and driver, calls queue, and waits
// for every queued task before tearing everything down.
func run(ctx context.Context, withPlayer bool, queue func(*driver.Driver, config.Config) error) error {
	if ctx == nil {
		ctx = context.Background()
	}

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	voice, err := cfg.TTSVoice()
	if err != nil {
		return err
	}

	logger := log.Default()
	life := lifecycle.New(logger)
	life.Start()
	defer func() { _ = life.Shutdown() }()

	engine, err := engines.New(life.Context(), cfg.EngineConfig(), life, logger)
	if err != nil {
		return err
	}

	var player tts.Player
	if withPlayer {
		player, err = audio.New(cfg.PlayerConfig(), life, logger)
		if err != nil {
			_ = engine.Close()
			return err
		}
	}

	var c *cache.Cache
	if cfg.Cache.Enabled && !(withPlayer && noCache) {
		c, err = cache.New(cfg.CacheConfig(), logger)
		if err != nil {
			_ = engine.Close()
			return err
		}
		defer c.Close() //nolint:errcheck

		if cfg.Cache.Watch {
			stop := watchCache(life.Context(), c, logger)
			defer stop()
		}
	}

	var (
		mu       sync.Mutex
		failures []error
	)
	d, err := driver.New(driver.Options{
		Engine:          engine,
		Player:          player,
		Cache:           c,
		Life:            life,
		Logger:          logger,
		Voice:           voice,
		GenerateTimeout: cfg.Timeout,
		QueueSize:       cfg.Queue.Size,
		QueuePolicy:     cfg.QueuePolicy(),
		OnResult: func(r driver.Result) {
			if r.Err == nil {
				return
			}
			logger.Error("Task failed", "kind", r.Kind, "code", r.Code, "error", r.Err)
			mu.Lock()
			failures = append(failures, r.Err)
			mu.Unlock()
		},
	})
	if err != nil {
		_ = engine.Close()
		return err
	}
	defer d.Close() //nolint:errcheck

	if err := queue(d, cfg); err != nil {
		return err
	}
	if err := d.Wait(ctx); err != nil {
		if errors.Is(err, lifecycle.ErrAbort) {
			return nil
		}
		return err
	}

	mu.Lock()
	defer mu.Unlock()
	if len(failures) > 0 {
		return fmt.Errorf("%d of %d tasks failed: %w", len(failures), d.QueueStats().TotalDispatched, failures[0])
	}
	return nil
}

// watchCache follows entries other processes write into c until ctx is
// done or the returned stop function is called. Each change is logged with
// the engine directory it landed in.
func watchCache(ctx context.Context, c *cache.Cache, logger *log.Logger) (stop func()) {
	ctx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})

	var listen func(string)
	listen = func(subdir string) {
		if ctx.Err() != nil {
			return
		}
		logger.Debug("Cache changed", "engine", subdir)
		c.RegisterChangeListener(listen)
	}
	c.RegisterChangeListener(listen)

	go func() {
		defer close(done)
		if err := c.Watch(ctx); err != nil {
			logger.Warn("Cache watcher stopped", "error", err)
		}
	}()

	return func() {
		cancel()
		<-done
	}
}
