package driver

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/charmbracelet/log"
	"github.com/dgnsrekt/mediavoice/internal/cache"
	"github.com/dgnsrekt/mediavoice/internal/lifecycle"
	"github.com/dgnsrekt/mediavoice/internal/phrase"
	"github.com/dgnsrekt/mediavoice/internal/queue"
	"github.com/dgnsrekt/mediavoice/internal/speech"
	"github.com/dgnsrekt/mediavoice/internal/tts"
)

var (
	// ErrCacheDisabled is returned by Seed when no cache is configured.
	ErrCacheDisabled = errors.New("cache is disabled")

	// ErrNoOutput indicates there is neither a player nor an engine that
	// can speak on its own.
	ErrNoOutput = errors.New("no audio output available")

	// ErrClosed is returned after Close.
	ErrClosed = errors.New("driver closed")
)

// Options configures a Driver.
type Options struct {
	// Engine synthesizes audio. Required.
	Engine tts.Synthesizer

	// Player voices audio. May be nil when the engine is a tts.Speaker or
	// the driver only seeds the cache.
	Player tts.Player

	// Cache stores synthesized audio. Nil disables caching.
	Cache *cache.Cache

	// Life carries the abort signal. May be nil.
	Life *lifecycle.Manager

	// Logger is the parent logger.
	Logger *log.Logger

	// Voice is the default voice for new phrases.
	Voice tts.Voice

	// GenerateTimeout bounds the foreground wait for synthesis (default 10s).
	GenerateTimeout time.Duration

	// QueueSize and QueuePolicy configure the dispatch queue.
	QueueSize   int
	QueuePolicy queue.Policy

	// OnResult observes the outcome of every dispatched task. May be nil.
	OnResult func(Result)
}

// Result reports what happened to one dispatched task.
type Result struct {
	Kind   queue.Kind
	Phrase *phrase.Phrase
	Code   tts.ReturnCode
	Played bool
	Err    error
}

// Driver owns the phrase tracker, the dispatch queue and the coordinator.
type Driver struct {
	engine  tts.Synthesizer
	player  tts.Player
	cache   *cache.Cache
	coord   *speech.Coordinator
	queue   *queue.Queue
	tracker *phrase.Tracker
	life    *lifecycle.Manager
	logger  *log.Logger

	voice    tts.Voice
	timeout  time.Duration
	onResult func(Result)

	handled atomic.Int64

	closeOnce sync.Once
	closed    bool
	mu        sync.Mutex
}

// New creates a driver and starts its dispatch worker.
func New(opts Options) (*Driver, error) {
	if opts.Engine == nil {
		return nil, errors.New("driver engine not set")
	}
	if opts.Logger == nil {
		opts.Logger = log.Default()
	}
	if opts.GenerateTimeout <= 0 {
		opts.GenerateTimeout = 10 * time.Second
	}

	d := &Driver{
		engine:   opts.Engine,
		player:   opts.Player,
		cache:    opts.Cache,
		tracker:  phrase.NewTracker(),
		life:     opts.Life,
		logger:   opts.Logger.WithPrefix("driver"),
		voice:    opts.Voice,
		timeout:  opts.GenerateTimeout,
		onResult: opts.OnResult,
	}

	if d.player == nil {
		if _, ok := d.engine.(tts.Speaker); !ok && d.cache == nil {
			return nil, ErrNoOutput
		}
	} else if !slices.Contains(d.player.FileTypes(), d.engine.FileType()) {
		d.logger.Warn("Player may not accept engine output",
			"engine", d.engine.Name(),
			"file_type", d.engine.FileType(),
			"player_types", d.player.FileTypes())
	}

	if d.cache != nil {
		var isPlaying func() bool
		var fileTypes []string
		if d.player != nil {
			isPlaying = d.player.IsPlaying
			fileTypes = d.player.FileTypes()
		}
		coord, err := speech.New(speech.Options{
			Engine:    d.engine,
			Cache:     d.cache,
			Life:      d.life,
			Logger:    opts.Logger,
			FileTypes: fileTypes,
			IsPlaying: isPlaying,
		})
		if err != nil {
			return nil, err
		}
		d.coord = coord
	}

	d.queue = queue.New(queue.Options{
		Size:   opts.QueueSize,
		Policy: opts.QueuePolicy,
		Life:   d.life,
		Logger: opts.Logger,
	})
	d.queue.Start(d.handle)

	if d.life != nil {
		if d.coord != nil {
			d.life.Register(d.coord)
		}
		d.life.Register(d.queue)
	}
	return d, nil
}

// Say queues text for playback. It returns the phrase so callers can
// follow its cache state.
func (d *Driver) Say(text string, opts ...phrase.Option) (*phrase.Phrase, error) {
	ps, err := d.SayList([]string{text}, opts...)
	if err != nil {
		return nil, err
	}
	return ps[0], nil
}

// SayList queues texts in order. With phrase.WithInterrupt(true) the whole
// list supersedes everything queued before it.
func (d *Driver) SayList(texts []string, opts ...phrase.Option) ([]*phrase.Phrase, error) {
	if err := d.check(); err != nil {
		return nil, err
	}
	if len(texts) == 0 {
		return nil, nil
	}

	list := phrase.NewList(d.tracker)
	opts = append([]phrase.Option{phrase.WithVoice(d.voice)}, opts...)
	for _, text := range texts {
		list.Add(text, opts...)
	}
	ps := list.Phrases()

	if ps[0].Interrupt() {
		d.interrupt(ps[0].Serial())
	}

	for _, p := range ps {
		if err := d.queue.Add(queue.NewTask(queue.KindPlay, p)); err != nil {
			return ps, err
		}
	}
	return ps, nil
}

// Pause queues silence of length dur.
func (d *Driver) Pause(dur time.Duration) error {
	if err := d.check(); err != nil {
		return err
	}
	p := phrase.New(d.tracker, "", phrase.WithPauses(dur, 0))
	return d.queue.Add(queue.NewTask(queue.KindPause, p))
}

// Seed queues text for synthesis into the cache without playing it. Seeded
// phrases are never expired by later interrupts.
func (d *Driver) Seed(text string, opts ...phrase.Option) (*phrase.Phrase, error) {
	if err := d.check(); err != nil {
		return nil, err
	}
	if d.coord == nil {
		return nil, ErrCacheDisabled
	}
	opts = append([]phrase.Option{phrase.WithVoice(d.voice)}, opts...)
	p := phrase.New(d.tracker, text, opts...).Clone(false)
	if err := d.queue.Add(queue.NewTask(queue.KindSeed, p)); err != nil {
		return nil, err
	}
	return p, nil
}

// Stop expires every queued phrase and stops the current playback.
func (d *Driver) Stop() error {
	d.interrupt(d.tracker.Last() + 1)
	return nil
}

// interrupt expires every serial below serial, drops the queue, and halts
// the player.
func (d *Driver) interrupt(serial int64) {
	d.tracker.ExpireBefore(serial)
	dropped := d.queue.EmptyQueue()
	if d.player != nil {
		if err := d.player.Stop(true); err != nil {
			d.logger.Warn("Failed to stop player", "error", err)
		}
	}
	d.logger.Debug("Interrupted", "watermark", serial, "dropped", dropped)
}

// Wait blocks until every queued task has been handled, then waits for
// background generation to finish.
func (d *Driver) Wait(ctx context.Context) error {
	ticker := time.NewTicker(20 * time.Millisecond)
	defer ticker.Stop()

	for {
		st := d.queue.Stats()
		if st.CurrentSize == 0 && d.handled.Load() == st.TotalDispatched {
			break
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-d.life.Done():
			return lifecycle.ErrAbort
		case <-ticker.C:
		}
	}

	if d.coord != nil {
		return d.coord.Wait(ctx)
	}
	return nil
}

// Close drains the queue and releases the player and the engine.
func (d *Driver) Close() error {
	var errs []error
	d.closeOnce.Do(func() {
		d.mu.Lock()
		d.closed = true
		d.mu.Unlock()

		if err := d.queue.Close(); err != nil {
			errs = append(errs, err)
		}
		if d.coord != nil {
			ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			if err := d.coord.Wait(ctx); err != nil {
				errs = append(errs, err)
			}
			cancel()
		}
		if d.player != nil {
			if err := d.player.Close(); err != nil {
				errs = append(errs, fmt.Errorf("close player: %w", err))
			}
		}
		if err := d.engine.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close engine: %w", err))
		}
	})
	return errors.Join(errs...)
}

// QueueStats returns dispatch queue statistics.
func (d *Driver) QueueStats() queue.Stats {
	return d.queue.Stats()
}

// Tracker returns the phrase tracker shared by every queued phrase.
func (d *Driver) Tracker() *phrase.Tracker {
	return d.tracker
}

func (d *Driver) check() error {
	if err := d.life.Check(); err != nil {
		return err
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return ErrClosed
	}
	return nil
}
