package speech

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/dgnsrekt/mediavoice/internal/cache"
	"github.com/dgnsrekt/mediavoice/internal/lifecycle"
	"github.com/dgnsrekt/mediavoice/internal/phrase"
	"github.com/dgnsrekt/mediavoice/internal/tts"
)

// Result is the outcome of GenerateSpeech as known when the caller stopped
// waiting.
type Result struct {
	Code     tts.ReturnCode
	Phrase   *phrase.Phrase
	Finished bool
}

// Options configures a Coordinator.
type Options struct {
	// Engine synthesizes audio.
	Engine tts.Synthesizer

	// Cache stores synthesized audio.
	Cache *cache.Cache

	// Life carries the process-wide abort signal. May be nil.
	Life *lifecycle.Manager

	// Logger is the parent logger.
	Logger *log.Logger

	// FileTypes are the accepted cache suffixes in preference order. The
	// engine's own type is appended when missing.
	FileTypes []string

	// IsPlaying reports that playback has started elsewhere, which ends
	// the foreground wait early. May be nil.
	IsPlaying func() bool

	// PollInterval is the foreground wait poll period (default 100ms).
	PollInterval time.Duration
}

// Coordinator produces cached audio for phrases.
type Coordinator struct {
	engine    tts.Synthesizer
	cache     *cache.Cache
	life      *lifecycle.Manager
	logger    *log.Logger
	fileTypes []string
	isPlaying func() bool
	poll      time.Duration

	wg sync.WaitGroup
}

// job tracks one background generation.
type job struct {
	done chan struct{}
	code tts.ReturnCode
}

// New creates a coordinator.
func New(opts Options) (*Coordinator, error) {
	if opts.Engine == nil {
		return nil, errors.New("speech engine not set")
	}
	if opts.Cache == nil {
		return nil, errors.New("speech cache not set")
	}
	if opts.Logger == nil {
		opts.Logger = log.Default()
	}
	if opts.PollInterval <= 0 {
		opts.PollInterval = 100 * time.Millisecond
	}

	fileTypes := append([]string(nil), opts.FileTypes...)
	engineType := opts.Engine.FileType()
	found := false
	for _, ft := range fileTypes {
		if ft == engineType {
			found = true
			break
		}
	}
	if !found {
		fileTypes = append(fileTypes, engineType)
	}

	return &Coordinator{
		engine:    opts.Engine,
		cache:     opts.Cache,
		life:      opts.Life,
		logger:    opts.Logger.WithPrefix("speech"),
		fileTypes: fileTypes,
		isPlaying: opts.IsPlaying,
		poll:      opts.PollInterval,
	}, nil
}

// Key returns the cache key for p under the coordinator's engine.
func (c *Coordinator) Key(p *phrase.Phrase) cache.Key {
	v := p.Voice()
	return cache.Key{
		Engine:    c.engine.Name(),
		Language:  v.Language,
		Territory: v.Territory,
		Text:      p.Text(),
	}
}

// Locate consults the cache and records the result on p. It reports
// whether a valid entry exists.
func (c *Coordinator) Locate(p *phrase.Phrase) bool {
	info := c.cache.GetBestPath(c.Key(p), c.fileTypes)
	p.SetCachePath(info.Path, info.FileType, info.Exists, info.TextExists)
	return info.Exists
}

// GenerateSpeech makes sure p's audio is in the cache, waiting at most
// timeout. The only error returned is lifecycle.ErrAbort; every other
// outcome is reported through Result.Code.
func (c *Coordinator) GenerateSpeech(ctx context.Context, p *phrase.Phrase, timeout time.Duration) (Result, error) {
	res := Result{Code: tts.OK, Phrase: p}

	if err := c.life.Check(); err != nil {
		res.Code = tts.Abort
		return res, err
	}
	if p.IsEmpty() {
		res.Finished = true
		return res, nil
	}
	if p.Exists() || c.Locate(p) {
		res.Finished = true
		return res, nil
	}

	bg := p.Clone(false)
	chunks := SplitText(bg.Text(), c.engine.MaxPhraseLength())
	if len(chunks) == 0 {
		res.Code = tts.NoPhrases
		res.Finished = true
		return res, nil
	}

	dest := c.cache.PathFor(c.Key(p), c.engine.FileType())
	p.SetCachePath(dest, c.engine.FileType(), false, p.TextExists())
	p.SetFileState(phrase.FileCreationIncomplete)
	p.SetDownloadPending(true)

	j := &job{done: make(chan struct{})}
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		defer close(j.done)
		j.code = c.generate(bg, chunks, dest)
	}()

	return c.wait(ctx, p, j, timeout)
}

// wait polls until the job finishes, the timeout passes, playback starts
// elsewhere, or the foreground phrase is superseded.
func (c *Coordinator) wait(ctx context.Context, p *phrase.Phrase, j *job, timeout time.Duration) (Result, error) {
	res := Result{Code: tts.OK, Phrase: p}

	ticker := time.NewTicker(c.poll)
	defer ticker.Stop()
	deadline := time.NewTimer(timeout)
	defer deadline.Stop()

	for {
		select {
		case <-j.done:
			res.Code = j.code
			res.Finished = true
			if j.code == tts.Abort {
				return res, lifecycle.ErrAbort
			}
			return res, nil

		case <-c.life.Done():
			res.Code = tts.Abort
			return res, lifecycle.ErrAbort

		case <-ctx.Done():
			res.Code = tts.Expired
			return res, nil

		case <-deadline.C:
			c.logger.Debug("Generation still running after timeout", "phrase", p, "timeout", timeout)
			return res, nil

		case <-ticker.C:
			if p.FileState() == phrase.FileOK {
				res.Finished = true
				return res, nil
			}
			if p.IsExpired() {
				res.Code = tts.Expired
				return res, nil
			}
			if c.isPlaying != nil && c.isPlaying() {
				return res, nil
			}
		}
	}
}

// generate synthesizes every chunk of p into one temp file and commits it.
// p must have expiration checks disabled.
func (c *Coordinator) generate(p *phrase.Phrase, chunks []string, dest string) (code tts.ReturnCode) {
	logger := c.logger.With("phrase", p, "path", dest)
	state := phrase.FileBad
	defer func() {
		p.SetFileState(state)
		p.SetDownloadPending(false)
		if code != tts.OK {
			logger.Debug("Generation failed", "code", code, "events", p.Events())
		}
	}()

	if c.cache.Exists(dest) {
		state = phrase.FileOK
		return tts.OK
	}

	if _, err := c.cache.CreateTmpSoundFile(dest, true); err != nil {
		p.AddEvent("create directory: %v", err)
		return tts.IOError
	}

	unlock, err := c.cache.Lock(c.life.Context(), dest)
	if err != nil {
		return tts.Abort
	}
	defer unlock()

	if c.cache.Exists(dest) {
		state = phrase.FileOK
		return tts.OK
	}

	tmp, err := c.cache.CreateTmpSoundFile(dest, false)
	if err != nil {
		p.AddEvent("create temp file: %v", err)
		return tts.IOError
	}

	ctx := c.life.Context()
	code = tts.OK
	for i, chunk := range chunks {
		if c.life.Aborted() {
			code = tts.Abort
			break
		}

		data, err := c.engine.Synthesize(ctx, chunk, p.Voice())
		if err != nil {
			chunkCode := classify(err, c.life)
			p.AddEvent("chunk %d/%d: %s: %v", i+1, len(chunks), chunkCode, err)
			if code == tts.OK {
				code = chunkCode
			}
			if chunkCode == tts.Abort {
				break
			}
			continue
		}

		if _, err := tmp.Write(data); err != nil {
			p.AddEvent("write chunk %d/%d: %v", i+1, len(chunks), err)
			code = tts.IOError
			break
		}
	}

	err = c.cache.Commit(tmp, dest, code == tts.OK)
	switch {
	case err == nil:
		state = phrase.FileOK
		if c.cache.SavesText() {
			if err := c.cache.CommitText(dest, p.Text()); err != nil {
				logger.Warn("Failed to save cache text", "error", err)
			}
		}
		logger.Debug("Generated speech", "chunks", len(chunks))
	case code != tts.OK:
	case errors.Is(err, cache.ErrTooSmall):
		p.AddEvent("output too small")
		code = tts.Download
	default:
		p.AddEvent("commit: %v", err)
		code = tts.IOError
	}
	return code
}

// classify maps a synthesis error onto the return code taxonomy.
func classify(err error, life *lifecycle.Manager) tts.ReturnCode {
	switch {
	case errors.Is(err, lifecycle.ErrAbort), life.Aborted():
		return tts.Abort
	case errors.Is(err, tts.ErrExpired):
		return tts.Expired
	case tts.IsDownloadError(err):
		return tts.Download
	default:
		return tts.CallFailed
	}
}

// Wait blocks until every background job has finished or ctx is done.
func (c *Coordinator) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		c.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("waiting for speech generation: %w", ctx.Err())
	}
}

// Name implements lifecycle.Component.
func (c *Coordinator) Name() string {
	return "speech"
}

// Shutdown implements lifecycle.Component.
func (c *Coordinator) Shutdown(ctx context.Context) error {
	return c.Wait(ctx)
}

// ForceStop implements lifecycle.Component. Background jobs observe the
// abort signal on their own.
func (c *Coordinator) ForceStop() error {
	return nil
}
