package driver

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/dgnsrekt/mediavoice/internal/lifecycle"
	"github.com/dgnsrekt/mediavoice/internal/phrase"
	"github.com/dgnsrekt/mediavoice/internal/queue"
	"github.com/dgnsrekt/mediavoice/internal/speech"
	"github.com/dgnsrekt/mediavoice/internal/tts"
)

// owner expires a playback when its dispatch is canceled or its phrase
// is superseded.
type owner struct {
	d queue.Dispatch
}

func (o owner) IsExpired() bool {
	return o.d.Check() != nil
}

// handle is the dispatch worker. Every step starts with a checkpoint so a
// superseded task stops as soon as possible.
func (d *Driver) handle(ctx context.Context, disp queue.Dispatch) error {
	defer d.handled.Add(1)

	res := Result{Kind: disp.Kind, Phrase: disp.Phrase, Code: tts.OK}
	err := d.dispatch(ctx, disp, &res)

	switch {
	case err == nil:
	case errors.Is(err, lifecycle.ErrAbort):
		res.Code = tts.Abort
	case errors.Is(err, queue.ErrCanceled), errors.Is(err, tts.ErrExpired):
		res.Code = tts.Expired
		d.logger.Debug("Phrase superseded", "phrase", disp.Phrase, "seq", disp.Sequence)
	default:
		if res.Code == tts.OK {
			res.Code = tts.CallFailed
		}
	}
	res.Err = err

	if d.onResult != nil {
		d.onResult(res)
	}

	if res.Code == tts.Expired {
		return nil
	}
	return err
}

func (d *Driver) dispatch(ctx context.Context, disp queue.Dispatch, res *Result) error {
	if err := disp.Check(); err != nil {
		return err
	}

	switch disp.Kind {
	case queue.KindPause:
		pre, _ := disp.Phrase.Pauses()
		return d.life.Sleep(pre)
	case queue.KindSeed:
		return d.seed(ctx, disp, res)
	default:
		return d.play(ctx, disp, res)
	}
}

func (d *Driver) seed(ctx context.Context, disp queue.Dispatch, res *Result) error {
	out, err := d.coord.GenerateSpeech(ctx, disp.Phrase, d.timeout)
	res.Code = out.Code
	if err != nil {
		return err
	}
	if out.Code != tts.OK {
		return fmt.Errorf("seed %s: %s", disp.Phrase, out.Code)
	}
	return nil
}

func (d *Driver) play(ctx context.Context, disp queue.Dispatch, res *Result) error {
	p := disp.Phrase
	pre, post := p.Pauses()

	if err := d.life.Sleep(pre); err != nil {
		return err
	}
	if err := disp.Check(); err != nil {
		return err
	}

	var err error
	if d.coord == nil {
		err = d.playUncached(ctx, disp)
	} else {
		err = d.playCached(ctx, disp, res)
	}
	if err != nil {
		return err
	}
	res.Played = !p.IsEmpty()

	if err := disp.Check(); err != nil {
		return err
	}
	return d.life.Sleep(post)
}

func (d *Driver) playCached(ctx context.Context, disp queue.Dispatch, res *Result) error {
	p := disp.Phrase

	out, err := d.coord.GenerateSpeech(ctx, p, d.timeout)
	res.Code = out.Code
	if err != nil {
		return err
	}
	if out.Code == tts.Expired {
		return tts.ErrExpired
	}
	if out.Code != tts.OK {
		return fmt.Errorf("generate %s: %s", p, out.Code)
	}
	if p.IsEmpty() {
		return nil
	}
	if !out.Finished {
		if err := d.awaitFile(disp); err != nil {
			return err
		}
	}
	if err := disp.Check(); err != nil {
		return err
	}

	if d.player == nil {
		return nil
	}
	path, _ := p.CachePath()
	return d.player.Play(ctx, path, owner{disp})
}

// awaitFile waits for a background generation that outlived the
// foreground timeout.
func (d *Driver) awaitFile(disp queue.Dispatch) error {
	p := disp.Phrase
	ticker := time.NewTicker(50 * time.Millisecond)
	defer ticker.Stop()

	for {
		switch p.FileState() {
		case phrase.FileOK:
			return nil
		case phrase.FileBad:
			if !p.DownloadPending() {
				return fmt.Errorf("generate %s: %v", p, p.Events())
			}
		}
		if err := disp.Check(); err != nil {
			return err
		}
		select {
		case <-d.life.Done():
			return lifecycle.ErrAbort
		case <-ticker.C:
		}
	}
}

// playUncached voices p without the cache: through the engine itself when
// there is no player, else by piping or writing each chunk to a temp file.
func (d *Driver) playUncached(ctx context.Context, disp queue.Dispatch) error {
	p := disp.Phrase
	if p.IsEmpty() {
		return nil
	}

	if d.player == nil {
		speaker, ok := d.engine.(tts.Speaker)
		if !ok {
			return ErrNoOutput
		}
		return speaker.Speak(ctx, p.Text(), p.Voice(), owner{disp})
	}

	for _, chunk := range speech.SplitText(p.Text(), d.engine.MaxPhraseLength()) {
		if err := disp.Check(); err != nil {
			return err
		}
		data, err := d.engine.Synthesize(ctx, chunk, p.Voice())
		if err != nil {
			return err
		}
		if err := disp.Check(); err != nil {
			return err
		}
		if err := d.playBytes(ctx, data, disp); err != nil {
			return err
		}
	}
	return nil
}

func (d *Driver) playBytes(ctx context.Context, data []byte, disp queue.Dispatch) error {
	ft := d.engine.FileType()
	if piper, ok := d.player.(tts.Piper); ok && d.player.Capabilities().CanPipe {
		return piper.Pipe(ctx, bytes.NewReader(data), ft, owner{disp})
	}

	f, err := os.CreateTemp("", "mediavoice-*."+ft)
	if err != nil {
		return fmt.Errorf("failed to create temp audio file: %w", err)
	}
	defer os.Remove(f.Name())

	if _, err := f.Write(data); err != nil {
		_ = f.Close()
		return fmt.Errorf("failed to write temp audio file: %w", err)
	}
	if err := f.Close(); err != nil {
		return err
	}
	return d.player.Play(ctx, f.Name(), owner{disp})
}
