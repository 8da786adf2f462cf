package process

import (
	"bufio"
	"errors"
	"io"
	"os"
	"os/exec"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
)

// lineBuffer keeps the last max lines written to it.
type lineBuffer struct {
	mu    sync.Mutex
	max   int
	lines []string
}

func newLineBuffer(max int) *lineBuffer {
	return &lineBuffer{max: max}
}

func (b *lineBuffer) add(line string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if len(b.lines) == b.max {
		copy(b.lines, b.lines[1:])
		b.lines = b.lines[:b.max-1]
	}
	b.lines = append(b.lines, line)
}

// Lines returns a copy of the buffered lines.
func (b *lineBuffer) Lines() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]string(nil), b.lines...)
}

// captureSet owns the pipes and reader goroutines for one child.
type captureSet struct {
	readers []*os.File
	writers []*os.File
	sinks   []*lineBuffer
	group   errgroup.Group
}

// setupOutput routes stdout and stderr per the runner options.
func (r *Runner) setupOutput(cmd *exec.Cmd) (*captureSet, error) {
	cs := &captureSet{}

	if r.opts.Stdout != nil {
		cmd.Stdout = r.opts.Stdout
	}
	if !r.opts.Capture {
		return cs, nil
	}

	r.mu.Lock()
	r.stdout = newLineBuffer(r.opts.MaxCaptureLines)
	r.stderr = newLineBuffer(r.opts.MaxCaptureLines)
	r.mu.Unlock()

	if cmd.Stdout == nil {
		if err := cs.pipe(func(w *os.File) { cmd.Stdout = w }, r.stdout); err != nil {
			return nil, err
		}
	}
	if err := cs.pipe(func(w *os.File) { cmd.Stderr = w }, r.stderr); err != nil {
		cs.abandon()
		return nil, err
	}
	return cs, nil
}

func (cs *captureSet) pipe(attach func(*os.File), sink *lineBuffer) error {
	pr, pw, err := os.Pipe()
	if err != nil {
		return err
	}
	attach(pw)
	cs.readers = append(cs.readers, pr)
	cs.writers = append(cs.writers, pw)
	cs.sinks = append(cs.sinks, sink)
	return nil
}

// start closes the parent's write ends and launches one reader per pipe.
func (cs *captureSet) start() {
	for _, w := range cs.writers {
		_ = w.Close()
	}
	for i, rd := range cs.readers {
		rd, sink := rd, cs.sinks[i]
		cs.group.Go(func() error {
			return drain(rd, sink)
		})
	}
}

// join waits for the readers. If they do not finish within timeout the
// read ends are closed, which unblocks them.
func (cs *captureSet) join(timeout time.Duration) {
	if len(cs.readers) == 0 {
		return
	}
	finished := make(chan struct{})
	go func() {
		_ = cs.group.Wait()
		close(finished)
	}()

	select {
	case <-finished:
	case <-time.After(timeout):
		for _, rd := range cs.readers {
			_ = rd.Close()
		}
		<-finished
	}
	for _, rd := range cs.readers {
		_ = rd.Close()
	}
}

// abandon releases pipes when the child never started.
func (cs *captureSet) abandon() {
	for _, f := range append(cs.readers, cs.writers...) {
		_ = f.Close()
	}
}

// drain copies lines into sink until EOF. A pipe closed under the reader
// is a normal end of output.
func drain(rd io.Reader, sink *lineBuffer) error {
	scanner := bufio.NewScanner(rd)
	scanner.Buffer(make([]byte, 0, 4096), 1024*1024)
	for scanner.Scan() {
		sink.add(scanner.Text())
	}
	if err := scanner.Err(); err != nil && !errors.Is(err, os.ErrClosed) {
		return err
	}
	return nil
}
