package queue

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/charmbracelet/log"
	"github.com/dgnsrekt/mediavoice/internal/lifecycle"
	"github.com/dgnsrekt/mediavoice/internal/phrase"
	"github.com/google/uuid"
)

var (
	// ErrQueueFull is returned when the queue is at capacity
	ErrQueueFull = errors.New("queue is full")

	// ErrQueueClosed is returned when operations are attempted on a closed queue
	ErrQueueClosed = errors.New("queue is closed")

	// ErrCanceled is returned by Dispatch.Check once the task is superseded
	ErrCanceled = errors.New("task canceled")
)

// Kind is the type of work a task carries.
type Kind int

const (
	// KindPlay voices a phrase, generating it first if needed.
	KindPlay Kind = iota

	// KindSeed fills the cache for a phrase without playing it.
	KindSeed

	// KindPause waits out a phrase's pauses without audio.
	KindPause
)

// String returns the string representation of the task kind
func (k Kind) String() string {
	switch k {
	case KindPlay:
		return "play"
	case KindSeed:
		return "seed"
	case KindPause:
		return "pause"
	default:
		return "unknown"
	}
}

// Policy selects what Add does when the queue is full.
type Policy int

const (
	// Block waits for space.
	Block Policy = iota

	// DropOldest discards the oldest queued task to make room.
	DropOldest
)

// ParsePolicy parses a policy name.
func ParsePolicy(s string) (Policy, error) {
	switch s {
	case "", "block":
		return Block, nil
	case "drop_oldest", "drop-oldest":
		return DropOldest, nil
	default:
		return Block, fmt.Errorf("unknown queue policy %q", s)
	}
}

// String returns the policy name.
func (p Policy) String() string {
	if p == DropOldest {
		return "drop_oldest"
	}
	return "block"
}

// Task is one unit of work for the consumer.
type Task struct {
	ID       uuid.UUID
	Kind     Kind
	Phrase   *phrase.Phrase
	Enqueued time.Time
}

// NewTask creates a task with a fresh ID.
func NewTask(kind Kind, p *phrase.Phrase) Task {
	return Task{
		ID:     uuid.New(),
		Kind:   kind,
		Phrase: p,
	}
}

// Dispatch is a task handed to the consumer together with its sequence
// number.
type Dispatch struct {
	Task
	Sequence int64

	q *Queue
}

// Canceled reports whether EmptyQueue was called after this task was
// dispatched.
func (d Dispatch) Canceled() bool {
	return d.q != nil && d.Sequence <= d.q.canceled.Load()
}

// Check is a checkpoint: it returns lifecycle.ErrAbort on shutdown,
// ErrCanceled once the task is superseded, and the phrase's expiration
// error if the phrase was expired.
func (d Dispatch) Check() error {
	if d.q != nil {
		if err := d.q.life.Check(); err != nil {
			return err
		}
	}
	if d.Canceled() {
		return ErrCanceled
	}
	if d.Phrase != nil {
		return d.Phrase.Check()
	}
	return nil
}

// Handler processes one dispatched task. Returning lifecycle.ErrAbort stops
// the consumer.
type Handler func(ctx context.Context, d Dispatch) error

// Stats tracks queue performance metrics
type Stats struct {
	TotalEnqueued   int64
	TotalDispatched int64
	TotalDropped    int64
	TotalCanceled   int64
	TotalFailed     int64
	CurrentSize     int
	PeakSize        int
	LastEnqueue     time.Time
	LastDispatch    time.Time
	AverageWaitTime time.Duration
}

// Options configures a Queue.
type Options struct {
	// Size bounds the number of queued tasks (default 64).
	Size int

	// Policy is the full-queue behavior.
	Policy Policy

	// Life carries the abort signal. May be nil.
	Life *lifecycle.Manager

	// Logger is the parent logger.
	Logger *log.Logger
}

// Queue is a bounded FIFO with a single consumer.
type Queue struct {
	maxSize int
	policy  Policy
	life    *lifecycle.Manager
	logger  *log.Logger

	mu       sync.Mutex
	notEmpty *sync.Cond
	notFull  *sync.Cond
	items    []Task
	closed   bool
	started  bool
	stats    Stats
	waitSum  time.Duration

	sequence atomic.Int64
	canceled atomic.Int64

	wg   sync.WaitGroup
	done chan struct{}
}

// New creates a queue. Call Start to begin consuming.
func New(opts Options) *Queue {
	if opts.Size <= 0 {
		opts.Size = 64
	}
	if opts.Logger == nil {
		opts.Logger = log.Default()
	}

	q := &Queue{
		maxSize: opts.Size,
		policy:  opts.Policy,
		life:    opts.Life,
		logger:  opts.Logger.WithPrefix("queue"),
		items:   make([]Task, 0, opts.Size),
		done:    make(chan struct{}),
	}
	q.notEmpty = sync.NewCond(&q.mu)
	q.notFull = sync.NewCond(&q.mu)

	if q.life != nil {
		go q.wakeOnAbort()
	}
	return q
}

// wakeOnAbort releases every waiter when the process aborts.
func (q *Queue) wakeOnAbort() {
	select {
	case <-q.life.Done():
		q.mu.Lock()
		q.notEmpty.Broadcast()
		q.notFull.Broadcast()
		q.mu.Unlock()
	case <-q.done:
	}
}

// Add queues a task. When the queue is full it blocks or drops the oldest
// task, depending on the policy.
func (q *Queue) Add(task Task) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return ErrQueueClosed
	}
	if err := q.life.Check(); err != nil {
		return err
	}

	if len(q.items) >= q.maxSize {
		switch q.policy {
		case DropOldest:
			dropped := q.items[0]
			q.items = q.items[1:]
			q.stats.TotalDropped++
			q.logger.Debug("Queue full, dropped oldest task", "task", dropped.ID, "kind", dropped.Kind)
		default:
			for len(q.items) >= q.maxSize && !q.closed && !q.life.Aborted() {
				q.notFull.Wait()
			}
			if q.closed {
				return ErrQueueClosed
			}
			if err := q.life.Check(); err != nil {
				return err
			}
		}
	}

	if task.ID == uuid.Nil {
		task.ID = uuid.New()
	}
	task.Enqueued = time.Now()
	q.items = append(q.items, task)

	q.stats.TotalEnqueued++
	q.stats.LastEnqueue = task.Enqueued
	if len(q.items) > q.stats.PeakSize {
		q.stats.PeakSize = len(q.items)
	}

	q.notEmpty.Signal()
	return nil
}

// EmptyQueue drops every queued task and cancels every task dispatched so
// far. It returns the number of tasks dropped.
func (q *Queue) EmptyQueue() int {
	q.mu.Lock()
	n := len(q.items)
	q.items = q.items[:0]
	q.stats.TotalCanceled += int64(n)

	seq := q.sequence.Load()
	for {
		cur := q.canceled.Load()
		if seq <= cur || q.canceled.CompareAndSwap(cur, seq) {
			break
		}
	}

	q.notFull.Broadcast()
	q.mu.Unlock()

	if n > 0 {
		q.logger.Debug("Emptied queue", "dropped", n, "canceled_through", seq)
	}
	return n
}

// Sequence returns the sequence number of the last dispatched task.
func (q *Queue) Sequence() int64 {
	return q.sequence.Load()
}

// CanceledSequence returns the canceled-sequence watermark.
func (q *Queue) CanceledSequence() int64 {
	return q.canceled.Load()
}

// Size returns the number of queued tasks.
func (q *Queue) Size() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

// Stats returns current queue statistics.
func (q *Queue) Stats() Stats {
	q.mu.Lock()
	defer q.mu.Unlock()

	stats := q.stats
	stats.CurrentSize = len(q.items)
	if stats.TotalDispatched > 0 {
		stats.AverageWaitTime = q.waitSum / time.Duration(stats.TotalDispatched)
	}
	return stats
}

// Start launches the consumer goroutine.
func (q *Queue) Start(handler Handler) {
	q.mu.Lock()
	if q.started || q.closed {
		q.mu.Unlock()
		return
	}
	q.started = true
	q.mu.Unlock()

	q.wg.Add(1)
	go q.consume(handler)
}

func (q *Queue) consume(handler Handler) {
	defer q.wg.Done()

	ctx := q.life.Context()
	for {
		d, ok := q.next()
		if !ok {
			return
		}

		err := handler(ctx, d)
		switch {
		case err == nil:
		case errors.Is(err, lifecycle.ErrAbort):
			q.logger.Debug("Consumer stopping on abort")
			return
		case errors.Is(err, ErrCanceled):
			q.logger.Debug("Task superseded", "task", d.ID, "seq", d.Sequence)
		default:
			q.mu.Lock()
			q.stats.TotalFailed++
			q.mu.Unlock()
			q.logger.Warn("Task failed", "task", d.ID, "kind", d.Kind, "error", err)
		}
	}
}

// next blocks for the next task and assigns its sequence number. It
// returns false once the queue is closed and drained, or on abort.
func (q *Queue) next() (Dispatch, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	for len(q.items) == 0 && !q.closed && !q.life.Aborted() {
		q.notEmpty.Wait()
	}
	if q.life.Aborted() || len(q.items) == 0 {
		return Dispatch{}, false
	}

	task := q.items[0]
	q.items[0] = Task{}
	q.items = q.items[1:]

	now := time.Now()
	q.stats.TotalDispatched++
	q.stats.LastDispatch = now
	q.waitSum += now.Sub(task.Enqueued)
	q.notFull.Signal()

	return Dispatch{
		Task:     task,
		Sequence: q.sequence.Add(1),
		q:        q,
	}, true
}

// Close stops accepting tasks and waits for the consumer to finish what is
// already queued. Use EmptyQueue first to discard pending work.
func (q *Queue) Close() error {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return nil
	}
	q.closed = true
	close(q.done)
	q.notEmpty.Broadcast()
	q.notFull.Broadcast()
	q.mu.Unlock()

	q.wg.Wait()
	return nil
}

// Name implements lifecycle.Component.
func (q *Queue) Name() string {
	return "queue"
}

// Shutdown implements lifecycle.Component.
func (q *Queue) Shutdown(ctx context.Context) error {
	q.EmptyQueue()

	done := make(chan struct{})
	go func() {
		_ = q.Close()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// ForceStop implements lifecycle.Component.
func (q *Queue) ForceStop() error {
	q.EmptyQueue()
	return nil
}
