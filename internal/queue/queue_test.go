package queue

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/dgnsrekt/mediavoice/internal/lifecycle"
	"github.com/dgnsrekt/mediavoice/internal/phrase"
)

func TestQueue_FIFOAndSequence(t *testing.T) {
	q := New(Options{Size: 10})
	tracker := phrase.NewTracker()

	var (
		mu   sync.Mutex
		seen []string
		seqs []int64
	)
	for _, text := range []string{"one", "two", "three"} {
		if err := q.Add(NewTask(KindPlay, phrase.New(tracker, text))); err != nil {
			t.Fatalf("Add() error = %v", err)
		}
	}
	if q.Sequence() != 0 {
		t.Errorf("Sequence() = %d before dispatch, want 0", q.Sequence())
	}

	q.Start(func(ctx context.Context, d Dispatch) error {
		mu.Lock()
		seen = append(seen, d.Phrase.Text())
		seqs = append(seqs, d.Sequence)
		mu.Unlock()
		return nil
	})
	if err := q.Close(); err != nil {
		t.Fatal(err)
	}

	if len(seen) != 3 || seen[0] != "one" || seen[1] != "two" || seen[2] != "three" {
		t.Errorf("dispatch order = %v, want [one two three]", seen)
	}
	for i, s := range seqs {
		if s != int64(i+1) {
			t.Errorf("sequence[%d] = %d, want %d", i, s, i+1)
		}
	}
	if st := q.Stats(); st.TotalEnqueued != 3 || st.TotalDispatched != 3 {
		t.Errorf("Stats() = %+v", st)
	}
}

func TestQueue_EmptyQueueCancelsInFlight(t *testing.T) {
	q := New(Options{Size: 10})
	tracker := phrase.NewTracker()

	started := make(chan struct{})
	release := make(chan struct{})
	var (
		mu       sync.Mutex
		handled  []string
		canceled bool
	)

	q.Start(func(ctx context.Context, d Dispatch) error {
		mu.Lock()
		handled = append(handled, d.Phrase.Text())
		mu.Unlock()
		if d.Phrase.Text() == "p1" {
			close(started)
			<-release
			mu.Lock()
			canceled = d.Canceled()
			mu.Unlock()
			return d.Check()
		}
		return nil
	})

	for _, text := range []string{"p1", "p2", "p3"} {
		if err := q.Add(NewTask(KindPlay, phrase.New(tracker, text))); err != nil {
			t.Fatal(err)
		}
	}

	<-started
	if n := q.EmptyQueue(); n != 2 {
		t.Errorf("EmptyQueue() dropped %d, want 2", n)
	}
	if q.CanceledSequence() != 1 {
		t.Errorf("CanceledSequence() = %d, want 1", q.CanceledSequence())
	}
	close(release)

	if err := q.Add(NewTask(KindPlay, phrase.New(tracker, "p4"))); err != nil {
		t.Fatal(err)
	}
	_ = q.Close()

	mu.Lock()
	defer mu.Unlock()
	if !canceled {
		t.Error("in-flight task did not observe cancellation")
	}
	if len(handled) != 2 || handled[0] != "p1" || handled[1] != "p4" {
		t.Errorf("handled = %v, want [p1 p4]", handled)
	}
}

func TestQueue_CanceledWatermarkMonotonic(t *testing.T) {
	q := New(Options{Size: 4})
	q.sequence.Store(5)
	q.EmptyQueue()
	q.sequence.Store(3)
	q.EmptyQueue()
	if got := q.CanceledSequence(); got != 5 {
		t.Errorf("CanceledSequence() = %d, want 5", got)
	}
}

func TestQueue_DropOldest(t *testing.T) {
	q := New(Options{Size: 2, Policy: DropOldest})
	tracker := phrase.NewTracker()

	for _, text := range []string{"a", "b", "c"} {
		if err := q.Add(NewTask(KindSeed, phrase.New(tracker, text))); err != nil {
			t.Fatalf("Add(%s) error = %v", text, err)
		}
	}
	if q.Size() != 2 {
		t.Errorf("Size() = %d, want 2", q.Size())
	}
	if st := q.Stats(); st.TotalDropped != 1 {
		t.Errorf("TotalDropped = %d, want 1", st.TotalDropped)
	}

	var got []string
	q.Start(func(ctx context.Context, d Dispatch) error {
		got = append(got, d.Phrase.Text())
		return nil
	})
	_ = q.Close()
	if len(got) != 2 || got[0] != "b" || got[1] != "c" {
		t.Errorf("dispatched = %v, want [b c]", got)
	}
}

func TestQueue_BlockUntilSpace(t *testing.T) {
	q := New(Options{Size: 1})
	tracker := phrase.NewTracker()

	if err := q.Add(NewTask(KindPlay, phrase.New(tracker, "first"))); err != nil {
		t.Fatal(err)
	}

	added := make(chan error, 1)
	go func() {
		added <- q.Add(NewTask(KindPlay, phrase.New(tracker, "second")))
	}()

	select {
	case err := <-added:
		t.Fatalf("Add() returned %v on a full blocking queue", err)
	case <-time.After(50 * time.Millisecond):
	}

	q.EmptyQueue()
	select {
	case err := <-added:
		if err != nil {
			t.Errorf("Add() error = %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("Add() still blocked after space was freed")
	}
	_ = q.Close()
}

func TestQueue_ClosedRejectsAdd(t *testing.T) {
	q := New(Options{Size: 1})
	_ = q.Close()
	if err := q.Add(NewTask(KindPlay, nil)); !errors.Is(err, ErrQueueClosed) {
		t.Errorf("Add() error = %v, want ErrQueueClosed", err)
	}
}

func TestQueue_AbortStopsConsumer(t *testing.T) {
	life := lifecycle.New(nil)
	q := New(Options{Size: 1, Life: life})
	tracker := phrase.NewTracker()

	stopped := make(chan struct{})
	busy := make(chan struct{})
	var once sync.Once
	q.Start(func(ctx context.Context, d Dispatch) error {
		once.Do(func() { close(busy) })
		<-ctx.Done()
		return d.Check()
	})
	if err := q.Add(NewTask(KindPlay, phrase.New(tracker, "busy"))); err != nil {
		t.Fatal(err)
	}
	<-busy
	if err := q.Add(NewTask(KindPlay, phrase.New(tracker, "queued"))); err != nil {
		t.Fatal(err)
	}

	blocked := make(chan error, 1)
	go func() {
		blocked <- q.Add(NewTask(KindPlay, phrase.New(tracker, "waiting")))
	}()

	time.Sleep(20 * time.Millisecond)
	life.Abort()

	select {
	case err := <-blocked:
		if !errors.Is(err, lifecycle.ErrAbort) {
			t.Errorf("blocked Add() error = %v, want ErrAbort", err)
		}
	case <-time.After(time.Second):
		t.Fatal("blocked Add() not released on abort")
	}

	go func() {
		_ = q.Close()
		close(stopped)
	}()
	select {
	case <-stopped:
	case <-time.After(time.Second):
		t.Fatal("consumer did not stop on abort")
	}
}

func TestDispatch_CheckExpiredPhrase(t *testing.T) {
	q := New(Options{})
	tracker := phrase.NewTracker()
	p := phrase.New(tracker, "old")
	tracker.ExpireAll()

	d := Dispatch{Task: NewTask(KindPlay, p), Sequence: 1, q: q}
	if err := d.Check(); err == nil {
		t.Error("Check() = nil for expired phrase")
	}
}

func TestParsePolicy(t *testing.T) {
	tests := []struct {
		in      string
		want    Policy
		wantErr bool
	}{
		{"", Block, false},
		{"block", Block, false},
		{"drop_oldest", DropOldest, false},
		{"drop-oldest", DropOldest, false},
		{"lifo", Block, true},
	}
	for _, tt := range tests {
		got, err := ParsePolicy(tt.in)
		if (err != nil) != tt.wantErr || got != tt.want {
			t.Errorf("ParsePolicy(%q) = %v, %v", tt.in, got, err)
		}
	}
}
