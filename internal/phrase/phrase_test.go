package phrase

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/dgnsrekt/mediavoice/internal/tts"
)

func TestTracker_WatermarkNeverMovesBackward(t *testing.T) {
	tr := NewTracker()
	for i := 0; i < 5; i++ {
		tr.Next()
	}

	tr.ExpireBefore(4)
	tr.ExpireBefore(2)
	if got := tr.Watermark(); got != 4 {
		t.Errorf("watermark = %d, want 4", got)
	}

	if !tr.IsExpired(3) {
		t.Error("serial 3 should be expired")
	}
	if tr.IsExpired(4) {
		t.Error("serial 4 should not be expired")
	}
}

func TestTracker_ConcurrentAdvance(t *testing.T) {
	tr := NewTracker()
	var wg sync.WaitGroup
	for i := int64(1); i <= 100; i++ {
		wg.Add(1)
		go func(v int64) {
			defer wg.Done()
			tr.ExpireBefore(v)
		}(i)
	}
	wg.Wait()

	if got := tr.Watermark(); got != 100 {
		t.Errorf("watermark = %d, want 100", got)
	}
}

func TestPhrase_SerialsAreMonotonic(t *testing.T) {
	tr := NewTracker()
	a := New(tr, "first")
	b := New(tr, "second")

	if b.Serial() <= a.Serial() {
		t.Errorf("serials not monotonic: %d then %d", a.Serial(), b.Serial())
	}
}

func TestList_ExpireAllPrior(t *testing.T) {
	tr := NewTracker()
	list := NewList(tr)
	p1 := list.Add("one")
	p2 := list.Add("two")

	list.ExpireAllPrior()

	if !p1.IsExpired() || !p2.IsExpired() {
		t.Fatal("ExpireAllPrior did not expire existing phrases")
	}
	if !errors.Is(p1.Check(), tts.ErrExpired) {
		t.Errorf("Check() = %v, want ErrExpired", p1.Check())
	}
	if !list.IsExpired() {
		t.Error("list should report expired")
	}

	p3 := list.Add("three")
	if p3.IsExpired() {
		t.Error("phrase created after ExpireAllPrior must not be expired")
	}
}

func TestPhrase_CloneOptsOutOfExpiration(t *testing.T) {
	tr := NewTracker()
	p := New(tr, "Settings", WithPauses(100*time.Millisecond, 0))
	bg := p.Clone(false)

	tr.ExpireAll()

	if !p.IsExpired() {
		t.Error("original should be expired")
	}
	if bg.IsExpired() {
		t.Error("clone without expiration checks must not expire")
	}
	if bg.Serial() != p.Serial() {
		t.Error("clone must keep the serial number")
	}

	bg.SetCheckExpired(true)
	if !bg.IsExpired() {
		t.Error("clone with checks re-enabled should be expired")
	}

	pre, _ := bg.Pauses()
	if pre != 100*time.Millisecond {
		t.Errorf("clone lost pauses: %v", pre)
	}
}

func TestPhrase_CloneSharesCacheState(t *testing.T) {
	tr := NewTracker()
	p := New(tr, "hello world")
	bg := p.Clone(false)

	bg.SetCachePath("/cache/x.mp3", "mp3", false, false)
	bg.SetFileState(FileCreationIncomplete)
	if p.FileState() != FileCreationIncomplete {
		t.Errorf("foreground state = %v, want creation_incomplete", p.FileState())
	}

	bg.SetFileState(FileOK)
	if !p.Exists() {
		t.Error("foreground should observe committed entry")
	}
	if path, ft := p.CachePath(); path != "/cache/x.mp3" || ft != "mp3" {
		t.Errorf("CachePath() = %q, %q", path, ft)
	}

	bg.AddEvent("chunk %d failed", 2)
	if ev := p.Events(); len(ev) != 1 || ev[0] != "chunk 2 failed" {
		t.Errorf("events not shared: %v", ev)
	}
}

func TestPhrase_IsEmpty(t *testing.T) {
	tr := NewTracker()
	if !New(tr, "  \n").IsEmpty() {
		t.Error("whitespace phrase should be empty")
	}
	if New(tr, "x").IsEmpty() {
		t.Error("non-empty phrase reported empty")
	}
}

func TestFileState_String(t *testing.T) {
	if FileCreationIncomplete.String() != "creation_incomplete" {
		t.Errorf("unexpected string %q", FileCreationIncomplete.String())
	}
	if FileState(9).String() != "invalid" {
		t.Errorf("unexpected string %q", FileState(9).String())
	}
}
