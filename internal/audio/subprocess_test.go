//go:build unix

package audio

import (
	"bytes"
	"context"
	"errors"
	"os"
	"os/exec"
	"path/filepath"
	"testing"
	"time"

	"github.com/charmbracelet/log"
	"github.com/dgnsrekt/mediavoice/internal/tts"
)

func shPlayer(t *testing.T, script string) *SubprocessPlayer {
	t.Helper()
	if _, err := exec.LookPath("sh"); err != nil {
		t.Skip("sh not available")
	}
	return NewSubprocessPlayer(Preset{
		Name:      "sh",
		Command:   "sh",
		Args:      []string{"-c", script, "player", fileArg},
		PipeArgs:  []string{"-c", script, "player", "-"},
		FileTypes: []string{"wav"},
	}, nil, log.Default())
}

func TestSubprocessPlayer_Play(t *testing.T) {
	out := filepath.Join(t.TempDir(), "out")
	p := shPlayer(t, `cat "$1" > `+out)
	in := writeAudio(t, "in.wav", []byte("sound"))

	if err := p.Play(context.Background(), in, nil); err != nil {
		t.Fatalf("Play() error = %v", err)
	}
	got, _ := os.ReadFile(out)
	if string(got) != "sound" {
		t.Errorf("player received %q, want %q", got, "sound")
	}
}

func TestSubprocessPlayer_Pipe(t *testing.T) {
	out := filepath.Join(t.TempDir(), "out")
	p := shPlayer(t, `cat > `+out)

	if !p.Capabilities().CanPipe {
		t.Fatal("CanPipe = false with pipe args")
	}
	if err := p.Pipe(context.Background(), bytes.NewReader([]byte("stream")), "wav", nil); err != nil {
		t.Fatalf("Pipe() error = %v", err)
	}
	got, _ := os.ReadFile(out)
	if string(got) != "stream" {
		t.Errorf("player received %q, want %q", got, "stream")
	}
}

func TestSubprocessPlayer_FailureReported(t *testing.T) {
	p := shPlayer(t, `echo nope >&2; exit 2`)
	in := writeAudio(t, "in.wav", []byte("sound"))

	err := p.Play(context.Background(), in, nil)
	var ttsErr *tts.TTSError
	if !errors.As(err, &ttsErr) {
		t.Fatalf("Play() error = %v, want TTSError", err)
	}
	if ttsErr.Code != tts.ErrorCodeAudioFailure || ttsErr.Context["code"] != 2 {
		t.Errorf("Play() error = %+v, want AUDIO_FAILURE with code 2", ttsErr)
	}
}

func TestSubprocessPlayer_Stop(t *testing.T) {
	p := shPlayer(t, `sleep 5`)
	in := writeAudio(t, "in.wav", []byte("sound"))

	done := make(chan error, 1)
	go func() { done <- p.Play(context.Background(), in, nil) }()

	deadline := time.Now().Add(2 * time.Second)
	for !p.IsPlaying() && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	if !p.IsPlaying() {
		t.Fatal("IsPlaying() = false while player runs")
	}
	_ = p.Stop(true)

	select {
	case <-done:
	case <-time.After(3 * time.Second):
		t.Fatal("Play() not stopped")
	}
	if p.IsPlaying() {
		t.Error("IsPlaying() = true after Stop")
	}
}

func TestExpandArgs(t *testing.T) {
	got := expandArgs([]string{"-q", fileArg}, "/x.mp3")
	if len(got) != 2 || got[1] != "/x.mp3" {
		t.Errorf("expandArgs() = %v", got)
	}
	got = expandArgs([]string{"-q"}, "/x.mp3")
	if len(got) != 2 || got[1] != "/x.mp3" {
		t.Errorf("expandArgs() without placeholder = %v", got)
	}
}

func TestLookupPreset(t *testing.T) {
	p, ok := LookupPreset("mpg123")
	if !ok || p.FileTypes[0] != "mp3" {
		t.Errorf("LookupPreset(mpg123) = %+v, %v", p, ok)
	}
	if _, ok := LookupPreset("nope"); ok {
		t.Error("LookupPreset(nope) found a preset")
	}
}
