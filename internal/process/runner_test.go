//go:build unix

package process

import (
	"context"
	"errors"
	"os/exec"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/charmbracelet/log"
	"github.com/dgnsrekt/mediavoice/internal/lifecycle"
	"github.com/dgnsrekt/mediavoice/internal/tts"
)

type flagOwner struct {
	expired atomic.Bool
}

func (o *flagOwner) IsExpired() bool { return o.expired.Load() }

func requireShell(t *testing.T) {
	t.Helper()
	if _, err := exec.LookPath("sh"); err != nil {
		t.Skip("sh not available")
	}
}

func TestRunnerComplete(t *testing.T) {
	requireShell(t)

	r := New(Options{
		Name:    "sh",
		Args:    []string{"-c", "echo hello; echo oops >&2; exit 3"},
		Capture: true,
	}, nil, nil, log.Default())

	state, err := r.Run(context.Background())
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if state != Complete {
		t.Errorf("state = %v, want %v", state, Complete)
	}
	if code := r.ReturnCode(); code != 3 {
		t.Errorf("ReturnCode() = %d, want 3", code)
	}
	if out := strings.Join(r.Stdout(), ""); out != "hello" {
		t.Errorf("Stdout() = %q, want %q", out, "hello")
	}
	if errOut := strings.Join(r.Stderr(), ""); errOut != "oops" {
		t.Errorf("Stderr() = %q, want %q", errOut, "oops")
	}
}

func TestRunnerExpiredBeforeStart(t *testing.T) {
	owner := &flagOwner{}
	owner.expired.Store(true)

	r := New(Options{Name: "sh", Args: []string{"-c", "exit 0"}}, owner, nil, nil)
	state, err := r.Run(context.Background())
	if !errors.Is(err, tts.ErrExpired) {
		t.Fatalf("Run() error = %v, want ErrExpired", err)
	}
	if state != NotStarted {
		t.Errorf("state = %v, want %v", state, NotStarted)
	}
	if code := r.ReturnCode(); code != CodeExpiredBeforeStart {
		t.Errorf("ReturnCode() = %d, want %d", code, CodeExpiredBeforeStart)
	}
}

func TestRunnerTerminatedOnExpiry(t *testing.T) {
	requireShell(t)

	owner := &flagOwner{}
	r := New(Options{
		Name:         "sh",
		Args:         []string{"-c", "sleep 5"},
		PollInterval: 20 * time.Millisecond,
	}, owner, nil, nil)

	go func() {
		time.Sleep(100 * time.Millisecond)
		owner.expired.Store(true)
	}()

	start := time.Now()
	state, err := r.Run(context.Background())
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if state != Terminated {
		t.Errorf("state = %v, want %v", state, Terminated)
	}
	if elapsed := time.Since(start); elapsed > 3*time.Second {
		t.Errorf("Run() took %v, expected prompt termination", elapsed)
	}
}

func TestRunnerKilledWhenTerminateIgnored(t *testing.T) {
	requireShell(t)

	r := New(Options{
		Name:         "sh",
		Args:         []string{"-c", `trap "" TERM; sleep 5`},
		PollInterval: 20 * time.Millisecond,
	}, nil, nil, nil)

	go func() {
		time.Sleep(150 * time.Millisecond)
		r.Terminate(false)
	}()

	start := time.Now()
	state, err := r.Run(context.Background())
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if state != Killed {
		t.Errorf("state = %v, want %v", state, Killed)
	}
	if elapsed := time.Since(start); elapsed > 3*time.Second {
		t.Errorf("Run() took %v, expected kill escalation", elapsed)
	}
}

func TestRunnerAbort(t *testing.T) {
	requireShell(t)

	life := lifecycle.New(nil)
	r := New(Options{
		Name:         "sh",
		Args:         []string{"-c", "sleep 5"},
		PollInterval: 20 * time.Millisecond,
	}, nil, life, nil)

	go func() {
		time.Sleep(100 * time.Millisecond)
		life.Abort()
	}()

	state, err := r.Run(context.Background())
	if !errors.Is(err, lifecycle.ErrAbort) {
		t.Fatalf("Run() error = %v, want ErrAbort", err)
	}
	if state != Killed {
		t.Errorf("state = %v, want %v", state, Killed)
	}
	if code := r.ReturnCode(); code != CodeKilledOnAbort {
		t.Errorf("ReturnCode() = %d, want %d", code, CodeKilledOnAbort)
	}
}

func TestRunnerNotReusable(t *testing.T) {
	requireShell(t)

	r := New(Options{Name: "sh", Args: []string{"-c", "exit 0"}}, nil, nil, nil)
	if _, err := r.Run(context.Background()); err != nil {
		t.Fatalf("first Run() error = %v", err)
	}
	if _, err := r.Run(context.Background()); !errors.Is(err, ErrAlreadyRun) {
		t.Errorf("second Run() error = %v, want ErrAlreadyRun", err)
	}
}

func TestOutput(t *testing.T) {
	requireShell(t)

	out, err := Output(context.Background(), Options{
		Name: "sh",
		Args: []string{"-c", "printf abc"},
	}, nil, nil, nil)
	if err != nil {
		t.Fatalf("Output() error = %v", err)
	}
	if string(out) != "abc" {
		t.Errorf("Output() = %q, want %q", out, "abc")
	}

	_, err = Output(context.Background(), Options{
		Name: "sh",
		Args: []string{"-c", "echo bad >&2; exit 1"},
	}, nil, nil, nil)
	if err == nil || !strings.Contains(err.Error(), "bad") {
		t.Errorf("Output() error = %v, want stderr in error", err)
	}
}

func TestLineBufferBounded(t *testing.T) {
	b := newLineBuffer(2)
	b.add("a")
	b.add("b")
	b.add("c")
	got := b.Lines()
	if len(got) != 2 || got[0] != "b" || got[1] != "c" {
		t.Errorf("Lines() = %v, want [b c]", got)
	}
}
