package lifecycle

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

type recordingComponent struct {
	name     string
	order    *[]string
	mu       *sync.Mutex
	failStop bool
	forced   bool
}

func (c *recordingComponent) Name() string { return c.name }

func (c *recordingComponent) Shutdown(ctx context.Context) error {
	c.mu.Lock()
	*c.order = append(*c.order, c.name)
	c.mu.Unlock()
	if c.failStop {
		return errors.New("stuck")
	}
	return nil
}

func (c *recordingComponent) ForceStop() error {
	c.forced = true
	return nil
}

func TestManager_ShutdownOrder(t *testing.T) {
	m := New(nil)

	var mu sync.Mutex
	var order []string
	first := &recordingComponent{name: "queue", order: &order, mu: &mu}
	second := &recordingComponent{name: "player", order: &order, mu: &mu, failStop: true}
	m.Register(first)
	m.Register(second)

	if err := m.Shutdown(); err != nil {
		t.Fatalf("Shutdown failed: %v", err)
	}
	m.Wait()

	if len(order) != 2 || order[0] != "player" || order[1] != "queue" {
		t.Errorf("components shut down in wrong order: %v", order)
	}
	if !second.forced {
		t.Error("component failing graceful shutdown was not force stopped")
	}
	if !m.Aborted() {
		t.Error("Shutdown did not raise abort")
	}

	// Second shutdown is a no-op
	if err := m.Shutdown(); err != nil {
		t.Errorf("repeated Shutdown returned error: %v", err)
	}
}

func TestManager_SleepUnwindsOnAbort(t *testing.T) {
	m := New(nil)

	go func() {
		time.Sleep(20 * time.Millisecond)
		m.Abort()
	}()

	start := time.Now()
	err := m.Sleep(5 * time.Second)
	if !errors.Is(err, ErrAbort) {
		t.Fatalf("Sleep returned %v, want ErrAbort", err)
	}
	if time.Since(start) > time.Second {
		t.Error("Sleep did not unwind promptly on abort")
	}
	if err := m.Check(); !errors.Is(err, ErrAbort) {
		t.Errorf("Check returned %v after abort", err)
	}
	if m.Context().Err() == nil {
		t.Error("context not canceled after abort")
	}
}

func TestManager_NilIsNeverAborted(t *testing.T) {
	var m *Manager

	if m.Aborted() {
		t.Error("nil manager reports aborted")
	}
	if err := m.Check(); err != nil {
		t.Errorf("nil manager Check returned %v", err)
	}
	if err := m.Sleep(time.Millisecond); err != nil {
		t.Errorf("nil manager Sleep returned %v", err)
	}
	m.Abort()
}
