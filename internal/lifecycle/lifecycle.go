// Package lifecycle carries the process-wide abort signal and coordinates
// graceful shutdown of registered components.
//
// Every blocking wait in the speech pipeline selects on Manager.Done so an
// abort unwinds immediately. A nil *Manager is valid and never aborts.
package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/charmbracelet/log"
)

// ErrAbort is returned by every wait point once the process is shutting down.
// It is the only error that crosses component boundaries as an unwinding signal.
var ErrAbort = errors.New("process-wide abort")

// Component represents a component that needs cleanup on shutdown
type Component interface {
	// Name returns the component name for logging
	Name() string

	// Shutdown performs graceful shutdown
	Shutdown(ctx context.Context) error

	// ForceStop performs immediate termination if graceful shutdown fails
	ForceStop() error
}

// Manager owns the abort signal and the ordered list of components.
type Manager struct {
	mu         sync.Mutex
	components []Component
	ctx        context.Context
	cancel     context.CancelFunc
	done       chan struct{}
	wg         sync.WaitGroup
	isShutdown bool
	logger     *log.Logger

	forceKillTimeout time.Duration
}

// New creates a new lifecycle manager.
func New(logger *log.Logger) *Manager {
	if logger == nil {
		logger = log.Default()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Manager{
		ctx:              ctx,
		cancel:           cancel,
		done:             make(chan struct{}),
		logger:           logger.WithPrefix("lifecycle"),
		forceKillTimeout: 5 * time.Second,
	}
}

// Register adds a component to lifecycle management. Components shut down
// in reverse registration order.
func (m *Manager) Register(component Component) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.isShutdown {
		m.logger.Warn("Cannot register component during shutdown", "component", component.Name())
		return
	}

	m.components = append(m.components, component)
	m.logger.Debug("Registered lifecycle component", "name", component.Name())
}

// Start begins monitoring for SIGINT and SIGTERM.
func (m *Manager) Start() {
	m.wg.Add(1)
	go m.monitorSignals()
}

func (m *Manager) monitorSignals() {
	defer m.wg.Done()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	select {
	case sig := <-sigCh:
		m.logger.Info("Received shutdown signal", "signal", sig)
		go func() { _ = m.Shutdown() }()
	case <-m.ctx.Done():
	}
}

// Abort raises the abort signal without tearing components down.
func (m *Manager) Abort() {
	if m == nil {
		return
	}
	m.cancel()
}

// Context returns a context that is canceled on abort.
func (m *Manager) Context() context.Context {
	if m == nil {
		return context.Background()
	}
	return m.ctx
}

// Done returns a channel closed on abort. A nil manager returns a nil
// channel, which blocks forever in a select.
func (m *Manager) Done() <-chan struct{} {
	if m == nil {
		return nil
	}
	return m.ctx.Done()
}

// Aborted reports whether the abort signal has been raised.
func (m *Manager) Aborted() bool {
	if m == nil {
		return false
	}
	return m.ctx.Err() != nil
}

// Check returns ErrAbort once the abort signal has been raised.
func (m *Manager) Check() error {
	if m.Aborted() {
		return ErrAbort
	}
	return nil
}

// Sleep waits for d, returning ErrAbort early if the process aborts.
func (m *Manager) Sleep(d time.Duration) error {
	if d <= 0 {
		return m.Check()
	}
	t := time.NewTimer(d)
	defer t.Stop()

	select {
	case <-t.C:
		return nil
	case <-m.Done():
		return ErrAbort
	}
}

// Shutdown raises the abort signal and shuts components down in reverse
// order, forcing any that fail to stop gracefully.
func (m *Manager) Shutdown() error {
	m.mu.Lock()
	if m.isShutdown {
		m.mu.Unlock()
		return nil
	}
	m.isShutdown = true
	components := append([]Component(nil), m.components...)
	m.mu.Unlock()

	m.logger.Debug("Starting graceful shutdown")
	m.cancel()

	ctx, cancel := context.WithTimeout(context.Background(), m.forceKillTimeout)
	defer cancel()

	var shutdownErrors []error
	for i := len(components) - 1; i >= 0; i-- {
		component := components[i]
		m.logger.Debug("Shutting down component", "name", component.Name())

		if err := component.Shutdown(ctx); err != nil {
			m.logger.Warn("Component graceful shutdown failed",
				"name", component.Name(),
				"error", err)

			if forceErr := component.ForceStop(); forceErr != nil {
				m.logger.Error("Component force stop failed",
					"name", component.Name(),
					"error", forceErr)
				shutdownErrors = append(shutdownErrors, forceErr)
			}
		}
	}

	waited := make(chan struct{})
	go func() {
		m.wg.Wait()
		close(waited)
	}()

	select {
	case <-waited:
		m.logger.Debug("Graceful shutdown complete")
	case <-time.After(2 * time.Second):
		m.logger.Warn("Timeout waiting for goroutines to finish")
	}

	close(m.done)

	if len(shutdownErrors) > 0 {
		return fmt.Errorf("shutdown completed with %d errors: %w", len(shutdownErrors), errors.Join(shutdownErrors...))
	}
	return nil
}

// Wait blocks until Shutdown has completed.
func (m *Manager) Wait() {
	<-m.done
}
