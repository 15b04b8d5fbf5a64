// Package shutdown ties a command run to process signals. An interrupt
// cancels the run context, and registered cleanups release resources once
// the command has returned.
package shutdown

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"sync"

	"kanbansync/internal/utils"
)

// CleanupFunc releases one resource. The context bounds how long it may take.
type CleanupFunc func(ctx context.Context) error

type cleanupEntry struct {
	name string
	fn   CleanupFunc
}

// Manager coordinates interruption and cleanup for a single invocation.
type Manager struct {
	mu          sync.Mutex
	cleanups    []cleanupEntry
	interrupted bool
	closed      bool

	ctx    context.Context
	cancel context.CancelFunc
	once   sync.Once
}

// NewManager creates a manager whose context derives from parent.
func NewManager(parent context.Context) *Manager {
	if parent == nil {
		parent = context.Background()
	}
	ctx, cancel := context.WithCancel(parent)
	return &Manager{ctx: ctx, cancel: cancel}
}

// Listen cancels the context when one of signals arrives. The returned
// function stops listening.
func (m *Manager) Listen(signals ...os.Signal) (stop func()) {
	ch := make(chan os.Signal, 1)
	signal.Notify(ch, signals...)
	done := make(chan struct{})

	go func() {
		select {
		case sig := <-ch:
			utils.Debugf("received %s, cancelling", sig)
			m.Shutdown()
		case <-done:
		}
	}()

	var stopOnce sync.Once
	return func() {
		stopOnce.Do(func() {
			signal.Stop(ch)
			close(done)
		})
	}
}

// RegisterCleanup adds fn to the cleanups run by Close. Cleanups run in
// reverse registration order.
func (m *Manager) RegisterCleanup(name string, fn CleanupFunc) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.cleanups = append(m.cleanups, cleanupEntry{name: name, fn: fn})
}

// Shutdown cancels the context. Safe to call more than once.
func (m *Manager) Shutdown() {
	m.once.Do(func() {
		m.mu.Lock()
		m.interrupted = true
		m.mu.Unlock()
		m.cancel()
	})
}

// Interrupted reports whether Shutdown has been called.
func (m *Manager) Interrupted() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.interrupted
}

// Context is cancelled on Shutdown.
func (m *Manager) Context() context.Context {
	return m.ctx
}

// Close runs the registered cleanups once and releases the context. Every
// cleanup runs even when an earlier one fails; the failures are joined.
// If ctx expires first, Close returns ctx.Err() and the remaining cleanups
// finish in the background.
func (m *Manager) Close(ctx context.Context) error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil
	}
	m.closed = true
	cleanups := m.cleanups
	m.cleanups = nil
	m.mu.Unlock()

	defer m.cancel()

	done := make(chan error, 1)
	go func() {
		var errs []error
		for i := len(cleanups) - 1; i >= 0; i-- {
			c := cleanups[i]
			if err := c.fn(ctx); err != nil {
				utils.Debugf("cleanup %s: %v", c.name, err)
				errs = append(errs, fmt.Errorf("%s: %w", c.name, err))
			}
		}
		done <- errors.Join(errs...)
	}()

	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}
