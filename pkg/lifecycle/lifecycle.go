// Package lifecycle binds collection subscriptions to the identity gate.
//
// When a user signs in, every collection is cleared and then subscribed
// scoped to that user. When the user signs out, every collection is
// unsubscribed and cleared. Switching directly from one user to another
// goes through the sign-out path first, so no record of the previous user
// survives into the new scope.
package lifecycle

import (
	"context"
	"errors"
	"sync"

	"github.com/tonehq/tonesync/pkg/constants"
	"github.com/tonehq/tonesync/pkg/identity"
	"github.com/tonehq/tonesync/pkg/logger"
	"github.com/tonehq/tonesync/pkg/models"
)

// Subscriber is a collection managed by the lifecycle.
type Subscriber interface {
	Name() string
	Subscribe(ctx context.Context, scopeID string) error
	Unsubscribe()
	Clear()
}

type Manager struct {
	gate identity.Gate
	subs []Subscriber
	log  logger.Logger

	// transition serializes sign-in and sign-out handling; mu guards the
	// fields and is never held while collections run callbacks.
	transition  sync.Mutex
	mu          sync.Mutex
	ctx         context.Context
	scope       string
	lastErr     error
	cancelWatch func()
	started     bool
	closed      bool
}

func New(gate identity.Gate, subs []Subscriber, log logger.Logger) *Manager {
	if log == nil {
		log = logger.Nop()
	}
	return &Manager{
		gate: gate,
		subs: subs,
		log:  log,
	}
}

// Start begins watching the gate. The current identity is applied before
// Start returns and any subscribe error from it is returned. ctx is used
// for every subscription opened later.
func (m *Manager) Start(ctx context.Context) error {
	if m.gate == nil {
		return constants.ErrNoIdentityGate
	}
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return constants.ErrClosed
	}
	if m.started {
		m.mu.Unlock()
		return nil
	}
	m.started = true
	m.ctx = ctx
	m.mu.Unlock()

	cancel := m.gate.Watch(m.apply)

	m.mu.Lock()
	m.cancelWatch = cancel
	closed := m.closed
	err := m.lastErr
	m.mu.Unlock()
	if closed {
		cancel()
	}
	return err
}

// Scope returns the user id the collections are subscribed for.
func (m *Manager) Scope() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.scope
}

// Err returns the subscribe error of the latest transition, if any.
func (m *Manager) Err() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.lastErr
}

func (m *Manager) apply(u *models.User) {
	next := ""
	if u != nil {
		next = u.ID
	}

	m.transition.Lock()
	defer m.transition.Unlock()

	m.mu.Lock()
	prev, closed, ctx := m.scope, m.closed, m.ctx
	m.mu.Unlock()
	if closed || next == prev {
		return
	}

	m.teardown()
	m.mu.Lock()
	m.scope = next
	m.lastErr = nil
	m.mu.Unlock()
	if next == "" {
		m.log.Info("lifecycle: signed out", "previous", prev)
		return
	}

	m.log.Info("lifecycle: subscribing", "user", next, "previous", prev)
	var errs []error
	for _, s := range m.subs {
		if err := s.Subscribe(ctx, next); err != nil {
			m.log.Error("lifecycle: subscribe failed", "collection", s.Name(), "user", next, "error", err)
			errs = append(errs, err)
		}
	}
	m.mu.Lock()
	m.lastErr = errors.Join(errs...)
	m.mu.Unlock()
}

func (m *Manager) teardown() {
	for _, s := range m.subs {
		s.Unsubscribe()
	}
	for _, s := range m.subs {
		s.Clear()
	}
}

// Close stops watching the gate, unsubscribes and clears every collection.
// It is safe to call more than once.
func (m *Manager) Close() {
	m.transition.Lock()
	defer m.transition.Unlock()

	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return
	}
	m.closed = true
	cancel := m.cancelWatch
	m.cancelWatch = nil
	m.scope = ""
	m.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	m.teardown()
	m.log.Debug("lifecycle: closed")
}
