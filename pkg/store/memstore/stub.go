package memstore

import (
	"context"
	"sync"
)

// Method names a store operation for stub matching.
type Method string

const (
	MethodCreate    Method = "create"
	MethodUpdate    Method = "update"
	MethodDelete    Method = "delete"
	MethodSubscribe Method = "subscribe"
)

// Matcher selects the calls a stub applies to. Empty fields match
// anything.
type Matcher struct {
	Method     Method
	Collection string
	ID         string
}

func (m Matcher) match(method Method, collection, id string) bool {
	if m.Method != "" && m.Method != method {
		return false
	}
	if m.Collection != "" && m.Collection != collection {
		return false
	}
	if m.ID != "" && m.ID != id {
		return false
	}
	return true
}

// Stub alters the calls matched by Matcher.
type Stub struct {
	Matcher Matcher
	// Err is returned instead of performing the call.
	Err error
	// Times limits how many calls the stub applies to. Zero means no limit.
	Times int
	// Gate, when set, holds matched calls until it is released or the
	// call's context is done.
	Gate *Gate
}

type stubState struct {
	Stub
	used int
}

// AddStub registers a stub. Stubs are matched in registration order and
// the first live match wins.
func (s *Store) AddStub(stub Stub) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stubs = append(s.stubs, &stubState{Stub: stub})
}

// FailNext makes the next matching call fail with err.
func (s *Store) FailNext(m Matcher, err error) {
	s.AddStub(Stub{Matcher: m, Err: err, Times: 1})
}

// Hold makes the next matching call block until the returned gate is
// released. Pass fail to make the held call return an error once
// released.
func (s *Store) Hold(m Matcher, fail error) *Gate {
	g := NewGate()
	s.AddStub(Stub{Matcher: m, Err: fail, Times: 1, Gate: g})
	return g
}

// ClearStubs removes every stub.
func (s *Store) ClearStubs() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stubs = nil
}

func (s *Store) intercept(ctx context.Context, method Method, collection, id string) error {
	s.mu.Lock()
	s.calls[method]++
	var hit *Stub
	for _, st := range s.stubs {
		if st.Times > 0 && st.used >= st.Times {
			continue
		}
		if !st.Matcher.match(method, collection, id) {
			continue
		}
		st.used++
		stub := st.Stub
		hit = &stub
		break
	}
	s.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return err
	}
	if hit == nil {
		return nil
	}
	if hit.Gate != nil {
		if err := hit.Gate.wait(ctx); err != nil {
			return err
		}
	}
	if hit.Err != nil {
		s.log.Debug("memstore: injected failure", "method", string(method), "collection", collection, "id", id, "error", hit.Err)
	}
	return hit.Err
}

// Gate holds store calls in flight.
type Gate struct {
	enterOnce   sync.Once
	releaseOnce sync.Once
	entered     chan struct{}
	released    chan struct{}
}

func NewGate() *Gate {
	return &Gate{
		entered:  make(chan struct{}),
		released: make(chan struct{}),
	}
}

// Entered is closed once a call is blocked on the gate.
func (g *Gate) Entered() <-chan struct{} {
	return g.entered
}

// Release lets held calls proceed. It is safe to call more than once.
func (g *Gate) Release() {
	g.releaseOnce.Do(func() { close(g.released) })
}

func (g *Gate) wait(ctx context.Context) error {
	g.enterOnce.Do(func() { close(g.entered) })
	select {
	case <-g.released:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
