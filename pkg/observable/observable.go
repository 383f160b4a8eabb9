// Package observable provides value cells that push changes to a list of
// listeners.
package observable

import (
	"sort"
	"sync"
)

// Listeners is a registry of callbacks. The zero value is ready to use.
type Listeners[T any] struct {
	mu     sync.Mutex
	nextID uint64
	fns    map[uint64]func(T)
}

// Add registers fn and returns a function removing it. Cancel may be
// called more than once.
func (l *Listeners[T]) Add(fn func(T)) (cancel func()) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.fns == nil {
		l.fns = make(map[uint64]func(T))
	}
	id := l.nextID
	l.nextID++
	l.fns[id] = fn
	return func() {
		l.mu.Lock()
		defer l.mu.Unlock()
		delete(l.fns, id)
	}
}

// Emit calls every registered listener in registration order. It must not
// be called while holding a lock a listener could take.
func (l *Listeners[T]) Emit(v T) {
	for _, fn := range l.snapshot() {
		fn(v)
	}
}

func (l *Listeners[T]) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.fns)
}

func (l *Listeners[T]) snapshot() []func(T) {
	l.mu.Lock()
	defer l.mu.Unlock()
	ids := make([]uint64, 0, len(l.fns))
	for id := range l.fns {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	out := make([]func(T), len(ids))
	for i, id := range ids {
		out[i] = l.fns[id]
	}
	return out
}

// Cell holds a value and notifies listeners when it changes.
type Cell[T any] struct {
	mu        sync.RWMutex
	value     T
	equal     func(a, b T) bool
	listeners Listeners[T]
}

// NewCell returns a cell holding initial. Set skips notification when
// equal reports the new value equals the current one; a nil equal
// notifies on every Set.
func NewCell[T any](initial T, equal func(a, b T) bool) *Cell[T] {
	return &Cell[T]{value: initial, equal: equal}
}

// NewComparableCell is NewCell with == as equality.
func NewComparableCell[T comparable](initial T) *Cell[T] {
	return NewCell(initial, func(a, b T) bool { return a == b })
}

func (c *Cell[T]) Get() T {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.value
}

// Set stores v and reports whether listeners were notified.
func (c *Cell[T]) Set(v T) bool {
	c.mu.Lock()
	if c.equal != nil && c.equal(c.value, v) {
		c.mu.Unlock()
		return false
	}
	c.value = v
	c.mu.Unlock()

	c.listeners.Emit(v)
	return true
}

// Subscribe registers fn for future changes. It is not called with the
// current value.
func (c *Cell[T]) Subscribe(fn func(T)) (cancel func()) {
	return c.listeners.Add(fn)
}
