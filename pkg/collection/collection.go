// Package collection implements the synchronized collection: a local,
// id-keyed cache of one entity type kept live against one remote
// subscription and mutated optimistically.
//
// # Mutations
//
// Create, Update and Delete apply their change to the local mapping
// before the remote persist starts, then persist asynchronously. When the
// persist fails, the single record the call touched is restored to the
// value it had before the call and the store error is returned unchanged,
// unless a snapshot was applied while the persist was in flight. That
// snapshot already holds the remote value of the record and is kept.
// The Async variants return as soon as the local change is applied,
// together with a channel that yields the persist outcome exactly once.
//
// Two in-flight mutations of the same record are not serialized. If both
// fail with no snapshot in between, each restores the value it captured,
// so the later rollback may discard the effect of the earlier one.
//
// # Snapshots
//
// Every snapshot delivered by the subscription replaces the mapping
// wholesale, including records whose optimistic write is still in flight.
// Read-path errors are logged and leave the mapping at its last snapshot.
//
// # Generations
//
// Clear empties the mapping and starts a new generation. A rollback
// started in an earlier generation is dropped, so a persist failing after
// sign-out cannot bring a record back into a cleared mapping. Applied
// snapshots are counted the same way.
package collection

import (
	"context"
	"fmt"
	"sync"

	"github.com/tonehq/tonesync/pkg/constants"
	"github.com/tonehq/tonesync/pkg/models"
	"github.com/tonehq/tonesync/pkg/observable"
	"github.com/tonehq/tonesync/pkg/store"
)

// Collection is the synchronized collection of one entity type.
type Collection[T models.Record] struct {
	name   string
	store  store.Store
	decode models.Decoder[T]
	opts   options

	mu    sync.Mutex
	items map[string]T
	gen   uint64
	snaps uint64

	// sub is the live subscription; subToken identifies it in callbacks and
	// is bumped by Unsubscribe so late snapshots are dropped.
	sub         store.Subscription
	subscribing bool
	subToken    uint64
	scope       string

	changes observable.Listeners[struct{}]
}

// New returns an empty collection bound to the named remote collection.
func New[T models.Record](name string, st store.Store, decode models.Decoder[T], opts ...Option) (*Collection[T], error) {
	if st == nil {
		return nil, constants.ErrNoStore
	}
	if decode == nil {
		return nil, fmt.Errorf("collection %s: decoder is nil", name)
	}
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}
	return &Collection[T]{
		name:   name,
		store:  st,
		decode: decode,
		opts:   o,
		items:  make(map[string]T),
	}, nil
}

func (c *Collection[T]) Name() string {
	return c.name
}

// Create inserts a record built from draft and waits for the remote
// persist. On failure the record is removed again and the error returned.
func (c *Collection[T]) Create(ctx context.Context, draft models.Draft[T]) (T, error) {
	rec, done, err := c.CreateAsync(ctx, draft)
	if err != nil {
		return rec, err
	}
	if err := <-done; err != nil {
		var zero T
		return zero, err
	}
	return rec, nil
}

// CreateAsync inserts a record built from draft and returns it before the
// remote persist completes.
func (c *Collection[T]) CreateAsync(ctx context.Context, draft models.Draft[T]) (T, <-chan error, error) {
	var zero T
	owner := c.opts.owner()
	if owner == "" {
		return zero, nil, constants.ErrNotAuthenticated
	}
	rec := draft.Build(c.opts.newID(), owner, c.opts.now())
	id := rec.GetID()

	c.mu.Lock()
	gen, snaps := c.gen, c.snaps
	c.items[id] = rec
	c.mu.Unlock()
	c.notify()

	done := c.persist(ctx, func(ctx context.Context) error {
		return c.store.CreateDocument(ctx, c.name, id, rec.Document())
	}, func() bool {
		return c.rollback(gen, snaps, func() { delete(c.items, id) })
	}, "create", id)
	return rec, done, nil
}

// Update merges patch into the record with the given id and waits for the
// remote persist. An unknown id is a no-op reported as false.
func (c *Collection[T]) Update(ctx context.Context, id string, patch models.Patch[T]) (bool, error) {
	_, done, ok := c.UpdateAsync(ctx, id, patch)
	if !ok {
		return false, nil
	}
	return true, <-done
}

// UpdateAsync applies patch locally and returns the new record before the
// remote persist completes. Only the changed fields and updatedAt are sent.
func (c *Collection[T]) UpdateAsync(ctx context.Context, id string, patch models.Patch[T]) (T, <-chan error, bool) {
	now := c.opts.now()

	c.mu.Lock()
	prev, ok := c.items[id]
	if !ok {
		c.mu.Unlock()
		var zero T
		return zero, resolved(nil), false
	}
	gen, snaps := c.gen, c.snaps
	next := patch.Apply(prev, now)
	c.items[id] = next
	c.mu.Unlock()
	c.notify()

	fields := patch.Fields(now)
	done := c.persist(ctx, func(ctx context.Context) error {
		return c.store.UpdateDocument(ctx, c.name, id, fields)
	}, func() bool {
		return c.rollback(gen, snaps, func() { c.items[id] = prev })
	}, "update", id)
	return next, done, true
}

// Delete removes the record and waits for the remote delete. The remote
// delete is issued even when the id is not known locally.
func (c *Collection[T]) Delete(ctx context.Context, id string) error {
	return <-c.DeleteAsync(ctx, id)
}

func (c *Collection[T]) DeleteAsync(ctx context.Context, id string) <-chan error {
	c.mu.Lock()
	prev, had := c.items[id]
	gen, snaps := c.gen, c.snaps
	delete(c.items, id)
	c.mu.Unlock()
	if had {
		c.notify()
	}

	return c.persist(ctx, func(ctx context.Context) error {
		return c.store.DeleteDocument(ctx, c.name, id)
	}, func() bool {
		if !had {
			return false
		}
		return c.rollback(gen, snaps, func() { c.items[id] = prev })
	}, "delete", id)
}

// persist runs op in the background. On failure undo is applied and the
// error is delivered on the returned channel.
func (c *Collection[T]) persist(ctx context.Context, op func(context.Context) error, undo func() bool, action, id string) <-chan error {
	done := make(chan error, 1)
	go func() {
		defer close(done)
		pctx, cancel := c.persistContext(ctx)
		defer cancel()

		err := op(pctx)
		if err != nil {
			restored := undo()
			c.opts.log.Warn("collection: persist failed",
				"collection", c.name, "action", action, "id", id, "rolled_back", restored, "error", err)
			if restored {
				c.notify()
			}
		}
		done <- err
	}()
	return done
}

func (c *Collection[T]) persistContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if _, ok := ctx.Deadline(); ok || c.opts.persistTimeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, c.opts.persistTimeout)
}

// rollback applies fn unless the collection was cleared or received a
// snapshot since the mutation captured gen and snaps.
func (c *Collection[T]) rollback(gen, snaps uint64, fn func()) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if gen != c.gen || snaps != c.snaps {
		return false
	}
	fn()
	return true
}

// Clear empties the mapping and starts a new generation.
func (c *Collection[T]) Clear() {
	c.mu.Lock()
	c.items = make(map[string]T)
	c.gen++
	c.mu.Unlock()
	c.notify()
}

func resolved(err error) <-chan error {
	ch := make(chan error, 1)
	ch <- err
	close(ch)
	return ch
}
