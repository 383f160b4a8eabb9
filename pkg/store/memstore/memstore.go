// Package memstore provides an in-process implementation of store.Store.
//
// The store keeps the authoritative documents in memory and delivers a
// full snapshot to every matching subscription after each write. Snapshots
// are delivered synchronously on the writing goroutine, after the write is
// applied and before the write call returns. Subscription callbacks must
// not call back into the store.
//
// Failures are injected with stubs matched by method, collection and id,
// and persists can be held in flight with gates. See [Store.AddStub] and
// [Store.Hold].
package memstore

import (
	"context"
	"fmt"
	"sync"

	"github.com/tonehq/tonesync/pkg/constants"
	"github.com/tonehq/tonesync/pkg/logger"
	"github.com/tonehq/tonesync/pkg/models"
	"github.com/tonehq/tonesync/pkg/store"
)

type Store struct {
	mu      sync.Mutex
	docs    map[string]map[string]models.Document
	version uint64
	subs    map[uint64]*subscription
	nextSub uint64
	stubs   []*stubState
	calls   map[Method]int
	log     logger.Logger
}

type Option func(*Store)

func WithLogger(l logger.Logger) Option {
	return func(s *Store) {
		s.log = l
	}
}

func New(opts ...Option) *Store {
	s := &Store{
		docs:  make(map[string]map[string]models.Document),
		subs:  make(map[uint64]*subscription),
		calls: make(map[Method]int),
		log:   logger.Nop(),
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

var (
	_ store.Store  = (*Store)(nil)
	_ store.Getter = (*Store)(nil)
)

func (s *Store) CreateDocument(ctx context.Context, collection, id string, fields models.Document) error {
	if err := s.intercept(ctx, MethodCreate, collection, id); err != nil {
		return err
	}
	doc := fields.Clone()
	doc[models.FieldID] = id
	s.write(collection, func(docs map[string]models.Document) {
		docs[id] = doc
	})
	return nil
}

func (s *Store) UpdateDocument(ctx context.Context, collection, id string, fields models.Document) error {
	if err := s.intercept(ctx, MethodUpdate, collection, id); err != nil {
		return err
	}
	var missing bool
	s.write(collection, func(docs map[string]models.Document) {
		cur, ok := docs[id]
		if !ok {
			missing = true
			return
		}
		docs[id] = store.Merge(cur, fields)
	})
	if missing {
		return fmt.Errorf("%w: %s/%s", constants.ErrNotFound, collection, id)
	}
	return nil
}

func (s *Store) DeleteDocument(ctx context.Context, collection, id string) error {
	if err := s.intercept(ctx, MethodDelete, collection, id); err != nil {
		return err
	}
	s.write(collection, func(docs map[string]models.Document) {
		delete(docs, id)
	})
	return nil
}

func (s *Store) SubscribeQuery(ctx context.Context, q store.Query, onSnapshot func([]models.Document), onError func(error)) (store.Subscription, error) {
	if err := s.intercept(ctx, MethodSubscribe, q.Collection, ""); err != nil {
		return nil, err
	}

	s.mu.Lock()
	id := s.nextSub
	s.nextSub++
	sub := &subscription{
		id:         id,
		query:      q,
		onSnapshot: onSnapshot,
		onError:    onError,
	}
	s.subs[id] = sub
	version := s.version
	initial := s.snapshotLocked(q)
	s.mu.Unlock()

	s.log.Debug("memstore: subscribed", "collection", q.Collection, "owner", q.OwnerID)
	sub.deliver(version, initial)

	return store.SubscriptionFunc(func() {
		s.mu.Lock()
		delete(s.subs, id)
		s.mu.Unlock()
		sub.close()
	}), nil
}

// Put writes doc directly, bypassing stubs and gates, and notifies
// subscribers. It stands in for writes made by another client.
func (s *Store) Put(collection string, doc models.Document) {
	doc = doc.Clone()
	s.write(collection, func(docs map[string]models.Document) {
		docs[doc.ID()] = doc
	})
}

// Remove deletes a document directly and notifies subscribers.
func (s *Store) Remove(collection, id string) {
	s.write(collection, func(docs map[string]models.Document) {
		delete(docs, id)
	})
}

// GetDocument returns a copy of one document. It bypasses stubs and gates.
func (s *Store) GetDocument(ctx context.Context, collection, id string) (models.Document, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("%w: %w", constants.ErrRemoteUnavailable, err)
	}
	d, ok := s.Get(collection, id)
	if !ok {
		return nil, fmt.Errorf("%w: %s/%s", constants.ErrNotFound, collection, id)
	}
	return d, nil
}

// Documents returns a copy of a collection sorted by order then id.
func (s *Store) Documents(collection string) []models.Document {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]models.Document, 0, len(s.docs[collection]))
	for _, d := range s.docs[collection] {
		out = append(out, d.Clone())
	}
	store.SortDocuments(out, models.FieldOrder)
	return out
}

// Get returns a copy of one document.
func (s *Store) Get(collection, id string) (models.Document, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	d, ok := s.docs[collection][id]
	return d.Clone(), ok
}

// FailSubscriptions reports err to every live subscription on collection.
func (s *Store) FailSubscriptions(collection string, err error) {
	s.mu.Lock()
	var targets []*subscription
	for _, sub := range s.subs {
		if sub.query.Collection == collection {
			targets = append(targets, sub)
		}
	}
	s.mu.Unlock()
	for _, sub := range targets {
		sub.fail(err)
	}
}

// Subscriptions returns the number of live subscriptions.
func (s *Store) Subscriptions() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.subs)
}

// Calls returns how many times method was invoked, stubbed calls included.
func (s *Store) Calls(m Method) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls[m]
}

func (s *Store) write(collection string, fn func(map[string]models.Document)) {
	s.mu.Lock()
	docs, ok := s.docs[collection]
	if !ok {
		docs = make(map[string]models.Document)
		s.docs[collection] = docs
	}
	fn(docs)
	s.version++
	version := s.version

	type pending struct {
		sub  *subscription
		docs []models.Document
	}
	var out []pending
	for _, sub := range s.subs {
		if sub.query.Collection != collection {
			continue
		}
		out = append(out, pending{sub: sub, docs: s.snapshotLocked(sub.query)})
	}
	s.mu.Unlock()

	for _, p := range out {
		p.sub.deliver(version, p.docs)
	}
}

func (s *Store) snapshotLocked(q store.Query) []models.Document {
	out := make([]models.Document, 0)
	for _, d := range s.docs[q.Collection] {
		if q.Matches(q.Collection, d) {
			out = append(out, d.Clone())
		}
	}
	store.SortDocuments(out, q.OrderBy)
	return out
}

type subscription struct {
	id         uint64
	query      store.Query
	onSnapshot func([]models.Document)
	onError    func(error)

	mu      sync.Mutex
	closed  bool
	version uint64
	primed  bool
}

// deliver hands docs to the callback unless a newer snapshot was already
// delivered. The lock is held during the callback so snapshots never
// overtake each other.
func (sub *subscription) deliver(version uint64, docs []models.Document) {
	sub.mu.Lock()
	defer sub.mu.Unlock()
	if sub.closed || (sub.primed && version <= sub.version) {
		return
	}
	sub.primed = true
	sub.version = version
	if sub.onSnapshot != nil {
		sub.onSnapshot(docs)
	}
}

func (sub *subscription) fail(err error) {
	sub.mu.Lock()
	defer sub.mu.Unlock()
	if sub.closed || sub.onError == nil {
		return
	}
	sub.onError(err)
}

func (sub *subscription) close() {
	sub.mu.Lock()
	defer sub.mu.Unlock()
	sub.closed = true
}
