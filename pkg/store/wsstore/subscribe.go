package wsstore

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/tonehq/tonesync/internal/rand"
	"github.com/tonehq/tonesync/pkg/models"
	"github.com/tonehq/tonesync/pkg/store"
)

type subscription struct {
	id    string
	query store.Query

	stopped atomic.Bool

	// mu serializes callbacks.
	mu         sync.Mutex
	onSnapshot func([]models.Document)
	onError    func(error)
}

func (sub *subscription) deliver(docs []models.Document) {
	sub.mu.Lock()
	defer sub.mu.Unlock()
	if sub.stopped.Load() {
		return
	}
	store.SortDocuments(docs, sub.query.OrderBy)
	sub.onSnapshot(docs)
}

func (sub *subscription) fail(err error) {
	sub.mu.Lock()
	defer sub.mu.Unlock()
	if sub.stopped.Load() || sub.onError == nil {
		return
	}
	sub.onError(err)
}

func (sub *subscription) params() Params {
	return Params{
		Subscription: sub.id,
		Collection:   sub.query.Collection,
		OwnerID:      sub.query.OwnerID,
		OrderBy:      sub.query.OrderBy,
	}
}

// SubscribeQuery registers the subscription under a client-chosen id
// before asking the relay for it, so the first snapshot can never arrive
// for an unknown id.
func (s *Store) SubscribeQuery(ctx context.Context, q store.Query, onSnapshot func([]models.Document), onError func(error)) (store.Subscription, error) {
	sub := &subscription{
		id:         rand.NewID(),
		query:      q,
		onSnapshot: onSnapshot,
		onError:    onError,
	}

	s.mu.Lock()
	s.subs[sub.id] = sub
	s.mu.Unlock()

	if err := s.resubscribe(ctx, sub); err != nil {
		s.forget(sub)
		return nil, err
	}
	s.log.Debug("wsstore: subscribed", "collection", q.Collection, "sub", sub.id)

	return store.SubscriptionFunc(func() {
		s.forget(sub)
		// Unsubscribe may run on the read goroutine, which must keep
		// reading for the reply to arrive.
		go func() {
			ctx, cancel := context.WithTimeout(context.Background(), DefaultTimeout)
			defer cancel()
			if _, err := s.call(ctx, MethodUnsubscribe, Params{Subscription: sub.id}); err != nil {
				s.log.Debug("wsstore: unsubscribe failed", "sub", sub.id, "error", err)
			}
		}()
	}), nil
}

func (s *Store) resubscribe(ctx context.Context, sub *subscription) error {
	_, err := s.call(ctx, MethodSubscribe, sub.params())
	return err
}

func (s *Store) forget(sub *subscription) {
	s.mu.Lock()
	delete(s.subs, sub.id)
	s.mu.Unlock()
	sub.stopped.Store(true)
}
