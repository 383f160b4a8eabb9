package surrealstore

import (
	"context"
	"fmt"
	"sync"

	"github.com/surrealdb/surrealdb.go"
	"github.com/surrealdb/surrealdb.go/pkg/connection"
	sdbmodels "github.com/surrealdb/surrealdb.go/pkg/models"

	"github.com/tonehq/tonesync/pkg/constants"
	"github.com/tonehq/tonesync/pkg/models"
	"github.com/tonehq/tonesync/pkg/store"
)

const (
	liveQuery   = "LIVE SELECT * FROM type::table($tb) WHERE userId = $owner"
	selectQuery = "SELECT * FROM type::table($tb) WHERE userId = $owner"
)

// SubscribeQuery registers a live query before reading the current rows,
// so no change between the two is lost. Notifications that arrive while
// the initial read is in flight are folded in after it.
func (s *Store) SubscribeQuery(ctx context.Context, q store.Query, onSnapshot func([]models.Document), onError func(error)) (store.Subscription, error) {
	vars := map[string]any{"tb": q.Collection, "owner": q.OwnerID}

	res, err := surrealdb.Query[sdbmodels.UUID](ctx, s.db, liveQuery, vars)
	if err != nil {
		return nil, wrapErr("live "+q.Collection, err)
	}
	if res == nil || len(*res) == 0 {
		return nil, fmt.Errorf("%w: live %s: empty response", constants.ErrRemoteUnavailable, q.Collection)
	}
	liveID := (*res)[0].Result.String()

	notifications, err := s.db.LiveNotifications(liveID)
	if err != nil {
		s.kill(liveID)
		return nil, wrapErr("live "+q.Collection, err)
	}

	rows, err := surrealdb.Query[[]map[string]any](ctx, s.db, selectQuery, vars)
	if err != nil {
		s.kill(liveID)
		return nil, wrapErr("select "+q.Collection, err)
	}

	sub := &liveSubscription{
		store:      s,
		query:      q,
		liveID:     liveID,
		state:      make(map[string]models.Document),
		onSnapshot: onSnapshot,
		onError:    onError,
		stop:       make(chan struct{}),
	}
	if rows != nil && len(*rows) > 0 {
		for _, row := range (*rows)[0].Result {
			doc := fromSurreal(row)
			if id := doc.ID(); id != "" {
				sub.state[id] = doc
			}
		}
	}

	s.log.Debug("surrealstore: live query started", "collection", q.Collection, "live_id", liveID)
	sub.emit()
	go sub.run(notifications)

	return store.SubscriptionFunc(sub.close), nil
}

func (s *Store) kill(liveID string) {
	if err := surrealdb.Kill(context.Background(), s.db, liveID); err != nil {
		s.log.Warn("surrealstore: kill failed", "live_id", liveID, "error", err)
	}
}

type liveSubscription struct {
	store  *Store
	query  store.Query
	liveID string

	// mu guards state and serializes callbacks.
	mu         sync.Mutex
	state      map[string]models.Document
	onSnapshot func([]models.Document)
	onError    func(error)

	stop     chan struct{}
	stopOnce sync.Once
}

func (sub *liveSubscription) run(ch chan connection.Notification) {
	for {
		select {
		case <-sub.stop:
			return
		case n, ok := <-ch:
			if !ok {
				select {
				case <-sub.stop:
				default:
					sub.fail(fmt.Errorf("%w: live query %s closed", constants.ErrRemoteUnavailable, sub.liveID))
				}
				return
			}
			sub.apply(n)
		}
	}
}

func (sub *liveSubscription) apply(n connection.Notification) {
	row, ok := n.Result.(map[string]any)
	if !ok {
		sub.store.log.Warn("surrealstore: unexpected notification payload", "live_id", sub.liveID, "type", fmt.Sprintf("%T", n.Result))
		return
	}
	doc := fromSurreal(row)
	id := doc.ID()
	if id == "" {
		return
	}

	sub.mu.Lock()
	switch n.Action {
	case connection.CreateAction, connection.UpdateAction:
		sub.state[id] = doc
	case connection.DeleteAction:
		delete(sub.state, id)
	default:
		sub.mu.Unlock()
		return
	}
	sub.mu.Unlock()
	sub.emit()
}

func (sub *liveSubscription) emit() {
	sub.mu.Lock()
	defer sub.mu.Unlock()
	select {
	case <-sub.stop:
		return
	default:
	}
	docs := make([]models.Document, 0, len(sub.state))
	for _, d := range sub.state {
		docs = append(docs, d.Clone())
	}
	store.SortDocuments(docs, sub.query.OrderBy)
	sub.onSnapshot(docs)
}

func (sub *liveSubscription) fail(err error) {
	sub.mu.Lock()
	defer sub.mu.Unlock()
	if sub.onError != nil {
		sub.onError(err)
	}
}

// close may run on the notification goroutine from inside a callback, so
// it takes no lock and never waits for run to return. A snapshot already
// being emitted can still arrive after close returns.
func (sub *liveSubscription) close() {
	sub.stopOnce.Do(func() {
		close(sub.stop)
		go sub.store.kill(sub.liveID)
	})
}
