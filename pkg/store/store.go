// Package store defines the boundary between the synchronization layer and
// the remote document store.
//
// A [Store] persists documents addressed by collection and id, and pushes
// full result snapshots of owner-scoped queries to subscribers. The
// synchronization layer relies on nothing else: replication, consistency
// and network retry are the store's own business.
//
// Implementations:
//
//   - [github.com/tonehq/tonesync/pkg/store/memstore.Store]: in-process store with failure injection, used by tests
//   - [github.com/tonehq/tonesync/pkg/store/surrealstore.Store]: SurrealDB with LIVE SELECT subscriptions
//   - [github.com/tonehq/tonesync/pkg/store/pgstore.Store]: PostgreSQL through GORM, subscriptions by polling
//   - [github.com/tonehq/tonesync/pkg/store/localstore.Store]: local-only fallback persisted in SQLite
//   - [github.com/tonehq/tonesync/pkg/store/wsstore.Store]: a relay server reached over WebSocket
//
// # Field conventions
//
// Documents carry camelCase field names. Optional fields absent in memory
// are written as explicit nulls; adapters must return them as nil (or omit
// them) so they decode back as absent. Timestamps are written as
// time.Time and must be returned as time.Time or RFC 3339 strings.
//
// # Errors
//
// Adapters wrap transport and driver failures with
// [constants.ErrRemoteUnavailable] and scope violations with
// [constants.ErrPermissionDenied], so callers can match them with
// errors.Is after the local rollback.
package store

import (
	"context"
	"errors"

	"github.com/tonehq/tonesync/pkg/constants"
	"github.com/tonehq/tonesync/pkg/models"
)

// Store is the remote document store.
type Store interface {
	// CreateDocument writes a new document with the given id.
	CreateDocument(ctx context.Context, collection, id string, fields models.Document) error
	// UpdateDocument merges fields into an existing document. A nil value
	// sets the field to null.
	UpdateDocument(ctx context.Context, collection, id string, fields models.Document) error
	// DeleteDocument removes a document. Deleting a missing document is
	// not an error.
	DeleteDocument(ctx context.Context, collection, id string) error
	// SubscribeQuery starts delivering full snapshots of q. The first
	// snapshot is delivered as soon as the current state is known, then
	// one per change. onError reports read-path failures; delivery may
	// continue afterwards.
	SubscribeQuery(ctx context.Context, q Query, onSnapshot func([]models.Document), onError func(error)) (Subscription, error)
}

// Getter reads single documents. Servers that front a Store for several
// users need it to check who owns a record before changing it.
type Getter interface {
	// GetDocument returns the stored document, or an error wrapping
	// [constants.ErrNotFound] when there is none.
	GetDocument(ctx context.Context, collection, id string) (models.Document, error)
}

// Query selects the documents of one owner in one collection.
type Query struct {
	Collection string
	OwnerID    string
	// OrderBy is the field snapshots are sorted by. Ties are broken by id.
	OrderBy string
}

// Subscription is a live query handle.
type Subscription interface {
	// Unsubscribe stops delivery. It is safe to call more than once.
	Unsubscribe()
}

// SubscriptionFunc adapts a function to Subscription. The function runs
// at most once.
func SubscriptionFunc(fn func()) Subscription {
	return &funcSubscription{fn: fn}
}

type funcSubscription struct {
	once onceFunc
	fn   func()
}

func (s *funcSubscription) Unsubscribe() {
	s.once.do(s.fn)
}

// Matches reports whether doc belongs to the result set of q.
func (q Query) Matches(collection string, doc models.Document) bool {
	if collection != q.Collection {
		return false
	}
	owner, _ := doc[models.FieldUserID].(string)
	return owner == q.OwnerID
}

// IsRemote reports whether err came from the store rather than from the
// caller.
func IsRemote(err error) bool {
	return errors.Is(err, constants.ErrRemoteUnavailable) || errors.Is(err, constants.ErrPermissionDenied)
}
