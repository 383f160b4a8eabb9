package collection

import (
	"context"

	"github.com/tonehq/tonesync/pkg/models"
	"github.com/tonehq/tonesync/pkg/store"
)

// Subscribe opens the live subscription scoped to scopeID. It does nothing
// when a subscription is already live or being opened.
func (c *Collection[T]) Subscribe(ctx context.Context, scopeID string) error {
	c.mu.Lock()
	if c.sub != nil || c.subscribing {
		c.mu.Unlock()
		return nil
	}
	c.subscribing = true
	c.subToken++
	token := c.subToken
	c.scope = scopeID
	c.mu.Unlock()

	q := store.Query{
		Collection: c.name,
		OwnerID:    scopeID,
		OrderBy:    models.FieldOrder,
	}
	sub, err := c.store.SubscribeQuery(ctx, q,
		func(docs []models.Document) { c.onSnapshot(token, docs) },
		func(err error) { c.onError(token, err) },
	)

	c.mu.Lock()
	if token != c.subToken {
		// Unsubscribe ran while the query was being opened.
		c.mu.Unlock()
		if sub != nil {
			sub.Unsubscribe()
		}
		return nil
	}
	c.subscribing = false
	if err != nil {
		c.scope = ""
		c.mu.Unlock()
		c.opts.log.Error("collection: subscribe failed", "collection", c.name, "scope", scopeID, "error", err)
		return err
	}
	c.sub = sub
	c.mu.Unlock()

	c.opts.log.Debug("collection: subscribed", "collection", c.name, "scope", scopeID)
	return nil
}

// Unsubscribe releases the live subscription. It is safe to call more
// than once and does not touch the mapping.
func (c *Collection[T]) Unsubscribe() {
	c.mu.Lock()
	sub := c.sub
	wasLive := sub != nil || c.subscribing
	c.sub = nil
	c.subscribing = false
	c.subToken++
	c.scope = ""
	c.mu.Unlock()

	// the store may be delivering a snapshot that waits on c.mu, so the
	// handle is released without holding it
	if sub != nil {
		sub.Unsubscribe()
	}
	if wasLive {
		c.opts.log.Debug("collection: unsubscribed", "collection", c.name)
	}
}

// Subscribed reports whether a subscription is live or being opened.
func (c *Collection[T]) Subscribed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.sub != nil || c.subscribing
}

// Scope returns the user id of the live subscription.
func (c *Collection[T]) Scope() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.scope
}

func (c *Collection[T]) onSnapshot(token uint64, docs []models.Document) {
	c.mu.Lock()
	scope := c.scope
	c.mu.Unlock()

	items := make(map[string]T, len(docs))
	for _, doc := range docs {
		rec, err := c.decode(doc)
		if err != nil {
			c.opts.log.Warn("collection: skipping undecodable document",
				"collection", c.name, "id", doc.ID(), "error", err)
			continue
		}
		// The store query is what scopes the data; this only guards
		// against a misbehaving store.
		if rec.GetOwnerID() != scope {
			c.opts.log.Warn("collection: dropping document outside scope",
				"collection", c.name, "id", rec.GetID(), "owner", rec.GetOwnerID())
			continue
		}
		items[rec.GetID()] = rec
	}

	c.mu.Lock()
	if token != c.subToken {
		c.mu.Unlock()
		return
	}
	c.items = items
	c.snaps++
	c.mu.Unlock()

	c.opts.log.Debug("collection: snapshot", "collection", c.name, "count", len(items))
	c.notify()
}

func (c *Collection[T]) onError(token uint64, err error) {
	c.mu.Lock()
	live := token == c.subToken
	c.mu.Unlock()
	if !live {
		return
	}
	c.opts.log.Error("collection: subscription error, keeping last snapshot",
		"collection", c.name, "error", err)
}
