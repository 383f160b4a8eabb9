package pgstore

import (
	"context"
	"sync"
	"time"

	"github.com/tonehq/tonesync/pkg/models"
	"github.com/tonehq/tonesync/pkg/store"
)

type fingerprint struct {
	Count       int64
	MaxRevision int64
}

func (s *Store) fingerprint(ctx context.Context, q store.Query) (fingerprint, error) {
	var fp fingerprint
	err := s.db.WithContext(ctx).Model(&Row{}).
		Select("COUNT(*) AS count, COALESCE(MAX(revision), 0) AS max_revision").
		Where("collection = ? AND owner_id = ?", q.Collection, q.OwnerID).
		Scan(&fp).Error
	return fp, wrapErr("poll "+q.Collection, err)
}

func (s *Store) load(ctx context.Context, q store.Query) ([]models.Document, error) {
	var rows []Row
	err := s.db.WithContext(ctx).
		Where("collection = ? AND owner_id = ?", q.Collection, q.OwnerID).
		Find(&rows).Error
	if err != nil {
		return nil, wrapErr("select "+q.Collection, err)
	}
	docs := make([]models.Document, 0, len(rows))
	for _, r := range rows {
		docs = append(docs, r.document())
	}
	store.SortDocuments(docs, q.OrderBy)
	return docs, nil
}

// SubscribeQuery reads the result set once before returning, then polls.
func (s *Store) SubscribeQuery(ctx context.Context, q store.Query, onSnapshot func([]models.Document), onError func(error)) (store.Subscription, error) {
	fp, err := s.fingerprint(ctx, q)
	if err != nil {
		return nil, err
	}
	docs, err := s.load(ctx, q)
	if err != nil {
		return nil, err
	}

	pctx, cancel := context.WithCancel(context.Background())
	p := &poller{
		store:      s,
		query:      q,
		last:       fp,
		onSnapshot: onSnapshot,
		onError:    onError,
		ctx:        pctx,
	}
	p.deliver(docs)
	go p.run()

	s.log.Debug("pgstore: polling", "collection", q.Collection, "owner", q.OwnerID, "interval", s.interval)
	return store.SubscriptionFunc(cancel), nil
}

type poller struct {
	store *Store
	query store.Query
	last  fingerprint
	ctx   context.Context

	// mu serializes callbacks.
	mu         sync.Mutex
	onSnapshot func([]models.Document)
	onError    func(error)
}

func (p *poller) run() {
	t := time.NewTicker(p.store.interval)
	defer t.Stop()
	for {
		select {
		case <-p.ctx.Done():
			return
		case <-t.C:
			p.poll()
		}
	}
}

func (p *poller) poll() {
	fp, err := p.store.fingerprint(p.ctx, p.query)
	if err != nil {
		p.fail(err)
		return
	}
	if fp == p.last {
		return
	}
	docs, err := p.store.load(p.ctx, p.query)
	if err != nil {
		p.fail(err)
		return
	}
	p.last = fp
	p.deliver(docs)
}

func (p *poller) deliver(docs []models.Document) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.ctx.Err() != nil {
		return
	}
	p.onSnapshot(docs)
}

func (p *poller) fail(err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.ctx.Err() != nil || p.onError == nil {
		return
	}
	p.store.log.Warn("pgstore: poll failed", "collection", p.query.Collection, "error", err)
	p.onError(err)
}
