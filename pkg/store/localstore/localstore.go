// Package localstore is the local-only fallback store used when no remote
// backend is configured.
//
// Every collection is kept as one JSON array under its own key in a
// SQLite key/value table. A key is read once when the store opens and
// rewritten in full on every mutation, before the in-memory copy changes
// and subscribers are notified. Queries and delivery are those of
// memstore.
package localstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"sync"

	_ "modernc.org/sqlite"

	"github.com/tonehq/tonesync/pkg/constants"
	"github.com/tonehq/tonesync/pkg/logger"
	"github.com/tonehq/tonesync/pkg/models"
	"github.com/tonehq/tonesync/pkg/store"
	"github.com/tonehq/tonesync/pkg/store/memstore"
)

const schema = `CREATE TABLE IF NOT EXISTS kv (
	key   TEXT PRIMARY KEY,
	value TEXT NOT NULL
)`

// KeyPrefix namespaces collection keys.
const KeyPrefix = "tonesync:"

type Store struct {
	db  *sql.DB
	mem *memstore.Store
	log logger.Logger

	// mu serializes mutations so the persisted array and memory agree.
	mu sync.Mutex
}

var (
	_ store.Store  = (*Store)(nil)
	_ store.Getter = (*Store)(nil)
)

type Option func(*Store)

func WithLogger(l logger.Logger) Option {
	return func(s *Store) {
		s.log = l
	}
}

// Open opens or creates the database at path and loads every collection.
// Use ":memory:" for a throwaway store.
func Open(ctx context.Context, path string, opts ...Option) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	// A single connection keeps ":memory:" databases alive across calls.
	db.SetMaxOpenConns(1)

	s := &Store{db: db, log: logger.Nop()}
	for _, o := range opts {
		o(s)
	}
	s.mem = memstore.New(memstore.WithLogger(s.log))

	if _, err := db.ExecContext(ctx, schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("create schema: %w", err)
	}
	if err := s.load(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) load(ctx context.Context) error {
	rows, err := s.db.QueryContext(ctx, `SELECT key, value FROM kv WHERE key LIKE ?`, KeyPrefix+"%")
	if err != nil {
		return fmt.Errorf("load: %w", err)
	}
	defer rows.Close()

	total := 0
	for rows.Next() {
		var key, value string
		if err := rows.Scan(&key, &value); err != nil {
			return fmt.Errorf("load: %w", err)
		}
		var docs []models.Document
		if err := json.Unmarshal([]byte(value), &docs); err != nil {
			s.log.Warn("localstore: skipping unreadable collection", "key", key, "error", err)
			continue
		}
		collection := key[len(KeyPrefix):]
		for _, d := range docs {
			if d.ID() == "" {
				continue
			}
			s.mem.Put(collection, d)
			total++
		}
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("load: %w", err)
	}
	s.log.Debug("localstore: loaded", "documents", total)
	return nil
}

func (s *Store) save(ctx context.Context, collection string, docs []models.Document) error {
	if docs == nil {
		docs = []models.Document{}
	}
	raw, err := json.Marshal(docs)
	if err != nil {
		return fmt.Errorf("%w: encode %s: %v", constants.ErrInvalidDocument, collection, err)
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO kv (key, value) VALUES (?, ?) ON CONFLICT(key) DO UPDATE SET value = excluded.value`,
		KeyPrefix+collection, string(raw))
	if err != nil {
		return fmt.Errorf("%w: write %s: %v", constants.ErrRemoteUnavailable, collection, err)
	}
	return nil
}

// replace persists collection with doc in place of id (or without id when
// doc is nil) and then applies the same change in memory.
func (s *Store) replace(ctx context.Context, collection, id string, doc models.Document) error {
	current := s.mem.Documents(collection)
	next := make([]models.Document, 0, len(current)+1)
	for _, d := range current {
		if d.ID() != id {
			next = append(next, d)
		}
	}
	if doc != nil {
		next = append(next, doc)
	}
	store.SortDocuments(next, models.FieldOrder)

	if err := s.save(ctx, collection, next); err != nil {
		return err
	}
	if doc != nil {
		s.mem.Put(collection, doc)
	} else {
		s.mem.Remove(collection, id)
	}
	return nil
}

func (s *Store) CreateDocument(ctx context.Context, collection, id string, fields models.Document) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	doc := fields.Clone()
	doc[models.FieldID] = id
	return s.replace(ctx, collection, id, doc)
}

func (s *Store) UpdateDocument(ctx context.Context, collection, id string, fields models.Document) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cur, ok := s.mem.Get(collection, id)
	if !ok {
		return fmt.Errorf("%w: %s/%s", constants.ErrNotFound, collection, id)
	}
	return s.replace(ctx, collection, id, store.Merge(cur, fields))
}

func (s *Store) DeleteDocument(ctx context.Context, collection, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.mem.Get(collection, id); !ok {
		return nil
	}
	return s.replace(ctx, collection, id, nil)
}

func (s *Store) GetDocument(ctx context.Context, collection, id string) (models.Document, error) {
	return s.mem.GetDocument(ctx, collection, id)
}

// SubscribeQuery delivers snapshots synchronously on the writing goroutine.
// Callbacks must not call back into the store.
func (s *Store) SubscribeQuery(ctx context.Context, q store.Query, onSnapshot func([]models.Document), onError func(error)) (store.Subscription, error) {
	return s.mem.SubscribeQuery(ctx, q, onSnapshot, onError)
}
