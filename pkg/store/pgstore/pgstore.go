// Package pgstore implements store.Store on PostgreSQL through GORM.
//
// All collections share one table of JSONB documents keyed by
// (collection, id). PostgreSQL has no live queries, so subscriptions poll:
// every interval the store reads the row count and highest revision of
// the owner's rows and re-reads the full result set only when that
// fingerprint changed.
package pgstore

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	gormlogger "gorm.io/gorm/logger"

	"github.com/tonehq/tonesync/pkg/constants"
	"github.com/tonehq/tonesync/pkg/logger"
	"github.com/tonehq/tonesync/pkg/models"
	"github.com/tonehq/tonesync/pkg/store"
)

type Store struct {
	db       *gorm.DB
	log      logger.Logger
	interval time.Duration
	now      func() time.Time
	lastRev  atomic.Int64
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

// WithPollInterval sets how often subscriptions check for changes.
func WithPollInterval(d time.Duration) Option {
	return func(s *Store) {
		if d > 0 {
			s.interval = d
		}
	}
}

func WithClock(now func() time.Time) Option {
	return func(s *Store) {
		s.now = now
	}
}

// Open connects to dsn.
func Open(dsn string, opts ...Option) (*Store, error) {
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("%w: failed to connect to database: %v", constants.ErrRemoteUnavailable, err)
	}
	return New(db, opts...), nil
}

// New wraps an open GORM connection.
func New(db *gorm.DB, opts ...Option) *Store {
	s := &Store{
		db:       db,
		log:      logger.Nop(),
		interval: constants.DefaultPollInterval,
		now:      time.Now,
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Migrate creates the document table and its indexes.
func (s *Store) Migrate(ctx context.Context) error {
	return s.db.WithContext(ctx).AutoMigrate(&Row{})
}

func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// revision returns a strictly increasing value derived from the clock.
func (s *Store) revision() int64 {
	for {
		last := s.lastRev.Load()
		next := s.now().UnixNano()
		if next <= last {
			next = last + 1
		}
		if s.lastRev.CompareAndSwap(last, next) {
			return next
		}
	}
}

func (s *Store) CreateDocument(ctx context.Context, collection, id string, fields models.Document) error {
	row := newRow(collection, id, fields, s.revision(), s.now())
	err := s.db.WithContext(ctx).
		Clauses(clause.OnConflict{UpdateAll: true}).
		Create(&row).Error
	return wrapErr("create "+collection, err)
}

func (s *Store) UpdateDocument(ctx context.Context, collection, id string, fields models.Document) error {
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var row Row
		err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			First(&row, "collection = ? AND id = ?", collection, id).Error
		if err != nil {
			return err
		}
		merged := store.Merge(row.document(), fields)
		next := newRow(collection, id, merged, s.revision(), s.now())
		return tx.Save(&next).Error
	})
	return wrapErr("update "+collection, err)
}

func (s *Store) GetDocument(ctx context.Context, collection, id string) (models.Document, error) {
	var row Row
	err := s.db.WithContext(ctx).
		First(&row, "collection = ? AND id = ?", collection, id).Error
	if err != nil {
		return nil, wrapErr("get "+collection+"/"+id, err)
	}
	return row.document(), nil
}

func (s *Store) DeleteDocument(ctx context.Context, collection, id string) error {
	err := s.db.WithContext(ctx).
		Delete(&Row{}, "collection = ? AND id = ?", collection, id).Error
	return wrapErr("delete "+collection, err)
}

func wrapErr(op string, err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, gorm.ErrRecordNotFound):
		return fmt.Errorf("%w: %s", constants.ErrNotFound, op)
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return fmt.Errorf("%w: %s: %w", constants.ErrRemoteUnavailable, op, err)
	default:
		return fmt.Errorf("%w: %s: %v", constants.ErrRemoteUnavailable, op, err)
	}
}
