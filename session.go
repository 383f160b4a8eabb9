package tonesync

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/tonehq/tonesync/pkg/collection"
	"github.com/tonehq/tonesync/pkg/constants"
	"github.com/tonehq/tonesync/pkg/hierarchy"
	"github.com/tonehq/tonesync/pkg/identity"
	"github.com/tonehq/tonesync/pkg/lifecycle"
	"github.com/tonehq/tonesync/pkg/logger"
	"github.com/tonehq/tonesync/pkg/models"
	"github.com/tonehq/tonesync/pkg/store"
)

type config struct {
	log            logger.Logger
	now            func() time.Time
	newID          func() string
	persistTimeout time.Duration
}

type Option func(*config)

func WithLogger(l logger.Logger) Option {
	return func(c *config) {
		c.log = l
	}
}

// WithClock sets the source of record timestamps.
func WithClock(now func() time.Time) Option {
	return func(c *config) {
		c.now = now
	}
}

// WithIDGenerator sets the generator of new record ids.
func WithIDGenerator(newID func() string) Option {
	return func(c *config) {
		c.newID = newID
	}
}

// WithPersistTimeout bounds remote persists whose context has no deadline.
func WithPersistTimeout(d time.Duration) Option {
	return func(c *config) {
		c.persistTimeout = d
	}
}

// Session is the context object of one signed-in client.
type Session struct {
	store store.Store
	gate  identity.Gate
	log   logger.Logger
	now   func() time.Time

	workspaces *collection.Collection[models.Workspace]
	projects   *collection.Collection[models.Project]
	lists      *collection.Collection[models.List]
	tasks      *collection.Collection[models.Task]

	hierarchy *hierarchy.Coordinator
	lifecycle *lifecycle.Manager

	closeOnce sync.Once
}

// New wires a session to st and gate. Nothing is subscribed until Start.
func New(st store.Store, gate identity.Gate, opts ...Option) (*Session, error) {
	if st == nil {
		return nil, constants.ErrNoStore
	}
	if gate == nil {
		return nil, constants.ErrNoIdentityGate
	}
	cfg := config{
		log:            logger.Nop(),
		now:            time.Now,
		persistTimeout: constants.DefaultPersistTimeout,
	}
	for _, o := range opts {
		o(&cfg)
	}
	if cfg.log == nil {
		cfg.log = logger.Nop()
	}
	if cfg.now == nil {
		cfg.now = time.Now
	}

	copts := []collection.Option{
		collection.WithLogger(cfg.log),
		collection.WithClock(cfg.now),
		collection.WithIDGenerator(cfg.newID),
		collection.WithOwner(func() string { return identity.UserID(gate) }),
		collection.WithPersistTimeout(cfg.persistTimeout),
	}

	s := &Session{store: st, gate: gate, log: cfg.log, now: cfg.now}
	var err error
	if s.workspaces, err = collection.New(constants.CollectionWorkspaces, st, models.DecodeWorkspace, copts...); err != nil {
		return nil, fmt.Errorf("workspaces: %w", err)
	}
	if s.projects, err = collection.New(constants.CollectionProjects, st, models.DecodeProject, copts...); err != nil {
		return nil, fmt.Errorf("projects: %w", err)
	}
	if s.lists, err = collection.New(constants.CollectionLists, st, models.DecodeList, copts...); err != nil {
		return nil, fmt.Errorf("lists: %w", err)
	}
	if s.tasks, err = collection.New(constants.CollectionTasks, st, models.DecodeTask, copts...); err != nil {
		return nil, fmt.Errorf("tasks: %w", err)
	}

	s.hierarchy = hierarchy.New(s.workspaces, s.projects, s.lists, s.tasks, cfg.log)
	s.lifecycle = lifecycle.New(gate, []lifecycle.Subscriber{
		s.workspaces, s.projects, s.lists, s.tasks,
	}, cfg.log)
	return s, nil
}

// Start subscribes the collections for the current user and keeps
// following the identity gate until Close.
func (s *Session) Start(ctx context.Context) error {
	return s.lifecycle.Start(ctx)
}

// Close unsubscribes and clears every collection. Persists already in
// flight still complete; their rollbacks are dropped.
func (s *Session) Close() {
	s.closeOnce.Do(func() {
		s.lifecycle.Close()
		s.hierarchy.Close()
	})
}

func (s *Session) Workspaces() *collection.Collection[models.Workspace] { return s.workspaces }
func (s *Session) Projects() *collection.Collection[models.Project]     { return s.projects }
func (s *Session) Lists() *collection.Collection[models.List]           { return s.lists }
func (s *Session) Tasks() *collection.Collection[models.Task]           { return s.tasks }
func (s *Session) Hierarchy() *hierarchy.Coordinator                    { return s.hierarchy }

// User returns the signed-in user or nil.
func (s *Session) User() *models.User {
	return s.gate.Current()
}

// Err returns the subscribe error of the latest identity transition.
func (s *Session) Err() error {
	return s.lifecycle.Err()
}

// ToggleTask flips the completed flag of a task. It reports false for an
// unknown id.
func (s *Session) ToggleTask(ctx context.Context, id string) (bool, error) {
	task, ok := s.tasks.Get(id)
	if !ok {
		return false, nil
	}
	completed := !task.Completed
	return s.tasks.Update(ctx, id, models.TaskPatch{Completed: &completed})
}
