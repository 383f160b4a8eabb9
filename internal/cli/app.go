package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/rs/zerolog"

	"github.com/tonehq/tonesync"
	"github.com/tonehq/tonesync/pkg/constants"
	"github.com/tonehq/tonesync/pkg/identity"
	"github.com/tonehq/tonesync/pkg/logger"
	"github.com/tonehq/tonesync/pkg/models"
	"github.com/tonehq/tonesync/pkg/store"
	"github.com/tonehq/tonesync/pkg/store/localstore"
	"github.com/tonehq/tonesync/pkg/store/memstore"
	"github.com/tonehq/tonesync/pkg/store/pgstore"
	"github.com/tonehq/tonesync/pkg/store/surrealstore"
	"github.com/tonehq/tonesync/pkg/store/wsstore"
)

// App owns the store, identity and logger of one CLI invocation.
type App struct {
	cfg   tonesync.Config
	log   logger.Logger
	out   io.Writer
	store store.Store
	gate  identity.Gate

	surreal  *surrealstore.Store
	postgres *pgstore.Store

	closers []func() error
}

// NewLogger builds the zerolog-backed logger for level, writing to w.
func NewLogger(level string, w io.Writer) (logger.Logger, error) {
	lvl, err := zerolog.ParseLevel(strings.ToLower(level))
	if err != nil {
		return nil, fmt.Errorf("log level: %w", err)
	}
	data, err := logger.New().FromBuffer(w).WithLevel(lvl).Make()
	if err != nil {
		return nil, err
	}
	return data.Leveled(), nil
}

// Open connects the configured backend and signs in.
func Open(ctx context.Context, cfg tonesync.Config, log logger.Logger, out io.Writer) (*App, error) {
	a := &App{cfg: cfg, log: log, out: out}
	if err := a.open(ctx); err != nil {
		a.Close()
		return nil, err
	}
	return a, nil
}

func (a *App) open(ctx context.Context) error {
	switch a.cfg.Backend {
	case tonesync.BackendMemory:
		a.store = memstore.New(memstore.WithLogger(a.log))
		return a.signInAs(a.cfg.User)

	case tonesync.BackendLocal:
		st, err := localstore.Open(ctx, a.cfg.LocalPath, localstore.WithLogger(a.log))
		if err != nil {
			return err
		}
		a.store = st
		a.closers = append(a.closers, st.Close)
		return a.signInAs(a.cfg.User)

	case tonesync.BackendPostgres:
		st, err := pgstore.Open(a.cfg.PostgresDSN,
			pgstore.WithLogger(a.log),
			pgstore.WithPollInterval(a.cfg.PollInterval))
		if err != nil {
			return err
		}
		a.store, a.postgres = st, st
		a.closers = append(a.closers, st.Close)
		return a.signInAs(a.cfg.User)

	case tonesync.BackendSurreal:
		return a.openSurreal(ctx)

	case tonesync.BackendRelay:
		opts := []wsstore.Option{wsstore.WithLogger(a.log)}
		if a.cfg.RelayToken != "" {
			opts = append(opts, wsstore.WithToken(a.cfg.RelayToken))
		}
		st, err := wsstore.Dial(ctx, a.cfg.RelayURL, opts...)
		if err != nil {
			return err
		}
		a.store = st
		a.closers = append(a.closers, st.Close)
		user := a.cfg.User
		if id := st.UserID(); id != "" {
			user = id
		}
		return a.signInAs(user)

	default:
		return fmt.Errorf("unknown backend %q", a.cfg.Backend)
	}
}

func (a *App) openSurreal(ctx context.Context) error {
	conf := surrealstore.Config{
		URL:       a.cfg.SurrealURL,
		Namespace: a.cfg.SurrealNS,
		Database:  a.cfg.SurrealDB,
		Logger:    a.log,
	}
	recordAccess := a.cfg.SurrealAccess != ""
	if !recordAccess {
		conf.Username = a.cfg.SurrealUsername
		conf.Password = a.cfg.SurrealPassword
	}
	st, err := surrealstore.Open(ctx, conf)
	if err != nil {
		return err
	}
	a.store, a.surreal = st, st
	a.closers = append(a.closers, st.Close)

	if !recordAccess {
		return a.signInAs(a.cfg.User)
	}
	gate := surrealstore.NewGate(st, a.cfg.SurrealAccess)
	if _, err := gate.SignIn(ctx, a.cfg.SurrealUsername, a.cfg.SurrealPassword); err != nil {
		return err
	}
	a.gate = gate
	return nil
}

func (a *App) signInAs(id string) error {
	if id == "" {
		return fmt.Errorf("%w: set -user or %s", constants.ErrNotAuthenticated, tonesync.EnvUser)
	}
	gate := identity.NewManual()
	gate.SignIn(models.User{ID: id, DisplayName: id})
	a.gate = gate
	return nil
}

// Session starts a session for the signed-in user.
func (a *App) Session(ctx context.Context) (*tonesync.Session, error) {
	s, err := tonesync.New(a.store, a.gate, tonesync.WithLogger(a.log))
	if err != nil {
		return nil, err
	}
	if err := s.Start(ctx); err != nil {
		s.Close()
		return nil, err
	}
	return s, nil
}

// Migrate prepares the backend schema. Backends without one succeed.
func (a *App) Migrate(ctx context.Context) error {
	switch {
	case a.surreal != nil:
		return a.surreal.Migrate(ctx)
	case a.postgres != nil:
		return a.postgres.Migrate(ctx)
	default:
		fmt.Fprintf(a.out, "backend %s needs no migration\n", a.cfg.Backend)
		return nil
	}
}

func (a *App) Close() {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	if err := errors.Join(errs...); err != nil {
		a.log.Warn("cli: close failed", "error", err)
	}
}
