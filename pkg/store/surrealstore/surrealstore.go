// Package surrealstore implements store.Store on SurrealDB.
//
// Documents live in one table per collection, keyed by record id
// `<collection>:⟨id⟩`. Subscriptions are LIVE SELECT queries filtered by
// owner: the current result set is read once with a plain SELECT, then
// every live notification is folded into it and the full set is pushed to
// the subscriber. KILL ends the live query on Unsubscribe.
//
// The connection uses gorillaws with the surrealcbor codec so that
// time.Time values round-trip as native SurrealDB datetimes.
//
// Table permissions are the real scope enforcement. [Store.Migrate]
// defines tables that only let a record user see and change rows whose
// userId matches the signed-in record.
package surrealstore

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"github.com/surrealdb/surrealdb.go"
	"github.com/surrealdb/surrealdb.go/pkg/connection"
	"github.com/surrealdb/surrealdb.go/pkg/connection/gorillaws"
	sdbmodels "github.com/surrealdb/surrealdb.go/pkg/models"
	"github.com/surrealdb/surrealdb.go/surrealcbor"

	"github.com/tonehq/tonesync/pkg/constants"
	"github.com/tonehq/tonesync/pkg/logger"
	"github.com/tonehq/tonesync/pkg/models"
	"github.com/tonehq/tonesync/pkg/store"
)

type Config struct {
	// URL is the WebSocket endpoint, e.g. ws://localhost:8000/rpc.
	URL       string
	Namespace string
	Database  string
	// Username and Password sign in as a system user when set. Leave them
	// empty when users sign in through a Gate.
	Username string
	Password string
	Logger   logger.Logger
}

type Store struct {
	db  *surrealdb.DB
	cfg Config
	log logger.Logger
}

var (
	_ store.Store  = (*Store)(nil)
	_ store.Getter = (*Store)(nil)
)

// Open connects to SurrealDB and selects the namespace and database.
func Open(ctx context.Context, cfg Config) (*Store, error) {
	u, err := url.Parse(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse URL: %w", err)
	}
	log := cfg.Logger
	if log == nil {
		log = logger.Nop()
	}

	db, err := surrealdb.FromConnection(ctx, newConnection(u, log))
	if err != nil {
		return nil, fmt.Errorf("%w: connecting to %s: %v", constants.ErrRemoteUnavailable, cfg.URL, err)
	}

	if cfg.Username != "" && cfg.Password != "" {
		if _, err := db.SignIn(ctx, map[string]any{
			"user": cfg.Username,
			"pass": cfg.Password,
		}); err != nil {
			_ = db.Close(ctx)
			return nil, fmt.Errorf("%w: signing in as %s: %v", constants.ErrPermissionDenied, cfg.Username, err)
		}
	}

	if err := db.Use(ctx, cfg.Namespace, cfg.Database); err != nil {
		_ = db.Close(ctx)
		return nil, fmt.Errorf("%w: use %s/%s: %v", constants.ErrRemoteUnavailable, cfg.Namespace, cfg.Database, err)
	}

	log.Info("surrealstore: connected", "url", cfg.URL, "namespace", cfg.Namespace, "database", cfg.Database)
	return &Store{db: db, cfg: cfg, log: log}, nil
}

// newConnection builds the WebSocket connection for u. The SDK writes its
// own log lines to log instead of stdout.
func newConnection(u *url.URL, log logger.Logger) *gorillaws.Connection {
	conf := connection.NewConfig(u)
	codec := surrealcbor.New()
	conf.Marshaler = codec
	conf.Unmarshaler = codec
	return gorillaws.New(conf).Logger(log)
}

// DB exposes the underlying connection.
func (s *Store) DB() *surrealdb.DB {
	return s.db
}

func (s *Store) Close() error {
	return s.db.Close(context.Background())
}

var collections = []string{
	constants.CollectionWorkspaces,
	constants.CollectionProjects,
	constants.CollectionLists,
	constants.CollectionTasks,
	constants.CollectionUsers,
}

// Migrate defines the owner-scoped tables. Record users may only touch
// rows whose userId is the id of their own record.
func (s *Store) Migrate(ctx context.Context) error {
	var b strings.Builder
	for _, c := range collections {
		fmt.Fprintf(&b, "DEFINE TABLE IF NOT EXISTS %s SCHEMALESS PERMISSIONS FOR select, create, update, delete WHERE userId = record::id($auth.id);\n", c)
		fmt.Fprintf(&b, "DEFINE INDEX IF NOT EXISTS %s_owner ON %s FIELDS userId;\n", c, c)
	}
	if _, err := surrealdb.Query[any](ctx, s.db, b.String(), nil); err != nil {
		return wrapErr("migrate", err)
	}
	return nil
}

func (s *Store) CreateDocument(ctx context.Context, collection, id string, fields models.Document) error {
	content := toSurreal(fields)
	delete(content, models.FieldID)
	if _, err := surrealdb.Create[map[string]any](ctx, s.db, sdbmodels.NewRecordID(collection, id), content); err != nil {
		return wrapErr("create "+collection, err)
	}
	return nil
}

func (s *Store) UpdateDocument(ctx context.Context, collection, id string, fields models.Document) error {
	content := toSurreal(fields)
	delete(content, models.FieldID)
	res, err := surrealdb.Query[[]map[string]any](ctx, s.db, "UPDATE ONLY $id MERGE $fields RETURN AFTER", map[string]any{
		"id":     sdbmodels.NewRecordID(collection, id),
		"fields": content,
	})
	if err != nil {
		return wrapErr("update "+collection, err)
	}
	if err := statusErr(res); err != nil {
		return wrapErr("update "+collection, err)
	}
	return nil
}

func (s *Store) GetDocument(ctx context.Context, collection, id string) (models.Document, error) {
	res, err := surrealdb.Query[[]map[string]any](ctx, s.db, "SELECT * FROM $id", map[string]any{
		"id": sdbmodels.NewRecordID(collection, id),
	})
	if err != nil {
		return nil, wrapErr("get "+collection, err)
	}
	if err := statusErr(res); err != nil {
		return nil, wrapErr("get "+collection, err)
	}
	if res == nil || len(*res) == 0 || len((*res)[0].Result) == 0 {
		return nil, fmt.Errorf("%w: %s/%s", constants.ErrNotFound, collection, id)
	}
	return fromSurreal((*res)[0].Result[0]), nil
}

func (s *Store) DeleteDocument(ctx context.Context, collection, id string) error {
	res, err := surrealdb.Query[any](ctx, s.db, "DELETE $id", map[string]any{
		"id": sdbmodels.NewRecordID(collection, id),
	})
	if err != nil {
		return wrapErr("delete "+collection, err)
	}
	if err := statusErr(res); err != nil {
		return wrapErr("delete "+collection, err)
	}
	return nil
}

func statusErr[T any](res *[]surrealdb.QueryResult[T]) error {
	if res == nil {
		return nil
	}
	for _, r := range *res {
		if r.Status != "" && r.Status != "OK" {
			return fmt.Errorf("statement failed with status %s: %v", r.Status, r.Result)
		}
	}
	return nil
}

// wrapErr maps SurrealDB failures onto the store error taxonomy.
func wrapErr(op string, err error) error {
	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "permission"),
		strings.Contains(msg, "not allowed"),
		strings.Contains(msg, "iam error"),
		strings.Contains(msg, "authentication"):
		return fmt.Errorf("%w: %s: %v", constants.ErrPermissionDenied, op, err)
	case strings.Contains(msg, "not found"),
		strings.Contains(msg, "does not exist"):
		return fmt.Errorf("%w: %s: %v", constants.ErrNotFound, op, err)
	default:
		return fmt.Errorf("%w: %s: %v", constants.ErrRemoteUnavailable, op, err)
	}
}
