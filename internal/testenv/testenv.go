// Package testenv provides helpers for tests that talk to real backends.
//
// Backend tests run only when the matching environment variable points at
// a server; otherwise they are skipped.
package testenv

import (
	"context"
	"fmt"
	"net/url"
	"os"
	"testing"

	surrealdb "github.com/surrealdb/surrealdb.go"
	"github.com/surrealdb/surrealdb.go/pkg/connection"
	"github.com/surrealdb/surrealdb.go/pkg/connection/gorillaws"
	"github.com/surrealdb/surrealdb.go/surrealcbor"
)

const (
	// EnvSurrealURL enables SurrealDB integration tests, e.g. ws://localhost:8000/rpc.
	EnvSurrealURL = "TONESYNC_SURREAL_URL"
	// EnvPostgresDSN enables PostgreSQL integration tests.
	EnvPostgresDSN = "TONESYNC_POSTGRES_DSN"

	SurrealNamespace = "tonesync_test"
	SurrealUser      = "root"
	SurrealPassword  = "root"
)

// SurrealURL returns the SurrealDB endpoint or skips the test.
func SurrealURL(t testing.TB) string {
	t.Helper()
	u := os.Getenv(EnvSurrealURL)
	if u == "" {
		t.Skipf("%s is not set", EnvSurrealURL)
	}
	return u
}

// PostgresDSN returns the PostgreSQL DSN or skips the test.
func PostgresDSN(t testing.TB) string {
	t.Helper()
	dsn := os.Getenv(EnvPostgresDSN)
	if dsn == "" {
		t.Skipf("%s is not set", EnvPostgresDSN)
	}
	return dsn
}

// ResetSurreal signs in as root and removes the given tables from
// database so each test starts empty.
func ResetSurreal(t testing.TB, database string, tables ...string) {
	t.Helper()
	if err := resetSurreal(context.Background(), SurrealURL(t), database, tables...); err != nil {
		t.Fatalf("reset surrealdb: %v", err)
	}
}

func resetSurreal(ctx context.Context, rawURL, database string, tables ...string) error {
	u, err := url.ParseRequestURI(rawURL)
	if err != nil {
		return err
	}
	conf := connection.NewConfig(u)
	codec := surrealcbor.New()
	conf.Marshaler = codec
	conf.Unmarshaler = codec

	db, err := surrealdb.FromConnection(ctx, gorillaws.New(conf))
	if err != nil {
		return fmt.Errorf("failed to connect to SurrealDB: %w", err)
	}
	defer db.Close(ctx)

	if _, err = db.SignIn(ctx, map[string]any{"user": SurrealUser, "pass": SurrealPassword}); err != nil {
		return fmt.Errorf("failed to sign in: %w", err)
	}
	if err = db.Use(ctx, SurrealNamespace, database); err != nil {
		return fmt.Errorf("failed to use database: %w", err)
	}
	// REMOVE TABLE does not accept a parameter for the table name.
	for _, table := range tables {
		if _, err = surrealdb.Query[[]any](ctx, db, "REMOVE TABLE IF EXISTS "+table, nil); err != nil {
			return fmt.Errorf("failed to remove table %s: %w", table, err)
		}
	}
	return nil
}
