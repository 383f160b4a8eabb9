// Package tonesync mirrors a user's workspaces, projects, lists and tasks
// from a remote real-time document store into in-memory collections that
// are mutated optimistically.
//
// # Sessions
//
// A [Session] owns everything a signed-in client needs: one synchronized
// collection per entity type, the hierarchy coordinator that keeps the
// active workspace, project and list cursors, and the lifecycle manager
// that subscribes the collections for the current user. Sessions are
// explicit values; tests create as many isolated sessions as they need.
//
//	st := memstore.New()
//	gate := identity.NewManual()
//	s, err := tonesync.New(st, gate)
//	if err != nil {
//		return err
//	}
//	defer s.Close()
//	if err := s.Start(ctx); err != nil {
//		return err
//	}
//	gate.SignIn(models.User{ID: "alice"})
//
// # Stores
//
// The remote store is anything implementing [store.Store]. The
// [github.com/tonehq/tonesync/pkg/store] package lists the bundled
// backends: SurrealDB, PostgreSQL, a local SQLite fallback, a WebSocket
// relay and an in-memory store for tests.
//
// # Mutations and rollback
//
// See [github.com/tonehq/tonesync/pkg/collection] for the optimistic
// mutation rules, including the known same-record race and the
// wholesale-replace behavior of snapshots.
//
// # Deleting parents
//
// Deleting a workspace, project or list does not delete its children.
// They stay in the store and are no longer reachable through the
// hierarchy cursors.
package tonesync
