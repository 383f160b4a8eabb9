package surrealstore

import (
	"context"
	"fmt"

	"github.com/surrealdb/surrealdb.go"

	"github.com/tonehq/tonesync/pkg/constants"
	"github.com/tonehq/tonesync/pkg/identity"
	"github.com/tonehq/tonesync/pkg/models"
)

// Gate signs users in through a SurrealDB record access method and
// reports them as the session identity. The user id is the key of the
// $auth record, which is what table permissions compare userId against.
type Gate struct {
	*identity.Manual
	store  *Store
	access string
}

var _ identity.Gate = (*Gate)(nil)

// NewGate returns a signed-out gate that authenticates with the given
// record access method, e.g. "user".
func NewGate(s *Store, access string) *Gate {
	return &Gate{Manual: identity.NewManual(), store: s, access: access}
}

// SignIn authenticates the credentials and publishes the user on success.
// It returns the session token.
func (g *Gate) SignIn(ctx context.Context, username, password string) (string, error) {
	token, err := g.store.db.SignIn(ctx, map[string]any{
		"NS":   g.store.cfg.Namespace,
		"DB":   g.store.cfg.Database,
		"AC":   g.access,
		"user": username,
		"pass": password,
	})
	if err != nil {
		return "", fmt.Errorf("%w: %v", constants.ErrNotAuthenticated, err)
	}
	u, err := g.whoami(ctx)
	if err != nil {
		return "", err
	}
	g.Manual.SignIn(u)
	return token, nil
}

// Resume authenticates with a token from an earlier SignIn.
func (g *Gate) Resume(ctx context.Context, token string) error {
	if err := g.store.db.Authenticate(ctx, token); err != nil {
		return fmt.Errorf("%w: %v", constants.ErrNotAuthenticated, err)
	}
	u, err := g.whoami(ctx)
	if err != nil {
		return err
	}
	g.Manual.SignIn(u)
	return nil
}

// SignOut invalidates the connection's session and publishes the
// signed-out state even when invalidation fails.
func (g *Gate) SignOut(ctx context.Context) error {
	err := g.store.db.Invalidate(ctx)
	g.Manual.SignOut()
	if err != nil {
		return wrapErr("invalidate", err)
	}
	return nil
}

func (g *Gate) whoami(ctx context.Context) (models.User, error) {
	res, err := surrealdb.Query[[]map[string]any](ctx, g.store.db, "SELECT * FROM $auth", nil)
	if err != nil {
		return models.User{}, wrapErr("select $auth", err)
	}
	if res == nil || len(*res) == 0 || len((*res)[0].Result) == 0 {
		return models.User{}, fmt.Errorf("%w: no $auth record", constants.ErrNotAuthenticated)
	}
	return userFromRow(fromSurreal((*res)[0].Result[0]))
}

func userFromRow(doc models.Document) (models.User, error) {
	id := doc.ID()
	if id == "" {
		return models.User{}, fmt.Errorf("%w: $auth record has no id", constants.ErrNotAuthenticated)
	}
	u := models.User{ID: id}
	u.Email, _ = doc["email"].(string)
	u.DisplayName, _ = doc["displayName"].(string)
	u.PhotoURL, _ = doc["photoURL"].(string)
	return u, nil
}
