// Package identity supplies the user a session is scoped to.
//
// A [Gate] reports the signed-in user and notifies watchers on every
// sign-in and sign-out. Watchers are called once on registration with the
// current user (nil when signed out), so a watcher always sees the startup
// state.
package identity

import (
	"github.com/tonehq/tonesync/pkg/models"
	"github.com/tonehq/tonesync/pkg/observable"
)

type Gate interface {
	// Current returns the signed-in user or nil.
	Current() *models.User
	// Watch calls fn with the current user and then after every
	// transition, until cancel is called.
	Watch(fn func(*models.User)) (cancel func())
}

// UserID returns the id of the signed-in user or an empty string.
func UserID(g Gate) string {
	if g == nil {
		return ""
	}
	if u := g.Current(); u != nil {
		return u.ID
	}
	return ""
}

func sameUser(a, b *models.User) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}

// Manual is a gate driven by explicit SignIn and SignOut calls.
type Manual struct {
	cell *observable.Cell[*models.User]
}

var _ Gate = (*Manual)(nil)

func NewManual() *Manual {
	return &Manual{cell: observable.NewCell[*models.User](nil, sameUser)}
}

// SignIn makes u the current user. Signing in as the current user again
// does not notify watchers.
func (m *Manual) SignIn(u models.User) {
	m.cell.Set(&u)
}

func (m *Manual) SignOut() {
	m.cell.Set(nil)
}

func (m *Manual) Current() *models.User {
	u := m.cell.Get()
	if u == nil {
		return nil
	}
	cp := *u
	return &cp
}

func (m *Manual) Watch(fn func(*models.User)) (cancel func()) {
	cancel = m.cell.Subscribe(fn)
	fn(m.Current())
	return cancel
}
