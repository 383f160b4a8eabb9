// Package hierarchy keeps the active workspace, project and list cursors
// consistent with the collections they select from.
//
// The workspace level has no parent and is always active. Every other
// level follows its parent: when the parent cursor moves, or the children
// visible under it change, the level falls back to its first child by
// (order, id) unless an explicit selection is still valid. Tasks have no
// cursor; they are listed in full for the active list.
//
// The coordinator only reads collections. Cursor changes are published to
// OnCursorChange listeners after the state has been updated; listeners
// may call back into the coordinator.
package hierarchy

import (
	"fmt"
	"sync"

	"github.com/tonehq/tonesync/pkg/constants"
	"github.com/tonehq/tonesync/pkg/logger"
	"github.com/tonehq/tonesync/pkg/models"
	"github.com/tonehq/tonesync/pkg/observable"
)

// Source is the read side of a synchronized collection.
type Source[T models.Record] interface {
	All() []T
	Get(id string) (T, bool)
	Filter(keep func(T) bool) []T
	OnChange(fn func()) (cancel func())
}

// Cursor is the active selection of every level. Empty ids mean none.
type Cursor struct {
	WorkspaceID string
	ProjectID   string
	ListID      string
}

type Coordinator struct {
	workspaces Source[models.Workspace]
	projects   Source[models.Project]
	lists      Source[models.List]
	tasks      Source[models.Task]
	log        logger.Logger

	mu         sync.Mutex
	workspace  level
	project    level
	list       level
	dirty      bool
	publishing bool

	cursor  *observable.Cell[Cursor]
	cancels []func()
}

// New wires a coordinator to the four collections and derives the initial
// cursor.
func New(workspaces Source[models.Workspace], projects Source[models.Project], lists Source[models.List], tasks Source[models.Task], log logger.Logger) *Coordinator {
	if log == nil {
		log = logger.Nop()
	}
	c := &Coordinator{
		workspaces: workspaces,
		projects:   projects,
		lists:      lists,
		tasks:      tasks,
		log:        log,
		cursor:     observable.NewComparableCell(Cursor{}),
	}
	c.cancels = []func(){
		workspaces.OnChange(c.recompute),
		projects.OnChange(c.recompute),
		lists.OnChange(c.recompute),
	}
	c.recompute()
	return c
}

// Close detaches the coordinator from the collections.
func (c *Coordinator) Close() {
	c.mu.Lock()
	cancels := c.cancels
	c.cancels = nil
	c.mu.Unlock()
	for _, cancel := range cancels {
		cancel()
	}
}

func (c *Coordinator) recompute() {
	c.mu.Lock()
	c.deriveLocked()
	c.mu.Unlock()
	c.publish()
}

func (c *Coordinator) deriveLocked() {
	c.workspace.derive("", true, recordIDs(c.workspaces.All()))

	ws := c.workspace.current
	c.project.derive(ws, ws != "", childIDs(c.projects, ws))

	p := c.project.current
	c.list.derive(p, p != "", childIDs(c.lists, p))
}

func (c *Coordinator) cursorLocked() Cursor {
	return Cursor{
		WorkspaceID: c.workspace.current,
		ProjectID:   c.project.current,
		ListID:      c.list.current,
	}
}

// publish pushes the latest cursor to listeners. Only one goroutine
// publishes at a time; concurrent and reentrant calls mark the cursor
// dirty and the active publisher picks the change up.
func (c *Coordinator) publish() {
	c.mu.Lock()
	c.dirty = true
	if c.publishing {
		c.mu.Unlock()
		return
	}
	c.publishing = true
	for c.dirty {
		c.dirty = false
		cur := c.cursorLocked()
		c.mu.Unlock()
		if c.cursor.Set(cur) {
			c.log.Debug("hierarchy: cursor changed",
				"workspace", cur.WorkspaceID, "project", cur.ProjectID, "list", cur.ListID)
		}
		c.mu.Lock()
	}
	c.publishing = false
	c.mu.Unlock()
}

// OnCursorChange registers fn for cursor changes.
func (c *Coordinator) OnCursorChange(fn func(Cursor)) (cancel func()) {
	return c.cursor.Subscribe(fn)
}

func (c *Coordinator) Cursor() Cursor {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.cursorLocked()
}

// SetCurrentWorkspace selects a workspace explicitly. An empty id returns
// the level to its default selection.
func (c *Coordinator) SetCurrentWorkspace(id string) error {
	if id != "" {
		if _, ok := c.workspaces.Get(id); !ok {
			return fmt.Errorf("%w: workspace %s", constants.ErrNotFound, id)
		}
	}
	c.mu.Lock()
	c.workspace.choose(id)
	c.deriveLocked()
	c.mu.Unlock()
	c.publish()
	return nil
}

// SetCurrentProject selects a project of the active workspace.
func (c *Coordinator) SetCurrentProject(id string) error {
	c.mu.Lock()
	if id != "" {
		p, ok := c.projects.Get(id)
		if !ok || p.WorkspaceID != c.workspace.current {
			c.mu.Unlock()
			return fmt.Errorf("%w: project %s in the active workspace", constants.ErrNotFound, id)
		}
	}
	c.project.choose(id)
	c.deriveLocked()
	c.mu.Unlock()
	c.publish()
	return nil
}

// SetCurrentList selects a list of the active project.
func (c *Coordinator) SetCurrentList(id string) error {
	c.mu.Lock()
	if id != "" {
		l, ok := c.lists.Get(id)
		if !ok || l.ProjectID != c.project.current {
			c.mu.Unlock()
			return fmt.Errorf("%w: list %s in the active project", constants.ErrNotFound, id)
		}
	}
	c.list.choose(id)
	c.deriveLocked()
	c.mu.Unlock()
	c.publish()
	return nil
}

func recordIDs[T models.Record](recs []T) []string {
	out := make([]string, len(recs))
	for i, r := range recs {
		out[i] = r.GetID()
	}
	return out
}

func childIDs[T models.Child](src Source[T], parent string) []string {
	if parent == "" {
		return nil
	}
	return recordIDs(children(src, parent))
}

func children[T models.Child](src Source[T], parent string) []T {
	return src.Filter(func(rec T) bool {
		return rec.GetParentID() == parent
	})
}
