package hierarchy

import (
	"github.com/tonehq/tonesync/pkg/models"
)

func (c *Coordinator) CurrentWorkspace() (models.Workspace, bool) {
	return c.workspaces.Get(c.Cursor().WorkspaceID)
}

func (c *Coordinator) CurrentProject() (models.Project, bool) {
	return c.projects.Get(c.Cursor().ProjectID)
}

func (c *Coordinator) CurrentList() (models.List, bool) {
	return c.lists.Get(c.Cursor().ListID)
}

// CurrentWorkspaceProjects lists the projects of the active workspace.
func (c *Coordinator) CurrentWorkspaceProjects() []models.Project {
	ws := c.Cursor().WorkspaceID
	if ws == "" {
		return nil
	}
	return children(c.projects, ws)
}

// CurrentProjectLists lists the lists of the active project.
func (c *Coordinator) CurrentProjectLists() []models.List {
	p := c.Cursor().ProjectID
	if p == "" {
		return nil
	}
	return children(c.lists, p)
}

// CurrentTasks lists the tasks of the active list by order, then id.
func (c *Coordinator) CurrentTasks() []models.Task {
	return c.TasksByList(c.Cursor().ListID)
}

func (c *Coordinator) TasksByList(listID string) []models.Task {
	if listID == "" {
		return nil
	}
	return children(c.tasks, listID)
}
