package tonesync

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/tonehq/tonesync/pkg/constants"
	"github.com/tonehq/tonesync/pkg/models"
	"github.com/tonehq/tonesync/pkg/store"
	"github.com/tonehq/tonesync/pkg/validate"
)

// CollectionUsers holds user profiles written by Bootstrap.
const CollectionUsers = constants.CollectionUsers

// Defaults created for a new user.
const (
	DefaultWorkspaceIcon = "🏢"
	DefaultProjectName   = "First project"
	DefaultProjectIcon   = "📁"
	DefaultListName      = "To-do list"
	DefaultListIcon      = "📝"
)

// Bootstrapped is what Bootstrap created.
type Bootstrapped struct {
	Workspace models.Workspace
	Project   models.Project
	List      models.List
}

// Bootstrap prepares the signed-in user's first session: it writes the
// user profile and creates a default workspace, project and list, then
// marks the profile initialized. It does nothing and returns nil once the
// profile is initialized. A retry after a partial failure reuses the
// profile, workspace and project the failed attempt already created.
// Call it after Start has delivered the first snapshot.
//
// Stores that cannot read single documents fall back to treating a user
// with any workspace as initialized.
func (s *Session) Bootstrap(ctx context.Context) (*Bootstrapped, error) {
	u := s.gate.Current()
	if u == nil {
		return nil, constants.ErrNotAuthenticated
	}

	profile, err := s.profile(ctx, u.ID)
	if err != nil {
		return nil, fmt.Errorf("reading profile: %w", err)
	}
	if profile == nil && s.workspaces.Len() > 0 {
		if _, canRead := s.store.(store.Getter); !canRead {
			return nil, nil
		}
	}
	if initialized, _ := profile[fieldInitialized].(bool); initialized {
		return nil, nil
	}

	name := displayName(*u)
	if err := validate.DisplayName(name); err != nil {
		return nil, err
	}

	now := s.now()
	if profile == nil {
		doc := models.Document{
			models.FieldUserID:    u.ID,
			"email":               u.Email,
			"displayName":         name,
			"photoURL":            nilIfEmpty(u.PhotoURL),
			fieldInitialized:      false,
			models.FieldCreatedAt: now,
			models.FieldUpdatedAt: now,
		}
		if err := s.store.CreateDocument(ctx, CollectionUsers, u.ID, doc); err != nil {
			return nil, fmt.Errorf("creating profile: %w", err)
		}
	}

	b, err := s.createDefaults(ctx, name)
	if err != nil {
		return nil, err
	}

	if err := s.store.UpdateDocument(ctx, CollectionUsers, u.ID, models.Document{
		fieldInitialized:      true,
		models.FieldUpdatedAt: s.now(),
	}); err != nil {
		return nil, fmt.Errorf("marking profile initialized: %w", err)
	}

	s.log.Info("tonesync: bootstrapped user", "user", u.ID, "workspace", b.Workspace.ID)
	return b, nil
}

const fieldInitialized = "isInitialized"

// profile returns the stored profile of id, or nil when there is none or
// the store cannot read single documents.
func (s *Session) profile(ctx context.Context, id string) (models.Document, error) {
	getter, ok := s.store.(store.Getter)
	if !ok {
		return nil, nil
	}
	doc, err := getter.GetDocument(ctx, CollectionUsers, id)
	if errors.Is(err, constants.ErrNotFound) {
		return nil, nil
	}
	return doc, err
}

// createDefaults creates whatever part of the default hierarchy is
// missing, reusing the lowest-ordered workspace, project and list that exist.
func (s *Session) createDefaults(ctx context.Context, name string) (*Bootstrapped, error) {
	var (
		b     Bootstrapped
		found bool
		err   error
	)
	if b.Workspace, found = models.First(s.workspaces.All()); !found {
		b.Workspace, err = s.workspaces.Create(ctx, models.WorkspaceDraft{
			Name: workspaceName(name),
			Icon: models.Ptr(DefaultWorkspaceIcon),
		})
		if err != nil {
			return nil, fmt.Errorf("creating default workspace: %w", err)
		}
	}

	projects := s.projects.Filter(func(p models.Project) bool { return p.WorkspaceID == b.Workspace.ID })
	if b.Project, found = models.First(projects); !found {
		b.Project, err = s.projects.Create(ctx, models.ProjectDraft{
			Name:        DefaultProjectName,
			WorkspaceID: b.Workspace.ID,
			Icon:        models.Ptr(DefaultProjectIcon),
		})
		if err != nil {
			return nil, fmt.Errorf("creating default project: %w", err)
		}
	}

	lists := s.lists.Filter(func(l models.List) bool { return l.ProjectID == b.Project.ID })
	if b.List, found = models.First(lists); !found {
		b.List, err = s.lists.Create(ctx, models.ListDraft{
			Name:      DefaultListName,
			ProjectID: b.Project.ID,
			Icon:      models.Ptr(DefaultListIcon),
		})
		if err != nil {
			return nil, fmt.Errorf("creating default list: %w", err)
		}
	}
	return &b, nil
}

func displayName(u models.User) string {
	if strings.TrimSpace(u.DisplayName) != "" {
		return strings.TrimSpace(u.DisplayName)
	}
	if at := strings.IndexByte(u.Email, '@'); at > 0 {
		return u.Email[:at]
	}
	return u.ID
}

func workspaceName(owner string) string {
	name := owner + "'s workspace"
	if validate.WorkspaceName(name) != nil {
		return "My workspace"
	}
	return name
}

func nilIfEmpty(s string) any {
	if s == "" {
		return nil
	}
	return s
}
