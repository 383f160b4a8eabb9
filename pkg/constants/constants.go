package constants

import "time"

// Remote collection names, one per entity type.
const (
	CollectionWorkspaces = "workspaces"
	CollectionProjects   = "projects"
	CollectionLists      = "lists"
	CollectionTasks      = "tasks"

	// CollectionUsers holds one profile document per user, keyed by user id.
	CollectionUsers = "users"
)

const (
	// DefaultPersistTimeout bounds a single remote persist when the caller's
	// context carries no deadline.
	DefaultPersistTimeout = 30 * time.Second

	// DefaultPollInterval is used by stores that emulate live queries by polling.
	DefaultPollInterval = 2 * time.Second
)
