package cli

// Command is one CLI operation with its own options.
type Command interface {
	Name() string
}

// BootstrapCommand creates the default workspace, project and list for a
// user who has none. With Samples it also fills the new list with
// getting-started tasks.
type BootstrapCommand struct {
	Samples bool
}

// TreeCommand prints the user's hierarchy and marks the active path.
type TreeCommand struct {
	Workspace string
	Project   string
	List      string
}

// AddTaskCommand creates a task in the given list, or in the active list.
type AddTaskCommand struct {
	Title string
	List  string
	Due   string
	Tags  []string
}

// ToggleCommand flips the completed flag of a task.
type ToggleCommand struct {
	ID string
}

// RemoveTaskCommand deletes a task.
type RemoveTaskCommand struct {
	ID string
}

// WatchCommand prints the active path and task counts on every change
// until the context ends.
type WatchCommand struct{}

// ServeCommand runs a relay in front of the configured backend.
type ServeCommand struct {
	Addr      string
	JWTSecret string
}

// MigrateCommand prepares the schema of the configured backend.
type MigrateCommand struct{}

func (*BootstrapCommand) Name() string  { return "bootstrap" }
func (*TreeCommand) Name() string       { return "tree" }
func (*AddTaskCommand) Name() string    { return "add-task" }
func (*ToggleCommand) Name() string     { return "toggle" }
func (*RemoveTaskCommand) Name() string { return "rm-task" }
func (*WatchCommand) Name() string      { return "watch" }
func (*ServeCommand) Name() string      { return "serve" }
func (*MigrateCommand) Name() string    { return "migrate" }
