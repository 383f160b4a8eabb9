package cli

import (
	"bytes"
	"context"
	"io"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tonehq/tonesync"
	"github.com/tonehq/tonesync/internal/testenv"
	"github.com/tonehq/tonesync/pkg/constants"
)

func memoryConfig() tonesync.Config {
	return tonesync.Config{Backend: tonesync.BackendMemory, User: "alice", LogLevel: "info"}
}

func openApp(t *testing.T, cfg tonesync.Config) (*App, *bytes.Buffer) {
	t.Helper()
	var out bytes.Buffer
	app, err := Open(context.Background(), cfg, testenv.NewLogger(), &out)
	require.NoError(t, err)
	t.Cleanup(app.Close)
	return app, &out
}

func TestParse(t *testing.T) {
	cmd, cfg, err := Parse([]string{"-user", "bob", "add-task", "-due", "2024-05-01", "-tag", "home", "-tag", "errand", "Buy", "milk"},
		memoryConfig(), io.Discard)
	require.NoError(t, err)
	assert.Equal(t, "bob", cfg.User)
	assert.Equal(t, &AddTaskCommand{Title: "Buy milk", Due: "2024-05-01", Tags: []string{"home", "errand"}}, cmd)

	cmd, _, err = Parse([]string{"tree", "-list", "l1"}, memoryConfig(), io.Discard)
	require.NoError(t, err)
	assert.Equal(t, &TreeCommand{List: "l1"}, cmd)

	cmd, _, err = Parse([]string{"bootstrap", "-samples"}, memoryConfig(), io.Discard)
	require.NoError(t, err)
	assert.Equal(t, &BootstrapCommand{Samples: true}, cmd)

	cmd, _, err = Parse([]string{"serve", "-addr", "127.0.0.1:0"}, memoryConfig(), io.Discard)
	require.NoError(t, err)
	assert.Equal(t, "127.0.0.1:0", cmd.(*ServeCommand).Addr)
}

func TestParseErrors(t *testing.T) {
	tests := map[string][]string{
		"no command":      {},
		"unknown command": {"frobnicate"},
		"unknown backend": {"-backend", "floppy", "tree"},
		"missing id":      {"toggle"},
		"extra id":        {"rm-task", "a", "b"},
		"bad flag":        {"tree", "-nope"},
	}
	for name, args := range tests {
		t.Run(name, func(t *testing.T) {
			_, _, err := Parse(args, memoryConfig(), io.Discard)
			assert.Error(t, err)
		})
	}
}

func TestOpenRequiresUser(t *testing.T) {
	cfg := memoryConfig()
	cfg.User = ""
	_, err := Open(context.Background(), cfg, testenv.NewLogger(), io.Discard)
	assert.ErrorIs(t, err, constants.ErrNotAuthenticated)
}

func TestBootstrapThenTree(t *testing.T) {
	ctx := context.Background()
	app, out := openApp(t, memoryConfig())

	require.NoError(t, app.Run(ctx, &BootstrapCommand{}))
	assert.Contains(t, out.String(), "created workspace alice's workspace")
	assert.Contains(t, out.String(), "created list To-do list")

	out.Reset()
	require.NoError(t, app.Run(ctx, &BootstrapCommand{}))
	assert.Equal(t, "already initialized\n", out.String())

	out.Reset()
	require.NoError(t, app.Run(ctx, &AddTaskCommand{Title: "  Buy milk ", Due: "2024-05-01", Tags: []string{"home"}}))
	line := strings.TrimSpace(out.String())
	assert.True(t, strings.HasPrefix(line, "[ ] Buy milk ("), line)
	assert.True(t, strings.HasSuffix(line, " due 2024-05-01 #home"), line)

	out.Reset()
	require.NoError(t, app.Run(ctx, &TreeCommand{}))
	lines := strings.Split(strings.TrimRight(out.String(), "\n"), "\n")
	require.Len(t, lines, 4)
	assert.True(t, strings.HasPrefix(lines[0], "* "+tonesync.DefaultWorkspaceIcon+" "), lines[0])
	assert.True(t, strings.HasPrefix(lines[1], "  * "+tonesync.DefaultProjectIcon+" "+tonesync.DefaultProjectName), lines[1])
	assert.True(t, strings.HasPrefix(lines[2], "    * "+tonesync.DefaultListIcon+" "+tonesync.DefaultListName), lines[2])
	assert.True(t, strings.HasPrefix(lines[3], "      [ ] Buy milk"), lines[3])
}

func TestTreeWithoutWorkspaces(t *testing.T) {
	app, out := openApp(t, memoryConfig())
	require.NoError(t, app.Run(context.Background(), &TreeCommand{}))
	assert.Equal(t, "no workspaces; run bootstrap\n", out.String())

	err := app.Run(context.Background(), &TreeCommand{Workspace: "missing"})
	assert.ErrorIs(t, err, constants.ErrNotFound)
}

func TestToggleAndRemove(t *testing.T) {
	ctx := context.Background()
	app, out := openApp(t, memoryConfig())
	require.NoError(t, app.Run(ctx, &BootstrapCommand{}))

	s, err := app.Session(ctx)
	require.NoError(t, err)
	l, ok := s.Hierarchy().CurrentList()
	require.True(t, ok)
	s.Close()

	out.Reset()
	require.NoError(t, app.Run(ctx, &AddTaskCommand{Title: "Walk", List: l.ID}))

	s, err = app.Session(ctx)
	require.NoError(t, err)
	tasks := s.Tasks().All()
	s.Close()
	require.Len(t, tasks, 1)
	id := tasks[0].ID

	out.Reset()
	require.NoError(t, app.Run(ctx, &ToggleCommand{ID: id}))
	assert.Equal(t, "[x] Walk ("+id+")\n", out.String())

	out.Reset()
	require.NoError(t, app.Run(ctx, &RemoveTaskCommand{ID: id}))
	assert.Equal(t, "deleted "+id+"\n", out.String())

	assert.ErrorIs(t, app.Run(ctx, &ToggleCommand{ID: id}), constants.ErrNotFound)
	assert.ErrorIs(t, app.Run(ctx, &RemoveTaskCommand{ID: id}), constants.ErrNotFound)
}

func TestAddTaskRejectsBadInput(t *testing.T) {
	ctx := context.Background()
	app, _ := openApp(t, memoryConfig())

	assert.ErrorIs(t, app.Run(ctx, &AddTaskCommand{Title: "x"}), constants.ErrNotFound)

	require.NoError(t, app.Run(ctx, &BootstrapCommand{}))
	assert.ErrorIs(t, app.Run(ctx, &AddTaskCommand{Title: "   "}), constants.ErrInvalidInput)
	assert.ErrorIs(t, app.Run(ctx, &AddTaskCommand{Title: "x", Due: "tomorrow"}), constants.ErrInvalidInput)
	assert.ErrorIs(t, app.Run(ctx, &AddTaskCommand{Title: "x", List: "nope"}), constants.ErrNotFound)
}

func TestParseDue(t *testing.T) {
	due, err := parseDue("")
	require.NoError(t, err)
	assert.Nil(t, due)

	due, err = parseDue("2024-05-01")
	require.NoError(t, err)
	assert.Equal(t, time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC), *due)

	due, err = parseDue("2024-05-01T10:30:00Z")
	require.NoError(t, err)
	assert.Equal(t, 10, due.Hour())
}

func TestMainWithLocalBackend(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tasks.db")
	t.Setenv(tonesync.EnvBackend, tonesync.BackendLocal)
	t.Setenv(tonesync.EnvLocalPath, path)
	t.Setenv(tonesync.EnvUser, "alice")

	ctx := context.Background()
	var out bytes.Buffer
	require.NoError(t, Main(ctx, []string{"bootstrap"}, &out, io.Discard))
	require.NoError(t, Main(ctx, []string{"add-task", "Ship", "it"}, &out, io.Discard))

	out.Reset()
	require.NoError(t, Main(ctx, []string{"tree"}, &out, io.Discard))
	assert.Contains(t, out.String(), "[ ] Ship it (")

	out.Reset()
	require.NoError(t, Main(ctx, []string{"migrate"}, &out, io.Discard))
	assert.Equal(t, "backend local needs no migration\n", out.String())
}

func TestBootstrapWithSamplesOnLocalBackend(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tasks.db")
	t.Setenv(tonesync.EnvBackend, tonesync.BackendLocal)
	t.Setenv(tonesync.EnvLocalPath, path)
	t.Setenv(tonesync.EnvUser, "alice")

	ctx := context.Background()
	var out bytes.Buffer
	require.NoError(t, Main(ctx, []string{"bootstrap", "-samples"}, &out, io.Discard))
	assert.Contains(t, out.String(), "[ ] Create your first task (")

	out.Reset()
	require.NoError(t, Main(ctx, []string{"tree"}, &out, io.Discard))
	assert.Equal(t, 3, strings.Count(out.String(), "[ ] "))
	assert.Contains(t, out.String(), "Invite your team")
}

func TestWatchStopsWithContext(t *testing.T) {
	app, out := openApp(t, memoryConfig())
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	require.NoError(t, app.Run(ctx, &WatchCommand{}))
	assert.Contains(t, out.String(), "workspace=- project=- list=- tasks=0")
}
