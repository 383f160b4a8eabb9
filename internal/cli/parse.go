package cli

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"strings"

	"github.com/tonehq/tonesync"
)

const usage = `Usage: tonesync [flags] <command> [command flags] [args]

Commands:
  bootstrap              Create the default workspace, project and list
  tree                   Print workspaces, projects, lists and tasks
  add-task <title>       Add a task to the active list
  toggle <task-id>       Flip a task between done and not done
  rm-task <task-id>      Delete a task
  watch                  Print the active path on every change
  serve                  Run a relay server in front of the backend
  migrate                Create tables and permissions for the backend

Flags default to TONESYNC_* environment variables, read after .env.
`

type stringList []string

func (l *stringList) String() string { return strings.Join(*l, ",") }

func (l *stringList) Set(v string) error {
	*l = append(*l, v)
	return nil
}

// Parse reads global flags, the command name and its flags. Defaults come
// from env, which is normally tonesync.ConfigFromEnv().
func Parse(args []string, env tonesync.Config, out io.Writer) (Command, tonesync.Config, error) {
	cfg := env
	fs := flag.NewFlagSet("tonesync", flag.ContinueOnError)
	fs.SetOutput(out)
	fs.Usage = func() {
		fmt.Fprint(out, usage)
		fs.PrintDefaults()
	}

	fs.StringVar(&cfg.Backend, "backend", cfg.Backend, "store backend: memory, local, surreal, postgres or relay")
	fs.StringVar(&cfg.User, "user", cfg.User, "user id to act as (memory, local, postgres and root surreal sessions)")
	fs.StringVar(&cfg.LogLevel, "log-level", cfg.LogLevel, "log level: debug, info, warn or error")
	fs.StringVar(&cfg.LocalPath, "local-path", cfg.LocalPath, "SQLite file of the local backend")
	fs.StringVar(&cfg.SurrealURL, "surreal-url", cfg.SurrealURL, "SurrealDB WebSocket endpoint")
	fs.StringVar(&cfg.SurrealNS, "surreal-ns", cfg.SurrealNS, "SurrealDB namespace")
	fs.StringVar(&cfg.SurrealDB, "surreal-db", cfg.SurrealDB, "SurrealDB database")
	fs.StringVar(&cfg.SurrealAccess, "surreal-access", cfg.SurrealAccess, "SurrealDB record access method; empty signs in as a system user")
	fs.StringVar(&cfg.SurrealUsername, "surreal-user", cfg.SurrealUsername, "SurrealDB username")
	fs.StringVar(&cfg.SurrealPassword, "surreal-pass", cfg.SurrealPassword, "SurrealDB password")
	fs.StringVar(&cfg.PostgresDSN, "postgres-dsn", cfg.PostgresDSN, "PostgreSQL connection string")
	fs.DurationVar(&cfg.PollInterval, "poll", cfg.PollInterval, "PostgreSQL polling interval")
	fs.StringVar(&cfg.RelayURL, "relay-url", cfg.RelayURL, "relay WebSocket endpoint")
	fs.StringVar(&cfg.RelayToken, "relay-token", cfg.RelayToken, "ID token presented to the relay")

	if err := fs.Parse(args); err != nil {
		return nil, cfg, err
	}
	rest := fs.Args()
	if len(rest) == 0 {
		fs.Usage()
		return nil, cfg, errors.New("command required")
	}
	if err := cfg.Validate(); err != nil {
		return nil, cfg, err
	}

	cmd, err := parseCommand(rest[0], rest[1:], out)
	return cmd, cfg, err
}

func parseCommand(name string, args []string, out io.Writer) (Command, error) {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.SetOutput(out)

	switch name {
	case "bootstrap":
		c := &BootstrapCommand{}
		fs.BoolVar(&c.Samples, "samples", false, "add getting-started tasks to the new list")
		return c, fs.Parse(args)
	case "tree":
		c := &TreeCommand{}
		fs.StringVar(&c.Workspace, "workspace", "", "workspace to make active")
		fs.StringVar(&c.Project, "project", "", "project to make active")
		fs.StringVar(&c.List, "list", "", "list to make active")
		return c, fs.Parse(args)
	case "add-task":
		c := &AddTaskCommand{}
		var tags stringList
		fs.StringVar(&c.List, "list", "", "list id; defaults to the active list")
		fs.StringVar(&c.Due, "due", "", "due date, YYYY-MM-DD or RFC 3339")
		fs.Var(&tags, "tag", "tag to attach; repeatable")
		if err := fs.Parse(args); err != nil {
			return nil, err
		}
		c.Title = strings.Join(fs.Args(), " ")
		c.Tags = tags
		return c, nil
	case "toggle", "rm-task":
		if err := fs.Parse(args); err != nil {
			return nil, err
		}
		if fs.NArg() != 1 {
			return nil, fmt.Errorf("%s: exactly one task id required", name)
		}
		if name == "toggle" {
			return &ToggleCommand{ID: fs.Arg(0)}, nil
		}
		return &RemoveTaskCommand{ID: fs.Arg(0)}, nil
	case "watch":
		return &WatchCommand{}, fs.Parse(args)
	case "serve":
		c := &ServeCommand{}
		fs.StringVar(&c.Addr, "addr", ":8080", "listen address")
		fs.StringVar(&c.JWTSecret, "jwt-secret", tonesync.GetEnvOrDefault(tonesync.EnvRelaySecret, ""), "HS256 secret; when set clients must authenticate")
		return c, fs.Parse(args)
	case "migrate":
		return &MigrateCommand{}, fs.Parse(args)
	default:
		return nil, fmt.Errorf("unknown command %q", name)
	}
}
