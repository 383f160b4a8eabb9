package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/tonehq/tonesync"
	"github.com/tonehq/tonesync/contrib/relay"
	"github.com/tonehq/tonesync/pkg/constants"
	"github.com/tonehq/tonesync/pkg/hierarchy"
	"github.com/tonehq/tonesync/pkg/identity"
	"github.com/tonehq/tonesync/pkg/models"
	"github.com/tonehq/tonesync/pkg/validate"
)

// Main runs one CLI invocation. Output goes to out and logs to logOut.
func Main(ctx context.Context, args []string, out, logOut io.Writer) error {
	if err := tonesync.LoadDotEnv(); err != nil {
		return err
	}
	cmd, cfg, err := Parse(args, tonesync.ConfigFromEnv(), out)
	if err != nil {
		return err
	}
	log, err := NewLogger(cfg.LogLevel, logOut)
	if err != nil {
		return err
	}

	app, err := Open(ctx, cfg, log, out)
	if err != nil {
		return fmt.Errorf("open %s backend: %w", cfg.Backend, err)
	}
	defer app.Close()
	return app.Run(ctx, cmd)
}

// Run executes cmd against the app's backend.
func (a *App) Run(ctx context.Context, cmd Command) error {
	switch c := cmd.(type) {
	case *MigrateCommand:
		return a.Migrate(ctx)
	case *ServeCommand:
		return a.Serve(ctx, c)
	}

	s, err := a.Session(ctx)
	if err != nil {
		return err
	}
	defer s.Close()

	switch c := cmd.(type) {
	case *BootstrapCommand:
		return a.bootstrap(ctx, s, c)
	case *TreeCommand:
		return a.tree(s, c)
	case *AddTaskCommand:
		return a.addTask(ctx, s, c)
	case *ToggleCommand:
		ok, err := s.ToggleTask(ctx, c.ID)
		if err != nil {
			return err
		}
		if !ok {
			return fmt.Errorf("%w: task %s", constants.ErrNotFound, c.ID)
		}
		task, _ := s.Tasks().Get(c.ID)
		fmt.Fprintln(a.out, taskLine(task))
		return nil
	case *RemoveTaskCommand:
		if _, ok := s.Tasks().Get(c.ID); !ok {
			return fmt.Errorf("%w: task %s", constants.ErrNotFound, c.ID)
		}
		if err := s.Tasks().Delete(ctx, c.ID); err != nil {
			return err
		}
		fmt.Fprintf(a.out, "deleted %s\n", c.ID)
		return nil
	case *WatchCommand:
		return a.watch(ctx, s)
	default:
		return fmt.Errorf("unknown command %T", cmd)
	}
}

func (a *App) bootstrap(ctx context.Context, s *tonesync.Session, c *BootstrapCommand) error {
	b, err := s.Bootstrap(ctx)
	if err != nil {
		return err
	}
	if b == nil {
		fmt.Fprintln(a.out, "already initialized")
		return nil
	}
	fmt.Fprintf(a.out, "created workspace %s (%s)\n", b.Workspace.Name, b.Workspace.ID)
	fmt.Fprintf(a.out, "created project %s (%s)\n", b.Project.Name, b.Project.ID)
	fmt.Fprintf(a.out, "created list %s (%s)\n", b.List.Name, b.List.ID)
	if !c.Samples {
		return nil
	}
	tasks, err := s.SeedSamples(ctx, b.List.ID)
	if err != nil {
		return err
	}
	for _, task := range tasks {
		fmt.Fprintln(a.out, taskLine(task))
	}
	return nil
}

func (a *App) tree(s *tonesync.Session, c *TreeCommand) error {
	h := s.Hierarchy()
	if c.Workspace != "" {
		if err := h.SetCurrentWorkspace(c.Workspace); err != nil {
			return fmt.Errorf("workspace %s: %w", c.Workspace, err)
		}
	}
	if c.Project != "" {
		if err := h.SetCurrentProject(c.Project); err != nil {
			return fmt.Errorf("project %s: %w", c.Project, err)
		}
	}
	if c.List != "" {
		if err := h.SetCurrentList(c.List); err != nil {
			return fmt.Errorf("list %s: %w", c.List, err)
		}
	}
	printTree(a.out, s)
	return nil
}

func printTree(w io.Writer, s *tonesync.Session) {
	h := s.Hierarchy()
	cur := h.Cursor()
	if s.Workspaces().Len() == 0 {
		fmt.Fprintln(w, "no workspaces; run bootstrap")
		return
	}
	for _, ws := range s.Workspaces().All() {
		fmt.Fprintf(w, "%s %s%s (%s)\n", mark(ws.ID == cur.WorkspaceID), icon(ws.Icon), ws.Name, ws.ID)
		if ws.ID != cur.WorkspaceID {
			continue
		}
		for _, p := range h.CurrentWorkspaceProjects() {
			fmt.Fprintf(w, "  %s %s%s (%s)\n", mark(p.ID == cur.ProjectID), icon(p.Icon), p.Name, p.ID)
			if p.ID != cur.ProjectID {
				continue
			}
			for _, l := range h.CurrentProjectLists() {
				fmt.Fprintf(w, "    %s %s%s (%s)\n", mark(l.ID == cur.ListID), icon(l.Icon), l.Name, l.ID)
				if l.ID != cur.ListID {
					continue
				}
				for _, t := range h.TasksByList(l.ID) {
					fmt.Fprintf(w, "      %s\n", taskLine(t))
				}
			}
		}
	}
}

func mark(active bool) string {
	if active {
		return "*"
	}
	return " "
}

func icon(s *string) string {
	if s == nil || *s == "" {
		return ""
	}
	return *s + " "
}

func taskLine(t models.Task) string {
	var b strings.Builder
	if t.Completed {
		b.WriteString("[x] ")
	} else {
		b.WriteString("[ ] ")
	}
	fmt.Fprintf(&b, "%s (%s)", t.Title, t.ID)
	if t.DueDate != nil {
		fmt.Fprintf(&b, " due %s", t.DueDate.Format(time.DateOnly))
	}
	for _, tag := range t.Tags {
		fmt.Fprintf(&b, " #%s", tag)
	}
	return b.String()
}

func parseDue(s string) (*time.Time, error) {
	if s == "" {
		return nil, nil
	}
	for _, layout := range []string{time.DateOnly, time.RFC3339} {
		if t, err := time.Parse(layout, s); err == nil {
			return &t, nil
		}
	}
	return nil, fmt.Errorf("%w: due date %q", constants.ErrInvalidInput, s)
}

func (a *App) addTask(ctx context.Context, s *tonesync.Session, c *AddTaskCommand) error {
	title := strings.TrimSpace(c.Title)
	if err := validate.TaskTitle(title); err != nil {
		return err
	}
	due, err := parseDue(c.Due)
	if err != nil {
		return err
	}

	listID := c.List
	if listID == "" {
		l, ok := s.Hierarchy().CurrentList()
		if !ok {
			return fmt.Errorf("%w: no active list; run bootstrap or pass -list", constants.ErrNotFound)
		}
		listID = l.ID
	} else if _, ok := s.Lists().Get(listID); !ok {
		return fmt.Errorf("%w: list %s", constants.ErrNotFound, listID)
	}

	order := len(s.Hierarchy().TasksByList(listID))
	task, err := s.Tasks().Create(ctx, models.TaskDraft{
		Title:   title,
		ListID:  listID,
		DueDate: due,
		Tags:    c.Tags,
		Order:   order,
	})
	if err != nil {
		return err
	}
	fmt.Fprintln(a.out, taskLine(task))
	return nil
}

func (a *App) watch(ctx context.Context, s *tonesync.Session) error {
	h := s.Hierarchy()
	show := func(cur hierarchy.Cursor) {
		fmt.Fprintf(a.out, "workspace=%s project=%s list=%s tasks=%d\n",
			orDash(cur.WorkspaceID), orDash(cur.ProjectID), orDash(cur.ListID), len(h.CurrentTasks()))
	}
	cancelCursor := h.OnCursorChange(show)
	defer cancelCursor()
	cancelTasks := s.Tasks().OnChange(func() { show(h.Cursor()) })
	defer cancelTasks()

	show(h.Cursor())
	<-ctx.Done()
	return nil
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}

// Serve runs a relay over the configured backend until ctx ends.
func (a *App) Serve(ctx context.Context, c *ServeCommand) error {
	if a.cfg.Backend == tonesync.BackendRelay {
		return errors.New("serve: the relay backend cannot front another relay")
	}
	backend, ok := a.store.(relay.Backend)
	if !ok {
		return fmt.Errorf("serve: backend %s cannot be served", a.cfg.Backend)
	}
	opts := []relay.Option{relay.WithLogger(a.log)}
	if c.JWTSecret != "" {
		opts = append(opts, relay.WithVerifier(identity.NewHMACTokenGate([]byte(c.JWTSecret)).Verify))
	}
	srv := relay.New(backend, opts...)

	ln, err := net.Listen("tcp", c.Addr)
	if err != nil {
		return err
	}
	httpSrv := &http.Server{
		Handler:           srv.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		errCh <- httpSrv.Serve(ln)
	}()
	a.log.Info("relay: listening", "addr", ln.Addr().String(), "backend", a.cfg.Backend, "auth", c.JWTSecret != "")
	fmt.Fprintf(a.out, "listening on %s\n", ln.Addr())

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}
	srv.Close()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := httpSrv.Shutdown(shutdownCtx); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
