package tonesync_test

import (
	"context"
	"fmt"
	"time"

	"github.com/tonehq/tonesync"
	"github.com/tonehq/tonesync/pkg/identity"
	"github.com/tonehq/tonesync/pkg/models"
	"github.com/tonehq/tonesync/pkg/store/memstore"
)

func ExampleSession() {
	ctx := context.Background()
	gate := identity.NewManual()

	s, err := tonesync.New(memstore.New(), gate,
		tonesync.WithClock(func() time.Time { return time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC) }),
	)
	if err != nil {
		panic(err)
	}
	defer s.Close()

	if err := s.Start(ctx); err != nil {
		panic(err)
	}
	gate.SignIn(models.User{ID: "alice", DisplayName: "Alice"})

	b, err := s.Bootstrap(ctx)
	if err != nil {
		panic(err)
	}
	for i, title := range []string{"write", "review", "ship"} {
		if _, err := s.Tasks().Create(ctx, models.TaskDraft{Title: title, ListID: b.List.ID, Order: 2 - i}); err != nil {
			panic(err)
		}
	}

	ws, _ := s.Hierarchy().CurrentWorkspace()
	list, _ := s.Hierarchy().CurrentList()
	fmt.Println(ws.Name, "/", list.Name)
	for _, task := range s.Hierarchy().CurrentTasks() {
		fmt.Println(task.Order, task.Title, task.Status)
	}

	gate.SignOut()
	fmt.Println("after sign-out:", s.Tasks().Len())

	// Output:
	// Alice's workspace / To-do list
	// 0 ship TODO
	// 1 review TODO
	// 2 write TODO
	// after sign-out: 0
}
