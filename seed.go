package tonesync

import (
	"context"
	"fmt"
	"time"

	"github.com/tonehq/tonesync/pkg/constants"
	"github.com/tonehq/tonesync/pkg/models"
)

// sampleTasks are the getting-started tasks SeedSamples writes.
var sampleTasks = []struct{ title, description string }{
	{"Create your first task", "Use add-task to put something on this list."},
	{"Create your first list", "Lists group tasks inside a project."},
	{"Invite your team", "Share a workspace to plan work together."},
}

// sampleDue is how far after seeding the sample tasks fall due.
const sampleDue = 7 * 24 * time.Hour

// SeedSamples fills an empty list with a few getting-started tasks and
// returns them. A list that already holds tasks is left alone and nil is
// returned.
func (s *Session) SeedSamples(ctx context.Context, listID string) ([]models.Task, error) {
	if _, ok := s.lists.Get(listID); !ok {
		return nil, fmt.Errorf("%w: list %s", constants.ErrNotFound, listID)
	}
	existing := s.tasks.Filter(func(t models.Task) bool { return t.ListID == listID })
	if len(existing) > 0 {
		return nil, nil
	}

	due := s.now().Add(sampleDue)
	out := make([]models.Task, 0, len(sampleTasks))
	for i, sample := range sampleTasks {
		task, err := s.tasks.Create(ctx, models.TaskDraft{
			Title:       sample.title,
			ListID:      listID,
			Description: models.Ptr(sample.description),
			DueDate:     &due,
			Order:       i,
		})
		if err != nil {
			return out, fmt.Errorf("creating sample task: %w", err)
		}
		out = append(out, task)
	}
	s.log.Debug("tonesync: seeded sample tasks", "list", listID, "count", len(out))
	return out, nil
}
