package tonesync

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tonehq/tonesync/pkg/constants"
	"github.com/tonehq/tonesync/pkg/models"
	"github.com/tonehq/tonesync/pkg/store/memstore"
)

func TestSeedSamples(t *testing.T) {
	ctx := context.Background()
	st := memstore.New()
	s, gate := newSession(t, st)
	gate.SignIn(models.User{ID: "alice", DisplayName: "Alice"})
	b, err := s.Bootstrap(ctx)
	require.NoError(t, err)

	tasks, err := s.SeedSamples(ctx, b.List.ID)
	require.NoError(t, err)
	require.Len(t, tasks, len(sampleTasks))
	due := time.Date(2024, 3, 8, 9, 0, 0, 0, time.UTC)
	for i, task := range tasks {
		assert.Equal(t, b.List.ID, task.ListID)
		assert.Equal(t, "alice", task.UserID)
		assert.Equal(t, i, task.Order)
		assert.Equal(t, models.StatusTodo, task.Status)
		require.NotNil(t, task.DueDate)
		assert.True(t, due.Equal(*task.DueDate))
	}
	assert.Len(t, st.Documents(constants.CollectionTasks), len(sampleTasks))

	again, err := s.SeedSamples(ctx, b.List.ID)
	require.NoError(t, err)
	assert.Nil(t, again)
	assert.Len(t, st.Documents(constants.CollectionTasks), len(sampleTasks))
}

func TestSeedSamplesUnknownList(t *testing.T) {
	st := memstore.New()
	s, gate := newSession(t, st)
	gate.SignIn(models.User{ID: "alice"})

	_, err := s.SeedSamples(context.Background(), "missing")
	assert.ErrorIs(t, err, constants.ErrNotFound)
	assert.Equal(t, 0, st.Calls(memstore.MethodCreate))
}
