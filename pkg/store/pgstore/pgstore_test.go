package pgstore

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tonehq/tonesync/internal/testenv"
	"github.com/tonehq/tonesync/pkg/constants"
	"github.com/tonehq/tonesync/pkg/models"
	"github.com/tonehq/tonesync/pkg/store"
)

func TestJSONMapScan(t *testing.T) {
	var m JSONMap
	require.NoError(t, m.Scan([]byte(`{"title":"a","order":2}`)))
	assert.Equal(t, JSONMap{"title": "a", "order": float64(2)}, m)

	require.NoError(t, m.Scan(`{"x":null}`))
	assert.Equal(t, JSONMap{"x": nil}, m)

	require.NoError(t, m.Scan(nil))
	assert.Empty(t, m)

	assert.Error(t, m.Scan(42))

	v, err := JSONMap(nil).Value()
	require.NoError(t, err)
	assert.Nil(t, v)
}

func TestRowRoundTripDecodes(t *testing.T) {
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	task := models.TaskDraft{Title: "a", ListID: "L", Tags: []string{"x"}, Order: 3}.Build("t1", "u1", now)

	row := newRow(constants.CollectionTasks, "t1", task.Document(), 1, now)
	assert.Equal(t, "u1", row.OwnerID)

	raw, err := row.Data.Value()
	require.NoError(t, err)
	var back Row
	back.ID = "t1"
	require.NoError(t, back.Data.Scan(raw))

	got, err := models.DecodeTask(back.document())
	require.NoError(t, err)
	assert.Equal(t, task, got)
}

func TestRevisionIsStrictlyIncreasing(t *testing.T) {
	fixed := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	s := New(nil, WithClock(func() time.Time { return fixed }))
	a := s.revision()
	b := s.revision()
	assert.Greater(t, b, a)
}

func TestPollingSubscription(t *testing.T) {
	dsn := testenv.PostgresDSN(t)
	s, err := Open(dsn, WithPollInterval(50*time.Millisecond))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })

	ctx := context.Background()
	require.NoError(t, s.Migrate(ctx))
	require.NoError(t, s.db.Where("collection = ?", constants.CollectionTasks).Delete(&Row{}).Error)

	now := time.Now().UTC()
	a := models.TaskDraft{Title: "a", ListID: "L", Order: 1}.Build("t1", "u1", now)
	require.NoError(t, s.CreateDocument(ctx, constants.CollectionTasks, "t1", a.Document()))

	var mu sync.Mutex
	var last []models.Document
	sub, err := s.SubscribeQuery(ctx, store.Query{Collection: constants.CollectionTasks, OwnerID: "u1", OrderBy: models.FieldOrder},
		func(docs []models.Document) {
			mu.Lock()
			last = docs
			mu.Unlock()
		}, nil)
	require.NoError(t, err)
	defer sub.Unsubscribe()

	count := func() int {
		mu.Lock()
		defer mu.Unlock()
		return len(last)
	}
	assert.Equal(t, 1, count())

	b := models.TaskDraft{Title: "b", ListID: "L"}.Build("t2", "u1", now)
	require.NoError(t, s.CreateDocument(ctx, constants.CollectionTasks, "t2", b.Document()))
	assert.Eventually(t, func() bool { return count() == 2 }, 3*time.Second, 20*time.Millisecond)

	err = s.UpdateDocument(ctx, constants.CollectionTasks, "missing", models.Document{"title": "x"})
	assert.ErrorIs(t, err, constants.ErrNotFound)

	require.NoError(t, s.DeleteDocument(ctx, constants.CollectionTasks, "t1"))
	assert.Eventually(t, func() bool { return count() == 1 }, 3*time.Second, 20*time.Millisecond)
}
