package surrealstore_test

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
	"github.com/tonehq/tonesync/pkg/store/surrealstore"
)

func open(t *testing.T) *surrealstore.Store {
	t.Helper()
	url := testenv.SurrealURL(t)
	testenv.ResetSurreal(t, "surrealstore", constants.CollectionTasks)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	s, err := surrealstore.Open(ctx, surrealstore.Config{
		URL:       url,
		Namespace: testenv.SurrealNamespace,
		Database:  "surrealstore",
		Username:  testenv.SurrealUser,
		Password:  testenv.SurrealPassword,
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

type recorder struct {
	mu   sync.Mutex
	last []models.Document
	n    int
}

func (r *recorder) onSnapshot(docs []models.Document) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.last = docs
	r.n++
}

func (r *recorder) titles() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, 0, len(r.last))
	for _, d := range r.last {
		title, _ := d[models.FieldTitle].(string)
		out = append(out, title)
	}
	return out
}

func TestLiveSubscription(t *testing.T) {
	s := open(t)
	ctx := context.Background()
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

	mine := models.TaskDraft{Title: "first", ListID: "L1", Order: 1}.Build("t1", "u1", now)
	require.NoError(t, s.CreateDocument(ctx, constants.CollectionTasks, "t1", mine.Document()))
	other := models.TaskDraft{Title: "theirs", ListID: "L9"}.Build("t9", "u2", now)
	require.NoError(t, s.CreateDocument(ctx, constants.CollectionTasks, "t9", other.Document()))

	rec := &recorder{}
	sub, err := s.SubscribeQuery(ctx, store.Query{
		Collection: constants.CollectionTasks,
		OwnerID:    "u1",
		OrderBy:    models.FieldOrder,
	}, rec.onSnapshot, func(err error) { t.Logf("subscription error: %v", err) })
	require.NoError(t, err)
	defer sub.Unsubscribe()

	assert.Equal(t, []string{"first"}, rec.titles())

	second := models.TaskDraft{Title: "second", ListID: "L1", Order: 0}.Build("t2", "u1", now)
	require.NoError(t, s.CreateDocument(ctx, constants.CollectionTasks, "t2", second.Document()))
	assert.Eventually(t, func() bool {
		return assert.ObjectsAreEqual([]string{"second", "first"}, rec.titles())
	}, 5*time.Second, 20*time.Millisecond)

	require.NoError(t, s.UpdateDocument(ctx, constants.CollectionTasks, "t1", models.Document{
		models.FieldTitle: "renamed",
		models.FieldOrder: 5,
	}))
	assert.Eventually(t, func() bool {
		return assert.ObjectsAreEqual([]string{"second", "renamed"}, rec.titles())
	}, 5*time.Second, 20*time.Millisecond)

	require.NoError(t, s.DeleteDocument(ctx, constants.CollectionTasks, "t2"))
	assert.Eventually(t, func() bool {
		return assert.ObjectsAreEqual([]string{"renamed"}, rec.titles())
	}, 5*time.Second, 20*time.Millisecond)

	rec.mu.Lock()
	doc := rec.last[0]
	rec.mu.Unlock()
	task, err := models.DecodeTask(doc)
	require.NoError(t, err)
	assert.Equal(t, "t1", task.ID)
	assert.True(t, task.CreatedAt.Equal(now))
}
