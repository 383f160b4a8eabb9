package collection

import (
	"context"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tonehq/tonesync/internal/testenv"
	"github.com/tonehq/tonesync/pkg/constants"
	"github.com/tonehq/tonesync/pkg/models"
	"github.com/tonehq/tonesync/pkg/store/memstore"
)

var testNow = time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)

type fixture struct {
	store *memstore.Store
	tasks *Collection[models.Task]
	owner atomic.Value
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{store: memstore.New()}
	f.owner.Store("u1")

	var seq atomic.Int64
	var tick atomic.Int64
	tasks, err := New(constants.CollectionTasks, f.store, models.DecodeTask,
		WithOwner(func() string { return f.owner.Load().(string) }),
		WithIDGenerator(func() string { return fmt.Sprintf("t%d", seq.Add(1)) }),
		WithClock(func() time.Time { return testNow.Add(time.Duration(tick.Add(1)) * time.Second) }),
	)
	require.NoError(t, err)
	f.tasks = tasks
	return f
}

func ids(tasks []models.Task) []string {
	out := make([]string, 0, len(tasks))
	for _, t := range tasks {
		out = append(out, t.ID)
	}
	return out
}

func wait(t *testing.T, ch <-chan struct{}) {
	t.Helper()
	select {
	case <-ch:
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for the store call")
	}
}

func TestNewRequiresStore(t *testing.T) {
	_, err := New[models.Task]("tasks", nil, models.DecodeTask)
	assert.ErrorIs(t, err, constants.ErrNoStore)
}

func TestCreateIsVisibleBeforePersist(t *testing.T) {
	f := newFixture(t)
	gate := f.store.Hold(memstore.Matcher{Method: memstore.MethodCreate}, nil)

	task, done, err := f.tasks.CreateAsync(context.Background(), models.TaskDraft{Title: "X", ListID: "L"})
	require.NoError(t, err)
	wait(t, gate.Entered())

	assert.NotEmpty(t, task.ID)
	assert.Equal(t, "u1", task.UserID)
	assert.Equal(t, models.StatusTodo, task.Status)
	assert.False(t, task.Completed)
	assert.Equal(t, task.CreatedAt, task.UpdatedAt)
	assert.Equal(t, []models.Task{task}, f.tasks.All())

	_, persisted := f.store.Get("tasks", task.ID)
	assert.False(t, persisted)

	gate.Release()
	require.NoError(t, <-done)
	doc, persisted := f.store.Get("tasks", task.ID)
	require.True(t, persisted)
	assert.Equal(t, "X", doc[models.FieldTitle])
	assert.Nil(t, doc[models.FieldDueDate])
}

func TestCreateRequiresIdentity(t *testing.T) {
	f := newFixture(t)
	f.owner.Store("")

	_, err := f.tasks.Create(context.Background(), models.TaskDraft{Title: "X", ListID: "L"})
	assert.ErrorIs(t, err, constants.ErrNotAuthenticated)
	assert.Equal(t, 0, f.tasks.Len())
	assert.Equal(t, 0, f.store.Calls(memstore.MethodCreate))
}

func TestFailedMutationsRestoreMapping(t *testing.T) {
	ctx := context.Background()
	boom := fmt.Errorf("%w: connection reset", constants.ErrRemoteUnavailable)

	f := newFixture(t)
	a, err := f.tasks.Create(ctx, models.TaskDraft{Title: "A", ListID: "L", Order: 1})
	require.NoError(t, err)
	_, err = f.tasks.Create(ctx, models.TaskDraft{Title: "B", ListID: "L", Tags: []string{"x"}})
	require.NoError(t, err)

	t.Run("create", func(t *testing.T) {
		before := f.tasks.All()
		f.store.FailNext(memstore.Matcher{Method: memstore.MethodCreate}, boom)
		_, err := f.tasks.Create(ctx, models.TaskDraft{Title: "C", ListID: "L"})
		assert.ErrorIs(t, err, constants.ErrRemoteUnavailable)
		assert.Equal(t, before, f.tasks.All())
	})

	t.Run("update", func(t *testing.T) {
		before := f.tasks.All()
		f.store.FailNext(memstore.Matcher{Method: memstore.MethodUpdate}, constants.ErrPermissionDenied)
		ok, err := f.tasks.Update(ctx, a.ID, models.TaskPatch{
			Title: models.Ptr("A2"),
			Unset: []models.Field{models.FieldTags},
		})
		assert.True(t, ok)
		assert.ErrorIs(t, err, constants.ErrPermissionDenied)
		assert.Equal(t, before, f.tasks.All())
	})

	t.Run("delete", func(t *testing.T) {
		before := f.tasks.All()
		f.store.FailNext(memstore.Matcher{Method: memstore.MethodDelete}, boom)
		err := f.tasks.Delete(ctx, a.ID)
		assert.ErrorIs(t, err, constants.ErrRemoteUnavailable)
		assert.Equal(t, before, f.tasks.All())
	})
}

func TestUpdateInFlightThenRollback(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	task, err := f.tasks.Create(ctx, models.TaskDraft{Title: "A", ListID: "L"})
	require.NoError(t, err)

	gate := f.store.Hold(memstore.Matcher{Method: memstore.MethodUpdate}, constants.ErrRemoteUnavailable)
	next, done, ok := f.tasks.UpdateAsync(ctx, task.ID, models.TaskPatch{Completed: models.Ptr(true)})
	require.True(t, ok)
	wait(t, gate.Entered())

	assert.True(t, next.Completed)
	assert.True(t, next.UpdatedAt.After(task.UpdatedAt))
	got, _ := f.tasks.Get(task.ID)
	assert.Equal(t, next, got)

	gate.Release()
	assert.ErrorIs(t, <-done, constants.ErrRemoteUnavailable)
	got, _ = f.tasks.Get(task.ID)
	assert.Equal(t, task, got)
}

func TestUpdateUnknownIsNoop(t *testing.T) {
	f := newFixture(t)
	ok, err := f.tasks.Update(context.Background(), "nope", models.TaskPatch{Title: models.Ptr("x")})
	assert.False(t, ok)
	assert.NoError(t, err)
	assert.Equal(t, 0, f.store.Calls(memstore.MethodUpdate))
}

func TestUpdateSendsOnlyChangedFields(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	due := testNow.Add(24 * time.Hour)
	task, err := f.tasks.Create(ctx, models.TaskDraft{Title: "A", ListID: "L", DueDate: &due})
	require.NoError(t, err)

	f.store.Put("tasks", models.Document{"id": task.ID, "title": "server", "marker": true})
	_, err = f.tasks.Update(ctx, task.ID, models.TaskPatch{Unset: []models.Field{models.FieldDueDate}})
	require.NoError(t, err)

	doc, ok := f.store.Get("tasks", task.ID)
	require.True(t, ok)
	assert.Equal(t, "server", doc[models.FieldTitle])
	assert.Equal(t, true, doc["marker"])
	assert.Nil(t, doc[models.FieldDueDate])
	assert.Contains(t, doc, models.FieldUpdatedAt)
}

func TestDeleteAbsentStillCallsStore(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.tasks.Delete(context.Background(), "ghost"))
	assert.Equal(t, 1, f.store.Calls(memstore.MethodDelete))

	f.store.FailNext(memstore.Matcher{Method: memstore.MethodDelete}, constants.ErrRemoteUnavailable)
	err := f.tasks.Delete(context.Background(), "ghost")
	assert.ErrorIs(t, err, constants.ErrRemoteUnavailable)
	assert.Equal(t, 0, f.tasks.Len())
}

func TestMutationsOnDifferentRecordsDoNotInterfere(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	a, err := f.tasks.Create(ctx, models.TaskDraft{Title: "A", ListID: "L"})
	require.NoError(t, err)
	b, err := f.tasks.Create(ctx, models.TaskDraft{Title: "B", ListID: "L"})
	require.NoError(t, err)

	gate := f.store.Hold(memstore.Matcher{Method: memstore.MethodUpdate, ID: a.ID}, constants.ErrRemoteUnavailable)
	_, failA, _ := f.tasks.UpdateAsync(ctx, a.ID, models.TaskPatch{Title: models.Ptr("A2")})
	wait(t, gate.Entered())

	_, err = f.tasks.Update(ctx, b.ID, models.TaskPatch{Title: models.Ptr("B2")})
	require.NoError(t, err)

	gate.Release()
	assert.Error(t, <-failA)

	gotA, _ := f.tasks.Get(a.ID)
	gotB, _ := f.tasks.Get(b.ID)
	assert.Equal(t, "A", gotA.Title)
	assert.Equal(t, "B2", gotB.Title)
}

func TestRollbackAfterClearIsDropped(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	task, err := f.tasks.Create(ctx, models.TaskDraft{Title: "A", ListID: "L"})
	require.NoError(t, err)

	gate := f.store.Hold(memstore.Matcher{Method: memstore.MethodDelete}, constants.ErrRemoteUnavailable)
	done := f.tasks.DeleteAsync(ctx, task.ID)
	wait(t, gate.Entered())

	f.tasks.Clear()
	gate.Release()
	assert.Error(t, <-done)
	assert.Equal(t, 0, f.tasks.Len())
}

func TestRollbackKeepsNewerSnapshot(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	require.NoError(t, f.tasks.Subscribe(ctx, "u1"))
	task, err := f.tasks.Create(ctx, models.TaskDraft{Title: "A", ListID: "L"})
	require.NoError(t, err)

	gate := f.store.Hold(memstore.Matcher{Method: memstore.MethodUpdate}, constants.ErrRemoteUnavailable)
	_, done, ok := f.tasks.UpdateAsync(ctx, task.ID, models.TaskPatch{Title: models.Ptr("A2")})
	require.True(t, ok)
	wait(t, gate.Entered())

	// Another client deletes the record while the update is in flight.
	f.store.Remove(constants.CollectionTasks, task.ID)
	_, ok = f.tasks.Get(task.ID)
	require.False(t, ok)

	gate.Release()
	assert.ErrorIs(t, <-done, constants.ErrRemoteUnavailable)
	_, ok = f.tasks.Get(task.ID)
	assert.False(t, ok)
	assert.Equal(t, 0, f.tasks.Len())
}

func TestRollbackAfterUnrelatedSnapshotKeepsRemoteValue(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	require.NoError(t, f.tasks.Subscribe(ctx, "u1"))
	task, err := f.tasks.Create(ctx, models.TaskDraft{Title: "A", ListID: "L"})
	require.NoError(t, err)

	gate := f.store.Hold(memstore.Matcher{Method: memstore.MethodDelete}, constants.ErrRemoteUnavailable)
	done := f.tasks.DeleteAsync(ctx, task.ID)
	wait(t, gate.Entered())

	// A snapshot caused by someone else's write still carries the record.
	f.store.Put(constants.CollectionTasks, models.Document{
		models.FieldID: "other", models.FieldUserID: "u2", models.FieldOrder: 0,
	})
	got, ok := f.tasks.Get(task.ID)
	require.True(t, ok)
	assert.Equal(t, "A", got.Title)

	gate.Release()
	assert.Error(t, <-done)
	got, ok = f.tasks.Get(task.ID)
	require.True(t, ok)
	assert.Equal(t, "A", got.Title)
}

func TestSubscribeReplacesWholesale(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.store.Put("tasks", models.Document{"id": "a", "title": "A", "userId": "u1", "listId": "L", "order": 2})
	f.store.Put("tasks", models.Document{"id": "b", "title": "B", "userId": "u1", "listId": "L", "order": 0})
	f.store.Put("tasks", models.Document{"id": "c", "title": "C", "userId": "u1", "listId": "L", "order": 1})
	f.store.Put("tasks", models.Document{"id": "z", "title": "Z", "userId": "u2", "listId": "L"})

	// a local-only record is dropped by the next snapshot
	gate := f.store.Hold(memstore.Matcher{Method: memstore.MethodCreate}, nil)
	_, done, err := f.tasks.CreateAsync(ctx, models.TaskDraft{Title: "pending", ListID: "L"})
	require.NoError(t, err)
	wait(t, gate.Entered())
	require.Equal(t, 1, f.tasks.Len())

	require.NoError(t, f.tasks.Subscribe(ctx, "u1"))
	assert.Equal(t, []string{"b", "c", "a"}, ids(f.tasks.All()))

	gate.Release()
	require.NoError(t, <-done)
	assert.Equal(t, 4, f.tasks.Len())

	f.store.Remove("tasks", "c")
	assert.Equal(t, []string{"b", "t1", "a"}, ids(f.tasks.All()))
}

func TestSubscribeIsIdempotent(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	require.NoError(t, f.tasks.Subscribe(ctx, "u1"))
	require.NoError(t, f.tasks.Subscribe(ctx, "u1"))
	assert.Equal(t, 1, f.store.Subscriptions())
	assert.True(t, f.tasks.Subscribed())
	assert.Equal(t, "u1", f.tasks.Scope())

	f.tasks.Unsubscribe()
	f.tasks.Unsubscribe()
	assert.Equal(t, 0, f.store.Subscriptions())
	assert.False(t, f.tasks.Subscribed())

	// no delivery after unsubscribe
	f.store.Put("tasks", models.Document{"id": "a", "title": "A", "userId": "u1", "listId": "L"})
	assert.Equal(t, 0, f.tasks.Len())
}

func TestSubscribeFailure(t *testing.T) {
	f := newFixture(t)
	f.store.FailNext(memstore.Matcher{Method: memstore.MethodSubscribe}, constants.ErrPermissionDenied)

	err := f.tasks.Subscribe(context.Background(), "u1")
	assert.ErrorIs(t, err, constants.ErrPermissionDenied)
	assert.False(t, f.tasks.Subscribed())

	require.NoError(t, f.tasks.Subscribe(context.Background(), "u1"))
	assert.True(t, f.tasks.Subscribed())
}

func TestSubscriptionErrorKeepsLastSnapshot(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.store.Put("tasks", models.Document{"id": "a", "title": "A", "userId": "u1", "listId": "L"})
	require.NoError(t, f.tasks.Subscribe(ctx, "u1"))

	f.store.FailSubscriptions("tasks", constants.ErrRemoteUnavailable)
	assert.Equal(t, []string{"a"}, ids(f.tasks.All()))
}

func TestUndecodableDocumentsAreSkipped(t *testing.T) {
	f := newFixture(t)
	f.store.Put("tasks", models.Document{"id": "a", "title": "A", "userId": "u1", "listId": "L"})
	f.store.Put("tasks", models.Document{"id": "b", "userId": "u1", "status": "LATER"})

	require.NoError(t, f.tasks.Subscribe(context.Background(), "u1"))
	assert.Equal(t, []string{"a"}, ids(f.tasks.All()))
}

func TestOnChange(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	var n atomic.Int32
	cancel := f.tasks.OnChange(func() { n.Add(1) })

	task, err := f.tasks.Create(ctx, models.TaskDraft{Title: "A", ListID: "L"})
	require.NoError(t, err)
	assert.Equal(t, int32(1), n.Load())

	f.store.FailNext(memstore.Matcher{Method: memstore.MethodDelete}, constants.ErrRemoteUnavailable)
	assert.Error(t, f.tasks.Delete(ctx, task.ID))
	assert.Equal(t, int32(3), n.Load())

	cancel()
	f.tasks.Clear()
	assert.Equal(t, int32(3), n.Load())
}

func TestFilter(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	for i, list := range []string{"L1", "L2", "L1"} {
		_, err := f.tasks.Create(ctx, models.TaskDraft{Title: "T", ListID: list, Order: 3 - i})
		require.NoError(t, err)
	}
	got := f.tasks.Filter(func(t models.Task) bool { return t.ListID == "L1" })
	assert.Equal(t, []string{"t3", "t1"}, ids(got))
}

// Every successful sequence leaves the local mapping equal to the store's
// own state.
func TestReplayEquivalence(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	require.NoError(t, f.tasks.Subscribe(ctx, "u1"))

	var created []string
	for i := 0; i < 6; i++ {
		task, err := f.tasks.Create(ctx, models.TaskDraft{Title: fmt.Sprintf("T%d", i), ListID: "L", Order: i % 3})
		require.NoError(t, err)
		created = append(created, task.ID)
	}
	_, err := f.tasks.Update(ctx, created[1], models.TaskPatch{Completed: models.Ptr(true), Tags: []string{"a"}})
	require.NoError(t, err)
	_, err = f.tasks.Update(ctx, created[4], models.TaskPatch{Order: models.Ptr(-1)})
	require.NoError(t, err)
	require.NoError(t, f.tasks.Delete(ctx, created[2]))
	require.NoError(t, f.tasks.Delete(ctx, "ghost"))

	var want []models.Task
	for _, doc := range f.store.Documents("tasks") {
		task, err := models.DecodeTask(doc)
		require.NoError(t, err)
		want = append(want, task)
	}
	assert.Equal(t, want, f.tasks.All())

	f.tasks.Unsubscribe()
	local := f.tasks.All()
	f.tasks.Clear()
	require.NoError(t, f.tasks.Subscribe(ctx, "u1"))
	assert.Equal(t, local, f.tasks.All())
}

func TestFailedPersistIsLogged(t *testing.T) {
	ctx := context.Background()
	log := testenv.NewLogger()
	st := memstore.New()
	tasks, err := New(constants.CollectionTasks, st, models.DecodeTask,
		WithOwner(func() string { return "u1" }),
		WithIDGenerator(func() string { return "t1" }),
		WithLogger(log),
	)
	require.NoError(t, err)

	st.FailNext(memstore.Matcher{Method: memstore.MethodCreate}, constants.ErrRemoteUnavailable)
	_, err = tasks.Create(ctx, models.TaskDraft{Title: "A", ListID: "L"})
	require.Error(t, err)

	assert.True(t, log.Contains("WARN", "collection: persist failed"), log.Entries())
	assert.Contains(t, log.Entries()[0], "rolled_back=true")
	assert.Contains(t, log.Entries()[0], "id=t1")
}
