package memstore

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tonehq/tonesync/pkg/constants"
	"github.com/tonehq/tonesync/pkg/models"
	"github.com/tonehq/tonesync/pkg/store"
)

type recorder struct {
	snapshots [][]models.Document
	errs      []error
}

func (r *recorder) onSnapshot(docs []models.Document) { r.snapshots = append(r.snapshots, docs) }
func (r *recorder) onError(err error)                 { r.errs = append(r.errs, err) }

func (r *recorder) last() []string {
	if len(r.snapshots) == 0 {
		return nil
	}
	var ids []string
	for _, d := range r.snapshots[len(r.snapshots)-1] {
		ids = append(ids, d.ID())
	}
	return ids
}

func tasksQuery(owner string) store.Query {
	return store.Query{Collection: constants.CollectionTasks, OwnerID: owner, OrderBy: models.FieldOrder}
}

func TestSubscribeDeliversScopedSortedSnapshots(t *testing.T) {
	ctx := context.Background()
	s := New()
	s.Put("tasks", models.Document{"id": "a", "userId": "u1", "order": 2})
	s.Put("tasks", models.Document{"id": "x", "userId": "u2", "order": 0})

	var r recorder
	sub, err := s.SubscribeQuery(ctx, tasksQuery("u1"), r.onSnapshot, r.onError)
	require.NoError(t, err)
	assert.Equal(t, []string{"a"}, r.last())

	require.NoError(t, s.CreateDocument(ctx, "tasks", "b", models.Document{"userId": "u1", "order": 0}))
	require.NoError(t, s.CreateDocument(ctx, "tasks", "c", models.Document{"userId": "u1", "order": 1}))
	assert.Equal(t, []string{"b", "c", "a"}, r.last())

	// writes to another collection do not produce snapshots
	n := len(r.snapshots)
	require.NoError(t, s.CreateDocument(ctx, "lists", "l1", models.Document{"userId": "u1"}))
	assert.Len(t, r.snapshots, n)

	sub.Unsubscribe()
	sub.Unsubscribe()
	require.NoError(t, s.DeleteDocument(ctx, "tasks", "a"))
	assert.Len(t, r.snapshots, n)
	assert.Equal(t, 0, s.Subscriptions())
}

func TestUpdateMergesAndNullsFields(t *testing.T) {
	ctx := context.Background()
	s := New()
	require.NoError(t, s.CreateDocument(ctx, "tasks", "t1", models.Document{"title": "a", "dueDate": "x"}))
	require.NoError(t, s.UpdateDocument(ctx, "tasks", "t1", models.Document{"dueDate": nil}))

	doc, ok := s.Get("tasks", "t1")
	require.True(t, ok)
	assert.Equal(t, models.Document{"id": "t1", "title": "a", "dueDate": nil}, doc)

	err := s.UpdateDocument(ctx, "tasks", "missing", models.Document{"title": "b"})
	assert.ErrorIs(t, err, constants.ErrNotFound)

	assert.NoError(t, s.DeleteDocument(ctx, "tasks", "missing"))
}

func TestStubs(t *testing.T) {
	ctx := context.Background()
	s := New()
	boom := fmt.Errorf("%w: boom", constants.ErrRemoteUnavailable)

	s.FailNext(Matcher{Method: MethodCreate, Collection: "tasks"}, boom)
	err := s.CreateDocument(ctx, "tasks", "t1", models.Document{})
	assert.ErrorIs(t, err, constants.ErrRemoteUnavailable)
	_, ok := s.Get("tasks", "t1")
	assert.False(t, ok)

	// the stub was used up
	require.NoError(t, s.CreateDocument(ctx, "tasks", "t1", models.Document{}))

	s.AddStub(Stub{Matcher: Matcher{ID: "t1"}, Err: constants.ErrPermissionDenied})
	assert.ErrorIs(t, s.DeleteDocument(ctx, "tasks", "t1"), constants.ErrPermissionDenied)
	assert.ErrorIs(t, s.UpdateDocument(ctx, "tasks", "t1", nil), constants.ErrPermissionDenied)

	s.ClearStubs()
	assert.NoError(t, s.DeleteDocument(ctx, "tasks", "t1"))
	assert.Equal(t, 2, s.Calls(MethodCreate))
	assert.Equal(t, 2, s.Calls(MethodDelete))
}

func TestHoldGate(t *testing.T) {
	ctx := context.Background()
	s := New()
	gate := s.Hold(Matcher{Method: MethodCreate}, nil)

	done := make(chan error, 1)
	go func() {
		done <- s.CreateDocument(ctx, "tasks", "t1", models.Document{})
	}()

	select {
	case <-gate.Entered():
	case <-time.After(time.Second):
		t.Fatal("create never reached the gate")
	}
	_, ok := s.Get("tasks", "t1")
	assert.False(t, ok)

	gate.Release()
	require.NoError(t, <-done)
	_, ok = s.Get("tasks", "t1")
	assert.True(t, ok)
}

func TestHoldGateRespectsContext(t *testing.T) {
	s := New()
	s.Hold(Matcher{}, nil)
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	err := s.CreateDocument(ctx, "tasks", "t1", models.Document{})
	assert.True(t, errors.Is(err, context.DeadlineExceeded))
}

func TestFailSubscriptions(t *testing.T) {
	ctx := context.Background()
	s := New()
	var r recorder
	_, err := s.SubscribeQuery(ctx, tasksQuery("u1"), r.onSnapshot, r.onError)
	require.NoError(t, err)

	s.FailSubscriptions("tasks", constants.ErrRemoteUnavailable)
	require.Len(t, r.errs, 1)
	assert.ErrorIs(t, r.errs[0], constants.ErrRemoteUnavailable)
}

func TestSubscribeFailure(t *testing.T) {
	s := New()
	s.FailNext(Matcher{Method: MethodSubscribe}, constants.ErrPermissionDenied)
	_, err := s.SubscribeQuery(context.Background(), tasksQuery("u1"), nil, nil)
	assert.ErrorIs(t, err, constants.ErrPermissionDenied)
	assert.Equal(t, 0, s.Subscriptions())
}

func TestGetDocument(t *testing.T) {
	s := New()
	s.Put(constants.CollectionLists, models.Document{models.FieldID: "l1", models.FieldUserID: "u1"})

	doc, err := s.GetDocument(context.Background(), constants.CollectionLists, "l1")
	require.NoError(t, err)
	assert.Equal(t, "u1", doc[models.FieldUserID])

	doc[models.FieldUserID] = "u2"
	again, _ := s.Get(constants.CollectionLists, "l1")
	assert.Equal(t, "u1", again[models.FieldUserID])

	_, err = s.GetDocument(context.Background(), constants.CollectionLists, "missing")
	assert.ErrorIs(t, err, constants.ErrNotFound)
}
