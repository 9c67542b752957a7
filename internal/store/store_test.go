package store

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/go-logr/logr"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "test.db"), logr.Discard())
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestCreateAndGetSession(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	sess, err := s.CreateSession(ctx, &Session{Status: SessionStatusPlanning})
	require.NoError(t, err)
	assert.NotEmpty(t, sess.ID)
	assert.Equal(t, SessionStatusPlanning, sess.Status)

	got, err := s.GetSession(ctx, sess.ID)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, sess.ID, got.ID)
}

func TestGetSessionUnknownReturnsNil(t *testing.T) {
	s := newTestStore(t)
	got, err := s.GetSession(context.Background(), "missing")
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestUpdateSessionNotFound(t *testing.T) {
	s := newTestStore(t)
	status := SessionStatusExecuting
	_, err := s.UpdateSession(context.Background(), "missing", SessionUpdate{Status: &status})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "SESSION_NOT_FOUND")
}

func TestUpdateSessionRawPlanRoundTrip(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	sess, err := s.CreateSession(ctx, nil)
	require.NoError(t, err)

	plan := `[{"description":"Task 1"},{"description":"Task 2"}]`
	updated, err := s.UpdateSession(ctx, sess.ID, SessionUpdate{RawPlan: &plan})
	require.NoError(t, err)
	assert.Equal(t, plan, updated.RawPlan)
}

func TestUpdateSessionTerminalStatusLocked(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	sess, err := s.CreateSession(ctx, &Session{Status: SessionStatusCompleted})
	require.NoError(t, err)

	failed := SessionStatusFailed
	_, err = s.UpdateSession(ctx, sess.ID, SessionUpdate{Status: &failed})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "SESSION_STATE_INVALID")

	got, err := s.GetSession(ctx, sess.ID)
	require.NoError(t, err)
	assert.Equal(t, SessionStatusCompleted, got.Status)

	// Re-asserting the same terminal status is an idempotent no-op, and
	// non-status fields stay writable.
	completed := SessionStatusCompleted
	plan := `[{"description":"Task 1"}]`
	updated, err := s.UpdateSession(ctx, sess.ID, SessionUpdate{Status: &completed, RawPlan: &plan})
	require.NoError(t, err)
	assert.Equal(t, SessionStatusCompleted, updated.Status)
	assert.Equal(t, plan, updated.RawPlan)
}

func TestInsertTaskOrderAssignment(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	sess, err := s.CreateSession(ctx, nil)
	require.NoError(t, err)

	for i := 0; i < 4; i++ {
		_, err := s.InsertTask(ctx, sess.ID, "step", nil)
		require.NoError(t, err)
	}

	tasks, err := s.ListTasks(ctx, sess.ID)
	require.NoError(t, err)
	require.Len(t, tasks, 4)
	for i, task := range tasks {
		assert.Equal(t, i, task.Order)
		assert.Equal(t, TaskStatusPending, task.Status)
	}
}

func TestInsertTaskConcurrentOrderMonotonic(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	sess, err := s.CreateSession(ctx, nil)
	require.NoError(t, err)

	const n = 10
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := s.InsertTask(ctx, sess.ID, "concurrent step", nil)
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	tasks, err := s.ListTasks(ctx, sess.ID)
	require.NoError(t, err)
	require.Len(t, tasks, n)
	for i, task := range tasks {
		assert.Equal(t, i, task.Order)
	}
}

func TestInsertTaskRejectsEmptyDescription(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	sess, err := s.CreateSession(ctx, nil)
	require.NoError(t, err)
	_, err = s.InsertTask(ctx, sess.ID, "", nil)
	assert.Error(t, err)
}

func TestUpdateTaskStatusAdvancesUpdatedAt(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	sess, err := s.CreateSession(ctx, nil)
	require.NoError(t, err)
	task, err := s.InsertTask(ctx, sess.ID, "step", nil)
	require.NoError(t, err)

	time.Sleep(10 * time.Millisecond)
	updated, err := s.UpdateTaskStatus(ctx, task.ID, TaskStatusInProgress)
	require.NoError(t, err)
	require.NotNil(t, updated)
	assert.Equal(t, TaskStatusInProgress, updated.Status)
	assert.True(t, updated.UpdatedAt.After(task.UpdatedAt))
}

func TestUpdateTaskStatusUnknownReturnsNil(t *testing.T) {
	s := newTestStore(t)
	task, err := s.UpdateTaskStatus(context.Background(), "missing", TaskStatusCompleted)
	require.NoError(t, err)
	assert.Nil(t, task)
}

func TestUpdateTaskHistoryRoundTrip(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	sess, err := s.CreateSession(ctx, nil)
	require.NoError(t, err)
	task, err := s.InsertTask(ctx, sess.ID, "step", nil)
	require.NoError(t, err)

	history := `[{"content":"TASK_COMPLETE"}]`
	updated, err := s.UpdateTask(ctx, task.ID, TaskUpdate{History: &history})
	require.NoError(t, err)
	assert.Equal(t, history, updated.History)
}

func TestDeleteSessionRemovesTasks(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	sess, err := s.CreateSession(ctx, nil)
	require.NoError(t, err)
	_, err = s.InsertTask(ctx, sess.ID, "step", nil)
	require.NoError(t, err)

	require.NoError(t, s.DeleteSession(ctx, sess.ID))

	got, err := s.GetSession(ctx, sess.ID)
	require.NoError(t, err)
	assert.Nil(t, got)
	tasks, err := s.ListTasks(ctx, sess.ID)
	require.NoError(t, err)
	assert.Empty(t, tasks)
}

func TestListSessionsLimit(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	for i := 0; i < 3; i++ {
		_, err := s.CreateSession(ctx, nil)
		require.NoError(t, err)
	}
	sessions, err := s.ListSessions(ctx, 2)
	require.NoError(t, err)
	assert.Len(t, sessions, 2)
}
