package tasks

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pyrusbridge/tgbridge/internal/database"
)

type stubStore struct {
	database.Store
	expiredBefore time.Time
	removed       int64
	maintained    int
	err           error
}

func (s *stubStore) DeleteExpiredStates(_ context.Context, now time.Time) (int64, error) {
	s.expiredBefore = now
	return s.removed, s.err
}

func (s *stubStore) RunSQLMaintenance(context.Context) error {
	s.maintained++
	return s.err
}

func testDeps(store database.Store, now time.Time) TaskDeps {
	return TaskDeps{
		Logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
		Store:  store,
		Now:    func() time.Time { return now },
	}
}

func TestRegisterAllTasks(t *testing.T) {
	t.Parallel()

	got := RegisterAllTasks(testDeps(&stubStore{}, time.Now()))
	assert.Len(t, got, 2)
	assert.Contains(t, got, "state_cleanup")
	assert.Contains(t, got, "sql_maintenance")
}

func TestStateCleanupTask(t *testing.T) {
	t.Parallel()

	now := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	store := &stubStore{removed: 3}
	require.NoError(t, newStateCleanupTask(testDeps(store, now))(context.Background()))
	assert.Equal(t, now, store.expiredBefore)

	store.err = errors.New("disk full")
	err := newStateCleanupTask(testDeps(store, now))(context.Background())
	assert.ErrorIs(t, err, store.err)
}

func TestSQLMaintenanceTask(t *testing.T) {
	t.Parallel()

	now := time.Date(2025, 3, 1, 3, 30, 0, 0, time.UTC)
	store := &stubStore{removed: 2}
	task := newSQLMaintenanceTask(testDeps(store, now))
	require.NoError(t, task(context.Background()))
	assert.Equal(t, 1, store.maintained)
	assert.Equal(t, now, store.expiredBefore, "expired states are pruned before compaction")

	store.err = errors.New("locked")
	err := task(context.Background())
	assert.ErrorIs(t, err, store.err)
	assert.ErrorContains(t, err, "compact state database")
	assert.Equal(t, 2, store.maintained, "compaction still runs when pruning fails")
}

func TestStateCleanupAgainstSQLite(t *testing.T) {
	t.Parallel()

	db, err := database.NewDB(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { database.CloseDB(db) })

	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	store := database.NewStore(db, time.Minute, log)
	ctx := context.Background()
	require.NoError(t, store.SaveState(ctx, &database.RegistrationState{TelegramID: 1, Step: database.StepAwaitingName}))

	task := newStateCleanupTask(TaskDeps{Logger: log, Store: store, Now: func() time.Time { return time.Now().Add(2 * time.Minute) }})
	require.NoError(t, task(ctx))

	st, err := store.GetState(ctx, 1)
	require.NoError(t, err)
	assert.Nil(t, st)
}
