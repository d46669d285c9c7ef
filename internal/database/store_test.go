package database

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *sqlxStore {
	t.Helper()

	db, err := NewDB(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { CloseDB(db) })

	s, ok := NewStore(db, time.Minute, nil).(*sqlxStore)
	require.True(t, ok)
	return s
}

func TestSaveAndGetState(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	s := newTestStore(t)

	got, err := s.GetState(ctx, 7)
	require.NoError(t, err)
	assert.Nil(t, got, "absent state is nil without error")

	require.NoError(t, s.SaveState(ctx, &RegistrationState{TelegramID: 7, Step: StepAwaitingName}))
	got, err = s.GetState(ctx, 7)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, StepAwaitingName, got.Step)
	assert.Empty(t, got.FullName)

	require.NoError(t, s.SaveState(ctx, &RegistrationState{TelegramID: 7, Step: StepAwaitingPhone, FullName: "Иван Петров"}))
	got, err = s.GetState(ctx, 7)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, StepAwaitingPhone, got.Step)
	assert.Equal(t, "Иван Петров", got.FullName)

	require.NoError(t, s.DeleteState(ctx, 7))
	require.NoError(t, s.DeleteState(ctx, 7), "deleting a missing state is not an error")
	got, err = s.GetState(ctx, 7)
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestSaveStateValidation(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	s := newTestStore(t)

	tests := []struct {
		name  string
		state *RegistrationState
	}{
		{name: "nil", state: nil},
		{name: "zero id", state: &RegistrationState{Step: StepAwaitingName}},
		{name: "unknown step", state: &RegistrationState{TelegramID: 1, Step: "done"}},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			assert.Error(t, s.SaveState(ctx, tc.state))
		})
	}
}

func TestExpiredStates(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	s := newTestStore(t)

	base := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	s.now = func() time.Time { return base }
	require.NoError(t, s.SaveState(ctx, &RegistrationState{TelegramID: 1, Step: StepAwaitingName}))

	s.now = func() time.Time { return base.Add(30 * time.Second) }
	require.NoError(t, s.SaveState(ctx, &RegistrationState{TelegramID: 2, Step: StepAwaitingName}))

	// Past the first state's TTL but not the second's.
	s.now = func() time.Time { return base.Add(time.Minute + time.Second) }
	got, err := s.GetState(ctx, 1)
	require.NoError(t, err)
	assert.Nil(t, got, "expired state is not returned")

	got, err = s.GetState(ctx, 2)
	require.NoError(t, err)
	assert.NotNil(t, got)

	n, err := s.DeleteExpiredStates(ctx, s.now())
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	n, err = s.DeleteExpiredStates(ctx, base.Add(time.Hour))
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
}

func TestRunSQLMaintenance(t *testing.T) {
	t.Parallel()

	s := newTestStore(t)
	require.NoError(t, s.Ping(context.Background()))
	assert.NoError(t, s.RunSQLMaintenance(context.Background()))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, s.RunSQLMaintenance(ctx), context.Canceled)
}

func TestExtractDBNameFromPath(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in, want string
	}{
		{"storage.db", "storage.db"},
		{"file:storage.db?_pragma=busy_timeout(5000)", "storage.db"},
		{"file:my%20data.db", "my data.db"},
		{":memory:", ":memory:"},
	}
	for _, tc := range tests {
		assert.Equal(t, tc.want, ExtractDBNameFromPath(tc.in), tc.in)
	}
}
