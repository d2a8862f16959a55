package outbox

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"smart-locker-backend/config"
	"smart-locker-backend/internal/db"
	"smart-locker-backend/internal/model"
	"smart-locker-backend/internal/store"
)

func newTestOutbox(t *testing.T) (*Outbox, store.Store, *model.Device) {
	gormDB, err := db.Init(&config.DatabaseConfig{Driver: "sqlite", DSN: ":memory:", MaxOpenConns: 1})
	require.NoError(t, err)
	t.Cleanup(func() {
		sqlDB, _ := gormDB.DB()
		sqlDB.Close()
	})
	s := store.NewGormStore(gormDB)
	d := &model.Device{Code: "LK-1", Station: "north", IsActive: true}
	require.NoError(t, s.CreateDevice(context.Background(), d, nil))
	return New(s, time.Minute), s, d
}

func TestPending_WindowFollowsHeartbeat(t *testing.T) {
	ctx := context.Background()
	ob, s, d := newTestOutbox(t)
	t0 := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

	_, err := ob.Enqueue(ctx, d.ID, model.LogOpen, "open A1", map[string]any{"cabinet_id": "A1"}, t0)
	require.NoError(t, err)

	// Heartbeat before the command: still pending.
	require.NoError(t, s.RecordHeartbeat(ctx, d.ID, t0.Add(-time.Second), nil))
	d, err = s.GetDevice(ctx, d.Code)
	require.NoError(t, err)
	cmd, err := ob.Pending(ctx, d, model.LogOpen, t0.Add(time.Second))
	require.NoError(t, err)
	require.NotNil(t, cmd)
	assert.Equal(t, "A1", cmd.Payload["cabinet_id"])

	// Polling again before any newer heartbeat returns the same command.
	again, err := ob.Pending(ctx, d, model.LogOpen, t0.Add(2*time.Second))
	require.NoError(t, err)
	require.NotNil(t, again)
	assert.Equal(t, cmd.ID, again.ID)

	// A newer heartbeat closes the window.
	require.NoError(t, s.RecordHeartbeat(ctx, d.ID, t0.Add(3*time.Second), nil))
	d, err = s.GetDevice(ctx, d.Code)
	require.NoError(t, err)
	cmd, err = ob.Pending(ctx, d, model.LogOpen, t0.Add(4*time.Second))
	require.NoError(t, err)
	assert.Nil(t, cmd)
}

func TestPending_LatestWins(t *testing.T) {
	ctx := context.Background()
	ob, _, d := newTestOutbox(t)
	t0 := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

	_, err := ob.Enqueue(ctx, d.ID, model.LogOpen, "", map[string]any{"cabinet_id": "A1"}, t0)
	require.NoError(t, err)
	_, err = ob.Enqueue(ctx, d.ID, model.LogOpen, "", map[string]any{"cabinet_id": "A2"}, t0.Add(time.Second))
	require.NoError(t, err)
	_, err = ob.Enqueue(ctx, d.ID, model.LogStatusQuery, "", map[string]any{"cabinet_ids": []string{"A1"}}, t0.Add(2*time.Second))
	require.NoError(t, err)

	cmd, err := ob.Pending(ctx, d, model.LogOpen, t0.Add(3*time.Second))
	require.NoError(t, err)
	require.NotNil(t, cmd)
	assert.Equal(t, "A2", cmd.Payload["cabinet_id"])
}

func TestPending_FirstPollWindow(t *testing.T) {
	ctx := context.Background()
	ob, _, d := newTestOutbox(t)
	t0 := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	require.Nil(t, d.LastHeartbeat)

	_, err := ob.Enqueue(ctx, d.ID, model.LogStatusQuery, "", map[string]any{"cabinet_ids": []string{"A1"}}, t0)
	require.NoError(t, err)

	cmd, err := ob.Pending(ctx, d, model.LogStatusQuery, t0.Add(59*time.Second))
	require.NoError(t, err)
	assert.NotNil(t, cmd, "inside the first-poll window")

	cmd, err = ob.Pending(ctx, d, model.LogStatusQuery, t0.Add(61*time.Second))
	require.NoError(t, err)
	assert.Nil(t, cmd, "older than the first-poll window")
}

func TestIn_UsesTransaction(t *testing.T) {
	ctx := context.Background()
	ob, s, d := newTestOutbox(t)
	t0 := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

	err := s.Transaction(ctx, func(tx store.Store) error {
		_, err := ob.In(tx).Enqueue(ctx, d.ID, model.LogOpen, "", map[string]any{"cabinet_id": "A1"}, t0)
		require.NoError(t, err)
		return assert.AnError
	})
	require.ErrorIs(t, err, assert.AnError)

	cmd, err := ob.Pending(ctx, d, model.LogOpen, t0)
	require.NoError(t, err)
	assert.Nil(t, cmd, "rolled back with the transaction")
}
