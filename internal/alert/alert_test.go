package alert

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

func TestDerive(t *testing.T) {
	ctx := context.Background()
	gormDB, err := db.Init(&config.DatabaseConfig{Driver: "sqlite", DSN: ":memory:", MaxOpenConns: 1})
	require.NoError(t, err)
	t.Cleanup(func() {
		sqlDB, _ := gormDB.DB()
		sqlDB.Close()
	})
	s := store.NewGormStore(gormDB)
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

	for _, code := range []string{"A1", "A2", "A3"} {
		require.NoError(t, s.CreateCabinet(ctx, &model.Cabinet{Code: code, Size: model.SizeSmall, Station: "north", PricePerHour: 100}))
	}
	maintenance := model.CabinetMaintenance
	a3, err := s.GetCabinet(ctx, "A3")
	require.NoError(t, err)
	require.NoError(t, s.UpdateCabinet(ctx, a3, store.CabinetUpdate{Status: &maintenance}))

	// offline: active, heartbeat 11 minutes ago
	offline := &model.Device{Code: "LK-OFF", Station: "north", IsActive: true}
	require.NoError(t, s.CreateDevice(ctx, offline, nil))
	require.NoError(t, s.RecordHeartbeat(ctx, offline.ID, now.Add(-11*time.Minute), nil))

	// never seen: not reported as offline
	require.NoError(t, s.CreateDevice(ctx, &model.Device{Code: "LK-NEW", Station: "north", IsActive: true}, nil))

	// inactive and stale: ignored
	inactive := &model.Device{Code: "LK-OLD", Station: "north", IsActive: false}
	require.NoError(t, s.CreateDevice(ctx, inactive, nil))
	low := 5
	require.NoError(t, s.RecordHeartbeat(ctx, inactive.ID, now.Add(-time.Hour), &low))

	// low battery, online
	weak := &model.Device{Code: "LK-LOW", Station: "south", IsActive: true}
	require.NoError(t, s.CreateDevice(ctx, weak, nil))
	battery := 12
	require.NoError(t, s.RecordHeartbeat(ctx, weak.ID, now.Add(-time.Minute), &battery))

	// overdue in_use order on A1, on-time paid order on A2
	_, err = s.EnsureUser(ctx, 1)
	require.NoError(t, err)
	a1, err := s.GetCabinet(ctx, "A1")
	require.NoError(t, err)
	a2, err := s.GetCabinet(ctx, "A2")
	require.NoError(t, err)
	pastEnd := now.Add(-90 * time.Minute)
	futureEnd := now.Add(time.Hour)
	require.NoError(t, s.CreateOrder(ctx, &model.Order{OrderNo: "O-LATE", UserID: 1, CabinetID: a1.ID, Status: model.OrderInUse, DurationHours: 1, EndTime: &pastEnd, CreatedAt: now}))
	require.NoError(t, s.CreateOrder(ctx, &model.Order{OrderNo: "O-OK", UserID: 1, CabinetID: a2.ID, Status: model.OrderInUse, DurationHours: 1, EndTime: &futureEnd, CreatedAt: now}))

	deriver := NewDeriver(s, Thresholds{OfflineAfter: 10 * time.Minute, LowBatteryPercent: 20})
	alerts, err := deriver.Derive(ctx, now)
	require.NoError(t, err)

	byType := map[Type][]Alert{}
	for _, a := range alerts {
		byType[a.Type] = append(byType[a.Type], a)
	}

	require.Len(t, byType[DeviceOffline], 1)
	assert.Equal(t, "LK-OFF", byType[DeviceOffline][0].DeviceID)
	assert.Equal(t, LevelWarning, byType[DeviceOffline][0].Level)

	require.Len(t, byType[LowBattery], 1)
	assert.Equal(t, "LK-LOW", byType[LowBattery][0].DeviceID)
	assert.Equal(t, "south", byType[LowBattery][0].Station)

	require.Len(t, byType[OrderOverdue], 1)
	assert.Equal(t, "O-LATE", byType[OrderOverdue][0].OrderNo)
	assert.Equal(t, "A1", byType[OrderOverdue][0].CabinetID)
	assert.Contains(t, byType[OrderOverdue][0].Message, "1h30m0s")

	require.Len(t, byType[CabinetMaintenance], 1)
	assert.Equal(t, "A3", byType[CabinetMaintenance][0].CabinetID)
	assert.Equal(t, LevelInfo, byType[CabinetMaintenance][0].Level)

	assert.Equal(t, map[Level]int{LevelInfo: 1, LevelWarning: 3}, Count(alerts))
}

func TestDerive_Empty(t *testing.T) {
	gormDB, err := db.Init(&config.DatabaseConfig{Driver: "sqlite", DSN: ":memory:", MaxOpenConns: 1})
	require.NoError(t, err)
	t.Cleanup(func() {
		sqlDB, _ := gormDB.DB()
		sqlDB.Close()
	})

	alerts, err := NewDeriver(store.NewGormStore(gormDB), Thresholds{OfflineAfter: 10 * time.Minute, LowBatteryPercent: 20}).
		Derive(context.Background(), time.Now().UTC())
	require.NoError(t, err)
	assert.NotNil(t, alerts)
	assert.Empty(t, alerts)
}
