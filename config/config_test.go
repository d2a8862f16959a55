package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("database:\n  dsn: \"host=db\"\nauth:\n  jwt_secret: s\n"), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, 10.0, cfg.Server.RateLimitPerSec)
	assert.Equal(t, 5, cfg.Server.RateLimitBurst)
	assert.Equal(t, "postgres", cfg.Database.Driver)
	assert.Equal(t, 5*time.Minute, cfg.Device.OnlineWindow)
	assert.Equal(t, time.Minute, cfg.Device.FirstPollWindow)
	assert.Equal(t, 10*time.Minute, cfg.Device.OfflineAlertAfter)
	assert.Equal(t, 20, cfg.Device.LowBatteryPercent)
	assert.Equal(t, 1, cfg.WorkerPool.Size)
	assert.Equal(t, 3600, cfg.Push.TTL)
	assert.Equal(t, 5*time.Second, cfg.Simulator.Interval)
}

func TestLoad_Example(t *testing.T) {
	cfg, err := Load("config.example.yaml")
	require.NoError(t, err)

	assert.Equal(t, 20, cfg.Database.MaxOpenConns)
	assert.Equal(t, 2, cfg.WorkerPool.Size)
	assert.Equal(t, []string{"A1", "A2", "A3"}, cfg.Simulator.CabinetIDs)
	assert.Equal(t, "LK-001", cfg.Simulator.DeviceID)
}

func TestLoad_Errors(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)

	path := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte("server: [1, 2"), 0o600))
	_, err = Load(path)
	assert.Error(t, err)
}
