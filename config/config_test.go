package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load(writeConfig(t, "server:\n  port: 9090\n"))
	require.NoError(t, err)

	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, "sqlite", cfg.Database.Driver)
	assert.Equal(t, 1, cfg.Database.MaxOpenConns)
	assert.Equal(t, 90, cfg.Booking.SlotMinutes)
	assert.Equal(t, 6, cfg.Booking.AutoAssignMaxGuests)
	assert.Equal(t, "12:00", cfg.Booking.OpeningTime)
	assert.False(t, cfg.Sweeper.Disabled, "the sweeper runs unless turned off")
	assert.Equal(t, time.Minute, cfg.Sweeper.Interval)
	assert.Equal(t, "local", cfg.Lock.Backend)
	assert.Equal(t, 1, cfg.WorkerPool.Size)
	assert.Equal(t, []string{"worker_pool.size is not set or invalid; defaulting to 1"}, cfg.Warnings)
	assert.Equal(t, []string{"staff", "admin"}, cfg.Auth.StaffRoles)
}

func TestLoad_FileValuesWin(t *testing.T) {
	cfg, err := Load(writeConfig(t, `
database:
  driver: postgres
  dsn: "host=db user=booking"
booking:
  slot_minutes: 120
  auto_assign_max_guests: 4
sweeper:
  disabled: true
  interval_seconds: 15
worker_pool:
  size: 4
`))
	require.NoError(t, err)

	assert.Equal(t, "postgres", cfg.Database.Driver)
	assert.Equal(t, 10, cfg.Database.MaxOpenConns)
	assert.Equal(t, 120, cfg.Booking.SlotMinutes)
	assert.Equal(t, 4, cfg.Booking.AutoAssignMaxGuests)
	assert.True(t, cfg.Sweeper.Disabled)
	assert.Equal(t, 4, cfg.WorkerPool.Size)
	assert.Empty(t, cfg.Warnings)
	assert.Equal(t, 15*time.Second, cfg.Sweeper.Interval)
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("BOOKING_DB_DSN", "file:env.db")
	t.Setenv("BOOKING_JWT_SECRET", "from-env")
	t.Setenv("BOOKING_PORT", "7000")

	cfg, err := Load(writeConfig(t, "database:\n  dsn: file:yaml.db\nauth:\n  jwt_secret: from-file\n"))
	require.NoError(t, err)

	assert.Equal(t, "file:env.db", cfg.Database.DSN)
	assert.Equal(t, "from-env", cfg.Auth.JWTSecret)
	assert.Equal(t, 7000, cfg.Server.Port)
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}

func TestDefault_SweeperOn(t *testing.T) {
	cfg := Default()
	assert.False(t, cfg.Sweeper.Disabled)
	assert.Equal(t, time.Minute, cfg.Sweeper.Interval)
	assert.Equal(t, 1, cfg.WorkerPool.Size)
}
