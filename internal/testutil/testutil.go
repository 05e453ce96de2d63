// Package testutil holds shared fixtures for package tests.
package testutil

import (
	"fmt"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"

	"table-booking-backend/internal/db"
	"table-booking-backend/internal/model"
)

// NewDB opens a private in-memory sqlite database with the full schema. A
// single connection keeps the database alive and serializes concurrent
// callers the way a sqlite deployment does.
func NewDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString())
	gormDB, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)

	sqlDB, err := gormDB.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { sqlDB.Close() })

	require.NoError(t, gormDB.AutoMigrate(db.Models...))
	return gormDB
}

// Seed inserts rooms and their tables as given. Tables without a status start free.
func Seed(t *testing.T, gormDB *gorm.DB, rooms ...model.Room) {
	t.Helper()
	for _, r := range rooms {
		room := model.Room{ID: r.ID, Name: r.Name}
		require.NoError(t, gormDB.Omit(clause.Associations).Create(&room).Error)
		for _, tbl := range r.Tables {
			tbl.RoomID = room.ID
			if tbl.Status == "" {
				tbl.Status = model.TableFree
			}
			if tbl.Name == "" {
				tbl.Name = fmt.Sprintf("Mesa %d", tbl.ID)
			}
			require.NoError(t, gormDB.Omit(clause.Associations).Create(&tbl).Error)
		}
	}
}

// Patio is a room with capacities {2, 4, 4, 6} on tables 1 to 4.
func Patio() model.Room {
	return model.Room{ID: 1, Name: "Patio", Tables: []model.Table{
		{ID: 1, Capacity: 2},
		{ID: 2, Capacity: 4},
		{ID: 3, Capacity: 4},
		{ID: 4, Capacity: 6},
	}}
}

// Logger returns a logger that discards everything.
func Logger() logrus.FieldLogger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}

// Clock is a settable time source.
type Clock struct {
	mu  sync.Mutex
	now time.Time
}

// NewClock returns a clock stopped at now.
func NewClock(now time.Time) *Clock {
	return &Clock{now: now}
}

// Now returns the current fake time.
func (c *Clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

// Set moves the clock to now.
func (c *Clock) Set(now time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = now
}

// Advance moves the clock forward by d.
func (c *Clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}
