package registry

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"table-booking-backend/internal/apperr"
	"table-booking-backend/internal/model"
	"table-booking-backend/internal/store"
	"table-booking-backend/internal/testutil"
)

func TestRegistry(t *testing.T) {
	ctx := context.Background()
	gormDB := testutil.NewDB(t)
	testutil.Seed(t, gormDB,
		testutil.Patio(),
		model.Room{ID: 2, Name: "Salon", Tables: []model.Table{{ID: 5, Capacity: 8}}},
		model.Room{ID: 3, Name: "Privado"},
	)
	reg := New(store.NewGormStore(gormDB), time.Minute)

	t.Run("ListTables", func(t *testing.T) {
		tables, err := reg.ListTables(ctx)
		require.NoError(t, err)
		require.Len(t, tables, 5)
		assert.Equal(t, int64(1), tables[0].ID)
		assert.Equal(t, model.TableFree, tables[0].Status)
	})

	t.Run("GetTable", func(t *testing.T) {
		tbl, err := reg.GetTable(ctx, 5)
		require.NoError(t, err)
		assert.Equal(t, 8, tbl.Capacity)

		_, err = reg.GetTable(ctx, 42)
		assert.ErrorIs(t, err, apperr.ErrNotFound)
	})

	t.Run("TablesByRoom", func(t *testing.T) {
		grouped, err := reg.TablesByRoom(ctx)
		require.NoError(t, err)
		require.Len(t, grouped, 3)
		assert.Equal(t, "Patio", grouped[0].Room.Name)
		assert.Len(t, grouped[0].Tables, 4)
		assert.Equal(t, int64(5), grouped[1].Tables[0].ID)
		assert.Empty(t, grouped[2].Tables)
	})

	t.Run("rooms are cached until invalidated", func(t *testing.T) {
		_, err := reg.Rooms(ctx)
		require.NoError(t, err)
		require.NoError(t, gormDB.Model(&model.Room{}).Where("id = ?", 1).Update("name", "Terraza").Error)

		rooms, err := reg.Rooms(ctx)
		require.NoError(t, err)
		assert.Equal(t, "Patio", rooms[0].Name)

		reg.invalidate()
		rooms, err = reg.Rooms(ctx)
		require.NoError(t, err)
		assert.Equal(t, "Terraza", rooms[0].Name)
	})
}

func TestGroup_DropsOrphans(t *testing.T) {
	grouped := Group(
		[]model.Room{{ID: 1, Name: "A"}},
		[]model.Table{{ID: 1, RoomID: 1}, {ID: 2, RoomID: 9}},
	)
	require.Len(t, grouped, 1)
	assert.Len(t, grouped[0].Tables, 1)
}
