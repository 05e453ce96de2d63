package store

import (
	"context"
	"database/sql/driver"
	"errors"
	"reflect"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"table-booking-backend/internal/apperr"
	"table-booking-backend/internal/model"
	"table-booking-backend/internal/testutil"
)

// Any matches any driver argument.
type Any struct{}

// Match satisfies sqlmock.Argument.
func (a Any) Match(v driver.Value) bool {
	return true
}

// A helper function to create a mock database connection.
func newMockDB(t *testing.T) (*gorm.DB, sqlmock.Sqlmock) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)

	gormDB, err := gorm.Open(postgres.New(postgres.Config{
		Conn: db,
	}), &gorm.Config{})
	require.NoError(t, err)

	return gormDB, mock
}

func TestGormStore_LockTableUsesRowLock(t *testing.T) {
	gormDB, mock := newMockDB(t)
	s := NewGormStore(gormDB)

	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT \* FROM "tables" WHERE "tables"."id" = \$1 ORDER BY "tables"."id" LIMIT \$2 FOR UPDATE`).
		WithArgs(int64(3), 1).
		WillReturnRows(sqlmock.NewRows([]string{"id", "room_id", "name", "capacity", "status"}).
			AddRow(3, 1, "Mesa 3", 4, "free"))
	mock.ExpectCommit()

	err := s.InTx(context.Background(), func(tx Tx) error {
		tbl, err := tx.LockTable(context.Background(), 3)
		require.NoError(t, err)
		assert.Equal(t, model.TableFree, tbl.Status)
		assert.Equal(t, 4, tbl.Capacity)
		return nil
	})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGormStore_SetTableStatus(t *testing.T) {
	now := time.Now()

	testCases := []struct {
		name             string
		mockExpectations func(mock sqlmock.Sqlmock)
		expectedErr      error
		expectedStatus   model.TableStatus
	}{
		{
			name: "archives the old period and updates the table",
			mockExpectations: func(mock sqlmock.Sqlmock) {
				mock.ExpectBegin()
				mock.ExpectQuery(regexp.QuoteMeta(`INSERT INTO "table_status_histories"`)).
					WithArgs(int64(3), "free", Any{}, Any{}, "occupy").
					WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(1))
				mock.ExpectExec(regexp.QuoteMeta(`UPDATE "tables" SET`)).
					WillReturnResult(sqlmock.NewResult(0, 1))
				mock.ExpectCommit()
			},
			expectedStatus: model.TableOccupied,
		},
		{
			name: "status changed underneath is a conflict",
			mockExpectations: func(mock sqlmock.Sqlmock) {
				mock.ExpectBegin()
				mock.ExpectQuery(regexp.QuoteMeta(`INSERT INTO "table_status_histories"`)).
					WithArgs(int64(3), "free", Any{}, Any{}, "occupy").
					WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(1))
				mock.ExpectExec(regexp.QuoteMeta(`UPDATE "tables" SET`)).
					WillReturnResult(sqlmock.NewResult(0, 0))
				mock.ExpectRollback()
			},
			expectedErr:    apperr.ErrConflict,
			expectedStatus: model.TableFree,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			gormDB, mock := newMockDB(t)
			s := NewGormStore(gormDB)
			tc.mockExpectations(mock)

			tbl := &model.Table{ID: 3, Status: model.TableFree, StatusSince: now.Add(-time.Hour)}
			err := s.InTx(context.Background(), func(tx Tx) error {
				return tx.SetTableStatus(context.Background(), tbl, model.TableOccupied, now, "occupy")
			})

			if tc.expectedErr != nil {
				assert.ErrorIs(t, err, tc.expectedErr)
			} else {
				assert.NoError(t, err)
			}
			assert.Equal(t, tc.expectedStatus, tbl.Status)
			assert.NoError(t, mock.ExpectationsWereMet())
		})
	}
}

func TestTranslateWrite(t *testing.T) {
	exclusion := &pgconn.PgError{Code: "23P01", ConstraintName: "reservations_no_overlap"}
	assert.ErrorIs(t, translateWrite(exclusion, "create reservation"), apperr.ErrConflict)
	assert.ErrorIs(t, translateWrite(gorm.ErrDuplicatedKey, "create reservation"), apperr.ErrConflict)

	other := translateWrite(errors.New("connection reset"), "create reservation")
	assert.NotErrorIs(t, other, apperr.ErrConflict)
	assert.Contains(t, other.Error(), "connection reset")
}

func TestGormStore_Sqlite(t *testing.T) {
	ctx := context.Background()
	gormDB := testutil.NewDB(t)
	testutil.Seed(t, gormDB, testutil.Patio())
	s := NewGormStore(gormDB)

	base := time.Date(2026, 10, 20, 19, 0, 0, 0, time.UTC)
	seated := base.Add(-3 * time.Hour)
	tableID := int64(2)
	reservations := []model.Reservation{
		{TableID: &tableID, Guests: 4, SlotStart: base, SlotEnd: base.Add(90 * time.Minute), Status: model.ReservationConfirmed},
		{TableID: &tableID, Guests: 4, SlotStart: base.Add(-3 * time.Hour), SlotEnd: base.Add(-90 * time.Minute), Status: model.ReservationConfirmed, SeatedAt: &seated},
		{TableID: &tableID, Guests: 2, SlotStart: base.Add(-4 * time.Hour), SlotEnd: base.Add(-150 * time.Minute), Status: model.ReservationConfirmed},
		{TableID: &tableID, Guests: 2, SlotStart: base.Add(time.Hour), SlotEnd: base.Add(150 * time.Minute), Status: model.ReservationCancelled},
	}
	for i := range reservations {
		require.NoError(t, s.CreateReservation(ctx, &reservations[i]))
	}

	t.Run("GetTable unknown id is NotFound", func(t *testing.T) {
		_, err := s.GetTable(ctx, 99)
		assert.ErrorIs(t, err, apperr.ErrNotFound)
	})

	t.Run("ListTables is ordered by id", func(t *testing.T) {
		tables, err := s.ListTables(ctx)
		require.NoError(t, err)
		require.Len(t, tables, 4)
		for i, tbl := range tables {
			assert.Equal(t, int64(i+1), tbl.ID)
		}
	})

	t.Run("ConfirmedOverlapping uses half-open slots", func(t *testing.T) {
		rs, err := s.ConfirmedOverlapping(ctx, base.Add(time.Hour), base.Add(150*time.Minute))
		require.NoError(t, err)
		require.Len(t, rs, 1)
		assert.Equal(t, reservations[0].ID, rs[0].ID)

		rs, err = s.ConfirmedOverlapping(ctx, base.Add(90*time.Minute), base.Add(3*time.Hour))
		require.NoError(t, err)
		assert.Empty(t, rs, "back to back slots do not overlap and cancelled rows are ignored")
	})

	t.Run("ConfirmedForTable filters by table", func(t *testing.T) {
		rs, err := s.ConfirmedForTable(ctx, 3, base, base.Add(90*time.Minute))
		require.NoError(t, err)
		assert.Empty(t, rs)
	})

	t.Run("UnseatedEndedBefore skips seated parties", func(t *testing.T) {
		rs, err := s.UnseatedEndedBefore(ctx, base)
		require.NoError(t, err)
		require.Len(t, rs, 1)
		assert.Equal(t, reservations[2].ID, rs[0].ID)
	})

	t.Run("status history is archived newest first", func(t *testing.T) {
		tbl, err := s.GetTable(ctx, 1)
		require.NoError(t, err)
		require.NoError(t, s.InTx(ctx, func(tx Tx) error {
			return tx.SetTableStatus(ctx, tbl, model.TableOccupied, base, "occupy")
		}))
		require.NoError(t, s.InTx(ctx, func(tx Tx) error {
			return tx.SetTableStatus(ctx, tbl, model.TableFree, base.Add(time.Hour), "free")
		}))

		hs, err := s.TableHistory(ctx, 1, 10)
		require.NoError(t, err)
		require.Len(t, hs, 2)
		assert.Equal(t, model.TableOccupied, hs[0].Status)
		assert.Equal(t, "free", hs[0].Cause)
		assert.Equal(t, time.Hour, hs[0].PeriodEnd.Sub(hs[0].PeriodStart))
		assert.Equal(t, model.TableFree, hs[1].Status)
	})
}

func TestGormStore_SeedCatalog(t *testing.T) {
	ctx := context.Background()
	s := NewGormStore(testutil.NewDB(t))
	now := time.Date(2026, 10, 20, 12, 0, 0, 0, time.UTC)

	rooms := []model.Room{{ID: 1, Name: "Patio", Tables: []model.Table{{ID: 1, Name: "Mesa 1", Capacity: 2}}}}
	require.NoError(t, s.SeedCatalog(ctx, rooms, now))

	tbl, err := s.GetTable(ctx, 1)
	require.NoError(t, err)
	require.NoError(t, s.InTx(ctx, func(tx Tx) error {
		return tx.SetTableStatus(ctx, tbl, model.TableOccupied, now, "occupy")
	}))

	rooms[0].Name = "Terraza"
	rooms[0].Tables[0].Capacity = 3
	rooms[0].Tables = append(rooms[0].Tables, model.Table{ID: 2, Name: "Mesa 2", Capacity: 4})
	require.NoError(t, s.SeedCatalog(ctx, rooms, now.Add(time.Hour)))

	got, err := s.ListRooms(ctx)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "Terraza", got[0].Name)

	tbl, err = s.GetTable(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, 3, tbl.Capacity)
	assert.Equal(t, model.TableOccupied, tbl.Status, "reseeding keeps live status")

	err = s.SeedCatalog(ctx, []model.Room{{Name: "No id"}}, now)
	assert.Error(t, err)
}

func TestFacets_StatusWriterOnlyInTx(t *testing.T) {
	has := func(iface any, method string) bool {
		_, ok := reflect.TypeOf(iface).Elem().MethodByName(method)
		return ok
	}

	assert.True(t, has((*Tx)(nil), "SetTableStatus"))
	assert.False(t, has((*BookingTx)(nil), "SetTableStatus"))
	assert.True(t, has((*BookingTx)(nil), "SaveReservation"))

	for _, m := range []string{"SetTableStatus", "CreateReservation", "SaveReservation", "LockTable"} {
		assert.False(t, has((*ReadTx)(nil), m), m)
	}
	assert.False(t, has((*Snapshotter)(nil), "InTx"))
}
