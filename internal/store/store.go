package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"table-booking-backend/internal/apperr"
	"table-booking-backend/internal/model"
)

// CatalogReader reads rooms and tables.
type CatalogReader interface {
	ListRooms(ctx context.Context) ([]model.Room, error)
	ListTables(ctx context.Context) ([]model.Table, error)
	GetTable(ctx context.Context, id int64) (*model.Table, error)
}

// TableLocker reads a table row for update. Only meaningful inside a transaction.
type TableLocker interface {
	LockTable(ctx context.Context, id int64) (*model.Table, error)
}

// TableStatusWriter changes a table's live status. It is only reachable
// through Tx, which the occupancy state machine alone receives.
type TableStatusWriter interface {
	SetTableStatus(ctx context.Context, t *model.Table, to model.TableStatus, at time.Time, cause string) error
}

// ReservationReader queries reservations.
type ReservationReader interface {
	GetReservation(ctx context.Context, id int64) (*model.Reservation, error)
	// ConfirmedOverlapping returns confirmed reservations whose slot intersects [from, to).
	ConfirmedOverlapping(ctx context.Context, from, to time.Time) ([]model.Reservation, error)
	// ConfirmedForTable is ConfirmedOverlapping restricted to one table.
	ConfirmedForTable(ctx context.Context, tableID int64, from, to time.Time) ([]model.Reservation, error)
	// UnseatedEndedBefore returns confirmed reservations nobody was seated for
	// whose slot ended at or before t.
	UnseatedEndedBefore(ctx context.Context, t time.Time) ([]model.Reservation, error)
	// SeatedForTable returns confirmed reservations whose party sits at the table.
	SeatedForTable(ctx context.Context, tableID int64) ([]model.Reservation, error)
}

// ReservationWriter persists reservations.
type ReservationWriter interface {
	CreateReservation(ctx context.Context, r *model.Reservation) error
	SaveReservation(ctx context.Context, r *model.Reservation) error
}

// ReadTx is the read-only view of a snapshot.
type ReadTx interface {
	CatalogReader
	ReservationReader
}

// BookingTx is what reservation code sees inside a transaction. It can lock
// tables and write reservations but cannot change a table's status.
type BookingTx interface {
	ReadTx
	TableLocker
	ReservationWriter
}

// Tx is everything available inside a read-write transaction.
type Tx interface {
	BookingTx
	TableStatusWriter
}

// Snapshotter opens read-only transactions.
type Snapshotter interface {
	// Snapshot runs fn in a read-only transaction with a stable view where the
	// database supports it.
	Snapshot(ctx context.Context, fn func(tx ReadTx) error) error
}

// TxRunner opens read-write transactions.
type TxRunner interface {
	// InTx runs fn in a read-write transaction.
	InTx(ctx context.Context, fn func(tx Tx) error) error
}

// Store defines the interface for all database operations.
type Store interface {
	Tx
	Snapshotter
	TxRunner
	DB() *gorm.DB
	TableHistory(ctx context.Context, tableID int64, limit int) ([]model.TableStatusHistory, error)
	SeedCatalog(ctx context.Context, rooms []model.Room, at time.Time) error
	FindUser(ctx context.Context, username string) (*model.User, error)
	UpsertUser(ctx context.Context, u *model.User) error
}

// gormStore implements the Store interface using GORM.
type gormStore struct {
	db *gorm.DB
}

// NewGormStore creates a new GORM-backed store.
func NewGormStore(db *gorm.DB) Store {
	return &gormStore{db: db}
}

// DB returns the underlying connection.
func (s *gormStore) DB() *gorm.DB {
	return s.db
}

func (s *gormStore) InTx(ctx context.Context, fn func(tx Tx) error) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(&gormStore{db: tx})
	})
}

func (s *gormStore) Snapshot(ctx context.Context, fn func(tx ReadTx) error) error {
	var opts []*sql.TxOptions
	if s.rowLocks() {
		opts = append(opts, &sql.TxOptions{Isolation: sql.LevelRepeatableRead, ReadOnly: true})
	}
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(&gormStore{db: tx})
	}, opts...)
}

// rowLocks reports whether the dialect understands SELECT ... FOR UPDATE
// and isolation levels. SQLite serializes writers on its own.
func (s *gormStore) rowLocks() bool {
	switch s.db.Dialector.Name() {
	case "postgres", "mysql":
		return true
	default:
		return false
	}
}

func (s *gormStore) ListRooms(ctx context.Context) ([]model.Room, error) {
	var rooms []model.Room
	if err := s.db.WithContext(ctx).Order("id").Find(&rooms).Error; err != nil {
		return nil, fmt.Errorf("failed to list rooms: %w", err)
	}
	return rooms, nil
}

func (s *gormStore) ListTables(ctx context.Context) ([]model.Table, error) {
	var tables []model.Table
	if err := s.db.WithContext(ctx).Order("id").Find(&tables).Error; err != nil {
		return nil, fmt.Errorf("failed to list tables: %w", err)
	}
	return tables, nil
}

func (s *gormStore) GetTable(ctx context.Context, id int64) (*model.Table, error) {
	var t model.Table
	if err := s.db.WithContext(ctx).First(&t, id).Error; err != nil {
		return nil, notFound(err, "table %d", id)
	}
	return &t, nil
}

func (s *gormStore) LockTable(ctx context.Context, id int64) (*model.Table, error) {
	q := s.db.WithContext(ctx)
	if s.rowLocks() {
		q = q.Clauses(clause.Locking{Strength: "UPDATE"})
	}
	var t model.Table
	if err := q.First(&t, id).Error; err != nil {
		return nil, notFound(err, "table %d", id)
	}
	return &t, nil
}

// SetTableStatus archives the period that just ended and moves the table to
// its new status. The update is guarded on the old status so a concurrent
// writer that slipped past the lock surfaces as a conflict.
func (s *gormStore) SetTableStatus(ctx context.Context, t *model.Table, to model.TableStatus, at time.Time, cause string) error {
	at = at.UTC()
	since := t.StatusSince
	if since.IsZero() {
		since = t.CreatedAt
	}
	if since.IsZero() || since.After(at) {
		since = at
	}

	history := model.TableStatusHistory{
		TableID:     t.ID,
		Status:      t.Status,
		PeriodStart: since.UTC(),
		PeriodEnd:   at,
		Cause:       cause,
	}
	db := s.db.WithContext(ctx)
	if err := db.Create(&history).Error; err != nil {
		return fmt.Errorf("failed to archive status of table %d: %w", t.ID, err)
	}

	res := db.Model(&model.Table{}).
		Where("id = ? AND status = ?", t.ID, t.Status).
		Updates(map[string]any{"status": to, "status_since": at})
	if res.Error != nil {
		return fmt.Errorf("failed to update status of table %d: %w", t.ID, res.Error)
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("table %d changed status concurrently: %w", t.ID, apperr.ErrConflict)
	}

	t.Status = to
	t.StatusSince = at
	return nil
}

func (s *gormStore) GetReservation(ctx context.Context, id int64) (*model.Reservation, error) {
	var r model.Reservation
	if err := s.db.WithContext(ctx).First(&r, id).Error; err != nil {
		return nil, notFound(err, "reservation %d", id)
	}
	return &r, nil
}

func (s *gormStore) ConfirmedOverlapping(ctx context.Context, from, to time.Time) ([]model.Reservation, error) {
	var rs []model.Reservation
	err := s.db.WithContext(ctx).
		Where("status = ?", model.ReservationConfirmed).
		Where("slot_start < ? AND slot_end > ?", to.UTC(), from.UTC()).
		Order("slot_start, id").
		Find(&rs).Error
	if err != nil {
		return nil, fmt.Errorf("failed to query reservations: %w", err)
	}
	return rs, nil
}

func (s *gormStore) ConfirmedForTable(ctx context.Context, tableID int64, from, to time.Time) ([]model.Reservation, error) {
	var rs []model.Reservation
	err := s.db.WithContext(ctx).
		Where("table_id = ? AND status = ?", tableID, model.ReservationConfirmed).
		Where("slot_start < ? AND slot_end > ?", to.UTC(), from.UTC()).
		Order("slot_start, id").
		Find(&rs).Error
	if err != nil {
		return nil, fmt.Errorf("failed to query reservations of table %d: %w", tableID, err)
	}
	return rs, nil
}

func (s *gormStore) UnseatedEndedBefore(ctx context.Context, t time.Time) ([]model.Reservation, error) {
	var rs []model.Reservation
	err := s.db.WithContext(ctx).
		Where("status = ? AND seated_at IS NULL AND slot_end <= ?", model.ReservationConfirmed, t.UTC()).
		Order("slot_start, id").
		Find(&rs).Error
	if err != nil {
		return nil, fmt.Errorf("failed to query overdue reservations: %w", err)
	}
	return rs, nil
}

func (s *gormStore) SeatedForTable(ctx context.Context, tableID int64) ([]model.Reservation, error) {
	var rs []model.Reservation
	err := s.db.WithContext(ctx).
		Where("table_id = ? AND status = ? AND seated_at IS NOT NULL", tableID, model.ReservationConfirmed).
		Order("slot_start, id").
		Find(&rs).Error
	if err != nil {
		return nil, fmt.Errorf("failed to query seated reservations of table %d: %w", tableID, err)
	}
	return rs, nil
}

func (s *gormStore) CreateReservation(ctx context.Context, r *model.Reservation) error {
	r.SlotStart = r.SlotStart.UTC()
	r.SlotEnd = r.SlotEnd.UTC()
	if err := s.db.WithContext(ctx).Create(r).Error; err != nil {
		return translateWrite(err, "create reservation")
	}
	return nil
}

func (s *gormStore) SaveReservation(ctx context.Context, r *model.Reservation) error {
	if err := s.db.WithContext(ctx).Save(r).Error; err != nil {
		return translateWrite(err, fmt.Sprintf("save reservation %d", r.ID))
	}
	return nil
}

func (s *gormStore) TableHistory(ctx context.Context, tableID int64, limit int) ([]model.TableStatusHistory, error) {
	if limit <= 0 {
		limit = 50
	}
	var hs []model.TableStatusHistory
	err := s.db.WithContext(ctx).
		Where("table_id = ?", tableID).
		Order("period_end DESC, id DESC").
		Limit(limit).
		Find(&hs).Error
	if err != nil {
		return nil, fmt.Errorf("failed to query history of table %d: %w", tableID, err)
	}
	return hs, nil
}

func (s *gormStore) FindUser(ctx context.Context, username string) (*model.User, error) {
	var u model.User
	if err := s.db.WithContext(ctx).Where("username = ?", username).First(&u).Error; err != nil {
		return nil, notFound(err, "user %q", username)
	}
	return &u, nil
}

func (s *gormStore) UpsertUser(ctx context.Context, u *model.User) error {
	err := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "username"}},
		DoUpdates: clause.AssignmentColumns([]string{"password_hash", "role", "updated_at"}),
	}).Create(u).Error
	if err != nil {
		return fmt.Errorf("failed to upsert user %q: %w", u.Username, err)
	}
	return nil
}

// notFound maps gorm's missing-row error onto apperr.ErrNotFound.
func notFound(err error, format string, args ...any) error {
	what := fmt.Sprintf(format, args...)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return fmt.Errorf("%s: %w", what, apperr.ErrNotFound)
	}
	return fmt.Errorf("failed to load %s: %w", what, err)
}

// translateWrite maps constraint violations onto apperr.ErrConflict.
func translateWrite(err error, op string) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && (pgErr.Code == "23P01" || pgErr.Code == "23505") {
		return fmt.Errorf("%s: %s: %w", op, pgErr.ConstraintName, apperr.ErrConflict)
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return fmt.Errorf("%s: %w", op, apperr.ErrConflict)
	}
	return fmt.Errorf("failed to %s: %w", op, err)
}
