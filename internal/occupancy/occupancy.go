// Package occupancy owns the live status of every table. Status only changes
// through this package, always under the table's lock and inside one
// transaction.
package occupancy

import (
	"context"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"table-booking-backend/internal/apperr"
	"table-booking-backend/internal/lock"
	"table-booking-backend/internal/model"
	"table-booking-backend/internal/notification"
	"table-booking-backend/internal/store"
)

// Transition causes recorded in the status history.
const (
	CauseOccupy  = "occupy"
	CauseFree    = "free"
	CauseReserve = "reserve"
	CauseRelease = "release"
)

// Hook runs inside a transition's transaction, after the status changed from
// from. Returning an error rolls the transition back. Hooks see the booking
// facet of the transaction and cannot change table status themselves.
type Hook func(ctx context.Context, tx store.BookingTx, table *model.Table, from model.TableStatus, at time.Time) error

// Machine is the table occupancy state machine.
type Machine struct {
	store    store.TxRunner
	locker   lock.Locker
	lockWait time.Duration
	now      func() time.Time
	notify   notification.Notifier
	log      logrus.FieldLogger

	onOccupy []Hook
	onFree   []Hook
}

// Option configures a Machine.
type Option func(*Machine)

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(m *Machine) { m.now = now }
}

// WithNotifier sets where committed transitions are announced.
func WithNotifier(n notification.Notifier) Option {
	return func(m *Machine) { m.notify = n }
}

// WithLockWait bounds how long a transition waits for the table lock.
func WithLockWait(d time.Duration) Option {
	return func(m *Machine) { m.lockWait = d }
}

// WithLogger sets the logger.
func WithLogger(l logrus.FieldLogger) Option {
	return func(m *Machine) { m.log = l }
}

// New creates a state machine over s, serializing transitions per table with l.
func New(s store.TxRunner, l lock.Locker, opts ...Option) *Machine {
	m := &Machine{
		store:    s,
		locker:   l,
		lockWait: 2 * time.Second,
		now:      time.Now,
		notify:   notification.Nop{},
		log:      logrus.StandardLogger(),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// OnOccupy registers a hook that runs when a table becomes occupied.
func (m *Machine) OnOccupy(h Hook) {
	m.onOccupy = append(m.onOccupy, h)
}

// OnFree registers a hook that runs when an occupied table is freed.
func (m *Machine) OnFree(h Hook) {
	m.onFree = append(m.onFree, h)
}

// Occupy seats a party at a free or reserved table.
func (m *Machine) Occupy(ctx context.Context, id int64) (*model.Table, error) {
	return m.transition(ctx, id, func(ctx context.Context, tx store.Tx, t *model.Table, at time.Time) error {
		if t.Status == model.TableOccupied {
			return fmt.Errorf("table %d is already occupied: %w", t.ID, apperr.ErrInvalidTransition)
		}
		from := t.Status
		if err := tx.SetTableStatus(ctx, t, model.TableOccupied, at, CauseOccupy); err != nil {
			return err
		}
		return runHooks(ctx, tx, t, from, at, m.onOccupy)
	})
}

// Free clears an occupied table.
func (m *Machine) Free(ctx context.Context, id int64) (*model.Table, error) {
	t, err := m.transition(ctx, id, func(ctx context.Context, tx store.Tx, t *model.Table, at time.Time) error {
		if t.Status != model.TableOccupied {
			return fmt.Errorf("table %d is %s, only occupied tables can be freed: %w", t.ID, t.Status, apperr.ErrInvalidTransition)
		}
		if err := tx.SetTableStatus(ctx, t, model.TableFree, at, CauseFree); err != nil {
			return err
		}
		return runHooks(ctx, tx, t, model.TableOccupied, at, m.onFree)
	})
	if err != nil {
		return nil, err
	}
	m.notify.Notify(notification.Event{Type: notification.EventTableReleased, TableID: t.ID, At: t.StatusSince})
	return t, nil
}

// Tables is the status handle reservation code gets inside InTx. It knows
// only the reserve and release transitions.
type Tables struct {
	tx store.Tx
}

// InTx runs fn in one read-write transaction. fn sees the booking facet of
// the store and may flag or release tables through tables. The caller must
// hold the lock of every table it touches.
func (m *Machine) InTx(ctx context.Context, fn func(tx store.BookingTx, tables Tables) error) error {
	return m.store.InTx(ctx, func(tx store.Tx) error {
		return fn(tx, Tables{tx: tx})
	})
}

// MarkReserved flags a free table for an imminent booking. Any other status
// is left alone.
func (ts Tables) MarkReserved(ctx context.Context, t *model.Table, at time.Time) (bool, error) {
	if t.Status != model.TableFree {
		return false, nil
	}
	if err := ts.tx.SetTableStatus(ctx, t, model.TableReserved, at, CauseReserve); err != nil {
		return false, err
	}
	return true, nil
}

// Release returns a reserved table to free when its booking went away. Any
// other status is left alone.
func (ts Tables) Release(ctx context.Context, t *model.Table, at time.Time) (bool, error) {
	if t.Status != model.TableReserved {
		return false, nil
	}
	if err := ts.tx.SetTableStatus(ctx, t, model.TableFree, at, CauseRelease); err != nil {
		return false, err
	}
	return true, nil
}

func (m *Machine) transition(ctx context.Context, id int64, fn func(context.Context, store.Tx, *model.Table, time.Time) error) (*model.Table, error) {
	release, err := lock.AcquireWithin(ctx, m.locker, lock.TableKey(id), m.lockWait)
	if err != nil {
		return nil, err
	}
	defer release()

	at := m.now()
	var table *model.Table
	err = m.store.InTx(ctx, func(tx store.Tx) error {
		t, err := tx.LockTable(ctx, id)
		if err != nil {
			return err
		}
		if err := fn(ctx, tx, t, at); err != nil {
			return err
		}
		table = t
		return nil
	})
	if err != nil {
		return nil, err
	}

	m.log.WithFields(logrus.Fields{"table_id": id, "status": table.Status}).Info("table status changed")
	return table, nil
}

func runHooks(ctx context.Context, tx store.Tx, t *model.Table, from model.TableStatus, at time.Time, hooks []Hook) error {
	for _, h := range hooks {
		if err := h(ctx, tx, t, from, at); err != nil {
			return err
		}
	}
	return nil
}
