// Package scheduler commits reservations against tables and keeps table
// status in step with upcoming and abandoned bookings.
package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"table-booking-backend/config"
	"table-booking-backend/internal/apperr"
	"table-booking-backend/internal/availability"
	"table-booking-backend/internal/lock"
	"table-booking-backend/internal/model"
	"table-booking-backend/internal/notification"
	"table-booking-backend/internal/occupancy"
	"table-booking-backend/internal/slot"
	"table-booking-backend/internal/store"
)

// Request is a reservation as asked for by a guest.
type Request struct {
	Guests            int
	Date              string
	Time              string
	TableID           *int64
	NotificationEmail *string
	Notes             string
	CreatedBy         string
}

// Scheduler is the only writer of reservations.
type Scheduler struct {
	store     store.ReservationReader
	engine    *availability.Engine
	policy    *slot.Policy
	occupancy *occupancy.Machine
	locker    lock.Locker
	lockWait  time.Duration

	autoAssignMax int
	noShowGrace   time.Duration

	notify notification.Notifier
	now    func() time.Time
	log    logrus.FieldLogger
}

// Option configures a Scheduler.
type Option func(*Scheduler)

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(s *Scheduler) { s.now = now }
}

// WithNotifier sets where committed changes are announced.
func WithNotifier(n notification.Notifier) Option {
	return func(s *Scheduler) { s.notify = n }
}

// WithLockWait bounds how long a commit waits for the table lock.
func WithLockWait(d time.Duration) Option {
	return func(s *Scheduler) { s.lockWait = d }
}

// WithLogger sets the logger.
func WithLogger(l logrus.FieldLogger) Option {
	return func(s *Scheduler) { s.log = l }
}

// New creates a scheduler and hooks it into the occupancy state machine so
// seating and clearing a table move the matching reservation along.
func New(st store.ReservationReader, engine *availability.Engine, occ *occupancy.Machine, l lock.Locker, cfg *config.BookingConfig, opts ...Option) *Scheduler {
	s := &Scheduler{
		store:         st,
		engine:        engine,
		policy:        engine.Policy(),
		occupancy:     occ,
		locker:        l,
		lockWait:      2 * time.Second,
		autoAssignMax: cfg.AutoAssignMaxGuests,
		noShowGrace:   time.Duration(cfg.NoShowGraceMinutes) * time.Minute,
		notify:        notification.Nop{},
		now:           time.Now,
		log:           logrus.StandardLogger(),
	}
	for _, opt := range opts {
		opt(s)
	}
	occ.OnOccupy(s.markSeated)
	occ.OnFree(s.completeSeated)
	return s
}

// Create validates and commits a reservation. Small parties get a table
// assigned, larger ones must name one.
func (s *Scheduler) Create(ctx context.Context, req Request) (*model.Reservation, error) {
	if req.Guests < 1 {
		return nil, apperr.Validationf("guests must be at least 1, got %d", req.Guests)
	}
	sl, err := s.policy.Resolve(req.Date, req.Time, s.now())
	if err != nil {
		return nil, err
	}

	tableID := req.TableID
	if tableID == nil {
		if req.Guests > s.autoAssignMax {
			return nil, fmt.Errorf("party of %d: %w", req.Guests, apperr.ErrTableSelectionRequired)
		}
		res, err := s.engine.Find(ctx, sl, req.Guests)
		if err != nil {
			return nil, err
		}
		candidates := res.Candidates()
		if len(candidates) == 0 {
			return nil, fmt.Errorf("party of %d at %s: %w", req.Guests, sl.Start.Format(time.RFC3339), apperr.ErrNoAvailability)
		}
		tableID = &candidates[0].TableID
	}

	return s.commit(ctx, *tableID, req, sl)
}

// commit re-checks the table under its lock and inserts the reservation in
// the same transaction. A table taken since discovery yields ErrConflict.
func (s *Scheduler) commit(ctx context.Context, tableID int64, req Request, sl slot.Slot) (*model.Reservation, error) {
	release, err := lock.AcquireWithin(ctx, s.locker, lock.TableKey(tableID), s.lockWait)
	if err != nil {
		return nil, err
	}
	defer release()

	now := s.now()
	var (
		r        *model.Reservation
		reserved bool
	)
	err = s.occupancy.InTx(ctx, func(tx store.BookingTx, tables occupancy.Tables) error {
		t, err := tx.LockTable(ctx, tableID)
		if err != nil {
			return err
		}
		booked, err := tx.ConfirmedForTable(ctx, t.ID, sl.Start, sl.End)
		if err != nil {
			return err
		}
		if err := availability.Check(t, req.Guests, sl, booked, s.policy.IsCurrent(sl, now)); err != nil {
			return err
		}

		r = &model.Reservation{
			Guests:            req.Guests,
			SlotStart:         sl.Start,
			SlotEnd:           sl.End,
			NotificationEmail: req.NotificationEmail,
			Notes:             req.Notes,
			Status:            model.ReservationPending,
			CreatedBy:         req.CreatedBy,
		}
		if err := r.Confirm(t.ID); err != nil {
			return err
		}
		if err := tx.CreateReservation(ctx, r); err != nil {
			return err
		}

		if s.policy.IsImminent(sl, now) {
			reserved, err = tables.MarkReserved(ctx, t, now)
		}
		return err
	})
	if err != nil {
		return nil, err
	}

	s.log.WithFields(logrus.Fields{
		"reservation_id": r.ID,
		"table_id":       tableID,
		"guests":         r.Guests,
		"slot_start":     r.SlotStart,
	}).Info("reservation confirmed")
	s.notify.Notify(notification.Event{Type: notification.EventReservationConfirmed, TableID: tableID, ReservationID: r.ID, At: now})
	if reserved {
		s.notify.Notify(notification.Event{Type: notification.EventTableReserved, TableID: tableID, At: now})
	}
	return r, nil
}

// Get returns one reservation.
func (s *Scheduler) Get(ctx context.Context, id int64) (*model.Reservation, error) {
	return s.store.GetReservation(ctx, id)
}

// Cancel withdraws a confirmed reservation whose slot has not started and
// frees its table if the booking was what held it.
func (s *Scheduler) Cancel(ctx context.Context, id int64) (*model.Reservation, error) {
	r, err := s.store.GetReservation(ctx, id)
	if err != nil {
		return nil, err
	}
	if r.TableID == nil {
		return nil, fmt.Errorf("reservation %d has no table: %w", id, apperr.ErrInvalidTransition)
	}
	tableID := *r.TableID

	release, err := lock.AcquireWithin(ctx, s.locker, lock.TableKey(tableID), s.lockWait)
	if err != nil {
		return nil, err
	}
	defer release()

	now := s.now()
	var released bool
	err = s.occupancy.InTx(ctx, func(tx store.BookingTx, tables occupancy.Tables) error {
		cur, err := tx.GetReservation(ctx, id)
		if err != nil {
			return err
		}
		if !now.Before(cur.SlotStart) {
			return fmt.Errorf("reservation %d started at %s: %w", id, cur.SlotStart.Format(time.RFC3339), apperr.ErrInvalidTransition)
		}
		released, err = s.withdraw(ctx, tx, tables, cur, model.CancelByGuest, now)
		r = cur
		return err
	})
	if err != nil {
		return nil, err
	}

	s.log.WithFields(logrus.Fields{"reservation_id": id, "table_id": tableID}).Info("reservation cancelled")
	s.announceWithdrawal(r, released, now)
	return r, nil
}

// withdraw cancels r and releases its table when no other imminent booking
// holds it. Runs under the table lock.
func (s *Scheduler) withdraw(ctx context.Context, tx store.BookingTx, tables occupancy.Tables, r *model.Reservation, reason string, now time.Time) (bool, error) {
	if err := r.Cancel(reason); err != nil {
		return false, err
	}
	if err := tx.SaveReservation(ctx, r); err != nil {
		return false, err
	}

	t, err := tx.LockTable(ctx, *r.TableID)
	if err != nil {
		return false, err
	}
	if t.Status != model.TableReserved {
		return false, nil
	}
	others, err := tx.ConfirmedForTable(ctx, t.ID, now, now.Add(s.policy.Imminent))
	if err != nil {
		return false, err
	}
	if len(others) > 0 {
		return false, nil
	}
	return tables.Release(ctx, t, now)
}

func (s *Scheduler) announceWithdrawal(r *model.Reservation, released bool, now time.Time) {
	s.notify.Notify(notification.Event{Type: notification.EventReservationCancelled, TableID: *r.TableID, ReservationID: r.ID, At: now})
	if released {
		s.notify.Notify(notification.Event{Type: notification.EventTableReleased, TableID: *r.TableID, At: now})
	}
}

// markSeated records that the party of a confirmed reservation sat down. A
// table that was reserved seats its imminent booking; a free table only
// seats a booking whose slot is running.
func (s *Scheduler) markSeated(ctx context.Context, tx store.BookingTx, t *model.Table, from model.TableStatus, at time.Time) error {
	window := at.Add(time.Second)
	if from == model.TableReserved {
		window = at.Add(s.policy.Imminent)
	}
	rs, err := tx.ConfirmedForTable(ctx, t.ID, at, window)
	if err != nil {
		return err
	}
	for i := range rs {
		r := &rs[i]
		if r.SeatedAt != nil {
			continue
		}
		seated := at.UTC()
		r.SeatedAt = &seated
		return tx.SaveReservation(ctx, r)
	}
	return nil
}

// completeSeated completes the reservations a freed table was serving: the
// running one and any seated one whose slot has started. A party seated
// ahead of a slot that has not begun yet goes back to waiting, so the table
// is held for it again and the no-show rule still applies.
func (s *Scheduler) completeSeated(ctx context.Context, tx store.BookingTx, t *model.Table, _ model.TableStatus, at time.Time) error {
	seated, err := tx.SeatedForTable(ctx, t.ID)
	if err != nil {
		return err
	}
	running, err := tx.ConfirmedForTable(ctx, t.ID, at, at.Add(time.Second))
	if err != nil {
		return err
	}

	done := make(map[int64]bool)
	for _, rs := range [][]model.Reservation{seated, running} {
		for i := range rs {
			r := &rs[i]
			if done[r.ID] {
				continue
			}
			done[r.ID] = true
			if r.SlotStart.After(at) {
				r.SeatedAt = nil
			} else if err := r.Complete(); err != nil {
				return err
			}
			if err := tx.SaveReservation(ctx, r); err != nil {
				return err
			}
		}
	}
	return nil
}
