package scheduler

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"table-booking-backend/internal/lock"
	"table-booking-backend/internal/model"
	"table-booking-backend/internal/notification"
	"table-booking-backend/internal/occupancy"
	"table-booking-backend/internal/store"
)

// SweepResult counts what one sweep changed.
type SweepResult struct {
	Reserved int
	NoShows  int
}

// Run sweeps every interval until ctx is done.
func (s *Scheduler) Run(ctx context.Context, interval time.Duration) {
	s.log.WithField("interval", interval).Info("starting reservation sweeper")

	s.sweepAndLog(ctx)

	timer := time.NewTimer(interval)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			s.log.Info("reservation sweeper shutting down")
			return
		case <-timer.C:
			s.sweepAndLog(ctx)
			timer.Reset(interval)
		}
	}
}

func (s *Scheduler) sweepAndLog(ctx context.Context) {
	res, err := s.Sweep(ctx)
	if err != nil {
		s.log.WithError(err).Error("reservation sweep failed")
	}
	if res.Reserved > 0 || res.NoShows > 0 {
		s.log.WithFields(logrus.Fields{"reserved": res.Reserved, "no_shows": res.NoShows}).Info("reservation sweep done")
	}
}

// Sweep flags tables whose booking is imminent and cancels bookings nobody
// showed up for once their slot and the grace period have passed. Each table
// is handled under its lock; a failure on one table does not stop the others.
func (s *Scheduler) Sweep(ctx context.Context) (SweepResult, error) {
	var (
		res  SweepResult
		errs []error
	)
	now := s.now()

	imminent, err := s.store.ConfirmedOverlapping(ctx, now, now.Add(s.policy.Imminent))
	if err != nil {
		return res, err
	}
	seen := make(map[int64]bool)
	for _, r := range imminent {
		if r.TableID == nil || r.SeatedAt != nil || seen[*r.TableID] {
			continue
		}
		seen[*r.TableID] = true
		changed, err := s.reserveImminent(ctx, *r.TableID, now)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		if changed {
			res.Reserved++
			s.notify.Notify(notification.Event{Type: notification.EventTableReserved, TableID: *r.TableID, At: now})
		}
	}

	overdue, err := s.store.UnseatedEndedBefore(ctx, now.Add(-s.noShowGrace))
	if err != nil {
		errs = append(errs, err)
		return res, errors.Join(errs...)
	}
	for _, r := range overdue {
		if r.TableID == nil {
			continue
		}
		cancelled, released, err := s.cancelNoShow(ctx, r.ID, *r.TableID, now)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		if cancelled != nil {
			res.NoShows++
			s.log.WithFields(logrus.Fields{"reservation_id": r.ID, "table_id": *r.TableID}).Info("reservation marked as no-show")
			s.announceWithdrawal(cancelled, released, now)
		}
	}

	return res, errors.Join(errs...)
}

// reserveImminent marks the table reserved if it still has an unseated
// imminent booking.
func (s *Scheduler) reserveImminent(ctx context.Context, tableID int64, now time.Time) (bool, error) {
	release, err := lock.AcquireWithin(ctx, s.locker, lock.TableKey(tableID), s.lockWait)
	if err != nil {
		return false, err
	}
	defer release()

	var changed bool
	err = s.occupancy.InTx(ctx, func(tx store.BookingTx, tables occupancy.Tables) error {
		t, err := tx.LockTable(ctx, tableID)
		if err != nil {
			return err
		}
		rs, err := tx.ConfirmedForTable(ctx, tableID, now, now.Add(s.policy.Imminent))
		if err != nil {
			return err
		}
		for _, r := range rs {
			if r.SeatedAt == nil {
				changed, err = tables.MarkReserved(ctx, t, now)
				return err
			}
		}
		return nil
	})
	if err != nil {
		return false, fmt.Errorf("reserve table %d: %w", tableID, err)
	}
	return changed, nil
}

// cancelNoShow cancels the reservation if it is still confirmed and unseated.
// It returns nil when someone else already moved it along.
func (s *Scheduler) cancelNoShow(ctx context.Context, id, tableID int64, now time.Time) (*model.Reservation, bool, error) {
	release, err := lock.AcquireWithin(ctx, s.locker, lock.TableKey(tableID), s.lockWait)
	if err != nil {
		return nil, false, err
	}
	defer release()

	var (
		cancelled *model.Reservation
		released  bool
	)
	err = s.occupancy.InTx(ctx, func(tx store.BookingTx, tables occupancy.Tables) error {
		r, err := tx.GetReservation(ctx, id)
		if err != nil {
			return err
		}
		if r.Status != model.ReservationConfirmed || r.SeatedAt != nil {
			return nil
		}
		if released, err = s.withdraw(ctx, tx, tables, r, model.CancelNoShow, now); err != nil {
			return err
		}
		cancelled = r
		return nil
	})
	if err != nil {
		return nil, false, fmt.Errorf("cancel no-show %d: %w", id, err)
	}
	return cancelled, released, nil
}
