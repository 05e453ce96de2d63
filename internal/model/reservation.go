package model

import (
	"fmt"
	"time"

	"table-booking-backend/internal/apperr"
)

// ReservationStatus is the lifecycle state of a reservation.
type ReservationStatus string

const (
	ReservationPending   ReservationStatus = "pending"
	ReservationConfirmed ReservationStatus = "confirmed"
	ReservationCancelled ReservationStatus = "cancelled"
	ReservationCompleted ReservationStatus = "completed"
)

// Cancel reasons.
const (
	CancelByGuest = "guest"
	CancelNoShow  = "no_show"
)

// Reservation binds a party to one table for one slot. SlotStart and SlotEnd
// are stored in UTC; the slot is half-open.
type Reservation struct {
	ID                int64             `gorm:"primaryKey"`
	TableID           *int64            `gorm:"index"`
	Guests            int               `gorm:"not null"`
	SlotStart         time.Time         `gorm:"not null;index"`
	SlotEnd           time.Time         `gorm:"not null;index"`
	NotificationEmail *string           `gorm:"size:256"`
	Notes             string            `gorm:"size:1024"`
	Status            ReservationStatus `gorm:"size:16;not null;index"`
	CancelReason      string            `gorm:"size:32"`
	SeatedAt          *time.Time
	CreatedBy         string `gorm:"size:128"`
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

// Overlaps reports whether the reservation's slot intersects [start, end).
func (r *Reservation) Overlaps(start, end time.Time) bool {
	return r.SlotStart.Before(end) && r.SlotEnd.After(start)
}

// Confirm binds the reservation to a table. Only pending reservations can be confirmed.
func (r *Reservation) Confirm(tableID int64) error {
	if r.Status != ReservationPending {
		return fmt.Errorf("confirm reservation in status %q: %w", r.Status, apperr.ErrInvalidTransition)
	}
	r.TableID = &tableID
	r.Status = ReservationConfirmed
	return nil
}

// Cancel ends a confirmed reservation.
func (r *Reservation) Cancel(reason string) error {
	if r.Status != ReservationConfirmed {
		return fmt.Errorf("cancel reservation in status %q: %w", r.Status, apperr.ErrInvalidTransition)
	}
	r.Status = ReservationCancelled
	r.CancelReason = reason
	return nil
}

// Complete ends a confirmed reservation after the party leaves.
func (r *Reservation) Complete() error {
	if r.Status != ReservationConfirmed {
		return fmt.Errorf("complete reservation in status %q: %w", r.Status, apperr.ErrInvalidTransition)
	}
	r.Status = ReservationCompleted
	return nil
}
