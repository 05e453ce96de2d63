package notification

import "time"

// EventType names something staff or guests may want to hear about.
type EventType string

const (
	EventReservationConfirmed EventType = "reservation.confirmed"
	EventReservationCancelled EventType = "reservation.cancelled"
	EventTableReserved        EventType = "table.reserved"
	EventTableReleased        EventType = "table.released"
)

// Event is a committed change. ReservationID is zero for pure table events.
type Event struct {
	Type          EventType
	TableID       int64
	ReservationID int64
	At            time.Time
}

// Notifier accepts events after their transaction has committed. Notify must
// not block the caller.
type Notifier interface {
	Notify(ev Event)
}

// Nop drops every event.
type Nop struct{}

// Notify does nothing.
func (Nop) Notify(Event) {}
