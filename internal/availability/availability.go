// Package availability answers which tables can seat a party for a slot.
package availability

import (
	"context"
	"fmt"
	"sort"
	"time"

	"table-booking-backend/internal/apperr"
	"table-booking-backend/internal/model"
	"table-booking-backend/internal/slot"
	"table-booking-backend/internal/store"
)

// TableOption is one table that can take the party.
type TableOption struct {
	TableID  int64  `json:"table_id"`
	Capacity int    `json:"capacity"`
	Name     string `json:"name"`
}

// RoomAvailability lists the eligible tables of one room, smallest first.
type RoomAvailability struct {
	RoomID   int64         `json:"room_id"`
	RoomName string        `json:"room_name"`
	Tables   []TableOption `json:"tables"`
}

// Result is the outcome of one availability query.
type Result struct {
	Slot   slot.Slot
	Guests int
	Rooms  []RoomAvailability
}

// ByRoomName keys the result by room name. Rooms sharing a name are merged.
func (r *Result) ByRoomName() map[string][]TableOption {
	out := make(map[string][]TableOption, len(r.Rooms))
	for _, room := range r.Rooms {
		merged := append(out[room.RoomName], room.Tables...)
		sortOptions(merged)
		out[room.RoomName] = merged
	}
	for name, opts := range out {
		if opts == nil {
			out[name] = []TableOption{}
		}
	}
	return out
}

// Candidates flattens the result across rooms, smallest capacity first, then
// lowest id. The first candidate is the auto-assignment pick.
func (r *Result) Candidates() []TableOption {
	var out []TableOption
	for _, room := range r.Rooms {
		out = append(out, room.Tables...)
	}
	sortOptions(out)
	return out
}

// Engine computes availability from a consistent snapshot of the store.
type Engine struct {
	store  store.Snapshotter
	policy *slot.Policy
	now    func() time.Time
}

// Option configures an Engine.
type Option func(*Engine)

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

// New creates an engine.
func New(s store.Snapshotter, p *slot.Policy, opts ...Option) *Engine {
	e := &Engine{store: s, policy: p, now: time.Now}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Policy returns the slot policy the engine validates against.
func (e *Engine) Policy() *slot.Policy {
	return e.policy
}

// FindAvailable validates the request and returns the tables that can seat
// guests at date and clock.
func (e *Engine) FindAvailable(ctx context.Context, date, clock string, guests int) (*Result, error) {
	if guests < 1 {
		return nil, apperr.Validationf("guests must be at least 1, got %d", guests)
	}
	s, err := e.policy.Resolve(date, clock, e.now())
	if err != nil {
		return nil, err
	}
	return e.Find(ctx, s, guests)
}

// Find returns the tables that can seat guests during an already validated slot.
func (e *Engine) Find(ctx context.Context, s slot.Slot, guests int) (*Result, error) {
	now := e.now()
	current := e.policy.IsCurrent(s, now)

	var (
		rooms  []model.Room
		tables []model.Table
		booked []model.Reservation
	)
	err := e.store.Snapshot(ctx, func(tx store.ReadTx) error {
		var err error
		if rooms, err = tx.ListRooms(ctx); err != nil {
			return err
		}
		if tables, err = tx.ListTables(ctx); err != nil {
			return err
		}
		booked, err = tx.ConfirmedOverlapping(ctx, s.Start, s.End)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to read availability snapshot: %w", err)
	}

	byTable := make(map[int64][]model.Reservation)
	for _, r := range booked {
		if r.TableID != nil {
			byTable[*r.TableID] = append(byTable[*r.TableID], r)
		}
	}

	result := &Result{Slot: s, Guests: guests, Rooms: make([]RoomAvailability, 0, len(rooms))}
	index := make(map[int64]int, len(rooms))
	for _, room := range rooms {
		index[room.ID] = len(result.Rooms)
		result.Rooms = append(result.Rooms, RoomAvailability{RoomID: room.ID, RoomName: room.Name, Tables: []TableOption{}})
	}
	for i := range tables {
		t := &tables[i]
		ri, ok := index[t.RoomID]
		if !ok || !Eligible(t, guests, s, byTable[t.ID], current) {
			continue
		}
		result.Rooms[ri].Tables = append(result.Rooms[ri].Tables, TableOption{TableID: t.ID, Capacity: t.Capacity, Name: t.Name})
	}
	for i := range result.Rooms {
		sortOptions(result.Rooms[i].Tables)
	}
	return result, nil
}

// Check reports why t cannot take guests for s. booked holds the confirmed
// reservations that may overlap s; current is true when s is the slot being
// served right now. The nil error means the table is eligible.
func Check(t *model.Table, guests int, s slot.Slot, booked []model.Reservation, current bool) error {
	if t.Capacity < guests {
		return fmt.Errorf("table %d seats %d, party of %d: %w", t.ID, t.Capacity, guests, apperr.ErrInsufficientCapacity)
	}
	for i := range booked {
		r := &booked[i]
		if r.Status != model.ReservationConfirmed || r.TableID == nil || *r.TableID != t.ID {
			continue
		}
		if r.Overlaps(s.Start, s.End) {
			return fmt.Errorf("table %d is booked by reservation %d: %w", t.ID, r.ID, apperr.ErrConflict)
		}
	}
	if current && t.Status == model.TableOccupied {
		return fmt.Errorf("table %d is occupied: %w", t.ID, apperr.ErrConflict)
	}
	return nil
}

// Eligible reports whether t can take guests for s.
func Eligible(t *model.Table, guests int, s slot.Slot, booked []model.Reservation, current bool) bool {
	return Check(t, guests, s, booked, current) == nil
}

func sortOptions(opts []TableOption) {
	sort.Slice(opts, func(i, j int) bool {
		if opts[i].Capacity != opts[j].Capacity {
			return opts[i].Capacity < opts[j].Capacity
		}
		return opts[i].TableID < opts[j].TableID
	})
}
