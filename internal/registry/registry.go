// Package registry is the read-only catalog of rooms and tables.
package registry

import (
	"context"
	"time"

	"github.com/patrickmn/go-cache"

	"table-booking-backend/internal/model"
	"table-booking-backend/internal/store"
)

const roomsKey = "rooms"

// RoomTables is one room with its tables ordered by id.
type RoomTables struct {
	Room   model.Room
	Tables []model.Table
}

// Registry serves the table catalog. Rooms rarely change and are cached;
// tables carry live status and are always read from the store.
type Registry struct {
	store store.CatalogReader
	rooms *cache.Cache
}

// New creates a registry whose room cache expires after ttl.
func New(s store.CatalogReader, ttl time.Duration) *Registry {
	return &Registry{
		store: s,
		rooms: cache.New(ttl, 2*ttl),
	}
}

// ListTables returns every table ordered by id.
func (r *Registry) ListTables(ctx context.Context) ([]model.Table, error) {
	return r.store.ListTables(ctx)
}

// GetTable returns one table or apperr.ErrNotFound.
func (r *Registry) GetTable(ctx context.Context, id int64) (*model.Table, error) {
	return r.store.GetTable(ctx, id)
}

// Rooms returns every room ordered by id.
func (r *Registry) Rooms(ctx context.Context) ([]model.Room, error) {
	if cached, found := r.rooms.Get(roomsKey); found {
		return cached.([]model.Room), nil
	}
	rooms, err := r.store.ListRooms(ctx)
	if err != nil {
		return nil, err
	}
	r.rooms.SetDefault(roomsKey, rooms)
	return rooms, nil
}

// TablesByRoom groups tables under their rooms. Rooms without tables are
// included with an empty list.
func (r *Registry) TablesByRoom(ctx context.Context) ([]RoomTables, error) {
	rooms, err := r.Rooms(ctx)
	if err != nil {
		return nil, err
	}
	tables, err := r.store.ListTables(ctx)
	if err != nil {
		return nil, err
	}
	return Group(rooms, tables), nil
}

// invalidate drops the cached rooms.
func (r *Registry) invalidate() {
	r.rooms.Flush()
}

// Group buckets tables by room, keeping room order and table order.
// Tables whose room is unknown are dropped.
func Group(rooms []model.Room, tables []model.Table) []RoomTables {
	out := make([]RoomTables, len(rooms))
	index := make(map[int64]int, len(rooms))
	for i, room := range rooms {
		out[i] = RoomTables{Room: room, Tables: []model.Table{}}
		index[room.ID] = i
	}
	for _, t := range tables {
		if i, ok := index[t.RoomID]; ok {
			out[i].Tables = append(out[i].Tables, t)
		}
	}
	return out
}
