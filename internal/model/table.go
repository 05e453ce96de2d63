package model

import "time"

// TableStatus is the live floor status of a table.
type TableStatus string

const (
	TableFree     TableStatus = "free"
	TableReserved TableStatus = "reserved"
	TableOccupied TableStatus = "occupied"
)

// Table is a bookable unit with a fixed seating capacity.
type Table struct {
	ID          int64       `gorm:"primaryKey" json:"id" yaml:"id"`
	RoomID      int64       `gorm:"index;not null" json:"room_id" yaml:"-"`
	Name        string      `gorm:"size:128;not null" json:"name" yaml:"name"`
	Capacity    int         `gorm:"not null" json:"capacity" yaml:"capacity"`
	Status      TableStatus `gorm:"size:16;not null;default:free" json:"status" yaml:"-"`
	StatusSince time.Time   `json:"status_since" yaml:"-"`
	CreatedAt   time.Time   `json:"-" yaml:"-"`
	UpdatedAt   time.Time   `json:"-" yaml:"-"`

	// Associations
	Room Room `gorm:"constraint:OnDelete:CASCADE" json:"-" yaml:"-"`
}
