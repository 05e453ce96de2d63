package model

import "time"

// Room is a named grouping of tables. Names are not unique.
type Room struct {
	ID        int64     `gorm:"primaryKey" json:"id" yaml:"id"`
	Name      string    `gorm:"size:128;not null" json:"name" yaml:"name"`
	CreatedAt time.Time `gorm:"not null" json:"-" yaml:"-"`
	UpdatedAt time.Time `gorm:"not null" json:"-" yaml:"-"`

	// Associations
	Tables []Table `gorm:"foreignKey:RoomID" json:"tables,omitempty" yaml:"tables"`
}
