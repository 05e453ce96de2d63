package model

import "time"

// PushSubscription holds a staff browser push subscription. AllTables
// subscribers get alerts for every table, the others only for Tables.
type PushSubscription struct {
	Endpoint  string    `gorm:"primaryKey"`
	P256DH    string    `gorm:"column:p256dh;not null"`
	Auth      string    `gorm:"not null"`
	AllTables bool      `gorm:"not null;default:false"`
	CreatedAt time.Time `gorm:"not null"`

	// Associations
	Tables []*Table `gorm:"many2many:subscription_table_mapping;"`
}
