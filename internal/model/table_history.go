package model

import "time"

// TableStatusHistory records a finished status period of a table.
type TableStatusHistory struct {
	ID          int64       `gorm:"primaryKey" json:"id"`
	TableID     int64       `gorm:"not null;index" json:"table_id"`
	Status      TableStatus `gorm:"size:16;not null" json:"status"`
	PeriodStart time.Time   `gorm:"not null" json:"period_start"`
	PeriodEnd   time.Time   `gorm:"not null;index" json:"period_end"`
	Cause       string      `gorm:"size:32;not null" json:"cause"`
}
