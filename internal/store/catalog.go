package store

import (
	"context"
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"table-booking-backend/internal/model"
)

// SeedCatalog upserts rooms and their tables by their explicit ids.
// Existing tables keep their live status.
func (s *gormStore) SeedCatalog(ctx context.Context, rooms []model.Room, at time.Time) error {
	if len(rooms) == 0 {
		return nil
	}

	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		roomRows := make([]model.Room, 0, len(rooms))
		for _, r := range rooms {
			if r.ID <= 0 {
				return fmt.Errorf("room %q: an explicit id is required", r.Name)
			}
			roomRows = append(roomRows, model.Room{ID: r.ID, Name: r.Name})
		}
		if err := batchUpsertRooms(tx, roomRows); err != nil {
			return err
		}

		var tables []model.Table
		for i, r := range rooms {
			for _, t := range r.Tables {
				if t.ID <= 0 {
					return fmt.Errorf("table %q in room %q: an explicit id is required", t.Name, r.Name)
				}
				if t.Capacity < 1 {
					return fmt.Errorf("table %q in room %q: capacity must be positive", t.Name, r.Name)
				}
				tables = append(tables, model.Table{
					ID:          t.ID,
					RoomID:      roomRows[i].ID,
					Name:        t.Name,
					Capacity:    t.Capacity,
					Status:      model.TableFree,
					StatusSince: at.UTC(),
				})
			}
		}
		if len(tables) == 0 {
			return nil
		}
		return batchUpsertTables(tx, tables)
	})
}

func batchUpsertRooms(tx *gorm.DB, rooms []model.Room) error {
	err := tx.Omit(clause.Associations).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "id"}},
		DoUpdates: clause.AssignmentColumns([]string{"name", "updated_at"}),
	}).Create(&rooms).Error
	if err != nil {
		return fmt.Errorf("batch upsert rooms failed: %w", err)
	}
	return nil
}

func batchUpsertTables(tx *gorm.DB, tables []model.Table) error {
	err := tx.Omit(clause.Associations).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "id"}},
		DoUpdates: clause.AssignmentColumns([]string{"room_id", "name", "capacity", "updated_at"}),
	}).Create(&tables).Error
	if err != nil {
		return fmt.Errorf("batch upsert tables failed: %w", err)
	}
	return nil
}
