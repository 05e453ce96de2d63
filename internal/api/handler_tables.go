package api

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"table-booking-backend/internal/apperr"
	"table-booking-backend/internal/model"
)

type availabilityQuery struct {
	Date   string `form:"date" binding:"required"`
	Time   string `form:"time" binding:"required"`
	Guests int    `form:"guests"`
}

type roomResponse struct {
	ID     int64         `json:"id"`
	Name   string        `json:"name"`
	Tables []model.Table `json:"tables"`
}

func tableID(c *gin.Context) (int64, error) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id < 1 {
		return 0, apperr.Validationf("table id %q is not a positive integer", c.Param("id"))
	}
	return id, nil
}

// ListTables returns every table with its live status.
func (h *Handler) ListTables(c *gin.Context) {
	tables, err := h.registry.ListTables(c.Request.Context())
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, tables)
}

// GetTable returns one table.
func (h *Handler) GetTable(c *gin.Context) {
	id, err := tableID(c)
	if err != nil {
		h.fail(c, err)
		return
	}
	t, err := h.registry.GetTable(c.Request.Context(), id)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, t)
}

// OccupyTable seats a party at a table.
func (h *Handler) OccupyTable(c *gin.Context) {
	id, err := tableID(c)
	if err != nil {
		h.fail(c, err)
		return
	}
	t, err := h.occupancy.Occupy(c.Request.Context(), id)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, t)
}

// FreeTable clears an occupied table.
func (h *Handler) FreeTable(c *gin.Context) {
	id, err := tableID(c)
	if err != nil {
		h.fail(c, err)
		return
	}
	t, err := h.occupancy.Free(c.Request.Context(), id)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, t)
}

// TableHistory returns the most recent status periods of a table.
func (h *Handler) TableHistory(c *gin.Context) {
	id, err := tableID(c)
	if err != nil {
		h.fail(c, err)
		return
	}
	limit := 50
	if raw := c.Query("limit"); raw != "" {
		if limit, err = strconv.Atoi(raw); err != nil || limit < 1 || limit > 500 {
			h.fail(c, apperr.Validationf("limit must be between 1 and 500"))
			return
		}
	}

	ctx := c.Request.Context()
	if _, err := h.registry.GetTable(ctx, id); err != nil {
		h.fail(c, err)
		return
	}
	history, err := h.store.TableHistory(ctx, id, limit)
	if err != nil {
		h.fail(c, err)
		return
	}

	out := make([]gin.H, 0, len(history))
	for _, p := range history {
		out = append(out, gin.H{
			"status":       p.Status,
			"period_start": p.PeriodStart,
			"period_end":   p.PeriodEnd,
			"cause":        p.Cause,
		})
	}
	c.JSON(http.StatusOK, out)
}

// ListRooms returns the rooms with their tables.
func (h *Handler) ListRooms(c *gin.Context) {
	grouped, err := h.registry.TablesByRoom(c.Request.Context())
	if err != nil {
		h.fail(c, err)
		return
	}
	out := make([]roomResponse, 0, len(grouped))
	for _, g := range grouped {
		out = append(out, roomResponse{ID: g.Room.ID, Name: g.Room.Name, Tables: g.Tables})
	}
	c.JSON(http.StatusOK, out)
}

// AvailableByRoom answers the booking form: room name to the tables that can
// seat the party, smallest first.
func (h *Handler) AvailableByRoom(c *gin.Context) {
	var q availabilityQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		h.badRequest(c, err)
		return
	}
	res, err := h.availability.FindAvailable(c.Request.Context(), q.Date, q.Time, q.Guests)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, res.ByRoomName())
}

// AvailableRooms is AvailableByRoom keyed by room id instead of name.
func (h *Handler) AvailableRooms(c *gin.Context) {
	var q availabilityQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		h.badRequest(c, err)
		return
	}
	res, err := h.availability.FindAvailable(c.Request.Context(), q.Date, q.Time, q.Guests)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"slot_start": res.Slot.Start.UTC(),
		"slot_end":   res.Slot.End.UTC(),
		"guests":     res.Guests,
		"rooms":      res.Rooms,
	})
}
