package api

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"table-booking-backend/internal/apperr"
	"table-booking-backend/internal/model"
	"table-booking-backend/internal/mw"
	"table-booking-backend/internal/scheduler"
)

type createReservationRequest struct {
	Guests            int    `json:"guests"`
	Date              string `json:"date" binding:"required"`
	Time              string `json:"time" binding:"required"`
	TableID           *int64 `json:"table_id"`
	NotificationEmail string `json:"notification_email" binding:"omitempty,email"`
	Notes             string `json:"notes" binding:"max=1024"`
}

type reservationResponse struct {
	ID                int64                   `json:"id"`
	TableID           *int64                  `json:"table_id"`
	Guests            int                     `json:"guests"`
	Date              string                  `json:"date"`
	Time              string                  `json:"time"`
	SlotStart         time.Time               `json:"slot_start"`
	SlotEnd           time.Time               `json:"slot_end"`
	NotificationEmail *string                 `json:"notification_email"`
	Notes             string                  `json:"notes"`
	Status            model.ReservationStatus `json:"status"`
	CancelReason      string                  `json:"cancel_reason,omitempty"`
	SeatedAt          *time.Time              `json:"seated_at,omitempty"`
	CreatedBy         string                  `json:"created_by,omitempty"`
}

func (h *Handler) reservationJSON(r *model.Reservation) reservationResponse {
	p := h.availability.Policy()
	return reservationResponse{
		ID:                r.ID,
		TableID:           r.TableID,
		Guests:            r.Guests,
		Date:              p.Date(r.SlotStart),
		Time:              p.Clock(r.SlotStart),
		SlotStart:         r.SlotStart.UTC(),
		SlotEnd:           r.SlotEnd.UTC(),
		NotificationEmail: r.NotificationEmail,
		Notes:             r.Notes,
		Status:            r.Status,
		CancelReason:      r.CancelReason,
		SeatedAt:          r.SeatedAt,
		CreatedBy:         r.CreatedBy,
	}
}

func reservationID(c *gin.Context) (int64, error) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id < 1 {
		return 0, apperr.Validationf("reservation id %q is not a positive integer", c.Param("id"))
	}
	return id, nil
}

// CreateReservation books a table for a party.
func (h *Handler) CreateReservation(c *gin.Context) {
	var req createReservationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.badRequest(c, err)
		return
	}

	var email *string
	if e := strings.TrimSpace(req.NotificationEmail); e != "" {
		email = &e
	}
	r, err := h.scheduler.Create(c.Request.Context(), scheduler.Request{
		Guests:            req.Guests,
		Date:              req.Date,
		Time:              req.Time,
		TableID:           req.TableID,
		NotificationEmail: email,
		Notes:             req.Notes,
		CreatedBy:         c.GetString(mw.SubjectKey),
	})
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, h.reservationJSON(r))
}

// GetReservation returns one reservation.
func (h *Handler) GetReservation(c *gin.Context) {
	id, err := reservationID(c)
	if err != nil {
		h.fail(c, err)
		return
	}
	r, err := h.scheduler.Get(c.Request.Context(), id)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, h.reservationJSON(r))
}

// CancelReservation withdraws a reservation before its slot starts.
func (h *Handler) CancelReservation(c *gin.Context) {
	id, err := reservationID(c)
	if err != nil {
		h.fail(c, err)
		return
	}
	r, err := h.scheduler.Cancel(c.Request.Context(), id)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, h.reservationJSON(r))
}
