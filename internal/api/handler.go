package api

import (
	"context"
	"errors"
	"net/http"

	"github.com/SherClockHolmes/webpush-go"
	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"table-booking-backend/internal/apperr"
	"table-booking-backend/internal/auth"
	"table-booking-backend/internal/availability"
	"table-booking-backend/internal/model"
	"table-booking-backend/internal/mw"
	"table-booking-backend/internal/occupancy"
	"table-booking-backend/internal/registry"
	"table-booking-backend/internal/scheduler"
)

// Store is what the handlers read from the database directly. Table status
// changes go through the occupancy machine.
type Store interface {
	DB() *gorm.DB
	TableHistory(ctx context.Context, tableID int64, limit int) ([]model.TableStatusHistory, error)
}

// Handler holds shared dependencies for API handlers.
type Handler struct {
	store        Store
	registry     *registry.Registry
	occupancy    *occupancy.Machine
	availability *availability.Engine
	scheduler    *scheduler.Scheduler
	auth         *auth.Service
	webpush      *webpush.Options
	log          logrus.FieldLogger
}

// Deps are the services the handlers call into.
type Deps struct {
	Store        Store
	Registry     *registry.Registry
	Occupancy    *occupancy.Machine
	Availability *availability.Engine
	Scheduler    *scheduler.Scheduler
	Auth         *auth.Service
	WebPush      *webpush.Options
	Log          logrus.FieldLogger
}

// NewHandler creates a new API handler.
func NewHandler(d Deps) *Handler {
	log := d.Log
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Handler{
		store:        d.Store,
		registry:     d.Registry,
		occupancy:    d.Occupancy,
		availability: d.Availability,
		scheduler:    d.Scheduler,
		auth:         d.Auth,
		webpush:      d.WebPush,
		log:          log,
	}
}

// statusOf maps an error kind to its HTTP status.
func statusOf(kind string) int {
	switch kind {
	case apperr.KindValidation, apperr.KindInvalidTimeRange:
		return http.StatusBadRequest
	case apperr.KindAuth:
		return http.StatusUnauthorized
	case apperr.KindNotFound:
		return http.StatusNotFound
	case apperr.KindConflict, apperr.KindInvalidTransition, apperr.KindNoAvailability:
		return http.StatusConflict
	case apperr.KindTableSelectionRequired:
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}

// fail writes err as {"kind", "error"}. Internal errors are logged and
// reported without detail.
func (h *Handler) fail(c *gin.Context, err error) {
	kind := apperr.Kind(err)
	status := statusOf(kind)
	msg := err.Error()
	if status == http.StatusInternalServerError {
		h.log.WithError(err).WithField("request_id", c.GetString(mw.RequestIDKey)).Error("internal error")
		msg = "internal error"
	}
	_ = c.Error(err)
	c.AbortWithStatusJSON(status, gin.H{"kind": kind, "error": msg})
}

// badRequest reports a request that could not be bound.
func (h *Handler) badRequest(c *gin.Context, err error) {
	var verr error = apperr.Validationf("%s", err.Error())
	if errors.Is(err, apperr.ErrValidation) {
		verr = err
	}
	h.fail(c, verr)
}

// Health reports whether the database answers.
func (h *Handler) Health(c *gin.Context) {
	sqlDB, err := h.store.DB().DB()
	if err == nil {
		err = sqlDB.PingContext(c.Request.Context())
	}
	if err != nil {
		h.log.WithError(err).Warn("health check failed")
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}
