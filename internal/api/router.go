package api

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/patrickmn/go-cache"
	"golang.org/x/time/rate"

	"table-booking-backend/config"
	"table-booking-backend/internal/mw"
)

// NewRouter creates and configures a new Gin router.
func NewRouter(h *Handler, cfg *config.Config) *gin.Engine {
	r := gin.New()
	r.Use(mw.RequestLogger(h.log), gin.Recovery())

	rateLimiter := mw.RateLimiter(rate.Limit(cfg.Server.RateLimitPerSec), cfg.Server.RateLimitBurst, cfg.Server.RequestIPHeader)

	// Listings carry live table status, so entries live briefly and every
	// successful write flushes them.
	ttl := time.Duration(cfg.Server.CacheTTLSeconds) * time.Second
	cacheStore := cache.New(ttl, 2*ttl)
	caching := mw.Cache(cacheStore, ttl)

	var parser mw.TokenParser
	if h.auth != nil {
		parser = h.auth
	}
	authed := mw.JWTAuth(parser, cfg.Auth.Disabled)
	staff := mw.RequireRole(cfg.Auth.StaffRoles...)

	r.GET("/healthz", h.Health)

	r.Use(rateLimiter, mw.InvalidateOnWrite(cacheStore))

	r.POST("/auth/login", h.Login)

	tables := r.Group("/tables", authed)
	{
		tables.GET("/tables/", caching, h.ListTables)
		tables.GET("/tables/available-by-room", h.AvailableByRoom)
		tables.GET("/tables/:id", h.GetTable)
		tables.GET("/tables/:id/history", staff, h.TableHistory)
		tables.POST("/tables/:id/occupy", staff, h.OccupyTable)
		tables.POST("/tables/:id/free", staff, h.FreeTable)
		tables.GET("/rooms", caching, h.ListRooms)
		tables.GET("/rooms/available", h.AvailableRooms)
	}

	reservations := r.Group("/reservations", authed)
	{
		reservations.POST("/reservations/", h.CreateReservation)
		reservations.GET("/reservations/:id", h.GetReservation)
		reservations.POST("/reservations/:id/cancel", staff, h.CancelReservation)
	}

	staffGroup := r.Group("/staff", authed, staff)
	{
		staffGroup.GET("/subscriptions", h.GetSubscription)
		staffGroup.PUT("/subscriptions", h.PutSubscription)
		staffGroup.DELETE("/subscriptions", h.DeleteSubscription)
		staffGroup.GET("/vapid_public_key", h.GetVAPIDPublicKey)
	}

	return r
}
