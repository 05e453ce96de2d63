package notification

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/SherClockHolmes/webpush-go"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"table-booking-backend/internal/events"
	"table-booking-backend/internal/model"
)

// NotificationSender defines the interface for sending a web push notification.
type NotificationSender interface {
	Send(payload []byte, sub *webpush.Subscription, options *webpush.Options) (*http.Response, error)
}

// WebPushSender is a real implementation of NotificationSender using the webpush library.
type WebPushSender struct{}

// Send sends a notification using the webpush library.
func (s *WebPushSender) Send(payload []byte, sub *webpush.Subscription, options *webpush.Options) (*http.Response, error) {
	return webpush.SendNotification(payload, sub, options)
}

// Message is the broker payload for a reservation event.
type Message struct {
	Type              EventType `json:"type"`
	ReservationID     int64     `json:"reservation_id"`
	TableID           int64     `json:"table_id"`
	NotificationEmail string    `json:"notification_email"`
	SlotStart         time.Time `json:"slot_start"`
	At                time.Time `json:"at"`
}

// WorkerPool delivers events off the request path. Table events go to staff
// push subscriptions, reservation events with a guest email go to the broker.
type WorkerPool struct {
	size      int
	jobs      chan Event
	db        *gorm.DB
	webpush   *webpush.Options
	sender    NotificationSender
	publisher events.Publisher
	log       logrus.FieldLogger
}

// NewWorkerPool creates a new worker pool. queue bounds how many events may
// wait for a worker before Notify starts dropping them.
func NewWorkerPool(size, queue int, db *gorm.DB, webpushOptions *webpush.Options, pub events.Publisher, log logrus.FieldLogger) *WorkerPool {
	if size < 1 {
		size = 1
	}
	if queue < size {
		queue = size
	}
	return &WorkerPool{
		size:      size,
		jobs:      make(chan Event, queue),
		db:        db,
		webpush:   webpushOptions,
		sender:    &WebPushSender{},
		publisher: pub,
		log:       log,
	}
}

// Start launches the worker goroutines.
func (wp *WorkerPool) Start(ctx context.Context) {
	for i := 0; i < wp.size; i++ {
		go wp.worker(ctx, i)
	}
}

func (wp *WorkerPool) worker(ctx context.Context, id int) {
	log := wp.log.WithField("worker", id)
	log.Debug("worker started")
	for {
		select {
		case ev := <-wp.jobs:
			log.WithFields(logrus.Fields{"event": ev.Type, "table_id": ev.TableID}).Debug("processing event")
			wp.handle(ctx, ev)
		case <-ctx.Done():
			log.Debug("worker shutting down")
			return
		}
	}
}

// Notify queues ev. When the queue is full the event is dropped and logged.
func (wp *WorkerPool) Notify(ev Event) {
	select {
	case wp.jobs <- ev:
	default:
		wp.log.WithFields(logrus.Fields{"event": ev.Type, "table_id": ev.TableID}).Warn("notification queue full, dropping event")
	}
}

// Jobs returns the jobs channel for testing.
func (wp *WorkerPool) Jobs() chan Event {
	return wp.jobs
}

func (wp *WorkerPool) handle(ctx context.Context, ev Event) {
	switch ev.Type {
	case EventTableReserved, EventTableReleased:
		wp.pushToStaff(ctx, ev)
	case EventReservationConfirmed, EventReservationCancelled:
		wp.publishToGuest(ctx, ev)
	default:
		wp.log.WithField("event", ev.Type).Warn("unknown event type")
	}
}

// pushToStaff sends a push message to every subscription watching the table.
func (wp *WorkerPool) pushToStaff(ctx context.Context, ev Event) {
	var subscriptions []model.PushSubscription
	err := wp.db.WithContext(ctx).
		Where("all_tables = ? OR endpoint IN (SELECT push_subscription_endpoint FROM subscription_table_mapping WHERE table_id = ?)", true, ev.TableID).
		Find(&subscriptions).Error
	if err != nil {
		wp.log.WithError(err).WithField("table_id", ev.TableID).Error("failed to fetch subscriptions")
		return
	}
	if len(subscriptions) == 0 {
		return
	}

	label := fmt.Sprintf("%d", ev.TableID)
	var table model.Table
	if err := wp.db.WithContext(ctx).Select("name").First(&table, ev.TableID).Error; err != nil {
		wp.log.WithError(err).WithField("table_id", ev.TableID).Warn("failed to fetch table name")
	} else if table.Name != "" {
		label = table.Name
	}

	var message string
	switch ev.Type {
	case EventTableReserved:
		message = fmt.Sprintf("Table %s is reserved for an upcoming booking", label)
	default:
		message = fmt.Sprintf("Table %s is free again", label)
	}

	wp.log.WithFields(logrus.Fields{"table_id": ev.TableID, "count": len(subscriptions)}).Info("sending push notifications")
	for _, sub := range subscriptions {
		wp.sendNotification(ctx, sub, []byte(message))
	}
}

// sendNotification sends a single web push notification.
func (wp *WorkerPool) sendNotification(ctx context.Context, sub model.PushSubscription, payload []byte) {
	wpSub := &webpush.Subscription{
		Endpoint: sub.Endpoint,
		Keys: webpush.Keys{
			P256dh: sub.P256DH,
			Auth:   sub.Auth,
		},
	}

	resp, err := wp.sender.Send(payload, wpSub, wp.webpush)
	if err != nil {
		wp.log.WithError(err).WithField("endpoint", sub.Endpoint).Error("failed to send notification")
		return
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusGone {
		wp.log.WithField("endpoint", sub.Endpoint).Info("subscription expired, deleting")
		if err := wp.db.WithContext(ctx).Delete(&sub).Error; err != nil {
			wp.log.WithError(err).WithField("endpoint", sub.Endpoint).Error("failed to delete expired subscription")
		}
	}
}

// publishToGuest hands a reservation event to the broker when the guest left
// an address to notify.
func (wp *WorkerPool) publishToGuest(ctx context.Context, ev Event) {
	if wp.publisher == nil {
		return
	}
	var r model.Reservation
	if err := wp.db.WithContext(ctx).First(&r, ev.ReservationID).Error; err != nil {
		wp.log.WithError(err).WithField("reservation_id", ev.ReservationID).Error("failed to fetch reservation")
		return
	}
	if r.NotificationEmail == nil || *r.NotificationEmail == "" {
		return
	}

	msg := Message{
		Type:              ev.Type,
		ReservationID:     r.ID,
		TableID:           ev.TableID,
		NotificationEmail: *r.NotificationEmail,
		SlotStart:         r.SlotStart,
		At:                ev.At.UTC(),
	}
	if err := wp.publisher.PublishJSON(ctx, string(ev.Type), msg); err != nil {
		wp.log.WithError(err).WithField("reservation_id", r.ID).Error("failed to publish reservation event")
	}
}
