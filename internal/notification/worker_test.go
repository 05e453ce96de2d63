package notification

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/SherClockHolmes/webpush-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"table-booking-backend/internal/testutil"
)

// mockSender is a mock implementation of the NotificationSender interface.
type mockSender struct {
	SendFunc func(payload []byte, sub *webpush.Subscription, options *webpush.Options) (*http.Response, error)
}

func (m *mockSender) Send(payload []byte, sub *webpush.Subscription, options *webpush.Options) (*http.Response, error) {
	return m.SendFunc(payload, sub, options)
}

type published struct {
	key string
	msg Message
}

type fakePublisher struct {
	ch chan published
}

func (f *fakePublisher) PublishJSON(_ context.Context, key string, v any) error {
	f.ch <- published{key: key, msg: v.(Message)}
	return nil
}

func (f *fakePublisher) Close() error { return nil }

func newTestDB(t *testing.T) (*gorm.DB, sqlmock.Sqlmock) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)

	gormDB, err := gorm.Open(postgres.New(postgres.Config{
		Conn: db,
	}), &gorm.Config{})
	require.NoError(t, err)

	return gormDB, mock
}

func okResponse() *http.Response {
	return &http.Response{StatusCode: http.StatusCreated, Body: io.NopCloser(bytes.NewBufferString(""))}
}

const subscriptionsQuery = `SELECT \* FROM "push_subscriptions" WHERE .*all_tables = \$1 OR endpoint IN \(SELECT push_subscription_endpoint FROM subscription_table_mapping WHERE table_id = \$2\)`

func TestWorkerPool_NotifyQueues(t *testing.T) {
	db, _ := newTestDB(t)
	wp := NewWorkerPool(1, 4, db, &webpush.Options{}, nil, testutil.Logger())

	wp.Notify(Event{Type: EventTableReserved, TableID: 3})

	select {
	case ev := <-wp.Jobs():
		assert.Equal(t, int64(3), ev.TableID)
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for event to be queued")
	}
}

func TestWorkerPool_NotifyDropsWhenFull(t *testing.T) {
	db, _ := newTestDB(t)
	wp := NewWorkerPool(1, 1, db, &webpush.Options{}, nil, testutil.Logger())

	done := make(chan struct{})
	go func() {
		wp.Notify(Event{Type: EventTableReserved, TableID: 1})
		wp.Notify(Event{Type: EventTableReserved, TableID: 2})
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Notify blocked on a full queue")
	}
	assert.Len(t, wp.Jobs(), 1)
}

func TestWorkerPool_WorkerLogic(t *testing.T) {
	gormDB, mock := newTestDB(t)
	pub := &fakePublisher{ch: make(chan published, 1)}
	wp := NewWorkerPool(1, 4, gormDB, &webpush.Options{}, pub, testutil.Logger())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	wp.Start(ctx)

	t.Run("pushes table event to subscribers", func(t *testing.T) {
		var wg sync.WaitGroup
		wg.Add(1)

		wp.sender = &mockSender{
			SendFunc: func(payload []byte, sub *webpush.Subscription, options *webpush.Options) (*http.Response, error) {
				assert.Equal(t, "https://example.com/push", sub.Endpoint)
				assert.Equal(t, "Table Ventana is reserved for an upcoming booking", string(payload))
				wg.Done()
				return okResponse(), nil
			},
		}

		mock.ExpectQuery(subscriptionsQuery).
			WithArgs(true, int64(3)).
			WillReturnRows(sqlmock.NewRows([]string{"endpoint", "p256dh", "auth", "all_tables", "created_at"}).
				AddRow("https://example.com/push", "k", "a", false, time.Now()))
		mock.ExpectQuery(`SELECT "name" FROM "tables" WHERE "tables"."id" = \$1 ORDER BY "tables"."id" LIMIT \$[0-9]+`).
			WithArgs(int64(3), 1).
			WillReturnRows(sqlmock.NewRows([]string{"name"}).AddRow("Ventana"))

		wp.Notify(Event{Type: EventTableReserved, TableID: 3})
		wg.Wait()
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("falls back to table id when lookup fails", func(t *testing.T) {
		var wg sync.WaitGroup
		wg.Add(1)

		wp.sender = &mockSender{
			SendFunc: func(payload []byte, sub *webpush.Subscription, options *webpush.Options) (*http.Response, error) {
				assert.Equal(t, "Table 4 is free again", string(payload))
				wg.Done()
				return okResponse(), nil
			},
		}

		mock.ExpectQuery(subscriptionsQuery).
			WithArgs(true, int64(4)).
			WillReturnRows(sqlmock.NewRows([]string{"endpoint", "p256dh", "auth", "all_tables", "created_at"}).
				AddRow("https://example.com/all", "k", "a", true, time.Now()))
		mock.ExpectQuery(`SELECT "name" FROM "tables"`).
			WithArgs(int64(4), 1).
			WillReturnError(fmt.Errorf("table not found"))

		wp.Notify(Event{Type: EventTableReleased, TableID: 4})
		wg.Wait()
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("deletes expired subscription", func(t *testing.T) {
		wp.sender = &mockSender{
			SendFunc: func(payload []byte, sub *webpush.Subscription, options *webpush.Options) (*http.Response, error) {
				return &http.Response{StatusCode: http.StatusGone, Body: io.NopCloser(bytes.NewBufferString(""))}, nil
			},
		}

		mock.ExpectQuery(subscriptionsQuery).
			WithArgs(true, int64(5)).
			WillReturnRows(sqlmock.NewRows([]string{"endpoint", "p256dh", "auth", "all_tables", "created_at"}).
				AddRow("https://example.com/expired", "k", "a", false, time.Now()))
		mock.ExpectQuery(`SELECT "name" FROM "tables"`).
			WithArgs(int64(5), 1).
			WillReturnRows(sqlmock.NewRows([]string{"name"}).AddRow("Barra"))
		mock.ExpectBegin()
		mock.ExpectExec(`DELETE FROM "push_subscriptions" WHERE "push_subscriptions"."endpoint" = \$1`).
			WithArgs("https://example.com/expired").
			WillReturnResult(sqlmock.NewResult(1, 1))
		mock.ExpectCommit()

		wp.Notify(Event{Type: EventTableReleased, TableID: 5})

		assert.Eventually(t, func() bool {
			return mock.ExpectationsWereMet() == nil
		}, time.Second, 10*time.Millisecond)
	})

	t.Run("publishes reservation event with email", func(t *testing.T) {
		slotStart := time.Date(2025, 3, 14, 20, 0, 0, 0, time.UTC)
		mock.ExpectQuery(`SELECT \* FROM "reservations" WHERE "reservations"."id" = \$1 ORDER BY "reservations"."id" LIMIT \$[0-9]+`).
			WithArgs(int64(11), 1).
			WillReturnRows(sqlmock.NewRows([]string{"id", "table_id", "guests", "slot_start", "slot_end", "notification_email", "status"}).
				AddRow(11, 2, 4, slotStart, slotStart.Add(90*time.Minute), "ana@example.com", "confirmed"))

		wp.Notify(Event{Type: EventReservationConfirmed, TableID: 2, ReservationID: 11, At: slotStart.Add(-time.Hour)})

		select {
		case got := <-pub.ch:
			assert.Equal(t, "reservation.confirmed", got.key)
			assert.Equal(t, int64(11), got.msg.ReservationID)
			assert.Equal(t, "ana@example.com", got.msg.NotificationEmail)
			assert.True(t, got.msg.SlotStart.Equal(slotStart))
		case <-time.After(time.Second):
			t.Fatal("timed out waiting for publish")
		}
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("skips reservation without email", func(t *testing.T) {
		mock.ExpectQuery(`SELECT \* FROM "reservations"`).
			WithArgs(int64(12), 1).
			WillReturnRows(sqlmock.NewRows([]string{"id", "guests", "status"}).AddRow(12, 2, "cancelled"))

		wp.Notify(Event{Type: EventReservationCancelled, ReservationID: 12})

		assert.Eventually(t, func() bool {
			return mock.ExpectationsWereMet() == nil
		}, time.Second, 10*time.Millisecond)
		assert.Empty(t, pub.ch)
	})
}
