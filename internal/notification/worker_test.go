package notification

import (
	"bytes"
	"context"
	"encoding/json"
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

	"smart-locker-backend/internal/model"
	"smart-locker-backend/internal/store"
)

// mockSender is a mock implementation of the NotificationSender interface.
type mockSender struct {
	SendFunc func(payload []byte, sub *webpush.Subscription, options *webpush.Options) (*http.Response, error)
}

// Send calls the mock SendFunc.
func (m *mockSender) Send(payload []byte, sub *webpush.Subscription, options *webpush.Options) (*http.Response, error) {
	return m.SendFunc(payload, sub, options)
}

// A helper function to create a mock database connection.
func newTestStore(t *testing.T) (store.Store, sqlmock.Sqlmock) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)

	gormDB, err := gorm.Open(postgres.New(postgres.Config{
		Conn: db,
	}), &gorm.Config{})
	require.NoError(t, err)

	return store.NewGormStore(gormDB), mock
}

func response(status int) *http.Response {
	return &http.Response{
		StatusCode: status,
		Status:     http.StatusText(status),
		Body:       io.NopCloser(bytes.NewBufferString("")),
	}
}

func TestWorkerPool_PickupCodeIssued(t *testing.T) {
	s, _ := newTestStore(t)
	wp := NewWorkerPool(1, s, &webpush.Options{})

	code := "123456"
	wp.PickupCodeIssued(context.Background(), &model.Order{UserID: 7, OrderNo: "O1", PickupCode: &code}, "A1")
	wp.PickupCodeIssued(context.Background(), &model.Order{UserID: 7, OrderNo: "O2"}, "A2")

	select {
	case job := <-wp.Jobs():
		assert.Equal(t, PickupJob{UserID: 7, OrderNo: "O1", CabinetID: "A1", PickupCode: "123456"}, job)
	case <-time.After(1 * time.Second):
		t.Fatal("timed out waiting for job to be dispatched")
	}
	assert.Empty(t, wp.Jobs(), "orders without a code are skipped")
}

func TestWorkerPool_DispatchNeverBlocks(t *testing.T) {
	s, _ := newTestStore(t)
	wp := NewWorkerPool(1, s, &webpush.Options{})

	for i := 0; i < cap(wp.Jobs()); i++ {
		require.True(t, wp.Dispatch(PickupJob{OrderNo: "O"}))
	}
	assert.False(t, wp.Dispatch(PickupJob{OrderNo: "overflow"}))
}

func TestWorkerPool_WorkerLogic(t *testing.T) {
	s, mock := newTestStore(t)
	wp := NewWorkerPool(1, s, &webpush.Options{})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	wp.Start(ctx)

	subscriptionRows := func(endpoint string) *sqlmock.Rows {
		return sqlmock.NewRows([]string{"endpoint", "p256dh", "auth", "user_id", "created_at"}).
			AddRow(endpoint, "test_p256dh", "test_auth", 7, time.Now())
	}

	t.Run("sends the pickup code to the user's subscription", func(t *testing.T) {
		var wg sync.WaitGroup
		wg.Add(1)

		wp.sender = &mockSender{
			SendFunc: func(payload []byte, sub *webpush.Subscription, options *webpush.Options) (*http.Response, error) {
				defer wg.Done()
				assert.Equal(t, "https://example.com/push", sub.Endpoint)
				var msg pickupMessage
				assert.NoError(t, json.Unmarshal(payload, &msg))
				assert.Equal(t, "654321", msg.PickupCode)
				assert.Equal(t, "A1", msg.CabinetID)
				assert.Contains(t, msg.Body, "654321")
				return response(http.StatusCreated), nil
			},
		}

		mock.ExpectQuery(`SELECT \* FROM "push_subscriptions" WHERE user_id = \$1`).
			WithArgs(int64(7)).
			WillReturnRows(subscriptionRows("https://example.com/push"))

		wp.Dispatch(PickupJob{UserID: 7, OrderNo: "O1", CabinetID: "A1", PickupCode: "654321"})
		wg.Wait()
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("deletes expired subscription", func(t *testing.T) {
		wp.sender = &mockSender{
			SendFunc: func(payload []byte, sub *webpush.Subscription, options *webpush.Options) (*http.Response, error) {
				return response(http.StatusGone), nil
			},
		}

		mock.ExpectQuery(`SELECT \* FROM "push_subscriptions" WHERE user_id = \$1`).
			WithArgs(int64(7)).
			WillReturnRows(subscriptionRows("https://example.com/expired"))
		mock.ExpectBegin()
		mock.ExpectExec(`DELETE FROM "push_subscriptions" WHERE endpoint = \$1`).
			WithArgs("https://example.com/expired").
			WillReturnResult(sqlmock.NewResult(1, 1))
		mock.ExpectCommit()

		wp.Dispatch(PickupJob{UserID: 7, OrderNo: "O2", CabinetID: "A1", PickupCode: "111111"})

		require.Eventually(t, func() bool {
			return mock.ExpectationsWereMet() == nil
		}, time.Second, 10*time.Millisecond)
	})

	t.Run("no subscriptions means no sends", func(t *testing.T) {
		wp.sender = &mockSender{
			SendFunc: func(payload []byte, sub *webpush.Subscription, options *webpush.Options) (*http.Response, error) {
				t.Error("unexpected send")
				return response(http.StatusCreated), nil
			},
		}

		mock.ExpectQuery(`SELECT \* FROM "push_subscriptions" WHERE user_id = \$1`).
			WithArgs(int64(8)).
			WillReturnRows(sqlmock.NewRows([]string{"endpoint"}))

		wp.Dispatch(PickupJob{UserID: 8, OrderNo: "O3"})
		require.Eventually(t, func() bool {
			return mock.ExpectationsWereMet() == nil
		}, time.Second, 10*time.Millisecond)
	})
}
