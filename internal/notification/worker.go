package notification

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/SherClockHolmes/webpush-go"

	"smart-locker-backend/internal/metrics"
	"smart-locker-backend/internal/model"
	"smart-locker-backend/internal/store"
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

// PickupJob is one pickup code to deliver to a user's browsers.
type PickupJob struct {
	UserID     int64
	OrderNo    string
	CabinetID  string
	PickupCode string
	EndTime    *time.Time
}

// pickupMessage is the push payload read by the web client.
type pickupMessage struct {
	Title      string     `json:"title"`
	Body       string     `json:"body"`
	OrderNo    string     `json:"order_no"`
	CabinetID  string     `json:"cabinet_id"`
	PickupCode string     `json:"pickup_code"`
	EndTime    *time.Time `json:"end_time,omitempty"`
}

// WorkerPool manages a pool of workers for sending notifications.
type WorkerPool struct {
	size    int
	jobs    chan PickupJob
	store   store.Store
	webpush *webpush.Options
	sender  NotificationSender
}

// NewWorkerPool creates a new worker pool.
func NewWorkerPool(size int, s store.Store, webpushOptions *webpush.Options) *WorkerPool {
	return &WorkerPool{
		size:    size,
		jobs:    make(chan PickupJob, size*16),
		store:   s,
		webpush: webpushOptions,
		sender:  &WebPushSender{},
	}
}

// Start launches the worker goroutines.
func (wp *WorkerPool) Start(ctx context.Context) {
	for i := 0; i < wp.size; i++ {
		go wp.worker(ctx, i)
	}
}

func (wp *WorkerPool) worker(ctx context.Context, id int) {
	log.Printf("Worker %d started", id)
	for {
		select {
		case job := <-wp.jobs:
			wp.notifyUser(ctx, job)
		case <-ctx.Done():
			log.Printf("Worker %d shutting down", id)
			return
		}
	}
}

// Dispatch queues a job. It never blocks the caller: when the queue is full
// the job is dropped, since the code is also shown in the payment response.
func (wp *WorkerPool) Dispatch(job PickupJob) bool {
	select {
	case wp.jobs <- job:
		return true
	default:
		log.Printf("Notification queue full, dropping pickup code push for order %s", job.OrderNo)
		metrics.IncPushFailure()
		return false
	}
}

// PickupCodeIssued queues a push for a freshly paid order.
func (wp *WorkerPool) PickupCodeIssued(_ context.Context, o *model.Order, cabinetCode string) {
	if o.PickupCode == nil {
		return
	}
	wp.Dispatch(PickupJob{
		UserID:     o.UserID,
		OrderNo:    o.OrderNo,
		CabinetID:  cabinetCode,
		PickupCode: *o.PickupCode,
		EndTime:    o.EndTime,
	})
}

// Jobs returns the jobs channel for testing.
func (wp *WorkerPool) Jobs() chan PickupJob {
	return wp.jobs
}

func (wp *WorkerPool) notifyUser(ctx context.Context, job PickupJob) {
	subscriptions, err := wp.store.ListSubscriptions(ctx, job.UserID)
	if err != nil {
		log.Printf("Error fetching subscriptions for user %d: %v", job.UserID, err)
		return
	}
	if len(subscriptions) == 0 {
		return
	}

	payload, err := json.Marshal(pickupMessage{
		Title:      "取件码已生成",
		Body:       fmt.Sprintf("柜子 %s 的取件码: %s", job.CabinetID, job.PickupCode),
		OrderNo:    job.OrderNo,
		CabinetID:  job.CabinetID,
		PickupCode: job.PickupCode,
		EndTime:    job.EndTime,
	})
	if err != nil {
		log.Printf("Error encoding notification for order %s: %v", job.OrderNo, err)
		return
	}

	log.Printf("Sending %d notifications for order %s", len(subscriptions), job.OrderNo)
	for _, sub := range subscriptions {
		wp.sendNotification(ctx, sub, payload)
	}
}

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
		metrics.IncPushFailure()
		log.Printf("Error sending notification to %s: %v", sub.Endpoint, err)
		return
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusGone || resp.StatusCode == http.StatusNotFound:
		log.Printf("Subscription for endpoint %s is expired. Deleting.", sub.Endpoint)
		if err := wp.store.DeleteSubscriptionByEndpoint(ctx, sub.Endpoint); err != nil {
			log.Printf("Failed to delete expired subscription %s: %v", sub.Endpoint, err)
		}
	case resp.StatusCode >= 400:
		metrics.IncPushFailure()
		log.Printf("Push service rejected notification to %s: %s", sub.Endpoint, resp.Status)
	}
}
