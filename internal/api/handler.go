package api

import (
	"time"

	"github.com/SherClockHolmes/webpush-go"

	"smart-locker-backend/internal/alert"
	"smart-locker-backend/internal/order"
	"smart-locker-backend/internal/store"
	"smart-locker-backend/internal/syncproto"
)

// Deps are the services the handlers call into.
type Deps struct {
	Store        store.Store
	Orders       *order.Service
	Sync         *syncproto.Service
	Alerts       *alert.Deriver
	Webpush      *webpush.Options
	OnlineWindow time.Duration
	Now          func() time.Time
}

// Handler holds shared dependencies for API handlers.
type Handler struct {
	store        store.Store
	orders       *order.Service
	sync         *syncproto.Service
	alerts       *alert.Deriver
	webpush      *webpush.Options
	onlineWindow time.Duration
	now          func() time.Time
}

// NewHandler creates a new API handler.
func NewHandler(d Deps) *Handler {
	h := &Handler{
		store:        d.Store,
		orders:       d.Orders,
		sync:         d.Sync,
		alerts:       d.Alerts,
		webpush:      d.Webpush,
		onlineWindow: d.OnlineWindow,
		now:          d.Now,
	}
	if h.now == nil {
		h.now = func() time.Time { return time.Now().UTC() }
	}
	return h
}
