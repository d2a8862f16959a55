// Package syncproto implements the poll-only protocol between the backend and
// locker-bank controllers. Devices push heartbeats and status reports and pull
// commands; the backend never connects to a device.
package syncproto

import (
	"context"
	"crypto/subtle"
	"time"

	"smart-locker-backend/internal/apperr"
	"smart-locker-backend/internal/model"
	"smart-locker-backend/internal/order"
	"smart-locker-backend/internal/outbox"
	"smart-locker-backend/internal/store"
)

// Service handles device traffic and the user and operator actions that enqueue device commands.
type Service struct {
	store        store.Store
	outbox       *outbox.Outbox
	orders       *order.Service
	onlineWindow time.Duration
	now          func() time.Time
}

// Option configures a Service.
type Option func(*Service)

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// NewService creates a protocol Service. onlineWindow is the heartbeat age
// after which a device counts as offline.
func NewService(s store.Store, ob *outbox.Outbox, orders *order.Service, onlineWindow time.Duration, opts ...Option) *Service {
	svc := &Service{
		store:        s,
		outbox:       ob,
		orders:       orders,
		onlineWindow: onlineWindow,
		now:          func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(svc)
	}
	return svc
}

// authenticateKey resolves the device holding apiKey. Disabled devices are refused.
func (s *Service) authenticateKey(ctx context.Context, apiKey string) (*model.Device, error) {
	if apiKey == "" {
		return nil, apperr.Unauthorized("missing api key")
	}
	d, err := s.store.GetDeviceByAPIKey(ctx, apiKey)
	if apperr.Is(err, apperr.KindNotFound) {
		return nil, apperr.Unauthorized("invalid api key")
	}
	if err != nil {
		return nil, err
	}
	if !d.IsActive {
		return nil, apperr.Unauthorized("device %s is disabled", d.Code)
	}
	return d, nil
}

// authenticateDevice loads the device named in the path and checks its credential.
func (s *Service) authenticateDevice(ctx context.Context, deviceCode, apiKey string) (*model.Device, error) {
	d, err := s.store.GetDevice(ctx, deviceCode)
	if err != nil {
		return nil, err
	}
	if apiKey == "" {
		return nil, apperr.Unauthorized("missing api key")
	}
	if subtle.ConstantTimeCompare([]byte(apiKey), []byte(d.APIKey)) != 1 {
		return nil, apperr.Unauthorized("api key does not match device %s", d.Code)
	}
	return d, nil
}

func validBattery(b *int) bool {
	return b == nil || (*b >= 0 && *b <= 100)
}
