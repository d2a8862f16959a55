package syncproto

import (
	"context"
	"fmt"
	"log"
	"time"

	"smart-locker-backend/internal/apperr"
	"smart-locker-backend/internal/model"
	"smart-locker-backend/internal/order"
	"smart-locker-backend/internal/store"
)

// OpenResult describes a queued open command.
type OpenResult struct {
	CabinetID    string            `json:"cabinet_id"`
	Action       string            `json:"action"`
	DeviceID     string            `json:"device_id"`
	DeviceOnline bool              `json:"device_online"`
	OrderID      int64             `json:"order_id,omitempty"`
	OrderNo      string            `json:"order_no,omitempty"`
	OrderStatus  model.OrderStatus `json:"order_status,omitempty"`
	QueuedAt     time.Time         `json:"queued_at"`
}

// OpenByCode validates a pickup code against the cabinet's active order and
// queues an open command for the cabinet's device. The order moves to in_use
// and the cabinet is optimistically marked unlocked until the device reports.
func (s *Service) OpenByCode(ctx context.Context, cabinetCode, pickupCode string) (*OpenResult, error) {
	if !order.ValidPickupCode(pickupCode) {
		return nil, apperr.InvalidFields("invalid request", map[string]string{"pickup_code": "must be 6 digits"})
	}
	cabinet, err := s.store.GetCabinet(ctx, cabinetCode)
	if err != nil {
		return nil, err
	}

	now := s.now()
	var result *OpenResult
	err = s.store.Transaction(ctx, func(tx store.Store) error {
		o, err := tx.FindActiveOrderByCode(ctx, cabinet.ID, pickupCode)
		if err != nil {
			return err
		}
		if o == nil {
			released, err := tx.FindReleasedOrderByCode(ctx, cabinet.ID, pickupCode)
			if err != nil {
				return err
			}
			if released != nil {
				return apperr.Conflict("order %s is already %s", released.OrderNo, released.Status)
			}
			return apperr.Validation("invalid or expired pickup code")
		}
		if cabinet.Device == nil {
			return apperr.Internal(nil, "cabinet %s has no bound device", cabinet.Code)
		}
		device := cabinet.Device

		entry, err := s.outbox.In(tx).Enqueue(ctx, device.ID, model.LogOpen, fmt.Sprintf("user open: %s", cabinet.Code), map[string]any{
			"cabinet_id": cabinet.Code,
			"order_id":   o.ID,
			"order_no":   o.OrderNo,
			"source":     "pickup_code",
		}, now)
		if err != nil {
			return err
		}
		if err := s.orders.In(tx).MarkInUse(ctx, o); err != nil {
			return err
		}
		if err := tx.MarkCabinetOpened(ctx, cabinet.ID, now); err != nil {
			return err
		}

		result = &OpenResult{
			CabinetID:    cabinet.Code,
			Action:       "open",
			DeviceID:     device.Code,
			DeviceOnline: device.IsOnline(now, s.onlineWindow),
			OrderID:      o.ID,
			OrderNo:      o.OrderNo,
			OrderStatus:  o.Status,
			QueuedAt:     entry.CreatedAt,
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	if !result.DeviceOnline {
		log.Printf("Open command for cabinet %s queued while device %s is offline", result.CabinetID, result.DeviceID)
	}
	return result, nil
}

// OperatorOpen queues an open command without touching any order.
func (s *Service) OperatorOpen(ctx context.Context, deviceCode, cabinetCode string) (*OpenResult, error) {
	d, err := s.store.GetDevice(ctx, deviceCode)
	if err != nil {
		return nil, err
	}
	if !d.IsActive {
		return nil, apperr.Conflict("device %s is disabled", d.Code)
	}
	cabinet, err := s.store.GetCabinet(ctx, cabinetCode)
	if err != nil {
		return nil, err
	}
	if cabinet.DeviceID == nil || *cabinet.DeviceID != d.ID {
		return nil, apperr.Validation("cabinet %s is not bound to device %s", cabinet.Code, d.Code)
	}

	now := s.now()
	entry, err := s.outbox.Enqueue(ctx, d.ID, model.LogOpen, fmt.Sprintf("operator open: %s", cabinet.Code), map[string]any{
		"cabinet_id": cabinet.Code,
		"source":     "operator",
	}, now)
	if err != nil {
		return nil, err
	}
	return &OpenResult{
		CabinetID:    cabinet.Code,
		Action:       "open",
		DeviceID:     d.Code,
		DeviceOnline: d.IsOnline(now, s.onlineWindow),
		QueuedAt:     entry.CreatedAt,
	}, nil
}
