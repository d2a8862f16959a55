package syncproto

import (
	"context"
	"time"

	"smart-locker-backend/internal/apperr"
	"smart-locker-backend/internal/model"
)

// CachedCabinetState is the last known state of a cabinet. It is never a live read.
type CachedCabinetState struct {
	CabinetID      string                `json:"cabinet_id"`
	DoorClosed     bool                  `json:"door_closed"`
	LockAngle      int                   `json:"lock_angle"`
	LockLocked     bool                  `json:"lock_locked"`
	HasItem        bool                  `json:"has_item"`
	ItemDetectedAt *time.Time            `json:"item_detected_at"`
	LastUpdated    *time.Time            `json:"last_updated"`
	Source         model.LockStateSource `json:"source"`
	Stale          bool                  `json:"stale"`
}

// QueryDispatch is returned after a status query was queued.
type QueryDispatch struct {
	DeviceID      string               `json:"device_id"`
	Status        model.DeviceStatus   `json:"status"`
	LastHeartbeat *time.Time           `json:"last_heartbeat"`
	QueuedAt      time.Time            `json:"queued_at"`
	Cabinets      []CachedCabinetState `json:"cabinets"`
}

// DispatchStatusQuery queues a status query for every cabinet bound to the device
// and returns the cached states. Offline devices are refused.
func (s *Service) DispatchStatusQuery(ctx context.Context, deviceCode string) (*QueryDispatch, error) {
	d, err := s.store.GetDevice(ctx, deviceCode)
	if err != nil {
		return nil, err
	}
	now := s.now()
	if !d.IsOnline(now, s.onlineWindow) {
		return nil, apperr.Conflict("device %s is offline", d.Code)
	}

	codes := d.CabinetCodes()
	entry, err := s.outbox.Enqueue(ctx, d.ID, model.LogStatusQuery, "status query", map[string]any{
		"cabinet_ids": codes,
		"query_time":  now.Format(time.RFC3339),
	}, now)
	if err != nil {
		return nil, err
	}

	states := make([]CachedCabinetState, 0, len(d.Cabinets))
	for _, c := range d.Cabinets {
		states = append(states, CachedState(&c))
	}
	return &QueryDispatch{
		DeviceID:      d.Code,
		Status:        d.EffectiveStatus(now, s.onlineWindow),
		LastHeartbeat: d.LastHeartbeat,
		QueuedAt:      entry.CreatedAt,
		Cabinets:      states,
	}, nil
}

// CachedState renders a cabinet's stored lock fields.
func CachedState(c *model.Cabinet) CachedCabinetState {
	return CachedCabinetState{
		CabinetID:      c.Code,
		DoorClosed:     c.DoorClosed(),
		LockAngle:      c.LockAngle,
		LockLocked:     c.LockLocked,
		HasItem:        c.HasItem,
		ItemDetectedAt: c.ItemDetectedAt,
		LastUpdated:    c.LockStateUpdatedAt,
		Source:         c.LockStateSource,
		Stale:          true,
	}
}
