// Package outbox is the device command channel. Commands are ordinary device
// log entries; a command is pending for a device while it is newer than the
// device's last heartbeat.
package outbox

import (
	"context"
	"fmt"
	"time"

	"gorm.io/datatypes"

	"smart-locker-backend/internal/metrics"
	"smart-locker-backend/internal/model"
	"smart-locker-backend/internal/store"
)

// Outbox appends and reads device commands.
type Outbox struct {
	store           store.Store
	firstPollWindow time.Duration
}

// New creates an Outbox. firstPollWindow bounds how far back a device that
// never sent a heartbeat can see commands.
func New(s store.Store, firstPollWindow time.Duration) *Outbox {
	return &Outbox{store: s, firstPollWindow: firstPollWindow}
}

// In returns a copy of the outbox bound to tx.
func (o *Outbox) In(tx store.Store) *Outbox {
	cp := *o
	cp.store = tx
	return &cp
}

// Enqueue appends a log entry of the given kind for the device.
func (o *Outbox) Enqueue(ctx context.Context, deviceID int64, kind model.LogKind, message string, payload map[string]any, now time.Time) (*model.DeviceLog, error) {
	entry := &model.DeviceLog{
		DeviceID:  deviceID,
		Kind:      kind,
		Message:   message,
		Payload:   datatypes.JSONMap(payload),
		CreatedAt: now,
	}
	if err := o.store.AppendLog(ctx, entry); err != nil {
		return nil, err
	}
	if kind == model.LogOpen || kind == model.LogStatusQuery {
		metrics.IncCommandEnqueued(string(kind))
	}
	return entry, nil
}

// Since returns the start of the delivery window for d.
func (o *Outbox) Since(d *model.Device, now time.Time) time.Time {
	if d.LastHeartbeat != nil {
		return *d.LastHeartbeat
	}
	return now.Add(-o.firstPollWindow)
}

// Pending returns the most recent command of kind inside the device's window, or nil.
// Entries are never removed; a device may see the same command more than once.
func (o *Outbox) Pending(ctx context.Context, d *model.Device, kind model.LogKind, now time.Time) (*model.DeviceLog, error) {
	entry, err := o.store.LatestLog(ctx, d.ID, kind, o.Since(d, now))
	if err != nil {
		return nil, fmt.Errorf("failed to read pending %s command: %w", kind, err)
	}
	return entry, nil
}
