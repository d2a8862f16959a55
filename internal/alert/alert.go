// Package alert derives operator alerts from current state. Nothing is stored;
// every call recomputes the list.
package alert

import (
	"context"
	"fmt"
	"time"

	"smart-locker-backend/internal/store"
)

// Type names the condition that raised an alert.
type Type string

const (
	DeviceOffline      Type = "device_offline"
	LowBattery         Type = "low_battery"
	OrderOverdue       Type = "order_overdue"
	CabinetMaintenance Type = "cabinet_maintenance"
)

// Level is the severity of an alert.
type Level string

const (
	LevelInfo    Level = "info"
	LevelWarning Level = "warning"
)

// Alert is one derived condition.
type Alert struct {
	Type      Type      `json:"type"`
	Level     Level     `json:"level"`
	Title     string    `json:"title"`
	Message   string    `json:"message"`
	DeviceID  string    `json:"device_id,omitempty"`
	CabinetID string    `json:"cabinet_id,omitempty"`
	OrderNo   string    `json:"order_no,omitempty"`
	Station   string    `json:"station,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// Thresholds configures Derive.
type Thresholds struct {
	OfflineAfter      time.Duration
	LowBatteryPercent int
}

// Deriver computes alerts from a Store.
type Deriver struct {
	store      store.Store
	thresholds Thresholds
}

func NewDeriver(s store.Store, t Thresholds) *Deriver {
	return &Deriver{store: s, thresholds: t}
}

// Derive lists every current alert: offline and low-battery devices, overdue
// orders and cabinets under maintenance.
func (d *Deriver) Derive(ctx context.Context, now time.Time) ([]Alert, error) {
	alerts := []Alert{}

	stale, err := d.store.StaleDevices(ctx, now.Add(-d.thresholds.OfflineAfter))
	if err != nil {
		return nil, err
	}
	for _, dev := range stale {
		alerts = append(alerts, Alert{
			Type:      DeviceOffline,
			Level:     LevelWarning,
			Title:     "Device offline",
			Message:   fmt.Sprintf("Device %s has not sent a heartbeat since %s", dev.Code, dev.LastHeartbeat.Format(time.RFC3339)),
			DeviceID:  dev.Code,
			Station:   dev.Station,
			CreatedAt: *dev.LastHeartbeat,
		})
	}

	low, err := d.store.LowBatteryDevices(ctx, d.thresholds.LowBatteryPercent)
	if err != nil {
		return nil, err
	}
	for _, dev := range low {
		alerts = append(alerts, Alert{
			Type:      LowBattery,
			Level:     LevelWarning,
			Title:     "Low battery",
			Message:   fmt.Sprintf("Device %s battery at %d%%", dev.Code, *dev.BatteryLevel),
			DeviceID:  dev.Code,
			Station:   dev.Station,
			CreatedAt: now,
		})
	}

	overdue, err := d.store.OverdueOrders(ctx, now)
	if err != nil {
		return nil, err
	}
	for _, o := range overdue {
		a := Alert{
			Type:      OrderOverdue,
			Level:     LevelWarning,
			Title:     "Order overdue",
			OrderNo:   o.OrderNo,
			CreatedAt: *o.EndTime,
		}
		overBy := now.Sub(*o.EndTime).Truncate(time.Minute)
		if o.Cabinet != nil {
			a.CabinetID = o.Cabinet.Code
			a.Station = o.Cabinet.Station
			a.Message = fmt.Sprintf("Order %s on cabinet %s is overdue by %s", o.OrderNo, o.Cabinet.Code, overBy)
		} else {
			a.Message = fmt.Sprintf("Order %s is overdue by %s", o.OrderNo, overBy)
		}
		alerts = append(alerts, a)
	}

	cabinets, err := d.store.MaintenanceCabinets(ctx)
	if err != nil {
		return nil, err
	}
	for _, c := range cabinets {
		alerts = append(alerts, Alert{
			Type:      CabinetMaintenance,
			Level:     LevelInfo,
			Title:     "Cabinet under maintenance",
			Message:   fmt.Sprintf("Cabinet %s at %s is under maintenance", c.Code, c.Station),
			CabinetID: c.Code,
			Station:   c.Station,
			CreatedAt: c.UpdatedAt,
		})
	}
	return alerts, nil
}

// Count tallies alerts by level.
func Count(alerts []Alert) map[Level]int {
	counts := map[Level]int{LevelInfo: 0, LevelWarning: 0}
	for _, a := range alerts {
		counts[a.Level]++
	}
	return counts
}
