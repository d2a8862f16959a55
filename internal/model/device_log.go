package model

import (
	"time"

	"gorm.io/datatypes"
)

// LogKind is the type of a device log entry.
type LogKind string

const (
	LogOpen        LogKind = "open"
	LogStatusQuery LogKind = "status_query"
	LogHeartbeat   LogKind = "heartbeat"
	LogStatus      LogKind = "status"
	LogError       LogKind = "error"
)

// DeviceLog is an append-only audit entry. Entries of kind open and status_query
// double as the command channel polled by the device.
type DeviceLog struct {
	ID        int64             `gorm:"primaryKey" json:"id"`
	DeviceID  int64             `gorm:"not null;index:idx_device_logs_poll,priority:1" json:"-"`
	Kind      LogKind           `gorm:"size:20;not null;index:idx_device_logs_poll,priority:2" json:"log_type"`
	Message   string            `gorm:"type:text" json:"message"`
	Payload   datatypes.JSONMap `json:"data"`
	CreatedAt time.Time         `gorm:"not null;index:idx_device_logs_poll,priority:3" json:"created_at"`

	// Associations
	Device *Device `gorm:"constraint:OnDelete:CASCADE" json:"-"`
}
