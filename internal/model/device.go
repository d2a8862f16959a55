package model

import "time"

// DeviceStatus is the connectivity status of a controller.
type DeviceStatus string

const (
	DeviceOnline  DeviceStatus = "online"
	DeviceOffline DeviceStatus = "offline"
	DeviceError   DeviceStatus = "error"
)

// Device is a locker-bank controller. It owns the cabinets whose DeviceID points at it.
type Device struct {
	ID            int64        `gorm:"primaryKey" json:"id"`
	Code          string       `gorm:"uniqueIndex;size:50;not null" json:"device_id"`
	Name          string       `gorm:"size:100" json:"name"`
	Station       string       `gorm:"size:50;index;not null" json:"station"`
	Location      string       `gorm:"size:100" json:"location"`
	Status        DeviceStatus `gorm:"size:20;not null" json:"status"`
	IsActive      bool         `gorm:"not null" json:"is_active"`
	APIKey        string       `gorm:"column:api_key;uniqueIndex;size:64;not null" json:"-"`
	BatteryLevel  *int         `json:"battery_level"`
	LastHeartbeat *time.Time   `json:"last_heartbeat"`
	CreatedAt     time.Time    `json:"created_at"`
	UpdatedAt     time.Time    `json:"updated_at"`

	// Associations
	Cabinets []Cabinet `gorm:"foreignKey:DeviceID" json:"-"`
}

// IsOnline reports whether a heartbeat arrived within window before now.
func (d *Device) IsOnline(now time.Time, window time.Duration) bool {
	if d.LastHeartbeat == nil {
		return false
	}
	return now.Sub(*d.LastHeartbeat) < window
}

// EffectiveStatus derives the status from heartbeat freshness. An error status sticks.
func (d *Device) EffectiveStatus(now time.Time, window time.Duration) DeviceStatus {
	if d.Status == DeviceError {
		return DeviceError
	}
	if d.IsOnline(now, window) {
		return DeviceOnline
	}
	return DeviceOffline
}

// CabinetCodes returns the codes of the loaded Cabinets association.
func (d *Device) CabinetCodes() []string {
	codes := make([]string, 0, len(d.Cabinets))
	for _, c := range d.Cabinets {
		codes = append(codes, c.Code)
	}
	return codes
}
