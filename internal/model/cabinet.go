package model

import "time"

// CabinetSize is the size class of a cabinet.
type CabinetSize string

const (
	SizeSmall  CabinetSize = "small"
	SizeMedium CabinetSize = "medium"
	SizeLarge  CabinetSize = "large"
)

// Valid reports whether s is a known size class.
func (s CabinetSize) Valid() bool {
	switch s {
	case SizeSmall, SizeMedium, SizeLarge:
		return true
	}
	return false
}

// CabinetStatus is the rental status of a cabinet.
type CabinetStatus string

const (
	CabinetAvailable   CabinetStatus = "available"
	CabinetInUse       CabinetStatus = "in_use"
	CabinetMaintenance CabinetStatus = "maintenance"
	CabinetOffline     CabinetStatus = "offline"
)

// Valid reports whether s is a known cabinet status.
func (s CabinetStatus) Valid() bool {
	switch s {
	case CabinetAvailable, CabinetInUse, CabinetMaintenance, CabinetOffline:
		return true
	}
	return false
}

// LockStateSource records who last wrote the lock fields of a cabinet.
type LockStateSource string

const (
	LockStateDevice     LockStateSource = "device"
	LockStateOptimistic LockStateSource = "optimistic"
)

// Cabinet is a physical locker. The lock fields hold the last known state,
// which may be stale; LockStateUpdatedAt tells callers how old it is.
type Cabinet struct {
	ID           int64         `gorm:"primaryKey" json:"id"`
	Code         string        `gorm:"uniqueIndex;size:20;not null" json:"cabinet_id"`
	Size         CabinetSize   `gorm:"size:10;not null" json:"size"`
	Location     string        `gorm:"size:100" json:"location"`
	Station      string        `gorm:"size:50;index;not null" json:"station"`
	Status       CabinetStatus `gorm:"size:20;index;not null" json:"status"`
	PricePerHour Cents         `gorm:"column:price_per_hour_cents;not null" json:"price_per_hour"`
	DeviceID     *int64        `gorm:"index" json:"-"`

	IsLocked           bool            `gorm:"not null" json:"is_locked"`
	LockAngle          int             `gorm:"not null" json:"lock_angle"`
	LockLocked         bool            `gorm:"not null" json:"lock_locked"`
	HasItem            bool            `gorm:"not null" json:"has_item"`
	ItemDetectedAt     *time.Time      `json:"item_detected_at"`
	LockStateUpdatedAt *time.Time      `json:"lock_state_updated_at"`
	LockStateSource    LockStateSource `gorm:"size:16" json:"lock_state_source"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	// Associations
	Device *Device `gorm:"constraint:OnDelete:SET NULL" json:"-"`
}

// DoorClosed is derived from IsLocked: a closed door is treated as locked.
func (c *Cabinet) DoorClosed() bool {
	return c.IsLocked
}
