package store

import "smart-locker-backend/internal/model"

// CabinetFilter narrows ListCabinets. Zero values match everything.
type CabinetFilter struct {
	Station string
	Size    model.CabinetSize
	Status  model.CabinetStatus
}

// CabinetUpdate carries the operator-editable cabinet fields. Nil fields are left unchanged.
type CabinetUpdate struct {
	Status       *model.CabinetStatus
	PricePerHour *model.Cents
	Location     *string
}

// DeviceFilter narrows ListDevices.
type DeviceFilter struct {
	Station  string
	IsActive *bool
}

// DeviceUpdate carries the operator-editable device fields. A non-nil
// CabinetCodes replaces the set of bound cabinets.
type DeviceUpdate struct {
	Name         *string
	Station      *string
	Location     *string
	IsActive     *bool
	Status       *model.DeviceStatus
	CabinetCodes *[]string
}

// OrderFilter narrows ListOrders.
type OrderFilter struct {
	UserID    int64
	CabinetID int64
	Status    model.OrderStatus
	Limit     int
}

// SensorReport is the state of one cabinet as observed by its controller.
type SensorReport struct {
	CabinetCode string
	LockAngle   int
	LockLocked  bool
	DoorClosed  bool
	HasItem     bool
}
